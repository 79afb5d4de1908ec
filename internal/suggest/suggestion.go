// Package suggest picks the single most important maintenance action for a
// relationship from its current signals.
package suggest

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/lazypower/tether/internal/domain"
)

// Urgency orders suggestions for the scheduler.
type Urgency string

const (
	UrgencyCritical Urgency = "critical"
	UrgencyHigh     Urgency = "high"
	UrgencyMedium   Urgency = "medium"
	UrgencyLow      Urgency = "low"
)

// Rank returns 0 for critical through 3 for low. Unknown values rank last.
func (u Urgency) Rank() int {
	switch u {
	case UrgencyCritical:
		return 0
	case UrgencyHigh:
		return 1
	case UrgencyMedium:
		return 2
	case UrgencyLow:
		return 3
	default:
		return 4
	}
}

// ActionType tells the UI which flow a suggestion opens.
type ActionType string

const (
	ActionReflect ActionType = "reflect"
	ActionLog     ActionType = "log"
	ActionPlan    ActionType = "plan"
)

// Action describes what accepting a suggestion does, with prefill hints
// for the form it opens.
type Action struct {
	Type    ActionType        `json:"type"`
	Prefill map[string]string `json:"prefill,omitempty"`
}

// Suggestion is an ephemeral, never persisted recommendation for one
// relationship.
type Suggestion struct {
	ID               string          `json:"id"`
	RelationshipID   string          `json:"relationship_id"`
	RelationshipName string          `json:"relationship_name"`
	Rule             RuleID          `json:"rule"`
	Urgency          Urgency         `json:"urgency"`
	Category         domain.Category `json:"category"`
	Title            string          `json:"title"`
	Subtitle         string          `json:"subtitle"`
	Action           Action          `json:"action"`
	Dismissible      bool            `json:"dismissible"`
	CreatedAt        time.Time       `json:"created_at"`
	ExpiresAt        *time.Time      `json:"expires_at,omitempty"`
	ExpectedImpact   float64         `json:"expected_impact"`
	CooldownDays     int             `json:"cooldown_days"`
}

// IsCritical reports whether the suggestion draws from the critical budget.
func (s *Suggestion) IsCritical() bool { return s.Urgency == UrgencyCritical }

// SuggestionID derives the deterministic id for a rule and relationship.
func SuggestionID(rule RuleID, relationshipID string) string {
	return string(rule) + ":" + relationshipID
}

// ParseSuggestionID splits an id produced by SuggestionID. ok is false
// when the rule part is not a known rule.
func ParseSuggestionID(id string) (rule RuleID, relationshipID string, ok bool) {
	head, tail, found := strings.Cut(id, ":")
	if !found || tail == "" {
		return "", "", false
	}
	rule = RuleID(head)
	if _, known := CooldownForRule(rule); !known {
		return "", "", false
	}
	return rule, tail, true
}

// AssumedBenefit is the score gain the generator expects from an
// interaction of category c with rel: base impact scaled by the learned
// effectiveness, which is floored at 0.1.
func AssumedBenefit(rel *domain.Relationship, c domain.Category) float64 {
	eff := rel.Effectiveness(c)
	if eff < 0.1 {
		eff = 0.1
	}
	return c.BaseImpact() * eff
}

// Sort orders suggestions by urgency, then assumed benefit (highest first),
// then relationship id.
func Sort(list []Suggestion) {
	sort.SliceStable(list, func(i, j int) bool {
		a, b := list[i], list[j]
		if a.Urgency.Rank() != b.Urgency.Rank() {
			return a.Urgency.Rank() < b.Urgency.Rank()
		}
		if a.ExpectedImpact != b.ExpectedImpact {
			return a.ExpectedImpact > b.ExpectedImpact
		}
		return a.RelationshipID < b.RelationshipID
	})
}

func categoryLabel(c domain.Category) string {
	switch c {
	case domain.CategoryConversation:
		return "a conversation"
	case domain.CategorySharedMeal:
		return "a shared meal"
	case domain.CategoryDeepTalk:
		return "a deep talk"
	case domain.CategoryActivity:
		return "an activity"
	case domain.CategoryEvent:
		return "an event"
	case domain.CategoryCelebration:
		return "a celebration"
	default:
		return fmt.Sprintf("some %s", c)
	}
}

// WithoutCooldowns drops suggestions whose id has an active cooldown.
// cooldowns is keyed by suggestion id.
func WithoutCooldowns(list []Suggestion, cooldowns map[string]time.Time) []Suggestion {
	if len(cooldowns) == 0 {
		return list
	}
	out := list[:0:0]
	for _, s := range list {
		if _, cooling := cooldowns[s.ID]; !cooling {
			out = append(out, s)
		}
	}
	return out
}
