package suggest

import (
	"fmt"
	"strings"
	"time"

	"github.com/lazypower/tether/internal/domain"
	"github.com/lazypower/tether/internal/signals"
)

// RuleID names one step of the cascade.
type RuleID string

const (
	RuleReflection        RuleID = "reflection_needed"
	RuleLifeEvent         RuleID = "life_event"
	RuleCriticalDrift     RuleID = "critical_drift"
	RuleHighDrift         RuleID = "high_drift"
	RuleFirstContact      RuleID = "first_contact"
	RuleArchetypeMismatch RuleID = "archetype_mismatch"
	RuleMomentum          RuleID = "momentum"
	RuleMaintenance       RuleID = "maintenance_due"
	RuleDeepen            RuleID = "deepen"
)

const (
	reflectionWindow = 24 * time.Hour
	reflectionExpiry = 48 * time.Hour
	momentumWindow   = 7 * 24 * time.Hour
	mismatchLookback = 3
)

// input is what every predicate and builder sees.
type input struct {
	sig   *signals.Signals
	rel   *domain.Relationship
	table ArchetypeTable
}

// rule pairs a pure predicate with the builder for its suggestion.
type rule struct {
	id       RuleID
	cooldown int
	matches  func(in *input) bool
	build    func(in *input) Suggestion
}

// cascade is evaluated top-down; the first match wins.
var cascade = []rule{
	{RuleReflection, 1, needsReflection, buildReflection},
	{RuleLifeEvent, 2, hasUpcomingEvent, buildLifeEvent},
	{RuleCriticalDrift, 1, criticalDrift, buildCriticalDrift},
	{RuleHighDrift, 3, highDrift, buildHighDrift},
	{RuleFirstContact, 3, firstContact, buildFirstContact},
	{RuleArchetypeMismatch, 7, archetypeMismatch, buildArchetypeMismatch},
	{RuleMomentum, 3, momentum, buildMomentum},
	{RuleMaintenance, 5, maintenanceDue, buildMaintenance},
	{RuleDeepen, 14, deepen, buildDeepen},
}

// CooldownForRule returns the rule's cooldown in days.
func CooldownForRule(id RuleID) (int, bool) {
	for _, r := range cascade {
		if r.id == id {
			return r.cooldown, true
		}
	}
	return 0, false
}

// Rules lists rule ids in priority order.
func Rules() []RuleID {
	out := make([]RuleID, len(cascade))
	for i, r := range cascade {
		out[i] = r.id
	}
	return out
}

// Generate returns the suggestion of the highest-priority matching rule, or
// nil when no rule matches. Interactions that are planned or dated after
// sig.Now are ignored. A nil table means DefaultArchetypes.
func Generate(sig *signals.Signals, table ArchetypeTable) *Suggestion {
	in := prepare(sig, table)
	if in == nil {
		return nil
	}
	for _, r := range cascade {
		if !r.matches(in) {
			continue
		}
		s := r.build(in)
		s.ID = SuggestionID(r.id, in.rel.ID)
		s.Rule = r.id
		s.RelationshipID = in.rel.ID
		s.RelationshipName = in.rel.Name
		s.CreatedAt = sig.Now
		s.CooldownDays = r.cooldown
		s.ExpectedImpact = AssumedBenefit(in.rel, s.Category)
		return &s
	}
	return nil
}

// Matching lists every rule whose condition holds, in priority order.
func Matching(sig *signals.Signals, table ArchetypeTable) []RuleID {
	in := prepare(sig, table)
	if in == nil {
		return nil
	}
	var out []RuleID
	for _, r := range cascade {
		if r.matches(in) {
			out = append(out, r.id)
		}
	}
	return out
}

func prepare(sig *signals.Signals, table ArchetypeTable) *input {
	if sig == nil {
		return nil
	}
	if table == nil {
		table = DefaultArchetypes
	}
	clean := *sig
	clean.Interactions = signals.CompletedPast(sig.Interactions, sig.Now)
	rel := clean.Relationship
	rel.Tier = rel.Tier.Normalize()
	return &input{sig: &clean, rel: &rel, table: table}
}

// sinceLast is the time since the last completed interaction, falling back
// to the time since the relationship was added.
func (in *input) sinceLast() time.Duration {
	if last := in.sig.LastInteraction(); last != nil {
		return in.sig.Now.Sub(last.Date)
	}
	return in.sig.Now.Sub(in.rel.CreatedAt)
}

func needsReflection(in *input) bool {
	last := in.sig.LastInteraction()
	if last == nil {
		return false
	}
	age := in.sig.Now.Sub(last.Date)
	return age >= 0 && age <= reflectionWindow && last.NeedsReflection()
}

func buildReflection(in *input) Suggestion {
	last := in.sig.LastInteraction()
	expires := last.Date.Add(reflectionExpiry)
	return Suggestion{
		Urgency:     UrgencyHigh,
		Category:    last.Category,
		Title:       fmt.Sprintf("How did it go with %s?", in.rel.Name),
		Subtitle:    fmt.Sprintf("Add a vibe or a note for %s while it's fresh.", categoryLabel(last.Category)),
		Action:      Action{Type: ActionReflect, Prefill: map[string]string{"interaction_id": last.ID}},
		Dismissible: true,
		ExpiresAt:   &expires,
	}
}

func hasUpcomingEvent(in *input) bool {
	for _, ev := range in.sig.Events {
		if ev.DaysUntil >= 0 && ev.DaysUntil <= signals.EventHorizonDays {
			return true
		}
	}
	return false
}

func buildLifeEvent(in *input) Suggestion {
	var ev signals.UpcomingEvent
	for _, e := range in.sig.Events {
		if e.DaysUntil >= 0 && e.DaysUntil <= signals.EventHorizonDays {
			ev = e
			break
		}
	}

	urgency := UrgencyMedium
	if ev.DaysUntil <= 1 {
		urgency = UrgencyHigh
	}
	category := domain.CategoryCelebration
	if ev.Label != "birthday" && ev.Label != "anniversary" {
		category = SuggestedCategory(in.sig)
	}

	when := fmt.Sprintf("in %d days", ev.DaysUntil)
	switch ev.DaysUntil {
	case 0:
		when = "today"
	case 1:
		when = "tomorrow"
	}
	return Suggestion{
		Urgency:     urgency,
		Category:    category,
		Title:       fmt.Sprintf("%s's %s is %s", in.rel.Name, ev.Label, when),
		Subtitle:    fmt.Sprintf("Plan %s to mark it.", categoryLabel(category)),
		Action:      Action{Type: ActionPlan, Prefill: map[string]string{"category": string(category), "date": ev.Date.Format("2006-01-02")}},
		Dismissible: true,
	}
}

func criticalDrift(in *input) bool {
	return in.rel.Tier.IsTop() && in.rel.CurrentScore < 30
}

func buildCriticalDrift(in *input) Suggestion {
	category := SuggestedCategory(in.sig)
	return Suggestion{
		Urgency:     UrgencyCritical,
		Category:    category,
		Title:       fmt.Sprintf("You and %s are drifting apart", in.rel.Name),
		Subtitle:    fmt.Sprintf("Reach out soon. %s would help.", capitalize(categoryLabel(category))),
		Action:      Action{Type: ActionPlan, Prefill: map[string]string{"category": string(category)}},
		Dismissible: false,
	}
}

func highDrift(in *input) bool {
	score := in.rel.CurrentScore
	switch in.rel.Tier.Rank() {
	case 0:
		return score < 50
	case 1:
		return score < 35
	}
	return false
}

func buildHighDrift(in *input) Suggestion {
	category := SuggestedCategory(in.sig)
	return Suggestion{
		Urgency:     UrgencyHigh,
		Category:    category,
		Title:       fmt.Sprintf("It's been a while with %s", in.rel.Name),
		Subtitle:    fmt.Sprintf("Plan %s to reconnect.", categoryLabel(category)),
		Action:      Action{Type: ActionPlan, Prefill: map[string]string{"category": string(category)}},
		Dismissible: true,
	}
}

func firstContact(in *input) bool {
	return len(in.sig.Interactions) == 0 && in.sig.Now.Sub(in.rel.CreatedAt) >= 24*time.Hour
}

func buildFirstContact(in *input) Suggestion {
	category := SuggestedCategory(in.sig)
	return Suggestion{
		Urgency:     UrgencyMedium,
		Category:    category,
		Title:       fmt.Sprintf("Log your first moment with %s", in.rel.Name),
		Subtitle:    "Record a recent catch-up to start tracking.",
		Action:      Action{Type: ActionLog, Prefill: map[string]string{"category": string(category)}},
		Dismissible: true,
	}
}

func archetypeMismatch(in *input) bool {
	preferred, ok := in.table.PreferredCategory(in.rel.Archetype)
	if !ok || len(in.sig.Interactions) < mismatchLookback {
		return false
	}
	for _, it := range in.sig.Interactions[:mismatchLookback] {
		if it.Category == preferred {
			return false
		}
	}
	return true
}

func buildArchetypeMismatch(in *input) Suggestion {
	preferred, _ := in.table.PreferredCategory(in.rel.Archetype)
	return Suggestion{
		Urgency:     UrgencyMedium,
		Category:    preferred,
		Title:       fmt.Sprintf("%s tends to enjoy %s", in.rel.Name, categoryLabel(preferred)),
		Subtitle:    "Your last few get-togethers looked different. Something to keep in mind.",
		Action:      Action{Type: ActionPlan, Prefill: map[string]string{"category": string(preferred)}},
		Dismissible: true,
	}
}

func momentum(in *input) bool {
	last := in.sig.LastInteraction()
	if last == nil {
		return false
	}
	return in.rel.CurrentScore > 60 && in.rel.MomentumScore > 10 && in.sig.Now.Sub(last.Date) <= momentumWindow
}

func buildMomentum(in *input) Suggestion {
	category := SuggestedCategory(in.sig)
	return Suggestion{
		Urgency:     UrgencyMedium,
		Category:    category,
		Title:       fmt.Sprintf("Things are going well with %s", in.rel.Name),
		Subtitle:    fmt.Sprintf("Ride the wave with %s.", categoryLabel(category)),
		Action:      Action{Type: ActionPlan, Prefill: map[string]string{"category": string(category)}},
		Dismissible: true,
	}
}

func maintenanceDue(in *input) bool {
	score := in.rel.CurrentScore
	if score < 40 || score > 70 {
		return false
	}
	cadence := time.Duration(in.rel.Tier.CadenceDays()) * 24 * time.Hour
	return in.sinceLast() > cadence
}

func buildMaintenance(in *input) Suggestion {
	category := SuggestedCategory(in.sig)
	return Suggestion{
		Urgency:     UrgencyLow,
		Category:    category,
		Title:       fmt.Sprintf("Time to check in with %s", in.rel.Name),
		Subtitle:    fmt.Sprintf("%s keeps things steady.", capitalize(categoryLabel(category))),
		Action:      Action{Type: ActionPlan, Prefill: map[string]string{"category": string(category)}},
		Dismissible: true,
	}
}

func deepen(in *input) bool {
	return in.rel.CurrentScore > 85 && !in.rel.Tier.IsLowest()
}

func buildDeepen(in *input) Suggestion {
	category := domain.CategoryDeepTalk
	if preferred, ok := in.table.PreferredCategory(in.rel.Archetype); ok {
		category = preferred
	}
	return Suggestion{
		Urgency:     UrgencyLow,
		Category:    category,
		Title:       fmt.Sprintf("You and %s are thriving", in.rel.Name),
		Subtitle:    fmt.Sprintf("Go deeper with %s.", categoryLabel(category)),
		Action:      Action{Type: ActionPlan, Prefill: map[string]string{"category": string(category)}},
		Dismissible: true,
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
