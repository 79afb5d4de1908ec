package domain

import (
	"strings"
	"time"
)

// Category classifies an interaction.
type Category string

const (
	CategoryConversation Category = "conversation"
	CategorySharedMeal   Category = "shared_meal"
	CategoryDeepTalk     Category = "deep_talk"
	CategoryActivity     Category = "activity"
	CategoryEvent        Category = "event"
	CategoryCelebration  Category = "celebration"
)

// Categories lists every known category in a stable order.
var Categories = []Category{
	CategoryConversation,
	CategorySharedMeal,
	CategoryDeepTalk,
	CategoryActivity,
	CategoryEvent,
	CategoryCelebration,
}

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	for _, k := range Categories {
		if k == c {
			return true
		}
	}
	return false
}

// BaseImpact is the score benefit assumed for an interaction of this
// category before any learning.
func (c Category) BaseImpact() float64 {
	switch c {
	case CategoryConversation:
		return 3
	case CategorySharedMeal, CategoryActivity:
		return 5
	case CategoryDeepTalk, CategoryCelebration:
		return 6
	case CategoryEvent:
		return 4
	default:
		return 3
	}
}

// Status of an interaction.
type Status string

const (
	StatusPlanned   Status = "planned"
	StatusCompleted Status = "completed"
)

// Interaction is a logged or planned event between the user and one or
// more relationships.
type Interaction struct {
	ID              string
	RelationshipIDs []string
	Category        Category
	Status          Status
	Date            time.Time
	Vibe            *int
	Note            string
	Initiator       Initiator
	SuggestionID    string
	CreatedAt       time.Time

	// ScoreAtLog is the relationship score when the interaction was logged.
	// Only set when the interaction is read for a single relationship.
	ScoreAtLog *float64
}

// IsCompletedBy reports whether the interaction is completed and not
// dated after now.
func (i *Interaction) IsCompletedBy(now time.Time) bool {
	return i.Status == StatusCompleted && !i.Date.After(now)
}

// NeedsReflection reports whether neither a vibe nor a note was recorded.
func (i *Interaction) NeedsReflection() bool {
	return i.Vibe == nil && strings.TrimSpace(i.Note) == ""
}

// LifeEvent is a dated, detected event for a relationship (a move, a new
// job, a wedding).
type LifeEvent struct {
	ID             string
	RelationshipID string
	Label          string
	Date           time.Time
}
