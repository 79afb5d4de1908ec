package engine

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/lazypower/tether/internal/domain"
	"github.com/lazypower/tether/internal/outcome"
	"github.com/lazypower/tether/internal/reciprocity"
	"github.com/lazypower/tether/internal/store"
	"github.com/lazypower/tether/internal/suggest"
)

// InteractionInput is a request to log an interaction.
type InteractionInput struct {
	RelationshipIDs []string         `json:"relationship_ids" validate:"required,min=1,dive,required"`
	Category        domain.Category  `json:"category" validate:"required,oneof=conversation shared_meal deep_talk activity event celebration"`
	Status          domain.Status    `json:"status,omitempty" validate:"omitempty,oneof=planned completed"`
	Date            time.Time        `json:"date"`
	Vibe            *int             `json:"vibe,omitempty" validate:"omitempty,min=1,max=5"`
	Note            string           `json:"note,omitempty"`
	Initiator       domain.Initiator `json:"initiator,omitempty" validate:"omitempty,oneof=user friend mutual"`
	SuggestionID    string           `json:"suggestion_id,omitempty"`
}

// LogInteraction persists an interaction. A completed interaction that is
// not in the future updates each participant's reciprocity, and when it
// followed a suggestion a pending outcome is captured per participant.
// Everything commits in one transaction.
func (e *Engine) LogInteraction(ctx context.Context, input InteractionInput) (*domain.Interaction, error) {
	if err := e.check(input); err != nil {
		return nil, err
	}

	now := e.now()
	in := &domain.Interaction{
		RelationshipIDs: dedupe(input.RelationshipIDs),
		Category:        input.Category,
		Status:          input.Status,
		Date:            input.Date,
		Vibe:            input.Vibe,
		Note:            sanitizeNote(input.Note),
		Initiator:       input.Initiator,
		SuggestionID:    input.SuggestionID,
	}
	if in.Status == "" {
		in.Status = domain.StatusCompleted
	}
	if in.Date.IsZero() {
		in.Date = now
	}
	effective := in.IsCompletedBy(now)

	err := e.DB.WithTx(ctx, func(tx *store.Tx) error {
		rels := make([]*domain.Relationship, 0, len(in.RelationshipIDs))
		scores := make(map[string]float64, len(in.RelationshipIDs))
		for _, id := range in.RelationshipIDs {
			rel, err := tx.GetRelationship(ctx, id)
			if err != nil {
				return err
			}
			if rel == nil {
				return fmt.Errorf("relationship %s: %w", id, store.ErrNotFound)
			}
			rels = append(rels, rel)
			scores[id] = rel.CurrentScore
		}

		if err := tx.CreateInteraction(ctx, in, scores); err != nil {
			return err
		}
		if !effective {
			return nil
		}

		for _, rel := range rels {
			if in.Initiator != domain.InitiatorNone {
				reciprocity.ApplyInitiation(rel, in.Initiator)
				if err := tx.SaveReciprocity(ctx, rel); err != nil {
					return err
				}
			}
			if in.SuggestionID != "" {
				expected := suggest.AssumedBenefit(rel, in.Category)
				if _, err := outcome.Capture(ctx, &tx.Queries, in.ID, rel.ID, rel.CurrentScore, expected, now); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.log.Info("interaction logged",
		zap.String("interaction_id", in.ID),
		zap.Strings("relationship_ids", in.RelationshipIDs),
		zap.String("category", string(in.Category)),
		zap.String("status", string(in.Status)))
	return in, nil
}

// CaptureInteractionOutcome records a pending outcome for an already
// logged interaction.
func (e *Engine) CaptureInteractionOutcome(ctx context.Context, interactionID, relationshipID string, scoreBefore, expectedImpact float64) (*domain.Outcome, error) {
	return outcome.Capture(ctx, &e.DB.Queries, interactionID, relationshipID, scoreBefore, expectedImpact, e.now())
}

// ReciprocityReport summarizes initiation balance and learned category
// effectiveness for one relationship.
func (e *Engine) ReciprocityReport(ctx context.Context, relationshipID string) (*reciprocity.Report, error) {
	rel, err := e.DB.GetRelationship(ctx, relationshipID)
	if err != nil {
		return nil, err
	}
	if rel == nil {
		return nil, fmt.Errorf("relationship %s: %w", relationshipID, store.ErrNotFound)
	}
	rep := reciprocity.BuildReport(rel)
	return &rep, nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
