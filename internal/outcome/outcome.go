// Package outcome measures what a suggested interaction actually did to a
// relationship's score and feeds the result back into category
// effectiveness.
package outcome

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/lazypower/tether/internal/domain"
	"github.com/lazypower/tether/internal/observability"
	"github.com/lazypower/tether/internal/reciprocity"
	"github.com/lazypower/tether/internal/store"
)

// MeasureAfter is how long an outcome waits for a follow-up interaction
// before it is measured against the live score.
const MeasureAfter = 7 * 24 * time.Hour

// ErrNotCapturable is returned when an interaction cannot carry an
// outcome for the given relationship.
var ErrNotCapturable = errors.New("interaction not capturable")

// Capture persists a pending outcome for a logged interaction. The
// relationship must be a participant and the interaction must be completed
// by now. Capturing the same interaction and relationship twice is a no-op.
func Capture(ctx context.Context, q *store.Queries, interactionID, relationshipID string, scoreBefore, expectedImpact float64, now time.Time) (*domain.Outcome, error) {
	in, err := q.GetInteraction(ctx, interactionID)
	if err != nil {
		return nil, err
	}
	if in == nil {
		return nil, fmt.Errorf("capture outcome: interaction %s: %w", interactionID, store.ErrNotFound)
	}
	if !slices.Contains(in.RelationshipIDs, relationshipID) {
		return nil, fmt.Errorf("capture outcome: %s is not a participant of %s: %w", relationshipID, interactionID, ErrNotCapturable)
	}
	if !in.IsCompletedBy(now) {
		return nil, fmt.Errorf("capture outcome: interaction %s is not completed: %w", interactionID, ErrNotCapturable)
	}
	if existing, err := q.OutcomeForInteraction(ctx, interactionID, relationshipID); err != nil {
		return nil, err
	} else if existing != nil {
		return existing, nil
	}

	o := &domain.Outcome{
		InteractionID:  interactionID,
		RelationshipID: relationshipID,
		Category:       in.Category,
		LoggedAt:       in.Date,
		ScoreBefore:    scoreBefore,
		ExpectedImpact: expectedImpact,
	}
	if err := q.CreateOutcome(ctx, o); err != nil {
		return nil, err
	}
	return o, nil
}

// Measurement is the computed result for one outcome.
type Measurement struct {
	ScoreAfter         float64
	ExpectedDecay      float64
	ActualImpact       float64
	EffectivenessRatio float64
}

// Measure computes an outcome's effect at time at. The score the
// relationship would have lost to decay over the interval is credited back
// to the interaction.
func Measure(o *domain.Outcome, rel *domain.Relationship, scoreAfter float64, at time.Time) Measurement {
	days := at.Sub(o.LoggedAt).Hours() / 24
	if days < 0 {
		days = 0
	}
	decay := days * rel.Tier.DecayRate() / rel.ResilienceFactor()
	actual := (scoreAfter - o.ScoreBefore) + decay

	ratio := 1.0
	if o.ExpectedImpact != 0 {
		ratio = actual / o.ExpectedImpact
	}
	return Measurement{
		ScoreAfter:         scoreAfter,
		ExpectedDecay:      decay,
		ActualImpact:       actual,
		EffectivenessRatio: ratio,
	}
}

// Summary counts what one scan did.
type Summary struct {
	Measured int `json:"measured"`
	NotReady int `json:"not_ready"`
	Failed   int `json:"failed"`
}

// Measurer scans pending outcomes.
type Measurer struct {
	db    *store.DB
	log   *zap.Logger
	clock func() time.Time
}

// NewMeasurer creates a Measurer. A nil clock means time.Now.
func NewMeasurer(db *store.DB, log *zap.Logger, clock func() time.Time) *Measurer {
	if clock == nil {
		clock = time.Now
	}
	return &Measurer{db: db, log: observability.OrNop(log), clock: clock}
}

// MeasurePending finalizes every pending outcome that is ready. Each
// outcome commits in its own transaction together with the learned
// effectiveness, so one failure does not block the rest; failed outcomes
// stay pending and are retried on the next scan.
func (m *Measurer) MeasurePending(ctx context.Context) (Summary, error) {
	var sum Summary
	pending, err := m.db.PendingOutcomes(ctx)
	if err != nil {
		return sum, err
	}

	now := m.clock()
	for i := range pending {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		o := &pending[i]
		measured, err := m.measureOne(ctx, o, now)
		switch {
		case err != nil:
			sum.Failed++
			observability.OutcomesMeasuredTotal.WithLabelValues("error").Inc()
			m.log.Error("measure outcome", zap.String("outcome_id", o.ID), zap.String("relationship_id", o.RelationshipID), zap.Error(err))
		case measured:
			sum.Measured++
			observability.OutcomesMeasuredTotal.WithLabelValues("measured").Inc()
		default:
			sum.NotReady++
			observability.OutcomesMeasuredTotal.WithLabelValues("not_ready").Inc()
		}
	}
	if sum.Measured > 0 || sum.Failed > 0 {
		m.log.Info("outcome scan", zap.Int("measured", sum.Measured), zap.Int("not_ready", sum.NotReady), zap.Int("failed", sum.Failed))
	}
	return sum, nil
}

func (m *Measurer) measureOne(ctx context.Context, o *domain.Outcome, now time.Time) (bool, error) {
	measured := false
	err := m.db.WithTx(ctx, func(tx *store.Tx) error {
		rel, err := tx.GetRelationship(ctx, o.RelationshipID)
		if err != nil {
			return err
		}
		if rel == nil {
			return fmt.Errorf("relationship %s: %w", o.RelationshipID, store.ErrNotFound)
		}

		var at time.Time
		scoreAfter := rel.CurrentScore
		next, err := tx.FirstCompletedAfter(ctx, o.RelationshipID, o.LoggedAt, now)
		if err != nil {
			return err
		}
		switch {
		case next != nil:
			at = next.Date
			if next.ScoreAtLog != nil {
				scoreAfter = *next.ScoreAtLog
			}
		case now.Sub(o.LoggedAt) >= MeasureAfter:
			at = now
		default:
			return nil
		}

		res := Measure(o, rel, scoreAfter, at)
		o.ScoreAfter = res.ScoreAfter
		o.ActualImpact = res.ActualImpact
		o.EffectivenessRatio = res.EffectivenessRatio
		o.MeasuredAt = &at

		ok, err := tx.FinalizeOutcome(ctx, o)
		if err != nil || !ok {
			return err
		}
		reciprocity.UpdateEffectiveness(rel, o.Category, res.EffectivenessRatio)
		if err := tx.SaveEffectiveness(ctx, rel); err != nil {
			return err
		}
		measured = true
		return nil
	})
	if err != nil {
		return false, err
	}
	if measured {
		observability.EffectivenessRatio.WithLabelValues(string(o.Category)).Observe(o.EffectivenessRatio)
	}
	return measured, nil
}
