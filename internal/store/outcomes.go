package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/lazypower/tether/internal/domain"
)

const outcomeColumns = `id, interaction_id, relationship_id, category, logged_at, score_before, expected_impact,
	score_after, actual_impact, effectiveness_ratio, measured_at, created_at`

// CreateOutcome inserts a pending outcome. Capturing the same
// interaction/relationship pair twice is a no-op.
func (q *Queries) CreateOutcome(ctx context.Context, o *domain.Outcome) error {
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now()
	}
	_, err := q.q.ExecContext(ctx, `
		INSERT INTO outcomes (id, interaction_id, relationship_id, category, logged_at, score_before, expected_impact, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (interaction_id, relationship_id) DO NOTHING
	`, o.ID, o.InteractionID, o.RelationshipID, string(o.Category), o.LoggedAt.UnixMilli(),
		o.ScoreBefore, o.ExpectedImpact, o.CreatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("create outcome: %w", err)
	}
	return nil
}

// GetOutcome returns an outcome by id, or nil if not found.
func (q *Queries) GetOutcome(ctx context.Context, id string) (*domain.Outcome, error) {
	row := q.q.QueryRowContext(ctx, `SELECT `+outcomeColumns+` FROM outcomes WHERE id = ?`, id)
	o, err := scanOutcome(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get outcome: %w", err)
	}
	return o, nil
}

// OutcomeForInteraction returns the outcome captured for an
// interaction/relationship pair, or nil.
func (q *Queries) OutcomeForInteraction(ctx context.Context, interactionID, relationshipID string) (*domain.Outcome, error) {
	row := q.q.QueryRowContext(ctx, `SELECT `+outcomeColumns+` FROM outcomes
		WHERE interaction_id = ? AND relationship_id = ?`, interactionID, relationshipID)
	o, err := scanOutcome(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get outcome for interaction: %w", err)
	}
	return o, nil
}

// PendingOutcomes returns unmeasured outcomes, oldest first.
func (q *Queries) PendingOutcomes(ctx context.Context) ([]domain.Outcome, error) {
	rows, err := q.q.QueryContext(ctx, `SELECT `+outcomeColumns+` FROM outcomes
		WHERE measured_at IS NULL ORDER BY logged_at, id`)
	if err != nil {
		return nil, fmt.Errorf("pending outcomes: %w", err)
	}
	defer rows.Close()

	var out []domain.Outcome
	for rows.Next() {
		o, err := scanOutcome(rows)
		if err != nil {
			return nil, fmt.Errorf("scan outcome: %w", err)
		}
		out = append(out, *o)
	}
	return out, rows.Err()
}

// FinalizeOutcome records the measurement for a pending outcome. It
// returns false if the outcome was already measured by another pass.
func (q *Queries) FinalizeOutcome(ctx context.Context, o *domain.Outcome) (bool, error) {
	if o.MeasuredAt == nil {
		return false, fmt.Errorf("finalize outcome %s: measured_at required", o.ID)
	}
	res, err := q.q.ExecContext(ctx, `
		UPDATE outcomes SET score_after = ?, actual_impact = ?, effectiveness_ratio = ?, measured_at = ?
		WHERE id = ? AND measured_at IS NULL
	`, o.ScoreAfter, o.ActualImpact, o.EffectivenessRatio, o.MeasuredAt.UnixMilli(), o.ID)
	if err != nil {
		return false, fmt.Errorf("finalize outcome: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func scanOutcome(row rowScanner) (*domain.Outcome, error) {
	var o domain.Outcome
	var category string
	var loggedAt, createdAt int64
	var measuredAt sql.NullInt64
	err := row.Scan(&o.ID, &o.InteractionID, &o.RelationshipID, &category, &loggedAt, &o.ScoreBefore,
		&o.ExpectedImpact, &o.ScoreAfter, &o.ActualImpact, &o.EffectivenessRatio, &measuredAt, &createdAt)
	if err != nil {
		return nil, err
	}
	o.Category = domain.Category(category)
	o.LoggedAt = time.UnixMilli(loggedAt)
	o.CreatedAt = time.UnixMilli(createdAt)
	if measuredAt.Valid {
		t := time.UnixMilli(measuredAt.Int64)
		o.MeasuredAt = &t
	}
	return &o, nil
}
