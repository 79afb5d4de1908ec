package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/lazypower/tether/internal/domain"
)

// CreateInteraction inserts an interaction and its participant rows.
// scores maps relationship id to the score snapshot taken when logging;
// missing entries store NULL.
func (q *Queries) CreateInteraction(ctx context.Context, in *domain.Interaction, scores map[string]float64) error {
	if len(in.RelationshipIDs) == 0 {
		return fmt.Errorf("create interaction: at least one relationship required")
	}
	if in.ID == "" {
		in.ID = uuid.NewString()
	}
	if in.CreatedAt.IsZero() {
		in.CreatedAt = time.Now()
	}
	if in.Status == "" {
		in.Status = domain.StatusCompleted
	}

	var vibe sql.NullInt64
	if in.Vibe != nil {
		vibe = sql.NullInt64{Int64: int64(*in.Vibe), Valid: true}
	}

	_, err := q.q.ExecContext(ctx, `
		INSERT INTO interactions (id, category, status, occurred_at, vibe, note, initiator, suggestion_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, in.ID, string(in.Category), string(in.Status), in.Date.UnixMilli(), vibe, in.Note,
		string(in.Initiator), in.SuggestionID, in.CreatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("create interaction: %w", err)
	}

	for _, relID := range in.RelationshipIDs {
		var score sql.NullFloat64
		if s, ok := scores[relID]; ok {
			score = sql.NullFloat64{Float64: s, Valid: true}
		}
		if _, err := q.q.ExecContext(ctx, `
			INSERT INTO interaction_participants (interaction_id, relationship_id, score_at_log)
			VALUES (?, ?, ?)
		`, in.ID, relID, score); err != nil {
			return fmt.Errorf("add participant %s: %w", relID, err)
		}
	}
	return nil
}

// GetInteraction returns an interaction with all participant ids, or nil if
// not found.
func (q *Queries) GetInteraction(ctx context.Context, id string) (*domain.Interaction, error) {
	var in domain.Interaction
	var category, status, initiator string
	var vibe sql.NullInt64
	var occurredAt, createdAt int64
	err := q.q.QueryRowContext(ctx, `
		SELECT id, category, status, occurred_at, vibe, note, initiator, suggestion_id, created_at
		FROM interactions WHERE id = ?
	`, id).Scan(&in.ID, &category, &status, &occurredAt, &vibe, &in.Note, &initiator, &in.SuggestionID, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get interaction: %w", err)
	}
	fillInteraction(&in, category, status, initiator, vibe, occurredAt, createdAt)

	rows, err := q.q.QueryContext(ctx, `
		SELECT relationship_id FROM interaction_participants WHERE interaction_id = ? ORDER BY relationship_id
	`, id)
	if err != nil {
		return nil, fmt.Errorf("get participants: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var relID string
		if err := rows.Scan(&relID); err != nil {
			return nil, fmt.Errorf("scan participant: %w", err)
		}
		in.RelationshipIDs = append(in.RelationshipIDs, relID)
	}
	return &in, rows.Err()
}

// CompletedInteractions returns completed interactions for a relationship
// dated at or before asOf, most recent first. limit <= 0 means no limit.
func (q *Queries) CompletedInteractions(ctx context.Context, relationshipID string, asOf time.Time, limit int) ([]domain.Interaction, error) {
	query := `
		SELECT i.id, i.category, i.status, i.occurred_at, i.vibe, i.note, i.initiator, i.suggestion_id, i.created_at, p.score_at_log
		FROM interactions i
		JOIN interaction_participants p ON p.interaction_id = i.id
		WHERE p.relationship_id = ? AND i.status = 'completed' AND i.occurred_at <= ?
		ORDER BY i.occurred_at DESC, i.id`
	args := []any{relationshipID, asOf.UnixMilli()}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	return q.queryInteractions(ctx, relationshipID, query, args...)
}

// FirstCompletedAfter returns the earliest completed interaction for a
// relationship strictly after `after` and at or before asOf, or nil.
func (q *Queries) FirstCompletedAfter(ctx context.Context, relationshipID string, after, asOf time.Time) (*domain.Interaction, error) {
	list, err := q.queryInteractions(ctx, relationshipID, `
		SELECT i.id, i.category, i.status, i.occurred_at, i.vibe, i.note, i.initiator, i.suggestion_id, i.created_at, p.score_at_log
		FROM interactions i
		JOIN interaction_participants p ON p.interaction_id = i.id
		WHERE p.relationship_id = ? AND i.status = 'completed' AND i.occurred_at > ? AND i.occurred_at <= ?
		ORDER BY i.occurred_at ASC, i.id
		LIMIT 1`, relationshipID, after.UnixMilli(), asOf.UnixMilli())
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, nil
	}
	return &list[0], nil
}

func (q *Queries) queryInteractions(ctx context.Context, relationshipID, query string, args ...any) ([]domain.Interaction, error) {
	rows, err := q.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query interactions: %w", err)
	}
	defer rows.Close()

	var out []domain.Interaction
	for rows.Next() {
		var in domain.Interaction
		var category, status, initiator string
		var vibe sql.NullInt64
		var score sql.NullFloat64
		var occurredAt, createdAt int64
		if err := rows.Scan(&in.ID, &category, &status, &occurredAt, &vibe, &in.Note, &initiator,
			&in.SuggestionID, &createdAt, &score); err != nil {
			return nil, fmt.Errorf("scan interaction: %w", err)
		}
		fillInteraction(&in, category, status, initiator, vibe, occurredAt, createdAt)
		in.RelationshipIDs = []string{relationshipID}
		if score.Valid {
			s := score.Float64
			in.ScoreAtLog = &s
		}
		out = append(out, in)
	}
	return out, rows.Err()
}

func fillInteraction(in *domain.Interaction, category, status, initiator string, vibe sql.NullInt64, occurredAt, createdAt int64) {
	in.Category = domain.Category(category)
	in.Status = domain.Status(status)
	in.Initiator = domain.Initiator(initiator)
	in.Date = time.UnixMilli(occurredAt)
	in.CreatedAt = time.UnixMilli(createdAt)
	if vibe.Valid {
		v := int(vibe.Int64)
		in.Vibe = &v
	}
}

// CreateLifeEvent inserts a detected life event.
func (q *Queries) CreateLifeEvent(ctx context.Context, ev *domain.LifeEvent) error {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	_, err := q.q.ExecContext(ctx, `
		INSERT INTO life_events (id, relationship_id, label, occurs_at) VALUES (?, ?, ?, ?)
	`, ev.ID, ev.RelationshipID, ev.Label, ev.Date.UnixMilli())
	if err != nil {
		return fmt.Errorf("create life event: %w", err)
	}
	return nil
}

// LifeEventsBetween returns life events for a relationship dated in [from, to].
func (q *Queries) LifeEventsBetween(ctx context.Context, relationshipID string, from, to time.Time) ([]domain.LifeEvent, error) {
	rows, err := q.q.QueryContext(ctx, `
		SELECT id, relationship_id, label, occurs_at FROM life_events
		WHERE relationship_id = ? AND occurs_at >= ? AND occurs_at <= ?
		ORDER BY occurs_at
	`, relationshipID, from.UnixMilli(), to.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("life events: %w", err)
	}
	defer rows.Close()

	var out []domain.LifeEvent
	for rows.Next() {
		var ev domain.LifeEvent
		var at int64
		if err := rows.Scan(&ev.ID, &ev.RelationshipID, &ev.Label, &at); err != nil {
			return nil, fmt.Errorf("scan life event: %w", err)
		}
		ev.Date = time.UnixMilli(at)
		out = append(out, ev)
	}
	return out, rows.Err()
}
