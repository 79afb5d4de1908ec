package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lazypower/tether/internal/domain"
)

const relationshipColumns = `id, name, tier, archetype, current_score, momentum_score, dormant, resilience,
	birthday, anniversary, total_user_initiations, total_friend_initiations,
	consecutive_user_initiations, consecutive_friend_initiations, initiation_ratio, last_initiated_by,
	category_effectiveness, outcome_count, created_at, updated_at`

// CreateRelationship inserts a relationship. An ID is generated when empty.
func (q *Queries) CreateRelationship(ctx context.Context, r *domain.Relationship) error {
	now := time.Now()
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	r.UpdatedAt = now
	r.Tier = r.Tier.Normalize()
	if r.Resilience == 0 {
		r.Resilience = 1.0
	}
	if r.TotalInitiations() == 0 && r.InitiationRatio == 0 {
		r.InitiationRatio = 0.5
	}

	eff, err := encodeEffectiveness(r.CategoryEffectiveness)
	if err != nil {
		return err
	}

	_, err = q.q.ExecContext(ctx, `
		INSERT INTO relationships (`+relationshipColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, r.ID, r.Name, string(r.Tier), string(r.Archetype), r.CurrentScore, r.MomentumScore, boolInt(r.Dormant), r.Resilience,
		r.Birthday, r.Anniversary, r.TotalUserInitiations, r.TotalFriendInitiations,
		r.ConsecutiveUserInitiations, r.ConsecutiveFriendInitiations, r.InitiationRatio, string(r.LastInitiatedBy),
		eff, r.OutcomeCount, r.CreatedAt.UnixMilli(), r.UpdatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("create relationship: %w", err)
	}
	return nil
}

// GetRelationship returns a relationship by id, or nil if not found.
func (q *Queries) GetRelationship(ctx context.Context, id string) (*domain.Relationship, error) {
	row := q.q.QueryRowContext(ctx, `SELECT `+relationshipColumns+` FROM relationships WHERE id = ?`, id)
	r, err := q.scanRelationship(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get relationship: %w", err)
	}
	return r, nil
}

// ListRelationships returns all relationships ordered by name. When
// includeDormant is false, dormant relationships are skipped.
func (q *Queries) ListRelationships(ctx context.Context, includeDormant bool) ([]domain.Relationship, error) {
	query := `SELECT ` + relationshipColumns + ` FROM relationships`
	if !includeDormant {
		query += ` WHERE dormant = 0`
	}
	query += ` ORDER BY name, id`

	rows, err := q.q.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list relationships: %w", err)
	}
	defer rows.Close()

	var out []domain.Relationship
	for rows.Next() {
		r, err := q.scanRelationship(rows)
		if err != nil {
			return nil, fmt.Errorf("scan relationship: %w", err)
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

// UpdateSignals writes the externally computed score fields.
func (q *Queries) UpdateSignals(ctx context.Context, id string, score, momentum float64, dormant bool) error {
	res, err := q.q.ExecContext(ctx, `
		UPDATE relationships SET current_score = ?, momentum_score = ?, dormant = ?, updated_at = ?
		WHERE id = ?
	`, score, momentum, boolInt(dormant), time.Now().UnixMilli(), id)
	if err != nil {
		return fmt.Errorf("update signals: %w", err)
	}
	return requireRow(res, "relationship", id)
}

// SaveReciprocity writes the initiation counters of r.
func (q *Queries) SaveReciprocity(ctx context.Context, r *domain.Relationship) error {
	r.UpdatedAt = time.Now()
	res, err := q.q.ExecContext(ctx, `
		UPDATE relationships SET
			total_user_initiations = ?, total_friend_initiations = ?,
			consecutive_user_initiations = ?, consecutive_friend_initiations = ?,
			initiation_ratio = ?, last_initiated_by = ?, updated_at = ?
		WHERE id = ?
	`, r.TotalUserInitiations, r.TotalFriendInitiations,
		r.ConsecutiveUserInitiations, r.ConsecutiveFriendInitiations,
		r.InitiationRatio, string(r.LastInitiatedBy), r.UpdatedAt.UnixMilli(), r.ID)
	if err != nil {
		return fmt.Errorf("save reciprocity: %w", err)
	}
	return requireRow(res, "relationship", r.ID)
}

// SaveEffectiveness writes the learned effectiveness map and outcome count of r.
func (q *Queries) SaveEffectiveness(ctx context.Context, r *domain.Relationship) error {
	eff, err := encodeEffectiveness(r.CategoryEffectiveness)
	if err != nil {
		return err
	}
	r.UpdatedAt = time.Now()
	res, err := q.q.ExecContext(ctx, `
		UPDATE relationships SET category_effectiveness = ?, outcome_count = ?, updated_at = ?
		WHERE id = ?
	`, eff, r.OutcomeCount, r.UpdatedAt.UnixMilli(), r.ID)
	if err != nil {
		return fmt.Errorf("save effectiveness: %w", err)
	}
	return requireRow(res, "relationship", r.ID)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (q *Queries) scanRelationship(row rowScanner) (*domain.Relationship, error) {
	var r domain.Relationship
	var tier, archetype, lastBy, eff string
	var dormant int
	var createdAt, updatedAt int64
	err := row.Scan(&r.ID, &r.Name, &tier, &archetype, &r.CurrentScore, &r.MomentumScore, &dormant, &r.Resilience,
		&r.Birthday, &r.Anniversary, &r.TotalUserInitiations, &r.TotalFriendInitiations,
		&r.ConsecutiveUserInitiations, &r.ConsecutiveFriendInitiations, &r.InitiationRatio, &lastBy,
		&eff, &r.OutcomeCount, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	r.Tier = domain.Tier(tier).Normalize()
	r.Archetype = domain.Archetype(archetype)
	r.LastInitiatedBy = domain.Initiator(lastBy)
	r.Dormant = dormant != 0
	r.CreatedAt = time.UnixMilli(createdAt)
	r.UpdatedAt = time.UnixMilli(updatedAt)
	r.CategoryEffectiveness = q.decodeEffectiveness(r.ID, eff)
	return &r, nil
}

// decodeEffectiveness parses the stored map. A corrupt value is logged and
// treated as empty so every category falls back to neutral.
func (q *Queries) decodeEffectiveness(relationshipID, raw string) map[domain.Category]float64 {
	out := make(map[domain.Category]float64)
	if raw == "" {
		return out
	}
	var m map[string]float64
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		q.log.Warn("malformed effectiveness map, using defaults",
			zap.String("relationship_id", relationshipID), zap.Error(err))
		return out
	}
	for k, v := range m {
		out[domain.Category(k)] = v
	}
	return out
}

func encodeEffectiveness(m map[domain.Category]float64) (string, error) {
	if len(m) == 0 {
		return "{}", nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("encode effectiveness: %w", err)
	}
	return string(data), nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func requireRow(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return nil
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
	}
	return nil
}
