package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/lazypower/tether/internal/domain"
)

// ScheduleState returns the scheduler counters for day. A stored record
// from any other day is stale and reads as a fresh, empty state.
func (q *Queries) ScheduleState(ctx context.Context, day string) (*domain.ScheduleState, error) {
	var storedDay, ids string
	var st domain.ScheduleState
	var lastSent sql.NullInt64
	err := q.q.QueryRowContext(ctx, `
		SELECT day, non_critical_count, critical_count, scheduled_ids, last_sent_at
		FROM scheduler_state WHERE id = 1
	`).Scan(&storedDay, &st.NonCriticalCount, &st.CriticalCount, &ids, &lastSent)
	if err == sql.ErrNoRows || (err == nil && storedDay != day) {
		return &domain.ScheduleState{Day: day}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get schedule state: %w", err)
	}

	st.Day = storedDay
	if lastSent.Valid {
		t := time.UnixMilli(lastSent.Int64)
		st.LastSentAt = &t
	}
	if ids != "" {
		if err := json.Unmarshal([]byte(ids), &st.ScheduledIDs); err != nil {
			q.log.Warn("malformed scheduled id list, treating as empty", zap.String("day", day), zap.Error(err))
			st.ScheduledIDs = nil
		}
	}
	return &st, nil
}

// SaveScheduleState overwrites the single scheduler record.
func (q *Queries) SaveScheduleState(ctx context.Context, st *domain.ScheduleState) error {
	ids := st.ScheduledIDs
	if ids == nil {
		ids = []string{}
	}
	data, err := json.Marshal(ids)
	if err != nil {
		return fmt.Errorf("encode scheduled ids: %w", err)
	}
	var lastSent sql.NullInt64
	if st.LastSentAt != nil {
		lastSent = sql.NullInt64{Int64: st.LastSentAt.UnixMilli(), Valid: true}
	}
	_, err = q.q.ExecContext(ctx, `
		INSERT INTO scheduler_state (id, day, non_critical_count, critical_count, scheduled_ids, last_sent_at)
		VALUES (1, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			day = excluded.day,
			non_critical_count = excluded.non_critical_count,
			critical_count = excluded.critical_count,
			scheduled_ids = excluded.scheduled_ids,
			last_sent_at = excluded.last_sent_at
	`, st.Day, st.NonCriticalCount, st.CriticalCount, string(data), lastSent)
	if err != nil {
		return fmt.Errorf("save schedule state: %w", err)
	}
	return nil
}

// SetCooldown records that ruleID may not fire for relationshipID before
// nextEligible. An existing later cooldown is kept.
func (q *Queries) SetCooldown(ctx context.Context, ruleID, relationshipID string, nextEligible time.Time) error {
	_, err := q.q.ExecContext(ctx, `
		INSERT INTO suggestion_cooldowns (rule_id, relationship_id, next_eligible_at)
		VALUES (?, ?, ?)
		ON CONFLICT (rule_id, relationship_id) DO UPDATE SET
			next_eligible_at = MAX(next_eligible_at, excluded.next_eligible_at)
	`, ruleID, relationshipID, nextEligible.UnixMilli())
	if err != nil {
		return fmt.Errorf("set cooldown: %w", err)
	}
	return nil
}

// CoolingDown reports whether ruleID is still cooling down for
// relationshipID at now.
func (q *Queries) CoolingDown(ctx context.Context, ruleID, relationshipID string, now time.Time) (bool, error) {
	var next int64
	err := q.q.QueryRowContext(ctx, `
		SELECT next_eligible_at FROM suggestion_cooldowns WHERE rule_id = ? AND relationship_id = ?
	`, ruleID, relationshipID).Scan(&next)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get cooldown: %w", err)
	}
	return now.UnixMilli() < next, nil
}

// ActiveCooldowns returns every cooldown still in effect at now, keyed by
// "<rule>:<relationship>".
func (q *Queries) ActiveCooldowns(ctx context.Context, now time.Time) (map[string]time.Time, error) {
	rows, err := q.q.QueryContext(ctx, `
		SELECT rule_id, relationship_id, next_eligible_at FROM suggestion_cooldowns WHERE next_eligible_at > ?
	`, now.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("active cooldowns: %w", err)
	}
	defer rows.Close()

	out := make(map[string]time.Time)
	for rows.Next() {
		var rule, rel string
		var next int64
		if err := rows.Scan(&rule, &rel, &next); err != nil {
			return nil, fmt.Errorf("scan cooldown: %w", err)
		}
		out[rule+":"+rel] = time.UnixMilli(next)
	}
	return out, rows.Err()
}
