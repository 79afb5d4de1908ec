package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/lazypower/tether/internal/domain"
)

// Preference keys.
const (
	KeyNotificationPreferences = "notification_preferences"
	KeySocialBattery           = "social_battery"
)

// GetPreference returns the raw value for key and whether it exists.
func (q *Queries) GetPreference(ctx context.Context, key string) (string, bool, error) {
	var v string
	err := q.q.QueryRowContext(ctx, `SELECT value FROM preferences WHERE key = ?`, key).Scan(&v)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get preference %s: %w", key, err)
	}
	return v, true, nil
}

// SetPreference upserts a raw preference value.
func (q *Queries) SetPreference(ctx context.Context, key, value string) error {
	_, err := q.q.ExecContext(ctx, `
		INSERT INTO preferences (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, value, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("set preference %s: %w", key, err)
	}
	return nil
}

// NotificationPreferences returns the stored preferences merged over the
// defaults. A corrupt record is logged and the defaults are returned.
func (q *Queries) NotificationPreferences(ctx context.Context) (domain.NotificationPreferences, error) {
	prefs := domain.DefaultPreferences()
	raw, ok, err := q.GetPreference(ctx, KeyNotificationPreferences)
	if err != nil || !ok {
		return prefs, err
	}
	if err := json.Unmarshal([]byte(raw), &prefs); err != nil {
		q.log.Warn("malformed notification preferences, using defaults", zap.Error(err))
		return domain.DefaultPreferences(), nil
	}
	return prefs, nil
}

// SaveNotificationPreferences stores the full preference record.
func (q *Queries) SaveNotificationPreferences(ctx context.Context, prefs domain.NotificationPreferences) error {
	data, err := json.Marshal(prefs)
	if err != nil {
		return fmt.Errorf("encode preferences: %w", err)
	}
	return q.SetPreference(ctx, KeyNotificationPreferences, string(data))
}

// SocialBattery returns the last reported energy level (0-100) and whether
// one is known.
func (q *Queries) SocialBattery(ctx context.Context) (int, bool, error) {
	raw, ok, err := q.GetPreference(ctx, KeySocialBattery)
	if err != nil || !ok {
		return 0, false, err
	}
	level, err := strconv.Atoi(raw)
	if err != nil {
		q.log.Warn("malformed social battery value, treating as unknown", zap.String("value", raw))
		return 0, false, nil
	}
	return level, true, nil
}

// SetSocialBattery stores the energy level.
func (q *Queries) SetSocialBattery(ctx context.Context, level int) error {
	return q.SetPreference(ctx, KeySocialBattery, strconv.Itoa(level))
}
