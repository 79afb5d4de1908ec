package engine

import (
	"context"

	"go.uber.org/zap"

	"github.com/lazypower/tether/internal/domain"
)

// PreferencesUpdate is a partial change to the notification preferences.
// Nil fields are left unchanged.
type PreferencesUpdate struct {
	Frequency    *domain.Frequency `json:"frequency,omitempty" validate:"omitempty,oneof=light moderate proactive"`
	QuietStart   *int              `json:"quiet_start,omitempty" validate:"omitempty,min=0,max=23"`
	QuietEnd     *int              `json:"quiet_end,omitempty" validate:"omitempty,min=0,max=23"`
	BatteryAware *bool             `json:"battery_aware,omitempty"`
}

// GetNotificationPreferences returns the stored preferences over defaults.
func (e *Engine) GetNotificationPreferences(ctx context.Context) (domain.NotificationPreferences, error) {
	return e.DB.NotificationPreferences(ctx)
}

// UpdateNotificationPreferences applies a partial update and returns the
// resulting preferences.
func (e *Engine) UpdateNotificationPreferences(ctx context.Context, upd PreferencesUpdate) (domain.NotificationPreferences, error) {
	if err := e.check(upd); err != nil {
		return domain.NotificationPreferences{}, err
	}

	prefs, err := e.DB.NotificationPreferences(ctx)
	if err != nil {
		return domain.NotificationPreferences{}, err
	}
	if upd.Frequency != nil {
		prefs.Frequency = *upd.Frequency
	}
	if upd.QuietStart != nil {
		prefs.QuietStart = *upd.QuietStart
	}
	if upd.QuietEnd != nil {
		prefs.QuietEnd = *upd.QuietEnd
	}
	if upd.BatteryAware != nil {
		prefs.BatteryAware = *upd.BatteryAware
	}

	if err := e.DB.SaveNotificationPreferences(ctx, prefs); err != nil {
		return domain.NotificationPreferences{}, err
	}
	e.log.Info("notification preferences updated",
		zap.String("frequency", string(prefs.Frequency)),
		zap.Int("quiet_start", prefs.QuietStart),
		zap.Int("quiet_end", prefs.QuietEnd),
		zap.Bool("battery_aware", prefs.BatteryAware))
	return prefs, nil
}

type batteryInput struct {
	Level int `json:"level" validate:"min=0,max=100"`
}

// SetSocialBattery records the user's social energy level (0-100).
func (e *Engine) SetSocialBattery(ctx context.Context, level int) error {
	if err := e.check(batteryInput{Level: level}); err != nil {
		return err
	}
	return e.DB.SetSocialBattery(ctx, level)
}
