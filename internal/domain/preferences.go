package domain

import "time"

// Frequency is the user's notification volume preference.
type Frequency string

const (
	FrequencyLight     Frequency = "light"
	FrequencyModerate  Frequency = "moderate"
	FrequencyProactive Frequency = "proactive"
)

// CriticalDailyBudget caps critical notifications per day regardless of
// frequency.
const CriticalDailyBudget = 3

// DailyBudget is the number of non-critical notifications allowed per day.
func (f Frequency) DailyBudget() int {
	switch f {
	case FrequencyLight:
		return 1
	case FrequencyProactive:
		return 4
	default:
		return 2
	}
}

// NotificationPreferences is the small record kept in the preference store.
type NotificationPreferences struct {
	Frequency    Frequency `json:"frequency"`
	QuietStart   int       `json:"quiet_start"`
	QuietEnd     int       `json:"quiet_end"`
	BatteryAware bool      `json:"battery_aware"`
}

// DefaultPreferences returns the preferences used when none are stored.
func DefaultPreferences() NotificationPreferences {
	return NotificationPreferences{
		Frequency:    FrequencyModerate,
		QuietStart:   22,
		QuietEnd:     8,
		BatteryAware: true,
	}
}

// InQuietHours reports whether hour falls in the quiet window. The window
// may wrap midnight.
func (p NotificationPreferences) InQuietHours(hour int) bool {
	if p.QuietStart == p.QuietEnd {
		return false
	}
	if p.QuietStart > p.QuietEnd {
		return hour >= p.QuietStart || hour < p.QuietEnd
	}
	return hour >= p.QuietStart && hour < p.QuietEnd
}

// ScheduleState holds the per-day scheduler counters.
type ScheduleState struct {
	Day              string
	NonCriticalCount int
	CriticalCount    int
	ScheduledIDs     []string
	LastSentAt       *time.Time
}

// DayKey formats t as the calendar-day key used for scheduler state.
func DayKey(t time.Time) string { return t.Format("2006-01-02") }

// SentCount is the total number of notifications scheduled today.
func (s *ScheduleState) SentCount() int { return s.NonCriticalCount + s.CriticalCount }

// HasScheduled reports whether id was already scheduled today.
func (s *ScheduleState) HasScheduled(id string) bool {
	for _, v := range s.ScheduledIDs {
		if v == id {
			return true
		}
	}
	return false
}
