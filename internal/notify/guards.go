// Package notify decides how many suggestions become push notifications
// today, and when each one is delivered.
package notify

import (
	"time"

	"github.com/lazypower/tether/internal/domain"
	"github.com/lazypower/tether/internal/suggest"
)

// DefaultMinGap is the minimum time between two notifications.
const DefaultMinGap = 2 * time.Hour

// SkipReason explains why a pass scheduled nothing.
type SkipReason string

const (
	SkipNone       SkipReason = ""
	SkipCooldown   SkipReason = "cooldown"
	SkipQuietHours SkipReason = "quiet_hours"
	SkipBudget     SkipReason = "budget"
	SkipLockBusy   SkipReason = "lock_busy"
)

// Budget is how many notifications may still be scheduled today.
type Budget struct {
	NonCritical int `json:"non_critical"`
	Critical    int `json:"critical"`
}

// Empty reports whether no slot of either kind remains.
func (b Budget) Empty() bool { return b.NonCritical <= 0 && b.Critical <= 0 }

// Remaining computes today's budget from the day's counters.
func Remaining(st *domain.ScheduleState, prefs domain.NotificationPreferences) Budget {
	b := Budget{
		NonCritical: prefs.Frequency.DailyBudget() - st.NonCriticalCount,
		Critical:    domain.CriticalDailyBudget - st.CriticalCount,
	}
	if b.NonCritical < 0 {
		b.NonCritical = 0
	}
	if b.Critical < 0 {
		b.Critical = 0
	}
	return b
}

// CheckGuards runs the pre-selection guards in order and returns the first
// that blocks the pass, or SkipNone.
func CheckGuards(now time.Time, st *domain.ScheduleState, prefs domain.NotificationPreferences, minGap time.Duration) SkipReason {
	if st.LastSentAt != nil && now.Sub(*st.LastSentAt) < minGap {
		return SkipCooldown
	}
	if prefs.InQuietHours(now.Hour()) {
		return SkipQuietHours
	}
	if Remaining(st, prefs).Empty() {
		return SkipBudget
	}
	return SkipNone
}

// Battery is the user's social energy reading.
type Battery struct {
	Level int
	Known bool
}

// PassesBattery applies social-battery gating to one urgency. Critical
// always passes. An unknown reading lets only high urgency through.
func PassesBattery(u suggest.Urgency, prefs domain.NotificationPreferences, b Battery) bool {
	if u == suggest.UrgencyCritical || !prefs.BatteryAware {
		return true
	}
	switch {
	case !b.Known || b.Level < 30:
		return u == suggest.UrgencyHigh
	case b.Level < 50:
		return u == suggest.UrgencyHigh || u == suggest.UrgencyMedium
	default:
		return true
	}
}

// Select ranks candidates and takes as many as the budget allows. Expired
// suggestions and those failing battery gating are dropped before Admit
// applies the day's budget.
func Select(candidates []suggest.Suggestion, st *domain.ScheduleState, prefs domain.NotificationPreferences, b Battery, now time.Time) []suggest.Suggestion {
	ranked := append([]suggest.Suggestion(nil), candidates...)
	suggest.Sort(ranked)

	eligible := ranked[:0]
	for _, s := range ranked {
		if s.ExpiresAt != nil && !now.Before(*s.ExpiresAt) {
			continue
		}
		if !PassesBattery(s.Urgency, prefs, b) {
			continue
		}
		eligible = append(eligible, s)
	}
	return Admit(eligible, st, prefs)
}

// Admit keeps suggestions, in order, that are not yet scheduled for the
// day and fit the remaining budget. Critical and non-critical suggestions
// draw from their own budgets.
func Admit(ranked []suggest.Suggestion, st *domain.ScheduleState, prefs domain.NotificationPreferences) []suggest.Suggestion {
	budget := Remaining(st, prefs)
	var out []suggest.Suggestion
	for _, s := range ranked {
		if st.HasScheduled(s.ID) {
			continue
		}
		if s.IsCritical() {
			if budget.Critical == 0 {
				continue
			}
			budget.Critical--
		} else {
			if budget.NonCritical == 0 {
				continue
			}
			budget.NonCritical--
		}
		out = append(out, s)
	}
	return out
}
