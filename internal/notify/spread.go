package notify

import (
	"math/rand/v2"
	"time"

	"github.com/lazypower/tether/internal/domain"
)

// MaxJitter bounds the random offset applied to each slot.
const MaxJitter = 15 * time.Minute

// SlotHours are the local times of day notifications gravitate to:
// morning, midday, afternoon, early evening.
var SlotHours = []int{9, 12, 15, 18}

// RandomJitter returns a uniform offset in [-MaxJitter, MaxJitter].
func RandomJitter() time.Duration {
	return time.Duration(rand.Int64N(int64(2*MaxJitter)+1)) - MaxJitter
}

// SpreadDelays returns one delivery delay per notification, in order.
// Each is at least minGap after the previous one (the first at least
// minGap after now) and rounded up to a whole minute. Notifications take
// the remaining time-of-day slots before quiet hours; any left over are
// spread evenly over the time left before quiet hours start. jitter may be
// nil.
func SpreadDelays(now time.Time, prefs domain.NotificationPreferences, count int, minGap time.Duration, jitter func() time.Duration) []time.Duration {
	if count <= 0 {
		return nil
	}
	if jitter == nil {
		jitter = func() time.Duration { return 0 }
	}

	cutoff := quietCutoff(now, prefs)
	var slots []time.Duration
	for _, h := range SlotHours {
		at := time.Date(now.Year(), now.Month(), now.Day(), h, 0, 0, 0, now.Location())
		if at.Sub(now) >= minGap && at.Before(cutoff) {
			slots = append(slots, at.Sub(now))
		}
	}

	out := make([]time.Duration, 0, count)
	prev := time.Duration(0)
	place := func(d time.Duration) {
		d = ceilMinute(d)
		if floor := prev + minGap; d < floor {
			d = floor
		}
		out = append(out, d)
		prev = d
	}

	for i := 0; i < count && i < len(slots); i++ {
		place(slots[i] + jitter())
	}

	left := count - len(out)
	if left > 0 {
		step := minGap
		if window := cutoff.Sub(now) - prev; window > 0 {
			if even := window / time.Duration(left+1); even > step {
				step = even
			}
		}
		for i := 0; i < left; i++ {
			place(prev + step)
		}
	}
	return out
}

// quietCutoff is the next start of quiet hours after now, or the next
// midnight when there is no quiet window.
func quietCutoff(now time.Time, prefs domain.NotificationPreferences) time.Time {
	midnight := time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, now.Location())
	if prefs.QuietStart == prefs.QuietEnd {
		return midnight
	}
	start := time.Date(now.Year(), now.Month(), now.Day(), prefs.QuietStart, 0, 0, 0, now.Location())
	if !start.After(now) {
		start = start.AddDate(0, 0, 1)
	}
	return start
}

func ceilMinute(d time.Duration) time.Duration {
	if r := d % time.Minute; r > 0 {
		d += time.Minute - r
	}
	return d
}
