package notify

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lazypower/tether/internal/domain"
	"github.com/lazypower/tether/internal/store"
	"github.com/lazypower/tether/internal/suggest"
)

type recorder struct {
	mu   sync.Mutex
	sent []Notification
	err  error
}

func (r *recorder) Deliver(_ context.Context, n Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
	return r.err
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type fixture struct {
	db        *store.DB
	clock     *clock
	delivered *recorder
	cands     []suggest.Suggestion
	sched     *Scheduler
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	db, err := store.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	f := &fixture{db: db, clock: &clock{now: at(10, 0)}, delivered: &recorder{}}
	opts.Candidates = func(context.Context, time.Time) ([]suggest.Suggestion, error) {
		return append([]suggest.Suggestion(nil), f.cands...), nil
	}
	if opts.Deliverer == nil {
		opts.Deliverer = f.delivered
	}
	opts.Location = time.UTC
	opts.Clock = f.clock.Now
	opts.Jitter = func() time.Duration { return 0 }
	f.sched = NewScheduler(db, opts)

	require.NoError(t, db.SetSocialBattery(context.Background(), 80))
	return f
}

func TestEvaluateSchedulesWithinBudget(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	f.cands = []suggest.Suggestion{
		cand("a", suggest.UrgencyMedium, 5),
		cand("b", suggest.UrgencyHigh, 3),
		cand("c", suggest.UrgencyLow, 6),
	}

	res, err := f.sched.Evaluate(ctx)
	require.NoError(t, err)
	assert.Equal(t, SkipNone, res.Skipped)
	require.Len(t, res.Scheduled, 2)
	assert.Equal(t, "b", res.Scheduled[0].Suggestion.RelationshipID)
	assert.Equal(t, "a", res.Scheduled[1].Suggestion.RelationshipID)
	assert.Equal(t, 120, res.Scheduled[0].DelayMinutes)
	assert.Equal(t, 300, res.Scheduled[1].DelayMinutes)
	assert.Len(t, f.delivered.sent, 2)

	st, err := f.db.ScheduleState(ctx, "2026-06-15")
	require.NoError(t, err)
	assert.Equal(t, 2, st.NonCriticalCount)
	assert.Equal(t, 0, st.CriticalCount)
	assert.ElementsMatch(t, []string{"maintenance_due:a", "maintenance_due:b"}, st.ScheduledIDs)
	require.NotNil(t, st.LastSentAt)
	assert.True(t, st.LastSentAt.Equal(at(10, 0)))

	cooling, err := f.db.CoolingDown(ctx, "maintenance_due", "a", at(10, 0).AddDate(0, 0, 2))
	require.NoError(t, err)
	assert.True(t, cooling)
}

func TestEvaluateGapThenBudget(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	f.cands = []suggest.Suggestion{cand("a", suggest.UrgencyHigh, 5), cand("b", suggest.UrgencyHigh, 4), cand("c", suggest.UrgencyHigh, 3)}

	_, err := f.sched.Evaluate(ctx)
	require.NoError(t, err)

	f.clock.Set(at(11, 0))
	res, err := f.sched.Evaluate(ctx)
	require.NoError(t, err)
	assert.Equal(t, SkipCooldown, res.Skipped)

	f.clock.Set(at(13, 0))
	res, err = f.sched.Evaluate(ctx)
	require.NoError(t, err)
	assert.Equal(t, SkipNone, res.Skipped)
	assert.Empty(t, res.Scheduled)

	f.cands = append(f.cands, cand("d", suggest.UrgencyCritical, 1))
	res, err = f.sched.Evaluate(ctx)
	require.NoError(t, err)
	require.Len(t, res.Scheduled, 1)
	assert.Equal(t, "d", res.Scheduled[0].Suggestion.RelationshipID)
	assert.Len(t, f.delivered.sent, 3)
}

func TestEvaluateResetsOnNewDay(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	f.cands = []suggest.Suggestion{cand("a", suggest.UrgencyHigh, 5), cand("b", suggest.UrgencyHigh, 4)}

	_, err := f.sched.Evaluate(ctx)
	require.NoError(t, err)

	f.clock.Set(at(10, 0).AddDate(0, 0, 1))
	f.cands = []suggest.Suggestion{cand("x", suggest.UrgencyHigh, 5), cand("y", suggest.UrgencyHigh, 4)}
	res, err := f.sched.Evaluate(ctx)
	require.NoError(t, err)
	assert.Equal(t, "2026-06-16", res.Day)
	assert.Len(t, res.Scheduled, 2)

	st, err := f.db.ScheduleState(ctx, "2026-06-16")
	require.NoError(t, err)
	assert.Equal(t, 2, st.NonCriticalCount)
	assert.ElementsMatch(t, []string{"maintenance_due:x", "maintenance_due:y"}, st.ScheduledIDs)
}

func TestEvaluateQuietHours(t *testing.T) {
	f := newFixture(t, Options{})
	f.cands = []suggest.Suggestion{cand("a", suggest.UrgencyCritical, 5)}
	f.clock.Set(at(23, 0))

	res, err := f.sched.Evaluate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SkipQuietHours, res.Skipped)
	assert.Empty(t, f.delivered.sent)
}

func TestEvaluateUnknownBatteryOnlyHigh(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	_, err := f.db.ExecContext(ctx, `DELETE FROM preferences WHERE key = ?`, store.KeySocialBattery)
	require.NoError(t, err)
	f.cands = []suggest.Suggestion{cand("a", suggest.UrgencyMedium, 9), cand("b", suggest.UrgencyHigh, 1)}

	res, err := f.sched.Evaluate(ctx)
	require.NoError(t, err)
	require.Len(t, res.Scheduled, 1)
	assert.Equal(t, "b", res.Scheduled[0].Suggestion.RelationshipID)
}

func TestEvaluateHonorsCooldowns(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	require.NoError(t, f.db.SetCooldown(ctx, "maintenance_due", "a", at(10, 0).Add(48*time.Hour)))
	f.cands = []suggest.Suggestion{cand("a", suggest.UrgencyHigh, 9)}

	res, err := f.sched.Evaluate(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Candidates)
	assert.Empty(t, res.Scheduled)

	st, err := f.db.ScheduleState(ctx, "2026-06-15")
	require.NoError(t, err)
	assert.Nil(t, st.LastSentAt)
}

func TestEvaluateDeliveryFailureKeepsCommit(t *testing.T) {
	failing := &recorder{err: errors.New("offline")}
	f := newFixture(t, Options{Deliverer: failing})
	ctx := context.Background()
	f.cands = []suggest.Suggestion{cand("a", suggest.UrgencyHigh, 9)}

	res, err := f.sched.Evaluate(ctx)
	require.NoError(t, err)
	assert.Len(t, res.Scheduled, 1)
	assert.Len(t, failing.sent, 1)

	st, err := f.db.ScheduleState(ctx, "2026-06-15")
	require.NoError(t, err)
	assert.Equal(t, 1, st.NonCriticalCount)
}

func TestConcurrentEvaluateNeverOvershoots(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	f.cands = []suggest.Suggestion{
		cand("a", suggest.UrgencyHigh, 5), cand("b", suggest.UrgencyHigh, 4),
		cand("c", suggest.UrgencyHigh, 3), cand("d", suggest.UrgencyHigh, 2),
	}

	var wg sync.WaitGroup
	results := make([]*Result, 6)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := f.sched.Evaluate(ctx)
			if assert.NoError(t, err) {
				results[i] = res
			}
		}(i)
	}
	wg.Wait()

	total := 0
	for _, r := range results {
		if r != nil {
			total += len(r.Scheduled)
		}
	}
	assert.Equal(t, 2, total)
}

func TestEvaluateLockBusy(t *testing.T) {
	_, rdb := newRedis(t)
	locker := NewRedisLocker(rdb, "", 0, nil)
	f := newFixture(t, Options{Locker: locker})
	ctx := context.Background()
	f.cands = []suggest.Suggestion{cand("a", suggest.UrgencyHigh, 9)}

	held, err := locker.Acquire(ctx, LockKey("2026-06-15"), time.Minute)
	require.NoError(t, err)

	res, err := f.sched.Evaluate(ctx)
	require.NoError(t, err)
	assert.Equal(t, SkipLockBusy, res.Skipped)
	assert.Empty(t, f.delivered.sent)

	require.NoError(t, held.Release(ctx))
	res, err = f.sched.Evaluate(ctx)
	require.NoError(t, err)
	assert.Len(t, res.Scheduled, 1)
}

func TestDomainDefaultsUsedWithoutStoredPreferences(t *testing.T) {
	f := newFixture(t, Options{})
	prefs, err := f.db.NotificationPreferences(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultPreferences(), prefs)
}

func TestEvaluateAcrossHandlesHonorsBudget(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tether.db")
	ctx := context.Background()
	cands := []suggest.Suggestion{
		cand("a", suggest.UrgencyMedium, 5),
		cand("b", suggest.UrgencyHigh, 3),
		cand("c", suggest.UrgencyLow, 6),
	}

	// Both passes read state before either commits.
	var ready sync.WaitGroup
	ready.Add(2)

	scheds := make([]*Scheduler, 2)
	dbs := make([]*store.DB, 2)
	for i := range scheds {
		db, err := store.Open(path)
		require.NoError(t, err)
		t.Cleanup(func() { db.Close() })
		dbs[i] = db

		scheds[i] = NewScheduler(db, Options{
			Candidates: func(context.Context, time.Time) ([]suggest.Suggestion, error) {
				ready.Done()
				ready.Wait()
				return append([]suggest.Suggestion(nil), cands...), nil
			},
			Deliverer: &recorder{},
			Location:  time.UTC,
			Clock:     func() time.Time { return at(10, 0) },
			Jitter:    func() time.Duration { return 0 },
		})
	}
	require.NoError(t, dbs[0].SetSocialBattery(ctx, 80))

	results := make([]*Result, 2)
	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i := range scheds {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = scheds[i].Evaluate(ctx)
		}(i)
	}
	wg.Wait()

	total := 0
	for i := range results {
		require.NoError(t, errs[i])
		total += len(results[i].Scheduled)
	}
	assert.Equal(t, 2, total)

	st, err := dbs[1].ScheduleState(ctx, "2026-06-15")
	require.NoError(t, err)
	assert.Equal(t, 2, st.NonCriticalCount)
	seen := map[string]bool{}
	for _, id := range st.ScheduledIDs {
		assert.False(t, seen[id], "duplicate scheduled id %s", id)
		seen[id] = true
	}
	assert.Len(t, st.ScheduledIDs, 2)
}
