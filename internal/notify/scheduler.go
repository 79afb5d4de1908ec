package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/lazypower/tether/internal/domain"
	"github.com/lazypower/tether/internal/observability"
	"github.com/lazypower/tether/internal/store"
	"github.com/lazypower/tether/internal/suggest"
)

// CandidateFunc produces one suggestion per tracked relationship.
type CandidateFunc func(ctx context.Context, now time.Time) ([]suggest.Suggestion, error)

// Options configure a Scheduler. Zero values get defaults.
type Options struct {
	Candidates CandidateFunc
	Locker     Locker
	Deliverer  Deliverer
	Logger     *zap.Logger
	Location   *time.Location
	MinGap     time.Duration
	LockTTL    time.Duration
	Clock      func() time.Time
	Jitter     func() time.Duration
}

// Scheduler runs notification passes against the store.
type Scheduler struct {
	db         *store.DB
	candidates CandidateFunc
	locker     Locker
	deliverer  Deliverer
	log        *zap.Logger
	loc        *time.Location
	minGap     time.Duration
	lockTTL    time.Duration
	clock      func() time.Time
	jitter     func() time.Duration
}

// NewScheduler creates a Scheduler.
func NewScheduler(db *store.DB, opts Options) *Scheduler {
	s := &Scheduler{
		db:         db,
		candidates: opts.Candidates,
		locker:     opts.Locker,
		deliverer:  opts.Deliverer,
		log:        observability.OrNop(opts.Logger),
		loc:        opts.Location,
		minGap:     opts.MinGap,
		lockTTL:    opts.LockTTL,
		clock:      opts.Clock,
		jitter:     opts.Jitter,
	}
	if s.locker == nil {
		s.locker = NewMemoryLocker()
	}
	if s.deliverer == nil {
		s.deliverer = NewLogDeliverer(s.log)
	}
	if s.loc == nil {
		s.loc = time.Local
	}
	if s.minGap <= 0 {
		s.minGap = DefaultMinGap
	}
	if s.lockTTL <= 0 {
		s.lockTTL = time.Minute
	}
	if s.clock == nil {
		s.clock = time.Now
	}
	if s.jitter == nil {
		s.jitter = RandomJitter
	}
	return s
}

// Result reports what one pass did.
type Result struct {
	Day        string         `json:"day"`
	Skipped    SkipReason     `json:"skipped,omitempty"`
	Candidates int            `json:"candidates"`
	Scheduled  []Notification `json:"scheduled"`
}

// Evaluate runs one scheduler pass. Passes for the same day are serialized
// by the locker so the daily budget is read and written by one pass at a
// time. State is committed before notifications are handed to delivery; a
// delivery failure is logged and does not return the slot.
func (s *Scheduler) Evaluate(ctx context.Context) (*Result, error) {
	now := s.clock().In(s.loc)
	day := domain.DayKey(now)
	res := &Result{Day: day}

	lock, err := s.locker.Acquire(ctx, LockKey(day), s.lockTTL)
	if errors.Is(err, ErrLockNotAcquired) {
		res.Skipped = SkipLockBusy
		observability.EvaluationsTotal.WithLabelValues("lock_busy").Inc()
		return res, nil
	}
	if err != nil {
		observability.EvaluationsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("acquire scheduler lock: %w", err)
	}
	defer func() {
		if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
			s.log.Warn("release scheduler lock", zap.String("day", day), zap.Error(err))
		}
	}()

	out, err := s.evaluateLocked(ctx, now, res)
	if err != nil {
		observability.EvaluationsTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	if out.Skipped != SkipNone {
		observability.EvaluationsTotal.WithLabelValues("skipped_" + string(out.Skipped)).Inc()
	} else {
		observability.EvaluationsTotal.WithLabelValues("scheduled").Inc()
	}
	return out, nil
}

func (s *Scheduler) evaluateLocked(ctx context.Context, now time.Time, res *Result) (*Result, error) {
	st, err := s.db.ScheduleState(ctx, res.Day)
	if err != nil {
		return nil, err
	}
	prefs, err := s.db.NotificationPreferences(ctx)
	if err != nil {
		return nil, err
	}

	if reason := CheckGuards(now, st, prefs, s.minGap); reason != SkipNone {
		s.log.Debug("scheduler pass skipped", zap.String("day", res.Day), zap.String("reason", string(reason)))
		res.Skipped = reason
		return res, nil
	}

	level, known, err := s.db.SocialBattery(ctx)
	if err != nil {
		return nil, err
	}
	cooldowns, err := s.db.ActiveCooldowns(ctx, now)
	if err != nil {
		return nil, err
	}
	if s.candidates == nil {
		return res, nil
	}
	candidates, err := s.candidates(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("collect candidates: %w", err)
	}
	candidates = suggest.WithoutCooldowns(candidates, cooldowns)
	res.Candidates = len(candidates)

	selected := Select(candidates, st, prefs, Battery{Level: level, Known: known}, now)
	if len(selected) == 0 {
		return res, nil
	}
	scheduled, reason, err := s.commit(ctx, now, res.Day, selected)
	if err != nil {
		return nil, err
	}
	if reason != SkipNone {
		s.log.Debug("scheduler pass skipped at commit", zap.String("day", res.Day), zap.String("reason", string(reason)))
		res.Skipped = reason
		return res, nil
	}
	res.Scheduled = scheduled

	for _, n := range res.Scheduled {
		observability.NotificationsScheduledTotal.WithLabelValues(string(n.Suggestion.Urgency), string(n.Suggestion.Rule)).Inc()
		if err := s.deliverer.Deliver(ctx, n); err != nil {
			observability.DeliveryFailuresTotal.Inc()
			s.log.Error("deliver notification", zap.String("suggestion_id", n.Suggestion.ID), zap.Error(err))
		}
	}
	s.log.Info("scheduler pass", zap.String("day", res.Day), zap.Int("candidates", res.Candidates), zap.Int("scheduled", len(res.Scheduled)))
	return res, nil
}

// commit records the pass: counters, scheduled ids, last-sent stamp, and a
// cooldown per shown suggestion, all in one transaction. Guards and budget
// are checked again against the state read inside the transaction, so a
// concurrent pass that committed first trims or cancels this one. Only the
// notifications returned were recorded.
func (s *Scheduler) commit(ctx context.Context, now time.Time, day string, selected []suggest.Suggestion) ([]Notification, SkipReason, error) {
	var (
		scheduled []Notification
		reason    = SkipNone
	)
	err := s.db.WithTx(ctx, func(tx *store.Tx) error {
		scheduled, reason = nil, SkipNone
		st, err := tx.ScheduleState(ctx, day)
		if err != nil {
			return err
		}
		prefs, err := tx.NotificationPreferences(ctx)
		if err != nil {
			return err
		}
		if reason = CheckGuards(now, st, prefs, s.minGap); reason != SkipNone {
			return nil
		}
		admitted := Admit(selected, st, prefs)
		if len(admitted) == 0 {
			reason = SkipBudget
			return nil
		}

		delays := SpreadDelays(now, prefs, len(admitted), s.minGap, s.jitter)
		for i, sg := range admitted {
			if sg.IsCritical() {
				st.CriticalCount++
			} else {
				st.NonCriticalCount++
			}
			st.ScheduledIDs = append(st.ScheduledIDs, sg.ID)

			next := now.AddDate(0, 0, sg.CooldownDays)
			if err := tx.SetCooldown(ctx, string(sg.Rule), sg.RelationshipID, next); err != nil {
				return err
			}
			scheduled = append(scheduled, Notification{
				Suggestion:   sg,
				DelayMinutes: int(delays[i] / time.Minute),
				DeliverAt:    now.Add(delays[i]),
			})
		}
		st.Day = day
		st.LastSentAt = &now
		return tx.SaveScheduleState(ctx, st)
	})
	if err != nil {
		return nil, SkipNone, err
	}
	return scheduled, reason, nil
}
