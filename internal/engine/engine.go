// Package engine wires the suggestion, scheduling, reciprocity, and
// outcome components into the operations the app shell calls.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/lazypower/tether/internal/notify"
	"github.com/lazypower/tether/internal/observability"
	"github.com/lazypower/tether/internal/outcome"
	"github.com/lazypower/tether/internal/signals"
	"github.com/lazypower/tether/internal/store"
	"github.com/lazypower/tether/internal/suggest"
)

// ErrNotDismissible is returned when dismissing a suggestion the user may
// not silence.
var ErrNotDismissible = errors.New("suggestion is not dismissible")

// DefaultDismissCooldownDays applies to dismissed ids whose rule is unknown.
const DefaultDismissCooldownDays = 3

// Options configure an Engine. Zero values get defaults.
type Options struct {
	Logger     *zap.Logger
	Location   *time.Location
	Clock      func() time.Time
	Archetypes suggest.ArchetypeTable
	Locker     notify.Locker
	Deliverer  notify.Deliverer
	MinGap     time.Duration
	LockTTL    time.Duration
	Jitter     func() time.Duration
}

// Engine orchestrates suggestion generation, notification scheduling,
// reciprocity tracking, and outcome measurement.
type Engine struct {
	DB *store.DB

	log        *zap.Logger
	loc        *time.Location
	clock      func() time.Time
	archetypes suggest.ArchetypeTable
	reader     *signals.Reader
	scheduler  *notify.Scheduler
	measurer   *outcome.Measurer
	validate   *validator.Validate

	stopCh   chan struct{}
	stopOnce sync.Once
}

// New creates a new Engine.
func New(db *store.DB, opts Options) *Engine {
	e := &Engine{
		DB:         db,
		log:        observability.OrNop(opts.Logger),
		loc:        opts.Location,
		clock:      opts.Clock,
		archetypes: opts.Archetypes,
		validate:   newValidator(),
		stopCh:     make(chan struct{}),
	}
	if e.loc == nil {
		e.loc = time.Local
	}
	if e.clock == nil {
		e.clock = time.Now
	}
	if e.archetypes == nil {
		e.archetypes = suggest.DefaultArchetypes
	}
	e.reader = signals.NewReader(db, e.loc)
	e.measurer = outcome.NewMeasurer(db, e.log.Named("outcome"), e.clock)
	e.scheduler = notify.NewScheduler(db, notify.Options{
		Candidates: e.candidates,
		Locker:     opts.Locker,
		Deliverer:  opts.Deliverer,
		Logger:     e.log.Named("scheduler"),
		Location:   e.loc,
		MinGap:     opts.MinGap,
		LockTTL:    opts.LockTTL,
		Clock:      e.clock,
		Jitter:     opts.Jitter,
	})
	return e
}

func (e *Engine) now() time.Time { return e.clock().In(e.loc) }

// GenerateSuggestion returns the current suggestion for one relationship,
// or nil when no rule matches or the winning rule is cooling down.
func (e *Engine) GenerateSuggestion(ctx context.Context, relationshipID string) (*suggest.Suggestion, error) {
	now := e.now()
	sig, err := e.reader.Read(ctx, relationshipID, now)
	if err != nil {
		return nil, err
	}
	if sig == nil {
		return nil, fmt.Errorf("relationship %s: %w", relationshipID, store.ErrNotFound)
	}

	s := suggest.Generate(sig, e.archetypes)
	if s == nil {
		return nil, nil
	}
	cooling, err := e.DB.CoolingDown(ctx, string(s.Rule), s.RelationshipID, now)
	if err != nil {
		return nil, err
	}
	if cooling {
		return nil, nil
	}
	observability.SuggestionsGeneratedTotal.WithLabelValues(string(s.Rule)).Inc()
	return s, nil
}

// ListSuggestions returns the current suggestion for every tracked
// relationship, ranked, with cooling-down suggestions removed.
func (e *Engine) ListSuggestions(ctx context.Context) ([]suggest.Suggestion, error) {
	now := e.now()
	list, err := e.candidates(ctx, now)
	if err != nil {
		return nil, err
	}
	cooldowns, err := e.DB.ActiveCooldowns(ctx, now)
	if err != nil {
		return nil, err
	}
	list = suggest.WithoutCooldowns(list, cooldowns)
	suggest.Sort(list)
	return list, nil
}

// candidates generates one suggestion per non-dormant relationship. A
// relationship whose signals cannot be read is logged and skipped.
func (e *Engine) candidates(ctx context.Context, now time.Time) ([]suggest.Suggestion, error) {
	rels, err := e.DB.ListRelationships(ctx, false)
	if err != nil {
		return nil, err
	}

	out := make([]suggest.Suggestion, 0, len(rels))
	for i := range rels {
		sig, err := e.reader.ReadFor(ctx, rels[i], now)
		if err != nil {
			e.log.Warn("read signals", zap.String("relationship_id", rels[i].ID), zap.Error(err))
			continue
		}
		if s := suggest.Generate(sig, e.archetypes); s != nil {
			observability.SuggestionsGeneratedTotal.WithLabelValues(string(s.Rule)).Inc()
			out = append(out, *s)
		}
	}
	return out, nil
}

// DismissSuggestion keeps the suggestion's rule from firing again for its
// relationship for cooldownDays. When cooldownDays is not positive the
// rule's own cooldown applies, or DefaultDismissCooldownDays for an
// unrecognized id.
func (e *Engine) DismissSuggestion(ctx context.Context, suggestionID string, cooldownDays int) error {
	if suggestionID == "" {
		return &ValidationError{Field: "suggestion_id", Reason: "required"}
	}

	rule, relID, known := suggest.ParseSuggestionID(suggestionID)
	if !known {
		head, tail, _ := cutID(suggestionID)
		rule, relID = suggest.RuleID(head), tail
	}
	if rule == suggest.RuleCriticalDrift {
		return ErrNotDismissible
	}

	days := cooldownDays
	if days <= 0 {
		days = DefaultDismissCooldownDays
		if d, ok := suggest.CooldownForRule(rule); ok {
			days = d
		}
	}

	now := e.now()
	if err := e.DB.SetCooldown(ctx, string(rule), relID, now.AddDate(0, 0, days)); err != nil {
		return err
	}
	observability.SuggestionsDismissedTotal.WithLabelValues(string(rule)).Inc()
	e.log.Info("suggestion dismissed", zap.String("suggestion_id", suggestionID), zap.Int("cooldown_days", days))
	return nil
}

// EvaluateAndSchedule runs one notification scheduler pass.
func (e *Engine) EvaluateAndSchedule(ctx context.Context) (*notify.Result, error) {
	return e.scheduler.Evaluate(ctx)
}

// MeasurePendingOutcomes finalizes every outcome that is ready.
func (e *Engine) MeasurePendingOutcomes(ctx context.Context) (outcome.Summary, error) {
	return e.measurer.MeasurePending(ctx)
}

// StartTimer measures outcomes and runs a scheduler pass on startup and
// then every interval. A non-positive interval only runs the startup pass.
func (e *Engine) StartTimer(interval time.Duration) {
	e.tick()
	if interval <= 0 {
		return
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				e.tick()
			case <-e.stopCh:
				return
			}
		}
	}()
}

func (e *Engine) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if _, err := e.MeasurePendingOutcomes(ctx); err != nil {
		e.log.Error("periodic outcome scan", zap.Error(err))
	}
	if res, err := e.EvaluateAndSchedule(ctx); err != nil {
		e.log.Error("periodic scheduler pass", zap.Error(err))
	} else if len(res.Scheduled) > 0 {
		e.log.Info("periodic scheduler pass", zap.Int("scheduled", len(res.Scheduled)))
	}
}

// Stop shuts down the engine's background goroutines.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() { close(e.stopCh) })
}
