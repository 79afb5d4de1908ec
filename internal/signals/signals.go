// Package signals reads the per-relationship state the suggestion engine
// works from: aggregate scores, recent completed interactions, and
// upcoming life events.
package signals

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/lazypower/tether/internal/domain"
)

const (
	// EventHorizonDays is how far ahead life events are considered.
	EventHorizonDays = 7
	// HistoryLimit caps the completed interactions loaded per relationship.
	HistoryLimit = 20
)

// UpcomingEvent is a birthday, anniversary, or detected life event that
// falls inside the event horizon.
type UpcomingEvent struct {
	Label     string
	Date      time.Time
	DaysUntil int
}

// Signals is everything the generator needs for one relationship.
type Signals struct {
	Relationship domain.Relationship
	// Interactions are completed, dated at or before Now, most recent first.
	Interactions []domain.Interaction
	Events       []UpcomingEvent
	Now          time.Time
}

// LastInteraction returns the most recent completed interaction, or nil.
func (s *Signals) LastInteraction() *domain.Interaction {
	if len(s.Interactions) == 0 {
		return nil
	}
	return &s.Interactions[0]
}

// DaysSinceLast returns whole days since the last completed interaction
// and false when there is none.
func (s *Signals) DaysSinceLast() (int, bool) {
	last := s.LastInteraction()
	if last == nil {
		return 0, false
	}
	return int(s.Now.Sub(last.Date).Hours() / 24), true
}

// Source is the slice of the relationship store the reader consumes.
type Source interface {
	GetRelationship(ctx context.Context, id string) (*domain.Relationship, error)
	CompletedInteractions(ctx context.Context, relationshipID string, asOf time.Time, limit int) ([]domain.Interaction, error)
	LifeEventsBetween(ctx context.Context, relationshipID string, from, to time.Time) ([]domain.LifeEvent, error)
}

// Reader assembles Signals from a Source.
type Reader struct {
	src Source
	loc *time.Location
}

// NewReader creates a Reader. Calendar math uses loc (nil means time.Local).
func NewReader(src Source, loc *time.Location) *Reader {
	if loc == nil {
		loc = time.Local
	}
	return &Reader{src: src, loc: loc}
}

// Read loads signals for a relationship id. It returns nil, nil when the
// relationship does not exist.
func (r *Reader) Read(ctx context.Context, relationshipID string, now time.Time) (*Signals, error) {
	rel, err := r.src.GetRelationship(ctx, relationshipID)
	if err != nil {
		return nil, fmt.Errorf("read relationship %s: %w", relationshipID, err)
	}
	if rel == nil {
		return nil, nil
	}
	return r.ReadFor(ctx, *rel, now)
}

// ReadFor loads signals for an already-loaded relationship.
func (r *Reader) ReadFor(ctx context.Context, rel domain.Relationship, now time.Time) (*Signals, error) {
	now = now.In(r.loc)

	history, err := r.src.CompletedInteractions(ctx, rel.ID, now, HistoryLimit)
	if err != nil {
		return nil, fmt.Errorf("read interactions for %s: %w", rel.ID, err)
	}

	horizon := startOfDay(now).AddDate(0, 0, EventHorizonDays+1)
	detected, err := r.src.LifeEventsBetween(ctx, rel.ID, startOfDay(now), horizon)
	if err != nil {
		return nil, fmt.Errorf("read life events for %s: %w", rel.ID, err)
	}

	return &Signals{
		Relationship: rel,
		Interactions: CompletedPast(history, now),
		Events:       UpcomingEvents(rel, detected, now, EventHorizonDays),
		Now:          now,
	}, nil
}

// CompletedPast keeps only completed interactions dated at or before now,
// sorted most recent first. Applying it twice gives the same result.
func CompletedPast(list []domain.Interaction, now time.Time) []domain.Interaction {
	out := make([]domain.Interaction, 0, len(list))
	for i := range list {
		if list[i].IsCompletedBy(now) {
			out = append(out, list[i])
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Date.Equal(out[j].Date) {
			return out[i].ID < out[j].ID
		}
		return out[i].Date.After(out[j].Date)
	})
	return out
}

// UpcomingEvents merges annual dates and detected life events falling
// within horizonDays of now, soonest first.
func UpcomingEvents(rel domain.Relationship, detected []domain.LifeEvent, now time.Time, horizonDays int) []UpcomingEvent {
	var out []UpcomingEvent

	annual := []struct {
		label string
		mmdd  string
	}{
		{"birthday", rel.Birthday},
		{"anniversary", rel.Anniversary},
	}
	for _, a := range annual {
		date, ok := NextAnnual(a.mmdd, now)
		if !ok {
			continue
		}
		if d := DaysUntil(now, date); d >= 0 && d <= horizonDays {
			out = append(out, UpcomingEvent{Label: a.label, Date: date, DaysUntil: d})
		}
	}

	for _, ev := range detected {
		if d := DaysUntil(now, ev.Date); d >= 0 && d <= horizonDays {
			out = append(out, UpcomingEvent{Label: ev.Label, Date: ev.Date.In(now.Location()), DaysUntil: d})
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].DaysUntil < out[j].DaysUntil })
	return out
}

// ParseAnnual parses an MM-DD date. Days past the end of the month are
// rejected; 02-29 is accepted.
func ParseAnnual(mmdd string) (time.Month, int, bool) {
	parts := strings.Split(strings.TrimSpace(mmdd), "-")
	if len(parts) != 2 {
		return 0, 0, false
	}
	month, err := strconv.Atoi(parts[0])
	if err != nil || month < 1 || month > 12 {
		return 0, 0, false
	}
	day, err := strconv.Atoi(parts[1])
	// 2000 is a leap year, so February allows 29.
	if err != nil || day < 1 || day > daysIn(2000, time.Month(month)) {
		return 0, 0, false
	}
	return time.Month(month), day, true
}

// NextAnnual returns the next occurrence (today included) of an MM-DD date.
// 02-29 falls on Feb 28 in non-leap years.
func NextAnnual(mmdd string, now time.Time) (time.Time, bool) {
	month, day, ok := ParseAnnual(mmdd)
	if !ok {
		return time.Time{}, false
	}

	today := startOfDay(now)
	next := annualIn(now.Year(), month, day, now.Location())
	if next.Before(today) {
		next = annualIn(now.Year()+1, month, day, now.Location())
	}
	return next, true
}

func annualIn(year int, month time.Month, day int, loc *time.Location) time.Time {
	day = min(day, daysIn(year, month))
	return time.Date(year, month, day, 0, 0, 0, 0, loc)
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// DaysUntil counts calendar days from now to t in now's location.
// Negative when t is on an earlier day.
func DaysUntil(now, t time.Time) int {
	from := startOfDay(now)
	to := startOfDay(t.In(now.Location()))
	return int(math.Round(to.Sub(from).Hours() / 24))
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
