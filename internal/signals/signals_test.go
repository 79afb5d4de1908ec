package signals

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lazypower/tether/internal/domain"
	"github.com/lazypower/tether/internal/store"
)

func testDB(t *testing.T) *store.DB {
	t.Helper()
	db, err := store.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestCompletedPastIdempotent(t *testing.T) {
	now := time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)
	list := []domain.Interaction{
		{ID: "a", Status: domain.StatusCompleted, Date: now.Add(-48 * time.Hour)},
		{ID: "b", Status: domain.StatusCompleted, Date: now.Add(-1 * time.Hour)},
		{ID: "c", Status: domain.StatusPlanned, Date: now.Add(-2 * time.Hour)},
		{ID: "d", Status: domain.StatusCompleted, Date: now.Add(time.Minute)},
	}

	once := CompletedPast(list, now)
	twice := CompletedPast(once, now)

	require.Len(t, once, 2)
	assert.Equal(t, "b", once[0].ID)
	assert.Equal(t, "a", once[1].ID)
	assert.Equal(t, once, twice)
}

func TestNextAnnual(t *testing.T) {
	now := time.Date(2026, 12, 30, 15, 0, 0, 0, time.UTC)

	next, ok := NextAnnual("01-02", now)
	require.True(t, ok)
	assert.Equal(t, time.Date(2027, 1, 2, 0, 0, 0, 0, time.UTC), next)

	today, ok := NextAnnual("12-30", now)
	require.True(t, ok)
	assert.Equal(t, 0, DaysUntil(now, today))

	for _, bad := range []string{"", "13-01", "1-x", "2026-01-02", "04-31", "02-30", "06-31", "11-31"} {
		_, ok := NextAnnual(bad, now)
		assert.False(t, ok, bad)
	}
}

func TestNextAnnualLeapDay(t *testing.T) {
	now := time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)
	next, ok := NextAnnual("02-29", now)
	require.True(t, ok)
	assert.Equal(t, time.Date(2026, 2, 28, 0, 0, 0, 0, time.UTC), next)

	now = time.Date(2027, 3, 1, 9, 0, 0, 0, time.UTC)
	next, ok = NextAnnual("02-29", now)
	require.True(t, ok)
	assert.Equal(t, time.Date(2028, 2, 29, 0, 0, 0, 0, time.UTC), next)

	next, ok = NextAnnual("12-31", now)
	require.True(t, ok)
	assert.Equal(t, time.Date(2027, 12, 31, 0, 0, 0, 0, time.UTC), next)
}

func TestDaysUntil(t *testing.T) {
	now := time.Date(2026, 5, 1, 23, 30, 0, 0, time.UTC)
	assert.Equal(t, 1, DaysUntil(now, time.Date(2026, 5, 2, 0, 15, 0, 0, time.UTC)))
	assert.Equal(t, 0, DaysUntil(now, time.Date(2026, 5, 1, 1, 0, 0, 0, time.UTC)))
	assert.Equal(t, -1, DaysUntil(now, time.Date(2026, 4, 30, 12, 0, 0, 0, time.UTC)))
}

func TestUpcomingEvents(t *testing.T) {
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	rel := domain.Relationship{ID: "a", Birthday: "05-06", Anniversary: "09-01"}
	detected := []domain.LifeEvent{
		{Label: "new job", Date: now.Add(24 * time.Hour)},
		{Label: "too far", Date: now.Add(20 * 24 * time.Hour)},
	}

	got := UpcomingEvents(rel, detected, now, EventHorizonDays)
	require.Len(t, got, 2)
	assert.Equal(t, "new job", got[0].Label)
	assert.Equal(t, 1, got[0].DaysUntil)
	assert.Equal(t, "birthday", got[1].Label)
	assert.Equal(t, 5, got[1].DaysUntil)
}

func TestReaderRead(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	now := time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)

	require.NoError(t, db.CreateRelationship(ctx, &domain.Relationship{ID: "a", Name: "Ana", Tier: domain.TierInner, CurrentScore: 64}))
	require.NoError(t, db.CreateInteraction(ctx, &domain.Interaction{
		ID: "done", RelationshipIDs: []string{"a"}, Category: domain.CategoryActivity,
		Status: domain.StatusCompleted, Date: now.Add(-3 * 24 * time.Hour),
	}, nil))
	require.NoError(t, db.CreateInteraction(ctx, &domain.Interaction{
		ID: "later", RelationshipIDs: []string{"a"}, Category: domain.CategoryActivity,
		Status: domain.StatusPlanned, Date: now.Add(2 * 24 * time.Hour),
	}, nil))
	require.NoError(t, db.CreateLifeEvent(ctx, &domain.LifeEvent{RelationshipID: "a", Label: "moving", Date: now.Add(48 * time.Hour)}))

	r := NewReader(db, time.UTC)
	sig, err := r.Read(ctx, "a", now)
	require.NoError(t, err)
	require.NotNil(t, sig)

	assert.Equal(t, 64.0, sig.Relationship.CurrentScore)
	require.Len(t, sig.Interactions, 1)
	assert.Equal(t, "done", sig.Interactions[0].ID)
	days, ok := sig.DaysSinceLast()
	assert.True(t, ok)
	assert.Equal(t, 3, days)
	require.Len(t, sig.Events, 1)
	assert.Equal(t, "moving", sig.Events[0].Label)
}

func TestReaderMissingRelationship(t *testing.T) {
	r := NewReader(testDB(t), time.UTC)
	sig, err := r.Read(context.Background(), "ghost", time.Now())
	require.NoError(t, err)
	assert.Nil(t, sig)
}
