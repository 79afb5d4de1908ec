package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lazypower/tether/internal/domain"
	"github.com/lazypower/tether/internal/notify"
	"github.com/lazypower/tether/internal/reciprocity"
	"github.com/lazypower/tether/internal/store"
	"github.com/lazypower/tether/internal/suggest"
)

var now = time.Date(2026, 6, 15, 10, 0, 0, 0, time.UTC)

type recorder struct {
	mu   sync.Mutex
	sent []notify.Notification
}

func (r *recorder) Deliver(_ context.Context, n notify.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
	return nil
}

func testDB(t *testing.T) *store.DB {
	t.Helper()
	db, err := store.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func testEngine(t *testing.T) (*Engine, *recorder) {
	t.Helper()
	rec := &recorder{}
	e := New(testDB(t), Options{
		Location:  time.UTC,
		Clock:     func() time.Time { return now },
		Deliverer: rec,
		Jitter:    func() time.Duration { return 0 },
	})
	t.Cleanup(e.Stop)
	return e, rec
}

func addRelationship(t *testing.T, e *Engine, r domain.Relationship) {
	t.Helper()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now.AddDate(0, -3, 0)
	}
	require.NoError(t, e.DB.CreateRelationship(context.Background(), &r))
}

func TestGenerateSuggestionCriticalDrift(t *testing.T) {
	e, _ := testEngine(t)
	addRelationship(t, e, domain.Relationship{ID: "r1", Name: "Ana", Tier: domain.TierInner, CurrentScore: 25})

	s, err := e.GenerateSuggestion(context.Background(), "r1")
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.Equal(t, suggest.RuleCriticalDrift, s.Rule)
	assert.False(t, s.Dismissible)
	assert.Equal(t, "Ana", s.RelationshipName)
}

func TestGenerateSuggestionFirstContact(t *testing.T) {
	e, _ := testEngine(t)
	addRelationship(t, e, domain.Relationship{ID: "r1", Name: "Bo", Tier: domain.TierClose, CurrentScore: 60, CreatedAt: now.Add(-48 * time.Hour)})

	s, err := e.GenerateSuggestion(context.Background(), "r1")
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.Equal(t, suggest.RuleFirstContact, s.Rule)
	assert.Equal(t, suggest.UrgencyMedium, s.Urgency)
}

func TestGenerateSuggestionMissing(t *testing.T) {
	e, _ := testEngine(t)
	_, err := e.GenerateSuggestion(context.Background(), "ghost")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestDismissSuggestion(t *testing.T) {
	e, _ := testEngine(t)
	ctx := context.Background()
	addRelationship(t, e, domain.Relationship{ID: "r1", Name: "Ana", Tier: domain.TierInner, CurrentScore: 25})
	addRelationship(t, e, domain.Relationship{ID: "r2", Name: "Cy", Tier: domain.TierInner, CurrentScore: 45})

	err := e.DismissSuggestion(ctx, "critical_drift:r1", 0)
	assert.ErrorIs(t, err, ErrNotDismissible)

	require.NoError(t, e.DismissSuggestion(ctx, "high_drift:r2", 0))
	s, err := e.GenerateSuggestion(ctx, "r2")
	require.NoError(t, err)
	assert.Nil(t, s)

	cooling, err := e.DB.CoolingDown(ctx, "high_drift", "r2", now.AddDate(0, 0, 3).Add(-time.Minute))
	require.NoError(t, err)
	assert.True(t, cooling)

	list, err := e.ListSuggestions(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "r1", list[0].RelationshipID)
}

func TestDismissUnknownIDDefaultsToThreeDays(t *testing.T) {
	e, _ := testEngine(t)
	ctx := context.Background()

	require.NoError(t, e.DismissSuggestion(ctx, "legacy_rule:r9", 0))
	cooling, err := e.DB.CoolingDown(ctx, "legacy_rule", "r9", now.AddDate(0, 0, 2))
	require.NoError(t, err)
	assert.True(t, cooling)
	cooling, err = e.DB.CoolingDown(ctx, "legacy_rule", "r9", now.AddDate(0, 0, 3))
	require.NoError(t, err)
	assert.False(t, cooling)

	require.NoError(t, e.DismissSuggestion(ctx, "deepen:r9", 30))
	cooling, err = e.DB.CoolingDown(ctx, "deepen", "r9", now.AddDate(0, 0, 29))
	require.NoError(t, err)
	assert.True(t, cooling)

	var verr *ValidationError
	assert.True(t, errors.As(e.DismissSuggestion(ctx, "", 0), &verr))
}

func TestListSuggestionsSkipsDormantAndRanks(t *testing.T) {
	e, _ := testEngine(t)
	addRelationship(t, e, domain.Relationship{ID: "a", Name: "A", Tier: domain.TierClose, CurrentScore: 90})
	addRelationship(t, e, domain.Relationship{ID: "b", Name: "B", Tier: domain.TierInner, CurrentScore: 20})
	addRelationship(t, e, domain.Relationship{ID: "c", Name: "C", Tier: domain.TierInner, CurrentScore: 20, Dormant: true})

	list, err := e.ListSuggestions(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "b", list[0].RelationshipID)
	assert.Equal(t, suggest.UrgencyCritical, list[0].Urgency)
	assert.Equal(t, "a", list[1].RelationshipID)
}

func TestUpdateNotificationPreferences(t *testing.T) {
	e, _ := testEngine(t)
	ctx := context.Background()

	light := domain.FrequencyLight
	prefs, err := e.UpdateNotificationPreferences(ctx, PreferencesUpdate{Frequency: &light})
	require.NoError(t, err)
	assert.Equal(t, domain.FrequencyLight, prefs.Frequency)
	assert.Equal(t, 22, prefs.QuietStart)

	zero := 0
	prefs, err = e.UpdateNotificationPreferences(ctx, PreferencesUpdate{QuietEnd: &zero})
	require.NoError(t, err)
	assert.Equal(t, 0, prefs.QuietEnd)
	assert.Equal(t, domain.FrequencyLight, prefs.Frequency)

	got, err := e.GetNotificationPreferences(ctx)
	require.NoError(t, err)
	assert.Equal(t, prefs, got)

	bad := 24
	_, err = e.UpdateNotificationPreferences(ctx, PreferencesUpdate{QuietStart: &bad})
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "quiet_start", verr.Field)

	loud := domain.Frequency("loud")
	_, err = e.UpdateNotificationPreferences(ctx, PreferencesUpdate{Frequency: &loud})
	assert.True(t, errors.As(err, &verr))
}

func TestSetSocialBattery(t *testing.T) {
	e, _ := testEngine(t)
	ctx := context.Background()

	require.NoError(t, e.SetSocialBattery(ctx, 35))
	level, known, err := e.DB.SocialBattery(ctx)
	require.NoError(t, err)
	assert.True(t, known)
	assert.Equal(t, 35, level)

	var verr *ValidationError
	assert.True(t, errors.As(e.SetSocialBattery(ctx, 101), &verr))
}

func TestLogInteractionReciprocity(t *testing.T) {
	e, _ := testEngine(t)
	ctx := context.Background()
	addRelationship(t, e, domain.Relationship{ID: "r1", Name: "Ana", Tier: domain.TierClose, CurrentScore: 60})

	for i := 0; i < 5; i++ {
		_, err := e.LogInteraction(ctx, InteractionInput{
			RelationshipIDs: []string{"r1"}, Category: domain.CategoryConversation,
			Date: now.Add(-time.Duration(10-i) * time.Hour), Initiator: domain.InitiatorUser,
		})
		require.NoError(t, err)
	}
	rel, err := e.DB.GetRelationship(ctx, "r1")
	require.NoError(t, err)
	require.Equal(t, 5, rel.ConsecutiveUserInitiations)

	_, err = e.LogInteraction(ctx, InteractionInput{
		RelationshipIDs: []string{"r1"}, Category: domain.CategoryConversation, Initiator: domain.InitiatorFriend,
	})
	require.NoError(t, err)

	rel, err = e.DB.GetRelationship(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, 0, rel.ConsecutiveUserInitiations)
	assert.Equal(t, 1.0, rel.TotalFriendInitiations)
	assert.InDelta(t, 5.0/6.0, rel.InitiationRatio, 1e-9)

	rep, err := e.ReciprocityReport(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, reciprocity.BalanceOneSided, rep.Balance)
}

func TestLogInteractionPlannedSkipsReciprocity(t *testing.T) {
	e, _ := testEngine(t)
	ctx := context.Background()
	addRelationship(t, e, domain.Relationship{ID: "r1", Name: "Ana", Tier: domain.TierClose, CurrentScore: 60})

	in, err := e.LogInteraction(ctx, InteractionInput{
		RelationshipIDs: []string{"r1"}, Category: domain.CategoryActivity, Status: domain.StatusPlanned,
		Date: now.Add(48 * time.Hour), Initiator: domain.InitiatorUser, SuggestionID: "momentum:r1",
	})
	require.NoError(t, err)

	rel, err := e.DB.GetRelationship(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, 0.0, rel.TotalUserInitiations)

	o, err := e.DB.OutcomeForInteraction(ctx, in.ID, "r1")
	require.NoError(t, err)
	assert.Nil(t, o)
}

func TestLogInteractionCapturesOutcome(t *testing.T) {
	e, _ := testEngine(t)
	ctx := context.Background()
	addRelationship(t, e, domain.Relationship{
		ID: "r1", Name: "Ana", Tier: domain.TierClose, CurrentScore: 42,
		CategoryEffectiveness: map[domain.Category]float64{domain.CategorySharedMeal: 1.2},
	})

	in, err := e.LogInteraction(ctx, InteractionInput{
		RelationshipIDs: []string{"r1"}, Category: domain.CategorySharedMeal, SuggestionID: "high_drift:r1",
	})
	require.NoError(t, err)

	o, err := e.DB.OutcomeForInteraction(ctx, in.ID, "r1")
	require.NoError(t, err)
	require.NotNil(t, o)
	assert.Equal(t, 42.0, o.ScoreBefore)
	assert.InDelta(t, 6.0, o.ExpectedImpact, 1e-9)
	assert.True(t, o.Pending())
}

func TestLogInteractionMissingRelationshipRollsBack(t *testing.T) {
	e, _ := testEngine(t)
	ctx := context.Background()
	addRelationship(t, e, domain.Relationship{ID: "r1", Name: "Ana", Tier: domain.TierClose, CurrentScore: 60})

	_, err := e.LogInteraction(ctx, InteractionInput{
		RelationshipIDs: []string{"r1", "ghost"}, Category: domain.CategoryEvent, Initiator: domain.InitiatorUser,
	})
	assert.ErrorIs(t, err, store.ErrNotFound)

	list, err := e.DB.CompletedInteractions(ctx, "r1", now, 0)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestLogInteractionValidation(t *testing.T) {
	e, _ := testEngine(t)
	ctx := context.Background()
	bad := 9

	cases := []InteractionInput{
		{Category: domain.CategoryEvent},
		{RelationshipIDs: []string{"r1"}, Category: "karaoke"},
		{RelationshipIDs: []string{"r1"}, Category: domain.CategoryEvent, Vibe: &bad},
		{RelationshipIDs: []string{"r1"}, Category: domain.CategoryEvent, Initiator: "stranger"},
	}
	for _, in := range cases {
		_, err := e.LogInteraction(ctx, in)
		var verr *ValidationError
		assert.True(t, errors.As(err, &verr), "%+v", in)
	}
}

func TestEvaluateAndSchedule(t *testing.T) {
	e, rec := testEngine(t)
	ctx := context.Background()
	addRelationship(t, e, domain.Relationship{ID: "r1", Name: "Ana", Tier: domain.TierInner, CurrentScore: 25})
	addRelationship(t, e, domain.Relationship{ID: "r2", Name: "Bo", Tier: domain.TierClose, CurrentScore: 90})

	res, err := e.EvaluateAndSchedule(ctx)
	require.NoError(t, err)
	require.Len(t, res.Scheduled, 1)
	assert.Equal(t, "critical_drift:r1", res.Scheduled[0].Suggestion.ID)
	assert.Len(t, rec.sent, 1)

	st, err := e.DB.ScheduleState(ctx, "2026-06-15")
	require.NoError(t, err)
	assert.Equal(t, 1, st.CriticalCount)
}

func TestStartTimerRunsStartupPass(t *testing.T) {
	e, rec := testEngine(t)
	ctx := context.Background()
	addRelationship(t, e, domain.Relationship{ID: "r1", Name: "Ana", Tier: domain.TierInner, CurrentScore: 25})

	in, err := e.LogInteraction(ctx, InteractionInput{
		RelationshipIDs: []string{"r1"}, Category: domain.CategoryConversation,
		Date: now.AddDate(0, 0, -8), SuggestionID: "critical_drift:r1",
	})
	require.NoError(t, err)

	e.StartTimer(0)
	e.Stop()
	e.Stop()

	o, err := e.DB.OutcomeForInteraction(ctx, in.ID, "r1")
	require.NoError(t, err)
	assert.False(t, o.Pending())
	assert.Len(t, rec.sent, 1)
}
