package server

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lazypower/tether/internal/domain"
	"github.com/lazypower/tether/internal/suggest"
)

func TestListSuggestions(t *testing.T) {
	srv, eng := testServer(t)
	seed(t, eng,
		domain.Relationship{ID: "r1", Name: "Ana", Tier: domain.TierInner, CurrentScore: 20},
		domain.Relationship{ID: "r2", Name: "Bo", Tier: domain.TierClose, CurrentScore: 90},
	)

	w := do(t, srv, "GET", "/api/suggestions", "")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Suggestions []suggest.Suggestion `json:"suggestions"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Suggestions, 2)
	assert.Equal(t, "critical_drift:r1", body.Suggestions[0].ID)
	assert.False(t, body.Suggestions[0].Dismissible)
}

func TestListSuggestionsEmpty(t *testing.T) {
	srv, _ := testServer(t)

	w := do(t, srv, "GET", "/api/suggestions", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"suggestions":[]}`, w.Body.String())
}

func TestGetSuggestion(t *testing.T) {
	srv, eng := testServer(t)
	seed(t, eng, domain.Relationship{ID: "r1", Name: "Ana", Tier: domain.TierInner, CurrentScore: 45})

	w := do(t, srv, "GET", "/api/suggestions/r1", "")
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Suggestion *suggest.Suggestion `json:"suggestion"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.NotNil(t, body.Suggestion)
	assert.Equal(t, suggest.RuleHighDrift, body.Suggestion.Rule)

	w = do(t, srv, "GET", "/api/suggestions/ghost", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDismiss(t *testing.T) {
	srv, eng := testServer(t)
	seed(t, eng, domain.Relationship{ID: "r1", Name: "Ana", Tier: domain.TierInner, CurrentScore: 45})

	w := do(t, srv, "POST", "/api/suggestions/dismiss", `{"suggestion_id":"critical_drift:r1"}`)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = do(t, srv, "POST", "/api/suggestions/dismiss", `{"suggestion_id":""}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, srv, "POST", "/api/suggestions/dismiss", `not json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, srv, "POST", "/api/suggestions/dismiss", `{"suggestion_id":"high_drift:r1"}`)
	require.Equal(t, http.StatusOK, w.Code)

	w = do(t, srv, "GET", "/api/suggestions/r1", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"suggestion":null}`, w.Body.String())
}

func TestEvaluate(t *testing.T) {
	srv, eng := testServer(t)
	seed(t, eng, domain.Relationship{ID: "r1", Name: "Ana", Tier: domain.TierInner, CurrentScore: 20})

	w := do(t, srv, "POST", "/api/notifications/evaluate", "")
	require.Equal(t, http.StatusOK, w.Code)

	var res struct {
		Day       string `json:"day"`
		Scheduled []struct {
			DelayMinutes int `json:"delay_minutes"`
		} `json:"scheduled"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, "2026-06-15", res.Day)
	require.Len(t, res.Scheduled, 1)
	assert.GreaterOrEqual(t, res.Scheduled[0].DelayMinutes, 120)
}

func TestPreferences(t *testing.T) {
	srv, _ := testServer(t)

	w := do(t, srv, "GET", "/api/preferences", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"frequency":"moderate","quiet_start":22,"quiet_end":8,"battery_aware":true}`, w.Body.String())

	w = do(t, srv, "PATCH", "/api/preferences", `{"frequency":"proactive","battery_aware":false}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"frequency":"proactive","quiet_start":22,"quiet_end":8,"battery_aware":false}`, w.Body.String())

	w = do(t, srv, "PATCH", "/api/preferences", `{"quiet_end":30}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "quiet_end", body["field"])
}

func TestBattery(t *testing.T) {
	srv, eng := testServer(t)

	w := do(t, srv, "PUT", "/api/battery", `{"level":40}`)
	require.Equal(t, http.StatusOK, w.Code)
	level, known, err := eng.DB.SocialBattery(t.Context())
	require.NoError(t, err)
	assert.True(t, known)
	assert.Equal(t, 40, level)

	assert.Equal(t, http.StatusBadRequest, do(t, srv, "PUT", "/api/battery", `{}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, srv, "PUT", "/api/battery", `{"level":-1}`).Code)
}

func TestLogInteractionAndReciprocity(t *testing.T) {
	srv, eng := testServer(t)
	seed(t, eng, domain.Relationship{ID: "r1", Name: "Ana", Tier: domain.TierClose, CurrentScore: 55})

	w := do(t, srv, "POST", "/api/interactions",
		`{"relationship_ids":["r1"],"category":"shared_meal","initiator":"friend","vibe":4,"suggestion_id":"maintenance_due:r1"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var in struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &in))
	assert.NotEmpty(t, in.ID)
	assert.Equal(t, "completed", in.Status)

	w = do(t, srv, "POST", "/api/interactions", `{"relationship_ids":["r1"],"category":"karaoke"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, srv, "POST", "/api/interactions", `{"relationship_ids":["ghost"],"category":"event"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, srv, "GET", "/api/reciprocity/r1", "")
	require.Equal(t, http.StatusOK, w.Code)
	var rep struct {
		InitiationRatio float64 `json:"initiation_ratio"`
		Balance         string  `json:"balance"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rep))
	assert.Equal(t, 0.0, rep.InitiationRatio)
	assert.Equal(t, "insufficient_data", rep.Balance)

	assert.Equal(t, http.StatusNotFound, do(t, srv, "GET", "/api/reciprocity/ghost", "").Code)
}

func TestCaptureAndMeasureOutcome(t *testing.T) {
	srv, eng := testServer(t)
	seed(t, eng, domain.Relationship{ID: "r1", Name: "Ana", Tier: domain.TierClose, CurrentScore: 55})

	w := do(t, srv, "POST", "/api/interactions", `{"relationship_ids":["r1"],"category":"activity","date":"2026-06-01T12:00:00Z"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	var in struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &in))

	w = do(t, srv, "POST", "/api/outcomes", `{"relationship_id":"r1"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, srv, "POST", "/api/outcomes", `{"interaction_id":"missing","relationship_id":"r1","score_before":55,"expected_impact":5}`)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, srv, "POST", "/api/outcomes",
		`{"interaction_id":"`+in.ID+`","relationship_id":"r2","score_before":55,"expected_impact":5}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, srv, "POST", "/api/outcomes",
		`{"interaction_id":"`+in.ID+`","relationship_id":"r1","score_before":55,"expected_impact":5}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var o struct {
		Pending bool `json:"pending"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &o))
	assert.True(t, o.Pending)

	w = do(t, srv, "POST", "/api/outcomes/measure", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"measured":1,"not_ready":0,"failed":0}`, w.Body.String())
}
