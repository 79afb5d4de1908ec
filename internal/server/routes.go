package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/lazypower/tether/internal/domain"
	"github.com/lazypower/tether/internal/engine"
	"github.com/lazypower/tether/internal/outcome"
	"github.com/lazypower/tether/internal/store"
	"github.com/lazypower/tether/internal/suggest"
)

const maxBodyBytes = 1 << 20

func (s *Server) handleListSuggestions(w http.ResponseWriter, r *http.Request) {
	list, err := s.eng.ListSuggestions(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if list == nil {
		list = []suggest.Suggestion{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"suggestions": list})
}

func (s *Server) handleGetSuggestion(w http.ResponseWriter, r *http.Request) {
	relID := chi.URLParam(r, "relationshipID")

	sug, err := s.eng.GenerateSuggestion(r.Context(), relID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"suggestion": sug})
}

func (s *Server) handleDismiss(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SuggestionID string `json:"suggestion_id"`
		CooldownDays int    `json:"cooldown_days"`
	}
	if !decode(w, r, &req) {
		return
	}
	if err := s.eng.DismissSuggestion(r.Context(), req.SuggestionID, req.CooldownDays); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "dismissed"})
}

func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	res, err := s.eng.EvaluateAndSchedule(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleGetPreferences(w http.ResponseWriter, r *http.Request) {
	prefs, err := s.eng.GetNotificationPreferences(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, prefs)
}

func (s *Server) handleUpdatePreferences(w http.ResponseWriter, r *http.Request) {
	var upd engine.PreferencesUpdate
	if !decode(w, r, &upd) {
		return
	}
	prefs, err := s.eng.UpdateNotificationPreferences(r.Context(), upd)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, prefs)
}

func (s *Server) handleSetBattery(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Level *int `json:"level"`
	}
	if !decode(w, r, &req) {
		return
	}
	if req.Level == nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "level required"})
		return
	}
	if err := s.eng.SetSocialBattery(r.Context(), *req.Level); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"level": *req.Level})
}

func (s *Server) handleLogInteraction(w http.ResponseWriter, r *http.Request) {
	var in engine.InteractionInput
	if !decode(w, r, &in) {
		return
	}
	logged, err := s.eng.LogInteraction(r.Context(), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newInteractionView(logged))
}

type captureRequest struct {
	InteractionID  string  `json:"interaction_id" validate:"required"`
	RelationshipID string  `json:"relationship_id" validate:"required"`
	ScoreBefore    float64 `json:"score_before" validate:"min=0,max=100"`
	ExpectedImpact float64 `json:"expected_impact"`
}

func (s *Server) handleCaptureOutcome(w http.ResponseWriter, r *http.Request) {
	var req captureRequest
	if !decode(w, r, &req) {
		return
	}
	if err := s.validate.Struct(req); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": fieldErrs[0].Field() + " failed " + fieldErrs[0].Tag(),
			})
			return
		}
		s.writeError(w, r, err)
		return
	}

	o, err := s.eng.CaptureInteractionOutcome(r.Context(), req.InteractionID, req.RelationshipID, req.ScoreBefore, req.ExpectedImpact)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newOutcomeView(o))
}

func (s *Server) handleMeasure(w http.ResponseWriter, r *http.Request) {
	sum, err := s.eng.MeasurePendingOutcomes(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (s *Server) handleReciprocity(w http.ResponseWriter, r *http.Request) {
	rep, err := s.eng.ReciprocityReport(r.Context(), chi.URLParam(r, "relationshipID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

type interactionView struct {
	ID              string    `json:"id"`
	RelationshipIDs []string  `json:"relationship_ids"`
	Category        string    `json:"category"`
	Status          string    `json:"status"`
	Date            time.Time `json:"date"`
	Vibe            *int      `json:"vibe,omitempty"`
	Note            string    `json:"note,omitempty"`
	Initiator       string    `json:"initiator,omitempty"`
	SuggestionID    string    `json:"suggestion_id,omitempty"`
}

func newInteractionView(in *domain.Interaction) interactionView {
	return interactionView{
		ID:              in.ID,
		RelationshipIDs: in.RelationshipIDs,
		Category:        string(in.Category),
		Status:          string(in.Status),
		Date:            in.Date,
		Vibe:            in.Vibe,
		Note:            in.Note,
		Initiator:       string(in.Initiator),
		SuggestionID:    in.SuggestionID,
	}
}

type outcomeView struct {
	ID                 string     `json:"id"`
	InteractionID      string     `json:"interaction_id"`
	RelationshipID     string     `json:"relationship_id"`
	Category           string     `json:"category"`
	ScoreBefore        float64    `json:"score_before"`
	ExpectedImpact     float64    `json:"expected_impact"`
	Pending            bool       `json:"pending"`
	ActualImpact       float64    `json:"actual_impact,omitempty"`
	EffectivenessRatio float64    `json:"effectiveness_ratio,omitempty"`
	MeasuredAt         *time.Time `json:"measured_at,omitempty"`
}

func newOutcomeView(o *domain.Outcome) outcomeView {
	return outcomeView{
		ID:                 o.ID,
		InteractionID:      o.InteractionID,
		RelationshipID:     o.RelationshipID,
		Category:           string(o.Category),
		ScoreBefore:        o.ScoreBefore,
		ExpectedImpact:     o.ExpectedImpact,
		Pending:            o.Pending(),
		ActualImpact:       o.ActualImpact,
		EffectivenessRatio: o.EffectivenessRatio,
		MeasuredAt:         o.MeasuredAt,
	}
}

// decode reads a JSON body into v, writing a 400 and returning false on
// failure.
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return false
	}
	return true
}

// writeError maps engine errors onto HTTP statuses.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *engine.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": verr.Error(), "field": verr.Field})
	case errors.Is(err, outcome.ErrNotCapturable):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, store.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.Is(err, engine.ErrNotDismissible):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	default:
		s.log.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
