// Package server exposes the engine operations over a JSON HTTP API.
package server

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/lazypower/tether/internal/engine"
	"github.com/lazypower/tether/internal/observability"
)

// Server is the tether HTTP API server.
type Server struct {
	eng      *engine.Engine
	log      *zap.Logger
	router   chi.Router
	validate *validator.Validate
	version  string
	started  time.Time
}

// New creates a new Server over eng.
func New(eng *engine.Engine, version string, log *zap.Logger) *Server {
	s := &Server{
		eng:      eng,
		log:      observability.OrNop(log),
		validate: validator.New(validator.WithRequiredStructEnabled()),
		version:  version,
		started:  time.Now(),
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(s.instrument)

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Get("/suggestions", s.handleListSuggestions)
		r.Get("/suggestions/{relationshipID}", s.handleGetSuggestion)
		r.Post("/suggestions/dismiss", s.handleDismiss)

		r.Post("/notifications/evaluate", s.handleEvaluate)

		r.Get("/preferences", s.handleGetPreferences)
		r.Patch("/preferences", s.handleUpdatePreferences)
		r.Put("/battery", s.handleSetBattery)

		r.Post("/interactions", s.handleLogInteraction)
		r.Post("/outcomes", s.handleCaptureOutcome)
		r.Post("/outcomes/measure", s.handleMeasure)

		r.Get("/reciprocity/{relationshipID}", s.handleReciprocity)
	})

	s.router = r
}

// instrument records request metrics under the matched route pattern and
// logs each request.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		elapsed := time.Since(start)

		observability.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		observability.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(elapsed.Seconds())
		s.log.Debug("request",
			zap.String("method", r.Method),
			zap.String("route", route),
			zap.Int("status", status),
			zap.Duration("elapsed", elapsed))
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	dbOK := s.eng.DB.PingContext(ctx) == nil
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
		"uptime":  time.Since(s.started).Seconds(),
		"db":      dbOK,
		"db_path": s.eng.DB.Path,
	})
}
