// Package api exposes the tutoring service over HTTP: session
// lifecycle, chat, feedback, analytics, and document management.
// JSON in, JSON out, snake_case fields.
package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	log "github.com/sirupsen/logrus"

	"github.com/lingokit/lingokit/internal/analytics"
	"github.com/lingokit/lingokit/internal/archive"
	"github.com/lingokit/lingokit/internal/ingest"
	"github.com/lingokit/lingokit/internal/llm/provider"
	"github.com/lingokit/lingokit/internal/tutor"
	"github.com/lingokit/lingokit/pkg/session"
)

// Deps collects the services the router dispatches to.
type Deps struct {
	Manager   *tutor.Manager
	Chat      *tutor.Orchestrator
	Pipeline  *ingest.Pipeline
	Searcher  *ingest.Searcher
	Analytics *analytics.Service

	// ChatRateLimit throttles POST /api/v1/chat per client IP, in
	// requests per second. Zero disables throttling.
	ChatRateLimit float64
	ChatRateBurst int
}

// Server routes HTTP requests to the tutoring services.
type Server struct {
	manager     *tutor.Manager
	chat        *tutor.Orchestrator
	pipeline    *ingest.Pipeline
	searcher    *ingest.Searcher
	analytics   *analytics.Service
	chatLimiter *ClientLimiter
}

// NewServer wires the HTTP layer over the given services.
func NewServer(deps Deps) *Server {
	var limiter *ClientLimiter
	if deps.ChatRateLimit > 0 {
		limiter = NewClientLimiter(deps.ChatRateLimit, deps.ChatRateBurst)
	}
	return &Server{
		manager:     deps.Manager,
		chat:        deps.Chat,
		pipeline:    deps.Pipeline,
		searcher:    deps.Searcher,
		analytics:   deps.Analytics,
		chatLimiter: limiter,
	}
}

// Router builds the chi router with the full middleware stack.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(RequestLogger)
	r.Use(chimiddleware.Recoverer)
	r.Use(MetricsMiddleware())

	r.Get("/health", s.health)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/session", func(r chi.Router) {
			r.Post("/create", s.createSession)
			r.Route("/{sessionID}", func(r chi.Router) {
				r.Get("/", s.getSession)
				r.Get("/history", s.sessionHistory)
				r.Put("/subject", s.updateSubject)
				r.Post("/end", s.endSession)
			})
		})
		r.With(s.chatLimiter.Middleware).Post("/chat", s.handleChat)
		r.Get("/user/{userID}/sessions", s.userSessions)
		r.Post("/experience", s.submitExperience)
		r.Get("/analytics/user/{userID}", s.userAnalytics)
		r.Route("/documents", func(r chi.Router) {
			r.Post("/", s.ingestDocument)
			r.Post("/search", s.searchDocuments)
			r.Get("/stats", s.documentStats)
		})
	})

	return r
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "lingokit",
	})
}

type errorBody struct {
	Error      string `json:"error"`
	Code       string `json:"code"`
	FailedStep string `json:"failed_step,omitempty"`
}

// JSON writes v with the given status code.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithError(err).Error("encode response")
	}
}

// Error writes a JSON error with a machine-readable code.
func Error(w http.ResponseWriter, status int, code, message string) {
	JSON(w, status, errorBody{Error: message, Code: code})
}

// writeDomainError maps service errors onto transport status codes.
// EndSessionError is checked before the store sentinels it wraps so the
// failed step reaches the client.
func (s *Server) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var validation *archive.ValidationError
	var endErr *tutor.EndSessionError
	switch {
	case errors.As(err, &validation):
		Error(w, http.StatusBadRequest, "invalid_request", validation.Error())
	case errors.Is(err, ingest.ErrInvalidRequest):
		Error(w, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, session.ErrSessionNotFound):
		Error(w, http.StatusNotFound, "session_not_found", "session not found or expired")
	case errors.As(err, &endErr):
		JSON(w, http.StatusServiceUnavailable, errorBody{
			Error:      endErr.Error(),
			Code:       "end_session_failed",
			FailedStep: endErr.Step,
		})
	case errors.Is(err, session.ErrStoreUnavailable), errors.Is(err, archive.ErrUnavailable):
		Error(w, http.StatusServiceUnavailable, "store_unavailable", "backing store unavailable")
	case errors.Is(err, provider.ErrGenerationUnavailable):
		Error(w, http.StatusServiceUnavailable, "generation_unavailable", "all generation providers unavailable")
	default:
		log.WithError(err).WithFields(log.Fields{
			"method": r.Method,
			"path":   r.URL.Path,
		}).Error("request failed")
		Error(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

// decodeJSON decodes a required JSON body. An empty or malformed body
// writes a 400 and returns false.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		Error(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return false
	}
	return true
}

// decodeOptionalJSON is decodeJSON for endpoints whose body may be
// omitted entirely.
func decodeOptionalJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	err := json.NewDecoder(r.Body).Decode(dst)
	if err == nil || errors.Is(err, io.EOF) {
		return true
	}
	Error(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
	return false
}
