package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/lingokit/lingokit/internal/archive"
	metrics "github.com/lingokit/lingokit/pkg/observability"
	"github.com/lingokit/lingokit/pkg/session"
)

type createSessionRequest struct {
	UserData map[string]any `json:"user_data"`
}

func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if !decodeOptionalJSON(w, r, &req) {
		return
	}

	sess, err := s.manager.CreateSession(r.Context(), req.UserData)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	metrics.RecordSessionStarted()
	JSON(w, http.StatusOK, map[string]string{
		"session_id": sess.ID,
		"message":    "Session created successfully",
	})
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.manager.GetSession(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	JSON(w, http.StatusOK, map[string]any{
		"session_id":        sess.ID,
		"difficulty_level":  sess.DifficultyLevel,
		"proficiency_score": sess.ProficiencyScore,
		"subject":           sess.Subject,
		"interaction_count": sess.InteractionCount,
		"session_status":    sess.Status,
	})
}

func (s *Server) sessionHistory(w http.ResponseWriter, r *http.Request) {
	sess, err := s.manager.GetSession(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	history := sess.History
	if history == nil {
		history = []session.Turn{}
	}
	JSON(w, http.StatusOK, map[string]any{
		"session_id":           sess.ID,
		"conversation_history": history,
		"total_interactions":   sess.InteractionCount,
		"session_status":       sess.Status,
	})
}

type updateSubjectRequest struct {
	Subject string `json:"subject"`
}

func (s *Server) updateSubject(w http.ResponseWriter, r *http.Request) {
	var req updateSubjectRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if _, err := s.manager.UpdateSubject(r.Context(), chi.URLParam(r, "sessionID"), req.Subject); err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	JSON(w, http.StatusOK, map[string]string{
		"message": "Subject updated successfully",
	})
}

type endSessionRequest struct {
	UserExperience *archive.UserExperience `json:"user_experience"`
}

func (s *Server) endSession(w http.ResponseWriter, r *http.Request) {
	var req endSessionRequest
	if !decodeOptionalJSON(w, r, &req) {
		return
	}

	sessionID := chi.URLParam(r, "sessionID")
	summary, err := s.manager.EndSession(r.Context(), sessionID, req.UserExperience)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	metrics.RecordSessionEnded("user")
	JSON(w, http.StatusOK, map[string]any{
		"message":    "Session ended successfully",
		"session_id": sessionID,
		"summary":    summary,
	})
}

type chatRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.SessionID == "" || strings.TrimSpace(req.Message) == "" {
		Error(w, http.StatusBadRequest, "invalid_request", "session_id and message are required")
		return
	}

	result, err := s.chat.HandleMessage(r.Context(), req.SessionID, req.Message)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	JSON(w, http.StatusOK, result)
}

func (s *Server) userSessions(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	sessions, err := s.manager.UserSessions(r.Context(), userID, limit)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	if sessions == nil {
		sessions = []archive.SessionSummary{}
	}

	JSON(w, http.StatusOK, map[string]any{
		"user_id":        userID,
		"sessions":       sessions,
		"total_sessions": len(sessions),
	})
}

func (s *Server) submitExperience(w http.ResponseWriter, r *http.Request) {
	var exp archive.UserExperience
	if !decodeJSON(w, r, &exp) {
		return
	}

	if err := s.manager.SubmitExperience(r.Context(), &exp); err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	JSON(w, http.StatusOK, map[string]string{
		"message": "User experience stored successfully",
	})
}

func (s *Server) userAnalytics(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	report, err := s.analytics.UserReport(r.Context(), userID)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	JSON(w, http.StatusOK, map[string]any{
		"user_id":   userID,
		"analytics": report,
	})
}
