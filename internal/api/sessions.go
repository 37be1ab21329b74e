package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/GracePathHQ/gracepath-web/internal/access"
	"github.com/GracePathHQ/gracepath-web/internal/auth"
	"github.com/GracePathHQ/gracepath-web/internal/db"
	"github.com/GracePathHQ/gracepath-web/internal/logger"
	"github.com/GracePathHQ/gracepath-web/internal/models"
	"github.com/GracePathHQ/gracepath-web/internal/storage"
	"github.com/GracePathHQ/gracepath-web/internal/validation"
)

// handleGetMe returns the current authenticated user's info
func (s *Server) handleGetMe(w http.ResponseWriter, r *http.Request) {
	log := logger.Ctx(r.Context())

	userID, _ := auth.GetUserID(r.Context())

	ctx, cancel := context.WithTimeout(r.Context(), DatabaseTimeout)
	defer cancel()

	user, err := s.db.GetUserByID(ctx, userID)
	if err != nil {
		log.Error("Failed to get user", "error", err)
		respondError(w, http.StatusInternalServerError, "Failed to get user")
		return
	}

	respondJSON(w, http.StatusOK, user)
}

// handleListSessions lists the authenticated user's sessions. The status
// query parameter accepts a comma-separated subset of active,completed;
// absent means both.
func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	log := logger.Ctx(r.Context())
	userID, _ := auth.GetUserID(r.Context())

	var statuses []string
	if raw := r.URL.Query().Get("status"); raw != "" {
		for _, status := range strings.Split(raw, ",") {
			status = strings.TrimSpace(status)
			if status != string(models.SessionStatusActive) && status != string(models.SessionStatusCompleted) {
				respondError(w, http.StatusBadRequest, "Invalid status filter: "+status)
				return
			}
			statuses = append(statuses, status)
		}
	}

	ctx, cancel := context.WithTimeout(r.Context(), DatabaseTimeout)
	defer cancel()

	sessions, err := s.db.ListUserSessions(ctx, userID, statuses)
	if err != nil {
		log.Error("Failed to list sessions", "error", err)
		respondError(w, http.StatusInternalServerError, "Failed to list sessions")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"sessions": sessions,
	})
}

// sessionDetailResponse is the session view with access-filtered notes
type sessionDetailResponse struct {
	Session    *models.Session      `json:"session"`
	Notes      []models.SessionNote `json:"notes"`
	ViewerRole string               `json:"viewer_role"`
}

// handleGetSession returns a session with messages and notes. Owners,
// assigned counselors, and coverage counselors may view; coverage counselors
// get private notes filtered out. Everyone else sees a 404.
func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	log := logger.Ctx(r.Context())
	userID, _ := auth.GetUserID(r.Context())

	sessionID := chi.URLParam(r, "sessionID")
	if err := validation.ValidateSessionID(sessionID); err != nil {
		respondError(w, http.StatusNotFound, "Session not found")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), DatabaseTimeout)
	defer cancel()

	session, err := s.db.GetSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, db.ErrSessionNotFound) {
			respondError(w, http.StatusNotFound, "Session not found")
			return
		}
		log.Error("Failed to get session", "error", err)
		respondError(w, http.StatusInternalServerError, "Failed to get session")
		return
	}

	role, err := s.resolveRole(ctx, session, userID)
	if err != nil {
		log.Error("Failed to resolve session role", "error", err)
		respondError(w, http.StatusInternalServerError, "Failed to get session")
		return
	}
	if !access.CanViewSession(role) {
		respondError(w, http.StatusNotFound, "Session not found")
		return
	}

	notes, err := s.db.ListSessionNotes(ctx, sessionID)
	if err != nil {
		log.Error("Failed to list notes", "error", err)
		respondError(w, http.StatusInternalServerError, "Failed to get session")
		return
	}

	respondJSON(w, http.StatusOK, sessionDetailResponse{
		Session:    session,
		Notes:      access.FilterNotes(notes, role),
		ViewerRole: role.String(),
	})
}

// handleCompleteSession marks an owned session completed and archives its
// transcript. Completion is permanent; a completed session rejects further
// turns.
func (s *Server) handleCompleteSession(w http.ResponseWriter, r *http.Request) {
	log := logger.Ctx(r.Context())
	userID, _ := auth.GetUserID(r.Context())

	sessionID := chi.URLParam(r, "sessionID")
	if err := validation.ValidateSessionID(sessionID); err != nil {
		respondError(w, http.StatusNotFound, "Session not found")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), DatabaseTimeout)
	defer cancel()

	if err := s.db.CompleteSession(ctx, sessionID, userID); err != nil {
		switch {
		case errors.Is(err, db.ErrSessionNotFound):
			respondError(w, http.StatusNotFound, "Session not found")
		case errors.Is(err, db.ErrSessionComplete):
			respondError(w, http.StatusConflict, "Session is already completed")
		default:
			log.Error("Failed to complete session", "error", err)
			respondError(w, http.StatusInternalServerError, "Failed to complete session")
		}
		return
	}

	// Archive is best effort: completion already committed, and the
	// transcript can be rebuilt from the database at any time.
	if s.storage != nil {
		session, err := s.db.GetSession(ctx, sessionID)
		if err == nil {
			_, err = s.storage.ArchiveTranscript(ctx, session)
		}
		if err != nil {
			log.Error("Failed to archive transcript", "error", err, "session_id", sessionID)
		}
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"status": string(models.SessionStatusCompleted),
	})
}

// handleGetTranscript serves the archived plaintext transcript. Owner only.
func (s *Server) handleGetTranscript(w http.ResponseWriter, r *http.Request) {
	log := logger.Ctx(r.Context())
	userID, _ := auth.GetUserID(r.Context())

	sessionID := chi.URLParam(r, "sessionID")
	if err := validation.ValidateSessionID(sessionID); err != nil {
		respondError(w, http.StatusNotFound, "Session not found")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), DatabaseTimeout)
	defer cancel()

	session, err := s.db.GetSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, db.ErrSessionNotFound) {
			respondError(w, http.StatusNotFound, "Session not found")
			return
		}
		log.Error("Failed to get session", "error", err)
		respondError(w, http.StatusInternalServerError, "Failed to get transcript")
		return
	}
	if session.UserID == nil || *session.UserID != userID {
		respondError(w, http.StatusNotFound, "Session not found")
		return
	}

	if s.storage == nil {
		respondError(w, http.StatusNotFound, "Transcript not available")
		return
	}

	data, err := s.storage.FetchTranscript(ctx, session)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			respondError(w, http.StatusNotFound, "Transcript not available")
			return
		}
		log.Error("Failed to fetch transcript", "error", err, "session_id", sessionID)
		respondError(w, http.StatusInternalServerError, "Failed to get transcript")
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+sessionID+`.txt"`)
	w.Write(data)
}
