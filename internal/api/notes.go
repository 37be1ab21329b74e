package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/GracePathHQ/gracepath-web/internal/access"
	"github.com/GracePathHQ/gracepath-web/internal/auth"
	"github.com/GracePathHQ/gracepath-web/internal/db"
	"github.com/GracePathHQ/gracepath-web/internal/logger"
	"github.com/GracePathHQ/gracepath-web/internal/validation"
)

// maxNoteLength caps note content
const maxNoteLength = 10000

type createNoteRequest struct {
	Content   string `json:"content"`
	IsPrivate bool   `json:"is_private"`
}

type updateNoteRequest struct {
	Content string `json:"content"`
}

type notePrivacyRequest struct {
	IsPrivate bool `json:"is_private"`
}

// handleListNotes returns the notes on a session visible to the caller
func (s *Server) handleListNotes(w http.ResponseWriter, r *http.Request) {
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
		respondError(w, http.StatusInternalServerError, "Failed to list notes")
		return
	}

	role, err := s.resolveRole(ctx, session, userID)
	if err != nil {
		log.Error("Failed to resolve session role", "error", err)
		respondError(w, http.StatusInternalServerError, "Failed to list notes")
		return
	}
	if !access.CanViewSession(role) {
		respondError(w, http.StatusNotFound, "Session not found")
		return
	}

	notes, err := s.db.ListSessionNotes(ctx, sessionID)
	if err != nil {
		log.Error("Failed to list notes", "error", err)
		respondError(w, http.StatusInternalServerError, "Failed to list notes")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"notes": access.FilterNotes(notes, role),
	})
}

// handleCreateNote adds a note to a session. The author role stamped on the
// note is derived from the caller's resolved session role, never from the
// request. Private notes are an assigned-counselor privilege; a coverage
// counselor asking for one gets an error rather than a silent public note.
func (s *Server) handleCreateNote(w http.ResponseWriter, r *http.Request) {
	log := logger.Ctx(r.Context())
	userID, _ := auth.GetUserID(r.Context())

	sessionID := chi.URLParam(r, "sessionID")
	if err := validation.ValidateSessionID(sessionID); err != nil {
		respondError(w, http.StatusNotFound, "Session not found")
		return
	}

	var req createNoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	req.Content = strings.TrimSpace(req.Content)
	if req.Content == "" {
		respondError(w, http.StatusBadRequest, "Note content is required")
		return
	}
	if len(req.Content) > maxNoteLength {
		respondError(w, http.StatusBadRequest, "Note content is too long")
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
		respondError(w, http.StatusInternalServerError, "Failed to create note")
		return
	}

	role, err := s.resolveRole(ctx, session, userID)
	if err != nil {
		log.Error("Failed to resolve session role", "error", err)
		respondError(w, http.StatusInternalServerError, "Failed to create note")
		return
	}
	if !access.CanViewSession(role) {
		respondError(w, http.StatusNotFound, "Session not found")
		return
	}
	if !access.CanCreateNote(role, false) {
		respondError(w, http.StatusForbidden, "You may not add notes to this session")
		return
	}
	if req.IsPrivate && !access.CanCreatePrivateNote(role) {
		respondError(w, http.StatusForbidden, "Only the assigned counselor may create private notes")
		return
	}

	note, err := s.db.CreateNote(ctx, sessionID, userID, access.NoteAuthorRole(role), req.Content, req.IsPrivate)
	if err != nil {
		log.Error("Failed to create note", "error", err)
		respondError(w, http.StatusInternalServerError, "Failed to create note")
		return
	}

	respondJSON(w, http.StatusCreated, note)
}

// handleUpdateNote rewrites a note's content. Author only; anyone else gets
// the same 404 a nonexistent note would.
func (s *Server) handleUpdateNote(w http.ResponseWriter, r *http.Request) {
	log := logger.Ctx(r.Context())
	userID, _ := auth.GetUserID(r.Context())

	noteID, err := strconv.ParseInt(chi.URLParam(r, "noteID"), 10, 64)
	if err != nil {
		respondError(w, http.StatusNotFound, "Note not found")
		return
	}

	var req updateNoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	req.Content = strings.TrimSpace(req.Content)
	if req.Content == "" {
		respondError(w, http.StatusBadRequest, "Note content is required")
		return
	}
	if len(req.Content) > maxNoteLength {
		respondError(w, http.StatusBadRequest, "Note content is too long")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), DatabaseTimeout)
	defer cancel()

	if err := s.db.UpdateNote(ctx, noteID, userID, req.Content); err != nil {
		if errors.Is(err, db.ErrNoteNotFound) {
			respondError(w, http.StatusNotFound, "Note not found")
			return
		}
		log.Error("Failed to update note", "error", err)
		respondError(w, http.StatusInternalServerError, "Failed to update note")
		return
	}

	note, err := s.db.GetNote(ctx, noteID)
	if err != nil {
		log.Error("Failed to reload note", "error", err)
		respondError(w, http.StatusInternalServerError, "Failed to update note")
		return
	}

	respondJSON(w, http.StatusOK, note)
}

// handleDeleteNote removes a note. Author only.
func (s *Server) handleDeleteNote(w http.ResponseWriter, r *http.Request) {
	log := logger.Ctx(r.Context())
	userID, _ := auth.GetUserID(r.Context())

	noteID, err := strconv.ParseInt(chi.URLParam(r, "noteID"), 10, 64)
	if err != nil {
		respondError(w, http.StatusNotFound, "Note not found")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), DatabaseTimeout)
	defer cancel()

	if err := s.db.DeleteNote(ctx, noteID, userID); err != nil {
		if errors.Is(err, db.ErrNoteNotFound) {
			respondError(w, http.StatusNotFound, "Note not found")
			return
		}
		log.Error("Failed to delete note", "error", err)
		respondError(w, http.StatusInternalServerError, "Failed to delete note")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleSetNotePrivacy flips a note's private flag. The note's author may,
// and so may the session's assigned counselor.
func (s *Server) handleSetNotePrivacy(w http.ResponseWriter, r *http.Request) {
	log := logger.Ctx(r.Context())
	userID, _ := auth.GetUserID(r.Context())

	noteID, err := strconv.ParseInt(chi.URLParam(r, "noteID"), 10, 64)
	if err != nil {
		respondError(w, http.StatusNotFound, "Note not found")
		return
	}

	var req notePrivacyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), DatabaseTimeout)
	defer cancel()

	note, err := s.db.GetNote(ctx, noteID)
	if err != nil {
		if errors.Is(err, db.ErrNoteNotFound) {
			respondError(w, http.StatusNotFound, "Note not found")
			return
		}
		log.Error("Failed to get note", "error", err)
		respondError(w, http.StatusInternalServerError, "Failed to update note")
		return
	}

	session, err := s.db.GetSession(ctx, note.SessionID)
	if err != nil {
		log.Error("Failed to get session", "error", err)
		respondError(w, http.StatusInternalServerError, "Failed to update note")
		return
	}

	role, err := s.resolveRole(ctx, session, userID)
	if err != nil {
		log.Error("Failed to resolve session role", "error", err)
		respondError(w, http.StatusInternalServerError, "Failed to update note")
		return
	}
	if !access.CanChangeNotePrivacy(note, userID, role) {
		respondError(w, http.StatusForbidden, "You may not change this note's privacy")
		return
	}

	if err := s.db.SetNotePrivacy(ctx, noteID, req.IsPrivate); err != nil {
		log.Error("Failed to set note privacy", "error", err)
		respondError(w, http.StatusInternalServerError, "Failed to update note")
		return
	}

	note.IsPrivate = req.IsPrivate
	respondJSON(w, http.StatusOK, note)
}
