package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/GracePathHQ/gracepath-web/internal/auth"
	"github.com/GracePathHQ/gracepath-web/internal/db"
	"github.com/GracePathHQ/gracepath-web/internal/logger"
)

// maxMessageRunes caps a single counseling message
const maxMessageRunes = 8000

type counselRequest struct {
	SessionID string `json:"session_id,omitempty"`
	Message   string `json:"message"`
}

// handleCounselMessage processes one counseling turn. Anonymous callers are
// allowed; their sessions have no owner and can only be resumed by ID.
func (s *Server) handleCounselMessage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.Ctx(ctx)

	var req counselRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	message := strings.TrimSpace(req.Message)
	if message == "" {
		respondError(w, http.StatusBadRequest, "Message is required")
		return
	}
	if utf8.RuneCountInString(message) > maxMessageRunes {
		respondError(w, http.StatusBadRequest, "Message is too long")
		return
	}

	var userID *int64
	if id, ok := auth.GetUserID(ctx); ok {
		userID = &id
	}

	// Session resolution, including the resumed-session ownership check,
	// happens inside the orchestrator after its safety gate has run. A
	// crisis message gets the safety response no matter what session id it
	// arrived with.
	resp, err := s.orchestrator.HandleTurn(ctx, req.SessionID, userID, message)
	if err != nil {
		switch {
		case errors.Is(err, db.ErrSessionNotFound):
			respondError(w, http.StatusNotFound, "Session not found")
		case errors.Is(err, db.ErrSessionComplete):
			respondError(w, http.StatusConflict, "Session is already completed")
		default:
			log.Error("Counseling turn failed", "error", err, "session_id", req.SessionID)
			respondError(w, http.StatusBadGateway, "Failed to generate a response. Please try again.")
		}
		return
	}

	respondJSON(w, http.StatusOK, resp)
}
