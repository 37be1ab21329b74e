package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/GracePathHQ/gracepath-web/internal/access"
	"github.com/GracePathHQ/gracepath-web/internal/auth"
	"github.com/GracePathHQ/gracepath-web/internal/db"
	"github.com/GracePathHQ/gracepath-web/internal/email"
	"github.com/GracePathHQ/gracepath-web/internal/logger"
	"github.com/GracePathHQ/gracepath-web/internal/models"
	"github.com/GracePathHQ/gracepath-web/internal/validation"
)

// maxShareExpiryDays caps the requested share lifetime
const maxShareExpiryDays = 365

type createShareRequest struct {
	RecipientEmail   *string `json:"recipient_email,omitempty"`
	AllowNotesAccess bool    `json:"allow_notes_access"`
	ExpiresInDays    *int    `json:"expires_in_days,omitempty"`
}

type createShareResponse struct {
	Share    *models.SessionShare `json:"share"`
	ShareURL string               `json:"share_url"`
}

// recipientNotRegisteredResponse tells the sharer the restricted recipient
// has no verified account and where to send them to register
type recipientNotRegisteredResponse struct {
	Error       string `json:"error"`
	Code        string `json:"code"`
	RegisterURL string `json:"register_url"`
}

// handleCreateShare creates a share link for an owned session. Sharing is a
// paid feature; the entitlement check happens before anything is written.
func (s *Server) handleCreateShare(w http.ResponseWriter, r *http.Request) {
	log := logger.Ctx(r.Context())
	userID, _ := auth.GetUserID(r.Context())

	sessionID := chi.URLParam(r, "sessionID")
	if err := validation.ValidateSessionID(sessionID); err != nil {
		respondError(w, http.StatusNotFound, "Session not found")
		return
	}

	var req createShareRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	var recipientEmail *string
	if req.RecipientEmail != nil {
		normalized := validation.NormalizeEmail(*req.RecipientEmail)
		if !validation.IsValidEmail(normalized) {
			respondError(w, http.StatusBadRequest, "Invalid recipient email")
			return
		}
		recipientEmail = &normalized
	}

	var expiresAt *time.Time
	if req.ExpiresInDays != nil {
		if *req.ExpiresInDays < 1 || *req.ExpiresInDays > maxShareExpiryDays {
			respondError(w, http.StatusBadRequest, "expires_in_days must be between 1 and 365")
			return
		}
		expires := time.Now().UTC().AddDate(0, 0, *req.ExpiresInDays)
		expiresAt = &expires
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
		respondError(w, http.StatusInternalServerError, "Failed to create share")
		return
	}
	if !access.CanCreateShare(session, userID) {
		respondError(w, http.StatusNotFound, "Session not found")
		return
	}

	entitled, err := s.entitlements.IsEntitledToShare(ctx, userID)
	if err != nil {
		log.Error("Failed to check entitlement", "error", err)
		respondError(w, http.StatusInternalServerError, "Failed to create share")
		return
	}
	if !entitled {
		respondError(w, http.StatusForbidden, "Sharing requires an active subscription")
		return
	}

	// A recipient restriction must point at a registered, verified account.
	// Anything else fails with an invite-them-first response carrying a
	// registration deep link so the sharer can remediate.
	var recipientUserID *int64
	if recipientEmail != nil {
		recipient, err := s.db.ResolveShareRecipient(ctx, *recipientEmail)
		if err != nil {
			if errors.Is(err, db.ErrRecipientNotRegistered) {
				respondJSON(w, http.StatusConflict, recipientNotRegisteredResponse{
					Error:       "Recipient does not have a verified account yet. Invite them to register first.",
					Code:        "recipient_not_registered",
					RegisterURL: s.frontendURL + "/register?email=" + url.QueryEscape(*recipientEmail),
				})
				return
			}
			log.Error("Failed to look up recipient", "error", err)
			respondError(w, http.StatusInternalServerError, "Failed to create share")
			return
		}
		recipientUserID = &recipient.ID
	}

	share, err := s.db.CreateShare(ctx, sessionID, userID, recipientEmail, recipientUserID, req.AllowNotesAccess, expiresAt)
	if err != nil {
		log.Error("Failed to create share", "error", err)
		respondError(w, http.StatusInternalServerError, "Failed to create share")
		return
	}

	shareURL := s.frontendURL + "/shared/" + share.ShareToken

	if recipientEmail != nil && s.email != nil {
		s.sendShareInvitation(userID, *recipientEmail, session.Title, shareURL, expiresAt)
	}

	respondJSON(w, http.StatusCreated, createShareResponse{
		Share:    share,
		ShareURL: shareURL,
	})
}

// sendShareInvitation emails the recipient in the background. Delivery
// failure never fails the share creation.
func (s *Server) sendShareInvitation(sharerID int64, toEmail, sessionTitle, shareURL string, expiresAt *time.Time) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		sharer, err := s.db.GetUserByID(ctx, sharerID)
		if err != nil {
			logger.Error("Failed to load sharer for invitation email", "error", err, "user_id", sharerID)
			return
		}

		sharerName := sharer.Email
		if sharer.Name != nil && *sharer.Name != "" {
			sharerName = *sharer.Name
		}

		err = s.email.SendShareInvitation(ctx, sharerID, email.ShareInvitationParams{
			ToEmail:      toEmail,
			SharerName:   sharerName,
			SharerEmail:  sharer.Email,
			SessionTitle: sessionTitle,
			ShareURL:     shareURL,
			ExpiresAt:    expiresAt,
		})
		if err != nil {
			logger.Error("Failed to send share invitation", "error", err, "user_id", sharerID)
		}
	}()
}

// handleListShares lists the shares on an owned session
func (s *Server) handleListShares(w http.ResponseWriter, r *http.Request) {
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
		respondError(w, http.StatusInternalServerError, "Failed to list shares")
		return
	}
	if session.UserID == nil || *session.UserID != userID {
		respondError(w, http.StatusNotFound, "Session not found")
		return
	}

	shares, err := s.db.ListSessionShares(ctx, sessionID)
	if err != nil {
		log.Error("Failed to list shares", "error", err)
		respondError(w, http.StatusInternalServerError, "Failed to list shares")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"shares": shares,
	})
}

// handleRevokeShare hard-deletes a share. Allowed for the share's creator or
// the session owner; the link stops working immediately.
func (s *Server) handleRevokeShare(w http.ResponseWriter, r *http.Request) {
	log := logger.Ctx(r.Context())
	userID, _ := auth.GetUserID(r.Context())

	shareID, err := strconv.ParseInt(chi.URLParam(r, "shareID"), 10, 64)
	if err != nil {
		respondError(w, http.StatusNotFound, "Share not found")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), DatabaseTimeout)
	defer cancel()

	share, err := s.db.GetShare(ctx, shareID)
	if err != nil {
		if errors.Is(err, db.ErrShareNotFound) {
			respondError(w, http.StatusNotFound, "Share not found")
			return
		}
		log.Error("Failed to get share", "error", err)
		respondError(w, http.StatusInternalServerError, "Failed to revoke share")
		return
	}

	session, err := s.db.GetSession(ctx, share.SessionID)
	if err != nil {
		log.Error("Failed to get session", "error", err)
		respondError(w, http.StatusInternalServerError, "Failed to revoke share")
		return
	}
	if !access.CanRevokeShare(share, session, userID) {
		respondError(w, http.StatusNotFound, "Share not found")
		return
	}

	if err := s.db.RevokeShare(ctx, shareID); err != nil {
		if errors.Is(err, db.ErrShareNotFound) {
			respondError(w, http.StatusNotFound, "Share not found")
			return
		}
		log.Error("Failed to revoke share", "error", err)
		respondError(w, http.StatusInternalServerError, "Failed to revoke share")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// sharedSessionResponse is the share-link view of a session
type sharedSessionResponse struct {
	Session *models.Session      `json:"session"`
	Notes   []models.SessionNote `json:"notes"`
	Grant   *access.ShareGrant   `json:"grant"`
}

// handleGetSharedSession opens a session via share token. Logged-out
// visitors can open unrestricted shares; recipient-restricted shares require
// logging in as the named recipient. Expiry wins over everything, including
// the owner opening their own link.
func (s *Server) handleGetSharedSession(w http.ResponseWriter, r *http.Request) {
	log := logger.Ctx(r.Context())

	shareToken := chi.URLParam(r, "shareToken")
	if err := validation.ValidateShareToken(shareToken); err != nil {
		respondError(w, http.StatusNotFound, "Share not found")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), DatabaseTimeout)
	defer cancel()

	share, err := s.db.GetShareByToken(ctx, shareToken)
	if err != nil {
		if errors.Is(err, db.ErrShareNotFound) {
			respondError(w, http.StatusNotFound, "Share not found")
			return
		}
		log.Error("Failed to get share", "error", err)
		respondError(w, http.StatusInternalServerError, "Failed to open share")
		return
	}

	session, err := s.db.GetSession(ctx, share.SessionID)
	if err != nil {
		log.Error("Failed to get shared session", "error", err)
		respondError(w, http.StatusInternalServerError, "Failed to open share")
		return
	}

	viewer, err := s.viewerFromContext(ctx, r)
	if err != nil {
		log.Error("Failed to load viewer", "error", err)
		respondError(w, http.StatusInternalServerError, "Failed to open share")
		return
	}

	grant, err := access.ValidateShare(share, session, viewer, time.Now().UTC())
	if err != nil {
		switch {
		case errors.Is(err, access.ErrShareExpired):
			respondError(w, http.StatusGone, "Share link has expired")
		case errors.Is(err, access.ErrNotRecipient):
			if viewer == nil {
				respondError(w, http.StatusUnauthorized, "Please log in to view this shared session")
			} else {
				respondError(w, http.StatusForbidden, "This share is restricted to another recipient")
			}
		default:
			log.Error("Share validation failed", "error", err)
			respondError(w, http.StatusInternalServerError, "Failed to open share")
		}
		return
	}

	role := access.RoleViewer
	isOwner := viewer != nil && session.UserID != nil && *session.UserID == viewer.ID
	if isOwner {
		role = access.RoleOwner
	}

	// Track the open for the viewer's shared-with-me inbox. Owners opening
	// their own link aren't inbox entries.
	if viewer != nil && !isOwner {
		if err := s.db.RecordShareAccess(ctx, share.ID, viewer.ID); err != nil {
			log.Error("Failed to record share access", "error", err, "share_id", share.ID)
		}
	}

	notes, err := s.db.ListSessionNotes(ctx, session.ID)
	if err != nil {
		log.Error("Failed to list notes", "error", err)
		respondError(w, http.StatusInternalServerError, "Failed to open share")
		return
	}

	respondJSON(w, http.StatusOK, sharedSessionResponse{
		Session: session,
		Notes:   access.FilterNotes(notes, role),
		Grant:   grant,
	})
}

// handleCreateSharedNote adds a note through a share link that allows note
// access. Requires a logged-in viewer; notes are never anonymous.
func (s *Server) handleCreateSharedNote(w http.ResponseWriter, r *http.Request) {
	log := logger.Ctx(r.Context())

	userID, ok := auth.GetUserID(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "Please log in to add notes")
		return
	}

	shareToken := chi.URLParam(r, "shareToken")
	if err := validation.ValidateShareToken(shareToken); err != nil {
		respondError(w, http.StatusNotFound, "Share not found")
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

	share, err := s.db.GetShareByToken(ctx, shareToken)
	if err != nil {
		if errors.Is(err, db.ErrShareNotFound) {
			respondError(w, http.StatusNotFound, "Share not found")
			return
		}
		log.Error("Failed to get share", "error", err)
		respondError(w, http.StatusInternalServerError, "Failed to create note")
		return
	}

	session, err := s.db.GetSession(ctx, share.SessionID)
	if err != nil {
		log.Error("Failed to get shared session", "error", err)
		respondError(w, http.StatusInternalServerError, "Failed to create note")
		return
	}

	viewer, err := s.db.GetUserByID(ctx, userID)
	if err != nil {
		log.Error("Failed to load viewer", "error", err)
		respondError(w, http.StatusInternalServerError, "Failed to create note")
		return
	}

	grant, err := access.ValidateShare(share, session, viewer, time.Now().UTC())
	if err != nil {
		switch {
		case errors.Is(err, access.ErrShareExpired):
			respondError(w, http.StatusGone, "Share link has expired")
		case errors.Is(err, access.ErrNotRecipient):
			respondError(w, http.StatusForbidden, "This share is restricted to another recipient")
		default:
			log.Error("Share validation failed", "error", err)
			respondError(w, http.StatusInternalServerError, "Failed to create note")
		}
		return
	}
	if !grant.CanAddNotes {
		respondError(w, http.StatusForbidden, "This share does not allow adding notes")
		return
	}

	role := access.RoleViewer
	if session.UserID != nil && *session.UserID == userID {
		role = access.RoleOwner
	}
	if req.IsPrivate && !access.CanCreatePrivateNote(role) {
		respondError(w, http.StatusForbidden, "Only the assigned counselor may create private notes")
		return
	}

	note, err := s.db.CreateNote(ctx, session.ID, userID, access.NoteAuthorRole(role), req.Content, req.IsPrivate)
	if err != nil {
		log.Error("Failed to create note", "error", err)
		respondError(w, http.StatusInternalServerError, "Failed to create note")
		return
	}

	respondJSON(w, http.StatusCreated, note)
}

// handleListAccessedShares returns the caller's shared-with-me inbox:
// shares they have opened and not dismissed, most recently used first.
// Revoked shares drop out automatically.
func (s *Server) handleListAccessedShares(w http.ResponseWriter, r *http.Request) {
	log := logger.Ctx(r.Context())
	userID, _ := auth.GetUserID(r.Context())

	ctx, cancel := context.WithTimeout(r.Context(), DatabaseTimeout)
	defer cancel()

	shares, err := s.db.ListAccessedShares(ctx, userID)
	if err != nil {
		log.Error("Failed to list accessed shares", "error", err)
		respondError(w, http.StatusInternalServerError, "Failed to list shared sessions")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"shares": shares,
	})
}

// handleDismissShareAccess hides a share from the caller's inbox without
// affecting the share itself
func (s *Server) handleDismissShareAccess(w http.ResponseWriter, r *http.Request) {
	log := logger.Ctx(r.Context())
	userID, _ := auth.GetUserID(r.Context())

	shareID, err := strconv.ParseInt(chi.URLParam(r, "shareID"), 10, 64)
	if err != nil {
		respondError(w, http.StatusNotFound, "Share not found")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), DatabaseTimeout)
	defer cancel()

	if err := s.db.DismissShareAccess(ctx, shareID, userID); err != nil {
		if errors.Is(err, db.ErrShareAccessNotFound) {
			respondError(w, http.StatusNotFound, "Share not found")
			return
		}
		log.Error("Failed to dismiss share", "error", err)
		respondError(w, http.StatusInternalServerError, "Failed to dismiss share")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// viewerFromContext loads the authenticated user, or nil for anonymous
// requests
func (s *Server) viewerFromContext(ctx context.Context, r *http.Request) (*models.User, error) {
	userID, ok := auth.GetUserID(r.Context())
	if !ok {
		return nil, nil
	}
	return s.db.GetUserByID(ctx, userID)
}
