package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/GracePathHQ/gracepath-web/internal/auth"
	"github.com/GracePathHQ/gracepath-web/internal/db"
	"github.com/GracePathHQ/gracepath-web/internal/logger"
)

type createAssignmentRequest struct {
	OrgID       int64 `json:"org_id"`
	CounselorID int64 `json:"counselor_id"`
	MemberID    int64 `json:"member_id"`
}

// handleCreateAssignment creates an active counselor assignment. At most one
// active assignment may exist per (org, counselor, member); a duplicate is a
// conflict, not an upsert.
func (s *Server) handleCreateAssignment(w http.ResponseWriter, r *http.Request) {
	log := logger.Ctx(r.Context())

	var req createAssignmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.OrgID <= 0 || req.CounselorID <= 0 || req.MemberID <= 0 {
		respondError(w, http.StatusBadRequest, "org_id, counselor_id, and member_id are required")
		return
	}
	if req.CounselorID == req.MemberID {
		respondError(w, http.StatusBadRequest, "A counselor cannot be assigned to themselves")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), DatabaseTimeout)
	defer cancel()

	assignment, err := s.db.CreateAssignment(ctx, req.OrgID, req.CounselorID, req.MemberID)
	if err != nil {
		if errors.Is(err, db.ErrAssignmentExists) {
			respondError(w, http.StatusConflict, "An active assignment already exists for this pair")
			return
		}
		log.Error("Failed to create assignment", "error", err)
		respondError(w, http.StatusInternalServerError, "Failed to create assignment")
		return
	}

	respondJSON(w, http.StatusCreated, assignment)
}

// handleDeactivateAssignment ends an assignment. The row stays for history;
// access ends immediately.
func (s *Server) handleDeactivateAssignment(w http.ResponseWriter, r *http.Request) {
	log := logger.Ctx(r.Context())

	assignmentID, err := strconv.ParseInt(chi.URLParam(r, "assignmentID"), 10, 64)
	if err != nil {
		respondError(w, http.StatusNotFound, "Assignment not found")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), DatabaseTimeout)
	defer cancel()

	if err := s.db.DeactivateAssignment(ctx, assignmentID); err != nil {
		if errors.Is(err, db.ErrAssignmentNotFound) {
			respondError(w, http.StatusNotFound, "Assignment not found")
			return
		}
		log.Error("Failed to deactivate assignment", "error", err)
		respondError(w, http.StatusInternalServerError, "Failed to deactivate assignment")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleListCounselorMembers lists the members the caller is actively
// assigned to counsel
func (s *Server) handleListCounselorMembers(w http.ResponseWriter, r *http.Request) {
	log := logger.Ctx(r.Context())
	userID, _ := auth.GetUserID(r.Context())

	ctx, cancel := context.WithTimeout(r.Context(), DatabaseTimeout)
	defer cancel()

	members, err := s.db.ListCounselorMembers(ctx, userID)
	if err != nil {
		log.Error("Failed to list members", "error", err)
		respondError(w, http.StatusInternalServerError, "Failed to list members")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"members": members,
	})
}

type createCoverageRequest struct {
	CounselorID   int64 `json:"counselor_id"`
	MemberID      int64 `json:"member_id"`
	ExpiresInDays *int  `json:"expires_in_days,omitempty"`
}

// handleCreateCoverageGrant delegates temporary coverage of one of the
// caller's members to another counselor. Only a counselor actively assigned
// to the member may delegate.
func (s *Server) handleCreateCoverageGrant(w http.ResponseWriter, r *http.Request) {
	log := logger.Ctx(r.Context())
	userID, _ := auth.GetUserID(r.Context())

	var req createCoverageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.CounselorID <= 0 || req.MemberID <= 0 {
		respondError(w, http.StatusBadRequest, "counselor_id and member_id are required")
		return
	}
	if req.CounselorID == userID {
		respondError(w, http.StatusBadRequest, "You cannot grant coverage to yourself")
		return
	}

	var expiresAt *time.Time
	if req.ExpiresInDays != nil {
		if *req.ExpiresInDays < 1 {
			respondError(w, http.StatusBadRequest, "expires_in_days must be positive")
			return
		}
		expires := time.Now().UTC().AddDate(0, 0, *req.ExpiresInDays)
		expiresAt = &expires
	}

	ctx, cancel := context.WithTimeout(r.Context(), DatabaseTimeout)
	defer cancel()

	if _, err := s.db.GetActiveAssignment(ctx, userID, req.MemberID); err != nil {
		if errors.Is(err, db.ErrAssignmentNotFound) {
			respondError(w, http.StatusForbidden, "You are not assigned to this member")
			return
		}
		log.Error("Failed to check assignment", "error", err)
		respondError(w, http.StatusInternalServerError, "Failed to create coverage grant")
		return
	}

	grant, err := s.db.CreateCoverageGrant(ctx, req.CounselorID, req.MemberID, expiresAt)
	if err != nil {
		log.Error("Failed to create coverage grant", "error", err)
		respondError(w, http.StatusInternalServerError, "Failed to create coverage grant")
		return
	}

	respondJSON(w, http.StatusCreated, grant)
}

// handleRevokeCoverageGrant revokes a coverage grant. Only the delegating
// counselor (still assigned to the member) may revoke it.
func (s *Server) handleRevokeCoverageGrant(w http.ResponseWriter, r *http.Request) {
	log := logger.Ctx(r.Context())
	userID, _ := auth.GetUserID(r.Context())

	grantID, err := strconv.ParseInt(chi.URLParam(r, "grantID"), 10, 64)
	if err != nil {
		respondError(w, http.StatusNotFound, "Grant not found")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), DatabaseTimeout)
	defer cancel()

	grant, err := s.db.GetCoverageGrant(ctx, grantID)
	if err != nil {
		if errors.Is(err, db.ErrGrantNotFound) {
			respondError(w, http.StatusNotFound, "Grant not found")
			return
		}
		log.Error("Failed to get coverage grant", "error", err)
		respondError(w, http.StatusInternalServerError, "Failed to revoke grant")
		return
	}

	if _, err := s.db.GetActiveAssignment(ctx, userID, grant.MemberID); err != nil {
		if errors.Is(err, db.ErrAssignmentNotFound) {
			respondError(w, http.StatusNotFound, "Grant not found")
			return
		}
		log.Error("Failed to check assignment", "error", err)
		respondError(w, http.StatusInternalServerError, "Failed to revoke grant")
		return
	}

	if err := s.db.RevokeCoverageGrant(ctx, grantID); err != nil {
		if errors.Is(err, db.ErrGrantNotFound) {
			respondError(w, http.StatusNotFound, "Grant not found")
			return
		}
		log.Error("Failed to revoke coverage grant", "error", err)
		respondError(w, http.StatusInternalServerError, "Failed to revoke grant")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
