package api

import (
	"context"
	"errors"

	"github.com/GracePathHQ/gracepath-web/internal/access"
	"github.com/GracePathHQ/gracepath-web/internal/db"
	"github.com/GracePathHQ/gracepath-web/internal/models"
)

// resolveRole computes the viewer's role for a session from the relationship
// tables. Share-based viewer access is resolved on the /shared routes, not
// here, so hasShareAccess is always false for the session routes.
func (s *Server) resolveRole(ctx context.Context, session *models.Session, viewerID int64) (access.Role, error) {
	if session.UserID != nil && *session.UserID == viewerID {
		return access.RoleOwner, nil
	}

	// Anonymous sessions have no owner, so no counselor relationships exist
	if session.UserID == nil {
		return access.RoleNone, nil
	}

	hasAssignment := false
	if _, err := s.db.GetActiveAssignment(ctx, viewerID, *session.UserID); err == nil {
		hasAssignment = true
	} else if !errors.Is(err, db.ErrAssignmentNotFound) {
		return access.RoleNone, err
	}

	hasGrant := false
	if !hasAssignment {
		if _, err := s.db.GetValidCoverageGrant(ctx, viewerID, *session.UserID); err == nil {
			hasGrant = true
		} else if !errors.Is(err, db.ErrGrantNotFound) {
			return access.RoleNone, err
		}
	}

	return access.ResolveRole(session, &viewerID, hasAssignment, hasGrant, false), nil
}
