// Package access contains the pure authorization decisions for sessions,
// notes, and share links. Every function here takes already-loaded rows and
// returns a decision; nothing in this package touches the database, which
// keeps the rules unit-testable without fixtures.
package access

import (
	"errors"
	"strings"
	"time"

	"github.com/GracePathHQ/gracepath-web/internal/models"
)

var (
	ErrForbidden    = errors.New("forbidden")
	ErrShareExpired = errors.New("share expired")
	ErrNotRecipient = errors.New("share restricted to another recipient")
)

// Role is a viewer's resolved relationship to a session. Resolve it once per
// request and thread it through note and share decisions instead of
// re-querying the relationship tables at every check.
type Role int

const (
	RoleNone Role = iota
	RoleViewer
	RoleCoverage
	RoleAssigned
	RoleOwner
)

func (r Role) String() string {
	switch r {
	case RoleOwner:
		return "owner"
	case RoleAssigned:
		return "assigned"
	case RoleCoverage:
		return "coverage"
	case RoleViewer:
		return "viewer"
	default:
		return "none"
	}
}

// ResolveRole computes the viewer's role for a session. Precedence: ownership
// beats assignment, and an active assignment makes any coverage grant a no-op
// so a counselor never acts under weaker coverage rules while assigned.
// hasShareAccess means the viewer holds a validated share for this session.
func ResolveRole(session *models.Session, viewerID *int64, hasActiveAssignment, hasValidGrant, hasShareAccess bool) Role {
	if viewerID == nil {
		return RoleNone
	}
	if session.UserID != nil && *session.UserID == *viewerID {
		return RoleOwner
	}
	if hasActiveAssignment {
		return RoleAssigned
	}
	if hasValidGrant {
		return RoleCoverage
	}
	if hasShareAccess {
		return RoleViewer
	}
	return RoleNone
}

// CanViewSession reports whether the role confers read access at all
func CanViewSession(role Role) bool {
	return role != RoleNone
}

// FilterNotes returns the notes visible to a viewer with the given role.
// Private notes reach only the session owner and the assigned counselor.
// Coverage counselors never see them, including ones they authored
// themselves while previously assigned, and neither do share viewers.
// The caller decides separately whether the viewer may see notes at all.
func FilterNotes(notes []models.SessionNote, role Role) []models.SessionNote {
	if role == RoleOwner || role == RoleAssigned {
		return notes
	}
	filtered := make([]models.SessionNote, 0, len(notes))
	for _, n := range notes {
		if n.IsPrivate {
			continue
		}
		filtered = append(filtered, n)
	}
	return filtered
}

// NoteAuthorRole derives the role stamped on a new note from the author's
// resolved session role. Coverage counselors and share viewers both write as
// "viewer"; only a standing assignment earns the counselor label.
func NoteAuthorRole(role Role) models.NoteAuthorRole {
	switch role {
	case RoleAssigned:
		return models.NoteRoleCounselor
	case RoleOwner:
		return models.NoteRoleUser
	default:
		return models.NoteRoleViewer
	}
}

// CanCreateNote reports whether the role may add a note to the session.
// shareAllowsNotes applies only to share viewers.
func CanCreateNote(role Role, shareAllowsNotes bool) bool {
	switch role {
	case RoleOwner, RoleAssigned, RoleCoverage:
		return true
	case RoleViewer:
		return shareAllowsNotes
	default:
		return false
	}
}

// CanCreatePrivateNote restricts private notes to the assigned counselor.
// A coverage counselor asking for isPrivate=true is an error, not a silent
// downgrade to public.
func CanCreatePrivateNote(role Role) bool {
	return role == RoleAssigned
}

// CanMutateNote reports whether the actor may edit or delete a note.
// Author-only, with no counselor exception.
func CanMutateNote(note *models.SessionNote, actorID int64) bool {
	return note.AuthorID == actorID
}

// CanChangeNotePrivacy reports whether the actor may flip an existing note's
// isPrivate flag. The note's author may, and so may the assigned counselor.
func CanChangeNotePrivacy(note *models.SessionNote, actorID int64, role Role) bool {
	return note.AuthorID == actorID || role == RoleAssigned
}

// CanCreateShare restricts share creation to the session owner. The paid
// entitlement check is a separate collaborator consult, not re-derived here.
func CanCreateShare(session *models.Session, actorID int64) bool {
	return session.UserID != nil && *session.UserID == actorID
}

// CanRevokeShare allows the share's creator or the session owner to revoke
func CanRevokeShare(share *models.SessionShare, session *models.Session, actorID int64) bool {
	if share.CreatorID == actorID {
		return true
	}
	return session.UserID != nil && *session.UserID == actorID
}

// ShareGrant is the outcome of a successful share validation
type ShareGrant struct {
	CanView     bool `json:"can_view"`
	CanAddNotes bool `json:"can_add_notes"`
}

// ValidateShare checks a resolved share against the requesting viewer.
// Expiry is checked first and wins over everything else; then the optional
// single-recipient restriction. On success viewing is always granted, and
// note access follows allowNotesAccess (the session owner always has it).
func ValidateShare(share *models.SessionShare, session *models.Session, viewer *models.User, now time.Time) (*ShareGrant, error) {
	if share.Expired(now) {
		return nil, ErrShareExpired
	}

	isOwner := viewer != nil && session.UserID != nil && *session.UserID == viewer.ID

	if !isOwner && (share.RecipientUserID != nil || share.RecipientEmail != nil) {
		if viewer == nil {
			return nil, ErrNotRecipient
		}
		if !matchesRecipient(share, viewer) {
			return nil, ErrNotRecipient
		}
	}

	return &ShareGrant{
		CanView:     true,
		CanAddNotes: isOwner || share.AllowNotesAccess,
	}, nil
}

func matchesRecipient(share *models.SessionShare, viewer *models.User) bool {
	if share.RecipientUserID != nil && *share.RecipientUserID == viewer.ID {
		return true
	}
	if share.RecipientEmail != nil && strings.EqualFold(*share.RecipientEmail, viewer.Email) {
		return true
	}
	return false
}
