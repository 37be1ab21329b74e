package access

import (
	"testing"
	"time"

	"github.com/GracePathHQ/gracepath-web/internal/models"
)

func int64Ptr(v int64) *int64 { return &v }

func strPtr(s string) *string { return &s }

func TestResolveRole(t *testing.T) {
	owned := &models.Session{ID: "s1", UserID: int64Ptr(10)}
	anonymous := &models.Session{ID: "s2"}

	tests := []struct {
		name          string
		session       *models.Session
		viewerID      *int64
		hasAssignment bool
		hasGrant      bool
		hasShare      bool
		want          Role
	}{
		{"owner", owned, int64Ptr(10), false, false, false, RoleOwner},
		{"owner beats assignment", owned, int64Ptr(10), true, true, true, RoleOwner},
		{"assigned counselor", owned, int64Ptr(20), true, false, false, RoleAssigned},
		{"assignment beats coverage grant", owned, int64Ptr(20), true, true, false, RoleAssigned},
		{"coverage counselor", owned, int64Ptr(20), false, true, false, RoleCoverage},
		{"share viewer", owned, int64Ptr(30), false, false, true, RoleViewer},
		{"stranger", owned, int64Ptr(30), false, false, false, RoleNone},
		{"unauthenticated", owned, nil, false, false, false, RoleNone},
		{"anonymous session has no owner", anonymous, int64Ptr(10), false, false, false, RoleNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ResolveRole(tt.session, tt.viewerID, tt.hasAssignment, tt.hasGrant, tt.hasShare)
			if got != tt.want {
				t.Errorf("ResolveRole() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFilterNotesCoverageExcludesPrivate(t *testing.T) {
	notes := []models.SessionNote{
		{ID: 1, AuthorID: 20, IsPrivate: false},
		{ID: 2, AuthorID: 20, IsPrivate: true},
		{ID: 3, AuthorID: 99, IsPrivate: true},
		{ID: 4, AuthorID: 10, IsPrivate: false},
	}

	filtered := FilterNotes(notes, RoleCoverage)
	if len(filtered) != 2 {
		t.Fatalf("expected 2 visible notes, got %d", len(filtered))
	}
	for _, n := range filtered {
		if n.IsPrivate {
			t.Errorf("private note %d leaked to coverage counselor", n.ID)
		}
	}

	// Note 2 belongs to author 20; even when author 20 is the coverage
	// counselor, their own private note stays hidden.
	for _, n := range filtered {
		if n.ID == 2 {
			t.Error("coverage counselor saw their own private note")
		}
	}
}

func TestFilterNotesOwnerAndAssignedSeeEverything(t *testing.T) {
	notes := []models.SessionNote{
		{ID: 1, IsPrivate: false},
		{ID: 2, IsPrivate: true},
	}

	for _, role := range []Role{RoleOwner, RoleAssigned} {
		filtered := FilterNotes(notes, role)
		if len(filtered) != 2 {
			t.Errorf("role %v: expected 2 notes, got %d", role, len(filtered))
		}
	}
}

func TestFilterNotesViewerExcludesPrivate(t *testing.T) {
	notes := []models.SessionNote{
		{ID: 1, IsPrivate: false},
		{ID: 2, IsPrivate: true},
	}

	for _, role := range []Role{RoleViewer, RoleNone} {
		filtered := FilterNotes(notes, role)
		if len(filtered) != 1 {
			t.Fatalf("role %v: expected 1 note, got %d", role, len(filtered))
		}
		if filtered[0].IsPrivate {
			t.Errorf("role %v: private note leaked", role)
		}
	}
}

func TestNoteAuthorRole(t *testing.T) {
	tests := []struct {
		role Role
		want models.NoteAuthorRole
	}{
		{RoleAssigned, models.NoteRoleCounselor},
		{RoleOwner, models.NoteRoleUser},
		{RoleCoverage, models.NoteRoleViewer},
		{RoleViewer, models.NoteRoleViewer},
	}

	for _, tt := range tests {
		if got := NoteAuthorRole(tt.role); got != tt.want {
			t.Errorf("NoteAuthorRole(%v) = %v, want %v", tt.role, got, tt.want)
		}
	}
}

func TestCanCreatePrivateNote(t *testing.T) {
	if !CanCreatePrivateNote(RoleAssigned) {
		t.Error("assigned counselor should be able to create private notes")
	}
	for _, role := range []Role{RoleCoverage, RoleOwner, RoleViewer, RoleNone} {
		if CanCreatePrivateNote(role) {
			t.Errorf("role %v should not be able to create private notes", role)
		}
	}
}

func TestCanCreateNote(t *testing.T) {
	if CanCreateNote(RoleViewer, false) {
		t.Error("share viewer without notes access should be denied")
	}
	if !CanCreateNote(RoleViewer, true) {
		t.Error("share viewer with notes access should be allowed")
	}
	if !CanCreateNote(RoleCoverage, false) {
		t.Error("coverage counselor should be allowed to add public notes")
	}
	if CanCreateNote(RoleNone, true) {
		t.Error("no role should never create notes")
	}
}

func TestCanMutateNoteAuthorOnly(t *testing.T) {
	note := &models.SessionNote{ID: 1, AuthorID: 20}

	if !CanMutateNote(note, 20) {
		t.Error("author should be able to mutate their note")
	}
	if CanMutateNote(note, 10) {
		t.Error("session owner should not mutate someone else's note")
	}
}

func TestCanChangeNotePrivacy(t *testing.T) {
	note := &models.SessionNote{ID: 1, AuthorID: 20}

	if !CanChangeNotePrivacy(note, 20, RoleViewer) {
		t.Error("author should be able to change privacy")
	}
	if !CanChangeNotePrivacy(note, 30, RoleAssigned) {
		t.Error("assigned counselor should be able to change privacy")
	}
	if CanChangeNotePrivacy(note, 30, RoleCoverage) {
		t.Error("coverage counselor should not change someone else's note privacy")
	}
}

func TestValidateShareExpiry(t *testing.T) {
	now := time.Now()
	justExpired := now.Add(-time.Second)
	session := &models.Session{ID: "s1", UserID: int64Ptr(10)}
	viewer := &models.User{ID: 30, Email: "viewer@example.com"}

	share := &models.SessionShare{
		ID:        1,
		SessionID: "s1",
		CreatorID: 10,
		ExpiresAt: &justExpired,
	}

	if _, err := ValidateShare(share, session, viewer, now); err != ErrShareExpired {
		t.Errorf("expected ErrShareExpired, got %v", err)
	}

	// Expiry wins even for the owner
	owner := &models.User{ID: 10, Email: "owner@example.com"}
	if _, err := ValidateShare(share, session, owner, now); err != ErrShareExpired {
		t.Errorf("expected ErrShareExpired for owner, got %v", err)
	}
}

func TestValidateShareRecipientRestriction(t *testing.T) {
	now := time.Now()
	session := &models.Session{ID: "s1", UserID: int64Ptr(10)}

	share := &models.SessionShare{
		ID:             1,
		SessionID:      "s1",
		CreatorID:      10,
		RecipientEmail: strPtr("Friend@Example.com"),
	}

	// Matching email, case-insensitive
	friend := &models.User{ID: 30, Email: "friend@example.com"}
	grant, err := ValidateShare(share, session, friend, now)
	if err != nil {
		t.Fatalf("recipient should validate: %v", err)
	}
	if !grant.CanView {
		t.Error("recipient should get canView")
	}
	if grant.CanAddNotes {
		t.Error("canAddNotes should be false without allowNotesAccess")
	}

	// Someone else
	stranger := &models.User{ID: 40, Email: "other@example.com"}
	if _, err := ValidateShare(share, session, stranger, now); err != ErrNotRecipient {
		t.Errorf("expected ErrNotRecipient, got %v", err)
	}

	// Unauthenticated
	if _, err := ValidateShare(share, session, nil, now); err != ErrNotRecipient {
		t.Errorf("expected ErrNotRecipient for anonymous viewer, got %v", err)
	}

	// The owner bypasses the recipient restriction
	owner := &models.User{ID: 10, Email: "owner@example.com"}
	grant, err = ValidateShare(share, session, owner, now)
	if err != nil {
		t.Fatalf("owner should validate: %v", err)
	}
	if !grant.CanAddNotes {
		t.Error("owner always gets canAddNotes")
	}
}

func TestValidateShareRecipientUserID(t *testing.T) {
	now := time.Now()
	session := &models.Session{ID: "s1", UserID: int64Ptr(10)}
	share := &models.SessionShare{
		ID:              1,
		SessionID:       "s1",
		CreatorID:       10,
		RecipientUserID: int64Ptr(30),
	}

	match := &models.User{ID: 30, Email: "x@example.com"}
	if _, err := ValidateShare(share, session, match, now); err != nil {
		t.Errorf("recipient user id should validate: %v", err)
	}

	other := &models.User{ID: 31, Email: "y@example.com"}
	if _, err := ValidateShare(share, session, other, now); err != ErrNotRecipient {
		t.Errorf("expected ErrNotRecipient, got %v", err)
	}
}

func TestValidateShareNotesAccess(t *testing.T) {
	now := time.Now()
	session := &models.Session{ID: "s1", UserID: int64Ptr(10)}
	viewer := &models.User{ID: 30, Email: "v@example.com"}

	share := &models.SessionShare{ID: 1, SessionID: "s1", CreatorID: 10, AllowNotesAccess: true}
	grant, err := ValidateShare(share, session, viewer, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !grant.CanView || !grant.CanAddNotes {
		t.Errorf("expected full grant, got %+v", grant)
	}
}

func TestCanRevokeShare(t *testing.T) {
	session := &models.Session{ID: "s1", UserID: int64Ptr(10)}
	share := &models.SessionShare{ID: 1, SessionID: "s1", CreatorID: 10}

	if !CanRevokeShare(share, session, 10) {
		t.Error("creator/owner should revoke")
	}
	if CanRevokeShare(share, session, 30) {
		t.Error("unrelated user should not revoke")
	}

	// Creator differs from owner (e.g. created before ownership transfer)
	share2 := &models.SessionShare{ID: 2, SessionID: "s1", CreatorID: 20}
	if !CanRevokeShare(share2, session, 20) {
		t.Error("creator should revoke")
	}
	if !CanRevokeShare(share2, session, 10) {
		t.Error("session owner should revoke")
	}
}

func TestCanCreateShare(t *testing.T) {
	session := &models.Session{ID: "s1", UserID: int64Ptr(10)}
	if !CanCreateShare(session, 10) {
		t.Error("owner should create shares")
	}
	if CanCreateShare(session, 20) {
		t.Error("non-owner should not create shares")
	}

	anonymous := &models.Session{ID: "s2"}
	if CanCreateShare(anonymous, 10) {
		t.Error("anonymous sessions cannot be shared")
	}
}
