package models

import "time"

// User represents a GracePath account
type User struct {
	ID            int64     `json:"id"`
	Email         string    `json:"email"`
	Name          *string   `json:"name,omitempty"`
	EmailVerified bool      `json:"email_verified"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// WebSession represents a browser session (cookie-based auth)
type WebSession struct {
	ID        string    `json:"id"`
	UserID    int64     `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// SessionStatus is the lifecycle state of a counseling session
type SessionStatus string

const (
	SessionStatusActive    SessionStatus = "active"
	SessionStatusCompleted SessionStatus = "completed"
)

// MessageRole identifies who authored a message in a session
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleSystem    MessageRole = "system"
)

// Session represents one counseling conversation.
// UserID is nil for anonymous sessions.
type Session struct {
	ID        string        `json:"id"` // UUID primary key
	UserID    *int64        `json:"user_id,omitempty"`
	Title     string        `json:"title"`
	Status    SessionStatus `json:"status"`
	Messages  []Message     `json:"messages,omitempty"` // ordered by created_at ascending
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// Message is a single turn entry in a session. Immutable once created.
type Message struct {
	ID                  string               `json:"id"` // UUID
	SessionID           string               `json:"session_id"`
	Role                MessageRole          `json:"role"`
	Content             string               `json:"content"`
	ScriptureReferences []ScriptureReference `json:"scripture_references"`
	CreatedAt           time.Time            `json:"created_at"`
}

// ScriptureReference is a value object citing a verse or verse range.
// It is stored inline with its message, never persisted independently.
type ScriptureReference struct {
	Book        string `json:"book"`
	Chapter     int    `json:"chapter"`
	VerseStart  int    `json:"verse_start"`
	VerseEnd    *int   `json:"verse_end,omitempty"`
	Translation string `json:"translation"`
	Text        string `json:"text"`
}

// NoteAuthorRole is derived server-side at note creation, never client-supplied
type NoteAuthorRole string

const (
	NoteRoleCounselor NoteAuthorRole = "counselor"
	NoteRoleUser      NoteAuthorRole = "user"
	NoteRoleViewer    NoteAuthorRole = "viewer"
)

// SessionNote is an annotation on a session. Only its author may mutate it.
type SessionNote struct {
	ID         int64          `json:"id"`
	SessionID  string         `json:"session_id"`
	AuthorID   int64          `json:"author_id"`
	AuthorName string         `json:"author_name"`
	AuthorRole NoteAuthorRole `json:"author_role"`
	Content    string         `json:"content"`
	IsPrivate  bool           `json:"is_private"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// AssignmentStatus is the lifecycle state of a counselor assignment
type AssignmentStatus string

const (
	AssignmentActive   AssignmentStatus = "active"
	AssignmentInactive AssignmentStatus = "inactive"
)

// CounselorAssignment is a standing, org-scoped counselor/member relationship.
// At most one active row may exist per (org, counselor, member) triple.
type CounselorAssignment struct {
	ID          int64            `json:"id"`
	OrgID       int64            `json:"org_id"`
	CounselorID int64            `json:"counselor_id"`
	MemberID    int64            `json:"member_id"`
	Status      AssignmentStatus `json:"status"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

// CounselorCoverageGrant is a temporary delegation of counselor access.
// Valid iff RevokedAt is unset and (ExpiresAt unset or >= now).
type CounselorCoverageGrant struct {
	ID          int64      `json:"id"`
	CounselorID int64      `json:"counselor_id"` // the backup counselor
	MemberID    int64      `json:"member_id"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	RevokedAt   *time.Time `json:"revoked_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// Valid reports whether the grant confers access at the given instant.
func (g *CounselorCoverageGrant) Valid(now time.Time) bool {
	if g.RevokedAt != nil {
		return false
	}
	if g.ExpiresAt != nil && g.ExpiresAt.Before(now) {
		return false
	}
	return true
}

// SessionShare grants read (and optionally note-write) access to a session
// via an unguessable token. Revocation hard-deletes the row.
type SessionShare struct {
	ID               int64      `json:"id"`
	SessionID        string     `json:"session_id"`
	ShareToken       string     `json:"share_token"`
	CreatorID        int64      `json:"creator_id"`
	RecipientEmail   *string    `json:"recipient_email,omitempty"` // single-recipient restriction
	RecipientUserID  *int64     `json:"recipient_user_id,omitempty"`
	AllowNotesAccess bool       `json:"allow_notes_access"`
	ExpiresAt        *time.Time `json:"expires_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}

// Expired reports whether the share's expiry has passed at the given instant.
func (s *SessionShare) Expired(now time.Time) bool {
	return s.ExpiresAt != nil && s.ExpiresAt.Before(now)
}

// SessionShareAccess tracks a non-owner viewer's use of a share.
// Dismissal is a per-viewer visibility toggle, independent of share validity.
type SessionShareAccess struct {
	ShareID        int64      `json:"share_id"`
	UserID         int64      `json:"user_id"`
	FirstAccessAt  time.Time  `json:"first_accessed_at"`
	LastAccessedAt time.Time  `json:"last_accessed_at"`
	IsDismissed    bool       `json:"is_dismissed"`
	DismissedAt    *time.Time `json:"dismissed_at,omitempty"`
}

// CrisisResource is one entry in the fixed crisis-support list returned
// on a crisis-flagged turn.
type CrisisResource struct {
	Name        string `json:"name"`
	Contact     string `json:"contact"`
	Description string `json:"description"`
}
