package testutil

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/GracePathHQ/gracepath-web/internal/models"
)

// CreateTestUser creates a user in the database for testing
func CreateTestUser(t *testing.T, env *TestEnvironment, email, name string) *models.User {
	t.Helper()

	query := `
		INSERT INTO users (email, name, email_verified, created_at, updated_at)
		VALUES ($1, $2, TRUE, NOW(), NOW())
		RETURNING id, email, name, email_verified, created_at, updated_at
	`

	var user models.User
	row := env.DB.QueryRow(env.Ctx, query, email, name)
	err := row.Scan(&user.ID, &user.Email, &user.Name, &user.EmailVerified, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		t.Fatalf("failed to create test user: %v", err)
	}

	return &user
}

// CreateTestUnverifiedUser creates a user whose email is not yet verified
func CreateTestUnverifiedUser(t *testing.T, env *TestEnvironment, email, name string) *models.User {
	t.Helper()

	query := `
		INSERT INTO users (email, name, email_verified, created_at, updated_at)
		VALUES ($1, $2, FALSE, NOW(), NOW())
		RETURNING id, email, name, email_verified, created_at, updated_at
	`

	var user models.User
	row := env.DB.QueryRow(env.Ctx, query, email, name)
	err := row.Scan(&user.ID, &user.Email, &user.Name, &user.EmailVerified, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		t.Fatalf("failed to create test user: %v", err)
	}

	return &user
}

// CreateTestWebSession creates a web session in the database for testing
func CreateTestWebSession(t *testing.T, env *TestEnvironment, sessionID string, userID int64, expiresAt time.Time) {
	t.Helper()

	query := `
		INSERT INTO web_sessions (id, user_id, expires_at, created_at)
		VALUES ($1, $2, $3, NOW())
	`

	_, err := env.DB.Exec(env.Ctx, query, sessionID, userID, expiresAt)
	if err != nil {
		t.Fatalf("failed to create test web session: %v", err)
	}
}

// CreateTestWebSessionWithToken creates a web session and returns the session token.
// This is useful for tests that need to make session-authenticated requests.
func CreateTestWebSessionWithToken(t *testing.T, env *TestEnvironment, userID int64) string {
	t.Helper()

	sessionID := fmt.Sprintf("test-session-%d-%d", userID, time.Now().UnixNano())

	expiresAt := time.Now().UTC().Add(24 * time.Hour)
	CreateTestWebSession(t, env, sessionID, userID, expiresAt)

	return sessionID
}

// CreateTestSession creates a counseling session row for testing.
// userID may be nil for an anonymous session. Returns the session UUID.
func CreateTestSession(t *testing.T, env *TestEnvironment, userID *int64, title string) string {
	t.Helper()

	sessionID := uuid.New().String()

	query := `
		INSERT INTO sessions (id, user_id, title, status)
		VALUES ($1, $2, $3, 'active')
	`

	_, err := env.DB.Exec(env.Ctx, query, sessionID, userID, title)
	if err != nil {
		t.Fatalf("failed to create test session: %v", err)
	}

	return sessionID
}

// CompleteTestSession marks a session completed directly in the database
func CompleteTestSession(t *testing.T, env *TestEnvironment, sessionID string) {
	t.Helper()

	_, err := env.DB.Exec(env.Ctx,
		`UPDATE sessions SET status = 'completed', updated_at = NOW() WHERE id = $1`, sessionID)
	if err != nil {
		t.Fatalf("failed to complete test session: %v", err)
	}
}

// AppendTestMessage inserts a message row for testing. Returns the message UUID.
func AppendTestMessage(t *testing.T, env *TestEnvironment, sessionID, role, content string) string {
	t.Helper()

	messageID := uuid.New().String()

	query := `
		INSERT INTO messages (id, session_id, role, content)
		VALUES ($1, $2, $3, $4)
	`

	_, err := env.DB.Exec(env.Ctx, query, messageID, sessionID, role, content)
	if err != nil {
		t.Fatalf("failed to create test message: %v", err)
	}

	return messageID
}

// CreateTestNote inserts a session note for testing. Returns the note ID.
func CreateTestNote(t *testing.T, env *TestEnvironment, sessionID string, authorID int64, authorRole, content string, isPrivate bool) int64 {
	t.Helper()

	query := `
		INSERT INTO session_notes (session_id, author_id, author_role, content, is_private)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`

	var id int64
	row := env.DB.QueryRow(env.Ctx, query, sessionID, authorID, authorRole, content, isPrivate)
	if err := row.Scan(&id); err != nil {
		t.Fatalf("failed to create test note: %v", err)
	}

	return id
}

// CreateTestShare inserts a share row for testing. Returns the share ID.
func CreateTestShare(t *testing.T, env *TestEnvironment, sessionID, shareToken string, creatorID int64, recipientEmail *string, allowNotes bool, expiresAt *time.Time) int64 {
	t.Helper()

	query := `
		INSERT INTO session_shares (session_id, share_token, creator_id, recipient_email, allow_notes_access, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`

	var id int64
	row := env.DB.QueryRow(env.Ctx, query, sessionID, shareToken, creatorID, recipientEmail, allowNotes, expiresAt)
	if err := row.Scan(&id); err != nil {
		t.Fatalf("failed to create test share: %v", err)
	}

	return id
}

// CreateTestAssignment inserts an active counselor assignment. Returns its ID.
func CreateTestAssignment(t *testing.T, env *TestEnvironment, orgID, counselorID, memberID int64) int64 {
	t.Helper()

	query := `
		INSERT INTO counselor_assignments (org_id, counselor_id, member_id, status)
		VALUES ($1, $2, $3, 'active')
		RETURNING id
	`

	var id int64
	row := env.DB.QueryRow(env.Ctx, query, orgID, counselorID, memberID)
	if err := row.Scan(&id); err != nil {
		t.Fatalf("failed to create test assignment: %v", err)
	}

	return id
}

// CreateTestCoverageGrant inserts a coverage grant. Returns its ID.
func CreateTestCoverageGrant(t *testing.T, env *TestEnvironment, counselorID, memberID int64, expiresAt *time.Time) int64 {
	t.Helper()

	query := `
		INSERT INTO counselor_coverage_grants (counselor_id, member_id, expires_at)
		VALUES ($1, $2, $3)
		RETURNING id
	`

	var id int64
	row := env.DB.QueryRow(env.Ctx, query, counselorID, memberID, expiresAt)
	if err := row.Scan(&id); err != nil {
		t.Fatalf("failed to create test coverage grant: %v", err)
	}

	return id
}

// CreateTestSubscription inserts an active subscription for a user
func CreateTestSubscription(t *testing.T, env *TestEnvironment, userID int64, plan string) {
	t.Helper()

	periodEnd := time.Now().UTC().Add(30 * 24 * time.Hour)
	query := `
		INSERT INTO subscriptions (user_id, plan, status, current_period_end)
		VALUES ($1, $2, 'active', $3)
	`

	if _, err := env.DB.Exec(env.Ctx, query, userID, plan, periodEnd); err != nil {
		t.Fatalf("failed to create test subscription: %v", err)
	}
}

// GenerateShareToken generates a random share token for testing (32 hex chars)
func GenerateShareToken() string {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		panic(err) // In tests, panic is acceptable for crypto failures
	}
	return hex.EncodeToString(bytes)
}
