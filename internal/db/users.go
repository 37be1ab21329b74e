package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/GracePathHQ/gracepath-web/internal/models"
)

// GetUserByID retrieves a user by ID
func (db *DB) GetUserByID(ctx context.Context, userID int64) (*models.User, error) {
	query := `SELECT id, email, name, email_verified, created_at, updated_at FROM users WHERE id = $1`

	var user models.User
	err := db.conn.QueryRowContext(ctx, query, userID).Scan(
		&user.ID,
		&user.Email,
		&user.Name,
		&user.EmailVerified,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return &user, nil
}

// GetUserByEmail retrieves a user by email (case-insensitive).
// Used during share creation to resolve a recipient restriction.
func (db *DB) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT id, email, name, email_verified, created_at, updated_at
	          FROM users WHERE LOWER(email) = LOWER($1)`

	var user models.User
	err := db.conn.QueryRowContext(ctx, query, strings.TrimSpace(email)).Scan(
		&user.ID,
		&user.Email,
		&user.Name,
		&user.EmailVerified,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user by email: %w", err)
	}

	return &user, nil
}

// ResolveShareRecipient resolves the account a share's recipient email points
// at. Only an existing, email-verified account qualifies; a missing or
// unverified account is ErrRecipientNotRegistered so the caller can tell the
// sharer to invite the recipient first.
func (db *DB) ResolveShareRecipient(ctx context.Context, email string) (*models.User, error) {
	user, err := db.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrRecipientNotRegistered
		}
		return nil, err
	}
	if !user.EmailVerified {
		return nil, ErrRecipientNotRegistered
	}
	return user, nil
}

// CreateUser creates a user account with a bcrypt password hash
func (db *DB) CreateUser(ctx context.Context, email string, name *string, passwordHash string) (*models.User, error) {
	query := `INSERT INTO users (email, name, password_hash)
	          VALUES (LOWER($1), $2, $3)
	          RETURNING id, email, name, email_verified, created_at, updated_at`

	var user models.User
	err := db.conn.QueryRowContext(ctx, query, strings.TrimSpace(email), name, passwordHash).Scan(
		&user.ID,
		&user.Email,
		&user.Name,
		&user.EmailVerified,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	return &user, nil
}

// GetUserCredentials returns a user row plus its password hash for login.
// A user created without a password (hash is NULL) cannot log in this way.
func (db *DB) GetUserCredentials(ctx context.Context, email string) (*models.User, string, error) {
	query := `SELECT id, email, name, password_hash, email_verified, created_at, updated_at
	          FROM users WHERE LOWER(email) = LOWER($1)`

	var user models.User
	var hash sql.NullString
	err := db.conn.QueryRowContext(ctx, query, strings.TrimSpace(email)).Scan(
		&user.ID,
		&user.Email,
		&user.Name,
		&hash,
		&user.EmailVerified,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, "", ErrUserNotFound
		}
		return nil, "", fmt.Errorf("failed to get user credentials: %w", err)
	}
	if !hash.Valid {
		return nil, "", ErrUserNotFound
	}

	return &user, hash.String, nil
}

// MarkEmailVerified flags a user's email as verified
func (db *DB) MarkEmailVerified(ctx context.Context, userID int64) error {
	_, err := db.conn.ExecContext(ctx,
		`UPDATE users SET email_verified = TRUE, updated_at = NOW() WHERE id = $1`, userID)
	if err != nil {
		return fmt.Errorf("failed to mark email verified: %w", err)
	}
	return nil
}

// CreateWebSession creates a new web session for a user
func (db *DB) CreateWebSession(ctx context.Context, sessionID string, userID int64, expiresAt time.Time) error {
	query := `INSERT INTO web_sessions (id, user_id, created_at, expires_at) VALUES ($1, $2, NOW(), $3)`
	_, err := db.conn.ExecContext(ctx, query, sessionID, userID, expiresAt)
	if err != nil {
		return fmt.Errorf("failed to create web session: %w", err)
	}
	return nil
}

// GetWebSession retrieves a web session by ID and validates it's not expired
func (db *DB) GetWebSession(ctx context.Context, sessionID string) (*models.WebSession, error) {
	query := `SELECT id, user_id, created_at, expires_at
	          FROM web_sessions
	          WHERE id = $1 AND expires_at > NOW()`

	var session models.WebSession
	err := db.conn.QueryRowContext(ctx, query, sessionID).Scan(
		&session.ID,
		&session.UserID,
		&session.CreatedAt,
		&session.ExpiresAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("session not found or expired")
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	return &session, nil
}

// DeleteWebSession deletes a web session (logout)
func (db *DB) DeleteWebSession(ctx context.Context, sessionID string) error {
	query := `DELETE FROM web_sessions WHERE id = $1`
	_, err := db.conn.ExecContext(ctx, query, sessionID)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}
