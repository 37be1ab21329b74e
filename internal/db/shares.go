package db

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/GracePathHQ/gracepath-web/internal/models"
)

// GenerateShareToken creates a cryptographically random share token.
// 16 bytes hex-encoded gives 128 bits of entropy; the token is the only
// capability needed to open a share link.
func GenerateShareToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate share token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// CreateShare creates a share link for a session. recipientEmail and
// recipientUserID restrict the share to a single account when set; both nil
// means anyone with the token (and an account) can open it.
func (db *DB) CreateShare(ctx context.Context, sessionID string, creatorID int64, recipientEmail *string, recipientUserID *int64, allowNotesAccess bool, expiresAt *time.Time) (*models.SessionShare, error) {
	ctx, span := tracer.Start(ctx, "db.create_share",
		trace.WithAttributes(
			attribute.String("session.id", sessionID),
			attribute.Int64("creator.id", creatorID),
			attribute.Bool("share.allow_notes", allowNotesAccess),
		))
	defer span.End()

	token, err := GenerateShareToken()
	if err != nil {
		return nil, err
	}

	share := models.SessionShare{
		SessionID:        sessionID,
		ShareToken:       token,
		CreatorID:        creatorID,
		RecipientEmail:   recipientEmail,
		RecipientUserID:  recipientUserID,
		AllowNotesAccess: allowNotesAccess,
		ExpiresAt:        expiresAt,
	}

	query := `INSERT INTO session_shares
	            (session_id, share_token, creator_id, recipient_email, recipient_user_id, allow_notes_access, expires_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7)
	          RETURNING id, created_at`
	err = db.conn.QueryRowContext(ctx, query,
		sessionID, token, creatorID, recipientEmail, recipientUserID, allowNotesAccess, expiresAt).
		Scan(&share.ID, &share.CreatedAt)
	if err != nil {
		if isInvalidUUIDError(err) {
			return nil, ErrSessionNotFound
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to create share: %w", err)
	}

	return &share, nil
}

// GetShareByToken looks up a share by its token. Expiry is NOT checked here;
// callers validate with access.ValidateShare so expired shares still resolve
// for error reporting.
func (db *DB) GetShareByToken(ctx context.Context, token string) (*models.SessionShare, error) {
	ctx, span := tracer.Start(ctx, "db.get_share_by_token")
	defer span.End()

	var share models.SessionShare
	query := `SELECT id, session_id, share_token, creator_id, recipient_email, recipient_user_id,
	                 allow_notes_access, expires_at, created_at
	          FROM session_shares WHERE share_token = $1`
	err := db.conn.QueryRowContext(ctx, query, token).Scan(
		&share.ID,
		&share.SessionID,
		&share.ShareToken,
		&share.CreatorID,
		&share.RecipientEmail,
		&share.RecipientUserID,
		&share.AllowNotesAccess,
		&share.ExpiresAt,
		&share.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrShareNotFound
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to get share: %w", err)
	}

	return &share, nil
}

// GetShare retrieves a share by ID
func (db *DB) GetShare(ctx context.Context, shareID int64) (*models.SessionShare, error) {
	ctx, span := tracer.Start(ctx, "db.get_share",
		trace.WithAttributes(attribute.Int64("share.id", shareID)))
	defer span.End()

	var share models.SessionShare
	query := `SELECT id, session_id, share_token, creator_id, recipient_email, recipient_user_id,
	                 allow_notes_access, expires_at, created_at
	          FROM session_shares WHERE id = $1`
	err := db.conn.QueryRowContext(ctx, query, shareID).Scan(
		&share.ID,
		&share.SessionID,
		&share.ShareToken,
		&share.CreatorID,
		&share.RecipientEmail,
		&share.RecipientUserID,
		&share.AllowNotesAccess,
		&share.ExpiresAt,
		&share.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrShareNotFound
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to get share: %w", err)
	}

	return &share, nil
}

// ListSessionShares returns all shares on a session, newest first
func (db *DB) ListSessionShares(ctx context.Context, sessionID string) ([]models.SessionShare, error) {
	ctx, span := tracer.Start(ctx, "db.list_session_shares",
		trace.WithAttributes(attribute.String("session.id", sessionID)))
	defer span.End()

	query := `SELECT id, session_id, share_token, creator_id, recipient_email, recipient_user_id,
	                 allow_notes_access, expires_at, created_at
	          FROM session_shares
	          WHERE session_id = $1
	          ORDER BY created_at DESC`

	rows, err := db.conn.QueryContext(ctx, query, sessionID)
	if err != nil {
		if isInvalidUUIDError(err) {
			return nil, ErrSessionNotFound
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to query shares: %w", err)
	}
	defer rows.Close()

	shares := make([]models.SessionShare, 0)
	for rows.Next() {
		var share models.SessionShare
		if err := rows.Scan(
			&share.ID,
			&share.SessionID,
			&share.ShareToken,
			&share.CreatorID,
			&share.RecipientEmail,
			&share.RecipientUserID,
			&share.AllowNotesAccess,
			&share.ExpiresAt,
			&share.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan share: %w", err)
		}
		shares = append(shares, share)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating shares: %w", err)
	}

	return shares, nil
}

// RevokeShare hard-deletes a share. Access rows in session_share_accesses are
// left orphaned on purpose; AccessedShare listings exclude them by join.
func (db *DB) RevokeShare(ctx context.Context, shareID int64) error {
	ctx, span := tracer.Start(ctx, "db.revoke_share",
		trace.WithAttributes(attribute.Int64("share.id", shareID)))
	defer span.End()

	result, err := db.conn.ExecContext(ctx, `DELETE FROM session_shares WHERE id = $1`, shareID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to revoke share: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return ErrShareNotFound
	}

	return nil
}

// RecordShareAccess upserts the (share, user) access row. First access
// creates it; later accesses bump last_accessed_at and undo any dismissal,
// since re-opening a share means the viewer wants it back in their inbox.
func (db *DB) RecordShareAccess(ctx context.Context, shareID, userID int64) error {
	ctx, span := tracer.Start(ctx, "db.record_share_access",
		trace.WithAttributes(
			attribute.Int64("share.id", shareID),
			attribute.Int64("user.id", userID),
		))
	defer span.End()

	query := `INSERT INTO session_share_accesses (share_id, user_id)
	          VALUES ($1, $2)
	          ON CONFLICT (share_id, user_id)
	          DO UPDATE SET last_accessed_at = NOW(), is_dismissed = FALSE, dismissed_at = NULL`
	_, err := db.conn.ExecContext(ctx, query, shareID, userID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to record share access: %w", err)
	}

	return nil
}

// AccessedShare is one row in a viewer's shared-with-me inbox
type AccessedShare struct {
	Share          models.SessionShare `json:"share"`
	SessionTitle   string              `json:"session_title"`
	OwnerName      string              `json:"owner_name"`
	LastAccessedAt time.Time           `json:"last_accessed_at"`
}

// ListAccessedShares returns the shares a user has opened and not dismissed,
// most recently used first. The inner join to session_shares drops orphaned
// access rows left behind by revocation, so revoked shares vanish here.
func (db *DB) ListAccessedShares(ctx context.Context, userID int64) ([]AccessedShare, error) {
	ctx, span := tracer.Start(ctx, "db.list_accessed_shares",
		trace.WithAttributes(attribute.Int64("user.id", userID)))
	defer span.End()

	query := `SELECT sh.id, sh.session_id, sh.share_token, sh.creator_id, sh.recipient_email,
	                 sh.recipient_user_id, sh.allow_notes_access, sh.expires_at, sh.created_at,
	                 s.title, COALESCE(u.name, u.email), a.last_accessed_at
	          FROM session_share_accesses a
	          JOIN session_shares sh ON sh.id = a.share_id
	          JOIN sessions s ON s.id = sh.session_id
	          LEFT JOIN users u ON u.id = s.user_id
	          WHERE a.user_id = $1 AND a.is_dismissed = FALSE
	          ORDER BY a.last_accessed_at DESC`

	rows, err := db.conn.QueryContext(ctx, query, userID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to query accessed shares: %w", err)
	}
	defer rows.Close()

	accessed := make([]AccessedShare, 0)
	for rows.Next() {
		var item AccessedShare
		var ownerName sql.NullString
		if err := rows.Scan(
			&item.Share.ID,
			&item.Share.SessionID,
			&item.Share.ShareToken,
			&item.Share.CreatorID,
			&item.Share.RecipientEmail,
			&item.Share.RecipientUserID,
			&item.Share.AllowNotesAccess,
			&item.Share.ExpiresAt,
			&item.Share.CreatedAt,
			&item.SessionTitle,
			&ownerName,
			&item.LastAccessedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan accessed share: %w", err)
		}
		if ownerName.Valid {
			item.OwnerName = ownerName.String
		}
		accessed = append(accessed, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating accessed shares: %w", err)
	}

	return accessed, nil
}

// DismissShareAccess hides a share from the viewer's inbox. The share itself
// stays valid; dismissal is a per-viewer visibility toggle only.
func (db *DB) DismissShareAccess(ctx context.Context, shareID, userID int64) error {
	ctx, span := tracer.Start(ctx, "db.dismiss_share_access",
		trace.WithAttributes(
			attribute.Int64("share.id", shareID),
			attribute.Int64("user.id", userID),
		))
	defer span.End()

	result, err := db.conn.ExecContext(ctx,
		`UPDATE session_share_accesses SET is_dismissed = TRUE, dismissed_at = NOW()
		 WHERE share_id = $1 AND user_id = $2`,
		shareID, userID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to dismiss share access: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return ErrShareAccessNotFound
	}

	return nil
}
