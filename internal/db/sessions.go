package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/GracePathHQ/gracepath-web/internal/models"
)

// CreateSession inserts a new active session. userID is nil for anonymous
// sessions; the title comes from the first inbound message (derived by the
// caller).
func (db *DB) CreateSession(ctx context.Context, userID *int64, title string) (*models.Session, error) {
	ctx, span := tracer.Start(ctx, "db.create_session")
	defer span.End()
	if userID != nil {
		span.SetAttributes(attribute.Int64("user.id", *userID))
	}

	session := models.Session{
		ID:     uuid.New().String(),
		UserID: userID,
		Title:  title,
		Status: models.SessionStatusActive,
	}

	query := `INSERT INTO sessions (id, user_id, title, status)
	          VALUES ($1, $2, $3, $4)
	          RETURNING created_at, updated_at`
	err := db.conn.QueryRowContext(ctx, query, session.ID, userID, title, session.Status).
		Scan(&session.CreatedAt, &session.UpdatedAt)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	span.SetAttributes(attribute.String("session.id", session.ID))
	return &session, nil
}

// GetSession returns a session with its messages loaded, ordered by
// created_at ascending.
func (db *DB) GetSession(ctx context.Context, sessionID string) (*models.Session, error) {
	ctx, span := tracer.Start(ctx, "db.get_session",
		trace.WithAttributes(attribute.String("session.id", sessionID)))
	defer span.End()

	var session models.Session
	query := `SELECT id, user_id, title, status, created_at, updated_at FROM sessions WHERE id = $1`
	err := db.conn.QueryRowContext(ctx, query, sessionID).Scan(
		&session.ID,
		&session.UserID,
		&session.Title,
		&session.Status,
		&session.CreatedAt,
		&session.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrSessionNotFound
		}
		if isInvalidUUIDError(err) {
			return nil, ErrSessionNotFound
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	messages, err := db.loadMessages(ctx, session.ID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	session.Messages = messages

	return &session, nil
}

// loadMessages returns all messages for a session ordered by created_at
// ascending. Message order is append order; nothing re-sorts after insert.
func (db *DB) loadMessages(ctx context.Context, sessionID string) ([]models.Message, error) {
	query := `SELECT id, session_id, role, content, scripture_refs, created_at
	          FROM messages
	          WHERE session_id = $1
	          ORDER BY created_at ASC, id ASC`

	rows, err := db.conn.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var messages []models.Message
	for rows.Next() {
		var msg models.Message
		var refsBytes []byte
		if err := rows.Scan(&msg.ID, &msg.SessionID, &msg.Role, &msg.Content, &refsBytes, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		if len(refsBytes) > 0 {
			if err := json.Unmarshal(refsBytes, &msg.ScriptureReferences); err != nil {
				return nil, fmt.Errorf("failed to unmarshal scripture refs: %w", err)
			}
		}
		messages = append(messages, msg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating messages: %w", err)
	}

	return messages, nil
}

// AppendMessage appends one immutable message to a session. Messages are
// never edited or reordered after this insert.
func (db *DB) AppendMessage(ctx context.Context, sessionID string, role models.MessageRole, content string, refs []models.ScriptureReference) (*models.Message, error) {
	ctx, span := tracer.Start(ctx, "db.append_message",
		trace.WithAttributes(
			attribute.String("session.id", sessionID),
			attribute.String("message.role", string(role)),
		))
	defer span.End()

	msg := models.Message{
		ID:                  uuid.New().String(),
		SessionID:           sessionID,
		Role:                role,
		Content:             content,
		ScriptureReferences: refs,
		CreatedAt:           time.Now().UTC(),
	}

	var refsJSON interface{}
	if len(refs) > 0 {
		data, err := json.Marshal(refs)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal scripture refs: %w", err)
		}
		refsJSON = data
	}

	query := `INSERT INTO messages (id, session_id, role, content, scripture_refs, created_at)
	          VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := db.conn.ExecContext(ctx, query, msg.ID, sessionID, role, content, refsJSON, msg.CreatedAt)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to append message: %w", err)
	}

	// Touch the session so list views sort by recent activity
	_, _ = db.conn.ExecContext(ctx, `UPDATE sessions SET updated_at = NOW() WHERE id = $1`, sessionID)

	return &msg, nil
}

// SessionListItem represents a session in the list view
type SessionListItem struct {
	ID           string               `json:"id"`
	Title        string               `json:"title"`
	Status       models.SessionStatus `json:"status"`
	MessageCount int                  `json:"message_count"`
	CreatedAt    time.Time            `json:"created_at"`
	UpdatedAt    time.Time            `json:"updated_at"`
}

// ListUserSessions returns a user's sessions filtered by status, most
// recently active first. statuses is expanded with = ANY so callers can ask
// for active, completed, or both in one query.
func (db *DB) ListUserSessions(ctx context.Context, userID int64, statuses []string) ([]SessionListItem, error) {
	ctx, span := tracer.Start(ctx, "db.list_user_sessions",
		trace.WithAttributes(attribute.Int64("user.id", userID)))
	defer span.End()

	if len(statuses) == 0 {
		statuses = []string{string(models.SessionStatusActive), string(models.SessionStatusCompleted)}
	}

	query := `
		SELECT s.id, s.title, s.status, COUNT(m.id) AS message_count, s.created_at, s.updated_at
		FROM sessions s
		LEFT JOIN messages m ON s.id = m.session_id
		WHERE s.user_id = $1 AND s.status = ANY($2)
		GROUP BY s.id, s.title, s.status, s.created_at, s.updated_at
		ORDER BY s.updated_at DESC
	`

	rows, err := db.conn.QueryContext(ctx, query, userID, pq.Array(statuses))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	sessions := make([]SessionListItem, 0)
	for rows.Next() {
		var item SessionListItem
		if err := rows.Scan(&item.ID, &item.Title, &item.Status, &item.MessageCount, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sessions: %w", err)
	}

	return sessions, nil
}

// CompleteSession marks an owned session completed. Returns
// ErrSessionNotFound when the session doesn't exist or isn't owned by
// userID (combined for security), ErrSessionComplete when already done.
func (db *DB) CompleteSession(ctx context.Context, sessionID string, userID int64) error {
	ctx, span := tracer.Start(ctx, "db.complete_session",
		trace.WithAttributes(
			attribute.String("session.id", sessionID),
			attribute.Int64("user.id", userID),
		))
	defer span.End()

	var status models.SessionStatus
	err := db.conn.QueryRowContext(ctx,
		`SELECT status FROM sessions WHERE id = $1 AND user_id = $2`,
		sessionID, userID).Scan(&status)
	if err != nil {
		if err == sql.ErrNoRows {
			return ErrSessionNotFound
		}
		if isInvalidUUIDError(err) {
			return ErrSessionNotFound
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to get session: %w", err)
	}
	if status == models.SessionStatusCompleted {
		return ErrSessionComplete
	}

	_, err = db.conn.ExecContext(ctx,
		`UPDATE sessions SET status = $1, updated_at = NOW() WHERE id = $2`,
		models.SessionStatusCompleted, sessionID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to complete session: %w", err)
	}

	return nil
}
