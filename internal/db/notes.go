package db

import (
	"context"
	"database/sql"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/GracePathHQ/gracepath-web/internal/models"
)

// CreateNote attaches a note to a session. The author role is derived by the
// caller from the author's relationship to the session, never from input.
func (db *DB) CreateNote(ctx context.Context, sessionID string, authorID int64, authorRole models.NoteAuthorRole, content string, isPrivate bool) (*models.SessionNote, error) {
	ctx, span := tracer.Start(ctx, "db.create_note",
		trace.WithAttributes(
			attribute.String("session.id", sessionID),
			attribute.Int64("author.id", authorID),
			attribute.String("note.author_role", string(authorRole)),
		))
	defer span.End()

	note := models.SessionNote{
		SessionID:  sessionID,
		AuthorID:   authorID,
		AuthorRole: authorRole,
		Content:    content,
		IsPrivate:  isPrivate,
	}

	query := `INSERT INTO session_notes (session_id, author_id, author_role, content, is_private)
	          VALUES ($1, $2, $3, $4, $5)
	          RETURNING id, created_at, updated_at`
	err := db.conn.QueryRowContext(ctx, query, sessionID, authorID, authorRole, content, isPrivate).
		Scan(&note.ID, &note.CreatedAt, &note.UpdatedAt)
	if err != nil {
		if isInvalidUUIDError(err) {
			return nil, ErrSessionNotFound
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to create note: %w", err)
	}

	return &note, nil
}

// GetNote retrieves a single note by ID
func (db *DB) GetNote(ctx context.Context, noteID int64) (*models.SessionNote, error) {
	ctx, span := tracer.Start(ctx, "db.get_note",
		trace.WithAttributes(attribute.Int64("note.id", noteID)))
	defer span.End()

	var note models.SessionNote
	query := `SELECT n.id, n.session_id, n.author_id, COALESCE(u.name, u.email), n.author_role,
	                 n.content, n.is_private, n.created_at, n.updated_at
	          FROM session_notes n
	          JOIN users u ON u.id = n.author_id
	          WHERE n.id = $1`
	err := db.conn.QueryRowContext(ctx, query, noteID).Scan(
		&note.ID,
		&note.SessionID,
		&note.AuthorID,
		&note.AuthorName,
		&note.AuthorRole,
		&note.Content,
		&note.IsPrivate,
		&note.CreatedAt,
		&note.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNoteNotFound
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to get note: %w", err)
	}

	return &note, nil
}

// ListSessionNotes returns all notes on a session, oldest first. Private-note
// filtering happens in the access layer, not here; this returns everything.
func (db *DB) ListSessionNotes(ctx context.Context, sessionID string) ([]models.SessionNote, error) {
	ctx, span := tracer.Start(ctx, "db.list_session_notes",
		trace.WithAttributes(attribute.String("session.id", sessionID)))
	defer span.End()

	query := `SELECT n.id, n.session_id, n.author_id, COALESCE(u.name, u.email), n.author_role,
	                 n.content, n.is_private, n.created_at, n.updated_at
	          FROM session_notes n
	          JOIN users u ON u.id = n.author_id
	          WHERE n.session_id = $1
	          ORDER BY n.created_at ASC, n.id ASC`

	rows, err := db.conn.QueryContext(ctx, query, sessionID)
	if err != nil {
		if isInvalidUUIDError(err) {
			return nil, ErrSessionNotFound
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to query notes: %w", err)
	}
	defer rows.Close()

	notes := make([]models.SessionNote, 0)
	for rows.Next() {
		var note models.SessionNote
		if err := rows.Scan(
			&note.ID,
			&note.SessionID,
			&note.AuthorID,
			&note.AuthorName,
			&note.AuthorRole,
			&note.Content,
			&note.IsPrivate,
			&note.CreatedAt,
			&note.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan note: %w", err)
		}
		notes = append(notes, note)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating notes: %w", err)
	}

	return notes, nil
}

// UpdateNote rewrites a note's content. Only the author may edit; the WHERE
// clause enforces that so a non-author gets ErrNoteNotFound rather than a
// hint the note exists.
func (db *DB) UpdateNote(ctx context.Context, noteID, authorID int64, content string) error {
	ctx, span := tracer.Start(ctx, "db.update_note",
		trace.WithAttributes(
			attribute.Int64("note.id", noteID),
			attribute.Int64("author.id", authorID),
		))
	defer span.End()

	result, err := db.conn.ExecContext(ctx,
		`UPDATE session_notes SET content = $1, updated_at = NOW() WHERE id = $2 AND author_id = $3`,
		content, noteID, authorID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to update note: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNoteNotFound
	}

	return nil
}

// SetNotePrivacy flips a note's private flag. Authorization (author or
// assigned counselor) is decided in the access layer, so no author scope
// here.
func (db *DB) SetNotePrivacy(ctx context.Context, noteID int64, isPrivate bool) error {
	ctx, span := tracer.Start(ctx, "db.set_note_privacy",
		trace.WithAttributes(
			attribute.Int64("note.id", noteID),
			attribute.Bool("note.is_private", isPrivate),
		))
	defer span.End()

	result, err := db.conn.ExecContext(ctx,
		`UPDATE session_notes SET is_private = $1, updated_at = NOW() WHERE id = $2`,
		isPrivate, noteID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to set note privacy: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNoteNotFound
	}

	return nil
}

// DeleteNote removes a note. Author-only, same shape as UpdateNote.
func (db *DB) DeleteNote(ctx context.Context, noteID, authorID int64) error {
	ctx, span := tracer.Start(ctx, "db.delete_note",
		trace.WithAttributes(
			attribute.Int64("note.id", noteID),
			attribute.Int64("author.id", authorID),
		))
	defer span.End()

	result, err := db.conn.ExecContext(ctx,
		`DELETE FROM session_notes WHERE id = $1 AND author_id = $2`,
		noteID, authorID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to delete note: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNoteNotFound
	}

	return nil
}
