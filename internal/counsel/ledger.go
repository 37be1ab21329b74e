// Package counsel implements the counseling turn pipeline: session and
// message bookkeeping, and the orchestrator that composes the safety gate,
// the retriever, and the generation collaborator into one turn.
package counsel

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/GracePathHQ/gracepath-web/internal/db"
	"github.com/GracePathHQ/gracepath-web/internal/models"
)

// maxTitleLen is the derived-title truncation point, in runes.
const maxTitleLen = 50

// SessionStore is the persistence surface the ledger needs. *db.DB satisfies
// it; tests substitute an in-memory implementation.
type SessionStore interface {
	GetSession(ctx context.Context, sessionID string) (*models.Session, error)
	CreateSession(ctx context.Context, userID *int64, title string) (*models.Session, error)
	AppendMessage(ctx context.Context, sessionID string, role models.MessageRole, content string, refs []models.ScriptureReference) (*models.Message, error)
}

// Ledger owns session and message lifecycle for the turn pipeline.
type Ledger struct {
	store SessionStore
}

// NewLedger creates a ledger backed by the given store
func NewLedger(store SessionStore) *Ledger {
	return &Ledger{store: store}
}

// DeriveTitle builds a session title from the first inbound message:
// the first 50 characters, with a trailing ellipsis when truncated.
// Counted in runes so multibyte text is not split mid-character.
func DeriveTitle(content string) string {
	content = strings.TrimSpace(content)
	if utf8.RuneCountInString(content) <= maxTitleLen {
		return content
	}
	runes := []rune(content)
	return string(runes[:maxTitleLen]) + "…"
}

// GetOrCreate resolves a session by ID, or creates a fresh one when no ID is
// supplied or the supplied ID does not resolve. The returned session has its
// messages loaded in timestamp order. firstMessage seeds the title of a newly
// created session only.
func (l *Ledger) GetOrCreate(ctx context.Context, sessionID string, userID *int64, firstMessage string) (*models.Session, error) {
	if sessionID != "" {
		session, err := l.store.GetSession(ctx, sessionID)
		if err == nil {
			return session, nil
		}
		if !errors.Is(err, db.ErrSessionNotFound) {
			return nil, err
		}
		// Unresolvable ID falls through to creation, same as no ID
	}

	return l.store.CreateSession(ctx, userID, DeriveTitle(firstMessage))
}

// Append persists one message and mirrors it onto the in-memory session so
// subsequent reads within the turn see it without a reload.
func (l *Ledger) Append(ctx context.Context, session *models.Session, role models.MessageRole, content string, refs []models.ScriptureReference) (*models.Message, error) {
	msg, err := l.store.AppendMessage(ctx, session.ID, role, content, refs)
	if err != nil {
		return nil, err
	}
	session.Messages = append(session.Messages, *msg)
	return msg, nil
}

// ClarificationCount is the number of assistant messages containing a
// literal question mark. Recomputed from the message list on every call
// rather than cached; sessions are short conversations and the recompute
// keeps the count correct under the per-session turn lock.
func ClarificationCount(session *models.Session) int {
	count := 0
	for _, msg := range session.Messages {
		if msg.Role == models.RoleAssistant && strings.Contains(msg.Content, "?") {
			count++
		}
	}
	return count
}

// HistoryEntry is one (role, content) pair handed to the generation call
type HistoryEntry struct {
	Role    models.MessageRole
	Content string
}

// History returns the session's messages as ordered (role, content) pairs.
func History(session *models.Session) []HistoryEntry {
	entries := make([]HistoryEntry, 0, len(session.Messages))
	for _, msg := range session.Messages {
		entries = append(entries, HistoryEntry{Role: msg.Role, Content: msg.Content})
	}
	return entries
}
