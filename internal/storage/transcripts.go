package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/GracePathHQ/gracepath-web/internal/models"
)

// TranscriptKey builds the object key for a session's archived transcript.
// Anonymous sessions archive under owner id 0.
func TranscriptKey(session *models.Session) string {
	var ownerID int64
	if session.UserID != nil {
		ownerID = *session.UserID
	}
	return fmt.Sprintf("transcripts/%d/%s.txt", ownerID, session.ID)
}

// RenderTranscript formats a session as a plain-text transcript. Scripture
// references are listed after the message that cited them.
func RenderTranscript(session *models.Session) []byte {
	var b strings.Builder

	fmt.Fprintf(&b, "%s\n", session.Title)
	fmt.Fprintf(&b, "Session %s\n", session.ID)
	fmt.Fprintf(&b, "Started %s\n\n", session.CreatedAt.UTC().Format(time.RFC3339))

	for _, msg := range session.Messages {
		fmt.Fprintf(&b, "[%s] %s\n%s\n",
			msg.CreatedAt.UTC().Format(time.RFC3339), msg.Role, msg.Content)

		for _, ref := range msg.ScriptureReferences {
			verse := fmt.Sprintf("%s %d:%d", ref.Book, ref.Chapter, ref.VerseStart)
			if ref.VerseEnd != nil {
				verse += fmt.Sprintf("-%d", *ref.VerseEnd)
			}
			fmt.Fprintf(&b, "  > %s (%s)\n", verse, ref.Translation)
		}

		b.WriteString("\n")
	}

	return []byte(b.String())
}

// ArchiveTranscript renders and uploads a session transcript, returning the
// object key. Called when a session is completed.
func (s *S3Storage) ArchiveTranscript(ctx context.Context, session *models.Session) (string, error) {
	ctx, span := tracer.Start(ctx, "storage.archive_transcript",
		trace.WithAttributes(
			attribute.String("session.id", session.ID),
			attribute.Int("messages.count", len(session.Messages)),
		))
	defer span.End()

	key := TranscriptKey(session)
	data := RenderTranscript(session)

	if err := s.Upload(ctx, key, data, "text/plain; charset=utf-8"); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", fmt.Errorf("archive transcript: %w", err)
	}

	span.SetAttributes(attribute.String("storage.key", key))
	return key, nil
}

// FetchTranscript downloads a previously archived transcript
func (s *S3Storage) FetchTranscript(ctx context.Context, session *models.Session) ([]byte, error) {
	return s.Download(ctx, TranscriptKey(session))
}
