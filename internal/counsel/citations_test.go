package counsel

import (
	"testing"
	"time"

	"github.com/GracePathHQ/gracepath-web/internal/scripture"
)

func TestParseCitations(t *testing.T) {
	verseEnd := 7
	passages := []scripture.Passage{
		{Book: "Philippians", Chapter: 4, VerseStart: 6, VerseEnd: &verseEnd, Translation: "NIV", Text: "Do not be anxious about anything."},
		{Book: "Psalm", Chapter: 23, VerseStart: 1, Translation: "NIV", Text: "The Lord is my shepherd."},
	}

	reply := "Take comfort in Philippians 4:6 and in Psalm 23:1. As Philippians 4:6 reminds us, pray."
	refs := ParseCitations(reply, passages)

	if len(refs) != 2 {
		t.Fatalf("expected 2 refs (duplicate collapsed), got %d", len(refs))
	}

	if refs[0].Book != "Philippians" || refs[0].Chapter != 4 || refs[0].VerseStart != 6 {
		t.Errorf("unexpected first ref %+v", refs[0])
	}
	if refs[0].Text == "" {
		t.Error("matched passage text should be attached")
	}
	if refs[0].VerseEnd == nil || *refs[0].VerseEnd != 7 {
		t.Error("verse end should be filled from the matched passage")
	}

	if refs[1].Book != "Psalm" {
		t.Errorf("unexpected second ref %+v", refs[1])
	}
}

func TestParseCitationsNumberedBook(t *testing.T) {
	refs := ParseCitations("Cast your anxiety on him, as 1 Peter 5:7 says.", nil)
	if len(refs) != 1 {
		t.Fatalf("expected 1 ref, got %d", len(refs))
	}
	if refs[0].Book != "1 Peter" || refs[0].Chapter != 5 || refs[0].VerseStart != 7 {
		t.Errorf("unexpected ref %+v", refs[0])
	}
}

func TestParseCitationsVerseRange(t *testing.T) {
	refs := ParseCitations("Read Matthew 11:28-30 slowly.", nil)
	if len(refs) != 1 {
		t.Fatalf("expected 1 ref, got %d", len(refs))
	}
	if refs[0].VerseEnd == nil || *refs[0].VerseEnd != 30 {
		t.Errorf("expected verse range end 30, got %+v", refs[0])
	}
	if refs[0].Translation != "NIV" {
		t.Errorf("uncited passage should default translation, got %s", refs[0].Translation)
	}
}

func TestParseCitationsNoMatches(t *testing.T) {
	if refs := ParseCitations("I hear you, tell me more about that.", nil); refs != nil {
		t.Errorf("expected nil, got %v", refs)
	}
}

func TestSessionLocksSerialize(t *testing.T) {
	locks := newSessionLocks()

	unlock := locks.Lock("a")
	done := make(chan struct{})
	go func() {
		u := locks.Lock("a")
		u()
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("second Lock acquired while first held")
	case <-time.After(20 * time.Millisecond):
	}

	unlock()
	<-done

	// Entry is removed once released
	locks.mu.Lock()
	if len(locks.locks) != 0 {
		t.Errorf("lock map should be empty, has %d entries", len(locks.locks))
	}
	locks.mu.Unlock()
}
