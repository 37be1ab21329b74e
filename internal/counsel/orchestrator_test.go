package counsel

import (
	"context"
	"errors"
	"testing"

	"github.com/GracePathHQ/gracepath-web/internal/db"
	"github.com/GracePathHQ/gracepath-web/internal/models"
	"github.com/GracePathHQ/gracepath-web/internal/safety"
	"github.com/GracePathHQ/gracepath-web/internal/scripture"
)

type mockGenerator struct {
	result *GenerateResult
	err    error
	calls  []GenerateRequest
}

func (m *mockGenerator) Generate(ctx context.Context, req GenerateRequest) (*GenerateResult, error) {
	m.calls = append(m.calls, req)
	if m.err != nil {
		return nil, m.err
	}
	return m.result, nil
}

func testGate(t *testing.T) *safety.Gate {
	t.Helper()
	crisis, err := safety.DefaultCrisisKeywords()
	if err != nil {
		t.Fatalf("load crisis keywords: %v", err)
	}
	grief, err := safety.DefaultGriefKeywords()
	if err != nil {
		t.Fatalf("load grief keywords: %v", err)
	}
	return safety.NewGate(crisis, grief)
}

func testRetriever(t *testing.T) *scripture.Retriever {
	t.Helper()
	corpus, err := scripture.LoadCorpusFile("")
	if err != nil {
		t.Fatalf("load corpus: %v", err)
	}
	return scripture.NewRetriever(corpus)
}

func newTestOrchestrator(t *testing.T, store *memStore, gen Generator) *Orchestrator {
	t.Helper()
	return NewOrchestrator(testGate(t), testRetriever(t), NewLedger(store), gen)
}

func TestHandleTurnCrisisShortCircuits(t *testing.T) {
	store := newMemStore()
	gen := &mockGenerator{result: &GenerateResult{Content: "should never run"}}
	o := newTestOrchestrator(t, store, gen)

	resp, err := o.HandleTurn(context.Background(), "", nil, "I want to kill myself")
	if err != nil {
		t.Fatalf("crisis turn should not error: %v", err)
	}

	if !resp.IsCrisisDetected {
		t.Error("expected IsCrisisDetected")
	}
	if resp.Message.Role != models.RoleSystem {
		t.Errorf("expected system role, got %s", resp.Message.Role)
	}
	if resp.Message.Content != safety.SafetyMessage {
		t.Error("crisis response must be the fixed safety message")
	}
	if len(resp.CrisisResources) == 0 {
		t.Error("crisis response must include resources")
	}
	if resp.SessionID != "" {
		t.Error("crisis turn must not resolve a session")
	}
	if len(store.sessions) != 0 {
		t.Errorf("crisis turn created %d sessions, want 0", len(store.sessions))
	}
	if len(gen.calls) != 0 {
		t.Error("crisis turn must not call the generator")
	}
}

func TestHandleTurnEndToEnd(t *testing.T) {
	store := newMemStore()
	gen := &mockGenerator{result: &GenerateResult{
		Content: "Rest in Philippians 4:6 and bring your worries to God in prayer.",
	}}
	o := newTestOrchestrator(t, store, gen)

	resp, err := o.HandleTurn(context.Background(), "", nil, "I feel anxious about work")
	if err != nil {
		t.Fatalf("turn failed: %v", err)
	}

	if resp.IsCrisisDetected {
		t.Error("normal turn flagged as crisis")
	}
	if resp.SessionID == "" {
		t.Fatal("expected a session id")
	}

	session := store.sessions[resp.SessionID]
	if session == nil {
		t.Fatal("session not persisted")
	}
	if session.Title != "I feel anxious about work" {
		t.Errorf("unexpected title %q", session.Title)
	}
	if len(session.Messages) != 2 {
		t.Fatalf("expected user + assistant messages, got %d", len(session.Messages))
	}
	if session.Messages[0].Role != models.RoleUser {
		t.Errorf("first message should be the user's, got %s", session.Messages[0].Role)
	}
	if session.Messages[1].Role != models.RoleAssistant {
		t.Errorf("second message should be the assistant's, got %s", session.Messages[1].Role)
	}

	if len(gen.calls) != 1 {
		t.Fatalf("expected one generation call, got %d", len(gen.calls))
	}
	call := gen.calls[0]
	if len(call.Passages) == 0 || len(call.Passages) > 3 {
		t.Errorf("expected 1..3 retrieved passages, got %d", len(call.Passages))
	}
	if call.ClarificationCount != 0 {
		t.Errorf("fresh session clarification count = %d, want 0", call.ClarificationCount)
	}

	// The cited verse should be attached to the assistant message
	if len(resp.Message.ScriptureReferences) == 0 {
		t.Fatal("expected parsed citations on the assistant message")
	}
	ref := resp.Message.ScriptureReferences[0]
	if ref.Book != "Philippians" || ref.Chapter != 4 || ref.VerseStart != 6 {
		t.Errorf("unexpected citation %+v", ref)
	}
}

func TestHandleTurnClarificationCountBeforeGeneration(t *testing.T) {
	store := newMemStore()
	gen := &mockGenerator{result: &GenerateResult{Content: "Could you say more about that?", RequiresClarification: true}}
	o := newTestOrchestrator(t, store, gen)

	resp1, err := o.HandleTurn(context.Background(), "", nil, "I am struggling with forgiveness")
	if err != nil {
		t.Fatalf("turn 1: %v", err)
	}
	if !resp1.RequiresClarification {
		t.Error("requiresClarification not echoed from the generator")
	}

	// Second turn sees one prior assistant question
	_, err = o.HandleTurn(context.Background(), resp1.SessionID, nil, "it is about my brother")
	if err != nil {
		t.Fatalf("turn 2: %v", err)
	}
	if got := gen.calls[1].ClarificationCount; got != 1 {
		t.Errorf("second turn clarification count = %d, want 1", got)
	}
	if len(gen.calls[1].History) != 2 {
		t.Errorf("second turn history length = %d, want 2", len(gen.calls[1].History))
	}
}

func TestHandleTurnGenerationFailureKeepsUserMessage(t *testing.T) {
	store := newMemStore()
	gen := &mockGenerator{err: errors.New("upstream unavailable")}
	o := newTestOrchestrator(t, store, gen)

	_, err := o.HandleTurn(context.Background(), "", nil, "I feel lost lately")
	if err == nil {
		t.Fatal("expected turn failure")
	}

	if len(store.sessions) != 1 {
		t.Fatalf("expected one session, got %d", len(store.sessions))
	}
	for _, s := range store.sessions {
		if len(s.Messages) != 1 {
			t.Fatalf("user message should remain persisted, got %d messages", len(s.Messages))
		}
		if s.Messages[0].Role != models.RoleUser {
			t.Errorf("persisted message role = %s, want user", s.Messages[0].Role)
		}
	}
}

func TestHandleTurnCompletedSessionRejected(t *testing.T) {
	store := newMemStore()
	gen := &mockGenerator{result: &GenerateResult{Content: "ok"}}
	o := newTestOrchestrator(t, store, gen)

	resp, err := o.HandleTurn(context.Background(), "", nil, "walking through a hard season")
	if err != nil {
		t.Fatalf("turn: %v", err)
	}

	store.sessions[resp.SessionID].Status = models.SessionStatusCompleted

	if _, err := o.HandleTurn(context.Background(), resp.SessionID, nil, "one more thing"); err == nil {
		t.Fatal("expected completed-session rejection")
	}
}

func TestHandleTurnForeignSessionRejected(t *testing.T) {
	store := newMemStore()
	gen := &mockGenerator{result: &GenerateResult{Content: "peace be with you"}}
	o := newTestOrchestrator(t, store, gen)

	owner := int64(10)
	first, err := o.HandleTurn(context.Background(), "", &owner, "struggling with patience")
	if err != nil {
		t.Fatalf("turn: %v", err)
	}

	intruder := int64(20)
	if _, err := o.HandleTurn(context.Background(), first.SessionID, &intruder, "hello"); !errors.Is(err, db.ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound for a non-owner, got %v", err)
	}
	if _, err := o.HandleTurn(context.Background(), first.SessionID, nil, "hello"); !errors.Is(err, db.ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound for an anonymous caller, got %v", err)
	}

	// The rejected turns appended nothing
	if got := len(store.sessions[first.SessionID].Messages); got != 2 {
		t.Errorf("owned session has %d messages, want 2", got)
	}
}

func TestHandleTurnCrisisPrecedesSessionResolution(t *testing.T) {
	store := newMemStore()
	gen := &mockGenerator{result: &GenerateResult{Content: "should never run"}}
	o := newTestOrchestrator(t, store, gen)

	owner := int64(10)
	first, err := o.HandleTurn(context.Background(), "", &owner, "anxious about everything")
	if err != nil {
		t.Fatalf("turn: %v", err)
	}

	// A crisis message gets the safety response even when it arrives with a
	// session id the caller does not own.
	intruder := int64(20)
	resp, err := o.HandleTurn(context.Background(), first.SessionID, &intruder, "I want to kill myself")
	if err != nil {
		t.Fatalf("crisis turn must not fail on ownership: %v", err)
	}
	if !resp.IsCrisisDetected {
		t.Error("expected IsCrisisDetected")
	}
	if len(resp.CrisisResources) == 0 {
		t.Error("crisis response must include resources")
	}
	if got := len(store.sessions[first.SessionID].Messages); got != 2 {
		t.Errorf("crisis turn touched the session: %d messages, want 2", got)
	}
}

func TestHandleTurnGriefFlag(t *testing.T) {
	store := newMemStore()
	gen := &mockGenerator{result: &GenerateResult{Content: "He is near to the brokenhearted."}}
	o := newTestOrchestrator(t, store, gen)

	resp, err := o.HandleTurn(context.Background(), "", nil, "my father passed away last month")
	if err != nil {
		t.Fatalf("turn: %v", err)
	}
	if !resp.IsGriefDetected {
		t.Error("expected grief flag")
	}
	if resp.IsCrisisDetected {
		t.Error("grief alone must not trigger the crisis gate")
	}
}
