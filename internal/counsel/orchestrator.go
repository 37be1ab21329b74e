package counsel

import (
	"context"
	"fmt"
	"time"

	"github.com/GracePathHQ/gracepath-web/internal/db"
	"github.com/GracePathHQ/gracepath-web/internal/logger"
	"github.com/GracePathHQ/gracepath-web/internal/models"
	"github.com/GracePathHQ/gracepath-web/internal/safety"
	"github.com/GracePathHQ/gracepath-web/internal/scripture"
)

// retrievalK is the fixed number of passages handed to generation per turn.
const retrievalK = 3

// defaultGenerateTimeout bounds the generation call. The source behavior has
// no timeout; exceeding this one is treated as a normal upstream failure.
const defaultGenerateTimeout = 60 * time.Second

// GenerateRequest is the input to the generation collaborator
type GenerateRequest struct {
	Message            string
	Passages           []scripture.Passage
	History            []HistoryEntry
	ClarificationCount int
}

// GenerateResult is the collaborator's reply
type GenerateResult struct {
	Content               string
	RequiresClarification bool
}

// Generator produces the counseling reply for a turn. Opaque to the
// orchestrator; it may enforce a clarification budget internally.
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) (*GenerateResult, error)
}

// TurnResponse is the full outcome of one counseling turn
type TurnResponse struct {
	SessionID             string                  `json:"session_id,omitempty"`
	Message               *models.Message         `json:"message"`
	RequiresClarification bool                    `json:"requires_clarification"`
	IsCrisisDetected      bool                    `json:"is_crisis_detected"`
	IsGriefDetected       bool                    `json:"is_grief_detected,omitempty"`
	CrisisResources       []models.CrisisResource `json:"crisis_resources,omitempty"`
}

// Orchestrator runs the turn pipeline: safety gate, session resolution,
// retrieval, generation, and response persistence.
type Orchestrator struct {
	gate            *safety.Gate
	retriever       *scripture.Retriever
	ledger          *Ledger
	generator       Generator
	locks           *sessionLocks
	generateTimeout time.Duration
}

// Option configures an Orchestrator
type Option func(*Orchestrator)

// WithGenerateTimeout overrides the generation call timeout
func WithGenerateTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		o.generateTimeout = d
	}
}

// NewOrchestrator wires the turn pipeline
func NewOrchestrator(gate *safety.Gate, retriever *scripture.Retriever, ledger *Ledger, generator Generator, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		gate:            gate,
		retriever:       retriever,
		ledger:          ledger,
		generator:       generator,
		locks:           newSessionLocks(),
		generateTimeout: defaultGenerateTimeout,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// HandleTurn processes one inbound message. sessionID may be empty (new
// session) or an existing session's ID; userID is nil for anonymous turns.
//
// The crisis check runs before any session lookup or persistence. On a
// crisis verdict the turn terminates with a synthesized system message and
// the fixed resource list; no session or message row is created.
func (o *Orchestrator) HandleTurn(ctx context.Context, sessionID string, userID *int64, content string) (*TurnResponse, error) {
	evaluation := o.gate.Evaluate(content)
	if evaluation.IsCrisis {
		logger.Ctx(ctx).Warn("crisis language detected, short-circuiting turn",
			"category", evaluation.Category)
		return &TurnResponse{
			Message: &models.Message{
				Role:      models.RoleSystem,
				Content:   safety.SafetyMessage,
				CreatedAt: time.Now().UTC(),
			},
			IsCrisisDetected: true,
			CrisisResources:  safety.CrisisResources(),
		}, nil
	}

	griefDetected := o.gate.DetectGrief(content)

	// Serialize turns per session: the clarification count is read, used,
	// and then invalidated by the assistant append. A fresh session has no
	// competing turns, so locking after creation is safe there.
	if sessionID != "" {
		unlock := o.locks.Lock(sessionID)
		defer unlock()
	}

	session, err := o.ledger.GetOrCreate(ctx, sessionID, userID, content)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve session: %w", err)
	}
	if sessionID == "" || session.ID != sessionID {
		unlock := o.locks.Lock(session.ID)
		defer unlock()
	}

	// A resumed session must belong to the caller. Anonymous sessions have
	// no owner and resume by ID alone. Non-owners get the same answer as a
	// nonexistent session.
	if session.ID == sessionID && session.UserID != nil && (userID == nil || *session.UserID != *userID) {
		return nil, db.ErrSessionNotFound
	}

	if session.Status == models.SessionStatusCompleted {
		return nil, db.ErrSessionComplete
	}

	// History and clarification count snapshot the session before this
	// turn's messages are appended.
	history := History(session)
	clarifications := ClarificationCount(session)

	if _, err := o.ledger.Append(ctx, session, models.RoleUser, content, nil); err != nil {
		return nil, fmt.Errorf("failed to persist message: %w", err)
	}

	passages := o.retriever.Rank(content, retrievalK)

	genCtx, cancel := context.WithTimeout(ctx, o.generateTimeout)
	defer cancel()
	result, err := o.generator.Generate(genCtx, GenerateRequest{
		Message:            content,
		Passages:           passages,
		History:            history,
		ClarificationCount: clarifications,
	})
	if err != nil {
		// Not retried in-process. The user message stays persisted;
		// resubmission with the same session ID resumes cleanly.
		logger.Ctx(ctx).Error("generation failed",
			"error", err, "session_id", session.ID)
		return nil, fmt.Errorf("generation failed: %w", err)
	}

	refs := ParseCitations(result.Content, passages)
	assistantMsg, err := o.ledger.Append(ctx, session, models.RoleAssistant, result.Content, refs)
	if err != nil {
		return nil, fmt.Errorf("failed to persist response: %w", err)
	}

	return &TurnResponse{
		SessionID:             session.ID,
		Message:               assistantMsg,
		RequiresClarification: result.RequiresClarification,
		IsGriefDetected:       griefDetected,
	}, nil
}
