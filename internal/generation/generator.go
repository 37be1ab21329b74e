package generation

import (
	"context"
	"fmt"
	"strings"

	"github.com/GracePathHQ/gracepath-web/internal/counsel"
	"github.com/GracePathHQ/gracepath-web/internal/models"
)

const (
	defaultModel     = "claude-sonnet-4-20250514"
	defaultMaxTokens = 1024

	// clarificationBudget bounds how many clarifying questions the model may
	// ask per session. The orchestrator passes the derived count each turn.
	clarificationBudget = 3

	// clarificationMarker is the tail token the model appends when its reply
	// is a clarifying question rather than guidance. Stripped before the
	// reply is persisted.
	clarificationMarker = "[NEEDS_CLARIFICATION]"
)

const systemPromptTemplate = `You are a compassionate, scripture-grounded counseling guide for GracePath.
Listen carefully, respond with warmth, and ground your guidance in the provided passages.
Cite passages inline using the exact form "Book Chapter:Verse" (for example, Philippians 4:6).
Do not invent scripture; only cite the passages provided below.

Relevant passages for this turn:
%s

%s
If you need to ask the user a clarifying question before giving guidance, end your reply with the token %s on its own.`

// Generator produces counseling replies via the Anthropic Messages API.
// It satisfies counsel.Generator.
type Generator struct {
	client    *Client
	model     string
	maxTokens int
}

// Option configures a Generator
type Option func(*Generator)

// WithModel overrides the model name
func WithModel(model string) Option {
	return func(g *Generator) {
		g.model = model
	}
}

// WithMaxTokens overrides the reply token cap
func WithMaxTokens(n int) Option {
	return func(g *Generator) {
		g.maxTokens = n
	}
}

// NewGenerator wraps a Messages API client as a counseling generator
func NewGenerator(client *Client, opts ...Option) *Generator {
	g := &Generator{
		client:    client,
		model:     defaultModel,
		maxTokens: defaultMaxTokens,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate produces the reply for one counseling turn.
func (g *Generator) Generate(ctx context.Context, req counsel.GenerateRequest) (*counsel.GenerateResult, error) {
	apiReq := &messagesRequest{
		Model:     g.model,
		MaxTokens: g.maxTokens,
		System:    buildSystemPrompt(req),
		Messages:  buildMessages(req),
	}

	resp, err := g.client.createMessage(ctx, apiReq)
	if err != nil {
		return nil, fmt.Errorf("messages call failed: %w", err)
	}

	content := strings.TrimSpace(resp.textContent())
	requiresClarification := false
	if strings.HasSuffix(content, clarificationMarker) {
		requiresClarification = true
		content = strings.TrimSpace(strings.TrimSuffix(content, clarificationMarker))
	}

	return &counsel.GenerateResult{
		Content:               content,
		RequiresClarification: requiresClarification,
	}, nil
}

func buildSystemPrompt(req counsel.GenerateRequest) string {
	var passages strings.Builder
	for _, p := range req.Passages {
		ref := fmt.Sprintf("%s %d:%d", p.Book, p.Chapter, p.VerseStart)
		if p.VerseEnd != nil {
			ref = fmt.Sprintf("%s-%d", ref, *p.VerseEnd)
		}
		fmt.Fprintf(&passages, "- %s (%s): %s\n", ref, p.Translation, p.Text)
	}

	budgetLine := fmt.Sprintf("You have asked %d of at most %d clarifying questions in this conversation.",
		req.ClarificationCount, clarificationBudget)
	if req.ClarificationCount >= clarificationBudget {
		budgetLine = "You have used your clarifying questions for this conversation; give your best guidance now without asking another."
	}

	return fmt.Sprintf(systemPromptTemplate, passages.String(), budgetLine, clarificationMarker)
}

// buildMessages converts the session history plus the current message into
// API turns. System-role ledger entries never reach the model; the API
// accepts user and assistant roles only.
func buildMessages(req counsel.GenerateRequest) []apiMessage {
	messages := make([]apiMessage, 0, len(req.History)+1)
	for _, h := range req.History {
		switch h.Role {
		case models.RoleUser:
			messages = append(messages, apiMessage{Role: "user", Content: h.Content})
		case models.RoleAssistant:
			messages = append(messages, apiMessage{Role: "assistant", Content: h.Content})
		}
	}
	messages = append(messages, apiMessage{Role: "user", Content: req.Message})
	return messages
}
