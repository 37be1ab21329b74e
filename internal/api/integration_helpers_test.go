package api

import (
	"context"
	"testing"

	"github.com/GracePathHQ/gracepath-web/internal/counsel"
	"github.com/GracePathHQ/gracepath-web/internal/entitlement"
	"github.com/GracePathHQ/gracepath-web/internal/safety"
	"github.com/GracePathHQ/gracepath-web/internal/scripture"
	"github.com/GracePathHQ/gracepath-web/internal/testutil"
)

// testAdminKey guards operator endpoints in integration tests
const testAdminKey = "test-admin-key"

// stubGenerator returns a canned counseling reply without calling upstream
type stubGenerator struct {
	content  string
	clarify  bool
	err      error
	requests []counsel.GenerateRequest
}

func (g *stubGenerator) Generate(ctx context.Context, req counsel.GenerateRequest) (*counsel.GenerateResult, error) {
	g.requests = append(g.requests, req)
	if g.err != nil {
		return nil, g.err
	}
	content := g.content
	if content == "" {
		content = "Thank you for sharing that with me. Philippians 4:6-7 reminds us to bring every anxiety to God in prayer."
	}
	return &counsel.GenerateResult{
		Content:               content,
		RequiresClarification: g.clarify,
	}, nil
}

// newTestOrchestrator wires the turn pipeline with embedded keyword lists and
// corpus, backed by the given generator.
func newTestOrchestrator(t *testing.T, env *testutil.TestEnvironment, gen counsel.Generator) *counsel.Orchestrator {
	t.Helper()

	crisis, err := safety.DefaultCrisisKeywords()
	if err != nil {
		t.Fatalf("failed to load crisis keywords: %v", err)
	}
	grief, err := safety.DefaultGriefKeywords()
	if err != nil {
		t.Fatalf("failed to load grief keywords: %v", err)
	}
	corpus, err := scripture.LoadCorpusFile("")
	if err != nil {
		t.Fatalf("failed to load corpus: %v", err)
	}

	return counsel.NewOrchestrator(
		safety.NewGate(crisis, grief),
		scripture.NewRetriever(corpus),
		counsel.NewLedger(env.DB),
		gen,
	)
}

// setupAPITestServer starts a full HTTP server with the production router.
// Mutators adjust the server config before construction.
func setupAPITestServer(t *testing.T, env *testutil.TestEnvironment, gen counsel.Generator, mutators ...func(*Config)) *testutil.TestServer {
	t.Helper()

	if gen == nil {
		gen = &stubGenerator{}
	}

	cfg := Config{
		DB:             env.DB,
		Storage:        env.Storage,
		Orchestrator:   newTestOrchestrator(t, env, gen),
		Entitlements:   &entitlement.StaticService{Entitled: true},
		FrontendURL:    "http://localhost:3000",
		AllowedOrigins: []string{"http://localhost:3000"},
		AdminKey:       testAdminKey,
		Version:        "test",
	}
	for _, m := range mutators {
		m(&cfg)
	}

	apiServer := NewServer(cfg)
	return testutil.StartTestServer(t, env, apiServer.SetupRoutes())
}
