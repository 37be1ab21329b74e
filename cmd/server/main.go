package main

import (
	"context"
	"fmt"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/honeycombio/otel-config-go/otelconfig"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/GracePathHQ/gracepath-web/internal/api"
	"github.com/GracePathHQ/gracepath-web/internal/counsel"
	"github.com/GracePathHQ/gracepath-web/internal/db"
	"github.com/GracePathHQ/gracepath-web/internal/email"
	"github.com/GracePathHQ/gracepath-web/internal/entitlement"
	"github.com/GracePathHQ/gracepath-web/internal/generation"
	"github.com/GracePathHQ/gracepath-web/internal/logger"
	"github.com/GracePathHQ/gracepath-web/internal/ratelimit"
	"github.com/GracePathHQ/gracepath-web/internal/safety"
	"github.com/GracePathHQ/gracepath-web/internal/scripture"
	"github.com/GracePathHQ/gracepath-web/internal/storage"
)

var version string

func main() {
	// Start pprof debug server if enabled (for memory/CPU profiling)
	// Access via: fly proxy 6060:6060 -a gracepath-backend
	if os.Getenv("ENABLE_PPROF") == "true" {
		go startPprofServer()
	}

	// Initialize OpenTelemetry (sends traces to Honeycomb)
	// Configured via env vars: OTEL_SERVICE_NAME, OTEL_EXPORTER_OTLP_ENDPOINT, OTEL_EXPORTER_OTLP_HEADERS
	otelShutdown, err := otelconfig.ConfigureOpenTelemetry()
	if err != nil {
		logger.Warn("failed to configure OpenTelemetry", "error", err)
		// Non-fatal: continue without tracing if OTEL env vars not set
	} else {
		defer otelShutdown()
	}

	// Load configuration from environment
	config := loadConfig()

	// Initialize database connection
	// Note: Migrations are run separately via CLI before starting the server
	// See: migrate -database "$DATABASE_URL" -path internal/db/migrations up
	database, err := db.Connect(config.DatabaseURL)
	if err != nil {
		logger.Fatal("failed to connect to database", "error", err)
	}
	defer database.Close()

	// Initialize S3/MinIO storage for transcript archives
	store, err := storage.NewS3Storage(config.S3Config)
	if err != nil {
		logger.Fatal("failed to initialize storage", "error", err)
	}

	// Safety keyword lists and verse corpus ship embedded; file overrides
	// let pastoral-care review update them without a deploy.
	crisisList, err := loadKeywordList(config.CrisisKeywordsPath, safety.DefaultCrisisKeywords)
	if err != nil {
		logger.Fatal("failed to load crisis keywords", "error", err)
	}
	griefList, err := loadKeywordList(config.GriefKeywordsPath, safety.DefaultGriefKeywords)
	if err != nil {
		logger.Fatal("failed to load grief keywords", "error", err)
	}
	corpus, err := scripture.LoadCorpusFile(config.VerseCorpusPath)
	if err != nil {
		logger.Fatal("failed to load verse corpus", "error", err)
	}
	logger.Info("counseling corpus loaded",
		"crisis_version", crisisList.Version,
		"grief_version", griefList.Version,
		"passages", len(corpus.Passages))

	// Generation client
	generator := generation.NewGenerator(generation.NewClient(config.AnthropicAPIKey))

	orchestrator := counsel.NewOrchestrator(
		safety.NewGate(crisisList, griefList),
		scripture.NewRetriever(corpus),
		counsel.NewLedger(database),
		generator,
	)

	// Initialize email service (optional)
	var emailService *email.RateLimitedService
	if config.EmailConfig.Enabled {
		resendService := email.NewResendService(
			config.EmailConfig.APIKey,
			config.EmailConfig.FromAddress,
			config.EmailConfig.FromName,
		)
		emailService = email.NewRateLimitedService(resendService, config.EmailConfig.RateLimitPerHour)
		logger.Info("email service configured", "provider", "resend", "rate_limit_per_hour", config.EmailConfig.RateLimitPerHour)
	} else {
		logger.Info("email service disabled (RESEND_API_KEY or EMAIL_FROM_ADDRESS not set)")
	}

	// Per-user turn rate limiting
	turnLimiter := ratelimit.NewInMemoryRateLimiter(config.TurnRatePerSecond, config.TurnBurst)

	// Create API server
	server := api.NewServer(api.Config{
		DB:             database,
		Storage:        store,
		Orchestrator:   orchestrator,
		Email:          emailService,
		Entitlements:   entitlement.NewDBService(database),
		TurnLimiter:    turnLimiter,
		FrontendURL:    config.FrontendURL,
		AllowedOrigins: config.AllowedOrigins,
		AdminKey:       config.AdminKey,
		Version:        version,
	})
	router := server.SetupRoutes()

	// Wrap router with OpenTelemetry HTTP instrumentation
	// This automatically traces all incoming HTTP requests
	handler := otelhttp.NewHandler(router, "gracepath-backend-prod")

	// HTTP server configuration
	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", config.Port),
		Handler:      handler,
		ReadTimeout:  config.ReadTimeout,  // Configurable via HTTP_READ_TIMEOUT (default: 30s)
		WriteTimeout: config.WriteTimeout, // Configurable via HTTP_WRITE_TIMEOUT (default: 30s)
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info("starting server", "port", config.Port, "version", version)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", "error", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Fatal("server forced to shutdown", "error", err)
	}

	logger.Info("server stopped")
}

type Config struct {
	Port         int
	DatabaseURL  string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	S3Config     storage.S3Config
	EmailConfig  EmailConfig

	AnthropicAPIKey string

	FrontendURL    string
	AllowedOrigins []string
	AdminKey       string

	// Optional file overrides for the embedded review artifacts
	CrisisKeywordsPath string
	GriefKeywordsPath  string
	VerseCorpusPath    string

	TurnRatePerSecond float64
	TurnBurst         int
}

type EmailConfig struct {
	Enabled          bool
	APIKey           string
	FromAddress      string
	FromName         string
	RateLimitPerHour int
}

func loadConfig() Config {
	port := 8080
	if p := os.Getenv("PORT"); p != "" {
		fmt.Sscanf(p, "%d", &port)
	}

	// HTTP timeout configuration (defaults to 30s)
	readTimeout := 30 * time.Second
	if rt := os.Getenv("HTTP_READ_TIMEOUT"); rt != "" {
		if parsed, err := time.ParseDuration(rt); err == nil {
			readTimeout = parsed
		}
	}

	writeTimeout := 30 * time.Second
	if wt := os.Getenv("HTTP_WRITE_TIMEOUT"); wt != "" {
		if parsed, err := time.ParseDuration(wt); err == nil {
			writeTimeout = parsed
		}
	}

	// Validate required S3/storage configuration
	s3Endpoint := os.Getenv("S3_ENDPOINT")
	if s3Endpoint == "" {
		logger.Fatal("missing required env var", "var", "S3_ENDPOINT")
	}

	awsAccessKeyID := os.Getenv("AWS_ACCESS_KEY_ID")
	if awsAccessKeyID == "" {
		logger.Fatal("missing required env var", "var", "AWS_ACCESS_KEY_ID")
	}

	awsSecretAccessKey := os.Getenv("AWS_SECRET_ACCESS_KEY")
	if awsSecretAccessKey == "" {
		logger.Fatal("missing required env var", "var", "AWS_SECRET_ACCESS_KEY")
	}

	bucketName := os.Getenv("BUCKET_NAME")
	if bucketName == "" {
		logger.Fatal("missing required env var", "var", "BUCKET_NAME")
	}

	// Validate required database configuration
	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		logger.Fatal("missing required env var", "var", "DATABASE_URL")
	}

	// Generation upstream
	anthropicAPIKey := os.Getenv("ANTHROPIC_API_KEY")
	if anthropicAPIKey == "" {
		logger.Fatal("missing required env var", "var", "ANTHROPIC_API_KEY")
	}

	// Validate required frontend configuration
	frontendURL := os.Getenv("FRONTEND_URL")
	if frontendURL == "" {
		logger.Fatal("missing required env var", "var", "FRONTEND_URL")
	}

	allowedOrigins := os.Getenv("ALLOWED_ORIGINS")
	if allowedOrigins == "" {
		logger.Fatal("missing required env var", "var", "ALLOWED_ORIGINS", "hint", "comma-separated list of allowed origins")
	}
	var origins []string
	for _, origin := range strings.Split(allowedOrigins, ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			origins = append(origins, origin)
		}
	}

	// Operator key for assignment management (optional; endpoints are
	// hidden when unset)
	adminKey := os.Getenv("ADMIN_API_KEY")
	if adminKey == "" {
		logger.Info("ADMIN_API_KEY not set, assignment endpoints disabled")
	}

	// Email configuration (optional)
	resendAPIKey := os.Getenv("RESEND_API_KEY")
	emailFromAddress := os.Getenv("EMAIL_FROM_ADDRESS")
	emailFromName := os.Getenv("EMAIL_FROM_NAME")
	if emailFromName == "" {
		emailFromName = "GracePath"
	}

	emailRateLimitPerHour := 100 // Default: 100 emails per hour per user
	if rateLimit := os.Getenv("EMAIL_RATE_LIMIT_PER_HOUR"); rateLimit != "" {
		fmt.Sscanf(rateLimit, "%d", &emailRateLimitPerHour)
	}

	// Email is enabled only if both API key and from address are set
	emailEnabled := resendAPIKey != "" && emailFromAddress != ""

	// Counseling turn rate limit (per user, or per IP when anonymous)
	turnRate := 0.5 // Default: 30 turns per minute sustained
	if r := os.Getenv("TURN_RATE_PER_SECOND"); r != "" {
		fmt.Sscanf(r, "%f", &turnRate)
	}
	turnBurst := 5
	if b := os.Getenv("TURN_RATE_BURST"); b != "" {
		fmt.Sscanf(b, "%d", &turnBurst)
	}

	return Config{
		Port:         port,
		DatabaseURL:  databaseURL,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		S3Config: storage.S3Config{
			Endpoint:        s3Endpoint,
			AccessKeyID:     awsAccessKeyID,
			SecretAccessKey: awsSecretAccessKey,
			BucketName:      bucketName,
			UseSSL:          os.Getenv("S3_USE_SSL") != "false", // Default true
		},
		EmailConfig: EmailConfig{
			Enabled:          emailEnabled,
			APIKey:           resendAPIKey,
			FromAddress:      emailFromAddress,
			FromName:         emailFromName,
			RateLimitPerHour: emailRateLimitPerHour,
		},
		AnthropicAPIKey:    anthropicAPIKey,
		FrontendURL:        frontendURL,
		AllowedOrigins:     origins,
		AdminKey:           adminKey,
		CrisisKeywordsPath: os.Getenv("CRISIS_KEYWORDS_PATH"),
		GriefKeywordsPath:  os.Getenv("GRIEF_KEYWORDS_PATH"),
		VerseCorpusPath:    os.Getenv("VERSE_CORPUS_PATH"),
		TurnRatePerSecond:  turnRate,
		TurnBurst:          turnBurst,
	}
}

// loadKeywordList resolves a keyword list from an override path or the
// embedded default.
func loadKeywordList(path string, embedded func() (*safety.KeywordList, error)) (*safety.KeywordList, error) {
	if path == "" {
		return embedded()
	}
	return safety.LoadKeywordListFile(path, nil)
}

// startPprofServer starts a pprof debug server on localhost:6060.
// This server is only accessible locally (127.0.0.1) and is intended
// for use with `fly proxy 6060:6060` for remote debugging.
//
// Available endpoints:
//   - /debug/pprof/heap      - heap memory profile
//   - /debug/pprof/goroutine - goroutine stack traces
//   - /debug/pprof/allocs    - allocation profile
//   - /debug/pprof/profile   - CPU profile (30s default)
//   - /debug/pprof/trace     - execution trace
func startPprofServer() {
	mux := http.NewServeMux()

	// Register pprof handlers
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	// Register specific profile handlers
	mux.Handle("/debug/pprof/heap", pprof.Handler("heap"))
	mux.Handle("/debug/pprof/goroutine", pprof.Handler("goroutine"))
	mux.Handle("/debug/pprof/allocs", pprof.Handler("allocs"))
	mux.Handle("/debug/pprof/block", pprof.Handler("block"))
	mux.Handle("/debug/pprof/mutex", pprof.Handler("mutex"))
	mux.Handle("/debug/pprof/threadcreate", pprof.Handler("threadcreate"))

	addr := "127.0.0.1:6060"
	logger.Info("pprof debug server starting", "addr", addr)

	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Warn("pprof server failed", "error", err)
	}
}
