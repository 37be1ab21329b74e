package api

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"time"

	"filippo.io/csrf"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/GracePathHQ/gracepath-web/internal/auth"
	"github.com/GracePathHQ/gracepath-web/internal/clientip"
	"github.com/GracePathHQ/gracepath-web/internal/counsel"
	"github.com/GracePathHQ/gracepath-web/internal/db"
	"github.com/GracePathHQ/gracepath-web/internal/email"
	"github.com/GracePathHQ/gracepath-web/internal/entitlement"
	"github.com/GracePathHQ/gracepath-web/internal/logger"
	"github.com/GracePathHQ/gracepath-web/internal/ratelimit"
	"github.com/GracePathHQ/gracepath-web/internal/storage"
)

// DatabaseTimeout bounds individual database operations in handlers
const DatabaseTimeout = 10 * time.Second

// maxRequestBody limits JSON request bodies. Counseling messages are the
// largest legitimate payload and fit comfortably.
const maxRequestBody = 64 * 1024

// Server holds dependencies for API handlers
type Server struct {
	db           *db.DB
	storage      *storage.S3Storage
	orchestrator *counsel.Orchestrator
	email        *email.RateLimitedService
	entitlements entitlement.Service
	turnLimiter  ratelimit.RateLimiter

	frontendURL    string
	allowedOrigins []string
	adminKey       string
	version        string
}

// Config carries the server's collaborators and settings. Email, storage,
// and the turn limiter are optional; the matching features degrade when
// absent.
type Config struct {
	DB           *db.DB
	Storage      *storage.S3Storage
	Orchestrator *counsel.Orchestrator
	Email        *email.RateLimitedService
	Entitlements entitlement.Service
	TurnLimiter  ratelimit.RateLimiter

	FrontendURL    string
	AllowedOrigins []string
	AdminKey       string
	Version        string
}

// NewServer creates a new API server
func NewServer(cfg Config) *Server {
	return &Server{
		db:             cfg.DB,
		storage:        cfg.Storage,
		orchestrator:   cfg.Orchestrator,
		email:          cfg.Email,
		entitlements:   cfg.Entitlements,
		turnLimiter:    cfg.TurnLimiter,
		frontendURL:    cfg.FrontendURL,
		allowedOrigins: cfg.AllowedOrigins,
		adminKey:       cfg.AdminKey,
		version:        cfg.Version,
	}
}

// SetupRoutes configures HTTP routes
func (s *Server) SetupRoutes() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(clientip.Middleware)
	r.Use(logger.Middleware)
	r.Use(FlyLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "Content-Encoding", "X-Admin-Key"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(middleware.Compress(5))
	r.Use(SpanEnricher)
	r.Use(limitBody(maxRequestBody))

	// Cross-origin request protection for the cookie-authenticated surface
	protection := csrf.New()
	for _, origin := range s.allowedOrigins {
		if err := protection.AddTrustedOrigin(origin); err != nil {
			logger.Warn("skipping invalid trusted origin", "origin", origin, "error", err)
		}
	}
	r.Use(protection.Handler)

	// Health check
	r.Get("/health", s.handleHealth)
	r.Get("/", s.handleRoot)

	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(s.db))
		r.Use(decompressMiddleware())
		r.Use(debugLoggingMiddleware())
		r.Use(validateContentType)

		// Account routes (public)
		r.Post("/auth/register", auth.HandleRegister(s.db))
		r.Post("/auth/login", auth.HandleLogin(s.db))
		r.Post("/auth/logout", auth.HandleLogout(s.db))

		r.Route("/api/v1", func(r chi.Router) {
			r.Post("/client-errors", HandleReportClientErrors())

			// Counseling turn: open to anonymous users, rate limited per
			// user (or per IP when anonymous).
			r.Group(func(r chi.Router) {
				if s.turnLimiter != nil {
					r.Use(ratelimit.UserMiddleware(s.turnLimiter))
				}
				r.Post("/counsel/message", s.handleCounselMessage)
			})

			// Share links resolve for logged-out visitors too; recipient
			// restriction is enforced inside the handler.
			r.Get("/shared/{shareToken}", s.handleGetSharedSession)
			r.Post("/shared/{shareToken}/notes", s.handleCreateSharedNote)

			// Routes requiring an authenticated user
			r.Group(func(r chi.Router) {
				r.Use(auth.RequireAuth)

				r.Get("/me", s.handleGetMe)

				// Session ledger
				r.Get("/sessions", s.handleListSessions)
				r.Get("/sessions/{sessionID}", s.handleGetSession)
				r.Post("/sessions/{sessionID}/complete", s.handleCompleteSession)
				r.Get("/sessions/{sessionID}/transcript", s.handleGetTranscript)

				// Session notes
				r.Get("/sessions/{sessionID}/notes", s.handleListNotes)
				r.Post("/sessions/{sessionID}/notes", s.handleCreateNote)
				r.Patch("/notes/{noteID}", s.handleUpdateNote)
				r.Delete("/notes/{noteID}", s.handleDeleteNote)
				r.Patch("/notes/{noteID}/privacy", s.handleSetNotePrivacy)

				// Session sharing
				r.Post("/sessions/{sessionID}/shares", s.handleCreateShare)
				r.Get("/sessions/{sessionID}/shares", s.handleListShares)
				r.Delete("/shares/{shareID}", s.handleRevokeShare)
				r.Get("/me/shared-with-me", s.handleListAccessedShares)
				r.Post("/me/shared-with-me/{shareID}/dismiss", s.handleDismissShareAccess)

				// Counselor tools
				r.Get("/counselor/members", s.handleListCounselorMembers)
				r.Post("/counselor/coverage", s.handleCreateCoverageGrant)
				r.Delete("/counselor/coverage/{grantID}", s.handleRevokeCoverageGrant)
			})

			// Assignment management is an operator concern, keyed separately
			// from user auth.
			r.Group(func(r chi.Router) {
				r.Use(s.requireAdminKey)
				r.Post("/admin/assignments", s.handleCreateAssignment)
				r.Delete("/admin/assignments/{assignmentID}", s.handleDeactivateAssignment)
			})
		})
	})

	return r
}

// handleHealth returns server health status
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// handleRoot returns API info
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"service": "gracepath-backend",
		"version": s.version,
	})
}

// limitBody caps request body size via MaxBytesReader
func limitBody(n int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Body = http.MaxBytesReader(w, r.Body, n)
			next.ServeHTTP(w, r)
		})
	}
}

// requireAdminKey guards operator endpoints with a shared key. When no key is
// configured the endpoints don't exist as far as callers can tell.
func (s *Server) requireAdminKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.adminKey == "" {
			respondError(w, http.StatusNotFound, "Not found")
			return
		}
		provided := r.Header.Get("X-Admin-Key")
		if subtle.ConstantTimeCompare([]byte(provided), []byte(s.adminKey)) != 1 {
			respondError(w, http.StatusForbidden, "Invalid admin key")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// respondJSON writes a JSON response
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// respondError writes an error JSON response
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{
		"error": message,
	})
}
