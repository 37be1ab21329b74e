// Package auth implements cookie-session authentication: registration and
// password login, the session cookie, and the middleware that resolves the
// cookie to a user ID on each request.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/GracePathHQ/gracepath-web/internal/db"
)

const (
	// SessionCookieName is the browser session cookie
	SessionCookieName = "gracepath_session"

	// SessionDuration is how long a web session stays valid
	SessionDuration = 30 * 24 * time.Hour
)

type contextKey string

const userIDContextKey contextKey = "userID"

// generateRandomString returns n random bytes base64-url encoded
func generateRandomString(n int) (string, error) {
	bytes := make([]byte, n)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return base64.URLEncoding.EncodeToString(bytes), nil
}

// cookieSecure reports whether session cookies should carry the Secure flag.
// Disabled only for local development over plain HTTP.
func cookieSecure() bool {
	return os.Getenv("COOKIE_INSECURE") != "true"
}

// CreateSession persists a web session and sets the session cookie
func CreateSession(ctx context.Context, w http.ResponseWriter, database *db.DB, userID int64) error {
	sessionID, err := generateRandomString(32)
	if err != nil {
		return err
	}

	expiresAt := time.Now().UTC().Add(SessionDuration)
	if err := database.CreateWebSession(ctx, sessionID, userID, expiresAt); err != nil {
		return err
	}

	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    sessionID,
		Path:     "/",
		Expires:  expiresAt,
		HttpOnly: true,
		Secure:   cookieSecure(),
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// ClearSession deletes the web session row and expires the cookie
func ClearSession(ctx context.Context, w http.ResponseWriter, r *http.Request, database *db.DB) {
	if cookie, err := r.Cookie(SessionCookieName); err == nil {
		_ = database.DeleteWebSession(ctx, cookie.Value)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   cookieSecure(),
		SameSite: http.SameSiteLaxMode,
	})
}

// Middleware resolves the session cookie to a user ID and stores it in the
// request context. Unauthenticated requests pass through without a user ID;
// handlers that require auth use RequireAuth instead.
func Middleware(database *db.DB) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(SessionCookieName)
			if err != nil || cookie.Value == "" {
				next.ServeHTTP(w, r)
				return
			}

			session, err := database.GetWebSession(r.Context(), cookie.Value)
			if err != nil {
				// Expired or unknown cookie; continue anonymous
				next.ServeHTTP(w, r)
				return
			}

			ctx := context.WithValue(r.Context(), userIDContextKey, session.UserID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAuth rejects requests without an authenticated user
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := GetUserID(r.Context()); !ok {
			http.Error(w, "Authentication required", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// GetUserID extracts the user ID from request context
func GetUserID(ctx context.Context) (int64, bool) {
	userID, ok := ctx.Value(userIDContextKey).(int64)
	return userID, ok
}

// WithUserID returns a context carrying the user ID. Used by tests.
func WithUserID(ctx context.Context, userID int64) context.Context {
	return context.WithValue(ctx, userIDContextKey, userID)
}
