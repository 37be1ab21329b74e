package ratelimit

import (
	"fmt"
	"net/http"

	"github.com/GracePathHQ/gracepath-web/internal/auth"
	"github.com/GracePathHQ/gracepath-web/internal/clientip"
	"github.com/GracePathHQ/gracepath-web/internal/logger"
)

// Middleware applies IP-keyed rate limiting to all requests it wraps.
// The key comes from clientip.Middleware, which must run earlier in the
// chain.
func Middleware(limiter RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := clientip.FromRequest(r).RateLimitKey

			if !limiter.Allow(r.Context(), key) {
				logger.Ctx(r.Context()).Warn("rate limit exceeded",
					"key", key, "path", r.URL.Path)
				http.Error(w, "Rate limit exceeded. Please try again later.", http.StatusTooManyRequests)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// UserMiddleware applies rate limiting keyed by the authenticated user,
// falling back to the client IP for anonymous requests. Used on the
// counseling turn endpoint where generation cost is per-user.
func UserMiddleware(limiter RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := clientip.FromRequest(r).RateLimitKey
			if userID, ok := auth.GetUserID(r.Context()); ok {
				key = fmt.Sprintf("user:%d", userID)
			}

			if !limiter.Allow(r.Context(), key) {
				logger.Ctx(r.Context()).Warn("rate limit exceeded",
					"key", key, "path", r.URL.Path)
				http.Error(w, "Rate limit exceeded. Please try again later.", http.StatusTooManyRequests)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
