package ratelimit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/GracePathHQ/gracepath-web/internal/auth"
	"github.com/GracePathHQ/gracepath-web/internal/clientip"
)

func TestInMemoryRateLimiter(t *testing.T) {
	limiter := NewInMemoryRateLimiter(1, 2)
	defer limiter.Stop()

	ctx := context.Background()

	if !limiter.Allow(ctx, "a") {
		t.Error("first request should pass")
	}
	if !limiter.Allow(ctx, "a") {
		t.Error("second request should pass within burst")
	}
	if limiter.Allow(ctx, "a") {
		t.Error("third request should be limited")
	}

	// Separate key has its own bucket
	if !limiter.Allow(ctx, "b") {
		t.Error("different key should have its own bucket")
	}
}

func newLimitedHandler(limiter RateLimiter) http.Handler {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return clientip.Middleware(Middleware(limiter)(inner))
}

func TestMiddlewareReturns429(t *testing.T) {
	limiter := NewInMemoryRateLimiter(0.1, 1)
	defer limiter.Stop()

	handler := newLimitedHandler(limiter)

	send := func() int {
		req := httptest.NewRequest("GET", "/api/v1/counsel/message", nil)
		req.RemoteAddr = "192.0.2.10:5000"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	if code := send(); code != http.StatusOK {
		t.Errorf("first request status = %d, want 200", code)
	}
	if code := send(); code != http.StatusTooManyRequests {
		t.Errorf("second request status = %d, want 429", code)
	}
}

func TestMiddlewareSeparatesClients(t *testing.T) {
	limiter := NewInMemoryRateLimiter(0.1, 1)
	defer limiter.Stop()

	handler := newLimitedHandler(limiter)

	send := func(addr string) int {
		req := httptest.NewRequest("GET", "/", nil)
		req.RemoteAddr = addr
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	if code := send("192.0.2.10:5000"); code != http.StatusOK {
		t.Errorf("client A status = %d, want 200", code)
	}
	if code := send("192.0.2.11:5000"); code != http.StatusOK {
		t.Errorf("client B should have its own bucket, got %d", code)
	}
}

func TestUserMiddlewareKeysByUser(t *testing.T) {
	limiter := NewInMemoryRateLimiter(0.1, 1)
	defer limiter.Stop()

	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	handler := clientip.Middleware(UserMiddleware(limiter)(inner))

	send := func(userID int64) int {
		req := httptest.NewRequest("POST", "/api/v1/counsel/message", nil)
		req.RemoteAddr = "192.0.2.10:5000"
		req = req.WithContext(auth.WithUserID(req.Context(), userID))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	if code := send(1); code != http.StatusOK {
		t.Errorf("user 1 first request = %d, want 200", code)
	}
	if code := send(1); code != http.StatusTooManyRequests {
		t.Errorf("user 1 second request = %d, want 429", code)
	}
	// Same IP, different user: separate bucket
	if code := send(2); code != http.StatusOK {
		t.Errorf("user 2 should have its own bucket, got %d", code)
	}
}
