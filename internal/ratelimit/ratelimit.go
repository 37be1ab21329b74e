// Package ratelimit provides per-key token bucket rate limiting for the
// HTTP layer. Counseling turns are limited per user; unauthenticated
// endpoints are limited per client IP.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter checks whether a request from a given key may proceed.
// The abstraction leaves room for a distributed implementation if the
// service ever runs more than one instance.
type RateLimiter interface {
	Allow(ctx context.Context, key string) bool
}

// InMemoryRateLimiter implements rate limiting with per-key token buckets
type InMemoryRateLimiter struct {
	rate  rate.Limit
	burst int

	limiters   sync.Map // map[string]*rate.Limiter
	lastAccess sync.Map // map[string]time.Time

	cleanupInterval time.Duration
	maxAge          time.Duration
	stopCleanup     chan struct{}
}

// NewInMemoryRateLimiter creates a limiter allowing rps requests per second
// with the given burst size per key.
func NewInMemoryRateLimiter(rps float64, burst int) *InMemoryRateLimiter {
	limiter := &InMemoryRateLimiter{
		rate:            rate.Limit(rps),
		burst:           burst,
		cleanupInterval: 5 * time.Minute,
		maxAge:          10 * time.Minute,
		stopCleanup:     make(chan struct{}),
	}

	go limiter.cleanup()

	return limiter
}

// Allow reports whether one request from key may proceed now
func (l *InMemoryRateLimiter) Allow(ctx context.Context, key string) bool {
	limiter := l.getLimiter(key)
	l.lastAccess.Store(key, time.Now().UTC())
	return limiter.Allow()
}

func (l *InMemoryRateLimiter) getLimiter(key string) *rate.Limiter {
	if limiter, exists := l.limiters.Load(key); exists {
		return limiter.(*rate.Limiter)
	}

	limiter := rate.NewLimiter(l.rate, l.burst)
	actual, loaded := l.limiters.LoadOrStore(key, limiter)
	if loaded {
		return actual.(*rate.Limiter)
	}

	l.lastAccess.Store(key, time.Now().UTC())
	return limiter
}

// cleanup periodically drops idle buckets so the maps don't grow unbounded
func (l *InMemoryRateLimiter) cleanup() {
	ticker := time.NewTicker(l.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.cleanupOldLimiters()
		case <-l.stopCleanup:
			return
		}
	}
}

func (l *InMemoryRateLimiter) cleanupOldLimiters() {
	cutoff := time.Now().UTC().Add(-l.maxAge)
	var stale []string

	l.lastAccess.Range(func(key, value interface{}) bool {
		if value.(time.Time).Before(cutoff) {
			stale = append(stale, key.(string))
		}
		return true
	})

	for _, key := range stale {
		l.limiters.Delete(key)
		l.lastAccess.Delete(key)
	}
}

// Stop stops the cleanup goroutine
func (l *InMemoryRateLimiter) Stop() {
	close(l.stopCleanup)
}
