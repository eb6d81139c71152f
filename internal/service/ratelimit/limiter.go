// Package ratelimit implements the per-client sliding-window limiter guarding the chat endpoint.
package ratelimit

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"
)

// UnknownClient is the shared bucket for requests without forwarding headers.
const UnknownClient = "unknown"

// Limiter keeps a log of request timestamps per client key.
type Limiter struct {
	window time.Duration
	limit  int
	now    func() time.Time

	mu   sync.Mutex
	logs map[string][]time.Time
}

// Option customises a Limiter.
type Option func(*Limiter)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// New creates a limiter accepting at most limit requests per client within window.
func New(window time.Duration, limit int, opts ...Option) *Limiter {
	l := &Limiter{
		window: window,
		limit:  limit,
		now:    time.Now,
		logs:   make(map[string][]time.Time),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Allow prunes expired timestamps for key and records the request if it fits.
// A rejected request is not recorded.
func (l *Limiter) Allow(key string) bool {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	recent := prune(l.logs[key], now.Add(-l.window))
	if len(recent) >= l.limit {
		l.logs[key] = recent
		return false
	}
	l.logs[key] = append(recent, now)
	return true
}

// Sweep drops keys whose timestamps have all expired and returns how many were removed.
func (l *Limiter) Sweep() int {
	cutoff := l.now().Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for key, stamps := range l.logs {
		recent := prune(stamps, cutoff)
		if len(recent) == 0 {
			delete(l.logs, key)
			removed++
			continue
		}
		l.logs[key] = recent
	}
	return removed
}

// Len reports the number of tracked client keys.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.logs)
}

// RunSweeper calls Sweep every interval until ctx is done.
func (l *Limiter) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Sweep()
		}
	}
}

// prune keeps timestamps strictly after cutoff. Timestamps are appended in order.
func prune(stamps []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(stamps) && !stamps[i].After(cutoff) {
		i++
	}
	if i == 0 {
		return stamps
	}
	return append([]time.Time(nil), stamps[i:]...)
}

// ClientKey derives the limiter key from X-Forwarded-For, then X-Real-IP.
func ClientKey(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
		return UnknownClient
	}
	if realIP := strings.TrimSpace(r.Header.Get("X-Real-IP")); realIP != "" {
		return realIP
	}
	return UnknownClient
}
