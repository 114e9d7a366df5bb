// ABOUTME: Fixed-window request rate limiter keyed by client identity
// ABOUTME: Counter updates are atomic under a mutex; stale windows are evicted in the background

package ratelimit

import (
	"context"
	"sync"
	"time"
)

// DefaultMaxRequests and DefaultWindow match the gateway quota: 60 calls per
// 60-second window per client.
const (
	DefaultMaxRequests = 60
	DefaultWindow      = time.Minute
)

type window struct {
	start    time.Time
	count    int
	lastSeen time.Time
}

// Limiter enforces a fixed-window quota per client key. It holds the only
// shared mutable state outside the database, so all access goes through a
// single mutex: the check and the increment happen under one critical section
// to avoid undercounting concurrent bursts.
type Limiter struct {
	mu      sync.Mutex
	max     int
	span    time.Duration
	clients map[string]*window

	now func() time.Time // overridable in tests
}

// New creates a limiter allowing max requests per span for each client key.
func New(max int, span time.Duration) *Limiter {
	if max <= 0 {
		max = DefaultMaxRequests
	}
	if span <= 0 {
		span = DefaultWindow
	}
	return &Limiter{
		max:     max,
		span:    span,
		clients: make(map[string]*window),
		now:     time.Now,
	}
}

// Allow records a request for key and reports whether it fits in the current
// window. A new window resets the counter.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w, ok := l.clients[key]
	if !ok || now.Sub(w.start) >= l.span {
		w = &window{start: now}
		l.clients[key] = w
	}
	w.lastSeen = now

	if w.count >= l.max {
		return false
	}
	w.count++
	return true
}

// StartEviction launches a background goroutine that periodically removes
// client windows with no requests in the last maxAge. This keeps memory
// bounded when many distinct clients come and go.
func (l *Limiter) StartEviction(ctx context.Context, interval, maxAge time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				l.evict(maxAge)
			}
		}
	}()
}

func (l *Limiter) evict(maxAge time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-maxAge)
	for key, w := range l.clients {
		if w.lastSeen.Before(cutoff) {
			delete(l.clients, key)
		}
	}
}

// Len returns the number of tracked client windows (for monitoring).
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.clients)
}
