package ratelimit

import (
	"sync"
	"time"
)

// Limiter is a sliding-window rate limiter keyed by arbitrary strings
// (delivery channel IDs). A key may pass at most max events per window.
type Limiter struct {
	mu     sync.Mutex
	window time.Duration
	max    int
	hits   map[string][]time.Time
}

// New creates a limiter allowing max events per window for each key.
func New(window time.Duration, max int) *Limiter {
	if window <= 0 {
		window = time.Minute
	}
	if max <= 0 {
		max = 20
	}
	return &Limiter{
		window: window,
		max:    max,
		hits:   make(map[string][]time.Time),
	}
}

// Allow consumes one slot for key if the window has budget.
func (l *Limiter) Allow(key string) bool {
	now := time.Now()
	l.mu.Lock()
	defer l.mu.Unlock()

	hits := l.prune(key, now)
	if len(hits) >= l.max {
		l.hits[key] = hits
		return false
	}
	l.hits[key] = append(hits, now)
	return true
}

// Remaining reports how many slots key has left in the current window.
func (l *Limiter) Remaining(key string) int {
	now := time.Now()
	l.mu.Lock()
	defer l.mu.Unlock()

	hits := l.prune(key, now)
	l.hits[key] = hits
	if n := l.max - len(hits); n > 0 {
		return n
	}
	return 0
}

// prune drops timestamps older than the window. Caller holds the lock.
func (l *Limiter) prune(key string, now time.Time) []time.Time {
	hits := l.hits[key]
	cutoff := now.Add(-l.window)
	i := 0
	for ; i < len(hits); i++ {
		if hits[i].After(cutoff) {
			break
		}
	}
	return hits[i:]
}
