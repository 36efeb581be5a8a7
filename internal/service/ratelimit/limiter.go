package ratelimit

import (
	"sync"
	"time"
)

type bucket struct {
	tokens float64
	last   time.Time
}

// Limiter is a keyed token bucket. Every key starts full.
type Limiter struct {
	mu       sync.Mutex
	m        map[string]*bucket
	capacity float64
	perSec   float64
	now      func() time.Time

	idle      time.Duration
	lastPrune time.Time
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		if now != nil {
			l.now = now
		}
	}
}

// WithIdleEviction drops keys whose buckets have been full for at least idle.
// Eviction runs from Allow at most once per idle period. Zero disables it.
func WithIdleEviction(idle time.Duration) Option {
	return func(l *Limiter) {
		l.idle = idle
	}
}

// New creates a limiter allowing burst requests per key, refilled at perSec.
func New(burst, perSec float64, opts ...Option) *Limiter {
	l := &Limiter{
		m:        make(map[string]*bucket),
		capacity: burst,
		perSec:   perSec,
		now:      time.Now,
		idle:     10 * time.Minute,
	}
	for _, opt := range opts {
		opt(l)
	}
	l.lastPrune = l.now()
	return l
}

// Allow returns true if one token can be consumed for key.
func (l *Limiter) Allow(key string) bool {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.idle > 0 && now.Sub(l.lastPrune) >= l.idle {
		l.prune(now)
	}

	b, ok := l.m[key]
	if !ok {
		b = &bucket{tokens: l.capacity, last: now}
		l.m[key] = b
	}
	if elapsed := now.Sub(b.last).Seconds(); elapsed > 0 {
		b.tokens = min(b.tokens+elapsed*l.perSec, l.capacity)
		b.last = now
	}
	if b.tokens >= 1 {
		b.tokens--
		return true
	}
	return false
}

// prune must be called with mu held.
func (l *Limiter) prune(now time.Time) {
	l.lastPrune = now
	for k, b := range l.m {
		full := b.tokens+now.Sub(b.last).Seconds()*l.perSec >= l.capacity
		if full && now.Sub(b.last) >= l.idle {
			delete(l.m, k)
		}
	}
}
