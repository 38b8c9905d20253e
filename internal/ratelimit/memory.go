package ratelimit

import (
	"context"
	"sync"
	"time"
)

type entry struct {
	attempts    []time.Time
	lockedUntil time.Time
}

// MemoryLimiter is a process-local Limiter.
type MemoryLimiter struct {
	policy  Policy
	mu      sync.Mutex
	entries map[string]*entry
	now     func() time.Time
	stop    chan struct{}
	done    chan struct{}
	once    sync.Once
}

// NewMemoryLimiter creates a limiter that prunes idle keys every window. Call Close when done.
func NewMemoryLimiter(policy Policy) *MemoryLimiter {
	l := &MemoryLimiter{
		policy:  policy.withDefaults(),
		entries: make(map[string]*entry),
		now:     time.Now,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go l.janitor()
	return l
}

func (l *MemoryLimiter) janitor() {
	defer close(l.done)
	ticker := time.NewTicker(l.policy.Window)
	defer ticker.Stop()
	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
			l.prune()
		}
	}
}

func (l *MemoryLimiter) prune() {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, e := range l.entries {
		e.attempts = l.recent(e.attempts, now)
		if len(e.attempts) == 0 && !now.Before(e.lockedUntil) {
			delete(l.entries, key)
		}
	}
}

func (l *MemoryLimiter) recent(attempts []time.Time, now time.Time) []time.Time {
	cutoff := now.Add(-l.policy.Window)
	kept := attempts[:0]
	for _, at := range attempts {
		if at.After(cutoff) {
			kept = append(kept, at)
		}
	}
	return kept
}

// Check implements Limiter.
func (l *MemoryLimiter) Check(_ context.Context, key string) (Decision, error) {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[key]
	if !ok {
		return Decision{Allowed: true}, nil
	}
	if now.Before(e.lockedUntil) {
		return Decision{RetryAfter: e.lockedUntil.Sub(now)}, nil
	}
	return Decision{Allowed: true}, nil
}

// Fail implements Limiter.
func (l *MemoryLimiter) Fail(_ context.Context, key string) (Decision, error) {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[key]
	if !ok {
		e = &entry{}
		l.entries[key] = e
	}
	if now.Before(e.lockedUntil) {
		return Decision{RetryAfter: e.lockedUntil.Sub(now)}, nil
	}
	e.attempts = append(l.recent(e.attempts, now), now)
	if len(e.attempts) >= l.policy.MaxAttempts {
		e.lockedUntil = now.Add(l.policy.Lockout)
		e.attempts = nil
		return Decision{RetryAfter: l.policy.Lockout}, nil
	}
	return Decision{Allowed: true}, nil
}

// Reset implements Limiter.
func (l *MemoryLimiter) Reset(_ context.Context, key string) error {
	l.mu.Lock()
	delete(l.entries, key)
	l.mu.Unlock()
	return nil
}

// Close stops the janitor goroutine.
func (l *MemoryLimiter) Close() error {
	l.once.Do(func() {
		close(l.stop)
		<-l.done
	})
	return nil
}
