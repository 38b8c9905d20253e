// Package ratelimit throttles login and lost-PIN attempts per (identifier, source address).
package ratelimit

import (
	"context"
	"strings"
	"time"
)

// Policy configures the sliding window and lockout.
type Policy struct {
	// Window is how far back failed attempts are counted.
	Window time.Duration
	// MaxAttempts failures inside Window trigger a lockout.
	MaxAttempts int
	// Lockout is how long a key stays blocked once tripped.
	Lockout time.Duration
}

// DefaultPolicy allows 5 failures per 15 minutes, then locks for 15 minutes.
var DefaultPolicy = Policy{Window: 15 * time.Minute, MaxAttempts: 5, Lockout: 15 * time.Minute}

func (p Policy) withDefaults() Policy {
	if p.Window <= 0 {
		p.Window = DefaultPolicy.Window
	}
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultPolicy.MaxAttempts
	}
	if p.Lockout <= 0 {
		p.Lockout = DefaultPolicy.Lockout
	}
	return p
}

// Decision is the outcome of a check.
type Decision struct {
	Allowed    bool
	RetryAfter time.Duration
}

// Limiter tracks attempts per key.
type Limiter interface {
	// Check reports whether key is currently allowed, without recording anything.
	Check(ctx context.Context, key string) (Decision, error)
	// Fail records a failed attempt and reports whether key is still allowed afterwards.
	Fail(ctx context.Context, key string) (Decision, error)
	// Reset forgets all attempts and any lockout for key.
	Reset(ctx context.Context, key string) error
}

// Key builds a limiter key from an identifier (e.g. email) and a source address.
func Key(identifier, addr string) string {
	return strings.ToLower(strings.TrimSpace(identifier)) + "|" + addr
}
