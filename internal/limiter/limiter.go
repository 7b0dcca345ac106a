// Package limiter throttles login attempts per (email, client ip) pair.
package limiter

import (
	"context"
	"crypto/sha256"
	"strings"
	"time"
)

// Key identifies the attempt bucket. The ip is only kept as a hash.
type Key struct {
	Email  string
	IPHash []byte
}

// NewKey normalizes email and hashes ip.
func NewKey(email, ip string) Key {
	h := sha256.Sum256([]byte(ip))
	return Key{Email: strings.ToLower(strings.TrimSpace(email)), IPHash: h[:]}
}

// Policy configures the lockout: MaxFails failures within Window block the key for BlockFor.
type Policy struct {
	Window   time.Duration
	MaxFails int
	BlockFor time.Duration
}

// DefaultPolicy allows five failures per fifteen minutes.
func DefaultPolicy() Policy {
	return Policy{Window: 15 * time.Minute, MaxFails: 5, BlockFor: 15 * time.Minute}
}

// Limiter controls login attempts and temporary lockouts.
type Limiter interface {
	// Allow reports whether a login attempt may proceed, and the remaining block otherwise.
	Allow(ctx context.Context, k Key) (bool, time.Duration, error)
	// Success resets the counters of k.
	Success(ctx context.Context, k Key) error
	// Failure records a failed attempt and reports whether k is now blocked.
	Failure(ctx context.Context, k Key) (bool, time.Duration, error)
}

// Nop never blocks; used when no database-backed limiter is configured.
type Nop struct{}

func (Nop) Allow(context.Context, Key) (bool, time.Duration, error)   { return true, 0, nil }
func (Nop) Success(context.Context, Key) error                        { return nil }
func (Nop) Failure(context.Context, Key) (bool, time.Duration, error) { return false, 0, nil }
