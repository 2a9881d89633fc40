// Package limiter locks out clients that repeatedly present bad credentials.
package limiter

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Limiter tracks failed authentication attempts per client and places
// temporary blocks.
type Limiter interface {
	// Allow reports whether the client may attempt authentication and, when
	// blocked, how long until it may retry.
	Allow(ctx context.Context, key string) (bool, time.Duration, error)
	// Failure records a failed attempt and reports whether it caused a block.
	Failure(ctx context.Context, key string) (bool, time.Duration, error)
}

// Policy configures when a client is blocked. A failure streak resets once
// no failure has been seen for Window; successful attempts never reset it.
type Policy struct {
	MaxFailures int
	Window      time.Duration
	BlockFor    time.Duration
}

// DefaultPolicy blocks a client for 15 minutes after 20 failures.
func DefaultPolicy() Policy {
	return Policy{MaxFailures: 20, Window: 15 * time.Minute, BlockFor: 15 * time.Minute}
}

func (p Policy) normalize() Policy {
	d := DefaultPolicy()
	if p.MaxFailures <= 0 {
		p.MaxFailures = d.MaxFailures
	}
	if p.Window <= 0 {
		p.Window = d.Window
	}
	if p.BlockFor <= 0 {
		p.BlockFor = d.BlockFor
	}
	return p
}

// HashIP returns a stable key for an address so raw IPs are never stored.
func HashIP(ip string) string {
	h := sha256.Sum256([]byte(ip))
	return hex.EncodeToString(h[:16])
}
