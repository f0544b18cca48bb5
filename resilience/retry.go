package resilience

import (
	"math"
	"math/rand"
	"time"

	"github.com/tripmind/tripmind/core"
)

// RetryPolicy configures exponential-backoff retries. Retries apply only
// to error kinds in RetryableKinds.
type RetryPolicy struct {
	MaxRetries        int
	InitialDelay      time.Duration
	MaxDelay          time.Duration
	BackoffMultiplier float64
	JitterEnabled     bool
	RetryableKinds    []core.ErrorKind
}

// DefaultRetryPolicy provides sensible defaults.
func DefaultRetryPolicy() *RetryPolicy {
	return &RetryPolicy{
		MaxRetries:        3,
		InitialDelay:      1 * time.Second,
		MaxDelay:          10 * time.Second,
		BackoffMultiplier: 2.0,
		JitterEnabled:     true,
		RetryableKinds: []core.ErrorKind{
			core.ErrorKindTimeout,
			core.ErrorKindNetwork,
			core.ErrorKindAuthentication,
		},
	}
}

// Allows reports whether the policy retries the given error kind.
func (p *RetryPolicy) Allows(kind core.ErrorKind) bool {
	for _, k := range p.RetryableKinds {
		if k == kind {
			return true
		}
	}
	return false
}

// DelayFor computes the backoff before retry attempt n (0-based):
//
//	delay = min(initial * multiplier^attempt, max)
//
// with an optional ±10% jitter to de-synchronize retrying clients
// (thundering herd mitigation).
func (p *RetryPolicy) DelayFor(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	delay := float64(p.InitialDelay) * math.Pow(p.BackoffMultiplier, float64(attempt))
	if max := float64(p.MaxDelay); delay > max {
		delay = max
	}
	if p.JitterEnabled {
		delay += delay * 0.1 * (2*rand.Float64() - 1)
	}
	return time.Duration(delay)
}
