// Package retry computes the backoff delays the Client's retry loop
// sleeps between attempts.
package retry

import (
	"math"
	"math/rand"
	"time"
)

// MaxAttempts is the shared ceiling for both the rate-limit backoff path
// and the flat-delay path.
const MaxAttempts = 10

// RateLimitDelay returns the exponential-backoff-plus-jitter delay for a
// rate-limited attempt: 2^attempt seconds plus a uniform random jitter
// in [0, 5) seconds. attempt is 0-indexed (the first retry is attempt 0).
func RateLimitDelay(attempt int) time.Duration {
	base := math.Pow(2, float64(attempt))
	jitter := rand.Float64() * 5
	return time.Duration((base + jitter) * float64(time.Second))
}

// FlatDelay is the sleep between attempts for transport resets, generic
// upstream errors, and empty-stream responses: a constant 1 second,
// no jitter, no growth.
const FlatDelay = time.Second
