package retry

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// TestRateLimitDelay_Property_BoundedByExponentialPlusJitter checks the
// same invariant as backoff_test.go's table version, but over gopter's
// generated attempt range rather than a fixed loop. The pipeline's
// collation invariants use rapid instead; gopter is used only here,
// where rapid's shrinking behavior is not needed.
func TestRateLimitDelay_Property_BoundedByExponentialPlusJitter(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	properties := gopter.NewProperties(parameters)

	properties.Property("delay falls within [2^attempt, 2^attempt+5) seconds", prop.ForAll(
		func(attempt int) bool {
			d := RateLimitDelay(attempt)
			min := time.Duration(float64(uint64(1)<<uint(attempt)) * float64(time.Second))
			max := min + 5*time.Second
			return d >= min && d < max
		},
		gen.IntRange(0, 10),
	))

	properties.TestingRun(t)
}
