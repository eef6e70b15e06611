package retry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRateLimitDelay_GrowsWithAttempt(t *testing.T) {
	for attempt := 0; attempt < 6; attempt++ {
		d := RateLimitDelay(attempt)
		minExpected := time.Duration(float64(uint64(1)<<uint(attempt)) * float64(time.Second))
		maxExpected := minExpected + 5*time.Second
		assert.GreaterOrEqual(t, d, minExpected)
		assert.Less(t, d, maxExpected)
	}
}

func TestFlatDelay_IsOneSecond(t *testing.T) {
	assert.Equal(t, time.Second, FlatDelay)
}

func TestMaxAttempts_IsTen(t *testing.T) {
	assert.Equal(t, 10, MaxAttempts)
}
