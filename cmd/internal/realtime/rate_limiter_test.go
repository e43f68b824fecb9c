package realtime

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(3, time.Second)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	assert.True(t, rl.Allow(now))
	assert.True(t, rl.Allow(now))
	assert.True(t, rl.Allow(now))
	assert.False(t, rl.Allow(now))

	// One token refills every window/limit.
	assert.True(t, rl.Allow(now.Add(400*time.Millisecond)))
	assert.False(t, rl.Allow(now.Add(400*time.Millisecond)))
}
