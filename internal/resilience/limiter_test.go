package resilience

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdaptiveLimiterBacksOffAndRecovers(t *testing.T) {
	l := NewAdaptiveLimiter(8)
	assert.InDelta(t, 8, l.Rate(), 0.001)

	l.OnThrottle()
	assert.InDelta(t, 4, l.Rate(), 0.001)
	l.OnThrottle()
	assert.InDelta(t, 2, l.Rate(), 0.001)

	// Rate creeps back up but never passes the ceiling.
	for i := 0; i < 100; i++ {
		l.OnSuccess()
	}
	assert.InDelta(t, 8, l.Rate(), 0.001)
}

func TestAdaptiveLimiterFloor(t *testing.T) {
	l := NewAdaptiveLimiter(8)
	for i := 0; i < 20; i++ {
		l.OnThrottle()
	}
	assert.InDelta(t, 1, l.Rate(), 0.001, "rate bottoms out at an eighth of the ceiling")
}

func TestAdaptiveLimiterWaitHonorsContext(t *testing.T) {
	l := NewAdaptiveLimiter(1)
	require.NoError(t, l.Wait(context.Background()), "first token is available immediately")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, l.Wait(ctx))
}

func TestAdaptiveLimiterDefaultsInvalidRate(t *testing.T) {
	l := NewAdaptiveLimiter(0)
	assert.InDelta(t, 1, l.Rate(), 0.001)
}
