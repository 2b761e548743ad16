package adapter

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenBucketBurstThenLimit(t *testing.T) {
	tb := NewTokenBucket("test", 1.0, 3)

	for i := 0; i < 3; i++ {
		require.NoError(t, tb.Acquire(), "burst token %d", i)
	}

	err := tb.Acquire()
	var rl *RateLimitError
	require.ErrorAs(t, err, &rl)
	assert.Greater(t, rl.Wait, time.Duration(0))
	assert.LessOrEqual(t, rl.Wait, 1100*time.Millisecond)
}

func TestTokenBucketRefills(t *testing.T) {
	tb := NewTokenBucket("test", 50.0, 1)
	require.NoError(t, tb.Acquire())
	assert.Error(t, tb.Acquire())

	time.Sleep(40 * time.Millisecond)
	assert.NoError(t, tb.Acquire(), "bucket should have refilled at 50 t/s")
}

func TestTokenBucketWaitRespectsContext(t *testing.T) {
	tb := NewTokenBucket("test", 0.1, 1)
	require.NoError(t, tb.AcquireWait(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	err := tb.AcquireWait(ctx)
	assert.Error(t, err, "waiting 10s for the next token must fail on a 30ms deadline")
}

func TestTokenBucketSteadyThroughput(t *testing.T) {
	tb := NewTokenBucket("test", 100.0, 1)
	require.NoError(t, tb.Acquire())

	granted := 1
	deadline := time.Now().Add(200 * time.Millisecond)
	for time.Now().Before(deadline) {
		if tb.Acquire() == nil {
			granted++
		}
		time.Sleep(time.Millisecond)
	}
	// 100 t/s over 0.2s plus the initial burst token, with slack for timing.
	assert.LessOrEqual(t, granted, 26)
}

func TestSlidingWindow(t *testing.T) {
	now := time.Now()
	sw := NewSlidingWindow("filings", 2, time.Minute)
	sw.now = func() time.Time { return now }

	require.NoError(t, sw.Acquire())
	require.NoError(t, sw.Acquire())

	err := sw.Acquire()
	var rl *RateLimitError
	require.ErrorAs(t, err, &rl)
	assert.InDelta(t, time.Minute.Seconds(), rl.Wait.Seconds(), 1)

	// Advance past the window: oldest stamps fall out.
	now = now.Add(61 * time.Second)
	assert.NoError(t, sw.Acquire())
	assert.Equal(t, 1, sw.InFlight())
}

func TestSlidingWindowAcquireWait(t *testing.T) {
	sw := NewSlidingWindow("filings", 1, 20*time.Millisecond)
	require.NoError(t, sw.Acquire())

	start := time.Now()
	require.NoError(t, sw.AcquireWait(context.Background()))
	assert.GreaterOrEqual(t, time.Since(start), 10*time.Millisecond)
}

func TestLimiterRegistry(t *testing.T) {
	reg := NewLimiterRegistry()
	tb := NewTokenBucket("traffic", 1.0, 10)
	reg.Register("traffic", tb)

	got := reg.Get("traffic")
	require.NotNil(t, got)
	assert.Nil(t, reg.Get("unknown"))

	var _ Limiter = got
	assert.False(t, errors.Is(got.Acquire(), context.Canceled))
}
