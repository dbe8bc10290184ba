package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fortuna-labs/keeper/keeper/config"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestBackoff(cfg *config.DeliveryConfig) (*Backoff, *fakeClock) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	b := NewBackoff(cfg)
	b.now = clock.Now
	b.Reset()

	return b, clock
}

func TestBackoffSchedule(t *testing.T) {
	t.Parallel()

	b, _ := newTestBackoff(&config.DeliveryConfig{
		BackoffInitialInterval: time.Second,
		BackoffMultiplier:      2,
		BackoffMaxInterval:     5 * time.Second,
		BackoffMaxElapsed:      time.Minute,
	})

	expected := []time.Duration{
		time.Second,
		2 * time.Second,
		4 * time.Second,
		5 * time.Second,
		5 * time.Second,
	}
	for i, d := range expected {
		require.Equal(t, d, b.NextDelay(), "delay %d", i)
	}

	b.Reset()
	require.Equal(t, time.Second, b.NextDelay())
}

func TestBackoffExpiry(t *testing.T) {
	t.Parallel()

	b, clock := newTestBackoff(&config.DeliveryConfig{
		BackoffInitialInterval: time.Second,
		BackoffMultiplier:      2,
		BackoffMaxInterval:     5 * time.Second,
		BackoffMaxElapsed:      10 * time.Second,
	})

	require.False(t, b.Expired())
	require.Equal(t, time.Duration(0), b.Elapsed())

	// next delay is now 2s
	b.NextDelay()
	clock.Advance(8 * time.Second)
	require.False(t, b.Expired())
	require.Equal(t, 8*time.Second, b.Elapsed())

	clock.Advance(time.Millisecond)
	require.True(t, b.Expired())

	b.Reset()
	require.False(t, b.Expired())
	require.Equal(t, time.Duration(0), b.Elapsed())
}

func TestBackoffOverflowSaturates(t *testing.T) {
	t.Parallel()

	b, _ := newTestBackoff(&config.DeliveryConfig{
		BackoffInitialInterval: time.Duration(1 << 62),
		BackoffMultiplier:      4,
		BackoffMaxInterval:     time.Duration(1<<63 - 1),
		BackoffMaxElapsed:      time.Duration(1<<63 - 1),
	})

	require.Equal(t, time.Duration(1<<62), b.NextDelay())
	require.Equal(t, time.Duration(1<<63-1), b.NextDelay())
}
