package service

import (
	"time"

	"github.com/fortuna-labs/keeper/keeper/config"
)

// Backoff is the exponential delay schedule of one delivery. It is not safe
// for concurrent use; each delivery owns its own instance.
type Backoff struct {
	initial     time.Duration
	multiplier  float64
	maxInterval time.Duration
	maxElapsed  time.Duration

	current time.Duration
	start   time.Time
	now     func() time.Time
}

func NewBackoff(cfg *config.DeliveryConfig) *Backoff {
	b := &Backoff{
		initial:     cfg.BackoffInitialInterval,
		multiplier:  cfg.BackoffMultiplier,
		maxInterval: cfg.BackoffMaxInterval,
		maxElapsed:  cfg.BackoffMaxElapsed,
		now:         time.Now,
	}
	b.Reset()

	return b
}

// Reset restarts the schedule and the elapsed time clock.
func (b *Backoff) Reset() {
	b.current = b.initial
	b.start = b.now()
}

// NextDelay returns the delay before the next attempt and grows the
// following one.
func (b *Backoff) NextDelay() time.Duration {
	delay := b.current

	next := time.Duration(float64(b.current) * b.multiplier)
	if next > b.maxInterval || next < b.current {
		next = b.maxInterval
	}
	b.current = next

	return delay
}

func (b *Backoff) Elapsed() time.Duration {
	return b.now().Sub(b.start)
}

// Expired reports whether waiting for another attempt would exceed the
// maximum elapsed time.
func (b *Backoff) Expired() bool {
	return b.Elapsed()+b.current > b.maxElapsed
}
