// Package dispatch provides the small timing primitives used by the
// orchestration modules: a fixed-rate throttle for batch flushing and a
// last-call-wins debounce for coalescing bursts of updates.
package dispatch

import (
	"context"
	"time"
)

// ThrottleOption configures optional Throttle behavior.
type ThrottleOption func(*Throttle)

// ResetIntervalOnError delays the next invocation by a full interval whenever
// the callback returns an error, rather than keeping the fixed cadence.
func ResetIntervalOnError() ThrottleOption {
	return func(t *Throttle) { t.resetOnError = true }
}

// Throttle invokes a callback at a fixed interval. It is the scheduling half
// of the analytics pipeline but carries no knowledge of what it invokes.
type Throttle struct {
	interval     time.Duration
	fn           func() error
	resetOnError bool
}

func NewThrottle(interval time.Duration, fn func() error, opts ...ThrottleOption) *Throttle {
	t := &Throttle{interval: interval, fn: fn}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Run blocks, invoking the callback every interval until ctx is canceled.
func (t *Throttle) Run(ctx context.Context) {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := t.fn(); err != nil && t.resetOnError {
				// Restart the full interval from the moment of failure to
				// give the downstream accessor room to recover.
				ticker.Reset(t.interval)
			}
		}
	}
}
