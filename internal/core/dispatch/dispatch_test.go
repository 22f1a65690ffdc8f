package dispatch

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestThrottleFiresAtInterval(t *testing.T) {
	var calls atomic.Int32
	throttle := NewThrottle(10*time.Millisecond, func() error {
		calls.Add(1)
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 105*time.Millisecond)
	defer cancel()
	throttle.Run(ctx)

	got := calls.Load()
	assert.GreaterOrEqual(t, got, int32(5), "throttle fired too rarely")
	assert.LessOrEqual(t, got, int32(12), "throttle fired too often")
}

func TestThrottleResetIntervalOnError(t *testing.T) {
	var times []time.Time
	done := make(chan struct{})
	throttle := NewThrottle(20*time.Millisecond, func() error {
		switch len(times) {
		case 0:
			times = append(times, time.Now())
			// Simulate a slow failing flush.
			time.Sleep(30 * time.Millisecond)
			return errors.New("accessor unavailable")
		case 1:
			times = append(times, time.Now())
			close(done)
		}
		return nil
	}, ResetIntervalOnError())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go throttle.Run(ctx)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("throttle never fired a second time")
	}

	require.Len(t, times, 2)
	// The second fire must come a full interval after the failed call ended
	// (30ms of work + 20ms interval), not on the original cadence.
	assert.GreaterOrEqual(t, times[1].Sub(times[0]), 45*time.Millisecond)
}

func TestDebounceLastCallWins(t *testing.T) {
	var fired atomic.Int32
	d := NewDebounce(20 * time.Millisecond)

	for i := 0; i < 5; i++ {
		i := i
		d.Call(func() { fired.Store(int32(i + 1)) })
		time.Sleep(2 * time.Millisecond)
	}

	require.Eventually(t, func() bool { return fired.Load() != 0 },
		time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(5), fired.Load(), "an earlier callback fired instead of the last")
}

func TestDebounceStopCancelsPending(t *testing.T) {
	var fired atomic.Bool
	d := NewDebounce(10 * time.Millisecond)

	d.Call(func() { fired.Store(true) })
	d.Stop()

	time.Sleep(30 * time.Millisecond)
	assert.False(t, fired.Load(), "stopped debounce still fired")
}
