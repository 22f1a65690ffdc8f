package analytics

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wardenms/warden/internal/core/data"
	"github.com/wardenms/warden/internal/core/events"
	"github.com/wardenms/warden/internal/core/props"
)

type recordingAccessor struct {
	mu      sync.Mutex
	batches [][]data.AnalyticsEventRecord
	err     error
}

func (a *recordingAccessor) InsertEvents(_ context.Context, events []data.AnalyticsEventRecord) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return a.err
	}
	a.batches = append(a.batches, events)
	return nil
}

func (a *recordingAccessor) batchCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.batches)
}

func newTestPipeline(accessor data.AnalyticsAccessor) *Pipeline {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return NewPipeline(logger, events.NewBus(logger), accessor)
}

func TestFlushDeliversEachEventExactlyOnce(t *testing.T) {
	accessor := &recordingAccessor{}
	p := newTestPipeline(accessor)

	p.Save(Event{Key: "match_started", Category: "gameplay", UserID: "alice"})
	p.Save(Event{Key: "match_ended", Category: "gameplay", UserID: "alice"})

	require.NoError(t, p.Flush(context.Background()))
	require.NoError(t, p.Flush(context.Background()))

	// Everything saved between ticks lands in exactly one batch; the second
	// flush had nothing to deliver.
	require.Equal(t, 1, accessor.batchCount())
	batch := accessor.batches[0]
	require.Len(t, batch, 2)
	assert.Equal(t, "match_started", batch[0].Key)
	assert.Equal(t, "match_ended", batch[1].Key)
	assert.Equal(t, 0, p.BufferedCount())
}

func TestFlushSerializesPayload(t *testing.T) {
	accessor := &recordingAccessor{}
	p := newTestPipeline(accessor)

	p.Save(Event{Key: "level_up", Payload: props.Properties{"level": "12"}})
	require.NoError(t, p.Flush(context.Background()))

	require.Equal(t, 1, accessor.batchCount())
	record := accessor.batches[0][0]
	assert.JSONEq(t, `{"level":"12"}`, string(record.Payload))
	assert.False(t, record.Timestamp.IsZero())
}

func TestFailedFlushDropsBatch(t *testing.T) {
	accessor := &recordingAccessor{err: errors.New("storage offline")}
	p := newTestPipeline(accessor)

	p.Save(Event{Key: "match_started"})
	require.Error(t, p.Flush(context.Background()))

	// At-most-once under accessor failure: the batch is gone, not requeued.
	assert.Equal(t, 0, p.BufferedCount())

	accessor.mu.Lock()
	accessor.err = nil
	accessor.mu.Unlock()

	p.Save(Event{Key: "match_ended"})
	require.NoError(t, p.Flush(context.Background()))
	require.Equal(t, 1, accessor.batchCount())
	assert.Equal(t, "match_ended", accessor.batches[0][0].Key)
}

func TestRunFlushesOnInterval(t *testing.T) {
	accessor := &recordingAccessor{}
	p := newTestPipeline(accessor)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		p.Run(ctx, Options{FlushInterval: 10 * time.Millisecond})
	}()

	p.Save(Event{Key: "heartbeat"})
	require.Eventually(t, func() bool {
		return accessor.batchCount() == 1
	}, time.Second, 5*time.Millisecond)

	// The final flush on shutdown picks up anything still buffered.
	cancel()
	<-done
	p.Save(Event{Key: "late"})
	require.NoError(t, p.Flush(context.Background()))
	assert.Equal(t, 2, accessor.batchCount())
}
