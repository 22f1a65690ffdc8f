// Package analytics buffers telemetry events in memory and flushes them in
// batches to a pluggable storage accessor on a throttled interval.
package analytics

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/wardenms/warden/internal/core/data"
	"github.com/wardenms/warden/internal/core/dispatch"
	"github.com/wardenms/warden/internal/core/events"
	"github.com/wardenms/warden/internal/core/props"
)

// Event is one telemetry sample as submitted by a peer or by the server
// itself.
type Event struct {
	Key       string
	Category  string
	UserID    string
	Timestamp time.Time
	Payload   props.Properties
}

// Pipeline buffers events under a mutex and hands snapshots to the accessor
// from a background flusher. Saving never blocks on storage; a failed flush
// drops its batch, which makes delivery at-most-once under accessor failure.
type Pipeline struct {
	logger   *logrus.Logger
	bus      *events.Bus
	accessor data.AnalyticsAccessor

	mu     sync.Mutex
	buffer []Event
}

// Options configures the pipeline's flush cadence.
type Options struct {
	FlushInterval        time.Duration
	ResetIntervalOnError bool
}

func NewPipeline(logger *logrus.Logger, bus *events.Bus, accessor data.AnalyticsAccessor) *Pipeline {
	return &Pipeline{logger: logger, bus: bus, accessor: accessor}
}

// Save appends the event to the in-memory buffer. Events with no timestamp
// are stamped on arrival.
func (p *Pipeline) Save(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	p.mu.Lock()
	p.buffer = append(p.buffer, event)
	p.mu.Unlock()
}

// BufferedCount returns the number of events awaiting the next flush.
func (p *Pipeline) BufferedCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.buffer)
}

// Run flushes on the configured interval until ctx is canceled, then makes a
// final best-effort flush of whatever remains buffered.
func (p *Pipeline) Run(ctx context.Context, options Options) {
	var opts []dispatch.ThrottleOption
	if options.ResetIntervalOnError {
		opts = append(opts, dispatch.ResetIntervalOnError())
	}

	throttle := dispatch.NewThrottle(options.FlushInterval, func() error {
		return p.Flush(ctx)
	}, opts...)
	throttle.Run(ctx)

	flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.Flush(flushCtx); err != nil {
		p.logger.Warnf("[ANALYTICS] final flush failed: %v", err)
	}
}

// Flush swaps the buffer out under the lock and writes the snapshot through
// the accessor outside it. Events in a failed batch are not requeued.
func (p *Pipeline) Flush(ctx context.Context) error {
	p.mu.Lock()
	snapshot := p.buffer
	p.buffer = nil
	p.mu.Unlock()

	if len(snapshot) == 0 {
		return nil
	}

	records := make([]data.AnalyticsEventRecord, 0, len(snapshot))
	for _, event := range snapshot {
		payload, err := json.Marshal(event.Payload)
		if err != nil {
			p.logger.Warnf("[ANALYTICS] dropping unserializable event %q: %v", event.Key, err)
			continue
		}
		records = append(records, data.AnalyticsEventRecord{
			Key:       event.Key,
			Category:  event.Category,
			UserID:    event.UserID,
			Timestamp: event.Timestamp,
			Payload:   payload,
		})
	}

	if err := p.accessor.InsertEvents(ctx, records); err != nil {
		p.logger.Warnf("[ANALYTICS] flush of %d events failed, batch dropped: %v", len(records), err)
		return err
	}

	if p.bus != nil {
		p.bus.Publish(events.Event{Kind: events.AnalyticsFlushed, Payload: len(records)})
	}
	p.logger.Debugf("[ANALYTICS] flushed %d events", len(records))
	return nil
}
