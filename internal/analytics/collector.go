package analytics

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/kersley/resound/pkg/kafka"
)

// Publisher is the batch publish surface of pkg/kafka.Producer.
type Publisher interface {
	PublishBatch(ctx context.Context, events []kafka.Event) error
}

var _ Publisher = (*kafka.Producer)(nil)

// Collector accumulates events in memory and flushes them to the analytics
// topic when the buffer reaches batchSize or after flushInterval, whichever
// comes first. A nil *Collector is a valid no-op, so callers need no guard
// when analytics is disabled.
type Collector struct {
	publisher     Publisher
	mu            sync.Mutex
	buffer        []kafka.Event
	batchSize     int
	flushInterval time.Duration
	logger        *slog.Logger
	done          chan struct{}
}

// NewCollector creates a Collector. Non-positive batchSize or flushInterval
// fall back to 100 events and 5 seconds.
func NewCollector(publisher Publisher, batchSize int, flushInterval time.Duration) *Collector {
	if batchSize <= 0 {
		batchSize = 100
	}
	if flushInterval <= 0 {
		flushInterval = 5 * time.Second
	}
	return &Collector{
		publisher:     publisher,
		buffer:        make([]kafka.Event, 0, batchSize),
		batchSize:     batchSize,
		flushInterval: flushInterval,
		logger:        slog.Default().With("component", "analytics-collector"),
		done:          make(chan struct{}),
	}
}

// Start launches the background flush loop, which runs until ctx is
// cancelled. Cancellation triggers a final flush with a short deadline.
func (c *Collector) Start(ctx context.Context) {
	if c == nil {
		return
	}
	go func() {
		defer close(c.done)
		ticker := time.NewTicker(c.flushInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				c.flush(ctx)
			case <-ctx.Done():
				flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				c.flush(flushCtx)
				cancel()
				return
			}
		}
	}()
	c.logger.Info("analytics collector started",
		"batch_size", c.batchSize,
		"flush_interval", c.flushInterval,
	)
}

// TrackSearch buffers a search event, stamping Type and Timestamp.
func (c *Collector) TrackSearch(ev SearchEvent) {
	if c == nil {
		return
	}
	ev.Type = EventSearch
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	c.track(kafka.Event{Key: ev.Index, Value: ev})
}

// TrackDocument buffers an index or remove event, stamping Timestamp. The
// caller sets Type to EventIndex or EventRemove.
func (c *Collector) TrackDocument(ev DocumentEvent) {
	if c == nil {
		return
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	c.track(kafka.Event{Key: ev.DocumentID, Value: ev})
}

func (c *Collector) track(ev kafka.Event) {
	c.mu.Lock()
	c.buffer = append(c.buffer, ev)
	full := len(c.buffer) >= c.batchSize
	c.mu.Unlock()

	if full {
		go c.flush(context.Background())
	}
}

// Close waits for the background flush loop to finish. Call only after the
// Start context has been cancelled.
func (c *Collector) Close() {
	if c == nil {
		return
	}
	<-c.done
}

// BufferLen returns the current number of buffered events.
func (c *Collector) BufferLen() int {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.buffer)
}

func (c *Collector) flush(ctx context.Context) {
	c.mu.Lock()
	if len(c.buffer) == 0 {
		c.mu.Unlock()
		return
	}
	batch := c.buffer
	c.buffer = make([]kafka.Event, 0, c.batchSize)
	c.mu.Unlock()

	if err := c.publisher.PublishBatch(ctx, batch); err != nil {
		c.logger.Error("analytics flush failed", "events", len(batch), "error", err)
		// Requeue ahead of newer events; the buffer never holds more than
		// three batches.
		c.mu.Lock()
		c.buffer = append(batch, c.buffer...)
		if max := c.batchSize * 3; len(c.buffer) > max {
			dropped := len(c.buffer) - max
			c.buffer = c.buffer[:max]
			c.logger.Warn("analytics buffer overflow", "dropped", dropped)
		}
		c.mu.Unlock()
		return
	}

	c.logger.Debug("analytics batch flushed", "events", len(batch))
}
