package analytics

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/verse-recommender/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/verse-recommender/pkg/kafka"
)

// Publisher ships batches of events. *kafka.Producer implements it.
type Publisher interface {
	PublishBatch(ctx context.Context, events []kafka.Event) error
}

// Recorder consumes events in-process. *Aggregator implements it.
type Recorder interface {
	Record(QueryEvent)
}

// Collector fans query events out to a local Recorder and, when a Publisher
// is configured, to Kafka in batches. Track never blocks the request path:
// events that do not fit in the buffer are dropped and counted.
type Collector struct {
	publisher     Publisher
	recorder      Recorder
	eventCh       chan QueryEvent
	batchSize     int
	flushInterval time.Duration
	logger        *slog.Logger

	mu      sync.RWMutex
	closed  bool
	started bool
	done    chan struct{}
	dropped atomic.Int64
}

// NewCollector creates a Collector. publisher and recorder may each be nil.
func NewCollector(publisher Publisher, recorder Recorder, cfg config.KafkaConfig) *Collector {
	bufferSize := cfg.EventBuffer
	if bufferSize <= 0 {
		bufferSize = 10000
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 100
	}
	flushInterval := cfg.FlushInterval
	if flushInterval <= 0 {
		flushInterval = 2 * time.Second
	}
	return &Collector{
		publisher:     publisher,
		recorder:      recorder,
		eventCh:       make(chan QueryEvent, bufferSize),
		batchSize:     batchSize,
		flushInterval: flushInterval,
		logger:        slog.Default().With("component", "analytics-collector"),
		done:          make(chan struct{}),
	}
}

// Start launches the publish loop. Without a publisher it does nothing.
func (c *Collector) Start(ctx context.Context) {
	c.mu.Lock()
	if c.publisher == nil || c.started || c.closed {
		c.mu.Unlock()
		return
	}
	c.started = true
	c.mu.Unlock()

	go c.run(ctx)
	c.logger.Info("analytics collector started",
		"buffer_size", cap(c.eventCh),
		"batch_size", c.batchSize,
		"flush_interval", c.flushInterval,
	)
}

// Track records event locally and queues it for publishing.
func (c *Collector) Track(event QueryEvent) {
	if c.recorder != nil {
		c.recorder.Record(event)
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed || c.publisher == nil {
		return
	}
	select {
	case c.eventCh <- event:
	default:
		if c.dropped.Add(1)%1000 == 1 {
			c.logger.Warn("analytics events dropped (buffer full)", "dropped_total", c.dropped.Load())
		}
	}
}

// Dropped returns the number of events discarded because the buffer was
// full or publishing kept failing.
func (c *Collector) Dropped() int64 {
	return c.dropped.Load()
}

// Close stops accepting events, flushes what is buffered and waits for the
// publish loop to exit.
func (c *Collector) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	started := c.started
	close(c.eventCh)
	c.mu.Unlock()
	if started {
		<-c.done
	}
}

func (c *Collector) run(ctx context.Context) {
	defer close(c.done)
	ticker := time.NewTicker(c.flushInterval)
	defer ticker.Stop()

	batch := make([]kafka.Event, 0, c.batchSize)
	for {
		select {
		case event, ok := <-c.eventCh:
			if !ok {
				c.finalFlush(batch)
				return
			}
			batch = append(batch, kafka.Event{Key: event.Key(), Value: event})
			if len(batch) >= c.batchSize {
				batch = c.flush(ctx, batch)
			}
		case <-ticker.C:
			batch = c.flush(ctx, batch)
		case <-ctx.Done():
			for _, event := range c.drain() {
				batch = append(batch, kafka.Event{Key: event.Key(), Value: event})
			}
			c.finalFlush(batch)
			return
		}
	}
}

// drain returns what is currently buffered without waiting for more.
func (c *Collector) drain() []QueryEvent {
	var out []QueryEvent
	for {
		select {
		case event, ok := <-c.eventCh:
			if !ok {
				return out
			}
			out = append(out, event)
		default:
			return out
		}
	}
}

func (c *Collector) finalFlush(batch []kafka.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if rest := c.flush(ctx, batch); len(rest) > 0 {
		c.dropped.Add(int64(len(rest)))
		c.logger.Warn("analytics events lost on shutdown", "count", len(rest))
	}
}

// flush publishes batch and returns the events still pending. Failed events
// are kept for the next attempt up to three batches' worth.
func (c *Collector) flush(ctx context.Context, batch []kafka.Event) []kafka.Event {
	if len(batch) == 0 {
		return batch
	}
	if err := c.publisher.PublishBatch(ctx, batch); err != nil {
		c.logger.Error("analytics flush failed", "batch_size", len(batch), "error", err)
		if limit := c.batchSize * 3; len(batch) > limit {
			c.dropped.Add(int64(len(batch) - limit))
			batch = batch[len(batch)-limit:]
		}
		return batch
	}
	c.logger.Debug("analytics batch flushed", "events", len(batch))
	return batch[:0]
}
