// Package events implements the capture queue: batching, background
// flushing, and an optional encrypted spool for unsent batches.
package events

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pulsekit/pulsekit-go/internal/types"
)

// Message is one captured telemetry event.
type Message struct {
	UUID       string         `json:"uuid"`
	Event      string         `json:"event"`
	DistinctID string         `json:"distinct_id"`
	Timestamp  string         `json:"timestamp"`
	Library    string         `json:"library"`
	LibVersion string         `json:"library_version"`
	Properties map[string]any `json:"properties,omitempty"`
}

// BatchSender delivers a batch payload to the collection endpoint.
type BatchSender interface {
	SendBatch(ctx context.Context, payload any) error
}

// QueueConfig contains event queue configuration.
type QueueConfig struct {
	Sender        BatchSender
	Spool         *Spool
	MaxSize       int
	FlushInterval time.Duration
	BatchSize     int
	SDKVersion    string
	Logger        types.Logger
}

// DefaultQueueConfig returns the default queue configuration.
func DefaultQueueConfig() *QueueConfig {
	return &QueueConfig{
		MaxSize:       1000,
		FlushInterval: 30 * time.Second,
		BatchSize:     10,
	}
}

// Queue batches captured events and flushes them in the background. Events
// that fail to send are written to the spool when one is configured, and
// re-enqueued on the next start.
type Queue struct {
	cfg     *QueueConfig
	events  []Message
	logger  types.Logger
	running bool
	stopCh  chan struct{}
	flushCh chan struct{}
	mu      sync.Mutex
}

// NewQueue creates a new event queue.
func NewQueue(cfg *QueueConfig) *Queue {
	defaults := DefaultQueueConfig()
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = defaults.MaxSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = defaults.FlushInterval
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaults.BatchSize
	}
	logger := cfg.Logger
	if logger == nil {
		logger = &types.NullLogger{}
	}
	return &Queue{
		cfg:     cfg,
		events:  make([]Message, 0, cfg.MaxSize),
		logger:  logger,
		stopCh:  make(chan struct{}),
		flushCh: make(chan struct{}, 1),
	}
}

// Start starts the background flush loop and re-enqueues spooled events.
func (q *Queue) Start() {
	q.mu.Lock()
	if q.running {
		q.mu.Unlock()
		return
	}
	q.running = true
	q.stopCh = make(chan struct{})
	q.mu.Unlock()

	if q.cfg.Spool != nil {
		if pending, err := q.cfg.Spool.Load(); err != nil {
			q.logger.Warn("Failed to load spooled events", "error", err.Error())
		} else {
			for _, msg := range pending {
				q.Enqueue(msg)
			}
		}
	}

	go q.run()
}

// Stop stops the queue and flushes remaining events.
func (q *Queue) Stop() {
	q.mu.Lock()
	if !q.running {
		q.mu.Unlock()
		return
	}
	q.running = false
	close(q.stopCh)
	q.mu.Unlock()

	q.Flush()
}

// Enqueue adds an event to the queue, assigning a message UUID and timestamp
// when absent. Returns false when the queue is full and the event dropped.
func (q *Queue) Enqueue(msg Message) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.events) >= q.cfg.MaxSize {
		q.logger.Warn("Event queue full, dropping event", "event", msg.Event)
		return false
	}

	if msg.UUID == "" {
		msg.UUID = uuid.NewString()
	}
	if msg.Timestamp == "" {
		msg.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}
	if msg.Library == "" {
		msg.Library = "pulsekit-go"
		msg.LibVersion = q.cfg.SDKVersion
	}

	q.events = append(q.events, msg)
	q.logger.Debug("Event queued", "event", msg.Event, "queue_size", len(q.events))

	if len(q.events) >= q.cfg.BatchSize {
		select {
		case q.flushCh <- struct{}{}:
		default:
		}
	}
	return true
}

// Flush sends all queued events to the collection endpoint.
func (q *Queue) Flush() {
	q.mu.Lock()
	if len(q.events) == 0 {
		q.mu.Unlock()
		return
	}
	batch := make([]Message, len(q.events))
	copy(batch, q.events)
	q.events = q.events[:0]
	q.mu.Unlock()

	q.logger.Debug("Flushing events", "count", len(batch))
	q.send(batch)
}

// Size returns the number of queued events.
func (q *Queue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}

func (q *Queue) run() {
	ticker := time.NewTicker(q.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-q.stopCh:
			return
		case <-ticker.C:
			q.Flush()
		case <-q.flushCh:
			q.Flush()
		}
	}
}

func (q *Queue) send(batch []Message) {
	if q.cfg.Sender == nil {
		return
	}

	payload := map[string]any{"batch": batch}
	if err := q.cfg.Sender.SendBatch(context.Background(), payload); err != nil {
		q.logger.Warn("Failed to send events", "error", err.Error(), "count", len(batch))
		if q.cfg.Spool != nil {
			if spoolErr := q.cfg.Spool.Save(batch); spoolErr != nil {
				q.logger.Warn("Failed to spool unsent events", "error", spoolErr.Error())
			}
		}
	}
}
