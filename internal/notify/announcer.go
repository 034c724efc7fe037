package notify

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"homeguard/internal/domain"
)

// ErrQueueFull is returned when the announce queue cannot accept a record.
var ErrQueueFull = errors.New("announce queue is full")

// ErrAnnouncerClosed is returned when enqueuing after Close.
var ErrAnnouncerClosed = errors.New("announcer is closed")

// Deliverer sends one record to every configured channel.
type Deliverer interface {
	Deliver(ctx context.Context, record domain.NotificationRecord) error
}

// Announcer decouples announced records from slow outbound channels.
// Params: deliverer, queue capacity and logger.
// Returns: bounded async queue drained by one worker.
type Announcer struct {
	deliverer Deliverer
	logger    *slog.Logger
	queue     chan domain.NotificationRecord

	mu      sync.Mutex
	closed  bool
	started bool
	done    chan struct{}
}

// NewAnnouncer creates announcer without starting its worker.
// Params: deliverer, queue size and logger.
// Returns: announcer ready for Start.
func NewAnnouncer(deliverer Deliverer, queueSize int, logger *slog.Logger) *Announcer {
	if queueSize <= 0 {
		queueSize = 1
	}
	return &Announcer{
		deliverer: deliverer,
		logger:    logger.With("component", "announcer"),
		queue:     make(chan domain.NotificationRecord, queueSize),
		done:      make(chan struct{}),
	}
}

// Start launches delivery worker.
// Params: context used for outbound calls; cancel aborts in-flight retries.
// Returns: none.
func (a *Announcer) Start(ctx context.Context) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.started || a.closed {
		return
	}
	a.started = true
	go a.run(ctx)
}

func (a *Announcer) run(ctx context.Context) {
	defer close(a.done)
	for record := range a.queue {
		if err := a.deliverer.Deliver(ctx, record); err != nil {
			a.logger.Error("announce delivery failed", "record_id", record.ID, "type", string(record.Type), "error", err.Error())
			continue
		}
		a.logger.Debug("record announced", "record_id", record.ID, "type", string(record.Type))
	}
}

// Enqueue schedules record for delivery without blocking.
// Params: announced record.
// Returns: ErrQueueFull when dropped, ErrAnnouncerClosed after Close.
func (a *Announcer) Enqueue(record domain.NotificationRecord) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return ErrAnnouncerClosed
	}
	select {
	case a.queue <- record:
		return nil
	default:
		a.logger.Warn("announce queue full, record dropped", "record_id", record.ID, "title", record.Title)
		return ErrQueueFull
	}
}

// Close stops accepting records and waits for the queue to drain.
// Params: ctx bounding the drain wait.
// Returns: ctx error when drain did not finish in time.
func (a *Announcer) Close(ctx context.Context) error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	started := a.started
	close(a.queue)
	a.mu.Unlock()

	if !started {
		return nil
	}
	select {
	case <-a.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
