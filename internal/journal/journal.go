package journal

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"homeguard/internal/config"
	"homeguard/internal/domain"
)

// Op identifies how a record entered the event log.
type Op string

const (
	// OpAppend marks a freshly inserted record.
	OpAppend Op = "append"
	// OpReplace marks an in-place record update.
	OpReplace Op = "replace"
)

// ErrQueueFull is returned when the journal queue cannot accept an entry.
var ErrQueueFull = errors.New("journal queue is full")

// Entry is one journaled event log mutation.
// Params: stable id, operation, record copy and observation time.
// Returns: unit written by sinks.
type Entry struct {
	ID     string                    `json:"id"`
	Op     Op                        `json:"op"`
	Record domain.NotificationRecord `json:"record"`
	At     time.Time                 `json:"at"`
}

// NewEntry builds entry with deterministic id.
// Params: operation, record and observation time.
// Returns: journal entry.
func NewEntry(op Op, record domain.NotificationRecord, at time.Time) Entry {
	return Entry{ID: BuildEntryID(op, record), Op: op, Record: record, At: at.UTC()}
}

// BuildEntryID hashes record identity and content so redelivery is deduplicated.
// Params: operation and record.
// Returns: stable SHA1 hex id.
func BuildEntryID(op Op, record domain.NotificationRecord) string {
	raw := fmt.Sprintf("%s|%s|%s|%s|%s|%s|%d",
		op, record.ID, record.Type, record.Status, record.Title, record.Description, record.Timestamp.UnixNano())
	sum := sha1.Sum([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// Sink persists journal entries outside the process.
type Sink interface {
	Write(ctx context.Context, entry Entry) error
	Close() error
}

// OpenSink builds sink for configured backend.
// Params: ctx for connectivity checks and journal config.
// Returns: nil sink for backend "none", or setup error.
func OpenSink(ctx context.Context, cfg config.JournalConfig) (Sink, error) {
	switch config.NormalizeJournalBackend(cfg.Backend) {
	case config.JournalBackendNATS:
		sink, err := NewNATSSink(cfg.NATS)
		if err != nil {
			return nil, err
		}
		return sink, nil
	case config.JournalBackendRedis:
		sink, err := NewRedisSink(ctx, cfg.Redis)
		if err != nil {
			return nil, err
		}
		return sink, nil
	case config.JournalBackendNone:
		return nil, nil
	default:
		return nil, fmt.Errorf("unsupported journal backend %q", cfg.Backend)
	}
}

// Recorder forwards entries to a sink from a bounded queue.
// Params: sink, queue size, clock function and logger.
// Returns: async journal writer that never blocks the reconciler.
type Recorder struct {
	sink   Sink
	now    func() time.Time
	logger *slog.Logger
	queue  chan Entry

	mu      sync.Mutex
	closed  bool
	started bool
	done    chan struct{}
}

// NewRecorder creates recorder without starting its worker.
// Params: sink, queue size, time source and logger.
// Returns: recorder ready for Start.
func NewRecorder(sink Sink, queueSize int, now func() time.Time, logger *slog.Logger) *Recorder {
	if queueSize <= 0 {
		queueSize = 1
	}
	if now == nil {
		now = time.Now
	}
	return &Recorder{
		sink:   sink,
		now:    now,
		logger: logger.With("component", "journal"),
		queue:  make(chan Entry, queueSize),
		done:   make(chan struct{}),
	}
}

// Start launches the writer goroutine.
func (r *Recorder) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started || r.closed {
		return
	}
	r.started = true
	go r.run(ctx)
}

func (r *Recorder) run(ctx context.Context) {
	defer close(r.done)
	for entry := range r.queue {
		if err := r.sink.Write(ctx, entry); err != nil {
			r.logger.Error("journal write failed", "record_id", entry.Record.ID, "op", string(entry.Op), "error", err.Error())
		}
	}
}

// Record enqueues one record mutation.
// Params: operation and record.
// Returns: ErrQueueFull when dropped; nil after Close (entry ignored).
func (r *Recorder) Record(op Op, record domain.NotificationRecord) error {
	entry := NewEntry(op, record, r.now())
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	select {
	case r.queue <- entry:
		return nil
	default:
		r.logger.Warn("journal queue full, entry dropped", "record_id", record.ID, "op", string(op))
		return ErrQueueFull
	}
}

// Close drains pending entries and closes sink.
// Params: ctx bounding the drain.
// Returns: drain timeout or sink close error.
func (r *Recorder) Close(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	started := r.started
	close(r.queue)
	r.mu.Unlock()

	if started {
		select {
		case <-r.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return r.sink.Close()
}
