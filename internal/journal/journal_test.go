package journal

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"homeguard/internal/config"
	"homeguard/internal/domain"
	"homeguard/internal/logging"
	"homeguard/internal/testutil"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/nats-io/nats.go"
)

type memorySink struct {
	mu      sync.Mutex
	entries []Entry
	closed  bool
}

func (s *memorySink) Write(_ context.Context, entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
	return nil
}

func (s *memorySink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func record(id, title string) domain.NotificationRecord {
	return domain.NotificationRecord{
		ID:        id,
		Type:      domain.NotificationActivity,
		Title:     title,
		Status:    domain.StatusUnknown,
		Timestamp: time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestBuildEntryIDDeterministic(t *testing.T) {
	t.Parallel()

	a := BuildEntryID(OpAppend, record("r1", "Visitor"))
	b := BuildEntryID(OpAppend, record("r1", "Visitor"))
	if a == "" || a != b {
		t.Fatalf("expected deterministic non-empty ids: %q %q", a, b)
	}
	if BuildEntryID(OpReplace, record("r1", "Visitor")) == a {
		t.Fatalf("op must change id")
	}
	if BuildEntryID(OpReplace, record("r1", "Alice")) == BuildEntryID(OpReplace, record("r1", "Visitor")) {
		t.Fatalf("content must change id")
	}
}

func TestRecorderForwardsInOrderAndClosesSink(t *testing.T) {
	t.Parallel()

	sink := &memorySink{}
	at := time.Date(2026, 6, 1, 13, 0, 0, 0, time.FixedZone("X", 3600))
	recorder := NewRecorder(sink, 4, func() time.Time { return at }, logging.Discard())
	recorder.Start(context.Background())

	if err := recorder.Record(OpAppend, record("r1", "Visitor")); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := recorder.Record(OpReplace, record("r1", "Alice")); err != nil {
		t.Fatalf("record: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := recorder.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if !sink.closed {
		t.Fatalf("sink must be closed")
	}
	if len(sink.entries) != 2 || sink.entries[0].Op != OpAppend || sink.entries[1].Record.Title != "Alice" {
		t.Fatalf("unexpected entries: %+v", sink.entries)
	}
	if sink.entries[0].At.Location() != time.UTC {
		t.Fatalf("entry time must be UTC")
	}
}

func TestRecorderDropsWhenFull(t *testing.T) {
	t.Parallel()

	recorder := NewRecorder(&memorySink{}, 1, nil, logging.Discard())
	if err := recorder.Record(OpAppend, record("r1", "a")); err != nil {
		t.Fatalf("first record: %v", err)
	}
	if err := recorder.Record(OpAppend, record("r2", "b")); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}
	if err := recorder.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := recorder.Record(OpAppend, record("r3", "c")); err != nil {
		t.Fatalf("record after close must be ignored, got %v", err)
	}
}

func TestOpenSinkNone(t *testing.T) {
	t.Parallel()

	sink, err := OpenSink(context.Background(), config.JournalConfig{Backend: "none"})
	if err != nil || sink != nil {
		t.Fatalf("expected nil sink, got %v %v", sink, err)
	}
	if _, err := OpenSink(context.Background(), config.JournalConfig{Backend: "kafka"}); err == nil {
		t.Fatalf("expected unsupported backend error")
	}
}

func newTestRedisSink(t *testing.T, maxLen int) (*RedisSink, *miniredis.Miniredis) {
	t.Helper()
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	sink := newRedisSink(client, "test:notifications", maxLen)
	t.Cleanup(func() { _ = sink.Close() })
	return sink, server
}

func TestRedisSinkAppendReplaceAndEvict(t *testing.T) {
	t.Parallel()

	sink, server := newTestRedisSink(t, 2)
	ctx := context.Background()

	for _, r := range []domain.NotificationRecord{record("r1", "one"), record("r2", "two"), record("r3", "three")} {
		if err := sink.Write(ctx, NewEntry(OpAppend, r, time.Now())); err != nil {
			t.Fatalf("append %s: %v", r.ID, err)
		}
	}
	replaced := record("r3", "Alice")
	replaced.Status = domain.StatusKnown
	if err := sink.Write(ctx, NewEntry(OpReplace, replaced, time.Now())); err != nil {
		t.Fatalf("replace: %v", err)
	}
	if err := sink.Write(ctx, NewEntry(OpReplace, record("r1", "gone"), time.Now())); err != nil {
		t.Fatalf("replace evicted: %v", err)
	}

	records, err := sink.records(ctx, 0)
	if err != nil {
		t.Fatalf("records: %v", err)
	}
	if len(records) != 2 || records[0].ID != "r3" || records[1].ID != "r2" {
		t.Fatalf("unexpected records: %+v", records)
	}
	if records[0].Title != "Alice" || records[0].Status != domain.StatusKnown {
		t.Fatalf("replace not applied: %+v", records[0])
	}
	if server.Exists("test:notifications:records") {
		fields, _ := server.HKeys("test:notifications:records")
		if len(fields) != 2 {
			t.Fatalf("evicted bodies must be deleted, got %v", fields)
		}
	}
}

func TestRedisSinkRedeliveredAppendKeepsPosition(t *testing.T) {
	t.Parallel()

	sink, _ := newTestRedisSink(t, 10)
	ctx := context.Background()
	entry := NewEntry(OpAppend, record("r1", "one"), time.Now())
	for i := 0; i < 2; i++ {
		if err := sink.Write(ctx, entry); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	records, err := sink.records(ctx, 5)
	if err != nil {
		t.Fatalf("records: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("duplicate append must not duplicate ids: %+v", records)
	}
}

func TestNATSSinkPublishesWithDedup(t *testing.T) {
	url := testutil.StartJetStream(t)

	cfg := config.JournalNATSConfig{
		URL:     []string{url},
		Subject: "homeguard.test.notifications",
		Stream:  "HOMEGUARD_TEST",
	}
	sink, err := NewNATSSink(cfg)
	if err != nil {
		t.Fatalf("new nats sink: %v", err)
	}
	defer func() { _ = sink.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	entry := NewEntry(OpAppend, record("r1", "Visitor"), time.Now())
	for i := 0; i < 2; i++ {
		if err := sink.Write(ctx, entry); err != nil {
			t.Fatalf("write: %v", err)
		}
	}

	nc, err := nats.Connect(url)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer nc.Close()
	js, err := nc.JetStream()
	if err != nil {
		t.Fatalf("jetstream: %v", err)
	}
	info, err := js.StreamInfo(cfg.Stream)
	if err != nil {
		t.Fatalf("stream info: %v", err)
	}
	if info.State.Msgs != 1 {
		t.Fatalf("expected deduplicated single message, got %d", info.State.Msgs)
	}

	sub, err := js.SubscribeSync(cfg.Subject, nats.DeliverAll())
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	msg, err := sub.NextMsg(2 * time.Second)
	if err != nil {
		t.Fatalf("next msg: %v", err)
	}
	var decoded Entry
	if err := json.Unmarshal(msg.Data, &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.ID != entry.ID || decoded.Record.Title != "Visitor" || msg.Header.Get("Homeguard-Op") != "append" {
		t.Fatalf("unexpected message: %+v", decoded)
	}
}
