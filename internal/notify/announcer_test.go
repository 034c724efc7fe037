package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"homeguard/internal/domain"
	"homeguard/internal/logging"
)

type recordingDeliverer struct {
	mu      sync.Mutex
	ids     []string
	release chan struct{}
}

func (d *recordingDeliverer) Deliver(_ context.Context, record domain.NotificationRecord) error {
	if d.release != nil {
		<-d.release
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ids = append(d.ids, record.ID)
	if record.ID == "fail" {
		return errors.New("boom")
	}
	return nil
}

func (d *recordingDeliverer) delivered() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.ids...)
}

func TestAnnouncerDeliversInOrderAndDrainsOnClose(t *testing.T) {
	t.Parallel()

	deliverer := &recordingDeliverer{}
	announcer := NewAnnouncer(deliverer, 8, logging.Discard())
	announcer.Start(context.Background())

	for _, id := range []string{"a", "fail", "b"} {
		if err := announcer.Enqueue(domain.NotificationRecord{ID: id}); err != nil {
			t.Fatalf("enqueue %s: %v", id, err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := announcer.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}

	got := deliverer.delivered()
	if len(got) != 3 || got[0] != "a" || got[1] != "fail" || got[2] != "b" {
		t.Fatalf("unexpected delivery order: %v", got)
	}
	if err := announcer.Enqueue(domain.NotificationRecord{ID: "late"}); !errors.Is(err, ErrAnnouncerClosed) {
		t.Fatalf("expected ErrAnnouncerClosed, got %v", err)
	}
}

func TestAnnouncerDropsWhenQueueFull(t *testing.T) {
	t.Parallel()

	deliverer := &recordingDeliverer{}
	announcer := NewAnnouncer(deliverer, 1, logging.Discard())

	if err := announcer.Enqueue(domain.NotificationRecord{ID: "first"}); err != nil {
		t.Fatalf("enqueue first: %v", err)
	}
	if err := announcer.Enqueue(domain.NotificationRecord{ID: "second"}); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}
	if err := announcer.Close(context.Background()); err != nil {
		t.Fatalf("close without start: %v", err)
	}
}

func TestAnnouncerCloseHonorsDeadline(t *testing.T) {
	t.Parallel()

	deliverer := &recordingDeliverer{release: make(chan struct{})}
	announcer := NewAnnouncer(deliverer, 4, logging.Discard())
	announcer.Start(context.Background())
	if err := announcer.Enqueue(domain.NotificationRecord{ID: "stuck"}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := announcer.Close(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
	close(deliverer.release)
}
