package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"reflect"
	"sync"
	"testing"
	"text/template"
	"time"

	"homeguard/internal/config"
	"homeguard/internal/domain"
	"homeguard/internal/logging"
	"homeguard/internal/templatefmt"
)

type flakySender struct {
	channel string
	fails   int
	calls   int
	err     error
}

func (s *flakySender) Channel() string { return s.channel }

func (s *flakySender) Send(_ context.Context, _ Message) (SendResult, error) {
	s.calls++
	if s.calls <= s.fails {
		if s.err != nil {
			return SendResult{}, s.err
		}
		return SendResult{}, errors.New("temporary error")
	}
	return SendResult{}, nil
}

type captureSender struct {
	channel string
	items   []Message
}

func (s *captureSender) Channel() string { return s.channel }

func (s *captureSender) Send(_ context.Context, message Message) (SendResult, error) {
	s.items = append(s.items, message)
	return SendResult{}, nil
}

func mustTemplate(t *testing.T, body string) *template.Template {
	t.Helper()
	compiled, err := templatefmt.ParseAnnouncementTemplate("test", body)
	if err != nil {
		t.Fatalf("parse template: %v", err)
	}
	return compiled
}

func sampleRecord() domain.NotificationRecord {
	return domain.NotificationRecord{
		ID:          "rec-1",
		Type:        domain.NotificationKitchenFire,
		Title:       "Fire Sensor Alert!",
		Description: "Flames <detected>",
		Timestamp:   time.Date(2026, 6, 1, 12, 30, 0, 0, time.UTC),
		Status:      domain.StatusDanger,
	}
}

func TestDispatcherRetriesUntilSuccess(t *testing.T) {
	t.Parallel()

	sender := &flakySender{channel: "telegram", fails: 2}
	dispatcher := &Dispatcher{
		senders:  map[string]ChannelSender{"telegram": sender},
		channels: []string{"telegram"},
		retries: map[string]config.AnnounceRetry{
			"telegram": {Enabled: true, Backoff: "exponential", InitialMS: 1, MaxMS: 2},
		},
		templates: map[string]*template.Template{"telegram": mustTemplate(t, "{{ .Title }}")},
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if _, err := dispatcher.Send(ctx, "telegram", sampleRecord()); err != nil {
		t.Fatalf("expected retry success, got %v", err)
	}
	if sender.calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", sender.calls)
	}
}

func TestDispatcherStopsOnPermanentError(t *testing.T) {
	t.Parallel()

	sender := &flakySender{channel: "http", fails: 5, err: MarkPermanent(errors.New("bad request"))}
	dispatcher := &Dispatcher{
		senders:  map[string]ChannelSender{"http": sender},
		channels: []string{"http"},
		retries: map[string]config.AnnounceRetry{
			"http": {Enabled: true, Backoff: "fixed", InitialMS: 1, MaxMS: 1},
		},
		templates: map[string]*template.Template{"http": mustTemplate(t, "{{ .Title }}")},
	}

	_, err := dispatcher.Send(context.Background(), "http", sampleRecord())
	if !IsPermanent(err) {
		t.Fatalf("expected permanent error, got %v", err)
	}
	if sender.calls != 1 {
		t.Fatalf("permanent error must not be retried, calls=%d", sender.calls)
	}
}

func TestDispatcherHonorsMaxAttempts(t *testing.T) {
	t.Parallel()

	sender := &flakySender{channel: "http", fails: 10}
	dispatcher := &Dispatcher{
		senders:  map[string]ChannelSender{"http": sender},
		channels: []string{"http"},
		retries: map[string]config.AnnounceRetry{
			"http": {Enabled: true, Backoff: "fixed", InitialMS: 1, MaxMS: 1, MaxAttempts: 3},
		},
		templates: map[string]*template.Template{"http": mustTemplate(t, "x")},
	}
	if _, err := dispatcher.Send(context.Background(), "http", sampleRecord()); err == nil {
		t.Fatalf("expected failure after max attempts")
	}
	if sender.calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", sender.calls)
	}
}

func TestDispatcherReturnsUnknownChannel(t *testing.T) {
	t.Parallel()

	dispatcher := &Dispatcher{senders: map[string]ChannelSender{}}
	if _, err := dispatcher.Send(context.Background(), "telegram", sampleRecord()); err == nil {
		t.Fatalf("expected unknown channel error")
	}
}

func TestNewDispatcherChannels(t *testing.T) {
	t.Parallel()

	cfg := config.Default().Announce
	cfg.Telegram.Enabled = true
	cfg.Telegram.BotToken = "token"
	cfg.Telegram.ChatID = "42"
	cfg.HTTP.Enabled = true
	cfg.HTTP.URL = "http://localhost/callback"

	dispatcher, err := NewDispatcher(cfg, logging.Discard())
	if err != nil {
		t.Fatalf("new dispatcher: %v", err)
	}
	want := []string{"http", "telegram"}
	if got := dispatcher.Channels(); !reflect.DeepEqual(got, want) {
		t.Fatalf("channels mismatch: got=%v want=%v", got, want)
	}
}

func TestNewDispatcherRejectsBrokenTemplate(t *testing.T) {
	t.Parallel()

	cfg := config.Default().Announce
	cfg.HTTP.Enabled = true
	cfg.HTTP.URL = "http://localhost/callback"
	cfg.HTTP.Template = "{{ .Title "
	if _, err := NewDispatcher(cfg, logging.Discard()); err == nil {
		t.Fatalf("expected template error")
	}
}

func TestDispatcherAppliesChannelTemplate(t *testing.T) {
	t.Parallel()

	sender := &captureSender{channel: "telegram"}
	dispatcher := &Dispatcher{
		senders:  map[string]ChannelSender{"telegram": sender},
		channels: []string{"telegram"},
		templates: map[string]*template.Template{
			"telegram": mustTemplate(t, "<b>{{ html .Title }}</b> {{ html .Description }} {{ fmtTime .Timestamp }} {{ .Status }}"),
		},
	}

	if err := dispatcher.Deliver(context.Background(), sampleRecord()); err != nil {
		t.Fatalf("deliver failed: %v", err)
	}
	if len(sender.items) != 1 {
		t.Fatalf("expected one sent message, got %d", len(sender.items))
	}
	want := "<b>Fire Sensor Alert!</b> Flames &lt;detected&gt; 2026-06-01 12:30:00 Danger"
	if sender.items[0].Text != want {
		t.Fatalf("unexpected rendered message: %q", sender.items[0].Text)
	}
	if sender.items[0].Channel != "telegram" || sender.items[0].ID != "rec-1" {
		t.Fatalf("unexpected message metadata: %+v", sender.items[0])
	}
}

func TestTelegramSenderSend(t *testing.T) {
	t.Parallel()

	type request struct {
		path      string
		chatID    string
		text      string
		caption   string
		photo     string
		parseMode string
	}

	var (
		mu       sync.Mutex
		received []request
	)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method=%s", r.Method)
		}
		if err := r.ParseMultipartForm(2 << 20); err != nil {
			t.Errorf("parse form: %v", err)
		}
		mu.Lock()
		received = append(received, request{
			path:      r.URL.Path,
			chatID:    r.FormValue("chat_id"),
			text:      r.FormValue("text"),
			caption:   r.FormValue("caption"),
			photo:     r.FormValue("photo"),
			parseMode: r.FormValue("parse_mode"),
		})
		messageID := 100 + len(received)
		mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprintf(w, `{"ok":true,"result":{"message_id":%d,"date":1,"chat":{"id":1,"type":"private"}}}`, messageID)
	}))
	defer server.Close()

	sender := NewTelegramSender(config.TelegramAnnounce{
		Enabled:  true,
		BotToken: "token",
		ChatID:   "42",
		APIBase:  server.URL,
	})

	first, err := sender.Send(context.Background(), Message{NotificationRecord: sampleRecord(), Text: "fire"})
	if err != nil {
		t.Fatalf("send failed: %v", err)
	}
	if first.MessageID != 101 {
		t.Fatalf("first message id=%d", first.MessageID)
	}

	withPhoto := sampleRecord()
	withPhoto.Image = &domain.ImageAttachment{Ref: "https://cam.local/snap.jpg", Hint: "face"}
	second, err := sender.Send(context.Background(), Message{NotificationRecord: withPhoto, Text: "visitor"})
	if err != nil {
		t.Fatalf("send photo failed: %v", err)
	}
	if second.MessageID != 102 {
		t.Fatalf("second message id=%d", second.MessageID)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(received) != 2 {
		t.Fatalf("expected 2 requests, got %d", len(received))
	}
	if received[0].path != "/bottoken/sendMessage" || received[0].text != "fire" || received[0].chatID != "42" {
		t.Fatalf("unexpected message request: %+v", received[0])
	}
	if received[1].path != "/bottoken/sendPhoto" || received[1].caption != "visitor" || received[1].photo != "https://cam.local/snap.jpg" {
		t.Fatalf("unexpected photo request: %+v", received[1])
	}
	if received[0].parseMode != "HTML" || received[1].parseMode != "HTML" {
		t.Fatalf("parse mode mismatch: %+v", received)
	}
}

func TestTelegramSenderMissingTokenIsPermanent(t *testing.T) {
	t.Parallel()

	sender := NewTelegramSender(config.TelegramAnnounce{ChatID: "1"})
	if _, err := sender.Send(context.Background(), Message{Text: "x"}); !IsPermanent(err) {
		t.Fatalf("expected permanent error, got %v", err)
	}
}

func TestHTTPSenderSend(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			t.Errorf("method=%s", r.Method)
		}
		if r.Header.Get("X-Test") != "1" {
			t.Errorf("missing custom header")
		}
		var payload map[string]any
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		if payload["id"] != "rec-1" || payload["message"] != "rendered" || payload["type"] != "kitchen_fire" {
			t.Errorf("unexpected payload: %v", payload)
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	sender := NewHTTPSender(config.HTTPAnnounce{
		Enabled:    true,
		URL:        server.URL,
		Method:     http.MethodPut,
		TimeoutSec: 2,
		Headers:    map[string]string{"X-Test": "1"},
	})
	if _, err := sender.Send(context.Background(), Message{NotificationRecord: sampleRecord(), Channel: "http", Text: "rendered"}); err != nil {
		t.Fatalf("send failed: %v", err)
	}
}

func TestHTTPSenderClassifiesStatus(t *testing.T) {
	t.Parallel()

	codes := map[int]bool{
		http.StatusBadRequest:          true,
		http.StatusNotFound:            true,
		http.StatusTooManyRequests:     false,
		http.StatusInternalServerError: false,
	}
	for code, permanent := range codes {
		code, permanent := code, permanent
		t.Run(http.StatusText(code), func(t *testing.T) {
			t.Parallel()

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(code)
				_, _ = w.Write([]byte("nope"))
			}))
			defer server.Close()

			sender := NewHTTPSender(config.HTTPAnnounce{URL: server.URL, TimeoutSec: 2})
			_, err := sender.Send(context.Background(), Message{NotificationRecord: sampleRecord()})
			if err == nil {
				t.Fatalf("expected error for status %d", code)
			}
			if IsPermanent(err) != permanent {
				t.Fatalf("status %d: permanent=%v, want %v (%v)", code, IsPermanent(err), permanent, err)
			}
		})
	}
}

func TestMarkPermanent(t *testing.T) {
	t.Parallel()

	if MarkPermanent(nil) != nil {
		t.Fatalf("nil must stay nil")
	}
	root := errors.New("root")
	wrapped := fmt.Errorf("outer: %w", MarkPermanent(root))
	if !IsPermanent(wrapped) || !errors.Is(wrapped, root) {
		t.Fatalf("marker must survive wrapping and keep cause")
	}
	if IsPermanent(root) {
		t.Fatalf("plain error must not be permanent")
	}
}
