package journal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"homeguard/internal/config"

	"github.com/nats-io/nats.go"
)

const journalStreamMaxAge = 7 * 24 * time.Hour

// NATSSink publishes journal entries into a JetStream stream.
// Params: NATS connection and subject settings.
// Returns: Sink implementation.
type NATSSink struct {
	nc      *nats.Conn
	js      nats.JetStreamContext
	subject string
}

// NewNATSSink connects to NATS and ensures the journal stream exists.
// Params: journal NATS config.
// Returns: sink or setup error.
func NewNATSSink(cfg config.JournalNATSConfig) (*NATSSink, error) {
	nc, err := nats.Connect(strings.Join(cfg.URL, ","))
	if err != nil {
		return nil, fmt.Errorf("connect journal nats: %w", err)
	}
	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream init for journal: %w", err)
	}
	if err := ensureStream(js, cfg.Stream, cfg.Subject); err != nil {
		nc.Close()
		return nil, err
	}
	return &NATSSink{nc: nc, js: js, subject: cfg.Subject}, nil
}

// Write publishes one entry; the entry id doubles as JetStream dedup key.
func (s *NATSSink) Write(ctx context.Context, entry Entry) error {
	body, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal journal entry: %w", err)
	}
	msg := nats.NewMsg(s.subject)
	msg.Data = body
	msg.Header.Set("Nats-Msg-Id", entry.ID)
	msg.Header.Set("Homeguard-Op", string(entry.Op))
	if _, err := s.js.PublishMsg(msg, nats.Context(ctx)); err != nil {
		return fmt.Errorf("publish journal entry: %w", err)
	}
	return nil
}

// Close closes NATS connection.
func (s *NATSSink) Close() error {
	if s == nil || s.nc == nil {
		return nil
	}
	s.nc.Close()
	return nil
}

// ensureStream creates the journal stream when absent.
// Params: JetStream context, stream and subject names.
// Returns: lookup/create error.
func ensureStream(js nats.JetStreamContext, streamName, subject string) error {
	if _, err := js.StreamInfo(streamName); err == nil {
		return nil
	} else if !errors.Is(err, nats.ErrStreamNotFound) {
		return fmt.Errorf("stream info %q: %w", streamName, err)
	}

	_, err := js.AddStream(&nats.StreamConfig{
		Name:      streamName,
		Subjects:  []string{subject},
		Retention: nats.LimitsPolicy,
		Storage:   nats.FileStorage,
		MaxAge:    journalStreamMaxAge,
	})
	if err != nil {
		return fmt.Errorf("create stream %q: %w", streamName, err)
	}
	return nil
}
