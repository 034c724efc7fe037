package journal

import (
	"context"
	"encoding/json"
	"fmt"

	"homeguard/internal/config"
	"homeguard/internal/domain"

	"github.com/go-redis/redis/v8"
)

// RedisSink mirrors the event log into Redis.
// Params: list key with record ids (most recent first) and hash key with record JSON.
// Returns: Sink capped at max length, evicting like the in-memory log.
type RedisSink struct {
	client  *redis.Client
	listKey string
	hashKey string
	maxLen  int64
}

// NewRedisSink creates Redis client and verifies connectivity.
// Params: ctx for the initial ping and journal Redis config.
// Returns: sink or ping error.
func NewRedisSink(ctx context.Context, cfg config.JournalRedisConfig) (*RedisSink, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping journal redis %s: %w", cfg.Addr, err)
	}
	return newRedisSink(client, cfg.Key, cfg.MaxLen), nil
}

func newRedisSink(client *redis.Client, key string, maxLen int) *RedisSink {
	return &RedisSink{
		client:  client,
		listKey: key,
		hashKey: key + ":records",
		maxLen:  int64(maxLen),
	}
}

// Write applies one entry. Replace of an evicted record is ignored.
func (s *RedisSink) Write(ctx context.Context, entry Entry) error {
	body, err := json.Marshal(entry.Record)
	if err != nil {
		return fmt.Errorf("marshal journal record: %w", err)
	}
	switch entry.Op {
	case OpReplace:
		return s.replace(ctx, entry.Record.ID, body)
	default:
		return s.append(ctx, entry.Record.ID, body)
	}
}

func (s *RedisSink) append(ctx context.Context, id string, body []byte) error {
	exists, err := s.client.HExists(ctx, s.hashKey, id).Result()
	if err != nil {
		return fmt.Errorf("check journal record %s: %w", id, err)
	}
	if exists {
		// Redelivered append; keep original position.
		return s.client.HSet(ctx, s.hashKey, id, body).Err()
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, s.hashKey, id, body)
		pipe.LPush(ctx, s.listKey, id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("append journal record %s: %w", id, err)
	}
	return s.trim(ctx)
}

func (s *RedisSink) replace(ctx context.Context, id string, body []byte) error {
	exists, err := s.client.HExists(ctx, s.hashKey, id).Result()
	if err != nil {
		return fmt.Errorf("check journal record %s: %w", id, err)
	}
	if !exists {
		return nil
	}
	if err := s.client.HSet(ctx, s.hashKey, id, body).Err(); err != nil {
		return fmt.Errorf("replace journal record %s: %w", id, err)
	}
	return nil
}

// trim evicts ids beyond max length together with their bodies.
func (s *RedisSink) trim(ctx context.Context) error {
	if s.maxLen <= 0 {
		return nil
	}
	evicted, err := s.client.LRange(ctx, s.listKey, s.maxLen, -1).Result()
	if err != nil {
		return fmt.Errorf("read journal overflow: %w", err)
	}
	if len(evicted) == 0 {
		return nil
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LTrim(ctx, s.listKey, 0, s.maxLen-1)
		pipe.HDel(ctx, s.hashKey, evicted...)
		return nil
	})
	if err != nil {
		return fmt.Errorf("trim journal: %w", err)
	}
	return nil
}

// records reads journaled records most-recent-first.
// Params: ctx and limit (<= 0 reads all).
// Returns: decoded records; ids without bodies are skipped.
func (s *RedisSink) records(ctx context.Context, limit int) ([]domain.NotificationRecord, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit) - 1
	}
	ids, err := s.client.LRange(ctx, s.listKey, 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("read journal ids: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	bodies, err := s.client.HMGet(ctx, s.hashKey, ids...).Result()
	if err != nil {
		return nil, fmt.Errorf("read journal records: %w", err)
	}
	records := make([]domain.NotificationRecord, 0, len(bodies))
	for _, raw := range bodies {
		text, ok := raw.(string)
		if !ok {
			continue
		}
		var record domain.NotificationRecord
		if err := json.Unmarshal([]byte(text), &record); err != nil {
			return nil, fmt.Errorf("decode journal record: %w", err)
		}
		records = append(records, record)
	}
	return records, nil
}

// Close closes Redis client.
func (s *RedisSink) Close() error {
	return s.client.Close()
}
