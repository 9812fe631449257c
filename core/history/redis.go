package history

import (
	"context"
	"encoding/json"
	"fmt"

	redis "github.com/redis/go-redis/v9"

	"github.com/jordanlister/thinktank-installation-scheduler-sub005/core/model"
)

// DefaultStream is the Redis stream key used when none is configured.
const DefaultStream = "scheduling:history"

// RedisStore appends entries to a Redis stream.
type RedisStore struct {
	rdb    *redis.Client
	stream string
}

// NewRedisStore connects to the redis:// URL and pings the server.
func NewRedisStore(ctx context.Context, url, stream string) (*RedisStore, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return NewRedisStoreFromClient(rdb, stream), nil
}

// NewRedisStoreFromClient wraps an existing client.
func NewRedisStoreFromClient(rdb *redis.Client, stream string) *RedisStore {
	if stream == "" {
		stream = DefaultStream
	}
	return &RedisStore{rdb: rdb, stream: stream}
}

func (s *RedisStore) Append(ctx context.Context, h model.ConflictResolutionHistory) error {
	b, err := json.Marshal(h)
	if err != nil {
		return err
	}
	return s.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: s.stream,
		Values: map[string]any{"id": h.ID, "record": string(b)},
	}).Err()
}

// Query reads the whole stream in order.
func (s *RedisStore) Query(ctx context.Context, q Query) ([]model.ConflictResolutionHistory, error) {
	msgs, err := s.rdb.XRange(ctx, s.stream, "-", "+").Result()
	if err != nil {
		return nil, err
	}
	versions := make([]model.ConflictResolutionHistory, 0, len(msgs))
	for _, m := range msgs {
		raw, ok := m.Values["record"].(string)
		if !ok {
			continue
		}
		var h model.ConflictResolutionHistory
		if err := json.Unmarshal([]byte(raw), &h); err != nil {
			return nil, fmt.Errorf("unmarshal history %s: %w", m.ID, err)
		}
		versions = append(versions, h)
	}
	return Latest(versions, q), nil
}

func (s *RedisStore) Close() error { return s.rdb.Close() }
