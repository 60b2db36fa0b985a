package statestore

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "authz:state:"

// RedisStore is a Store backed by Redis, for deployments running more than
// one backend replica. Hit/miss counters are per-process; key counts and
// sizes reflect the shared keyspace.
type RedisStore struct {
	client redis.UniversalClient
	hits   atomic.Int64
	misses atomic.Int64
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore constructs a Redis-backed state store.
func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

func redisKey(token string) string {
	return redisKeyPrefix + token
}

func (s *RedisStore) Set(ctx context.Context, token string, entry Entry, ttl time.Duration) error {
	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	if err := s.client.Set(ctx, redisKey(token), payload, ttl).Err(); err != nil {
		return fmt.Errorf("persist state: %w", err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, token string) (*Entry, error) {
	payload, err := s.client.Get(ctx, redisKey(token)).Bytes()
	if err != nil {
		if err == redis.Nil {
			s.misses.Add(1)
			return nil, nil
		}
		return nil, fmt.Errorf("load state: %w", err)
	}
	var entry Entry
	if err := json.Unmarshal(payload, &entry); err != nil {
		return nil, fmt.Errorf("decode state: %w", err)
	}
	s.hits.Add(1)
	return &entry, nil
}

func (s *RedisStore) Delete(ctx context.Context, token string) error {
	if err := s.client.Del(ctx, redisKey(token)).Err(); err != nil && err != redis.Nil {
		return fmt.Errorf("delete state: %w", err)
	}
	return nil
}

func (s *RedisStore) Stats(ctx context.Context) (Stats, error) {
	var stats Stats
	stats.Hits = s.hits.Load()
	stats.Misses = s.misses.Load()
	iter := s.client.Scan(ctx, 0, redisKeyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		stats.Keys++
		stats.KSize += int64(len(key) - len(redisKeyPrefix))
		size, err := s.client.StrLen(ctx, key).Result()
		if err == nil {
			stats.VSize += size
		}
	}
	if err := iter.Err(); err != nil {
		return Stats{}, fmt.Errorf("scan state keys: %w", err)
	}
	return stats, nil
}

func (s *RedisStore) Clear(ctx context.Context) error {
	iter := s.client.Scan(ctx, 0, redisKeyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		if err := s.client.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("clear state: %w", err)
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scan state keys: %w", err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
