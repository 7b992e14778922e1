package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore implements Store over a Redis sorted set per key, scored by
// request timestamp. Record-and-check runs as a Lua script so concurrent
// requests from multiple instances cannot exceed the limit.
type RedisStore struct {
	client    redis.UniversalClient
	keyPrefix string
}

// recordScript prunes expired entries, checks the limit, and conditionally
// records the new timestamp in one atomic step.
var recordScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
local count = redis.call('ZCARD', key)
if count >= limit then
	return {0, count}
end

redis.call('ZADD', key, now, ARGV[1] .. '-' .. ARGV[4])
redis.call('PEXPIRE', key, window)
return {1, count + 1}
`)

// NewRedisStore creates a Redis-backed store. The prefix namespaces keys.
func NewRedisStore(client redis.UniversalClient, keyPrefix string) *RedisStore {
	if keyPrefix == "" {
		keyPrefix = "ratelimit"
	}
	return &RedisStore{client: client, keyPrefix: keyPrefix}
}

func (s *RedisStore) key(key string) string {
	return s.keyPrefix + ":" + key
}

func (s *RedisStore) RecordIfAllowed(ctx context.Context, key string, now time.Time, window time.Duration, limit int) (bool, int, error) {
	res, err := recordScript.Run(ctx, s.client, []string{s.key(key)},
		now.UnixMilli(), window.Milliseconds(), limit, now.UnixNano(),
	).Int64Slice()
	if err != nil {
		return false, 0, fmt.Errorf("ratelimit: record: %w", err)
	}
	if len(res) != 2 {
		return false, 0, fmt.Errorf("ratelimit: unexpected script result %v", res)
	}

	return res[0] == 1, int(res[1]), nil
}

func (s *RedisStore) CountInWindow(ctx context.Context, key string, window time.Duration) (int, error) {
	now := time.Now()
	minScore := strconv.FormatInt(now.Add(-window).UnixMilli(), 10)

	count, err := s.client.ZCount(ctx, s.key(key), minScore, "+inf").Result()
	if err != nil {
		return 0, fmt.Errorf("ratelimit: count: %w", err)
	}
	return int(count), nil
}

func (s *RedisStore) OldestInWindow(ctx context.Context, key string, window time.Duration) (time.Time, error) {
	now := time.Now()
	minScore := strconv.FormatInt(now.Add(-window).UnixMilli(), 10)

	entries, err := s.client.ZRangeByScoreWithScores(ctx, s.key(key), &redis.ZRangeBy{
		Min: minScore, Max: "+inf", Count: 1,
	}).Result()
	if err != nil {
		return time.Time{}, fmt.Errorf("ratelimit: oldest: %w", err)
	}
	if len(entries) == 0 {
		return time.Time{}, nil
	}

	return time.UnixMilli(int64(entries[0].Score)), nil
}

func (s *RedisStore) Reset(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.key(key)).Err(); err != nil {
		return fmt.Errorf("ratelimit: reset: %w", err)
	}
	return nil
}
