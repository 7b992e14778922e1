package fingerprint

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pedidoflow/guestkit/pkg/logger"
)

// RedisStore persists fingerprint records as Redis hashes, one per
// fingerprint, with a key TTL matching the idle TTL. Counter updates ride
// on HINCRBY so concurrent instances never lose increments.
type RedisStore struct {
	client    redis.UniversalClient
	config    Config
	keyPrefix string
	log       *slog.Logger
}

// RedisStoreOption configures a RedisStore.
type RedisStoreOption func(*RedisStore)

// WithRedisLogger sets the logger used for block transitions.
func WithRedisLogger(log *slog.Logger) RedisStoreOption {
	return func(s *RedisStore) {
		if log != nil {
			s.log = log
		}
	}
}

// WithKeyPrefix overrides the default "fingerprint" key namespace.
func WithKeyPrefix(prefix string) RedisStoreOption {
	return func(s *RedisStore) {
		if prefix != "" {
			s.keyPrefix = prefix
		}
	}
}

// NewRedisStore creates a Redis-backed fingerprint store.
func NewRedisStore(client redis.UniversalClient, cfg Config, opts ...RedisStoreOption) *RedisStore {
	s := &RedisStore{
		client:    client,
		config:    cfg,
		keyPrefix: "fingerprint",
		log:       logger.Discard(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

func (s *RedisStore) key(hash string) string {
	return s.keyPrefix + ":" + hash
}

func (s *RedisStore) Get(ctx context.Context, hash string) (*Record, error) {
	fields, err := s.client.HGetAll(ctx, s.key(hash)).Result()
	if err != nil {
		return nil, fmt.Errorf("fingerprint: get: %w", err)
	}
	if len(fields) == 0 {
		return nil, ErrNotFound
	}

	record, err := recordFromFields(fields)
	if err != nil {
		return nil, err
	}

	if record.Expired(s.config.TTL) {
		// Stale record outlived its key TTL, which happens when the
		// configured TTL shrank between writes.
		_ = s.client.Del(ctx, s.key(hash)).Err()
		return nil, ErrNotFound
	}

	return record, nil
}

func (s *RedisStore) Set(ctx context.Context, record *Record) error {
	if record == nil || !Validate(record.Hash) {
		return ErrInvalidRecord
	}

	fields, err := fieldsFromRecord(record)
	if err != nil {
		return err
	}

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, s.key(record.Hash), fields)
	pipe.Expire(ctx, s.key(record.Hash), s.config.TTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("fingerprint: set: %w", err)
	}
	return nil
}

func (s *RedisStore) Update(ctx context.Context, record *Record) error {
	if record == nil || !Validate(record.Hash) {
		return ErrInvalidRecord
	}

	exists, err := s.client.Exists(ctx, s.key(record.Hash)).Result()
	if err != nil {
		return fmt.Errorf("fingerprint: update: %w", err)
	}
	if exists == 0 {
		return ErrNotFound
	}

	copied := *record
	copied.LastSeen = time.Now()
	return s.Set(ctx, &copied)
}

func (s *RedisStore) IncrementUsage(ctx context.Context, hash string) error {
	if err := s.requireExists(ctx, hash); err != nil {
		return err
	}

	pipe := s.client.TxPipeline()
	pipe.HIncrBy(ctx, s.key(hash), "usage_count", 1)
	pipe.HSet(ctx, s.key(hash), "last_seen", time.Now().UnixMilli())
	pipe.Expire(ctx, s.key(hash), s.config.TTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("fingerprint: increment usage: %w", err)
	}
	return nil
}

func (s *RedisStore) IncrementSuspicious(ctx context.Context, hash string) error {
	if err := s.requireExists(ctx, hash); err != nil {
		return err
	}

	count, err := s.client.HIncrBy(ctx, s.key(hash), "suspicious_activity", 1).Result()
	if err != nil {
		return fmt.Errorf("fingerprint: increment suspicious: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, s.key(hash), "last_seen", time.Now().UnixMilli())
	if int(count) >= s.config.MaxSuspiciousActivity {
		pipe.HSet(ctx, s.key(hash),
			"blocked", 1,
			"block_reason", "suspicious activity threshold reached",
		)
		s.log.Warn("fingerprint auto-blocked",
			logger.Fingerprint(hash),
			slog.Int64("suspicious_activity", count),
			logger.Component("fingerprint_store"),
		)
	}
	pipe.Expire(ctx, s.key(hash), s.config.TTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("fingerprint: increment suspicious: %w", err)
	}
	return nil
}

func (s *RedisStore) Block(ctx context.Context, hash, reason string) error {
	if err := s.requireExists(ctx, hash); err != nil {
		return err
	}

	err := s.client.HSet(ctx, s.key(hash),
		"blocked", 1,
		"block_reason", reason,
		"last_seen", time.Now().UnixMilli(),
	).Err()
	if err != nil {
		return fmt.Errorf("fingerprint: block: %w", err)
	}
	return nil
}

func (s *RedisStore) Unblock(ctx context.Context, hash string) error {
	if err := s.requireExists(ctx, hash); err != nil {
		return err
	}

	err := s.client.HSet(ctx, s.key(hash),
		"blocked", 0,
		"block_reason", "",
		"suspicious_activity", 0,
		"last_seen", time.Now().UnixMilli(),
	).Err()
	if err != nil {
		return fmt.Errorf("fingerprint: unblock: %w", err)
	}
	return nil
}

func (s *RedisStore) Cleanup(ctx context.Context, olderThan time.Time) (int, error) {
	removed := 0
	iter := s.client.Scan(ctx, 0, s.keyPrefix+":*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		lastSeen, err := s.client.HGet(ctx, key, "last_seen").Int64()
		if err != nil {
			continue
		}
		if time.UnixMilli(lastSeen).Before(olderThan) {
			if s.client.Del(ctx, key).Err() == nil {
				removed++
			}
		}
	}
	if err := iter.Err(); err != nil {
		return removed, fmt.Errorf("fingerprint: cleanup: %w", err)
	}

	return removed, nil
}

func (s *RedisStore) Analytics(ctx context.Context) (*Analytics, error) {
	a := &Analytics{}
	userAgents := make(map[string]int)
	resolutions := make(map[string]int)
	timeZones := make(map[string]int)

	var confidenceSum float64

	iter := s.client.Scan(ctx, 0, s.keyPrefix+":*", 100).Iterator()
	for iter.Next(ctx) {
		fields, err := s.client.HGetAll(ctx, iter.Val()).Result()
		if err != nil || len(fields) == 0 {
			continue
		}
		record, err := recordFromFields(fields)
		if err != nil {
			continue
		}

		a.Total++
		if record.Blocked {
			a.Blocked++
		}
		if record.SuspiciousActivity > 0 {
			a.Suspicious++
		}
		confidenceSum += record.Confidence

		if record.Device.UserAgent != "" {
			userAgents[record.Device.UserAgent]++
		}
		if record.Device.ScreenResolution != "" {
			resolutions[record.Device.ScreenResolution]++
		}
		if record.Device.TimeZone != "" {
			timeZones[record.Device.TimeZone]++
		}
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("fingerprint: analytics: %w", err)
	}

	if a.Total > 0 {
		a.AverageConfidence = confidenceSum / float64(a.Total)
	}
	a.TopUserAgents = topN(userAgents, s.config.TopN)
	a.TopResolutions = topN(resolutions, s.config.TopN)
	a.TopTimeZones = topN(timeZones, s.config.TopN)

	return a, nil
}

func (s *RedisStore) requireExists(ctx context.Context, hash string) error {
	exists, err := s.client.Exists(ctx, s.key(hash)).Result()
	if err != nil {
		return fmt.Errorf("fingerprint: exists: %w", err)
	}
	if exists == 0 {
		return ErrNotFound
	}
	return nil
}

func fieldsFromRecord(record *Record) (map[string]any, error) {
	device, err := json.Marshal(record.Device)
	if err != nil {
		return nil, fmt.Errorf("fingerprint: marshal device: %w", err)
	}

	blocked := 0
	if record.Blocked {
		blocked = 1
	}

	return map[string]any{
		"hash":                record.Hash,
		"device":              string(device),
		"confidence":          record.Confidence,
		"created_at":          record.CreatedAt.UnixMilli(),
		"last_seen":           record.LastSeen.UnixMilli(),
		"usage_count":         record.UsageCount,
		"suspicious_activity": record.SuspiciousActivity,
		"blocked":             blocked,
		"block_reason":        record.BlockReason,
	}, nil
}

func recordFromFields(fields map[string]string) (*Record, error) {
	record := &Record{
		Hash:        fields["hash"],
		BlockReason: fields["block_reason"],
	}

	if device, ok := fields["device"]; ok && device != "" {
		if err := json.Unmarshal([]byte(device), &record.Device); err != nil {
			return nil, fmt.Errorf("fingerprint: unmarshal device: %w", err)
		}
	}

	record.Confidence, _ = strconv.ParseFloat(fields["confidence"], 64)
	record.UsageCount, _ = strconv.Atoi(fields["usage_count"])
	record.SuspiciousActivity, _ = strconv.Atoi(fields["suspicious_activity"])
	record.Blocked = fields["blocked"] == "1"

	if ms, err := strconv.ParseInt(fields["created_at"], 10, 64); err == nil {
		record.CreatedAt = time.UnixMilli(ms)
	}
	if ms, err := strconv.ParseInt(fields["last_seen"], 10, 64); err == nil {
		record.LastSeen = time.UnixMilli(ms)
	}

	return record, nil
}
