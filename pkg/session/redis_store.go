package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisStore persists sessions in Redis. Each session is a JSON value with a
// TTL matching its expiry, plus an index key mapping (storeID, fingerprint)
// to the session ID so the pair-uniqueness rule survives restarts.
type RedisStore struct {
	client    redis.UniversalClient
	keyPrefix string
}

// RedisStoreOption configures the Redis store.
type RedisStoreOption func(*RedisStore)

// WithKeyPrefix overrides the default "session:" key prefix.
func WithKeyPrefix(prefix string) RedisStoreOption {
	return func(s *RedisStore) {
		s.keyPrefix = prefix
	}
}

// NewRedisStore creates a Redis-backed session store.
func NewRedisStore(client redis.UniversalClient, opts ...RedisStoreOption) *RedisStore {
	s := &RedisStore{
		client:    client,
		keyPrefix: "session:",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisStore) sessionKey(id uuid.UUID) string {
	return s.keyPrefix + id.String()
}

func (s *RedisStore) pairIndexKey(storeID, fingerprintHash string) string {
	return s.keyPrefix + "pair:" + storeID + ":" + fingerprintHash
}

func (s *RedisStore) Create(ctx context.Context, session *Session) error {
	payload, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("session: marshal: %w", err)
	}

	indexKey := s.pairIndexKey(session.StoreID, session.Fingerprint)

	// Displace any prior session for the same pair before writing the new one.
	if prior, err := s.client.Get(ctx, indexKey).Result(); err == nil {
		if priorID, parseErr := uuid.Parse(prior); parseErr == nil {
			s.client.Del(ctx, s.sessionKey(priorID))
		}
	}

	ttl := time.Until(session.ExpiresAt)
	if ttl <= 0 {
		return ErrExpired
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.sessionKey(session.ID), payload, ttl)
	pipe.Set(ctx, indexKey, session.ID.String(), ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("session: create: %w", err)
	}

	return nil
}

func (s *RedisStore) Get(ctx context.Context, id uuid.UUID) (*Session, error) {
	payload, err := s.client.Get(ctx, s.sessionKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("session: get: %w", err)
	}

	var session Session
	if err := json.Unmarshal(payload, &session); err != nil {
		return nil, fmt.Errorf("session: unmarshal: %w", err)
	}

	return &session, nil
}

func (s *RedisStore) GetByFingerprint(ctx context.Context, storeID, fingerprintHash string) (*Session, error) {
	raw, err := s.client.Get(ctx, s.pairIndexKey(storeID, fingerprintHash)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("session: pair lookup: %w", err)
	}

	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, ErrNotFound
	}

	return s.Get(ctx, id)
}

func (s *RedisStore) Update(ctx context.Context, session *Session) error {
	key := s.sessionKey(session.ID)

	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("session: update: %w", err)
	}
	if exists == 0 {
		return ErrNotFound
	}

	payload, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("session: marshal: %w", err)
	}

	if err := s.client.Set(ctx, key, payload, redis.KeepTTL).Err(); err != nil {
		return fmt.Errorf("session: update: %w", err)
	}

	return nil
}

func (s *RedisStore) UpdateActivity(ctx context.Context, id uuid.UUID, lastActivity time.Time) error {
	session, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	session.LastActivity = lastActivity
	return s.Update(ctx, session)
}

func (s *RedisStore) Delete(ctx context.Context, id uuid.UUID) error {
	session, err := s.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return err
	}

	indexKey := s.pairIndexKey(session.StoreID, session.Fingerprint)
	if current, err := s.client.Get(ctx, indexKey).Result(); err == nil && current == id.String() {
		s.client.Del(ctx, indexKey)
	}

	if err := s.client.Del(ctx, s.sessionKey(id)).Err(); err != nil {
		return fmt.Errorf("session: delete: %w", err)
	}

	return nil
}

// DeleteExpired sweeps dangling pair-index entries whose sessions already
// expired. Session values themselves expire via key TTLs.
func (s *RedisStore) DeleteExpired(ctx context.Context) (int, error) {
	removed := 0

	iter := s.client.Scan(ctx, 0, s.keyPrefix+"pair:*", 100).Iterator()
	for iter.Next(ctx) {
		indexKey := iter.Val()

		raw, err := s.client.Get(ctx, indexKey).Result()
		if err != nil {
			continue
		}

		id, err := uuid.Parse(raw)
		if err != nil {
			s.client.Del(ctx, indexKey)
			removed++
			continue
		}

		exists, err := s.client.Exists(ctx, s.sessionKey(id)).Result()
		if err == nil && exists == 0 {
			s.client.Del(ctx, indexKey)
			removed++
		}
	}
	if err := iter.Err(); err != nil {
		return removed, fmt.Errorf("session: cleanup scan: %w", err)
	}

	return removed, nil
}
