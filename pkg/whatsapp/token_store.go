package whatsapp

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// TokenStore tracks which magic link tokens were consumed. Entries only
// need to outlive the token TTL.
type TokenStore interface {
	// MarkUsed records the token as consumed for at least ttl.
	MarkUsed(ctx context.Context, tokenID string, ttl time.Duration) error

	// IsUsed reports whether the token was already consumed.
	IsUsed(ctx context.Context, tokenID string) (bool, error)
}

// MemoryTokenStore is an in-memory token store for development and tests.
type MemoryTokenStore struct {
	mu   sync.Mutex
	used map[string]time.Time
}

// NewMemoryTokenStore creates an empty in-memory token store.
func NewMemoryTokenStore() *MemoryTokenStore {
	return &MemoryTokenStore{used: make(map[string]time.Time)}
}

func (s *MemoryTokenStore) MarkUsed(ctx context.Context, tokenID string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Opportunistic pruning keeps the map bounded without a sweeper.
	now := time.Now()
	for id, expiry := range s.used {
		if now.After(expiry) {
			delete(s.used, id)
		}
	}

	s.used[tokenID] = now.Add(ttl)
	return nil
}

func (s *MemoryTokenStore) IsUsed(ctx context.Context, tokenID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	expiry, ok := s.used[tokenID]
	if !ok {
		return false, nil
	}
	if time.Now().After(expiry) {
		delete(s.used, tokenID)
		return false, nil
	}

	return true, nil
}

// RedisTokenStore tracks consumed tokens in Redis, one key per token with a
// TTL, so single-use holds across processes.
type RedisTokenStore struct {
	client    redis.UniversalClient
	keyPrefix string
}

// NewRedisTokenStore creates a Redis-backed token store.
func NewRedisTokenStore(client redis.UniversalClient) *RedisTokenStore {
	return &RedisTokenStore{client: client, keyPrefix: "magiclink:used:"}
}

func (s *RedisTokenStore) MarkUsed(ctx context.Context, tokenID string, ttl time.Duration) error {
	if err := s.client.Set(ctx, s.keyPrefix+tokenID, "1", ttl).Err(); err != nil {
		return fmt.Errorf("whatsapp: mark used: %w", err)
	}
	return nil
}

func (s *RedisTokenStore) IsUsed(ctx context.Context, tokenID string) (bool, error) {
	err := s.client.Get(ctx, s.keyPrefix+tokenID).Err()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("whatsapp: used lookup: %w", err)
	}
	return true, nil
}
