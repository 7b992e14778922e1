package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps per-key request timestamps in memory with periodic
// cleanup of empty windows.
type MemoryStore struct {
	mu      sync.Mutex
	windows map[string][]time.Time

	cleanupInterval time.Duration
	stopCleanup     chan struct{}
	cleanupOnce     sync.Once
}

// MemoryStoreOption configures a MemoryStore.
type MemoryStoreOption func(*MemoryStore)

// WithCleanupInterval sets the interval for dropping empty windows.
func WithCleanupInterval(interval time.Duration) MemoryStoreOption {
	return func(s *MemoryStore) {
		if interval > 0 {
			s.cleanupInterval = interval
		}
	}
}

// NewMemoryStore creates an in-memory store with automatic cleanup.
func NewMemoryStore(opts ...MemoryStoreOption) *MemoryStore {
	s := &MemoryStore{
		windows:         make(map[string][]time.Time),
		cleanupInterval: time.Minute,
		stopCleanup:     make(chan struct{}),
	}

	for _, opt := range opts {
		opt(s)
	}

	go s.cleanupLoop()

	return s
}

func (s *MemoryStore) RecordIfAllowed(ctx context.Context, key string, now time.Time, window time.Duration, limit int) (bool, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	valid := s.pruneLocked(key, now.Add(-window))
	if len(valid) >= limit {
		s.windows[key] = valid
		return false, len(valid), nil
	}

	valid = append(valid, now)
	s.windows[key] = valid
	return true, len(valid), nil
}

func (s *MemoryStore) CountInWindow(ctx context.Context, key string, window time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	valid := s.pruneLocked(key, time.Now().Add(-window))
	s.windows[key] = valid
	return len(valid), nil
}

func (s *MemoryStore) OldestInWindow(ctx context.Context, key string, window time.Duration) (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	valid := s.pruneLocked(key, time.Now().Add(-window))
	s.windows[key] = valid
	if len(valid) == 0 {
		return time.Time{}, nil
	}

	oldest := valid[0]
	for _, ts := range valid[1:] {
		if ts.Before(oldest) {
			oldest = ts
		}
	}
	return oldest, nil
}

func (s *MemoryStore) Reset(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.windows, key)
	return nil
}

// pruneLocked returns the timestamps newer than cutoff. Caller holds s.mu.
func (s *MemoryStore) pruneLocked(key string, cutoff time.Time) []time.Time {
	valid := s.windows[key][:0]
	for _, ts := range s.windows[key] {
		if ts.After(cutoff) {
			valid = append(valid, ts)
		}
	}
	return valid
}

func (s *MemoryStore) cleanupLoop() {
	ticker := time.NewTicker(s.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.mu.Lock()
			for key, window := range s.windows {
				if len(window) == 0 {
					delete(s.windows, key)
				}
			}
			s.mu.Unlock()
		case <-s.stopCleanup:
			return
		}
	}
}

// Close stops the cleanup goroutine.
func (s *MemoryStore) Close() error {
	s.cleanupOnce.Do(func() {
		close(s.stopCleanup)
	})
	return nil
}
