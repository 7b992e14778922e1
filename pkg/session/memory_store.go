package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory session store for development and tests.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]*Session
	byPair   map[string]uuid.UUID

	done      chan struct{}
	closeOnce sync.Once
}

// NewMemoryStore creates an in-memory store. A positive cleanupInterval
// starts a background sweeper removing expired sessions.
func NewMemoryStore(cleanupInterval time.Duration) *MemoryStore {
	s := &MemoryStore{
		sessions: make(map[uuid.UUID]*Session),
		byPair:   make(map[string]uuid.UUID),
		done:     make(chan struct{}),
	}

	if cleanupInterval > 0 {
		go s.cleanupLoop(cleanupInterval)
	}

	return s
}

func pairKey(storeID, fingerprintHash string) string {
	return storeID + "|" + fingerprintHash
}

func (s *MemoryStore) Create(ctx context.Context, session *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := pairKey(session.StoreID, session.Fingerprint)
	if prior, ok := s.byPair[key]; ok {
		delete(s.sessions, prior)
	}

	clone := *session
	s.sessions[session.ID] = &clone
	s.byPair[key] = session.ID
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id uuid.UUID) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}

	clone := *session
	return &clone, nil
}

func (s *MemoryStore) GetByFingerprint(ctx context.Context, storeID, fingerprintHash string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byPair[pairKey(storeID, fingerprintHash)]
	if !ok {
		return nil, ErrNotFound
	}

	session, ok := s.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}

	clone := *session
	return &clone, nil
}

func (s *MemoryStore) Update(ctx context.Context, session *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[session.ID]; !ok {
		return ErrNotFound
	}

	clone := *session
	s.sessions[session.ID] = &clone
	return nil
}

func (s *MemoryStore) UpdateActivity(ctx context.Context, id uuid.UUID, lastActivity time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[id]
	if !ok {
		return ErrNotFound
	}

	session.LastActivity = lastActivity
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.deleteLocked(id)
	return nil
}

func (s *MemoryStore) deleteLocked(id uuid.UUID) {
	session, ok := s.sessions[id]
	if !ok {
		return
	}

	key := pairKey(session.StoreID, session.Fingerprint)
	if s.byPair[key] == id {
		delete(s.byPair, key)
	}
	delete(s.sessions, id)
}

func (s *MemoryStore) DeleteExpired(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, session := range s.sessions {
		if session.Expired() {
			s.deleteLocked(id)
			removed++
		}
	}

	return removed, nil
}

func (s *MemoryStore) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			_, _ = s.DeleteExpired(context.Background())
		case <-s.done:
			return
		}
	}
}

// Close stops the background sweeper.
func (s *MemoryStore) Close() error {
	s.closeOnce.Do(func() { close(s.done) })
	return nil
}
