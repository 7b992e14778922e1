package credential

import (
	"context"
	"sync"
)

// MemoryPersistence is an in-memory fallback for development and tests.
type MemoryPersistence struct {
	mu    sync.RWMutex
	creds map[string]*Credential
}

// NewMemoryPersistence creates an empty in-memory persistence layer.
func NewMemoryPersistence() *MemoryPersistence {
	return &MemoryPersistence{creds: make(map[string]*Credential)}
}

func (p *MemoryPersistence) Save(ctx context.Context, storeID string, cred *Credential) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	clone := *cred
	p.creds[storeID] = &clone
	return nil
}

func (p *MemoryPersistence) Load(ctx context.Context, storeID string) (*Credential, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	cred, ok := p.creds[storeID]
	if !ok {
		return nil, ErrNotFound
	}

	clone := *cred
	return &clone, nil
}

func (p *MemoryPersistence) Clear(ctx context.Context, storeID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	delete(p.creds, storeID)
	return nil
}
