package session

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Store defines session persistence. A store enforces one active session per
// (storeID, fingerprint) pair: Create replaces any prior session for the
// same pair.
type Store interface {
	// Create stores a new session, displacing any existing session for the
	// same store and fingerprint.
	Create(ctx context.Context, session *Session) error

	// Get retrieves a session by ID.
	Get(ctx context.Context, id uuid.UUID) (*Session, error)

	// GetByFingerprint retrieves the active session for a store and
	// fingerprint pair.
	GetByFingerprint(ctx context.Context, storeID, fingerprintHash string) (*Session, error)

	// Update replaces an existing session.
	Update(ctx context.Context, session *Session) error

	// UpdateActivity updates only the last activity time.
	UpdateActivity(ctx context.Context, id uuid.UUID, lastActivity time.Time) error

	// Delete removes a session by ID.
	Delete(ctx context.Context, id uuid.UUID) error

	// DeleteExpired removes all expired sessions and returns how many.
	DeleteExpired(ctx context.Context) (int, error)
}
