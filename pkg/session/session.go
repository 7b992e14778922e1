package session

import (
	"time"

	"github.com/google/uuid"
)

// ContextType distinguishes how the guest reached the storefront.
type ContextType string

const (
	// ContextTable is an on-premise visit tied to a physical table.
	ContextTable ContextType = "table"

	// ContextDelivery is a remote visit with no table.
	ContextDelivery ContextType = "delivery"
)

// Context carries the ordering context a session was opened in. A table
// context requires a table identifier; a delivery context must not have one.
type Context struct {
	Type    ContextType `json:"type"`
	TableID string      `json:"tableId,omitempty"`
}

// Validate checks the context's internal consistency.
func (c Context) Validate() error {
	switch c.Type {
	case ContextTable:
		if c.TableID == "" {
			return ErrInvalidContext
		}
	case ContextDelivery:
		if c.TableID != "" {
			return ErrInvalidContext
		}
	default:
		return ErrInvalidContext
	}
	return nil
}

// Equal reports whether two contexts refer to the same visit.
func (c Context) Equal(other Context) bool {
	return c.Type == other.Type && c.TableID == other.TableID
}

// Session is one guest visit to one store, bound to a device fingerprint.
type Session struct {
	ID           uuid.UUID  `json:"id"`
	StoreID      string     `json:"storeId"`
	Context      Context    `json:"context"`
	Fingerprint  string     `json:"fingerprint"`
	CustomerID   *uuid.UUID `json:"customerId,omitempty"`
	State        State      `json:"state"`
	IPAddress    string     `json:"ipAddress,omitempty"`
	UserAgent    string     `json:"userAgent,omitempty"`
	LastActivity time.Time  `json:"lastActivity"`
	CreatedAt    time.Time  `json:"createdAt"`
	ExpiresAt    time.Time  `json:"expiresAt"`
}

// New creates a session in the pending-validation state.
func New(storeID string, sessionCtx Context, fingerprintHash string, ttl time.Duration) *Session {
	now := time.Now()
	return &Session{
		ID:           uuid.New(),
		StoreID:      storeID,
		Context:      sessionCtx,
		Fingerprint:  fingerprintHash,
		State:        StatePendingValidation,
		LastActivity: now,
		CreatedAt:    now,
		ExpiresAt:    now.Add(ttl),
	}
}

// Authenticated reports whether the session is tied to a customer account.
func (s *Session) Authenticated() bool {
	return s != nil && s.State == StateActiveAuthenticated && s.CustomerID != nil
}

// Expired reports whether the session's lifetime ran out.
func (s *Session) Expired() bool {
	return s != nil && time.Now().After(s.ExpiresAt)
}

// Touch updates the last activity time.
func (s *Session) Touch() {
	if s == nil {
		return
	}
	s.LastActivity = time.Now()
}
