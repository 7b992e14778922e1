package credential

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/pedidoflow/guestkit/pkg/cookie"
)

// Persistence is the fallback storage mirrored behind the cookie, for
// clients that drop cookies between visits. The cookie stays authoritative
// on read; the fallback only answers when the cookie is absent.
type Persistence interface {
	Save(ctx context.Context, storeID string, cred *Credential) error
	Load(ctx context.Context, storeID string) (*Credential, error)
	Clear(ctx context.Context, storeID string) error
}

// Store persists credentials per storefront: a signed cookie first, an
// optional fallback second.
type Store struct {
	cookies    *cookie.Manager
	fallback   Persistence
	namePrefix string
	maxAge     time.Duration
	secure     bool
}

// StoreOption configures the credential store.
type StoreOption func(*Store)

// WithFallback mirrors credentials to a secondary persistence layer.
func WithFallback(p Persistence) StoreOption {
	return func(s *Store) {
		s.fallback = p
	}
}

// WithCookiePrefix overrides the default "guest_auth_" cookie name prefix.
func WithCookiePrefix(prefix string) StoreOption {
	return func(s *Store) {
		s.namePrefix = prefix
	}
}

// WithMaxAge overrides the default 30-day cookie lifetime.
func WithMaxAge(maxAge time.Duration) StoreOption {
	return func(s *Store) {
		s.maxAge = maxAge
	}
}

// WithSecure requires HTTPS for the credential cookie.
func WithSecure(secure bool) StoreOption {
	return func(s *Store) {
		s.secure = secure
	}
}

// NewStore creates a credential store over the cookie manager.
func NewStore(cookies *cookie.Manager, opts ...StoreOption) *Store {
	s := &Store{
		cookies:    cookies,
		namePrefix: "guest_auth_",
		maxAge:     30 * 24 * time.Hour,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) cookieName(storeID string) string {
	return s.namePrefix + storeID
}

// Save writes the credential to the signed cookie and mirrors it to the
// fallback. A fallback failure does not fail the save.
func (s *Store) Save(ctx context.Context, w http.ResponseWriter, storeID string, cred *Credential) error {
	payload, err := json.Marshal(cred)
	if err != nil {
		return fmt.Errorf("credential: marshal: %w", err)
	}

	s.cookies.SetSigned(w, s.cookieName(storeID), string(payload),
		cookie.WithMaxAge(int(s.maxAge.Seconds())),
		cookie.WithSameSite(http.SameSiteStrictMode),
		cookie.WithSecure(s.secure),
	)

	if s.fallback != nil {
		_ = s.fallback.Save(ctx, storeID, cred)
	}

	return nil
}

// Load reads the credential. The cookie is the primary copy, but when the
// fallback holds one with a later expiry the fallback wins: background
// refreshes land there first, and the cookie only catches up on the next
// request. Expired credentials are treated as absent and reported as
// ErrExpired so callers can trigger a new login.
func (s *Store) Load(ctx context.Context, r *http.Request, storeID string) (*Credential, error) {
	var cred *Credential

	raw, err := s.cookies.GetSigned(r, s.cookieName(storeID))
	if err == nil {
		var fromCookie Credential
		if err := json.Unmarshal([]byte(raw), &fromCookie); err == nil {
			cred = &fromCookie
		}
	}

	if s.fallback != nil {
		stashed, err := s.fallback.Load(ctx, storeID)
		if err != nil && !errors.Is(err, ErrNotFound) {
			if cred == nil {
				return nil, fmt.Errorf("credential: fallback load: %w", err)
			}
		} else if stashed != nil {
			if cred == nil || stashed.ExpiresAt.After(cred.ExpiresAt) {
				cred = stashed
			}
		}
	}

	if cred == nil {
		return nil, ErrNotFound
	}
	if cred.Expired() {
		return nil, ErrExpired
	}

	return cred, nil
}

// Stash persists a refreshed credential to the fallback only. Background
// refreshes fire after the request that armed them has completed, when no
// ResponseWriter is live anymore; Load prefers the fresher copy, so the
// cookie is rewritten on the next request instead.
func (s *Store) Stash(ctx context.Context, storeID string, cred *Credential) error {
	if s.fallback == nil {
		return ErrNoFallback
	}
	return s.fallback.Save(ctx, storeID, cred)
}

// Clear removes the credential from the cookie and the fallback.
func (s *Store) Clear(ctx context.Context, w http.ResponseWriter, storeID string) error {
	s.cookies.Delete(w, s.cookieName(storeID))

	if s.fallback != nil {
		_ = s.fallback.Clear(ctx, storeID)
	}

	return nil
}
