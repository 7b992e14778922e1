package credential

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Kind tags how a bearer token should be treated. The tag is decided once,
// when the credential is issued, so readers never have to guess whether a
// token is a JWT.
type Kind string

const (
	// KindJWT marks tokens whose expiry is carried in their own claims.
	KindJWT Kind = "jwt"

	// KindOpaque marks tokens with no readable structure; the expiry is
	// whatever the issuer said it was.
	KindOpaque Kind = "opaque"
)

// User is the customer identity a credential belongs to.
type User struct {
	ID       int64     `json:"id,omitempty"`
	UUID     uuid.UUID `json:"uuid"`
	Name     string    `json:"name,omitempty"`
	Phone    string    `json:"phone,omitempty"`
	TenantID string    `json:"tenantId,omitempty"`
}

// Credential is a tagged bearer token plus the identity it authenticates.
type Credential struct {
	Kind      Kind      `json:"kind"`
	Token     string    `json:"token"`
	User      User      `json:"user"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Issue builds a credential from a freshly received token. If the token
// parses as a JWT its exp claim decides the expiry; otherwise the token is
// opaque and opaqueTTL applies. The JWT signature is not checked here: the
// issuing backend owns verification, this side only needs the expiry.
func Issue(token string, user User, opaqueTTL time.Duration) (*Credential, error) {
	if token == "" {
		return nil, ErrEmptyToken
	}

	cred := &Credential{
		Kind:      KindOpaque,
		Token:     token,
		User:      user,
		ExpiresAt: time.Now().Add(opaqueTTL),
	}

	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return cred, nil
	}

	exp, err := parsed.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return cred, nil
	}

	cred.Kind = KindJWT
	cred.ExpiresAt = exp.Time
	return cred, nil
}

// Expired reports whether the credential's lifetime ran out.
func (c *Credential) Expired() bool {
	return c != nil && time.Now().After(c.ExpiresAt)
}

// Remaining returns the credential's remaining lifetime, never negative.
func (c *Credential) Remaining() time.Duration {
	if c == nil {
		return 0
	}
	remaining := time.Until(c.ExpiresAt)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// NeedsRefresh reports whether the remaining lifetime dropped to or below
// the threshold.
func (c *Credential) NeedsRefresh(threshold time.Duration) bool {
	return c != nil && time.Until(c.ExpiresAt) <= threshold
}
