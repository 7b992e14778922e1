package whatsapp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/pedidoflow/guestkit/pkg/credential"
	"github.com/pedidoflow/guestkit/pkg/logger"
	"github.com/pedidoflow/guestkit/pkg/phone"
	"github.com/pedidoflow/guestkit/pkg/ratelimit"
	"github.com/pedidoflow/guestkit/pkg/session"
	"github.com/pedidoflow/guestkit/pkg/token"
)

const SubjectMagicLink = "wa_magic_link"

// Default request quotas: three links per phone per day, two per device
// per hour.
const (
	defaultPhoneLimit   = 3
	defaultPhoneWindow  = 24 * time.Hour
	defaultDeviceLimit  = 2
	defaultDeviceWindow = time.Hour
)

// MismatchPolicy decides what happens when a magic link is opened on a
// different device than the one that requested it. WhatsApp routinely opens
// links in its own browser, so the default is to warn, not reject.
type MismatchPolicy int

const (
	MismatchWarn MismatchPolicy = iota
	MismatchReject
)

// TokenPayload is the data sealed inside a magic link token.
type TokenPayload struct {
	ID          string          `json:"id"`
	Phone       string          `json:"phone"`
	StoreID     string          `json:"storeId"`
	Fingerprint string          `json:"fingerprint"`
	Context     session.Context `json:"context"`
	Subject     string          `json:"sub"`
	ExpireAt    int64           `json:"exp"`
}

// Sender delivers messages over WhatsApp.
type Sender interface {
	SendMagicLink(ctx context.Context, phoneNumber, link string) error
}

// CustomerDirectory resolves a phone number to a known customer account.
type CustomerDirectory interface {
	// FindByPhone returns the customer owning the number, or
	// ErrCustomerNotFound.
	FindByPhone(ctx context.Context, phoneNumber string) (*credential.User, error)
}

// ErrCustomerNotFound is returned by CustomerDirectory lookups for unknown
// numbers. A missing customer is not a failure: the session stays guest.
var ErrCustomerNotFound = errors.New("whatsapp.customer_not_found")

// RequestInput carries a magic link request.
type RequestInput struct {
	Phone       string
	StoreID     string
	Fingerprint string
	Context     session.Context
}

// RequestResult reports an issued magic link.
type RequestResult struct {
	Phone     string
	Token     string
	Link      string
	ExpiresAt time.Time
	Remaining int
}

// Verification is the outcome of checking a magic link token.
type Verification struct {
	Phone       string
	StoreID     string
	Fingerprint string
	Context     session.Context
	// Mismatch is set when the link was opened on a different device and
	// the warn policy let it through.
	Mismatch bool
}

// MagicLinkService issues and verifies single-use WhatsApp login links.
type MagicLinkService struct {
	sender        Sender
	tokens        TokenStore
	phoneLimiter  ratelimit.Limiter
	deviceLimiter ratelimit.Limiter
	sessions      *session.Manager
	customers     CustomerDirectory
	secret        string
	ttl           time.Duration
	baseURL       string
	policy        MismatchPolicy
	log           *slog.Logger
}

// MagicLinkOption configures the service.
type MagicLinkOption func(*MagicLinkService)

// WithTokenStore sets the single-use bookkeeping store. Defaults to memory.
func WithTokenStore(store TokenStore) MagicLinkOption {
	return func(s *MagicLinkService) { s.tokens = store }
}

// WithPhoneLimiter replaces the per-phone rate limiter. Defaults to a
// memory-backed window of three requests per 24 hours.
func WithPhoneLimiter(limiter ratelimit.Limiter) MagicLinkOption {
	return func(s *MagicLinkService) { s.phoneLimiter = limiter }
}

// WithDeviceLimiter replaces the per-device rate limiter. Defaults to a
// memory-backed window of two requests per hour.
func WithDeviceLimiter(limiter ratelimit.Limiter) MagicLinkOption {
	return func(s *MagicLinkService) { s.deviceLimiter = limiter }
}

// WithSessionManager enables CreateSessionFromToken.
func WithSessionManager(manager *session.Manager) MagicLinkOption {
	return func(s *MagicLinkService) { s.sessions = manager }
}

// WithCustomerDirectory enables customer association after verification.
func WithCustomerDirectory(directory CustomerDirectory) MagicLinkOption {
	return func(s *MagicLinkService) { s.customers = directory }
}

// WithTokenTTL overrides the default 15-minute link lifetime.
func WithTokenTTL(ttl time.Duration) MagicLinkOption {
	return func(s *MagicLinkService) { s.ttl = ttl }
}

// WithBaseURL sets the URL magic links point at.
func WithBaseURL(baseURL string) MagicLinkOption {
	return func(s *MagicLinkService) { s.baseURL = baseURL }
}

// WithMismatchPolicy sets the device-mismatch policy. Defaults to warn.
func WithMismatchPolicy(policy MismatchPolicy) MagicLinkOption {
	return func(s *MagicLinkService) { s.policy = policy }
}

// WithLogger sets the service logger.
func WithLogger(log *slog.Logger) MagicLinkOption {
	return func(s *MagicLinkService) { s.log = log }
}

// NewMagicLinkService creates the magic link service.
func NewMagicLinkService(sender Sender, secret string, opts ...MagicLinkOption) (*MagicLinkService, error) {
	if sender == nil {
		return nil, ErrSenderRequired
	}

	s := &MagicLinkService{
		sender: sender,
		secret: secret,
		ttl:    15 * time.Minute,
		policy: MismatchWarn,
		log:    logger.Discard(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.tokens == nil {
		s.tokens = NewMemoryTokenStore()
	}

	// The quotas hold even when no limiter was configured; options swap
	// in Redis-backed windows for multi-instance deployments.
	if s.phoneLimiter == nil {
		limiter, err := ratelimit.NewSlidingWindow(ratelimit.NewMemoryStore(), defaultPhoneLimit, defaultPhoneWindow)
		if err != nil {
			return nil, err
		}
		s.phoneLimiter = limiter
	}
	if s.deviceLimiter == nil {
		limiter, err := ratelimit.NewSlidingWindow(ratelimit.NewMemoryStore(), defaultDeviceLimit, defaultDeviceWindow)
		if err != nil {
			return nil, err
		}
		s.deviceLimiter = limiter
	}

	return s, nil
}

// Request issues a magic link and delivers it over WhatsApp. The attempt
// counts against both rate limits the moment it is accepted, whether or not
// delivery succeeds, so failed sends cannot be used to probe numbers for
// free.
func (s *MagicLinkService) Request(ctx context.Context, input RequestInput) (*RequestResult, error) {
	normalized, err := phone.Normalize(input.Phone)
	if err != nil {
		return nil, err
	}
	if err := input.Context.Validate(); err != nil {
		return nil, err
	}

	remaining := -1

	if s.phoneLimiter != nil {
		result, err := s.phoneLimiter.Allow(ctx, "phone:"+normalized)
		if err != nil {
			return nil, fmt.Errorf("whatsapp: phone rate limit: %w", err)
		}
		if !result.Allowed {
			return nil, fmt.Errorf("%w: retry in %s", ErrRateLimited, result.RetryAfter().Round(time.Second))
		}
		remaining = result.Remaining
	}

	if s.deviceLimiter != nil && input.Fingerprint != "" {
		result, err := s.deviceLimiter.Allow(ctx, "device:"+input.Fingerprint)
		if err != nil {
			return nil, fmt.Errorf("whatsapp: device rate limit: %w", err)
		}
		if !result.Allowed {
			return nil, fmt.Errorf("%w: retry in %s", ErrRateLimited, result.RetryAfter().Round(time.Second))
		}
		if remaining < 0 || result.Remaining < remaining {
			remaining = result.Remaining
		}
	}

	expiresAt := time.Now().Add(s.ttl)
	payload := TokenPayload{
		ID:          uuid.New().String(),
		Phone:       normalized,
		StoreID:     input.StoreID,
		Fingerprint: input.Fingerprint,
		Context:     input.Context,
		Subject:     SubjectMagicLink,
		ExpireAt:    expiresAt.Unix(),
	}

	tok, err := token.Generate(payload, s.secret)
	if err != nil {
		return nil, fmt.Errorf("whatsapp: generate token: %w", err)
	}

	link := s.buildLink(tok)
	if err := s.sender.SendMagicLink(ctx, normalized, link); err != nil {
		return nil, fmt.Errorf("whatsapp: send magic link: %w", err)
	}

	s.log.InfoContext(ctx, "magic link sent",
		logger.Phone(normalized),
		logger.StoreID(input.StoreID),
	)

	return &RequestResult{
		Phone:     normalized,
		Token:     tok,
		Link:      link,
		ExpiresAt: expiresAt,
		Remaining: remaining,
	}, nil
}

// burn records the token as consumed. The entry must outlive any window
// the token could still be presented in, so the retention never drops
// below a minute regardless of the configured TTL.
func (s *MagicLinkService) burn(ctx context.Context, tokenID string) error {
	retention := s.ttl
	if retention < time.Minute {
		retention = time.Minute
	}
	return s.tokens.MarkUsed(ctx, tokenID, retention)
}

func (s *MagicLinkService) buildLink(tok string) string {
	if s.baseURL == "" {
		return tok
	}

	values := url.Values{"token": {tok}}
	return s.baseURL + "?" + values.Encode()
}

// Verify checks a magic link token without consuming it: single use is
// enforced at consumption, by CreateSessionFromToken, so repeated Verify
// calls on a live token all succeed. Expired tokens are marked used on
// sight so the same link cannot be retried into a replay after the clock
// is tampered with.
func (s *MagicLinkService) Verify(ctx context.Context, tok, currentFingerprint string) (*Verification, error) {
	payload, err := token.Parse[TokenPayload](tok, s.secret)
	if err != nil || payload.Subject != SubjectMagicLink {
		return nil, ErrTokenInvalid
	}

	used, err := s.tokens.IsUsed(ctx, payload.ID)
	if err != nil {
		return nil, fmt.Errorf("whatsapp: used lookup: %w", err)
	}
	if used {
		return nil, ErrTokenUsed
	}

	if time.Now().Unix() > payload.ExpireAt {
		_ = s.burn(ctx, payload.ID)
		return nil, ErrTokenExpired
	}

	verification := &Verification{
		Phone:       payload.Phone,
		StoreID:     payload.StoreID,
		Fingerprint: payload.Fingerprint,
		Context:     payload.Context,
	}

	if payload.Fingerprint != "" && currentFingerprint != "" && payload.Fingerprint != currentFingerprint {
		if s.policy == MismatchReject {
			return nil, ErrFingerprintMismatch
		}
		verification.Mismatch = true
		s.log.WarnContext(ctx, "magic link opened on a different device",
			logger.Phone(payload.Phone),
			logger.Fingerprint(currentFingerprint),
		)
	}

	return verification, nil
}

// CreateSessionFromToken consumes a magic link and opens a session in the
// context the link was requested in. When the phone belongs to a known
// customer the session is upgraded to authenticated.
func (s *MagicLinkService) CreateSessionFromToken(ctx context.Context, tok, currentFingerprint string) (*session.Session, error) {
	verification, err := s.Verify(ctx, tok, currentFingerprint)
	if err != nil {
		return nil, err
	}

	payload, err := token.Parse[TokenPayload](tok, s.secret)
	if err != nil {
		return nil, ErrTokenInvalid
	}
	if err := s.burn(ctx, payload.ID); err != nil {
		return nil, fmt.Errorf("whatsapp: mark used: %w", err)
	}

	if s.sessions == nil {
		return nil, errors.New("whatsapp: session manager not configured")
	}

	fingerprintHash := verification.Fingerprint
	if verification.Mismatch {
		fingerprintHash = currentFingerprint
	}

	sess, err := s.sessions.CreateSession(ctx, session.CreateParams{
		StoreID:     verification.StoreID,
		Context:     verification.Context,
		Fingerprint: fingerprintHash,
	})
	if err != nil {
		return nil, err
	}

	if s.customers != nil {
		user, err := s.customers.FindByPhone(ctx, verification.Phone)
		switch {
		case err == nil:
			sess, err = s.sessions.AssociateCustomer(ctx, sess.ID, user.UUID)
			if err != nil {
				return nil, err
			}
		case errors.Is(err, ErrCustomerNotFound):
			// New customer, session stays guest.
		default:
			return nil, fmt.Errorf("whatsapp: customer lookup: %w", err)
		}
	}

	return sess, nil
}
