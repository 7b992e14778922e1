package whatsapp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/pedidoflow/guestkit/pkg/credential"
	"github.com/pedidoflow/guestkit/pkg/logger"
	"github.com/pedidoflow/guestkit/pkg/phone"
)

// APIError is a backend response with an HTTP status. Client errors are
// final; server errors and transport failures (status zero) may be retried.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("whatsapp: api status %d: %s", e.StatusCode, e.Message)
}

// Retriable reports whether the call may be repeated.
func (e *APIError) Retriable() bool {
	return e.StatusCode == 0 || e.StatusCode >= 500
}

// SendCodeInput asks the backend to deliver an OTP.
type SendCodeInput struct {
	Phone   string
	StoreID string
	Name    string
}

// CheckCodeInput submits an OTP for validation.
type CheckCodeInput struct {
	Phone   string
	Code    string
	StoreID string
}

// CodeResult is the backend's verdict on a submitted code.
type CodeResult struct {
	Success      bool
	Token        string
	User         credential.User
	Locked       bool
	AttemptsLeft int
	Message      string
}

// CodeBackend is the platform API for OTP delivery and validation.
type CodeBackend interface {
	SendCode(ctx context.Context, input SendCodeInput) error
	CheckCode(ctx context.Context, input CheckCodeInput) (*CodeResult, error)
}

// CredentialSink receives the credential issued after a successful code
// validation.
type CredentialSink interface {
	Save(ctx context.Context, storeID string, cred *credential.Credential) error
}

// CodeService runs the OTP flow against the platform backend with bounded
// retries. A wrong code is a result, not an error, and is never retried.
type CodeService struct {
	backend    CodeBackend
	sink       CredentialSink
	log        *slog.Logger
	maxRetries uint64
	retryDelay time.Duration
	opaqueTTL  time.Duration
}

// CodeOption configures the service.
type CodeOption func(*CodeService)

// WithCredentialSink persists credentials after successful validation.
func WithCredentialSink(sink CredentialSink) CodeOption {
	return func(s *CodeService) { s.sink = sink }
}

// WithCodeLogger sets the service logger.
func WithCodeLogger(log *slog.Logger) CodeOption {
	return func(s *CodeService) { s.log = log }
}

// WithRetryDelay overrides the base delay between attempts.
func WithRetryDelay(delay time.Duration) CodeOption {
	return func(s *CodeService) { s.retryDelay = delay }
}

// WithOpaqueTTL sets the lifetime assumed for non-JWT tokens.
func WithOpaqueTTL(ttl time.Duration) CodeOption {
	return func(s *CodeService) { s.opaqueTTL = ttl }
}

// NewCodeService creates the OTP service.
func NewCodeService(backend CodeBackend, opts ...CodeOption) (*CodeService, error) {
	if backend == nil {
		return nil, ErrBackendRequired
	}

	s := &CodeService{
		backend:    backend,
		log:        logger.Discard(),
		maxRetries: 2,
		retryDelay: 500 * time.Millisecond,
		opaqueTTL:  24 * time.Hour,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// RequestCode asks the backend to send an OTP to the phone.
func (s *CodeService) RequestCode(ctx context.Context, phoneNumber, storeID, name string) error {
	normalized, err := phone.Normalize(phoneNumber)
	if err != nil {
		return err
	}

	err = s.do(ctx, func(ctx context.Context) error {
		return s.backend.SendCode(ctx, SendCodeInput{
			Phone:   normalized,
			StoreID: storeID,
			Name:    name,
		})
	})
	if err != nil {
		return err
	}

	s.log.InfoContext(ctx, "verification code requested",
		logger.Phone(normalized),
		logger.StoreID(storeID),
	)

	return nil
}

// ValidateCode submits the OTP. On success the issued token is tagged into
// a credential and handed to the sink, when one is configured.
func (s *CodeService) ValidateCode(ctx context.Context, phoneNumber, code, storeID string) (*CodeResult, error) {
	normalized, err := phone.Normalize(phoneNumber)
	if err != nil {
		return nil, err
	}
	if !validCode(code) {
		return nil, ErrInvalidCode
	}

	var result *CodeResult
	err = s.do(ctx, func(ctx context.Context) error {
		var err error
		result, err = s.backend.CheckCode(ctx, CheckCodeInput{
			Phone:   normalized,
			Code:    code,
			StoreID: storeID,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	if result.Locked {
		s.log.WarnContext(ctx, "account locked after failed attempts",
			logger.Phone(normalized),
			logger.StoreID(storeID),
		)
	}

	if result.Success && s.sink != nil {
		cred, err := credential.Issue(result.Token, result.User, s.opaqueTTL)
		if err != nil {
			return nil, fmt.Errorf("whatsapp: issue credential: %w", err)
		}
		if err := s.sink.Save(ctx, storeID, cred); err != nil {
			return nil, fmt.Errorf("whatsapp: save credential: %w", err)
		}
	}

	return result, nil
}

func validCode(code string) bool {
	if len(code) < 4 || len(code) > 8 {
		return false
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// do runs op with up to three attempts and a linearly growing delay.
// Backend verdicts carried in an APIError with a 4xx status are final.
func (s *CodeService) do(ctx context.Context, op func(ctx context.Context) error) error {
	backoff := retry.WithMaxRetries(s.maxRetries, linearBackoff(s.retryDelay))

	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := op(ctx)
		if err == nil {
			return nil
		}

		var apiErr *APIError
		if errors.As(err, &apiErr) && !apiErr.Retriable() {
			return err
		}

		return retry.RetryableError(err)
	})
}

func linearBackoff(base time.Duration) retry.Backoff {
	attempt := 0
	return retry.BackoffFunc(func() (time.Duration, bool) {
		attempt++
		return base * time.Duration(attempt), false
	})
}
