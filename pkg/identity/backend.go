package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"

	"github.com/pedidoflow/guestkit/pkg/credential"
	"github.com/pedidoflow/guestkit/pkg/whatsapp"
)

// StoreSettings is the subset of store configuration the storefront needs
// before any order is placed.
type StoreSettings struct {
	ID                     string `json:"id"`
	Name                   string `json:"name"`
	AllowQuickRegistration bool   `json:"allowQuickRegistration"`
}

// Client is the typed HTTP client for the ordering platform. Every call
// carries its own timeout and transient failures are retried up to three
// times with a linearly growing delay; 4xx verdicts are final.
type Client struct {
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
	retryDelay time.Duration
	maxRetries uint64
}

// ClientOption configures the backend client.
type ClientOption func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = httpClient }
}

// WithTimeout sets the per-call timeout. Defaults to 10 seconds.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) { c.timeout = timeout }
}

// WithRetryDelay sets the base delay between retry attempts.
func WithRetryDelay(delay time.Duration) ClientOption {
	return func(c *Client) { c.retryDelay = delay }
}

// NewClient creates a platform API client.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{},
		timeout:    10 * time.Second,
		retryDelay: 500 * time.Millisecond,
		maxRetries: 2,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) call(ctx context.Context, method, path, bearer string, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("identity: marshal request: %w", err)
		}
	}

	backoff := retry.WithMaxRetries(c.maxRetries, linearBackoff(c.retryDelay))

	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := c.callOnce(ctx, method, path, bearer, payload, out)
		if err == nil {
			return nil
		}

		var apiErr *whatsapp.APIError
		if errors.As(err, &apiErr) && !apiErr.Retriable() {
			return err
		}

		return retry.RetryableError(err)
	})
}

func (c *Client) callOnce(ctx context.Context, method, path, bearer string, payload []byte, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("identity: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &whatsapp.APIError{StatusCode: 0, Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		message, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &whatsapp.APIError{StatusCode: resp.StatusCode, Message: string(message)}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("identity: decode response: %w", err)
	}

	return nil
}

func linearBackoff(base time.Duration) retry.Backoff {
	attempt := 0
	return retry.BackoffFunc(func() (time.Duration, bool) {
		attempt++
		return base * time.Duration(attempt), false
	})
}

// ValidateSession asks the platform whether a session is still valid. A 404
// is a clean "no", not a failure.
func (c *Client) ValidateSession(ctx context.Context, id uuid.UUID) (bool, error) {
	var out struct {
		Valid bool `json:"valid"`
	}

	err := c.call(ctx, http.MethodGet, "/sessions/"+id.String()+"/validate", "", nil, &out)
	if err != nil {
		var apiErr *whatsapp.APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
			return false, nil
		}
		return false, err
	}

	return out.Valid, nil
}

// GetMe fetches the customer profile behind a bearer token.
func (c *Client) GetMe(ctx context.Context, token string) (*credential.User, error) {
	var user credential.User
	if err := c.call(ctx, http.MethodGet, "/auth/me", token, nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// Logout invalidates the bearer token on the platform.
func (c *Client) Logout(ctx context.Context, token string) error {
	return c.call(ctx, http.MethodPost, "/auth/logout", token, nil, nil)
}

// StoreSettings fetches a store's configuration.
func (c *Client) StoreSettings(ctx context.Context, storeID string) (*StoreSettings, error) {
	var settings StoreSettings
	if err := c.call(ctx, http.MethodGet, "/stores/"+storeID+"/settings", "", nil, &settings); err != nil {
		return nil, err
	}
	return &settings, nil
}

// FindByPhone resolves a phone number to a customer account.
func (c *Client) FindByPhone(ctx context.Context, phoneNumber string) (*credential.User, error) {
	var user credential.User

	err := c.call(ctx, http.MethodGet, "/customers/by-phone/"+phoneNumber, "", nil, &user)
	if err != nil {
		var apiErr *whatsapp.APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
			return nil, whatsapp.ErrCustomerNotFound
		}
		return nil, err
	}

	return &user, nil
}

// SendCode asks the platform to deliver a verification code over WhatsApp.
// The OTP service owns the retry policy for this endpoint, so the call runs
// exactly once here.
func (c *Client) SendCode(ctx context.Context, input whatsapp.SendCodeInput) error {
	payload, err := json.Marshal(input)
	if err != nil {
		return fmt.Errorf("identity: marshal request: %w", err)
	}
	return c.callOnce(ctx, http.MethodPost, "/auth/whatsapp/send-code", "", payload, nil)
}

// CheckCode submits a verification code for validation. Retries belong to
// the OTP service, same as SendCode.
func (c *Client) CheckCode(ctx context.Context, input whatsapp.CheckCodeInput) (*whatsapp.CodeResult, error) {
	var out struct {
		Success      bool            `json:"success"`
		Token        string          `json:"token"`
		User         credential.User `json:"user"`
		Locked       bool            `json:"locked"`
		AttemptsLeft int             `json:"attemptsLeft"`
		Message      string          `json:"message"`
	}

	payload, err := json.Marshal(input)
	if err != nil {
		return nil, fmt.Errorf("identity: marshal request: %w", err)
	}
	if err := c.callOnce(ctx, http.MethodPost, "/auth/whatsapp/check-code", "", payload, &out); err != nil {
		return nil, err
	}

	return &whatsapp.CodeResult{
		Success:      out.Success,
		Token:        out.Token,
		User:         out.User,
		Locked:       out.Locked,
		AttemptsLeft: out.AttemptsLeft,
		Message:      out.Message,
	}, nil
}
