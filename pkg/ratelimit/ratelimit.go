// Package ratelimit implements sliding-window rate limiting for the
// WhatsApp authentication flow: a fixed number of requests per key within a
// rolling window. Per-phone and per-fingerprint limits are independent
// limiter instances sharing a store.
package ratelimit

import (
	"context"
	"time"
)

// Result contains the outcome of a rate limit check.
type Result struct {
	// Allowed indicates whether the request is allowed.
	Allowed bool

	// Limit is the maximum number of requests allowed in the window.
	Limit int

	// Remaining is the number of requests remaining in the current window.
	Remaining int

	// ResetAt is the time when the oldest recorded request leaves the window.
	ResetAt time.Time
}

// RetryAfter returns how long to wait before the next request is allowed.
// Returns 0 if the current request was allowed.
func (r *Result) RetryAfter() time.Duration {
	if r.Allowed {
		return 0
	}
	return time.Until(r.ResetAt)
}

// Limiter is the interface exposed to callers.
type Limiter interface {
	// Allow checks whether a single request is allowed for the key and
	// records it if so.
	Allow(ctx context.Context, key string) (*Result, error)

	// Status reports the current state without recording a request.
	Status(ctx context.Context, key string) (*Result, error)

	// Reset clears recorded requests for the key.
	Reset(ctx context.Context, key string) error
}

// Store persists request timestamps per key.
type Store interface {
	// RecordIfAllowed atomically records a timestamp if fewer than limit
	// requests exist within the window. Returns whether the request was
	// recorded and the resulting in-window count.
	RecordIfAllowed(ctx context.Context, key string, now time.Time, window time.Duration, limit int) (allowed bool, count int, err error)

	// CountInWindow returns the number of requests within the window ending now.
	CountInWindow(ctx context.Context, key string, window time.Duration) (int, error)

	// OldestInWindow returns the oldest in-window timestamp, or zero time
	// when the window is empty.
	OldestInWindow(ctx context.Context, key string, window time.Duration) (time.Time, error)

	// Reset removes all recorded requests for the key.
	Reset(ctx context.Context, key string) error
}

// SlidingWindow is a Limiter over a Store.
type SlidingWindow struct {
	store  Store
	limit  int
	window time.Duration
}

// NewSlidingWindow creates a sliding window limiter.
func NewSlidingWindow(store Store, limit int, window time.Duration) (*SlidingWindow, error) {
	if store == nil {
		return nil, ErrStoreRequired
	}
	if limit <= 0 {
		return nil, ErrInvalidLimit
	}
	if window <= 0 {
		return nil, ErrInvalidWindow
	}

	return &SlidingWindow{store: store, limit: limit, window: window}, nil
}

func (sw *SlidingWindow) Allow(ctx context.Context, key string) (*Result, error) {
	if key == "" {
		return nil, ErrKeyRequired
	}

	now := time.Now()
	allowed, count, err := sw.store.RecordIfAllowed(ctx, key, now, sw.window, sw.limit)
	if err != nil {
		return nil, err
	}

	return sw.result(ctx, key, now, allowed, count)
}

func (sw *SlidingWindow) Status(ctx context.Context, key string) (*Result, error) {
	if key == "" {
		return nil, ErrKeyRequired
	}

	now := time.Now()
	count, err := sw.store.CountInWindow(ctx, key, sw.window)
	if err != nil {
		return nil, err
	}

	return sw.result(ctx, key, now, count < sw.limit, count)
}

func (sw *SlidingWindow) Reset(ctx context.Context, key string) error {
	if key == "" {
		return ErrKeyRequired
	}
	return sw.store.Reset(ctx, key)
}

func (sw *SlidingWindow) result(ctx context.Context, key string, now time.Time, allowed bool, count int) (*Result, error) {
	resetAt := now.Add(sw.window)
	if oldest, err := sw.store.OldestInWindow(ctx, key, sw.window); err == nil && !oldest.IsZero() {
		resetAt = oldest.Add(sw.window)
	}

	return &Result{
		Allowed:   allowed,
		Limit:     sw.limit,
		Remaining: max(0, sw.limit-count),
		ResetAt:   resetAt,
	}, nil
}
