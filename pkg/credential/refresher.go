package credential

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/pedidoflow/guestkit/pkg/logger"
)

// RefreshFunc exchanges the current credential for a fresh one.
type RefreshFunc func(ctx context.Context, current *Credential) (*Credential, error)

// Refresher schedules a token refresh before the credential expires. Arm
// replaces any pending timer, so re-arming after each refresh or page load
// never stacks timers.
type Refresher struct {
	refresh   RefreshFunc
	threshold time.Duration
	log       *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
}

// RefresherOption configures the refresher.
type RefresherOption func(*Refresher)

// WithThreshold overrides the default 30-minute refresh lead time.
func WithThreshold(threshold time.Duration) RefresherOption {
	return func(r *Refresher) {
		r.threshold = threshold
	}
}

// WithRefresherLogger sets the refresher's logger.
func WithRefresherLogger(log *slog.Logger) RefresherOption {
	return func(r *Refresher) {
		r.log = log
	}
}

// NewRefresher creates a refresher around the refresh function.
func NewRefresher(refresh RefreshFunc, opts ...RefresherOption) (*Refresher, error) {
	if refresh == nil {
		return nil, ErrRefresherRequired
	}

	r := &Refresher{
		refresh:   refresh,
		threshold: 30 * time.Minute,
		log:       logger.Discard(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Arm schedules a refresh for the credential. The refresh fires when the
// remaining lifetime drops to the threshold, or immediately if it already
// has. onRefreshed receives the new credential; it is not called when the
// refresh fails. Arming again cancels the previous schedule.
func (r *Refresher) Arm(cred *Credential, onRefreshed func(*Credential)) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cancel != nil {
		r.cancel()
	}

	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel

	delay := cred.Remaining() - r.threshold
	if delay < 0 {
		delay = 0
	}

	go r.waitAndRefresh(ctx, cred, delay, onRefreshed)
}

func (r *Refresher) waitAndRefresh(ctx context.Context, cred *Credential, delay time.Duration, onRefreshed func(*Credential)) {
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-timer.C:
	case <-ctx.Done():
		return
	}

	fresh, err := r.refresh(ctx, cred)
	if err != nil {
		r.log.ErrorContext(ctx, "credential refresh failed", logger.Error(err))
		return
	}

	if onRefreshed != nil {
		onRefreshed(fresh)
	}
}

// Disarm cancels any pending refresh.
func (r *Refresher) Disarm() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
}
