package ratelimit_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pedidoflow/guestkit/pkg/ratelimit"
)

func newLimiter(t *testing.T, limit int, window time.Duration) (*ratelimit.SlidingWindow, *ratelimit.MemoryStore) {
	t.Helper()

	store := ratelimit.NewMemoryStore()
	t.Cleanup(func() { _ = store.Close() })

	limiter, err := ratelimit.NewSlidingWindow(store, limit, window)
	require.NoError(t, err)
	return limiter, store
}

func TestNewSlidingWindow(t *testing.T) {
	t.Parallel()

	store := ratelimit.NewMemoryStore()
	t.Cleanup(func() { _ = store.Close() })

	t.Run("nil store", func(t *testing.T) {
		_, err := ratelimit.NewSlidingWindow(nil, 3, time.Minute)
		assert.ErrorIs(t, err, ratelimit.ErrStoreRequired)
	})

	t.Run("invalid limit", func(t *testing.T) {
		_, err := ratelimit.NewSlidingWindow(store, 0, time.Minute)
		assert.ErrorIs(t, err, ratelimit.ErrInvalidLimit)
	})

	t.Run("invalid window", func(t *testing.T) {
		_, err := ratelimit.NewSlidingWindow(store, 3, 0)
		assert.ErrorIs(t, err, ratelimit.ErrInvalidWindow)
	})
}

func TestAllow(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("allows up to limit then denies", func(t *testing.T) {
		t.Parallel()

		limiter, _ := newLimiter(t, 3, time.Hour)

		for i := 0; i < 3; i++ {
			res, err := limiter.Allow(ctx, "phone:+5511987654321")
			require.NoError(t, err)
			assert.True(t, res.Allowed, "request %d should be allowed", i+1)
		}

		res, err := limiter.Allow(ctx, "phone:+5511987654321")
		require.NoError(t, err)
		assert.False(t, res.Allowed)
		assert.Equal(t, 0, res.Remaining)
		assert.Positive(t, res.RetryAfter())
	})

	t.Run("keys are independent", func(t *testing.T) {
		t.Parallel()

		limiter, _ := newLimiter(t, 1, time.Hour)

		res, err := limiter.Allow(ctx, "fp:aaa")
		require.NoError(t, err)
		assert.True(t, res.Allowed)

		res, err = limiter.Allow(ctx, "fp:bbb")
		require.NoError(t, err)
		assert.True(t, res.Allowed)
	})

	t.Run("window slides", func(t *testing.T) {
		t.Parallel()

		limiter, _ := newLimiter(t, 1, 50*time.Millisecond)

		res, err := limiter.Allow(ctx, "fp:ccc")
		require.NoError(t, err)
		require.True(t, res.Allowed)

		res, err = limiter.Allow(ctx, "fp:ccc")
		require.NoError(t, err)
		require.False(t, res.Allowed)

		time.Sleep(60 * time.Millisecond)

		res, err = limiter.Allow(ctx, "fp:ccc")
		require.NoError(t, err)
		assert.True(t, res.Allowed)
	})

	t.Run("empty key", func(t *testing.T) {
		t.Parallel()

		limiter, _ := newLimiter(t, 1, time.Minute)
		_, err := limiter.Allow(ctx, "")
		assert.ErrorIs(t, err, ratelimit.ErrKeyRequired)
	})
}

func TestStatus(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	limiter, _ := newLimiter(t, 2, time.Hour)

	res, err := limiter.Status(ctx, "phone:x")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, 2, res.Remaining)

	_, err = limiter.Allow(ctx, "phone:x")
	require.NoError(t, err)

	// Status does not consume.
	for n := 0; n < 3; n++ {
		res, err = limiter.Status(ctx, "phone:x")
		require.NoError(t, err)
		assert.Equal(t, 1, res.Remaining)
	}
}

func TestReset(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	limiter, _ := newLimiter(t, 1, time.Hour)

	_, err := limiter.Allow(ctx, "phone:y")
	require.NoError(t, err)

	res, err := limiter.Allow(ctx, "phone:y")
	require.NoError(t, err)
	require.False(t, res.Allowed)

	require.NoError(t, limiter.Reset(ctx, "phone:y"))

	res, err = limiter.Allow(ctx, "phone:y")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}
