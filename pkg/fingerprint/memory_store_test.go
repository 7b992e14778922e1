package fingerprint_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pedidoflow/guestkit/pkg/fingerprint"
)

func newStore(t *testing.T, cfg fingerprint.Config) *fingerprint.MemoryStore {
	t.Helper()

	// Background sweeps are exercised separately; tests drive Cleanup directly.
	cfg.CleanupInterval = 0
	store := fingerprint.NewMemoryStore(cfg)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func seedRecord(t *testing.T, store fingerprint.Store, signals fingerprint.DeviceSignals) *fingerprint.Record {
	t.Helper()

	record := fingerprint.NewRecord(fingerprint.Generate(signals))
	require.NoError(t, store.Set(context.Background(), record))
	return record
}

func TestMemoryStoreGetSet(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newStore(t, fingerprint.DefaultConfig())

	t.Run("round trip", func(t *testing.T) {
		record := seedRecord(t, store, fullSignals())

		got, err := store.Get(ctx, record.Hash)
		require.NoError(t, err)
		assert.Equal(t, record.Hash, got.Hash)
		assert.Equal(t, record.Device, got.Device)
	})

	t.Run("missing hash", func(t *testing.T) {
		_, err := store.Get(ctx, "0000000000000000")
		assert.ErrorIs(t, err, fingerprint.ErrNotFound)
	})

	t.Run("invalid record rejected", func(t *testing.T) {
		err := store.Set(ctx, &fingerprint.Record{Hash: "not-a-hash"})
		assert.ErrorIs(t, err, fingerprint.ErrInvalidRecord)
	})

	t.Run("get returns a copy", func(t *testing.T) {
		record := seedRecord(t, store, fullSignals())

		got, err := store.Get(ctx, record.Hash)
		require.NoError(t, err)
		got.UsageCount = 999

		again, err := store.Get(ctx, record.Hash)
		require.NoError(t, err)
		assert.Zero(t, again.UsageCount)
	})
}

func TestMemoryStoreIdleEviction(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newStore(t, fingerprint.DefaultConfig())

	record := fingerprint.NewRecord(fingerprint.Generate(fullSignals()))
	record.LastSeen = time.Now().Add(-25 * time.Hour)
	require.NoError(t, store.Set(ctx, record))

	// An idle record reads as absent even before any cleanup sweep.
	_, err := store.Get(ctx, record.Hash)
	assert.ErrorIs(t, err, fingerprint.ErrNotFound)
}

func TestMemoryStoreSuspiciousAutoBlock(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newStore(t, fingerprint.DefaultConfig())
	record := seedRecord(t, store, fullSignals())

	for n := 0; n < 9; n++ {
		require.NoError(t, store.IncrementSuspicious(ctx, record.Hash))
	}

	got, err := store.Get(ctx, record.Hash)
	require.NoError(t, err)
	assert.Equal(t, 9, got.SuspiciousActivity)
	assert.False(t, got.Blocked, "nine strikes must not block")

	require.NoError(t, store.IncrementSuspicious(ctx, record.Hash))

	got, err = store.Get(ctx, record.Hash)
	require.NoError(t, err)
	assert.Equal(t, 10, got.SuspiciousActivity)
	assert.True(t, got.Blocked, "tenth strike blocks")
	assert.NotEmpty(t, got.BlockReason)
}

func TestMemoryStoreBlockUnblock(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newStore(t, fingerprint.DefaultConfig())
	record := seedRecord(t, store, fullSignals())

	require.NoError(t, store.Block(ctx, record.Hash, "manual review"))

	got, err := store.Get(ctx, record.Hash)
	require.NoError(t, err)
	assert.True(t, got.Blocked)
	assert.Equal(t, "manual review", got.BlockReason)

	require.NoError(t, store.Unblock(ctx, record.Hash))

	got, err = store.Get(ctx, record.Hash)
	require.NoError(t, err)
	assert.False(t, got.Blocked)
	assert.Zero(t, got.SuspiciousActivity)
}

func TestMemoryStoreIncrementUsage(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newStore(t, fingerprint.DefaultConfig())
	record := seedRecord(t, store, fullSignals())

	for n := 0; n < 3; n++ {
		require.NoError(t, store.IncrementUsage(ctx, record.Hash))
	}

	got, err := store.Get(ctx, record.Hash)
	require.NoError(t, err)
	assert.Equal(t, 3, got.UsageCount)
}

func TestMemoryStoreConcurrentReadsAndWrites(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newStore(t, fingerprint.DefaultConfig())
	record := seedRecord(t, store, fullSignals())

	// Readers and counter writers share one record; run under -race.
	var wg sync.WaitGroup
	for n := 0; n < 4; n++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for n := 0; n < 100; n++ {
				_, _ = store.Get(ctx, record.Hash)
			}
		}()
		go func() {
			defer wg.Done()
			for n := 0; n < 100; n++ {
				_ = store.IncrementUsage(ctx, record.Hash)
			}
		}()
	}
	wg.Wait()

	got, err := store.Get(ctx, record.Hash)
	require.NoError(t, err)
	assert.Equal(t, 400, got.UsageCount)
}

func TestMemoryStoreCleanup(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newStore(t, fingerprint.DefaultConfig())

	stale := fingerprint.NewRecord(fingerprint.Generate(fullSignals()))
	stale.LastSeen = time.Now().Add(-48 * time.Hour)
	require.NoError(t, store.Set(ctx, stale))

	fresh := fullSignals()
	fresh.UserAgent = "fresh-device"
	seedRecord(t, store, fresh)

	removed, err := store.Cleanup(ctx, time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
}

func TestMemoryStoreCapacityPurge(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	cfg := fingerprint.DefaultConfig()
	cfg.MaxRecords = 4
	store := newStore(t, cfg)

	var oldest *fingerprint.Record
	for i := 0; i < 4; i++ {
		signals := fullSignals()
		signals.UserAgent = fmt.Sprintf("device-%d", i)
		record := fingerprint.NewRecord(fingerprint.Generate(signals))
		record.LastSeen = time.Now().Add(-time.Duration(4-i) * time.Minute)
		require.NoError(t, store.Set(ctx, record))
		if i == 0 {
			oldest = record
		}
	}

	// The fifth insert exceeds capacity and purges the oldest half.
	extra := fullSignals()
	extra.UserAgent = "device-extra"
	seedRecord(t, store, extra)

	_, err := store.Get(ctx, oldest.Hash)
	assert.ErrorIs(t, err, fingerprint.ErrNotFound)
}

func TestMemoryStoreAnalytics(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newStore(t, fingerprint.DefaultConfig())

	for i := 0; i < 3; i++ {
		signals := fullSignals()
		signals.UserAgent = fmt.Sprintf("agent-%d", i%2)
		// Distinct time zones keep the three records from hashing identically.
		signals.TimeZone = fmt.Sprintf("Etc/GMT-%d", i)
		seedRecord(t, store, signals)
	}

	blocked := fullSignals()
	blocked.UserAgent = "blocked-agent"
	record := seedRecord(t, store, blocked)
	require.NoError(t, store.Block(ctx, record.Hash, "abuse"))
	require.NoError(t, store.IncrementSuspicious(ctx, record.Hash))

	a, err := store.Analytics(ctx)
	require.NoError(t, err)

	assert.Equal(t, 4, a.Total)
	assert.Equal(t, 1, a.Blocked)
	assert.Equal(t, 1, a.Suspicious)
	assert.InDelta(t, 1.0, a.AverageConfidence, 0.001)
	require.NotEmpty(t, a.TopUserAgents)
	assert.Equal(t, "agent-0", a.TopUserAgents[0].Value)
	assert.Equal(t, 2, a.TopUserAgents[0].Count)
}
