package risk_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pedidoflow/guestkit/pkg/fingerprint"
	"github.com/pedidoflow/guestkit/pkg/risk"
)

func newEngine(t *testing.T) (*risk.Engine, *fingerprint.MemoryStore) {
	t.Helper()

	cfg := fingerprint.DefaultConfig()
	cfg.CleanupInterval = 0
	store := fingerprint.NewMemoryStore(cfg)
	t.Cleanup(func() { store.Close() })

	return risk.New(store, risk.DefaultConfig()), store
}

func seed(t *testing.T, store *fingerprint.MemoryStore, mutate func(*fingerprint.Record)) string {
	t.Helper()

	fp := fingerprint.Generate(fingerprint.DeviceSignals{
		UserAgent:        "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X)",
		ScreenResolution: "390x844",
		TimeZone:         "America/Sao_Paulo",
		Language:         "pt-BR",
	})

	record := fingerprint.NewRecord(fp)
	if mutate != nil {
		mutate(record)
	}
	require.NoError(t, store.Set(context.Background(), record))

	return record.Hash
}

func TestEngine_Validate(t *testing.T) {
	t.Parallel()

	t.Run("malformed hash is invalid and suspicious", func(t *testing.T) {
		t.Parallel()

		engine, _ := newEngine(t)

		assessment, err := engine.Validate(context.Background(), "not-hex!", "")
		require.NoError(t, err)
		assert.False(t, assessment.Valid)
		assert.True(t, assessment.Suspicious)
	})

	t.Run("unknown fingerprint is valid", func(t *testing.T) {
		t.Parallel()

		engine, _ := newEngine(t)

		assessment, err := engine.Validate(context.Background(), strings.Repeat("ab", 16), "")
		require.NoError(t, err)
		assert.True(t, assessment.Valid)
		assert.False(t, assessment.Suspicious)
	})

	t.Run("blocked fingerprint is rejected", func(t *testing.T) {
		t.Parallel()

		engine, store := newEngine(t)
		hash := seed(t, store, nil)
		require.NoError(t, store.Block(context.Background(), hash, "abuse"))

		assessment, err := engine.Validate(context.Background(), hash, "")
		require.NoError(t, err)
		assert.False(t, assessment.Valid)
		assert.True(t, assessment.Blocked)
	})

	t.Run("dissimilar previous hash marks suspicious", func(t *testing.T) {
		t.Parallel()

		engine, store := newEngine(t)
		hash := seed(t, store, nil)

		assessment, err := engine.Validate(context.Background(), hash, strings.Repeat("ff00", 8))
		require.NoError(t, err)
		assert.True(t, assessment.Valid)
		assert.True(t, assessment.Suspicious)
		assert.Less(t, assessment.Similarity, 0.7)
	})

	t.Run("identical previous hash is clean", func(t *testing.T) {
		t.Parallel()

		engine, store := newEngine(t)
		hash := seed(t, store, nil)

		assessment, err := engine.Validate(context.Background(), hash, hash)
		require.NoError(t, err)
		assert.True(t, assessment.Valid)
		assert.False(t, assessment.Suspicious)
		assert.InDelta(t, 1.0, assessment.Similarity, 0.0001)
	})

	t.Run("high severity pattern marks suspicious", func(t *testing.T) {
		t.Parallel()

		engine, store := newEngine(t)
		hash := seed(t, store, func(r *fingerprint.Record) {
			r.SuspiciousActivity = 7
		})

		assessment, err := engine.Validate(context.Background(), hash, "")
		require.NoError(t, err)
		assert.True(t, assessment.Valid)
		assert.True(t, assessment.Suspicious)
		assert.NotEmpty(t, assessment.Reason)
	})
}

func TestEngine_DetectChanges(t *testing.T) {
	t.Parallel()

	t.Run("identical hashes report no change", func(t *testing.T) {
		t.Parallel()

		engine, store := newEngine(t)
		hash := seed(t, store, nil)

		report, err := engine.DetectChanges(context.Background(), hash, hash)
		require.NoError(t, err)
		assert.False(t, report.Changed)
		assert.Equal(t, risk.ChangeNone, report.Level)
		assert.InDelta(t, 1.0, report.Similarity, 0.0001)
	})

	t.Run("unrelated hashes report high risk", func(t *testing.T) {
		t.Parallel()

		engine, _ := newEngine(t)

		report, err := engine.DetectChanges(context.Background(), strings.Repeat("00", 16), strings.Repeat("ff", 16))
		require.NoError(t, err)
		assert.True(t, report.Changed)
		assert.Equal(t, risk.ChangeHigh, report.Level)
		assert.Contains(t, report.Changes, "drastic fingerprint change")
	})

	t.Run("device diffs name changed signals", func(t *testing.T) {
		t.Parallel()

		engine, store := newEngine(t)

		old := fingerprint.Generate(fingerprint.DeviceSignals{
			UserAgent: "agent-a",
			TimeZone:  "America/Sao_Paulo",
		})
		updated := fingerprint.Generate(fingerprint.DeviceSignals{
			UserAgent: "agent-b",
			TimeZone:  "America/Recife",
		})

		require.NoError(t, store.Set(context.Background(), fingerprint.NewRecord(old)))
		require.NoError(t, store.Set(context.Background(), fingerprint.NewRecord(updated)))

		report, err := engine.DetectChanges(context.Background(), old.Hash, updated.Hash)
		require.NoError(t, err)
		assert.True(t, report.Changed)
		assert.Contains(t, report.Changes, "user agent changed")
		assert.Contains(t, report.Changes, "time zone changed")
	})
}

func TestEngine_ActivityPatterns(t *testing.T) {
	t.Parallel()

	t.Run("unknown fingerprint has no patterns", func(t *testing.T) {
		t.Parallel()

		engine, _ := newEngine(t)

		patterns, err := engine.ActivityPatterns(context.Background(), strings.Repeat("ab", 16))
		require.NoError(t, err)
		assert.Empty(t, patterns)
	})

	t.Run("usage spike is medium severity", func(t *testing.T) {
		t.Parallel()

		engine, store := newEngine(t)
		hash := seed(t, store, func(r *fingerprint.Record) {
			r.UsageCount = 150
			r.CreatedAt = time.Now().Add(-48 * time.Hour)
		})

		patterns, err := engine.ActivityPatterns(context.Background(), hash)
		require.NoError(t, err)
		require.Len(t, patterns, 1)
		assert.Equal(t, risk.PatternUsageSpike, patterns[0].Type)
		assert.Equal(t, risk.SeverityMedium, patterns[0].Severity)
	})

	t.Run("heavy first hour usage is high severity", func(t *testing.T) {
		t.Parallel()

		engine, store := newEngine(t)
		hash := seed(t, store, func(r *fingerprint.Record) {
			r.UsageCount = 20
		})

		patterns, err := engine.ActivityPatterns(context.Background(), hash)
		require.NoError(t, err)
		require.Len(t, patterns, 1)
		assert.Equal(t, risk.PatternRapidChanges, patterns[0].Type)
		assert.Equal(t, risk.SeverityHigh, patterns[0].Severity)
	})

	t.Run("blocked fingerprint pattern is high severity", func(t *testing.T) {
		t.Parallel()

		engine, store := newEngine(t)
		hash := seed(t, store, nil)
		require.NoError(t, store.Block(context.Background(), hash, "abuse"))

		patterns, err := engine.ActivityPatterns(context.Background(), hash)
		require.NoError(t, err)
		require.Len(t, patterns, 1)
		assert.Equal(t, risk.PatternBlockedFingerprint, patterns[0].Type)
		assert.Equal(t, risk.SeverityHigh, patterns[0].Severity)
	})
}

func TestEngine_ShouldBlock(t *testing.T) {
	t.Parallel()

	t.Run("unknown fingerprint is not blocked", func(t *testing.T) {
		t.Parallel()

		engine, _ := newEngine(t)

		block, err := engine.ShouldBlock(context.Background(), strings.Repeat("ab", 16))
		require.NoError(t, err)
		assert.False(t, block)
	})

	t.Run("clean fingerprint is not blocked", func(t *testing.T) {
		t.Parallel()

		engine, store := newEngine(t)
		hash := seed(t, store, func(r *fingerprint.Record) {
			r.CreatedAt = time.Now().Add(-48 * time.Hour)
		})

		block, err := engine.ShouldBlock(context.Background(), hash)
		require.NoError(t, err)
		assert.False(t, block)
	})

	t.Run("suspicion at threshold forces block", func(t *testing.T) {
		t.Parallel()

		engine, store := newEngine(t)
		hash := seed(t, store, func(r *fingerprint.Record) {
			r.SuspiciousActivity = 10
			r.CreatedAt = time.Now().Add(-48 * time.Hour)
		})

		block, err := engine.ShouldBlock(context.Background(), hash)
		require.NoError(t, err)
		assert.True(t, block)
	})

	t.Run("heavy first hour usage forces block", func(t *testing.T) {
		t.Parallel()

		engine, store := newEngine(t)
		hash := seed(t, store, func(r *fingerprint.Record) {
			r.UsageCount = 60
		})

		block, err := engine.ShouldBlock(context.Background(), hash)
		require.NoError(t, err)
		assert.True(t, block)
	})
}

func TestEngine_Score(t *testing.T) {
	t.Parallel()

	t.Run("unknown fingerprint scores the baseline", func(t *testing.T) {
		t.Parallel()

		engine, _ := newEngine(t)

		score, err := engine.Score(context.Background(), strings.Repeat("ab", 16))
		require.NoError(t, err)
		assert.InDelta(t, 0.1, score, 0.0001)
	})

	t.Run("blocked saturated record scores one", func(t *testing.T) {
		t.Parallel()

		engine, store := newEngine(t)
		hash := seed(t, store, func(r *fingerprint.Record) {
			r.SuspiciousActivity = 10
			r.UsageCount = 300
			r.Blocked = true
			r.Confidence = 0.3
		})

		score, err := engine.Score(context.Background(), hash)
		require.NoError(t, err)
		assert.InDelta(t, 1.0, score, 0.0001)
	})

	t.Run("moderate suspicion scores proportionally", func(t *testing.T) {
		t.Parallel()

		engine, store := newEngine(t)
		hash := seed(t, store, func(r *fingerprint.Record) {
			r.SuspiciousActivity = 5
			r.UsageCount = 100
			r.Confidence = 1
			r.CreatedAt = time.Now().Add(-48 * time.Hour)
		})

		score, err := engine.Score(context.Background(), hash)
		require.NoError(t, err)
		// 0.4*0.5 + 0.2*0.5 = 0.3, nothing else applies.
		assert.InDelta(t, 0.3, score, 0.0001)
	})

	t.Run("low confidence contributes", func(t *testing.T) {
		t.Parallel()

		engine, store := newEngine(t)
		hash := seed(t, store, func(r *fingerprint.Record) {
			r.Confidence = 0.5
			r.CreatedAt = time.Now().Add(-48 * time.Hour)
		})

		score, err := engine.Score(context.Background(), hash)
		require.NoError(t, err)
		assert.InDelta(t, 0.1, score, 0.0001)
	})
}
