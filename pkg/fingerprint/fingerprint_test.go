package fingerprint_test

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pedidoflow/guestkit/pkg/fingerprint"
)

func fullSignals() fingerprint.DeviceSignals {
	return fingerprint.DeviceSignals{
		UserAgent:           "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X)",
		ScreenResolution:    "390x844",
		TimeZone:            "America/Sao_Paulo",
		Language:            "pt-BR",
		ColorDepth:          24,
		PixelRatio:          3,
		HardwareConcurrency: 6,
		DeviceMemory:        4,
		CanvasHash:          "a1b2c3d4e5f60718",
		WebGLHash:           "f9e8d7c6b5a43210",
	}
}

func TestGenerate(t *testing.T) {
	t.Parallel()

	t.Run("deterministic for same signals", func(t *testing.T) {
		t.Parallel()

		fp1 := fingerprint.Generate(fullSignals())
		fp2 := fingerprint.Generate(fullSignals())

		assert.Equal(t, fp1.Hash, fp2.Hash)
		assert.Len(t, fp1.Hash, 32)
		assert.Regexp(t, "^[a-f0-9]{32}$", fp1.Hash)
	})

	t.Run("full signals give full confidence", func(t *testing.T) {
		t.Parallel()

		fp := fingerprint.Generate(fullSignals())
		assert.InDelta(t, 1.0, fp.Confidence, 0.001)
	})

	t.Run("different signals give different hashes", func(t *testing.T) {
		t.Parallel()

		other := fullSignals()
		other.UserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64)"

		assert.NotEqual(t, fingerprint.Generate(fullSignals()).Hash, fingerprint.Generate(other).Hash)
	})

	t.Run("canvas and webgl errors still produce a fingerprint", func(t *testing.T) {
		t.Parallel()

		signals := fullSignals()
		signals.CanvasHash = fingerprint.CanvasError
		signals.WebGLHash = fingerprint.WebGLError

		fp := fingerprint.Generate(signals)
		require.NotEmpty(t, fp.Hash)
		assert.Equal(t, fingerprint.CanvasError, fp.Device.CanvasHash)
		assert.Equal(t, fingerprint.WebGLError, fp.Device.WebGLHash)
		assert.Less(t, fp.Confidence, 1.0)
		assert.GreaterOrEqual(t, fp.Confidence, 0.3)
	})

	t.Run("fully degraded signals floor at 0.3 confidence", func(t *testing.T) {
		t.Parallel()

		fp := fingerprint.Generate(fingerprint.DeviceSignals{})
		require.NotEmpty(t, fp.Hash)
		assert.InDelta(t, 0.3, fp.Confidence, 0.001)
	})

	t.Run("sentinel hashes reduce confidence versus real hashes", func(t *testing.T) {
		t.Parallel()

		degraded := fullSignals()
		degraded.CanvasHash = fingerprint.CanvasNotSupported

		assert.Less(t,
			fingerprint.Generate(degraded).Confidence,
			fingerprint.Generate(fullSignals()).Confidence,
		)
	})
}

func TestFromRequest(t *testing.T) {
	t.Parallel()

	r := httptest.NewRequest("GET", "/", nil)
	r.Header.Set("User-Agent", "Mozilla/5.0")
	r.Header.Set("Accept-Language", "pt-BR")
	r.RemoteAddr = "203.0.113.5:1234"

	fp1 := fingerprint.FromRequest(r)
	fp2 := fingerprint.FromRequest(r)

	assert.Equal(t, fp1.Hash, fp2.Hash)
	assert.Len(t, fp1.Hash, 32)
	assert.InDelta(t, 0.3, fp1.Confidence, 0.001)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
		want  bool
	}{
		{name: "valid 32-char hash", input: strings.Repeat("ab", 16), want: true},
		{name: "valid minimum length", input: strings.Repeat("f", 16), want: true},
		{name: "valid maximum length", input: strings.Repeat("0", 64), want: true},
		{name: "empty", input: "", want: false},
		{name: "too short", input: "abcdef", want: false},
		{name: "too long", input: strings.Repeat("a", 65), want: false},
		{name: "non-hex characters", input: strings.Repeat("g", 32), want: false},
		{name: "whitespace", input: strings.Repeat("a", 31) + " ", want: false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.want, fingerprint.Validate(tt.input))
		})
	}
}

func TestSimilarity(t *testing.T) {
	t.Parallel()

	t.Run("identical strings", func(t *testing.T) {
		t.Parallel()

		assert.Equal(t, 1.0, fingerprint.Similarity("abcdef", "abcdef"))
	})

	t.Run("both empty", func(t *testing.T) {
		t.Parallel()

		assert.Equal(t, 1.0, fingerprint.Similarity("", ""))
	})

	t.Run("one empty", func(t *testing.T) {
		t.Parallel()

		assert.Equal(t, 0.0, fingerprint.Similarity("abc", ""))
		assert.Equal(t, 0.0, fingerprint.Similarity("", "abc"))
	})

	t.Run("completely different", func(t *testing.T) {
		t.Parallel()

		assert.Equal(t, 0.0, fingerprint.Similarity("aaaa", "bbbb"))
	})

	t.Run("partial overlap scores between 0 and 1", func(t *testing.T) {
		t.Parallel()

		score := fingerprint.Similarity("abcdef00", "abcdef11")
		assert.Greater(t, score, 0.0)
		assert.Less(t, score, 1.0)
	})

	t.Run("near matches score higher than far matches", func(t *testing.T) {
		t.Parallel()

		near := fingerprint.Similarity("abcdef12", "abcdef13")
		far := fingerprint.Similarity("abcdef12", "12fedcba")
		assert.Greater(t, near, far)
	})
}

func TestSuspiciousChange(t *testing.T) {
	t.Parallel()

	valid := strings.Repeat("ab", 16)
	similar := valid[:30] + "ba"

	t.Run("invalid format is suspicious", func(t *testing.T) {
		t.Parallel()

		assert.True(t, fingerprint.SuspiciousChange("bogus", valid, 0.7))
		assert.True(t, fingerprint.SuspiciousChange(valid, "", 0.7))
	})

	t.Run("unchanged hash is not suspicious", func(t *testing.T) {
		t.Parallel()

		assert.False(t, fingerprint.SuspiciousChange(valid, valid, 0.7))
	})

	t.Run("small drift below threshold is fine", func(t *testing.T) {
		t.Parallel()

		assert.False(t, fingerprint.SuspiciousChange(valid, similar, 0.7))
	})

	t.Run("drastic change is suspicious", func(t *testing.T) {
		t.Parallel()

		other := strings.Repeat("f0", 16)
		assert.True(t, fingerprint.SuspiciousChange(valid, other, 0.7))
	})
}
