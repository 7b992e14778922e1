package fingerprint

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound indicates no record exists for the hash (or it expired).
	ErrNotFound = errors.New("fingerprint.not_found")

	// ErrInvalidRecord indicates a record without a valid hash.
	ErrInvalidRecord = errors.New("fingerprint.invalid_record")
)

// Record is a persisted fingerprint with its anti-abuse counters.
type Record struct {
	Hash               string        `json:"hash"`
	Device             DeviceSignals `json:"deviceInfo"`
	Confidence         float64       `json:"confidence"`
	CreatedAt          time.Time     `json:"createdAt"`
	LastSeen           time.Time     `json:"lastSeen"`
	UsageCount         int           `json:"usageCount"`
	SuspiciousActivity int           `json:"suspiciousActivity"`
	Blocked            bool          `json:"isBlocked"`
	BlockReason        string        `json:"blockReason,omitempty"`
}

// NewRecord creates a fresh record for a generated fingerprint.
func NewRecord(fp Fingerprint) *Record {
	now := time.Now()
	return &Record{
		Hash:       fp.Hash,
		Device:     fp.Device,
		Confidence: fp.Confidence,
		CreatedAt:  now,
		LastSeen:   now,
	}
}

// Expired reports whether the record has been idle past the TTL.
func (r *Record) Expired(ttl time.Duration) bool {
	return r != nil && time.Since(r.LastSeen) > ttl
}

// Analytics aggregates read-only statistics over stored fingerprints.
type Analytics struct {
	Total             int               `json:"total"`
	Blocked           int               `json:"blocked"`
	Suspicious        int               `json:"suspicious"`
	AverageConfidence float64           `json:"averageConfidence"`
	TopUserAgents     []HistogramBucket `json:"topUserAgents"`
	TopResolutions    []HistogramBucket `json:"topResolutions"`
	TopTimeZones      []HistogramBucket `json:"topTimeZones"`
}

// HistogramBucket is one value with its occurrence count.
type HistogramBucket struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}

// Store persists fingerprint records keyed by hash with idle-TTL semantics.
type Store interface {
	// Get returns the record, lazily evicting it when idle past the TTL.
	// Returns ErrNotFound for missing or expired records.
	Get(ctx context.Context, hash string) (*Record, error)

	// Set upserts the record.
	Set(ctx context.Context, record *Record) error

	// Update merges the record over the stored one and refreshes LastSeen.
	Update(ctx context.Context, record *Record) error

	// IncrementUsage bumps UsageCount and refreshes LastSeen.
	IncrementUsage(ctx context.Context, hash string) error

	// IncrementSuspicious bumps SuspiciousActivity and auto-blocks the
	// record once the counter reaches the configured maximum.
	IncrementSuspicious(ctx context.Context, hash string) error

	// Block marks the record blocked with a reason, independent of counters.
	Block(ctx context.Context, hash, reason string) error

	// Unblock clears the blocked flag. The suspicious counter is reset so
	// the next increment does not immediately re-block.
	Unblock(ctx context.Context, hash string) error

	// Cleanup evicts every record whose LastSeen is before the cutoff,
	// returning the number removed.
	Cleanup(ctx context.Context, olderThan time.Time) (int, error)

	// Analytics aggregates statistics without side effects.
	Analytics(ctx context.Context) (*Analytics, error)
}

// Config holds fingerprint store tuning.
type Config struct {
	// TTL is how long a record survives without activity.
	TTL time.Duration `env:"FINGERPRINT_TTL" envDefault:"24h"`

	// MaxSuspiciousActivity is the counter value at which a record is
	// automatically blocked.
	MaxSuspiciousActivity int `env:"FINGERPRINT_MAX_SUSPICIOUS" envDefault:"10"`

	// CleanupInterval is the period of the background eviction sweep
	// (0 disables it).
	CleanupInterval time.Duration `env:"FINGERPRINT_CLEANUP_INTERVAL" envDefault:"24h"`

	// MaxRecords bounds the memory store; exceeding it triggers an
	// emergency purge of the oldest half.
	MaxRecords int `env:"FINGERPRINT_MAX_RECORDS" envDefault:"10000"`

	// TopN is the histogram size reported by Analytics.
	TopN int `env:"FINGERPRINT_ANALYTICS_TOP_N" envDefault:"5"`
}

// DefaultConfig returns the default fingerprint store configuration.
func DefaultConfig() Config {
	return Config{
		TTL:                   24 * time.Hour,
		MaxSuspiciousActivity: 10,
		CleanupInterval:       24 * time.Hour,
		MaxRecords:            10000,
		TopN:                  5,
	}
}
