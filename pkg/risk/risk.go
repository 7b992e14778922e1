package risk

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/pedidoflow/guestkit/pkg/fingerprint"
)

// Severity grades an activity pattern.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Pattern types recognized by the engine.
const (
	PatternUsageSpike         = "usage_spike"
	PatternRapidChanges       = "rapid_changes"
	PatternBlockedFingerprint = "blocked_fingerprint"
)

// Pattern is one recognized suspicious-activity signal.
type Pattern struct {
	Type        string   `json:"type"`
	Severity    Severity `json:"severity"`
	Description string   `json:"description"`
}

// Assessment is the outcome of validating a fingerprint against its history.
type Assessment struct {
	Valid      bool    `json:"isValid"`
	Suspicious bool    `json:"isSuspicious"`
	Blocked    bool    `json:"isBlocked"`
	Similarity float64 `json:"similarity,omitempty"`
	Reason     string  `json:"reason,omitempty"`
}

// ChangeLevel classifies how drastic a fingerprint change is.
type ChangeLevel string

const (
	ChangeNone   ChangeLevel = "none"
	ChangeLow    ChangeLevel = "low"
	ChangeMedium ChangeLevel = "medium"
	ChangeHigh   ChangeLevel = "high"
)

// ChangeReport describes the difference between two fingerprints.
type ChangeReport struct {
	Changed    bool        `json:"hasChanged"`
	Similarity float64     `json:"similarity"`
	Changes    []string    `json:"suspiciousChanges,omitempty"`
	Level      ChangeLevel `json:"riskLevel"`
}

// Config holds the engine's tunables. The defaults reproduce observed
// production behavior; none of the weights are known to be optimal, which
// is why they are configuration rather than constants.
type Config struct {
	// SimilarityThreshold is the score below which a changed fingerprint
	// counts as suspicious.
	SimilarityThreshold float64 `env:"RISK_SIMILARITY_THRESHOLD" envDefault:"0.7"`

	// BlockThreshold mirrors the store's auto-block counter maximum.
	BlockThreshold int `env:"RISK_BLOCK_THRESHOLD" envDefault:"10"`

	// UsageSpikeThreshold flags fingerprints used implausibly often.
	UsageSpikeThreshold int `env:"RISK_USAGE_SPIKE_THRESHOLD" envDefault:"100"`

	// RapidChangeThreshold flags fingerprints accumulating suspicion fast.
	RapidChangeThreshold int `env:"RISK_RAPID_CHANGE_THRESHOLD" envDefault:"3"`

	// EarlyUsageHighThreshold marks heavy use within the first hour as a
	// high-severity pattern.
	EarlyUsageHighThreshold int `env:"RISK_EARLY_USAGE_HIGH" envDefault:"10"`

	// EarlyUsageBlockThreshold is the first-hour usage count that forces a
	// block decision.
	EarlyUsageBlockThreshold int `env:"RISK_EARLY_USAGE_BLOCK" envDefault:"50"`

	// EarlyWindow is the "first hour" used by the early-usage rules.
	EarlyWindow time.Duration `env:"RISK_EARLY_WINDOW" envDefault:"1h"`

	// Score weights.
	WeightSuspicious float64 `env:"RISK_WEIGHT_SUSPICIOUS" envDefault:"0.4"`
	WeightUsage      float64 `env:"RISK_WEIGHT_USAGE" envDefault:"0.2"`
	WeightBlocked    float64 `env:"RISK_WEIGHT_BLOCKED" envDefault:"0.5"`
	WeightConfidence float64 `env:"RISK_WEIGHT_CONFIDENCE" envDefault:"0.2"`
	WeightPatterns   float64 `env:"RISK_WEIGHT_PATTERNS" envDefault:"0.1"`

	// UsageNormalization divides the usage count in the score.
	UsageNormalization float64 `env:"RISK_USAGE_NORMALIZATION" envDefault:"200"`

	// UnknownBaseline is the residual score for fingerprints without a
	// stored record: new devices are uncertain, not safe.
	UnknownBaseline float64 `env:"RISK_UNKNOWN_BASELINE" envDefault:"0.1"`
}

// DefaultConfig returns the default risk engine configuration.
func DefaultConfig() Config {
	return Config{
		SimilarityThreshold:      0.7,
		BlockThreshold:           10,
		UsageSpikeThreshold:      100,
		RapidChangeThreshold:     3,
		EarlyUsageHighThreshold:  10,
		EarlyUsageBlockThreshold: 50,
		EarlyWindow:              time.Hour,
		WeightSuspicious:         0.4,
		WeightUsage:              0.2,
		WeightBlocked:            0.5,
		WeightConfidence:         0.2,
		WeightPatterns:           0.1,
		UsageNormalization:       200,
		UnknownBaseline:          0.1,
	}
}

// Engine evaluates fingerprints against stored history. All methods are
// read-only with respect to the store; the caller decides whether to
// persist block decisions.
type Engine struct {
	store  fingerprint.Store
	config Config
}

// New creates a risk engine over the fingerprint store.
func New(store fingerprint.Store, cfg Config) *Engine {
	return &Engine{store: store, config: cfg}
}

// Validate checks the fingerprint's format, block status, continuity with
// the previous hash, and activity patterns.
func (e *Engine) Validate(ctx context.Context, hash, previousHash string) (*Assessment, error) {
	if !fingerprint.Validate(hash) {
		return &Assessment{
			Valid:      false,
			Suspicious: true,
			Reason:     "invalid fingerprint format",
		}, nil
	}

	record, err := e.store.Get(ctx, hash)
	if err != nil && !errors.Is(err, fingerprint.ErrNotFound) {
		return nil, fmt.Errorf("risk: validate: %w", err)
	}

	if record != nil && record.Blocked {
		return &Assessment{
			Valid:   false,
			Blocked: true,
			Reason:  "fingerprint is blocked",
		}, nil
	}

	assessment := &Assessment{Valid: true, Similarity: 1}

	if previousHash != "" && previousHash != hash {
		assessment.Similarity = fingerprint.Similarity(previousHash, hash)
		if assessment.Similarity < e.config.SimilarityThreshold {
			assessment.Suspicious = true
			assessment.Reason = "fingerprint changed significantly"
		}
	}

	if record != nil {
		for _, pattern := range e.patterns(record) {
			if pattern.Severity == SeverityHigh {
				assessment.Suspicious = true
				if assessment.Reason == "" {
					assessment.Reason = pattern.Description
				}
				break
			}
		}
	}

	return assessment, nil
}

// DetectChanges compares two hashes and, when both have stored device info,
// diffs the discrete signals. Rendering-stack changes (canvas, WebGL) are
// weighted above locale changes because devices do not change GPUs mid-visit.
func (e *Engine) DetectChanges(ctx context.Context, oldHash, newHash string) (*ChangeReport, error) {
	report := &ChangeReport{
		Changed:    oldHash != newHash,
		Similarity: fingerprint.Similarity(oldHash, newHash),
		Level:      ChangeNone,
	}

	if !report.Changed {
		return report, nil
	}

	switch {
	case report.Similarity < 0.1:
		report.Level = ChangeHigh
		report.Changes = append(report.Changes, "drastic fingerprint change")
	case report.Similarity < 0.3:
		report.Level = ChangeMedium
	case report.Similarity < e.config.SimilarityThreshold:
		report.Level = ChangeLow
	}

	oldRecord, errOld := e.store.Get(ctx, oldHash)
	newRecord, errNew := e.store.Get(ctx, newHash)
	if errOld != nil || errNew != nil {
		return report, nil
	}

	report.Changes = append(report.Changes, diffDevices(oldRecord.Device, newRecord.Device)...)

	// Rendering hash changes escalate the level even when the overall
	// similarity looks mild.
	for _, change := range report.Changes {
		if change == "canvas rendering changed" || change == "webgl renderer changed" {
			if report.Level != ChangeHigh {
				report.Level = ChangeMedium
			}
		}
	}

	return report, nil
}

func diffDevices(old, new fingerprint.DeviceSignals) []string {
	var changes []string
	if old.UserAgent != new.UserAgent {
		changes = append(changes, "user agent changed")
	}
	if old.ScreenResolution != new.ScreenResolution {
		changes = append(changes, "screen resolution changed")
	}
	if old.TimeZone != new.TimeZone {
		changes = append(changes, "time zone changed")
	}
	if old.Language != new.Language {
		changes = append(changes, "language changed")
	}
	if old.CanvasHash != new.CanvasHash {
		changes = append(changes, "canvas rendering changed")
	}
	if old.WebGLHash != new.WebGLHash {
		changes = append(changes, "webgl renderer changed")
	}
	return changes
}

// ActivityPatterns returns the suspicious-activity patterns present on the
// stored record. Unknown fingerprints have no patterns.
func (e *Engine) ActivityPatterns(ctx context.Context, hash string) ([]Pattern, error) {
	record, err := e.store.Get(ctx, hash)
	if err != nil {
		if errors.Is(err, fingerprint.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("risk: activity patterns: %w", err)
	}

	return e.patterns(record), nil
}

func (e *Engine) patterns(record *fingerprint.Record) []Pattern {
	var patterns []Pattern

	if record.UsageCount > e.config.UsageSpikeThreshold {
		patterns = append(patterns, Pattern{
			Type:        PatternUsageSpike,
			Severity:    SeverityMedium,
			Description: fmt.Sprintf("fingerprint used %d times", record.UsageCount),
		})
	}

	if record.SuspiciousActivity > e.config.RapidChangeThreshold {
		severity := SeverityMedium
		if record.SuspiciousActivity > e.config.RapidChangeThreshold*2 {
			severity = SeverityHigh
		}
		patterns = append(patterns, Pattern{
			Type:        PatternRapidChanges,
			Severity:    severity,
			Description: fmt.Sprintf("%d suspicious events recorded", record.SuspiciousActivity),
		})
	}

	if e.withinEarlyWindow(record) && record.UsageCount > e.config.EarlyUsageHighThreshold {
		patterns = append(patterns, Pattern{
			Type:        PatternRapidChanges,
			Severity:    SeverityHigh,
			Description: fmt.Sprintf("%d uses within the first hour", record.UsageCount),
		})
	}

	if record.Blocked {
		patterns = append(patterns, Pattern{
			Type:        PatternBlockedFingerprint,
			Severity:    SeverityHigh,
			Description: "fingerprint is blocked",
		})
	}

	return patterns
}

// ShouldBlock decides whether the fingerprint warrants blocking.
func (e *Engine) ShouldBlock(ctx context.Context, hash string) (bool, error) {
	record, err := e.store.Get(ctx, hash)
	if err != nil {
		if errors.Is(err, fingerprint.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("risk: should block: %w", err)
	}

	if record.Blocked {
		return true, nil
	}
	if record.SuspiciousActivity >= e.config.BlockThreshold {
		return true, nil
	}
	if e.withinEarlyWindow(record) && record.UsageCount > e.config.EarlyUsageBlockThreshold {
		return true, nil
	}

	for _, pattern := range e.patterns(record) {
		if pattern.Severity == SeverityHigh {
			return true, nil
		}
	}

	return false, nil
}

// Score computes the composite risk score in [0,1]. Unknown fingerprints
// score the configured baseline rather than zero.
func (e *Engine) Score(ctx context.Context, hash string) (float64, error) {
	record, err := e.store.Get(ctx, hash)
	if err != nil {
		if errors.Is(err, fingerprint.ErrNotFound) {
			return e.config.UnknownBaseline, nil
		}
		return 0, fmt.Errorf("risk: score: %w", err)
	}

	score := e.config.WeightSuspicious * math.Min(float64(record.SuspiciousActivity)/float64(e.config.BlockThreshold), 1)
	score += e.config.WeightUsage * math.Min(float64(record.UsageCount)/e.config.UsageNormalization, 1)
	if record.Blocked {
		score += e.config.WeightBlocked
	}
	score += e.config.WeightConfidence * (1 - record.Confidence)

	highPatterns := 0
	for _, pattern := range e.patterns(record) {
		if pattern.Severity == SeverityHigh {
			highPatterns++
		}
	}
	score += e.config.WeightPatterns * math.Min(float64(highPatterns)/3, 1)

	return math.Min(score, 1), nil
}

func (e *Engine) withinEarlyWindow(record *fingerprint.Record) bool {
	return time.Since(record.CreatedAt) < e.config.EarlyWindow
}
