package fingerprint

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/pedidoflow/guestkit/pkg/logger"
)

// MemoryStore keeps fingerprint records in an in-process map. It is the
// degraded-mode backend when Redis is unavailable, and the default for
// tests and single-instance deployments.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*Record

	config Config
	log    *slog.Logger
	ticker *time.Ticker
	done   chan struct{}
	once   sync.Once
}

// MemoryStoreOption configures a MemoryStore.
type MemoryStoreOption func(*MemoryStore)

// WithLogger sets the logger used for block transitions and purges.
func WithLogger(log *slog.Logger) MemoryStoreOption {
	return func(s *MemoryStore) {
		if log != nil {
			s.log = log
		}
	}
}

// NewMemoryStore creates an in-memory fingerprint store.
func NewMemoryStore(cfg Config, opts ...MemoryStoreOption) *MemoryStore {
	s := &MemoryStore{
		records: make(map[string]*Record),
		config:  cfg,
		log:     logger.Discard(),
		done:    make(chan struct{}),
	}

	for _, opt := range opts {
		opt(s)
	}

	if cfg.CleanupInterval > 0 {
		s.ticker = time.NewTicker(cfg.CleanupInterval)
		go s.cleanupLoop()
	}

	return s
}

func (s *MemoryStore) Get(ctx context.Context, hash string) (*Record, error) {
	s.mu.RLock()
	record, exists := s.records[hash]
	if exists && !record.Expired(s.config.TTL) {
		copied := *record
		s.mu.RUnlock()
		return &copied, nil
	}
	s.mu.RUnlock()

	if !exists {
		return nil, ErrNotFound
	}

	// Evict the expired record. Re-check under the write lock: another
	// goroutine may have replaced it with a fresh one in between.
	s.mu.Lock()
	if current, ok := s.records[hash]; ok && current.Expired(s.config.TTL) {
		delete(s.records, hash)
	}
	s.mu.Unlock()
	return nil, ErrNotFound
}

func (s *MemoryStore) Set(ctx context.Context, record *Record) error {
	if record == nil || !Validate(record.Hash) {
		return ErrInvalidRecord
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[record.Hash]; !exists && len(s.records) >= s.config.MaxRecords {
		s.purgeOldestLocked()
	}

	copied := *record
	s.records[record.Hash] = &copied
	return nil
}

func (s *MemoryStore) Update(ctx context.Context, record *Record) error {
	if record == nil || !Validate(record.Hash) {
		return ErrInvalidRecord
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[record.Hash]; !exists {
		return ErrNotFound
	}

	copied := *record
	copied.LastSeen = time.Now()
	s.records[record.Hash] = &copied
	return nil
}

func (s *MemoryStore) IncrementUsage(ctx context.Context, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, exists := s.records[hash]
	if !exists {
		return ErrNotFound
	}

	record.UsageCount++
	record.LastSeen = time.Now()
	return nil
}

func (s *MemoryStore) IncrementSuspicious(ctx context.Context, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, exists := s.records[hash]
	if !exists {
		return ErrNotFound
	}

	record.SuspiciousActivity++
	record.LastSeen = time.Now()

	if !record.Blocked && record.SuspiciousActivity >= s.config.MaxSuspiciousActivity {
		record.Blocked = true
		record.BlockReason = "suspicious activity threshold reached"
		s.log.Warn("fingerprint auto-blocked",
			logger.Fingerprint(hash),
			slog.Int("suspicious_activity", record.SuspiciousActivity),
			logger.Component("fingerprint_store"),
		)
	}

	return nil
}

func (s *MemoryStore) Block(ctx context.Context, hash, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, exists := s.records[hash]
	if !exists {
		return ErrNotFound
	}

	record.Blocked = true
	record.BlockReason = reason
	record.LastSeen = time.Now()
	return nil
}

func (s *MemoryStore) Unblock(ctx context.Context, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, exists := s.records[hash]
	if !exists {
		return ErrNotFound
	}

	record.Blocked = false
	record.BlockReason = ""
	record.SuspiciousActivity = 0
	record.LastSeen = time.Now()
	return nil
}

func (s *MemoryStore) Cleanup(ctx context.Context, olderThan time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for hash, record := range s.records {
		if record.LastSeen.Before(olderThan) {
			delete(s.records, hash)
			removed++
		}
	}

	return removed, nil
}

func (s *MemoryStore) Analytics(ctx context.Context) (*Analytics, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a := &Analytics{Total: len(s.records)}

	userAgents := make(map[string]int)
	resolutions := make(map[string]int)
	timeZones := make(map[string]int)

	var confidenceSum float64
	for _, record := range s.records {
		if record.Blocked {
			a.Blocked++
		}
		if record.SuspiciousActivity > 0 {
			a.Suspicious++
		}
		confidenceSum += record.Confidence

		if record.Device.UserAgent != "" {
			userAgents[record.Device.UserAgent]++
		}
		if record.Device.ScreenResolution != "" {
			resolutions[record.Device.ScreenResolution]++
		}
		if record.Device.TimeZone != "" {
			timeZones[record.Device.TimeZone]++
		}
	}

	if a.Total > 0 {
		a.AverageConfidence = confidenceSum / float64(a.Total)
	}

	a.TopUserAgents = topN(userAgents, s.config.TopN)
	a.TopResolutions = topN(resolutions, s.config.TopN)
	a.TopTimeZones = topN(timeZones, s.config.TopN)

	return a, nil
}

// purgeOldestLocked drops the oldest-LastSeen half of the records. Caller
// holds the write lock.
func (s *MemoryStore) purgeOldestLocked() {
	type entry struct {
		hash     string
		lastSeen time.Time
	}

	entries := make([]entry, 0, len(s.records))
	for hash, record := range s.records {
		entries = append(entries, entry{hash, record.LastSeen})
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].lastSeen.Before(entries[j].lastSeen)
	})

	purge := len(entries) / 2
	for _, e := range entries[:purge] {
		delete(s.records, e.hash)
	}

	s.log.Warn("fingerprint store over capacity, purged oldest records",
		slog.Int("purged", purge),
		logger.Component("fingerprint_store"),
	)
}

func (s *MemoryStore) cleanupLoop() {
	for {
		select {
		case <-s.ticker.C:
			_, _ = s.Cleanup(context.Background(), time.Now().Add(-s.config.TTL))
		case <-s.done:
			return
		}
	}
}

// Close stops the cleanup goroutine.
func (s *MemoryStore) Close() error {
	s.once.Do(func() {
		if s.ticker != nil {
			s.ticker.Stop()
		}
		close(s.done)
	})
	return nil
}

func topN(histogram map[string]int, n int) []HistogramBucket {
	buckets := make([]HistogramBucket, 0, len(histogram))
	for value, count := range histogram {
		buckets = append(buckets, HistogramBucket{Value: value, Count: count})
	}

	sort.Slice(buckets, func(i, j int) bool {
		if buckets[i].Count != buckets[j].Count {
			return buckets[i].Count > buckets[j].Count
		}
		return buckets[i].Value < buckets[j].Value
	})

	if len(buckets) > n {
		buckets = buckets[:n]
	}
	return buckets
}
