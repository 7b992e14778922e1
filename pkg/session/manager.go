package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pedidoflow/guestkit/pkg/logger"
	"github.com/pedidoflow/guestkit/pkg/risk"
)

// Backend validates sessions against the ordering platform. A nil backend
// means sessions are trusted locally.
type Backend interface {
	// ValidateSession reports whether the platform still considers the
	// session valid.
	ValidateSession(ctx context.Context, id uuid.UUID) (bool, error)
}

// FingerprintValidator gates session creation on device risk.
type FingerprintValidator interface {
	Validate(ctx context.Context, hash, previousHash string) (*risk.Assessment, error)
}

// CreateParams carries everything needed to open a session.
type CreateParams struct {
	StoreID             string
	Context             Context
	Fingerprint         string
	PreviousFingerprint string
	IPAddress           string
	UserAgent           string
}

// Manager owns session lifecycles: creation gated by device risk, periodic
// backend revalidation, customer association, and recovery of existing
// sessions for a returning device.
type Manager struct {
	store     Store
	backend   Backend
	validator FingerprintValidator
	config    Config
	log       *slog.Logger

	activityChan chan activityUpdate
	done         chan struct{}
	closeOnce    sync.Once

	mu       sync.Mutex
	monitors map[uuid.UUID]context.CancelFunc
}

type activityUpdate struct {
	id   uuid.UUID
	time time.Time
}

// Option configures the manager.
type Option func(*Manager)

// WithStore sets the session store. Defaults to an in-memory store.
func WithStore(store Store) Option {
	return func(m *Manager) {
		m.store = store
	}
}

// WithBackend sets the platform validator used by heartbeats.
func WithBackend(backend Backend) Option {
	return func(m *Manager) {
		m.backend = backend
	}
}

// WithFingerprintValidator gates session creation on device risk.
func WithFingerprintValidator(validator FingerprintValidator) Option {
	return func(m *Manager) {
		m.validator = validator
	}
}

// WithConfig overrides the default configuration.
func WithConfig(cfg Config) Option {
	return func(m *Manager) {
		m.config = cfg
	}
}

// WithLogger sets the manager's logger. Defaults to a discard logger.
func WithLogger(log *slog.Logger) Option {
	return func(m *Manager) {
		m.log = log
	}
}

// NewManager creates a session manager and starts its activity worker.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		config:       DefaultConfig(),
		log:          logger.Discard(),
		activityChan: make(chan activityUpdate, 1000),
		done:         make(chan struct{}),
		monitors:     make(map[uuid.UUID]context.CancelFunc),
	}

	for _, opt := range opts {
		opt(m)
	}

	if m.store == nil {
		m.store = NewMemoryStore(m.config.CleanupInterval)
	}

	go m.activityWorker()

	return m
}

// CreateSession opens a session for a device in a store. The fingerprint
// must pass risk validation; a blocked device gets no session. The new
// session displaces any prior session for the same store and device.
func (m *Manager) CreateSession(ctx context.Context, params CreateParams) (*Session, error) {
	if params.StoreID == "" {
		return nil, ErrStoreRequired
	}
	if params.Fingerprint == "" {
		return nil, ErrFingerprintRequired
	}
	if err := params.Context.Validate(); err != nil {
		return nil, err
	}

	if m.validator != nil {
		assessment, err := m.validator.Validate(ctx, params.Fingerprint, params.PreviousFingerprint)
		if err != nil {
			return nil, fmt.Errorf("session: fingerprint validation: %w", err)
		}
		if !assessment.Valid {
			m.log.WarnContext(ctx, "session creation rejected",
				logger.Fingerprint(params.Fingerprint),
				logger.StoreID(params.StoreID),
				slog.String("reason", assessment.Reason),
			)
			return nil, ErrFingerprintBlocked
		}
		if assessment.Suspicious {
			m.log.WarnContext(ctx, "suspicious device allowed",
				logger.Fingerprint(params.Fingerprint),
				logger.StoreID(params.StoreID),
				slog.String("reason", assessment.Reason),
			)
		}
	}

	session := New(params.StoreID, params.Context, params.Fingerprint, m.config.TTL)
	session.IPAddress = params.IPAddress
	session.UserAgent = params.UserAgent

	if err := session.transition(StateActiveGuest); err != nil {
		return nil, err
	}

	if err := m.store.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("session: create: %w", err)
	}

	m.startMonitor(session.ID)

	m.log.InfoContext(ctx, "session created",
		logger.SessionID(session.ID.String()),
		logger.StoreID(session.StoreID),
		slog.String("context", string(session.Context.Type)),
	)

	return session, nil
}

// ValidateSession revalidates a session. Expired sessions are removed. When
// a backend is configured, its verdict is authoritative: a rejection
// terminates the session and clears local state.
func (m *Manager) ValidateSession(ctx context.Context, id uuid.UUID) (*Session, error) {
	session, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if session.Expired() {
		m.terminate(ctx, session)
		return nil, ErrExpired
	}

	if m.backend != nil {
		valid, err := m.backend.ValidateSession(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("session: backend validation: %w", err)
		}
		if !valid {
			m.terminate(ctx, session)
			return nil, ErrValidationFailed
		}
	}

	session.Touch()
	if err := m.store.UpdateActivity(ctx, id, session.LastActivity); err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	return session, nil
}

// AssociateCustomer upgrades a guest session to authenticated. The upgrade
// is one-way.
func (m *Manager) AssociateCustomer(ctx context.Context, id, customerID uuid.UUID) (*Session, error) {
	session, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if session.Expired() {
		m.terminate(ctx, session)
		return nil, ErrExpired
	}

	if err := session.transition(StateActiveAuthenticated); err != nil {
		return nil, err
	}
	session.CustomerID = &customerID
	session.Touch()

	if err := m.store.Update(ctx, session); err != nil {
		return nil, err
	}

	m.log.InfoContext(ctx, "session authenticated",
		logger.SessionID(session.ID.String()),
		logger.CustomerID(customerID.String()),
	)

	return session, nil
}

// UpdateActivity queues an activity timestamp write. The write happens on a
// background worker so hot paths never block on the store.
func (m *Manager) UpdateActivity(id uuid.UUID) {
	select {
	case m.activityChan <- activityUpdate{id: id, time: time.Now()}:
	default:
		// Channel full, drop the update.
	}
}

// ExpireSession terminates a session and removes it from the store.
func (m *Manager) ExpireSession(ctx context.Context, id uuid.UUID) error {
	session, err := m.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			m.stopMonitor(id)
			return nil
		}
		return err
	}

	m.terminate(ctx, session)
	return nil
}

// RecoverSession resumes an existing session for a returning device. The
// session must match the requested context; a table change or a switch
// between table and delivery starts fresh instead.
func (m *Manager) RecoverSession(ctx context.Context, storeID, fingerprintHash string, sessionCtx Context) (*Session, error) {
	session, err := m.store.GetByFingerprint(ctx, storeID, fingerprintHash)
	if err != nil {
		return nil, err
	}

	if session.Expired() {
		m.terminate(ctx, session)
		return nil, ErrExpired
	}

	if !session.Context.Equal(sessionCtx) {
		return nil, ErrNotFound
	}

	session.Touch()
	if err := m.store.UpdateActivity(ctx, session.ID, session.LastActivity); err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	m.startMonitor(session.ID)

	return session, nil
}

func (m *Manager) terminate(ctx context.Context, session *Session) {
	m.stopMonitor(session.ID)
	if session.State != StateTerminated {
		_ = session.transition(StateTerminated)
	}
	if err := m.store.Delete(ctx, session.ID); err != nil {
		m.log.ErrorContext(ctx, "session delete failed",
			logger.SessionID(session.ID.String()),
			logger.Error(err),
		)
	}
}

// startMonitor launches the heartbeat goroutine for a session. Starting a
// monitor for a session that already has one is a no-op.
func (m *Manager) startMonitor(id uuid.UUID) {
	if m.config.HeartbeatInterval <= 0 {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.monitors[id]; ok {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	m.monitors[id] = cancel

	go m.monitorLoop(ctx, id)
}

func (m *Manager) stopMonitor(id uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if cancel, ok := m.monitors[id]; ok {
		cancel()
		delete(m.monitors, id)
	}
}

func (m *Manager) monitorLoop(ctx context.Context, id uuid.UUID) {
	ticker := time.NewTicker(m.config.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := m.ValidateSession(ctx, id); err != nil {
				m.log.InfoContext(ctx, "session heartbeat stopped",
					logger.SessionID(id.String()),
					logger.Error(err),
				)
				m.stopMonitor(id)
				return
			}
		case <-ctx.Done():
			return
		case <-m.done:
			return
		}
	}
}

func (m *Manager) activityWorker() {
	for {
		select {
		case update := <-m.activityChan:
			_ = m.store.UpdateActivity(context.Background(), update.id, update.time)
		case <-m.done:
			for {
				select {
				case update := <-m.activityChan:
					_ = m.store.UpdateActivity(context.Background(), update.id, update.time)
				default:
					return
				}
			}
		}
	}
}

// Close stops the activity worker and all heartbeat monitors.
func (m *Manager) Close() error {
	m.closeOnce.Do(func() {
		close(m.done)

		m.mu.Lock()
		defer m.mu.Unlock()
		for id, cancel := range m.monitors {
			cancel()
			delete(m.monitors, id)
		}
	})
	return nil
}
