package identity

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/pedidoflow/guestkit/pkg/clientip"
	"github.com/pedidoflow/guestkit/pkg/credential"
	"github.com/pedidoflow/guestkit/pkg/fingerprint"
	"github.com/pedidoflow/guestkit/pkg/logger"
	"github.com/pedidoflow/guestkit/pkg/risk"
	"github.com/pedidoflow/guestkit/pkg/session"
)

// ErrDeviceBlocked is returned when the device failed risk validation and
// no session may be opened for it.
var ErrDeviceBlocked = errors.New("identity.device_blocked")

// StoreAPI exposes the store configuration the facade needs.
type StoreAPI interface {
	StoreSettings(ctx context.Context, storeID string) (*StoreSettings, error)
}

// AuthAPI exposes the platform's credential endpoints.
type AuthAPI interface {
	GetMe(ctx context.Context, token string) (*credential.User, error)
	Logout(ctx context.Context, token string) error
}

// State is everything the storefront needs to render after arrival.
type State struct {
	Session         *session.Session
	Fingerprint     string
	Authenticated   bool
	Guest           bool
	CanOrderAsGuest bool
	Customer        *credential.User
	Token           string
	// Err carries the non-fatal failure that degraded this state, if any.
	Err error
}

// Service is the single entry point tying the identity pipeline together:
// device fingerprinting, risk, sessions, and stored credentials.
type Service struct {
	fingerprints fingerprint.Store
	engine       *risk.Engine
	sessions     *session.Manager
	credentials  *credential.Store
	refresher    *credential.Refresher
	stores       StoreAPI
	auth         AuthAPI
	log          *slog.Logger
}

// ServiceOption configures the facade.
type ServiceOption func(*Service)

// WithRiskEngine gates bootstrapping on device risk.
func WithRiskEngine(engine *risk.Engine) ServiceOption {
	return func(s *Service) { s.engine = engine }
}

// WithCredentialStore restores and clears stored credentials.
func WithCredentialStore(store *credential.Store) ServiceOption {
	return func(s *Service) { s.credentials = store }
}

// WithRefresher arms background token refresh for restored credentials.
func WithRefresher(refresher *credential.Refresher) ServiceOption {
	return func(s *Service) { s.refresher = refresher }
}

// WithStoreAPI enables guest-order permission checks.
func WithStoreAPI(stores StoreAPI) ServiceOption {
	return func(s *Service) { s.stores = stores }
}

// WithAuthAPI enables remote credential invalidation on logout.
func WithAuthAPI(auth AuthAPI) ServiceOption {
	return func(s *Service) { s.auth = auth }
}

// WithLogger sets the facade logger.
func WithLogger(log *slog.Logger) ServiceOption {
	return func(s *Service) { s.log = log }
}

// NewService creates the identity facade.
func NewService(fingerprints fingerprint.Store, sessions *session.Manager, opts ...ServiceOption) *Service {
	s := &Service{
		fingerprints: fingerprints,
		sessions:     sessions,
		log:          logger.Discard(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Bootstrap runs the arrival pipeline: fingerprint the device, record the
// visit, recover or create the session for the entry context, and restore
// any stored credential. Credential problems degrade the state instead of
// failing the visit; only a blocked device aborts.
func (s *Service) Bootstrap(ctx context.Context, w http.ResponseWriter, r *http.Request, signals fingerprint.DeviceSignals) (*State, error) {
	fp := fingerprint.Generate(signals)

	state := &State{Fingerprint: fp.Hash, Guest: true}

	if err := s.recordVisit(ctx, fp); err != nil {
		s.log.WarnContext(ctx, "fingerprint record failed",
			logger.Fingerprint(fp.Hash),
			logger.Error(err),
		)
	}

	if s.engine != nil {
		assessment, err := s.engine.Validate(ctx, fp.Hash, "")
		if err != nil {
			return nil, err
		}
		if !assessment.Valid {
			return nil, ErrDeviceBlocked
		}
	}

	entry := ParseURLContext(r.URL)
	if !entry.Valid() {
		return state, nil
	}

	sessionCtx := entry.SessionContext()

	sess, err := s.sessions.RecoverSession(ctx, entry.StoreID, fp.Hash, sessionCtx)
	if errors.Is(err, session.ErrNotFound) || errors.Is(err, session.ErrExpired) {
		sess, err = s.sessions.CreateSession(ctx, session.CreateParams{
			StoreID:     entry.StoreID,
			Context:     sessionCtx,
			Fingerprint: fp.Hash,
			IPAddress:   clientip.GetIP(r),
			UserAgent:   signals.UserAgent,
		})
	}
	if err != nil {
		if errors.Is(err, session.ErrFingerprintBlocked) {
			return nil, ErrDeviceBlocked
		}
		state.Err = err
		return state, nil
	}
	state.Session = sess

	s.restoreCredential(ctx, w, r, entry.StoreID, state)

	state.CanOrderAsGuest = s.GuestOrderPermission(ctx, entry.StoreID, fp.Hash)

	return state, nil
}

func (s *Service) recordVisit(ctx context.Context, fp fingerprint.Fingerprint) error {
	_, err := s.fingerprints.Get(ctx, fp.Hash)
	if err != nil {
		if !errors.Is(err, fingerprint.ErrNotFound) {
			return err
		}
		return s.fingerprints.Set(ctx, fingerprint.NewRecord(fp))
	}
	return s.fingerprints.IncrementUsage(ctx, fp.Hash)
}

func (s *Service) restoreCredential(ctx context.Context, w http.ResponseWriter, r *http.Request, storeID string, state *State) {
	if s.credentials == nil {
		return
	}

	cred, err := s.credentials.Load(ctx, r, storeID)
	if err != nil {
		if errors.Is(err, credential.ErrExpired) {
			_ = s.credentials.Clear(ctx, w, storeID)
		}
		return
	}

	// Rewriting the cookie picks up any background refresh that landed in
	// the fallback since the last visit, and slides the cookie lifetime.
	_ = s.credentials.Save(ctx, w, storeID, cred)

	state.Token = cred.Token
	state.Customer = &cred.User
	state.Authenticated = true
	state.Guest = false

	if state.Session != nil && !state.Session.Authenticated() {
		sess, err := s.sessions.AssociateCustomer(ctx, state.Session.ID, cred.User.UUID)
		if err != nil {
			s.log.WarnContext(ctx, "customer association failed",
				logger.SessionID(state.Session.ID.String()),
				logger.Error(err),
			)
		} else {
			state.Session = sess
		}
	}

	if s.refresher != nil {
		// The refresh fires long after this handler has returned, so the
		// ResponseWriter must not be captured. Stash writes the fallback
		// only; the cookie catches up on the next Bootstrap.
		s.refresher.Arm(cred, func(fresh *credential.Credential) {
			if err := s.credentials.Stash(context.Background(), storeID, fresh); err != nil {
				s.log.Warn("refreshed credential not persisted",
					logger.Error(err),
				)
			}
		})
	}
}

// GuestOrderPermission reports whether the device may order without an
// account: the store must allow quick registration and the device must pass
// risk validation. Failures close the door rather than opening it.
func (s *Service) GuestOrderPermission(ctx context.Context, storeID, fingerprintHash string) bool {
	if s.stores == nil {
		return false
	}

	settings, err := s.stores.StoreSettings(ctx, storeID)
	if err != nil {
		s.log.WarnContext(ctx, "store settings unavailable",
			logger.StoreID(storeID),
			logger.Error(err),
		)
		return false
	}
	if !settings.AllowQuickRegistration {
		return false
	}

	if s.engine != nil {
		assessment, err := s.engine.Validate(ctx, fingerprintHash, "")
		if err != nil || !assessment.Valid {
			return false
		}
	}

	return true
}

// Logout tears identity down. Remote invalidation is best-effort; local
// clearing happens unconditionally, whatever the platform said.
func (s *Service) Logout(ctx context.Context, w http.ResponseWriter, r *http.Request, storeID string) {
	defer func() {
		if s.refresher != nil {
			s.refresher.Disarm()
		}
		if s.credentials != nil {
			_ = s.credentials.Clear(ctx, w, storeID)
		}
		if sess, ok := session.FromContext(r.Context()); ok {
			_ = s.sessions.ExpireSession(ctx, sess.ID)
		}
	}()

	if s.auth == nil || s.credentials == nil {
		return
	}

	cred, err := s.credentials.Load(ctx, r, storeID)
	if err != nil {
		return
	}

	if err := s.auth.Logout(ctx, cred.Token); err != nil {
		s.log.WarnContext(ctx, "remote logout failed",
			logger.StoreID(storeID),
			logger.Error(err),
		)
	}
}
