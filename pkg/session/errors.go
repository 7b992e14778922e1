package session

import "errors"

var (
	// ErrNotFound is returned when no session exists for the given key.
	ErrNotFound = errors.New("session.not_found")

	// ErrExpired is returned when the session exists but its lifetime ran out.
	ErrExpired = errors.New("session.expired")

	// ErrInvalidContext is returned when the ordering context is malformed,
	// e.g. a table context without a table identifier.
	ErrInvalidContext = errors.New("session.invalid_context")

	// ErrInvalidTransition is returned when a lifecycle transition is not
	// allowed from the session's current state.
	ErrInvalidTransition = errors.New("session.invalid_transition")

	// ErrFingerprintRequired is returned when a session is created without a
	// device fingerprint.
	ErrFingerprintRequired = errors.New("session.fingerprint_required")

	// ErrFingerprintBlocked is returned when the device fingerprint failed
	// risk validation.
	ErrFingerprintBlocked = errors.New("session.fingerprint_blocked")

	// ErrStoreRequired is returned when a store-scoped operation is called
	// without a store identifier.
	ErrStoreRequired = errors.New("session.store_id_required")

	// ErrValidationFailed is returned when the backend rejects the session.
	ErrValidationFailed = errors.New("session.validation_failed")
)
