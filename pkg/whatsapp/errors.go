package whatsapp

import "errors"

var (
	// ErrTokenInvalid is returned when a magic link token fails to parse or
	// carries the wrong subject.
	ErrTokenInvalid = errors.New("whatsapp.token_invalid")

	// ErrTokenUsed is returned when a magic link token was already consumed.
	ErrTokenUsed = errors.New("whatsapp.token_used")

	// ErrTokenExpired is returned when a magic link token's 15 minutes ran
	// out.
	ErrTokenExpired = errors.New("whatsapp.token_expired")

	// ErrFingerprintMismatch is returned, under the reject policy, when the
	// verifying device differs from the requesting device.
	ErrFingerprintMismatch = errors.New("whatsapp.fingerprint_mismatch")

	// ErrRateLimited is returned when the phone or device hit its request
	// quota.
	ErrRateLimited = errors.New("whatsapp.rate_limited")

	// ErrSenderRequired is returned when the magic link service is built
	// without a delivery channel.
	ErrSenderRequired = errors.New("whatsapp.sender_required")

	// ErrBackendRequired is returned when the code service is built without
	// a backend.
	ErrBackendRequired = errors.New("whatsapp.backend_required")

	// ErrInvalidCode is returned when the submitted OTP has the wrong shape.
	ErrInvalidCode = errors.New("whatsapp.invalid_code")
)
