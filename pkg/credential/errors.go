package credential

import "errors"

var (
	// ErrNotFound is returned when no credential is stored.
	ErrNotFound = errors.New("credential.not_found")

	// ErrExpired is returned when the stored credential's lifetime ran out.
	ErrExpired = errors.New("credential.expired")

	// ErrEmptyToken is returned when a credential is issued without a token.
	ErrEmptyToken = errors.New("credential.empty_token")

	// ErrRefresherRequired is returned when a refresher is armed without a
	// refresh function.
	ErrRefresherRequired = errors.New("credential.refresh_func_required")

	// ErrNoFallback is returned by Stash when the store has no fallback
	// persistence to write to.
	ErrNoFallback = errors.New("credential.no_fallback")
)
