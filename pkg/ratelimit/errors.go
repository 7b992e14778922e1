package ratelimit

import "errors"

var (
	ErrInvalidLimit  = errors.New("ratelimit.invalid_limit")
	ErrInvalidWindow = errors.New("ratelimit.invalid_window")
	ErrKeyRequired   = errors.New("ratelimit.key_required")
	ErrStoreRequired = errors.New("ratelimit.store_required")
)
