package fingerprint

import (
	"context"
)

type contextKey struct{}

// WithFingerprint stores the fingerprint hash in the context.
func WithFingerprint(ctx context.Context, hash string) context.Context {
	return context.WithValue(ctx, contextKey{}, hash)
}

// FromContext returns the fingerprint hash stored in the context, or "".
func FromContext(ctx context.Context) string {
	hash, _ := ctx.Value(contextKey{}).(string)
	return hash
}
