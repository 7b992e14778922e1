package fingerprint

import (
	"encoding/json"
	"net/http"
)

// SignalsHeader carries client-collected device signals as JSON. Clients
// that cannot collect signals simply omit it.
const SignalsHeader = "X-Device-Signals"

// Middleware derives the request's fingerprint and stores its hash in the
// context. Client-collected signals from the signals header take precedence;
// otherwise the fingerprint falls back to request-derived signals.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var fp Fingerprint

		if raw := r.Header.Get(SignalsHeader); raw != "" {
			var signals DeviceSignals
			if err := json.Unmarshal([]byte(raw), &signals); err == nil {
				fp = Generate(signals)
			} else {
				fp = FromRequest(r)
			}
		} else {
			fp = FromRequest(r)
		}

		ctx := WithFingerprint(r.Context(), fp.Hash)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
