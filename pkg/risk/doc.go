// Package risk scores and classifies device fingerprints using the history
// recorded in a fingerprint store.
//
// The engine is read-only: it never mutates the store, so callers stay in
// charge of when a block decision actually takes effect. Typical usage pairs
// Validate on every request with ShouldBlock/Score on the slow path:
//
//	engine := risk.New(store, risk.DefaultConfig())
//	assessment, err := engine.Validate(ctx, hash, previousHash)
//	if err != nil {
//		return err
//	}
//	if !assessment.Valid {
//		return errDeviceRejected
//	}
//
// All thresholds and weights live in Config so deployments can tune the
// engine without code changes.
package risk
