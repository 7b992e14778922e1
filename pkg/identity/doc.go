// Package identity is the facade over the guest identity pipeline: it wires
// device fingerprinting, risk checks, contextual sessions, and stored
// credentials into the operations a storefront actually calls.
//
// A visit starts with Bootstrap, which fingerprints the device, recovers or
// creates a session for the entry URL's context, and restores any stored
// credential. The entry URL contract is shared with QR codes printed on
// tables: store, table, and isDelivery query parameters, stripped from the
// address after parsing.
//
//	state, err := svc.Bootstrap(ctx, w, r, signals)
//	if errors.Is(err, identity.ErrDeviceBlocked) {
//		// refuse service
//	}
//
// Everything downstream of the fingerprint degrades rather than fails: a
// missing credential leaves the state guest, a backend hiccup is reported
// in State.Err, and only a blocked device aborts the visit.
package identity
