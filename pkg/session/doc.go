// Package session manages guest visits to a storefront: one session per
// store and device, opened in a table or delivery context, upgradeable from
// guest to authenticated exactly once.
//
// A session moves through a fixed lifecycle:
//
//	uninitialized -> pending_validation -> active_guest -> active_authenticated -> terminated
//
// Invalid transitions are rejected, and authentication never downgrades; a
// session that stops being valid terminates and a new one is created.
//
// The Manager gates creation on device risk, revalidates active sessions
// against the platform backend on a heartbeat, and batches activity updates
// through a background worker:
//
//	manager := session.NewManager(
//		session.WithStore(session.NewRedisStore(client)),
//		session.WithBackend(backend),
//		session.WithFingerprintValidator(engine),
//	)
//	defer manager.Close()
//
//	sess, err := manager.CreateSession(ctx, session.CreateParams{
//		StoreID:     storeID,
//		Context:     session.Context{Type: session.ContextTable, TableID: tableID},
//		Fingerprint: fp.Hash,
//	})
//
// Stores enforce one active session per (store, fingerprint) pair: creating
// a session displaces the previous one for the same device.
package session
