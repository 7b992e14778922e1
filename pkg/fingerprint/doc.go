// Package fingerprint derives stable device identities from browser signals
// and persists them with the usage and suspicion counters the risk engine
// reads.
//
// Generation is deterministic: the same DeviceSignals always hash to the
// same 32-character hex identifier. Degraded environments (no canvas, no
// WebGL, missing navigator fields) still produce a usable fingerprint with
// a reduced confidence score; generation never fails.
//
// Records live in a Store keyed by hash with idle-TTL semantics: a record
// idle for longer than the TTL reads as absent and is evicted lazily on Get,
// with a periodic sweep catching the rest. The memory store additionally
// purges its oldest half under capacity pressure instead of failing writes.
//
// Similarity scoring and change detection live here too, as the primitives
// the risk engine builds on.
package fingerprint
