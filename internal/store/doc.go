// Package store archives completed validation runs in SQLite.
//
// The archive is append-only from the engine's point of view: one row
// per run plus one row per firing record, keyed by (run token, seq).
// Writes are transactional per run: a run is archived completely or
// not at all, mirroring the engine's no-partial-report contract.
// Re-archiving a run token is a no-op, so replaying a CLI invocation
// against the same database is safe.
package store
