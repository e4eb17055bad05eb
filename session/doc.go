// Package session provides the persistence implementations of
// core.SessionStore: a volatile in-memory store for tests and ephemeral
// deployments, and a SQLite-backed store for durable single-node
// deployments. Both make CommitTurn an indivisible operation conditional on
// the base turn count, which is the correctness backstop against writers
// that bypass the engine's per-session serialization.
//
// The SQLite store also implements core.QuotaStore so session documents and
// quota counters share one transactional database.
package session
