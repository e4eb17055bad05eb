// Package core defines the domain model of the improv practice service:
// sessions, turns, parsed partner replies, the phase progression derived
// from turn count, per-user quota counters, the error taxonomy surfaced to
// callers, and the store contracts (SessionStore, QuotaStore) that
// persistence implementations must satisfy.
//
// Types in this package are plain data plus small derivation helpers; all
// mutation of persisted state goes through the store interfaces so that
// atomicity lives in exactly one place.
package core
