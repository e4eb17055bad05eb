// Package quota admits or denies new practice sessions per user. Two
// independent caps apply at session creation: sessions started in the
// current UTC day and concurrently active sessions. Check-then-reserve is a
// single atomic step in the backing QuotaStore so two racing creations
// cannot both pass against stale counters.
package quota
