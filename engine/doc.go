// Package engine coordinates turn execution: it serializes work per session,
// admits new sessions through the quota limiter, resolves phase-specific
// partner handles, bounds the generation with a timeout, delegates parsing,
// and commits the result atomically through the session store.
//
// A second ExecuteTurn for a session already executing fails fast with
// core.ErrConflict rather than queueing, so tail latency stays bounded and
// turn indices stay gap-free. Nothing is persisted for a turn that times out
// or parses empty.
package engine
