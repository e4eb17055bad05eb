// Package partner constructs and caches the scene-partner handles that turn
// a generic model.Model into a phase-specific improv player. A Partner is
// built from an instruction template selected by phase (supportive warmup
// vs. fallible challenge) plus an optional coaching addendum; construction
// parses the template, so handles are memoized in a TTL cache shared across
// sessions. Handles hold no session state.
package partner
