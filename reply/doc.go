// Package reply extracts the structured sections of one raw partner
// generation. The model is asked to label its output with PARTNER, ROOM and
// COACH sections; this package recovers them even when the model complies
// only loosely.
//
// The scanner is a last resort, not a robust grammar: a label only counts
// when it starts a trimmed line and is followed by a colon, which keeps a
// stray "partner" mid-dialogue from opening a section. When no PARTNER label
// is found at all, the entire raw text becomes the partner line so a
// committed turn never carries an empty reply.
package reply
