package core

import "github.com/google/uuid"

// NewID returns a UUID string used for session identifiers.
func NewID() string { return uuid.NewString() }
