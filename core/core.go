package core

import "github.com/google/uuid"

// NewID generates a new unique identifier for messages, events and runs.
func NewID() string { return uuid.NewString() }
