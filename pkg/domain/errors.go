package domain

import "errors"

// ErrSessionNotFound is returned when a session ID cannot be found in the store.
var ErrSessionNotFound = errors.New("session not found")

// ErrTurnPending is returned when text is submitted while a bot turn is still being computed.
// The submission is rejected, not queued.
var ErrTurnPending = errors.New("a response is still pending")

// ErrNoEngine is returned when the engine accessor is used outside an initialized context.
// It indicates a wiring bug in the caller rather than a user error.
var ErrNoEngine = errors.New("feelflow engine not found in context")
