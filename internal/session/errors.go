package session

import "errors"

// Condition errors surfaced synchronously to direct callers. Lifecycle
// failures are never returned here; they become state transitions and
// emitted events.
var (
	ErrSessionNotFound  = errors.New("session not found")
	ErrNotConnected     = errors.New("session is not connected")
	ErrAlreadyConnected = errors.New("session is already connected")
	ErrSendFailed       = errors.New("platform send failed")
	ErrUnknownPlatform  = errors.New("unknown platform")
	ErrJobNotFound      = errors.New("bulk job not found")
)
