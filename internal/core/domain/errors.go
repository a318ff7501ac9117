package domain

import "errors"

var (
	// ErrUnauthorized is returned when the directory rejects the session token.
	ErrUnauthorized = errors.New("directory rejected credentials")
	// ErrSessionInvalid is returned by every operation after the session was invalidated.
	ErrSessionInvalid = errors.New("session invalidated")
	ErrProbeInFlight  = errors.New("probe already in flight")
	ErrTaskFailed     = errors.New("probe task failed")
	ErrTaskTimeout    = errors.New("probe task timed out")
	ErrTaskCancelled  = errors.New("probe task cancelled")
	ErrNotFound       = errors.New("not found")
	// ErrUpstream marks a directory request that failed in transport or with a non-2xx answer.
	ErrUpstream = errors.New("directory request failed")
	// ErrProtocol marks a response the console could not interpret.
	ErrProtocol = errors.New("malformed directory response")
)
