package errors

import (
	"errors"
	"fmt"
)

// Common error types for the flow orchestrator
var (
	// Session errors
	ErrSessionNotFound = errors.New("session not found")
	ErrEmptyFlowID     = errors.New("flow id cannot be empty")

	// Flow errors
	ErrCallbackPending  = errors.New("authorization code not received yet")
	ErrCallbackTimeout  = errors.New("timed out waiting for authorization code")
	ErrInvalidState     = errors.New("step not allowed in current state")
	ErrInvalidPlatform  = errors.New("invalid platform")
	ErrMissingRefresh   = errors.New("no refresh token stored for flow")
	ErrRateLimited      = errors.New("too many requests for flow")
	ErrUnknownDiscovery = errors.New("discovery document unavailable")

	// Ceremony errors
	ErrCeremonyCancelled = errors.New("ceremony cancelled")
	ErrUnknownCredential = errors.New("credential not known to authenticator")

	// General errors
	ErrInvalidRequest = errors.New("invalid request")
	ErrInternal       = errors.New("internal error")
)

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
