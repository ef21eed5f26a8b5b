package errors

import (
	"errors"
	"fmt"
)

// Error taxonomy shared by the callback listener, the token verifier and the upstream relay.
var (
	// Authorization flow errors
	ErrTimeout             = errors.New("timed out waiting for authorization callback")
	ErrAuthorizationDenied = errors.New("authorization denied")
	ErrStateMismatch       = errors.New("authorization state mismatch")

	// Token errors
	ErrTokenInvalid = errors.New("token invalid")

	// Upstream authorization server errors
	ErrUpstreamUnavailable = errors.New("authorization server unavailable")

	// Configuration errors
	ErrMisconfigured = errors.New("resource server misconfigured")

	// Credential storage errors. A corrupt record is replaced by the next registration.
	ErrCorruptCredentials = errors.New("stored client credentials are corrupt")

	// General errors
	ErrNotFound       = errors.New("not found")
	ErrInvalidRequest = errors.New("invalid request")
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
