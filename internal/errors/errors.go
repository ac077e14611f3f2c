package errors

import (
	"errors"
	"fmt"
)

// Common error types for the session client
var (
	// Token errors
	ErrEmptyToken         = errors.New("empty token")
	ErrNoAccessToken      = errors.New("no access token available for reissue")
	ErrMissingAccessToken = errors.New("reissue response does not contain accessToken")

	// Session errors
	ErrNotAuthenticated = errors.New("not authenticated")
	ErrSessionExpired   = errors.New("session expired")
	ErrReissueFailed    = errors.New("failed to reissue token")
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
