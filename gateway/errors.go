package gateway

import (
	"fmt"
	"net/http"

	autherrors "github.com/droniapp/go-auth-client/internal/errors"
)

// ErrorResponse is the structured error body the backend returns.
type ErrorResponse struct {
	Message string `json:"message"`
	Status  int    `json:"status"`
}

// APIError is the single error type surfaced to callers of the gateway, so
// the UI layer can render every failure the same way.
type APIError struct {
	Status   int
	Message  string
	Response *ErrorResponse
	cause    error
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.Status, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.cause
}

// IsUnauthorized is true for terminal 401s, which should not be retried by the
// caller.
func (e *APIError) IsUnauthorized() bool {
	return e.Status == http.StatusUnauthorized
}

func newTransportError(err error) *APIError {
	return &APIError{
		Status:  http.StatusInternalServerError,
		Message: err.Error(),
		cause:   err,
	}
}

func newStatusError(status int, body *ErrorResponse) *APIError {
	message := http.StatusText(status)
	if body != nil && body.Message != "" {
		message = body.Message
	}
	if message == "" {
		message = "An unknown error occurred"
	}
	return &APIError{
		Status:   status,
		Message:  message,
		Response: body,
	}
}

// newSessionExpiredError is what every caller waiting on a failed reissue
// receives. It matches both ErrSessionExpired and the reissue cause.
func newSessionExpiredError(cause error) *APIError {
	if cause == nil {
		cause = autherrors.ErrReissueFailed
	}
	return &APIError{
		Status:  http.StatusUnauthorized,
		Message: "Session expired. Please log in again.",
		cause:   fmt.Errorf("%w: %w", autherrors.ErrSessionExpired, cause),
	}
}
