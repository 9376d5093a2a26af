package apiclient

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrNoCredentials is returned when a token refresh is required but
	// no refresh token is present. No network call is made in that case.
	ErrNoCredentials = errors.New("no refresh credentials")

	// ErrRefreshFailed is the synthetic failure delivered to requests
	// that were queued behind a refresh that did not succeed. The
	// request that initiated the refresh receives the underlying cause
	// instead.
	ErrRefreshFailed = errors.New("token refresh failed")
)

// APIError is a non-authorization error response from the API, carrying
// the server-provided message when one was present and the generic
// status text otherwise.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status %d: %s", e.Status, e.Message)
}
