package strava

import (
	"errors"
	"fmt"
)

var (
	// ErrRateLimited is returned on a 429 or when the known request budget is spent
	ErrRateLimited = errors.New("strava: rate limited")

	// ErrUnauthorized is returned on a 401, the access token is invalid or expired
	ErrUnauthorized = errors.New("strava: unauthorized")
)

// APIError is any other non-200 response. It is transient for a single call.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("strava: API error %d: %s", e.StatusCode, e.Body)
}
