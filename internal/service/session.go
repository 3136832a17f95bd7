package service

import (
	"context"
	"errors"
	"time"

	"veloskill/internal/strava"
)

// Session identifies the user an entry point acts for.
// It is passed explicitly on every call; services keep no current-user state.
type Session struct {
	UserID string
}

var (
	// ErrNoUser is returned when a session carries no user
	ErrNoUser = errors.New("session has no user")

	// ErrNotConnected is returned when the user never connected a feed
	ErrNotConnected = errors.New("no connected Strava account")

	// ErrReconnectRequired means the stored credentials can't be used or refreshed
	ErrReconnectRequired = errors.New("reconnect required")
)

func (s Session) validate() error {
	if s.UserID == "" {
		return ErrNoUser
	}
	return nil
}

// errorKind names the failure category shown to the user
func errorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, strava.ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrReconnectRequired), errors.Is(err, strava.ErrUnauthorized):
		return "reconnect_required"
	case errors.Is(err, ErrNotConnected):
		return "not_connected"
	default:
		var apiErr *strava.APIError
		if errors.As(err, &apiErr) {
			return "upstream"
		}
		return "internal"
	}
}

// ErrorKind exposes the failure category of err for transports
func ErrorKind(err error) string {
	return errorKind(err)
}

// sleepCtx waits for d or until ctx is done
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
