package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"
)

// ExpiryBuffer is how long before the stored expiry a token is already treated as expired
const ExpiryBuffer = 60 * time.Second

// ErrInvalidGrant means the refresh token was rejected and the athlete has to reconnect
var ErrInvalidGrant = errors.New("auth: refresh token rejected")

// Refresher exchanges stored refresh tokens for new access tokens
type Refresher struct {
	config     *oauth2.Config
	httpClient *http.Client
}

// NewRefresher creates a Refresher. httpClient may be nil to use the default client.
func NewRefresher(cfg *oauth2.Config, httpClient *http.Client) *Refresher {
	return &Refresher{config: cfg, httpClient: httpClient}
}

// Refresh exchanges refreshToken for a new token.
// Rejections by the token endpoint are reported as ErrInvalidGrant.
func (r *Refresher) Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	if r.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, r.httpClient)
	}

	// an empty access token forces the source to refresh
	src := r.config.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) && re.Response != nil {
			switch re.Response.StatusCode {
			case http.StatusBadRequest, http.StatusUnauthorized:
				return nil, fmt.Errorf("%w: %v", ErrInvalidGrant, err)
			}
		}
		return nil, fmt.Errorf("refreshing token: %w", err)
	}

	// Strava rotates refresh tokens but may omit an unchanged one
	if tok.RefreshToken == "" {
		tok.RefreshToken = refreshToken
	}
	return tok, nil
}

// NeedsRefresh checks if a token expiring at expiry must be refreshed before use
func NeedsRefresh(expiry, now time.Time) bool {
	return expiry.Sub(now) <= ExpiryBuffer
}
