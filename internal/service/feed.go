package service

import (
	"context"
	"time"

	"golang.org/x/oauth2"

	"veloskill/internal/strava"
)

// Feed is the activity source a sync pulls from. *strava.Client satisfies it.
type Feed interface {
	ListActivities(ctx context.Context, token string, after time.Time, page, perPage int) ([]strava.Activity, error)
	GetActivityDetail(ctx context.Context, token string, activityID int64) (*strava.ActivityDetail, error)
	GetActivityStreams(ctx context.Context, token string, activityID int64) (*strava.Streams, error)
}

// TokenRefresher exchanges a refresh token for fresh credentials. *auth.Refresher satisfies it.
type TokenRefresher interface {
	Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error)
}
