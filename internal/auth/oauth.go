package auth

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/oauth2"
)

// Strava endpoints. The token endpoint wants the client credentials in the form body.
const (
	AuthURL  = "https://www.strava.com/oauth/authorize"
	TokenURL = "https://www.strava.com/oauth/token"
)

// Scopes the athlete is asked for
const (
	ScopeRead            = "read"
	ScopeActivityRead    = "activity:read"
	ScopeActivityReadAll = "activity:read_all"
)

// ErrActivityScopeDenied is returned when the athlete unticked activity access on the consent page
var ErrActivityScopeDenied = errors.New("activity access was not granted")

// Credentials identify the registered Strava application
type Credentials struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string // local callback, e.g. http://localhost:8089/callback
}

// NewConfig builds the oauth2 config for the connect and refresh flows
func NewConfig(c Credentials) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		RedirectURL:  c.RedirectURL,
		Endpoint: oauth2.Endpoint{
			AuthURL:   AuthURL,
			TokenURL:  TokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
		// One comma-joined value; Strava does not split on spaces
		Scopes: []string{ScopeRead + "," + ScopeActivityReadAll},
	}
}

// AuthResult is the outcome of a completed connect flow
type AuthResult struct {
	Token     *oauth2.Token
	AthleteID int64
	Scopes    []string // as granted on the consent page
	Private   bool     // private activities are readable
}

// grantedScopes parses the scope parameter of the callback.
// Either activity scope is enough to sync; only read_all includes private rides.
func grantedScopes(param string) (scopes []string, private bool, err error) {
	var activities bool
	for _, s := range strings.Split(param, ",") {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		scopes = append(scopes, s)
		switch s {
		case ScopeActivityReadAll:
			activities, private = true, true
		case ScopeActivityRead:
			activities = true
		}
	}
	if !activities {
		return scopes, false, fmt.Errorf("%w (granted %q)", ErrActivityScopeDenied, param)
	}
	return scopes, private, nil
}

// ExtractAthleteID reads the athlete id Strava embeds in the token response, 0 when absent
func ExtractAthleteID(token *oauth2.Token) int64 {
	athlete, _ := token.Extra("athlete").(map[string]any)
	switch id := athlete["id"].(type) {
	case float64:
		return int64(id)
	case int64:
		return id
	}
	return 0
}
