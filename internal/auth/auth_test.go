package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"golang.org/x/oauth2"
)

func setupRefresher(t *testing.T) *Refresher {
	t.Helper()

	hc := &http.Client{}
	httpmock.ActivateNonDefault(hc)
	t.Cleanup(httpmock.DeactivateAndReset)

	cfg := NewConfig(Credentials{ClientID: "123", ClientSecret: "secret"})
	return NewRefresher(cfg, hc)
}

func TestRefresh(t *testing.T) {
	r := setupRefresher(t)

	httpmock.RegisterResponder("POST", TokenURL,
		func(req *http.Request) (*http.Response, error) {
			if err := req.ParseForm(); err != nil {
				t.Fatalf("ParseForm() error = %v", err)
			}
			if req.PostForm.Get("refresh_token") != "old-refresh" || req.PostForm.Get("client_id") != "123" {
				t.Errorf("unexpected form %v", req.PostForm)
			}
			return httpmock.NewJsonResponse(200, map[string]any{
				"access_token":  "new-access",
				"refresh_token": "new-refresh",
				"token_type":    "Bearer",
				"expires_in":    21600,
			})
		})

	tok, err := r.Refresh(context.Background(), "old-refresh")
	if err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if tok.AccessToken != "new-access" || tok.RefreshToken != "new-refresh" {
		t.Errorf("token = %+v", tok)
	}
	if time.Until(tok.Expiry) < 5*time.Hour {
		t.Errorf("Expiry = %v, want about 6h from now", tok.Expiry)
	}
}

func TestRefresh_KeepsRefreshToken(t *testing.T) {
	r := setupRefresher(t)

	httpmock.RegisterResponder("POST", TokenURL,
		httpmock.NewStringResponder(200, `{"access_token":"a","token_type":"Bearer","expires_in":3600}`))

	tok, err := r.Refresh(context.Background(), "keep-me")
	if err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if tok.RefreshToken != "keep-me" {
		t.Errorf("RefreshToken = %q, want keep-me", tok.RefreshToken)
	}
}

func TestRefresh_Rejected(t *testing.T) {
	r := setupRefresher(t)

	httpmock.RegisterResponder("POST", TokenURL,
		httpmock.NewStringResponder(400, `{"message":"Bad Request","errors":[{"field":"refresh_token","code":"invalid"}]}`))

	_, err := r.Refresh(context.Background(), "revoked")
	if !errors.Is(err, ErrInvalidGrant) {
		t.Errorf("Refresh() error = %v, want ErrInvalidGrant", err)
	}
}

func TestRefresh_ServerError(t *testing.T) {
	r := setupRefresher(t)

	httpmock.RegisterResponder("POST", TokenURL, httpmock.NewStringResponder(503, `unavailable`))

	_, err := r.Refresh(context.Background(), "r")
	if err == nil || errors.Is(err, ErrInvalidGrant) {
		t.Errorf("Refresh() error = %v, want transient error", err)
	}
}

func TestNeedsRefresh(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		expiry time.Time
		want   bool
	}{
		{"expired", now.Add(-time.Minute), true},
		{"inside buffer", now.Add(30 * time.Second), true},
		{"at buffer", now.Add(ExpiryBuffer), true},
		{"valid", now.Add(2 * time.Hour), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NeedsRefresh(tt.expiry, now); got != tt.want {
				t.Errorf("NeedsRefresh() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestExtractAthleteID(t *testing.T) {
	tok := (&oauth2.Token{AccessToken: "a"}).WithExtra(map[string]any{
		"athlete": map[string]any{"id": float64(4242)},
	})
	if got := ExtractAthleteID(tok); got != 4242 {
		t.Errorf("ExtractAthleteID() = %d, want 4242", got)
	}
	if got := ExtractAthleteID(&oauth2.Token{}); got != 0 {
		t.Errorf("ExtractAthleteID(no extra) = %d, want 0", got)
	}
}

func TestCallbackHandler(t *testing.T) {
	tests := []struct {
		name        string
		query       string
		wantCode    string
		wantPrivate bool
		wantStatus  int
	}{
		{"all activities", "?state=s1&code=abc&scope=read,activity:read_all", "abc", true, http.StatusOK},
		{"public activities", "?state=s1&code=abc&scope=read,activity:read", "abc", false, http.StatusOK},
		{"state mismatch", "?state=other&code=abc", "", false, http.StatusBadRequest},
		{"denied", "?state=s1&error=access_denied", "", false, http.StatusBadRequest},
		{"missing code", "?state=s1", "", false, http.StatusBadRequest},
		{"activity scope unticked", "?state=s1&code=abc&scope=read", "", false, http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			grants := make(chan grant, 1)
			errChan := make(chan error, 1)
			h := callbackHandler("s1", grants, errChan)

			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest("GET", "/callback"+tt.query, nil))

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			select {
			case g := <-grants:
				if tt.wantStatus != http.StatusOK || g.code != tt.wantCode || g.private != tt.wantPrivate {
					t.Errorf("got grant %+v, want code %q private %v", g, tt.wantCode, tt.wantPrivate)
				}
			case err := <-errChan:
				if tt.wantStatus == http.StatusOK {
					t.Errorf("unexpected error %v", err)
				}
				if tt.wantStatus == http.StatusForbidden && !errors.Is(err, ErrActivityScopeDenied) {
					t.Errorf("expected ErrActivityScopeDenied, got %v", err)
				}
			default:
				t.Error("handler sent nothing")
			}
		})
	}
}

func TestGrantedScopes(t *testing.T) {
	scopes, private, err := grantedScopes(" read , activity:read_all,")
	if err != nil {
		t.Fatalf("grantedScopes() error = %v", err)
	}
	if len(scopes) != 2 || scopes[0] != ScopeRead || scopes[1] != ScopeActivityReadAll || !private {
		t.Errorf("grantedScopes() = %v, %v", scopes, private)
	}

	if _, _, err := grantedScopes(""); !errors.Is(err, ErrActivityScopeDenied) {
		t.Errorf("grantedScopes(\"\") error = %v, want ErrActivityScopeDenied", err)
	}
}

func TestNewConfigRequestsAllActivities(t *testing.T) {
	cfg := NewConfig(Credentials{ClientID: "123", RedirectURL: "http://localhost:8089/callback"})

	u := cfg.AuthCodeURL("st")
	if !strings.Contains(u, "scope=read%2Cactivity%3Aread_all") {
		t.Errorf("scopes must be sent comma-joined, got %s", u)
	}
	if cfg.Endpoint.AuthStyle != oauth2.AuthStyleInParams {
		t.Error("Strava expects client credentials in the form body")
	}
}

func TestCallbackAddr(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"http://localhost:9000/callback", ":9000"},
		{"http://localhost/callback", DefaultCallbackAddr},
		{"", DefaultCallbackAddr},
	}
	for _, tt := range tests {
		if got := callbackAddr(tt.in); got != tt.want {
			t.Errorf("callbackAddr(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
