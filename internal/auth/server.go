package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/oauth2"
)

const (
	// DefaultCallbackAddr is used when the redirect URL carries no port
	DefaultCallbackAddr = ":8089"
	// AuthTimeout is how long to wait for the athlete to complete auth
	AuthTimeout = 5 * time.Minute
)

const successPage = `<!DOCTYPE html>
<html>
<head><title>Connected</title></head>
<body style="font-family: system-ui; display: flex; justify-content: center; align-items: center; height: 100vh; margin: 0;">
<div style="text-align: center;">
<h1 style="color: #FC4C02;">Connected!</h1>
<p>You can close this window and return to the terminal.</p>
</div>
</body>
</html>`

// Authenticate runs the connect flow with a local callback server.
// Instructions for the athlete are written to out.
func Authenticate(ctx context.Context, cfg *oauth2.Config, out io.Writer) (*AuthResult, error) {
	// Generate state for CSRF protection
	state, err := generateState()
	if err != nil {
		return nil, fmt.Errorf("generating state: %w", err)
	}

	grants := make(chan grant, 1)
	errChan := make(chan error, 1)

	mux := http.NewServeMux()
	mux.Handle("/callback", callbackHandler(state, grants, errChan))

	listener, err := net.Listen("tcp", callbackAddr(cfg.RedirectURL))
	if err != nil {
		return nil, fmt.Errorf("starting callback server: %w", err)
	}

	server := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	defer shutdownServer(server)

	go func() {
		if err := server.Serve(listener); !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("server error: %w", err)
		}
	}()

	authURL := cfg.AuthCodeURL(state, oauth2.AccessTypeOffline)
	fmt.Fprintf(out, "\nTo connect your Strava account, open this URL in your browser:\n\n  %s\n\nWaiting for authorization...\n", authURL)

	var g grant
	select {
	case g = <-grants:
	case err := <-errChan:
		return nil, err
	case <-time.After(AuthTimeout):
		return nil, fmt.Errorf("authentication timeout after %v", AuthTimeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	token, err := cfg.Exchange(ctx, g.code)
	if err != nil {
		return nil, fmt.Errorf("exchanging code for token: %w", err)
	}

	return &AuthResult{
		Token:     token,
		AthleteID: ExtractAthleteID(token),
		Scopes:    g.scopes,
		Private:   g.private,
	}, nil
}

// grant is what a successful redirect carries
type grant struct {
	code    string
	scopes  []string
	private bool
}

// callbackHandler validates the redirect and forwards the grant or the failure
func callbackHandler(state string, grants chan<- grant, errChan chan<- error) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		if q.Get("state") != state {
			send(errChan, fmt.Errorf("state mismatch - possible CSRF attack"))
			http.Error(w, "State mismatch", http.StatusBadRequest)
			return
		}
		if errMsg := q.Get("error"); errMsg != "" {
			send(errChan, fmt.Errorf("auth error: %s", errMsg))
			http.Error(w, "Authorization denied", http.StatusBadRequest)
			return
		}
		code := q.Get("code")
		if code == "" {
			send(errChan, fmt.Errorf("no code in callback"))
			http.Error(w, "No authorization code", http.StatusBadRequest)
			return
		}
		scopes, private, err := grantedScopes(q.Get("scope"))
		if err != nil {
			send(errChan, err)
			http.Error(w, "Activity access is required to sync rides, please reconnect and keep it ticked", http.StatusForbidden)
			return
		}

		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, successPage)
		send(grants, grant{code: code, scopes: scopes, private: private})
	})
}

// send never blocks, a second callback is dropped
func send[T any](ch chan<- T, v T) {
	select {
	case ch <- v:
	default:
	}
}

// callbackAddr derives the listen address from the redirect URL's port
func callbackAddr(redirectURL string) string {
	u, err := url.Parse(redirectURL)
	if err != nil || u.Port() == "" {
		return DefaultCallbackAddr
	}
	return ":" + u.Port()
}

// generateState creates a random state string for CSRF protection
func generateState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

func shutdownServer(server *http.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	server.Shutdown(ctx)
}
