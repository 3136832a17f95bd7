// Package api exposes the progression services as JSON over HTTP.
package api

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"veloskill/internal/service"
	"veloskill/internal/store"
)

// Services are the entry points the API serves
type Services struct {
	Sync        *service.SyncService
	Progression *service.ProgressionService
	Challenges  *service.ChallengeService
	Masteries   *service.MasteryService
	Dashboard   *service.DashboardService
}

// Server is the HTTP API server
type Server struct {
	http  *http.Server
	store *store.Store
	svc   Services
	log   logrus.FieldLogger
}

// NewServer creates a server listening on addr
func NewServer(addr string, st *store.Store, svc Services, log logrus.FieldLogger) *Server {
	s := &Server{store: st, svc: svc, log: log}
	s.http = &http.Server{
		Addr:         addr,
		Handler:      s.routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 5 * time.Minute, // interactive syncs can be long
		IdleTimeout:  120 * time.Second,
	}
	return s
}

// Handler returns the routed handler with middleware
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// Start begins listening for HTTP requests (non-blocking)
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.http.Addr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	go func() {
		if err := s.http.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.log.WithError(err).Error("HTTP server stopped")
		}
	}()
	s.log.WithField("addr", ln.Addr().String()).Info("HTTP server listening")
	return nil
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("GET /v1/users/{user}/xp", s.handleGetXP)
	mux.HandleFunc("POST /v1/users/{user}/xp/recompute", s.handleRecomputeXP)
	mux.HandleFunc("GET /v1/users/{user}/progress", s.handleGetProgress)
	mux.HandleFunc("POST /v1/users/{user}/sync", s.handleRunSync)
	mux.HandleFunc("GET /v1/users/{user}/sync", s.handleLastSync)
	mux.HandleFunc("GET /v1/users/{user}/challenges", s.handleGetChallenges)
	mux.HandleFunc("POST /v1/users/{user}/challenges/refresh", s.handleRefreshChallenges)
	mux.HandleFunc("GET /v1/users/{user}/badges", s.handleGetBadges)
	mux.HandleFunc("GET /v1/users/{user}/masteries", s.handleGetMasteries)
	mux.HandleFunc("POST /v1/users/{user}/masteries/refresh", s.handleRefreshMasteries)
	mux.HandleFunc("POST /v1/users/{user}/dashboard/refresh", s.handleRefreshDashboard)

	return chain(mux, recoveryMiddleware(s.log), loggingMiddleware(s.log))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		writeJSON(w, s.log, http.StatusServiceUnavailable, map[string]string{"status": "error", "detail": "db unreachable"})
		return
	}
	writeJSON(w, s.log, http.StatusOK, map[string]string{"status": "ok"})
}

func session(r *http.Request) service.Session {
	return service.Session{UserID: r.PathValue("user")}
}
