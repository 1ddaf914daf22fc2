// Package server exposes the verification gate over HTTP: REST endpoints
// for health, profiles, accounts and attempt history, plus a websocket
// endpoint that carries the live media ingress in one direction and the
// orchestrator's event stream in the other.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/trigate/trigate/pkg/account"
	"github.com/trigate/trigate/pkg/detect"
	"github.com/trigate/trigate/pkg/gate"
	"github.com/trigate/trigate/pkg/profile"
	"github.com/trigate/trigate/pkg/verify"
)

// Config parameterizes a Server.
type Config struct {
	// Addr is the listen address, e.g. ":8080".
	Addr string

	// Verify is the scoring services client.
	Verify *verify.Client

	// Verifier overrides the default adapter over Verify. Used by tests.
	Verifier gate.Verifier

	// Profiles is the enrollment directory.
	Profiles *profile.Directory

	// Accounts is the credential and history store. Optional; account
	// endpoints return 503 when absent.
	Accounts *account.Store

	// Archiver persists finished attempts. Optional.
	Archiver *gate.Archiver

	// Model is the face-presence detector model. Nil runs flows degraded.
	Model detect.Model

	// DefaultPolicy applies when a start message carries no policy.
	// The zero value is AutoAdvance.
	DefaultPolicy gate.AdvancePolicy

	// VoiceDuration and LipsyncDuration bound the capture steps.
	// Zero selects the gate defaults.
	VoiceDuration   time.Duration
	LipsyncDuration time.Duration

	// Logger defaults to slog.Default.
	Logger *slog.Logger
}

// Server hosts the REST and websocket API.
type Server struct {
	cfg      Config
	log      *slog.Logger
	verifier gate.Verifier
	httpSrv  *http.Server
	upgrader websocket.Upgrader
}

// New builds a Server. Call Serve or ListenAndServe to start it.
func New(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	s := &Server{
		cfg:      cfg,
		log:      cfg.Logger,
		verifier: cfg.Verifier,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 << 10,
			WriteBufferSize: 64 << 10,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
	if s.verifier == nil && cfg.Verify != nil {
		s.verifier = verify.NewAdapter(cfg.Verify)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/profiles", s.handleProfiles)
	mux.HandleFunc("POST /api/accounts", s.handleCreateAccount)
	mux.HandleFunc("POST /api/login", s.handleLogin)
	mux.HandleFunc("POST /api/logout", s.handleLogout)
	mux.HandleFunc("GET /api/session", s.handleSession)
	mux.HandleFunc("GET /api/attempts", s.handleAttempts)
	mux.HandleFunc("GET /ws/authenticate", s.handleAuthenticate)

	s.httpSrv = &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.httpSrv.Handler
}

// ListenAndServe binds the configured address and serves until Shutdown.
func (s *Server) ListenAndServe() error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve serves on the listener until Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	s.log.Info("server listening", "addr", ln.Addr().String())
	err := s.httpSrv.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests and stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}
