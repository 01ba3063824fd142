// Package server is the reference HTTP API for session state. It stores
// snapshots and event logs in package store and fans accepted writes out
// to websocket followers through a broadcast.Hub.
//
// Routes:
//
//	GET  /api/sessions                      list stored sessions
//	GET  /api/sessions/{sessionID}/state    latest snapshot, 404 if none
//	POST /api/sessions/{sessionID}/state    upsert {stateSnapshot}
//	GET  /api/sessions/{sessionID}/events   stored event log
//	GET  /api/sessions/{sessionID}/rebuild  state refolded from the log
//	GET  /ws?session=ID                     websocket broadcasts
//	GET  /healthz                           liveness
//
// There is no authentication.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/actsim/internal/broadcast"
	"github.com/roach88/actsim/internal/store"
)

// maxBodyBytes caps a POSTed snapshot.
const maxBodyBytes = 1 << 20

// Options configures a Server.
type Options struct {
	ReadHeaderTimeout time.Duration
	ShutdownTimeout   time.Duration
	Logger            *slog.Logger
}

// Server serves the session state API.
type Server struct {
	store  *store.Store
	hub    *broadcast.Hub
	mux    *http.ServeMux
	opts   Options
	logger *slog.Logger

	// saveMu serializes the read-merge-write of pushed snapshots.
	saveMu sync.Mutex
}

// New creates a Server backed by st.
func New(st *store.Store, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.ReadHeaderTimeout <= 0 {
		opts.ReadHeaderTimeout = 10 * time.Second
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 10 * time.Second
	}

	s := &Server{
		store:  st,
		hub:    broadcast.NewHub(opts.Logger),
		mux:    http.NewServeMux(),
		opts:   opts,
		logger: opts.Logger,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	s.mux.HandleFunc("GET "+broadcast.Path, s.hub.ServeWS)
	s.mux.HandleFunc("GET /api/sessions", s.handleListSessions)
	s.mux.HandleFunc("GET /api/sessions/{sessionID}/state", s.handleGetState)
	s.mux.HandleFunc("POST /api/sessions/{sessionID}/state", s.handlePostState)
	s.mux.HandleFunc("GET /api/sessions/{sessionID}/events", s.handleGetEvents)
	s.mux.HandleFunc("GET /api/sessions/{sessionID}/rebuild", s.handleRebuild)
}

// Handler returns the HTTP handler. The websocket route only works while
// the hub is running, see Serve and RunHub.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Hub returns the broadcast hub fed by accepted writes.
func (s *Server) Hub() *broadcast.Hub {
	return s.hub
}

// RunHub runs the broadcast hub until ctx is cancelled. Serve calls it;
// tests that mount Handler on their own listener call it directly.
func (s *Server) RunHub(ctx context.Context) {
	s.hub.Run(ctx)
}

// ListenAndServe listens on addr and serves until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled, then shuts down gracefully.
// It returns nil after a clean shutdown.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	httpServer := &http.Server{
		Handler:           s.mux,
		ReadHeaderTimeout: s.opts.ReadHeaderTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.hub.Run(gctx)
		return nil
	})

	g.Go(func() error {
		s.logger.Info("server listening", "addr", ln.Addr().String())
		if err := httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve http: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.ShutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		s.logger.Info("server stopped")
		return nil
	})

	return g.Wait()
}
