// Package server constructs and starts the rtchat HTTP service with helpers
// that apply sensible production defaults.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/Tyrowin/rtchat/internal/chat"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Server owns the room manager and routes WebSocket requests to sessions.
type Server struct {
	cfg      *Config
	log      *zap.Logger
	rooms    *chat.Manager
	upgrader websocket.Upgrader
	origins  *originPolicy
	sessions *tracker

	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	httpServer *http.Server
}

// New creates a Server with a fresh room manager. opts are passed to the
// manager, which is mostly useful in tests.
func New(cfg *Config, log *zap.Logger, opts ...chat.ManagerOption) *Server {
	if cfg == nil {
		cfg = NewConfig()
	}
	if log == nil {
		log = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	origins := newOriginPolicy(cfg.AllowedOrigins, log)

	s := &Server{
		cfg:      cfg,
		log:      log,
		rooms:    chat.NewManager(append([]chat.ManagerOption{chat.WithLogger(log)}, opts...)...),
		origins:  origins,
		sessions: newTracker(),
		ctx:      ctx,
		cancel:   cancel,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		HandshakeTimeout: 10 * time.Second,
		CheckOrigin:      origins.checkOrigin,
	}
	return s
}

// Rooms returns the server's room manager.
func (s *Server) Rooms() *chat.Manager {
	return s.rooms
}

// ActiveSessions returns the number of sessions currently being served.
func (s *Server) ActiveSessions() int {
	return s.sessions.len()
}

// Handler returns the routes wrapped in the server's middleware.
func (s *Server) Handler() http.Handler {
	return recoverer(s.log, withCORS(s.origins.corsOrigins(), SetupRoutes(s)))
}

// CreateServer creates and configures an HTTP server with the specified address and handler.
// Only the request header read is bounded; upgraded connections manage their
// own deadlines.
func CreateServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

// Run listens on the configured address and serves until ctx is cancelled or
// the listener fails, then shuts down within the configured timeout.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Port)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.Port, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled. Every connection is
// handled on its own goroutine; a failing connection never stops the loop.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := CreateServer(ln.Addr().String(), s.Handler())
	s.mu.Lock()
	s.httpServer = srv
	s.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.log.Info("server listening", zap.String("addr", ln.Addr().String()))
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		return s.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// Shutdown stops accepting connections, closes every running session and
// waits for them until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("shutting down")

	s.mu.Lock()
	srv := s.httpServer
	s.mu.Unlock()

	var errs []error
	if srv != nil {
		if err := srv.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("http shutdown: %w", err))
		}
	}

	s.cancel()
	closed := s.sessions.closeAll()
	if err := s.sessions.wait(ctx); err != nil {
		errs = append(errs, fmt.Errorf("waiting for %d sessions: %w", s.sessions.len(), err))
	} else {
		s.log.Info("shutdown complete", zap.Int("sessions_closed", closed))
	}

	return errors.Join(errs...)
}
