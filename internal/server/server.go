// Package server exposes protocol generation and the run ledger over HTTP.
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

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/leapstack-labs/wellplan/internal/protocols"
	"github.com/leapstack-labs/wellplan/pkg/core"
	"golang.org/x/sync/errgroup"
)

// Config holds configuration for the plan server.
type Config struct {
	Addr string
	// Store records every generation; nil serves without a run ledger.
	Store core.Store
	// Params returns the configured parameters of a protocol, the base that
	// request parameters are laid over.
	Params func(protocol string) map[string]any
	// Options is the runtime every request starts from.
	Options protocols.Options
	Logger  *slog.Logger
}

// Server is the plan server.
type Server struct {
	addr    string
	store   core.Store
	params  func(string) map[string]any
	options protocols.Options
	logger  *slog.Logger
	feed    *feed

	// storeMu serializes ledger writes.
	storeMu sync.Mutex
}

// New creates a server.
func New(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	params := cfg.Params
	if params == nil {
		params = func(string) map[string]any { return map[string]any{} }
	}
	return &Server{
		addr:    cfg.Addr,
		store:   cfg.Store,
		params:  params,
		options: cfg.Options,
		logger:  logger,
		feed:    newFeed(),
	}
}

// Handler returns the HTTP routes of the server.
func (s *Server) Handler() http.Handler {
	r := chi.NewMux()
	r.Use(
		middleware.RequestID,
		middleware.Recoverer,
		middleware.Compress(5, "application/json"),
	)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Route("/api/protocols", func(r chi.Router) {
		r.Get("/", s.listProtocols)
		r.Get("/{name}", s.showProtocol)
		r.Post("/{name}/plan", s.generate)
	})
	r.Route("/api/runs", func(r chi.Router) {
		r.Get("/", s.listRuns)
		r.Get("/events", s.runEvents)
		r.Get("/{id}", s.getRun)
	})
	return r
}

// Serve starts the server and blocks until ctx is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	return s.serve(ctx, ln)
}

func (s *Server) serve(ctx context.Context, ln net.Listener) error {
	s.logger.Info("starting plan server", "addr", ln.Addr().String())

	eg, egctx := errgroup.WithContext(ctx)
	srv := &http.Server{
		Handler: s.Handler(),
		BaseContext: func(_ net.Listener) context.Context {
			return egctx
		},
		ReadHeaderTimeout: 10 * time.Second,
	}

	eg.Go(func() error {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown
	eg.Go(func() error {
		<-egctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		s.logger.Debug("shutting down plan server")
		return srv.Shutdown(shutdownCtx)
	})

	return eg.Wait()
}

// record writes run to the ledger and publishes it to event listeners.
func (s *Server) record(run *core.Run) error {
	if s.store == nil {
		return nil
	}
	s.storeMu.Lock()
	err := s.store.RecordRun(run)
	s.storeMu.Unlock()
	if err != nil {
		return err
	}
	s.feed.publish(run)
	return nil
}
