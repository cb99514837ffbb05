// Package api provides HTTP handlers and the main API server logic for Amparo.
//
// It exposes the /chat turn endpoint consumed by the frontend plus admin
// endpoints for devices, history, reminders and emergency events. The API
// integrates with the flow engine and the store modules.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/amparo-ai/amparo/internal/flow"
	"github.com/amparo-ai/amparo/internal/store"
)

// DefaultAddr is the listen address used when none is configured.
const DefaultAddr = ":8000"

// Opts holds configuration options for the API server.
type Opts struct {
	Addr string
}

// Option defines a configuration option for the API server.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// Server hosts the HTTP API on top of the flow engine and the store.
type Server struct {
	addr   string
	engine *flow.Engine
	store  store.Store
}

// NewServer creates the API server, falling back to the API_ADDR environment
// variable and then DefaultAddr for the listen address.
func NewServer(engine *flow.Engine, st store.Store, opts ...Option) *Server {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Addr == "" {
		cfg.Addr = os.Getenv("API_ADDR")
	}
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	slog.Debug("API server config loaded", "addr", cfg.Addr)
	return &Server{addr: cfg.Addr, engine: engine, store: st}
}

// Run starts the HTTP server and blocks until ctx is cancelled or the
// listener fails.
func (s *Server) Run(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.healthHandler)
	mux.HandleFunc("/chat", s.chatHandler)
	mux.HandleFunc("/history", s.historyHandler)
	mux.HandleFunc("/reminders", s.remindersHandler)
	mux.HandleFunc("/reminders/cancel", s.cancelReminderHandler)
	mux.HandleFunc("/emergencies", s.emergenciesHandler)
	mux.HandleFunc("/emergencies/resolve", s.resolveEmergencyHandler)
	mux.HandleFunc("/devices", s.devicesHandler)

	srv := &http.Server{
		Addr:              s.addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Amparo API running", "addr", s.addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("API server shutdown failed", "error", err)
			return err
		}
		slog.Info("API server stopped")
		return nil
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			slog.Error("API server failed", "error", err)
			return fmt.Errorf("api server failed: %w", err)
		}
		return nil
	}
}
