// Package api provides the HTTP surface of TextLoop.
//
// It exposes the inbound SMS webhook consumed by the messaging provider,
// plus health and Prometheus metrics endpoints. All survey logic lives in
// the flow package; the API layer only authenticates callbacks, resolves
// the organization, and normalizes message fields.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/TextLoop/TextLoop/internal/flow"
	"github.com/TextLoop/TextLoop/internal/models"
	"github.com/TextLoop/TextLoop/internal/store"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Default server configuration constants
const (
	// DefaultAddr is the default API listen address
	DefaultAddr = ":8080"
	// DefaultReadTimeout bounds how long reading a request may take
	DefaultReadTimeout = 10 * time.Second
	// DefaultWriteTimeout bounds how long writing a response may take
	DefaultWriteTimeout = 10 * time.Second
	// DefaultShutdownTimeout bounds graceful shutdown
	DefaultShutdownTimeout = 5 * time.Second
)

// Opts holds configuration options for the API server.
type Opts struct {
	Addr      string
	RateRPS   float64
	RateBurst int
	DisableRL bool
}

// Option defines a configuration option for the API server.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// WithRateLimit sets the per-phone webhook rate limit.
func WithRateLimit(rps float64, burst int) Option {
	return func(o *Opts) { o.RateRPS = rps; o.RateBurst = burst }
}

// WithoutRateLimit disables webhook rate limiting (tests and trusted setups).
func WithoutRateLimit() Option {
	return func(o *Opts) { o.DisableRL = true }
}

// Server hosts the TextLoop HTTP endpoints.
type Server struct {
	store   store.Store
	engine  *flow.Engine
	limiter *rateLimiter
	addr    string
}

// NewServer creates an API server around the given store and engine.
func NewServer(st store.Store, engine *flow.Engine, opts ...Option) *Server {
	cfg := Opts{Addr: DefaultAddr, RateRPS: DefaultRateRPS, RateBurst: DefaultRateBurst}
	for _, opt := range opts {
		opt(&cfg)
	}

	var limiter *rateLimiter
	if !cfg.DisableRL {
		limiter = newRateLimiter(cfg.RateRPS, cfg.RateBurst)
	}
	return &Server{store: st, engine: engine, limiter: limiter, addr: cfg.Addr}
}

// Handler builds the HTTP route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/webhook/sms", s.webhookHandler)
	mux.HandleFunc("/health", s.healthHandler)
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

// Run starts the HTTP server and blocks until ctx is cancelled, then shuts
// down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.addr,
		Handler:      s.Handler(),
		ReadTimeout:  DefaultReadTimeout,
		WriteTimeout: DefaultWriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("TextLoop API listening", "addr", s.addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		slog.Error("API server failed", "error", err)
		return err
	case <-ctx.Done():
		slog.Info("API server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// healthHandler reports service liveness.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("healthy"))
}
