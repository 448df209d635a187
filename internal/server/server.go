// Package server runs the storefront HTTP front end next to its operational
// endpoints: health probes for orchestrators and Prometheus metrics.
//
// Shutdown marks the probes first so readiness fails and load balancers
// stop routing before connections are drained.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/felixgeelhaar/storefront/internal/health"
	"github.com/felixgeelhaar/storefront/internal/log"
	"github.com/felixgeelhaar/storefront/internal/metrics"
)

// RequestIDHeader carries the request id in both directions.
const RequestIDHeader = "X-Request-ID"

// Server serves the application handler plus /metrics and /health/*.
type Server struct {
	httpServer      *http.Server
	probeManager    *health.ProbeManager
	logger          *log.Logger
	inShutdown      atomic.Bool
	shutdownTimeout time.Duration
}

// Config holds listener settings. Zero durations take defaults.
type Config struct {
	// Address is the listen address, e.g. ":3000".
	Address string

	// ShutdownTimeout bounds connection draining. Defaults to 10s.
	ShutdownTimeout time.Duration

	// ReadTimeout defaults to 30s.
	ReadTimeout time.Duration

	// WriteTimeout defaults to 30s.
	WriteTimeout time.Duration

	// IdleTimeout defaults to 60s.
	IdleTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = 10 * time.Second
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 30 * time.Second
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 30 * time.Second
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = 60 * time.Second
	}
	return c
}

// Options wires the collaborators of a Server.
type Options struct {
	// App serves everything that is not an operational endpoint.
	App http.Handler

	Probes *health.ProbeManager

	// Gatherer backs /metrics. Defaults to the process registry.
	Gatherer prometheus.Gatherer

	Logger *log.Logger
}

// NewServer builds a server. It does not listen until Start or Serve.
func NewServer(opts Options, cfg Config) *Server {
	cfg = cfg.withDefaults()
	if opts.Probes == nil {
		opts.Probes = health.NewProbeManager("")
	}
	if opts.Logger == nil {
		opts.Logger = log.DefaultLogger()
	}

	s := &Server{
		probeManager:    opts.Probes,
		logger:          opts.Logger.With("component", "server"),
		shutdownTimeout: cfg.ShutdownTimeout,
	}

	mux := http.NewServeMux()
	mux.Handle("GET /health/live", opts.Probes.LivenessHandler())
	mux.Handle("GET /health/ready", opts.Probes.ReadinessHandler())
	mux.Handle("GET /health/startup", opts.Probes.StartupHandler())
	mux.Handle("GET /healthz", opts.Probes.ReadinessHandler())

	metricsHandler := metrics.Handler()
	if opts.Gatherer != nil {
		metricsHandler = metrics.HandlerFor(opts.Gatherer, metrics.DefaultHandlerOpts())
	}
	mux.Handle("GET /metrics", metricsHandler)

	if opts.App != nil {
		mux.Handle("/", opts.App)
	}

	s.httpServer = &http.Server{
		Addr:         cfg.Address,
		Handler:      s.withRequestID(mux),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return s
}

// Handler returns the root handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start listens and serves until the server is shut down. It returns
// http.ErrServerClosed after a graceful shutdown.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return err
	}
	return s.serve(ln)
}

func (s *Server) serve(ln net.Listener) error {
	s.probeManager.MarkInitialized()
	s.logger.Info("storefront listening", "address", ln.Addr().String())
	return s.httpServer.Serve(ln)
}

// Serve runs the server until ctx is cancelled and then shuts it down.
func (s *Server) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() { errCh <- s.serve(ln) }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	if err := s.Shutdown(context.WithoutCancel(ctx)); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown fails readiness, stops keep-alives and drains connections for
// up to ShutdownTimeout.
func (s *Server) Shutdown(ctx context.Context) error {
	s.inShutdown.Store(true)
	s.probeManager.MarkShutdown()
	s.httpServer.SetKeepAlivesEnabled(false)

	ctx, cancel := context.WithTimeout(ctx, s.shutdownTimeout)
	defer cancel()

	s.logger.Info("storefront shutting down", "timeout", s.shutdownTimeout.String())
	return s.httpServer.Shutdown(ctx)
}

// IsShuttingDown reports whether Shutdown has been called.
func (s *Server) IsShuttingDown() bool {
	return s.inShutdown.Load()
}

// withRequestID propagates or assigns a request id, so backend calls made
// while serving carry the same id as the browser request.
func (s *Server) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)

		started := time.Now()
		next.ServeHTTP(w, r.WithContext(log.ContextWithRequestID(r.Context(), id)))
		s.logger.DebugContext(r.Context(), "request served",
			"request_id", id,
			"method", r.Method,
			"path", r.URL.Path,
			"duration_ms", time.Since(started).Milliseconds(),
		)
	})
}
