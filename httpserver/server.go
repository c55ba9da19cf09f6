package httpserver

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	cleanersql "github.com/kroma-labs/dbcleaner-go/sql"
)

// Server is the dbcleaner admin server. It lets a harness running in another
// process start, commit and roll back the forced transaction of the process
// hosting the server.
//
// Routes:
//
//	GET  /transactions
//	POST /transactions/start
//	POST /transactions/commit
//	POST /transactions/rollback
//	GET  /healthz
//	GET  /metrics
//
// Example:
//
//	server := httpserver.New(
//	    httpserver.WithAddr("127.0.0.1:7070"),
//	    httpserver.WithLogger(logger),
//	    httpserver.WithLogging(httpserver.LoggerConfig{Logger: logger}),
//	)
//	go server.ListenAndServe(ctx)
type Server struct {
	httpServer *http.Server
	config     Config
	logger     zerolog.Logger
	health     *HealthHandler
}

// New creates a Server. Without WithCoordinator it drives
// cleanersql.DefaultCoordinator().
func New(opts ...Option) *Server {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	if cfg.ServiceName == "" {
		cfg.ServiceName = "dbcleaner-admin"
	}
	if cfg.Coordinator == nil {
		cfg.Coordinator = cleanersql.DefaultCoordinator()
	}

	health := NewHealthHandler(cfg.ServiceName, cfg.Version, cfg.Coordinator)
	for name, check := range cfg.HealthChecks {
		health.AddCheck(name, check)
	}

	middlewares := []Middleware{
		RequestID(),
		Recovery(cfg.Logger),
	}
	if cfg.TracingConfig != nil {
		tracingCfg := *cfg.TracingConfig
		tracingCfg.serviceName = cfg.ServiceName
		middlewares = append(middlewares, Tracing(tracingCfg))
	}
	if cfg.MetricsConfig != nil {
		metricsCfg := *cfg.MetricsConfig
		metricsCfg.serviceName = cfg.ServiceName
		metrics, err := NewMetrics(metricsCfg)
		if err != nil {
			cfg.Logger.Warn().Err(err).Msg("creating request metrics failed")
		} else {
			middlewares = append(middlewares, metrics.Middleware())
		}
	}
	if cfg.LoggerConfig != nil {
		loggerCfg := *cfg.LoggerConfig
		loggerCfg.serviceName = cfg.ServiceName
		middlewares = append(middlewares, Logger(loggerCfg))
	}
	middlewares = append(middlewares, cfg.Middleware...)

	var handler http.Handler
	if cfg.Handler != nil {
		handler = Chain(middlewares...)(cfg.Handler)
	} else {
		r := chi.NewRouter()
		for _, m := range middlewares {
			r.Use(m)
		}
		r.Mount("/transactions", NewTransactionsHandler(cfg.Coordinator))
		r.Method(http.MethodGet, "/healthz", health)
		r.Method(http.MethodGet, "/metrics", PrometheusHandler(cfg.Coordinator, cfg.ServiceName))
		handler = r
	}

	return &Server{
		httpServer: &http.Server{
			Addr:              cfg.Addr,
			Handler:           handler,
			ReadTimeout:       cfg.ReadTimeout,
			ReadHeaderTimeout: cfg.ReadHeaderTimeout,
			WriteTimeout:      cfg.WriteTimeout,
			IdleTimeout:       cfg.IdleTimeout,
		},
		config: cfg,
		logger: cfg.Logger,
		health: health,
	}
}

// Handler returns the server's root handler, for use with httptest.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Health returns the handler behind GET /healthz.
func (s *Server) Health() *HealthHandler {
	return s.health
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// ListenAndServe listens on the configured address and blocks until ctx is
// cancelled, SIGTERM or SIGINT arrives, or the server fails.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve is like ListenAndServe on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(signals)

	serveErr := make(chan error, 1)
	go func() {
		s.logger.Info().
			Str("addr", ln.Addr().String()).
			Str("service", s.config.ServiceName).
			Msg("admin server starting")

		err := s.httpServer.Serve(ln)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err, ok := <-serveErr:
		if ok {
			s.logger.Error().Err(err).Msg("admin server failed")
			return err
		}
		return nil
	case sig := <-signals:
		s.logger.Info().Str("signal", sig.String()).Msg("shutdown signal received")
	case <-ctx.Done():
		s.logger.Info().Err(ctx.Err()).Msg("context cancelled, shutting down")
	}

	return s.shutdown(context.WithoutCancel(ctx))
}

func (s *Server) shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error().Err(err).Msg("graceful shutdown failed, forcing close")
		if closeErr := s.httpServer.Close(); closeErr != nil {
			s.logger.Error().Err(closeErr).Msg("force close failed")
		}
		return err
	}

	s.logger.Info().Msg("admin server stopped")
	return nil
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
