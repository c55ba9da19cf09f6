package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/kroma-labs/dbcleaner-go/example/sqlx/internal/config"
	"github.com/kroma-labs/dbcleaner-go/example/sqlx/internal/database"
	"github.com/kroma-labs/dbcleaner-go/example/sqlx/internal/telemetry"
	"github.com/kroma-labs/dbcleaner-go/httpserver"
	cleanersql "github.com/kroma-labs/dbcleaner-go/sql"
)

func main() {
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, metricsHandler, err := telemetry.Setup(ctx)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to set up telemetry")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("telemetry shutdown failed")
		}
	}()

	mux := http.NewServeMux()
	mux.Handle("/metrics", metricsHandler)
	metricsServer := &http.Server{
		Addr:              config.MetricsPort,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info().Str("addr", config.MetricsPort).Msg("metrics server starting")
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics server failed")
		}
	}()

	db, err := database.New(ctx, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open database")
	}
	defer db.Close()

	if err := db.CreateTable(ctx); err != nil {
		logger.Error().Err(err).Msg("failed to create table")
	}

	admin := httpserver.New(
		httpserver.WithAddr(config.AdminAddr),
		httpserver.WithServiceName(config.ServiceName),
		httpserver.WithVersion(config.ServiceVersion),
		httpserver.WithCoordinator(cleanersql.DefaultCoordinator()),
		httpserver.WithLogger(logger),
		httpserver.WithTracing(httpserver.TracingConfig{}),
		httpserver.WithMetrics(httpserver.MetricsConfig{}),
		httpserver.WithLogging(httpserver.LoggerConfig{
			Logger:    logger,
			SkipPaths: []string{"/healthz"},
		}),
		httpserver.WithHealthCheck("database", db.PingContext),
	)
	go func() {
		if err := admin.ListenAndServe(ctx); err != nil {
			logger.Error().Err(err).Msg("admin server failed")
			stop()
		}
	}()

	logger.Info().
		Str("admin", config.AdminAddr).
		Str("metrics", config.MetricsPort).
		Msg("example started, POST /transactions/start to isolate the next run")

	tracer := otel.Tracer("dbcleaner-sqlx-example")
	ticker := time.NewTicker(time.Duration(config.OperationInterval) * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			runOperations(ctx, tracer, db, logger)

		case <-ctx.Done():
			logger.Info().Msg("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := metricsServer.Shutdown(shutdownCtx); err != nil {
				logger.Error().Err(err).Msg("metrics server shutdown failed")
			}
			return
		}
	}
}

func runOperations(ctx context.Context, tracer trace.Tracer, db *database.DB, logger zerolog.Logger) {
	ctx, span := tracer.Start(ctx, "db-operations")
	defer span.End()

	if err := db.InsertUsers(ctx); err != nil {
		logger.Error().Err(err).Msg("failed to insert users")
	}
	if _, err := db.QueryUsers(ctx); err != nil {
		logger.Error().Err(err).Msg("failed to query users")
	}
	if _, err := db.GetUser(ctx, "Alice"); err != nil {
		logger.Error().Err(err).Msg("failed to get user")
	}
	if err := db.InsertWithTransaction(ctx); err != nil {
		logger.Error().Err(err).Msg("transaction failed")
	}

	n, err := db.CountUsers(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("failed to count users")
		return
	}
	logger.Info().
		Int("users", n).
		Bool("forced", cleanersql.IsForced()).
		Msg("database operations completed")
}
