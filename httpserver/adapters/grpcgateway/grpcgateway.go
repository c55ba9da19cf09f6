// Package grpcgateway mounts the dbcleaner admin endpoints on a grpc-gateway
// runtime.ServeMux, for applications under test that expose their API
// through grpc-gateway.
//
// # Quick Start
//
//	gwmux := runtime.NewServeMux()
//	// Register gRPC services with gwmux...
//
//	if err := grpcgateway.RegisterTransactions(gwmux, cleanersql.DefaultCoordinator()); err != nil {
//	    log.Fatal(err)
//	}
//	handler := grpcgateway.NewHandler(gwmux, grpcgateway.Config{Logger: &logger})
package grpcgateway

import (
	"net/http"

	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"github.com/rs/zerolog"

	"github.com/kroma-labs/dbcleaner-go/httpserver"
	cleanersql "github.com/kroma-labs/dbcleaner-go/sql"
)

// RegisterTransactions registers the transaction endpoints of coord on mux:
// GET /transactions and POST /transactions/{operation}.
func RegisterTransactions(mux *runtime.ServeMux, coord *cleanersql.Coordinator) error {
	h := httpserver.NewTransactionsHandler(coord)

	if err := mux.HandlePath(http.MethodGet, "/transactions",
		func(w http.ResponseWriter, r *http.Request, _ map[string]string) {
			h.Status(w, r)
		},
	); err != nil {
		return err
	}

	return mux.HandlePath(http.MethodPost, "/transactions/{operation}",
		func(w http.ResponseWriter, r *http.Request, params map[string]string) {
			h.Operate(w, r, params["operation"])
		},
	)
}

// Config selects the middleware NewHandler applies.
type Config struct {
	// Logger enables Recovery and Logger middleware.
	Logger *zerolog.Logger

	// Tracer enables OpenTelemetry tracing.
	Tracer *httpserver.TracingConfig

	// Metrics enables OpenTelemetry metrics.
	Metrics *httpserver.Metrics
}

// NewHandler wraps mux with the dbcleaner middleware stack, in this order:
// Recovery, RequestID, Tracing, Metrics, Logger.
func NewHandler(mux *runtime.ServeMux, cfg Config) http.Handler {
	var middlewares []httpserver.Middleware

	if cfg.Logger != nil {
		middlewares = append(middlewares, httpserver.Recovery(*cfg.Logger))
	}
	middlewares = append(middlewares, httpserver.RequestID())
	if cfg.Tracer != nil {
		middlewares = append(middlewares, httpserver.Tracing(*cfg.Tracer))
	}
	if cfg.Metrics != nil {
		middlewares = append(middlewares, cfg.Metrics.Middleware())
	}
	if cfg.Logger != nil {
		middlewares = append(middlewares, httpserver.Logger(httpserver.LoggerConfig{
			Logger: *cfg.Logger,
		}))
	}

	return httpserver.Chain(middlewares...)(mux)
}
