// Package httpserver serves the dbcleaner admin API, so that a test harness
// running in another process can drive the forced transaction of the process
// under test.
//
// # Quick Start
//
// Run the admin server next to the application under test:
//
//	server := httpserver.New(
//	    httpserver.WithAddr("127.0.0.1:7070"),
//	    httpserver.WithCoordinator(cleanersql.DefaultCoordinator()),
//	    httpserver.WithLogging(httpserver.LoggerConfig{Logger: logger}),
//	)
//
//	go func() {
//	    if err := server.ListenAndServe(ctx); err != nil {
//	        logger.Fatal().Err(err).Msg("admin server failed")
//	    }
//	}()
//
// The harness then brackets every test:
//
//	POST /transactions/start
//	... exercise the application ...
//	POST /transactions/rollback
//
// # Endpoints
//
//	GET  /transactions            coordinator state
//	POST /transactions/start      start the forced transaction
//	POST /transactions/commit     commit it everywhere
//	POST /transactions/rollback   roll it back everywhere
//	GET  /healthz                 state plus registered health checks
//	GET  /metrics                 Prometheus exposition
//
// Every response uses the Response envelope. A commit or rollback that
// failed on some connections answers 500 with one Error per failed
// connection; the sweep itself always completes.
//
// # Mounting Elsewhere
//
// NewTransactionsHandler, NewHealthHandler and PrometheusHandler can be
// mounted on an existing chi router. The adapters subpackages do the same
// for Gin, Echo, Fiber and grpc-gateway.
//
// # Observability
//
// Traces (WithTracing):
//   - Server span per request, named after the matched route
//
// Metrics (WithMetrics):
//   - http.server.request.duration (histogram)
//   - http.server.request.total (counter)
//
// Prometheus (GET /metrics):
//   - dbcleaner_forced, dbcleaner_active
//   - dbcleaner_shared_connections, dbcleaner_proxy_connections
package httpserver
