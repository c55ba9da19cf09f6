// Package gin mounts the dbcleaner admin endpoints and middleware on a Gin
// engine, for applications under test that already serve Gin.
//
// # Quick Start
//
//	r := gin.New()
//	r.Use(gindbcleaner.RequestID())
//	r.Use(gindbcleaner.Recovery(logger))
//
//	gindbcleaner.RegisterAdmin(r, cleanersql.DefaultCoordinator(), "my-service")
//
// RegisterAdmin serves:
//
//	GET  /transactions
//	POST /transactions/:operation
//	GET  /healthz
//	GET  /metrics
package gin

import (
	"net/http"

	ginlib "github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/kroma-labs/dbcleaner-go/httpserver"
	cleanersql "github.com/kroma-labs/dbcleaner-go/sql"
)

// WrapMiddleware adapts httpserver middleware to Gin middleware.
func WrapMiddleware(m httpserver.Middleware) ginlib.HandlerFunc {
	return func(c *ginlib.Context) {
		var aborted bool
		handler := m(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
			c.Request = r
			c.Next()
			aborted = c.IsAborted()
		}))
		handler.ServeHTTP(c.Writer, c.Request)
		if aborted {
			c.Abort()
		}
	}
}

// Recovery returns Gin middleware that recovers from panics.
func Recovery(logger zerolog.Logger) ginlib.HandlerFunc {
	return WrapMiddleware(httpserver.Recovery(logger))
}

// RequestID returns Gin middleware that generates or forwards X-Request-ID.
func RequestID() ginlib.HandlerFunc {
	return WrapMiddleware(httpserver.RequestID())
}

// Logger returns Gin middleware that logs requests.
func Logger(cfg httpserver.LoggerConfig) ginlib.HandlerFunc {
	return WrapMiddleware(httpserver.Logger(cfg))
}

// Tracing returns Gin middleware that traces requests.
func Tracing(cfg httpserver.TracingConfig) ginlib.HandlerFunc {
	return WrapMiddleware(httpserver.Tracing(cfg))
}

// Metrics returns Gin middleware that records request metrics.
func Metrics(m *httpserver.Metrics) ginlib.HandlerFunc {
	return WrapMiddleware(m.Middleware())
}

// WrapHandler adapts an http.Handler to a Gin handler.
func WrapHandler(h http.Handler) ginlib.HandlerFunc {
	return func(c *ginlib.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// RegisterTransactions registers the transaction endpoints of coord under
// /transactions.
func RegisterTransactions(r ginlib.IRouter, coord *cleanersql.Coordinator) {
	h := httpserver.NewTransactionsHandler(coord)

	g := r.Group("/transactions")
	g.GET("", func(c *ginlib.Context) {
		h.Status(c.Writer, c.Request)
	})
	g.POST("/:operation", func(c *ginlib.Context) {
		h.Operate(c.Writer, c.Request, c.Param("operation"))
	})
}

// RegisterAdmin registers the transaction endpoints plus /healthz and
// /metrics for coord.
func RegisterAdmin(r ginlib.IRouter, coord *cleanersql.Coordinator, serviceName string) *httpserver.HealthHandler {
	RegisterTransactions(r, coord)

	health := httpserver.NewHealthHandler(serviceName, "", coord)
	r.GET("/healthz", WrapHandler(health))
	r.GET("/metrics", WrapHandler(httpserver.PrometheusHandler(coord, serviceName)))
	return health
}
