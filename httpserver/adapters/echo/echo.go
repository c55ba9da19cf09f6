// Package echo mounts the dbcleaner admin endpoints and middleware on an
// Echo instance, for applications under test that already serve Echo.
//
// # Quick Start
//
//	e := echo.New()
//	e.Use(echodbcleaner.RequestID())
//	e.Use(echodbcleaner.Recovery(logger))
//
//	echodbcleaner.RegisterAdmin(e, cleanersql.DefaultCoordinator(), "my-service")
package echo

import (
	"net/http"

	echolib "github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/kroma-labs/dbcleaner-go/httpserver"
	cleanersql "github.com/kroma-labs/dbcleaner-go/sql"
)

// WrapMiddleware adapts httpserver middleware to Echo middleware.
func WrapMiddleware(m httpserver.Middleware) echolib.MiddlewareFunc {
	return func(next echolib.HandlerFunc) echolib.HandlerFunc {
		return func(c echolib.Context) error {
			var err error
			handler := m(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
				c.SetRequest(r)
				err = next(c)
			}))
			handler.ServeHTTP(c.Response(), c.Request())
			return err
		}
	}
}

// Recovery returns Echo middleware that recovers from panics.
func Recovery(logger zerolog.Logger) echolib.MiddlewareFunc {
	return WrapMiddleware(httpserver.Recovery(logger))
}

// RequestID returns Echo middleware that generates or forwards X-Request-ID.
func RequestID() echolib.MiddlewareFunc {
	return WrapMiddleware(httpserver.RequestID())
}

// Logger returns Echo middleware that logs requests.
func Logger(cfg httpserver.LoggerConfig) echolib.MiddlewareFunc {
	return WrapMiddleware(httpserver.Logger(cfg))
}

// Tracing returns Echo middleware that traces requests.
func Tracing(cfg httpserver.TracingConfig) echolib.MiddlewareFunc {
	return WrapMiddleware(httpserver.Tracing(cfg))
}

// Metrics returns Echo middleware that records request metrics.
func Metrics(m *httpserver.Metrics) echolib.MiddlewareFunc {
	return WrapMiddleware(m.Middleware())
}

// RegisterTransactions registers the transaction endpoints of coord under
// /transactions.
func RegisterTransactions(e *echolib.Echo, coord *cleanersql.Coordinator) {
	h := httpserver.NewTransactionsHandler(coord)

	g := e.Group("/transactions")
	g.GET("", func(c echolib.Context) error {
		h.Status(c.Response(), c.Request())
		return nil
	})
	g.POST("/:operation", func(c echolib.Context) error {
		h.Operate(c.Response(), c.Request(), c.Param("operation"))
		return nil
	})
}

// RegisterAdmin registers the transaction endpoints plus /healthz and
// /metrics for coord.
func RegisterAdmin(e *echolib.Echo, coord *cleanersql.Coordinator, serviceName string) *httpserver.HealthHandler {
	RegisterTransactions(e, coord)

	health := httpserver.NewHealthHandler(serviceName, "", coord)
	e.GET("/healthz", echolib.WrapHandler(health))
	e.GET("/metrics", echolib.WrapHandler(httpserver.PrometheusHandler(coord, serviceName)))
	return health
}
