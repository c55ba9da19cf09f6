// Package fiber mounts the dbcleaner admin endpoints and middleware on a
// Fiber app, for applications under test that already serve Fiber.
//
// # Quick Start
//
//	app := fiber.New()
//	app.Use(fiberdbcleaner.RequestID())
//
//	fiberdbcleaner.RegisterAdmin(app, cleanersql.DefaultCoordinator(), "my-service")
//
// Handlers go through Fiber's net/http adaptor, so the request context seen
// by the coordinator is the adapted request's context.
package fiber

import (
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/rs/zerolog"

	"github.com/kroma-labs/dbcleaner-go/httpserver"
	cleanersql "github.com/kroma-labs/dbcleaner-go/sql"
)

// WrapMiddleware adapts httpserver middleware to a Fiber handler.
func WrapMiddleware(m httpserver.Middleware) fiber.Handler {
	return adaptor.HTTPMiddleware(func(next http.Handler) http.Handler {
		return m(next)
	})
}

// Recovery returns Fiber middleware that recovers from panics.
func Recovery(logger zerolog.Logger) fiber.Handler {
	return WrapMiddleware(httpserver.Recovery(logger))
}

// RequestID returns Fiber middleware that generates or forwards X-Request-ID.
func RequestID() fiber.Handler {
	return WrapMiddleware(httpserver.RequestID())
}

// Logger returns Fiber middleware that logs requests.
func Logger(cfg httpserver.LoggerConfig) fiber.Handler {
	return WrapMiddleware(httpserver.Logger(cfg))
}

// Metrics returns Fiber middleware that records request metrics.
func Metrics(m *httpserver.Metrics) fiber.Handler {
	return WrapMiddleware(m.Middleware())
}

// RegisterTransactions registers the transaction endpoints of coord under
// /transactions.
func RegisterTransactions(app fiber.Router, coord *cleanersql.Coordinator) {
	h := httpserver.NewTransactionsHandler(coord)

	app.Get("/transactions", adaptor.HTTPHandlerFunc(h.Status))
	app.Post("/transactions/:operation", func(c *fiber.Ctx) error {
		operation := c.Params("operation")
		return adaptor.HTTPHandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h.Operate(w, r, operation)
		})(c)
	})
}

// RegisterAdmin registers the transaction endpoints plus /healthz and
// /metrics for coord.
func RegisterAdmin(app fiber.Router, coord *cleanersql.Coordinator, serviceName string) *httpserver.HealthHandler {
	RegisterTransactions(app, coord)

	health := httpserver.NewHealthHandler(serviceName, "", coord)
	app.Get("/healthz", adaptor.HTTPHandler(health))
	app.Get("/metrics", adaptor.HTTPHandler(httpserver.PrometheusHandler(coord, serviceName)))
	return health
}
