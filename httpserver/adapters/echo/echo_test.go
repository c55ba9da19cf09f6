package echo_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	json "github.com/goccy/go-json"
	echolib "github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kroma-labs/dbcleaner-go/httpserver"
	echodbcleaner "github.com/kroma-labs/dbcleaner-go/httpserver/adapters/echo"
	cleanersql "github.com/kroma-labs/dbcleaner-go/sql"
)

func TestWrapMiddleware(t *testing.T) {
	t.Parallel()

	t.Run("given httpserver middleware, when wrapped, then works with Echo", func(t *testing.T) {
		e := echolib.New()
		e.Use(echodbcleaner.WrapMiddleware(func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("X-Custom", "test-value")
				next.ServeHTTP(w, r)
			})
		}))
		e.GET("/test", func(c echolib.Context) error {
			return c.String(http.StatusOK, "hello")
		})

		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/test", nil))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "test-value", rec.Header().Get("X-Custom"))
		assert.Equal(t, "hello", rec.Body.String())
	})
}

func TestRequestIDAndRecovery(t *testing.T) {
	t.Parallel()

	t.Run("given handler panics, when middleware applied, then returns 500 with request ID", func(t *testing.T) {
		e := echolib.New()
		e.Use(echodbcleaner.RequestID())
		e.Use(echodbcleaner.Recovery(zerolog.Nop()))
		e.GET("/panic", func(_ echolib.Context) error {
			panic("test panic")
		})

		rec := httptest.NewRecorder()
		assert.NotPanics(t, func() {
			e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/panic", nil))
		})
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.NotEmpty(t, rec.Header().Get(httpserver.RequestIDHeader))
	})
}

func TestRegisterAdmin(t *testing.T) {
	t.Parallel()

	t.Run("given start then commit, then coordinator returns to idle", func(t *testing.T) {
		coord := cleanersql.NewCoordinator()
		e := echolib.New()
		echodbcleaner.RegisterAdmin(e, coord, "orders")

		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/transactions/start", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.True(t, coord.IsActive())

		rec = httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/transactions/commit", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.False(t, coord.IsActive())

		var resp httpserver.Response[httpserver.SweepReport]
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, cleanersql.OperationCommit, resp.Data.Operation)
		assert.True(t, resp.Data.State.Forced)
	})

	t.Run("given status and health requests, then both answer 200", func(t *testing.T) {
		e := echolib.New()
		echodbcleaner.RegisterAdmin(e, cleanersql.NewCoordinator(), "orders")

		for _, path := range []string{"/transactions", "/healthz", "/metrics"} {
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
			assert.Equal(t, http.StatusOK, rec.Code, path)
		}
	})
}
