package httpclient_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/kroma-labs/dbcleaner-go/httpclient"
	"github.com/kroma-labs/dbcleaner-go/httpserver"
	cleanersql "github.com/kroma-labs/dbcleaner-go/sql"
)

func newAdmin(t *testing.T, opts ...httpserver.Option) (*httptest.Server, *cleanersql.Coordinator) {
	t.Helper()

	coord := cleanersql.NewCoordinator()
	opts = append([]httpserver.Option{httpserver.WithCoordinator(coord)}, opts...)
	srv := httptest.NewServer(httpserver.New(opts...).Handler())
	t.Cleanup(srv.Close)

	return srv, coord
}

func TestClient_Lifecycle(t *testing.T) {
	t.Parallel()

	srv, coord := newAdmin(t)
	client := httpclient.New(httpclient.WithBaseURL(srv.URL + "/"))
	ctx := context.Background()

	report, err := client.Start(ctx)
	require.NoError(t, err)
	assert.Equal(t, cleanersql.OperationStart, report.Operation)
	assert.True(t, report.State.Active)
	assert.True(t, coord.IsActive())

	stats, err := client.Status(ctx)
	require.NoError(t, err)
	assert.True(t, stats.Active)
	assert.True(t, stats.Forced)

	report, err = client.Rollback(ctx)
	require.NoError(t, err)
	assert.Equal(t, cleanersql.OperationRollback, report.Operation)
	assert.False(t, report.State.Active)
	assert.False(t, coord.IsActive())

	report, err = client.Commit(ctx)
	require.NoError(t, err)
	assert.Equal(t, cleanersql.OperationCommit, report.Operation)
	assert.Empty(t, report.Outcomes)
}

func TestClient_Operate(t *testing.T) {
	t.Parallel()

	t.Run("given unknown operation, then returns API error", func(t *testing.T) {
		t.Parallel()

		srv, _ := newAdmin(t)
		client := httpclient.New(
			httpclient.WithBaseURL(srv.URL),
			httpclient.WithRetryConfig(httpclient.NoRetryConfig()),
		)

		_, err := client.Operate(context.Background(), "restart")
		require.Error(t, err)

		var apiErr *httpclient.APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
		assert.Equal(t, "unknown operation", apiErr.Message)
		require.Len(t, apiErr.Errors, 1)
		assert.Equal(t, "operation", apiErr.Errors[0].Field)
		assert.Equal(t, http.StatusNotFound, httpclient.StatusCode(err))
		assert.Contains(t, err.Error(), "404")
	})

	t.Run("given failed sweep, then returns report and API error", func(t *testing.T) {
		t.Parallel()

		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			calls.Add(1)
			httpserver.WriteJSON(w, http.StatusInternalServerError, httpserver.Response[httpserver.SweepReport]{
				Data: httpserver.SweepReport{
					Operation: cleanersql.OperationRollback,
					Outcomes: []httpserver.OutcomeReport{
						{ID: "a", Kind: "shared", Error: "connection lost"},
						{ID: "b", Kind: "proxy"},
					},
				},
				Errors:  []httpserver.Error{{Field: "a", Message: "connection lost"}},
				Message: "rollback finished with failures",
			})
		}))
		t.Cleanup(srv.Close)

		client := httpclient.New(httpclient.WithBaseURL(srv.URL))

		report, err := client.Rollback(context.Background())
		require.Error(t, err)
		require.NotNil(t, report)
		assert.Len(t, report.Outcomes, 2)
		assert.Equal(t, "connection lost", report.Outcomes[0].Error)
		assert.Equal(t, http.StatusInternalServerError, httpclient.StatusCode(err))
		assert.Equal(t, int32(1), calls.Load())
	})

	t.Run("given non JSON error body, then returns API error with body", func(t *testing.T) {
		t.Parallel()

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "upstream unavailable", http.StatusBadGateway)
		}))
		t.Cleanup(srv.Close)

		client := httpclient.New(
			httpclient.WithBaseURL(srv.URL),
			httpclient.WithRetryConfig(httpclient.NoRetryConfig()),
		)

		_, err := client.Start(context.Background())

		var apiErr *httpclient.APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, http.StatusBadGateway, apiErr.StatusCode)
		assert.Equal(t, "upstream unavailable", apiErr.Message)
	})
}

func TestClient_Retry(t *testing.T) {
	t.Parallel()

	srv, coord := newAdmin(t)

	var calls atomic.Int32
	flaky := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		proxy, err := http.NewRequestWithContext(r.Context(), r.Method, srv.URL+r.URL.Path, nil)
		require.NoError(t, err)
		resp, err := http.DefaultClient.Do(proxy)
		require.NoError(t, err)
		defer resp.Body.Close()
		w.WriteHeader(resp.StatusCode)
		_, _ = w.Write([]byte(`{"data":{"operation":"start","state":{"active":true}}}`))
	}))
	t.Cleanup(flaky.Close)

	client := httpclient.New(
		httpclient.WithBaseURL(flaky.URL),
		httpclient.WithRetryConfig(httpclient.RetryConfig{
			MaxRetries:      3,
			InitialInterval: time.Millisecond,
			MaxInterval:     5 * time.Millisecond,
			Multiplier:      2,
		}),
	)

	report, err := client.Start(context.Background())
	require.NoError(t, err)
	assert.True(t, report.State.Active)
	assert.Equal(t, int32(3), calls.Load())
	assert.True(t, coord.IsActive())
}

func TestClient_Health(t *testing.T) {
	t.Parallel()

	t.Run("given healthy service, then returns report", func(t *testing.T) {
		t.Parallel()

		srv, _ := newAdmin(t, httpserver.WithServiceName("orders"), httpserver.WithVersion("1.2.3"))
		client := httpclient.New(httpclient.WithBaseURL(srv.URL))

		health, err := client.Health(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "ok", health.Status)
		assert.Equal(t, "orders", health.Service)
		assert.Equal(t, "1.2.3", health.Version)
	})

	t.Run("given failing check, then returns report and API error", func(t *testing.T) {
		t.Parallel()

		srv, _ := newAdmin(t, httpserver.WithHealthCheck("db", func(context.Context) error {
			return errors.New("db down")
		}))
		client := httpclient.New(httpclient.WithBaseURL(srv.URL))

		health, err := client.Health(context.Background())
		require.Error(t, err)
		require.NotNil(t, health)
		assert.Equal(t, "fail", health.Status)
		assert.Equal(t, "db down", health.Checks["db"].Message)
		assert.Equal(t, http.StatusServiceUnavailable, httpclient.StatusCode(err))
	})
}

func TestClient_Headers(t *testing.T) {
	t.Parallel()

	var got http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		httpserver.WriteSuccess(w, http.StatusOK, cleanersql.Stats{}, "")
	}))
	t.Cleanup(srv.Close)

	sr := tracetest.NewSpanRecorder()
	client := httpclient.New(
		httpclient.WithBaseURL(srv.URL),
		httpclient.WithHeader(httpserver.RequestIDHeader, "harness-1"),
		httpclient.WithTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))),
	)

	_, err := client.Status(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "harness-1", got.Get(httpserver.RequestIDHeader))
	assert.Equal(t, "application/json", got.Get("Accept"))
	assert.NotEmpty(t, got.Get("Traceparent"))
}

func TestClient_Observability(t *testing.T) {
	t.Parallel()

	srv, _ := newAdmin(t)

	sr := tracetest.NewSpanRecorder()
	reader := sdkmetric.NewManualReader()
	client := httpclient.New(
		httpclient.WithBaseURL(srv.URL),
		httpclient.WithServiceName("harness"),
		httpclient.WithTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))),
		httpclient.WithMeterProvider(sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))),
	)

	_, err := client.Start(context.Background())
	require.NoError(t, err)

	spans := sr.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "HTTP POST start", spans[0].Name())

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	names := make(map[string]bool)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			names[m.Name] = true
		}
	}
	assert.True(t, names["http.client.request.duration"])
	assert.True(t, names["http.client.retry.duration"])
}

func TestClient_Unreachable(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	client := httpclient.New(
		httpclient.WithBaseURL(url),
		httpclient.WithRetryConfig(httpclient.RetryConfig{
			MaxRetries:      1,
			InitialInterval: time.Millisecond,
			MaxInterval:     time.Millisecond,
		}),
	)

	_, err := client.Start(context.Background())
	require.Error(t, err)
	assert.Zero(t, httpclient.StatusCode(err))
}
