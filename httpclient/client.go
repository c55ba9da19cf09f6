package httpclient

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	json "github.com/goccy/go-json"

	"github.com/kroma-labs/dbcleaner-go/httpserver"
	cleanersql "github.com/kroma-labs/dbcleaner-go/sql"
)

// Client drives the admin API served by httpserver from a test harness.
//
// Example:
//
//	client := httpclient.New(httpclient.WithBaseURL("http://app:7070"))
//
//	if _, err := client.Start(ctx); err != nil {
//	    return err
//	}
//	defer client.Rollback(ctx)
type Client struct {
	httpClient *http.Client
	cfg        *internalConfig
	baseURL    *url.URL
}

// New creates a Client. The transport chain is tracing, then retries, then
// the base transport.
func New(opts ...Option) *Client {
	cfg := newConfig(opts...)

	withRetry := newRetryTransport(cfg.buildTransport(), cfg)
	instrumented := newOtelTransport(withRetry, cfg)

	base, err := url.Parse(strings.TrimSuffix(cfg.BaseURL, "/"))
	if err != nil {
		cfg.Logger.Warn().Err(err).Str("base_url", cfg.BaseURL).Msg("invalid base URL, using default")
		base, _ = url.Parse(DefaultBaseURL)
	}

	return &Client{
		httpClient: &http.Client{
			Transport: instrumented,
			Timeout:   cfg.httpConfig.Timeout,
		},
		cfg:     cfg,
		baseURL: base,
	}
}

// HTTP returns the underlying *http.Client.
func (c *Client) HTTP() *http.Client {
	return c.httpClient
}

// BaseURL returns the admin API root.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// Start starts the forced transaction.
func (c *Client) Start(ctx context.Context) (*httpserver.SweepReport, error) {
	return c.Operate(ctx, cleanersql.OperationStart)
}

// Commit commits the forced transaction everywhere.
func (c *Client) Commit(ctx context.Context) (*httpserver.SweepReport, error) {
	return c.Operate(ctx, cleanersql.OperationCommit)
}

// Rollback rolls the forced transaction back everywhere.
func (c *Client) Rollback(ctx context.Context) (*httpserver.SweepReport, error) {
	return c.Operate(ctx, cleanersql.OperationRollback)
}

// Operate runs operation on the remote coordinator. A sweep that failed on
// some connections returns both the report and an *APIError.
func (c *Client) Operate(ctx context.Context, operation string) (*httpserver.SweepReport, error) {
	return do[httpserver.SweepReport](ctx, c, http.MethodPost, "/transactions/"+operation, operation)
}

// Status returns the remote coordinator state.
func (c *Client) Status(ctx context.Context) (*cleanersql.Stats, error) {
	return do[cleanersql.Stats](ctx, c, http.MethodGet, "/transactions", "status")
}

// Health returns the remote health report. An unhealthy service returns
// both the report and an *APIError.
func (c *Client) Health(ctx context.Context) (*httpserver.HealthResponse, error) {
	return do[httpserver.HealthResponse](ctx, c, http.MethodGet, "/healthz", "health")
}

func do[T any](ctx context.Context, c *Client, method, path, operation string) (*T, error) {
	u := c.baseURL.JoinPath(path)

	req, err := http.NewRequestWithContext(withOperation(ctx, operation), method, u.String(), http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("httpclient: build %s request: %w", operation, err)
	}
	req.Header.Set("Accept", "application/json")
	for key, values := range c.cfg.DefaultHeaders {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.cfg.Logger.Error().Err(err).Str("operation", operation).Msg("admin request failed")
		return nil, fmt.Errorf("httpclient: %s: %w", operation, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("httpclient: %s: read body: %w", operation, err)
	}

	var envelope httpserver.Response[T]
	if len(body) > 0 {
		if err := json.Unmarshal(body, &envelope); err != nil {
			if resp.StatusCode >= http.StatusBadRequest {
				return nil, &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body))}
			}
			return nil, fmt.Errorf("httpclient: %s: decode response: %w", operation, err)
		}
	}

	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := &APIError{
			StatusCode: resp.StatusCode,
			Message:    envelope.Message,
			Errors:     envelope.Errors,
		}
		c.cfg.Logger.Warn().
			Int("status", resp.StatusCode).
			Str("operation", operation).
			Str("message", envelope.Message).
			Msg("admin request rejected")
		if len(body) == 0 {
			return nil, apiErr
		}
		return &envelope.Data, apiErr
	}

	return &envelope.Data, nil
}
