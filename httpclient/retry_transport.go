package httpclient

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// retryableStatusError marks an attempt answered with a retryable status.
type retryableStatusError struct {
	statusCode int
}

func (e *retryableStatusError) Error() string {
	return fmt.Sprintf("retryable status %d", e.statusCode)
}

// retryTransport retries attempts the classifier accepts, waiting per the
// configured backoff between them.
type retryTransport struct {
	base       http.RoundTripper
	cfg        *internalConfig
	classifier RetryClassifier
}

func newRetryTransport(base http.RoundTripper, cfg *internalConfig) http.RoundTripper {
	if !cfg.RetryConfig.IsEnabled() {
		return base
	}

	classifier := cfg.RetryClassifier
	if classifier == nil {
		classifier = DefaultClassifier
	}

	return &retryTransport{
		base:       base,
		cfg:        cfg,
		classifier: classifier,
	}
}

// RoundTrip implements http.RoundTripper. When every attempt was answered
// with a retryable status, the last response is returned.
func (t *retryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	rc := t.cfg.RetryConfig

	var bodyBytes []byte
	if req.Body != nil && req.Body != http.NoBody && req.GetBody == nil {
		var err error
		bodyBytes, err = io.ReadAll(req.Body)
		if err != nil {
			return nil, err
		}
		_ = req.Body.Close()
		req.Body = io.NopCloser(bytes.NewReader(bodyBytes))
	}

	span := trace.SpanFromContext(ctx)
	attrs := t.cfg.baseAttributes()

	var (
		attempt  int
		lastResp *http.Response
		start    = time.Now()
	)

	opts := []backoff.RetryOption{
		backoff.WithBackOff(t.getBackoff()),
		backoff.WithMaxTries(rc.MaxRetries + 1),
		backoff.WithNotify(func(err error, next time.Duration) {
			attempt++
			t.recordRetryEvent(span, attempt, err, next)
			t.cfg.Metrics.recordRetryAttempt(ctx, attrs, attempt)
			t.cfg.Logger.Debug().
				Err(err).
				Int("attempt", attempt).
				Dur("next", next).
				Str("url", req.URL.String()).
				Msg("retrying admin request")
		}),
	}
	if rc.MaxElapsedTime > 0 {
		opts = append(opts, backoff.WithMaxElapsedTime(rc.MaxElapsedTime))
	}

	resp, err := backoff.Retry(ctx, func() (*http.Response, error) {
		if lastResp != nil {
			drain(lastResp)
			lastResp = nil
		}

		resp, err := t.base.RoundTrip(t.cloneRequest(req, bodyBytes))
		if !t.classifier(resp, err) {
			if err != nil {
				return nil, backoff.Permanent(err)
			}
			return resp, nil
		}

		if err != nil {
			if resp != nil {
				drain(resp)
			}
			return nil, err
		}
		lastResp = resp
		return nil, &retryableStatusError{statusCode: resp.StatusCode}
	}, opts...)

	if attempt > 0 {
		span.SetAttributes(
			attribute.Int("http.retry_count", attempt),
			attribute.Bool("http.retry_success", err == nil),
		)
		if err != nil {
			t.cfg.Metrics.recordRetryExhausted(ctx, attrs)
		}
	}
	t.cfg.Metrics.recordRetryDuration(ctx, attrs, time.Since(start))

	if err != nil && lastResp != nil {
		if ctx.Err() != nil {
			drain(lastResp)
			return nil, err
		}
		return lastResp, nil
	}
	return resp, err
}

func (t *retryTransport) cloneRequest(req *http.Request, bodyBytes []byte) *http.Request {
	clone := req.Clone(req.Context())

	if bodyBytes != nil {
		clone.Body = io.NopCloser(bytes.NewReader(bodyBytes))
		clone.ContentLength = int64(len(bodyBytes))
	} else if req.GetBody != nil {
		body, err := req.GetBody()
		if err == nil {
			clone.Body = body
		}
	}

	return clone
}

func (t *retryTransport) getBackoff() backoff.BackOff {
	if t.cfg.RetryBackOff != nil {
		t.cfg.RetryBackOff.Reset()
		return t.cfg.RetryBackOff
	}
	return ExponentialBackOffFromConfig(t.cfg.RetryConfig)
}

func (t *retryTransport) recordRetryEvent(span trace.Span, attempt int, err error, next time.Duration) {
	if !span.IsRecording() {
		return
	}

	reason := "status"
	if isRetryableNetworkError(err) {
		reason = "network_error"
	} else if _, ok := err.(*retryableStatusError); !ok {
		reason = "unknown"
	}

	span.AddEvent("http.retry", trace.WithAttributes(
		attribute.Int("retry.attempt", attempt),
		attribute.Int64("retry.delay_ms", next.Milliseconds()),
		attribute.String("retry.reason", reason),
	))
}

func drain(resp *http.Response) {
	if resp.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}
