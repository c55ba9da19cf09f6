package httpclient

import (
	"context"
	"crypto/tls"
	"errors"
	"io"
	"net"
	"net/http"
	"os"
	"syscall"
)

// RetryClassifier reports whether a request should be retried.
//
// Example classifier that also retries while the service reports unhealthy:
//
//	httpclient.WithRetryClassifier(func(resp *http.Response, err error) bool {
//	    if resp != nil && resp.StatusCode == http.StatusServiceUnavailable {
//	        return true
//	    }
//	    return httpclient.DefaultClassifier(resp, err)
//	})
type RetryClassifier func(resp *http.Response, err error) bool

// DefaultClassifier retries transient failures.
//
// Retries on:
//   - network errors (connection refused, reset, timeout, EOF)
//   - 429, 502 and 504
//
// Does not retry on:
//   - context cancellation
//   - TLS certificate errors and unknown hosts
//   - 500, which reports a sweep that ran and failed on some connections
//   - 503, which reports a failed health check
//   - any other 4xx
func DefaultClassifier(resp *http.Response, err error) bool {
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return false
		}
		if isPermanentError(err) {
			return false
		}
		return true
	}

	if resp == nil {
		return false
	}
	return isRetryableStatusCode(resp.StatusCode)
}

func isRetryableStatusCode(statusCode int) bool {
	switch statusCode {
	case http.StatusTooManyRequests, http.StatusBadGateway, http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

func isRetryableNetworkError(err error) bool {
	if err == nil {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	if errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNABORTED) ||
		errors.Is(err, syscall.ETIMEDOUT) ||
		errors.Is(err, syscall.EPIPE) {
		return true
	}

	return errors.Is(err, os.ErrDeadlineExceeded) || errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF)
}

func isPermanentError(err error) bool {
	var certErr *tls.CertificateVerificationError
	if errors.As(err, &certErr) {
		return true
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return dnsErr.IsNotFound
	}

	return false
}
