package httpclient

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefaultClassifier(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		resp *http.Response
		err  error
		want bool
	}{
		{
			name: "given success, then does not retry",
			resp: &http.Response{StatusCode: http.StatusOK},
			want: false,
		},
		{
			name: "given failed sweep, then does not retry",
			resp: &http.Response{StatusCode: http.StatusInternalServerError},
			want: false,
		},
		{
			name: "given failed health check, then does not retry",
			resp: &http.Response{StatusCode: http.StatusServiceUnavailable},
			want: false,
		},
		{
			name: "given unknown operation, then does not retry",
			resp: &http.Response{StatusCode: http.StatusNotFound},
			want: false,
		},
		{
			name: "given too many requests, then retries",
			resp: &http.Response{StatusCode: http.StatusTooManyRequests},
			want: true,
		},
		{
			name: "given bad gateway, then retries",
			resp: &http.Response{StatusCode: http.StatusBadGateway},
			want: true,
		},
		{
			name: "given gateway timeout, then retries",
			resp: &http.Response{StatusCode: http.StatusGatewayTimeout},
			want: true,
		},
		{
			name: "given connection refused, then retries",
			err:  fmt.Errorf("dial: %w", syscall.ECONNREFUSED),
			want: true,
		},
		{
			name: "given unexpected EOF, then retries",
			err:  io.ErrUnexpectedEOF,
			want: true,
		},
		{
			name: "given context cancelled, then does not retry",
			err:  fmt.Errorf("request: %w", context.Canceled),
			want: false,
		},
		{
			name: "given deadline exceeded, then does not retry",
			err:  context.DeadlineExceeded,
			want: false,
		},
		{
			name: "given unknown host, then does not retry",
			err:  &net.DNSError{Err: "no such host", Name: "admin.invalid", IsNotFound: true},
			want: false,
		},
		{
			name: "given certificate error, then does not retry",
			err:  &tls.CertificateVerificationError{Err: errors.New("bad certificate")},
			want: false,
		},
		{
			name: "given no response and no error, then does not retry",
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, DefaultClassifier(tt.resp, tt.err))
		})
	}
}

type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

func TestIsRetryableNetworkError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "given nil, then false", err: nil, want: false},
		{name: "given timeout, then true", err: timeoutError{}, want: true},
		{name: "given connection reset, then true", err: syscall.ECONNRESET, want: true},
		{name: "given broken pipe, then true", err: syscall.EPIPE, want: true},
		{name: "given EOF, then true", err: io.EOF, want: true},
		{name: "given plain error, then false", err: errors.New("boom"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, isRetryableNetworkError(tt.err))
		})
	}
}

func TestExponentialBackOffFromConfig(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		cfg            RetryConfig
		wantJitter     float64
		wantMultiplier float64
	}{
		{
			name:           "given defaults, then copies values",
			cfg:            DefaultRetryConfig(),
			wantJitter:     DefaultJitterFactor,
			wantMultiplier: DefaultMultiplier,
		},
		{
			name:           "given no jitter, then applies default jitter",
			cfg:            RetryConfig{InitialInterval: time.Second, MaxInterval: time.Minute, Multiplier: 3},
			wantJitter:     DefaultJitterFactor,
			wantMultiplier: 3,
		},
		{
			name:           "given jitter above one, then clamps",
			cfg:            RetryConfig{InitialInterval: time.Second, JitterFactor: 4, Multiplier: 0.5},
			wantJitter:     1,
			wantMultiplier: DefaultMultiplier,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			b := ExponentialBackOffFromConfig(tt.cfg)
			assert.Equal(t, tt.cfg.InitialInterval, b.InitialInterval)
			assert.InDelta(t, tt.wantJitter, b.RandomizationFactor, 1e-9)
			assert.InDelta(t, tt.wantMultiplier, b.Multiplier, 1e-9)
		})
	}
}

func TestRetryConfig_IsEnabled(t *testing.T) {
	t.Parallel()

	assert.True(t, DefaultRetryConfig().IsEnabled())
	assert.True(t, StartupRetryConfig().IsEnabled())
	assert.False(t, NoRetryConfig().IsEnabled())
}
