package httpclient

import (
	"time"
)

// RetryConfig controls how failed admin calls are retried.
//
// Every admin operation is idempotent: start is a no-op while a forced
// transaction is open and commit and rollback are no-ops while idle. A call
// whose outcome was lost on the wire can therefore be sent again.
//
//   - MaxRetries: retry attempts after the first one (0 disables retries)
//   - MaxElapsedTime: total budget for all attempts (0 means no limit)
//   - JitterFactor: randomization applied to every interval, 0.0 to 1.0
type RetryConfig struct {
	// MaxRetries is the maximum number of retry attempts.
	// Default: 3
	MaxRetries uint

	// InitialInterval is the first backoff interval.
	// Default: 200ms
	InitialInterval time.Duration

	// MaxInterval caps the backoff interval.
	// Default: 5s
	MaxInterval time.Duration

	// MaxElapsedTime is the total time budget.
	// Default: 30s
	MaxElapsedTime time.Duration

	// Multiplier grows the interval after each retry.
	// Default: 2.0
	Multiplier float64

	// JitterFactor randomizes each interval by ±JitterFactor.
	// Default: 0.5
	JitterFactor float64
}

// Default values for RetryConfig.
const (
	DefaultMaxRetries      = 3
	DefaultInitialInterval = 200 * time.Millisecond
	DefaultMaxInterval     = 5 * time.Second
	DefaultMaxElapsedTime  = 30 * time.Second
	DefaultMultiplier      = 2.0
	DefaultJitterFactor    = 0.5
)

// DefaultRetryConfig returns the defaults: 3 retries starting at 200ms and
// doubling, within a 30s budget.
//
// An application that was just launched next to the test harness may not be
// listening yet, so connection refused is retried.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:      DefaultMaxRetries,
		InitialInterval: DefaultInitialInterval,
		MaxInterval:     DefaultMaxInterval,
		MaxElapsedTime:  DefaultMaxElapsedTime,
		Multiplier:      DefaultMultiplier,
		JitterFactor:    DefaultJitterFactor,
	}
}

// StartupRetryConfig waits longer for an application that is still booting:
// 10 retries capped at 2s apart within one minute.
func StartupRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:      10,
		InitialInterval: 250 * time.Millisecond,
		MaxInterval:     2 * time.Second,
		MaxElapsedTime:  time.Minute,
		Multiplier:      1.5,
		JitterFactor:    0.3,
	}
}

// NoRetryConfig disables retries.
func NoRetryConfig() RetryConfig {
	return RetryConfig{}
}

// IsEnabled reports whether retries are enabled.
func (c RetryConfig) IsEnabled() bool {
	return c.MaxRetries > 0
}
