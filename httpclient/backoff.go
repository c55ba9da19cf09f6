package httpclient

import (
	"github.com/cenkalti/backoff/v5"
)

// ExponentialBackOffFromConfig builds the backoff used when no custom
// backoff is set. Some jitter is always applied.
func ExponentialBackOffFromConfig(cfg RetryConfig) *backoff.ExponentialBackOff {
	jitterFactor := cfg.JitterFactor
	if jitterFactor <= 0 {
		jitterFactor = DefaultJitterFactor
	}
	if jitterFactor > 1 {
		jitterFactor = 1
	}

	multiplier := cfg.Multiplier
	if multiplier < 1 {
		multiplier = DefaultMultiplier
	}

	b := &backoff.ExponentialBackOff{
		InitialInterval:     cfg.InitialInterval,
		RandomizationFactor: jitterFactor,
		Multiplier:          multiplier,
		MaxInterval:         cfg.MaxInterval,
	}
	b.Reset()
	return b
}
