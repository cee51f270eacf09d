package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for retry operations.
var (
	retriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "paged_http_retries_total",
		Help: "Total number of retry attempts by error class",
	}, []string{"error_class"})

	retryBackoffSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "paged_http_retry_backoff_seconds",
		Help:    "Backoff duration for retries by error class",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"error_class"})

	retryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "paged_http_retry_exhausted_total",
		Help: "Total number of times retry attempts were exhausted by error class",
	}, []string{"error_class"})
)

// RetryConfig holds the configuration for retry logic.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts (including the initial request).
	MaxAttempts int

	// InitialBackoff is the initial backoff duration.
	InitialBackoff time.Duration

	// MaxBackoff is the maximum backoff duration. A Retry-After hint is capped to it.
	MaxBackoff time.Duration

	// BackoffMultiplier is the multiplier for exponential backoff.
	BackoffMultiplier float64
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       3,
		InitialBackoff:    1 * time.Second,
		MaxBackoff:        30 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

func (c RetryConfig) newBackOff() *hintedBackOff {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.InitialBackoff
	policy.MaxInterval = c.MaxBackoff
	if c.BackoffMultiplier > 0 {
		policy.Multiplier = c.BackoffMultiplier
	}
	policy.RandomizationFactor = 0.2
	policy.MaxElapsedTime = 0
	policy.Reset()
	return &hintedBackOff{BackOff: policy, max: c.MaxBackoff}
}

// hintedBackOff waits as long as the server asked for, when it asked,
// instead of the computed interval.
type hintedBackOff struct {
	backoff.BackOff
	hint time.Duration
	max  time.Duration
}

func (b *hintedBackOff) NextBackOff() time.Duration {
	next := b.BackOff.NextBackOff()
	if next == backoff.Stop {
		return next
	}
	if b.hint > 0 {
		next = b.hint
		if b.max > 0 && next > b.max {
			next = b.max
		}
	}
	b.hint = 0
	return next
}

// retryWithBackoff runs op until it succeeds, fails with an error class that
// is not worth retrying, runs out of attempts or ctx is done.
func retryWithBackoff(ctx context.Context, cfg RetryConfig, op func() (ErrorClass, error)) error {
	maxRetries := cfg.MaxAttempts - 1
	if maxRetries < 0 {
		maxRetries = 0
	}
	hinted := cfg.newBackOff()
	policy := backoff.WithContext(backoff.WithMaxRetries(hinted, uint64(maxRetries)), ctx)

	var (
		attempts  int
		lastClass ErrorClass
		permanent bool
	)

	err := backoff.RetryNotify(func() error {
		attempts++
		class, err := op()
		if err == nil {
			return nil
		}
		lastClass = class
		if !shouldRetry(class) {
			permanent = true
			return backoff.Permanent(err)
		}
		var httpErr *HTTPError
		if errors.As(err, &httpErr) {
			hinted.hint = httpErr.RetryAfter
		}
		return err
	}, policy, func(err error, wait time.Duration) {
		retriesTotal.WithLabelValues(string(lastClass)).Inc()
		retryBackoffSeconds.WithLabelValues(string(lastClass)).Observe(wait.Seconds())

		log.Debug().
			Err(err).
			Str("error_class", string(lastClass)).
			Int("attempt", attempts).
			Dur("backoff", wait).
			Msg("Retrying request after backoff")
	})

	switch {
	case err == nil:
		if attempts > 1 {
			log.Info().
				Str("error_class", string(lastClass)).
				Int("attempt", attempts).
				Msg("Request succeeded after retry")
		}
		return nil
	case permanent:
		return err
	case ctx.Err() != nil:
		log.Warn().
			Str("error_class", string(lastClass)).
			Int("attempt", attempts).
			Msg("Context cancelled during retry backoff")
		return fmt.Errorf("%w: %w", ErrContextCancelled, ctx.Err())
	}

	retryExhaustedTotal.WithLabelValues(string(lastClass)).Inc()
	log.Warn().
		Str("error_class", string(lastClass)).
		Int("max_attempts", cfg.MaxAttempts).
		Msg("Retry attempts exhausted")

	return fmt.Errorf("%w after %d attempts: %w", ErrRetryExhausted, attempts, err)
}
