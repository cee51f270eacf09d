package client

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// fastRetry keeps the retry tests quick.
var fastRetry = RetryConfig{
	MaxAttempts:       3,
	InitialBackoff:    10 * time.Millisecond,
	MaxBackoff:        50 * time.Millisecond,
	BackoffMultiplier: 2.0,
}

func TestDefaultRetryConfig(t *testing.T) {
	config := DefaultRetryConfig()

	if config.MaxAttempts != 3 {
		t.Errorf("MaxAttempts = %d, want 3", config.MaxAttempts)
	}
	if config.InitialBackoff != 1*time.Second {
		t.Errorf("InitialBackoff = %v, want 1s", config.InitialBackoff)
	}
	if config.MaxBackoff != 30*time.Second {
		t.Errorf("MaxBackoff = %v, want 30s", config.MaxBackoff)
	}
	if config.BackoffMultiplier != 2.0 {
		t.Errorf("BackoffMultiplier = %f, want 2.0", config.BackoffMultiplier)
	}
}

func TestRetryWithBackoff_Success(t *testing.T) {
	callCount := 0
	err := retryWithBackoff(context.Background(), fastRetry, func() (ErrorClass, error) {
		callCount++
		return "", nil
	})

	if err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
	if callCount != 1 {
		t.Errorf("Expected 1 call, got %d", callCount)
	}
}

func TestRetryWithBackoff_SuccessAfterRetry(t *testing.T) {
	callCount := 0
	start := time.Now()
	err := retryWithBackoff(context.Background(), fastRetry, func() (ErrorClass, error) {
		callCount++
		if callCount < 3 {
			return ErrorClassServer, errors.New("temporary error")
		}
		return "", nil
	})
	duration := time.Since(start)

	if err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
	if callCount != 3 {
		t.Errorf("Expected 3 calls, got %d", callCount)
	}
	// two waits of at least 8ms each with ±20% jitter
	if duration < 15*time.Millisecond {
		t.Errorf("Expected some backoff delay, got %v", duration)
	}
}

func TestRetryWithBackoff_MaxAttemptsExhausted(t *testing.T) {
	callCount := 0
	testErr := errors.New("persistent error")
	err := retryWithBackoff(context.Background(), fastRetry, func() (ErrorClass, error) {
		callCount++
		return ErrorClassServer, testErr
	})

	if !errors.Is(err, ErrRetryExhausted) {
		t.Errorf("Expected ErrRetryExhausted, got %v", err)
	}
	if !errors.Is(err, testErr) {
		t.Errorf("Expected the last error to be wrapped, got %v", err)
	}
	if callCount != 3 {
		t.Errorf("Expected 3 calls (MaxAttempts), got %d", callCount)
	}
}

func TestRetryWithBackoff_SingleAttempt(t *testing.T) {
	cfg := fastRetry
	cfg.MaxAttempts = 1

	callCount := 0
	err := retryWithBackoff(context.Background(), cfg, func() (ErrorClass, error) {
		callCount++
		return ErrorClassNetwork, errors.New("down")
	})

	if !errors.Is(err, ErrRetryExhausted) {
		t.Errorf("Expected ErrRetryExhausted, got %v", err)
	}
	if callCount != 1 {
		t.Errorf("Expected 1 call, got %d", callCount)
	}
}

func TestRetryWithBackoff_ClientErrorNoRetry(t *testing.T) {
	callCount := 0
	testErr := errors.New("client error")
	err := retryWithBackoff(context.Background(), fastRetry, func() (ErrorClass, error) {
		callCount++
		return ErrorClassClient, testErr
	})

	if callCount != 1 {
		t.Errorf("Expected 1 call (no retry for client errors), got %d", callCount)
	}
	if errors.Is(err, ErrRetryExhausted) {
		t.Error("Should not return ErrRetryExhausted for client errors")
	}
	if !errors.Is(err, testErr) {
		t.Errorf("Expected original error, got %v", err)
	}
}

func TestRetryWithBackoff_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := fastRetry
	cfg.InitialBackoff = time.Second
	cfg.MaxBackoff = time.Second

	callCount := 0
	err := retryWithBackoff(ctx, cfg, func() (ErrorClass, error) {
		callCount++
		if callCount == 1 {
			cancel()
		}
		return ErrorClassServer, errors.New("server error")
	})

	if !errors.Is(err, ErrContextCancelled) {
		t.Errorf("Expected ErrContextCancelled, got %v", err)
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled to be wrapped, got %v", err)
	}
	if callCount != 1 {
		t.Errorf("Expected 1 call before cancellation, got %d", callCount)
	}
}

func TestRetryWithBackoff_HonoursRetryAfter(t *testing.T) {
	cfg := fastRetry
	cfg.InitialBackoff = time.Millisecond
	cfg.MaxBackoff = 200 * time.Millisecond

	callCount := 0
	start := time.Now()
	err := retryWithBackoff(context.Background(), cfg, func() (ErrorClass, error) {
		callCount++
		if callCount == 1 {
			return ErrorClassRateLimit, &HTTPError{StatusCode: 429, ErrorClass: ErrorClassRateLimit, RetryAfter: 100 * time.Millisecond}
		}
		return "", nil
	})

	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if elapsed := time.Since(start); elapsed < 100*time.Millisecond {
		t.Errorf("Retry-After not honoured: retried after %v", elapsed)
	}
}

func TestHintedBackOff_HintReplacesInterval(t *testing.T) {
	cfg := fastRetry
	cfg.InitialBackoff = 10 * time.Second
	cfg.MaxBackoff = time.Minute

	b := cfg.newBackOff()
	b.hint = 50 * time.Millisecond

	if got := b.NextBackOff(); got != 50*time.Millisecond {
		t.Errorf("NextBackOff() = %v, want the Retry-After hint 50ms", got)
	}
	// without a hint the computed interval is back
	if got := b.NextBackOff(); got < 5*time.Second {
		t.Errorf("NextBackOff() without hint = %v, want the exponential interval", got)
	}
}

func TestHintedBackOff_CapsHint(t *testing.T) {
	b := fastRetry.newBackOff()
	b.hint = time.Hour

	if got := b.NextBackOff(); got != fastRetry.MaxBackoff {
		t.Errorf("NextBackOff() = %v, want cap %v", got, fastRetry.MaxBackoff)
	}
	// the hint applies once
	if got := b.NextBackOff(); got == backoff.Stop || got > fastRetry.MaxBackoff {
		t.Errorf("NextBackOff() after hint = %v", got)
	}
}
