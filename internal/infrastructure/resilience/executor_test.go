package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
)

func TestExecuteRetriesTemporaryFailure(t *testing.T) {
	exec := NewExecutor(Config{
		RetryMaxAttempts:    3,
		RetryInitialBackoff: 1 * time.Millisecond,
		RetryMaxBackoff:     2 * time.Millisecond,
		RetryMultiplier:     2,
		BreakerEnabled:      false,
	})

	attempts := 0
	errTemp := errors.New("temporary")
	err := exec.Execute(context.Background(), "op", func(context.Context) error {
		attempts++
		if attempts < 3 {
			return errTemp
		}
		return nil
	}, func(err error) ErrorClassification {
		return ErrorClassification{
			Retryable:     errors.Is(err, errTemp),
			RecordFailure: true,
		}
	})
	if err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
}

func TestExecuteDoesNotRetryPermanentFailure(t *testing.T) {
	exec := NewExecutor(Config{
		RetryMaxAttempts:    3,
		RetryInitialBackoff: 1 * time.Millisecond,
		RetryMaxBackoff:     2 * time.Millisecond,
		RetryMultiplier:     2,
		BreakerEnabled:      false,
	})

	attempts := 0
	errPermanent := errors.New("permanent")
	err := exec.Execute(context.Background(), "op", func(context.Context) error {
		attempts++
		return errPermanent
	}, func(error) ErrorClassification {
		return ErrorClassification{
			Retryable:     false,
			RecordFailure: false,
		}
	})
	if !errors.Is(err, errPermanent) {
		t.Fatalf("expected permanent error, got %v", err)
	}
	if attempts != 1 {
		t.Fatalf("expected 1 attempt, got %d", attempts)
	}
}

func TestExecuteOpensCircuitAfterFailures(t *testing.T) {
	exec := NewExecutor(Config{
		RetryMaxAttempts:        1,
		RetryInitialBackoff:     1 * time.Millisecond,
		RetryMaxBackoff:         1 * time.Millisecond,
		RetryMultiplier:         2,
		BreakerEnabled:          true,
		BreakerMinRequests:      2,
		BreakerFailureRatio:     0.5,
		BreakerOpenTimeout:      50 * time.Millisecond,
		BreakerHalfOpenMaxCalls: 1,
	})

	errTemp := errors.New("temporary")
	classifier := func(error) ErrorClassification {
		return ErrorClassification{
			Retryable:     false,
			RecordFailure: true,
		}
	}

	for i := 0; i < 2; i++ {
		err := exec.Execute(context.Background(), "op", func(context.Context) error {
			return errTemp
		}, classifier)
		if !errors.Is(err, errTemp) {
			t.Fatalf("expected temporary error on iteration %d, got %v", i, err)
		}
	}

	err := exec.Execute(context.Background(), "op", func(context.Context) error {
		t.Fatalf("circuit should be open and must not call operation")
		return nil
	}, classifier)
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Fatalf("expected open state error, got %v", err)
	}
}

func TestExecuteRateLimitsPerOperation(t *testing.T) {
	exec := NewExecutor(Config{
		RetryMaxAttempts: 1,
		BreakerEnabled:   false,
		RateLimitRPS:     20,
		RateLimitBurst:   1,
	})

	started := time.Now()
	for i := 0; i < 3; i++ {
		if err := exec.Execute(context.Background(), "gaia.classify", func(context.Context) error { return nil }, nil); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if elapsed := time.Since(started); elapsed < 80*time.Millisecond {
		t.Fatalf("expected limiter to pace calls, took %v", elapsed)
	}

	started = time.Now()
	if err := exec.Execute(context.Background(), "gaia.tariff_detail", func(context.Context) error { return nil }, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if elapsed := time.Since(started); elapsed > 40*time.Millisecond {
		t.Fatalf("expected separate bucket per operation, took %v", elapsed)
	}
}

func TestExecuteRateLimitRespectsContext(t *testing.T) {
	exec := NewExecutor(Config{
		RetryMaxAttempts: 1,
		BreakerEnabled:   false,
		RateLimitRPS:     0.5,
		RateLimitBurst:   1,
	})
	if err := exec.Execute(context.Background(), "op", func(context.Context) error { return nil }, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	called := false
	err := exec.Execute(ctx, "op", func(context.Context) error {
		called = true
		return nil
	}, nil)
	if err == nil {
		t.Fatalf("expected rate limit wait to fail")
	}
	if called {
		t.Fatalf("operation must not run without a token")
	}
}

func TestExecuteRateLimitScope(t *testing.T) {
	exec := NewExecutor(Config{
		RetryMaxAttempts: 1,
		BreakerEnabled:   false,
		RateLimitRPS:     0.5,
		RateLimitBurst:   1,
		RateLimitScope:   "gaia.",
	})

	started := time.Now()
	for i := 0; i < 3; i++ {
		if err := exec.Execute(context.Background(), "ollama.generate", func(context.Context) error { return nil }, nil); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if elapsed := time.Since(started); elapsed > 40*time.Millisecond {
		t.Fatalf("operations outside the scope must not be throttled, took %v", elapsed)
	}
}

type recordingObserver struct {
	retries int
	opened  []string
}

func (o *recordingObserver) ObserveRetry(string) { o.retries++ }

func (o *recordingObserver) ObserveBreakerState(operation string, open bool) {
	if open {
		o.opened = append(o.opened, operation)
	}
}

func TestExecuteReportsRetriesAndBreakerState(t *testing.T) {
	observer := &recordingObserver{}
	exec := NewExecutor(Config{
		RetryMaxAttempts:    2,
		RetryInitialBackoff: time.Millisecond,
		RetryMaxBackoff:     time.Millisecond,
		BreakerEnabled:      true,
		BreakerMinRequests:  1,
		BreakerFailureRatio: 1,
		Observer:            observer,
	})
	retryable := func(error) ErrorClassification {
		return ErrorClassification{Retryable: true, RecordFailure: true}
	}

	_ = exec.Execute(context.Background(), "gaia.classify", func(context.Context) error {
		return errors.New("unavailable")
	}, retryable)

	if observer.retries != 1 {
		t.Fatalf("expected one retry, got %d", observer.retries)
	}
	if len(observer.opened) != 1 || observer.opened[0] != "gaia.classify" {
		t.Fatalf("expected breaker to open for gaia.classify, got %v", observer.opened)
	}
}

func TestExecuteHonoursRetryAfter(t *testing.T) {
	exec := NewExecutor(Config{
		RetryMaxAttempts:    2,
		RetryInitialBackoff: time.Millisecond,
		RetryMaxBackoff:     time.Millisecond,
		RetryAfterMax:       60 * time.Millisecond,
		BreakerEnabled:      false,
	})

	attempts := 0
	started := time.Now()
	err := exec.Execute(context.Background(), "gaia.classify", func(context.Context) error {
		attempts++
		if attempts == 1 {
			return &HTTPStatusError{StatusCode: 429, Status: "429 Too Many Requests", RetryAfter: time.Minute}
		}
		return nil
	}, ClassifyHTTPError)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	elapsed := time.Since(started)
	if elapsed < 50*time.Millisecond || elapsed > time.Second {
		t.Fatalf("expected the capped Retry-After wait, took %v", elapsed)
	}
}
