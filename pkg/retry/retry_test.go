package retry

import (
	"context"
	"testing"
	"time"

	"github.com/poolcore/payd/pkg/errors"
)

func TestSucceedsFirstAttempt(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), DefaultConfig(), func() error {
		attempts++
		return nil
	})

	if err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
	if attempts != 1 {
		t.Errorf("Expected 1 attempt, got %d", attempts)
	}
}

func TestRetriesRetryableError(t *testing.T) {
	config := &Config{
		MaxAttempts: 3,
		BaseDelay:   time.Millisecond,
		MaxDelay:    5 * time.Millisecond,
		Multiplier:  2.0,
	}

	attempts := 0
	err := Do(context.Background(), config, func() error {
		attempts++
		if attempts < 3 {
			return errors.New(errors.ErrorTypeNetwork, "test", "transient failure")
		}
		return nil
	})

	if err != nil {
		t.Errorf("Expected eventual success, got %v", err)
	}
	if attempts != 3 {
		t.Errorf("Expected 3 attempts, got %d", attempts)
	}
}

func TestStopsOnNonRetryableError(t *testing.T) {
	config := &Config{
		MaxAttempts: 5,
		BaseDelay:   time.Millisecond,
		MaxDelay:    5 * time.Millisecond,
		Multiplier:  2.0,
	}

	attempts := 0
	err := Do(context.Background(), config, func() error {
		attempts++
		return errors.New(errors.ErrorTypeValidation, "test", "bad input")
	})

	if err == nil {
		t.Error("Expected the validation error returned")
	}
	if attempts != 1 {
		t.Errorf("Expected a single attempt, got %d", attempts)
	}
}

func TestExhaustsAttempts(t *testing.T) {
	config := &Config{
		MaxAttempts: 3,
		BaseDelay:   time.Millisecond,
		MaxDelay:    5 * time.Millisecond,
		Multiplier:  2.0,
	}

	attempts := 0
	err := Do(context.Background(), config, func() error {
		attempts++
		return errors.New(errors.ErrorTypeNetwork, "test", "always failing")
	})

	if err == nil {
		t.Error("Expected an error after exhausting attempts")
	}
	if attempts != 3 {
		t.Errorf("Expected 3 attempts, got %d", attempts)
	}
	if !errors.IsType(err, errors.ErrorTypeInternal) {
		t.Errorf("Expected the exhaustion wrapper, got %v", err)
	}
}

func TestContextCancellationStopsRetry(t *testing.T) {
	config := &Config{
		MaxAttempts: 10,
		BaseDelay:   50 * time.Millisecond,
		MaxDelay:    time.Second,
		Multiplier:  2.0,
	}

	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	err := Do(ctx, config, func() error {
		attempts++
		return errors.New(errors.ErrorTypeNetwork, "test", "failing")
	})

	if err != context.Canceled {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
	if attempts >= 10 {
		t.Errorf("Expected retries cut short, got %d attempts", attempts)
	}
}

func TestNilConfigUsesDefault(t *testing.T) {
	err := Do(context.Background(), nil, func() error {
		return nil
	})
	if err != nil {
		t.Errorf("Expected success with default config, got %v", err)
	}
}

func TestDoWithResultReturnsValue(t *testing.T) {
	config := &Config{
		MaxAttempts: 3,
		BaseDelay:   time.Millisecond,
		MaxDelay:    5 * time.Millisecond,
		Multiplier:  2.0,
	}

	attempts := 0
	result, err := DoWithResult(context.Background(), config, func() (string, error) {
		attempts++
		if attempts < 2 {
			return "", errors.New(errors.ErrorTypeNetwork, "test", "transient")
		}
		return "success", nil
	})

	if err != nil {
		t.Errorf("Expected success, got %v", err)
	}
	if result != "success" {
		t.Errorf("Expected result success, got %q", result)
	}
}

func TestDoWithResultZeroValueOnFailure(t *testing.T) {
	result, err := DoWithResult(context.Background(), DefaultConfig(), func() (int, error) {
		return 42, errors.New(errors.ErrorTypeValidation, "test", "bad input")
	})

	if err == nil {
		t.Error("Expected the error returned")
	}
	if result != 0 {
		t.Errorf("Expected the zero value on failure, got %d", result)
	}
}

func TestBackoffGrowsAndCaps(t *testing.T) {
	config := &Config{
		BaseDelay:  100 * time.Millisecond,
		MaxDelay:   300 * time.Millisecond,
		Multiplier: 2.0,
	}

	first := config.calculateDelay(0)
	second := config.calculateDelay(1)
	capped := config.calculateDelay(5)

	if first != 100*time.Millisecond {
		t.Errorf("Expected 100ms base delay, got %v", first)
	}
	if second != 200*time.Millisecond {
		t.Errorf("Expected 200ms second delay, got %v", second)
	}
	if capped != 300*time.Millisecond {
		t.Errorf("Expected the delay capped at 300ms, got %v", capped)
	}
}

func TestJitterStaysWithinBound(t *testing.T) {
	config := &Config{
		BaseDelay:  100 * time.Millisecond,
		MaxDelay:   time.Second,
		Multiplier: 2.0,
		Jitter:     true,
	}

	for i := 0; i < 20; i++ {
		delay := config.calculateDelay(0)
		if delay < 100*time.Millisecond || delay > 110*time.Millisecond {
			t.Errorf("Expected jittered delay within 10%%, got %v", delay)
		}
	}
}
