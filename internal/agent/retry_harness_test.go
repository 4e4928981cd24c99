package agent

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/haasonsaas/nexus/pkg/models"
)

func retryableStatusErr(status int) error {
	return fmt.Errorf("upstream request failed: status=%d", status)
}

func TestRetryHarnessRetriesThenSucceeds(t *testing.T) {
	config := RetryConfig{InitialBackoffMs: 10, BackoffFactor: 2, MaxAttempts: 3}
	emitter := NewEventEmitter("run-1", nil)
	h := NewRetryHarness(config, emitter)

	var attempts []int
	err := h.Do(context.Background(), func(attempt int) error {
		attempts = append(attempts, attempt)
		if attempt < 3 {
			return retryableStatusErr(503)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected eventual success, got %v", err)
	}
	if len(attempts) != 3 {
		t.Fatalf("expected 3 attempts, got %d: %v", len(attempts), attempts)
	}
}

func TestRetryHarnessEmitsRetryAttemptEventsWithinDelayWindow(t *testing.T) {
	config := RetryConfig{InitialBackoffMs: 10, BackoffFactor: 2, MaxAttempts: 3}

	var events []time.Duration
	sink := NewCallbackSink(func(_ context.Context, e models.AgentEvent) {
		if e.Type == models.AgentEventRetryAttempt && e.Retry != nil {
			events = append(events, e.Retry.Delay)
		}
	})
	emitter := NewEventEmitter("run-1", sink)
	h := NewRetryHarness(config, emitter)

	attempt := 0
	err := h.Do(context.Background(), func(a int) error {
		attempt = a
		if a < 3 {
			return retryableStatusErr(503)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if attempt != 3 {
		t.Fatalf("expected final attempt 3, got %d", attempt)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 RetryAttempt events, got %d", len(events))
	}
	if events[0] < 10*time.Millisecond || events[0] > 15*time.Millisecond {
		t.Errorf("first retry delay %v out of [10,15]ms", events[0])
	}
	if events[1] < 20*time.Millisecond || events[1] > 30*time.Millisecond {
		t.Errorf("second retry delay %v out of [20,30]ms", events[1])
	}
}

func TestRetryHarnessStopsAfterMaxAttempts(t *testing.T) {
	config := RetryConfig{InitialBackoffMs: 1, BackoffFactor: 1, MaxAttempts: 2}
	h := NewRetryHarness(config, nil)

	calls := 0
	err := h.Do(context.Background(), func(attempt int) error {
		calls++
		return retryableStatusErr(500)
	})
	if err == nil {
		t.Fatal("expected error after exhausting attempts")
	}
	if calls != 2 {
		t.Fatalf("expected exactly 2 calls (max_attempts), got %d", calls)
	}
}

func TestRetryHarnessDoesNotRetryNonRetryableError(t *testing.T) {
	h := NewRetryHarness(RetryConfig{InitialBackoffMs: 1, BackoffFactor: 1, MaxAttempts: 5}, nil)

	calls := 0
	err := h.Do(context.Background(), func(attempt int) error {
		calls++
		return retryableStatusErr(401)
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Fatalf("expected exactly 1 call for a non-retryable error, got %d", calls)
	}
}

func TestRetryHarnessRespectsCancellationDuringBackoff(t *testing.T) {
	h := NewRetryHarness(RetryConfig{InitialBackoffMs: 500, BackoffFactor: 1, MaxAttempts: 3}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	calls := 0
	err := h.Do(ctx, func(attempt int) error {
		calls++
		return retryableStatusErr(503)
	})
	if err == nil {
		t.Fatal("expected context error")
	}
	if calls != 1 {
		t.Fatalf("expected exactly 1 call before cancellation interrupted the backoff sleep, got %d", calls)
	}
}
