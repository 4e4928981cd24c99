package agent

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/haasonsaas/nexus/internal/backoff"
)

// RetryConfig controls the Retry Harness's backoff schedule and which
// provider failures it considers worth retrying.
type RetryConfig struct {
	// InitialBackoffMs is the delay before the first retry.
	InitialBackoffMs float64
	// BackoffFactor multiplies the delay on each subsequent attempt.
	BackoffFactor float64
	// MaxAttempts is the total number of provider calls allowed for one
	// chat invocation, including the first. MaxAttempts=1 disables retrying.
	MaxAttempts int
	// StatusCodes, if non-empty, retries whenever the error's message
	// contains one of these HTTP status codes, in addition to
	// isProviderRetryable's own classification. A nil/empty set defers
	// entirely to isProviderRetryable.
	StatusCodes map[int]struct{}
}

// DefaultRetryConfig matches the provider adapters' own failover defaults:
// three attempts, 100ms initial backoff doubling each time.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		InitialBackoffMs: 100,
		BackoffFactor:    2,
		MaxAttempts:      3,
	}
}

func (c RetryConfig) policy() backoff.BackoffPolicy {
	return backoff.BackoffPolicy{
		InitialMs: c.InitialBackoffMs,
		MaxMs:     c.InitialBackoffMs * 100,
		Factor:    c.BackoffFactor,
		// Jitter=0.5 puts the randomized delay in [base, base*1.5), i.e. an
		// additional jitter window of [0, base/2] on top of the base delay.
		Jitter: 0.5,
	}
}

// shouldRetry classifies err the same way FailoverOrchestrator does
// (classifyProviderError/isProviderRetryable in failover.go), so the harness
// needs no second error taxonomy or a cross-package dependency on the
// provider adapters.
func (c RetryConfig) shouldRetry(err error) bool {
	if len(c.StatusCodes) > 0 {
		msg := err.Error()
		for code := range c.StatusCodes {
			if strings.Contains(msg, strconv.Itoa(code)) {
				return true
			}
		}
	}
	return isProviderRetryable(err)
}

// RetryHarness wraps a single provider call with the agent's retry policy.
// Unlike FailoverOrchestrator, it never switches providers or models: it
// exists to absorb transient failures (rate limits, server errors) on the
// provider the caller already chose, re-running the full call from scratch
// on each attempt since a partially streamed response cannot be resumed.
type RetryHarness struct {
	config  RetryConfig
	emitter *EventEmitter
}

// NewRetryHarness builds a Retry Harness. emitter may be nil, in which case
// retry attempts are not reported as events.
func NewRetryHarness(config RetryConfig, emitter *EventEmitter) *RetryHarness {
	if config.MaxAttempts < 1 {
		config.MaxAttempts = 1
	}
	return &RetryHarness{config: config, emitter: emitter}
}

// Do runs fn, retrying on retryable provider errors according to the
// harness's policy. fn receives the 1-indexed attempt number and is expected
// to perform the entire provider call (including draining any stream) before
// returning, since the harness cannot resume a partial response.
//
// Do returns as soon as fn succeeds, the error is not retryable, attempts are
// exhausted, or ctx is cancelled while waiting out the backoff delay.
func (h *RetryHarness) Do(ctx context.Context, fn func(attempt int) error) error {
	var lastErr error

	for attempt := 1; attempt <= h.config.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := fn(attempt)
		if err == nil {
			return nil
		}
		lastErr = err

		if attempt >= h.config.MaxAttempts || !h.config.shouldRetry(err) {
			return lastErr
		}

		delay := backoff.ComputeBackoff(h.config.policy(), attempt)
		if h.emitter != nil {
			h.emitter.RetryAttempt(ctx, attempt, err.Error(), delay)
		}

		if sleepErr := backoff.SleepWithContext(ctx, delay); sleepErr != nil {
			return sleepErr
		}
	}

	return fmt.Errorf("retry harness: exhausted %d attempts: %w", h.config.MaxAttempts, lastErr)
}
