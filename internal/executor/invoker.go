package executor

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"time"
)

// WorkFunc performs one unit of work and returns its serialized result.
type WorkFunc func(ctx context.Context) ([]byte, error)

// RetryPolicy controls how the invoker retries a failing work function.
type RetryPolicy struct {
	// MaxRetries is the retry budget after the first attempt.
	MaxRetries int

	// BaseBackoff is the initial delay before the first retry; it doubles on
	// every subsequent attempt.
	BaseBackoff time.Duration

	// MaxBackoff caps the computed delay.
	MaxBackoff time.Duration

	// AttemptTimeout bounds a single attempt of the work function.
	AttemptTimeout time.Duration

	// IsRetryable classifies errors; nil means DefaultIsRetryable.
	IsRetryable func(error) bool
}

// withDefaults returns a copy of the policy with invalid fields replaced.
func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.MaxRetries < 0 {
		p.MaxRetries = 0
	}
	if p.BaseBackoff <= 0 {
		p.BaseBackoff = 500 * time.Millisecond
	}
	if p.MaxBackoff <= 0 {
		p.MaxBackoff = 30 * time.Second
	}
	if p.AttemptTimeout <= 0 {
		p.AttemptTimeout = time.Minute
	}
	if p.IsRetryable == nil {
		p.IsRetryable = DefaultIsRetryable
	}
	return p
}

// RetryingInvoker wraps a single unit-of-work call with a per-attempt
// timeout and exponential backoff with jitter. Waits are context-aware so a
// sleeping invocation never blocks sibling invocations or shutdown.
type RetryingInvoker struct {
	policy RetryPolicy
	logger *slog.Logger
}

// NewRetryingInvoker creates an invoker with the given policy.
func NewRetryingInvoker(policy RetryPolicy, logger *slog.Logger) *RetryingInvoker {
	return &RetryingInvoker{
		policy: policy.withDefaults(),
		logger: logger.With("component", "retrying_invoker"),
	}
}

// Invoke runs fn under the configured retry policy. Transient failures are
// retried up to MaxRetries times; non-transient failures are returned
// immediately. When the retry budget is exhausted the last cause is wrapped
// in an *InvocationError.
func (inv *RetryingInvoker) Invoke(ctx context.Context, fn WorkFunc) ([]byte, error) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	var lastErr error
	for attempt := 0; attempt <= inv.policy.MaxRetries; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, inv.policy.AttemptTimeout)
		value, err := fn(attemptCtx)
		cancel()

		if err == nil {
			return value, nil
		}
		lastErr = err

		if !inv.policy.IsRetryable(err) {
			inv.logger.Warn("permanent error, not retrying",
				"attempt", attempt+1,
				"error", err)
			return nil, err
		}

		if attempt == inv.policy.MaxRetries {
			break
		}

		// delay = base * 2^attempt * (0.5 + rand(0, 0.5)), capped
		backoff := float64(inv.policy.BaseBackoff) * math.Pow(2, float64(attempt))
		if backoff > float64(inv.policy.MaxBackoff) {
			backoff = float64(inv.policy.MaxBackoff)
		}
		jitter := 0.5 + rng.Float64()*0.5
		delay := time.Duration(backoff * jitter)

		inv.logger.Info("retrying after delay",
			"attempt", attempt+1,
			"max_attempts", inv.policy.MaxRetries+1,
			"delay", delay,
			"error", err)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, fmt.Errorf("invocation cancelled during backoff: %w", ctx.Err())
		}
	}

	return nil, &InvocationError{
		Attempts: inv.policy.MaxRetries + 1,
		Err:      lastErr,
	}
}
