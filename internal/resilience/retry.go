package resilience

import (
	"context"
	"math"
	"math/rand"
	"time"

	"go.uber.org/zap"
)

// Backoff configures Retry.
type Backoff struct {
	Attempts   int           // total tries including the first; default 3
	Initial    time.Duration // delay before the first retry; default 1s
	Max        time.Duration // cap on any single delay, Retry-After included; default 60s
	Multiplier float64       // growth per retry; default 2
	Jitter     float64       // ± fraction of each delay; default 0.2

	// Retryable decides which errors are retried; IsTransient when nil.
	Retryable func(error) bool
	// OnRetry runs before each wait.
	OnRetry func(attempt int, delay time.Duration, err error)
}

func (b Backoff) withDefaults() Backoff {
	if b.Attempts <= 0 {
		b.Attempts = 3
	}
	if b.Initial <= 0 {
		b.Initial = time.Second
	}
	if b.Max <= 0 {
		b.Max = 60 * time.Second
	}
	if b.Multiplier < 1 {
		b.Multiplier = 2
	}
	if b.Jitter < 0 || b.Jitter >= 1 {
		b.Jitter = 0.2
	}
	if b.Retryable == nil {
		b.Retryable = IsTransient
	}
	return b
}

// Delay returns the wait before retry number attempt (1-based) without
// jitter, or the Retry-After hint of err when it is longer.
func (b Backoff) Delay(attempt int, err error) time.Duration {
	b = b.withDefaults()
	d := time.Duration(float64(b.Initial) * math.Pow(b.Multiplier, float64(attempt-1)))
	if hint := RetryAfterHint(err); hint > d {
		d = hint
	}
	if d > b.Max {
		d = b.Max
	}
	return d
}

// Retry calls fn until it succeeds, returns a non-retryable error, the
// attempts run out or ctx is done. The last error is returned.
func Retry[T any](ctx context.Context, b Backoff, fn func(ctx context.Context) (T, error)) (T, error) {
	b = b.withDefaults()
	var zero T
	for attempt := 1; ; attempt++ {
		v, err := fn(ctx)
		if err == nil {
			return v, nil
		}
		if ctx.Err() != nil || !b.Retryable(err) || attempt >= b.Attempts {
			return zero, err
		}

		delay := b.Delay(attempt, err)
		if b.Jitter > 0 {
			delay += time.Duration((rand.Float64()*2 - 1) * b.Jitter * float64(delay))
		}
		if b.OnRetry != nil {
			b.OnRetry(attempt, delay, err)
		}
		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return zero, err
		case <-t.C:
		}
	}
}

// LogRetry is an OnRetry callback that logs through the global logger.
func LogRetry(component, operation string) func(int, time.Duration, error) {
	return func(attempt int, delay time.Duration, err error) {
		zap.L().Warn("retrying",
			zap.String("component", component),
			zap.String("operation", operation),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
	}
}
