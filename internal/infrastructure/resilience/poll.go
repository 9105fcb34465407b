package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrPollExhausted is returned when the attempt budget ran out before the
// check reported completion.
var ErrPollExhausted = errors.New("poll attempts exhausted")

// PollPolicy is a fixed-interval wait with a hard attempt cap.
type PollPolicy struct {
	Interval    time.Duration
	MaxAttempts int
}

// Check observes a remote state once. done=true stops polling with the value;
// a non-nil error stops polling immediately.
type Check[T any] func(ctx context.Context, attempt int) (value T, done bool, err error)

// Poll calls check until it reports done, fails, the context ends or
// MaxAttempts observations were made. The interval is slept between attempts,
// never before the first one. On exhaustion the last observed value is
// returned together with ErrPollExhausted.
func Poll[T any](ctx context.Context, policy PollPolicy, check Check[T]) (T, error) {
	var last T
	attempts := policy.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return last, err
		}

		value, done, err := check(ctx, attempt)
		last = value
		if err != nil {
			return last, err
		}
		if done {
			return last, nil
		}
		if attempt == attempts {
			break
		}
		if !sleepCtx(ctx, policy.Interval) {
			return last, ctx.Err()
		}
	}
	return last, fmt.Errorf("%w after %d attempts", ErrPollExhausted, attempts)
}
