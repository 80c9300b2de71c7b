package resilience

import (
	"context"
	"fmt"
	"time"
)

// WithTimeout runs fn under a deadline. When the deadline passes first the
// returned error wraps context.DeadlineExceeded; when the parent context is
// cancelled first it wraps the parent's error. fn keeps running in the
// background until it observes its own cancelled context, so it must not
// publish results through shared state without checking the returned error.
// A non-positive timeout runs fn inline.
func WithTimeout(ctx context.Context, timeout time.Duration, name string, fn func(ctx context.Context) error) error {
	if timeout <= 0 {
		return fn(ctx)
	}
	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- fn(tctx) }()

	select {
	case err := <-done:
		return err
	case <-tctx.Done():
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		return fmt.Errorf("%s: %w after %v", name, context.DeadlineExceeded, timeout)
	}
}
