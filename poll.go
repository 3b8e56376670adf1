package recaptchabuster

import (
	"context"
	"github.com/benbjohnson/clock"
	"time"
)

// condition reports whether the awaited state has been reached.
// A non-nil error aborts the wait and is returned as is.
type condition func(ctx context.Context) (bool, error)

// waitFor evaluates cond immediately and then every interval until it holds
// or timeout has elapsed on clk, in which case a *TimeoutError is returned
func waitFor(ctx context.Context, clk clock.Clock, timeout, interval time.Duration, what string, cond condition) error {
	deadline := clk.Now().Add(timeout)
	for {
		ok, err := cond(ctx)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}

		remaining := deadline.Sub(clk.Now())
		if remaining <= 0 {
			return NewTimeoutError(what, timeout)
		}
		wait := interval
		if wait <= 0 || wait > remaining {
			wait = remaining
		}
		if err := sleep(ctx, clk, wait); err != nil {
			return err
		}
	}
}

// sleep blocks for d on clk or until ctx is done
func sleep(ctx context.Context, clk clock.Clock, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := clk.Timer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
