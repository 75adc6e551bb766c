package utils

import (
	"context"
	"errors"
	"fmt"
	"time"

	"order-sla-extractor/internal/types"
)

// WaitTimeout is returned by Poll when the condition never held within the timeout
type WaitTimeout struct {
	What    string
	Elapsed time.Duration
	LastErr error
}

func (e *WaitTimeout) Error() string {
	if e.LastErr != nil {
		return fmt.Sprintf("timed out after %v waiting for %s (last error: %v)", e.Elapsed, e.What, e.LastErr)
	}
	return fmt.Sprintf("timed out after %v waiting for %s", e.Elapsed, e.What)
}

func (e *WaitTimeout) Unwrap() error { return e.LastErr }

// IsTimeout reports whether err is a *WaitTimeout.
func IsTimeout(err error) bool {
	var wt *WaitTimeout
	return errors.As(err, &wt)
}

// Condition is checked repeatedly by Poll. Errors are treated as "not yet".
type Condition func(ctx context.Context) (bool, error)

// PollOptions bounds a polling loop
type PollOptions struct {
	What        string
	Timeout     time.Duration
	Interval    time.Duration
	MaxInterval time.Duration
	Backoff     float64
	Clock       types.Clock
}

// PollOptionsFrom builds options from the runtime config.
func PollOptionsFrom(cfg *types.Config, clock types.Clock, what string, timeout time.Duration) PollOptions {
	return PollOptions{
		What:        what,
		Timeout:     timeout,
		Interval:    cfg.PollInterval,
		MaxInterval: cfg.MaxPollInterval,
		Backoff:     1.1,
		Clock:       clock,
	}
}

// Poll checks cond immediately and then on a growing interval until it holds,
// the timeout elapses or ctx is done.
func Poll(ctx context.Context, opts PollOptions, cond Condition) error {
	clock := opts.Clock
	if clock == nil {
		clock = types.SystemClock{}
	}
	interval := opts.Interval
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	start := clock.Now()
	var lastErr error

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		ok, err := cond(ctx)
		if ok {
			return nil
		}
		if err != nil {
			lastErr = err
		}

		elapsed := clock.Now().Sub(start)
		if elapsed >= opts.Timeout {
			return &WaitTimeout{What: opts.What, Elapsed: elapsed, LastErr: lastErr}
		}

		wait := interval
		if remaining := opts.Timeout - elapsed; wait > remaining {
			wait = remaining
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-clock.After(wait):
		}

		if opts.Backoff > 1 {
			interval = time.Duration(float64(interval) * opts.Backoff)
			if opts.MaxInterval > 0 && interval > opts.MaxInterval {
				interval = opts.MaxInterval
			}
		}
	}
}
