// Package wait polls a boolean condition until it holds or a deadline passes.
//
// Every readiness check in the suite goes through Until: element visibility,
// window counts, page titles, dialog state. Errors from the condition itself
// are returned as-is; only running out of time produces an errs.Timeout.
package wait

import (
	"time"

	"github.com/kuitang/persona-e2e/internal/errs"
)

// DefaultInterval is the polling interval used by Until.
const DefaultInterval = 250 * time.Millisecond

// Condition reports whether the awaited state holds.
type Condition func() (bool, error)

// Until polls cond every DefaultInterval until it returns true, returns an
// error, or timeout elapses.
func Until(timeout time.Duration, description string, cond Condition) error {
	return poll(DefaultInterval, timeout, description, cond)
}

// Waiter carries the interval and default timeout for a session.
type Waiter struct {
	Interval time.Duration
	Timeout  time.Duration
}

// New returns a Waiter, falling back to DefaultInterval for a non-positive interval.
func New(interval, timeout time.Duration) Waiter {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return Waiter{Interval: interval, Timeout: timeout}
}

// For waits for cond using the Waiter's default timeout.
func (w Waiter) For(description string, cond Condition) error {
	return w.Within(w.Timeout, description, cond)
}

// Within waits for cond using an explicit timeout.
func (w Waiter) Within(timeout time.Duration, description string, cond Condition) error {
	interval := w.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	return poll(interval, timeout, description, cond)
}

func poll(interval, timeout time.Duration, description string, cond Condition) error {
	start := time.Now()
	deadline := start.Add(timeout)
	for {
		ok, err := cond()
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return errs.Newf(errs.Timeout, "timed out after %s waiting for %s", timeout, description)
		}
		if remaining < interval {
			time.Sleep(remaining)
		} else {
			time.Sleep(interval)
		}
	}
}
