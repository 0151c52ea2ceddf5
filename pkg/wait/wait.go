// Package wait polls browser state until a condition holds or a deadline
// passes. It is the only place in the engine that sleeps.
package wait

import (
	"errors"
	"fmt"
	"time"

	"github.com/devicelab-dev/shopsmoke/pkg/core"
)

const (
	DefaultTimeout  = 10 * time.Second
	DefaultInterval = 100 * time.Millisecond
)

// ErrNotYet is returned by a probe whose condition does not hold yet.
var ErrNotYet = errors.New("condition not satisfied yet")

// NotYet returns a transient error carrying a description of what was observed.
func NotYet(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrNotYet, fmt.Sprintf(format, args...))
}

// Probe observes the browser once.
type Probe[T any] func() (T, error)

// Check is a boolean probe used by First.
type Check func() (bool, error)

// Until calls probe until it succeeds, fails with a non-transient error, or
// timeout elapses. Transient errors (ErrNotYet and the lookup errors in core)
// keep polling; any other error is returned as is. On timeout the result is
// core.ErrTimeoutExceeded wrapping the last transient observation.
func Until[T any](timeout, interval time.Duration, probe Probe[T]) (T, error) {
	if interval <= 0 {
		interval = DefaultInterval
	}

	start := time.Now()
	deadline := start.Add(timeout)
	attempts := 0
	var lastErr error

	for {
		attempts++
		v, err := probe()
		if err == nil {
			return v, nil
		}
		if !isTransient(err) {
			return v, err
		}
		lastErr = err

		remaining := time.Until(deadline)
		if remaining <= 0 {
			var zero T
			return zero, core.ErrTimeoutExceeded.
				WithMessagef("timed out after %s", timeout).
				WithCause(lastErr).
				WithDetails(map[string]interface{}{
					"timeout":  timeout.String(),
					"attempts": attempts,
					"elapsed":  time.Since(start).String(),
				})
		}
		time.Sleep(min(interval, remaining))
	}
}

// For polls a boolean check until it reports true.
func For(timeout, interval time.Duration, check Check) error {
	_, err := Until(timeout, interval, func() (struct{}, error) {
		ok, err := check()
		if err != nil {
			return struct{}{}, err
		}
		if !ok {
			return struct{}{}, ErrNotYet
		}
		return struct{}{}, nil
	})
	return err
}

// First races checks and returns the index of the first one observed true.
// Each attempt evaluates the checks in order; a transient error from one
// check does not stop the others from being evaluated in the same attempt.
func First(timeout, interval time.Duration, checks ...Check) (int, error) {
	if len(checks) == 0 {
		return -1, core.ErrMissingRequired.WithMessage("no conditions to wait for")
	}
	return Until(timeout, interval, func() (int, error) {
		var transient error
		for i, check := range checks {
			ok, err := check()
			if err != nil {
				if !isTransient(err) {
					return -1, err
				}
				transient = err
				continue
			}
			if ok {
				return i, nil
			}
		}
		if transient != nil {
			return -1, transient
		}
		return -1, ErrNotYet
	})
}

// isTransient looks at the outermost classified error only, so a nested
// timeout caused by ErrNotYet ends the outer wait.
func isTransient(err error) bool {
	if _, ok := core.AsExecutionError(err); ok {
		return core.IsTransient(err)
	}
	return errors.Is(err, ErrNotYet)
}
