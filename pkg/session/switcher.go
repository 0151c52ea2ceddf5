package session

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/devicelab-dev/shopsmoke/pkg/core"
	"github.com/devicelab-dev/shopsmoke/pkg/logger"
	"github.com/devicelab-dev/shopsmoke/pkg/wait"
)

// Switcher moves the session between browsing contexts (windows, tabs,
// popups). It is the only code that changes the session's known contexts.
// Every method either completes the switch or leaves the active context,
// the known set and the return stack as they were.
type Switcher struct {
	s *Session
}

// NewSwitcher returns a switcher for s.
func NewSwitcher(s *Session) *Switcher {
	return &Switcher{s: s}
}

// AwaitNew waits for exactly one context that the session does not know yet
// and switches to it. More than one unknown context at once counts as not
// ready; it resolves only if the surplus closes before timeout.
func (sw *Switcher) AwaitNew(timeout time.Duration) (string, error) {
	s := sw.s
	timeout = s.TimeoutOr(timeout)
	snapshot := slices.Clone(s.known)

	handle, err := wait.Until(timeout, s.Interval(), func() (string, error) {
		live, err := s.browser.ContextHandles()
		if err != nil {
			return "", err
		}
		var fresh []string
		for _, h := range live {
			if !slices.Contains(snapshot, h) {
				fresh = append(fresh, h)
			}
		}
		switch len(fresh) {
		case 0:
			return "", wait.NotYet("%d context(s) open, none new", len(live))
		case 1:
			return fresh[0], nil
		default:
			return "", wait.NotYet("%d new contexts open, expected exactly one", len(fresh))
		}
	})
	if err != nil {
		return "", switchTimeout(err, "no new browsing context appeared within %s", timeout)
	}

	previous := s.active
	if err := sw.switchTo(handle, previous); err != nil {
		return "", err
	}
	s.known = append(s.known, handle)
	s.returns = append(s.returns, previous)
	logger.Info("switched to new context %s (from %s)", handle, previous)
	return handle, nil
}

// AwaitClosed waits for the active context to close, then switches back to
// the context that was active before it.
func (sw *Switcher) AwaitClosed(timeout time.Duration) (string, error) {
	s := sw.s
	timeout = s.TimeoutOr(timeout)
	closing := s.active

	live, err := wait.Until(timeout, s.Interval(), func() ([]string, error) {
		live, err := s.browser.ContextHandles()
		if err != nil {
			return nil, err
		}
		if slices.Contains(live, closing) {
			return nil, wait.NotYet("context %s is still open", closing)
		}
		return live, nil
	})
	if err != nil {
		return "", switchTimeout(err, "context %s did not close within %s", closing, timeout)
	}

	target, depth := sw.returnTarget(live, closing)
	if target == "" {
		return "", core.ErrDriverFault.WithMessagef("no open context to return to after %s closed", closing)
	}
	if err := sw.switchTo(target, ""); err != nil {
		return "", err
	}

	s.known = slices.DeleteFunc(s.known, func(h string) bool {
		return h == closing || !slices.Contains(live, h)
	})
	s.returns = s.returns[:depth]
	logger.Info("context %s closed, switched back to %s", closing, target)
	return target, nil
}

// Restore switches back to the primary context if the session drifted away
// from it and it is still open. Contexts that have closed are forgotten.
func (sw *Switcher) Restore() error {
	s := sw.s
	if s.active == s.primary {
		return nil
	}
	live, err := s.browser.ContextHandles()
	if err != nil {
		return err
	}
	if !slices.Contains(live, s.primary) {
		return core.ErrDriverFault.WithMessagef("primary context %s is gone", s.primary)
	}
	if err := sw.switchTo(s.primary, ""); err != nil {
		return err
	}
	s.known = slices.DeleteFunc(s.known, func(h string) bool { return !slices.Contains(live, h) })
	s.returns = nil
	logger.Info("restored primary context %s", s.primary)
	return nil
}

// returnTarget picks the most recent still-open context from the return
// stack, falling back to the first open known context. depth is the stack
// length to keep.
func (sw *Switcher) returnTarget(live []string, closing string) (string, int) {
	s := sw.s
	for i := len(s.returns) - 1; i >= 0; i-- {
		h := s.returns[i]
		if h != closing && slices.Contains(live, h) {
			return h, i
		}
	}
	for _, h := range s.known {
		if h != closing && slices.Contains(live, h) {
			return h, 0
		}
	}
	return "", 0
}

// switchTo performs the protocol switch and, on failure, tries to put the
// driver back on fallback so session state and driver state agree.
func (sw *Switcher) switchTo(handle, fallback string) error {
	s := sw.s
	if err := s.browser.SwitchToContext(handle); err != nil {
		if fallback != "" {
			if rerr := s.browser.SwitchToContext(fallback); rerr != nil {
				logger.Warn("restore context %s after failed switch: %v", fallback, rerr)
			}
		}
		return fmt.Errorf("switch to context %s: %w", handle, err)
	}
	s.active = handle
	s.Advance()
	return nil
}

func switchTimeout(err error, format string, args ...interface{}) error {
	if errors.Is(err, core.ErrTimeoutExceeded) {
		return core.ErrContextSwitchTimeout.WithMessagef(format, args...).WithCause(err)
	}
	return err
}
