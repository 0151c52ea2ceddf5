// Package locator resolves Locators to element handles and acts on them,
// re-resolving once when a handle has gone stale.
package locator

import (
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/devicelab-dev/shopsmoke/pkg/core"
	"github.com/devicelab-dev/shopsmoke/pkg/logger"
	"github.com/devicelab-dev/shopsmoke/pkg/session"
	"github.com/devicelab-dev/shopsmoke/pkg/wait"
)

// Handle is a resolved element. It is valid only while the session's DOM
// generation equals Generation; the Locator and Index are kept so a stale
// handle can be resolved again.
type Handle struct {
	Ref        core.ElementRef
	Locator    core.Locator
	Index      int
	Generation uint64
}

// String describes the handle for logs and failure messages.
func (h Handle) String() string {
	return fmt.Sprintf("%s[%d]", h.Locator, h.Index)
}

// Action is something done to a single element.
type Action func(ref core.ElementRef) error

// Resolver finds elements in the session's active context.
type Resolver struct {
	s *session.Session
}

// New returns a resolver for s.
func New(s *session.Session) *Resolver {
	return &Resolver{s: s}
}

// All lazily yields a handle per current match of loc. Iteration stops with
// a StaleReference error if the DOM generation changes while the caller is
// consuming handles.
func (r *Resolver) All(loc core.Locator) iter.Seq2[Handle, error] {
	return func(yield func(Handle, error) bool) {
		gen := r.s.Generation()
		refs, err := r.s.Browser().FindElements(loc)
		if err != nil {
			yield(Handle{}, err)
			return
		}
		for i, ref := range refs {
			if r.s.Generation() != gen {
				yield(Handle{}, core.ErrStaleReference.WithMessagef("%s changed while iterating at index %d", loc, i))
				return
			}
			if !yield(Handle{Ref: ref, Locator: loc, Index: i, Generation: gen}, nil) {
				return
			}
		}
	}
}

// Resolve returns every current match of loc without waiting.
func (r *Resolver) Resolve(loc core.Locator) ([]Handle, error) {
	var handles []Handle
	for h, err := range r.All(loc) {
		if err != nil {
			return nil, err
		}
		handles = append(handles, h)
	}
	return handles, nil
}

// Count returns how many elements currently match loc.
func (r *Resolver) Count(loc core.Locator) (int, error) {
	refs, err := r.s.Browser().FindElements(loc)
	if err != nil {
		return 0, err
	}
	return len(refs), nil
}

// Present reports whether at least one element matches loc right now.
func (r *Resolver) Present(loc core.Locator) (bool, error) {
	n, err := r.Count(loc)
	return n > 0, err
}

// One waits up to timeout for loc to match and returns the first match.
func (r *Resolver) One(loc core.Locator, timeout time.Duration) (Handle, error) {
	return r.Nth(loc, 0, timeout)
}

// Nth waits up to timeout for loc to match more than index elements and
// returns the index-th. When fewer appear, the error names how many were
// found instead of indexing out of range.
func (r *Resolver) Nth(loc core.Locator, index int, timeout time.Duration) (Handle, error) {
	if index < 0 {
		return Handle{}, core.ErrInvalidConfig.WithMessagef("negative index %d for %s", index, loc)
	}
	timeout = r.s.TimeoutOr(timeout)
	found := 0

	h, err := wait.Until(timeout, r.s.Interval(), func() (Handle, error) {
		handles, err := r.Resolve(loc)
		if err != nil {
			return Handle{}, err
		}
		found = len(handles)
		if found == 0 {
			return Handle{}, core.ErrElementNotFound.WithMessagef("no element matches %s", loc)
		}
		if index >= found {
			return Handle{}, wait.NotYet("%d element(s) match %s, need index %d", found, loc, index)
		}
		return handles[index], nil
	})
	if err == nil {
		return h, nil
	}
	if !errors.Is(err, core.ErrTimeoutExceeded) {
		return Handle{}, err
	}
	if found == 0 {
		return Handle{}, core.ErrElementNotFound.
			WithMessagef("no element matches %s after %s", loc, timeout).
			WithCause(err)
	}
	return Handle{}, core.ErrIndexOutOfRange.
		WithMessagef("only %d element(s) match %s, wanted index %d", found, loc, index).
		WithDetails(map[string]interface{}{"found": found, "index": index}).
		WithCause(err)
}

// ActOn runs action against h. If h is stale, either because the DOM
// generation moved on or because the browser reports it detached, the
// original locator is resolved again at the same index and the action is
// retried exactly once. A second failure is returned as is.
func (r *Resolver) ActOn(h Handle, action Action) error {
	err := r.attempt(h, action)
	if !errors.Is(err, core.ErrStaleReference) {
		return err
	}

	logger.Debug("stale handle %s, re-resolving", h)
	fresh, rerr := r.Nth(h.Locator, h.Index, 0)
	if rerr != nil {
		return fmt.Errorf("re-resolve stale %s: %w", h, rerr)
	}
	return r.attempt(fresh, action)
}

func (r *Resolver) attempt(h Handle, action Action) error {
	if h.Generation != r.s.Generation() {
		return core.ErrStaleReference.WithMessagef("%s resolved before the page changed", h)
	}
	return action(h.Ref)
}

// Click clicks h. A click may re-render the page, so every outstanding
// handle is invalidated afterwards.
func (r *Resolver) Click(h Handle) error {
	err := r.ActOn(h, r.s.Browser().Click)
	r.s.Advance()
	return err
}

// Type sends text to h.
func (r *Resolver) Type(h Handle, text string) error {
	return r.ActOn(h, func(ref core.ElementRef) error {
		return r.s.Browser().SendKeys(ref, text)
	})
}
