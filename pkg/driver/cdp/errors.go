package cdp

import (
	"context"
	"errors"
	"strings"

	"github.com/chromedp/cdproto/runtime"

	"github.com/devicelab-dev/shopsmoke/pkg/core"
)

// mapError translates CDP failures and page exceptions into the engine's
// error taxonomy. CDP has no structured error codes, so this matches on the
// messages Chrome and the page scripts produce.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	var execErr *core.ExecutionError
	if errors.As(err, &execErr) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return core.ErrTimeoutExceeded.WithMessage("devtools command timed out").WithCause(err)
	}

	msg := err.Error()
	switch {
	case strings.Contains(msg, staleMarker),
		strings.Contains(msg, "Could not find object with given id"),
		strings.Contains(msg, "Cannot find context with specified id"),
		strings.Contains(msg, "Node with given id does not belong to the document"):
		return core.ErrStaleReference.WithMessage("element is no longer attached to the page").WithCause(err)
	case strings.Contains(msg, notInteractableMarker):
		return core.ErrNotInteractable.WithMessage("element has no visible area").WithCause(err)
	case strings.Contains(msg, "is not a valid selector"),
		strings.Contains(msg, "is not a valid XPath expression"):
		return core.ErrInvalidConfig.WithMessage("invalid selector").WithCause(err)
	case strings.Contains(msg, "No dialog is showing"):
		return core.ErrAlertNotPresent.WithCause(err)
	}
	return core.ErrDriverFault.WithMessage("devtools command failed").WithCause(err)
}

// scriptException is a page exception with the thrown value's description,
// which runtime.ExceptionDetails.Error omits.
type scriptException struct {
	details *runtime.ExceptionDetails
}

func (e *scriptException) Error() string {
	msg := e.details.Text
	if e.details.Exception != nil && e.details.Exception.Description != "" {
		msg += " " + e.details.Exception.Description
	}
	return msg
}

// exceptionError maps a page script exception. Element script failures are
// classified by mapError; anything else is a script failure.
func exceptionError(details *runtime.ExceptionDetails) error {
	if details == nil {
		return nil
	}
	exc := &scriptException{details: details}
	mapped := mapError(exc)
	if core.IsDriverFault(mapped) {
		return core.ErrScriptFailed.WithMessage(exc.Error()).WithCause(exc)
	}
	return mapped
}
