package webdriver

import (
	"errors"

	"github.com/devicelab-dev/shopsmoke/pkg/core"
)

// W3C error codes the engine distinguishes.
const (
	codeNoSuchElement     = "no such element"
	codeStaleElement      = "stale element reference"
	codeNoSuchAlert       = "no such alert"
	codeUnexpectedAlert   = "unexpected alert open"
	codeSessionNotCreated = "session not created"
	codeNotInteractable   = "element not interactable"
	codeClickIntercepted  = "element click intercepted"
	codeJavascriptError   = "javascript error"
	codeInvalidSelector   = "invalid selector"
	codeInvalidArgument   = "invalid argument"
	codeTimeout           = "timeout"
	codeScriptTimeout     = "script timeout"
)

// mapError translates a client error into the engine's error taxonomy.
// Transport failures and unknown codes are driver faults.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	var wdErr *Error
	if !errors.As(err, &wdErr) {
		return core.ErrDriverFault.WithMessage("webdriver request failed").WithCause(err)
	}

	var target *core.ExecutionError
	switch wdErr.Code {
	case codeNoSuchElement:
		target = core.ErrElementNotFound
	case codeStaleElement:
		target = core.ErrStaleReference
	case codeNoSuchAlert:
		target = core.ErrAlertNotPresent
	case codeUnexpectedAlert:
		target = core.ErrUnexpectedAlert
	case codeNotInteractable, codeClickIntercepted:
		target = core.ErrNotInteractable
	case codeJavascriptError, codeScriptTimeout:
		target = core.ErrScriptFailed
	case codeInvalidSelector, codeInvalidArgument:
		target = core.ErrInvalidConfig
	case codeTimeout:
		target = core.ErrTimeoutExceeded
	case codeSessionNotCreated:
		target = core.ErrSessionNotCreated
	default:
		// no such window, invalid session id, unknown error, ...
		target = core.ErrDriverFault
	}
	if wdErr.Message != "" {
		target = target.WithMessage(wdErr.Message)
	}
	return target.WithCause(wdErr)
}
