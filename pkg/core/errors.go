package core

import (
	"errors"
	"fmt"
)

// ExecutionError represents a structured error with category and details
type ExecutionError struct {
	Category ErrorCategory
	Code     string                 // Machine-readable code: element_not_found, timeout, etc.
	Message  string                 // Human-readable message
	Details  map[string]interface{} // Additional context
	Cause    error                  // Underlying error
}

// Error implements the error interface
func (e *ExecutionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying error for errors.Is/As support
func (e *ExecutionError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an ExecutionError with the same code.
// This lets callers match copies made by WithCause/WithMessage against
// the predefined errors.
func (e *ExecutionError) Is(target error) bool {
	t, ok := target.(*ExecutionError)
	if !ok {
		return false
	}
	return t.Code != "" && t.Code == e.Code
}

// WithCause returns a copy of the error with the given cause
func (e *ExecutionError) WithCause(cause error) *ExecutionError {
	return &ExecutionError{
		Category: e.Category,
		Code:     e.Code,
		Message:  e.Message,
		Details:  e.Details,
		Cause:    cause,
	}
}

// WithMessage returns a copy of the error with a custom message
func (e *ExecutionError) WithMessage(msg string) *ExecutionError {
	return &ExecutionError{
		Category: e.Category,
		Code:     e.Code,
		Message:  msg,
		Details:  e.Details,
		Cause:    e.Cause,
	}
}

// WithMessagef is WithMessage with formatting.
func (e *ExecutionError) WithMessagef(format string, args ...interface{}) *ExecutionError {
	return e.WithMessage(fmt.Sprintf(format, args...))
}

// WithDetails returns a copy of the error with additional details
func (e *ExecutionError) WithDetails(details map[string]interface{}) *ExecutionError {
	merged := make(map[string]interface{})
	for k, v := range e.Details {
		merged[k] = v
	}
	for k, v := range details {
		merged[k] = v
	}
	return &ExecutionError{
		Category: e.Category,
		Code:     e.Code,
		Message:  e.Message,
		Details:  merged,
		Cause:    e.Cause,
	}
}

// Predefined errors. Backends map their native failures onto these.
var (
	// Lookup errors. ElementNotFound, StaleReference, AlertNotPresent and
	// UnexpectedAlert are transient: pollers keep retrying on them.
	ErrElementNotFound = &ExecutionError{
		Category: ErrCategoryLookup,
		Code:     "element_not_found",
		Message:  "element not found",
	}
	ErrStaleReference = &ExecutionError{
		Category: ErrCategoryLookup,
		Code:     "stale_reference",
		Message:  "element reference is stale",
	}
	ErrAlertNotPresent = &ExecutionError{
		Category: ErrCategoryLookup,
		Code:     "alert_not_present",
		Message:  "no alert is open",
	}
	ErrUnexpectedAlert = &ExecutionError{
		Category: ErrCategoryLookup,
		Code:     "unexpected_alert",
		Message:  "an alert is blocking the page",
	}
	ErrIndexOutOfRange = &ExecutionError{
		Category: ErrCategoryLookup,
		Code:     "index_out_of_range",
		Message:  "not enough matching elements",
	}
	ErrNotInteractable = &ExecutionError{
		Category: ErrCategoryLookup,
		Code:     "not_interactable",
		Message:  "element cannot be interacted with",
	}

	// Assertion errors
	ErrConditionNotMet = &ExecutionError{
		Category: ErrCategoryAssertion,
		Code:     "condition_not_met",
		Message:  "condition was not met",
	}
	ErrTextMismatch = &ExecutionError{
		Category: ErrCategoryAssertion,
		Code:     "text_mismatch",
		Message:  "text does not match expected value",
	}
	ErrCountMismatch = &ExecutionError{
		Category: ErrCategoryAssertion,
		Code:     "count_mismatch",
		Message:  "element count outside expected range",
	}
	ErrScriptFailed = &ExecutionError{
		Category: ErrCategoryAssertion,
		Code:     "script_failed",
		Message:  "page script threw an exception",
	}

	// Timeout errors
	ErrTimeoutExceeded = &ExecutionError{
		Category: ErrCategoryTimeout,
		Code:     "timeout",
		Message:  "operation timed out",
	}
	ErrContextSwitchTimeout = &ExecutionError{
		Category: ErrCategoryTimeout,
		Code:     "context_switch_timeout",
		Message:  "browsing context did not appear or close in time",
	}

	// Operator errors
	ErrManualStepAbandoned = &ExecutionError{
		Category: ErrCategoryOperator,
		Code:     "manual_step_abandoned",
		Message:  "manual checkpoint was not acknowledged",
	}

	// Connection errors
	ErrDriverFault = &ExecutionError{
		Category: ErrCategoryConnection,
		Code:     "driver_fault",
		Message:  "browser driver failed",
	}
	ErrSessionNotCreated = &ExecutionError{
		Category: ErrCategoryConnection,
		Code:     "session_not_created",
		Message:  "could not start browser session",
	}

	// Config errors
	ErrInvalidConfig = &ExecutionError{
		Category: ErrCategoryConfig,
		Code:     "invalid_config",
		Message:  "invalid configuration",
	}
	ErrMissingRequired = &ExecutionError{
		Category: ErrCategoryConfig,
		Code:     "missing_required",
		Message:  "missing required field",
	}
)

// NewExecutionError creates a new ExecutionError with the given parameters
func NewExecutionError(category ErrorCategory, code, message string) *ExecutionError {
	return &ExecutionError{
		Category: category,
		Code:     code,
		Message:  message,
	}
}

// AsExecutionError returns the outermost ExecutionError in err's chain.
func AsExecutionError(err error) (*ExecutionError, bool) {
	var ee *ExecutionError
	if errors.As(err, &ee) {
		return ee, true
	}
	return nil, false
}

// IsTransient reports whether err describes a state that may change on the
// next observation. Only the outermost ExecutionError is considered, so a
// timeout caused by a missing element is not transient.
func IsTransient(err error) bool {
	ee, ok := AsExecutionError(err)
	if !ok {
		return false
	}
	switch ee.Code {
	case ErrElementNotFound.Code, ErrStaleReference.Code, ErrAlertNotPresent.Code, ErrUnexpectedAlert.Code:
		return true
	}
	return false
}

// IsDriverFault reports whether err originates below the engine: either an
// error outside the ExecutionError taxonomy or one in the connection category.
func IsDriverFault(err error) bool {
	if err == nil {
		return false
	}
	ee, ok := AsExecutionError(err)
	if !ok {
		return true
	}
	return ee.Category == ErrCategoryConnection
}

// CategoryOf returns the category of the outermost ExecutionError in err.
func CategoryOf(err error) ErrorCategory {
	if err == nil {
		return ErrCategoryNone
	}
	if ee, ok := AsExecutionError(err); ok {
		return ee.Category
	}
	return ErrCategoryConnection
}
