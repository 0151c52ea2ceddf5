package core

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestExecutionError_Error(t *testing.T) {
	err := &ExecutionError{
		Category: ErrCategoryAssertion,
		Code:     "test_error",
		Message:  "test message",
	}

	if got := err.Error(); got != "test message" {
		t.Errorf("Error() = %q, want %q", got, "test message")
	}
}

func TestExecutionError_ErrorWithCause(t *testing.T) {
	cause := errors.New("underlying error")
	err := &ExecutionError{
		Category: ErrCategoryAssertion,
		Code:     "test_error",
		Message:  "test message",
		Cause:    cause,
	}

	got := err.Error()
	if !strings.Contains(got, "test message") {
		t.Errorf("Error() = %q, should contain 'test message'", got)
	}
	if !strings.Contains(got, "underlying error") {
		t.Errorf("Error() = %q, should contain 'underlying error'", got)
	}
}

func TestExecutionError_WithCause(t *testing.T) {
	original := ErrElementNotFound
	cause := errors.New("custom cause")

	newErr := original.WithCause(cause)

	if newErr.Cause != cause {
		t.Error("WithCause() did not set cause")
	}
	if newErr.Code != original.Code {
		t.Error("WithCause() changed code")
	}
	if original.Cause != nil {
		t.Error("WithCause() modified original error")
	}
}

func TestExecutionError_WithMessagef(t *testing.T) {
	newErr := ErrCountMismatch.WithMessagef("expected at least %d, found %d", 2, 1)

	if newErr.Message != "expected at least 2, found 1" {
		t.Errorf("Message = %q, want 'expected at least 2, found 1'", newErr.Message)
	}
	if ErrCountMismatch.Message == newErr.Message {
		t.Error("WithMessagef() modified original error")
	}
}

func TestExecutionError_WithDetails(t *testing.T) {
	original := &ExecutionError{
		Code:    "test",
		Message: "test",
		Details: map[string]interface{}{"existing": "value"},
	}

	newErr := original.WithDetails(map[string]interface{}{
		"locator": "xpath=//body",
		"timeout": 5000,
	})

	if newErr.Details["locator"] != "xpath=//body" {
		t.Error("WithDetails() did not add new details")
	}
	if newErr.Details["existing"] != "value" {
		t.Error("WithDetails() did not preserve existing details")
	}
	if _, ok := original.Details["locator"]; ok {
		t.Error("WithDetails() modified original error")
	}
}

func TestExecutionError_IsMatchesCode(t *testing.T) {
	err := ErrStaleReference.WithMessage("element e1 detached")
	if !errors.Is(err, ErrStaleReference) {
		t.Error("errors.Is() should match a copy by code")
	}
	if errors.Is(err, ErrElementNotFound) {
		t.Error("errors.Is() matched a different code")
	}

	wrapped := fmt.Errorf("click: %w", err)
	if !errors.Is(wrapped, ErrStaleReference) {
		t.Error("errors.Is() should see through fmt wrapping")
	}
}

func TestExecutionError_IsFollowsCause(t *testing.T) {
	err := ErrTimeoutExceeded.WithCause(ErrElementNotFound)

	if !errors.Is(err, ErrTimeoutExceeded) {
		t.Error("errors.Is() should match the outer code")
	}
	if !errors.Is(err, ErrElementNotFound) {
		t.Error("errors.Is() should match the cause")
	}
}

func TestPredefinedErrors(t *testing.T) {
	tests := []struct {
		err      *ExecutionError
		category ErrorCategory
		code     string
	}{
		{ErrElementNotFound, ErrCategoryLookup, "element_not_found"},
		{ErrStaleReference, ErrCategoryLookup, "stale_reference"},
		{ErrAlertNotPresent, ErrCategoryLookup, "alert_not_present"},
		{ErrUnexpectedAlert, ErrCategoryLookup, "unexpected_alert"},
		{ErrIndexOutOfRange, ErrCategoryLookup, "index_out_of_range"},
		{ErrNotInteractable, ErrCategoryLookup, "not_interactable"},
		{ErrConditionNotMet, ErrCategoryAssertion, "condition_not_met"},
		{ErrTextMismatch, ErrCategoryAssertion, "text_mismatch"},
		{ErrCountMismatch, ErrCategoryAssertion, "count_mismatch"},
		{ErrScriptFailed, ErrCategoryAssertion, "script_failed"},
		{ErrTimeoutExceeded, ErrCategoryTimeout, "timeout"},
		{ErrContextSwitchTimeout, ErrCategoryTimeout, "context_switch_timeout"},
		{ErrManualStepAbandoned, ErrCategoryOperator, "manual_step_abandoned"},
		{ErrDriverFault, ErrCategoryConnection, "driver_fault"},
		{ErrSessionNotCreated, ErrCategoryConnection, "session_not_created"},
		{ErrInvalidConfig, ErrCategoryConfig, "invalid_config"},
		{ErrMissingRequired, ErrCategoryConfig, "missing_required"},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			if tt.err.Category != tt.category {
				t.Errorf("Category = %s, want %s", tt.err.Category, tt.category)
			}
			if tt.err.Code != tt.code {
				t.Errorf("Code = %s, want %s", tt.err.Code, tt.code)
			}
			if tt.err.Message == "" {
				t.Error("Message should not be empty")
			}
		})
	}
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain", errors.New("boom"), false},
		{"not found", ErrElementNotFound, true},
		{"stale", ErrStaleReference.WithMessage("gone"), true},
		{"no alert", ErrAlertNotPresent, true},
		{"alert blocking", fmt.Errorf("url: %w", ErrUnexpectedAlert), true},
		{"timeout caused by not found", ErrTimeoutExceeded.WithCause(ErrElementNotFound), false},
		{"driver fault", ErrDriverFault, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTransient(tt.err); got != tt.want {
				t.Errorf("IsTransient(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestIsDriverFault(t *testing.T) {
	if IsDriverFault(nil) {
		t.Error("IsDriverFault(nil) = true")
	}
	if !IsDriverFault(errors.New("connection reset")) {
		t.Error("unclassified error should be a driver fault")
	}
	if !IsDriverFault(ErrDriverFault.WithCause(errors.New("eof"))) {
		t.Error("ErrDriverFault should be a driver fault")
	}
	if IsDriverFault(ErrTimeoutExceeded) {
		t.Error("timeout should not be a driver fault")
	}
}

func TestCategoryOf(t *testing.T) {
	if got := CategoryOf(nil); got != ErrCategoryNone {
		t.Errorf("CategoryOf(nil) = %s, want none", got)
	}
	if got := CategoryOf(ErrContextSwitchTimeout); got != ErrCategoryTimeout {
		t.Errorf("CategoryOf() = %s, want timeout", got)
	}
	if got := CategoryOf(errors.New("x")); got != ErrCategoryConnection {
		t.Errorf("CategoryOf(plain) = %s, want connection", got)
	}
}

func TestNewExecutionError(t *testing.T) {
	err := NewExecutionError(ErrCategoryAssertion, "custom_error", "custom message")

	if err.Category != ErrCategoryAssertion {
		t.Errorf("Category = %s, want %s", err.Category, ErrCategoryAssertion)
	}
	if err.Code != "custom_error" {
		t.Errorf("Code = %s, want 'custom_error'", err.Code)
	}
	if err.Message != "custom message" {
		t.Errorf("Message = %s, want 'custom message'", err.Message)
	}
}
