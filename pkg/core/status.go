package core

// StepStatus represents the execution status of a step
type StepStatus int

const (
	StatusPending StepStatus = iota // Not yet started
	StatusRunning                   // Currently executing
	StatusPassed                    // Completed successfully
	StatusFailed                    // Expected behavior didn't occur
	StatusErrored                   // Driver fault or unexpected error
	StatusSkipped                   // Not executed because the scenario aborted
)

// String returns the string representation of StepStatus
func (s StepStatus) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusRunning:
		return "running"
	case StatusPassed:
		return "passed"
	case StatusFailed:
		return "failed"
	case StatusErrored:
		return "errored"
	case StatusSkipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// IsTerminal returns true if the status is a final state
func (s StepStatus) IsTerminal() bool {
	switch s {
	case StatusPassed, StatusFailed, StatusErrored, StatusSkipped:
		return true
	default:
		return false
	}
}

// IsSuccess returns true if the step passed
func (s StepStatus) IsSuccess() bool {
	return s == StatusPassed
}

// ScenarioStatus is the overall outcome of a scenario.
type ScenarioStatus int

const (
	ScenarioPassed  ScenarioStatus = iota // Every step passed
	ScenarioFailed                        // A non-fatal step failed, all steps ran
	ScenarioAborted                       // A fatal step failed or the run stopped
)

// String returns the string representation of ScenarioStatus
func (s ScenarioStatus) String() string {
	switch s {
	case ScenarioPassed:
		return "passed"
	case ScenarioFailed:
		return "failed"
	case ScenarioAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// ErrorCategory classifies the type of error for better debugging and reporting
type ErrorCategory int

const (
	ErrCategoryNone       ErrorCategory = iota // No error
	ErrCategoryAssertion                       // Condition, text or count check failed
	ErrCategoryTimeout                         // Bounded wait expired
	ErrCategoryConnection                      // Browser driver failed or went away
	ErrCategoryConfig                          // Invalid configuration, missing required field
	ErrCategoryLookup                          // Element, alert or context lookup failed
	ErrCategoryOperator                        // Manual checkpoint not acknowledged
)

// String returns the string representation of ErrorCategory
func (c ErrorCategory) String() string {
	switch c {
	case ErrCategoryNone:
		return "none"
	case ErrCategoryAssertion:
		return "assertion"
	case ErrCategoryTimeout:
		return "timeout"
	case ErrCategoryConnection:
		return "connection"
	case ErrCategoryConfig:
		return "config"
	case ErrCategoryLookup:
		return "lookup"
	case ErrCategoryOperator:
		return "operator"
	default:
		return "unknown"
	}
}
