package core

import (
	"time"
)

// StepResult captures the complete outcome of executing a single step
type StepResult struct {
	// Identity
	Index   int    `json:"index"`   // 0-based position in scenario
	Command string `json:"command"` // Step type: navigate, click, waitFor, etc.
	Label   string `json:"label"`   // Human-readable description
	Fatal   bool   `json:"fatal"`

	// Status
	Status   StepStatus    `json:"status"`
	Category ErrorCategory `json:"errorCategory,omitempty"`
	Code     string        `json:"code,omitempty"` // ExecutionError code when failed

	// Timing
	StartTime time.Time     `json:"startTime"`
	Duration  time.Duration `json:"duration"`

	// Output
	Message string      `json:"message,omitempty"` // Reason for failure or note on success
	Data    interface{} `json:"data,omitempty"`    // Step-specific data (winning condition, alert text, count)

	// Error Details
	Error string `json:"error,omitempty"` // Technical error message
}

// ScenarioResult captures the complete outcome of executing a scenario
type ScenarioResult struct {
	// Identity
	Name     string   `json:"name"`
	FilePath string   `json:"filePath,omitempty"`
	Tags     []string `json:"tags,omitempty"`

	Status ScenarioStatus `json:"status"`

	// Timing
	StartTime time.Time     `json:"startTime"`
	Duration  time.Duration `json:"duration"`

	Steps []StepResult `json:"steps"`

	// Summary (computed)
	TotalSteps   int `json:"totalSteps"`
	PassedSteps  int `json:"passedSteps"`
	FailedSteps  int `json:"failedSteps"`
	SkippedSteps int `json:"skippedSteps"`

	// Error info (if scenario did not pass)
	Error string `json:"error,omitempty"`
}

// ComputeSummary calculates step counts from the Steps slice
func (r *ScenarioResult) ComputeSummary() {
	r.TotalSteps = len(r.Steps)
	r.PassedSteps = 0
	r.FailedSteps = 0
	r.SkippedSteps = 0

	for _, step := range r.Steps {
		switch step.Status {
		case StatusPassed:
			r.PassedSteps++
		case StatusFailed, StatusErrored:
			r.FailedSteps++
		case StatusSkipped:
			r.SkippedSteps++
		}
	}
}

// AggregateStatus determines the scenario status from step results
// Rules:
// - Any fatal failed step, errored step or skipped step → ScenarioAborted
// - Any non-fatal failed step → ScenarioFailed
// - Otherwise → ScenarioPassed
func (r *ScenarioResult) AggregateStatus() ScenarioStatus {
	status := ScenarioPassed
	for _, step := range r.Steps {
		switch step.Status {
		case StatusErrored, StatusSkipped:
			return ScenarioAborted
		case StatusFailed:
			if step.Fatal {
				return ScenarioAborted
			}
			status = ScenarioFailed
		}
	}
	return status
}

// FirstFailure returns the first failed or errored step, or nil.
func (r *ScenarioResult) FirstFailure() *StepResult {
	for i := range r.Steps {
		if r.Steps[i].Status == StatusFailed || r.Steps[i].Status == StatusErrored {
			return &r.Steps[i]
		}
	}
	return nil
}

// RunResult captures the outcome of one run over a set of scenarios
type RunResult struct {
	RunID string `json:"runId"`

	// Timing
	StartTime time.Time     `json:"startTime"`
	Duration  time.Duration `json:"duration"`

	Scenarios []ScenarioResult `json:"scenarios"`

	// Summary
	TotalScenarios   int `json:"totalScenarios"`
	PassedScenarios  int `json:"passedScenarios"`
	FailedScenarios  int `json:"failedScenarios"`
	AbortedScenarios int `json:"abortedScenarios"`

	// Set when a driver fault stopped the run early
	Error string `json:"error,omitempty"`
}

// ComputeSummary calculates scenario counts from the Scenarios slice
func (r *RunResult) ComputeSummary() {
	r.TotalScenarios = len(r.Scenarios)
	r.PassedScenarios = 0
	r.FailedScenarios = 0
	r.AbortedScenarios = 0

	for _, sc := range r.Scenarios {
		switch sc.Status {
		case ScenarioPassed:
			r.PassedScenarios++
		case ScenarioFailed:
			r.FailedScenarios++
		case ScenarioAborted:
			r.AbortedScenarios++
		}
	}
}

// Success returns true if every scenario passed
func (r *RunResult) Success() bool {
	for _, sc := range r.Scenarios {
		if sc.Status != ScenarioPassed {
			return false
		}
	}
	return len(r.Scenarios) > 0
}
