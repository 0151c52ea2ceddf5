package scenario

import (
	"fmt"
	"strings"
	"time"

	"github.com/devicelab-dev/shopsmoke/pkg/core"
)

// StepType represents the type of step.
type StepType string

// Step type constants.
const (
	StepNavigate         StepType = "navigate"
	StepFill             StepType = "fill"
	StepClick            StepType = "click"
	StepWaitFor          StepType = "waitFor"
	StepSwitchContext    StepType = "switchContext"
	StepAssertCount      StepType = "assertCount"
	StepManualCheckpoint StepType = "manualCheckpoint"
	StepAlert            StepType = "alert"
	StepScript           StepType = "script"
)

// Step is the interface for all scenario steps.
type Step interface {
	Type() StepType
	IsFatal() bool
	Label() string
	Describe() string
	Timeout() time.Duration
}

// BaseStep contains common fields for all steps.
type BaseStep struct {
	StepType  StepType `yaml:"-"`
	Fatal     bool     `yaml:"fatal"`
	StepLabel string   `yaml:"label"`
	TimeoutMs int      `yaml:"timeout"`
}

// Type returns the step type.
func (b *BaseStep) Type() StepType { return b.StepType }

// IsFatal returns whether a failure of this step aborts the scenario.
func (b *BaseStep) IsFatal() bool { return b.Fatal }

// Label returns the step label.
func (b *BaseStep) Label() string { return b.StepLabel }

// Describe returns a human-readable description.
func (b *BaseStep) Describe() string { return string(b.StepType) }

// Timeout returns the step's wait bound, or 0 for the session default.
func (b *BaseStep) Timeout() time.Duration {
	return time.Duration(b.TimeoutMs) * time.Millisecond
}

// NavigateStep loads a URL, absolute or relative to the base URL, and waits
// for the document body.
type NavigateStep struct {
	BaseStep `yaml:",inline"`
	URL      string `yaml:"url"`
}

// FillStep types text into the index-th match of Locator.
type FillStep struct {
	BaseStep `yaml:",inline"`
	Locator  core.Locator `yaml:"-"`
	Index    int          `yaml:"index"`
	Text     string       `yaml:"text"`
}

// ClickStep clicks the index-th match of Locator.
type ClickStep struct {
	BaseStep `yaml:",inline"`
	Locator  core.Locator `yaml:"-"`
	Index    int          `yaml:"index"`
}

// WaitForStep waits until any of the conditions holds. When Expect names a
// condition, observing a different one first fails the step.
type WaitForStep struct {
	BaseStep `yaml:",inline"`
	AnyOf    []Condition `yaml:"-"`
	Expect   string      `yaml:"expect"`
}

// ContextEvent is what a SwitchContextStep waits for.
type ContextEvent string

const (
	ContextOpened ContextEvent = "new"
	ContextClosed ContextEvent = "closed"
)

// SwitchContextStep waits for a popup to open (and switches to it) or for
// the active popup to close (and switches back).
type SwitchContextStep struct {
	BaseStep `yaml:",inline"`
	Await    ContextEvent `yaml:"await"`
}

// AssertCountStep waits until the number of matches of Locator is within
// [AtLeast, AtMost]. A nil AtMost means unbounded.
type AssertCountStep struct {
	BaseStep `yaml:",inline"`
	Locator  core.Locator `yaml:"-"`
	AtLeast  int          `yaml:"atLeast"`
	AtMost   *int         `yaml:"atMost"`
}

// ManualCheckpointStep blocks until an operator acknowledges Prompt. It has
// no timeout and is always fatal.
type ManualCheckpointStep struct {
	BaseStep `yaml:",inline"`
	Prompt   string `yaml:"prompt"`
}

// AlertAction is how an AlertStep closes the alert.
type AlertAction string

const (
	AlertAccept  AlertAction = "accept"
	AlertDismiss AlertAction = "dismiss"
)

// AlertStep waits for an alert, checks its text and closes it.
type AlertStep struct {
	BaseStep `yaml:",inline"`
	Contains string      `yaml:"contains"`
	Action   AlertAction `yaml:"action"`
}

// ScriptStep runs JavaScript in the active context. The page is assumed to
// have changed afterwards.
type ScriptStep struct {
	BaseStep `yaml:",inline"`
	Script   string `yaml:"script"`
}

// IsFatal is always true: an unacknowledged checkpoint leaves the browser in
// an unknown state.
func (s *ManualCheckpointStep) IsFatal() bool { return true }

// Timeout is always 0: checkpoints wait for the operator indefinitely.
func (s *ManualCheckpointStep) Timeout() time.Duration { return 0 }

// Describe implementations

func (s *NavigateStep) Describe() string {
	return fmt.Sprintf("navigate to %s", s.URL)
}

func (s *FillStep) Describe() string {
	text := strings.ReplaceAll(s.Text, core.KeyEnter, "⏎")
	if s.Index > 0 {
		return fmt.Sprintf("fill %s[%d] with %q", s.Locator, s.Index, text)
	}
	return fmt.Sprintf("fill %s with %q", s.Locator, text)
}

func (s *ClickStep) Describe() string {
	if s.Index > 0 {
		return fmt.Sprintf("click %s[%d]", s.Locator, s.Index)
	}
	return fmt.Sprintf("click %s", s.Locator)
}

func (s *WaitForStep) Describe() string {
	parts := make([]string, len(s.AnyOf))
	for i, c := range s.AnyOf {
		parts[i] = c.Describe()
	}
	desc := "wait for " + strings.Join(parts, " or ")
	if s.Expect != "" && len(s.AnyOf) > 1 {
		desc += fmt.Sprintf(" (expect %s)", s.Expect)
	}
	return desc
}

func (s *SwitchContextStep) Describe() string {
	if s.Await == ContextClosed {
		return "wait for popup to close and switch back"
	}
	return "wait for popup and switch to it"
}

func (s *AssertCountStep) Describe() string {
	switch {
	case s.AtMost != nil && *s.AtMost == s.AtLeast:
		return fmt.Sprintf("assert exactly %d of %s", s.AtLeast, s.Locator)
	case s.AtMost != nil:
		return fmt.Sprintf("assert %d..%d of %s", s.AtLeast, *s.AtMost, s.Locator)
	default:
		return fmt.Sprintf("assert at least %d of %s", s.AtLeast, s.Locator)
	}
}

func (s *ManualCheckpointStep) Describe() string {
	return fmt.Sprintf("manual checkpoint: %s", s.Prompt)
}

func (s *AlertStep) Describe() string {
	action := s.Action
	if action == "" {
		action = AlertAccept
	}
	if s.Contains != "" {
		return fmt.Sprintf("%s alert containing %q", action, s.Contains)
	}
	return fmt.Sprintf("%s alert", action)
}

func (s *ScriptStep) Describe() string {
	script := strings.Join(strings.Fields(s.Script), " ")
	if len(script) > 50 {
		script = script[:47] + "..."
	}
	return fmt.Sprintf("run script %s", script)
}

// Title returns the label if set, otherwise the description.
func Title(s Step) string {
	if l := s.Label(); l != "" {
		return l
	}
	return s.Describe()
}
