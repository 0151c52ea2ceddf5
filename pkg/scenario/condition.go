package scenario

import (
	"fmt"

	"github.com/devicelab-dev/shopsmoke/pkg/core"
)

// ConditionKind identifies what a Condition observes.
type ConditionKind string

const (
	CondURLContains    ConditionKind = "urlContains"
	CondElementPresent ConditionKind = "elementPresent"
	CondAlertPresent   ConditionKind = "alertPresent"
	CondContextCount   ConditionKind = "contextCount"
)

// Condition is an observable browser state. Exactly one of the observation
// fields is set.
type Condition struct {
	Name string

	URLContains  string
	Element      core.Locator
	AlertPresent bool
	Contexts     int
}

// URLContains holds when the active context's URL contains fragment.
func URLContains(fragment string) Condition { return Condition{URLContains: fragment} }

// ElementPresent holds when loc matches at least one element.
func ElementPresent(loc core.Locator) Condition { return Condition{Element: loc} }

// AlertPresent holds when a user prompt is open.
func AlertPresent() Condition { return Condition{AlertPresent: true} }

// ContextCount holds when exactly n browsing contexts are open.
func ContextCount(n int) Condition { return Condition{Contexts: n} }

// Named returns a copy of c with a name used by WaitForStep.Expect.
func (c Condition) Named(name string) Condition {
	c.Name = name
	return c
}

// Kind reports which observation c makes, or "" when none or several are set.
func (c Condition) Kind() ConditionKind {
	var kinds []ConditionKind
	if c.URLContains != "" {
		kinds = append(kinds, CondURLContains)
	}
	if !c.Element.IsZero() {
		kinds = append(kinds, CondElementPresent)
	}
	if c.AlertPresent {
		kinds = append(kinds, CondAlertPresent)
	}
	if c.Contexts > 0 {
		kinds = append(kinds, CondContextCount)
	}
	if len(kinds) != 1 {
		return ""
	}
	return kinds[0]
}

// Key is the name Expect refers to: the explicit name, or the kind.
func (c Condition) Key() string {
	if c.Name != "" {
		return c.Name
	}
	return string(c.Kind())
}

// Validate checks that exactly one observation is set.
func (c Condition) Validate() error {
	if c.Kind() == "" {
		return core.ErrInvalidConfig.WithMessage("condition must set exactly one of urlContains, element, alertPresent, contexts")
	}
	if c.Kind() == CondElementPresent {
		return c.Element.Validate()
	}
	return nil
}

// Describe returns a human-readable description.
func (c Condition) Describe() string {
	switch c.Kind() {
	case CondURLContains:
		return fmt.Sprintf("URL containing %q", c.URLContains)
	case CondElementPresent:
		return fmt.Sprintf("element %s", c.Element)
	case CondAlertPresent:
		return "alert"
	case CondContextCount:
		return fmt.Sprintf("%d open context(s)", c.Contexts)
	default:
		return "invalid condition"
	}
}
