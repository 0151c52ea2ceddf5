package executor

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/devicelab-dev/shopsmoke/pkg/core"
	"github.com/devicelab-dev/shopsmoke/pkg/logger"
	"github.com/devicelab-dev/shopsmoke/pkg/scenario"
	"github.com/devicelab-dev/shopsmoke/pkg/wait"
)

var bodyLocator = core.TagName("body")

// dispatch routes a step to its handler.
func (sr *scenarioRunner) dispatch(step scenario.Step) (outcome, error) {
	switch s := step.(type) {
	case *scenario.NavigateStep:
		return sr.navigate(s)
	case *scenario.FillStep:
		return sr.fill(s)
	case *scenario.ClickStep:
		return sr.click(s)
	case *scenario.WaitForStep:
		return sr.waitFor(s)
	case *scenario.SwitchContextStep:
		return sr.switchContext(s)
	case *scenario.AssertCountStep:
		return sr.assertCount(s)
	case *scenario.ManualCheckpointStep:
		return sr.manualCheckpoint(s)
	case *scenario.AlertStep:
		return sr.alert(s)
	case *scenario.ScriptStep:
		return sr.runScript(s)
	default:
		return outcome{}, core.ErrInvalidConfig.WithMessagef("unsupported step type %T", step)
	}
}

func (sr *scenarioRunner) timeout(step scenario.Step) time.Duration {
	return sr.runner.session.TimeoutOr(step.Timeout())
}

func (sr *scenarioRunner) navigate(s *scenario.NavigateStep) (outcome, error) {
	sess := sr.runner.session
	if err := sess.Navigate(s.URL); err != nil {
		return outcome{}, err
	}
	if _, err := sr.runner.locator.One(bodyLocator, sr.timeout(s)); err != nil {
		return outcome{}, fmt.Errorf("page did not render: %w", err)
	}
	u, _ := sess.ResolveURL(s.URL)
	return outcome{message: "loaded " + u}, nil
}

func (sr *scenarioRunner) fill(s *scenario.FillStep) (outcome, error) {
	loc := sr.runner.locator
	h, err := loc.Nth(s.Locator, s.Index, sr.timeout(s))
	if err != nil {
		return outcome{}, err
	}
	if err := loc.Type(h, s.Text); err != nil {
		return outcome{}, err
	}
	return outcome{message: fmt.Sprintf("typed into %s", h)}, nil
}

func (sr *scenarioRunner) click(s *scenario.ClickStep) (outcome, error) {
	loc := sr.runner.locator
	h, err := loc.Nth(s.Locator, s.Index, sr.timeout(s))
	if err != nil {
		return outcome{}, err
	}
	if err := loc.Click(h); err != nil {
		return outcome{}, err
	}
	return outcome{message: fmt.Sprintf("clicked %s", h)}, nil
}

// waitFor races the step's conditions. With Expect set, a different
// condition winning the race fails the step and names the winner.
func (sr *scenarioRunner) waitFor(s *scenario.WaitForStep) (outcome, error) {
	sess := sr.runner.session
	checks := make([]wait.Check, len(s.AnyOf))
	for i, c := range s.AnyOf {
		checks[i] = sr.check(c)
	}

	timeout := sr.timeout(s)
	idx, err := wait.First(timeout, sess.Interval(), checks...)
	if err != nil {
		if errors.Is(err, core.ErrTimeoutExceeded) {
			return outcome{}, core.ErrTimeoutExceeded.
				WithMessagef("none of [%s] observed within %s", describeAll(s.AnyOf), timeout).
				WithCause(err)
		}
		return outcome{}, err
	}

	winner := s.AnyOf[idx]
	data := map[string]interface{}{"observed": winner.Key()}
	observed := winner.Describe()
	if winner.Kind() == scenario.CondAlertPresent {
		if text, terr := sess.Browser().AlertText(); terr == nil {
			data["alertText"] = text
			observed = fmt.Sprintf("alert %q", text)
		}
	}

	if s.Expect != "" && winner.Key() != s.Expect {
		return outcome{data: data}, core.ErrConditionNotMet.
			WithMessagef("expected %s but observed %s", s.Expect, observed).
			WithDetails(data)
	}
	return outcome{message: "observed " + observed, data: data}, nil
}

// check turns a condition into a single observation of the browser.
func (sr *scenarioRunner) check(c scenario.Condition) wait.Check {
	sess := sr.runner.session
	b := sess.Browser()
	switch c.Kind() {
	case scenario.CondURLContains:
		return func() (bool, error) {
			u, err := b.CurrentURL()
			if err != nil {
				return false, err
			}
			return strings.Contains(u, c.URLContains), nil
		}
	case scenario.CondElementPresent:
		return func() (bool, error) {
			return sr.runner.locator.Present(c.Element)
		}
	case scenario.CondAlertPresent:
		return b.IsAlertPresent
	case scenario.CondContextCount:
		return func() (bool, error) {
			handles, err := b.ContextHandles()
			if err != nil {
				return false, err
			}
			return len(handles) == c.Contexts, nil
		}
	default:
		return func() (bool, error) {
			return false, c.Validate()
		}
	}
}

func (sr *scenarioRunner) switchContext(s *scenario.SwitchContextStep) (outcome, error) {
	sw := sr.runner.switcher
	var (
		handle string
		err    error
	)
	if s.Await == scenario.ContextClosed {
		handle, err = sw.AwaitClosed(sr.timeout(s))
	} else {
		handle, err = sw.AwaitNew(sr.timeout(s))
	}
	if err != nil {
		return outcome{}, err
	}
	return outcome{message: "active context " + handle, data: map[string]interface{}{"context": handle}}, nil
}

// assertCount waits for the match count to fall within the step's range.
func (sr *scenarioRunner) assertCount(s *scenario.AssertCountStep) (outcome, error) {
	sess := sr.runner.session
	timeout := sr.timeout(s)
	last := 0

	n, err := wait.Until(timeout, sess.Interval(), func() (int, error) {
		n, err := sr.runner.locator.Count(s.Locator)
		if err != nil {
			return 0, err
		}
		last = n
		if n < s.AtLeast || (s.AtMost != nil && n > *s.AtMost) {
			return n, wait.NotYet("%d element(s) match %s", n, s.Locator)
		}
		return n, nil
	})
	if err != nil {
		if !errors.Is(err, core.ErrTimeoutExceeded) {
			return outcome{}, err
		}
		details := map[string]interface{}{"found": last, "atLeast": s.AtLeast}
		if s.AtMost != nil {
			details["atMost"] = *s.AtMost
		}
		return outcome{}, core.ErrCountMismatch.
			WithMessagef("found %d element(s) matching %s after %s, wanted %s", last, s.Locator, timeout, countRange(s)).
			WithDetails(details).
			WithCause(err)
	}
	return outcome{message: fmt.Sprintf("%d element(s) match %s", n, s.Locator), data: map[string]interface{}{"count": n}}, nil
}

// manualCheckpoint blocks until the operator acknowledges the prompt. There
// is no timeout; anything other than an acknowledgment abandons the step.
func (sr *scenarioRunner) manualCheckpoint(s *scenario.ManualCheckpointStep) (outcome, error) {
	op := sr.runner.config.Operator
	if op == nil {
		return outcome{}, core.ErrManualStepAbandoned.WithMessagef("no operator to acknowledge %q", s.Prompt)
	}
	logger.Info("waiting for operator: %s", s.Prompt)
	start := time.Now()
	if err := op.Acknowledge(sr.ctx, s.Prompt); err != nil {
		return outcome{}, core.ErrManualStepAbandoned.
			WithMessagef("checkpoint %q abandoned", s.Prompt).
			WithCause(err)
	}
	// The operator may have changed anything on the page.
	sr.runner.session.Advance()
	waited := time.Since(start).Round(time.Millisecond)
	return outcome{message: fmt.Sprintf("acknowledged after %s", waited)}, nil
}

// alert waits for an alert, checks its text and closes it. The alert is
// closed even when the text does not match so later steps are not blocked.
func (sr *scenarioRunner) alert(s *scenario.AlertStep) (outcome, error) {
	sess := sr.runner.session
	b := sess.Browser()
	timeout := sr.timeout(s)

	text, err := wait.Until(timeout, sess.Interval(), b.AlertText)
	if err != nil {
		if errors.Is(err, core.ErrTimeoutExceeded) {
			return outcome{}, core.ErrAlertNotPresent.
				WithMessagef("no alert appeared within %s", timeout).
				WithCause(err)
		}
		return outcome{}, err
	}

	if s.Action == scenario.AlertDismiss {
		err = b.DismissAlert()
	} else {
		err = b.AcceptAlert()
	}
	if err != nil {
		return outcome{}, fmt.Errorf("close alert: %w", err)
	}
	sess.Advance()

	data := map[string]interface{}{"alertText": text}
	if s.Contains != "" && !strings.Contains(text, s.Contains) {
		return outcome{data: data}, core.ErrTextMismatch.
			WithMessagef("alert %q does not contain %q", text, s.Contains).
			WithDetails(data)
	}
	return outcome{message: fmt.Sprintf("alert %q", text), data: data}, nil
}

func (sr *scenarioRunner) runScript(s *scenario.ScriptStep) (outcome, error) {
	sess := sr.runner.session
	res, err := sess.Browser().ExecuteScript(s.Script)
	// Scripts may mutate the DOM.
	sess.Advance()
	if err != nil {
		return outcome{}, err
	}
	return outcome{message: "script executed", data: res}, nil
}

func describeAll(conds []scenario.Condition) string {
	parts := make([]string, len(conds))
	for i, c := range conds {
		parts[i] = c.Describe()
	}
	return strings.Join(parts, ", ")
}

func countRange(s *scenario.AssertCountStep) string {
	switch {
	case s.AtMost != nil && *s.AtMost == s.AtLeast:
		return fmt.Sprintf("exactly %d", s.AtLeast)
	case s.AtMost != nil:
		return fmt.Sprintf("%d..%d", s.AtLeast, *s.AtMost)
	default:
		return fmt.Sprintf("at least %d", s.AtLeast)
	}
}
