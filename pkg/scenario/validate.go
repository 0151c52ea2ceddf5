package scenario

import (
	"fmt"

	"github.com/devicelab-dev/shopsmoke/pkg/core"
)

// ValidateStep checks a step's fields beyond what the YAML shape enforces.
//
//nolint:gocyclo
func ValidateStep(step Step) error {
	switch s := step.(type) {
	case *NavigateStep:
		if s.URL == "" {
			return core.ErrMissingRequired.WithMessage("navigate: url is required")
		}
	case *FillStep:
		if err := s.Locator.Validate(); err != nil {
			return fmt.Errorf("fill: %w", err)
		}
		if s.Index < 0 {
			return core.ErrInvalidConfig.WithMessage("fill: index must not be negative")
		}
	case *ClickStep:
		if err := s.Locator.Validate(); err != nil {
			return fmt.Errorf("click: %w", err)
		}
		if s.Index < 0 {
			return core.ErrInvalidConfig.WithMessage("click: index must not be negative")
		}
	case *WaitForStep:
		if len(s.AnyOf) == 0 {
			return core.ErrMissingRequired.WithMessage("waitFor: at least one condition is required")
		}
		keys := make(map[string]bool)
		for i, c := range s.AnyOf {
			if err := c.Validate(); err != nil {
				return fmt.Errorf("waitFor condition %d: %w", i+1, err)
			}
			keys[c.Key()] = true
		}
		if s.Expect != "" && !keys[s.Expect] {
			return core.ErrInvalidConfig.WithMessagef("waitFor: expect %q does not name a condition", s.Expect)
		}
	case *SwitchContextStep:
		if s.Await != ContextOpened && s.Await != ContextClosed {
			return core.ErrInvalidConfig.WithMessagef("switchContext: await must be %q or %q, got %q", ContextOpened, ContextClosed, s.Await)
		}
	case *AssertCountStep:
		if err := s.Locator.Validate(); err != nil {
			return fmt.Errorf("assertCount: %w", err)
		}
		if s.AtLeast < 0 {
			return core.ErrInvalidConfig.WithMessage("assertCount: atLeast must not be negative")
		}
		if s.AtMost != nil && *s.AtMost < s.AtLeast {
			return core.ErrInvalidConfig.WithMessagef("assertCount: atMost %d is below atLeast %d", *s.AtMost, s.AtLeast)
		}
	case *ManualCheckpointStep:
		if s.Prompt == "" {
			return core.ErrMissingRequired.WithMessage("manualCheckpoint: prompt is required")
		}
	case *AlertStep:
		if s.Action != "" && s.Action != AlertAccept && s.Action != AlertDismiss {
			return core.ErrInvalidConfig.WithMessagef("alert: action must be %q or %q, got %q", AlertAccept, AlertDismiss, s.Action)
		}
	case *ScriptStep:
		if s.Script == "" {
			return core.ErrMissingRequired.WithMessage("script: script is required")
		}
	default:
		return core.ErrInvalidConfig.WithMessagef("unsupported step type %T", step)
	}
	if step.Timeout() < 0 {
		return core.ErrInvalidConfig.WithMessagef("%s: timeout must not be negative", step.Type())
	}
	return nil
}

// Validate checks every step of the scenario and returns all problems found.
func Validate(sc *Scenario) []error {
	var errs []error
	if len(sc.Steps) == 0 {
		errs = append(errs, core.ErrMissingRequired.WithMessage("scenario has no steps"))
	}
	for i, step := range sc.Steps {
		if err := ValidateStep(step); err != nil {
			errs = append(errs, fmt.Errorf("step %d: %w", i+1, err))
		}
	}
	return errs
}
