package storefront

import (
	"fmt"
	"time"

	"github.com/devicelab-dev/shopsmoke/pkg/core"
	"github.com/devicelab-dev/shopsmoke/pkg/scenario"
)

// Names of the built-in scenarios.
const (
	LoginName        = "login"
	InvalidLoginName = "invalid-login"
	GoogleLoginName  = "google-login"
	AddToCartName    = "add-to-cart"
)

// Outcome names raced after submitting the login form.
const (
	OutcomeSuccess  = "success"
	OutcomeRejected = "rejected"
)

const (
	loginTimeout   = 10 * time.Second
	rejectTimeout  = 5 * time.Second
	popupTimeout   = 15 * time.Second
	catalogTimeout = 15 * time.Second
)

// Builtins returns every built-in scenario in run order.
func Builtins(o Options) []*scenario.Scenario {
	return []*scenario.Scenario{
		Login(o),
		InvalidLogin(o),
		GoogleLogin(o),
		AddToCart(o),
	}
}

// Login signs in with valid credentials and expects the success route.
func Login(o Options) *scenario.Scenario {
	o = o.WithDefaults()
	steps := openLoginPage()
	steps = append(steps, submitCredentials(o.Valid)...)
	steps = append(steps, loginOutcome(o, OutcomeSuccess, o.bound(loginTimeout), false))
	return &scenario.Scenario{
		Config: scenario.Config{
			Name:        LoginName,
			Description: "Valid credentials reach " + o.SuccessPath,
			Tags:        []string{"smoke", "auth"},
		},
		Steps: steps,
	}
}

// InvalidLogin signs in with bad credentials and expects an alert carrying
// the error token, which is then accepted.
func InvalidLogin(o Options) *scenario.Scenario {
	o = o.WithDefaults()
	steps := openLoginPage()
	steps = append(steps, submitCredentials(o.Invalid)...)
	steps = append(steps,
		loginOutcome(o, OutcomeRejected, o.bound(rejectTimeout), false),
		&scenario.AlertStep{
			BaseStep: base(scenario.StepAlert, "Accept the error alert", false, o.bound(rejectTimeout)),
			Contains: o.ErrorToken,
			Action:   scenario.AlertAccept,
		},
	)
	return &scenario.Scenario{
		Config: scenario.Config{
			Name:        InvalidLoginName,
			Description: "Bad credentials raise an alert containing " + o.ErrorToken,
			Tags:        []string{"smoke", "auth"},
		},
		Steps: steps,
	}
}

// GoogleLogin hands off to the identity provider popup. The password
// challenge is completed by the operator at a manual checkpoint.
func GoogleLogin(o Options) *scenario.Scenario {
	o = o.WithDefaults()
	steps := openLoginPage()
	steps = append(steps,
		&scenario.ClickStep{
			BaseStep: base(scenario.StepClick, "Click 'Log in with Google'", true, 0),
			Locator:  GoogleButton,
		},
		&scenario.SwitchContextStep{
			BaseStep: base(scenario.StepSwitchContext, "Switch to the sign-in popup", true, o.bound(loginTimeout)),
			Await:    scenario.ContextOpened,
		},
		&scenario.FillStep{
			BaseStep: base(scenario.StepFill, "Enter the Google account email", true, o.bound(popupTimeout)),
			Locator:  PopupEmailInput,
			Text:     o.GoogleEmail + core.KeyEnter,
		},
		&scenario.ManualCheckpointStep{
			BaseStep: base(scenario.StepManualCheckpoint, "", true, 0),
			Prompt:   "Enter the password manually in the sign-in popup and finish the challenge",
		},
		&scenario.SwitchContextStep{
			BaseStep: base(scenario.StepSwitchContext, "Switch back to the storefront", true, o.bound(loginTimeout)),
			Await:    scenario.ContextClosed,
		},
		&scenario.WaitForStep{
			BaseStep: base(scenario.StepWaitFor, "Signed in", false, o.bound(loginTimeout)),
			AnyOf:    []scenario.Condition{scenario.URLContains(o.SuccessPath).Named(OutcomeSuccess)},
		},
	)
	return &scenario.Scenario{
		Config: scenario.Config{
			Name:        GoogleLoginName,
			Description: "Third-party sign-in through a popup with a manual password step",
			Tags:        []string{"auth", "manual"},
		},
		Steps: steps,
	}
}

// AddToCart logs in, adds the first MinProducts catalog products to the
// cart one at a time, and checks the cart holds them. Each product is
// re-resolved from a freshly loaded catalog.
func AddToCart(o Options) *scenario.Scenario {
	o = o.WithDefaults()
	steps := openLoginPage()
	steps = append(steps, submitCredentials(o.Valid)...)
	steps = append(steps,
		loginOutcome(o, OutcomeSuccess, o.bound(loginTimeout), true),
		&scenario.NavigateStep{
			BaseStep: base(scenario.StepNavigate, "Open the shop", true, 0),
			URL:      ProductsPath,
		},
		&scenario.ScriptStep{
			BaseStep: base(scenario.StepScript, "Scroll to load all products", false, 0),
			Script:   "window.scrollTo(0, document.body.scrollHeight);",
		},
		&scenario.AssertCountStep{
			BaseStep: base(scenario.StepAssertCount, fmt.Sprintf("Catalog has at least %d products", o.MinProducts), true, o.bound(catalogTimeout)),
			Locator:  ProductCard,
			AtLeast:  o.MinProducts,
		},
	)
	for i := 0; i < o.MinProducts; i++ {
		steps = append(steps,
			&scenario.NavigateStep{
				BaseStep: base(scenario.StepNavigate, fmt.Sprintf("Reload the shop for product %d", i+1), true, 0),
				URL:      ProductsPath,
			},
			&scenario.ClickStep{
				BaseStep: base(scenario.StepClick, fmt.Sprintf("Open product %d", i+1), true, o.bound(catalogTimeout)),
				Locator:  ProductCard,
				Index:    i,
			},
			&scenario.ClickStep{
				BaseStep: base(scenario.StepClick, fmt.Sprintf("Add product %d to cart", i+1), false, 0),
				Locator:  AddToCartButton,
			},
		)
	}
	steps = append(steps,
		&scenario.NavigateStep{
			BaseStep: base(scenario.StepNavigate, "Open the cart", true, 0),
			URL:      CartPath,
		},
		&scenario.AssertCountStep{
			BaseStep: base(scenario.StepAssertCount, fmt.Sprintf("Cart holds at least %d items", o.MinProducts), false, 0),
			Locator:  CartItem,
			AtLeast:  o.MinProducts,
		},
	)
	return &scenario.Scenario{
		Config: scenario.Config{
			Name:        AddToCartName,
			Description: fmt.Sprintf("Add %d products to the cart", o.MinProducts),
			Tags:        []string{"smoke", "cart"},
		},
		Steps: steps,
	}
}

// openLoginPage: Start -> ProfileNavigated.
func openLoginPage() []scenario.Step {
	return []scenario.Step{
		&scenario.NavigateStep{
			BaseStep: base(scenario.StepNavigate, "Open the storefront", true, 0),
			URL:      HomePath,
		},
		&scenario.ClickStep{
			BaseStep: base(scenario.StepClick, "Click the profile icon", true, 0),
			Locator:  ProfileLink,
		},
	}
}

// submitCredentials: ProfileNavigated -> CredentialsEntered -> Submitted.
func submitCredentials(c Credentials) []scenario.Step {
	fill := func(label string, loc core.Locator, text string) scenario.Step {
		return &scenario.FillStep{
			BaseStep: base(scenario.StepFill, label, true, 0),
			Locator:  loc,
			Text:     text,
		}
	}
	return []scenario.Step{
		fill("Enter username", UsernameInput, c.Username),
		fill("Enter email", EmailInput, c.Email),
		fill("Enter password", PasswordInput, c.Password),
		&scenario.ClickStep{
			BaseStep: base(scenario.StepClick, "Submit the login form", true, 0),
			Locator:  LoginButton,
		},
	}
}

// loginOutcome races the success route against an error alert and expects
// one of them: Submitted -> SuccessObserved | FailureAlertObserved | TimedOut.
func loginOutcome(o Options, expect string, timeout time.Duration, fatal bool) scenario.Step {
	label := "Redirected to " + o.SuccessPath
	if expect == OutcomeRejected {
		label = "Login rejected"
	}
	return &scenario.WaitForStep{
		BaseStep: base(scenario.StepWaitFor, label, fatal, timeout),
		AnyOf: []scenario.Condition{
			scenario.URLContains(o.SuccessPath).Named(OutcomeSuccess),
			scenario.AlertPresent().Named(OutcomeRejected),
		},
		Expect: expect,
	}
}

func base(t scenario.StepType, label string, fatal bool, timeout time.Duration) scenario.BaseStep {
	return scenario.BaseStep{
		StepType:  t,
		Fatal:     fatal,
		StepLabel: label,
		TimeoutMs: int(timeout.Milliseconds()),
	}
}
