package core

import (
	"fmt"
	"strings"
)

// Browser is the protocol surface the engine needs from a browser driver.
// Implementations: W3C WebDriver (geckodriver), Chrome DevTools, mock.
// The engine owns synchronization; a Browser just issues single commands
// and maps native failures onto the predefined ExecutionErrors.
type Browser interface {
	// Navigate loads url in the active context
	Navigate(url string) error

	// FindElements returns every current match for loc, possibly none.
	// An empty result is not an error.
	FindElements(loc Locator) ([]ElementRef, error)

	// Click clicks el. Returns ErrStaleReference if el is detached.
	Click(el ElementRef) error

	// SendKeys types text into el. Returns ErrStaleReference if el is detached.
	SendKeys(el ElementRef, text string) error

	// ExecuteScript runs a synchronous script in the active context.
	// ElementRef arguments are passed to the script as elements.
	ExecuteScript(script string, args ...interface{}) (interface{}, error)

	// CurrentURL returns the active context's URL
	CurrentURL() (string, error)

	// ContextHandles returns the handles of all open top-level contexts
	ContextHandles() ([]string, error)

	// SwitchToContext makes handle the target of subsequent commands
	SwitchToContext(handle string) error

	// IsAlertPresent reports whether a user prompt is open
	IsAlertPresent() (bool, error)

	// AlertText returns the open prompt's text or ErrAlertNotPresent
	AlertText() (string, error)

	// AcceptAlert accepts the open prompt or returns ErrAlertNotPresent
	AcceptAlert() error

	// DismissAlert dismisses the open prompt or returns ErrAlertNotPresent
	DismissAlert() error

	// Close ends the browser session and releases its resources
	Close() error
}

// KeyEnter is the WebDriver code point for the Enter key. Include it in
// SendKeys text to submit a form field.
const KeyEnter = "\ue007"

// ElementRef is an opaque, driver-issued reference to a DOM element.
type ElementRef string

// Strategy names how a Locator's selector is interpreted (W3C names).
type Strategy string

const (
	StrategyCSS             Strategy = "css selector"
	StrategyXPath           Strategy = "xpath"
	StrategyTagName         Strategy = "tag name"
	StrategyLinkText        Strategy = "link text"
	StrategyPartialLinkText Strategy = "partial link text"
)

// Strategies lists every supported strategy.
var Strategies = []Strategy{StrategyCSS, StrategyXPath, StrategyTagName, StrategyLinkText, StrategyPartialLinkText}

// Valid reports whether s is a supported strategy.
func (s Strategy) Valid() bool {
	for _, known := range Strategies {
		if s == known {
			return true
		}
	}
	return false
}

// Locator is an immutable description of how to find elements.
type Locator struct {
	Strategy Strategy `json:"strategy" yaml:"strategy"`
	Selector string   `json:"selector" yaml:"selector"`
}

// CSS returns a CSS selector locator.
func CSS(selector string) Locator { return Locator{Strategy: StrategyCSS, Selector: selector} }

// XPath returns an XPath locator.
func XPath(selector string) Locator { return Locator{Strategy: StrategyXPath, Selector: selector} }

// TagName returns a tag name locator.
func TagName(name string) Locator { return Locator{Strategy: StrategyTagName, Selector: name} }

// LinkText returns an exact link text locator.
func LinkText(text string) Locator { return Locator{Strategy: StrategyLinkText, Selector: text} }

// IsZero reports whether the locator is unset.
func (l Locator) IsZero() bool {
	return l.Strategy == "" && l.Selector == ""
}

// Validate checks the strategy and selector.
func (l Locator) Validate() error {
	if l.Selector == "" {
		return ErrMissingRequired.WithMessage("locator selector is empty")
	}
	if !l.Strategy.Valid() {
		return ErrInvalidConfig.WithMessagef("unknown locator strategy %q", l.Strategy)
	}
	return nil
}

// String renders the locator as strategy=selector.
func (l Locator) String() string {
	return fmt.Sprintf("%s=%s", shortStrategy(l.Strategy), l.Selector)
}

func shortStrategy(s Strategy) string {
	switch s {
	case StrategyCSS:
		return "css"
	case StrategyTagName:
		return "tag"
	case StrategyLinkText:
		return "link"
	case StrategyPartialLinkText:
		return "partialLink"
	default:
		return string(s)
	}
}

// ParseLocator parses the "strategy=selector" form. A selector without a
// known prefix is treated as XPath when it starts with "/" or "(" and as CSS
// otherwise.
func ParseLocator(s string) (Locator, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Locator{}, ErrMissingRequired.WithMessage("locator is empty")
	}
	if prefix, rest, ok := strings.Cut(s, "="); ok {
		if strategy, known := strategyAliases[strings.ToLower(strings.TrimSpace(prefix))]; known {
			loc := Locator{Strategy: strategy, Selector: strings.TrimSpace(rest)}
			return loc, loc.Validate()
		}
	}
	if strings.HasPrefix(s, "/") || strings.HasPrefix(s, "(") {
		return XPath(s), nil
	}
	return CSS(s), nil
}

var strategyAliases = map[string]Strategy{
	"css":               StrategyCSS,
	"css selector":      StrategyCSS,
	"xpath":             StrategyXPath,
	"tag":               StrategyTagName,
	"tag name":          StrategyTagName,
	"link":              StrategyLinkText,
	"linktext":          StrategyLinkText,
	"link text":         StrategyLinkText,
	"partiallink":       StrategyPartialLinkText,
	"partial link text": StrategyPartialLinkText,
}
