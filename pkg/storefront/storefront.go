// Package storefront defines the smoke scenarios for the shop frontend and
// a simulated copy of the shop for running them without a browser.
package storefront

import (
	"time"

	"github.com/devicelab-dev/shopsmoke/pkg/core"
)

// Routes of the storefront.
const (
	HomePath     = "/"
	LoginPath    = "/login"
	ProfilePath  = "/myProfile"
	ProductsPath = "/products"
	ProductPath  = "/product"
	CartPath     = "/cart"

	// DefaultSuccessPath is where a successful login lands. Signed-out
	// visitors to it are sent to LoginPath.
	DefaultSuccessPath = ProfilePath

	// InvalidCredentialToken appears in the alert raised for bad credentials.
	InvalidCredentialToken = "auth/invalid-credential"
)

// Element locators.
var (
	ProfileLink     = core.XPath("//a[@href='/myProfile']")
	UsernameInput   = core.XPath("//input[@placeholder='Username']")
	EmailInput      = core.XPath("//input[@placeholder='Email']")
	PasswordInput   = core.XPath("//input[@placeholder='Password']")
	LoginButton     = core.XPath("//button[contains(text(), 'Login')]")
	GoogleButton    = core.XPath("//button[descendant::img[contains(@src, 'google-icon')]]")
	PopupEmailInput = core.CSS("input[type='email']")
	ProductCard     = core.XPath("//div[contains(@class, 'border-gray-300 rounded-lg')]")
	AddToCartButton = core.XPath("//button[contains(@class, 'bg-green-900 text-white')]")
	CartItem        = core.XPath("//div[contains(@class, 'border-gray-300 relative')]")
)

// Credentials fill the login form.
type Credentials struct {
	Username string `yaml:"username"`
	Email    string `yaml:"email"`
	Password string `yaml:"password"`
}

// Options parameterize the built-in scenarios.
type Options struct {
	Valid       Credentials
	Invalid     Credentials
	SuccessPath string
	ErrorToken  string
	// GoogleEmail is typed into the identity provider popup. Variables are
	// expanded at run time.
	GoogleEmail string
	// MinProducts is how many catalog products the cart scenario needs and adds.
	MinProducts int
	// StepTimeout replaces the per-step wait bounds of the built-in
	// scenarios when positive.
	StepTimeout time.Duration
}

// DefaultOptions returns the storefront's seeded test accounts.
func DefaultOptions() Options {
	return Options{
		Valid: Credentials{
			Username: "test_user",
			Email:    "test_user@gmail.com",
			Password: "test1234",
		},
		Invalid: Credentials{
			Username: "wrong_user",
			Email:    "wrong_email@gmail.com",
			Password: "wrongpassword",
		},
		SuccessPath: DefaultSuccessPath,
		ErrorToken:  InvalidCredentialToken,
		GoogleEmail: "${GOOGLE_EMAIL}",
		MinProducts: 2,
	}
}

// WithDefaults fills unset fields from DefaultOptions.
func (o Options) WithDefaults() Options {
	d := DefaultOptions()
	if o.Valid == (Credentials{}) {
		o.Valid = d.Valid
	}
	if o.Invalid == (Credentials{}) {
		o.Invalid = d.Invalid
	}
	if o.SuccessPath == "" {
		o.SuccessPath = d.SuccessPath
	}
	if o.ErrorToken == "" {
		o.ErrorToken = d.ErrorToken
	}
	if o.GoogleEmail == "" {
		o.GoogleEmail = d.GoogleEmail
	}
	if o.MinProducts <= 0 {
		o.MinProducts = d.MinProducts
	}
	return o
}

func (o Options) bound(d time.Duration) time.Duration {
	if o.StepTimeout > 0 {
		return o.StepTimeout
	}
	return d
}
