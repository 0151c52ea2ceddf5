package storefront

import (
	"strings"
	"time"

	"github.com/devicelab-dev/shopsmoke/pkg/core"
	"github.com/devicelab-dev/shopsmoke/pkg/driver/mock"
	"github.com/devicelab-dev/shopsmoke/pkg/session"
)

// GoogleSignInURL is where the identity provider popup opens.
const GoogleSignInURL = "https://accounts.google.com/signin"

// InvalidCredentialAlert is the alert the demo shop raises for bad credentials.
const InvalidCredentialAlert = "Firebase: Error (auth/invalid-credential)."

// Demo tunes the simulated storefront.
type Demo struct {
	// Products is the size of the catalog.
	Products int
	// AuthDelay is the time between submitting the form and the outcome.
	AuthDelay time.Duration
	// PopupDelay is the time between submitting the popup and it closing.
	PopupDelay time.Duration
}

// DefaultDemo returns a catalog of four products with short network delays.
func DefaultDemo() Demo {
	return Demo{
		Products:   4,
		AuthDelay:  300 * time.Millisecond,
		PopupDelay: 500 * time.Millisecond,
	}
}

const (
	stateSelected = "selected"
	stateCart     = "cart"
	stateUser     = "user"
)

// DemoSite builds a simulated storefront that accepts o.Valid and rejects
// everything else. The profile link always leads to the login form, as it
// does for a signed-out visitor of the real shop.
func DemoSite(o Options, d Demo) *mock.Site {
	o = o.WithDefaults()

	profile := &mock.Element{
		Locator: ProfileLink,
		Count:   1,
		OnClick: func(b *mock.Browser, _ int) { b.Route(LoginPath) },
	}
	withProfile := func(els ...*mock.Element) *mock.Page {
		return &mock.Page{Elements: append([]*mock.Element{profile}, els...)}
	}
	input := func(loc core.Locator) *mock.Element {
		return &mock.Element{Locator: loc, Count: 1}
	}

	login := &mock.Element{
		Locator: LoginButton,
		Count:   1,
		OnClick: func(b *mock.Browser, _ int) {
			got := Credentials{
				Username: b.Value(UsernameInput, 0),
				Email:    b.Value(EmailInput, 0),
				Password: b.Value(PasswordInput, 0),
			}
			handle := b.ActiveHandle()
			if got == o.Valid {
				b.After(d.AuthDelay, func(b *mock.Browser) {
					b.State[stateUser] = got.Email
					b.RouteWindow(handle, o.SuccessPath)
				})
				return
			}
			b.After(d.AuthDelay, func(b *mock.Browser) { b.ShowAlert(InvalidCredentialAlert) })
		},
	}

	google := &mock.Element{
		Locator: GoogleButton,
		Count:   1,
		OnClick: func(b *mock.Browser, _ int) {
			opener := b.ActiveHandle()
			popup := b.OpenWindow(GoogleSignInURL)
			b.State["popup"] = popup
			b.State["opener"] = opener
		},
	}

	popupEmail := &mock.Element{
		Locator: PopupEmailInput,
		Count:   1,
		OnKeys: func(b *mock.Browser, _ int, text string) {
			if !strings.Contains(text, core.KeyEnter) {
				return
			}
			popup, _ := b.State["popup"].(string)
			opener, _ := b.State["opener"].(string)
			b.After(d.PopupDelay, func(b *mock.Browser) {
				b.CloseWindow(popup)
				b.State[stateUser] = "google"
				b.RouteWindow(opener, o.SuccessPath)
			})
		},
	}

	products := &mock.Element{
		Locator: ProductCard,
		CountFn: func(*mock.Browser) int { return d.Products },
		OnClick: func(b *mock.Browser, idx int) {
			b.State[stateSelected] = idx
			b.Route(ProductPath)
		},
	}

	addToCart := &mock.Element{
		Locator: AddToCartButton,
		Count:   1,
		OnClick: func(b *mock.Browser, _ int) {
			if idx, ok := b.State[stateSelected].(int); ok {
				cart, _ := b.State[stateCart].([]int)
				b.State[stateCart] = append(cart, idx)
			}
		},
	}

	cartItems := &mock.Element{
		Locator: CartItem,
		CountFn: func(b *mock.Browser) int {
			cart, _ := b.State[stateCart].([]int)
			return len(cart)
		},
	}

	pages := map[string]*mock.Page{
		HomePath:    withProfile(),
		ProfilePath: withProfile(),
		LoginPath: withProfile(
			input(UsernameInput),
			input(EmailInput),
			input(PasswordInput),
			login,
			google,
		),
		"/signin":    {Elements: []*mock.Element{popupEmail}},
		ProductsPath: withProfile(products),
		ProductPath:  withProfile(addToCart),
		CartPath:     withProfile(cartItems),
	}
	if _, ok := pages[o.SuccessPath]; !ok {
		pages[o.SuccessPath] = withProfile()
	}
	return &mock.Site{Pages: pages}
}

// NewDemoBrowser returns a mock browser serving the demo storefront.
func NewDemoBrowser(o Options, d Demo, cfg mock.Config) *mock.Browser {
	return mock.New(DemoSite(o, d), cfg)
}

// DemoLauncher launches a fresh demo browser per session.
func DemoLauncher(o Options, d Demo, cfg mock.Config) session.Launcher {
	return session.LauncherFunc(func(session.Config) (core.Browser, error) {
		return NewDemoBrowser(o, d, cfg), nil
	})
}
