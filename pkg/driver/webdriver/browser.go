package webdriver

import (
	"errors"

	"github.com/devicelab-dev/shopsmoke/pkg/core"
	"github.com/devicelab-dev/shopsmoke/pkg/logger"
)

// Browser implements core.Browser on a WebDriver session.
type Browser struct {
	client  *Client
	service *Service // nil when attached to an external server
}

// NewBrowser wraps a client that already holds a session.
func NewBrowser(client *Client, service *Service) *Browser {
	return &Browser{client: client, service: service}
}

// Client returns the underlying protocol client.
func (b *Browser) Client() *Client {
	return b.client
}

// Navigate implements core.Browser.
func (b *Browser) Navigate(url string) error {
	return mapError(b.client.NavigateTo(url))
}

// FindElements implements core.Browser.
func (b *Browser) FindElements(loc core.Locator) ([]core.ElementRef, error) {
	ids, err := b.client.FindElements(string(loc.Strategy), loc.Selector)
	if err != nil {
		err = mapError(err)
		// Some servers answer the plural command with "no such element".
		if errors.Is(err, core.ErrElementNotFound) {
			return nil, nil
		}
		return nil, err
	}
	refs := make([]core.ElementRef, len(ids))
	for i, id := range ids {
		refs[i] = core.ElementRef(id)
	}
	return refs, nil
}

// Click implements core.Browser.
func (b *Browser) Click(el core.ElementRef) error {
	return mapError(b.client.ClickElement(string(el)))
}

// SendKeys implements core.Browser.
func (b *Browser) SendKeys(el core.ElementRef, text string) error {
	return mapError(b.client.SendKeysToElement(string(el), text))
}

// ExecuteScript implements core.Browser. ElementRef arguments are sent as
// web element references.
func (b *Browser) ExecuteScript(script string, args ...interface{}) (interface{}, error) {
	wire := make([]interface{}, len(args))
	for i, a := range args {
		if ref, ok := a.(core.ElementRef); ok {
			wire[i] = map[string]interface{}{w3cElementKey: string(ref)}
			continue
		}
		wire[i] = a
	}
	res, err := b.client.ExecuteSync(script, wire)
	return res, mapError(err)
}

// CurrentURL implements core.Browser.
func (b *Browser) CurrentURL() (string, error) {
	u, err := b.client.CurrentURL()
	return u, mapError(err)
}

// ContextHandles implements core.Browser.
func (b *Browser) ContextHandles() ([]string, error) {
	handles, err := b.client.WindowHandles()
	return handles, mapError(err)
}

// SwitchToContext implements core.Browser.
func (b *Browser) SwitchToContext(handle string) error {
	return mapError(b.client.SwitchToWindow(handle))
}

// IsAlertPresent implements core.Browser.
func (b *Browser) IsAlertPresent() (bool, error) {
	_, err := b.AlertText()
	if err == nil {
		return true, nil
	}
	if errors.Is(err, core.ErrAlertNotPresent) {
		return false, nil
	}
	return false, err
}

// AlertText implements core.Browser.
func (b *Browser) AlertText() (string, error) {
	text, err := b.client.AlertText()
	return text, mapError(err)
}

// AcceptAlert implements core.Browser.
func (b *Browser) AcceptAlert() error {
	return mapError(b.client.AcceptAlert())
}

// DismissAlert implements core.Browser.
func (b *Browser) DismissAlert() error {
	return mapError(b.client.DismissAlert())
}

// Close deletes the session and stops the driver process if this browser
// started it.
func (b *Browser) Close() error {
	err := b.client.DeleteSession()
	if err != nil {
		logger.Warn("delete webdriver session: %v", err)
	}
	if b.service != nil {
		if serr := b.service.Stop(); serr != nil {
			err = errors.Join(err, serr)
		}
		b.service = nil
	}
	return err
}
