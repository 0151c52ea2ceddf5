// Package cdp drives Chrome over the DevTools protocol with chromedp.
//
// Browsing contexts are page targets; element references are remote object
// IDs, which Chrome invalidates on navigation, so stale references surface
// the same way they do over WebDriver.
package cdp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"

	"github.com/devicelab-dev/shopsmoke/pkg/core"
	"github.com/devicelab-dev/shopsmoke/pkg/logger"
)

const (
	commandTimeout  = 30 * time.Second
	navigateTimeout = 60 * time.Second
)

// tab is an attached page target. The dialog and url fields are written by
// the chromedp event goroutine and guarded by Browser.mu.
type tab struct {
	ctx    context.Context
	cancel context.CancelFunc

	dialogOpen bool
	dialogText string
	url        string
}

// Browser implements core.Browser on a Chrome instance.
type Browser struct {
	allocCancel context.CancelFunc
	root        context.Context
	rootCancel  context.CancelFunc
	rootID      string

	mu     sync.Mutex
	tabs   map[string]*tab
	order  []string // handles in first-seen order
	active string
}

// newBrowser takes ownership of an allocator and the first tab's context,
// which must already be running.
func newBrowser(allocCancel context.CancelFunc, root context.Context, rootCancel context.CancelFunc) *Browser {
	id := string(chromedp.FromContext(root).Target.TargetID)
	b := &Browser{
		allocCancel: allocCancel,
		root:        root,
		rootCancel:  rootCancel,
		rootID:      id,
		tabs:        map[string]*tab{},
		order:       []string{id},
		active:      id,
	}
	t := &tab{ctx: root, cancel: rootCancel}
	b.tabs[id] = t
	chromedp.ListenTarget(root, b.listener(id))
	return b
}

// listener records dialog and navigation events for one tab. It runs on the
// chromedp event goroutine and must not issue commands.
func (b *Browser) listener(handle string) func(ev interface{}) {
	return func(ev interface{}) {
		b.mu.Lock()
		defer b.mu.Unlock()
		t, ok := b.tabs[handle]
		if !ok {
			return
		}
		switch e := ev.(type) {
		case *page.EventJavascriptDialogOpening:
			t.dialogOpen = true
			t.dialogText = e.Message
		case *page.EventJavascriptDialogClosed:
			t.dialogOpen = false
			t.dialogText = ""
		case *page.EventFrameNavigated:
			if e.Frame != nil && e.Frame.ParentID == "" {
				t.url = e.Frame.URL
			}
		case *page.EventNavigatedWithinDocument:
			t.url = e.URL
		}
	}
}

// current returns the active tab, failing when it has an open dialog and
// the command is not a dialog command.
func (b *Browser) current(allowDialog bool) (*tab, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, ok := b.tabs[b.active]
	if !ok {
		return nil, core.ErrDriverFault.WithMessagef("no such window %s", b.active)
	}
	if t.dialogOpen && !allowDialog {
		return nil, core.ErrUnexpectedAlert.WithMessagef("dialog open on %s: %s", t.url, t.dialogText)
	}
	return t, nil
}

// run executes fn against the active tab with a bounded context.
func (b *Browser) run(timeout time.Duration, fn func(ctx context.Context) error) error {
	t, err := b.current(false)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(t.ctx, timeout)
	defer cancel()
	return mapError(chromedp.Run(ctx, chromedp.ActionFunc(fn)))
}

// Navigate implements core.Browser.
func (b *Browser) Navigate(url string) error {
	return b.run(navigateTimeout, func(ctx context.Context) error {
		return chromedp.Navigate(url).Do(ctx)
	})
}

// FindElements implements core.Browser.
func (b *Browser) FindElements(loc core.Locator) ([]core.ElementRef, error) {
	expr, err := findScript(loc)
	if err != nil {
		return nil, err
	}
	var refs []core.ElementRef
	err = b.run(commandTimeout, func(ctx context.Context) error {
		list, exc, err := runtime.Evaluate(expr).Do(ctx)
		if err != nil {
			return err
		}
		if exc != nil {
			return exceptionError(exc)
		}
		var n int
		if err := callValue(ctx, list.ObjectID, "function() { return this.length; }", &n); err != nil {
			return err
		}
		for i := 0; i < n; i++ {
			el, exc, err := runtime.CallFunctionOn(fmt.Sprintf("function() { return this[%d]; }", i)).
				WithObjectID(list.ObjectID).
				Do(ctx)
			if err != nil {
				return err
			}
			if exc != nil {
				return exceptionError(exc)
			}
			refs = append(refs, core.ElementRef(el.ObjectID))
		}
		return nil
	})
	return refs, err
}

// Click implements core.Browser with a trusted mouse click at the element's
// center.
func (b *Browser) Click(el core.ElementRef) error {
	return b.run(commandTimeout, func(ctx context.Context) error {
		var point [2]float64
		if err := callValue(ctx, runtime.RemoteObjectID(el), clickPointFunc, &point); err != nil {
			return err
		}
		return chromedp.MouseClickXY(point[0], point[1]).Do(ctx)
	})
}

// SendKeys implements core.Browser. core.KeyEnter presses Enter.
func (b *Browser) SendKeys(el core.ElementRef, text string) error {
	return b.run(commandTimeout, func(ctx context.Context) error {
		if err := callValue(ctx, runtime.RemoteObjectID(el), focusFunc, nil); err != nil {
			return err
		}
		return chromedp.KeyEvent(keySequence(text)).Do(ctx)
	})
}

// ExecuteScript implements core.Browser. The script is a function body that
// reads its arguments from `arguments`, as with WebDriver.
func (b *Browser) ExecuteScript(script string, args ...interface{}) (interface{}, error) {
	decl, elements, err := scriptFunc(script, args)
	if err != nil {
		return nil, err
	}
	var result interface{}
	err = b.run(commandTimeout, func(ctx context.Context) error {
		win, exc, err := runtime.Evaluate("window").Do(ctx)
		if err != nil {
			return err
		}
		if exc != nil {
			return exceptionError(exc)
		}
		callArgs := make([]*runtime.CallArgument, len(elements))
		for i, ref := range elements {
			callArgs[i] = &runtime.CallArgument{ObjectID: runtime.RemoteObjectID(ref)}
		}
		res, exc, err := runtime.CallFunctionOn(decl).
			WithObjectID(win.ObjectID).
			WithArguments(callArgs).
			WithReturnByValue(true).
			WithAwaitPromise(true).
			Do(ctx)
		if err != nil {
			return err
		}
		if exc != nil {
			return core.ErrScriptFailed.WithMessage((&scriptException{details: exc}).Error())
		}
		return decodeValue(res, &result)
	})
	return result, err
}

// CurrentURL implements core.Browser.
func (b *Browser) CurrentURL() (string, error) {
	var u string
	err := b.run(commandTimeout, func(ctx context.Context) error {
		return chromedp.Location(&u).Do(ctx)
	})
	return u, err
}

// ContextHandles implements core.Browser. Tabs that have closed are
// detached as a side effect.
func (b *Browser) ContextHandles() ([]string, error) {
	ctx, cancel := context.WithTimeout(b.root, commandTimeout)
	defer cancel()
	infos, err := chromedp.Targets(ctx)
	if err != nil {
		return nil, mapError(err)
	}
	live := map[string]bool{}
	for _, info := range infos {
		if info.Type == "page" {
			live[string(info.TargetID)] = true
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, info := range infos {
		id := string(info.TargetID)
		if live[id] && !slices.Contains(b.order, id) {
			b.order = append(b.order, id)
		}
	}
	handles := make([]string, 0, len(live))
	kept := b.order[:0]
	for _, id := range b.order {
		if !live[id] {
			if t, ok := b.tabs[id]; ok && id != b.rootID {
				t.cancel()
				delete(b.tabs, id)
			}
			continue
		}
		kept = append(kept, id)
		handles = append(handles, id)
	}
	b.order = kept
	return handles, nil
}

// SwitchToContext implements core.Browser, attaching to the target on first
// use.
func (b *Browser) SwitchToContext(handle string) error {
	b.mu.Lock()
	t, ok := b.tabs[handle]
	b.mu.Unlock()

	if !ok {
		if handle == b.rootID {
			return core.ErrDriverFault.WithMessage("primary tab is gone")
		}
		ctx, cancel := chromedp.NewContext(b.root, chromedp.WithTargetID(target.ID(handle)))
		attachCtx, attachCancel := context.WithTimeout(ctx, commandTimeout)
		err := chromedp.Run(attachCtx)
		attachCancel()
		if err != nil {
			cancel()
			return core.ErrDriverFault.WithMessagef("no such window %s", handle).WithCause(err)
		}
		t = &tab{ctx: ctx, cancel: cancel}
		b.mu.Lock()
		b.tabs[handle] = t
		b.mu.Unlock()
		chromedp.ListenTarget(ctx, b.listener(handle))
	}

	ctx, cancel := context.WithTimeout(t.ctx, commandTimeout)
	defer cancel()
	if err := chromedp.Run(ctx, page.BringToFront()); err != nil {
		return mapError(err)
	}
	b.mu.Lock()
	b.active = handle
	b.mu.Unlock()
	return nil
}

// IsAlertPresent implements core.Browser from recorded dialog events.
func (b *Browser) IsAlertPresent() (bool, error) {
	t, err := b.current(true)
	if err != nil {
		return false, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return t.dialogOpen, nil
}

// AlertText implements core.Browser.
func (b *Browser) AlertText() (string, error) {
	t, err := b.current(true)
	if err != nil {
		return "", err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if !t.dialogOpen {
		return "", core.ErrAlertNotPresent
	}
	return t.dialogText, nil
}

// AcceptAlert implements core.Browser.
func (b *Browser) AcceptAlert() error {
	return b.handleDialog(true)
}

// DismissAlert implements core.Browser.
func (b *Browser) DismissAlert() error {
	return b.handleDialog(false)
}

func (b *Browser) handleDialog(accept bool) error {
	t, err := b.current(true)
	if err != nil {
		return err
	}
	b.mu.Lock()
	open := t.dialogOpen
	b.mu.Unlock()
	if !open {
		return core.ErrAlertNotPresent
	}

	ctx, cancel := context.WithTimeout(t.ctx, commandTimeout)
	defer cancel()
	if err := chromedp.Run(ctx, page.HandleJavaScriptDialog(accept)); err != nil {
		return mapError(err)
	}
	b.mu.Lock()
	t.dialogOpen = false
	t.dialogText = ""
	b.mu.Unlock()
	return nil
}

// Close shuts Chrome down. Safe to call more than once.
func (b *Browser) Close() error {
	b.mu.Lock()
	tabs := b.tabs
	b.tabs = map[string]*tab{}
	b.mu.Unlock()
	if len(tabs) == 0 {
		return nil
	}

	for id, t := range tabs {
		if id != b.rootID {
			t.cancel()
		}
	}
	err := chromedp.Cancel(b.root)
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Warn("close chrome: %v", err)
	} else {
		err = nil
	}
	b.rootCancel()
	b.allocCancel()
	return err
}

// callValue calls fn on the remote object and decodes its return value into
// out (skipped when out is nil).
func callValue(ctx context.Context, id runtime.RemoteObjectID, fn string, out interface{}) error {
	res, exc, err := runtime.CallFunctionOn(fn).
		WithObjectID(id).
		WithReturnByValue(true).
		Do(ctx)
	if err != nil {
		return err
	}
	if exc != nil {
		return exceptionError(exc)
	}
	if out == nil {
		return nil
	}
	return decodeValue(res, out)
}

func decodeValue(res *runtime.RemoteObject, out interface{}) error {
	if res == nil || len(res.Value) == 0 {
		return nil
	}
	if err := json.Unmarshal([]byte(res.Value), out); err != nil {
		return core.ErrDriverFault.WithMessage("undecodable script result").WithCause(err)
	}
	return nil
}

var _ core.Browser = (*Browser)(nil)
