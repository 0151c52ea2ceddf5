// Package mock provides an in-memory browser for testing without a real one.
//
// A Browser renders pages from a Site: each page declares the locators it
// answers and what happens when matching elements are clicked or typed into.
// It models the parts of a real browser the engine synchronizes on: pages
// that render after a delay, element references that go stale when the page
// changes, popup windows, and alerts that block page commands.
package mock

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/devicelab-dev/shopsmoke/pkg/core"
)

// Config configures mock browser behavior.
type Config struct {
	// RenderDelay keeps a page's elements absent for this long after each
	// route change.
	RenderDelay time.Duration
	// FailOnCall makes call N fail with a driver fault (1-indexed). 0 = never fail.
	FailOnCall int
	// FailOn is consulted before every call with the method name. A non-nil
	// error is returned instead of performing the call.
	FailOn func(method string) error
}

// Site describes the pages a Browser can render.
type Site struct {
	// Pages maps a URL path to its page.
	Pages map[string]*Page
	// Script handles ExecuteScript. Nil returns (nil, nil).
	Script func(b *Browser, script string, args []interface{}) (interface{}, error)
}

// Page is the set of elements present at one path.
type Page struct {
	Elements []*Element
}

// Element declares how many nodes match a locator and how they react.
type Element struct {
	Locator core.Locator
	// Count is the number of matches. CountFn overrides it when set.
	Count   int
	CountFn func(b *Browser) int
	OnClick func(b *Browser, index int)
	OnKeys  func(b *Browser, index int, text string)
}

func (e *Element) count(b *Browser) int {
	if e.CountFn != nil {
		return e.CountFn(b)
	}
	return e.Count
}

type window struct {
	handle     string
	url        string
	generation int
	renderedAt time.Time
}

type refInfo struct {
	handle     string
	generation int
	locator    core.Locator
	index      int
}

type task struct {
	at time.Time
	fn func(b *Browser)
}

// Browser is an in-memory implementation of core.Browser.
type Browser struct {
	// Configuration
	Config Config
	Site   *Site

	// State is scratch space for site handlers (logged-in user, cart, ...)
	State map[string]interface{}

	// Internal state
	windows    []*window
	active     *window
	alert      *string
	refs       map[core.ElementRef]refInfo
	values     map[string]string
	tasks      []task
	nextWindow int
	nextRef    int
	calls      int
	closed     bool
}

// New creates a browser with one blank window.
func New(site *Site, cfg Config) *Browser {
	if site == nil {
		site = &Site{}
	}
	b := &Browser{
		Config: cfg,
		Site:   site,
		State:  make(map[string]interface{}),
		refs:   make(map[core.ElementRef]refInfo),
		values: make(map[string]string),
	}
	b.active = b.newWindow("about:blank")
	return b
}

func (b *Browser) newWindow(u string) *window {
	b.nextWindow++
	w := &window{
		handle:     fmt.Sprintf("window-%d", b.nextWindow),
		url:        u,
		renderedAt: time.Now(),
	}
	b.windows = append(b.windows, w)
	return w
}

// begin runs due tasks and applies configured faults.
func (b *Browser) begin(method string) error {
	b.calls++
	if b.closed {
		return core.ErrDriverFault.WithMessage("session closed")
	}
	b.runDue()
	if b.Config.FailOnCall > 0 && b.calls == b.Config.FailOnCall {
		return core.ErrDriverFault.WithMessagef("mock failure on call %d (%s)", b.calls, method)
	}
	if b.Config.FailOn != nil {
		if err := b.Config.FailOn(method); err != nil {
			return err
		}
	}
	return nil
}

// pageCommand is begin plus the checks shared by commands that act on the
// active page.
func (b *Browser) pageCommand(method string) (*window, error) {
	if err := b.begin(method); err != nil {
		return nil, err
	}
	if b.active == nil || !b.isOpen(b.active) {
		return nil, core.ErrDriverFault.WithMessage("no such window: active window was closed")
	}
	if b.alert != nil {
		return nil, core.ErrUnexpectedAlert.WithMessagef("alert open: %s", *b.alert)
	}
	return b.active, nil
}

// promptCommand is begin plus the active window check. Like geckodriver,
// prompt commands answer "no such window" once the active window has closed.
func (b *Browser) promptCommand(method string) error {
	if err := b.begin(method); err != nil {
		return err
	}
	if b.active == nil || !b.isOpen(b.active) {
		return core.ErrDriverFault.WithMessage("no such window: active window was closed")
	}
	return nil
}

func (b *Browser) runDue() {
	now := time.Now()
	for {
		idx := -1
		for i, t := range b.tasks {
			if !t.at.After(now) {
				idx = i
				break
			}
		}
		if idx < 0 {
			return
		}
		t := b.tasks[idx]
		b.tasks = append(b.tasks[:idx], b.tasks[idx+1:]...)
		t.fn(b)
	}
}

// After schedules fn to run on the first browser call at least d from now.
func (b *Browser) After(d time.Duration, fn func(b *Browser)) {
	b.tasks = append(b.tasks, task{at: time.Now().Add(d), fn: fn})
	sort.SliceStable(b.tasks, func(i, j int) bool { return b.tasks[i].at.Before(b.tasks[j].at) })
}

// Navigate loads url in the active window.
func (b *Browser) Navigate(u string) error {
	w, err := b.pageCommand("Navigate")
	if err != nil {
		return err
	}
	b.load(w, u)
	return nil
}

func (b *Browser) load(w *window, u string) {
	w.url = u
	w.generation++
	w.renderedAt = time.Now()
}

// Route performs a client-side route change in the active window.
func (b *Browser) Route(path string) {
	if b.active == nil {
		return
	}
	b.RouteWindow(b.active.handle, path)
}

// RouteWindow performs a client-side route change in the given window.
func (b *Browser) RouteWindow(handle, path string) {
	w := b.window(handle)
	if w == nil {
		return
	}
	base, err := url.Parse(w.url)
	if err != nil || base.Scheme == "" || base.Scheme == "about" {
		b.load(w, path)
		return
	}
	ref, err := url.Parse(path)
	if err != nil {
		b.load(w, path)
		return
	}
	b.load(w, base.ResolveReference(ref).String())
}

// Rerender invalidates every reference in the active window without
// changing its URL.
func (b *Browser) Rerender() {
	if b.active != nil {
		b.active.generation++
	}
}

// OpenWindow opens a new window without focusing it and returns its handle.
func (b *Browser) OpenWindow(u string) string {
	return b.newWindow(u).handle
}

// CloseWindow closes the window with the given handle.
func (b *Browser) CloseWindow(handle string) {
	for i, w := range b.windows {
		if w.handle == handle {
			b.windows = append(b.windows[:i], b.windows[i+1:]...)
			return
		}
	}
}

// ShowAlert opens a blocking alert with text.
func (b *Browser) ShowAlert(text string) {
	b.alert = &text
}

// Value returns what was typed into the index-th match of loc in the active window.
func (b *Browser) Value(loc core.Locator, index int) string {
	if b.active == nil {
		return ""
	}
	return b.values[valueKey(b.active, loc, index)]
}

// ActiveHandle returns the handle commands currently target.
func (b *Browser) ActiveHandle() string {
	if b.active == nil {
		return ""
	}
	return b.active.handle
}

// Handles returns all open window handles in opening order.
func (b *Browser) Handles() []string {
	handles := make([]string, 0, len(b.windows))
	for _, w := range b.windows {
		handles = append(handles, w.handle)
	}
	return handles
}

// Path returns the URL path of the given window.
func (b *Browser) Path(handle string) string {
	w := b.window(handle)
	if w == nil {
		return ""
	}
	return pathOf(w.url)
}

// Calls returns how many browser commands were issued.
func (b *Browser) Calls() int {
	return b.calls
}

// Closed reports whether Close was called.
func (b *Browser) Closed() bool {
	return b.closed
}

// FindElements returns references to the current matches of loc.
func (b *Browser) FindElements(loc core.Locator) ([]core.ElementRef, error) {
	w, err := b.pageCommand("FindElements")
	if err != nil {
		return nil, err
	}
	if err := loc.Validate(); err != nil {
		return nil, core.ErrDriverFault.WithCause(err)
	}
	if time.Since(w.renderedAt) < b.Config.RenderDelay {
		return nil, nil
	}

	el := b.element(w, loc)
	if el == nil {
		return nil, nil
	}
	n := el.count(b)
	refs := make([]core.ElementRef, 0, n)
	for i := 0; i < n; i++ {
		b.nextRef++
		ref := core.ElementRef(fmt.Sprintf("%s-g%d-e%d", w.handle, w.generation, b.nextRef))
		b.refs[ref] = refInfo{handle: w.handle, generation: w.generation, locator: loc, index: i}
		refs = append(refs, ref)
	}
	return refs, nil
}

// element finds the declared element for loc on w's page. The body tag is
// implicit on every page.
func (b *Browser) element(w *window, loc core.Locator) *Element {
	if w.url == "about:blank" {
		return nil
	}
	if page := b.Site.Pages[pathOf(w.url)]; page != nil {
		for _, el := range page.Elements {
			if el.Locator == loc {
				return el
			}
		}
	}
	if loc == core.TagName("body") {
		return &Element{Locator: loc, Count: 1}
	}
	return nil
}

// resolve checks that ref still points at a live node in the active window.
func (b *Browser) resolve(w *window, ref core.ElementRef) (*Element, refInfo, error) {
	info, ok := b.refs[ref]
	if !ok {
		return nil, info, core.ErrDriverFault.WithMessagef("unknown element reference %s", ref)
	}
	if info.handle != w.handle || info.generation != w.generation {
		return nil, info, core.ErrStaleReference.WithMessagef("element %s is no longer attached to the DOM", ref)
	}
	el := b.element(w, info.locator)
	if el == nil || info.index >= el.count(b) {
		return nil, info, core.ErrStaleReference.WithMessagef("element %s is no longer attached to the DOM", ref)
	}
	return el, info, nil
}

// Click clicks el.
func (b *Browser) Click(ref core.ElementRef) error {
	w, err := b.pageCommand("Click")
	if err != nil {
		return err
	}
	el, info, err := b.resolve(w, ref)
	if err != nil {
		return err
	}
	if el.OnClick != nil {
		el.OnClick(b, info.index)
	}
	return nil
}

// SendKeys appends text to el's value.
func (b *Browser) SendKeys(ref core.ElementRef, text string) error {
	w, err := b.pageCommand("SendKeys")
	if err != nil {
		return err
	}
	el, info, err := b.resolve(w, ref)
	if err != nil {
		return err
	}
	key := valueKey(w, info.locator, info.index)
	b.values[key] += strings.ReplaceAll(text, core.KeyEnter, "")
	if el.OnKeys != nil {
		el.OnKeys(b, info.index, text)
	}
	return nil
}

// ExecuteScript delegates to the site's script handler.
func (b *Browser) ExecuteScript(script string, args ...interface{}) (interface{}, error) {
	if _, err := b.pageCommand("ExecuteScript"); err != nil {
		return nil, err
	}
	if b.Site.Script == nil {
		return nil, nil
	}
	return b.Site.Script(b, script, args)
}

// CurrentURL returns the active window's URL.
func (b *Browser) CurrentURL() (string, error) {
	w, err := b.pageCommand("CurrentURL")
	if err != nil {
		return "", err
	}
	return w.url, nil
}

// ContextHandles returns all open window handles.
func (b *Browser) ContextHandles() ([]string, error) {
	if err := b.begin("ContextHandles"); err != nil {
		return nil, err
	}
	return b.Handles(), nil
}

// SwitchToContext focuses the window with handle.
func (b *Browser) SwitchToContext(handle string) error {
	if err := b.begin("SwitchToContext"); err != nil {
		return err
	}
	w := b.window(handle)
	if w == nil {
		return core.ErrDriverFault.WithMessagef("no such window: %s", handle)
	}
	b.active = w
	return nil
}

// IsAlertPresent reports whether an alert is open.
func (b *Browser) IsAlertPresent() (bool, error) {
	if err := b.promptCommand("IsAlertPresent"); err != nil {
		return false, err
	}
	return b.alert != nil, nil
}

// AlertText returns the open alert's text.
func (b *Browser) AlertText() (string, error) {
	if err := b.promptCommand("AlertText"); err != nil {
		return "", err
	}
	if b.alert == nil {
		return "", core.ErrAlertNotPresent
	}
	return *b.alert, nil
}

// AcceptAlert closes the open alert.
func (b *Browser) AcceptAlert() error {
	return b.closeAlert("AcceptAlert")
}

// DismissAlert closes the open alert.
func (b *Browser) DismissAlert() error {
	return b.closeAlert("DismissAlert")
}

func (b *Browser) closeAlert(method string) error {
	if err := b.promptCommand(method); err != nil {
		return err
	}
	if b.alert == nil {
		return core.ErrAlertNotPresent
	}
	b.alert = nil
	return nil
}

// Close ends the session. Subsequent calls fail.
func (b *Browser) Close() error {
	b.closed = true
	b.windows = nil
	b.active = nil
	return nil
}

func (b *Browser) window(handle string) *window {
	for _, w := range b.windows {
		if w.handle == handle {
			return w
		}
	}
	return nil
}

func (b *Browser) isOpen(w *window) bool {
	return b.window(w.handle) == w
}

func valueKey(w *window, loc core.Locator, index int) string {
	return fmt.Sprintf("%s|%d|%s|%d", w.handle, w.generation, loc, index)
}

func pathOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Path == "" {
		return "/"
	}
	return u.Path
}
