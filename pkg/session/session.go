// Package session owns the browser for the duration of a run: launching it,
// tracking its browsing contexts and DOM generation, and tearing it down.
package session

import (
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/devicelab-dev/shopsmoke/pkg/core"
	"github.com/devicelab-dev/shopsmoke/pkg/logger"
	"github.com/devicelab-dev/shopsmoke/pkg/wait"
)

// DefaultBaseURL is the storefront's development server.
const DefaultBaseURL = "http://localhost:5173/"

// Config configures a browser session.
type Config struct {
	BaseURL     string // Relative navigation targets resolve against this
	DriverPath  string // Browser driver binary (geckodriver, chrome)
	ServerURL   string // Already-running driver endpoint; skips launching DriverPath
	Private     bool   // Private/incognito browsing
	AllowPopups bool   // Disable the popup blocker
	Headless    bool

	DefaultTimeout time.Duration
	PollInterval   time.Duration
}

// WithDefaults fills unset fields.
func (c Config) WithDefaults() Config {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.DefaultTimeout <= 0 {
		c.DefaultTimeout = wait.DefaultTimeout
	}
	if c.PollInterval <= 0 {
		c.PollInterval = wait.DefaultInterval
	}
	return c
}

// Launcher starts a browser for a session.
type Launcher interface {
	Launch(cfg Config) (core.Browser, error)
}

// LauncherFunc adapts a function to Launcher.
type LauncherFunc func(cfg Config) (core.Browser, error)

// Launch calls f(cfg).
func (f LauncherFunc) Launch(cfg Config) (core.Browser, error) {
	return f(cfg)
}

// Session is the single live browser of a run. It is not safe for
// concurrent use; the runner owns it exclusively.
type Session struct {
	cfg     Config
	browser core.Browser

	// Browsing contexts. known is mutated only by Switcher.
	primary string
	active  string
	known   []string
	returns []string

	generation uint64
	closed     bool
}

// Open launches a browser and records its initial contexts. The first
// context reported becomes both primary and active.
func Open(cfg Config, l Launcher) (*Session, error) {
	cfg = cfg.WithDefaults()
	browser, err := l.Launch(cfg)
	if err != nil {
		return nil, core.ErrSessionNotCreated.WithCause(err)
	}
	s, err := New(browser, cfg)
	if err != nil {
		if cerr := browser.Close(); cerr != nil {
			logger.Warn("close after failed session start: %v", cerr)
		}
		return nil, err
	}
	logger.Info("session opened: base=%s context=%s", cfg.BaseURL, s.active)
	return s, nil
}

// New wraps an already launched browser.
func New(browser core.Browser, cfg Config) (*Session, error) {
	cfg = cfg.WithDefaults()
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, core.ErrInvalidConfig.WithMessagef("invalid base URL %q", cfg.BaseURL).WithCause(err)
	}
	handles, err := browser.ContextHandles()
	if err != nil {
		return nil, core.ErrSessionNotCreated.WithMessage("could not list browsing contexts").WithCause(err)
	}
	if len(handles) == 0 {
		return nil, core.ErrSessionNotCreated.WithMessage("browser has no open context")
	}
	return &Session{
		cfg:     cfg,
		browser: browser,
		primary: handles[0],
		active:  handles[0],
		known:   slices.Clone(handles),
	}, nil
}

// Run opens a session, calls fn and closes the session on every exit path,
// including a panic inside fn (which continues after teardown).
func Run(cfg Config, l Launcher, fn func(*Session) error) (err error) {
	s, err := Open(cfg, l)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := s.Close(); cerr != nil {
			err = errors.Join(err, cerr)
		}
	}()
	return fn(s)
}

// Close ends the browser session. Safe to call more than once.
func (s *Session) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	logger.Info("closing session")
	if err := s.browser.Close(); err != nil {
		return fmt.Errorf("close browser: %w", err)
	}
	return nil
}

// Closed reports whether Close was called.
func (s *Session) Closed() bool { return s.closed }

// Browser returns the underlying protocol client.
func (s *Session) Browser() core.Browser { return s.browser }

// Config returns the session configuration with defaults applied.
func (s *Session) Config() Config { return s.cfg }

// Timeout returns the default bound for waits.
func (s *Session) Timeout() time.Duration { return s.cfg.DefaultTimeout }

// Interval returns the default poll interval.
func (s *Session) Interval() time.Duration { return s.cfg.PollInterval }

// TimeoutOr returns d when positive, the default timeout otherwise.
func (s *Session) TimeoutOr(d time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return s.cfg.DefaultTimeout
}

// Generation identifies the current DOM. Element handles from an older
// generation must be re-resolved before use.
func (s *Session) Generation() uint64 { return s.generation }

// Advance invalidates every element handle issued so far. Called after
// navigation, context switches and actions that re-render the page.
func (s *Session) Advance() {
	s.generation++
}

// Active returns the handle of the context commands currently target.
func (s *Session) Active() string { return s.active }

// Primary returns the context the session started in.
func (s *Session) Primary() string { return s.primary }

// Known returns the contexts the session is tracking, in insertion order.
func (s *Session) Known() []string { return slices.Clone(s.known) }

// ResolveURL resolves target against the base URL.
func (s *Session) ResolveURL(target string) (string, error) {
	base, err := url.Parse(s.cfg.BaseURL)
	if err != nil {
		return "", core.ErrInvalidConfig.WithMessagef("invalid base URL %q", s.cfg.BaseURL).WithCause(err)
	}
	if target == "" {
		return base.String(), nil
	}
	ref, err := url.Parse(target)
	if err != nil {
		return "", core.ErrInvalidConfig.WithMessagef("invalid URL %q", target).WithCause(err)
	}
	if ref.IsAbs() {
		return ref.String(), nil
	}
	// Relative paths resolve under the base path even without a trailing slash.
	if !strings.HasSuffix(base.Path, "/") {
		base.Path += "/"
	}
	return base.ResolveReference(ref).String(), nil
}

// Navigate loads target (absolute, or relative to the base URL) in the active
// context. The DOM generation advances even when the command fails, since
// the page state is then unknown.
func (s *Session) Navigate(target string) error {
	u, err := s.ResolveURL(target)
	if err != nil {
		return err
	}
	defer s.Advance()
	logger.Debug("navigate %s", u)
	return s.browser.Navigate(u)
}

// CurrentURL returns the active context's URL.
func (s *Session) CurrentURL() (string, error) {
	return s.browser.CurrentURL()
}
