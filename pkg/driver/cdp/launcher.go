package cdp

import (
	"context"
	"os"

	"github.com/chromedp/chromedp"

	"github.com/devicelab-dev/shopsmoke/pkg/core"
	"github.com/devicelab-dev/shopsmoke/pkg/logger"
	"github.com/devicelab-dev/shopsmoke/pkg/session"
)

// ChromeFlags returns the command-line switches for a session, applied on
// top of chromedp's defaults.
func ChromeFlags(cfg session.Config) map[string]interface{} {
	flags := map[string]interface{}{
		"headless":                 cfg.Headless,
		"no-first-run":             true,
		"no-default-browser-check": true,
	}
	if cfg.Private {
		flags["incognito"] = true
	}
	if cfg.AllowPopups {
		flags["disable-popup-blocking"] = true
	}
	return flags
}

// Launcher starts Chrome, or attaches to the DevTools endpoint at
// session.Config.ServerURL when set. DriverPath, when set, is the Chrome
// binary.
type Launcher struct{}

// Launch implements session.Launcher.
func (Launcher) Launch(cfg session.Config) (core.Browser, error) {
	var (
		allocCtx    context.Context
		allocCancel context.CancelFunc
	)
	if cfg.ServerURL != "" {
		allocCtx, allocCancel = chromedp.NewRemoteAllocator(context.Background(), cfg.ServerURL)
	} else {
		opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
		for name, value := range ChromeFlags(cfg) {
			opts = append(opts, chromedp.Flag(name, value))
		}
		if cfg.DriverPath != "" {
			if _, err := os.Stat(cfg.DriverPath); err != nil {
				return nil, core.ErrSessionNotCreated.WithMessagef("chrome not found at %s", cfg.DriverPath).WithCause(err)
			}
			opts = append(opts, chromedp.ExecPath(cfg.DriverPath))
		}
		allocCtx, allocCancel = chromedp.NewExecAllocator(context.Background(), opts...)
	}

	ctx, cancel := chromedp.NewContext(allocCtx, chromedp.WithLogf(logger.Debug), chromedp.WithErrorf(logger.Warn))
	if err := chromedp.Run(ctx); err != nil {
		cancel()
		allocCancel()
		return nil, core.ErrSessionNotCreated.WithMessage("failed to start chrome").WithCause(err)
	}

	b := newBrowser(allocCancel, ctx, cancel)
	logger.Info("chrome session on target %s", b.rootID)
	return b, nil
}

var _ session.Launcher = Launcher{}
