package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/devicelab-dev/shopsmoke/pkg/config"
	"github.com/devicelab-dev/shopsmoke/pkg/core"
	"github.com/devicelab-dev/shopsmoke/pkg/driver/cdp"
	"github.com/devicelab-dev/shopsmoke/pkg/driver/mock"
	"github.com/devicelab-dev/shopsmoke/pkg/driver/webdriver"
	"github.com/devicelab-dev/shopsmoke/pkg/executor"
	"github.com/devicelab-dev/shopsmoke/pkg/logger"
	"github.com/devicelab-dev/shopsmoke/pkg/scenario"
	"github.com/devicelab-dev/shopsmoke/pkg/session"
	"github.com/devicelab-dev/shopsmoke/pkg/storefront"
	"github.com/devicelab-dev/shopsmoke/pkg/validator"
)

const defaultLogFile = "shopsmoke.log"

var runCommand = &cli.Command{
	Name:      "run",
	Usage:     "Run smoke scenarios against the storefront",
	ArgsUsage: "[scenario-file-or-folder]...",
	Description: `Run the built-in storefront scenarios, or scenario files.

The process exits with status 1 when any scenario fails or aborts.

Examples:
  # All built-in scenarios in Firefox (geckodriver on PATH or in <home>/drivers)
  shopsmoke run

  # Selected built-ins against a staging server
  shopsmoke run --scenario login --scenario add-to-cart --base-url https://staging.shop.dev/

  # Scenario files in headless Chrome
  shopsmoke run scenarios/ --driver chrome --headless -e GOOGLE_EMAIL=me@example.com

  # Re-run on every change, without a browser
  shopsmoke run scenarios/ --driver mock --watch`,
	Flags: []cli.Flag{
		// Configuration
		&cli.StringFlag{
			Name:  "config",
			Usage: "Path to workspace config.yaml (default: ./config.yaml if present)",
		},

		// Selection
		&cli.StringSliceFlag{
			Name:  "scenario",
			Usage: "Built-in scenario to run (login, invalid-login, google-login, add-to-cart)",
		},
		&cli.StringSliceFlag{
			Name:  "include-tags",
			Usage: "Only include scenarios with these tags",
		},
		&cli.StringSliceFlag{
			Name:  "exclude-tags",
			Usage: "Exclude scenarios with these tags",
		},

		// Environment variables
		&cli.StringSliceFlag{
			Name:    "env",
			Aliases: []string{"e"},
			Usage:   "Environment variables (KEY=VALUE)",
		},

		// Browser
		&cli.StringFlag{
			Name:    "base-url",
			Usage:   "Storefront base URL",
			EnvVars: []string{"SHOPSMOKE_BASE_URL"},
		},
		&cli.StringFlag{
			Name:    "driver",
			Aliases: []string{"d"},
			Usage:   "Browser driver (firefox, chrome, mock)",
			EnvVars: []string{"SHOPSMOKE_DRIVER"},
		},
		&cli.StringFlag{
			Name:  "driver-path",
			Usage: "geckodriver binary (firefox) or Chrome binary (chrome)",
		},
		&cli.StringFlag{
			Name:  "server-url",
			Usage: "Attach to a running WebDriver server or DevTools endpoint",
		},
		&cli.BoolFlag{
			Name:  "headless",
			Usage: "Run the browser without a window",
		},
		&cli.BoolFlag{
			Name:  "private",
			Usage: "Private/incognito browsing (default true)",
			Value: true,
		},
		&cli.StringFlag{
			Name:  "success-path",
			Usage: "Route a successful login lands on (default /myProfile)",
		},
		&cli.BoolFlag{
			Name:  "allow-popups",
			Usage: "Disable the popup blocker (default true)",
			Value: true,
		},

		// Timing
		&cli.IntFlag{
			Name:  "timeout",
			Usage: "Default wait bound in ms",
		},
		&cli.IntFlag{
			Name:  "poll-interval",
			Usage: "Condition poll interval in ms",
		},

		// Execution modes
		&cli.BoolFlag{
			Name:    "watch",
			Aliases: []string{"w"},
			Usage:   "Re-run scenario files when they change",
		},
	},
	Action: runScenarios,
}

// RunConfig is everything a run needs after merging flags and config.yaml.
type RunConfig struct {
	// Selection
	Paths       []string // Scenario files or folders; empty runs built-ins
	Builtins    []string // Built-in scenario names; empty selects all
	IncludeTags []string
	ExcludeTags []string

	// Environment
	Env map[string]string

	// Browser
	Driver  string
	Session session.Config

	// Built-in scenario parameters
	Storefront storefront.Options

	// Operator answers manual checkpoints. One operator serves every run of
	// the process so watch re-runs share its stdin reader.
	Operator executor.Operator

	// Output
	LogFile string
	Verbose bool
	Colors  bool
	Watch   bool
}

// buildRunConfig merges command-line flags over config.yaml over defaults.
func buildRunConfig(c *cli.Context) (*RunConfig, error) {
	var (
		cfg *config.Config
		err error
	)
	if path := c.String("config"); path != "" {
		cfg, err = config.Load(path)
	} else {
		cfg, err = config.LoadFromDir(".")
	}
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	// Flags override config.
	if c.IsSet("base-url") {
		cfg.BaseURL = c.String("base-url")
	}
	if c.IsSet("driver") {
		cfg.Driver = c.String("driver")
	}
	if c.IsSet("driver-path") {
		cfg.DriverPath = c.String("driver-path")
	}
	if c.IsSet("server-url") {
		cfg.ServerURL = c.String("server-url")
	}
	if c.IsSet("headless") {
		v := c.Bool("headless")
		cfg.Headless = &v
	}
	if c.IsSet("private") {
		v := c.Bool("private")
		cfg.Private = &v
	}
	if c.IsSet("allow-popups") {
		v := c.Bool("allow-popups")
		cfg.AllowPopups = &v
	}
	if c.IsSet("timeout") {
		cfg.Timeout = c.Int("timeout")
	}
	if c.IsSet("poll-interval") {
		cfg.PollInterval = c.Int("poll-interval")
	}
	if c.IsSet("include-tags") {
		cfg.IncludeTags = c.StringSlice("include-tags")
	}
	if c.IsSet("exclude-tags") {
		cfg.ExcludeTags = c.StringSlice("exclude-tags")
	}
	if c.IsSet("success-path") {
		cfg.Storefront.SuccessPath = c.String("success-path")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	env := make(map[string]string, len(cfg.Env))
	for k, v := range cfg.Env {
		env[k] = v
	}
	for k, v := range parseEnvVars(c.StringSlice("env")) {
		env[k] = v
	}

	paths := c.Args().Slice()
	if len(paths) == 0 {
		paths = cfg.Scenarios
	}

	logFile := c.String("log-file")
	if logFile == "" {
		logFile = cfg.LogFile
	}
	if logFile == "" {
		logFile = defaultLogFile
	}

	return &RunConfig{
		Paths:       paths,
		Builtins:    c.StringSlice("scenario"),
		IncludeTags: cfg.IncludeTags,
		ExcludeTags: cfg.ExcludeTags,
		Env:         env,
		Driver:      cfg.DriverName(),
		Session:     cfg.Session(),
		Storefront:  cfg.StorefrontOptions(),
		LogFile:     logFile,
		Verbose:     c.Bool("verbose"),
		Colors:      !c.Bool("no-ansi"),
		Watch:       c.Bool("watch"),
	}, nil
}

func runScenarios(c *cli.Context) error {
	cfg, err := buildRunConfig(c)
	if err != nil {
		return err
	}

	cfg.Operator = executor.NewConsoleOperator()

	if err := logger.Init(cfg.LogFile, cfg.Verbose); err != nil {
		fmt.Fprintf(os.Stderr, "warning: logging disabled: %v\n", err)
	}
	defer logger.Close()

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	out := c.App.Writer
	if cfg.Watch {
		return watch(ctx, cfg, out)
	}

	result, err := runOnce(ctx, cfg, out)
	if err != nil {
		return err
	}
	if !result.Success() {
		return cli.Exit("", 1)
	}
	return nil
}

// runOnce loads scenarios, runs them in one fresh session and prints the
// summary.
func runOnce(ctx context.Context, cfg *RunConfig, out io.Writer) (*core.RunResult, error) {
	scenarios, err := loadScenarios(cfg)
	if err != nil {
		return nil, err
	}
	if len(scenarios) == 0 {
		return nil, fmt.Errorf("no scenarios to run")
	}
	return execute(ctx, cfg, scenarios, out)
}

// loadScenarios returns the scenario files under cfg.Paths, or the selected
// built-ins when no paths are given. Files are validated up front and any
// error stops the run before a browser starts.
func loadScenarios(cfg *RunConfig) ([]*scenario.Scenario, error) {
	if len(cfg.Paths) == 0 {
		builtins, err := selectBuiltins(storefront.Builtins(cfg.Storefront), cfg.Builtins)
		if err != nil {
			return nil, err
		}
		var selected []*scenario.Scenario
		for _, sc := range builtins {
			if scenario.ShouldInclude(sc, cfg.IncludeTags, cfg.ExcludeTags) {
				selected = append(selected, sc)
			}
		}
		return selected, nil
	}
	if len(cfg.Builtins) > 0 {
		return nil, fmt.Errorf("--scenario selects built-in scenarios and cannot be combined with scenario files")
	}

	result := validator.New(cfg.IncludeTags, cfg.ExcludeTags).Validate(cfg.Paths...)
	if !result.IsValid() {
		msgs := make([]string, len(result.Errors))
		for i, err := range result.Errors {
			msgs[i] = "  " + err.Error()
		}
		return nil, fmt.Errorf("validation failed:\n%s", strings.Join(msgs, "\n"))
	}
	return result.Scenarios, nil
}

// selectBuiltins picks built-in scenarios by name, in the order given.
func selectBuiltins(all []*scenario.Scenario, names []string) ([]*scenario.Scenario, error) {
	if len(names) == 0 {
		return all, nil
	}
	byName := make(map[string]*scenario.Scenario, len(all))
	known := make([]string, len(all))
	for i, sc := range all {
		byName[sc.Name()] = sc
		known[i] = sc.Name()
	}
	var selected []*scenario.Scenario
	for _, name := range names {
		sc, ok := byName[name]
		if !ok {
			return nil, fmt.Errorf("unknown scenario %q (built-ins: %s)", name, strings.Join(known, ", "))
		}
		selected = append(selected, sc)
	}
	return selected, nil
}

// newLauncher returns the browser launcher for cfg.Driver.
func newLauncher(cfg *RunConfig) (session.Launcher, error) {
	switch cfg.Driver {
	case config.DriverFirefox:
		if cfg.Session.DriverPath == "" && cfg.Session.ServerURL == "" {
			cfg.Session.DriverPath = config.FindDriver(webdriver.DefaultDriverBinary)
			logger.Debug("driver lookup in %s (home from %s): %q", config.GetDriversDir(), config.GetHomeSource(), cfg.Session.DriverPath)
		}
		logPath := ""
		if cfg.LogFile != "" {
			logPath = filepath.Join(filepath.Dir(cfg.LogFile), "geckodriver.log")
		}
		return &webdriver.Launcher{LogPath: logPath}, nil
	case config.DriverChrome:
		return cdp.Launcher{}, nil
	case config.DriverMock:
		return storefront.DemoLauncher(cfg.Storefront, storefront.DefaultDemo(), mock.Config{}), nil
	}
	return nil, fmt.Errorf("unknown driver %q", cfg.Driver)
}

// execute opens a session, runs scenarios in it and always tears it down.
func execute(ctx context.Context, cfg *RunConfig, scenarios []*scenario.Scenario, out io.Writer) (*core.RunResult, error) {
	launcher, err := newLauncher(cfg)
	if err != nil {
		return nil, err
	}

	p := newPrinter(out, cfg.Colors)
	fmt.Fprintf(out, "shopsmoke %s: %d scenario(s) on %s (%s)\n", Version, len(scenarios), cfg.Session.BaseURL, cfg.Driver)

	var result *core.RunResult
	start := time.Now()
	err = session.Run(cfg.Session, launcher, func(s *session.Session) error {
		runner := executor.New(s, executor.RunnerConfig{
			Operator:        cfg.Operator,
			Env:             cfg.Env,
			OnScenarioStart: p.scenarioStart,
			OnStepComplete:  p.stepComplete,
			OnScenarioEnd:   p.scenarioEnd,
		})
		result = runner.Run(ctx, scenarios)
		return nil
	})
	if result == nil {
		return nil, fmt.Errorf("browser session: %w", err)
	}
	if err != nil {
		// Teardown failed after the run; results still stand.
		logger.Warn("session teardown: %v", err)
	}

	p.summary(result)
	logger.Info("run finished in %s", time.Since(start))
	return result, nil
}

func parseEnvVars(envs []string) map[string]string {
	result := make(map[string]string)
	for _, e := range envs {
		parts := strings.SplitN(e, "=", 2)
		if len(parts) == 2 {
			result[parts[0]] = parts[1]
		}
	}
	return result
}
