// Package config handles configuration for shopsmoke.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/devicelab-dev/shopsmoke/pkg/session"
	"github.com/devicelab-dev/shopsmoke/pkg/storefront"
)

// Supported browser drivers.
const (
	DriverFirefox = "firefox"
	DriverChrome  = "chrome"
	DriverMock    = "mock"
)

// DefaultDriver is used when neither config nor flags choose one.
const DefaultDriver = DriverFirefox

// Config represents the workspace configuration (config.yaml).
type Config struct {
	// Scenario selection
	Scenarios   []string `yaml:"scenarios"`   // Scenario files, directories or globs
	IncludeTags []string `yaml:"includeTags"` // Tags to include
	ExcludeTags []string `yaml:"excludeTags"` // Tags to exclude

	// Execution settings
	Env          map[string]string `yaml:"env"`          // Variables for ${...} expansion
	Timeout      int               `yaml:"timeout"`      // Default wait bound in ms
	PollInterval int               `yaml:"pollInterval"` // Poll interval in ms
	LogFile      string            `yaml:"logFile"`

	// Browser settings
	BaseURL     string `yaml:"baseURL"`
	Driver      string `yaml:"driver"`     // firefox, chrome or mock
	DriverPath  string `yaml:"driverPath"` // geckodriver or chrome binary
	ServerURL   string `yaml:"serverURL"`  // Running WebDriver/DevTools endpoint
	Headless    *bool  `yaml:"headless"`
	Private     *bool  `yaml:"private"`
	AllowPopups *bool  `yaml:"allowPopups"`

	// Built-in scenario parameters
	Storefront StorefrontConfig `yaml:"storefront"`
}

// StorefrontConfig overrides the accounts and routes the built-in scenarios
// expect. Unset fields keep the storefront defaults.
type StorefrontConfig struct {
	Valid       storefront.Credentials `yaml:"valid"`
	Invalid     storefront.Credentials `yaml:"invalid"`
	SuccessPath string                 `yaml:"successPath"` // Route reached after login
	ErrorToken  string                 `yaml:"errorToken"`  // Text in the bad-credentials alert
	GoogleEmail string                 `yaml:"googleEmail"`
	MinProducts int                    `yaml:"minProducts"`
	StepTimeout int                    `yaml:"stepTimeout"` // ms, replaces built-in wait bounds
}

// Load loads configuration from a file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path) //#nosec G304 -- user-provided config file
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return &cfg, nil
}

// LoadFromDir looks for config.yaml or config.yml in the directory.
func LoadFromDir(dir string) (*Config, error) {
	// Try config.yaml first
	configPath := filepath.Join(dir, "config.yaml")
	if _, err := os.Stat(configPath); err == nil {
		return Load(configPath)
	}

	// Try config.yml
	configPath = filepath.Join(dir, "config.yml")
	if _, err := os.Stat(configPath); err == nil {
		return Load(configPath)
	}

	// No config file found, return empty config
	return &Config{}, nil
}

// Validate checks field values that YAML typing cannot.
func (c *Config) Validate() error {
	switch c.Driver {
	case "", DriverFirefox, DriverChrome, DriverMock:
	default:
		return fmt.Errorf("unknown driver %q (want %s, %s or %s)", c.Driver, DriverFirefox, DriverChrome, DriverMock)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative, got %d", c.Timeout)
	}
	if c.PollInterval < 0 {
		return fmt.Errorf("pollInterval must not be negative, got %d", c.PollInterval)
	}
	if p := c.Storefront.SuccessPath; p != "" && !strings.HasPrefix(p, "/") {
		return fmt.Errorf("storefront.successPath must start with /, got %q", p)
	}
	if c.Storefront.MinProducts < 0 {
		return fmt.Errorf("storefront.minProducts must not be negative, got %d", c.Storefront.MinProducts)
	}
	if c.Storefront.StepTimeout < 0 {
		return fmt.Errorf("storefront.stepTimeout must not be negative, got %d", c.Storefront.StepTimeout)
	}
	return nil
}

// DriverName returns the configured driver or DefaultDriver.
func (c *Config) DriverName() string {
	if c.Driver == "" {
		return DefaultDriver
	}
	return c.Driver
}

// Session returns the browser session configuration. Private browsing and
// popups default to on; everything else unset takes session defaults.
func (c *Config) Session() session.Config {
	cfg := session.Config{
		BaseURL:        c.BaseURL,
		DriverPath:     c.DriverPath,
		ServerURL:      c.ServerURL,
		Private:        boolOr(c.Private, true),
		AllowPopups:    boolOr(c.AllowPopups, true),
		Headless:       boolOr(c.Headless, false),
		DefaultTimeout: time.Duration(c.Timeout) * time.Millisecond,
		PollInterval:   time.Duration(c.PollInterval) * time.Millisecond,
	}
	return cfg.WithDefaults()
}

func boolOr(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}

// StorefrontOptions returns the built-in scenario parameters with config
// overrides applied.
func (c *Config) StorefrontOptions() storefront.Options {
	sf := c.Storefront
	return storefront.Options{
		Valid:       sf.Valid,
		Invalid:     sf.Invalid,
		SuccessPath: sf.SuccessPath,
		ErrorToken:  sf.ErrorToken,
		GoogleEmail: sf.GoogleEmail,
		MinProducts: sf.MinProducts,
		StepTimeout: time.Duration(sf.StepTimeout) * time.Millisecond,
	}.WithDefaults()
}
