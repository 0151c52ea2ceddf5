// Package cli provides the command-line interface for shopsmoke.
package cli

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

// Version is set at build time.
var Version = "dev"

// GlobalFlags are available to all commands.
var GlobalFlags = []cli.Flag{
	&cli.BoolFlag{
		Name:    "verbose",
		Usage:   "Enable verbose logging",
		EnvVars: []string{"SHOPSMOKE_VERBOSE"},
	},
	&cli.StringFlag{
		Name:  "log-file",
		Usage: "Log file path (default: ./shopsmoke.log)",
	},
	&cli.BoolFlag{
		Name:  "no-ansi",
		Usage: "Disable ANSI colors",
	},
}

// NewApp builds the command tree.
func NewApp() *cli.App {
	return &cli.App{
		Name:    "shopsmoke",
		Usage:   "Browser smoke tests for the storefront",
		Version: Version,
		Description: `shopsmoke drives a real browser through the storefront's critical
paths (login, rejected login, third-party login, add to cart) and exits
non-zero when any of them fails.

Examples:
  shopsmoke run
  shopsmoke run --scenario login --headless
  shopsmoke run scenarios/ -e GOOGLE_EMAIL=me@example.com
  shopsmoke list
  shopsmoke validate scenarios/`,
		Flags: GlobalFlags,
		Commands: []*cli.Command{
			runCommand,
			listCommand,
			validateCommand,
		},
	}
}

// Execute runs the CLI.
func Execute() {
	if err := NewApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
