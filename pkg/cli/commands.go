package cli

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/devicelab-dev/shopsmoke/pkg/config"
	"github.com/devicelab-dev/shopsmoke/pkg/scenario"
	"github.com/devicelab-dev/shopsmoke/pkg/storefront"
	"github.com/devicelab-dev/shopsmoke/pkg/validator"
)

var listCommand = &cli.Command{
	Name:      "list",
	Usage:     "List built-in scenarios, or the scenarios in files, with their steps",
	ArgsUsage: "[scenario-file-or-folder]...",
	Action:    listScenarios,
}

var validateCommand = &cli.Command{
	Name:      "validate",
	Usage:     "Check scenario files without running them",
	ArgsUsage: "<scenario-file-or-folder>...",
	Flags: []cli.Flag{
		&cli.StringSliceFlag{
			Name:  "include-tags",
			Usage: "Only include scenarios with these tags",
		},
		&cli.StringSliceFlag{
			Name:  "exclude-tags",
			Usage: "Exclude scenarios with these tags",
		},
	},
	Action: validateScenarios,
}

func listScenarios(c *cli.Context) error {
	opts := storefront.DefaultOptions()
	if cfg, err := config.LoadFromDir("."); err == nil {
		opts = cfg.StorefrontOptions()
	}
	scenarios := storefront.Builtins(opts)
	if c.NArg() > 0 {
		result := validator.New(nil, nil).Validate(c.Args().Slice()...)
		for _, err := range result.Errors {
			fmt.Fprintf(c.App.ErrWriter, "  %v\n", err)
		}
		scenarios = result.Scenarios
	}

	out := c.App.Writer
	for _, sc := range scenarios {
		fmt.Fprintf(out, "%s", sc.Name())
		if len(sc.Config.Tags) > 0 {
			fmt.Fprintf(out, " %v", sc.Config.Tags)
		}
		fmt.Fprintln(out)
		if sc.Config.Description != "" {
			fmt.Fprintf(out, "  %s\n", sc.Config.Description)
		}
		for i, step := range sc.Steps {
			marker := " "
			if step.IsFatal() {
				marker = "*"
			}
			fmt.Fprintf(out, "  %s %2d. %s\n", marker, i+1, scenario.Title(step))
		}
		fmt.Fprintln(out)
	}
	fmt.Fprintln(out, "* fatal: a failure aborts the scenario")
	return nil
}

func validateScenarios(c *cli.Context) error {
	if c.NArg() < 1 {
		return fmt.Errorf("at least one scenario file or folder is required")
	}

	result := validator.New(c.StringSlice("include-tags"), c.StringSlice("exclude-tags")).Validate(c.Args().Slice()...)
	for _, file := range result.Files {
		fmt.Fprintf(c.App.Writer, "  ✓ %s\n", file)
	}
	if !result.IsValid() {
		for _, err := range result.Errors {
			fmt.Fprintf(c.App.Writer, "  ✗ %v\n", err)
		}
		return cli.Exit(fmt.Sprintf("%d problem(s) found", len(result.Errors)), 1)
	}
	fmt.Fprintf(c.App.Writer, "%d scenario(s) valid\n", len(result.Files))
	return nil
}
