package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/panbanda/wpct/internal/output"
	"github.com/panbanda/wpct/pkg/config"
	"github.com/pelletier/go-toml"
	"github.com/urfave/cli/v2"
)

func configCmd() *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "Configuration management commands",
		Subcommands: []*cli.Command{
			{
				Name:      "validate",
				Usage:     "Validate a configuration file",
				ArgsUsage: "[file]",
				Description: `Validates a wpct configuration file for syntax errors and invalid values.

Examples:
  wpct config validate                  # Validates default config locations
  wpct config validate wpct.toml        # Validates specific file
  wpct -c .wpct/wpct.yaml config validate`,
				Action: runConfigValidate,
			},
			{
				Name:      "show",
				Usage:     "Show the effective configuration",
				ArgsUsage: "[file]",
				Description: `Shows the merged configuration from defaults and config file as TOML,
or as JSON, markdown or TOON with --format.

Examples:
  wpct config show              # Show effective config
  wpct config show wpct.toml    # Show config from specific file
  wpct -f json config show      # Show effective config as JSON`,
				Action: runConfigShow,
			},
		},
	}
}

// configLoadOptions prefers a positional path over --config.
func configLoadOptions(c *cli.Context) []config.LoadOption {
	if path := c.Args().First(); path != "" {
		return []config.LoadOption{config.WithPath(path)}
	}
	if path := c.String("config"); path != "" {
		return []config.LoadOption{config.WithPath(path)}
	}
	return nil
}

func runConfigValidate(c *cli.Context) error {
	result, err := config.LoadConfig(configLoadOptions(c)...)
	if err != nil {
		color.New(color.FgRed).Fprintln(c.App.Writer, "Configuration validation failed:")
		fmt.Fprintf(c.App.Writer, "  - %s\n", err)
		return err
	}

	if result.Source != "" {
		color.New(color.FgGreen).Fprintf(c.App.Writer, "Configuration valid: %s\n", result.Source)
	} else {
		color.New(color.FgYellow).Fprintln(c.App.Writer, "No config file found. Default configuration is valid.")
	}
	return nil
}

// runConfigShow prints the effective config as TOML, or through the
// formatter when --format asks for json, markdown or toon.
func runConfigShow(c *cli.Context) error {
	result, err := config.LoadConfig(configLoadOptions(c)...)
	if err != nil {
		return err
	}

	if format := output.ParseFormat(c.String("format")); format != output.FormatText {
		return output.NewFormatter(format, c.App.Writer, false).Output(result.Config)
	}

	if result.Source != "" {
		fmt.Fprintf(c.App.Writer, "# Configuration from: %s\n\n", result.Source)
	} else {
		fmt.Fprintln(c.App.Writer, "# Default configuration (no config file found)")
	}

	content, err := toml.Marshal(result.Config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	fmt.Fprint(c.App.Writer, string(content))
	return nil
}
