package main

import (
	"fmt"
	"strconv"

	"github.com/panbanda/wpct/internal/output"
	"github.com/panbanda/wpct/pkg/config"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"
)

// getPaths returns sample files from positional args, defaulting to stdin.
func getPaths(c *cli.Context) []string {
	if c.Args().Len() > 0 {
		return c.Args().Slice()
	}
	return []string{"-"}
}

// loadConfig loads the config named by --config (or the default search
// path) and applies the global output flags on top. The result is not
// validated; callers validate after their own flag overrides.
func loadConfig(c *cli.Context) (*config.Config, error) {
	opts := []config.LoadOption{config.SkipValidation()}
	if path := c.String("config"); path != "" {
		opts = append(opts, config.WithPath(path))
	}

	result, err := config.LoadConfig(opts...)
	if err != nil {
		return nil, err
	}
	cfg := result.Config

	if c.IsSet("format") {
		cfg.Output.Format = c.String("format")
	}
	if c.Bool("no-color") {
		cfg.Output.Color = false
	}
	if c.Bool("verbose") {
		cfg.Output.Verbose = true
	}
	return cfg, nil
}

// newFormatter writes to --output when set, else to the app's writer.
func newFormatter(c *cli.Context, cfg *config.Config) (*output.Formatter, error) {
	format := output.ParseFormat(cfg.Output.Format)
	if path := c.String("output"); path != "" {
		return output.NewFileFormatter(format, path)
	}
	return output.NewFormatter(format, c.App.Writer, cfg.Output.Color), nil
}

// newLogger writes human-readable logs to the app's error writer. Verbose
// mode logs every dataset; otherwise only warnings get through.
func newLogger(c *cli.Context, cfg *config.Config) zerolog.Logger {
	level := zerolog.WarnLevel
	if cfg.Output.Verbose {
		level = zerolog.DebugLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{
		Out:        c.App.ErrWriter,
		NoColor:    !cfg.Output.Color,
		TimeFormat: "15:04:05",
	}).Level(level).With().Timestamp().Logger()
}

// rankLabel names a rank column, e.g. p50 or p99.9.
func rankLabel(q float64) string {
	return "p" + strconv.FormatFloat(q, 'f', -1, 64)
}

// formatValue prints v with a fixed number of decimals.
func formatValue(v float64, precision int) string {
	return strconv.FormatFloat(v, 'f', precision, 64)
}

// parseSamples parses positional sample values.
func parseSamples(args []string) ([]float64, error) {
	samples := make([]float64, len(args))
	for i, arg := range args {
		v, err := strconv.ParseFloat(arg, 64)
		if err != nil {
			return nil, fmt.Errorf("sample %d: %q is not a number", i+1, arg)
		}
		samples[i] = v
	}
	return samples, nil
}
