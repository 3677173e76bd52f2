package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// ErrInvalidConfig is wrapped by every error returned from Validate.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds all configuration options for wpct.
type Config struct {
	// Percentile computation settings
	Percentile PercentileConfig `koanf:"percentile" toml:"percentile" json:"percentile" toon:"percentile"`

	// How sample files are read
	Input InputConfig `koanf:"input" toml:"input" json:"input" toon:"input"`

	// Parallel evaluation of datasets
	Concurrency ConcurrencyConfig `koanf:"concurrency" toml:"concurrency" json:"concurrency" toon:"concurrency"`

	// Watch mode
	Watch WatchConfig `koanf:"watch" toml:"watch" json:"watch" toon:"watch"`

	// Output settings
	Output OutputConfig `koanf:"output" toml:"output" json:"output" toon:"output"`
}

// PercentileConfig controls which ranks are computed and how they print.
type PercentileConfig struct {
	Ranks     []float64 `koanf:"ranks" toml:"ranks" json:"ranks" toon:"ranks"`
	Precision int       `koanf:"precision" toml:"precision" json:"precision" toon:"precision"` // digits after the decimal point
	Summary   bool      `koanf:"summary" toml:"summary" json:"summary" toon:"summary"`
}

// InputConfig describes sample files.
type InputConfig struct {
	Format       string `koanf:"format" toml:"format" json:"format" toon:"format"` // auto, csv, json, yaml, text
	ValueColumn  string `koanf:"value_column" toml:"value_column" json:"value_column" toon:"value_column"`
	WeightColumn string `koanf:"weight_column" toml:"weight_column" json:"weight_column" toon:"weight_column"`
	Delimiter    string `koanf:"delimiter" toml:"delimiter" json:"delimiter" toon:"delimiter"`
	Header       bool   `koanf:"header" toml:"header" json:"header" toon:"header"`

	// Directory arguments: gitignore-style patterns to skip, and whether
	// .gitignore files in the enclosing repository apply too.
	Exclude   []string `koanf:"exclude" toml:"exclude" json:"exclude" toon:"exclude"`
	Gitignore bool     `koanf:"gitignore" toml:"gitignore" json:"gitignore" toon:"gitignore"`
}

// ConcurrencyConfig bounds the worker pool. Zero means 2x NumCPU.
type ConcurrencyConfig struct {
	Workers int `koanf:"workers" toml:"workers" json:"workers" toon:"workers"`
}

// WatchConfig controls how file changes are batched in watch mode.
type WatchConfig struct {
	DebounceMS int `koanf:"debounce_ms" toml:"debounce_ms" json:"debounce_ms" toon:"debounce_ms"`
}

// OutputConfig controls output formatting.
type OutputConfig struct {
	Format  string `koanf:"format" toml:"format" json:"format" toon:"format"` // text, json, markdown, toon
	Color   bool   `koanf:"color" toml:"color" json:"color" toon:"color"`
	Verbose bool   `koanf:"verbose" toml:"verbose" json:"verbose" toon:"verbose"`
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Percentile: PercentileConfig{
			Ranks:     []float64{50, 90, 95, 99},
			Precision: 4,
		},
		Input: InputConfig{
			Format:       "auto",
			ValueColumn:  "value",
			WeightColumn: "weight",
			Delimiter:    ",",
			Header:       true,
			Gitignore:    true,
		},
		Watch: WatchConfig{
			DebounceMS: 500,
		},
		Output: OutputConfig{
			Format: "text",
			Color:  true,
		},
	}
}

// Load loads configuration from a file on top of the defaults.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	cfg := DefaultConfig()

	var parser koanf.Parser
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		parser = toml.Parser()
	}

	if err := k.Load(file.Provider(path), parser); err != nil {
		return nil, err
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, err
	}

	// Unmarshal writes lists element-wise over the defaults; a configured
	// list must replace them instead.
	if k.Exists("percentile.ranks") {
		cfg.Percentile.Ranks = k.Float64s("percentile.ranks")
	}

	return cfg, nil
}

// searchPaths lists the standard config locations in lookup order.
func searchPaths() []string {
	configNames := []string{
		"wpct.toml",
		"wpct.yaml",
		"wpct.yml",
		"wpct.json",
		".wpct.toml",
		".wpct.yaml",
		".wpct.yml",
		".wpct.json",
	}
	searchDirs := []string{".", ".wpct"}

	var paths []string
	for _, dir := range searchDirs {
		for _, name := range configNames {
			paths = append(paths, filepath.Join(dir, name))
		}
	}
	return paths
}

// LoadOrDefault tries to load config from standard locations or returns defaults.
func LoadOrDefault() *Config {
	for _, path := range searchPaths() {
		if _, err := os.Stat(path); err == nil {
			cfg, err := Load(path)
			if err == nil {
				return cfg
			}
		}
	}

	return DefaultConfig()
}

// LoadResult is a loaded, validated config and the file it came from.
// Source is empty when no file was found and defaults are in use.
type LoadResult struct {
	Config *Config
	Source string
}

type loadOptions struct {
	path           string
	skipValidation bool
}

// LoadOption configures LoadConfig.
type LoadOption func(*loadOptions)

// WithPath loads the given file instead of searching the standard locations.
func WithPath(path string) LoadOption {
	return func(o *loadOptions) {
		o.path = path
	}
}

// SkipValidation leaves validation to the caller, for callers that override
// loaded values (command-line flags) before validating.
func SkipValidation() LoadOption {
	return func(o *loadOptions) {
		o.skipValidation = true
	}
}

// LoadConfig loads and validates configuration. Unlike LoadOrDefault it
// reports parse and validation errors instead of falling back to defaults.
func LoadConfig(opts ...LoadOption) (*LoadResult, error) {
	var o loadOptions
	for _, opt := range opts {
		opt(&o)
	}

	source := o.path
	if source == "" {
		for _, path := range searchPaths() {
			if _, err := os.Stat(path); err == nil {
				source = path
				break
			}
		}
	}

	cfg := DefaultConfig()
	if source != "" {
		loaded, err := Load(source)
		if err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", source, err)
		}
		cfg = loaded
	}

	if !o.skipValidation {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return &LoadResult{Config: cfg, Source: source}, nil
}

// Validate checks the config for values the rest of wpct cannot use.
func (c *Config) Validate() error {
	if len(c.Percentile.Ranks) == 0 {
		return fmt.Errorf("%w: percentile.ranks must not be empty", ErrInvalidConfig)
	}
	for i, q := range c.Percentile.Ranks {
		if math.IsNaN(q) || q < 0 || q > 100 {
			return fmt.Errorf("%w: percentile.ranks[%d] = %v is outside [0, 100]", ErrInvalidConfig, i, q)
		}
	}
	if c.Percentile.Precision < 0 || c.Percentile.Precision > 17 {
		return fmt.Errorf("%w: percentile.precision = %d is outside [0, 17]", ErrInvalidConfig, c.Percentile.Precision)
	}

	switch strings.ToLower(c.Input.Format) {
	case "", "auto", "csv", "json", "yaml", "yml", "text", "txt":
	default:
		return fmt.Errorf("%w: unknown input.format %q", ErrInvalidConfig, c.Input.Format)
	}
	if len([]rune(c.Input.Delimiter)) != 1 {
		return fmt.Errorf("%w: input.delimiter must be a single character, got %q", ErrInvalidConfig, c.Input.Delimiter)
	}
	if c.Input.ValueColumn == "" {
		return fmt.Errorf("%w: input.value_column must not be empty", ErrInvalidConfig)
	}

	if c.Concurrency.Workers < 0 {
		return fmt.Errorf("%w: concurrency.workers = %d must not be negative", ErrInvalidConfig, c.Concurrency.Workers)
	}

	if c.Watch.DebounceMS <= 0 {
		return fmt.Errorf("%w: watch.debounce_ms = %d must be positive", ErrInvalidConfig, c.Watch.DebounceMS)
	}

	switch strings.ToLower(c.Output.Format) {
	case "", "text", "json", "markdown", "md", "toon":
	default:
		return fmt.Errorf("%w: unknown output.format %q", ErrInvalidConfig, c.Output.Format)
	}

	return nil
}
