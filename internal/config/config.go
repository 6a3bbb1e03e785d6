// Package config loads the capnp-compat configuration file.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"

	"github.com/openbindings/capnpcompat"
	"github.com/openbindings/capnpcompat/capnpc"
	"github.com/openbindings/capnpcompat/compat"
)

// DefaultPath is read when present and no --config flag is given.
const DefaultPath = ".capnp-compat.yaml"

// Input formats accepted for <base> and <changed>.
const (
	FormatCapnp   = "capnp"   // schema source, compiled with capnp
	FormatRequest = "request" // pre-compiled CodeGeneratorRequest
	FormatYAML    = "yaml"    // snapshot document
)

// Config holds the full capnp-compat configuration.
type Config struct {
	InputFormat string `yaml:"input_format"`
	LogLevel    string `yaml:"log_level"`
	JSON        bool   `yaml:"json"`

	Compiler CompilerConfig `yaml:"compiler"`
	Check    CheckConfig    `yaml:"check"`
	Git      GitConfig      `yaml:"git"`
	Cache    CacheConfig    `yaml:"cache"`
}

// CompilerConfig configures the capnp subprocess.
type CompilerConfig struct {
	Binary           string   `yaml:"binary"`
	NoStandardImport bool     `yaml:"no_standard_import"`
	ImportPaths      []string `yaml:"import_paths"`
	SrcPrefixes      []string `yaml:"src_prefixes"`
}

// CheckConfig configures the comparison.
type CheckConfig struct {
	Skip                   []string `yaml:"skip"`
	ZeroDefaultEquivalence bool     `yaml:"zero_default_equivalence"`
	MaxDepth               int      `yaml:"max_depth"`
	// Strict rejects inputs that fail the full snapshot validation.
	Strict bool `yaml:"strict"`
}

// GitConfig configures --against baselines.
type GitConfig struct {
	// Include selects the files copied out of the baseline revision.
	Include []string `yaml:"include"`
}

// CacheConfig configures the snapshot cache for --against baselines.
type CacheConfig struct {
	// Dir disables caching when empty.
	Dir string `yaml:"dir"`
}

// DefaultConfig returns sane defaults.
func DefaultConfig() *Config {
	return &Config{
		InputFormat: FormatCapnp,
		LogLevel:    "warn",
		Compiler:    CompilerConfig{Binary: capnpc.DefaultBinary},
		Check:       CheckConfig{MaxDepth: compat.DefaultMaxDepth},
		Git:         GitConfig{Include: []string{"**/*.capnp"}},
	}
}

// LoadConfig reads and parses a YAML config file. Returns DefaultConfig merged with the file.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// Validate checks that values are sane.
func (c *Config) Validate() error {
	switch c.InputFormat {
	case FormatCapnp, FormatRequest, FormatYAML:
	default:
		return fmt.Errorf("unsupported input_format %q (use capnp, request or yaml)", c.InputFormat)
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	if c.InputFormat == FormatCapnp && strings.TrimSpace(c.Compiler.Binary) == "" {
		return fmt.Errorf("compiler.binary is required")
	}
	if c.Check.MaxDepth <= 0 {
		return fmt.Errorf("check.max_depth must be > 0")
	}
	for i, p := range c.Check.Skip {
		if !doublestar.ValidatePattern(p) {
			return fmt.Errorf("check.skip[%d]: invalid pattern %q", i, p)
		}
	}
	if len(c.Git.Include) == 0 {
		return fmt.Errorf("git.include needs at least one pattern")
	}
	for i, p := range c.Git.Include {
		if !doublestar.ValidatePattern(p) {
			return fmt.Errorf("git.include[%d]: invalid pattern %q", i, p)
		}
	}
	return nil
}

// Level parses LogLevel.
func (c *Config) Level() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("log_level: %w", err)
	}
	return l, nil
}

// CompileOptions returns the compiler flags.
func (c *Config) CompileOptions() capnpc.Options {
	return capnpc.Options{
		Binary:           c.Compiler.Binary,
		NoStandardImport: c.Compiler.NoStandardImport,
		ImportPaths:      c.Compiler.ImportPaths,
		SrcPrefixes:      c.Compiler.SrcPrefixes,
	}
}

// CheckOptions returns the comparison options, logging through logger.
func (c *Config) CheckOptions(logger *slog.Logger) []compat.Option {
	opts := []compat.Option{
		compat.WithLogger(logger),
		compat.WithMaxDepth(c.Check.MaxDepth),
		compat.WithSkip(c.Check.Skip...),
	}
	if c.Check.ZeroDefaultEquivalence {
		opts = append(opts, compat.WithZeroDefaultEquivalence())
	}
	return opts
}

// ValidateOptions returns the snapshot validation applied to every input.
// Without check.strict only the structural checks run.
func (c *Config) ValidateOptions() []capnpcompat.ValidateOption {
	if !c.Check.Strict {
		return nil
	}
	return []capnpcompat.ValidateOption{
		capnpcompat.WithRequireDenseCodeOrder(),
		capnpcompat.WithRequireRequestedFiles(),
		capnpcompat.WithRequireResolvableTypes(),
	}
}
