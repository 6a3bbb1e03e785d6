// Command capnp-compat reports whether a changed Cap'n Proto schema breaks
// wire compatibility with a base schema.
//
// Exit status is 0 when compatible, 1 when broken, and 2 when no verdict
// could be reached.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/openbindings/capnpcompat"
	"github.com/openbindings/capnpcompat/capnpc"
	"github.com/openbindings/capnpcompat/compat"
	"github.com/openbindings/capnpcompat/internal/config"
	"github.com/openbindings/capnpcompat/internal/gitsource"
	"github.com/openbindings/capnpcompat/internal/snapcache"
)

// Version is the current capnp-compat version.
var Version = "0.2.0"

const (
	exitCompatible = 0
	exitBroken     = 1
	exitFailure    = 2
)

// errBroken ends a run whose verdict is "broken". It is not printed.
var errBroken = errors.New("breaking changes found")

type options struct {
	configPath  string
	inputFormat string
	binary      string
	noStdImport bool
	importPaths []string
	srcPrefixes []string
	logLevel    string
	output      string
	strict      bool

	against      string
	cacheDir     string
	skip         []string
	zeroDefaults bool
	maxDepth     int
	json         bool
}

func main() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	err := cmd.ExecuteContext(ctx)
	switch {
	case err == nil:
		return exitCompatible
	case errors.Is(err, errBroken):
		return exitBroken
	default:
		fmt.Fprintln(stderr, "capnp-compat:", err)
		return exitFailure
	}
}

func newRootCmd() *cobra.Command {
	o := &options{}
	root := &cobra.Command{
		Use:   "capnp-compat <base> <changed>",
		Short: "Check a Cap'n Proto schema change for wire-breaking changes",
		Long: `Compares two Cap'n Proto schemas and reports every declaration whose
wire encoding changed incompatibly: removed declarations, reordered or
renamed fields, changed types and changed defaults.

Examples:
  capnp-compat old/point.capnp point.capnp
  capnp-compat --against main schemas/point.capnp schemas/point.capnp
  capnp-compat --input-format yaml base.yaml changed.yaml --json`,
		Version:       Version,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(cmd, o, args[0], args[1])
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&o.configPath, "config", config.DefaultPath, "Configuration file (ignored when the default is absent)")
	pf.StringVar(&o.inputFormat, "input-format", config.FormatCapnp, "Input format: capnp, request or yaml")
	pf.StringVar(&o.binary, "capnp", capnpc.DefaultBinary, "Schema compiler executable")
	pf.BoolVarP(&o.noStdImport, "no-standard-import", "n", false, "Do not add /usr/include and /usr/local/include to the import path")
	pf.StringArrayVarP(&o.importPaths, "import-path", "i", nil, "Additional import path (repeatable)")
	pf.StringArrayVarP(&o.srcPrefixes, "src-prefix", "s", nil, "Source prefix to strip (repeatable)")
	pf.StringVar(&o.logLevel, "log-level", "warn", "Log level: debug, info, warn or error")
	pf.StringVarP(&o.output, "output", "o", "", "Also write the result to this file")
	pf.BoolVar(&o.strict, "strict", false, "Reject inputs with sparse code orders, non-file requested nodes or unresolved type references")

	f := root.Flags()
	f.StringVar(&o.against, "against", "", "Take <base> from this git revision of the repository containing it")
	f.StringVar(&o.cacheDir, "cache-dir", "", "Cache --against baselines in this directory")
	f.StringArrayVar(&o.skip, "skip", nil, "Skip declarations whose display name matches this glob (repeatable)")
	f.BoolVar(&o.zeroDefaults, "zero-default-equivalence", false, "Treat an explicit zero default like no default")
	f.IntVar(&o.maxDepth, "max-depth", compat.DefaultMaxDepth, "Maximum declaration nesting depth")
	f.BoolVar(&o.json, "json", false, "Output the report as JSON")

	root.AddCommand(newDumpCmd(o))
	return root
}

func newDumpCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "dump <schema>",
		Short: "Write a schema's snapshot document as YAML",
		Long: `Compiles or decodes a schema and writes its snapshot document.
Documents can be committed and later compared with --input-format yaml.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup(cmd, o)
			if err != nil {
				return err
			}
			s, err := loadSnapshot(cmd.Context(), cfg, args[0], cfg.CompileOptions(), logger)
			if err != nil {
				return err
			}
			if err := s.Validate(cfg.ValidateOptions()...); err != nil {
				if cfg.Check.Strict {
					return err
				}
				logger.Warn("snapshot failed validation", "path", args[0], "error", err)
			}
			if o.output != "" {
				out, err := os.Create(o.output)
				if err != nil {
					return err
				}
				if err := capnpcompat.EncodeDocument(out, s); err != nil {
					out.Close()
					return err
				}
				return out.Close()
			}
			return capnpcompat.EncodeDocument(cmd.OutOrStdout(), s)
		},
	}
}

// setup loads the configuration, applies explicitly set flags on top of it and builds the logger.
func setup(cmd *cobra.Command, o *options) (*config.Config, *slog.Logger, error) {
	cfg := config.DefaultConfig()
	path := o.configPath
	if _, err := os.Stat(path); err == nil || cmd.Flags().Changed("config") {
		loaded, err := config.LoadConfig(path)
		if err != nil {
			return nil, nil, err
		}
		cfg = loaded
	}

	flags := cmd.Flags()
	if flags.Changed("input-format") {
		cfg.InputFormat = o.inputFormat
	}
	if flags.Changed("capnp") {
		cfg.Compiler.Binary = o.binary
	}
	if flags.Changed("no-standard-import") {
		cfg.Compiler.NoStandardImport = o.noStdImport
	}
	cfg.Compiler.ImportPaths = append(cfg.Compiler.ImportPaths, o.importPaths...)
	cfg.Compiler.SrcPrefixes = append(cfg.Compiler.SrcPrefixes, o.srcPrefixes...)
	if flags.Changed("log-level") {
		cfg.LogLevel = o.logLevel
	}
	cfg.Check.Skip = append(cfg.Check.Skip, o.skip...)
	if flags.Changed("zero-default-equivalence") {
		cfg.Check.ZeroDefaultEquivalence = o.zeroDefaults
	}
	if flags.Changed("max-depth") {
		cfg.Check.MaxDepth = o.maxDepth
	}
	if flags.Changed("cache-dir") {
		cfg.Cache.Dir = o.cacheDir
	}
	if flags.Changed("strict") {
		cfg.Check.Strict = o.strict
	}
	if flags.Changed("json") {
		cfg.JSON = o.json
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	level, _ := cfg.Level()
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
	return cfg, logger, nil
}

func runCheck(cmd *cobra.Command, o *options, basePath, changedPath string) error {
	cfg, logger, err := setup(cmd, o)
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	var base *capnpcompat.Snapshot
	if o.against != "" {
		base, err = loadBaseline(ctx, cfg, basePath, o.against, logger)
	} else {
		base, err = loadSnapshot(ctx, cfg, basePath, cfg.CompileOptions(), logger)
	}
	if err != nil {
		return fmt.Errorf("base: %w", err)
	}
	changed, err := loadSnapshot(ctx, cfg, changedPath, cfg.CompileOptions(), logger)
	if err != nil {
		return fmt.Errorf("changed: %w", err)
	}
	if cfg.Check.Strict {
		if err := base.Validate(cfg.ValidateOptions()...); err != nil {
			return fmt.Errorf("base: %w", err)
		}
		if err := changed.Validate(cfg.ValidateOptions()...); err != nil {
			return fmt.Errorf("changed: %w", err)
		}
	}

	rep, err := compat.New(base, changed, cfg.CheckOptions(logger)...).Check()
	if err != nil {
		return err
	}
	if err := writeReport(cmd.OutOrStdout(), o.output, rep, cfg.JSON); err != nil {
		return err
	}
	if rep.Broken {
		return errBroken
	}
	return nil
}

// loadBaseline loads path as it was at rev. Snapshots are cached by commit,
// path and compiler arguments when a cache directory is configured; files are
// only copied out of the revision on a cache miss.
func loadBaseline(ctx context.Context, cfg *config.Config, path, rev string, logger *slog.Logger) (*capnpcompat.Snapshot, error) {
	repo, err := gitsource.Open(path)
	if err != nil {
		return nil, err
	}
	commit, err := repo.Resolve(rev)
	if err != nil {
		return nil, err
	}
	hash := commit.Hash.String()
	logger.Info("comparing against revision", "rev", rev, "commit", hash)

	cache := &snapcache.Cache{Dir: cfg.Cache.Dir}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	opts := cfg.CompileOptions()
	key := snapcache.Key(hash, abs, cfg.InputFormat, strings.Join(opts.Args(abs), "\x00"))
	if s, ok, err := cache.Get(key); err != nil {
		logger.Warn("ignoring unreadable cache entry", "key", key, "error", err)
	} else if ok {
		logger.Debug("baseline cache hit", "key", key)
		return s, nil
	}

	baseline, err := repo.Checkout(commit, cfg.Git.Include, logger)
	if err != nil {
		return nil, err
	}
	defer baseline.Close()

	opts.ImportPaths = rebaseAll(baseline, opts.ImportPaths)
	opts.SrcPrefixes = rebaseAll(baseline, opts.SrcPrefixes)
	s, err := loadSnapshot(ctx, cfg, baseline.Rebase(path), opts, logger)
	if err != nil {
		return nil, err
	}
	if err := cache.Put(key, s); err != nil {
		logger.Warn("could not cache baseline", "key", key, "error", err)
	}
	return s, nil
}

func rebaseAll(b *gitsource.Baseline, paths []string) []string {
	out := make([]string, len(paths))
	for i, p := range paths {
		out[i] = b.Rebase(p)
	}
	return out
}

func loadSnapshot(ctx context.Context, cfg *config.Config, path string, opts capnpc.Options, logger *slog.Logger) (*capnpcompat.Snapshot, error) {
	switch cfg.InputFormat {
	case config.FormatYAML:
		return capnpcompat.LoadDocument(path)
	case config.FormatRequest:
		return capnpc.LoadRequestFile(path)
	default:
		var c capnpc.Compiler = capnpc.Exec{Logger: logger}
		return c.Compile(ctx, path, opts)
	}
}

func writeReport(stdout io.Writer, path string, rep *compat.Report, asJSON bool) error {
	var data []byte
	if asJSON {
		b, err := json.MarshalIndent(rep, "", "  ")
		if err != nil {
			return err
		}
		data = append(b, '\n')
	} else {
		data = []byte(rep.String() + "\n")
	}
	if _, err := stdout.Write(data); err != nil {
		return err
	}
	if path != "" {
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return fmt.Errorf("writing report: %w", err)
		}
	}
	return nil
}
