// Package capnpc runs the Cap'n Proto schema compiler and turns its
// CodeGeneratorRequest output into a capnpcompat.Snapshot.
package capnpc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"

	"github.com/openbindings/capnpcompat"
)

// DefaultBinary is the compiler looked up on PATH when Options.Binary is empty.
const DefaultBinary = "capnp"

// Options mirror the compiler's import flags.
type Options struct {
	// Binary overrides the compiler executable.
	Binary string
	// NoStandardImport drops /usr/include and /usr/local/include from the import path.
	NoStandardImport bool
	ImportPaths      []string
	SrcPrefixes      []string
}

// Args returns the compiler arguments for path.
func (o Options) Args(path string) []string {
	args := []string{"compile", "-o-"}
	if o.NoStandardImport {
		args = append(args, "--no-standard-import")
	}
	for _, p := range o.ImportPaths {
		args = append(args, "--import-path="+p)
	}
	for _, p := range o.SrcPrefixes {
		args = append(args, "--src-prefix="+p)
	}
	return append(args, path)
}

func (o Options) binary() string {
	if o.Binary != "" {
		return o.Binary
	}
	return DefaultBinary
}

// Compiler turns a schema file into a Snapshot.
type Compiler interface {
	Compile(ctx context.Context, path string, opts Options) (*capnpcompat.Snapshot, error)
}

// Exec runs the schema compiler as a subprocess.
type Exec struct {
	// Stderr receives compiler diagnostics. Defaults to os.Stderr.
	Stderr io.Writer
	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

var _ Compiler = Exec{}

// CompileError reports a compiler run that failed before producing a request.
type CompileError struct {
	Path string
	Err  error
}

func (e *CompileError) Error() string {
	if e == nil {
		return "capnp compile failed"
	}
	return fmt.Sprintf("capnp compile %s: %v", e.Path, e.Err)
}

func (e *CompileError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Compile runs `capnp compile -o-` on path and decodes the request it writes to stdout.
// PWD is removed from the environment so the compiler resolves paths from the real working directory.
func (e Exec) Compile(ctx context.Context, path string, opts Options) (*capnpcompat.Snapshot, error) {
	logger := e.Logger
	if logger == nil {
		logger = slog.Default()
	}
	stderr := e.Stderr
	if stderr == nil {
		stderr = os.Stderr
	}

	args := opts.Args(path)
	cmd := exec.CommandContext(ctx, opts.binary(), args...)
	cmd.Env = withoutEnv(os.Environ(), "PWD")
	cmd.Stderr = stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, &CompileError{Path: path, Err: err}
	}

	logger.Debug("running schema compiler", "binary", opts.binary(), "args", args)
	if err := cmd.Start(); err != nil {
		return nil, &CompileError{Path: path, Err: err}
	}

	snap, readErr := ReadSnapshot(stdout)
	// Drain so the compiler never blocks on a full pipe after a decode error.
	_, _ = io.Copy(io.Discard, stdout)
	waitErr := cmd.Wait()

	if waitErr != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, &CompileError{Path: path, Err: ctxErr}
		}
		return nil, &CompileError{Path: path, Err: waitErr}
	}
	if readErr != nil {
		var se *capnpcompat.StructureError
		if errors.As(readErr, &se) {
			return nil, readErr
		}
		return nil, &CompileError{Path: path, Err: readErr}
	}
	return snap, nil
}

func withoutEnv(env []string, key string) []string {
	out := make([]string, 0, len(env))
	for _, kv := range env {
		if strings.HasPrefix(kv, key+"=") {
			continue
		}
		out = append(out, kv)
	}
	return out
}
