package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/openbindings/capnpcompat"
	"github.com/openbindings/capnpcompat/compat"
)

const (
	baseDoc     = "../../testdata/point_base.yaml"
	swappedDoc  = "../../testdata/point_swapped.yaml"
	extendedDoc = "../../testdata/point_extended.yaml"
)

func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestRootCommand(t *testing.T) {
	cmd := newRootCmd()
	if cmd.Use != "capnp-compat <base> <changed>" {
		t.Errorf("unexpected Use %q", cmd.Use)
	}
	if cmd.Short == "" {
		t.Error("Short description should not be empty")
	}
	for _, name := range []string{"input-format", "against", "output", "no-standard-import", "import-path", "src-prefix", "skip", "json", "config"} {
		if cmd.Flag(name) == nil {
			t.Errorf("missing flag --%s", name)
		}
	}
}

func TestRun_Compatible(t *testing.T) {
	code, stdout, stderr := runCLI(t, "--input-format", "yaml", baseDoc, extendedDoc)
	if code != exitCompatible {
		t.Fatalf("exit %d, stderr %q", code, stderr)
	}
	if !strings.Contains(stdout, "compatible (1 declarations checked)") {
		t.Fatalf("unexpected output %q", stdout)
	}
}

func TestRun_Broken(t *testing.T) {
	code, stdout, _ := runCLI(t, "--input-format", "yaml", baseDoc, swappedDoc)
	if code != exitBroken {
		t.Fatalf("exit %d, want %d", code, exitBroken)
	}
	if !strings.Contains(stdout, "point.capnp:Point.x is broken") {
		t.Fatalf("unexpected output %q", stdout)
	}
}

func TestRun_JSONAndOutputFile(t *testing.T) {
	out := filepath.Join(t.TempDir(), "report.json")
	code, stdout, _ := runCLI(t, "--input-format", "yaml", "--json", "-o", out, baseDoc, swappedDoc)
	if code != exitBroken {
		t.Fatalf("exit %d", code)
	}
	var rep compat.Report
	if err := json.Unmarshal([]byte(stdout), &rep); err != nil {
		t.Fatalf("stdout is not a JSON report: %v", err)
	}
	if !rep.Broken || len(rep.Findings) != 2 || rep.Findings[0].Field != "x" {
		t.Fatalf("unexpected report %+v", rep)
	}
	written, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if string(written) != stdout {
		t.Fatal("output file differs from stdout")
	}
}

func TestRun_Skip(t *testing.T) {
	code, _, _ := runCLI(t, "--input-format", "yaml", "--skip", "point.capnp:Point", baseDoc, swappedDoc)
	if code != exitCompatible {
		t.Fatalf("exit %d", code)
	}
}

func TestRun_Failures(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"missing argument", []string{"--input-format", "yaml", baseDoc}, "accepts 2 arg(s)"},
		{"missing file", []string{"--input-format", "yaml", baseDoc, "nope.yaml"}, "changed:"},
		{"bad format", []string{"--input-format", "xml", baseDoc, baseDoc}, "input_format"},
		{"bad skip", []string{"--input-format", "yaml", "--skip", "[", baseDoc, baseDoc}, "check.skip[0]"},
		{"missing config", []string{"--config", "nope.yaml", baseDoc, baseDoc}, "read config"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, _, stderr := runCLI(t, tt.args...)
			if code != exitFailure {
				t.Fatalf("exit %d, want %d", code, exitFailure)
			}
			if !strings.Contains(stderr, tt.want) {
				t.Fatalf("stderr %q does not mention %q", stderr, tt.want)
			}
		})
	}
}

func TestRun_ConfigFile(t *testing.T) {
	cfg := filepath.Join(t.TempDir(), "compat.yaml")
	content := "input_format: yaml\ncheck:\n  skip: ['**:Point']\n"
	if err := os.WriteFile(cfg, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	code, _, stderr := runCLI(t, "--config", cfg, baseDoc, swappedDoc)
	if code != exitCompatible {
		t.Fatalf("exit %d, stderr %q", code, stderr)
	}
}

func TestDump(t *testing.T) {
	code, stdout, stderr := runCLI(t, "dump", "--input-format", "yaml", baseDoc)
	if code != exitCompatible {
		t.Fatalf("exit %d, stderr %q", code, stderr)
	}
	s, err := capnpcompat.DecodeDocument(strings.NewReader(stdout))
	if err != nil {
		t.Fatalf("dump output does not decode: %v", err)
	}
	if s.Len() != 5 {
		t.Fatalf("expected 5 nodes, got %d", s.Len())
	}
}

func TestRun_Against(t *testing.T) {
	dir := t.TempDir()
	repo, err := git.PlainInit(dir, false)
	if err != nil {
		t.Fatal(err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		t.Fatal(err)
	}
	schema := filepath.Join(dir, "schema.yaml")
	commit := func(src string) {
		b, err := os.ReadFile(src)
		if err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(schema, b, 0o644); err != nil {
			t.Fatal(err)
		}
		if _, err := wt.Add("schema.yaml"); err != nil {
			t.Fatal(err)
		}
		if _, err := wt.Commit("update", &git.CommitOptions{
			Author: &object.Signature{Name: "test", Email: "test@example.com", When: time.Unix(1700000000, 0)},
		}); err != nil {
			t.Fatal(err)
		}
	}
	commit(baseDoc)
	commit(swappedDoc)

	cfg := filepath.Join(t.TempDir(), "compat.yaml")
	if err := os.WriteFile(cfg, []byte("input_format: yaml\ngit:\n  include: ['*.yaml']\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	code, stdout, stderr := runCLI(t, "--config", cfg, "--against", "HEAD~1", schema, schema)
	if code != exitBroken {
		t.Fatalf("exit %d, stdout %q, stderr %q", code, stdout, stderr)
	}
	code, _, stderr = runCLI(t, "--config", cfg, "--against", "HEAD", schema, schema)
	if code != exitCompatible {
		t.Fatalf("exit %d, stderr %q", code, stderr)
	}

	cache := filepath.Join(t.TempDir(), "cache")
	for i := 0; i < 2; i++ {
		code, _, stderr = runCLI(t, "--config", cfg, "--log-level", "debug", "--cache-dir", cache, "--against", "HEAD~1", schema, schema)
		if code != exitBroken {
			t.Fatalf("run %d: exit %d, stderr %q", i, code, stderr)
		}
		materialized := strings.Contains(stderr, "materialized baseline")
		hit := strings.Contains(stderr, "baseline cache hit")
		if i == 0 && (!materialized || hit) {
			t.Fatalf("first run should miss the cache, stderr %q", stderr)
		}
		if i == 1 && (materialized || !hit) {
			t.Fatalf("cached run should not copy the revision out, stderr %q", stderr)
		}
	}
	entries, err := filepath.Glob(filepath.Join(cache, "*.yaml.zst"))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected one cache entry, got %v", entries)
	}
}

// sparseDoc has a gap in Point's code orders, which only strict validation rejects.
const sparseDoc = `
format: 0.2.0
requested: ['@0xd5a1a1a1a1a1a1a1']
nodes:
  - id: '@0xd5a1a1a1a1a1a1a1'
    name: point.capnp
    kind: file
    nested:
      - {name: Point, id: '@0xe0b0c0d0e0f00001'}
  - id: '@0xe0b0c0d0e0f00001'
    name: point.capnp:Point
    kind: struct
    fields:
      - {name: x, codeOrder: 0, type: Int32}
      - {name: y, codeOrder: 2, type: Int32}
`

func TestRun_Strict(t *testing.T) {
	sparse := filepath.Join(t.TempDir(), "sparse.yaml")
	if err := os.WriteFile(sparse, []byte(sparseDoc), 0o644); err != nil {
		t.Fatal(err)
	}

	code, _, stderr := runCLI(t, "--input-format", "yaml", "--strict", baseDoc, extendedDoc)
	if code != exitCompatible {
		t.Fatalf("well-formed inputs: exit %d, stderr %q", code, stderr)
	}

	code, _, stderr = runCLI(t, "--input-format", "yaml", sparse, sparse)
	if code != exitCompatible {
		t.Fatalf("without --strict: exit %d, stderr %q", code, stderr)
	}

	code, _, stderr = runCLI(t, "--input-format", "yaml", "--strict", baseDoc, sparse)
	if code != exitFailure {
		t.Fatalf("sparse changed input: exit %d, stderr %q", code, stderr)
	}
	if !strings.Contains(stderr, "changed: invalid snapshot") || !strings.Contains(stderr, "code order") {
		t.Fatalf("unexpected stderr %q", stderr)
	}

	cfg := filepath.Join(t.TempDir(), "compat.yaml")
	if err := os.WriteFile(cfg, []byte("input_format: yaml\ncheck:\n  strict: true\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	code, _, stderr = runCLI(t, "--config", cfg, sparse, baseDoc)
	if code != exitFailure || !strings.Contains(stderr, "base: invalid snapshot") {
		t.Fatalf("strict config: exit %d, stderr %q", code, stderr)
	}

	code, _, stderr = runCLI(t, "dump", "--input-format", "yaml", "--strict", sparse)
	if code != exitFailure {
		t.Fatalf("strict dump: exit %d, stderr %q", code, stderr)
	}
}
