package gitsource

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// initRepo creates a repository with two commits: the first writes
// schemas/point.capnp as v1, the second as v2. It returns the work tree root.
func initRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	repo, err := git.PlainInit(dir, false)
	if err != nil {
		t.Fatal(err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		t.Fatal(err)
	}

	commit := func(msg string, files map[string]string) {
		for name, content := range files {
			p := filepath.Join(dir, filepath.FromSlash(name))
			if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
				t.Fatal(err)
			}
			if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
				t.Fatal(err)
			}
			if _, err := wt.Add(name); err != nil {
				t.Fatal(err)
			}
		}
		_, err := wt.Commit(msg, &git.CommitOptions{
			Author: &object.Signature{Name: "test", Email: "test@example.com", When: time.Unix(1700000000, 0)},
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	commit("v1", map[string]string{
		"schemas/point.capnp": "v1",
		"README.md":           "readme",
	})
	commit("v2", map[string]string{
		"schemas/point.capnp": "v2",
	})
	return dir
}

func TestResolveAndMaterialize(t *testing.T) {
	root := initRepo(t)
	repo, err := Open(filepath.Join(root, "schemas"))
	if err != nil {
		t.Fatal(err)
	}

	commit, err := repo.Resolve("HEAD~1")
	if err != nil {
		t.Fatal(err)
	}
	out := t.TempDir()
	files, err := repo.Materialize(commit, out, []string{"**/*.capnp"})
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 1 {
		t.Fatalf("expected 1 file, got %v", files)
	}
	b, err := os.ReadFile(filepath.Join(out, "schemas", "point.capnp"))
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != "v1" {
		t.Fatalf("got %q, want v1", b)
	}
	if _, err := os.Stat(filepath.Join(out, "README.md")); !os.IsNotExist(err) {
		t.Fatalf("README.md should not be materialized: %v", err)
	}
}

func TestResolve_Unknown(t *testing.T) {
	repo, err := Open(initRepo(t))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := repo.Resolve("no-such-branch"); err == nil {
		t.Fatal("expected error")
	}
}

func TestMaterialize_InvalidPattern(t *testing.T) {
	repo, err := Open(initRepo(t))
	if err != nil {
		t.Fatal(err)
	}
	commit, err := repo.Resolve("HEAD")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := repo.Materialize(commit, t.TempDir(), []string{"["}); err == nil {
		t.Fatal("expected error")
	}
}

func TestCheckout(t *testing.T) {
	root := initRepo(t)
	schema := filepath.Join(root, "schemas", "point.capnp")

	b, err := Checkout(schema, "HEAD~1", []string{"**/*.capnp"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(b.Commit) != 40 {
		t.Fatalf("unexpected commit %q", b.Commit)
	}

	rebased := b.Rebase(schema)
	content, err := os.ReadFile(rebased)
	if err != nil {
		t.Fatal(err)
	}
	if string(content) != "v1" {
		t.Fatalf("got %q, want v1", content)
	}

	outside := filepath.Join(t.TempDir(), "other.capnp")
	if got := b.Rebase(outside); got != outside {
		t.Fatalf("path outside the work tree was rebased to %s", got)
	}

	if err := b.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(b.Dir); !os.IsNotExist(err) {
		t.Fatalf("baseline dir not removed: %v", err)
	}
}

func TestRepositoryCheckout(t *testing.T) {
	root := initRepo(t)
	repo, err := Open(root)
	if err != nil {
		t.Fatal(err)
	}
	commit, err := repo.Resolve("HEAD")
	if err != nil {
		t.Fatal(err)
	}
	b, err := repo.Checkout(commit, []string{"**/*.capnp"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()
	if b.Commit != commit.Hash.String() {
		t.Fatalf("commit = %s, want %s", b.Commit, commit.Hash)
	}
	content, err := os.ReadFile(b.Rebase(filepath.Join(root, "schemas", "point.capnp")))
	if err != nil {
		t.Fatal(err)
	}
	if string(content) != "v2" {
		t.Fatalf("got %q, want v2", content)
	}

	if _, err := repo.Checkout(commit, []string{"["}, nil); err == nil {
		t.Fatal("expected error for invalid pattern")
	}
}

func TestOpen_NotARepository(t *testing.T) {
	if _, err := Open(t.TempDir()); err == nil {
		t.Fatal("expected error")
	}
}
