// Package gitsource materializes schema files from a git revision so they can
// serve as the base side of a comparison.
package gitsource

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// Repository wraps a go-git repository opened from a working tree.
type Repository struct {
	repo *git.Repository
	root string
}

// Open opens the repository containing path, searching parent directories.
func Open(path string) (*Repository, error) {
	repo, err := git.PlainOpenWithOptions(path, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, fmt.Errorf("opening repository for %s: %w", path, err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("opening worktree: %w", err)
	}
	return &Repository{repo: repo, root: realPath(wt.Filesystem.Root())}, nil
}

// Root returns the working tree root.
func (r *Repository) Root() string { return r.root }

// Resolve resolves a revision (branch, tag, hash, or an expression such as HEAD~1) to a commit.
func (r *Repository) Resolve(rev string) (*object.Commit, error) {
	hash, err := r.repo.ResolveRevision(plumbing.Revision(rev))
	if err != nil {
		return nil, fmt.Errorf("resolving revision %q: %w", rev, err)
	}
	commit, err := r.repo.CommitObject(*hash)
	if err != nil {
		return nil, fmt.Errorf("getting commit %s: %w", hash, err)
	}
	return commit, nil
}

// Materialize writes every file of commit matching one of the include
// patterns into dir, preserving relative paths. It returns the written paths.
func (r *Repository) Materialize(commit *object.Commit, dir string, include []string) ([]string, error) {
	for _, p := range include {
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("invalid include pattern %q", p)
		}
	}
	tree, err := commit.Tree()
	if err != nil {
		return nil, fmt.Errorf("getting tree: %w", err)
	}

	var written []string
	err = tree.Files().ForEach(func(f *object.File) error {
		if !matchAny(include, f.Name) {
			return nil
		}
		content, err := f.Contents()
		if err != nil {
			return fmt.Errorf("reading file %s: %w", f.Name, err)
		}
		dst := filepath.Join(dir, filepath.FromSlash(f.Name))
		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(dst, []byte(content), 0o644); err != nil {
			return err
		}
		written = append(written, dst)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return written, nil
}

func matchAny(patterns []string, name string) bool {
	for _, p := range patterns {
		if ok, _ := doublestar.Match(p, name); ok {
			return true
		}
	}
	return false
}

// Baseline is a temporary copy of a revision's schema files.
type Baseline struct {
	// Dir holds the materialized files, laid out like the working tree.
	Dir    string
	Commit string
	Files  []string

	root string
}

// Checkout materializes the files of rev matching include from the repository
// containing path into a fresh temporary directory. Close removes it.
func Checkout(path, rev string, include []string, logger *slog.Logger) (*Baseline, error) {
	repo, err := Open(path)
	if err != nil {
		return nil, err
	}
	commit, err := repo.Resolve(rev)
	if err != nil {
		return nil, err
	}
	return repo.Checkout(commit, include, logger)
}

// Checkout materializes the files of commit matching include into a fresh
// temporary directory. Close removes it.
func (r *Repository) Checkout(commit *object.Commit, include []string, logger *slog.Logger) (*Baseline, error) {
	if logger == nil {
		logger = slog.Default()
	}
	dir, err := os.MkdirTemp("", "capnp-compat-base-")
	if err != nil {
		return nil, err
	}
	files, err := r.Materialize(commit, dir, include)
	if err != nil {
		_ = os.RemoveAll(dir)
		return nil, err
	}
	logger.Debug("materialized baseline", "commit", commit.Hash.String(), "files", len(files), "dir", dir)
	return &Baseline{Dir: dir, Commit: commit.Hash.String(), Files: files, root: r.root}, nil
}

// Rebase maps a path inside the working tree to the same path inside the
// baseline. Paths outside the working tree are returned unchanged.
func (b *Baseline) Rebase(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	abs = realPath(abs)
	rel, err := filepath.Rel(b.root, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return path
	}
	return filepath.Join(b.Dir, rel)
}

// Close removes the materialized files.
func (b *Baseline) Close() error {
	if b == nil || b.Dir == "" {
		return nil
	}
	return os.RemoveAll(b.Dir)
}

// realPath resolves symlinks where possible so that paths compare reliably.
func realPath(p string) string {
	if r, err := filepath.EvalSymlinks(p); err == nil {
		return r
	}
	return p
}
