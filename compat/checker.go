package compat

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/openbindings/capnpcompat"
	"github.com/openbindings/capnpcompat/capnpid"
)

// DefaultMaxDepth bounds declaration nesting. Real schemas stay far below it.
const DefaultMaxDepth = 64

// Option configures a Checker.
type Option func(*Checker)

// WithLogger sets the logger findings are reported to at debug level.
func WithLogger(l *slog.Logger) Option {
	return func(c *Checker) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithMaxDepth bounds how deep nested declarations and groups may go before the
// comparison aborts with a StructureError.
func WithMaxDepth(n int) Option {
	return func(c *Checker) {
		if n > 0 {
			c.maxDepth = n
		}
	}
}

// WithSkip excludes declarations whose display name matches any of the glob
// patterns (doublestar syntax, e.g. `foo.capnp:Internal*`). Skipped declarations
// are neither compared nor descended into.
func WithSkip(patterns ...string) Option {
	return func(c *Checker) { c.skip = append(c.skip, patterns...) }
}

// WithZeroDefaultEquivalence treats an explicit all-zero default as equivalent to
// no default. Without it, adding or removing any explicit default is breaking.
func WithZeroDefaultEquivalence() Option {
	return func(c *Checker) { c.zeroDefaults = true }
}

// Checker compares a base snapshot against a changed snapshot.
//
// A Checker holds no per-comparison state and is safe for concurrent use.
type Checker struct {
	base    *capnpcompat.Snapshot
	changed *capnpcompat.Snapshot

	logger       *slog.Logger
	maxDepth     int
	skip         []string
	zeroDefaults bool
}

// New returns a Checker for the given snapshot pair.
func New(base, changed *capnpcompat.Snapshot, opts ...Option) *Checker {
	c := &Checker{
		base:     base,
		changed:  changed,
		logger:   slog.Default(),
		maxDepth: DefaultMaxDepth,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// IsBroken reports whether the declaration id, or anything nested under it in
// the base snapshot, changed incompatibly.
func IsBroken(base, changed *capnpcompat.Snapshot, id uint64) (bool, error) {
	return New(base, changed).IsBroken(id)
}

// IsBroken reports whether the declaration id, or anything nested under it in
// the base snapshot, changed incompatibly.
func (c *Checker) IsBroken(id uint64) (bool, error) {
	r, err := c.newRun()
	if err != nil {
		return false, err
	}
	return r.node(id, 0)
}

// Check compares every requested id of the base snapshot.
func (c *Checker) Check() (*Report, error) {
	if c == nil || c.base == nil {
		return nil, errors.New("compat: nil snapshot")
	}
	return c.CheckIDs(c.base.Requested()...)
}

// CheckIDs compares the given top-level ids and collects every finding.
// The report is broken if any id is broken.
func (c *Checker) CheckIDs(ids ...uint64) (*Report, error) {
	r, err := c.newRun()
	if err != nil {
		return nil, err
	}
	rep := &Report{Checked: make([]capnpid.ID, 0, len(ids))}
	for _, id := range ids {
		rep.Checked = append(rep.Checked, capnpid.ID(id))
		broken, err := r.node(id, 0)
		if err != nil {
			return nil, err
		}
		rep.Broken = rep.Broken || broken
	}
	rep.Findings = append([]Finding{}, r.findings...)
	return rep, nil
}

func (c *Checker) newRun() (*run, error) {
	if c == nil || c.base == nil || c.changed == nil {
		return nil, errors.New("compat: nil snapshot")
	}
	for _, p := range c.skip {
		if !doublestar.ValidatePattern(p) {
			return nil, &PatternError{Pattern: p}
		}
	}
	return &run{
		Checker: c,
		onPath:  map[uint64]bool{},
		memo:    map[uint64]bool{},
	}, nil
}

// run carries the state of one comparison. It is created fresh on each public method invocation.
type run struct {
	*Checker

	// onPath tracks the declarations being compared to detect cycles.
	onPath   map[uint64]bool
	memo     map[uint64]bool
	findings []Finding
}

func (r *run) report(f Finding) {
	r.findings = append(r.findings, f)
	r.logger.Debug("breaking change",
		"node", f.Node,
		"field", f.Field,
		"reason", string(f.Reason),
		"detail", f.Detail,
	)
}

func (r *run) skipped(name string) bool {
	for _, p := range r.skip {
		// Patterns were validated in newRun.
		if ok, _ := doublestar.Match(p, name); ok {
			return true
		}
	}
	return false
}

// enter guards recursion depth and cycles for id. The returned func must be called on exit.
func (r *run) enter(n *capnpcompat.Node, depth int) (func(), error) {
	if depth > r.maxDepth {
		return nil, &capnpcompat.StructureError{ID: n.ID, Name: n.DisplayName, Message: fmt.Sprintf("declaration nesting exceeds %d levels", r.maxDepth)}
	}
	if r.onPath[n.ID] {
		return nil, &capnpcompat.StructureError{ID: n.ID, Name: n.DisplayName, Message: "declaration cycle"}
	}
	r.onPath[n.ID] = true
	return func() { delete(r.onPath, n.ID) }, nil
}

// PatternError reports an invalid skip pattern.
type PatternError struct {
	Pattern string
}

func (e *PatternError) Error() string {
	if e == nil {
		return "invalid skip pattern"
	}
	return fmt.Sprintf("invalid skip pattern %q", e.Pattern)
}

func (e *PatternError) Unwrap() error { return doublestar.ErrBadPattern }
