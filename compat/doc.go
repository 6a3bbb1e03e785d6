// Package compat decides whether a changed Cap'n Proto schema is wire-compatible with a base schema.
//
// This package is intentionally:
// - pure (no file/process IO; callers build the two snapshots)
// - deterministic (findings are reported in traversal order)
// - conservative about identity (a node id present in both snapshots is the same logical declaration)
//
// It is not a schema linter or a diff tool. It answers one question: can data
// written under the base schema be misread under the changed one, or vice versa?
//
// Known gaps, treated as compatible: enumerant, method and const value changes;
// deep equality of struct, interface and AnyPointer defaults; equivalence of two
// AnyPointer slots. List defaults are compared by their encoded bytes.
package compat
