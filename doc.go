// Package capnpcompat models compiled Cap'n Proto schemas for wire-compatibility checking.
//
// A Snapshot is an immutable index over one compiled schema: declaration nodes
// keyed by their 64-bit ids, plus the list of top-level ids (normally the
// requested files) that a comparison starts from. Snapshots are built by the
// capnpc package from schema compiler output, or from YAML snapshot documents.
//
// The comparison engine itself lives in the compat subpackage.
//
// # Quick Start
//
//	base, err := capnpcompat.LoadDocument("base.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	changed, err := capnpcompat.LoadDocument("changed.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	report, err := compat.New(base, changed).Check()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(report.Broken)
//
// # Code Order
//
// Fields are compared by code order, the index assigned when a field is first
// declared. It is independent of both source order and the `@N` ordinal's
// byte offset, and is never reused, which makes it the right key for wire
// position. StructNode.FieldsByCodeOrder returns fields in that order.
//
// # Concurrency
//
// Snapshots are read-only after construction and safe for concurrent use.
// One base snapshot may be compared against several changed snapshots at once.
//
// # Subpackages
//
//   - capnpid: Parse and format `@0x…` node identifiers
//   - compat: The breaking-change comparison engine
//   - capnpc: Run the schema compiler and decode its CodeGeneratorRequest
package capnpcompat
