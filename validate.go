package capnpcompat

import (
	"fmt"
	"strings"
)

type validateOptions struct {
	requireDenseCodeOrder  bool
	requireRequestedFiles  bool
	requireResolvableTypes bool
}

// ValidateOption configures Snapshot.Validate.
type ValidateOption func(*validateOptions)

// WithRequireDenseCodeOrder requires every struct's code orders to be exactly 0..n-1.
// The schema compiler always produces dense code orders, so this is useful for hand-written documents.
func WithRequireDenseCodeOrder() ValidateOption {
	return func(o *validateOptions) { o.requireDenseCodeOrder = true }
}

// WithRequireRequestedFiles requires every requested id to name a file node.
func WithRequireRequestedFiles() ValidateOption {
	return func(o *validateOptions) { o.requireRequestedFiles = true }
}

// WithRequireResolvableTypes requires enum, struct and interface type references to resolve in the snapshot.
// Compiler output satisfies this; documents may legitimately omit imported declarations.
func WithRequireResolvableTypes() ValidateOption {
	return func(o *validateOptions) { o.requireResolvableTypes = true }
}

// Validate performs shape-level checks on the snapshot graph.
// It does not check anything about compatibility.
func (s *Snapshot) Validate(opts ...ValidateOption) error {
	o := validateOptions{}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	if s == nil {
		return &ValidationError{Problems: []string{"nil snapshot"}}
	}

	var errs []string

	for idx, id := range s.requested {
		n, ok := s.nodes[id]
		if !ok {
			errs = append(errs, fmt.Sprintf("requested[%d]: unknown node @0x%016x", idx, id))
			continue
		}
		if o.requireRequestedFiles && n.Kind != NodeFile {
			errs = append(errs, fmt.Sprintf("requested[%d]: %s is a %s, not a file", idx, label(n), n.Kind))
		}
	}

	for _, id := range s.IDs() {
		n := s.nodes[id]
		for idx, nn := range n.Nested {
			if _, ok := s.nodes[nn.ID]; !ok {
				errs = append(errs, fmt.Sprintf("%s.nested[%d] %q: unknown node @0x%016x", label(n), idx, nn.Name, nn.ID))
			}
		}
		if n.Kind == NodeStruct {
			validateStruct(&errs, s, n, o)
		}
	}

	// Nested declarations form a forest; a back-edge means the graph is malformed.
	state := map[uint64]int{}
	for _, id := range s.IDs() {
		if cyc, found := findNestedCycle(s, id, state); found {
			errs = append(errs, fmt.Sprintf("%s: nested declaration cycle", label(s.nodes[cyc])))
		}
	}

	if len(errs) == 0 {
		return nil
	}
	return &ValidationError{Problems: errs}
}

func validateStruct(errs *[]string, s *Snapshot, n *Node, o validateOptions) {
	seenOrder := map[uint16]string{}
	seenName := map[string]struct{}{}
	for _, f := range n.Struct.Fields {
		prefix := fmt.Sprintf("%s.%s", label(n), f.Name)
		if strings.TrimSpace(f.Name) == "" {
			*errs = append(*errs, fmt.Sprintf("%s: field name required", label(n)))
		}
		if _, dup := seenName[f.Name]; dup {
			*errs = append(*errs, fmt.Sprintf("%s: duplicate field name", prefix))
		}
		seenName[f.Name] = struct{}{}
		if other, dup := seenOrder[f.CodeOrder]; dup {
			*errs = append(*errs, fmt.Sprintf("%s: code order %d also used by %q", prefix, f.CodeOrder, other))
		}
		seenOrder[f.CodeOrder] = f.Name

		if f.InUnion() && n.Struct.DiscriminantCount == 0 {
			*errs = append(*errs, fmt.Sprintf("%s: discriminant %d but struct declares no union", prefix, f.DiscriminantValue))
		}

		switch f.Kind {
		case FieldGroup:
			g, ok := s.nodes[f.GroupID]
			if !ok {
				*errs = append(*errs, fmt.Sprintf("%s: unknown group node @0x%016x", prefix, f.GroupID))
			} else if g.Kind != NodeStruct {
				*errs = append(*errs, fmt.Sprintf("%s: group node %s is a %s", prefix, label(g), g.Kind))
			}
		case FieldSlot:
			if o.requireResolvableTypes {
				validateTypeRefs(errs, s, prefix, f.Slot.Type)
			}
		}
	}
	if o.requireDenseCodeOrder {
		for i := range n.Struct.Fields {
			if _, ok := seenOrder[uint16(i)]; !ok {
				*errs = append(*errs, fmt.Sprintf("%s: code order %d missing", label(n), i))
			}
		}
	}
}

func validateTypeRefs(errs *[]string, s *Snapshot, prefix string, t Type) {
	want := NodeKind(-1)
	switch t.Kind {
	case TypeList:
		validateTypeRefs(errs, s, prefix, *t.Element)
		return
	case TypeEnum:
		want = NodeEnum
	case TypeStruct:
		want = NodeStruct
	case TypeInterface:
		want = NodeInterface
	default:
		return
	}
	ref, ok := s.nodes[t.TypeID]
	if !ok {
		*errs = append(*errs, fmt.Sprintf("%s: type references unknown node @0x%016x", prefix, t.TypeID))
		return
	}
	if ref.Kind != want {
		*errs = append(*errs, fmt.Sprintf("%s: %s type references %s %s", prefix, t.Kind, ref.Kind, label(ref)))
	}
}

// findNestedCycle walks nested edges depth-first. state: 0 unvisited, 1 on path, 2 done.
// It returns the id at which a back-edge was found.
func findNestedCycle(s *Snapshot, id uint64, state map[uint64]int) (uint64, bool) {
	switch state[id] {
	case 1:
		return id, true
	case 2:
		return 0, false
	}
	n, ok := s.nodes[id]
	if !ok {
		return 0, false
	}
	state[id] = 1
	for _, nn := range n.Nested {
		if cyc, found := findNestedCycle(s, nn.ID, state); found {
			state[id] = 2
			return cyc, true
		}
	}
	state[id] = 2
	return 0, false
}

func label(n *Node) string {
	if n.DisplayName != "" {
		return n.DisplayName
	}
	return fmt.Sprintf("@0x%016x", n.ID)
}

// ValidationError is a deterministic, multi-problem validation error.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	if e == nil || len(e.Problems) == 0 {
		return "invalid snapshot"
	}
	return "invalid snapshot: " + strings.Join(e.Problems, "; ")
}
