package capnpcompat

import (
	"cmp"
	"fmt"
	"slices"
)

// Snapshot is an immutable index over one compiled schema.
//
// A Snapshot is safe for concurrent read access; nothing mutates it after NewSnapshot returns.
type Snapshot struct {
	nodes     map[uint64]*Node
	requested []uint64
}

// NewSnapshot indexes nodes by ID. requested lists the top-level declarations
// (normally the requested files) that a comparison run starts from.
func NewSnapshot(nodes []Node, requested []uint64) (*Snapshot, error) {
	s := &Snapshot{
		nodes:     make(map[uint64]*Node, len(nodes)),
		requested: slices.Clone(requested),
	}
	for i := range nodes {
		n := nodes[i]
		if _, dup := s.nodes[n.ID]; dup {
			return nil, &StructureError{ID: n.ID, Message: "duplicate node id"}
		}
		if err := checkBody(&n); err != nil {
			return nil, err
		}
		s.nodes[n.ID] = &n
	}
	return s, nil
}

// checkBody rejects nodes whose body does not match their kind.
func checkBody(n *Node) error {
	switch n.Kind {
	case NodeFile, NodeAnnotation:
		return nil
	case NodeStruct:
		if n.Struct == nil {
			return &StructureError{ID: n.ID, Name: n.DisplayName, Message: "struct node without struct body"}
		}
		for _, f := range n.Struct.Fields {
			if f.Kind == FieldSlot && f.Slot == nil {
				return &StructureError{ID: n.ID, Name: n.DisplayName, Message: fmt.Sprintf("field %q: slot without type", f.Name)}
			}
			if f.Kind != FieldSlot && f.Kind != FieldGroup {
				return &StructureError{ID: n.ID, Name: n.DisplayName, Message: fmt.Sprintf("field %q: unknown field kind %d", f.Name, int(f.Kind))}
			}
			if f.Kind == FieldSlot {
				if msg := checkType(f.Slot.Type); msg != "" {
					return &StructureError{ID: n.ID, Name: n.DisplayName, Message: fmt.Sprintf("field %q: %s", f.Name, msg)}
				}
			}
		}
	case NodeEnum:
		if n.Enum == nil {
			n.Enum = &EnumNode{}
		}
	case NodeInterface:
		if n.Interface == nil {
			n.Interface = &InterfaceNode{}
		}
	case NodeConst:
		if n.Const == nil {
			return &StructureError{ID: n.ID, Name: n.DisplayName, Message: "const node without value"}
		}
	default:
		return &StructureError{ID: n.ID, Name: n.DisplayName, Message: fmt.Sprintf("unknown node kind %d", int(n.Kind))}
	}
	return nil
}

func checkType(t Type) string {
	switch {
	case t.Kind < TypeVoid || t.Kind > TypeAnyPointer:
		return fmt.Sprintf("unknown type kind %d", int(t.Kind))
	case t.Kind == TypeList && t.Element == nil:
		return "list type without element type"
	case t.Kind == TypeList:
		return checkType(*t.Element)
	case t.Kind == TypeAnyPointer && (t.AnyPointer < AnyPointerUnconstrained || t.AnyPointer > AnyPointerImplicitMethodParameter):
		return fmt.Sprintf("unknown AnyPointer kind %d", int(t.AnyPointer))
	}
	return ""
}

// Node returns the declaration with the given id.
func (s *Snapshot) Node(id uint64) (*Node, bool) {
	if s == nil {
		return nil, false
	}
	n, ok := s.nodes[id]
	return n, ok
}

// Requested returns a copy of the top-level ids to check.
func (s *Snapshot) Requested() []uint64 {
	if s == nil {
		return nil
	}
	return slices.Clone(s.requested)
}

// Len returns the number of indexed nodes.
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.nodes)
}

// IDs returns all node ids in ascending order.
func (s *Snapshot) IDs() []uint64 {
	if s == nil {
		return nil
	}
	ids := make([]uint64, 0, len(s.nodes))
	for id := range s.nodes {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// FieldsByCodeOrder returns a copy of the struct's fields sorted by code order.
func (sn *StructNode) FieldsByCodeOrder() []Field {
	if sn == nil {
		return nil
	}
	out := slices.Clone(sn.Fields)
	slices.SortStableFunc(out, func(a, b Field) int { return cmp.Compare(a.CodeOrder, b.CodeOrder) })
	return out
}

// StructureError reports a snapshot that cannot be read as a well-formed schema.
// A comparison that hits one aborts without a verdict.
type StructureError struct {
	ID      uint64
	Name    string
	Message string
}

func (e *StructureError) Error() string {
	if e == nil {
		return "schema structure error"
	}
	if e.Name == "" {
		return fmt.Sprintf("schema structure error at @0x%016x: %s", e.ID, e.Message)
	}
	return fmt.Sprintf("schema structure error at %s (@0x%016x): %s", e.Name, e.ID, e.Message)
}
