package compat

import (
	"errors"
	"strings"
	"testing"

	"github.com/openbindings/capnpcompat"
)

const (
	fileID  uint64 = 0xd000000000000001
	pointID uint64 = 0xd000000000000002
	otherID uint64 = 0xd000000000000003
	groupID uint64 = 0xd000000000000004
)

var (
	int32T   = capnpcompat.Type{Kind: capnpcompat.TypeInt32}
	int64T   = capnpcompat.Type{Kind: capnpcompat.TypeInt64}
	float64T = capnpcompat.Type{Kind: capnpcompat.TypeFloat64}
)

func mustSnapshot(t *testing.T, nodes ...capnpcompat.Node) *capnpcompat.Snapshot {
	t.Helper()
	s, err := capnpcompat.NewSnapshot(nodes, []uint64{fileID})
	if err != nil {
		t.Fatalf("new snapshot: %v", err)
	}
	return s
}

func mustLoad(t *testing.T, path string) *capnpcompat.Snapshot {
	t.Helper()
	s, err := capnpcompat.LoadDocument(path)
	if err != nil {
		t.Fatalf("load %s: %v", path, err)
	}
	return s
}

func file(nested ...uint64) capnpcompat.Node {
	n := capnpcompat.Node{ID: fileID, DisplayName: "point.capnp", Kind: capnpcompat.NodeFile}
	for _, id := range nested {
		n.Nested = append(n.Nested, capnpcompat.NestedNode{ID: id})
	}
	return n
}

func point(fields ...capnpcompat.Field) capnpcompat.Node {
	return capnpcompat.Node{ID: pointID, DisplayName: "point.capnp:Point", Kind: capnpcompat.NodeStruct, Struct: &capnpcompat.StructNode{Fields: fields}}
}

func slot(name string, order uint16, t capnpcompat.Type) capnpcompat.Field {
	return capnpcompat.Field{Name: name, CodeOrder: order, DiscriminantValue: capnpcompat.NoDiscriminant, Kind: capnpcompat.FieldSlot, Slot: &capnpcompat.Slot{Type: t}}
}

func withDefault(f capnpcompat.Field, v capnpcompat.Value) capnpcompat.Field {
	f.Slot = &capnpcompat.Slot{Type: f.Slot.Type, Default: &v}
	return f
}

func group(name string, order uint16, id uint64) capnpcompat.Field {
	return capnpcompat.Field{Name: name, CodeOrder: order, DiscriminantValue: capnpcompat.NoDiscriminant, Kind: capnpcompat.FieldGroup, GroupID: id}
}

// pointPair builds base and changed snapshots that differ only in Point's fields.
func pointPair(t *testing.T, base, changed []capnpcompat.Field) (*capnpcompat.Snapshot, *capnpcompat.Snapshot) {
	t.Helper()
	return mustSnapshot(t, file(pointID), point(base...)), mustSnapshot(t, file(pointID), point(changed...))
}

func mustCheck(t *testing.T, base, changed *capnpcompat.Snapshot, opts ...Option) *Report {
	t.Helper()
	rep, err := New(base, changed, opts...).Check()
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	return rep
}

func assertStructureError(t *testing.T, err error, substr string) *capnpcompat.StructureError {
	t.Helper()
	var se *capnpcompat.StructureError
	if !errors.As(err, &se) {
		t.Fatalf("expected StructureError, got %v", err)
	}
	if !strings.Contains(se.Message, substr) {
		t.Fatalf("expected message containing %q, got %q", substr, se.Message)
	}
	return se
}
