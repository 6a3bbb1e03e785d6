package capnpcompat

import (
	"errors"
	"strings"
	"testing"
)

func mustSnapshot(t *testing.T, nodes []Node, requested ...uint64) *Snapshot {
	t.Helper()
	s, err := NewSnapshot(nodes, requested)
	if err != nil {
		t.Fatalf("new snapshot: %v", err)
	}
	return s
}

func mustDecodeDocument(t *testing.T, doc string) *Snapshot {
	t.Helper()
	s, err := DecodeDocument(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("decode document: %v", err)
	}
	return s
}

func slot(name string, order uint16, t Type) Field {
	return Field{Name: name, CodeOrder: order, DiscriminantValue: NoDiscriminant, Kind: FieldSlot, Slot: &Slot{Type: t}}
}

func structNode(id uint64, name string, fields ...Field) Node {
	return Node{ID: id, DisplayName: name, Kind: NodeStruct, Struct: &StructNode{Fields: fields}}
}

func assertValidationProblem(t *testing.T, err error, substr string) {
	t.Helper()
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	for _, p := range ve.Problems {
		if strings.Contains(p, substr) {
			return
		}
	}
	t.Fatalf("expected a problem containing %q, got %q", substr, ve.Problems)
}
