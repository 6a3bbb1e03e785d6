package capnpcompat

import "testing"

func TestValidate_AcceptsWellFormedSnapshot(t *testing.T) {
	s, err := LoadDocument("testdata/point_base.yaml")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := s.Validate(WithRequireDenseCodeOrder(), WithRequireRequestedFiles(), WithRequireResolvableTypes()); err != nil {
		t.Fatalf("expected valid snapshot, got %v", err)
	}
}

func TestValidate_UnknownRequested(t *testing.T) {
	s := mustSnapshot(t, []Node{{ID: 1, Kind: NodeFile}}, 2)
	assertValidationProblem(t, s.Validate(), "requested[0]: unknown node")
}

func TestValidate_RequestedMustBeFileWhenOpted(t *testing.T) {
	s := mustSnapshot(t, []Node{structNode(1, "S")}, 1)
	if err := s.Validate(); err != nil {
		t.Fatalf("expected no error by default, got %v", err)
	}
	assertValidationProblem(t, s.Validate(WithRequireRequestedFiles()), "not a file")
}

func TestValidate_UnknownNested(t *testing.T) {
	s := mustSnapshot(t, []Node{{ID: 1, DisplayName: "f.capnp", Kind: NodeFile, Nested: []NestedNode{{Name: "Gone", ID: 5}}}})
	assertValidationProblem(t, s.Validate(), `f.capnp.nested[0] "Gone": unknown node`)
}

func TestValidate_NestedCycle(t *testing.T) {
	a := structNode(1, "A")
	a.Nested = []NestedNode{{Name: "B", ID: 2}}
	b := structNode(2, "B")
	b.Nested = []NestedNode{{Name: "A", ID: 1}}
	s := mustSnapshot(t, []Node{a, b})
	assertValidationProblem(t, s.Validate(), "nested declaration cycle")
}

func TestValidate_DuplicateCodeOrderAndName(t *testing.T) {
	s := mustSnapshot(t, []Node{structNode(1, "S",
		slot("a", 0, Type{Kind: TypeBool}),
		slot("b", 0, Type{Kind: TypeBool}),
		slot("a", 1, Type{Kind: TypeBool}),
	)})
	err := s.Validate()
	assertValidationProblem(t, err, `S.b: code order 0 also used by "a"`)
	assertValidationProblem(t, err, "S.a: duplicate field name")
}

func TestValidate_DenseCodeOrder(t *testing.T) {
	s := mustSnapshot(t, []Node{structNode(1, "S",
		slot("a", 0, Type{Kind: TypeBool}),
		slot("b", 2, Type{Kind: TypeBool}),
	)})
	if err := s.Validate(); err != nil {
		t.Fatalf("expected no error by default, got %v", err)
	}
	assertValidationProblem(t, s.Validate(WithRequireDenseCodeOrder()), "code order 1 missing")
}

func TestValidate_DiscriminantWithoutUnion(t *testing.T) {
	f := slot("a", 0, Type{Kind: TypeBool})
	f.DiscriminantValue = 0
	s := mustSnapshot(t, []Node{structNode(1, "S", f)})
	assertValidationProblem(t, s.Validate(), "declares no union")
}

func TestValidate_GroupReferences(t *testing.T) {
	missing := Field{Name: "g", CodeOrder: 0, DiscriminantValue: NoDiscriminant, Kind: FieldGroup, GroupID: 9}
	wrongKind := Field{Name: "h", CodeOrder: 1, DiscriminantValue: NoDiscriminant, Kind: FieldGroup, GroupID: 2}
	s := mustSnapshot(t, []Node{
		structNode(1, "S", missing, wrongKind),
		{ID: 2, DisplayName: "E", Kind: NodeEnum},
	})
	err := s.Validate()
	assertValidationProblem(t, err, "S.g: unknown group node")
	assertValidationProblem(t, err, "S.h: group node E is a enum")
}

func TestValidate_ResolvableTypes(t *testing.T) {
	s := mustSnapshot(t, []Node{
		structNode(1, "S",
			slot("a", 0, Type{Kind: TypeStruct, TypeID: 2}),
			slot("b", 1, ListOf(Type{Kind: TypeEnum, TypeID: 7})),
		),
		{ID: 2, DisplayName: "E", Kind: NodeEnum},
	})
	if err := s.Validate(); err != nil {
		t.Fatalf("expected no error by default, got %v", err)
	}
	err := s.Validate(WithRequireResolvableTypes())
	assertValidationProblem(t, err, "S.a: Struct type references enum E")
	assertValidationProblem(t, err, "S.b: type references unknown node")
}

func TestValidationError_Message(t *testing.T) {
	var nilErr *ValidationError
	if nilErr.Error() != "invalid snapshot" {
		t.Fatalf("unexpected: %q", nilErr.Error())
	}
	err := &ValidationError{Problems: []string{"a", "b"}}
	if err.Error() != "invalid snapshot: a; b" {
		t.Fatalf("unexpected: %q", err.Error())
	}
}
