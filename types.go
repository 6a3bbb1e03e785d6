package capnpcompat

import (
	"fmt"
	"math"
)

// NodeKind identifies the declaration variant carried by a Node.
type NodeKind int

const (
	NodeFile NodeKind = iota
	NodeStruct
	NodeEnum
	NodeInterface
	NodeConst
	NodeAnnotation
)

var nodeKindNames = [...]string{
	NodeFile:       "file",
	NodeStruct:     "struct",
	NodeEnum:       "enum",
	NodeInterface:  "interface",
	NodeConst:      "const",
	NodeAnnotation: "annotation",
}

func (k NodeKind) String() string {
	if k >= 0 && int(k) < len(nodeKindNames) {
		return nodeKindNames[k]
	}
	return fmt.Sprintf("NodeKind(%d)", int(k))
}

// ParseNodeKind is the inverse of NodeKind.String.
func ParseNodeKind(s string) (NodeKind, error) {
	for k, name := range nodeKindNames {
		if name == s {
			return NodeKind(k), nil
		}
	}
	return 0, fmt.Errorf("unknown node kind %q", s)
}

// Node is one declaration in a compiled schema.
//
// Exactly one of Struct, Enum, Interface, Const is set for the matching Kind;
// File and Annotation nodes carry no body.
type Node struct {
	ID          uint64
	DisplayName string
	Kind        NodeKind

	// Nested lists the declarations scoped inside this one, in source order.
	Nested []NestedNode

	Struct    *StructNode
	Enum      *EnumNode
	Interface *InterfaceNode
	Const     *ConstNode
}

// NestedNode is a child declaration reference.
type NestedNode struct {
	Name string
	ID   uint64
}

// StructNode is the body of a struct (or group) declaration.
type StructNode struct {
	// Fields are in declaration order. Use FieldsByCodeOrder for wire order.
	Fields            []Field
	DiscriminantCount uint16
	IsGroup           bool
}

// EnumNode is the body of an enum declaration.
type EnumNode struct {
	Enumerants []Enumerant
}

// Enumerant is one enum member.
type Enumerant struct {
	Name      string
	CodeOrder uint16
}

// InterfaceNode is the body of an interface declaration.
type InterfaceNode struct {
	Methods []Method
}

// Method is one interface method.
type Method struct {
	Name             string
	CodeOrder        uint16
	ParamStructType  uint64
	ResultStructType uint64
}

// ConstNode is the body of a const declaration.
type ConstNode struct {
	Type  Type
	Value Value
}

// NoDiscriminant marks a field that is not a member of a union.
const NoDiscriminant uint16 = 0xFFFF

// FieldKind identifies the Field variant.
type FieldKind int

const (
	FieldSlot FieldKind = iota
	FieldGroup
)

func (k FieldKind) String() string {
	switch k {
	case FieldSlot:
		return "slot"
	case FieldGroup:
		return "group"
	default:
		return fmt.Sprintf("FieldKind(%d)", int(k))
	}
}

// Field is a struct member.
type Field struct {
	Name string
	// CodeOrder is assigned at first declaration and is the wire-position key.
	CodeOrder         uint16
	DiscriminantValue uint16
	Kind              FieldKind

	// Slot is set when Kind == FieldSlot.
	Slot *Slot
	// GroupID references the struct node holding the group body when Kind == FieldGroup.
	GroupID uint64
}

// InUnion reports whether the field is a union member.
func (f Field) InUnion() bool {
	return f.DiscriminantValue != NoDiscriminant
}

// Slot is a plain data or pointer field.
type Slot struct {
	Type Type
	// Default is nil when the schema gave no explicit default.
	Default *Value
}

// TypeKind identifies a Type or Value variant.
type TypeKind int

const (
	TypeVoid TypeKind = iota
	TypeBool
	TypeInt8
	TypeInt16
	TypeInt32
	TypeInt64
	TypeUint8
	TypeUint16
	TypeUint32
	TypeUint64
	TypeFloat32
	TypeFloat64
	TypeText
	TypeData
	TypeList
	TypeEnum
	TypeStruct
	TypeInterface
	TypeAnyPointer
)

var typeKindNames = [...]string{
	TypeVoid:       "Void",
	TypeBool:       "Bool",
	TypeInt8:       "Int8",
	TypeInt16:      "Int16",
	TypeInt32:      "Int32",
	TypeInt64:      "Int64",
	TypeUint8:      "UInt8",
	TypeUint16:     "UInt16",
	TypeUint32:     "UInt32",
	TypeUint64:     "UInt64",
	TypeFloat32:    "Float32",
	TypeFloat64:    "Float64",
	TypeText:       "Text",
	TypeData:       "Data",
	TypeList:       "List",
	TypeEnum:       "Enum",
	TypeStruct:     "Struct",
	TypeInterface:  "Interface",
	TypeAnyPointer: "AnyPointer",
}

func (k TypeKind) String() string {
	if k >= 0 && int(k) < len(typeKindNames) {
		return typeKindNames[k]
	}
	return fmt.Sprintf("TypeKind(%d)", int(k))
}

// IsPrimitive reports whether k is a scalar, text or data kind.
func (k TypeKind) IsPrimitive() bool {
	return k >= TypeVoid && k <= TypeData
}

// AnyPointerKind distinguishes the three AnyPointer flavours.
type AnyPointerKind int

const (
	AnyPointerUnconstrained AnyPointerKind = iota
	// AnyPointerParameter is a generic type parameter bound at the use site.
	AnyPointerParameter
	AnyPointerImplicitMethodParameter
)

func (k AnyPointerKind) String() string {
	switch k {
	case AnyPointerUnconstrained:
		return "unconstrained"
	case AnyPointerParameter:
		return "parameter"
	case AnyPointerImplicitMethodParameter:
		return "implicitMethodParameter"
	default:
		return fmt.Sprintf("AnyPointerKind(%d)", int(k))
	}
}

// Type is a field or const type.
type Type struct {
	Kind TypeKind
	// Element is the list element type when Kind == TypeList.
	Element *Type
	// TypeID references the declaration for enum, struct and interface types.
	TypeID     uint64
	AnyPointer AnyPointerKind
}

// ListOf returns a list type with the given element type.
func ListOf(elem Type) Type {
	return Type{Kind: TypeList, Element: &elem}
}

func (t Type) String() string {
	switch t.Kind {
	case TypeList:
		if t.Element == nil {
			return "List(?)"
		}
		return "List(" + t.Element.String() + ")"
	case TypeEnum, TypeStruct, TypeInterface:
		return fmt.Sprintf("%s(@0x%016x)", t.Kind, t.TypeID)
	case TypeAnyPointer:
		if t.AnyPointer == AnyPointerUnconstrained {
			return "AnyPointer"
		}
		return "AnyPointer(" + t.AnyPointer.String() + ")"
	default:
		return t.Kind.String()
	}
}

// Value is a default or const value. Kind selects which payload field is meaningful.
type Value struct {
	Kind TypeKind

	Bool    bool
	Int     int64
	Uint    uint64
	Float32 float32
	Float64 float64
	Text    string
	Data    []byte
	// List holds the raw encoded bytes of a list value.
	List []byte
	Enum uint16
	// Composite holds the raw encoded bytes of a struct or AnyPointer value, if any.
	Composite []byte
}

// IsZero reports whether v carries the zero payload of its kind.
func (v Value) IsZero() bool {
	switch v.Kind {
	case TypeVoid:
		return true
	case TypeBool:
		return !v.Bool
	case TypeInt8, TypeInt16, TypeInt32, TypeInt64:
		return v.Int == 0
	case TypeUint8, TypeUint16, TypeUint32, TypeUint64:
		return v.Uint == 0
	case TypeFloat32:
		return math.Float32bits(v.Float32) == 0
	case TypeFloat64:
		return math.Float64bits(v.Float64) == 0
	case TypeText:
		return v.Text == ""
	case TypeData:
		return len(v.Data) == 0
	case TypeList:
		return len(v.List) == 0
	case TypeEnum:
		return v.Enum == 0
	case TypeStruct, TypeAnyPointer:
		return len(v.Composite) == 0
	case TypeInterface:
		return true
	default:
		return false
	}
}

func (v Value) String() string {
	switch v.Kind {
	case TypeVoid, TypeInterface:
		return v.Kind.String()
	case TypeBool:
		return fmt.Sprintf("%t", v.Bool)
	case TypeInt8, TypeInt16, TypeInt32, TypeInt64:
		return fmt.Sprintf("%s(%d)", v.Kind, v.Int)
	case TypeUint8, TypeUint16, TypeUint32, TypeUint64:
		return fmt.Sprintf("%s(%d)", v.Kind, v.Uint)
	case TypeFloat32:
		return fmt.Sprintf("Float32(%g)", v.Float32)
	case TypeFloat64:
		return fmt.Sprintf("Float64(%g)", v.Float64)
	case TypeText:
		return fmt.Sprintf("%q", v.Text)
	case TypeData:
		return fmt.Sprintf("Data(%x)", v.Data)
	case TypeList:
		return fmt.Sprintf("List(%d bytes)", len(v.List))
	case TypeEnum:
		return fmt.Sprintf("Enum(%d)", v.Enum)
	default:
		return fmt.Sprintf("%s(%d bytes)", v.Kind, len(v.Composite))
	}
}
