package capnpc

import (
	"fmt"
	"io"
	"os"

	"capnproto.org/go/capnp/v3"
	"capnproto.org/go/capnp/v3/std/capnp/schema"

	"github.com/openbindings/capnpcompat"
)

// ReadSnapshot decodes one stream-framed CodeGeneratorRequest from r.
func ReadSnapshot(r io.Reader) (*capnpcompat.Snapshot, error) {
	msg, err := capnp.NewDecoder(r).Decode()
	if err != nil {
		return nil, fmt.Errorf("read code generator request: %w", err)
	}
	req, err := schema.ReadRootCodeGeneratorRequest(msg)
	if err != nil {
		return nil, fmt.Errorf("read code generator request: %w", err)
	}
	return FromRequest(req)
}

// LoadRequestFile reads a request saved with `capnp compile -o- file.capnp > file.bin`.
func LoadRequestFile(path string) (*capnpcompat.Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	s, err := ReadSnapshot(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// FromRequest converts a decoded request. Any malformed node is reported as a
// StructureError carrying that node's id.
func FromRequest(req schema.CodeGeneratorRequest) (*capnpcompat.Snapshot, error) {
	nodes, err := req.Nodes()
	if err != nil {
		return nil, fmt.Errorf("request nodes: %w", err)
	}
	out := make([]capnpcompat.Node, 0, nodes.Len())
	for i := 0; i < nodes.Len(); i++ {
		n, err := convertNode(nodes.At(i))
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}

	files, err := req.RequestedFiles()
	if err != nil {
		return nil, fmt.Errorf("request requested files: %w", err)
	}
	requested := make([]uint64, 0, files.Len())
	for i := 0; i < files.Len(); i++ {
		requested = append(requested, files.At(i).Id())
	}
	return capnpcompat.NewSnapshot(out, requested)
}

func convertNode(sn schema.Node) (capnpcompat.Node, error) {
	n := capnpcompat.Node{ID: sn.Id()}
	fail := func(what string, err error) (capnpcompat.Node, error) {
		return capnpcompat.Node{}, &capnpcompat.StructureError{ID: n.ID, Name: n.DisplayName, Message: fmt.Sprintf("%s: %v", what, err)}
	}

	name, err := sn.DisplayName()
	if err != nil {
		return fail("display name", err)
	}
	n.DisplayName = name

	nested, err := sn.NestedNodes()
	if err != nil {
		return fail("nested nodes", err)
	}
	for i := 0; i < nested.Len(); i++ {
		nn := nested.At(i)
		nname, err := nn.Name()
		if err != nil {
			return fail("nested node name", err)
		}
		n.Nested = append(n.Nested, capnpcompat.NestedNode{Name: nname, ID: nn.Id()})
	}

	switch sn.Which() {
	case schema.Node_Which_file:
		n.Kind = capnpcompat.NodeFile
	case schema.Node_Which_annotation:
		n.Kind = capnpcompat.NodeAnnotation
	case schema.Node_Which_structNode:
		n.Kind = capnpcompat.NodeStruct
		body, err := convertStruct(sn.StructNode())
		if err != nil {
			return fail("struct", err)
		}
		n.Struct = body
	case schema.Node_Which_enum:
		n.Kind = capnpcompat.NodeEnum
		ens, err := sn.Enum().Enumerants()
		if err != nil {
			return fail("enumerants", err)
		}
		n.Enum = &capnpcompat.EnumNode{}
		for i := 0; i < ens.Len(); i++ {
			en := ens.At(i)
			ename, err := en.Name()
			if err != nil {
				return fail("enumerant name", err)
			}
			n.Enum.Enumerants = append(n.Enum.Enumerants, capnpcompat.Enumerant{Name: ename, CodeOrder: en.CodeOrder()})
		}
	case schema.Node_Which_interface:
		n.Kind = capnpcompat.NodeInterface
		ms, err := sn.Interface().Methods()
		if err != nil {
			return fail("methods", err)
		}
		n.Interface = &capnpcompat.InterfaceNode{}
		for i := 0; i < ms.Len(); i++ {
			m := ms.At(i)
			mname, err := m.Name()
			if err != nil {
				return fail("method name", err)
			}
			n.Interface.Methods = append(n.Interface.Methods, capnpcompat.Method{
				Name:             mname,
				CodeOrder:        m.CodeOrder(),
				ParamStructType:  m.ParamStructType(),
				ResultStructType: m.ResultStructType(),
			})
		}
	case schema.Node_Which_const:
		n.Kind = capnpcompat.NodeConst
		st, err := sn.Const().Type()
		if err != nil {
			return fail("const type", err)
		}
		t, err := convertType(st)
		if err != nil {
			return fail("const type", err)
		}
		sv, err := sn.Const().Value()
		if err != nil {
			return fail("const value", err)
		}
		v, err := convertValue(sv)
		if err != nil {
			return fail("const value", err)
		}
		n.Const = &capnpcompat.ConstNode{Type: t, Value: v}
	default:
		return fail("node", fmt.Errorf("unknown node kind %d", sn.Which()))
	}
	return n, nil
}

func convertStruct(ss schema.Node_structNode) (*capnpcompat.StructNode, error) {
	fields, err := ss.Fields()
	if err != nil {
		return nil, err
	}
	body := &capnpcompat.StructNode{
		DiscriminantCount: ss.DiscriminantCount(),
		IsGroup:           ss.IsGroup(),
		Fields:            make([]capnpcompat.Field, 0, fields.Len()),
	}
	for i := 0; i < fields.Len(); i++ {
		f, err := convertField(fields.At(i))
		if err != nil {
			return nil, err
		}
		body.Fields = append(body.Fields, f)
	}
	return body, nil
}

func convertField(sf schema.Field) (capnpcompat.Field, error) {
	name, err := sf.Name()
	if err != nil {
		return capnpcompat.Field{}, fmt.Errorf("field name: %w", err)
	}
	f := capnpcompat.Field{
		Name:              name,
		CodeOrder:         sf.CodeOrder(),
		DiscriminantValue: sf.DiscriminantValue(),
	}
	switch sf.Which() {
	case schema.Field_Which_group:
		f.Kind = capnpcompat.FieldGroup
		f.GroupID = sf.Group().TypeId()
	case schema.Field_Which_slot:
		f.Kind = capnpcompat.FieldSlot
		st, err := sf.Slot().Type()
		if err != nil {
			return f, fmt.Errorf("field %q type: %w", name, err)
		}
		t, err := convertType(st)
		if err != nil {
			return f, fmt.Errorf("field %q: %w", name, err)
		}
		f.Slot = &capnpcompat.Slot{Type: t}
		if sf.Slot().HadExplicitDefault() {
			sv, err := sf.Slot().DefaultValue()
			if err != nil {
				return f, fmt.Errorf("field %q default: %w", name, err)
			}
			v, err := convertValue(sv)
			if err != nil {
				return f, fmt.Errorf("field %q default: %w", name, err)
			}
			f.Slot.Default = &v
		}
	default:
		return f, fmt.Errorf("field %q: unknown field kind %d", name, sf.Which())
	}
	return f, nil
}

func convertType(st schema.Type) (capnpcompat.Type, error) {
	switch st.Which() {
	case schema.Type_Which_void:
		return capnpcompat.Type{Kind: capnpcompat.TypeVoid}, nil
	case schema.Type_Which_bool:
		return capnpcompat.Type{Kind: capnpcompat.TypeBool}, nil
	case schema.Type_Which_int8:
		return capnpcompat.Type{Kind: capnpcompat.TypeInt8}, nil
	case schema.Type_Which_int16:
		return capnpcompat.Type{Kind: capnpcompat.TypeInt16}, nil
	case schema.Type_Which_int32:
		return capnpcompat.Type{Kind: capnpcompat.TypeInt32}, nil
	case schema.Type_Which_int64:
		return capnpcompat.Type{Kind: capnpcompat.TypeInt64}, nil
	case schema.Type_Which_uint8:
		return capnpcompat.Type{Kind: capnpcompat.TypeUint8}, nil
	case schema.Type_Which_uint16:
		return capnpcompat.Type{Kind: capnpcompat.TypeUint16}, nil
	case schema.Type_Which_uint32:
		return capnpcompat.Type{Kind: capnpcompat.TypeUint32}, nil
	case schema.Type_Which_uint64:
		return capnpcompat.Type{Kind: capnpcompat.TypeUint64}, nil
	case schema.Type_Which_float32:
		return capnpcompat.Type{Kind: capnpcompat.TypeFloat32}, nil
	case schema.Type_Which_float64:
		return capnpcompat.Type{Kind: capnpcompat.TypeFloat64}, nil
	case schema.Type_Which_text:
		return capnpcompat.Type{Kind: capnpcompat.TypeText}, nil
	case schema.Type_Which_data:
		return capnpcompat.Type{Kind: capnpcompat.TypeData}, nil
	case schema.Type_Which_list:
		et, err := st.List().ElementType()
		if err != nil {
			return capnpcompat.Type{}, fmt.Errorf("list element type: %w", err)
		}
		elem, err := convertType(et)
		if err != nil {
			return capnpcompat.Type{}, err
		}
		return capnpcompat.ListOf(elem), nil
	case schema.Type_Which_enum:
		return capnpcompat.Type{Kind: capnpcompat.TypeEnum, TypeID: st.Enum().TypeId()}, nil
	case schema.Type_Which_structType:
		return capnpcompat.Type{Kind: capnpcompat.TypeStruct, TypeID: st.StructType().TypeId()}, nil
	case schema.Type_Which_interface:
		return capnpcompat.Type{Kind: capnpcompat.TypeInterface, TypeID: st.Interface().TypeId()}, nil
	case schema.Type_Which_anyPointer:
		t := capnpcompat.Type{Kind: capnpcompat.TypeAnyPointer}
		switch st.AnyPointer().Which() {
		case schema.Type_anyPointer_Which_unconstrained:
			t.AnyPointer = capnpcompat.AnyPointerUnconstrained
		case schema.Type_anyPointer_Which_parameter:
			t.AnyPointer = capnpcompat.AnyPointerParameter
		case schema.Type_anyPointer_Which_implicitMethodParameter:
			t.AnyPointer = capnpcompat.AnyPointerImplicitMethodParameter
		default:
			return capnpcompat.Type{}, fmt.Errorf("unknown AnyPointer kind %d", st.AnyPointer().Which())
		}
		return t, nil
	}
	return capnpcompat.Type{}, fmt.Errorf("unknown type kind %d", st.Which())
}

func convertValue(sv schema.Value) (capnpcompat.Value, error) {
	switch sv.Which() {
	case schema.Value_Which_void:
		return capnpcompat.Value{Kind: capnpcompat.TypeVoid}, nil
	case schema.Value_Which_bool:
		return capnpcompat.Value{Kind: capnpcompat.TypeBool, Bool: sv.Bool()}, nil
	case schema.Value_Which_int8:
		return capnpcompat.Value{Kind: capnpcompat.TypeInt8, Int: int64(sv.Int8())}, nil
	case schema.Value_Which_int16:
		return capnpcompat.Value{Kind: capnpcompat.TypeInt16, Int: int64(sv.Int16())}, nil
	case schema.Value_Which_int32:
		return capnpcompat.Value{Kind: capnpcompat.TypeInt32, Int: int64(sv.Int32())}, nil
	case schema.Value_Which_int64:
		return capnpcompat.Value{Kind: capnpcompat.TypeInt64, Int: sv.Int64()}, nil
	case schema.Value_Which_uint8:
		return capnpcompat.Value{Kind: capnpcompat.TypeUint8, Uint: uint64(sv.Uint8())}, nil
	case schema.Value_Which_uint16:
		return capnpcompat.Value{Kind: capnpcompat.TypeUint16, Uint: uint64(sv.Uint16())}, nil
	case schema.Value_Which_uint32:
		return capnpcompat.Value{Kind: capnpcompat.TypeUint32, Uint: uint64(sv.Uint32())}, nil
	case schema.Value_Which_uint64:
		return capnpcompat.Value{Kind: capnpcompat.TypeUint64, Uint: sv.Uint64()}, nil
	case schema.Value_Which_float32:
		return capnpcompat.Value{Kind: capnpcompat.TypeFloat32, Float32: sv.Float32()}, nil
	case schema.Value_Which_float64:
		return capnpcompat.Value{Kind: capnpcompat.TypeFloat64, Float64: sv.Float64()}, nil
	case schema.Value_Which_text:
		s, err := sv.Text()
		if err != nil {
			return capnpcompat.Value{}, err
		}
		return capnpcompat.Value{Kind: capnpcompat.TypeText, Text: s}, nil
	case schema.Value_Which_data:
		b, err := sv.Data()
		if err != nil {
			return capnpcompat.Value{}, err
		}
		return capnpcompat.Value{Kind: capnpcompat.TypeData, Data: append([]byte(nil), b...)}, nil
	case schema.Value_Which_list:
		p, err := sv.List()
		if err != nil {
			return capnpcompat.Value{}, err
		}
		b, err := ptrBytes(p)
		if err != nil {
			return capnpcompat.Value{}, fmt.Errorf("list default: %w", err)
		}
		return capnpcompat.Value{Kind: capnpcompat.TypeList, List: b}, nil
	case schema.Value_Which_enum:
		return capnpcompat.Value{Kind: capnpcompat.TypeEnum, Enum: sv.Enum()}, nil
	case schema.Value_Which_structValue:
		p, err := sv.StructValue()
		if err != nil {
			return capnpcompat.Value{}, err
		}
		b, err := ptrBytes(p)
		if err != nil {
			return capnpcompat.Value{}, fmt.Errorf("struct default: %w", err)
		}
		return capnpcompat.Value{Kind: capnpcompat.TypeStruct, Composite: b}, nil
	case schema.Value_Which_interface:
		return capnpcompat.Value{Kind: capnpcompat.TypeInterface}, nil
	case schema.Value_Which_anyPointer:
		p, err := sv.AnyPointer()
		if err != nil {
			return capnpcompat.Value{}, err
		}
		b, err := ptrBytes(p)
		if err != nil {
			return capnpcompat.Value{}, fmt.Errorf("AnyPointer default: %w", err)
		}
		return capnpcompat.Value{Kind: capnpcompat.TypeAnyPointer, Composite: b}, nil
	}
	return capnpcompat.Value{}, fmt.Errorf("unknown value kind %d", sv.Which())
}

// ptrBytes copies the object p points at into a fresh single-segment message
// and returns its encoded words. A null pointer yields nil.
func ptrBytes(p capnp.Ptr) ([]byte, error) {
	if !p.IsValid() {
		return nil, nil
	}
	msg, _, err := capnp.NewMessage(capnp.SingleSegment(nil))
	if err != nil {
		return nil, err
	}
	if err := msg.SetRoot(p); err != nil {
		return nil, err
	}
	return msg.Marshal()
}
