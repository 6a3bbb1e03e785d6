package capnpcompat

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/openbindings/capnpcompat/capnpid"
)

// CurrentFormat is the document format version written by EncodeDocument.
const CurrentFormat = MaxTestedFormat

// Document is the YAML form of a Snapshot.
//
// Types are spelled the way the schema language spells them, e.g. `Int32`,
// `List(Text)`, `Struct(@0x9eb32e19f86ee174)`, `AnyPointer(parameter)`.
type Document struct {
	Format    string         `yaml:"format"`
	Requested []capnpid.ID   `yaml:"requested,omitempty"`
	Nodes     []DocumentNode `yaml:"nodes"`
}

// DocumentNode is one declaration in a Document.
type DocumentNode struct {
	ID     capnpid.ID       `yaml:"id"`
	Name   string           `yaml:"name,omitempty"`
	Kind   string           `yaml:"kind"`
	Nested []DocumentNested `yaml:"nested,omitempty"`

	// struct
	Fields            []DocumentField `yaml:"fields,omitempty"`
	DiscriminantCount uint16          `yaml:"discriminantCount,omitempty"`
	IsGroup           bool            `yaml:"isGroup,omitempty"`

	// enum: code order is the list index
	Enumerants []string `yaml:"enumerants,omitempty"`

	// interface
	Methods []DocumentMethod `yaml:"methods,omitempty"`

	// const
	Type  string         `yaml:"type,omitempty"`
	Value *DocumentValue `yaml:"value,omitempty"`
}

// DocumentNested references a nested declaration.
type DocumentNested struct {
	Name string     `yaml:"name"`
	ID   capnpid.ID `yaml:"id"`
}

// DocumentField is one struct field. Exactly one of Type or Group is set.
type DocumentField struct {
	Name      string `yaml:"name"`
	CodeOrder uint16 `yaml:"codeOrder"`
	// Discriminant is omitted for fields outside a union.
	Discriminant *uint16        `yaml:"discriminant,omitempty"`
	Type         string         `yaml:"type,omitempty"`
	Default      *DocumentValue `yaml:"default,omitempty"`
	Group        capnpid.ID     `yaml:"group,omitempty"`
}

// DocumentValue holds a default or constant value as written, since its
// meaning depends on the declared type next to it. Data, List and Struct
// payloads are tagged !!binary (base64); an untagged string is taken as
// the raw bytes.
type DocumentValue struct {
	node *yaml.Node
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (v *DocumentValue) UnmarshalYAML(n *yaml.Node) error {
	v.node = n
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (v *DocumentValue) MarshalYAML() (any, error) {
	return v.node, nil
}

// DocumentMethod is one interface method.
type DocumentMethod struct {
	Name    string     `yaml:"name"`
	Params  capnpid.ID `yaml:"params,omitempty"`
	Results capnpid.ID `yaml:"results,omitempty"`
}

// LoadDocument reads a snapshot document from a file.
func LoadDocument(path string) (*Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open snapshot document: %w", err)
	}
	defer f.Close()
	s, err := DecodeDocument(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// DecodeDocument parses a YAML snapshot document and builds a Snapshot from it.
func DecodeDocument(r io.Reader) (*Snapshot, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var doc Document
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("empty snapshot document")
		}
		return nil, fmt.Errorf("parse snapshot document: %w", err)
	}
	return doc.Snapshot()
}

// Snapshot converts the document into a Snapshot.
func (d *Document) Snapshot() (*Snapshot, error) {
	ok, err := IsSupportedFormat(d.Format)
	if err != nil {
		return nil, fmt.Errorf("format: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("format: unsupported version %q (supported %s-%s)", d.Format, MinSupportedFormat, MaxTestedFormat)
	}

	nodes := make([]Node, 0, len(d.Nodes))
	for i, dn := range d.Nodes {
		n, err := dn.node()
		if err != nil {
			return nil, fmt.Errorf("nodes[%d] %s: %w", i, dn.ID, err)
		}
		nodes = append(nodes, n)
	}
	requested := make([]uint64, len(d.Requested))
	for i, id := range d.Requested {
		requested[i] = uint64(id)
	}
	return NewSnapshot(nodes, requested)
}

func (dn DocumentNode) node() (Node, error) {
	kind, err := ParseNodeKind(dn.Kind)
	if err != nil {
		return Node{}, err
	}
	n := Node{ID: uint64(dn.ID), DisplayName: dn.Name, Kind: kind}
	for _, nn := range dn.Nested {
		n.Nested = append(n.Nested, NestedNode{Name: nn.Name, ID: uint64(nn.ID)})
	}

	switch kind {
	case NodeStruct:
		n.Struct = &StructNode{DiscriminantCount: dn.DiscriminantCount, IsGroup: dn.IsGroup}
		for _, df := range dn.Fields {
			f, err := df.field()
			if err != nil {
				return Node{}, fmt.Errorf("field %q: %w", df.Name, err)
			}
			n.Struct.Fields = append(n.Struct.Fields, f)
		}
	case NodeEnum:
		n.Enum = &EnumNode{}
		for i, name := range dn.Enumerants {
			n.Enum.Enumerants = append(n.Enum.Enumerants, Enumerant{Name: name, CodeOrder: uint16(i)})
		}
	case NodeInterface:
		n.Interface = &InterfaceNode{}
		for i, m := range dn.Methods {
			n.Interface.Methods = append(n.Interface.Methods, Method{
				Name:             m.Name,
				CodeOrder:        uint16(i),
				ParamStructType:  uint64(m.Params),
				ResultStructType: uint64(m.Results),
			})
		}
	case NodeConst:
		t, err := ParseType(dn.Type)
		if err != nil {
			return Node{}, err
		}
		if dn.Value == nil || dn.Value.node == nil {
			if t.Kind != TypeVoid {
				return Node{}, errors.New("const without value")
			}
			n.Const = &ConstNode{Type: t, Value: Value{Kind: TypeVoid}}
			break
		}
		v, err := decodeValue(t, dn.Value.node)
		if err != nil {
			return Node{}, fmt.Errorf("value: %w", err)
		}
		n.Const = &ConstNode{Type: t, Value: v}
	}
	return n, nil
}

func (df DocumentField) field() (Field, error) {
	f := Field{Name: df.Name, CodeOrder: df.CodeOrder, DiscriminantValue: NoDiscriminant}
	if df.Discriminant != nil {
		f.DiscriminantValue = *df.Discriminant
	}
	switch {
	case df.Type != "" && df.Group != 0:
		return Field{}, errors.New("field has both type and group")
	case df.Group != 0:
		if df.Default != nil {
			return Field{}, errors.New("group field cannot have a default")
		}
		f.Kind = FieldGroup
		f.GroupID = uint64(df.Group)
	case df.Type != "":
		t, err := ParseType(df.Type)
		if err != nil {
			return Field{}, err
		}
		f.Kind = FieldSlot
		f.Slot = &Slot{Type: t}
		if df.Default != nil {
			v, err := decodeValue(t, df.Default.node)
			if err != nil {
				return Field{}, fmt.Errorf("default: %w", err)
			}
			f.Slot.Default = &v
		}
	default:
		return Field{}, errors.New("field needs a type or a group")
	}
	return f, nil
}

var primitiveTypes = map[string]TypeKind{
	"Void":    TypeVoid,
	"Bool":    TypeBool,
	"Int8":    TypeInt8,
	"Int16":   TypeInt16,
	"Int32":   TypeInt32,
	"Int64":   TypeInt64,
	"UInt8":   TypeUint8,
	"UInt16":  TypeUint16,
	"UInt32":  TypeUint32,
	"UInt64":  TypeUint64,
	"Float32": TypeFloat32,
	"Float64": TypeFloat64,
	"Text":    TypeText,
	"Data":    TypeData,
}

// ParseType parses the document spelling of a type. It is the inverse of Type.String.
func ParseType(s string) (Type, error) {
	s = strings.TrimSpace(s)
	if k, ok := primitiveTypes[s]; ok {
		return Type{Kind: k}, nil
	}
	if s == "AnyPointer" {
		return Type{Kind: TypeAnyPointer}, nil
	}
	open := strings.IndexByte(s, '(')
	if open <= 0 || !strings.HasSuffix(s, ")") {
		return Type{}, fmt.Errorf("invalid type %q", s)
	}
	head, arg := s[:open], strings.TrimSpace(s[open+1:len(s)-1])
	switch head {
	case "List":
		elem, err := ParseType(arg)
		if err != nil {
			return Type{}, err
		}
		return ListOf(elem), nil
	case "Enum", "Struct", "Interface":
		id, err := capnpid.Parse(arg)
		if err != nil {
			return Type{}, fmt.Errorf("type %q: %w", s, err)
		}
		kind := map[string]TypeKind{"Enum": TypeEnum, "Struct": TypeStruct, "Interface": TypeInterface}[head]
		return Type{Kind: kind, TypeID: id}, nil
	case "AnyPointer":
		for _, k := range []AnyPointerKind{AnyPointerUnconstrained, AnyPointerParameter, AnyPointerImplicitMethodParameter} {
			if k.String() == arg {
				return Type{Kind: TypeAnyPointer, AnyPointer: k}, nil
			}
		}
		return Type{}, fmt.Errorf("type %q: unknown AnyPointer kind", s)
	}
	return Type{}, fmt.Errorf("invalid type %q", s)
}

func decodeValue(t Type, n *yaml.Node) (Value, error) {
	v := Value{Kind: t.Kind}
	if n.Kind != yaml.ScalarNode {
		return Value{}, fmt.Errorf("line %d: expected scalar", n.Line)
	}
	raw := n.Value
	var err error
	bytesOf := func() []byte {
		if n.Tag != "!!binary" {
			return []byte(raw)
		}
		var b []byte
		b, err = base64.StdEncoding.DecodeString(strings.Join(strings.Fields(raw), ""))
		return b
	}
	switch t.Kind {
	case TypeVoid, TypeInterface:
	case TypeBool:
		v.Bool, err = strconv.ParseBool(raw)
	case TypeInt8, TypeInt16, TypeInt32, TypeInt64:
		v.Int, err = strconv.ParseInt(raw, 0, intBits(t.Kind))
	case TypeUint8, TypeUint16, TypeUint32, TypeUint64:
		v.Uint, err = strconv.ParseUint(raw, 0, intBits(t.Kind))
	case TypeFloat32:
		var f float64
		f, err = parseFloat64(raw)
		v.Float32 = float32(f)
	case TypeFloat64:
		v.Float64, err = parseFloat64(raw)
	case TypeText:
		v.Text = raw
	case TypeData:
		v.Data = bytesOf()
	case TypeList:
		v.List = bytesOf()
	case TypeEnum:
		var u uint64
		u, err = strconv.ParseUint(raw, 0, 16)
		v.Enum = uint16(u)
	case TypeStruct, TypeAnyPointer:
		v.Composite = bytesOf()
	default:
		return Value{}, fmt.Errorf("unsupported value kind %s", t.Kind)
	}
	if err != nil {
		return Value{}, fmt.Errorf("line %d: %s value %q: %w", n.Line, t.Kind, raw, err)
	}
	return v, nil
}

func parseFloat64(raw string) (float64, error) {
	switch raw {
	case ".inf", "inf":
		return math.Inf(1), nil
	case "-.inf", "-inf":
		return math.Inf(-1), nil
	case ".nan", "nan":
		return math.NaN(), nil
	}
	return strconv.ParseFloat(raw, 64)
}

func intBits(k TypeKind) int {
	switch k {
	case TypeInt8, TypeUint8:
		return 8
	case TypeInt16, TypeUint16:
		return 16
	case TypeInt32, TypeUint32:
		return 32
	default:
		return 64
	}
}

// EncodeDocument writes s as a YAML snapshot document, nodes in ascending id order.
func EncodeDocument(w io.Writer, s *Snapshot) error {
	doc := Document{Format: CurrentFormat}
	for _, id := range s.Requested() {
		doc.Requested = append(doc.Requested, capnpid.ID(id))
	}
	for _, id := range s.IDs() {
		n, _ := s.Node(id)
		doc.Nodes = append(doc.Nodes, documentNode(n))
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		return fmt.Errorf("encode snapshot document: %w", err)
	}
	return enc.Close()
}

func documentNode(n *Node) DocumentNode {
	dn := DocumentNode{ID: capnpid.ID(n.ID), Name: n.DisplayName, Kind: n.Kind.String()}
	for _, nn := range n.Nested {
		dn.Nested = append(dn.Nested, DocumentNested{Name: nn.Name, ID: capnpid.ID(nn.ID)})
	}
	switch n.Kind {
	case NodeStruct:
		dn.DiscriminantCount = n.Struct.DiscriminantCount
		dn.IsGroup = n.Struct.IsGroup
		for _, f := range n.Struct.Fields {
			df := DocumentField{Name: f.Name, CodeOrder: f.CodeOrder}
			if f.InUnion() {
				d := f.DiscriminantValue
				df.Discriminant = &d
			}
			if f.Kind == FieldGroup {
				df.Group = capnpid.ID(f.GroupID)
			} else {
				df.Type = f.Slot.Type.String()
				if f.Slot.Default != nil {
					df.Default = encodeValue(*f.Slot.Default)
				}
			}
			dn.Fields = append(dn.Fields, df)
		}
	case NodeEnum:
		for _, e := range n.Enum.Enumerants {
			dn.Enumerants = append(dn.Enumerants, e.Name)
		}
	case NodeInterface:
		for _, m := range n.Interface.Methods {
			dn.Methods = append(dn.Methods, DocumentMethod{
				Name:    m.Name,
				Params:  capnpid.ID(m.ParamStructType),
				Results: capnpid.ID(m.ResultStructType),
			})
		}
	case NodeConst:
		dn.Type = n.Const.Type.String()
		dn.Value = encodeValue(n.Const.Value)
	}
	return dn
}

func encodeValue(v Value) *DocumentValue {
	n := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str"}
	switch v.Kind {
	case TypeVoid, TypeInterface:
		// left as an empty string: a null would read back as no value at all
	case TypeBool:
		n.Tag, n.Value = "!!bool", strconv.FormatBool(v.Bool)
	case TypeInt8, TypeInt16, TypeInt32, TypeInt64:
		n.Tag, n.Value = "!!int", strconv.FormatInt(v.Int, 10)
	case TypeUint8, TypeUint16, TypeUint32, TypeUint64:
		n.Tag, n.Value = "!!int", strconv.FormatUint(v.Uint, 10)
	case TypeFloat32:
		n.Tag, n.Value = "!!float", strconv.FormatFloat(float64(v.Float32), 'g', -1, 32)
	case TypeFloat64:
		n.Tag, n.Value = "!!float", strconv.FormatFloat(v.Float64, 'g', -1, 64)
	case TypeText:
		n.Value = v.Text
	case TypeData:
		n.Tag, n.Value = "!!binary", base64.StdEncoding.EncodeToString(v.Data)
	case TypeList:
		n.Tag, n.Value = "!!binary", base64.StdEncoding.EncodeToString(v.List)
	case TypeEnum:
		n.Tag, n.Value = "!!int", strconv.FormatUint(uint64(v.Enum), 10)
	default:
		n.Tag, n.Value = "!!binary", base64.StdEncoding.EncodeToString(v.Composite)
	}
	return &DocumentValue{node: n}
}
