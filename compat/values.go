package compat

import (
	"bytes"
	"math"

	"github.com/openbindings/capnpcompat"
)

// IsBrokenDefault reports whether the default values of two slots differ.
//
// Presence matters: adding or removing an explicit default is breaking, even
// when the value equals the implicit zero, unless zeroEquivalent is set.
func IsBrokenDefault(base, changed *capnpcompat.Slot, zeroEquivalent bool) bool {
	bd, cd := base.Default, changed.Default
	switch {
	case bd == nil && cd == nil:
		return false
	case bd == nil:
		return !(zeroEquivalent && cd.IsZero())
	case cd == nil:
		return !(zeroEquivalent && bd.IsZero())
	}
	return IsBrokenValue(*bd, *cd)
}

// IsBrokenValue reports whether two values differ.
//
// Scalars compare bit for bit, so 0.0 and -0.0 differ and NaN equals an identical NaN.
// Lists compare by encoded bytes. Struct, interface and AnyPointer values are
// equal whenever their kinds are; a struct value may become an AnyPointer value.
func IsBrokenValue(base, changed capnpcompat.Value) bool {
	if base.Kind != changed.Kind {
		return !(base.Kind == capnpcompat.TypeStruct && changed.Kind == capnpcompat.TypeAnyPointer)
	}
	switch base.Kind {
	case capnpcompat.TypeVoid:
		return false
	case capnpcompat.TypeBool:
		return base.Bool != changed.Bool
	case capnpcompat.TypeInt8, capnpcompat.TypeInt16, capnpcompat.TypeInt32, capnpcompat.TypeInt64:
		return base.Int != changed.Int
	case capnpcompat.TypeUint8, capnpcompat.TypeUint16, capnpcompat.TypeUint32, capnpcompat.TypeUint64:
		return base.Uint != changed.Uint
	case capnpcompat.TypeFloat32:
		return math.Float32bits(base.Float32) != math.Float32bits(changed.Float32)
	case capnpcompat.TypeFloat64:
		return math.Float64bits(base.Float64) != math.Float64bits(changed.Float64)
	case capnpcompat.TypeText:
		return base.Text != changed.Text
	case capnpcompat.TypeData:
		return string(base.Data) != string(changed.Data)
	case capnpcompat.TypeList:
		return !bytes.Equal(base.List, changed.List)
	case capnpcompat.TypeEnum:
		return base.Enum != changed.Enum
	case capnpcompat.TypeStruct, capnpcompat.TypeInterface, capnpcompat.TypeAnyPointer:
		return false
	}
	return true
}
