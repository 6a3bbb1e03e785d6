package compat

import "github.com/openbindings/capnpcompat"

// IsBrokenType reports whether changing a slot's type from base to changed breaks the wire format.
//
// Primitive kinds must match exactly; widening or narrowing an integer is breaking.
// Lists recurse into element types. Enum, struct and interface types must reference
// the same declaration id. A struct may become a generic parameter
// (AnyPointer(parameter)) but not an unconstrained or implicit-method AnyPointer.
// Two AnyPointer slots are always treated as compatible.
func IsBrokenType(base, changed capnpcompat.Type) bool {
	if base.Kind.IsPrimitive() {
		return base.Kind != changed.Kind
	}
	switch base.Kind {
	case capnpcompat.TypeList:
		if changed.Kind != capnpcompat.TypeList {
			return true
		}
		if base.Element == nil || changed.Element == nil {
			return base.Element != changed.Element
		}
		return IsBrokenType(*base.Element, *changed.Element)
	case capnpcompat.TypeEnum, capnpcompat.TypeInterface:
		return changed.Kind != base.Kind || changed.TypeID != base.TypeID
	case capnpcompat.TypeStruct:
		switch changed.Kind {
		case capnpcompat.TypeStruct:
			return changed.TypeID != base.TypeID
		case capnpcompat.TypeAnyPointer:
			return changed.AnyPointer != capnpcompat.AnyPointerParameter
		}
		return true
	case capnpcompat.TypeAnyPointer:
		// TODO: compare parameter scopes and indexes once snapshots carry brand information.
		return changed.Kind != capnpcompat.TypeAnyPointer
	}
	return true
}
