package compat

import (
	"fmt"

	"github.com/openbindings/capnpcompat"
	"github.com/openbindings/capnpcompat/capnpid"
)

// node implements the declaration rules: removal and kind changes are breaking,
// structs are compared field by field, and the verdict is OR-ed over every
// declaration nested under the base node.
func (r *run) node(id uint64, depth int) (bool, error) {
	if v, ok := r.memo[id]; ok {
		return v, nil
	}
	base, ok := r.base.Node(id)
	if !ok {
		return false, &capnpcompat.StructureError{ID: id, Message: "declaration not found in base snapshot"}
	}
	if r.skipped(base.DisplayName) {
		r.logger.Debug("skipping declaration", "node", base.DisplayName)
		r.memo[id] = false
		return false, nil
	}
	exit, err := r.enter(base, depth)
	if err != nil {
		return false, err
	}
	defer exit()

	changed, ok := r.changed.Node(id)
	if !ok {
		r.report(Finding{NodeID: capnpid.ID(id), Node: base.DisplayName, Reason: ReasonRemoved, Detail: fmt.Sprintf("%s removed", base.Kind)})
		r.memo[id] = true
		return true, nil
	}
	if base.Kind != changed.Kind {
		r.report(Finding{NodeID: capnpid.ID(id), Node: base.DisplayName, Reason: ReasonKindChanged, Detail: fmt.Sprintf("%s became %s", base.Kind, changed.Kind)})
		r.memo[id] = true
		return true, nil
	}

	var broken bool
	switch base.Kind {
	case capnpcompat.NodeFile, capnpcompat.NodeAnnotation:
		// Containers and annotations have no wire representation.
	case capnpcompat.NodeInterface, capnpcompat.NodeConst, capnpcompat.NodeEnum:
		// Methods, const values and enumerants are not compared.
	case capnpcompat.NodeStruct:
		broken, err = r.structs(base, changed, depth)
		if err != nil {
			return false, err
		}
	default:
		return false, &capnpcompat.StructureError{ID: id, Name: base.DisplayName, Message: fmt.Sprintf("unknown node kind %d", int(base.Kind))}
	}

	// Every child is visited so that all findings are reported; a clean child never clears an earlier verdict.
	for _, nn := range base.Nested {
		childBroken, err := r.node(nn.ID, depth+1)
		if err != nil {
			return false, err
		}
		broken = broken || childBroken
	}

	r.memo[id] = broken
	return broken, nil
}

// structs pairs fields by code order up to the shorter list. Trailing fields in
// changed are additions; the result is OR-ed over every pair.
func (r *run) structs(base, changed *capnpcompat.Node, depth int) (bool, error) {
	bf := base.Struct.FieldsByCodeOrder()
	cf := changed.Struct.FieldsByCodeOrder()
	n := min(len(bf), len(cf))

	var broken bool
	for i := 0; i < n; i++ {
		fieldBroken, err := r.field(base, bf[i], changed, cf[i], depth)
		if err != nil {
			return false, err
		}
		broken = broken || fieldBroken
	}
	return broken, nil
}

func (r *run) field(baseNode *capnpcompat.Node, base capnpcompat.Field, changedNode *capnpcompat.Node, changed capnpcompat.Field, depth int) (bool, error) {
	finding := Finding{NodeID: capnpid.ID(baseNode.ID), Node: baseNode.DisplayName, Field: base.Name}

	if base.Name != changed.Name || base.DiscriminantValue != changed.DiscriminantValue {
		finding.Reason = ReasonFieldIdentity
		finding.Detail = fmt.Sprintf("code order %d was %s, now %s", base.CodeOrder, describeField(base), describeField(changed))
		r.report(finding)
		return true, nil
	}
	if base.Kind != changed.Kind {
		finding.Reason = ReasonFieldKind
		finding.Detail = fmt.Sprintf("%s became %s", base.Kind, changed.Kind)
		r.report(finding)
		return true, nil
	}

	switch base.Kind {
	case capnpcompat.FieldGroup:
		return r.group(base, changed, changedNode, depth)
	case capnpcompat.FieldSlot:
		if IsBrokenType(base.Slot.Type, changed.Slot.Type) {
			finding.Reason = ReasonTypeChanged
			finding.Detail = fmt.Sprintf("%s became %s", base.Slot.Type, changed.Slot.Type)
			r.report(finding)
			return true, nil
		}
		if IsBrokenDefault(base.Slot, changed.Slot, r.zeroDefaults) {
			finding.Reason = ReasonDefaultChanged
			finding.Detail = fmt.Sprintf("%s became %s", describeDefault(base.Slot), describeDefault(changed.Slot))
			r.report(finding)
			return true, nil
		}
		return false, nil
	default:
		return false, &capnpcompat.StructureError{ID: baseNode.ID, Name: baseNode.DisplayName, Message: fmt.Sprintf("field %q: unknown field kind %d", base.Name, int(base.Kind))}
	}
}

// group compares a group's body. Group ids derive from the parent id and the
// field name, so they normally match and the body is compared like any other
// declaration.
func (r *run) group(base, changed capnpcompat.Field, changedParent *capnpcompat.Node, depth int) (bool, error) {
	if base.GroupID == changed.GroupID {
		return r.node(base.GroupID, depth+1)
	}

	bg, ok := r.base.Node(base.GroupID)
	if !ok {
		return false, &capnpcompat.StructureError{ID: base.GroupID, Message: fmt.Sprintf("group %q not found in base snapshot", base.Name)}
	}
	cg, ok := r.changed.Node(changed.GroupID)
	if !ok {
		return false, &capnpcompat.StructureError{ID: changed.GroupID, Name: changedParent.DisplayName, Message: fmt.Sprintf("group %q not found in changed snapshot", changed.Name)}
	}
	if bg.Kind != capnpcompat.NodeStruct || cg.Kind != capnpcompat.NodeStruct {
		return false, &capnpcompat.StructureError{ID: bg.ID, Name: bg.DisplayName, Message: fmt.Sprintf("group %q does not reference a struct", base.Name)}
	}
	exit, err := r.enter(bg, depth+1)
	if err != nil {
		return false, err
	}
	defer exit()
	return r.structs(bg, cg, depth+1)
}
