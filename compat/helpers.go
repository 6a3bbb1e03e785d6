package compat

import (
	"fmt"

	"github.com/openbindings/capnpcompat"
)

func describeField(f capnpcompat.Field) string {
	if !f.InUnion() {
		return fmt.Sprintf("%q", f.Name)
	}
	return fmt.Sprintf("%q (discriminant %d)", f.Name, f.DiscriminantValue)
}

func describeDefault(s *capnpcompat.Slot) string {
	if s.Default == nil {
		return "no default"
	}
	return "default " + s.Default.String()
}
