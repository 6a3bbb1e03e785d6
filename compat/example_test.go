package compat_test

import (
	"fmt"
	"log"

	"github.com/openbindings/capnpcompat"
	"github.com/openbindings/capnpcompat/compat"
)

func ExampleChecker_Check() {
	base, err := capnpcompat.LoadDocument("../testdata/point_base.yaml")
	if err != nil {
		log.Fatal(err)
	}
	changed, err := capnpcompat.LoadDocument("../testdata/point_swapped.yaml")
	if err != nil {
		log.Fatal(err)
	}

	report, err := compat.New(base, changed).Check()
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(report)
	// Output:
	// point.capnp:Point.x is broken: field-identity: code order 0 was "x", now "y"
	// point.capnp:Point.y is broken: field-identity: code order 1 was "y", now "x"
	// broken (2 findings)
}

func ExampleIsBrokenType() {
	i64 := capnpcompat.Type{Kind: capnpcompat.TypeInt64}
	i32 := capnpcompat.Type{Kind: capnpcompat.TypeInt32}
	fmt.Println(compat.IsBrokenType(capnpcompat.ListOf(i64), capnpcompat.ListOf(i32)))
	// Output: true
}
