// Package capnpid parses and formats Cap'n Proto 64-bit identifiers.
//
// Identifiers are written the way the schema language writes them, `@0x85150b117366d14b`.
// Parse also accepts a bare `0x` prefix and plain decimal for convenience.
package capnpid

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// ID is a Cap'n Proto node identifier that round-trips through its `@0x…` form.
type ID uint64

func (id ID) String() string {
	return Format(uint64(id))
}

var (
	hexRe = regexp.MustCompile(`^@?0[xX][0-9A-Fa-f]{1,16}$`)
	decRe = regexp.MustCompile(`^[0-9]{1,20}$`)
)

// Parse parses an identifier token.
func Parse(s string) (uint64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.New("capnp id: empty")
	}
	switch {
	case hexRe.MatchString(s):
		digits := s[strings.IndexAny(s, "xX")+1:]
		v, err := strconv.ParseUint(digits, 16, 64)
		if err != nil {
			return 0, fmt.Errorf("capnp id: invalid %q: %w", s, err)
		}
		// The schema language requires the high bit on @0x ids; zero is never assigned.
		if strings.HasPrefix(s, "@") && v == 0 {
			return 0, fmt.Errorf("capnp id: zero id %q", s)
		}
		return v, nil
	case decRe.MatchString(s):
		v, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("capnp id: invalid %q: %w", s, err)
		}
		return v, nil
	default:
		return 0, fmt.Errorf("capnp id: invalid %q", s)
	}
}

// IsID reports whether s is a syntactically valid identifier token.
func IsID(s string) bool {
	_, err := Parse(s)
	return err == nil
}

// Format renders id as `@0x` followed by 16 lowercase hex digits.
func Format(id uint64) string {
	return fmt.Sprintf("@0x%016x", id)
}

// Normalize parses s and returns its canonical `@0x…` form.
func Normalize(s string) (string, error) {
	v, err := Parse(s)
	if err != nil {
		return "", err
	}
	return Format(v), nil
}

// UnmarshalYAML accepts either a token string or a YAML integer.
func (id *ID) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind != yaml.ScalarNode {
		return fmt.Errorf("capnp id: line %d: expected scalar", n.Line)
	}
	v, err := Parse(n.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", n.Line, err)
	}
	*id = ID(v)
	return nil
}

// MarshalYAML writes the canonical token form.
func (id ID) MarshalYAML() (any, error) {
	return id.String(), nil
}

// MarshalText writes the canonical token form, so ids render as strings in JSON.
func (id ID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalText parses any form accepted by Parse.
func (id *ID) UnmarshalText(b []byte) error {
	v, err := Parse(string(b))
	if err != nil {
		return err
	}
	*id = ID(v)
	return nil
}
