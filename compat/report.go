package compat

import (
	"fmt"
	"strings"

	"github.com/openbindings/capnpcompat/capnpid"
)

// Reason classifies a breaking change.
type Reason string

const (
	ReasonRemoved        Reason = "removed"
	ReasonKindChanged    Reason = "kind-changed"
	ReasonFieldIdentity  Reason = "field-identity"
	ReasonFieldKind      Reason = "field-kind"
	ReasonTypeChanged    Reason = "type-changed"
	ReasonDefaultChanged Reason = "default-changed"
)

// Finding names one incompatible declaration or field.
type Finding struct {
	NodeID capnpid.ID `json:"nodeId"`
	Node   string     `json:"node"`
	Field  string     `json:"field,omitempty"`
	Reason Reason     `json:"reason"`
	Detail string     `json:"detail,omitempty"`
}

func (f Finding) String() string {
	where := f.Node
	if where == "" {
		where = f.NodeID.String()
	}
	if f.Field != "" {
		where += "." + f.Field
	}
	if f.Detail == "" {
		return fmt.Sprintf("%s is broken: %s", where, f.Reason)
	}
	return fmt.Sprintf("%s is broken: %s: %s", where, f.Reason, f.Detail)
}

// Report is the outcome of a comparison run.
type Report struct {
	Broken   bool         `json:"broken"`
	Checked  []capnpid.ID `json:"checked"`
	Findings []Finding    `json:"findings"`
}

// Summary returns a one-line verdict.
func (r *Report) Summary() string {
	if r == nil {
		return "no report"
	}
	if !r.Broken {
		return fmt.Sprintf("compatible (%d declarations checked)", len(r.Checked))
	}
	return fmt.Sprintf("broken (%d findings)", len(r.Findings))
}

// String lists every finding, one per line, followed by the summary.
func (r *Report) String() string {
	if r == nil {
		return "no report"
	}
	var b strings.Builder
	for _, f := range r.Findings {
		b.WriteString(f.String())
		b.WriteByte('\n')
	}
	b.WriteString(r.Summary())
	return b.String()
}
