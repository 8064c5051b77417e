// Package codegen turns parsed procedure signatures into smoke-call records
// and assembles them into one compilation unit.
package codegen

import "github.com/google/uuid"

// Statement is one line of generated code with a stable identifier.
type Statement struct {
	ID   string
	Text string
}

func newStatement(text string) Statement {
	return Statement{ID: uuid.NewString(), Text: text}
}

// Record is the code generated for one procedure: its variable declarations
// followed by the call.
type Record struct {
	ID        string
	Proc      string
	Variables []Statement
	Call      Statement

	// Commented marks a call that could not be built and was turned into a
	// comment. It counts as a synthesis failure.
	Commented bool
	// Inert marks text carried verbatim (comments and blank lines of a raw
	// unit). Inert records are neither counted nor removable.
	Inert bool
	// Err is the reason a record was commented.
	Err error
}

// Statements returns the variable declarations followed by the call.
func (r *Record) Statements() []Statement {
	out := make([]Statement, 0, len(r.Variables)+1)
	out = append(out, r.Variables...)
	if r.Call.Text != "" || r.Inert {
		out = append(out, r.Call)
	}
	return out
}

// Lines returns the record's source lines.
func (r *Record) Lines() []string {
	stmts := r.Statements()
	lines := make([]string, len(stmts))
	for i, s := range stmts {
		lines[i] = s.Text
	}
	return lines
}

// Removable reports whether the repair loop may take this record out.
func (r *Record) Removable() bool {
	return !r.Inert && !r.Commented
}
