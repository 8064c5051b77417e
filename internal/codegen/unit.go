package codegen

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"nimp/internal/knowledge"
	"nimp/internal/logging"
)

// ErrNotRemovable is returned by Remove for records the repair loop must not touch.
var ErrNotRemovable = errors.New("record is not removable")

// DefaultImports are the standard modules every unit imports so that
// synthesized values for common library types resolve.
var DefaultImports = []string{
	"os", "tables", "strutils", "times", "heapqueue", "lists",
	"options", "asyncstreams", "nativesockets", "net", "deques",
}

// Unit is the aggregate compilation unit: a shared preamble followed by the
// records in generation order and the trailer of removed lines.
type Unit struct {
	Imports   []string
	Auxiliary []string
	Libraries []string
	Records   []*Record
	Trailer   []string

	raw     bool
	removed int
}

// NewUnit returns an empty unit importing imports (DefaultImports when nil).
func NewUnit(imports []string) *Unit {
	if imports == nil {
		imports = DefaultImports
	}
	return &Unit{
		Imports:   append([]string(nil), imports...),
		Auxiliary: []string{knowledge.EnumSentinel},
	}
}

// AddLibrary imports lib in the preamble. Duplicates are ignored.
func (u *Unit) AddLibrary(lib string) {
	for _, l := range u.Libraries {
		if l == lib {
			return
		}
	}
	u.Libraries = append(u.Libraries, lib)
}

// Add appends a record.
func (u *Unit) Add(r *Record) {
	u.Records = append(u.Records, r)
}

// Attempted is the number of procedures a call was generated for.
func (u *Unit) Attempted() int {
	n := 0
	for _, r := range u.Records {
		if !r.Inert {
			n++
		}
	}
	return n
}

// SynthesisFailures is the number of calls that were commented out.
func (u *Unit) SynthesisFailures() int {
	n := 0
	for _, r := range u.Records {
		if r.Commented && !r.Inert {
			n++
		}
	}
	return n
}

// Removed is the number of records the repair loop took out.
func (u *Unit) Removed() int { return u.removed }

// Compiled is the number of calls still standing.
func (u *Unit) Compiled() int {
	return u.Attempted() - u.SynthesisFailures() - u.removed
}

// Rendering is the unit's source text and the mapping from its 1-based line
// numbers back to records.
type Rendering struct {
	Text  string
	lines map[int]string
}

// RecordAt returns the ID of the record rendered on line.
func (r *Rendering) RecordAt(line int) (string, bool) {
	id, ok := r.lines[line]
	return id, ok
}

// Render produces the unit's source. The line map is rebuilt on every call.
func (u *Unit) Render() *Rendering {
	var lines []string
	owner := make(map[int]string)
	emit := func(text, id string) {
		lines = append(lines, text)
		if id != "" {
			owner[len(lines)] = id
		}
	}

	if !u.raw {
		for _, aux := range u.Auxiliary {
			emit(aux, "")
		}
		if len(u.Imports) > 0 {
			emit("import "+strings.Join(u.Imports, ", "), "")
		}
		for _, lib := range u.Libraries {
			emit("import "+lib, "")
		}
		emit("", "")
	}

	for _, r := range u.Records {
		id := r.ID
		if r.Inert {
			id = ""
		}
		for _, line := range r.Lines() {
			emit(line, id)
		}
		if !u.raw {
			emit("", "")
		}
	}

	for _, t := range u.Trailer {
		emit(t, "")
	}

	text := strings.Join(lines, "\n")
	if !strings.HasSuffix(text, "\n") {
		text += "\n"
	}
	return &Rendering{Text: text, lines: owner}
}

// Remove takes the record out of the unit and appends the diagnostic and the
// removed lines to the trailer as comments.
func (u *Unit) Remove(id, diagnostic string) (*Record, error) {
	for i, r := range u.Records {
		if r.ID != id {
			continue
		}
		if !r.Removable() {
			return nil, fmt.Errorf("%w: %s", ErrNotRemovable, r.Proc)
		}
		u.Records = append(u.Records[:i], u.Records[i+1:]...)
		u.removed++

		u.Trailer = append(u.Trailer, "# ERROR traceback")
		for _, line := range strings.Split(strings.TrimRight(diagnostic, "\n"), "\n") {
			u.Trailer = append(u.Trailer, commentOut(line))
		}
		for _, line := range r.Lines() {
			u.Trailer = append(u.Trailer, commentOut(line))
		}
		logging.Codegen("removed %s (%d statements)", r.Proc, len(r.Statements()))
		return r, nil
	}
	return nil, fmt.Errorf("no record %s", id)
}

func commentOut(line string) string {
	if line == "" {
		return "#"
	}
	return "# " + line
}

// ParseRaw rebuilds a unit from previously written source. Blank lines,
// comments, imports and type sections are carried as inert records; variable
// declarations are grouped with the call that follows them. Declarations with
// no call after them stay inert.
func ParseRaw(text string) *Unit {
	u := &Unit{raw: true}
	var pending []Statement

	inert := func(st Statement) {
		u.Add(&Record{ID: uuid.NewString(), Call: st, Inert: true})
	}
	dangling := func() {
		for _, st := range pending {
			inert(st)
		}
		pending = nil
	}
	flush := func(call Statement) {
		u.Add(&Record{
			ID:        uuid.NewString(),
			Proc:      procName(call.Text),
			Variables: pending,
			Call:      call,
		})
		pending = nil
	}

	for _, line := range strings.Split(strings.TrimSuffix(text, "\n"), "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case trimmed == "", strings.HasPrefix(trimmed, "#"),
			strings.HasPrefix(trimmed, "import "), strings.HasPrefix(trimmed, "type "):
			dangling()
			inert(newStatement(line))
		case strings.HasPrefix(trimmed, "var "):
			pending = append(pending, newStatement(line))
		default:
			flush(newStatement(line))
		}
	}
	dangling()
	logging.CodegenDebug("parsed raw unit: %d records, %d calls", len(u.Records), u.Attempted())
	return u
}

// procName extracts "lib.name" from a call line.
func procName(call string) string {
	s := strings.TrimPrefix(strings.TrimSpace(call), "discard ")
	if i := strings.IndexByte(s, '('); i > 0 {
		return s[:i]
	}
	return s
}
