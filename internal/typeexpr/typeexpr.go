// Package typeexpr parses Nim type expressions into a small typed tree.
//
// Grammar (informal):
//
//	expr     = alt ("|" alt)*
//	alt      = modifier* base
//	modifier = "var" | "not" | "distinct" | "owned" | "sink" | "lent" | "ptr" | "ref"
//	base     = "proc" ... | "tuple[" fields "]" | "(" fields ")" | name ("[" expr ("," expr)* "]")?
//
// Expressions are immutable once parsed; String renders the canonical text
// that callers use as a memoization key.
package typeexpr

import (
	"errors"
	"fmt"
	"strings"

	"nimp/internal/grammar"
)

// ErrEmpty is returned for blank type text.
var ErrEmpty = errors.New("empty type expression")

// Kind is the closed set of expression shapes.
type Kind int

const (
	KindNamed    Kind = iota // name with optional generic arguments
	KindUnion                // a | b | c
	KindModified             // modifier applied to an operand
	KindTuple                // tuple[fields] or (fields)
	KindProc                 // procedure or iterator type, kept raw
)

func (k Kind) String() string {
	switch k {
	case KindNamed:
		return "named"
	case KindUnion:
		return "union"
	case KindModified:
		return "modified"
	case KindTuple:
		return "tuple"
	case KindProc:
		return "proc"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Modifier is a prefix keyword that wraps an operand type.
type Modifier string

const (
	ModVar      Modifier = "var"
	ModNot      Modifier = "not"
	ModDistinct Modifier = "distinct"
	ModOwned    Modifier = "owned"
	ModSink     Modifier = "sink"
	ModLent     Modifier = "lent"
	ModPtr      Modifier = "ptr"
	ModRef      Modifier = "ref"
)

var modifiers = []Modifier{ModVar, ModNot, ModDistinct, ModOwned, ModSink, ModLent, ModPtr, ModRef}

// IsOwnership reports whether m only annotates ownership and has no effect on value shape.
func (m Modifier) IsOwnership() bool {
	return m == ModOwned || m == ModSink || m == ModLent
}

// Expr is a parsed type expression.
type Expr struct {
	Kind Kind

	// KindNamed
	Name string
	Args []*Expr // generic arguments; for KindUnion, the alternatives

	// KindModified
	Modifier Modifier
	Operand  *Expr

	// KindTuple
	Fields    string // raw field list between the delimiters
	Anonymous bool   // (a, b) rather than tuple[x: a, y: b]

	// KindProc
	Raw string
}

// Parse parses text into an expression tree.
func Parse(text string) (*Expr, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmpty
	}

	if alts := grammar.SplitAlternatives(text); len(alts) > 1 {
		u := &Expr{Kind: KindUnion}
		for _, a := range alts {
			e, err := Parse(a)
			if err != nil {
				return nil, fmt.Errorf("union alternative %q: %w", a, err)
			}
			u.Args = append(u.Args, e)
		}
		return u, nil
	}

	// postfix nil annotation carries no shape information
	text = strings.TrimSpace(strings.TrimSuffix(text, " not nil"))

	for _, m := range modifiers {
		prefix := string(m) + " "
		if strings.HasPrefix(text, prefix) {
			operand, err := Parse(text[len(prefix):])
			if err != nil {
				return nil, fmt.Errorf("%s operand: %w", m, err)
			}
			return &Expr{Kind: KindModified, Modifier: m, Operand: operand}, nil
		}
	}

	if isProcType(text) {
		return &Expr{Kind: KindProc, Raw: text}, nil
	}

	if strings.HasPrefix(text, "(") {
		b := grammar.NewBuffer(text)
		fields, err := b.ExtractGroup('(', ')')
		if err == nil && b.Len() == 0 {
			return &Expr{Kind: KindTuple, Fields: strings.TrimSpace(fields), Anonymous: true}, nil
		}
	}

	return parseNamed(text), nil
}

// MustParse is like Parse but panics on error. Intended for tests and constants.
func MustParse(text string) *Expr {
	e, err := Parse(text)
	if err != nil {
		panic(err)
	}
	return e
}

func isProcType(text string) bool {
	for _, kw := range []string{"proc", "iterator"} {
		if text == kw || strings.HasPrefix(text, kw+" ") || strings.HasPrefix(text, kw+"(") || strings.HasPrefix(text, kw+"{") {
			return true
		}
	}
	return false
}

func parseNamed(text string) *Expr {
	open := strings.IndexByte(text, '[')
	if open <= 0 {
		return &Expr{Kind: KindNamed, Name: text}
	}
	name := strings.TrimSpace(text[:open])
	b := grammar.NewBuffer(text[open:])
	inner, err := b.ExtractGroup('[', ']')
	if err != nil || strings.TrimSpace(b.String()) != "" {
		// not a plain instantiation; keep it opaque
		return &Expr{Kind: KindNamed, Name: text}
	}

	if name == "tuple" {
		return &Expr{Kind: KindTuple, Fields: strings.TrimSpace(inner)}
	}

	e := &Expr{Kind: KindNamed, Name: name}
	for _, part := range grammar.SplitList(inner) {
		if part == "" {
			continue
		}
		arg, err := Parse(part)
		if err != nil {
			return &Expr{Kind: KindNamed, Name: text}
		}
		e.Args = append(e.Args, arg)
	}
	return e
}

// String renders the canonical text of e.
func (e *Expr) String() string {
	if e == nil {
		return ""
	}
	switch e.Kind {
	case KindUnion:
		parts := make([]string, len(e.Args))
		for i, a := range e.Args {
			parts[i] = a.String()
		}
		return strings.Join(parts, " | ")
	case KindModified:
		return string(e.Modifier) + " " + e.Operand.String()
	case KindTuple:
		if e.Anonymous {
			return "(" + e.Fields + ")"
		}
		return "tuple[" + e.Fields + "]"
	case KindProc:
		return e.Raw
	default:
		if len(e.Args) == 0 {
			return e.Name
		}
		parts := make([]string, len(e.Args))
		for i, a := range e.Args {
			parts[i] = a.String()
		}
		return e.Name + "[" + strings.Join(parts, ", ") + "]"
	}
}

// BaseName returns the name without generic arguments or modifiers, used as
// the knowledge-base key when classifying an unknown type.
func (e *Expr) BaseName() string {
	switch e.Kind {
	case KindModified:
		return e.Operand.BaseName()
	case KindUnion:
		return e.Args[0].BaseName()
	case KindNamed:
		// opaque text such as Foo[T].Inner keeps its full name
		return e.Name
	default:
		return e.String()
	}
}

// IsGenericInstance reports whether e is a named type with generic arguments.
func (e *Expr) IsGenericInstance() bool {
	return e.Kind == KindNamed && len(e.Args) > 0
}
