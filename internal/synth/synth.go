// Package synth produces nim values for textual type expressions using the
// knowledge base, minting call-local variables where nim's literal inference
// would pick the wrong type.
package synth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"nimp/internal/decl"
	"nimp/internal/grammar"
	"nimp/internal/knowledge"
	"nimp/internal/logging"
	"nimp/internal/typeexpr"
)

var (
	// ErrUnresolved is returned when no resolver classified an unknown type.
	ErrUnresolved = errors.New("unresolved type")
	// ErrTooDeep is returned when redirects recurse past the depth limit.
	ErrTooDeep = errors.New("type expansion too deep")
	// ErrUnsupported is returned for forms synthesis cannot build.
	ErrUnsupported = errors.New("unsupported type form")
)

// Resolver classifies a type the knowledge base does not know.
type Resolver interface {
	Resolve(ctx context.Context, typeName string) (knowledge.Classification, error)
}

// UUIDNamer mints variable names of the form v_<32 hex digits>.
func UUIDNamer() string {
	return "v_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// Option configures a Synthesizer.
type Option func(*Synthesizer)

// WithNamer replaces the variable namer.
func WithNamer(namer func() string) Option {
	return func(s *Synthesizer) { s.namer = namer }
}

// WithMaxDepth bounds recursion through redirects and generic arguments.
func WithMaxDepth(depth int) Option {
	return func(s *Synthesizer) { s.maxDepth = depth }
}

// Synthesizer turns type expressions into value expressions.
type Synthesizer struct {
	resolver Resolver
	namer    func() string
	maxDepth int
}

// New returns a Synthesizer that falls back to resolver for unknown types.
// resolver may be nil, in which case unknown types are errors.
func New(resolver Resolver, opts ...Option) *Synthesizer {
	s := &Synthesizer{
		resolver: resolver,
		namer:    UUIDNamer,
		maxDepth: 64,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Synthesize returns a value expression for typeText. It starts a new visit
// history; declared variables accumulate on sc across calls.
func (s *Synthesizer) Synthesize(ctx context.Context, typeText string, sc *Context) (string, error) {
	sc.History = sc.History[:0]
	v, err := s.value(ctx, typeText, sc, 0)
	if err != nil {
		return "", fmt.Errorf("synthesize %q: %w", typeText, err)
	}
	logging.SynthDebug("%s -> %s", typeText, v)
	return v, nil
}

func (s *Synthesizer) value(ctx context.Context, text string, sc *Context, depth int) (string, error) {
	if depth > s.maxDepth {
		return "", fmt.Errorf("%w at %q", ErrTooDeep, text)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	sc.History = append(sc.History, text)

	e, err := typeexpr.Parse(text)
	if err != nil {
		return "", err
	}
	return s.expr(ctx, e, sc, depth)
}

// expr peels modifiers, classifies what remains, then materializes and casts.
func (s *Synthesizer) expr(ctx context.Context, e *typeexpr.Expr, sc *Context, depth int) (string, error) {
	materialize := false
	castTo := ""

peel:
	for {
		switch e.Kind {
		case typeexpr.KindUnion:
			e = e.Args[0]
		case typeexpr.KindModified:
			switch e.Modifier {
			case typeexpr.ModVar:
				materialize = true
				e = e.Operand
			case typeexpr.ModNot:
				if e.Operand.String() == "bool" {
					e = &typeexpr.Expr{Kind: typeexpr.KindNamed, Name: "int"}
				} else {
					e = &typeexpr.Expr{Kind: typeexpr.KindNamed, Name: "bool"}
				}
			case typeexpr.ModDistinct:
				materialize = true
				if enclosing, ok := s.enclosing(sc, false); ok {
					castTo = enclosing
				}
				e = e.Operand
			case typeexpr.ModPtr:
				target := e.String()
				if enclosing, ok := s.enclosing(sc, true); ok {
					target = enclosing
				}
				return "cast[" + target + "](0)", nil
			case typeexpr.ModRef:
				return "new(" + s.resolveType(e.Operand, sc) + ")", nil
			default:
				// ownership annotations do not change the value
				e = e.Operand
			}
		default:
			break peel
		}
	}

	key := e.String()
	if !materialize && e.Kind == typeexpr.KindNamed && len(e.Args) == 0 && knowledge.ForcesVariable(e.Name) {
		materialize = true
	}

	var value string
	if v, ok := sc.lookupVariable(key); materialize && ok {
		value = v.Name
	} else {
		declType, val, err := s.classify(ctx, e, sc, depth, false)
		if err != nil {
			return "", err
		}
		value = val
		if materialize {
			v := &Variable{Key: key, Name: s.namer(), DeclType: declType, Init: val}
			sc.declare(v)
			logging.SynthDebug("declared %s for %s", v.Name, key)
			value = v.Name
		}
	}

	if castTo != "" {
		value = castTo + "(" + value + ")"
	}
	return value, nil
}

// enclosing returns the type text visited just before the current one, the
// type that declared the wrapper being unwrapped. Generic parameters are not
// nameable at the call site and are skipped. With redirectOnly the enclosing
// entry must also be a redirect, so containers such as seq[ptr T] do not
// become cast targets.
func (s *Synthesizer) enclosing(sc *Context, redirectOnly bool) (string, bool) {
	n := len(sc.History)
	if n < 2 {
		return "", false
	}
	prev := declaringType(sc.History[n-2])
	if _, generic := sc.Generics[prev]; generic {
		return "", false
	}
	if redirectOnly {
		if _, ok := sc.KB.Redirects[prev]; !ok {
			return "", false
		}
	}
	return prev, true
}

// declaringType strips the union alternatives and the var or ownership
// modifiers a parameter wraps around its type, which are not part of a
// conversion target.
func declaringType(text string) string {
	e, err := typeexpr.Parse(text)
	if err != nil {
		return text
	}
	for {
		switch {
		case e.Kind == typeexpr.KindUnion:
			e = e.Args[0]
		case e.Kind == typeexpr.KindModified && (e.Modifier == typeexpr.ModVar || e.Modifier.IsOwnership()):
			e = e.Operand
		default:
			return e.String()
		}
	}
}

// classify returns the declared type (empty when inferred) and value for an
// expression with no outer modifiers.
func (s *Synthesizer) classify(ctx context.Context, e *typeexpr.Expr, sc *Context, depth int, retried bool) (string, string, error) {
	switch e.Kind {
	case typeexpr.KindProc:
		return "", "nil", nil
	case typeexpr.KindTuple:
		v, err := s.tuple(ctx, e, sc, depth)
		return "", v, err
	case typeexpr.KindNamed:
	default:
		v, err := s.value(ctx, e.String(), sc, depth+1)
		return "", v, err
	}

	if c, ok := s.lookup(e, sc); ok {
		v, err := s.fromClassification(ctx, e, c, sc, depth)
		return "", v, err
	}

	if len(e.Args) == 0 {
		if declType, v, ok := knowledge.Scalar(e.Name); ok {
			return declType, v, nil
		}
	} else {
		v, ok, err := s.structural(ctx, e, sc, depth)
		if err != nil || ok {
			return "", v, err
		}
	}

	if retried {
		return "", "", fmt.Errorf("%w: %s", ErrUnresolved, e)
	}
	if err := s.learn(ctx, e, sc); err != nil {
		return "", "", err
	}
	return s.classify(ctx, e, sc, depth, true)
}

// lookup finds the classification that applies to e as written: a literal
// for the full text or the base name, otherwise any entry for the full text.
// Generic instances of classified base names are left to structural.
func (s *Synthesizer) lookup(e *typeexpr.Expr, sc *Context) (knowledge.Classification, bool) {
	full := e.String()
	if v, ok := sc.KB.Literals[full]; ok {
		return knowledge.Literal(v), true
	}
	if v, ok := sc.KB.Literals[e.BaseName()]; ok {
		return knowledge.Literal(v), true
	}
	return sc.KB.Lookup(full)
}

func (s *Synthesizer) fromClassification(ctx context.Context, e *typeexpr.Expr, c knowledge.Classification, sc *Context, depth int) (string, error) {
	switch c.Kind {
	case knowledge.KindLiteral:
		return c.Value, nil
	case knowledge.KindRedirect:
		target := knowledge.Substitute(c.Value, s.binding(sc), "int")
		return s.value(ctx, target, sc, depth+1)
	case knowledge.KindReference:
		return "new(" + e.String() + ")", nil
	case knowledge.KindValue:
		return e.String() + "()", nil
	}
	return "", fmt.Errorf("%w: classification %q", ErrUnsupported, c.Kind)
}

func (s *Synthesizer) binding(sc *Context) func(string) (string, bool) {
	return func(name string) (string, bool) {
		v, ok := sc.Generics[name]
		return v, ok
	}
}

// structural handles the built-in generic forms and generic instances of
// classified names. ok is false when e is none of those.
func (s *Synthesizer) structural(ctx context.Context, e *typeexpr.Expr, sc *Context, depth int) (string, bool, error) {
	values := func() ([]string, error) {
		out := make([]string, 0, len(e.Args))
		for _, a := range e.Args {
			v, err := s.value(ctx, a.String(), sc, depth+1)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil
	}

	switch e.Name {
	case "Slice":
		v, err := s.value(ctx, e.Args[0].String(), sc, depth+1)
		return v + " .. " + v, true, err
	case "HSlice":
		if len(e.Args) != 2 {
			return "", true, fmt.Errorf("%w: %s needs two arguments", ErrUnsupported, e)
		}
		vs, err := values()
		if err != nil {
			return "", true, err
		}
		return vs[0] + " .. " + vs[1], true, nil
	case "varargs":
		// the optional second argument is a conversion routine, not a type
		v, err := s.value(ctx, e.Args[0].String(), sc, depth+1)
		return "[" + v + "]", true, err
	case "seq", "set", "openArray":
		vs, err := values()
		if err != nil {
			return "", true, err
		}
		joined := strings.Join(vs, ", ")
		switch e.Name {
		case "seq":
			return "@[" + joined + "]", true, nil
		case "set":
			return "{" + joined + "}", true, nil
		default:
			return "[" + joined + "]", true, nil
		}
	case "typedesc":
		return s.resolveType(e.Args[0], sc), true, nil
	case "static":
		v, err := s.value(ctx, e.Args[0].String(), sc, depth+1)
		return v, true, err
	}

	c, ok := sc.KB.Lookup(e.Name)
	if !ok {
		return "", false, nil
	}
	switch c.Kind {
	case knowledge.KindReference:
		return "new " + e.Name + "[" + s.typeArgs(e, sc) + "]", true, nil
	case knowledge.KindValue:
		return e.Name + "[" + s.typeArgs(e, sc) + "]()", true, nil
	case knowledge.KindRedirect:
		if len(e.Args) != 1 {
			// only single-parameter templates are substituted
			return "", false, nil
		}
		arg := s.resolveType(e.Args[0], sc)
		target := knowledge.Substitute(c.Value, func(string) (string, bool) { return arg, true }, arg)
		v, err := s.value(ctx, target, sc, depth+1)
		return v, true, err
	}
	return "", false, nil
}

// resolveType rewrites generic parameter names in e to their bound types.
func (s *Synthesizer) resolveType(e *typeexpr.Expr, sc *Context) string {
	switch e.Kind {
	case typeexpr.KindNamed:
		if len(e.Args) == 0 {
			if bound, ok := sc.Generics[e.Name]; ok {
				if be, err := typeexpr.Parse(bound); err == nil && be.Kind == typeexpr.KindUnion {
					return be.Args[0].String()
				}
				return bound
			}
			return e.Name
		}
		parts := make([]string, len(e.Args))
		for i, a := range e.Args {
			parts[i] = s.resolveType(a, sc)
		}
		return e.Name + "[" + strings.Join(parts, ", ") + "]"
	case typeexpr.KindModified:
		return string(e.Modifier) + " " + s.resolveType(e.Operand, sc)
	case typeexpr.KindUnion:
		return s.resolveType(e.Args[0], sc)
	default:
		return e.String()
	}
}

func (s *Synthesizer) typeArgs(e *typeexpr.Expr, sc *Context) string {
	parts := make([]string, len(e.Args))
	for i, a := range e.Args {
		parts[i] = s.resolveType(a, sc)
	}
	return strings.Join(parts, ", ")
}

// tuple builds a positional tuple constructor from the field types.
func (s *Synthesizer) tuple(ctx context.Context, e *typeexpr.Expr, sc *Context, depth int) (string, error) {
	var types []string
	if e.Anonymous {
		types = grammar.SplitList(e.Fields)
	} else {
		for _, p := range decl.ParseArgs(e.Fields) {
			types = append(types, p.Type)
		}
	}

	vals := make([]string, 0, len(types))
	for _, t := range types {
		if t == "" {
			return "", fmt.Errorf("%w: untyped field in %s", ErrUnsupported, e)
		}
		v, err := s.value(ctx, t, sc, depth+1)
		if err != nil {
			return "", err
		}
		vals = append(vals, v)
	}
	if len(vals) == 1 {
		return "(" + vals[0] + ",)", nil
	}
	return "(" + strings.Join(vals, ", ") + ")", nil
}

// learn asks the resolver about e and records the answer in both the
// procedure copy and the global base. Literals are recorded under the full
// type text, other classifications under the base name.
func (s *Synthesizer) learn(ctx context.Context, e *typeexpr.Expr, sc *Context) error {
	if s.resolver == nil {
		return fmt.Errorf("%w: %s", ErrUnresolved, e)
	}
	c, err := s.resolver.Resolve(ctx, e.String())
	if err != nil {
		return fmt.Errorf("resolve %s: %w", e, err)
	}

	name := e.BaseName()
	if c.Kind == knowledge.KindLiteral || sc.KB.Has(name) {
		name = e.String()
	}
	if err := sc.KB.Classify(name, c); err != nil {
		return err
	}
	if sc.Global != nil {
		if err := sc.Global.Classify(name, c); err != nil {
			return err
		}
	}
	logging.Resolver("classified %s as %s", name, c)
	return nil
}
