package codegen

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"nimp/internal/decl"
	"nimp/internal/grammar"
	"nimp/internal/knowledge"
	"nimp/internal/logging"
	"nimp/internal/synth"
)

// DefaultGenericBinding is the type an unconstrained generic parameter is bound to.
const DefaultGenericBinding = "int"

// Generator builds one call record per procedure.
type Generator struct {
	synth  *synth.Synthesizer
	global *knowledge.Base
}

// NewGenerator returns a Generator that synthesizes against global. Learned
// classifications are written back to global.
func NewGenerator(s *synth.Synthesizer, global *knowledge.Base) *Generator {
	return &Generator{synth: s, global: global}
}

// Generate builds the call record for sig, calling it through module lib.
// Failures never escape: a call that cannot be built is returned commented.
func (g *Generator) Generate(ctx context.Context, lib string, sig *decl.Signature) *Record {
	rec := &Record{ID: uuid.NewString(), Proc: lib + "." + sig.Name}

	sc := synth.NewContext(g.global)
	for _, p := range sig.Generics {
		typ := p.Type
		if typ == "" {
			typ = DefaultGenericBinding
		}
		sc.Bind(p.Name, typ)
	}

	args := make([]string, 0, len(sig.Arguments))
	for _, p := range sig.Arguments {
		if p.Default != "" {
			continue
		}
		if p.Type == "" {
			return g.commented(rec, lib, sig, fmt.Errorf("argument %s has neither type nor default", p.Name))
		}
		v, err := g.synth.Synthesize(ctx, p.Type, sc)
		if err != nil {
			return g.commented(rec, lib, sig, fmt.Errorf("argument %s: %w", p.Name, err))
		}
		args = append(args, v)
	}

	call := callText(lib, sig, strings.Join(args, ", "))
	if !grammar.ParensBalanced(call) {
		rec.Commented = true
		rec.Err = fmt.Errorf("unbalanced call %q", call)
		rec.Call = newStatement("# " + call)
		logging.CodegenWarn("%s: %v", rec.Proc, rec.Err)
		return rec
	}

	for _, v := range sc.Variables() {
		rec.Variables = append(rec.Variables, newStatement(v.Declaration()))
	}
	rec.Call = newStatement(call)
	logging.CodegenDebug("%s -> %s (%d variables)", rec.Proc, call, len(rec.Variables))
	return rec
}

func (g *Generator) commented(rec *Record, lib string, sig *decl.Signature, err error) *Record {
	rec.Commented = true
	rec.Err = err
	rec.Call = newStatement("# " + callText(lib, sig, "...") + "  # " + oneLine(err.Error()))
	logging.CodegenWarn("%s commented out: %v", rec.Proc, err)
	return rec
}

func callText(lib string, sig *decl.Signature, args string) string {
	prefix := ""
	if sig.HasReturn() {
		prefix = "discard "
	}
	return prefix + lib + "." + sig.Name + "(" + args + ")"
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
