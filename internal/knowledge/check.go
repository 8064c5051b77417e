package knowledge

import (
	"context"
	"fmt"
	"strings"

	"nimp/internal/logging"
	"nimp/internal/mangle"
	"nimp/internal/typeexpr"
)

// checkProgram finds redirect cycles (synthesis would never terminate),
// redirect targets nothing knows about, and names carrying two classifications.
const checkProgram = `
Decl classified(Name, Kind).
Decl redirect_edge(From, To).
Decl builtin(Name).
Decl reaches(From, To).
Decl cyclic(Name).
Decl known(Name).
Decl dangling(From, To).
Decl conflict(Name).

reaches(X, Y) :- redirect_edge(X, Y).
reaches(X, Z) :- redirect_edge(X, Y), reaches(Y, Z).
cyclic(X) :- reaches(X, X).

known(X) :- classified(X, _).
known(X) :- builtin(X).
dangling(X, Y) :- redirect_edge(X, Y), !known(Y).

conflict(X) :- classified(X, K1), classified(X, K2), K1 != K2.
`

// Edge is a redirect from one name to a name its template mentions.
type Edge struct {
	From string
	To   string
}

// Report is the outcome of Check.
type Report struct {
	Cycles    []string
	Dangling  []Edge
	Conflicts []string
	Facts     int
}

// OK reports whether the check found nothing.
func (r *Report) OK() bool {
	return len(r.Cycles) == 0 && len(r.Dangling) == 0 && len(r.Conflicts) == 0
}

// Check evaluates the consistency rules over b.
func Check(ctx context.Context, b *Base) (*Report, error) {
	timer := logging.StartTimer(logging.CategoryStore, "knowledge.Check")
	defer timer.Stop()

	engine := mangle.NewEngine(mangle.DefaultConfig())
	if err := engine.LoadSchemaString(checkProgram); err != nil {
		return nil, fmt.Errorf("load check program: %w", err)
	}

	var facts []mangle.Fact
	builtins := make(map[string]bool)
	for _, e := range b.Entries() {
		facts = append(facts, mangle.Fact{Predicate: "classified", Args: []string{e.Name, string(e.Kind)}})
		if e.Kind != KindRedirect {
			continue
		}
		for _, target := range mentionedNames(e.Value) {
			facts = append(facts, mangle.Fact{Predicate: "redirect_edge", Args: []string{e.Name, target}})
			if IsBuiltin(target) && !builtins[target] {
				builtins[target] = true
				facts = append(facts, mangle.Fact{Predicate: "builtin", Args: []string{target}})
			}
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := engine.AddFacts(facts); err != nil {
		return nil, fmt.Errorf("add facts: %w", err)
	}
	if err := engine.Evaluate(); err != nil {
		return nil, err
	}

	report := &Report{Facts: engine.FactCount()}

	cyclic, err := engine.GetFacts("cyclic")
	if err != nil {
		return nil, err
	}
	for _, f := range cyclic {
		report.Cycles = append(report.Cycles, f.Args[0])
	}

	dangling, err := engine.GetFacts("dangling")
	if err != nil {
		return nil, err
	}
	for _, f := range dangling {
		report.Dangling = append(report.Dangling, Edge{From: f.Args[0], To: f.Args[1]})
	}

	conflicts, err := engine.GetFacts("conflict")
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	for _, f := range conflicts {
		if !seen[f.Args[0]] {
			seen[f.Args[0]] = true
			report.Conflicts = append(report.Conflicts, f.Args[0])
		}
	}

	logging.Store("knowledge check: %d facts, %d cycles, %d dangling, %d conflicts",
		report.Facts, len(report.Cycles), len(report.Dangling), len(report.Conflicts))
	return report, nil
}

// mentionedNames lists the type names a redirect template refers to.
func mentionedNames(template string) []string {
	expr, err := typeexpr.Parse(template)
	if err != nil {
		return nil
	}
	var names []string
	seen := make(map[string]bool)
	var walk func(e *typeexpr.Expr)
	walk = func(e *typeexpr.Expr) {
		switch e.Kind {
		case typeexpr.KindModified:
			walk(e.Operand)
		case typeexpr.KindUnion:
			for _, a := range e.Args {
				walk(a)
			}
		case typeexpr.KindNamed:
			name := e.BaseName()
			if name != "" && !strings.HasPrefix(name, "{") && !isNumeric(name) && !seen[name] {
				seen[name] = true
				names = append(names, name)
			}
			for _, a := range e.Args {
				walk(a)
			}
		case typeexpr.KindProc:
			if !seen["proc"] {
				seen["proc"] = true
				names = append(names, "proc")
			}
		}
	}
	walk(expr)
	return names
}

func isNumeric(s string) bool {
	for _, c := range s {
		if (c < '0' || c > '9') && c != '.' && c != '-' {
			return false
		}
	}
	return s != ""
}
