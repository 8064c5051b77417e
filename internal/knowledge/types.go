package knowledge

import (
	"regexp"
	"strings"

	"nimp/internal/decl"
	"nimp/internal/grammar"
	"nimp/internal/logging"
)

var (
	enumFirstRe   = regexp.MustCompile("^enum\\s*(?:#[^\\n]*\\n\\s*)*(`[^`]+`|[A-Za-z_][A-Za-z0-9_]*)")
	placeholderRe = regexp.MustCompile(`\{([A-Za-z_][A-Za-z0-9_]*)\}`)
)

// ClassifyType derives a classification from a type declaration:
//
//	ref object           -> reference
//	alias of a reference -> reference (non-generic declarations only)
//	enum                 -> literal T.<first member>
//	object               -> value
//	concept              -> skipped
//	anything else        -> redirect to the definition
//
// A redirect of a declaration with a single generic parameter P gets every
// "[P]" in its definition rewritten to the placeholder "[{P}]".
func (b *Base) ClassifyType(td *decl.TypeDecl) (Classification, bool) {
	def := strings.TrimSpace(td.Definition)
	switch {
	case def == "":
		return Classification{}, false
	case strings.HasPrefix(def, "concept"):
		return Classification{}, false
	case strings.HasPrefix(def, "ref object"):
		return Reference(), true
	case len(td.Generics) == 0 && b.isReference(baseOf(def)):
		return Reference(), true
	case strings.HasPrefix(def, "enum"):
		m := enumFirstRe.FindStringSubmatch(def)
		if m == nil {
			return Classification{}, false
		}
		return Literal(td.Name + "." + m[1]), true
	case strings.HasPrefix(def, "object"):
		return Value(), true
	}

	target := grammar.JoinLines(def)
	if len(td.Generics) == 1 {
		p := td.Generics[0].Name
		target = strings.ReplaceAll(target, "["+p+"]", "[{"+p+"}]")
	}
	if target == td.Name {
		return Classification{}, false
	}
	return Redirect(target), true
}

// SeedType classifies td and records it. Conflicts with an existing entry are
// logged and the existing entry is kept.
func (b *Base) SeedType(td *decl.TypeDecl) bool {
	c, ok := b.ClassifyType(td)
	if !ok {
		logging.StoreDebug("type %s not classifiable from %q", td.Name, td.Definition)
		return false
	}
	if err := b.Classify(td.Name, c); err != nil {
		logging.StoreWarn("keeping existing classification: %v", err)
		return false
	}
	return true
}

func (b *Base) isReference(name string) bool {
	_, ok := b.References[name]
	return ok
}

func baseOf(def string) string {
	if i := strings.IndexByte(def, '['); i >= 0 {
		return strings.TrimSpace(def[:i])
	}
	return strings.TrimSpace(def)
}

// Placeholders returns the placeholder names embedded in a redirect template.
func Placeholders(template string) []string {
	var names []string
	for _, m := range placeholderRe.FindAllStringSubmatch(template, -1) {
		names = append(names, m[1])
	}
	return names
}

// Substitute replaces every placeholder in template using bind. Placeholders
// bind does not know are replaced with fallback.
func Substitute(template string, bind func(name string) (string, bool), fallback string) string {
	return placeholderRe.ReplaceAllStringFunc(template, func(ph string) string {
		name := ph[1 : len(ph)-1]
		if v, ok := bind(name); ok {
			return v
		}
		return fallback
	})
}
