// Package knowledge holds the accumulating classification of Nim type names
// used by value synthesis, together with the stores that persist it between runs.
package knowledge

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrConflict is returned when a name is already classified differently.
var ErrConflict = errors.New("classification conflict")

// Kind is one of the four classifications a type name can carry.
type Kind string

const (
	KindReference Kind = "ref"      // heap-allocated; synthesized as new(T)
	KindValue     Kind = "object"   // in-place; synthesized as T()
	KindRedirect  Kind = "redirect" // resolves to another type expression
	KindLiteral   Kind = "literal"  // a fixed expression always works
)

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindReference, KindValue, KindRedirect, KindLiteral:
		return true
	}
	return false
}

// Classification is what the knowledge base knows about one name. Value holds
// the redirect template or the literal expression.
type Classification struct {
	Kind  Kind
	Value string
}

// Reference returns a reference classification.
func Reference() Classification { return Classification{Kind: KindReference} }

// Value returns a value-object classification.
func Value() Classification { return Classification{Kind: KindValue} }

// Redirect returns a redirect to target.
func Redirect(target string) Classification {
	return Classification{Kind: KindRedirect, Value: target}
}

// Literal returns a literal classification.
func Literal(expr string) Classification {
	return Classification{Kind: KindLiteral, Value: expr}
}

func (c Classification) String() string {
	switch c.Kind {
	case KindRedirect:
		return "redirect: " + c.Value
	case KindLiteral:
		return "literal: " + c.Value
	default:
		return string(c.Kind)
	}
}

// ParseClassification reads the textual forms accepted on the command line,
// in resolver seeds and from operators: "ref" or "!r", "object" or "!o",
// "redirect: <type>" and "literal: <expr>".
func ParseClassification(s string) (Classification, error) {
	s = strings.TrimSpace(s)
	switch s {
	case "ref", "!r", "reference":
		return Reference(), nil
	case "object", "!o", "value":
		return Value(), nil
	}
	for _, k := range []Kind{KindRedirect, KindLiteral} {
		prefix := string(k) + ":"
		if strings.HasPrefix(s, prefix) {
			v := strings.TrimSpace(s[len(prefix):])
			if v == "" {
				return Classification{}, fmt.Errorf("empty %s in %q", k, s)
			}
			return Classification{Kind: k, Value: v}, nil
		}
	}
	return Classification{}, fmt.Errorf("unrecognised classification %q", s)
}

// Entry pairs a name with its classification.
type Entry struct {
	Name string
	Classification
}

// Base is the knowledge base. It is passed by reference and is not safe for
// concurrent mutation; the pipeline is single-threaded.
type Base struct {
	References map[string]struct{}
	Values     map[string]struct{}
	Redirects  map[string]string
	Literals   map[string]string

	// Version increases with every new classification.
	Version uint64
}

// NewBase returns an empty knowledge base.
func NewBase() *Base {
	return &Base{
		References: make(map[string]struct{}),
		Values:     make(map[string]struct{}),
		Redirects:  make(map[string]string),
		Literals:   make(map[string]string),
	}
}

// Seed returns the default knowledge base every run starts from.
func Seed() *Base {
	b := NewBase()
	b.Redirects["Callback"] = "proc"
	b.Redirects["SockLen"] = "int"
	b.Redirects["SocketHandle"] = "distinct int"
	return b
}

// Lookup returns the classification of name.
func (b *Base) Lookup(name string) (Classification, bool) {
	if v, ok := b.Literals[name]; ok {
		return Literal(v), true
	}
	if v, ok := b.Redirects[name]; ok {
		return Redirect(v), true
	}
	if _, ok := b.References[name]; ok {
		return Reference(), true
	}
	if _, ok := b.Values[name]; ok {
		return Value(), true
	}
	return Classification{}, false
}

// Has reports whether name is classified.
func (b *Base) Has(name string) bool {
	_, ok := b.Lookup(name)
	return ok
}

// Classify records c under name. Re-recording the same classification is a
// no-op; a different one returns ErrConflict and leaves the base unchanged.
func (b *Base) Classify(name string, c Classification) error {
	if name == "" {
		return fmt.Errorf("classify: empty name")
	}
	if !c.Kind.Valid() {
		return fmt.Errorf("classify %s: invalid kind %q", name, c.Kind)
	}
	if existing, ok := b.Lookup(name); ok {
		if existing == c {
			return nil
		}
		return fmt.Errorf("%w: %s is %s, not %s", ErrConflict, name, existing, c)
	}
	b.put(name, c)
	b.Version++
	return nil
}

// Shadow replaces whatever name is classified as. It is meant for
// per-procedure copies, where generic parameters hide global names.
func (b *Base) Shadow(name string, c Classification) {
	b.remove(name)
	b.put(name, c)
}

func (b *Base) put(name string, c Classification) {
	switch c.Kind {
	case KindReference:
		b.References[name] = struct{}{}
	case KindValue:
		b.Values[name] = struct{}{}
	case KindRedirect:
		b.Redirects[name] = c.Value
	case KindLiteral:
		b.Literals[name] = c.Value
	}
}

func (b *Base) remove(name string) {
	delete(b.References, name)
	delete(b.Values, name)
	delete(b.Redirects, name)
	delete(b.Literals, name)
}

// Clone returns a deep copy.
func (b *Base) Clone() *Base {
	c := NewBase()
	for k := range b.References {
		c.References[k] = struct{}{}
	}
	for k := range b.Values {
		c.Values[k] = struct{}{}
	}
	for k, v := range b.Redirects {
		c.Redirects[k] = v
	}
	for k, v := range b.Literals {
		c.Literals[k] = v
	}
	c.Version = b.Version
	return c
}

// Merge folds other into b field by field. Entries from other win when the
// two disagree; the names that changed class are returned.
func (b *Base) Merge(other *Base) []string {
	if other == nil {
		return nil
	}
	var overridden []string
	for _, e := range other.Entries() {
		existing, ok := b.Lookup(e.Name)
		if ok && existing == e.Classification {
			continue
		}
		if ok {
			overridden = append(overridden, e.Name)
			b.remove(e.Name)
		}
		b.put(e.Name, e.Classification)
		b.Version++
	}
	if other.Version > b.Version {
		b.Version = other.Version
	}
	return overridden
}

// Len returns the number of classified names.
func (b *Base) Len() int {
	return len(b.References) + len(b.Values) + len(b.Redirects) + len(b.Literals)
}

// Entries returns every classification sorted by name.
func (b *Base) Entries() []Entry {
	entries := make([]Entry, 0, b.Len())
	for k := range b.References {
		entries = append(entries, Entry{Name: k, Classification: Reference()})
	}
	for k := range b.Values {
		entries = append(entries, Entry{Name: k, Classification: Value()})
	}
	for k, v := range b.Redirects {
		entries = append(entries, Entry{Name: k, Classification: Redirect(v)})
	}
	for k, v := range b.Literals {
		entries = append(entries, Entry{Name: k, Classification: Literal(v)})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Name != entries[j].Name {
			return entries[i].Name < entries[j].Name
		}
		return entries[i].Kind < entries[j].Kind
	})
	return entries
}
