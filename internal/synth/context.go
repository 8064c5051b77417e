package synth

import (
	"nimp/internal/knowledge"
)

// Variable is a call-local declaration minted during synthesis.
type Variable struct {
	Key      string // post-modifier type text
	Name     string
	DeclType string // empty when nim infers it
	Init     string
}

// Declaration renders the variable as a single-line nim statement.
func (v Variable) Declaration() string {
	if v.DeclType == "" {
		return "var " + v.Name + " = " + v.Init
	}
	return "var " + v.Name + ": " + v.DeclType + " = " + v.Init
}

// Context is the per-procedure working state of synthesis.
type Context struct {
	// KB is a deep copy of the global base, extended with generic bindings.
	KB *knowledge.Base
	// Global receives every classification learned from the resolver.
	Global *knowledge.Base
	// Generics maps generic parameter names to their bound type text.
	Generics map[string]string
	// History lists every type text visited by the current top-level call.
	History []string

	locals []*Variable
	index  map[string]*Variable
}

// NewContext returns a fresh context over global.
func NewContext(global *knowledge.Base) *Context {
	return &Context{
		KB:       global.Clone(),
		Global:   global,
		Generics: make(map[string]string),
		index:    make(map[string]*Variable),
	}
}

// Bind scopes a generic parameter to this procedure as a redirect to typ.
func (c *Context) Bind(name, typ string) {
	c.Generics[name] = typ
	c.KB.Shadow(name, knowledge.Redirect(typ))
}

// Variables returns the declared locals in declaration order.
func (c *Context) Variables() []Variable {
	out := make([]Variable, len(c.locals))
	for i, v := range c.locals {
		out[i] = *v
	}
	return out
}

func (c *Context) lookupVariable(key string) (*Variable, bool) {
	v, ok := c.index[key]
	return v, ok
}

func (c *Context) declare(v *Variable) {
	c.locals = append(c.locals, v)
	c.index[v.Key] = v
}
