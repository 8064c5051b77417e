// Package decl parses raw Nim procedure and type declarations, as emitted by
// `nim jsondoc`, into structured signatures.
package decl

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"nimp/internal/grammar"
	"nimp/internal/logging"
)

// ErrParseMismatch is returned when a declaration does not match the expected grammar.
var ErrParseMismatch = errors.New("declaration does not match")

// Param is one (name, type, default) triple of an argument or generic list.
// An empty Type or Default means none.
type Param struct {
	Name    string
	Type    string
	Default string
}

// Signature is a parsed procedure declaration.
type Signature struct {
	Matched    bool
	Keyword    string // proc, func, method, iterator, converter
	Name       string
	Exported   bool
	Generics   []Param
	Arguments  []Param
	ReturnType string
	Pragmas    string
	Raw        string
}

// HasReturn reports whether the procedure declares a return type.
func (s *Signature) HasReturn() bool {
	return s.ReturnType != "" && s.ReturnType != "void"
}

var (
	procPrefixRe = regexp.MustCompile("(?s)^(proc|func|method|iterator|converter)\\s+(`[^`]+`|[^(*\\[`:{=\\s]+)(\\*?)(.*)$")
	trailerRe    = regexp.MustCompile(`(?s)^\s*(?::\s*([^{}]+?))?\s*(\{\.\s*(.*?)\s*\.\})?\s*$`)
)

// ParseProc decomposes a procedure declaration. Multi-line text is joined
// first. A declaration that does not match returns Matched=false together
// with ErrParseMismatch.
func ParseProc(raw string) (*Signature, error) {
	code := grammar.JoinLines(strings.TrimSpace(raw))
	sig := &Signature{Raw: code}

	m := procPrefixRe.FindStringSubmatch(code)
	if m == nil {
		logging.ParseWarn("unmatched procedure declaration: %s", code)
		return sig, fmt.Errorf("%w: %q", ErrParseMismatch, code)
	}
	sig.Matched = true
	sig.Keyword = m[1]
	sig.Name = m[2]
	sig.Exported = m[3] == "*"

	buf := grammar.NewBuffer(strings.TrimLeft(m[4], " "))
	generics, err := buf.ExtractGroup('[', ']')
	if err != nil {
		return sig, fmt.Errorf("generics of %s: %w", sig.Name, err)
	}
	args, err := buf.ExtractGroup('(', ')')
	if err != nil {
		return sig, fmt.Errorf("arguments of %s: %w", sig.Name, err)
	}
	sig.Generics = ParseArgs(generics)
	sig.Arguments = ParseArgs(args)

	if t := trailerRe.FindStringSubmatch(buf.String()); t != nil {
		sig.ReturnType = strings.TrimSpace(t[1])
		sig.Pragmas = strings.TrimSpace(t[3])
	} else {
		logging.ParseDebug("no trailer match for %s: %q", sig.Name, buf.String())
	}

	logging.ParseDebug("parsed %s %s: %d generics, %d args, returns %q",
		sig.Keyword, sig.Name, len(sig.Generics), len(sig.Arguments), sig.ReturnType)
	return sig, nil
}

// ParseArgs splits an argument or generic-parameter list into triples.
//
// Entries are split at top-level "," and ";". An entry is split into name and
// default at its first top-level "=", then into name and type at its first
// ":". An entry with neither type nor default borrows both from its right
// neighbour, so "x, y: int" yields two int parameters. A trailing entry with
// nothing to borrow keeps an empty type; that only happens in generic lists.
func ParseArgs(raw string) []Param {
	var entries []string
	for _, e := range grammar.SplitList(raw) {
		if e != "" {
			entries = append(entries, e)
		}
	}
	if len(entries) == 0 {
		return nil
	}

	params := make([]Param, len(entries))
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		var p Param
		hasDefault := false

		if eq := grammar.IndexTopLevel(e, '='); eq >= 0 {
			p.Default = strings.TrimSpace(e[eq+1:])
			e = e[:eq]
			hasDefault = true
		}

		if colon := strings.IndexByte(e, ':'); colon >= 0 {
			p.Name = strings.TrimSpace(e[:colon])
			p.Type = strings.TrimSpace(e[colon+1:])
		} else {
			p.Name = strings.TrimSpace(e)
			if !hasDefault && i+1 < len(params) {
				p.Type = params[i+1].Type
				p.Default = params[i+1].Default
			}
		}
		params[i] = p
	}
	return params
}

// TypeDecl is a parsed type declaration.
type TypeDecl struct {
	Name       string
	Exported   bool
	Generics   []Param
	Pragmas    string
	Definition string
}

var (
	typeDeclRe = regexp.MustCompile(`(?s)^(.*?)\s*=\s*(.+)$`)
	typeNameRe = regexp.MustCompile("(?s)^(`[^`]+`|[^*\\[{\\s]+)(\\*?)\\s*(.*)$")
	pragmaRe   = regexp.MustCompile(`(?s)^\{\.\s*(.*?)\s*\.\}$`)
)

// ParseType decomposes `Name*[generics] {.pragmas.} = definition`. It returns
// false when the text does not look like a type declaration.
func ParseType(raw string) (*TypeDecl, bool) {
	code := strings.TrimSpace(raw)
	m := typeDeclRe.FindStringSubmatch(code)
	if m == nil || strings.TrimSpace(m[1]) == "" {
		logging.ParseWarn("unmatched type declaration: %s", code)
		return nil, false
	}

	head := strings.TrimSpace(m[1])
	n := typeNameRe.FindStringSubmatch(head)
	if n == nil {
		logging.ParseWarn("unmatched type name: %s", head)
		return nil, false
	}

	td := &TypeDecl{
		Name:       n[1],
		Exported:   n[2] == "*",
		Definition: strings.TrimSpace(m[2]),
	}

	rest := grammar.NewBuffer(strings.TrimSpace(n[3]))
	generics, err := rest.ExtractGroup('[', ']')
	if err != nil {
		logging.ParseWarn("unbalanced generics in type %s", td.Name)
		return nil, false
	}
	td.Generics = ParseArgs(generics)
	if p := pragmaRe.FindStringSubmatch(strings.TrimSpace(rest.String())); p != nil {
		td.Pragmas = p[1]
	}
	return td, true
}
