// Package resolver classifies type names the knowledge base does not know:
// by asking an operator, from a seeded table, with a fixed default, or with
// an LLM.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"nimp/internal/knowledge"
	"nimp/internal/logging"
	"nimp/internal/synth"
)

// ErrUnresolved is returned by a resolver that has no answer. Chain moves on
// to the next resolver when it sees it.
var ErrUnresolved = synth.ErrUnresolved

var (
	_ synth.Resolver = Default{}
	_ synth.Resolver = Seeded(nil)
	_ synth.Resolver = Chain(nil)
	_ synth.Resolver = (*Prompt)(nil)
	_ synth.Resolver = (*TUI)(nil)
	_ synth.Resolver = (*Gemini)(nil)
)

// Default classifies every type as a value object.
type Default struct{}

// Resolve implements synth.Resolver.
func (Default) Resolve(_ context.Context, typeName string) (knowledge.Classification, error) {
	logging.ResolverDebug("defaulting %s to object", typeName)
	return knowledge.Value(), nil
}

// Seeded answers from a fixed table keyed by type text or base name.
type Seeded map[string]knowledge.Classification

// ParseSeeds builds a Seeded resolver from textual classifications.
func ParseSeeds(seeds map[string]string) (Seeded, error) {
	s := make(Seeded, len(seeds))
	for name, text := range seeds {
		c, err := knowledge.ParseClassification(text)
		if err != nil {
			return nil, fmt.Errorf("seed %s: %w", name, err)
		}
		s[name] = c
	}
	return s, nil
}

// Resolve implements synth.Resolver.
func (s Seeded) Resolve(_ context.Context, typeName string) (knowledge.Classification, error) {
	if c, ok := s[typeName]; ok {
		return c, nil
	}
	if c, ok := s[baseName(typeName)]; ok {
		return c, nil
	}
	return knowledge.Classification{}, fmt.Errorf("%w: %s not seeded", ErrUnresolved, typeName)
}

// Chain asks each resolver in turn until one answers.
type Chain []synth.Resolver

// Resolve implements synth.Resolver.
func (c Chain) Resolve(ctx context.Context, typeName string) (knowledge.Classification, error) {
	for _, r := range c {
		cl, err := r.Resolve(ctx, typeName)
		if err == nil {
			return cl, nil
		}
		if !errors.Is(err, ErrUnresolved) {
			return knowledge.Classification{}, err
		}
	}
	return knowledge.Classification{}, fmt.Errorf("%w: %s", ErrUnresolved, typeName)
}

func baseName(typeName string) string {
	if i := strings.IndexByte(typeName, '['); i > 0 {
		return typeName[:i]
	}
	return typeName
}

// parseAnswer reads an operator answer: "!r" and "!o" pick reference and
// object, the explicit "redirect: " and "literal: " forms are honoured, and
// anything else is taken as the literal expression itself.
func parseAnswer(answer string) (knowledge.Classification, bool) {
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return knowledge.Classification{}, false
	}
	if c, err := knowledge.ParseClassification(answer); err == nil {
		return c, true
	}
	return knowledge.Literal(answer), true
}
