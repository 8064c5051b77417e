package resolver

import (
	"bufio"
	"context"
	"fmt"
	"io"

	"nimp/internal/knowledge"
	"nimp/internal/logging"
)

// Prompt asks an operator on a line-oriented terminal.
type Prompt struct {
	in  *bufio.Reader
	out io.Writer
}

// NewPrompt returns a Prompt reading answers from in and writing questions to out.
func NewPrompt(in io.Reader, out io.Writer) *Prompt {
	return &Prompt{in: bufio.NewReader(in), out: out}
}

// Resolve implements synth.Resolver. Empty answers repeat the question; end
// of input leaves the type unresolved.
func (p *Prompt) Resolve(ctx context.Context, typeName string) (knowledge.Classification, error) {
	for {
		if err := ctx.Err(); err != nil {
			return knowledge.Classification{}, err
		}
		fmt.Fprintf(p.out, "What value should be used for type %s? ([!r]ef, [!o]bject) ", typeName)
		line, err := p.in.ReadString('\n')
		if c, ok := parseAnswer(line); ok {
			logging.Resolver("operator classified %s as %s", typeName, c)
			return c, nil
		}
		if err != nil {
			if err == io.EOF {
				return knowledge.Classification{}, fmt.Errorf("%w: %s (no more input)", ErrUnresolved, typeName)
			}
			return knowledge.Classification{}, fmt.Errorf("read answer: %w", err)
		}
	}
}
