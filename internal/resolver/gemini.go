package resolver

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"

	"nimp/internal/knowledge"
	"nimp/internal/logging"
)

const geminiPrompt = `You classify Nim types so a tool can build a throwaway value of each.
Answer with exactly one line, one of:
ref                 heap-allocated (ref object); built with new(T)
object              value object; built with T()
literal: <expr>     a Nim expression of that type, for enums T.firstMember
redirect: <type>    the type is an alias or distinct wrapper of <type>

Type: %s`

// contentGenerator is the part of the genai client Gemini uses.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Gemini asks a Gemini model to classify types.
type Gemini struct {
	models  contentGenerator
	model   string
	timeout time.Duration
}

// NewGemini creates a resolver backed by the Gemini API.
func NewGemini(ctx context.Context, apiKey, model string, timeout time.Duration) (*Gemini, error) {
	if apiKey == "" {
		return nil, errors.New("gemini API key is required")
	}
	if model == "" {
		model = "gemini-2.5-flash"
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return &Gemini{models: client.Models, model: model, timeout: timeout}, nil
}

// Resolve implements synth.Resolver. Answers that are not a classification
// leave the type unresolved so a chain can fall through.
func (g *Gemini) Resolve(ctx context.Context, typeName string) (knowledge.Classification, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	resp, err := g.models.GenerateContent(ctx, g.model, genai.Text(fmt.Sprintf(geminiPrompt, typeName)), &genai.GenerateContentConfig{
		Temperature: genai.Ptr[float32](0),
	})
	if err != nil {
		return knowledge.Classification{}, fmt.Errorf("gemini classify %s: %w", typeName, err)
	}

	answer := firstLine(resp.Text())
	c, err := knowledge.ParseClassification(strings.Trim(answer, "`"))
	if err != nil {
		logging.Get(logging.CategoryResolver).Warn("unusable answer for %s: %q", typeName, answer)
		return knowledge.Classification{}, fmt.Errorf("%w: %s (model answered %q)", ErrUnresolved, typeName, answer)
	}
	logging.Resolver("gemini classified %s as %s", typeName, c)
	return c, nil
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}
