package main

import (
	"context"
	"fmt"
	"io"

	"go.uber.org/zap"

	"nimp/internal/config"
	"nimp/internal/extract"
	"nimp/internal/knowledge"
	"nimp/internal/pipeline"
	"nimp/internal/repair"
	"nimp/internal/resolver"
	"nimp/internal/synth"
	"nimp/internal/tactile"
)

// openStore opens the configured knowledge store. noCache selects an
// in-memory store so nothing is read or written.
func openStore(c *config.Config, noCache bool) (knowledge.Store, func() error, error) {
	nop := func() error { return nil }
	if noCache {
		return knowledge.NewMemoryStore(), nop, nil
	}
	switch c.Knowledge.Backend {
	case "memory":
		return knowledge.NewMemoryStore(), nop, nil
	case "sqlite":
		s, err := knowledge.OpenSQLStore(c.Knowledge.SQLDriver, c.Knowledge.Path)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	default:
		return knowledge.NewFileStore(c.Knowledge.Path), nop, nil
	}
}

// buildResolver assembles the unknown-type resolver: configured seeds first,
// then the selected mode.
func buildResolver(ctx context.Context, c *config.Config, in io.Reader, out io.Writer) (synth.Resolver, error) {
	seeds, err := resolver.ParseSeeds(c.Resolver.Seeds)
	if err != nil {
		return nil, err
	}
	chain := resolver.Chain{seeds}

	switch c.Resolver.Mode {
	case "default":
		chain = append(chain, resolver.Default{})
	case "tui":
		chain = append(chain, resolver.NewTUI(in, out))
	case "gemini":
		g, err := resolver.NewGemini(ctx, c.Resolver.APIKey, c.Resolver.GeminiModel, c.GetResolverTimeout())
		if err != nil {
			return nil, err
		}
		chain = append(chain, g, resolver.Default{})
	case "prompt", "":
		chain = append(chain, resolver.NewPrompt(in, out))
	default:
		return nil, fmt.Errorf("unknown resolver mode %q", c.Resolver.Mode)
	}
	return chain, nil
}

// newExecutor returns the process executor shared by the compiler and the
// documentation extractor.
func newExecutor(c *config.Config) *tactile.DirectExecutor {
	ec := tactile.DefaultExecutorConfig()
	if c.Nim.MaxOutputBytes > 0 {
		ec.MaxOutputBytes = c.Nim.MaxOutputBytes
	}
	return tactile.NewDirectExecutorWithConfig(ec)
}

type runOptions struct {
	noCache  bool
	noRepair bool
	resolver string
}

// newPipeline wires a pipeline from the loaded config. The returned func
// releases the knowledge store.
func newPipeline(ctx context.Context, c *config.Config, opts runOptions, in io.Reader, out io.Writer) (*pipeline.Pipeline, func() error, error) {
	if opts.resolver != "" {
		c.Resolver.Mode = opts.resolver
	}
	store, closeStore, err := openStore(c, opts.noCache)
	if err != nil {
		return nil, nil, err
	}
	res, err := buildResolver(ctx, c, in, out)
	if err != nil {
		closeStore()
		return nil, nil, err
	}

	executor := newExecutor(c)
	extractor := extract.NewNimDoc(executor, c.NimBinary(), c.Nim.DocPath, c.GetDocTimeout())
	compiler := repair.NewNimCompiler(executor, c.NimBinary(), c.Nim.Defines, c.GetCompileTimeout())

	var popts []pipeline.Option
	if opts.noRepair {
		popts = append(popts, pipeline.WithRepair(false))
	}
	logger.Debug("pipeline wired",
		zap.String("store", c.Knowledge.Backend),
		zap.Bool("no_cache", opts.noCache),
		zap.String("resolver", c.Resolver.Mode))
	return pipeline.New(c, extractor, compiler, store, res, popts...), closeStore, nil
}
