// Package pipeline runs a whole generation: documentation extraction, type
// seeding, call generation per library and the compile-feedback repair loop.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"nimp/internal/codegen"
	"nimp/internal/config"
	"nimp/internal/decl"
	"nimp/internal/extract"
	"nimp/internal/knowledge"
	"nimp/internal/logging"
	"nimp/internal/repair"
	"nimp/internal/synth"
)

// Report summarizes one run.
type Report struct {
	Libraries         []string
	Attempted         int
	SynthesisFailures int
	Removed           int
	Compiled          int
	Success           bool
	Repaired          bool // the repair loop ran
	Iterations        int
	Removals          []repair.Removal
	StagingPath       string
	Duration          time.Duration
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithSynthOptions passes options to the value synthesizer.
func WithSynthOptions(opts ...synth.Option) Option {
	return func(p *Pipeline) { p.synthOpts = append(p.synthOpts, opts...) }
}

// WithRepair overrides the configured repair switch.
func WithRepair(enabled bool) Option {
	return func(p *Pipeline) { p.repair = enabled }
}

// Pipeline wires the collaborators of one run together.
type Pipeline struct {
	cfg       *config.Config
	extractor extract.Extractor
	compiler  repair.Compiler
	store     knowledge.Store
	resolver  synth.Resolver
	synthOpts []synth.Option
	repair    bool

	base *knowledge.Base
}

// New creates a pipeline. The knowledge base is loaded lazily on the first run.
func New(cfg *config.Config, extractor extract.Extractor, compiler repair.Compiler, store knowledge.Store, resolver synth.Resolver, opts ...Option) *Pipeline {
	p := &Pipeline{
		cfg:       cfg,
		extractor: extractor,
		compiler:  compiler,
		store:     store,
		resolver:  resolver,
		repair:    cfg.Generation.Repair,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Knowledge returns the knowledge base, loading it if needed.
func (p *Pipeline) Knowledge(ctx context.Context) (*knowledge.Base, error) {
	if p.base != nil {
		return p.base, nil
	}
	base := knowledge.Seed()
	if err := knowledge.LoadInto(ctx, p.store, base); err != nil {
		return nil, err
	}
	logging.Store("knowledge base loaded: %d entries", base.Len())
	p.base = base
	return base, nil
}

// ModuleName returns the Nim module name of a library identifier such as
// "pure/strutils".
func ModuleName(lib string) string {
	return strings.TrimSuffix(filepath.Base(filepath.ToSlash(lib)), ".nim")
}

// importable reports whether module must be imported explicitly. system is
// implicitly imported by every Nim module.
func importable(module string) bool {
	return module != "system"
}

// Generate builds the unit for libs. It stops at the first procedure
// declaration that cannot be parsed.
func (p *Pipeline) Generate(ctx context.Context, libs []string) (*codegen.Unit, error) {
	timer := logging.StartTimer(logging.CategoryCodegen, "pipeline.Generate")
	defer timer.Stop()

	base, err := p.Knowledge(ctx)
	if err != nil {
		return nil, err
	}

	unit := codegen.NewUnit(p.cfg.Generation.Imports)
	gen := codegen.NewGenerator(synth.New(p.resolver, p.synthOpts...), base)

	for _, lib := range libs {
		if err := p.generateLibrary(ctx, gen, unit, lib); err != nil {
			return unit, err
		}
	}
	return unit, nil
}

func (p *Pipeline) generateLibrary(ctx context.Context, gen *codegen.Generator, unit *codegen.Unit, lib string) error {
	module := ModuleName(lib)
	path := p.cfg.LibraryPath(lib)
	logging.Codegen("exporting library %s (%s)", module, path)

	records, err := p.extractor.Extract(ctx, path)
	if err != nil {
		return fmt.Errorf("extract %s: %w", lib, err)
	}

	seeded := 0
	for _, r := range records {
		if r.Kind != extract.KindType {
			continue
		}
		td, ok := decl.ParseType(r.Code)
		if !ok {
			logging.Get(logging.CategoryParse).Warn("skipping type %s: unparsable declaration", r.Name)
			continue
		}
		if p.base.SeedType(td) {
			seeded++
		}
	}
	logging.CodegenDebug("%s: seeded %d types", module, seeded)

	if importable(module) {
		unit.AddLibrary(module)
	}

	procs := 0
	for _, r := range records {
		if r.Kind != extract.KindProc {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		sig, err := decl.ParseProc(r.Code)
		if err != nil {
			return fmt.Errorf("%s line %d: %w", lib, r.Line, err)
		}
		unit.Add(gen.Generate(ctx, module, sig))
		procs++
	}
	logging.Codegen("%s: generated %d calls", module, procs)

	if err := p.store.Save(ctx, p.base); err != nil {
		return fmt.Errorf("save knowledge after %s: %w", lib, err)
	}
	return nil
}

// Run generates the unit for libs and compiles it.
func (p *Pipeline) Run(ctx context.Context, libs []string) (*Report, error) {
	start := time.Now()
	unit, err := p.Generate(ctx, libs)
	if err != nil {
		return nil, err
	}
	report, err := p.finish(ctx, unit)
	report.Libraries = libs
	report.Duration = time.Since(start)
	return report, err
}

// CompileOnly reads the staging file back as a raw unit and runs the repair
// loop on it, skipping generation.
func (p *Pipeline) CompileOnly(ctx context.Context) (*Report, error) {
	start := time.Now()
	data, err := os.ReadFile(p.cfg.Nim.StagingPath)
	if err != nil {
		return nil, fmt.Errorf("read staging file: %w", err)
	}
	unit := codegen.ParseRaw(string(data))
	logging.Codegen("compile only: %d calls read from %s", unit.Attempted(), p.cfg.Nim.StagingPath)

	p.repair = true
	report, err := p.finish(ctx, unit)
	report.Duration = time.Since(start)
	return report, err
}

func (p *Pipeline) finish(ctx context.Context, unit *codegen.Unit) (*Report, error) {
	report := &Report{StagingPath: p.cfg.Nim.StagingPath}
	defer func() {
		report.Attempted = unit.Attempted()
		report.SynthesisFailures = unit.SynthesisFailures()
		report.Removed = unit.Removed()
		report.Compiled = unit.Compiled()
	}()

	if !p.repair {
		if err := writeStaging(p.cfg.Nim.StagingPath, unit.Render().Text); err != nil {
			return report, err
		}
		logging.Codegen("repair disabled, unit written to %s", p.cfg.Nim.StagingPath)
		return report, nil
	}

	loop := repair.NewLoop(p.compiler, p.cfg.Nim.StagingPath, p.cfg.Nim.OutputPath,
		repair.WithMaxIterations(p.cfg.Generation.MaxIterations))
	outcome, err := loop.Run(ctx, unit)
	report.Repaired = true
	if outcome != nil {
		report.Success = outcome.Success
		report.Iterations = outcome.Iterations
		report.Removals = outcome.Removals
	}
	if err != nil {
		if errors.Is(err, repair.ErrUnrepairable) {
			logging.RepairWarn("partial unit left at %s", p.cfg.Nim.StagingPath)
		}
		return report, err
	}
	return report, nil
}

func writeStaging(path, text string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create staging dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(text), 0644); err != nil {
		return fmt.Errorf("write staging file: %w", err)
	}
	return nil
}
