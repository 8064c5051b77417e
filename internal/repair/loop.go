// Package repair compiles the generated unit and removes the records the
// compiler rejects until what remains compiles.
package repair

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"nimp/internal/codegen"
	"nimp/internal/logging"
)

// ErrUnrepairable is returned when a failing compile cannot be traced to a
// removable record.
var ErrUnrepairable = errors.New("compile failure is not repairable")

// State is the loop's state.
type State int

const (
	StateCompiling State = iota
	StateDone
)

func (s State) String() string {
	switch s {
	case StateCompiling:
		return "compiling"
	case StateDone:
		return "done"
	default:
		return "unknown"
	}
}

// Removal describes one record taken out of the unit.
type Removal struct {
	Proc       string
	Line       int
	Diagnostic string
}

// Outcome summarizes a run.
type Outcome struct {
	Success    bool
	State      State
	Iterations int
	Removals   []Removal
	// Log is the compiler log of the last iteration.
	Log      string
	Duration time.Duration
}

// Option configures a Loop.
type Option func(*Loop)

// WithMaxIterations bounds the number of compiler runs. Zero means no bound;
// every failing iteration removes a record, so the loop ends regardless.
func WithMaxIterations(n int) Option {
	return func(l *Loop) { l.maxIterations = n }
}

// Loop is the compile and repair state machine.
type Loop struct {
	compiler      Compiler
	stagingPath   string
	outputPath    string
	maxIterations int
}

// NewLoop returns a loop writing the unit to stagingPath and compiling it to outputPath.
func NewLoop(compiler Compiler, stagingPath, outputPath string, opts ...Option) *Loop {
	l := &Loop{compiler: compiler, stagingPath: stagingPath, outputPath: outputPath}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Run compiles unit until it succeeds or a failure cannot be located. The
// unit is modified in place and the last rendered version stays on disk.
func (l *Loop) Run(ctx context.Context, unit *codegen.Unit) (*Outcome, error) {
	timer := logging.StartTimer(logging.CategoryRepair, "repair.Run")
	defer timer.Stop()

	start := time.Now()
	out := &Outcome{State: StateCompiling}
	defer func() { out.Duration = time.Since(start) }()

	for out.State == StateCompiling {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		if l.maxIterations > 0 && out.Iterations >= l.maxIterations {
			out.State = StateDone
			return out, fmt.Errorf("%w: gave up after %d iterations", ErrUnrepairable, out.Iterations)
		}
		out.Iterations++

		rendering := unit.Render()
		if err := l.write(rendering.Text); err != nil {
			return out, err
		}

		res, err := l.compiler.Compile(ctx, l.stagingPath, l.outputPath)
		if err != nil {
			return out, fmt.Errorf("compile iteration %d: %w", out.Iterations, err)
		}
		out.Log = res.Log

		if res.Success {
			out.State = StateDone
			out.Success = true
			logging.Repair("compiled %d/%d procs after %d iterations",
				unit.Compiled(), unit.Attempted(), out.Iterations)
			return out, nil
		}

		loc, ok := Locate(res.Log, l.stagingPath)
		if !ok {
			out.State = StateDone
			logging.RepairWarn("compile failed with no location in %s", l.stagingPath)
			return out, fmt.Errorf("%w: no position in compiler log", ErrUnrepairable)
		}
		id, ok := rendering.RecordAt(loc.Line)
		if !ok {
			out.State = StateDone
			logging.RepairWarn("compile failed outside generated calls at line %d", loc.Line)
			return out, fmt.Errorf("%w: line %d is not a generated call", ErrUnrepairable, loc.Line)
		}
		rec, err := unit.Remove(id, loc.Diagnostic)
		if err != nil {
			out.State = StateDone
			return out, fmt.Errorf("%w: line %d: %v", ErrUnrepairable, loc.Line, err)
		}

		out.Removals = append(out.Removals, Removal{Proc: rec.Proc, Line: loc.Line, Diagnostic: loc.Diagnostic})
		logging.Repair("iteration %d: removed %s (line %d), %d/%d left",
			out.Iterations, rec.Proc, loc.Line, unit.Compiled(), unit.Attempted())
	}
	return out, nil
}

func (l *Loop) write(text string) error {
	if dir := filepath.Dir(l.stagingPath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create staging dir: %w", err)
		}
	}
	if err := os.WriteFile(l.stagingPath, []byte(text), 0644); err != nil {
		return fmt.Errorf("write staging file: %w", err)
	}
	return nil
}
