package repair

import (
	"context"
	"fmt"
	"time"

	"nimp/internal/tactile"
)

// CompileResult is the outcome of one compiler run.
type CompileResult struct {
	Success  bool
	ExitCode int
	Log      string // combined stdout and stderr
	Duration time.Duration
}

// Compiler compiles the source at sourcePath into outputPath.
type Compiler interface {
	Compile(ctx context.Context, sourcePath, outputPath string) (*CompileResult, error)
}

// CompilerFunc adapts a function to Compiler.
type CompilerFunc func(ctx context.Context, sourcePath, outputPath string) (*CompileResult, error)

// Compile implements Compiler.
func (f CompilerFunc) Compile(ctx context.Context, sourcePath, outputPath string) (*CompileResult, error) {
	return f(ctx, sourcePath, outputPath)
}

// NimCompiler runs `nim c` through an executor.
type NimCompiler struct {
	executor tactile.Executor
	binary   string
	defines  []string
	timeout  time.Duration
}

// NewNimCompiler returns a compiler invoking binary with -d:<define> for
// each define. A zero timeout waits for the compiler indefinitely.
func NewNimCompiler(executor tactile.Executor, binary string, defines []string, timeout time.Duration) *NimCompiler {
	return &NimCompiler{
		executor: executor,
		binary:   binary,
		defines:  append([]string(nil), defines...),
		timeout:  timeout,
	}
}

// Args returns the command line arguments for compiling sourcePath.
func (c *NimCompiler) Args(sourcePath, outputPath string) []string {
	args := make([]string, 0, len(c.defines)+3)
	args = append(args, "c", "-o:"+outputPath)
	for _, d := range c.defines {
		args = append(args, "-d:"+d)
	}
	return append(args, sourcePath)
}

// Compile implements Compiler.
func (c *NimCompiler) Compile(ctx context.Context, sourcePath, outputPath string) (*CompileResult, error) {
	res, err := c.executor.Execute(ctx, tactile.Command{
		Binary:    c.binary,
		Arguments: c.Args(sourcePath, outputPath),
		Timeout:   c.timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("run %s: %w", c.binary, err)
	}
	if res.IsError() {
		return nil, fmt.Errorf("run %s: %s", c.binary, res.Error)
	}
	if res.Killed {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%s killed: %s", c.binary, res.KillReason)
	}
	return &CompileResult{
		Success:  res.ExitCode == 0,
		ExitCode: res.ExitCode,
		Log:      res.Output(),
		Duration: res.Duration,
	}, nil
}
