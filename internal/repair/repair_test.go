package repair

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"nimp/internal/codegen"
	"nimp/internal/tactile"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// badLineCompiler fails on the first code line containing "BAD", the way
// nim reports the first error it meets.
type badLineCompiler struct {
	runs int
	log  func(path string, line int) string
}

func (c *badLineCompiler) Compile(_ context.Context, src, _ string) (*CompileResult, error) {
	c.runs++
	data, err := os.ReadFile(src)
	if err != nil {
		return nil, err
	}
	for i, line := range strings.Split(string(data), "\n") {
		if !strings.HasPrefix(line, "#") && strings.Contains(line, "BAD") {
			log := fmt.Sprintf("Hint: used config file\n%s(%d, 5) Error: undeclared identifier: 'BAD'\n", src, i+1)
			if c.log != nil {
				log = c.log(src, i+1)
			}
			return &CompileResult{ExitCode: 1, Log: log}, nil
		}
	}
	return &CompileResult{Success: true, Log: "Hint: operation successful"}, nil
}

func unitWithCalls(calls ...string) *codegen.Unit {
	var b strings.Builder
	for _, c := range calls {
		b.WriteString(c + "\n\n")
	}
	return codegen.ParseRaw(b.String())
}

func TestLoop_Converges(t *testing.T) {
	staging := filepath.Join(t.TempDir(), "tmp", "dummy_code.nim")
	unit := unitWithCalls(
		"discard lib.a(1)",
		"lib.b(BAD)",
		"discard lib.c(1.0)",
		"lib.d(BAD, BAD)",
		"lib.e()",
	)
	require.Equal(t, 5, unit.Attempted())

	compiler := &badLineCompiler{}
	out, err := NewLoop(compiler, staging, staging+".out").Run(context.Background(), unit)
	require.NoError(t, err)

	assert.True(t, out.Success)
	assert.Equal(t, StateDone, out.State)
	assert.Equal(t, 3, out.Iterations)
	assert.LessOrEqual(t, out.Iterations, unit.Attempted())
	assert.Equal(t, 3, unit.Compiled(), "five calls minus two failing lines")
	require.Len(t, out.Removals, 2)
	assert.Equal(t, "lib.b", out.Removals[0].Proc)
	assert.Equal(t, "lib.d", out.Removals[1].Proc)

	final, err := os.ReadFile(staging)
	require.NoError(t, err)
	assert.Contains(t, string(final), "# ERROR traceback")
	assert.Contains(t, string(final), "# lib.b(BAD)")
	assert.Contains(t, string(final), "\ndiscard lib.c(1.0)\n")
}

func TestLoop_NoLocation(t *testing.T) {
	staging := filepath.Join(t.TempDir(), "dummy_code.nim")
	compiler := &badLineCompiler{log: func(string, int) string {
		return "Error: execution of an external compiler program 'gcc' failed\n"
	}}
	unit := unitWithCalls("lib.b(BAD)")

	out, err := NewLoop(compiler, staging, staging+".out").Run(context.Background(), unit)
	assert.ErrorIs(t, err, ErrUnrepairable)
	assert.False(t, out.Success)
	assert.Equal(t, StateDone, out.State)
	assert.Equal(t, 1, unit.Compiled(), "nothing removed")
	assert.FileExists(t, staging, "partial unit stays on disk")
}

func TestLoop_LocationOutsideCalls(t *testing.T) {
	staging := filepath.Join(t.TempDir(), "dummy_code.nim")
	unit := codegen.NewUnit([]string{"BAD"})
	compiler := &badLineCompiler{}

	_, err := NewLoop(compiler, staging, staging+".out").Run(context.Background(), unit)
	assert.ErrorIs(t, err, ErrUnrepairable)
	assert.Equal(t, 1, compiler.runs)
}

func TestLoop_MaxIterations(t *testing.T) {
	staging := filepath.Join(t.TempDir(), "dummy_code.nim")
	unit := unitWithCalls("lib.a(BAD)", "lib.b(BAD)", "lib.c(BAD)")
	compiler := &badLineCompiler{}

	out, err := NewLoop(compiler, staging, staging+".out", WithMaxIterations(2)).Run(context.Background(), unit)
	assert.ErrorIs(t, err, ErrUnrepairable)
	assert.Equal(t, 2, out.Iterations)
	assert.Equal(t, 2, compiler.runs)
}

func TestLoop_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	staging := filepath.Join(t.TempDir(), "dummy_code.nim")
	_, err := NewLoop(&badLineCompiler{}, staging, "").Run(ctx, unitWithCalls("lib.a()"))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLocate(t *testing.T) {
	staging := "/tmp/dummy_code.nim"
	log := strings.Join([]string{
		"Hint: used config file '/etc/nim/nim.cfg' [Conf]",
		"/tmp/dummy_code.nim(12, 8) template/generic instantiation of `get` from here",
		"/tmp/dummy_code.nim(40, 3) Error: type mismatch: got <int>",
		"but expected one of:",
		"/usr/lib/nim/pure/httpclient.nim(331, 6) proc get(c: HttpClient)",
		"",
	}, "\n")

	loc, ok := Locate(log, staging)
	require.True(t, ok)
	assert.Equal(t, 40, loc.Line)
	assert.Equal(t, 3, loc.Column)
	assert.True(t, strings.HasPrefix(loc.Diagnostic, "/tmp/dummy_code.nim(40, 3) Error"))
	assert.True(t, strings.HasSuffix(loc.Diagnostic, "proc get(c: HttpClient)"))

	_, ok = Locate("/usr/lib/nim/system.nim(1, 1) Error: x", staging)
	assert.False(t, ok)
	_, ok = Locate("", staging)
	assert.False(t, ok)
}

func TestLocate_RelativeStaging(t *testing.T) {
	loc, ok := Locate("/home/u/work/tmp/dummy_code.nim(7, 1) Error: x\r\n", filepath.Join("tmp", "dummy_code.nim"))
	require.True(t, ok)
	assert.Equal(t, 7, loc.Line)
	assert.Equal(t, "/home/u/work/tmp/dummy_code.nim(7, 1) Error: x", loc.Diagnostic)
}

type recordingExecutor struct {
	cmd    tactile.Command
	result *tactile.ExecutionResult
}

func (e *recordingExecutor) Execute(_ context.Context, cmd tactile.Command) (*tactile.ExecutionResult, error) {
	e.cmd = cmd
	return e.result, nil
}

func TestNimCompiler_Command(t *testing.T) {
	exec := &recordingExecutor{result: &tactile.ExecutionResult{Success: true, ExitCode: 1, Combined: "x.nim(1, 1) Error"}}
	c := NewNimCompiler(exec, "/opt/nim/bin/nim", []string{"nimCoroutines", "release", "ssl"}, 0)

	res, err := c.Compile(context.Background(), "tmp/dummy_code.nim", "tmp/dummy_nim")
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, 1, res.ExitCode)
	assert.Equal(t, "x.nim(1, 1) Error", res.Log)
	assert.Equal(t, "/opt/nim/bin/nim", exec.cmd.Binary)
	assert.Equal(t, []string{"c", "-o:tmp/dummy_nim", "-d:nimCoroutines", "-d:release", "-d:ssl", "tmp/dummy_code.nim"}, exec.cmd.Arguments)

	exec.result = &tactile.ExecutionResult{Success: false, Error: "exec: \"nim\": not found"}
	_, err = c.Compile(context.Background(), "a.nim", "a")
	assert.Error(t, err)

	exec.result = &tactile.ExecutionResult{Success: true, Killed: true, KillReason: "timeout after 1s"}
	_, err = c.Compile(context.Background(), "a.nim", "a")
	assert.ErrorContains(t, err, "timeout")
}

// fakeNim is a stand-in compiler script that rejects lines mentioning BAD.
const fakeNim = `#!/bin/sh
for last; do :; done
n=$(grep -n '^[^#]*BAD' "$last" | head -1 | cut -d: -f1)
if [ -n "$n" ]; then
  echo "Hint: compiling"
  echo "$last($n, 1) Error: undeclared identifier: 'BAD'" >&2
  exit 1
fi
exit 0
`

func TestLoop_WithProcessCompiler(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses sh")
	}
	dir := t.TempDir()
	nim := filepath.Join(dir, "nim")
	require.NoError(t, os.WriteFile(nim, []byte(fakeNim), 0755))
	staging := filepath.Join(dir, "dummy_code.nim")

	compiler := NewNimCompiler(tactile.NewDirectExecutor(), nim, []string{"release"}, 0)
	unit := unitWithCalls("lib.a()", "lib.b(BAD)", "lib.c()")

	out, err := NewLoop(compiler, staging, filepath.Join(dir, "dummy_nim")).Run(context.Background(), unit)
	require.NoError(t, err)
	assert.True(t, out.Success)
	assert.Equal(t, 2, out.Iterations)
	assert.Equal(t, 2, unit.Compiled())
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "compiling", StateCompiling.String())
	assert.Equal(t, "done", StateDone.String())
	assert.Equal(t, "unknown", State(9).String())
}
