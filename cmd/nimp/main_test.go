package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"nimp/internal/config"
	"nimp/internal/knowledge"
	"nimp/internal/pipeline"
	"nimp/internal/repair"
	"nimp/internal/resolver"
)

// fakeNim answers jsondoc with a one-procedure document and accepts every
// compilation.
const fakeNim = `#!/bin/sh
case "$1" in
jsondoc)
  for arg; do
    case "$arg" in
      -o:*) out="${arg#-o:}" ;;
    esac
  done
  cat > "$out" <<'EOF'
{"entries": [
  {"name": "Proxy", "type": "skType", "line": 3, "code": "Proxy* = ref object\n  url*: string"},
  {"name": "add", "type": "skProc", "line": 10, "code": "proc add*(a, b: int): int"}
]}
EOF
  ;;
c)
  exit 0
  ;;
esac
`

// setupWorkspace writes a config into a fresh workspace and returns its path.
func setupWorkspace(t *testing.T, extra string) (string, string) {
	t.Helper()
	dir := t.TempDir()
	nim := filepath.Join(dir, "nim")
	require.NoError(t, os.WriteFile(nim, []byte(fakeNim), 0755))

	yaml := `nim:
  binary: ` + nim + `
  staging_path: ` + filepath.Join(dir, "out", "dummy_code.nim") + `
  output_path: ` + filepath.Join(dir, "out", "dummy_nim") + `
  doc_path: ` + filepath.Join(dir, "out", "nimdoc.json") + `
knowledge:
  backend: file
  path: kb.json
resolver:
  mode: default
` + extra
	path := filepath.Join(dir, config.DefaultFileName)
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0644))
	return dir, path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	genOpts = runOptions{}
	kbJSON, kbForce = false, false

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(append([]string{"--plain"}, args...))
	err := rootCmd.Execute()
	return out.String(), err
}

func TestGenerateCommand(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses sh")
	}
	dir, cfgPath := setupWorkspace(t, "")

	out, err := execute(t, "--workspace", dir, "--config", cfgPath, "generate", "pure/mylib")
	require.NoError(t, err)
	assert.Contains(t, out, "Successfully compiled 1/1 procs")
	assert.Contains(t, out, "pure/mylib")

	staging, err := os.ReadFile(filepath.Join(dir, "out", "dummy_code.nim"))
	require.NoError(t, err)
	assert.Contains(t, string(staging), "discard mylib.add(1, 1)")

	// the type seeded during generation was persisted
	out, err = execute(t, "--workspace", dir, "--config", cfgPath, "kb", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "`Proxy` | ref")
}

func TestCompileCommand_NoStaging(t *testing.T) {
	dir, cfgPath := setupWorkspace(t, "")
	_, err := execute(t, "--workspace", dir, "--config", cfgPath, "compile")
	assert.ErrorContains(t, err, "read staging file")
}

func TestKnowledgeCommands(t *testing.T) {
	dir, cfgPath := setupWorkspace(t, "")
	base := []string{"--workspace", dir, "--config", cfgPath}

	out, err := execute(t, append(base, "kb", "classify", "AsyncFD", "redirect: int")...)
	require.NoError(t, err)
	assert.Contains(t, out, "AsyncFD: redirect: int")

	_, err = execute(t, append(base, "kb", "classify", "AsyncFD", "!r")...)
	assert.ErrorIs(t, err, knowledge.ErrConflict)

	_, err = execute(t, append(base, "kb", "classify", "--force", "AsyncFD", "!r")...)
	require.NoError(t, err)

	out, err = execute(t, append(base, "kb", "show", "--json")...)
	require.NoError(t, err)
	b, err := knowledge.Decode(strings.NewReader(out))
	require.NoError(t, err)
	c, ok := b.Lookup("AsyncFD")
	require.True(t, ok)
	assert.Equal(t, knowledge.Reference(), c)
	// seeded defaults are part of the shown base
	assert.True(t, b.Has("SockLen"))

	out, err = execute(t, append(base, "kb", "check")...)
	require.NoError(t, err)
	assert.Contains(t, out, "No problems found")

	_, err = execute(t, append(base, "kb", "classify", "Loop", "redirect: Loop2")...)
	require.NoError(t, err)
	_, err = execute(t, append(base, "kb", "classify", "Loop2", "redirect: Loop")...)
	require.NoError(t, err)
	out, err = execute(t, append(base, "kb", "check")...)
	assert.Error(t, err)
	assert.Contains(t, out, "Redirect cycles")
}

func TestInvalidConfig(t *testing.T) {
	dir, cfgPath := setupWorkspace(t, "generation:\n  max_iterations: -1\n")
	_, err := execute(t, "--workspace", dir, "--config", cfgPath, "kb", "show")
	assert.ErrorContains(t, err, "max_iterations")
}

func TestOpenStore(t *testing.T) {
	c := config.DefaultConfig()
	c.Knowledge.Path = filepath.Join(t.TempDir(), "kb.json")

	s, closeStore, err := openStore(c, true)
	require.NoError(t, err)
	assert.IsType(t, &knowledge.MemoryStore{}, s)
	require.NoError(t, closeStore())

	s, closeStore, err = openStore(c, false)
	require.NoError(t, err)
	assert.IsType(t, &knowledge.FileStore{}, s)
	require.NoError(t, closeStore())

	c.Knowledge.Backend = "sqlite"
	c.Knowledge.SQLDriver = "sqlite"
	c.Knowledge.Path = filepath.Join(t.TempDir(), "kb.db")
	s, closeStore, err = openStore(c, false)
	require.NoError(t, err)
	assert.IsType(t, &knowledge.SQLStore{}, s)
	require.NoError(t, closeStore())
}

func TestBuildResolver(t *testing.T) {
	logger = zap.NewNop()
	c := config.DefaultConfig()
	c.Resolver.Mode = "default"
	c.Resolver.Seeds = map[string]string{"Proxy": "!r"}

	r, err := buildResolver(context.Background(), c, strings.NewReader(""), &bytes.Buffer{})
	require.NoError(t, err)
	got, err := r.Resolve(context.Background(), "Proxy")
	require.NoError(t, err)
	assert.Equal(t, knowledge.Reference(), got)
	got, err = r.Resolve(context.Background(), "Other")
	require.NoError(t, err)
	assert.Equal(t, knowledge.Value(), got)

	c.Resolver.Mode = "prompt"
	r, err = buildResolver(context.Background(), c, strings.NewReader(""), &bytes.Buffer{})
	require.NoError(t, err)
	_, err = r.Resolve(context.Background(), "Other")
	assert.ErrorIs(t, err, resolver.ErrUnresolved)

	c.Resolver.Mode = "gemini"
	c.Resolver.APIKey = ""
	_, err = buildResolver(context.Background(), c, nil, nil)
	assert.Error(t, err)

	c.Resolver.Mode = "oracle"
	_, err = buildResolver(context.Background(), c, nil, nil)
	assert.Error(t, err)

	c.Resolver.Mode = "default"
	c.Resolver.Seeds = map[string]string{"Bad": "perhaps"}
	_, err = buildResolver(context.Background(), c, nil, nil)
	assert.Error(t, err)
}

func TestRenderReport(t *testing.T) {
	md := renderReport(&pipeline.Report{
		Libraries:   []string{"pure/strutils"},
		Attempted:   5,
		Removed:     1,
		Compiled:    4,
		Success:     true,
		Repaired:    true,
		Iterations:  2,
		StagingPath: "/tmp/dummy_code.nim",
		Removals: []repair.Removal{
			{Proc: "strutils.align", Line: 40, Diagnostic: "Error: type mismatch\nbut expected one of:"},
		},
	})
	assert.Contains(t, md, "**Successfully compiled 4/5 procs**")
	assert.Contains(t, md, "| Compiler runs | 2 |")
	assert.Contains(t, md, "- `strutils.align` (line 40): Error: type mismatch\n")
	assert.NotContains(t, md, "but expected")

	md = renderReport(&pipeline.Report{Attempted: 3, Compiled: 3})
	assert.Contains(t, md, "not compiled")
	md = renderReport(&pipeline.Report{Attempted: 3, Compiled: 2, Repaired: true})
	assert.Contains(t, md, "Compilation failed with 2/3 procs left")
}

func TestRenderKnowledge(t *testing.T) {
	b := knowledge.NewBase()
	require.NoError(t, b.Classify("Callback", knowledge.Redirect("proc (fd: AsyncFD): bool {.closure, gcsafe.}")))
	md := renderKnowledge(b)
	assert.Contains(t, md, "(1 entries)")
	assert.Contains(t, md, "| `Callback` | redirect: proc")
}

func TestPrintMarkdown_Styled(t *testing.T) {
	plain = false
	defer func() { plain = true }()

	var out bytes.Buffer
	require.NoError(t, printMarkdown(&out, "# Title\n\nbody text\n"))
	assert.Contains(t, out.String(), "body text")
}
