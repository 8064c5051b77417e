package codegen

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nimp/internal/decl"
	"nimp/internal/knowledge"
	"nimp/internal/synth"
)

func newTestGenerator(global *knowledge.Base) *Generator {
	n := 0
	namer := func() string {
		n++
		return fmt.Sprintf("v_%d", n)
	}
	return NewGenerator(synth.New(nil, synth.WithNamer(namer)), global)
}

func mustProc(t *testing.T, raw string) *decl.Signature {
	t.Helper()
	sig, err := decl.ParseProc(raw)
	require.NoError(t, err)
	return sig
}

func TestGenerate_Add(t *testing.T) {
	g := newTestGenerator(knowledge.Seed())
	rec := g.Generate(context.Background(), "mylib", mustProc(t, "proc add*(a, b: int): int"))

	assert.False(t, rec.Commented)
	assert.Empty(t, rec.Variables)
	assert.Equal(t, "discard mylib.add(1, 1)", rec.Call.Text)
	assert.NotEmpty(t, rec.Call.ID)
	assert.Equal(t, "mylib.add", rec.Proc)
}

func TestGenerate_MaterializedArguments(t *testing.T) {
	g := newTestGenerator(knowledge.Seed())
	rec := g.Generate(context.Background(), "mylib", mustProc(t, "proc pack*(a, b: int8; s: cstring)"))

	assert.Equal(t, "mylib.pack(v_1, v_1, v_2)", rec.Call.Text)
	assert.Equal(t, []string{"var v_1: int8 = 1", `var v_2: cstring = "a"`, "mylib.pack(v_1, v_1, v_2)"}, rec.Lines())
}

func TestGenerate_Generics(t *testing.T) {
	g := newTestGenerator(knowledge.Seed())
	rec := g.Generate(context.Background(), "sequtils",
		mustProc(t, "proc fill*[T](s: var seq[T]; v: T)"))
	require.False(t, rec.Commented, "%v", rec.Err)
	assert.Equal(t, []string{"var v_1 = @[1]", "sequtils.fill(v_1, 1)"}, rec.Lines())

	rec = g.Generate(context.Background(), "math", mustProc(t, "func clamp*[T: SomeFloat](x, a, b: T): T"))
	assert.Equal(t, "discard math.clamp(1.0, 1.0, 1.0)", rec.Call.Text)
}

func TestGenerate_DefaultsAreSkipped(t *testing.T) {
	g := newTestGenerator(knowledge.Seed())
	rec := g.Generate(context.Background(), "httpclient",
		mustProc(t, "proc getContent*(url: string; timeout = -1): string"))
	assert.Equal(t, `discard httpclient.getContent("a")`, rec.Call.Text)
}

func TestGenerate_VoidReturnHasNoDiscard(t *testing.T) {
	g := newTestGenerator(knowledge.Seed())
	rec := g.Generate(context.Background(), "os", mustProc(t, "proc sleep*(ms: int): void"))
	assert.Equal(t, "os.sleep(1)", rec.Call.Text)
}

func TestGenerate_UnresolvedIsCommented(t *testing.T) {
	global := knowledge.Seed()
	g := newTestGenerator(global)
	rec := g.Generate(context.Background(), "mylib", mustProc(t, "proc close*(c: Connection, n: int8)"))

	assert.True(t, rec.Commented)
	assert.ErrorIs(t, rec.Err, synth.ErrUnresolved)
	assert.Empty(t, rec.Variables, "commented records drop their variables")
	assert.True(t, strings.HasPrefix(rec.Call.Text, "# mylib.close("), rec.Call.Text)
	assert.NotContains(t, rec.Call.Text, "\n")
	assert.False(t, rec.Removable())
}

func TestGenerate_UnbalancedIsCommented(t *testing.T) {
	global := knowledge.Seed()
	global.Literals["Broken"] = "Broken(("
	g := newTestGenerator(global)
	rec := g.Generate(context.Background(), "mylib", mustProc(t, "proc use*(b: Broken)"))

	assert.True(t, rec.Commented)
	assert.Equal(t, "# mylib.use(Broken(()", rec.Call.Text)
}

func buildUnit(t *testing.T) *Unit {
	t.Helper()
	g := newTestGenerator(knowledge.Seed())
	u := NewUnit([]string{"os", "tables"})
	u.AddLibrary("mylib")
	u.AddLibrary("mylib")
	u.Add(g.Generate(context.Background(), "mylib", mustProc(t, "proc add*(a, b: int): int")))
	u.Add(g.Generate(context.Background(), "mylib", mustProc(t, "proc pack*(a: int8)")))
	u.Add(g.Generate(context.Background(), "mylib", mustProc(t, "proc close*(c: Connection)")))
	return u
}

func TestUnit_Render(t *testing.T) {
	u := buildUnit(t)
	r := u.Render()

	want := strings.Join([]string{
		knowledge.EnumSentinel,
		"import os, tables",
		"import mylib",
		"",
		"discard mylib.add(1, 1)",
		"",
		"var v_1: int8 = 1",
		"mylib.pack(v_1)",
		"",
		u.Records[2].Call.Text,
		"",
	}, "\n")
	if diff := cmp.Diff(want, r.Text); diff != "" {
		t.Errorf("render mismatch (-want +got):\n%s", diff)
	}

	for line := 1; line <= 4; line++ {
		_, ok := r.RecordAt(line)
		assert.False(t, ok, "preamble line %d", line)
	}
	id, ok := r.RecordAt(5)
	require.True(t, ok)
	assert.Equal(t, u.Records[0].ID, id)
	id, _ = r.RecordAt(7)
	assert.Equal(t, u.Records[1].ID, id)
	id, _ = r.RecordAt(8)
	assert.Equal(t, u.Records[1].ID, id)

	assert.Equal(t, 3, u.Attempted())
	assert.Equal(t, 1, u.SynthesisFailures())
	assert.Equal(t, 2, u.Compiled())
}

func TestUnit_Remove(t *testing.T) {
	u := buildUnit(t)
	packID := u.Records[1].ID

	removed, err := u.Remove(packID, "dummy_code.nim(7, 10) Error: type mismatch\n  but expected int")
	require.NoError(t, err)
	assert.Equal(t, "mylib.pack", removed.Proc)
	assert.Equal(t, 1, u.Removed())
	assert.Equal(t, 1, u.Compiled())
	assert.Equal(t, 3, u.Attempted(), "removed records still count as attempted")

	assert.Equal(t, []string{
		"# ERROR traceback",
		"# dummy_code.nim(7, 10) Error: type mismatch",
		"#   but expected int",
		"# var v_1: int8 = 1",
		"# mylib.pack(v_1)",
	}, u.Trailer)

	r := u.Render()
	assert.NotContains(t, strings.Split(r.Text, "\n"), "mylib.pack(v_1)")
	_, ok := r.RecordAt(len(strings.Split(r.Text, "\n")) - 1)
	assert.False(t, ok, "trailer lines map to no record")

	_, err = u.Remove(packID, "again")
	assert.Error(t, err)
	_, err = u.Remove(u.Records[1].ID, "commented")
	assert.ErrorIs(t, err, ErrNotRemovable)
}

func TestParseRaw_RoundTrip(t *testing.T) {
	u := buildUnit(t)
	_, err := u.Remove(u.Records[0].ID, "dummy_code.nim(5, 8) Error: undeclared identifier")
	require.NoError(t, err)
	text := u.Render().Text

	raw := ParseRaw(text)
	assert.Equal(t, text, raw.Render().Text)
	assert.Equal(t, 1, raw.Attempted(), "only live calls count")
	assert.Equal(t, 0, raw.SynthesisFailures())

	var live *Record
	for _, r := range raw.Records {
		if !r.Inert {
			live = r
		}
	}
	require.NotNil(t, live)
	assert.Equal(t, "mylib.pack", live.Proc)
	assert.Equal(t, []string{"var v_1: int8 = 1", "mylib.pack(v_1)"}, live.Lines())

	_, err = raw.Remove(live.ID, "dummy_code.nim(7, 1) Error: x")
	require.NoError(t, err)
	assert.Equal(t, 0, raw.Compiled())
}

func TestParseRaw_ImportIsInert(t *testing.T) {
	raw := ParseRaw("import os\n\nos.sleep(1)\n")
	r := raw.Render()
	_, ok := r.RecordAt(1)
	assert.False(t, ok)
	id, ok := r.RecordAt(3)
	require.True(t, ok)
	assert.Equal(t, raw.Records[2].ID, id)
}

func TestParseRaw_DanglingVariablesAreInert(t *testing.T) {
	text := "import mylib\n\nvar v_1: int8 = 1\n\nmylib.add(1, 1)\nvar v_2 = 1\n"
	raw := ParseRaw(text)
	assert.Equal(t, text, raw.Render().Text)
	assert.Equal(t, 1, raw.Attempted())
	assert.Equal(t, 1, raw.Compiled())

	r := raw.Render()
	_, ok := r.RecordAt(3)
	assert.False(t, ok, "orphan declaration maps to no record")
	_, ok = r.RecordAt(6)
	assert.False(t, ok)
	id, ok := r.RecordAt(5)
	require.True(t, ok)
	removed, err := raw.Remove(id, "dummy_code.nim(5, 1) Error: x")
	require.NoError(t, err)
	assert.Equal(t, "mylib.add", removed.Proc)
	assert.Equal(t, 0, raw.Compiled())
}
