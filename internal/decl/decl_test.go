package decl

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseArgs(t *testing.T) {
	tests := []struct {
		in   string
		want []Param
	}{
		{"x, y: int", []Param{{"x", "int", ""}, {"y", "int", ""}}},
		{"a = 1, b: float", []Param{{"a", "", "1"}, {"b", "float", ""}}},
		{
			"a: tuple[x: int, y: int], b: float",
			[]Param{{"a", "tuple[x: int, y: int]", ""}, {"b", "float", ""}},
		},
		{"a, b, c: string = \"x\"", []Param{{"a", "string", `"x"`}, {"b", "string", `"x"`}, {"c", "string", `"x"`}}},
		{"s: var seq[T]; cmp: proc (x, y: T): int = system.cmp", []Param{
			{"s", "var seq[T]", ""},
			{"cmp", "proc (x, y: T): int", "system.cmp"},
		}},
		{"T", []Param{{"T", "", ""}}},
		{"A, B: SomeInteger", []Param{{"A", "SomeInteger", ""}, {"B", "SomeInteger", ""}}},
		{"", nil},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, ParseArgs(tt.in)); diff != "" {
				t.Errorf("ParseArgs(%q) mismatch (-want +got):\n%s", tt.in, diff)
			}
		})
	}
}

func TestParseProc_Add(t *testing.T) {
	sig, err := ParseProc("proc add*(a, b: int): int")
	require.NoError(t, err)
	assert.True(t, sig.Matched)
	assert.Equal(t, "proc", sig.Keyword)
	assert.Equal(t, "add", sig.Name)
	assert.True(t, sig.Exported)
	assert.Empty(t, sig.Generics)
	assert.Equal(t, []Param{{"a", "int", ""}, {"b", "int", ""}}, sig.Arguments)
	assert.Equal(t, "int", sig.ReturnType)
	assert.True(t, sig.HasReturn())
}

func TestParseProc_Full(t *testing.T) {
	raw := "func find*[T, S](a: T; item: S;\n    start = 0): int {.\n    inline, raises: [].}"
	sig, err := ParseProc(raw)
	require.NoError(t, err)
	assert.Equal(t, "func", sig.Keyword)
	assert.Equal(t, "find", sig.Name)
	assert.Equal(t, []Param{{"T", "", ""}, {"S", "", ""}}, sig.Generics)
	assert.Equal(t, []Param{{"a", "T", ""}, {"item", "S", ""}, {"start", "", "0"}}, sig.Arguments)
	assert.Equal(t, "int", sig.ReturnType)
	assert.Equal(t, "inline, raises: []", sig.Pragmas)
}

func TestParseProc_OperatorAndNiladic(t *testing.T) {
	sig, err := ParseProc("proc `$`*(x: Uri): string")
	require.NoError(t, err)
	assert.Equal(t, "`$`", sig.Name)

	sig, err = ParseProc("proc getAppDir*(): string {.tags: [ReadIOEffect].}")
	require.NoError(t, err)
	assert.Empty(t, sig.Arguments)
	assert.Equal(t, "string", sig.ReturnType)
	assert.Equal(t, "tags: [ReadIOEffect]", sig.Pragmas)

	sig, err = ParseProc("proc quit*() {.noreturn.}")
	require.NoError(t, err)
	assert.False(t, sig.HasReturn())
	assert.Equal(t, "noreturn", sig.Pragmas)

	sig, err = ParseProc("proc epochTime*: float")
	require.NoError(t, err)
	assert.Equal(t, "epochTime", sig.Name)
	assert.Equal(t, "float", sig.ReturnType)
}

func TestParseProc_Mismatch(t *testing.T) {
	sig, err := ParseProc("template foo*(x: int)")
	assert.ErrorIs(t, err, ErrParseMismatch)
	assert.False(t, sig.Matched)
}

func TestParseProc_DefaultWithParens(t *testing.T) {
	sig, err := ParseProc(`proc split*(s: string; sep = ")"; maxsplit = -1): seq[string]`)
	require.NoError(t, err)
	assert.Equal(t, []Param{{"s", "string", ""}, {"sep", "", `")"`}, {"maxsplit", "", "-1"}}, sig.Arguments)
	assert.Equal(t, "seq[string]", sig.ReturnType)
}

func TestParseType(t *testing.T) {
	td, ok := ParseType("Proxy* = ref object\n  url*: Uri\n  auth*: string")
	require.True(t, ok)
	assert.Equal(t, "Proxy", td.Name)
	assert.True(t, td.Exported)
	assert.Equal(t, "ref object\n  url*: Uri\n  auth*: string", td.Definition)

	td, ok = ParseType("SinglyLinkedList*[T] = object")
	require.True(t, ok)
	assert.Equal(t, "SinglyLinkedList", td.Name)
	assert.Equal(t, []Param{{"T", "", ""}}, td.Generics)

	td, ok = ParseType("FileMode* {.pure.} = enum\n  fmRead, fmWrite")
	require.True(t, ok)
	assert.Equal(t, "FileMode", td.Name)
	assert.Equal(t, "pure", td.Pragmas)

	_, ok = ParseType("no equals sign here")
	assert.False(t, ok)
}
