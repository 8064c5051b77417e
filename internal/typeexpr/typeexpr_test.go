package typeexpr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Shapes(t *testing.T) {
	tests := []struct {
		in        string
		kind      Kind
		canonical string
	}{
		{"int", KindNamed, "int"},
		{"seq[ int ]", KindNamed, "seq[int]"},
		{"Table[string,seq[int]]", KindNamed, "Table[string, seq[int]]"},
		{"int|float", KindUnion, "int | float"},
		{"var seq[string]", KindModified, "var seq[string]"},
		{"distinct int", KindModified, "distinct int"},
		{"ptr Foo", KindModified, "ptr Foo"},
		{"tuple[x: int, y: int]", KindTuple, "tuple[x: int, y: int]"},
		{"(int, string)", KindTuple, "(int, string)"},
		{"proc (x: int): bool {.closure.}", KindProc, "proc (x: int): bool {.closure.}"},
		{"iterator(): int", KindProc, "iterator(): int"},
		{"ref Node not nil", KindModified, "ref Node"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			e, err := Parse(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.kind, e.Kind)
			assert.Equal(t, tt.canonical, e.String())
		})
	}
}

func TestParse_NestedModifiers(t *testing.T) {
	e := MustParse("var owned Foo[T]")
	require.Equal(t, KindModified, e.Kind)
	assert.Equal(t, ModVar, e.Modifier)
	require.Equal(t, KindModified, e.Operand.Kind)
	assert.True(t, e.Operand.Modifier.IsOwnership())
	inner := e.Operand.Operand
	assert.True(t, inner.IsGenericInstance())
	assert.Equal(t, "Foo", inner.Name)
	assert.Equal(t, "Foo", e.BaseName())
}

func TestParse_UnionInsideGenericIsNotSplit(t *testing.T) {
	e := MustParse("Table[string, int | float]")
	require.Equal(t, KindNamed, e.Kind)
	require.Len(t, e.Args, 2)
	assert.Equal(t, KindUnion, e.Args[1].Kind)
}

func TestParse_OpaqueTrailer(t *testing.T) {
	e := MustParse("Foo[T].Inner")
	assert.Equal(t, KindNamed, e.Kind)
	assert.Empty(t, e.Args)
	assert.Equal(t, "Foo[T].Inner", e.String())
	assert.Equal(t, "Foo[T].Inner", e.BaseName())
	assert.Equal(t, "Foo[T].Inner", MustParse("sink Foo[T].Inner").BaseName())
}

func TestParse_Empty(t *testing.T) {
	_, err := Parse("   ")
	assert.ErrorIs(t, err, ErrEmpty)
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "union", KindUnion.String())
	assert.Equal(t, "kind(42)", Kind(42).String())
}
