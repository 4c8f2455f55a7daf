package types

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDescriptors(t *testing.T) {
	tests := []struct {
		typ  Type
		want string
	}{
		{Void, "V"},
		{Boolean, "Z"},
		{Int, "I"},
		{Long, "J"},
		{Double, "D"},
		{Object, "Lanvil/Object;"},
		{Class("com.example.Point"), "Lcom/example/Point;"},
		{ArrayOf(Long), "[J"},
		{ArrayOf(ArrayOf(Int)), "[[I"},
		{ArrayOf(Object), "[Lanvil/Object;"},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, tt.typ.Descriptor())
	}
}

func TestBinaryAndPathNames(t *testing.T) {
	p := Class("com.example.Point")
	require.Equal(t, "com.example.Point", p.BinaryName())
	require.Equal(t, "com/example/Point", p.PathName())
	require.Equal(t, "Point", p.SimpleName())
	require.Equal(t, "int[]", ArrayOf(Int).BinaryName())
	require.Equal(t, "long", Long.BinaryName())
}

func TestWidth(t *testing.T) {
	require.Equal(t, 2, Long.Width())
	require.Equal(t, 2, Double.Width())
	require.Equal(t, 1, Int.Width())
	require.Equal(t, 1, Object.Width())
	require.Equal(t, 1, ArrayOf(Double).Width())
	require.Equal(t, 0, Void.Width())
}

func TestEquality(t *testing.T) {
	require.True(t, Class("a.B").Equal(ClassFromPath("a/B")))
	require.True(t, Class("a.B").Equal(Interface("a.B")), "interface flag is metadata")
	require.False(t, Int.Equal(Long))
	require.False(t, ArrayOf(Int).Equal(Int))
}

func TestZeroType(t *testing.T) {
	var zero Type
	require.True(t, zero.IsZero())
	require.False(t, Void.IsZero())
	require.False(t, Object.IsZero())
}

func TestElement(t *testing.T) {
	elem, err := ArrayOf(Long).Element()
	require.NoError(t, err)
	require.True(t, elem.Equal(Long))

	_, err = Int.Element()
	require.ErrorIs(t, err, ErrNotArray)
}

func TestMethodDescriptor(t *testing.T) {
	desc := MethodDescriptor(Void, []Type{Int, Long})
	require.Equal(t, "(IJ)V", desc)

	desc = MethodDescriptor(Object, []Type{ArrayOf(Int), Class("a.B")})
	require.Equal(t, "([ILa/B;)Lanvil/Object;", desc)
}

func TestParseDescriptor(t *testing.T) {
	typ, err := ParseDescriptor("[Lcom/example/Point;")
	require.NoError(t, err)
	require.Equal(t, "[Lcom/example/Point;", typ.Descriptor())

	_, err = ParseDescriptor("II")
	require.Error(t, err)
	_, err = ParseDescriptor("Lunterminated")
	require.Error(t, err)
	_, err = ParseDescriptor("")
	require.Error(t, err)
}

func TestParseMethodDescriptor(t *testing.T) {
	ret, params, err := ParseMethodDescriptor("(IJ[Lanvil/Object;)D")
	require.NoError(t, err)
	require.True(t, ret.Equal(Double))
	require.Len(t, params, 3)
	require.True(t, params[0].Equal(Int))
	require.True(t, params[1].Equal(Long))
	require.True(t, params[2].Equal(ArrayOf(Object)))

	_, _, err = ParseMethodDescriptor("IJ)V")
	require.Error(t, err)
	_, _, err = ParseMethodDescriptor("(I")
	require.Error(t, err)
}
