package program

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseTypeRef(t *testing.T) {
	tests := []struct {
		in       string
		expected TypeRef
	}{
		{"java.lang.String", TypeRef{Name: "java.lang.String"}},
		{"int[]", TypeRef{Name: "int", Dims: 1}},
		{" com.example.Shape[][][] ", TypeRef{Name: "com.example.Shape", Dims: 3}},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := ParseTypeRef(tt.in)
			require.Equal(t, tt.expected, got)
			require.Equal(t, got, ParseTypeRef(got.String()))
		})
	}
}

func TestTypeRefPredicates(t *testing.T) {
	require.True(t, ArrayOf("int", 2).IsArray())
	require.False(t, Type("int").IsArray())
	require.True(t, Type("int").IsPrimitive())
	require.False(t, ArrayOf("int", 1).IsPrimitive())
	require.Equal(t, ArrayOf("int", 1), ArrayOf("int", 2).Element())
	require.True(t, TypeRef{}.IsZero())
	require.Negative(t, Type("a.A").Compare(Type("a.B")))
	require.Positive(t, ArrayOf("a.A", 1).Compare(Type("a.A")))
}

func TestParseMethodRef(t *testing.T) {
	m, err := ParseMethodRef("com.example.Factory.create()Lcom/example/Shape;")
	require.NoError(t, err)
	require.Equal(t, Type("com.example.Factory"), m.Class)
	require.Equal(t, "create", m.Name)
	require.Equal(t, "()Lcom/example/Shape;", m.Descriptor)
	require.Equal(t, "com.example.Factory.create()Lcom/example/Shape;", m.String())

	_, err = ParseMethodRef("noclass")
	require.Error(t, err)
}

func TestContextsAreComparable(t *testing.T) {
	caller := MethodRef{Class: Type("Main"), Name: "main"}
	a := CallerSiteContext{Caller: caller, PC: 3}
	b := CallerSiteContext{Caller: caller, PC: 3}
	c := CallerSiteContext{Caller: caller, PC: 4}

	m := map[Context]int{a: 1}
	m[b]++
	m[c]++
	m[Everywhere{}]++
	require.Len(t, m, 3)
	require.Equal(t, 2, m[a])
	require.Equal(t, "Main.main@3", a.String())
}
