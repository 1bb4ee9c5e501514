package hierarchy

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	yaml "gopkg.in/yaml.v3"

	"github.com/715d/factorybypass/pkg/program"
)

const shapesYAML = `
classes:
  - name: java.lang.Object
  - name: java.io.Serializable
    interface: true
  - name: shapes.Shape
    interface: true
  - name: shapes.Polygon
    interface: true
    implements: [shapes.Shape]
  - name: shapes.AbstractShape
    super: java.lang.Object
    abstract: true
    implements: [shapes.Shape]
  - name: shapes.Circle
    super: shapes.AbstractShape
  - name: shapes.Square
    super: shapes.AbstractShape
    implements: [shapes.Polygon]
  - name: shapes.RoundedSquare
    super: shapes.Square
  - name: shapes.Triangle
    implements: [shapes.Polygon, java.io.Serializable]
  - name: shapes.Drawable
    interface: true
`

func load(t *testing.T) *Hierarchy {
	t.Helper()
	var d Decl
	require.NoError(t, yaml.Unmarshal([]byte(shapesYAML), &d))
	h, err := d.Build()
	require.NoError(t, err)
	return h
}

func refs(names ...string) []program.TypeRef {
	out := make([]program.TypeRef, len(names))
	for i, n := range names {
		out[i] = program.ParseTypeRef(n)
	}
	return out
}

func TestSubclasses(t *testing.T) {
	h := load(t)
	ctx := context.Background()

	tests := []struct {
		class    string
		expected []program.TypeRef
	}{
		{"shapes.Square", refs("shapes.RoundedSquare", "shapes.Square")},
		{"shapes.AbstractShape", refs("shapes.AbstractShape", "shapes.Circle", "shapes.RoundedSquare", "shapes.Square")},
		{"shapes.Circle", refs("shapes.Circle")},
		{"int[][]", refs("int[][]")},
		{"shapes.Unknown", nil},
	}

	for _, tt := range tests {
		t.Run(tt.class, func(t *testing.T) {
			got, err := h.Subclasses(ctx, program.ParseTypeRef(tt.class))
			require.NoError(t, err)
			require.Equal(t, tt.expected, got)
		})
	}
}

func TestImplementors(t *testing.T) {
	h := load(t)
	ctx := context.Background()

	tests := []struct {
		iface    string
		expected []program.TypeRef
	}{
		{"shapes.Polygon", refs("shapes.RoundedSquare", "shapes.Square", "shapes.Triangle")},
		{
			"shapes.Shape",
			refs("shapes.AbstractShape", "shapes.Circle", "shapes.RoundedSquare", "shapes.Square", "shapes.Triangle"),
		},
		{"shapes.Drawable", nil},
		{"shapes.Circle", nil},
	}

	for _, tt := range tests {
		t.Run(tt.iface, func(t *testing.T) {
			got, err := h.Implementors(ctx, program.ParseTypeRef(tt.iface))
			require.NoError(t, err)
			require.Equal(t, tt.expected, got)
		})
	}
}

func TestQueries(t *testing.T) {
	h := load(t)
	require.True(t, h.IsInterface(program.Type("shapes.Shape")))
	require.False(t, h.IsInterface(program.Type("shapes.Circle")))
	require.True(t, h.IsAbstract(program.Type("shapes.AbstractShape")))
	require.True(t, h.IsAbstract(program.Type("shapes.Shape")))
	require.True(t, h.IsAbstract(program.Type("shapes.Missing")))
	require.False(t, h.IsAbstract(program.ArrayOf("shapes.Shape", 1)))

	c, ok := h.LookupClass(program.Type("shapes.Square"))
	require.True(t, ok)
	require.Equal(t, program.Type("shapes.AbstractShape"), c.Super)
	require.Equal(t, 10, h.Len())
}

func TestCanceledEnumeration(t *testing.T) {
	h := load(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := h.Implementors(ctx, program.Type("shapes.Shape"))
	require.ErrorIs(t, err, context.Canceled)

	_, err = h.Subclasses(ctx, program.Type("shapes.AbstractShape"))
	require.ErrorIs(t, err, context.Canceled)
}

func TestNewRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		decl Decl
	}{
		{"duplicate", Decl{Classes: []ClassDecl{{Name: "a.A"}, {Name: "a.A"}}}},
		{"unnamed", Decl{Classes: []ClassDecl{{}}}},
		{"array", Decl{Classes: []ClassDecl{{Name: "a.A[]"}}}},
		{"implements class", Decl{Classes: []ClassDecl{{Name: "a.A"}, {Name: "a.B", Implements: []string{"a.A"}}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.decl.Build()
			require.Error(t, err)
		})
	}
}

func TestDeclRoundTripThroughFile(t *testing.T) {
	h := load(t)
	data, err := yaml.Marshal(h.Decl())
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "hierarchy.yaml")
	require.NoError(t, os.WriteFile(path, data, 0o600))

	reloaded, err := LoadFile(path)
	require.NoError(t, err)
	require.Equal(t, h.Classes(), reloaded.Classes())

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
