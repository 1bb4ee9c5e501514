package typeabs

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/715d/factorybypass/internal/warn"
	"github.com/715d/factorybypass/pkg/hierarchy"
	"github.com/715d/factorybypass/pkg/program"
)

// newHierarchy builds:
//
//	java.io.Serializable (interface)
//	zoo.Animal (interface)
//	zoo.Empty (interface, no implementors)
//	zoo.Base (abstract, implements zoo.Animal)
//	zoo.Cat, zoo.Dog extend zoo.Base
//	zoo.Bird0 .. zoo.Bird<n-1> implement zoo.Flyer (interface)
func newHierarchy(t *testing.T, birds int) *hierarchy.Hierarchy {
	t.Helper()
	classes := []*program.Class{
		{Ref: program.Type(DefaultMarkerName), Interface: true},
		{Ref: program.Type("zoo.Animal"), Interface: true},
		{Ref: program.Type("zoo.Empty"), Interface: true},
		{Ref: program.Type("zoo.Flyer"), Interface: true},
		{Ref: program.Type("zoo.Base"), Abstract: true, Implements: []program.TypeRef{program.Type("zoo.Animal")}},
		{Ref: program.Type("zoo.Cat"), Super: program.Type("zoo.Base")},
		{Ref: program.Type("zoo.Dog"), Super: program.Type("zoo.Base")},
	}
	for i := range birds {
		classes = append(classes, &program.Class{
			Ref:        program.Type(fmt.Sprintf("zoo.Bird%02d", i)),
			Implements: []program.TypeRef{program.Type("zoo.Flyer")},
		})
	}
	h, err := hierarchy.New(classes)
	require.NoError(t, err)
	return h
}

func kinds(ws []warn.Warning) []warn.Kind {
	var out []warn.Kind
	for _, w := range ws {
		out = append(out, w.Kind)
	}
	return out
}

func TestExpand(t *testing.T) {
	in := NewInterpreter(newHierarchy(t, 11), Config{})

	cat := program.Type("zoo.Cat")
	dog := program.Type("zoo.Dog")
	base := program.Type("zoo.Base")

	tests := []struct {
		name     string
		abs      Abstraction
		types    []program.TypeRef
		warnings []warn.Kind
		ignored  bool
	}{
		{name: "exact", abs: Exact{T: cat}, types: []program.TypeRef{cat}},
		{name: "exact array", abs: Exact{T: program.ArrayOf("zoo.Cat", 2)}, types: []program.TypeRef{program.ArrayOf("zoo.Cat", 2)}},
		{name: "exact marker", abs: Exact{T: program.Type(DefaultMarkerName)}, warnings: []warn.Kind{warn.IgnoredMarker}, ignored: true},
		{name: "class cone", abs: Closure{T: base}, types: []program.TypeRef{base, cat, dog}},
		{name: "interface cone", abs: Closure{T: program.Type("zoo.Animal"), Interface: true}, types: []program.TypeRef{base, cat, dog}},
		{name: "empty cone", abs: Closure{T: program.Type("zoo.Empty"), Interface: true}, warnings: []warn.Kind{warn.NoSubtypes}},
		{name: "marker cone", abs: Closure{T: program.Type(DefaultMarkerName), Interface: true}, warnings: []warn.Kind{warn.IgnoredMarker}, ignored: true},
		{name: "set", abs: Set{Types: []program.TypeRef{dog, cat, dog}}, types: []program.TypeRef{dog, cat, dog}},
		{name: "empty set", abs: Set{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := in.Expand(context.Background(), tt.abs)
			require.NoError(t, err)
			require.Equal(t, tt.types, res.Types)
			require.Equal(t, tt.warnings, kinds(res.Warnings))
			require.Equal(t, tt.ignored, res.Ignored)
		})
	}
}

func TestConeBound(t *testing.T) {
	tests := []struct {
		birds    int
		bound    int
		warnings []warn.Kind
	}{
		{birds: 10, bound: 0},
		{birds: 11, bound: 0, warnings: []warn.Kind{warn.ManySubtypes}},
		{birds: 3, bound: 2, warnings: []warn.Kind{warn.ManySubtypes}},
		{birds: 2, bound: 2},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d birds bound %d", tt.birds, tt.bound), func(t *testing.T) {
			in := NewInterpreter(newHierarchy(t, tt.birds), Config{ConeBound: tt.bound})
			res, err := in.Expand(context.Background(), Closure{T: program.Type("zoo.Flyer"), Interface: true})
			require.NoError(t, err)
			require.Len(t, res.Types, tt.birds, "the bound never truncates")
			require.Equal(t, tt.warnings, kinds(res.Warnings))
			if len(res.Warnings) > 0 {
				require.Equal(t, tt.birds, res.Warnings[0].Count)
			}
		})
	}
}

func TestCustomMarker(t *testing.T) {
	in := NewInterpreter(newHierarchy(t, 0), Config{Marker: program.Type("zoo.Animal")})
	require.Equal(t, program.Type("zoo.Animal"), in.Config().Marker)

	res, err := in.Expand(context.Background(), Closure{T: program.Type("zoo.Animal"), Interface: true})
	require.NoError(t, err)
	require.True(t, res.Ignored)

	res, err = in.Expand(context.Background(), Exact{T: program.Type(DefaultMarkerName)})
	require.NoError(t, err)
	require.False(t, res.Ignored)
}

func TestExpandCanceled(t *testing.T) {
	in := NewInterpreter(newHierarchy(t, 0), Config{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for _, abs := range []Abstraction{Exact{T: program.Type("zoo.Cat")}, Closure{T: program.Type("zoo.Base")}, Set{}} {
		_, err := in.Expand(ctx, abs)
		require.ErrorIs(t, err, context.Canceled, abs.String())
	}
}

func TestFromTypeRef(t *testing.T) {
	h := newHierarchy(t, 0)

	tests := []struct {
		ref      program.TypeRef
		expected Abstraction
	}{
		{program.Type("zoo.Cat"), Exact{T: program.Type("zoo.Cat")}},
		{program.Type("zoo.Base"), Closure{T: program.Type("zoo.Base")}},
		{program.Type("zoo.Animal"), Closure{T: program.Type("zoo.Animal"), Interface: true}},
		{program.ArrayOf("zoo.Animal", 1), Exact{T: program.ArrayOf("zoo.Animal", 1)}},
		{program.ArrayOf("int", 2), Exact{T: program.ArrayOf("int", 2)}},
	}

	for _, tt := range tests {
		t.Run(tt.ref.String(), func(t *testing.T) {
			got, err := FromTypeRef(h, tt.ref)
			require.NoError(t, err)
			require.Equal(t, tt.expected, got)
		})
	}

	_, err := FromTypeRef(h, program.Type("zoo.Unicorn"))
	require.ErrorIs(t, err, ErrUnknownType)
}

func TestAbstractionString(t *testing.T) {
	require.Equal(t, "Point<zoo.Cat[]>", Exact{T: program.ArrayOf("zoo.Cat", 1)}.String())
	require.Equal(t, "Cone<zoo.Base>", Closure{T: program.Type("zoo.Base")}.String())
	require.Equal(t, "Cone<zoo.Animal,interface>", Closure{T: program.Type("zoo.Animal"), Interface: true}.String())
	require.Equal(t, "Set<zoo.Cat,zoo.Dog>", Set{Types: []program.TypeRef{program.Type("zoo.Cat"), program.Type("zoo.Dog")}}.String())
}
