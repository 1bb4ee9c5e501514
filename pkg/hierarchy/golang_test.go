package hierarchy

import (
	"context"
	"go/ast"
	"go/parser"
	"go/token"
	"go/types"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/tools/go/packages"

	"github.com/715d/factorybypass/pkg/program"
)

const shapesSrc = `package shapes

type Shape interface{ Area() float64 }

type Named interface {
	Shape
	Name() string
}

type Any interface{}

type Base struct{}

func (Base) Name() string { return "base" }

type Circle struct {
	Base
	r float64
}

func (c *Circle) Area() float64 { return 3 * c.r * c.r }

type Box[T any] struct{ v T }
`

func checkPackage(t *testing.T, path, src string) *packages.Package {
	t.Helper()
	fset := token.NewFileSet()
	f, err := parser.ParseFile(fset, "src.go", src, parser.ParseComments)
	require.NoError(t, err)
	tpkg, err := (&types.Config{}).Check(path, fset, []*ast.File{f}, nil)
	require.NoError(t, err)
	return &packages.Package{
		ID:      path,
		PkgPath: path,
		Types:   tpkg,
		Fset:    fset,
		Syntax:  []*ast.File{f},
		Module:  &packages.Module{Path: path, Main: true},
	}
}

func TestFromPackages(t *testing.T) {
	pkg := checkPackage(t, "example.com/shapes", shapesSrc)
	h, err := FromPackages([]*packages.Package{pkg, nil})
	require.NoError(t, err)

	ref := func(name string) program.TypeRef { return program.Type("example.com/shapes." + name) }

	// Generic Box is skipped.
	require.Equal(t, 5, h.Len())
	_, ok := h.LookupClass(ref("Box"))
	require.False(t, ok)

	circle, ok := h.LookupClass(ref("Circle"))
	require.True(t, ok)
	require.Equal(t, ref("Base"), circle.Super)
	require.Equal(t, []program.TypeRef{ref("Named"), ref("Shape")}, circle.Implements)

	named, ok := h.LookupClass(ref("Named"))
	require.True(t, ok)
	require.True(t, named.Interface)
	require.Equal(t, []program.TypeRef{ref("Shape")}, named.Implements)

	ctx := context.Background()
	impls, err := h.Implementors(ctx, ref("Shape"))
	require.NoError(t, err)
	require.Equal(t, []program.TypeRef{ref("Circle")}, impls)

	impls, err = h.Implementors(ctx, ref("Any"))
	require.NoError(t, err)
	require.Empty(t, impls, "empty interfaces are not implemented explicitly")

	subs, err := h.Subclasses(ctx, ref("Base"))
	require.NoError(t, err)
	require.Equal(t, []program.TypeRef{ref("Base"), ref("Circle")}, subs)
}

func TestFromPackagesSkipsDependencies(t *testing.T) {
	pkg := checkPackage(t, "example.com/dep", "package dep\n\ntype T struct{}\n")
	pkg.Module.Main = false

	h, err := FromPackages([]*packages.Package{pkg})
	require.NoError(t, err)
	require.Zero(t, h.Len())
}

func TestFromPackagesDirectives(t *testing.T) {
	pkg := checkPackage(t, "example.com/zoo", `package zoo

type Animal interface{ Sound() string }

//factorybypass:abstract
type Base struct{}

func (Base) Sound() string { return "" }

type Dog struct{ Base }

type Legacy struct{ Base } //factorybypass:ignore replaced by Dog

//factorybypass:abstract
type Pet interface{ Animal }
`)

	h, err := FromPackages([]*packages.Package{pkg})
	require.NoError(t, err)

	ref := func(name string) program.TypeRef { return program.Type("example.com/zoo." + name) }

	_, ok := h.LookupClass(ref("Legacy"))
	require.False(t, ok, "ignored types are left out")

	base, ok := h.LookupClass(ref("Base"))
	require.True(t, ok)
	require.True(t, base.Abstract)

	pet, ok := h.LookupClass(ref("Pet"))
	require.True(t, ok)
	require.True(t, pet.Interface)
	require.False(t, pet.Abstract, "abstract applies to concrete types only")

	impls, err := h.Implementors(context.Background(), ref("Animal"))
	require.NoError(t, err)
	require.Equal(t, []program.TypeRef{ref("Base"), ref("Dog")}, impls)
}
