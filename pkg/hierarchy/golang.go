package hierarchy

import (
	"fmt"
	"go/types"
	"log/slog"
	goruntime "runtime"
	"slices"

	"golang.org/x/sync/errgroup"
	"golang.org/x/tools/go/packages"

	"github.com/715d/factorybypass/internal/analysis"
	"github.com/715d/factorybypass/pkg/directive"
	"github.com/715d/factorybypass/pkg/loader"
	"github.com/715d/factorybypass/pkg/program"
)

// goType pairs a collected class with the Go type it was derived from.
type goType struct {
	class *program.Class
	named *types.Named
}

// FromPackages derives a hierarchy from the named types of the target
// packages in pkgs. Named interfaces become interfaces; every other named
// type becomes a concrete class whose superclass is the first embedded
// named struct, and which implements every collected interface that the
// type or a pointer to it satisfies. Empty interfaces are never listed as
// implemented, and generic types are skipped.
//
// When pkgs carry syntax, factorybypass directives on type declarations
// apply: ignored types are left out and abstract types are not
// instantiable.
func FromPackages(pkgs []*packages.Package) (*Hierarchy, error) {
	names := analysis.NewNameCache()

	// Each goroutine owns one index of results.
	results := make([][]goType, len(pkgs))
	var g errgroup.Group
	g.SetLimit(goruntime.NumCPU())
	for idx, pkg := range pkgs {
		if !loader.IsTargetPackage(pkg) || pkg.Types == nil {
			continue
		}
		g.Go(func() error {
			checker := directive.NewChecker()
			if pkg.Fset != nil && len(pkg.Syntax) > 0 {
				if err := checker.Load(pkg.Fset, pkg.Syntax); err != nil {
					return fmt.Errorf("package %s: %w", pkg.PkgPath, err)
				}
			}
			results[idx] = collectTypes(pkg.Types, names, checker)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var all []goType
	for _, r := range results {
		all = append(all, r...)
	}
	var ifaces []goType
	for _, gt := range all {
		if gt.class.Interface {
			ifaces = append(ifaces, gt)
		}
	}

	g = errgroup.Group{}
	g.SetLimit(goruntime.NumCPU())
	for _, gt := range all {
		g.Go(func() error {
			gt.class.Implements = implemented(gt, ifaces)
			return nil
		})
	}
	_ = g.Wait()

	classes := make([]*program.Class, len(all))
	for i, gt := range all {
		classes[i] = gt.class
	}
	slog.Debug("derived hierarchy from packages", "packages", len(pkgs), "classes", len(classes), "interfaces", len(ifaces))
	return New(classes)
}

func collectTypes(pkg *types.Package, names *analysis.NameCache, checker *directive.Checker) []goType {
	var out []goType
	scope := pkg.Scope()
	for _, name := range scope.Names() {
		tn, ok := scope.Lookup(name).(*types.TypeName)
		if !ok || tn.IsAlias() {
			continue
		}
		named, ok := tn.Type().(*types.Named)
		if !ok || named.TypeParams().Len() > 0 {
			continue
		}
		c := &program.Class{Ref: program.Type(names.ClassName(named))}
		d, ok := checker.Lookup(tn.Pos())
		if ok && d.Kind == directive.Ignore {
			slog.Debug("ignoring type", "type", c.Ref, "reason", d.Reason)
			continue
		}
		switch u := named.Underlying().(type) {
		case *types.Interface:
			c.Interface = true
		case *types.Struct:
			c.Super = embeddedSuper(u, names)
		}
		c.Abstract = ok && d.Kind == directive.Abstract && !c.Interface
		out = append(out, goType{class: c, named: named})
	}
	return out
}

// embeddedSuper returns the first embedded field whose type is a named
// struct, which plays the role of a superclass.
func embeddedSuper(s *types.Struct, names *analysis.NameCache) program.TypeRef {
	for i := range s.NumFields() {
		f := s.Field(i)
		if !f.Embedded() {
			continue
		}
		ft := f.Type()
		if p, ok := ft.(*types.Pointer); ok {
			ft = p.Elem()
		}
		if named, ok := types.Unalias(ft).(*types.Named); ok {
			if _, ok := named.Underlying().(*types.Struct); ok {
				return program.Type(names.ClassName(named))
			}
		}
	}
	return program.TypeRef{}
}

// implemented lists the interfaces gt satisfies. Interfaces list the
// interfaces they embed.
func implemented(gt goType, ifaces []goType) []program.TypeRef {
	var out []program.TypeRef
	if iface, ok := gt.named.Underlying().(*types.Interface); ok {
		for i := range iface.NumEmbeddeds() {
			if named, ok := types.Unalias(iface.EmbeddedType(i)).(*types.Named); ok {
				for _, cand := range ifaces {
					if cand.named == named {
						out = append(out, cand.class.Ref)
					}
				}
			}
		}
		return out
	}
	ptr := types.NewPointer(gt.named)
	for _, cand := range ifaces {
		it, ok := cand.named.Underlying().(*types.Interface)
		if !ok || it.Empty() {
			continue
		}
		if types.Implements(gt.named, it) || types.Implements(ptr, it) {
			out = append(out, cand.class.Ref)
		}
	}
	slices.SortFunc(out, program.TypeRef.Compare)
	return out
}
