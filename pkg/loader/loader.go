// Package loader loads Go packages whose named types serve as the class
// universe of an analysis.
package loader

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"sync"

	"golang.org/x/tools/go/packages"
)

// defaultLoadMode loads type information plus syntax, which carries the
// type declaration directives.
const defaultLoadMode = packages.NeedName |
	packages.NeedModule |
	packages.NeedImports |
	packages.NeedDeps |
	packages.NeedTypes |
	packages.NeedSyntax

// Options configures package loading behavior.
type Options struct {
	// Packages are the package patterns to load.
	Packages []string

	// BuildTags are build tags to apply during loading.
	BuildTags []string

	// Dir is the directory to load packages from.
	// If empty, uses the current working directory.
	Dir string

	// Env is the environment to use for loading.
	// If nil, uses os.Environ().
	Env []string

	// Tests also loads test variants, which may declare extra types.
	Tests bool
}

// LoadPackages loads Go packages for hierarchy extraction.
func LoadPackages(ctx context.Context, opts Options) ([]*packages.Package, error) {
	patterns := opts.Packages
	if len(patterns) == 0 {
		patterns = []string{"./..."}
	}

	cfg := &packages.Config{
		Context: ctx,
		Mode:    defaultLoadMode,
		Tests:   opts.Tests,
		Env:     opts.Env,
		Dir:     opts.Dir,
	}
	if len(opts.BuildTags) > 0 {
		cfg.BuildFlags = append(cfg.BuildFlags, "-tags", strings.Join(opts.BuildTags, ","))
	}

	pkgs, err := packages.Load(cfg, patterns...)
	if err != nil {
		return nil, fmt.Errorf("loading packages: %w", err)
	}
	if len(pkgs) == 0 {
		return nil, fmt.Errorf("no packages found matching patterns: %v", patterns)
	}

	var errorMessages []string
	for _, pkg := range pkgs {
		for _, err := range pkg.Errors {
			errorMessages = append(errorMessages, fmt.Sprintf("package %s: %v", pkg.PkgPath, err))
		}
	}
	if len(errorMessages) > 0 {
		return nil, fmt.Errorf("package errors:\n%s", strings.Join(errorMessages, "\n"))
	}

	return deduplicatePackages(pkgs), nil
}

// deduplicatePackages keeps one package per path, preferring test variants,
// which are supersets of the regular package.
func deduplicatePackages(pkgs []*packages.Package) []*packages.Package {
	best := make(map[string]*packages.Package)
	for _, pkg := range pkgs {
		// Synthesized test mains declare nothing of interest.
		if strings.HasSuffix(pkg.ID, ".test") && !strings.Contains(pkg.ID, "[") {
			continue
		}
		existing, ok := best[pkg.PkgPath]
		if !ok || isTestVariant(pkg) && !isTestVariant(existing) {
			best[pkg.PkgPath] = pkg
		}
	}
	return slices.SortedFunc(maps.Values(best), func(a, b *packages.Package) int {
		return strings.Compare(a.PkgPath, b.PkgPath)
	})
}

func isTestVariant(pkg *packages.Package) bool {
	return strings.Contains(pkg.ID, "[")
}

var getStdLibSet = sync.OnceValue(func() map[string]struct{} {
	pkgs, _ := packages.Load(&packages.Config{Mode: packages.NeedName}, "std")
	m := make(map[string]struct{}, len(pkgs)+1)
	for _, p := range pkgs {
		m[p.PkgPath] = struct{}{}
	}
	m["unsafe"] = struct{}{} // not in `go list std`
	slog.Debug("loaded std lib packages", "num", len(m))
	return m
})

// IsTargetPackage reports whether p's types belong to the analyzed
// universe: the main module, or anything outside the standard library in
// GOPATH mode.
func IsTargetPackage(p *packages.Package) bool {
	if p == nil {
		return false
	}
	if _, ok := getStdLibSet()[p.PkgPath]; ok {
		return false
	}
	if p.Module != nil {
		return p.Module.Main
	}
	return true
}
