// Package typeabs interprets type abstractions: compact descriptions of
// sets of concrete types, expanded against a class hierarchy.
package typeabs

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/715d/factorybypass/internal/warn"
	"github.com/715d/factorybypass/pkg/program"
)

// ErrUnknownType reports a type reference the hierarchy cannot resolve.
var ErrUnknownType = errors.New("unknown type")

// Defaults used when a Config leaves a field unset.
const (
	DefaultConeBound  = 10
	DefaultMarkerName = "java.io.Serializable"
)

// Abstraction is one of Exact, Closure or Set.
type Abstraction interface {
	// Type returns the type the abstraction is rooted at; the zero
	// TypeRef for sets.
	Type() program.TypeRef
	String() string

	expand(ctx context.Context, in *Interpreter) (Result, error)
}

// Exact denotes exactly one type.
type Exact struct {
	T program.TypeRef
}

// Closure denotes T and its implementors when Interface is set, or T and
// its transitive subclasses otherwise.
type Closure struct {
	T         program.TypeRef
	Interface bool
}

// Set denotes an explicit list of types.
type Set struct {
	Types []program.TypeRef
}

func (a Exact) Type() program.TypeRef   { return a.T }
func (a Closure) Type() program.TypeRef { return a.T }
func (a Set) Type() program.TypeRef     { return program.TypeRef{} }

func (a Exact) String() string { return "Point<" + a.T.String() + ">" }

func (a Closure) String() string {
	if a.Interface {
		return "Cone<" + a.T.String() + ",interface>"
	}
	return "Cone<" + a.T.String() + ">"
}

func (a Set) String() string {
	names := make([]string, len(a.Types))
	for i, t := range a.Types {
		names[i] = t.String()
	}
	return "Set<" + strings.Join(names, ",") + ">"
}

// Result is the outcome of an expansion.
type Result struct {
	// Types is the expansion, in hierarchy order, unfiltered.
	Types []program.TypeRef
	// Warnings raised by this expansion.
	Warnings []warn.Warning
	// Ignored is set when the abstraction was dropped as the marker type.
	Ignored bool
}

// Config tunes an Interpreter.
type Config struct {
	// Marker is the universal marker type that is never expanded.
	Marker program.TypeRef
	// ConeBound is the cone size above which ManySubtypes is raised.
	ConeBound int
}

// Interpreter expands abstractions against a hierarchy. It holds no state
// beyond its configuration.
type Interpreter struct {
	hierarchy program.Hierarchy
	cfg       Config
}

// NewInterpreter returns an interpreter over h. Zero config fields take
// their defaults.
func NewInterpreter(h program.Hierarchy, cfg Config) *Interpreter {
	if cfg.Marker.IsZero() {
		cfg.Marker = program.Type(DefaultMarkerName)
	}
	if cfg.ConeBound <= 0 {
		cfg.ConeBound = DefaultConeBound
	}
	return &Interpreter{hierarchy: h, cfg: cfg}
}

// Hierarchy returns the hierarchy expansions run against.
func (in *Interpreter) Hierarchy() program.Hierarchy { return in.hierarchy }

// Config returns the effective configuration.
func (in *Interpreter) Config() Config { return in.cfg }

// Expand resolves a to concrete types.
func (in *Interpreter) Expand(ctx context.Context, a Abstraction) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, fmt.Errorf("expanding %s: %w", a, err)
	}
	return a.expand(ctx, in)
}

func (a Exact) expand(_ context.Context, in *Interpreter) (Result, error) {
	if a.T == in.cfg.Marker {
		return in.ignore(a), nil
	}
	return Result{Types: []program.TypeRef{a.T}}, nil
}

func (a Closure) expand(ctx context.Context, in *Interpreter) (Result, error) {
	if a.T == in.cfg.Marker {
		return in.ignore(a), nil
	}
	var (
		types []program.TypeRef
		err   error
	)
	if a.Interface {
		types, err = in.hierarchy.Implementors(ctx, a.T)
	} else {
		types, err = in.hierarchy.Subclasses(ctx, a.T)
	}
	if err != nil {
		return Result{}, fmt.Errorf("expanding %s: %w", a, err)
	}

	res := Result{Types: types}
	if len(types) == 0 {
		res.Warnings = append(res.Warnings, warn.Warning{Kind: warn.NoSubtypes, Subject: a.String()})
	}
	if len(types) > in.cfg.ConeBound {
		res.Warnings = append(res.Warnings, warn.Warning{Kind: warn.ManySubtypes, Subject: a.String(), Count: len(types)})
	}
	return res, nil
}

func (a Set) expand(context.Context, *Interpreter) (Result, error) {
	return Result{Types: a.Types}, nil
}

func (in *Interpreter) ignore(a Abstraction) Result {
	return Result{
		Warnings: []warn.Warning{{Kind: warn.IgnoredMarker, Subject: a.String()}},
		Ignored:  true,
	}
}

// FromTypeRef returns the abstraction a recorded type stands for: arrays
// and concrete classes are exact, interfaces and abstract classes are
// cones.
func FromTypeRef(h program.Hierarchy, ref program.TypeRef) (Abstraction, error) {
	c, ok := h.LookupClass(ref)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownType, ref)
	}
	if ref.IsArray() || !c.IsAbstract() {
		return Exact{T: ref}, nil
	}
	return Closure{T: ref, Interface: c.Interface}, nil
}
