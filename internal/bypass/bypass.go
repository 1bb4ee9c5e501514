// Package bypass answers structural queries about synthetic factory methods
// by specializing them to the types known for the querying node's context.
package bypass

import (
	"context"
	"errors"
	"fmt"
	"iter"

	"github.com/715d/factorybypass/internal/ircache"
	"github.com/715d/factorybypass/internal/reflectspec"
	"github.com/715d/factorybypass/internal/registry"
	"github.com/715d/factorybypass/internal/synth"
	"github.com/715d/factorybypass/internal/typeabs"
	"github.com/715d/factorybypass/internal/warn"
	"github.com/715d/factorybypass/pkg/ir"
	"github.com/715d/factorybypass/pkg/program"
)

// ErrInvalidArgument reports a missing or unusable argument.
var ErrInvalidArgument = errors.New("invalid argument")

// Node is a call-graph node: a method in a context.
type Node interface {
	Context() program.Context
	Method() ir.Method
}

// Cache materializes and memoizes IR and def-use indexes.
type Cache interface {
	FindOrCreateIR(m ircache.Source, c program.Context, opts ir.Options) *ir.IR
	FindOrCreateDU(m ircache.Source, c program.Context, opts ir.Options) *ir.DefUse
	Invalidate(m ir.Method, c program.Context)
}

// Config wires an Interpreter. Hierarchy is required.
type Config struct {
	Hierarchy program.Hierarchy
	Types     typeabs.Config
	IR        ir.Options
	Sink      warn.Sink
	Overrides reflectspec.Source
	// Cache defaults to a fresh ircache.Cache.
	Cache Cache
}

// Interpreter is safe for concurrent use.
type Interpreter struct {
	registry *registry.Registry
	cache    Cache
	options  ir.Options
}

// New returns an interpreter with no recorded types.
func New(cfg Config) *Interpreter {
	if cfg.Cache == nil {
		cfg.Cache = ircache.New()
	}
	interp := typeabs.NewInterpreter(cfg.Hierarchy, cfg.Types)
	return &Interpreter{
		registry: registry.New(interp, registry.Options{
			Sink:        cfg.Sink,
			Overrides:   cfg.Overrides,
			Invalidator: cfg.Cache,
		}),
		cache:   cfg.Cache,
		options: cfg.IR,
	}
}

// Registry exposes the per-context state.
func (in *Interpreter) Registry() *registry.Registry { return in.registry }

func checkNode(n Node) error {
	if n == nil {
		return fmt.Errorf("node is nil: %w", ErrInvalidArgument)
	}
	return nil
}

// Understands reports whether n is a synthetic factory whose context has
// known types, declared or discovered. Other nodes are left to other
// interpreters.
func (in *Interpreter) Understands(n Node) (bool, error) {
	if err := checkNode(n); err != nil {
		return false, err
	}
	s, ok := n.Method().(*ir.Summary)
	if !ok || !s.IsFactory() {
		return false, nil
	}
	_, ok = in.registry.TypesFor(n.Context())
	return ok, nil
}

// specialize returns the method specialized for n, building it on first
// request.
func (in *Interpreter) specialize(ctx context.Context, n Node) (*synth.Method, error) {
	if err := checkNode(n); err != nil {
		return nil, err
	}
	s, ok := n.Method().(*ir.Summary)
	if !ok {
		return nil, fmt.Errorf("node method %s has no summary: %w", n.Method().Reference(), ErrInvalidArgument)
	}
	return in.registry.GetOrCreate(ctx, s, n.Context())
}

// IR returns the IR of the specialization of n.
func (in *Interpreter) IR(ctx context.Context, n Node) (*ir.IR, error) {
	m, err := in.specialize(ctx, n)
	if err != nil {
		return nil, err
	}
	return in.cache.FindOrCreateIR(m, n.Context(), in.options), nil
}

// CFG returns the control-flow graph of the specialization of n.
func (in *Interpreter) CFG(ctx context.Context, n Node) (*ir.CFG, error) {
	r, err := in.IR(ctx, n)
	if err != nil {
		return nil, err
	}
	return r.ControlFlowGraph(), nil
}

// DU returns the def-use index of the specialization of n.
func (in *Interpreter) DU(ctx context.Context, n Node) (*ir.DefUse, error) {
	m, err := in.specialize(ctx, n)
	if err != nil {
		return nil, err
	}
	return in.cache.FindOrCreateDU(m, n.Context(), in.options), nil
}

// NumberOfStatements returns the current length of the specialized body.
func (in *Interpreter) NumberOfStatements(ctx context.Context, n Node) (int, error) {
	m, err := in.specialize(ctx, n)
	if err != nil {
		return 0, err
	}
	return m.NumberOfStatements(), nil
}

// NewSites yields the distinct allocation sites of the specialized body.
func (in *Interpreter) NewSites(ctx context.Context, n Node) (iter.Seq[ir.NewSite], error) {
	m, err := in.specialize(ctx, n)
	if err != nil {
		return nil, err
	}
	allocs := m.Allocations()
	return func(yield func(ir.NewSite) bool) {
		seen := make(map[ir.NewSite]bool, len(allocs))
		for _, a := range allocs {
			if seen[a.Site] {
				continue
			}
			seen[a.Site] = true
			if !yield(a.Site) {
				return
			}
		}
	}, nil
}

// InvokeStatements returns the invoke statements of the specialized body.
func (in *Interpreter) InvokeStatements(ctx context.Context, n Node) ([]*ir.Invoke, error) {
	m, err := in.specialize(ctx, n)
	if err != nil {
		return nil, err
	}
	return m.Invokes(), nil
}

// CallSites yields the call site of every invoke statement.
func (in *Interpreter) CallSites(ctx context.Context, n Node) (iter.Seq[ir.CallSite], error) {
	invokes, err := in.InvokeStatements(ctx, n)
	if err != nil {
		return nil, err
	}
	return func(yield func(ir.CallSite) bool) {
		for _, inv := range invokes {
			if !yield(inv.Site) {
				return
			}
		}
	}, nil
}

// scanned runs a structural scan over the specialized body. Synthesized
// bodies are well formed, so a scan failure is a bug and panics.
func scanned[T any](ctx context.Context, in *Interpreter, n Node, scan func([]ir.Instruction) (T, error)) (T, error) {
	var zero T
	m, err := in.specialize(ctx, n)
	if err != nil {
		return zero, err
	}
	v, err := scan(m.Statements())
	if err != nil {
		panic(fmt.Sprintf("scanning %s: %v", m, err))
	}
	return v, nil
}

// FieldsRead returns the fields the specialized body reads.
func (in *Interpreter) FieldsRead(ctx context.Context, n Node) ([]program.FieldRef, error) {
	return scanned(ctx, in, n, ir.FieldsRead)
}

// FieldsWritten returns the fields the specialized body writes.
func (in *Interpreter) FieldsWritten(ctx context.Context, n Node) ([]program.FieldRef, error) {
	return scanned(ctx, in, n, ir.FieldsWritten)
}

// CaughtExceptions returns the exception types the specialized body
// catches.
func (in *Interpreter) CaughtExceptions(ctx context.Context, n Node) ([]program.TypeRef, error) {
	return scanned(ctx, in, n, ir.CaughtExceptions)
}

// CastTypes returns the types the specialized body casts to.
func (in *Interpreter) CastTypes(ctx context.Context, n Node) ([]program.TypeRef, error) {
	return scanned(ctx, in, n, ir.CastTypes)
}

// HasObjectArrayLoad reports whether the specialized body loads from an
// array of references.
func (in *Interpreter) HasObjectArrayLoad(ctx context.Context, n Node) (bool, error) {
	return scanned(ctx, in, n, ir.HasObjectArrayLoad)
}

// HasObjectArrayStore reports whether the specialized body stores into an
// array of references.
func (in *Interpreter) HasObjectArrayStore(ctx context.Context, n Node) (bool, error) {
	return scanned(ctx, in, n, ir.HasObjectArrayStore)
}

// RecordFactoryType records that the factory of n may create class in n's
// context, and reports whether that was new.
func (in *Interpreter) RecordFactoryType(ctx context.Context, n Node, class *program.Class) (bool, error) {
	if class == nil {
		return false, fmt.Errorf("class is nil: %w", ErrInvalidArgument)
	}
	if err := checkNode(n); err != nil {
		return false, err
	}
	return in.registry.RecordType(ctx, n.Context(), class.Ref)
}

// Allocated returns the types the specialization of n allocates, sorted.
func (in *Interpreter) Allocated(ctx context.Context, n Node) ([]program.TypeRef, error) {
	m, err := in.specialize(ctx, n)
	if err != nil {
		return nil, err
	}
	return m.Allocated(), nil
}

// NewNode returns the node for m in c.
func NewNode(m ir.Method, c program.Context) Node {
	return node{method: m, context: c}
}

type node struct {
	method  ir.Method
	context program.Context
}

func (n node) Method() ir.Method         { return n.method }
func (n node) Context() program.Context { return n.context }
