// Package registry maps analysis contexts to the factory types discovered
// for them and to the specialized factory method built from those types.
package registry

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/hashicorp/go-set/v3"
	"github.com/puzpuzpuz/xsync/v4"

	"github.com/715d/factorybypass/internal/reflectspec"
	"github.com/715d/factorybypass/internal/synth"
	"github.com/715d/factorybypass/internal/typeabs"
	"github.com/715d/factorybypass/internal/warn"
	"github.com/715d/factorybypass/pkg/ir"
	"github.com/715d/factorybypass/pkg/program"
)

// Invalidator drops derived artifacts cached for a method in a context.
type Invalidator interface {
	Invalidate(m ir.Method, c program.Context)
}

// entry is the state of one context. The mutex orders recording before
// later reads of the same context.
type entry struct {
	mu sync.Mutex
	// types is nil until the first type is recorded.
	types  *set.Set[program.TypeRef]
	method *synth.Method
}

// Options configures a Registry. Every field is optional.
type Options struct {
	Sink        warn.Sink
	Overrides   reflectspec.Source
	Invalidator Invalidator
}

// Registry is safe for concurrent use. Entries are never removed; a method
// handed out for a context stays the method for that context.
type Registry struct {
	interp      *typeabs.Interpreter
	sink        warn.Sink
	overrides   reflectspec.Source
	invalidator Invalidator
	entries     *xsync.Map[program.Context, *entry]
}

// New returns an empty registry.
func New(interp *typeabs.Interpreter, opts Options) *Registry {
	if opts.Sink == nil {
		opts.Sink = warn.Discard
	}
	return &Registry{
		interp:      interp,
		sink:        opts.Sink,
		overrides:   opts.Overrides,
		invalidator: opts.Invalidator,
		entries:     xsync.NewMap[program.Context, *entry](),
	}
}

func (r *Registry) entry(c program.Context) *entry {
	if e, ok := r.entries.Load(c); ok {
		return e
	}
	e, _ := r.entries.LoadOrStore(c, &entry{})
	return e
}

// RecordType adds t to the types discovered for c and reports whether it
// was new. If a method was already built for c it grows by t, and the
// artifacts cached for it are invalidated. On error nothing changes.
func (r *Registry) RecordType(ctx context.Context, c program.Context, t program.TypeRef) (bool, error) {
	if _, ok := r.interp.Hierarchy().LookupClass(t); !ok {
		return false, fmt.Errorf("record %s in %s: %w", t, c, typeabs.ErrUnknownType)
	}

	e := r.entry(c)
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.types != nil && e.types.Contains(t) {
		return false, nil
	}
	if e.method != nil {
		if err := e.method.AddType(ctx, t); err != nil {
			return false, fmt.Errorf("record %s in %s: %w", t, c, err)
		}
	}
	if e.types == nil {
		e.types = set.New[program.TypeRef](2)
	}
	e.types.Insert(t)

	if e.method != nil && r.invalidator != nil {
		r.invalidator.Invalidate(e.method, c)
	}
	slog.Debug("recorded factory type", "context", c, "type", t, "materialized", e.method != nil)
	return true, nil
}

// GetOrCreate returns the method specialized for c, building it from
// summary and the types currently known for c on first request.
func (r *Registry) GetOrCreate(ctx context.Context, summary *ir.Summary, c program.Context) (*synth.Method, error) {
	e := r.entry(c)
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.method != nil {
		return e.method, nil
	}
	types, _ := r.typesFor(c, e)
	m, err := synth.NewMethod(ctx, r.interp, r.sink, summary, c, types)
	if err != nil {
		return nil, err
	}
	e.method = m
	slog.Debug("specialized factory method", "method", summary.Ref, "context", c, "types", len(types), "statements", m.NumberOfStatements())
	return m, nil
}

// Method returns the method already built for c.
func (r *Registry) Method(c program.Context) (*synth.Method, bool) {
	e, ok := r.entries.Load(c)
	if !ok {
		return nil, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.method, e.method != nil
}

// TypesFor returns the types a factory creates in c. Declared overrides for
// a caller site win over discovered types and are never merged with them.
// It reports false when c has neither.
func (r *Registry) TypesFor(c program.Context) ([]program.TypeRef, bool) {
	if ts, ok := r.override(c); ok {
		return ts, true
	}
	e, ok := r.entries.Load(c)
	if !ok {
		return nil, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return r.discovered(e)
}

func (r *Registry) typesFor(c program.Context, e *entry) ([]program.TypeRef, bool) {
	if ts, ok := r.override(c); ok {
		return ts, true
	}
	return r.discovered(e)
}

// discovered returns the recorded types of e in a stable order. The caller
// holds e.mu.
func (r *Registry) discovered(e *entry) ([]program.TypeRef, bool) {
	if e.types == nil {
		return nil, false
	}
	ts := e.types.Slice()
	slices.SortFunc(ts, program.TypeRef.Compare)
	return ts, true
}

func (r *Registry) override(c program.Context) ([]program.TypeRef, bool) {
	if r.overrides == nil {
		return nil, false
	}
	site, ok := c.(program.CallerSiteContext)
	if !ok {
		return nil, false
	}
	sum, ok := r.overrides.SummaryFor(site.Caller)
	if !ok {
		return nil, false
	}
	return sum.TypesAt(site.PC)
}

// Stats summarizes the registry.
type Stats struct {
	Contexts   int `json:"contexts" yaml:"contexts" msgpack:"contexts"`
	Methods    int `json:"methods" yaml:"methods" msgpack:"methods"`
	Types      int `json:"types" yaml:"types" msgpack:"types"`
	Statements int `json:"statements" yaml:"statements" msgpack:"statements"`
}

// Len returns the number of contexts with an entry.
func (r *Registry) Len() int { return r.entries.Size() }

// Stats walks every entry. Entries only grow, so the totals only grow.
func (r *Registry) Stats() Stats {
	var s Stats
	r.entries.Range(func(_ program.Context, e *entry) bool {
		e.mu.Lock()
		defer e.mu.Unlock()
		s.Contexts++
		if e.types != nil {
			s.Types += e.types.Size()
		}
		if e.method != nil {
			s.Methods++
			s.Statements += e.method.NumberOfStatements()
		}
		return true
	})
	return s
}
