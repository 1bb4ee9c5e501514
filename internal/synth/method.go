package synth

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/715d/factorybypass/internal/typeabs"
	"github.com/715d/factorybypass/internal/warn"
	"github.com/715d/factorybypass/pkg/ir"
	"github.com/715d/factorybypass/pkg/program"
)

var lastID atomic.Uint64

// Method is a factory method summary specialized to one analysis context.
// Two Methods are never interchangeable: compare them by pointer or ID.
type Method struct {
	id      uint64
	summary *ir.Summary
	context program.Context

	mu sync.RWMutex
	b  *Builder
}

var _ ir.Method = (*Method)(nil)

// NewMethod seeds a specialization of summary for c and folds in types.
// On error the partially built method is discarded.
func NewMethod(ctx context.Context, interp *typeabs.Interpreter, sink warn.Sink, summary *ir.Summary, c program.Context, types []program.TypeRef) (*Method, error) {
	m := &Method{
		id:      lastID.Add(1),
		summary: summary,
		context: c,
		b:       NewBuilder(interp, sink),
	}
	m.b.Seed(summary)
	for _, t := range types {
		if err := m.addType(ctx, t); err != nil {
			return nil, fmt.Errorf("specializing %s in %s: %w", summary.Ref, c, err)
		}
	}
	return m, nil
}

// AddType grows the body with the statements for t.
func (m *Method) AddType(ctx context.Context, t program.TypeRef) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.addType(ctx, t)
}

func (m *Method) addType(ctx context.Context, t program.TypeRef) error {
	a, err := typeabs.FromTypeRef(m.b.interp.Hierarchy(), t)
	if err != nil {
		return err
	}
	return m.b.AddAbstraction(ctx, a)
}

// AddAbstraction grows the body with the statements for a.
func (m *Method) AddAbstraction(ctx context.Context, a typeabs.Abstraction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.b.AddAbstraction(ctx, a)
}

// ID returns a process-unique identifier.
func (m *Method) ID() uint64 { return m.id }

// Summary returns the summary this method specializes.
func (m *Method) Summary() *ir.Summary { return m.summary }

// Context returns the context this method is specialized to.
func (m *Method) Context() program.Context { return m.context }

func (m *Method) Reference() program.MethodRef        { return m.summary.Reference() }
func (m *Method) DeclaringClass() program.TypeRef     { return m.summary.DeclaringClass() }
func (m *Method) IsStatic() bool                      { return m.summary.IsStatic() }
func (m *Method) NumberOfParameters() int             { return m.summary.NumberOfParameters() }
func (m *Method) ParameterType(i int) program.TypeRef { return m.summary.ParameterType(i) }

// NumberOfStatements returns the current length of the body.
func (m *Method) NumberOfStatements() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.b.Len()
}

// Statements returns a snapshot of the body.
func (m *Method) Statements() []ir.Instruction {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.b.Statements()
}

// Allocations returns a snapshot of the allocation statements.
func (m *Method) Allocations() []*ir.New {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.b.Allocations()
}

// Invokes returns a snapshot of the invoke statements.
func (m *Method) Invokes() []*ir.Invoke {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.b.Invokes()
}

// ConstantOne returns the value number bound to the integer constant 1.
func (m *Method) ConstantOne() (int, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.b.ConstantOne()
}

// Allocated returns the types the synthesized statements allocate.
func (m *Method) Allocated() []program.TypeRef {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.b.Allocated()
}

// MakeIR snapshots the body into an IR with an induced control-flow graph.
func (m *Method) MakeIR(opts ir.Options) *ir.IR {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var constants map[int]int64
	if one, ok := m.b.ConstantOne(); ok {
		constants = map[int]int64{one: 1}
	}
	return ir.NewIR(m, m.context, m.b.Statements(), constants, opts)
}

func (m *Method) String() string {
	return fmt.Sprintf("synthetic#%d %s in %s", m.id, m.summary.Ref, m.context)
}
