// Package synth builds the synthetic bodies of specialized factory
// methods. A Builder owns one append-only statement log; a Method wraps a
// Builder as a method of the analyzed program.
package synth

import (
	"context"
	"slices"

	"github.com/hashicorp/go-set/v3"

	"github.com/715d/factorybypass/internal/typeabs"
	"github.com/715d/factorybypass/internal/warn"
	"github.com/715d/factorybypass/pkg/ir"
	"github.com/715d/factorybypass/pkg/program"
)

// slots are the numbers reserved for one allocated type.
type slots struct {
	value     int
	exception int
	newPC     int
	callPC    int
}

// Builder appends allocation, return and constructor statements for
// concrete types to a seeded statement log. It is not safe for concurrent
// use.
type Builder struct {
	interp *typeabs.Interpreter
	sink   warn.Sink

	statements  []ir.Instruction
	allocations []*ir.New
	invokes     []*ir.Invoke

	nextLocal int
	nextPC    int
	// constOne is the value number bound to the integer 1, or 0.
	constOne int

	allocated *set.Set[program.TypeRef]
	slots     map[program.TypeRef]slots
}

// NewBuilder returns an empty builder. Warnings raised while expanding
// abstractions go to sink; a nil sink discards them.
func NewBuilder(interp *typeabs.Interpreter, sink warn.Sink) *Builder {
	if sink == nil {
		sink = warn.Discard
	}
	return &Builder{
		interp:    interp,
		sink:      sink,
		nextLocal: 1,
		allocated: set.New[program.TypeRef](4),
		slots:     make(map[program.TypeRef]slots),
	}
}

// Seed copies the statements of summary into the log and returns the
// lowest value number no copied statement defines or uses. Parameters
// occupy value numbers 1 through NumberOfParameters.
func (b *Builder) Seed(summary *ir.Summary) int {
	next := max(b.nextLocal, summary.NumberOfParameters()+1)
	for _, s := range summary.Statements {
		b.statements = append(b.statements, s)
		switch s := s.(type) {
		case *ir.New:
			b.allocations = append(b.allocations, s)
			b.nextPC = max(b.nextPC, s.Site.PC+1)
		case *ir.Invoke:
			b.invokes = append(b.invokes, s)
			b.nextPC = max(b.nextPC, s.Site.PC+1)
		}
		for _, v := range s.Defs() {
			next = max(next, v+1)
		}
		for _, v := range s.Uses() {
			next = max(next, v+1)
		}
	}
	b.nextLocal = next
	return next
}

// AddAbstraction expands a and appends the statements for its types. An
// abstraction naming one instantiable type gets an allocation that falls
// through to the rest of the body; anything else becomes one
// allocate-and-return arm per type. Expansion is the only step that can
// fail, and the log is untouched when it does.
func (b *Builder) AddAbstraction(ctx context.Context, a typeabs.Abstraction) error {
	res, err := b.interp.Expand(ctx, a)
	if err != nil {
		return err
	}
	for _, w := range res.Warnings {
		b.sink.Add(w)
	}
	if res.Ignored {
		return nil
	}

	switch a.(type) {
	case typeabs.Exact:
		b.addConcreteType(a.Type())
		return nil
	case typeabs.Closure:
		if t, ok := b.single(res.Types); ok {
			b.addConcreteType(t)
			return nil
		}
	}
	b.AddTypes(res.Types)
	return nil
}

// single returns the only instantiable type in types.
func (b *Builder) single(types []program.TypeRef) (program.TypeRef, bool) {
	var (
		found program.TypeRef
		n     int
	)
	for _, t := range types {
		if b.interp.Hierarchy().IsAbstract(t) {
			continue
		}
		found = t
		n++
	}
	return found, n == 1
}

// addConcreteType allocates t without returning it. Arrays also get a
// constructor call.
func (b *Builder) addConcreteType(t program.TypeRef) {
	s, ok := b.allocate(t)
	if !ok || !t.IsArray() {
		return
	}
	b.appendInvoke(t, s)
}

// AddTypes appends, for every type not yet allocated and not abstract, an
// allocation, a return of the allocated value and a constructor call. An
// empty types appends a single return of the next free value number.
func (b *Builder) AddTypes(types []program.TypeRef) {
	if len(types) == 0 {
		b.statements = append(b.statements, &ir.Return{Value: b.nextLocal})
		return
	}
	for _, t := range types {
		if b.interp.Hierarchy().IsAbstract(t) {
			continue
		}
		s, ok := b.allocate(t)
		if !ok {
			continue
		}
		b.statements = append(b.statements, &ir.Return{Value: s.value})
		b.appendInvoke(t, s)
	}
}

// allocate appends the allocation of t. It reports false when t was
// already allocated in this body.
func (b *Builder) allocate(t program.TypeRef) (slots, bool) {
	if !b.allocated.Insert(t) {
		return slots{}, false
	}
	s := b.slotsFor(t)
	n := &ir.New{Result: s.value, Site: ir.NewSite{PC: s.newPC, Type: t}}
	if t.IsArray() {
		one := b.constantOne()
		n.Dims = make([]int, t.Dims)
		for i := range n.Dims {
			n.Dims[i] = one
		}
	}
	b.allocations = append(b.allocations, n)
	b.statements = append(b.statements, n)
	return s, true
}

func (b *Builder) appendInvoke(t program.TypeRef, s slots) {
	inv := &ir.Invoke{
		Args:      []int{s.value},
		Exception: s.exception,
		Site: ir.CallSite{
			PC:       s.callPC,
			Target:   program.InitOf(t),
			Dispatch: ir.DispatchSpecial,
		},
	}
	b.invokes = append(b.invokes, inv)
	b.statements = append(b.statements, inv)
}

// slotsFor returns the numbers reserved for t, reserving them on first use.
func (b *Builder) slotsFor(t program.TypeRef) slots {
	if s, ok := b.slots[t]; ok {
		return s
	}
	s := slots{
		value:     b.nextLocal,
		exception: b.nextLocal + 1,
		newPC:     b.nextPC,
		callPC:    b.nextPC + 1,
	}
	b.nextLocal += 2
	b.nextPC += 2
	b.slots[t] = s
	return s
}

func (b *Builder) constantOne() int {
	if b.constOne == 0 {
		b.constOne = b.nextLocal
		b.nextLocal++
	}
	return b.constOne
}

// Statements returns a copy of the log.
func (b *Builder) Statements() []ir.Instruction { return slices.Clone(b.statements) }

// Allocations returns a copy of the allocation statements, seeded ones
// included.
func (b *Builder) Allocations() []*ir.New { return slices.Clone(b.allocations) }

// Invokes returns a copy of the invoke statements, seeded ones included.
func (b *Builder) Invokes() []*ir.Invoke { return slices.Clone(b.invokes) }

// Len returns the number of statements in the log.
func (b *Builder) Len() int { return len(b.statements) }

// NextLocal returns the lowest value number not yet in use.
func (b *Builder) NextLocal() int { return b.nextLocal }

// ConstantOne returns the value number bound to the integer constant 1.
func (b *Builder) ConstantOne() (int, bool) { return b.constOne, b.constOne != 0 }

// Allocated returns the types allocated by synthesized statements, sorted.
func (b *Builder) Allocated() []program.TypeRef {
	out := b.allocated.Slice()
	slices.SortFunc(out, program.TypeRef.Compare)
	return out
}
