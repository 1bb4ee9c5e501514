package ir

import (
	"fmt"
	"iter"
	"maps"
	"slices"
	"strings"

	"github.com/715d/factorybypass/pkg/program"
)

// Options governs IR materialization. It is comparable so it can key
// caches.
type Options struct {
	// ExceptionalEdges adds exceptional control-flow edges from every
	// potentially excepting instruction.
	ExceptionalEdges bool
}

// DefaultOptions returns the options used when none are configured.
func DefaultOptions() Options {
	return Options{ExceptionalEdges: true}
}

// IR is an immutable snapshot of a method body in one context.
type IR struct {
	method    Method
	context   program.Context
	instrs    []Instruction
	constants map[int]int64
	options   Options
	cfg       *CFG
}

// NewIR builds the IR for m in ctx. instrs is owned by the result; constants
// binds value numbers to integer constants and may be nil.
func NewIR(m Method, ctx program.Context, instrs []Instruction, constants map[int]int64, opts Options) *IR {
	return &IR{
		method:    m,
		context:   ctx,
		instrs:    instrs,
		constants: constants,
		options:   opts,
		cfg:       NewInducedCFG(instrs, opts),
	}
}

func (r *IR) Method() Method                   { return r.method }
func (r *IR) Context() program.Context         { return r.context }
func (r *IR) Instructions() []Instruction      { return r.instrs }
func (r *IR) ControlFlowGraph() *CFG           { return r.cfg }
func (r *IR) Options() Options                 { return r.options }
func (r *IR) NumberOfInstructions() int        { return len(r.instrs) }
func (r *IR) Constants() iter.Seq2[int, int64] { return maps.All(r.constants) }

// Constant returns the integer constant bound to v.
func (r *IR) Constant(v int) (int64, bool) {
	c, ok := r.constants[v]
	return c, ok
}

// NewSites yields the allocation sites of the body in instruction order.
func (r *IR) NewSites() iter.Seq[NewSite] {
	return func(yield func(NewSite) bool) {
		for _, instr := range r.instrs {
			if n, ok := instr.(*New); ok && !yield(n.Site) {
				return
			}
		}
	}
}

// CallSites yields the call sites of the body in instruction order.
func (r *IR) CallSites() iter.Seq[CallSite] {
	return func(yield func(CallSite) bool) {
		for _, instr := range r.instrs {
			if c, ok := instr.(*Invoke); ok && !yield(c.Site) {
				return
			}
		}
	}
}

func (r *IR) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s in %s\n", r.method.Reference(), r.context)
	for _, v := range slices.Sorted(maps.Keys(r.constants)) {
		fmt.Fprintf(&b, "  const v%d = %d\n", v, r.constants[v])
	}
	for i, instr := range r.instrs {
		fmt.Fprintf(&b, "  %3d  %s\n", i, instr)
	}
	return b.String()
}
