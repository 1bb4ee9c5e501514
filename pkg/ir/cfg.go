package ir

import (
	"fmt"
	"slices"
	"strings"
)

// BasicBlock is a maximal straight-line run of instructions. The entry and
// exit blocks are empty and have First == Last == -1.
type BasicBlock struct {
	Index int
	First int
	Last  int
}

// IsEntry reports whether b is the synthetic entry block.
func (b *BasicBlock) IsEntry() bool { return b.Index == 0 }

// Len returns the number of instructions in b.
func (b *BasicBlock) Len() int {
	if b.First < 0 {
		return 0
	}
	return b.Last - b.First + 1
}

// CFG is a control-flow graph induced purely from an instruction array:
// blocks end after every return and every potentially excepting
// instruction, and catch instructions start handler blocks.
type CFG struct {
	instrs      []Instruction
	blocks      []*BasicBlock
	normal      [][]int
	exceptional [][]int
	preds       [][]int
	blockOf     []int
}

// NewInducedCFG builds the control-flow graph of instrs.
func NewInducedCFG(instrs []Instruction, opts Options) *CFG {
	g := &CFG{
		instrs:  instrs,
		blockOf: make([]int, len(instrs)),
	}
	g.addBlock(-1, -1) // entry

	start := 0
	for i, instr := range instrs {
		if i > start && isCatch(instr) {
			g.addBlock(start, i-1)
			start = i
		}
		_, ret := instr.(*Return)
		if ret || isPEI(instr) {
			g.addBlock(start, i)
			start = i + 1
		}
	}
	if start < len(instrs) {
		g.addBlock(start, len(instrs)-1)
	}
	exit := g.addBlock(-1, -1)

	g.normal = make([][]int, len(g.blocks))
	g.exceptional = make([][]int, len(g.blocks))
	g.preds = make([][]int, len(g.blocks))

	var handlers []int
	for _, b := range g.blocks[1:exit] {
		if isCatch(instrs[b.First]) {
			handlers = append(handlers, b.Index)
		}
	}

	if exit == 1 {
		g.addNormal(0, exit)
		return g
	}
	g.addNormal(0, 1)
	for _, b := range g.blocks[1:exit] {
		last := instrs[b.Last]
		if _, ok := last.(*Return); ok {
			g.addNormal(b.Index, exit)
		} else {
			g.addNormal(b.Index, b.Index+1)
		}
		if opts.ExceptionalEdges && isPEI(last) {
			for _, h := range handlers {
				g.addExceptional(b.Index, h)
			}
			g.addExceptional(b.Index, exit)
		}
	}
	return g
}

func (g *CFG) addBlock(first, last int) int {
	idx := len(g.blocks)
	g.blocks = append(g.blocks, &BasicBlock{Index: idx, First: first, Last: last})
	for i := first; i >= 0 && i <= last; i++ {
		g.blockOf[i] = idx
	}
	return idx
}

func (g *CFG) addNormal(from, to int) {
	g.normal[from] = append(g.normal[from], to)
	g.addPred(from, to)
}

func (g *CFG) addExceptional(from, to int) {
	if slices.Contains(g.exceptional[from], to) {
		return
	}
	g.exceptional[from] = append(g.exceptional[from], to)
	g.addPred(from, to)
}

func (g *CFG) addPred(from, to int) {
	if !slices.Contains(g.preds[to], from) {
		g.preds[to] = append(g.preds[to], from)
	}
}

func isCatch(instr Instruction) bool {
	_, ok := instr.(*Catch)
	return ok
}

// Entry returns the synthetic entry block.
func (g *CFG) Entry() *BasicBlock { return g.blocks[0] }

// Exit returns the synthetic exit block.
func (g *CFG) Exit() *BasicBlock { return g.blocks[len(g.blocks)-1] }

// Blocks returns all blocks in index order, entry first and exit last.
func (g *CFG) Blocks() []*BasicBlock { return g.blocks }

// NumberOfBlocks returns the block count including entry and exit.
func (g *CFG) NumberOfBlocks() int { return len(g.blocks) }

// BlockOf returns the block holding instruction index i.
func (g *CFG) BlockOf(i int) *BasicBlock {
	if i < 0 || i >= len(g.blockOf) {
		return nil
	}
	return g.blocks[g.blockOf[i]]
}

// Instructions returns the instructions of b.
func (g *CFG) Instructions(b *BasicBlock) []Instruction {
	if b.First < 0 {
		return nil
	}
	return g.instrs[b.First : b.Last+1]
}

// NormalSuccs returns the normal successors of b.
func (g *CFG) NormalSuccs(b *BasicBlock) []*BasicBlock { return g.lookup(g.normal[b.Index]) }

// ExceptionalSuccs returns the exceptional successors of b.
func (g *CFG) ExceptionalSuccs(b *BasicBlock) []*BasicBlock {
	return g.lookup(g.exceptional[b.Index])
}

// Preds returns the predecessors of b over both edge kinds.
func (g *CFG) Preds(b *BasicBlock) []*BasicBlock { return g.lookup(g.preds[b.Index]) }

// Reachable reports whether b is reachable from the entry block.
func (g *CFG) Reachable(b *BasicBlock) bool {
	seen := make([]bool, len(g.blocks))
	work := []int{0}
	seen[0] = true
	for len(work) > 0 {
		n := work[len(work)-1]
		work = work[:len(work)-1]
		if n == b.Index {
			return true
		}
		for _, s := range slices.Concat(g.normal[n], g.exceptional[n]) {
			if !seen[s] {
				seen[s] = true
				work = append(work, s)
			}
		}
	}
	return false
}

func (g *CFG) lookup(idx []int) []*BasicBlock {
	out := make([]*BasicBlock, len(idx))
	for i, n := range idx {
		out[i] = g.blocks[n]
	}
	return out
}

func (g *CFG) String() string {
	var b strings.Builder
	for _, bb := range g.blocks {
		fmt.Fprintf(&b, "BB%d [%d..%d] -> %v", bb.Index, bb.First, bb.Last, g.normal[bb.Index])
		if len(g.exceptional[bb.Index]) > 0 {
			fmt.Fprintf(&b, " exc %v", g.exceptional[bb.Index])
		}
		b.WriteByte('\n')
	}
	return b.String()
}
