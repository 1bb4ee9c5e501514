package ir

// DefUse indexes, for every value number, the instruction defining it and
// the instructions using it.
type DefUse struct {
	instrs []Instruction
	defs   map[int]int
	uses   map[int][]int
}

// NewDefUse indexes the instructions of r.
func NewDefUse(r *IR) *DefUse {
	du := &DefUse{
		instrs: r.instrs,
		defs:   make(map[int]int),
		uses:   make(map[int][]int),
	}
	for i, instr := range r.instrs {
		for _, d := range instr.Defs() {
			if _, ok := du.defs[d]; !ok {
				du.defs[d] = i
			}
		}
		for _, u := range instr.Uses() {
			du.uses[u] = append(du.uses[u], i)
		}
	}
	return du
}

// Def returns the first instruction defining v.
func (du *DefUse) Def(v int) (Instruction, bool) {
	i, ok := du.defs[v]
	if !ok {
		return nil, false
	}
	return du.instrs[i], true
}

// Uses returns every instruction reading v, in instruction order.
func (du *DefUse) Uses(v int) []Instruction {
	idx := du.uses[v]
	out := make([]Instruction, len(idx))
	for j, i := range idx {
		out[j] = du.instrs[i]
	}
	return out
}

// NumberOfUses returns how many instructions read v.
func (du *DefUse) NumberOfUses(v int) int { return len(du.uses[v]) }

// IsUnused reports whether v is never read.
func (du *DefUse) IsUnused(v int) bool { return len(du.uses[v]) == 0 }
