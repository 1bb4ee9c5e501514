// Package ir defines the register-based intermediate representation that
// method summaries and synthesized method bodies are expressed in, together
// with the structures derived from it: the induced control-flow graph, the
// def-use index, and a structural scanner.
package ir

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/715d/factorybypass/pkg/program"
)

// Instruction is one statement of a method body. Value numbers are
// positive; 0 and negative numbers never name a value.
type Instruction interface {
	// Defs returns the value numbers the instruction defines.
	Defs() []int
	// Uses returns the value numbers the instruction reads.
	Uses() []int
	String() string
}

// NewSite identifies an allocation site within a method.
type NewSite struct {
	PC   int
	Type program.TypeRef
}

func (s NewSite) String() string {
	return "new " + s.Type.String() + "@" + strconv.Itoa(s.PC)
}

// Dispatch is the invocation mode of a call site.
type Dispatch int

const (
	DispatchVirtual Dispatch = iota
	DispatchSpecial
	DispatchStatic
	DispatchInterface
)

var dispatchNames = [...]string{"virtual", "special", "static", "interface"}

func (d Dispatch) String() string {
	if d < 0 || int(d) >= len(dispatchNames) {
		return "dispatch(" + strconv.Itoa(int(d)) + ")"
	}
	return dispatchNames[d]
}

// ParseDispatch parses the lower-case dispatch name.
func ParseDispatch(s string) (Dispatch, error) {
	for i, n := range dispatchNames {
		if n == s {
			return Dispatch(i), nil
		}
	}
	return 0, fmt.Errorf("unknown dispatch %q", s)
}

// CallSite identifies an invocation site within a method.
type CallSite struct {
	PC       int
	Target   program.MethodRef
	Dispatch Dispatch
}

func (s CallSite) String() string {
	return s.Dispatch.String() + " " + s.Target.String() + "@" + strconv.Itoa(s.PC)
}

// New allocates an object or array. Dims holds one value number per array
// dimension and is empty for class allocations.
type New struct {
	Result int
	Site   NewSite
	Dims   []int
}

func (i *New) Defs() []int { return []int{i.Result} }
func (i *New) Uses() []int { return i.Dims }

func (i *New) String() string {
	if len(i.Dims) == 0 {
		return fmt.Sprintf("v%d = %s", i.Result, i.Site)
	}
	return fmt.Sprintf("v%d = %s%s", i.Result, i.Site, valueList(i.Dims))
}

// Invoke calls Site.Target. Result is 0 when the call produces no value;
// Exception, when positive, receives the exceptional result.
type Invoke struct {
	Result    int
	Args      []int
	Exception int
	Site      CallSite
}

func (i *Invoke) Defs() []int {
	var defs []int
	if i.Result > 0 {
		defs = append(defs, i.Result)
	}
	if i.Exception > 0 {
		defs = append(defs, i.Exception)
	}
	return defs
}

func (i *Invoke) Uses() []int { return i.Args }

func (i *Invoke) String() string {
	var b strings.Builder
	if i.Result > 0 {
		fmt.Fprintf(&b, "v%d = ", i.Result)
	}
	fmt.Fprintf(&b, "invoke %s%s exc:v%d", i.Site, valueList(i.Args), i.Exception)
	return b.String()
}

// Return leaves the method, yielding Value unless Void is set.
type Return struct {
	Value int
	Void  bool
}

func (i *Return) Defs() []int { return nil }

func (i *Return) Uses() []int {
	if i.Void {
		return nil
	}
	return []int{i.Value}
}

func (i *Return) String() string {
	if i.Void {
		return "return"
	}
	return "return v" + strconv.Itoa(i.Value)
}

// GetField reads Field from Ref, or from the static field when Ref is 0.
type GetField struct {
	Result int
	Ref    int
	Field  program.FieldRef
}

func (i *GetField) Defs() []int { return []int{i.Result} }

func (i *GetField) Uses() []int {
	if i.Ref > 0 {
		return []int{i.Ref}
	}
	return nil
}

func (i *GetField) String() string {
	if i.Ref > 0 {
		return fmt.Sprintf("v%d = getfield %s v%d", i.Result, i.Field, i.Ref)
	}
	return fmt.Sprintf("v%d = getstatic %s", i.Result, i.Field)
}

// PutField writes Value into Field of Ref, or the static field when Ref is 0.
type PutField struct {
	Ref   int
	Value int
	Field program.FieldRef
}

func (i *PutField) Defs() []int { return nil }

func (i *PutField) Uses() []int {
	if i.Ref > 0 {
		return []int{i.Ref, i.Value}
	}
	return []int{i.Value}
}

func (i *PutField) String() string {
	if i.Ref > 0 {
		return fmt.Sprintf("putfield %s v%d = v%d", i.Field, i.Ref, i.Value)
	}
	return fmt.Sprintf("putstatic %s = v%d", i.Field, i.Value)
}

// CheckCast narrows Value to Type.
type CheckCast struct {
	Result int
	Value  int
	Type   program.TypeRef
}

func (i *CheckCast) Defs() []int { return []int{i.Result} }
func (i *CheckCast) Uses() []int { return []int{i.Value} }

func (i *CheckCast) String() string {
	return fmt.Sprintf("v%d = checkcast %s v%d", i.Result, i.Type, i.Value)
}

// ArrayLoad reads Array[Index]; Elem is the declared element type.
type ArrayLoad struct {
	Result int
	Array  int
	Index  int
	Elem   program.TypeRef
}

func (i *ArrayLoad) Defs() []int { return []int{i.Result} }
func (i *ArrayLoad) Uses() []int { return []int{i.Array, i.Index} }

func (i *ArrayLoad) String() string {
	return fmt.Sprintf("v%d = arrayload %s v%d[v%d]", i.Result, i.Elem, i.Array, i.Index)
}

// ArrayStore writes Value into Array[Index].
type ArrayStore struct {
	Array int
	Index int
	Value int
	Elem  program.TypeRef
}

func (i *ArrayStore) Defs() []int { return nil }
func (i *ArrayStore) Uses() []int { return []int{i.Array, i.Index, i.Value} }

func (i *ArrayStore) String() string {
	return fmt.Sprintf("arraystore %s v%d[v%d] = v%d", i.Elem, i.Array, i.Index, i.Value)
}

// Catch starts an exception handler and binds the caught exception.
type Catch struct {
	Result int
	Types  []program.TypeRef
}

func (i *Catch) Defs() []int { return []int{i.Result} }
func (i *Catch) Uses() []int { return nil }

func (i *Catch) String() string {
	names := make([]string, len(i.Types))
	for j, t := range i.Types {
		names[j] = t.String()
	}
	return fmt.Sprintf("v%d = catch <%s>", i.Result, strings.Join(names, ","))
}

// isPEI reports whether instr may raise an exception.
func isPEI(instr Instruction) bool {
	switch instr.(type) {
	case *New, *Invoke, *GetField, *PutField, *CheckCast, *ArrayLoad, *ArrayStore:
		return true
	}
	return false
}

func valueList(vs []int) string {
	var b strings.Builder
	b.WriteByte('(')
	for i, v := range vs {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteByte('v')
		b.WriteString(strconv.Itoa(v))
	}
	b.WriteByte(')')
	return b.String()
}
