package ir

import (
	"errors"
	"fmt"
	"slices"

	"github.com/715d/factorybypass/pkg/program"
)

// ErrMalformed reports an instruction sequence that violates the structural
// rules of the IR.
var ErrMalformed = errors.New("malformed instruction")

// Validate checks that every instruction is present and names only
// positive value numbers.
func Validate(instrs []Instruction) error {
	for i, instr := range instrs {
		if instr == nil {
			return fmt.Errorf("%w: nil instruction at %d", ErrMalformed, i)
		}
		for _, v := range slices.Concat(instr.Defs(), instr.Uses()) {
			if v <= 0 {
				return fmt.Errorf("%w: value number %d in %q at %d", ErrMalformed, v, instr, i)
			}
		}
	}
	return nil
}

// FieldsRead returns the distinct fields read by instrs, in first-use order.
func FieldsRead(instrs []Instruction) ([]program.FieldRef, error) {
	return scan(instrs, func(instr Instruction, out []program.FieldRef) []program.FieldRef {
		if g, ok := instr.(*GetField); ok && !slices.Contains(out, g.Field) {
			out = append(out, g.Field)
		}
		return out
	})
}

// FieldsWritten returns the distinct fields written by instrs.
func FieldsWritten(instrs []Instruction) ([]program.FieldRef, error) {
	return scan(instrs, func(instr Instruction, out []program.FieldRef) []program.FieldRef {
		if p, ok := instr.(*PutField); ok && !slices.Contains(out, p.Field) {
			out = append(out, p.Field)
		}
		return out
	})
}

// CaughtExceptions returns the distinct exception types caught by instrs.
func CaughtExceptions(instrs []Instruction) ([]program.TypeRef, error) {
	return scan(instrs, func(instr Instruction, out []program.TypeRef) []program.TypeRef {
		if c, ok := instr.(*Catch); ok {
			for _, t := range c.Types {
				if !slices.Contains(out, t) {
					out = append(out, t)
				}
			}
		}
		return out
	})
}

// CastTypes returns the distinct types instrs cast to.
func CastTypes(instrs []Instruction) ([]program.TypeRef, error) {
	return scan(instrs, func(instr Instruction, out []program.TypeRef) []program.TypeRef {
		if c, ok := instr.(*CheckCast); ok && !slices.Contains(out, c.Type) {
			out = append(out, c.Type)
		}
		return out
	})
}

// HasObjectArrayLoad reports whether instrs load from an array of references.
func HasObjectArrayLoad(instrs []Instruction) (bool, error) {
	if err := Validate(instrs); err != nil {
		return false, err
	}
	return slices.ContainsFunc(instrs, func(instr Instruction) bool {
		l, ok := instr.(*ArrayLoad)
		return ok && !l.Elem.IsPrimitive()
	}), nil
}

// HasObjectArrayStore reports whether instrs store into an array of
// references.
func HasObjectArrayStore(instrs []Instruction) (bool, error) {
	if err := Validate(instrs); err != nil {
		return false, err
	}
	return slices.ContainsFunc(instrs, func(instr Instruction) bool {
		s, ok := instr.(*ArrayStore)
		return ok && !s.Elem.IsPrimitive()
	}), nil
}

func scan[T any](instrs []Instruction, visit func(Instruction, []T) []T) ([]T, error) {
	if err := Validate(instrs); err != nil {
		return nil, err
	}
	var out []T
	for _, instr := range instrs {
		out = visit(instr, out)
	}
	return out, nil
}
