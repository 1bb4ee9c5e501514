package ir

import "github.com/715d/factorybypass/pkg/program"

// Method is the signature-level view of a method that IR is built for.
type Method interface {
	Reference() program.MethodRef
	DeclaringClass() program.TypeRef
	IsStatic() bool
	// NumberOfParameters counts the receiver of instance methods.
	NumberOfParameters() int
	ParameterType(i int) program.TypeRef
}

// Summary is a hand-written or decompiled method body. Synthetic factory
// summaries are the ones the factory interpreter specializes per context.
type Summary struct {
	Ref       program.MethodRef
	Static    bool
	Synthetic bool
	Factory   bool
	// Params lists parameter types; the receiver comes first for instance
	// methods.
	Params     []program.TypeRef
	Statements []Instruction
}

var _ Method = (*Summary)(nil)

func (s *Summary) Reference() program.MethodRef    { return s.Ref }
func (s *Summary) DeclaringClass() program.TypeRef { return s.Ref.Class }
func (s *Summary) IsStatic() bool                  { return s.Static }
func (s *Summary) NumberOfParameters() int         { return len(s.Params) }

func (s *Summary) ParameterType(i int) program.TypeRef {
	if i < 0 || i >= len(s.Params) {
		return program.TypeRef{}
	}
	return s.Params[i]
}

// IsFactory reports whether s is a synthetic summary modeling a factory.
func (s *Summary) IsFactory() bool { return s.Synthetic && s.Factory }

func (s *Summary) String() string { return s.Ref.String() }
