// Package reflectspec reads user-supplied declarations of the types a
// factory call creates at a given program location.
//
// The format is YAML:
//
//	summaries:
//	  - method: app.Main.main()V
//	    locations:
//	      - pc: 3
//	        types: [app.Circle, app.Square]
package reflectspec

import (
	"fmt"
	"os"
	"slices"

	yaml "gopkg.in/yaml.v3"

	"github.com/715d/factorybypass/pkg/program"
)

// Source answers override lookups by caller method.
type Source interface {
	SummaryFor(m program.MethodRef) (*Summary, bool)
}

// Summary holds the declared types per program counter of one caller.
type Summary struct {
	Method program.MethodRef
	types  map[int][]program.TypeRef
}

// TypesAt returns the types declared for the call at pc.
func (s *Summary) TypesAt(pc int) ([]program.TypeRef, bool) {
	ts, ok := s.types[pc]
	return slices.Clone(ts), ok
}

// Locations returns the program counters with declarations, sorted.
func (s *Summary) Locations() []int {
	pcs := make([]int, 0, len(s.types))
	for pc := range s.types {
		pcs = append(pcs, pc)
	}
	slices.Sort(pcs)
	return pcs
}

// Spec is a Source backed by a parsed declaration file.
type Spec struct {
	summaries map[program.MethodRef]*Summary
}

var _ Source = (*Spec)(nil)

// SummaryFor implements Source.
func (s *Spec) SummaryFor(m program.MethodRef) (*Summary, bool) {
	if s == nil {
		return nil, false
	}
	sum, ok := s.summaries[m]
	return sum, ok
}

// Len returns the number of caller methods with declarations.
func (s *Spec) Len() int { return len(s.summaries) }

// File is the YAML document shape.
type File struct {
	Summaries []SummaryDecl `yaml:"summaries"`
}

// SummaryDecl declares the overrides of one caller method.
type SummaryDecl struct {
	Method    string         `yaml:"method"`
	Locations []LocationDecl `yaml:"locations"`
}

// LocationDecl declares the types created by the call at PC.
type LocationDecl struct {
	PC    int      `yaml:"pc"`
	Types []string `yaml:"types"`
}

// Build validates f and indexes it by caller method. Declarations for the
// same caller and pc are merged.
func (f File) Build() (*Spec, error) {
	spec := &Spec{summaries: make(map[program.MethodRef]*Summary, len(f.Summaries))}
	for i, sd := range f.Summaries {
		ref, err := program.ParseMethodRef(sd.Method)
		if err != nil {
			return nil, fmt.Errorf("summary %d: %w", i, err)
		}
		sum, ok := spec.summaries[ref]
		if !ok {
			sum = &Summary{Method: ref, types: make(map[int][]program.TypeRef)}
			spec.summaries[ref] = sum
		}
		for _, loc := range sd.Locations {
			if loc.PC < 0 {
				return nil, fmt.Errorf("summary %s: negative pc %d", ref, loc.PC)
			}
			ts := sum.types[loc.PC]
			for _, name := range loc.Types {
				t := program.ParseTypeRef(name)
				if t.Name == "" {
					return nil, fmt.Errorf("summary %s pc %d: empty type name", ref, loc.PC)
				}
				if !slices.Contains(ts, t) {
					ts = append(ts, t)
				}
			}
			sum.types[loc.PC] = ts
		}
	}
	return spec, nil
}

// Parse decodes and builds a YAML declaration document.
func Parse(data []byte) (*Spec, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse reflection spec: %w", err)
	}
	return f.Build()
}

// LoadFile reads and builds a YAML declaration file.
func LoadFile(path string) (*Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read reflection spec: %w", err)
	}
	spec, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return spec, nil
}
