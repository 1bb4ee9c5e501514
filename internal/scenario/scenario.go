// Package scenario replays scripted analysis events against the factory
// interpreter. A scenario declares a class hierarchy, method summaries,
// call-graph nodes and an ordered list of steps that record factory types
// or query the specialized bodies.
package scenario

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	yaml "gopkg.in/yaml.v3"

	"github.com/715d/factorybypass/internal/reflectspec"
	"github.com/715d/factorybypass/pkg/hierarchy"
	"github.com/715d/factorybypass/pkg/ir"
	"github.com/715d/factorybypass/pkg/loader"
	"github.com/715d/factorybypass/pkg/program"
)

// Scenario is the YAML document shape.
type Scenario struct {
	Name string `yaml:"name"`

	// Dir is the directory relative paths resolve against.
	Dir string `yaml:"-"`

	// The hierarchy comes from the first of: Go package patterns loaded
	// from Dir, a hierarchy file, or inline class declarations.
	Packages  []string              `yaml:"packages,omitempty"`
	Hierarchy string                `yaml:"hierarchy,omitempty"`
	Classes   []hierarchy.ClassDecl `yaml:"classes,omitempty"`

	// Reflection declares per-call-site overrides inline.
	Reflection *reflectspec.File `yaml:"reflection,omitempty"`

	// ConeBound and MarkerType override the configuration when set.
	ConeBound  int    `yaml:"cone_bound,omitempty"`
	MarkerType string `yaml:"marker_type,omitempty"`

	Methods []MethodDecl `yaml:"methods"`
	Nodes   []NodeDecl   `yaml:"nodes"`
	Steps   []StepDecl   `yaml:"steps"`
}

// MethodDecl declares a method summary.
type MethodDecl struct {
	Method     string          `yaml:"method"`
	Static     bool            `yaml:"static,omitempty"`
	Synthetic  bool            `yaml:"synthetic,omitempty"`
	Factory    bool            `yaml:"factory,omitempty"`
	Params     []string        `yaml:"params,omitempty"`
	Statements []StatementDecl `yaml:"statements,omitempty"`
}

// StatementDecl declares one instruction. Op selects which fields apply.
type StatementDecl struct {
	Op        string   `yaml:"op"`
	Result    int      `yaml:"result,omitempty"`
	Value     int      `yaml:"value,omitempty"`
	Ref       int      `yaml:"ref,omitempty"`
	Array     int      `yaml:"array,omitempty"`
	Index     int      `yaml:"index,omitempty"`
	Args      []int    `yaml:"args,omitempty"`
	Dims      []int    `yaml:"dims,omitempty"`
	Exception int      `yaml:"exception,omitempty"`
	PC        int      `yaml:"pc,omitempty"`
	Type      string   `yaml:"type,omitempty"`
	Types     []string `yaml:"types,omitempty"`
	Target    string   `yaml:"target,omitempty"`
	Dispatch  string   `yaml:"dispatch,omitempty"`
	Field     string   `yaml:"field,omitempty"`
}

// NodeDecl declares a call-graph node. A node without a caller is in the
// context-insensitive context.
type NodeDecl struct {
	Name   string `yaml:"name"`
	Method string `yaml:"method"`
	Caller string `yaml:"caller,omitempty"`
	PC     int    `yaml:"pc,omitempty"`
}

// StepDecl is one event or query. Type is used by record steps only.
type StepDecl struct {
	Op   string `yaml:"op"`
	Node string `yaml:"node"`
	Type string `yaml:"type,omitempty"`
}

// Step operations.
const (
	OpRecord              = "record"
	OpUnderstands         = "understands"
	OpStatements          = "statements"
	OpIR                  = "ir"
	OpNewSites            = "new-sites"
	OpCallSites           = "call-sites"
	OpFieldsRead          = "fields-read"
	OpFieldsWritten       = "fields-written"
	OpCaughtExceptions    = "caught-exceptions"
	OpCastTypes           = "cast-types"
	OpHasObjectArrayLoad  = "array-load"
	OpHasObjectArrayStore = "array-store"
	OpAllocated           = "allocated"
	OpBlocks              = "blocks"
)

// Parse decodes a scenario document. Relative paths resolve against dir.
func Parse(data []byte, dir string) (*Scenario, error) {
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("parse scenario: %w", err)
	}
	sc.Dir = dir
	return &sc, nil
}

// LoadFile reads a scenario from path. The scenario is named after its
// directory unless it names itself.
func LoadFile(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}
	sc, err := Parse(data, filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if sc.Name == "" {
		sc.Name = filepath.Base(filepath.Dir(path))
	}
	return sc, nil
}

// BuildHierarchy returns the hierarchy the scenario runs against.
func (sc *Scenario) BuildHierarchy(ctx context.Context) (*hierarchy.Hierarchy, error) {
	if len(sc.Packages) > 0 {
		pkgs, err := loader.LoadPackages(ctx, loader.Options{
			Packages: sc.Packages,
			Dir:      sc.Dir,
		})
		if err != nil {
			return nil, err
		}
		return hierarchy.FromPackages(pkgs)
	}
	if sc.Hierarchy == "" {
		return hierarchy.Decl{Classes: sc.Classes}.Build()
	}
	path := sc.Hierarchy
	if !filepath.IsAbs(path) {
		path = filepath.Join(sc.Dir, path)
	}
	return hierarchy.LoadFile(path)
}

// BuildSummaries returns the declared summaries keyed by method.
func (sc *Scenario) BuildSummaries() (map[program.MethodRef]*ir.Summary, error) {
	out := make(map[program.MethodRef]*ir.Summary, len(sc.Methods))
	for _, md := range sc.Methods {
		s, err := md.Build()
		if err != nil {
			return nil, err
		}
		if _, dup := out[s.Ref]; dup {
			return nil, fmt.Errorf("method %s declared twice", s.Ref)
		}
		out[s.Ref] = s
	}
	return out, nil
}

// Build converts the declaration into a summary.
func (md MethodDecl) Build() (*ir.Summary, error) {
	ref, err := program.ParseMethodRef(md.Method)
	if err != nil {
		return nil, err
	}
	s := &ir.Summary{
		Ref:       ref,
		Static:    md.Static,
		Synthetic: md.Synthetic,
		Factory:   md.Factory,
	}
	for _, p := range md.Params {
		s.Params = append(s.Params, program.ParseTypeRef(p))
	}
	for i, sd := range md.Statements {
		instr, err := sd.Build()
		if err != nil {
			return nil, fmt.Errorf("method %s statement %d: %w", ref, i, err)
		}
		s.Statements = append(s.Statements, instr)
	}
	if err := ir.Validate(s.Statements); err != nil {
		return nil, fmt.Errorf("method %s: %w", ref, err)
	}
	return s, nil
}

// Build converts the declaration into an instruction.
func (sd StatementDecl) Build() (ir.Instruction, error) {
	switch sd.Op {
	case "new":
		return &ir.New{
			Result: sd.Result,
			Site:   ir.NewSite{PC: sd.PC, Type: program.ParseTypeRef(sd.Type)},
			Dims:   sd.Dims,
		}, nil
	case "invoke":
		target, err := program.ParseMethodRef(sd.Target)
		if err != nil {
			return nil, err
		}
		dispatch := ir.DispatchVirtual
		if sd.Dispatch != "" {
			if dispatch, err = ir.ParseDispatch(sd.Dispatch); err != nil {
				return nil, err
			}
		}
		return &ir.Invoke{
			Result:    sd.Result,
			Args:      sd.Args,
			Exception: sd.Exception,
			Site:      ir.CallSite{PC: sd.PC, Target: target, Dispatch: dispatch},
		}, nil
	case "return":
		return &ir.Return{Value: sd.Value, Void: sd.Value == 0}, nil
	case "getfield", "putfield":
		field, err := parseField(sd.Field, sd.Type)
		if err != nil {
			return nil, err
		}
		if sd.Op == "getfield" {
			return &ir.GetField{Result: sd.Result, Ref: sd.Ref, Field: field}, nil
		}
		return &ir.PutField{Ref: sd.Ref, Value: sd.Value, Field: field}, nil
	case "checkcast":
		return &ir.CheckCast{Result: sd.Result, Value: sd.Value, Type: program.ParseTypeRef(sd.Type)}, nil
	case "arrayload":
		return &ir.ArrayLoad{Result: sd.Result, Array: sd.Array, Index: sd.Index, Elem: program.ParseTypeRef(sd.Type)}, nil
	case "arraystore":
		return &ir.ArrayStore{Array: sd.Array, Index: sd.Index, Value: sd.Value, Elem: program.ParseTypeRef(sd.Type)}, nil
	case "catch":
		c := &ir.Catch{Result: sd.Result}
		for _, t := range sd.Types {
			c.Types = append(c.Types, program.ParseTypeRef(t))
		}
		return c, nil
	}
	return nil, fmt.Errorf("unknown op %q", sd.Op)
}

// parseField parses "pkg.Class.name" with the field's declared type.
func parseField(s, typ string) (program.FieldRef, error) {
	m, err := program.ParseMethodRef(s)
	if err != nil || m.Descriptor != "" {
		return program.FieldRef{}, fmt.Errorf("malformed field reference %q", s)
	}
	return program.FieldRef{Class: m.Class, Name: m.Name, Type: program.ParseTypeRef(typ)}, nil
}

// Context returns the analysis context of the node.
func (nd NodeDecl) Context() (program.Context, error) {
	if nd.Caller == "" {
		return program.Everywhere{}, nil
	}
	caller, err := program.ParseMethodRef(nd.Caller)
	if err != nil {
		return nil, fmt.Errorf("node %s: %w", nd.Name, err)
	}
	return program.CallerSiteContext{Caller: caller, PC: nd.PC}, nil
}
