package scenario

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/715d/factorybypass/internal/config"
	"github.com/715d/factorybypass/internal/registry"
	"github.com/715d/factorybypass/internal/warn"
	"github.com/715d/factorybypass/pkg/program"
)

const shapes = `
classes:
  - {name: java.io.Serializable, interface: true}
  - {name: demo.Shape, interface: true}
  - {name: demo.Circle, implements: [demo.Shape, java.io.Serializable]}
  - {name: demo.Square, implements: [demo.Shape]}
reflection:
  summaries:
    - method: demo.Main.run()V
      locations:
        - {pc: 7, types: [demo.Square, demo.Circle]}
methods:
  - method: demo.Factory.make()Ljava/lang/Object;
    static: true
    synthetic: true
    factory: true
  - method: demo.Main.run()V
    statements:
      - {op: new, result: 1, pc: 0, type: demo.Circle}
      - {op: return}
nodes:
  - {name: f, method: demo.Factory.make()Ljava/lang/Object;}
  - {name: g, method: demo.Factory.make()Ljava/lang/Object;, caller: demo.Main.run()V, pc: 7}
  - {name: main, method: demo.Main.run()V}
steps:
  - {op: understands, node: f}
  - {op: record, node: f, type: demo.Circle}
  - {op: record, node: f, type: demo.Circle}
  - {op: understands, node: f}
  - {op: ir, node: f}
  - {op: record, node: f, type: demo.Shape}
  - {op: statements, node: f}
  - {op: allocated, node: f}
  - {op: new-sites, node: f}
  - {op: call-sites, node: f}
  - {op: blocks, node: f}
  - {op: record, node: f, type: demo.Missing}
  - {op: record, node: f, type: java.io.Serializable}
  - {op: understands, node: g}
  - {op: ir, node: g}
  - {op: understands, node: main}
`

func parse(t *testing.T, doc string) *Scenario {
	t.Helper()
	sc, err := Parse([]byte(doc), t.TempDir())
	require.NoError(t, err)
	sc.Name = t.Name()
	return sc
}

func ptr[T any](v T) *T { return &v }

func TestRun(t *testing.T) {
	report, err := Run(context.Background(), parse(t, shapes), Options{Config: config.Default()})
	require.NoError(t, err)
	require.Len(t, report.Steps, 16)

	expected := []StepResult{
		{Op: OpUnderstands, Node: "f", Understands: ptr(false)},
		{Op: OpRecord, Node: "f", Type: "demo.Circle", Added: ptr(true)},
		{Op: OpRecord, Node: "f", Type: "demo.Circle", Added: ptr(false)},
		{Op: OpUnderstands, Node: "f", Understands: ptr(true)},
		{Op: OpIR, Node: "f", Count: ptr(1), Values: []string{"v1 = new demo.Circle@0"}},
		{Op: OpRecord, Node: "f", Type: "demo.Shape", Added: ptr(true)},
		{Op: OpStatements, Node: "f", Count: ptr(4)},
		{Op: OpAllocated, Node: "f", Values: []string{"demo.Circle", "demo.Square"}},
		{Op: OpNewSites, Node: "f", Values: []string{"new demo.Circle@0", "new demo.Square@2"}},
		{Op: OpCallSites, Node: "f", Values: []string{"special demo.Square.<init>()V@3"}},
		{Op: OpBlocks, Node: "f", Count: ptr(6), Values: []string{"BB4"}},
	}
	for i, want := range expected {
		assert.Equal(t, want, report.Steps[i], "step %d", i)
	}

	missing := report.Steps[11]
	assert.Nil(t, missing.Added)
	assert.Contains(t, missing.Error, "unknown type")

	assert.Equal(t, ptr(true), report.Steps[12].Added, "marker types are recorded but allocate nothing")
	assert.Equal(t, ptr(true), report.Steps[13].Understands, "declared types need no recording")
	assert.Equal(t, []string{"v1 = new demo.Square@0", "v3 = new demo.Circle@2"}, report.Steps[14].Values)
	assert.Equal(t, ptr(false), report.Steps[15].Understands)

	require.Equal(t, []warn.Warning{{Kind: warn.IgnoredMarker, Subject: "Cone<java.io.Serializable,interface>"}}, report.Warnings)
	assert.Equal(t, registry.Stats{Contexts: 2, Methods: 2, Types: 3, Statements: 6}, report.Registry)
}

func TestRunGrowthInvalidatesIR(t *testing.T) {
	sc := parse(t, shapes)
	sc.Steps = []StepDecl{
		{Op: OpIR, Node: "f"},
		{Op: OpRecord, Node: "f", Type: "demo.Square"},
		{Op: OpIR, Node: "f"},
		{Op: OpIR, Node: "f"},
	}
	report, err := Run(context.Background(), sc, Options{Config: config.Default()})
	require.NoError(t, err)

	assert.Equal(t, ptr(0), report.Steps[0].Count)
	assert.Equal(t, []string{"v1 = new demo.Square@0"}, report.Steps[2].Values)
	assert.Equal(t, 1, report.Cache.Invalidations)
	assert.Equal(t, 1, report.Cache.Hits)
}

func TestRunOverridesFromOptions(t *testing.T) {
	sc := parse(t, shapes)
	sc.Reflection = nil
	sc.Steps = []StepDecl{{Op: OpUnderstands, Node: "g"}}

	report, err := Run(context.Background(), sc, Options{Config: config.Default()})
	require.NoError(t, err)
	assert.Equal(t, ptr(false), report.Steps[0].Understands)
}

func TestRunScenarioSettings(t *testing.T) {
	sc := parse(t, shapes)
	sc.ConeBound = 1
	sc.MarkerType = "demo.Square"
	sc.Steps = []StepDecl{
		{Op: OpRecord, Node: "f", Type: "demo.Shape"},
		{Op: OpRecord, Node: "f", Type: "demo.Square"},
		{Op: OpAllocated, Node: "f"},
	}

	report, err := Run(context.Background(), sc, Options{Config: config.Default()})
	require.NoError(t, err)
	assert.Equal(t, []string{"demo.Circle", "demo.Square"}, report.Steps[2].Values)
	assert.Equal(t, []warn.Warning{
		{Kind: warn.ManySubtypes, Subject: "Cone<demo.Shape,interface>", Count: 2},
		{Kind: warn.IgnoredMarker, Subject: "Point<demo.Square>"},
	}, report.Warnings)
}

func TestRunErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Scenario)
	}{
		{"unknown node", func(sc *Scenario) { sc.Steps = []StepDecl{{Op: OpIR, Node: "nope"}} }},
		{"unknown op", func(sc *Scenario) { sc.Steps = []StepDecl{{Op: "explode", Node: "f"}} }},
		{"undeclared method", func(sc *Scenario) { sc.Nodes = append(sc.Nodes, NodeDecl{Name: "x", Method: "demo.X.y()V"}) }},
		{"duplicate node", func(sc *Scenario) { sc.Nodes = append(sc.Nodes, sc.Nodes[0]) }},
		{"duplicate method", func(sc *Scenario) { sc.Methods = append(sc.Methods, sc.Methods[0]) }},
		{"bad statement", func(sc *Scenario) {
			sc.Methods[1].Statements = append(sc.Methods[1].Statements, StatementDecl{Op: "jump"})
		}},
		{"bad override", func(sc *Scenario) { sc.Reflection.Summaries[0].Locations[0].PC = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sc := parse(t, shapes)
			tt.mutate(sc)
			_, err := Run(context.Background(), sc, Options{Config: config.Default()})
			require.Error(t, err)
		})
	}
}

func TestRunAll(t *testing.T) {
	var scenarios []*Scenario
	for range 8 {
		scenarios = append(scenarios, parse(t, shapes))
	}
	scenarios[3].Name = "third"

	reports, err := RunAll(context.Background(), scenarios, Options{Config: config.Default()})
	require.NoError(t, err)
	require.Len(t, reports, 8)
	assert.Equal(t, "third", reports[3].Name)
	for _, r := range reports {
		assert.Len(t, r.Steps, 16)
	}

	scenarios[5].Steps = append(scenarios[5].Steps, StepDecl{Op: OpIR, Node: "nope"})
	_, err = RunAll(context.Background(), scenarios, Options{Config: config.Default()})
	require.Error(t, err)
}

func TestLoadFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "from-dir")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "classes.yaml"), []byte("classes:\n  - {name: a.B}\n"), 0o600))
	path := filepath.Join(dir, "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte("hierarchy: classes.yaml\n"), 0o600))

	sc, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "from-dir", sc.Name)

	h, err := sc.BuildHierarchy(context.Background())
	require.NoError(t, err)
	_, ok := h.LookupClass(program.Type("a.B"))
	assert.True(t, ok)
}

func TestStatementDecl(t *testing.T) {
	tests := []struct {
		decl     StatementDecl
		expected string
	}{
		{StatementDecl{Op: "new", Result: 2, PC: 4, Type: "a.B[]", Dims: []int{1}}, "v2 = new a.B[]@4(v1)"},
		{StatementDecl{Op: "invoke", Args: []int{1}, Exception: 3, PC: 2, Target: "a.B.<init>()V", Dispatch: "special"}, "invoke special a.B.<init>()V@2(v1) exc:v3"},
		{StatementDecl{Op: "return"}, "return"},
		{StatementDecl{Op: "return", Value: 2}, "return v2"},
		{StatementDecl{Op: "getfield", Result: 2, Ref: 1, Field: "a.B.f", Type: "int"}, "v2 = getfield a.B.f v1"},
		{StatementDecl{Op: "putfield", Value: 2, Field: "a.B.g", Type: "int"}, "putstatic a.B.g = v2"},
		{StatementDecl{Op: "checkcast", Result: 3, Value: 1, Type: "a.C"}, "v3 = checkcast a.C v1"},
		{StatementDecl{Op: "arrayload", Result: 3, Array: 1, Index: 2, Type: "a.C"}, "v3 = arrayload a.C v1[v2]"},
		{StatementDecl{Op: "arraystore", Array: 1, Index: 2, Value: 3, Type: "int"}, "arraystore int v1[v2] = v3"},
		{StatementDecl{Op: "catch", Result: 4, Types: []string{"a.E", "a.F"}}, "v4 = catch <a.E,a.F>"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			instr, err := tt.decl.Build()
			require.NoError(t, err)
			assert.Equal(t, tt.expected, instr.String())
		})
	}

	for _, bad := range []StatementDecl{
		{Op: "bogus"},
		{Op: "invoke", Target: "nodot"},
		{Op: "invoke", Target: "a.B.c()V", Dispatch: "sideways"},
		{Op: "getfield", Field: "a.B.f()I"},
	} {
		_, err := bad.Build()
		assert.Error(t, err, bad.Op)
	}
}
