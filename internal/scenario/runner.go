package scenario

import (
	"context"
	"fmt"
	"log/slog"
	goruntime "runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/715d/factorybypass/internal/bypass"
	"github.com/715d/factorybypass/internal/config"
	"github.com/715d/factorybypass/internal/ircache"
	"github.com/715d/factorybypass/internal/reflectspec"
	"github.com/715d/factorybypass/internal/registry"
	"github.com/715d/factorybypass/internal/warn"
	"github.com/715d/factorybypass/pkg/program"
)

// Report is the outcome of one scenario.
type Report struct {
	Name     string         `json:"name" yaml:"name" msgpack:"name"`
	Steps    []StepResult   `json:"steps" yaml:"steps" msgpack:"steps"`
	Warnings []warn.Warning `json:"warnings,omitempty" yaml:"warnings,omitempty" msgpack:"warnings,omitempty"`
	Registry registry.Stats `json:"registry" yaml:"registry" msgpack:"registry"`
	Cache    ircache.Stats  `json:"cache" yaml:"-" msgpack:"cache"`
	Duration time.Duration  `json:"duration" yaml:"-" msgpack:"duration"`
}

// Failed returns the number of steps that reported an error.
func (r *Report) Failed() int {
	n := 0
	for _, s := range r.Steps {
		if s.Error != "" {
			n++
		}
	}
	return n
}

// StepResult is the outcome of one step. Only the fields the step's
// operation produces are set.
type StepResult struct {
	Op          string   `json:"op" yaml:"op" msgpack:"op"`
	Node        string   `json:"node" yaml:"node" msgpack:"node"`
	Type        string   `json:"type,omitempty" yaml:"type,omitempty" msgpack:"type,omitempty"`
	Added       *bool    `json:"added,omitempty" yaml:"added,omitempty" msgpack:"added,omitempty"`
	Understands *bool    `json:"understands,omitempty" yaml:"understands,omitempty" msgpack:"understands,omitempty"`
	Has         *bool    `json:"has,omitempty" yaml:"has,omitempty" msgpack:"has,omitempty"`
	Count       *int     `json:"count,omitempty" yaml:"count,omitempty" msgpack:"count,omitempty"`
	Values      []string `json:"values,omitempty" yaml:"values,omitempty" msgpack:"values,omitempty"`
	Error       string   `json:"error,omitempty" yaml:"error,omitempty" msgpack:"error,omitempty"`
}

// Options configures a run.
type Options struct {
	Config config.Config
	// Overrides apply to scenarios without inline reflection overrides.
	Overrides reflectspec.Source
	// Sink additionally receives every warning.
	Sink warn.Sink
}

type run struct {
	interp *bypass.Interpreter
	nodes  map[string]bypass.Node
	hier   program.Hierarchy
}

// Run replays sc. Step failures such as unknown types are reported in the
// step result; malformed scenarios are errors.
func Run(ctx context.Context, sc *Scenario, opts Options) (*Report, error) {
	start := time.Now()
	r, collector, cache, err := prepare(ctx, sc, opts)
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", sc.Name, err)
	}

	report := &Report{Name: sc.Name}
	for i, st := range sc.Steps {
		res, err := r.step(ctx, st)
		if err != nil {
			return nil, fmt.Errorf("scenario %s step %d: %w", sc.Name, i, err)
		}
		report.Steps = append(report.Steps, res)
	}
	report.Warnings = collector.Warnings()
	report.Registry = r.interp.Registry().Stats()
	report.Cache = cache.Stats()
	report.Duration = time.Since(start)
	slog.Debug("scenario finished", "name", sc.Name, "steps", len(report.Steps), "warnings", len(report.Warnings), "dur", report.Duration)
	return report, nil
}

func prepare(ctx context.Context, sc *Scenario, opts Options) (*run, *warn.Collector, *ircache.Cache, error) {
	h, err := sc.BuildHierarchy(ctx)
	if err != nil {
		return nil, nil, nil, err
	}
	summaries, err := sc.BuildSummaries()
	if err != nil {
		return nil, nil, nil, err
	}

	overrides := opts.Overrides
	if sc.Reflection != nil {
		spec, err := sc.Reflection.Build()
		if err != nil {
			return nil, nil, nil, err
		}
		overrides = spec
	}

	types := opts.Config.TypeAbs()
	if sc.ConeBound > 0 {
		types.ConeBound = sc.ConeBound
	}
	if sc.MarkerType != "" {
		types.Marker = program.ParseTypeRef(sc.MarkerType)
	}

	collector := &warn.Collector{}
	var sink warn.Sink = collector
	if opts.Sink != nil {
		sink = warn.Tee{collector, opts.Sink}
	}
	cache := ircache.New()
	r := &run{
		interp: bypass.New(bypass.Config{
			Hierarchy: h,
			Types:     types,
			IR:        opts.Config.IR(),
			Sink:      sink,
			Overrides: overrides,
			Cache:     cache,
		}),
		nodes: make(map[string]bypass.Node, len(sc.Nodes)),
		hier:  h,
	}

	for _, nd := range sc.Nodes {
		ref, err := program.ParseMethodRef(nd.Method)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("node %s: %w", nd.Name, err)
		}
		s, ok := summaries[ref]
		if !ok {
			return nil, nil, nil, fmt.Errorf("node %s: undeclared method %s", nd.Name, ref)
		}
		c, err := nd.Context()
		if err != nil {
			return nil, nil, nil, err
		}
		if _, dup := r.nodes[nd.Name]; dup {
			return nil, nil, nil, fmt.Errorf("node %s declared twice", nd.Name)
		}
		r.nodes[nd.Name] = bypass.NewNode(s, c)
	}
	return r, collector, cache, nil
}

func (r *run) step(ctx context.Context, st StepDecl) (StepResult, error) {
	n, ok := r.nodes[st.Node]
	if !ok {
		return StepResult{}, fmt.Errorf("unknown node %q", st.Node)
	}
	res := StepResult{Op: st.Op, Node: st.Node, Type: st.Type}
	var err error
	switch st.Op {
	case OpRecord:
		class, ok := r.hier.LookupClass(program.ParseTypeRef(st.Type))
		if !ok {
			class = &program.Class{Ref: program.ParseTypeRef(st.Type)}
		}
		var added bool
		if added, err = r.interp.RecordFactoryType(ctx, n, class); err == nil {
			res.Added = &added
		}
	case OpUnderstands:
		var u bool
		if u, err = r.interp.Understands(n); err == nil {
			res.Understands = &u
		}
	case OpStatements:
		var c int
		if c, err = r.interp.NumberOfStatements(ctx, n); err == nil {
			res.Count = &c
		}
	case OpIR:
		err = r.listIR(ctx, n, &res)
	case OpBlocks:
		err = r.listBlocks(ctx, n, &res)
	case OpNewSites:
		err = r.listNewSites(ctx, n, &res)
	case OpCallSites:
		err = r.listCallSites(ctx, n, &res)
	case OpFieldsRead:
		err = listed(ctx, n, &res, r.interp.FieldsRead)
	case OpFieldsWritten:
		err = listed(ctx, n, &res, r.interp.FieldsWritten)
	case OpCaughtExceptions:
		err = listed(ctx, n, &res, r.interp.CaughtExceptions)
	case OpCastTypes:
		err = listed(ctx, n, &res, r.interp.CastTypes)
	case OpAllocated:
		err = listed(ctx, n, &res, r.interp.Allocated)
	case OpHasObjectArrayLoad:
		err = flagged(ctx, n, &res, r.interp.HasObjectArrayLoad)
	case OpHasObjectArrayStore:
		err = flagged(ctx, n, &res, r.interp.HasObjectArrayStore)
	default:
		return StepResult{}, fmt.Errorf("unknown op %q", st.Op)
	}
	if err != nil {
		res.Error = err.Error()
	}
	return res, nil
}

func (r *run) listIR(ctx context.Context, n bypass.Node, res *StepResult) error {
	body, err := r.interp.IR(ctx, n)
	if err != nil {
		return err
	}
	for _, instr := range body.Instructions() {
		res.Values = append(res.Values, instr.String())
	}
	c := body.NumberOfInstructions()
	res.Count = &c
	return nil
}

// listBlocks reports the block count and the blocks unreachable from entry.
func (r *run) listBlocks(ctx context.Context, n bypass.Node, res *StepResult) error {
	cfg, err := r.interp.CFG(ctx, n)
	if err != nil {
		return err
	}
	for _, b := range cfg.Blocks() {
		if !cfg.Reachable(b) {
			res.Values = append(res.Values, fmt.Sprintf("BB%d", b.Index))
		}
	}
	c := cfg.NumberOfBlocks()
	res.Count = &c
	return nil
}

func (r *run) listNewSites(ctx context.Context, n bypass.Node, res *StepResult) error {
	sites, err := r.interp.NewSites(ctx, n)
	if err != nil {
		return err
	}
	for s := range sites {
		res.Values = append(res.Values, s.String())
	}
	return nil
}

func (r *run) listCallSites(ctx context.Context, n bypass.Node, res *StepResult) error {
	sites, err := r.interp.CallSites(ctx, n)
	if err != nil {
		return err
	}
	for s := range sites {
		res.Values = append(res.Values, s.String())
	}
	return nil
}

func listed[T fmt.Stringer](ctx context.Context, n bypass.Node, res *StepResult, query func(context.Context, bypass.Node) ([]T, error)) error {
	vs, err := query(ctx, n)
	if err != nil {
		return err
	}
	for _, v := range vs {
		res.Values = append(res.Values, v.String())
	}
	return nil
}

func flagged(ctx context.Context, n bypass.Node, res *StepResult, query func(context.Context, bypass.Node) (bool, error)) error {
	has, err := query(ctx, n)
	if err != nil {
		return err
	}
	res.Has = &has
	return nil
}

// RunAll replays scenarios concurrently. Reports are in input order.
func RunAll(ctx context.Context, scenarios []*Scenario, opts Options) ([]*Report, error) {
	reports := make([]*Report, len(scenarios))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(goruntime.NumCPU())
	for i, sc := range scenarios {
		g.Go(func() error {
			report, err := Run(ctx, sc, opts)
			if err != nil {
				return err
			}
			reports[i] = report
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return reports, nil
}
