package main

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/715d/factorybypass/internal/reflectspec"
	"github.com/715d/factorybypass/internal/scenario"
	"github.com/715d/factorybypass/internal/typeabs"
	"github.com/715d/factorybypass/internal/warn"
	"github.com/715d/factorybypass/pkg/hierarchy"
	"github.com/715d/factorybypass/pkg/loader"
	"github.com/715d/factorybypass/pkg/program"
)

func newRunCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "run scenario.yaml...",
		Short: "Replay scenarios and report every step",
		Long: `run replays each scenario file against a fresh interpreter. Scenarios run
concurrently; reports are printed in argument order.

The exit code is 1 when any scenario raised a warning or a step failed.`,
		Args: cobra.MinimumNArgs(1),
		RunE: runScenarios,
	}
}

func runScenarios(cmd *cobra.Command, args []string) error {
	start := time.Now()
	scenarios := make([]*scenario.Scenario, 0, len(args))
	for _, path := range args {
		sc, err := scenario.LoadFile(path)
		if err != nil {
			return errWithCode(err, exitError)
		}
		scenarios = append(scenarios, sc)
	}

	opts := scenario.Options{
		Config: cfg,
		Sink:   warn.SlogSink{Logger: slog.Default()},
	}
	if path := cfg.Analysis.ReflectionSpec; path != "" {
		spec, err := reflectspec.LoadFile(path)
		if err != nil {
			return errWithCode(fmt.Errorf("load reflection spec: %w", err), exitError)
		}
		opts.Overrides = spec
		slog.Info("loaded reflection spec", "path", path, "methods", spec.Len())
	}

	slog.Info("running scenarios", "num", len(scenarios))
	reports, err := scenario.RunAll(cmd.Context(), scenarios, opts)
	if err != nil {
		return errWithCode(fmt.Errorf("run: %w", err), exitError)
	}
	slog.Info("scenarios completed", "dur", time.Since(start))

	out := runOutput{
		Reports:   reports,
		Version:   version,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	if err := write(cmd.OutOrStdout(), out, func(w *textWriter) { w.reports(reports) }); err != nil {
		return errWithCode(fmt.Errorf("format results: %w", err), exitError)
	}

	for _, r := range reports {
		if len(r.Warnings) > 0 || r.Failed() > 0 {
			return errWithCode(nil, exitWarnings)
		}
	}
	return nil
}

type runOutput struct {
	Reports   []*scenario.Report `json:"reports" msgpack:"reports"`
	Version   string             `json:"version" msgpack:"version"`
	Timestamp string             `json:"timestamp" msgpack:"timestamp"`
}

func newExpandCommand() *cobra.Command {
	var (
		hierarchyFile string
		cone          bool
	)
	cmd := &cobra.Command{
		Use:   "expand --hierarchy FILE TYPE...",
		Short: "Print the concrete types a type abstraction stands for",
		Long: `expand resolves each TYPE the way a recorded factory type is resolved:
concrete classes and arrays stand for themselves, interfaces and abstract
classes for their instantiable subtypes. --cone forces a subtype cone.

The exit code is 1 when any expansion raised a warning.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := hierarchy.LoadFile(hierarchyFile)
			if err != nil {
				return errWithCode(err, exitError)
			}
			interp := typeabs.NewInterpreter(h, cfg.TypeAbs())

			var (
				results []expansion
				warned  bool
			)
			for _, arg := range args {
				a, err := abstraction(h, program.ParseTypeRef(arg), cone)
				if err != nil {
					return errWithCode(err, exitError)
				}
				res, err := interp.Expand(cmd.Context(), a)
				if err != nil {
					return errWithCode(err, exitError)
				}
				results = append(results, newExpansion(a, res))
				warned = warned || len(res.Warnings) > 0
			}

			if err := write(cmd.OutOrStdout(), results, func(w *textWriter) { w.expansions(results) }); err != nil {
				return errWithCode(fmt.Errorf("format results: %w", err), exitError)
			}
			if warned {
				return errWithCode(nil, exitWarnings)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&hierarchyFile, "hierarchy", "", "Hierarchy YAML file")
	cmd.Flags().BoolVar(&cone, "cone", false, "Expand every type as a cone of its subtypes")
	_ = cmd.MarkFlagRequired("hierarchy")
	return cmd
}

func abstraction(h program.Hierarchy, t program.TypeRef, cone bool) (typeabs.Abstraction, error) {
	if !cone {
		return typeabs.FromTypeRef(h, t)
	}
	if _, ok := h.LookupClass(t); !ok {
		return nil, fmt.Errorf("%w: %s", typeabs.ErrUnknownType, t)
	}
	return typeabs.Closure{T: t, Interface: h.IsInterface(t)}, nil
}

// expansion is the printable form of one expansion.
type expansion struct {
	Abstraction string         `json:"abstraction" msgpack:"abstraction"`
	Types       []string       `json:"types" msgpack:"types"`
	Ignored     bool           `json:"ignored,omitempty" msgpack:"ignored,omitempty"`
	Warnings    []warn.Warning `json:"warnings,omitempty" msgpack:"warnings,omitempty"`
}

func newExpansion(a typeabs.Abstraction, res typeabs.Result) expansion {
	e := expansion{
		Abstraction: a.String(),
		Types:       make([]string, len(res.Types)),
		Ignored:     res.Ignored,
		Warnings:    res.Warnings,
	}
	for i, t := range res.Types {
		e.Types[i] = t.String()
	}
	return e
}

func newHierarchyCommand() *cobra.Command {
	var (
		buildTags []string
		tests     bool
	)
	cmd := &cobra.Command{
		Use:   "hierarchy [packages...]",
		Short: "Derive a class hierarchy from Go packages",
		Long: `hierarchy loads Go packages and prints the class hierarchy their named
types form, in the YAML form accepted by --hierarchy and by scenarios.
Named interfaces become interfaces, an embedded named struct becomes the
superclass, and every satisfied non-empty interface is implemented.`,
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			patterns := args
			if len(patterns) == 0 {
				patterns = []string{"./..."}
			}
			slog.Info("loading packages", "packages", patterns)
			if len(buildTags) > 0 {
				slog.Info("using build tags", "tags", buildTags)
			}
			pkgs, err := loader.LoadPackages(cmd.Context(), loader.Options{
				Packages:  patterns,
				BuildTags: buildTags,
				Tests:     tests,
			})
			if err != nil {
				return errWithCode(err, exitError)
			}
			slog.Info("loaded packages", "num", len(pkgs))

			h, err := hierarchy.FromPackages(pkgs)
			if err != nil {
				return errWithCode(fmt.Errorf("derive hierarchy: %w", err), exitError)
			}
			decl := h.Decl()
			if err := write(cmd.OutOrStdout(), decl, func(w *textWriter) { w.yamlDoc(decl) }); err != nil {
				return errWithCode(fmt.Errorf("format results: %w", err), exitError)
			}
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&buildTags, "build-tags", []string{}, "Build tags to use during package loading")
	cmd.Flags().BoolVar(&tests, "tests", false, "Include types declared in test files")
	return cmd
}
