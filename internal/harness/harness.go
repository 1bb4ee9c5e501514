// Package harness provides testing utilities for replaying scenarios against
// the factory interpreter and checking their reports.
package harness

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	yaml "gopkg.in/yaml.v3"

	"github.com/715d/factorybypass/internal/config"
	"github.com/715d/factorybypass/internal/registry"
	"github.com/715d/factorybypass/internal/scenario"
	"github.com/715d/factorybypass/internal/warn"
)

// Configuration is one analysis configuration to replay a scenario under.
type Configuration struct {
	// Name is a descriptive name for this configuration.
	Name string `yaml:"name"`

	// ConeBound overrides the configured cone bound when positive.
	ConeBound int `yaml:"cone_bound,omitempty"`

	// MarkerType overrides the configured marker type when set.
	MarkerType string `yaml:"marker_type,omitempty"`

	// ExceptionalEdges overrides whether CFGs carry exceptional edges.
	ExceptionalEdges *bool `yaml:"exceptional_edges,omitempty"`

	// ExpectedSteps lists the expected step results, in order.
	ExpectedSteps []scenario.StepResult `yaml:"expected_steps"`

	// ExpectedWarnings lists the warnings expected, in any order.
	ExpectedWarnings []warn.Warning `yaml:"expected_warnings"`

	// ExpectedRegistry is the expected final registry summary, if checked.
	ExpectedRegistry *registry.Stats `yaml:"expected_registry,omitempty"`

	// ExpectedErrors lists any expected error messages for this configuration.
	ExpectedErrors []string `yaml:"expected_errors"`
}

// TestCase represents a single test scenario.
type TestCase struct {
	// Dir is the directory containing the scenario.
	Dir string `yaml:"-"`

	// Scenario is the scenario file, relative to Dir.
	Scenario string `yaml:"scenario,omitempty"`

	// Configurations defines the configurations to replay under.
	Configurations []Configuration `yaml:"configurations"`
}

// TestHarness manages test execution.
type TestHarness struct {
	// root is the root directory for test data
	root string
}

// NewHarness creates a new test harness.
func NewHarness(root string) *TestHarness {
	return &TestHarness{root: root}
}

// Run executes a test case under all its configurations.
func (h *TestHarness) Run(t *testing.T, tc *TestCase) *TestResult {
	t.Helper()
	require.NotEmpty(t, tc.Configurations, "test case has no configurations")

	var results []ConfigurationResult
	var allSuccess = true

	for _, cfg := range tc.Configurations {
		cfgResult := h.runConfiguration(t, tc, cfg)
		results = append(results, *cfgResult)
		if !cfgResult.Success {
			allSuccess = false
		}
	}

	var resultMsg string
	if allSuccess {
		resultMsg = fmt.Sprintf("All %d configurations passed", len(tc.Configurations))
	} else {
		failedCount := 0
		var msgs []string
		for _, cr := range results {
			if !cr.Success {
				failedCount++
				msgs = append(msgs, fmt.Sprintf("[%s] %s:\n  %s",
					cr.Configuration.Name, cr.Message, strings.Join(cr.Details, "\n  ")))
			}
		}
		resultMsg = fmt.Sprintf("%d/%d configurations failed:\n%s",
			failedCount, len(tc.Configurations), strings.Join(msgs, "\n"))
	}

	return &TestResult{
		TestCase:             tc,
		ConfigurationResults: results,
		Success:              allSuccess,
		Message:              resultMsg,
	}
}

// runConfiguration replays the scenario under a single configuration.
func (h *TestHarness) runConfiguration(t *testing.T, tc *TestCase, cfg Configuration) *ConfigurationResult {
	t.Helper()
	sc := LoadScenario(t, filepath.Join(h.root, tc.Dir), tc.Scenario)
	if cfg.ConeBound > 0 {
		sc.ConeBound = cfg.ConeBound
	}
	if cfg.MarkerType != "" {
		sc.MarkerType = cfg.MarkerType
	}
	opts := scenario.Options{Config: config.Default()}
	if cfg.ExceptionalEdges != nil {
		opts.Config.Analysis.ExceptionalEdges = *cfg.ExceptionalEdges
	}

	report, err := scenario.Run(context.Background(), sc, opts)
	if err != nil {
		for _, expectedErr := range cfg.ExpectedErrors {
			if strings.Contains(err.Error(), expectedErr) {
				return &ConfigurationResult{
					Configuration: cfg,
					Success:       true,
					Message:       fmt.Sprintf("Got expected error: %v", err),
				}
			}
		}
		require.NoError(t, err)
	}
	if len(cfg.ExpectedErrors) > 0 {
		return &ConfigurationResult{
			Configuration: cfg,
			Report:        report,
			Message:       "Expected an error, got none",
			Details:       cfg.ExpectedErrors,
		}
	}
	return validateReport(cfg, report)
}

// ConfigurationResult represents the result of running a single configuration.
type ConfigurationResult struct {
	// Configuration is the configuration that was run.
	Configuration Configuration

	// Report is the raw scenario report.
	Report *scenario.Report

	// Success indicates if this configuration passed.
	Success bool

	// Message provides a summary of the result for this configuration.
	Message string

	// Details provides detailed information about failures for this configuration.
	Details []string
}

// TestResult represents the result of running a test case.
type TestResult struct {
	// TestCase is the test case that was run.
	TestCase *TestCase

	// ConfigurationResults contains results for each configuration.
	ConfigurationResults []ConfigurationResult

	// Success indicates if the test passed (all configurations passed)
	Success bool

	// Message provides a summary of the result.
	Message string
}

func validateReport(cfg Configuration, report *scenario.Report) *ConfigurationResult {
	cfgResult := &ConfigurationResult{
		Configuration: cfg,
		Report:        report,
	}

	var details []string
	mismatched := 0
	for i := range max(len(cfg.ExpectedSteps), len(report.Steps)) {
		switch {
		case i >= len(report.Steps):
			details = append(details, fmt.Sprintf("Step %d missing: %s", i, render(cfg.ExpectedSteps[i])))
		case i >= len(cfg.ExpectedSteps):
			details = append(details, fmt.Sprintf("Step %d unexpected: %s", i, render(report.Steps[i])))
		default:
			want, got := render(cfg.ExpectedSteps[i]), render(report.Steps[i])
			if want == got {
				continue
			}
			details = append(details, fmt.Sprintf("Step %d (%s %s): expected %s, got %s",
				i, report.Steps[i].Op, report.Steps[i].Node, want, got))
		}
		mismatched++
	}

	missing, unexpected := diffWarnings(cfg.ExpectedWarnings, report.Warnings)
	for _, m := range missing {
		details = append(details, "Should have warned: "+m)
	}
	for _, u := range unexpected {
		details = append(details, "Should not have warned: "+u)
	}

	if cfg.ExpectedRegistry != nil && *cfg.ExpectedRegistry != report.Registry {
		details = append(details, fmt.Sprintf("Registry mismatch: expected %s, got %s",
			render(*cfg.ExpectedRegistry), render(report.Registry)))
	}

	cfgResult.Success = len(details) == 0
	cfgResult.Details = details
	if cfgResult.Success {
		cfgResult.Message = fmt.Sprintf("All %d expected steps matched", len(cfg.ExpectedSteps))
	} else {
		cfgResult.Message = fmt.Sprintf("Test failed: %d mismatched steps, %d missing warnings, %d unexpected warnings",
			mismatched, len(missing), len(unexpected))
	}
	return cfgResult
}

// diffWarnings compares warnings as multisets of their text.
func diffWarnings(expected, actual []warn.Warning) (missing, unexpected []string) {
	counts := make(map[string]int)
	for _, w := range expected {
		counts[w.String()]++
	}
	for _, w := range actual {
		counts[w.String()]--
	}
	for text, n := range counts {
		for ; n > 0; n-- {
			missing = append(missing, text)
		}
		for ; n < 0; n++ {
			unexpected = append(unexpected, text)
		}
	}
	// Sort for consistent output.
	sort.Strings(missing)
	sort.Strings(unexpected)
	return missing, unexpected
}

// render is the single-line YAML form used to compare and print values.
func render(v any) string {
	node := &yaml.Node{}
	if err := node.Encode(v); err != nil {
		return fmt.Sprintf("%+v", v)
	}
	setFlow(node)
	out, err := yaml.Marshal(node)
	if err != nil {
		return fmt.Sprintf("%+v", v)
	}
	return strings.TrimSpace(string(out))
}

func setFlow(n *yaml.Node) {
	if n.Kind == yaml.MappingNode || n.Kind == yaml.SequenceNode {
		n.Style |= yaml.FlowStyle
	}
	for _, c := range n.Content {
		setFlow(c)
	}
}
