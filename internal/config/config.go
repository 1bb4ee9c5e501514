// Package config loads factorybypass.toml.
//
//	[analysis]
//	cone_bound = 10
//	marker_type = "java.io.Serializable"
//	exceptional_edges = true
//	reflection_spec = "reflection.yaml"
//
//	[output]
//	format = "text"
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/715d/factorybypass/internal/typeabs"
	"github.com/715d/factorybypass/pkg/ir"
	"github.com/715d/factorybypass/pkg/program"
)

// FileName is the name Find looks for.
const FileName = "factorybypass.toml"

// Report formats.
const (
	FormatText    = "text"
	FormatJSON    = "json"
	FormatMsgpack = "msgpack"
)

// Formats lists the accepted report formats.
var Formats = []string{FormatText, FormatJSON, FormatMsgpack}

// Config is the effective configuration.
type Config struct {
	Analysis Analysis `toml:"analysis"`
	Output   Output   `toml:"output"`
}

// Analysis tunes factory modeling.
type Analysis struct {
	ConeBound        int    `toml:"cone_bound"`
	MarkerType       string `toml:"marker_type"`
	ExceptionalEdges bool   `toml:"exceptional_edges"`
	// ReflectionSpec is a YAML override file, relative to the config file.
	ReflectionSpec string `toml:"reflection_spec"`
}

// Output selects the report format.
type Output struct {
	Format string `toml:"format"`
}

// Default returns the configuration used without a config file.
func Default() Config {
	return Config{
		Analysis: Analysis{
			ConeBound:        typeabs.DefaultConeBound,
			MarkerType:       typeabs.DefaultMarkerName,
			ExceptionalEdges: ir.DefaultOptions().ExceptionalEdges,
		},
		Output: Output{Format: FormatText},
	}
}

// Load reads path over the defaults. Keys absent from the file keep their
// default values; unknown keys are an error.
func Load(path string) (Config, error) {
	cfg := Default()
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return Config{}, fmt.Errorf("%s: failed to parse TOML: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return Config{}, fmt.Errorf("%s: unknown keys %s", path, strings.Join(keys, ", "))
	}
	if meta.IsDefined("analysis", "reflection_spec") && cfg.Analysis.ReflectionSpec != "" && !filepath.IsAbs(cfg.Analysis.ReflectionSpec) {
		cfg.Analysis.ReflectionSpec = filepath.Join(filepath.Dir(path), cfg.Analysis.ReflectionSpec)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Find looks for FileName in startDir and its parents.
func Find(startDir string) (string, bool, error) {
	if startDir == "" {
		startDir = "."
	}
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", false, fmt.Errorf("failed to resolve start directory: %w", err)
	}
	for {
		candidate := filepath.Join(dir, FileName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, true, nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return "", false, fmt.Errorf("failed to stat %q: %w", candidate, err)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", false, nil
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	if c.Analysis.ConeBound <= 0 {
		return fmt.Errorf("analysis.cone_bound must be positive, got %d", c.Analysis.ConeBound)
	}
	if strings.TrimSpace(c.Analysis.MarkerType) == "" {
		return errors.New("analysis.marker_type must not be empty")
	}
	if !slices.Contains(Formats, c.Output.Format) {
		return fmt.Errorf("output.format must be one of %s, got %q", strings.Join(Formats, ", "), c.Output.Format)
	}
	return nil
}

// TypeAbs returns the type-abstraction settings.
func (c Config) TypeAbs() typeabs.Config {
	return typeabs.Config{
		Marker:    program.ParseTypeRef(c.Analysis.MarkerType),
		ConeBound: c.Analysis.ConeBound,
	}
}

// IR returns the IR materialization options.
func (c Config) IR() ir.Options {
	return ir.Options{ExceptionalEdges: c.Analysis.ExceptionalEdges}
}
