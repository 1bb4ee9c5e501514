// Package main implements the CLI driver for factory method modeling.
package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"runtime/pprof"

	"github.com/spf13/cobra"

	"github.com/715d/factorybypass/internal/config"
)

// Flags holds the command-line options shared by every command.
type Flags struct {
	Verbose    bool   // enables debug logging to stderr
	Format     string // report format, overrides the config file
	ConfigFile string // explicit config file; searched for when empty
	Profile    bool   // enables CPU and memory profiling
	ConeBound  int    // overrides analysis.cone_bound when set
	MarkerType string // overrides analysis.marker_type when set
}

const (
	exitWarnings = 1
	exitError    = 2
)

var (
	// Set via ldflags during build.
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

var (
	flags Flags
	// cfg is the effective configuration, resolved in setup.
	cfg = config.Default()
)

func main() {
	var rootCmd = &cobra.Command{
		Use:   "factorybypass",
		Short: "Model reflective factory methods for pointer analysis",
		Long: `factorybypass specializes synthetic factory methods to the concrete types
discovered for each calling context, and answers structural queries about
the specialized bodies.

Settings are read from factorybypass.toml in the working directory or a
parent, or from --config. Flags override file values.`,
		Example: `  factorybypass run testdata/*/scenario.yaml     # Replay scenarios
  factorybypass expand --hierarchy classes.yaml demo.Shape
  factorybypass hierarchy ./...                   # Dump a Go hierarchy as YAML
  factorybypass --format json run scenario.yaml`,
		PersistentPreRunE:  setup,
		PersistentPostRunE: teardown,
		SilenceUsage:       true,
		SilenceErrors:      true,
		Version:            version,
	}

	// Set custom version template to include build info.
	rootCmd.SetVersionTemplate(fmt.Sprintf("factorybypass version %s\n  commit: %s\n  built:  %s\n", version, gitCommit, buildTime))

	// Define flags.
	rootCmd.PersistentFlags().BoolVarP(&flags.Verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVar(&flags.Format, "format", "", "Output format: text, json or msgpack")
	rootCmd.PersistentFlags().StringVar(&flags.ConfigFile, "config", "", "Path to "+config.FileName)
	rootCmd.PersistentFlags().BoolVar(&flags.Profile, "profile", false, "Enable CPU and memory profiling (writes cpu.prof and mem.prof to current directory)")
	rootCmd.PersistentFlags().IntVar(&flags.ConeBound, "cone-bound", 0, "Warn when a cone expands to more types than this")
	rootCmd.PersistentFlags().StringVar(&flags.MarkerType, "marker-type", "", "Marker type to ignore when expanding")

	rootCmd.AddCommand(newRunCommand(), newExpandCommand(), newHierarchyCommand())

	if err := rootCmd.Execute(); err != nil {
		_ = teardown(nil, nil)
		if err.Error() != "" {
			fmt.Fprintln(os.Stderr, err.Error())
		}
		var cErr *codedError
		if errors.As(err, &cErr) {
			os.Exit(cErr.code)
		}
		os.Exit(exitError)
	}
}

// resolveConfig loads the config file, if any, and applies flag overrides.
func resolveConfig(cmd *cobra.Command) (config.Config, error) {
	c := config.Default()
	path := flags.ConfigFile
	if path == "" {
		found, ok, err := config.Find(".")
		if err != nil {
			return c, err
		}
		if ok {
			path = found
		}
	}
	if path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return c, err
		}
		c = loaded
		slog.Debug("loaded config", "path", path)
	}

	changed := cmd.Flags().Changed
	if changed("format") {
		c.Output.Format = flags.Format
	}
	if changed("cone-bound") {
		c.Analysis.ConeBound = flags.ConeBound
	}
	if changed("marker-type") {
		c.Analysis.MarkerType = flags.MarkerType
	}
	if err := c.Validate(); err != nil {
		return c, err
	}
	return c, nil
}

var cpuProfile *os.File

func setup(cmd *cobra.Command, _ []string) error {
	// Disable logger unless verbose flag is set.
	slog.SetDefault(slog.New(slog.DiscardHandler))

	var err error
	if cfg, err = resolveConfig(cmd); err != nil {
		return errWithCode(fmt.Errorf("config: %w", err), exitError)
	}

	if flags.Verbose {
		opts := &slog.HandlerOptions{Level: slog.LevelDebug}
		var handler slog.Handler = slog.NewTextHandler(os.Stderr, opts)
		if cfg.Output.Format == config.FormatJSON {
			handler = slog.NewJSONHandler(os.Stderr, opts)
		}
		logger := slog.New(handler)
		slog.SetDefault(logger)
	}

	if !flags.Profile {
		return nil
	}

	// Start CPU profiling.
	cpuProfile, err = os.Create("cpu.prof")
	if err != nil {
		return fmt.Errorf("creating cpu.prof: %w", err)
	}
	if err := pprof.StartCPUProfile(cpuProfile); err != nil {
		_ = cpuProfile.Close()
		return fmt.Errorf("starting CPU profile: %w", err)
	}
	slog.Info("cpu profiling started", "file", "cpu.prof")
	return nil
}

func teardown(_ *cobra.Command, _ []string) error {
	if !flags.Profile || cpuProfile == nil {
		return nil
	}

	// Stop CPU profiling and close file.
	pprof.StopCPUProfile()
	defer cpuProfile.Close()
	cpuProfile = nil
	slog.Info("cpu profiling stopped", "file", "cpu.prof")

	// Write memory profile.
	memFile, err := os.Create("mem.prof")
	if err != nil {
		return fmt.Errorf("creating mem.prof: %w", err)
	}
	defer memFile.Close()
	runtime.GC() // Get up-to-date statistics
	if err := pprof.WriteHeapProfile(memFile); err != nil {
		return fmt.Errorf("writing memory profile: %w", err)
	}
	slog.Info("memory profiling completed", "file", "mem.prof")
	return nil
}

func errWithCode(err error, code int) error {
	return &codedError{err: err, code: code}
}

type codedError struct {
	err  error
	code int
}

func (e *codedError) Error() string {
	if e.err != nil {
		return e.err.Error()
	}
	return ""
}

func (e *codedError) Unwrap() error { return e.err }
