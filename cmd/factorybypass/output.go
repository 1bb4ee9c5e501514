package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/vmihailenco/msgpack/v5"
	yaml "gopkg.in/yaml.v3"

	"github.com/715d/factorybypass/internal/config"
	"github.com/715d/factorybypass/internal/scenario"
	"github.com/715d/factorybypass/internal/warn"
)

var (
	headerColor  = color.New(color.Bold)
	warningColor = color.New(color.FgYellow)
	errorColor   = color.New(color.FgRed, color.Bold)
	valueColor   = color.New(color.FgCyan)
)

// write encodes v in the configured format. The text format is produced by
// text instead.
func write(out io.Writer, v any, text func(*textWriter)) error {
	switch cfg.Output.Format {
	case config.FormatJSON:
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("marshaling json output: %w", err)
		}
		return nil
	case config.FormatMsgpack:
		if err := msgpack.NewEncoder(out).Encode(v); err != nil {
			return fmt.Errorf("marshaling msgpack output: %w", err)
		}
		return nil
	}
	w := &textWriter{out: out}
	text(w)
	return w.err
}

// textWriter accumulates the first write error.
type textWriter struct {
	out io.Writer
	err error
}

func (w *textWriter) printf(format string, args ...any) {
	if w.err != nil {
		return
	}
	_, w.err = fmt.Fprintf(w.out, format, args...)
}

func (w *textWriter) warning(indent string, wn warn.Warning) {
	w.printf("%s%s %s\n", indent, warningColor.Sprint("warning:"), wn)
}

func (w *textWriter) reports(reports []*scenario.Report) {
	for i, r := range reports {
		if i > 0 {
			w.printf("\n")
		}
		w.printf("%s (%d steps, %s)\n", headerColor.Sprint(r.Name), len(r.Steps), r.Duration.Round(time.Microsecond))
		for _, s := range r.Steps {
			w.step(s)
		}
		for _, wn := range r.Warnings {
			w.warning("  ", wn)
		}
		w.printf("  registry: contexts=%d methods=%d types=%d statements=%d\n",
			r.Registry.Contexts, r.Registry.Methods, r.Registry.Types, r.Registry.Statements)
		w.printf("  cache: entries=%d hits=%d misses=%d invalidations=%d\n",
			r.Cache.Entries, r.Cache.Hits, r.Cache.Misses, r.Cache.Invalidations)
	}
}

func (w *textWriter) step(s scenario.StepResult) {
	subject := s.Node
	if s.Type != "" {
		subject += " " + s.Type
	}
	var outcome []string
	if s.Added != nil {
		outcome = append(outcome, fmt.Sprintf("added=%t", *s.Added))
	}
	if s.Understands != nil {
		outcome = append(outcome, fmt.Sprintf("understands=%t", *s.Understands))
	}
	if s.Has != nil {
		outcome = append(outcome, fmt.Sprintf("has=%t", *s.Has))
	}
	if s.Count != nil {
		outcome = append(outcome, fmt.Sprintf("count=%d", *s.Count))
	}
	if s.Error != "" {
		outcome = append(outcome, errorColor.Sprint("error: "+s.Error))
	}
	w.printf("  %s %s %s\n", s.Op, subject, strings.Join(outcome, " "))
	for _, v := range s.Values {
		w.printf("      %s\n", valueColor.Sprint(v))
	}
}

func (w *textWriter) expansions(es []expansion) {
	for _, e := range es {
		switch {
		case e.Ignored:
			w.printf("%s: ignored\n", headerColor.Sprint(e.Abstraction))
		default:
			w.printf("%s: %d types\n", headerColor.Sprint(e.Abstraction), len(e.Types))
		}
		for _, t := range e.Types {
			w.printf("  %s\n", valueColor.Sprint(t))
		}
		for _, wn := range e.Warnings {
			w.warning("  ", wn)
		}
	}
}

func (w *textWriter) yamlDoc(v any) {
	if w.err != nil {
		return
	}
	enc := yaml.NewEncoder(w.out)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		w.err = fmt.Errorf("marshaling yaml output: %w", err)
		return
	}
	w.err = enc.Close()
}
