// Package warn carries soundness warnings raised while modeling factory
// methods. Warnings never change control flow; they are handed to a Sink.
package warn

import (
	"fmt"
	"log/slog"
	"slices"
	"sync"
)

// Kind classifies a warning.
type Kind int

const (
	// IgnoredMarker reports that the universal marker type was dropped
	// instead of being expanded.
	IgnoredMarker Kind = iota + 1
	// NoSubtypes reports a cone that resolved to no types.
	NoSubtypes
	// ManySubtypes reports a cone larger than the configured bound.
	ManySubtypes
)

var kindNames = map[Kind]string{
	IgnoredMarker: "ignored-marker-type",
	NoSubtypes:    "no-subtypes",
	ManySubtypes:  "too-many-subtypes",
}

func (k Kind) String() string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(b []byte) error {
	parsed, err := ParseKind(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// ParseKind parses the name produced by Kind.String.
func ParseKind(s string) (Kind, error) {
	for k, n := range kindNames {
		if n == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown warning kind %q", s)
}

// Warning is one soundness warning.
type Warning struct {
	Kind Kind `json:"kind" yaml:"kind" msgpack:"kind"`
	// Subject is the type abstraction the warning is about.
	Subject string `json:"subject" yaml:"subject" msgpack:"subject"`
	// Count is the cone size for ManySubtypes.
	Count int `json:"count,omitempty" yaml:"count,omitempty" msgpack:"count,omitempty"`
}

func (w Warning) String() string {
	switch w.Kind {
	case IgnoredMarker:
		return fmt.Sprintf("%s: ignoring %s", w.Kind, w.Subject)
	case NoSubtypes:
		return fmt.Sprintf("%s: %s resolves to no types", w.Kind, w.Subject)
	case ManySubtypes:
		return fmt.Sprintf("%s: %s resolves to %d types", w.Kind, w.Subject, w.Count)
	}
	return fmt.Sprintf("%s: %s", w.Kind, w.Subject)
}

// Sink receives warnings. Implementations must be safe for concurrent use.
type Sink interface {
	Add(Warning)
}

// Discard drops every warning.
var Discard Sink = discard{}

type discard struct{}

func (discard) Add(Warning) {}

// SlogSink logs warnings at warn level.
type SlogSink struct {
	Logger *slog.Logger
}

// Add implements Sink.
func (s SlogSink) Add(w Warning) {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Warn("factory modeling", "kind", w.Kind.String(), "subject", w.Subject, "count", w.Count)
}

// Collector records warnings in arrival order.
type Collector struct {
	mu       sync.Mutex
	warnings []Warning
}

// Add implements Sink.
func (c *Collector) Add(w Warning) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.warnings = append(c.warnings, w)
}

// Warnings returns a copy of the recorded warnings.
func (c *Collector) Warnings() []Warning {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.warnings)
}

// Count returns how many warnings of kind k were recorded.
func (c *Collector) Count(k Kind) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, w := range c.warnings {
		if w.Kind == k {
			n++
		}
	}
	return n
}

// Tee forwards every warning to all sinks.
type Tee []Sink

// Add implements Sink.
func (t Tee) Add(w Warning) {
	for _, s := range t {
		s.Add(w)
	}
}
