// Package directive reads factorybypass comment directives attached to Go
// type declarations.
//
// A directive is a line comment on the line before a type spec, or on the
// same line:
//
//	//factorybypass:abstract
//	type Base struct{}
//
//	type Legacy struct{} //factorybypass:ignore replaced by Modern
//
// abstract marks a concrete type as never instantiated directly; ignore
// excludes the type from the derived hierarchy.
package directive

import (
	"errors"
	"go/ast"
	"go/token"
	"maps"
	"regexp"
	"strings"
)

// Kind is the kind of a directive.
type Kind int

const (
	// Abstract marks a type as not instantiable.
	Abstract Kind = iota

	// Ignore excludes a type.
	Ignore
)

func (k Kind) String() string {
	switch k {
	case Abstract:
		return "abstract"
	case Ignore:
		return "ignore"
	}
	return "unknown"
}

// Directive is a parsed directive.
type Directive struct {
	Kind   Kind
	Reason string
}

var (
	// directivePattern matches //factorybypass:<kind> [reason].
	directivePattern = regexp.MustCompile(`^//\s*factorybypass:(\w+)(?:\s+(.*))?$`)

	// nolintPattern matches //nolint:factorybypass, possibly among other rules.
	nolintPattern = regexp.MustCompile(`^//\s*nolint:([^/\s]+)(?:\s*//\s*(.*))?$`)
)

// Checker maps type declarations to their directives.
type Checker struct {
	// directives maps a type name position to its directive.
	directives map[token.Pos]Directive
}

// NewChecker creates an empty checker.
func NewChecker() *Checker {
	return &Checker{directives: make(map[token.Pos]Directive)}
}

// Load parses directives from files. Positions are those of the type spec
// names, matching types.Object.Pos.
func (c *Checker) Load(fset *token.FileSet, files []*ast.File) error {
	if fset == nil {
		return errors.New("fset cannot be nil")
	}
	for _, file := range files {
		byLine := make(map[int]Directive)
		for _, group := range file.Comments {
			for _, comment := range group.List {
				if d, ok := parseComment(comment.Text); ok {
					byLine[fset.Position(comment.Pos()).Line] = d
				}
			}
		}
		if len(byLine) == 0 {
			continue
		}

		ast.Inspect(file, func(n ast.Node) bool {
			spec, ok := n.(*ast.TypeSpec)
			if !ok {
				return true
			}
			line := fset.Position(spec.Name.Pos()).Line
			d, ok := byLine[line-1]
			if !ok {
				d, ok = byLine[line]
			}
			if ok {
				c.directives[spec.Name.Pos()] = d
			}
			return false
		})
	}
	return nil
}

// parseComment reports the directive a comment carries, if any. A nolint
// comment naming factorybypass is an ignore directive.
func parseComment(text string) (Directive, bool) {
	text = strings.TrimSpace(text)
	if m := directivePattern.FindStringSubmatch(text); m != nil {
		d := Directive{Reason: strings.TrimSpace(m[2])}
		switch m[1] {
		case "abstract":
			d.Kind = Abstract
		case "ignore":
			d.Kind = Ignore
		default:
			return Directive{}, false
		}
		return d, true
	}
	if m := nolintPattern.FindStringSubmatch(text); m != nil {
		for rule := range strings.SplitSeq(m[1], ",") {
			if strings.TrimSpace(rule) == "factorybypass" {
				return Directive{Kind: Ignore, Reason: strings.TrimSpace(m[2])}, true
			}
		}
	}
	return Directive{}, false
}

// Lookup returns the directive attached to the type declared at pos.
func (c *Checker) Lookup(pos token.Pos) (Directive, bool) {
	d, ok := c.directives[pos]
	return d, ok
}

// Len returns the number of attached directives.
func (c *Checker) Len() int {
	return len(c.directives)
}

func (c *Checker) all() map[token.Pos]Directive {
	return maps.Clone(c.directives)
}
