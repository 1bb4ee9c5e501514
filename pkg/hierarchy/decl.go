package hierarchy

import (
	"fmt"
	"os"

	yaml "gopkg.in/yaml.v3"

	"github.com/715d/factorybypass/pkg/program"
)

// Decl is the YAML form of a hierarchy.
type Decl struct {
	Classes []ClassDecl `yaml:"classes"`
}

// ClassDecl declares one class or interface. Interfaces list the
// interfaces they extend under implements.
type ClassDecl struct {
	Name       string   `yaml:"name"`
	Super      string   `yaml:"super,omitempty"`
	Implements []string `yaml:"implements,omitempty"`
	Interface  bool     `yaml:"interface,omitempty"`
	Abstract   bool     `yaml:"abstract,omitempty"`
}

// Build constructs the hierarchy d declares.
func (d Decl) Build() (*Hierarchy, error) {
	classes := make([]*program.Class, 0, len(d.Classes))
	for _, cd := range d.Classes {
		c := &program.Class{
			Ref:       program.ParseTypeRef(cd.Name),
			Interface: cd.Interface,
			Abstract:  cd.Abstract,
		}
		if cd.Super != "" {
			c.Super = program.ParseTypeRef(cd.Super)
		}
		for _, i := range cd.Implements {
			c.Implements = append(c.Implements, program.ParseTypeRef(i))
		}
		classes = append(classes, c)
	}
	return New(classes)
}

// Decl returns the declaration that rebuilds h.
func (h *Hierarchy) Decl() Decl {
	var d Decl
	for _, c := range h.Classes() {
		cd := ClassDecl{
			Name:      c.Ref.String(),
			Interface: c.Interface,
			Abstract:  c.Abstract,
		}
		if !c.Super.IsZero() {
			cd.Super = c.Super.String()
		}
		for _, i := range c.Implements {
			cd.Implements = append(cd.Implements, i.String())
		}
		d.Classes = append(d.Classes, cd)
	}
	return d
}

// LoadFile reads a YAML hierarchy declaration from path.
func LoadFile(path string) (*Hierarchy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading hierarchy: %w", err)
	}
	var d Decl
	if err := yaml.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("%s: parsing hierarchy: %w", path, err)
	}
	h, err := d.Build()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return h, nil
}
