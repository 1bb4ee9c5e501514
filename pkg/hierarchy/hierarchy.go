// Package hierarchy provides an in-memory class hierarchy that can be
// declared in YAML or derived from loaded Go packages.
package hierarchy

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/hashicorp/go-set/v3"

	"github.com/715d/factorybypass/pkg/program"
)

// Hierarchy is an immutable class hierarchy. It is safe for concurrent use.
type Hierarchy struct {
	classes map[program.TypeRef]*program.Class

	// subclasses maps a class to its direct subclasses.
	subclasses map[program.TypeRef][]program.TypeRef

	// implementors maps an interface to the classes and interfaces that
	// list it in Implements.
	implementors map[program.TypeRef][]program.TypeRef
}

var _ program.Hierarchy = (*Hierarchy)(nil)

// New builds a hierarchy over classes. Superclasses and interfaces that are
// not declared are treated as roots outside the analyzed universe.
func New(classes []*program.Class) (*Hierarchy, error) {
	h := &Hierarchy{
		classes:      make(map[program.TypeRef]*program.Class, len(classes)),
		subclasses:   make(map[program.TypeRef][]program.TypeRef),
		implementors: make(map[program.TypeRef][]program.TypeRef),
	}
	for _, c := range classes {
		if c == nil || c.Ref.Name == "" {
			return nil, fmt.Errorf("class without a name")
		}
		if c.Ref.IsArray() {
			return nil, fmt.Errorf("class %s: array types are implicit", c.Ref)
		}
		if _, dup := h.classes[c.Ref]; dup {
			return nil, fmt.Errorf("class %s declared twice", c.Ref)
		}
		h.classes[c.Ref] = c
	}

	for _, c := range classes {
		if !c.Super.IsZero() {
			if _, ok := h.classes[c.Super]; !ok {
				slog.Debug("superclass outside hierarchy", "class", c.Ref, "super", c.Super)
			}
			h.subclasses[c.Super] = append(h.subclasses[c.Super], c.Ref)
		}
		for _, iface := range c.Implements {
			if ic, ok := h.classes[iface]; ok && !ic.Interface {
				return nil, fmt.Errorf("class %s implements non-interface %s", c.Ref, iface)
			}
			h.implementors[iface] = append(h.implementors[iface], c.Ref)
		}
	}
	for _, m := range []map[program.TypeRef][]program.TypeRef{h.subclasses, h.implementors} {
		for k := range m {
			slices.SortFunc(m[k], program.TypeRef.Compare)
		}
	}
	return h, nil
}

// LookupClass resolves ref. Array types resolve to an implicit concrete
// class.
func (h *Hierarchy) LookupClass(ref program.TypeRef) (*program.Class, bool) {
	if ref.IsArray() {
		return &program.Class{Ref: ref}, true
	}
	c, ok := h.classes[ref]
	return c, ok
}

// IsInterface implements program.Hierarchy.
func (h *Hierarchy) IsInterface(ref program.TypeRef) bool {
	c, ok := h.LookupClass(ref)
	return ok && c.Interface
}

// IsAbstract implements program.Hierarchy. Unknown types are abstract:
// nothing can allocate them.
func (h *Hierarchy) IsAbstract(ref program.TypeRef) bool {
	c, ok := h.LookupClass(ref)
	return !ok || c.IsAbstract()
}

// Subclasses implements program.Hierarchy. The result is sorted and
// includes ref itself when ref is known.
func (h *Hierarchy) Subclasses(ctx context.Context, ref program.TypeRef) ([]program.TypeRef, error) {
	if _, ok := h.LookupClass(ref); !ok {
		return nil, ctx.Err()
	}
	seen := set.New[program.TypeRef](8)
	if err := h.walkSubclasses(ctx, ref, seen); err != nil {
		return nil, err
	}
	return sorted(seen), nil
}

// Implementors implements program.Hierarchy. The result is sorted and
// contains classes only.
func (h *Hierarchy) Implementors(ctx context.Context, ref program.TypeRef) ([]program.TypeRef, error) {
	if !h.IsInterface(ref) {
		return nil, ctx.Err()
	}
	ifaces := set.From([]program.TypeRef{ref})
	classes := set.New[program.TypeRef](8)
	work := []program.TypeRef{ref}
	for len(work) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("enumerating implementors of %s: %w", ref, err)
		}
		iface := work[len(work)-1]
		work = work[:len(work)-1]
		for _, impl := range h.implementors[iface] {
			if h.IsInterface(impl) {
				if ifaces.Insert(impl) {
					work = append(work, impl)
				}
				continue
			}
			if err := h.walkSubclasses(ctx, impl, classes); err != nil {
				return nil, err
			}
		}
	}
	return sorted(classes), nil
}

func (h *Hierarchy) walkSubclasses(ctx context.Context, root program.TypeRef, seen *set.Set[program.TypeRef]) error {
	work := []program.TypeRef{root}
	for len(work) > 0 {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("enumerating subclasses of %s: %w", root, err)
		}
		c := work[len(work)-1]
		work = work[:len(work)-1]
		if !seen.Insert(c) {
			continue
		}
		work = append(work, h.subclasses[c]...)
	}
	return nil
}

// Classes returns every declared class sorted by reference.
func (h *Hierarchy) Classes() []*program.Class {
	out := make([]*program.Class, 0, len(h.classes))
	for _, c := range h.classes {
		out = append(out, c)
	}
	slices.SortFunc(out, func(a, b *program.Class) int { return a.Ref.Compare(b.Ref) })
	return out
}

// Len returns the number of declared classes.
func (h *Hierarchy) Len() int { return len(h.classes) }

func sorted(s *set.Set[program.TypeRef]) []program.TypeRef {
	out := s.Slice()
	slices.SortFunc(out, program.TypeRef.Compare)
	return out
}
