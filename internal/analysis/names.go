// Package analysis derives class-universe names from Go type information.
package analysis

import (
	"go/types"
	"strings"

	"github.com/puzpuzpuz/xsync/v4"
)

// NameCache caches the fully-qualified class names of Go types so that
// concurrent hierarchy extraction names every type exactly once.
type NameCache struct {
	typeCache *xsync.Map[types.Type, string]
}

func NewNameCache() *NameCache {
	return &NameCache{
		typeCache: xsync.NewMap[types.Type, string](),
	}
}

// ClassName returns the class name of typ. Named types become
// "pkgpath.Name", instantiated generics append their type arguments and
// pointers are named after their element. Other types use their
// types.Type string.
func (c *NameCache) ClassName(typ types.Type) string {
	if typ == nil {
		return ""
	}
	if name, ok := c.typeCache.Load(typ); ok {
		return name
	}
	name := c.className(typ)
	c.typeCache.Store(typ, name)
	return name
}

func (c *NameCache) className(typ types.Type) string {
	switch t := typ.(type) {
	case *types.Pointer:
		return c.ClassName(t.Elem())
	case *types.Alias:
		return c.ClassName(types.Unalias(t))
	case *types.Named:
		obj := t.Obj()
		var b strings.Builder
		b.Grow(64)
		if pkg := obj.Pkg(); pkg != nil {
			b.WriteString(pkg.Path())
			b.WriteByte('.')
		}
		b.WriteString(obj.Name())
		if args := t.TypeArgs(); args != nil && args.Len() > 0 {
			b.WriteByte('[')
			for i := range args.Len() {
				if i > 0 {
					b.WriteString(", ")
				}
				b.WriteString(c.ClassName(args.At(i)))
			}
			b.WriteByte(']')
		}
		return b.String()
	}
	return typ.String()
}

// Len returns the number of cached names.
func (c *NameCache) Len() int {
	return c.typeCache.Size()
}
