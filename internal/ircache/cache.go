// Package ircache memoizes IR and def-use indexes per method, context and
// IR options.
package ircache

import (
	"sync"
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v4"

	"github.com/715d/factorybypass/pkg/ir"
	"github.com/715d/factorybypass/pkg/program"
)

// Source is a method that can materialize its own IR.
type Source interface {
	ir.Method
	MakeIR(opts ir.Options) *ir.IR
}

type key struct {
	method  ir.Method
	context program.Context
	options ir.Options
}

// entry is computed once; it is replaced rather than updated on
// invalidation.
type entry struct {
	irOnce sync.Once
	ir     *ir.IR
	duOnce sync.Once
	du     *ir.DefUse
}

// Stats counts cache traffic.
type Stats struct {
	Entries       int `json:"entries" msgpack:"entries"`
	Hits          int `json:"hits" msgpack:"hits"`
	Misses        int `json:"misses" msgpack:"misses"`
	Invalidations int `json:"invalidations" msgpack:"invalidations"`
}

// Cache is safe for concurrent use.
type Cache struct {
	entries       *xsync.Map[key, *entry]
	hits          atomic.Int64
	misses        atomic.Int64
	invalidations atomic.Int64
}

// New returns an empty cache.
func New() *Cache {
	return &Cache{entries: xsync.NewMap[key, *entry]()}
}

func (c *Cache) entry(k key) *entry {
	if e, ok := c.entries.Load(k); ok {
		c.hits.Add(1)
		return e
	}
	e, loaded := c.entries.LoadOrStore(k, &entry{})
	if loaded {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	return e
}

// FindOrCreateIR returns the IR of m in ctx, materializing it on first
// request.
func (c *Cache) FindOrCreateIR(m Source, ctx program.Context, opts ir.Options) *ir.IR {
	e := c.entry(key{method: m, context: ctx, options: opts})
	e.irOnce.Do(func() {
		e.ir = m.MakeIR(opts)
	})
	return e.ir
}

// FindOrCreateDU returns the def-use index of the IR of m in ctx.
func (c *Cache) FindOrCreateDU(m Source, ctx program.Context, opts ir.Options) *ir.DefUse {
	e := c.entry(key{method: m, context: ctx, options: opts})
	e.irOnce.Do(func() {
		e.ir = m.MakeIR(opts)
	})
	e.duOnce.Do(func() {
		e.du = ir.NewDefUse(e.ir)
	})
	return e.du
}

// Invalidate drops everything cached for m in ctx, under any options.
func (c *Cache) Invalidate(m ir.Method, ctx program.Context) {
	c.invalidations.Add(1)
	c.entries.Range(func(k key, _ *entry) bool {
		if k.method == m && k.context == ctx {
			c.entries.Delete(k)
		}
		return true
	})
}

// Len returns the number of cached (method, context, options) entries.
func (c *Cache) Len() int { return c.entries.Size() }

// Stats returns a snapshot of the counters.
func (c *Cache) Stats() Stats {
	return Stats{
		Entries:       c.entries.Size(),
		Hits:          int(c.hits.Load()),
		Misses:        int(c.misses.Load()),
		Invalidations: int(c.invalidations.Load()),
	}
}
