package sekai

import (
	"slices"

	"go.uber.org/zap"
)

// queryRegistry tracks live queries so caches see table events.
type queryRegistry struct {
	count  int
	cached []*queryCache
}

func (r *queryRegistry) init() {
	r.count = 0
	r.cached = r.cached[:0]
}

// cacheEntry is one match of a cached query: a table plus the field data
// that the uncached program produced for it.
type cacheEntry struct {
	table     *Table
	ids       []ID
	sources   []Entity
	columns   []int16
	setFields uint32
}

// queryCache holds the matches of a query. Caches of queries that only look
// at the type of $this are updated per table event. Volatile caches depend
// on other entities and are rebuilt when the structure of the world changed.
type queryCache struct {
	query    *Query
	entries  []cacheEntry
	volatile bool
	stale    bool
	version  uint64
}

func (q *Query) isVolatile() bool {
	if len(q.vars) != 1 {
		return true
	}
	for i := range q.fields {
		if q.fields[i].src != 0 {
			return true
		}
	}
	for i := range q.ops {
		switch q.ops[i].kind {
		case opUp, opSelfUp, opSubtypes, opLookup, opAndFrom, opOrFrom, opNotFrom:
			return true
		}
	}
	return false
}

// setupCache decides whether q is cached and switches it to the cache
// program.
func (q *Query) setupCache(kind CacheKind) {
	w := q.world
	if kind == CacheDefault {
		kind, _ = ParseCacheKind(w.config.Query.DefaultCache)
		if kind == CacheDefault {
			kind = CacheAuto
		}
	}
	if kind == CacheNone || q.thisVar < 0 || q.thisEntityVar >= 0 {
		return
	}
	for i := range q.ops {
		if q.ops[i].kind == opToggle {
			return
		}
	}
	volatile := q.isVolatile()
	if kind == CacheAuto && volatile {
		return
	}

	c := &queryCache{query: q, volatile: volatile}
	q.cache = c
	q.matchOps = q.ops
	trivial := q.ops[0].kind == opTriv
	if trivial {
		q.ops = []queryOp{
			{kind: opSetIds, field: -1, src: noRef, first: noRef, second: noRef},
			{kind: opIsCache, field: -1, src: opRef{v: q.thisVar}, first: noRef, second: noRef, written: bit(q.thisVar)},
			{kind: opYield, field: -1, src: noRef, first: noRef, second: noRef},
		}
	} else {
		q.ops = []queryOp{
			{kind: opCache, field: -1, src: opRef{v: q.thisVar}, first: noRef, second: noRef, written: bit(q.thisVar)},
			{kind: opYield, field: -1, src: noRef, first: noRef, second: noRef},
		}
	}
	for i := range q.ops {
		q.ops[i].index = int16(i)
	}
	linkOps(q.ops)
	c.rematch()
	w.queries.cached = append(w.queries.cached, c)
}

func (c *queryCache) appendMatch(it *Iter) {
	e := cacheEntry{
		table:     it.Table,
		columns:   slices.Clone(it.columns),
		setFields: it.setFields,
	}
	if c.query.ops[0].kind != opSetIds {
		e.ids = slices.Clone(it.IDs)
		e.sources = slices.Clone(it.Sources)
	}
	c.entries = append(c.entries, e)
}

// rematch rebuilds the cache from scratch.
func (c *queryCache) rematch() {
	q := c.query
	c.entries = c.entries[:0]
	it := q.newIter(q.matchOps, false)
	it.matchEmpty = true
	for it.Next() {
		c.appendMatch(it)
	}
	c.version = q.world.info.StructuralVersion
	c.stale = false
	if ce := q.world.logger.Check(zap.DebugLevel, "query cache rematched"); ce != nil {
		ce.Write(zap.Int("entries", len(c.entries)), zap.Bool("volatile", c.volatile))
	}
}

// matchTable adds the matches of a new table.
func (c *queryCache) matchTable(t *Table) {
	q := c.query
	if q.skipTable(t) {
		return
	}
	it := q.newIter(q.matchOps, false)
	it.matchEmpty = true
	it.ctx.vars[q.thisVar] = varValue{table: t, count: t.Count()}
	it.preset = bit(q.thisVar)
	for it.Next() {
		c.appendMatch(it)
	}
}

func (c *queryCache) removeTable(t *Table) {
	c.entries = slices.DeleteFunc(c.entries, func(e cacheEntry) bool { return e.table == t })
}

// revalidate rebuilds a volatile cache after structural changes.
func (c *queryCache) revalidate() {
	if c.volatile && (c.stale || c.version != c.query.world.info.StructuralVersion) {
		c.rematch()
	}
}

func (w *World) queriesOnTableCreate(t *Table) {
	for _, c := range w.queries.cached {
		if c.volatile {
			c.stale = true
			continue
		}
		c.matchTable(t)
	}
}

func (w *World) queriesOnTableDelete(t *Table) {
	for _, c := range w.queries.cached {
		c.removeTable(t)
	}
}

// cache iterates the entries of the query cache.
func (ctx *runCtx) cache(op *queryOp, redo bool) bool {
	cc := &ctx.op[op.index].cache
	c := ctx.query.cache
	if !redo {
		cc.index = -1
	}
	it := ctx.it
	for {
		cc.index++
		if cc.index >= len(c.entries) {
			return false
		}
		e := &c.entries[cc.index]
		t := e.table
		if t.freed || (t.Count() == 0 && !ctx.includeEmpty()) {
			continue
		}
		if op.kind == opCache {
			copy(it.IDs, e.ids)
			copy(it.Sources, e.sources)
		}
		copy(it.columns, e.columns)
		it.setFields = e.setFields
		ctx.vars[op.src.v] = varValue{table: t, count: t.Count()}
		return true
	}
}
