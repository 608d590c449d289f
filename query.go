package sekai

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Query is a compiled query. It is evaluated by a small backtracking VM
// over the id records of the world, or served from a cache of matched
// tables.
type Query struct {
	world  *World
	terms  []Term
	fields []queryField
	vars   []queryVar
	ops    []queryOp
	flags  QueryFlags

	thisVar       int8
	thisEntityVar int8
	setThis       bool

	cache    *queryCache
	matchOps []queryOp
	closed   bool
}

// NewQuery compiles desc. All problems found in the terms are returned
// together; no query is created when there is any.
func NewQuery(w *World, desc QueryDesc) (*Query, error) {
	q := &Query{world: w, flags: desc.Flags, thisVar: -1, thisEntityVar: -1}
	c := &compiler{w: w, q: q}
	c.compile(desc.Terms)
	if c.errs != nil {
		w.logger.Warn("query compile failed", zap.Error(c.errs))
		return nil, c.errs
	}
	q.setupCache(desc.Cache)
	w.queries.count++
	if ce := w.logger.Check(zap.DebugLevel, "query compiled"); ce != nil {
		ce.Write(zap.Int("terms", len(q.terms)), zap.Int("ops", len(q.ops)), zap.Bool("cached", q.cache != nil))
	}
	return q, nil
}

// NewQuery compiles desc for this world.
func (w *World) NewQuery(desc QueryDesc) (*Query, error) { return NewQuery(w, desc) }

// Query compiles the terms with default settings.
func (w *World) Query(terms ...Term) (*Query, error) {
	return NewQuery(w, QueryDesc{Terms: terms})
}

// World returns the world of the query.
func (q *Query) World() *World { return q.world }

// Terms returns the normalized terms.
func (q *Query) Terms() []Term { return q.terms }

// FieldCount returns the number of fields of an iterator result.
func (q *Query) FieldCount() int { return len(q.fields) }

// VarCount returns the number of variables, including $this.
func (q *Query) VarCount() int { return len(q.vars) }

// IsCached reports whether the query is served from a cache.
func (q *Query) IsCached() bool { return q.cache != nil }

// VarNames returns the names of the entity variables of the query, $this
// excluded.
func (q *Query) VarNames() []string {
	var names []string
	for i := range q.vars {
		if v := &q.vars[i]; v.kind == varEntity && v.name != "this" {
			names = append(names, v.name)
		}
	}
	return names
}

func (q *Query) matchEmpty() bool { return q.flags&MatchEmptyTables != 0 }

// skipTable reports whether t is excluded by the table kind filter.
func (q *Query) skipTable(t *Table) bool {
	if t.flags&TableNotQueryable != 0 {
		return true
	}
	if t.flags&TableIsPrefab != 0 && q.flags&MatchPrefab == 0 {
		return true
	}
	return t.flags&TableIsDisabled != 0 && q.flags&MatchDisabled == 0
}

func (q *Query) varIndex(name string, kind varKind) int8 {
	for i := range q.vars {
		if q.vars[i].name == name && q.vars[i].kind == kind {
			return int8(i)
		}
	}
	return -1
}

// Iter returns a new iterator. Iterators are independent of each other.
func (q *Query) Iter() *Iter {
	if q.cache != nil {
		q.cache.revalidate()
	}
	it := q.newIter(q.ops, true)
	it.cachedPlan = q.cache != nil
	return it
}

func (q *Query) newIter(ops []queryOp, lock bool) *Iter {
	n := len(q.fields)
	it := &Iter{
		world:   q.world,
		query:   q,
		IDs:     make([]ID, n),
		Sources: make([]Entity, n),
		columns: make([]int16, n),
		lock:    lock,
	}
	for f := range q.fields {
		it.IDs[f] = q.fields[f].id
		it.Sources[f] = q.fields[f].src
		it.columns[f] = -1
	}
	it.ctx = runCtx{world: q.world, query: q, it: it, vars: make([]varValue, len(q.vars))}
	it.ctx.init(ops)
	return it
}

// Each calls fn for every result. Structural changes made by fn are
// deferred until the iteration is done.
func (q *Query) Each(fn func(it *Iter)) {
	w := q.world
	w.DeferBegin()
	defer w.DeferEnd()
	it := q.Iter()
	defer it.Fini()
	for it.Next() {
		fn(it)
	}
}

// Count returns the number of matched entities. Results without $this
// count as one.
func (q *Query) Count() int {
	n := 0
	it := q.Iter()
	for it.Next() {
		if it.Table != nil {
			n += it.Count
		} else {
			n++
		}
	}
	return n
}

// IsTrue reports whether the query has at least one result.
func (q *Query) IsTrue() bool {
	it := q.Iter()
	defer it.Fini()
	return it.Next()
}

// EachParallel collects all results and calls fn for them from up to
// workers goroutines (the configured default when workers <= 0). The
// matched tables stay locked and structural changes stay deferred until
// every call returned. The first error cancels ctx for the remaining calls
// and is returned.
func (q *Query) EachParallel(ctx context.Context, workers int, fn func(it *Iter) error) error {
	w := q.world
	if workers <= 0 {
		workers = w.config.Query.Workers
	}
	w.DeferBegin()
	defer w.DeferEnd()

	var parts []*Iter
	it := q.Iter()
	for it.Next() {
		parts = append(parts, it.snapshot())
	}
	defer func() {
		for _, p := range parts {
			p.Fini()
		}
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, p := range parts {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return fn(p)
		})
	}
	return g.Wait()
}

var nothingOps = []queryOp{
	{kind: opNothing, index: 0, prev: -1, next: 1, field: -1, src: noRef, first: noRef, second: noRef},
	{kind: opYield, index: 1, prev: 0, next: 2, field: -1, src: noRef, first: noRef, second: noRef},
}

// Fini releases the query. Iterators created afterwards return nothing.
func (q *Query) Fini() {
	if q.closed {
		return
	}
	q.closed = true
	w := q.world
	if q.cache != nil {
		for i, c := range w.queries.cached {
			if c == q.cache {
				w.queries.cached = append(w.queries.cached[:i], w.queries.cached[i+1:]...)
				break
			}
		}
		q.cache = nil
	}
	q.ops = nothingOps
	q.matchOps = nil
	w.queries.count--
}
