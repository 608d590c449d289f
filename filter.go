package sekai

import (
	"reflect"
	"unsafe"
)

// Iter walks the results of a query. Each result is a range of rows of one
// table (the $this table) plus the id and source that every field matched.
// Queries without $this produce results with a nil Table.
//
// The table of the current result is locked until Next is called again or
// the iterator is finalized.
type Iter struct {
	world *World
	query *Query
	ctx   runCtx

	// Table, Offset and Count describe the rows of the current result.
	Table    *Table
	Offset   int
	Count    int
	Entities []Entity
	// IDs holds the matched id of each field. For wildcard terms this is
	// the concrete id found in the table.
	IDs []ID
	// Sources holds the entity each field was matched on, or 0 for $this.
	Sources []Entity

	columns   []int16
	setFields uint32

	started    bool
	done       bool
	cachedPlan bool
	preset     uint64
	matchEmpty bool
	lock       bool
	locked     *Table
}

func (ctx *runCtx) includeEmpty() bool {
	return ctx.query.matchEmpty() || ctx.it.matchEmpty
}

// Next advances to the next result.
func (it *Iter) Next() bool {
	if it.done {
		return false
	}
	it.unlock()
	ctx := &it.ctx
	q := it.query
	yield := int16(len(ctx.ops) - 1)
	var ok bool
	if !it.started {
		it.started = true
		if it.preset != 0 && it.cachedPlan {
			ctx.init(q.matchOps)
			yield = int16(len(ctx.ops) - 1)
		}
		ctx.written[0] = it.preset
		ok = ctx.runUntil(false, -1, 0, yield)
	} else {
		ok = ctx.runUntil(true, -1, ctx.ops[yield].prev, yield)
	}
	ctx.opIndex = yield
	if !ok {
		it.finish()
		return false
	}
	it.populate()
	return true
}

func (it *Iter) populate() {
	ctx := &it.ctx
	q := it.query
	var v varValue
	switch {
	case q.setThis:
		v = ctx.this
	case q.thisVar >= 0:
		v = ctx.vars[q.thisVar]
	}
	it.Table, it.Offset, it.Count = v.table, v.offset, v.count
	it.Entities = nil
	if v.table != nil {
		it.Entities = v.table.entities[v.offset : v.offset+v.count]
		if it.lock {
			v.table.Lock()
			it.locked = v.table
		}
	}
}

func (it *Iter) unlock() {
	if it.locked != nil {
		it.locked.Unlock()
		it.locked = nil
	}
}

func (it *Iter) finish() {
	it.done = true
	it.unlock()
	it.Table, it.Entities, it.Offset, it.Count = nil, nil, 0, 0
}

// Fini ends the iteration early and releases the current table.
func (it *Iter) Fini() {
	it.unlock()
	if !it.done {
		it.finish()
	}
}

// Query returns the query that created the iterator.
func (it *Iter) Query() *Query { return it.query }

// World returns the world being iterated.
func (it *Iter) World() *World { return it.world }

// Entity returns the entity at row i of the current result.
func (it *Iter) Entity(i int) Entity { return it.Entities[i] }

func (it *Iter) checkNotStarted() {
	ecsAssert(!it.started, CodeInvalidOperation, "variables must be set before the first Next")
}

// SetVar constrains a variable to an entity before iteration starts. For
// $this, results are narrowed to the row of e.
func (it *Iter) SetVar(name string, e Entity) *Iter {
	it.checkNotStarted()
	q := it.query
	ev, tv := q.varIndex(name, varEntity), q.varIndex(name, varTable)
	ecsAssert(ev >= 0 || tv >= 0, CodeInvalidParameter, "query has no variable $%s", name)
	if ev >= 0 {
		it.ctx.vars[ev] = varValue{entity: e}
		it.preset |= bit(ev)
	}
	if tv >= 0 {
		meta := it.world.entities.get(e)
		ecsAssert(meta != nil, CodeInvalidParameter, "cannot bind $%s to %s: %v", name, e, ErrStaleEntity)
		it.ctx.vars[tv] = varValue{entity: e, table: meta.table, offset: meta.rowIndex(), count: 1}
		it.preset |= bit(tv)
	}
	return it
}

// SetVarTable constrains a table variable to all rows of t.
func (it *Iter) SetVarTable(name string, t *Table) *Iter {
	it.checkNotStarted()
	tv := it.query.varIndex(name, varTable)
	ecsAssert(tv >= 0, CodeInvalidParameter, "query has no table variable $%s", name)
	it.ctx.vars[tv] = varValue{table: t, count: t.Count()}
	it.preset |= bit(tv)
	return it
}

// Var returns the entity bound to a variable in the current result, or 0.
// A table variable reads as an entity when it holds a single row.
func (it *Iter) Var(name string) Entity {
	q := it.query
	if name == "this" && q.setThis {
		return it.ctx.this.entity
	}
	if v := q.varIndex(name, varEntity); v >= 0 {
		if e := it.ctx.vars[v].entity; e != Wildcard {
			return e
		}
		return 0
	}
	if v := q.varIndex(name, varTable); v >= 0 {
		val := &it.ctx.vars[v]
		if val.table != nil && val.count == 1 {
			return val.table.entities[val.offset]
		}
	}
	return 0
}

// VarTable returns the table bound to a table variable, or nil.
func (it *Iter) VarTable(name string) *Table {
	if v := it.query.varIndex(name, varTable); v >= 0 {
		return it.ctx.vars[v].table
	}
	return nil
}

// IsSet reports whether field f matched. Fields of Not terms and unmatched
// Optional terms are not set.
func (it *Iter) IsSet(f int) bool { return it.setFields&(1<<uint(f)) != 0 }

// IsSelf reports whether field f was matched on the result rows themselves.
func (it *Iter) IsSelf(f int) bool { return it.Sources[f] == 0 }

// ID returns the matched id of field f.
func (it *Iter) ID(f int) ID { return it.IDs[f] }

// Source returns the source entity of field f, or 0 for $this.
func (it *Iter) Source(f int) Entity { return it.Sources[f] }

// fieldColumn returns the column holding field f and the first row of the
// result in it.
func (it *Iter) fieldColumn(f int) (*column, int) {
	if !it.IsSet(f) || it.columns[f] < 0 {
		return nil, 0
	}
	if src := it.Sources[f]; src != 0 {
		meta := it.world.entities.get(src)
		if meta == nil {
			return nil, 0
		}
		return &meta.table.columns[it.columns[f]], meta.rowIndex()
	}
	if it.Table == nil {
		return nil, 0
	}
	return &it.Table.columns[it.columns[f]], it.Offset
}

func checkFieldType[T any](c *column, f int) {
	typ := reflect.TypeFor[T]()
	ecsAssert(c.ti.Type == typ, CodeInvalidParameter, "field %d holds %s, not %s", f, c.ti.Type, typ)
}

// Field returns the data of field f for the rows of the current result. A
// field matched on another entity returns a single element slice. It returns
// nil when the field is not set or carries no data.
func Field[T any](it *Iter, f int) []T {
	c, row := it.fieldColumn(f)
	if c == nil {
		return nil
	}
	checkFieldType[T](c, f)
	n := it.Count
	if it.Sources[f] != 0 {
		n = 1
	}
	return unsafe.Slice((*T)(c.ptr(row)), n)
}

// FieldAt returns a pointer to the data of field f for row i of the result.
// Shared fields return the same pointer for every row.
func FieldAt[T any](it *Iter, f int, i int) *T {
	c, row := it.fieldColumn(f)
	if c == nil {
		return nil
	}
	checkFieldType[T](c, f)
	if it.Sources[f] == 0 {
		ecsAssert(i >= 0 && i < it.Count, CodeOutOfRange, "row %d out of range [0,%d)", i, it.Count)
		row += i
	}
	return (*T)(c.ptr(row))
}

// snapshot copies the current result into a finished iterator that keeps its
// table locked until Fini.
func (it *Iter) snapshot() *Iter {
	s := &Iter{
		world:     it.world,
		query:     it.query,
		Table:     it.Table,
		Offset:    it.Offset,
		Count:     it.Count,
		Entities:  it.Entities,
		IDs:       append([]ID(nil), it.IDs...),
		Sources:   append([]Entity(nil), it.Sources...),
		columns:   append([]int16(nil), it.columns...),
		setFields: it.setFields,
		started:   true,
		done:      true,
	}
	s.ctx = runCtx{world: it.world, query: it.query, it: s, vars: append([]varValue(nil), it.ctx.vars...), this: it.ctx.this}
	if s.Table != nil {
		s.Table.Lock()
		s.locked = s.Table
	}
	return s
}
