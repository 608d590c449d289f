package sekai

// varValue is the value of a query variable.
type varValue struct {
	entity Entity
	table  *Table
	offset int
	count  int
}

type andCtx struct {
	pattern   ID
	iter      tableCacheIter
	table     *Table
	column    int16
	remaining int16
	src       Entity
}

type upPhase uint8

const (
	phaseSelf upPhase = iota
	phaseUp
)

type upCtx struct {
	phase upPhase
	iter  tableCacheIter
}

type eachCtx struct {
	row int
}

type blockCtx struct {
	matched bool
	vars    []varValue
}

type orCtx struct {
	alt int16
}

type subtypeFrame struct {
	list []Entity
	pos  int
}

type subtypeCtx struct {
	stack []subtypeFrame
}

type trivCtx struct {
	idrs []*IDRecord
	iter tableCacheIter
}

type toggleCtx struct {
	table *Table
	index int
	cur   int
	end   int
	pass  bool
}

type cacheCtx struct {
	index int
}

// opCtx is the mutable state of one op during an iteration.
type opCtx struct {
	and    andCtx
	up     upCtx
	each   eachCtx
	block  blockCtx
	or     orCtx
	sub    subtypeCtx
	triv   trivCtx
	toggle toggleCtx
	cache  cacheCtx
}

// runCtx is the state of the query VM. It lives in the iterator, so an
// abandoned iteration leaves nothing behind in the query.
type runCtx struct {
	world   *World
	query   *Query
	it      *Iter
	ops     []queryOp
	op      []opCtx
	vars    []varValue
	written []uint64
	opIndex int16
	// this is the result range set by SetThis.
	this varValue
}

func (ctx *runCtx) init(ops []queryOp) {
	ctx.ops = ops
	ctx.op = make([]opCtx, len(ops))
	ctx.written = make([]uint64, len(ops)+1)
}

// runUntil evaluates ops starting at cur until control reaches last (a
// match) or backtracks to first (exhausted).
func (ctx *runCtx) runUntil(redo bool, first, cur, last int16) bool {
	for {
		op := &ctx.ops[cur]
		ctx.opIndex = cur
		if ctx.dispatch(op, redo) {
			next := op.next
			ctx.written[next] = ctx.written[cur] | op.written
			if next == last {
				return true
			}
			cur = next
			redo = false
		} else {
			cur = op.prev
			if cur == first {
				return false
			}
			redo = true
		}
	}
}

func (ctx *runCtx) dispatch(op *queryOp, redo bool) bool {
	switch op.kind {
	case opAnd:
		if op.src.isVar() && !ctx.isWritten(op.src.v) {
			return ctx.selectOp(op, redo)
		}
		return ctx.with(op, redo)
	case opUp:
		return ctx.up(op, redo, false)
	case opSelfUp:
		return ctx.up(op, redo, true)
	case opTriv:
		return ctx.triv(op, redo)
	case opCache, opIsCache:
		return ctx.cache(op, redo)
	case opAndFrom, opOrFrom, opNotFrom:
		return ctx.from(op, redo)
	case opOr:
		return ctx.or(op, redo)
	case opNot:
		return ctx.not(op, redo)
	case opOptional:
		return ctx.optional(op, redo)
	case opEach:
		return ctx.each(op, redo)
	case opLookup:
		return ctx.lookup(op, redo)
	case opSetThis:
		return ctx.setThis(op, redo)
	case opSetVars:
		return ctx.setVars(redo)
	case opSetFixed:
		return ctx.setFixed(redo)
	case opSetIds:
		return ctx.setIds(redo)
	case opToggle:
		return ctx.toggle(op, redo)
	case opSubtypes:
		return ctx.subtypes(op, redo)
	case opAll:
		return ctx.all(op, redo)
	}
	// opEnd, opNothing and opYield never produce a result.
	return false
}

func (ctx *runCtx) isWritten(v int8) bool {
	return v >= 0 && ctx.written[ctx.opIndex]&bit(v) != 0
}

// refEntity returns the value of an operand. Unbound variables read as
// Wildcard.
func (ctx *runCtx) refEntity(r opRef) Entity {
	if r.isVar() {
		if ctx.isWritten(r.v) {
			return ctx.vars[r.v].entity
		}
		return Wildcard
	}
	return r.entity
}

// unresolved reports whether a bound operand holds the value of a failed
// lookup.
func (ctx *runCtx) unresolved(op *queryOp) bool {
	for _, r := range [...]opRef{op.src, op.first, op.second} {
		if r.isVar() && ctx.isWritten(r.v) && ctx.query.vars[r.v].kind == varEntity && ctx.vars[r.v].entity == Wildcard {
			return true
		}
	}
	return false
}

// opPattern returns the id an op matches, with unbound variables replaced by
// wildcards.
func (ctx *runCtx) opPattern(op *queryOp) ID {
	if op.flags&opHasSecond == 0 {
		return ID(ctx.refEntity(op.first))
	}
	f, s := ctx.refEntity(op.first).Index(), ctx.refEntity(op.second).Index()
	if f == uint32(Any) {
		f = uint32(Wildcard)
	}
	if s == uint32(Any) {
		s = uint32(Wildcard)
	}
	return pairOf(f, s)
}

// srcRange returns the table and rows an op's bound source refers to. src
// is the source entity, or 0 when the source is $this.
func (ctx *runCtx) srcRange(op *queryOp) (t *Table, offset, count int, src Entity) {
	var e Entity
	if op.src.isVar() {
		val := &ctx.vars[op.src.v]
		if ctx.query.vars[op.src.v].kind == varTable {
			return val.table, val.offset, val.count, 0
		}
		e = val.entity
	} else {
		e = op.src.entity
	}
	meta := ctx.world.entities.get(e)
	if meta == nil || e == Wildcard {
		return nil, 0, 0, 0
	}
	if op.src.isVar() && op.src.v == ctx.query.thisEntityVar {
		return meta.table, meta.rowIndex(), 1, 0
	}
	return meta.table, meta.rowIndex(), 1, e
}

// bindIDVars writes the unbound variables of an op from a matched id. It
// fails when one variable appears twice with different values.
func (ctx *runCtx) bindIDVars(op *queryOp, id ID) bool {
	entities := &ctx.world.entities
	firstSet := false
	if op.first.isVar() && !ctx.isWritten(op.first.v) {
		var e Entity
		if op.flags&opHasSecond != 0 {
			e = entities.aliveAt(id.firstIndex())
		} else {
			e = id.Entity()
		}
		ctx.vars[op.first.v].entity = e
		firstSet = true
	}
	if op.flags&opHasSecond != 0 && op.second.isVar() && !ctx.isWritten(op.second.v) {
		e := entities.aliveAt(id.secondIndex())
		if firstSet && op.second.v == op.first.v {
			return ctx.vars[op.first.v].entity == e
		}
		ctx.vars[op.second.v].entity = e
	}
	return true
}

// setField publishes the id matched at col of t.
func (ctx *runCtx) setField(op *queryOp, t *Table, col int16, src Entity) {
	f := op.field
	if f < 0 {
		return
	}
	it := ctx.it
	it.IDs[f] = t.typ[col]
	it.Sources[f] = src
	it.columns[f] = int16(t.columnOf(int(col)))
	it.setFields |= 1 << uint(f)
}

func (ctx *runCtx) resetField(f int8) {
	if f < 0 {
		return
	}
	it := ctx.it
	qf := &ctx.query.fields[f]
	it.IDs[f] = qf.id
	it.Sources[f] = qf.src
	it.columns[f] = -1
	it.setFields &^= 1 << uint(f)
}

func (ctx *runCtx) bindColumn(op *queryOp, t *Table, col int16, src Entity) bool {
	if !ctx.bindIDVars(op, t.typ[col]) {
		return false
	}
	ctx.setField(op, t, col, src)
	return true
}

// nextColumn moves to the next position in the current table that matches
// the pattern.
func (ctx *runCtx) nextColumn(op *queryOp, oc *andCtx) bool {
	t := oc.table
	for oc.remaining > 0 {
		oc.remaining--
		col := int(oc.column) + 1
		for col < len(t.typ) && !idMatch(t.typ[col], oc.pattern) {
			col++
		}
		if col >= len(t.typ) {
			oc.remaining = 0
			return false
		}
		oc.column = int16(col)
		if ctx.bindColumn(op, t, oc.column, oc.src) {
			return true
		}
	}
	return false
}

// enterTable starts matching the pattern in t at the table record tr.
func (ctx *runCtx) enterTable(op *queryOp, oc *andCtx, t *Table, tr *TableRecord, src Entity) bool {
	oc.table, oc.column, oc.remaining, oc.src = t, tr.index, tr.count-1, src
	if op.flags&opMatchAny != 0 {
		oc.remaining = 0
	}
	if ctx.bindColumn(op, t, tr.index, src) {
		return true
	}
	return ctx.nextColumn(op, oc)
}

// selectOp enumerates the tables that hold the pattern and binds the
// source table variable.
func (ctx *runCtx) selectOp(op *queryOp, redo bool) bool {
	oc := &ctx.op[op.index].and
	if !redo {
		if ctx.unresolved(op) {
			return false
		}
		oc.pattern = ctx.opPattern(op)
		idr := ctx.world.idRecordGet(oc.pattern)
		if idr == nil {
			return false
		}
		oc.iter = idr.cache.iter(ctx.includeEmpty())
		oc.table = nil
	} else if oc.table != nil && ctx.nextColumn(op, oc) {
		return true
	}
	for node := oc.iter.next(); node != nil; node = oc.iter.next() {
		t := node.table
		if ctx.query.skipTable(t) {
			continue
		}
		if !ctx.enterTable(op, oc, t, &t.records[node.record], 0) {
			continue
		}
		ctx.vars[op.src.v] = varValue{table: t, count: t.Count()}
		return true
	}
	oc.table = nil
	return false
}

// with tests the pattern against a bound source.
func (ctx *runCtx) with(op *queryOp, redo bool) bool {
	oc := &ctx.op[op.index].and
	if redo {
		return oc.table != nil && ctx.nextColumn(op, oc)
	}
	oc.table = nil
	if ctx.unresolved(op) {
		return false
	}
	t, _, _, src := ctx.srcRange(op)
	if t == nil {
		return false
	}
	oc.pattern = ctx.opPattern(op)
	idr := ctx.world.idRecordGet(oc.pattern)
	if idr == nil {
		return false
	}
	ri, ok := idr.cache.get(t)
	if !ok {
		return false
	}
	return ctx.enterTable(op, oc, t, &t.records[ri], src)
}

// triv matches queries whose terms are all concrete ids on $this. It walks
// the smallest id record and tests the others per table.
func (ctx *runCtx) triv(op *queryOp, redo bool) bool {
	tc := &ctx.op[op.index].triv
	q := ctx.query
	w := ctx.world
	if !redo {
		tc.idrs = tc.idrs[:0]
		var smallest *IDRecord
		for i := range q.fields {
			idr := w.idRecordGet(q.fields[i].id)
			if idr == nil {
				return false
			}
			tc.idrs = append(tc.idrs, idr)
			if smallest == nil || idr.cache.tableCount() < smallest.cache.tableCount() {
				smallest = idr
			}
		}
		if ctx.isWritten(op.src.v) {
			t := ctx.vars[op.src.v].table
			return t != nil && ctx.trivTable(tc, t)
		}
		tc.iter = smallest.cache.iter(ctx.includeEmpty())
	} else if ctx.isWritten(op.src.v) {
		return false
	}
	for node := tc.iter.next(); node != nil; node = tc.iter.next() {
		t := node.table
		if q.skipTable(t) || !ctx.trivTable(tc, t) {
			continue
		}
		ctx.vars[op.src.v] = varValue{table: t, count: t.Count()}
		return true
	}
	return false
}

func (ctx *runCtx) trivTable(tc *trivCtx, t *Table) bool {
	it := ctx.it
	for f, idr := range tc.idrs {
		ri, ok := idr.cache.get(t)
		if !ok {
			return false
		}
		tr := &t.records[ri]
		it.IDs[f] = t.typ[tr.index]
		it.Sources[f] = 0
		it.columns[f] = tr.column
	}
	it.setFields = 1<<uint(len(tc.idrs)) - 1
	return true
}

// all enumerates every queryable table, or passes a bound table once.
func (ctx *runCtx) all(op *queryOp, redo bool) bool {
	oc := &ctx.op[op.index].and
	if ctx.isWritten(op.src.v) {
		return !redo
	}
	if !redo {
		oc.iter = ctx.world.idrAny.cache.iter(ctx.includeEmpty())
	}
	for node := oc.iter.next(); node != nil; node = oc.iter.next() {
		t := node.table
		if ctx.query.skipTable(t) {
			continue
		}
		ctx.vars[op.src.v] = varValue{table: t, count: t.Count()}
		return true
	}
	return false
}

// each binds an entity variable to the rows of a table variable in turn.
func (ctx *runCtx) each(op *queryOp, redo bool) bool {
	ec := &ctx.op[op.index].each
	tv := &ctx.vars[op.src.v]
	if !redo {
		ec.row = tv.offset
	} else {
		ec.row++
	}
	if tv.table == nil || ec.row >= tv.offset+tv.count {
		return false
	}
	ctx.vars[op.first.v].entity = tv.table.entities[ec.row]
	return true
}

// lookup binds a variable to a named child of another variable. A missing
// child binds Wildcard, which no later op matches.
func (ctx *runCtx) lookup(op *queryOp, redo bool) bool {
	if redo {
		return false
	}
	qv := &ctx.query.vars[op.first.v]
	e := ctx.world.LookupChild(ctx.vars[op.src.v].entity, qv.lookup)
	if e == 0 {
		e = Wildcard
	}
	ctx.vars[op.first.v].entity = e
	return true
}

func (ctx *runCtx) setThis(op *queryOp, redo bool) bool {
	if redo {
		return false
	}
	e := ctx.vars[op.src.v].entity
	meta := ctx.world.entities.get(e)
	if meta == nil {
		return false
	}
	ctx.this = varValue{entity: e, table: meta.table, offset: meta.rowIndex(), count: 1}
	return true
}

func (ctx *runCtx) setVars(redo bool) bool {
	if redo {
		return false
	}
	for f := range ctx.query.fields {
		if v := ctx.query.fields[f].srcVar; v >= 0 {
			ctx.it.Sources[f] = ctx.vars[v].entity
		}
	}
	return true
}

func (ctx *runCtx) setFixed(redo bool) bool {
	if redo {
		return false
	}
	for f := range ctx.query.fields {
		if src := ctx.query.fields[f].src; src != 0 {
			ctx.it.Sources[f] = src
		}
	}
	return true
}

func (ctx *runCtx) setIds(redo bool) bool {
	if redo {
		return false
	}
	for f := range ctx.query.fields {
		ctx.it.IDs[f] = ctx.query.fields[f].id
	}
	return true
}

// toggle narrows a matched $this range to runs of rows that have the
// component enabled.
func (ctx *runCtx) toggle(op *queryOp, redo bool) bool {
	tc := &ctx.op[op.index].toggle
	v := &ctx.vars[op.src.v]
	if !redo {
		t := v.table
		tc.pass = true
		if t == nil || ctx.it.Sources[op.field] != 0 {
			return t != nil
		}
		ti := t.toggleIndex(ID(op.first.entity))
		if ti < 0 {
			return true
		}
		tc.pass = false
		tc.table, tc.index = t, ti
		tc.cur, tc.end = v.offset, v.offset+v.count
	} else if tc.pass {
		return false
	}
	bits := &tc.table.toggles[tc.index].bits
	start := bits.nextSet(tc.cur, tc.end)
	if start >= tc.end {
		return false
	}
	stop := bits.nextUnset(start, tc.end)
	v.offset, v.count = start, stop-start
	tc.cur = stop
	return true
}
