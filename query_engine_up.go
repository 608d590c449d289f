package sekai

// searchUp looks for id on the targets of trav pairs in t, depth first in
// type order. It returns the entity that has the id, its table and the type
// position of the match.
func (w *World) searchUp(t *Table, id ID, trav Entity, depth int) (Entity, *Table, int16, bool) {
	if depth >= w.config.Query.MaxUpDepth {
		return 0, nil, -1, false
	}
	idr := w.idRecordGet(id)
	if idr == nil || (trav == IsA && idr.flags&IDDontInherit != 0) {
		return 0, nil, -1, false
	}
	travIdr := w.idRecordGet(Pair(trav, Wildcard))
	if travIdr == nil {
		return 0, nil, -1, false
	}
	ri, ok := travIdr.cache.get(t)
	if !ok {
		return 0, nil, -1, false
	}
	tr := &t.records[ri]
	for i := int(tr.index); i < int(tr.index+tr.count); i++ {
		tgt := w.entities.aliveAt(t.typ[i].secondIndex())
		meta := w.entities.get(tgt)
		if meta == nil {
			continue
		}
		tt := meta.table
		if ri, ok := idr.cache.get(tt); ok {
			return tgt, tt, tt.records[ri].index, true
		}
		if src, st, col, ok := w.searchUp(tt, id, trav, depth+1); ok {
			return src, st, col, true
		}
	}
	return 0, nil, -1, false
}

// matchUp binds the field of op from the first ancestor of t that has the
// pattern.
func (ctx *runCtx) matchUp(op *queryOp, t *Table) bool {
	src, st, col, ok := ctx.world.searchUp(t, ctx.opPattern(op), op.trav, 0)
	if !ok {
		return false
	}
	return ctx.bindColumn(op, st, col, src)
}

// up matches a term through a traversable relationship. With self set the
// source itself is tried first and ancestors only when it has no match.
func (ctx *runCtx) up(op *queryOp, redo bool, self bool) bool {
	if ctx.unresolved(op) {
		return false
	}
	c := &ctx.op[op.index]
	if op.src.isVar() && !ctx.isWritten(op.src.v) {
		return ctx.upSelect(op, c, redo, self)
	}
	if redo {
		return c.up.phase == phaseSelf && c.and.table != nil && ctx.nextColumn(op, &c.and)
	}
	if self && ctx.with(op, false) {
		c.up.phase = phaseSelf
		return true
	}
	c.up.phase = phaseUp
	t, _, _, _ := ctx.srcRange(op)
	return t != nil && ctx.matchUp(op, t)
}

func (ctx *runCtx) upSelect(op *queryOp, c *opCtx, redo bool, self bool) bool {
	q := ctx.query
	if !redo {
		c.up.phase = phaseUp
		c.up.iter = tableCacheIter{}
		if travIdr := ctx.world.idRecordGet(Pair(op.trav, Wildcard)); travIdr != nil {
			c.up.iter = travIdr.cache.iter(ctx.includeEmpty())
		}
		if self {
			c.up.phase = phaseSelf
			if ctx.selectOp(op, false) {
				return true
			}
			c.up.phase = phaseUp
		}
	} else if c.up.phase == phaseSelf {
		if ctx.selectOp(op, true) {
			return true
		}
		c.up.phase = phaseUp
	}
	var selfIdr *IDRecord
	if self {
		selfIdr = ctx.world.idRecordGet(ctx.opPattern(op))
	}
	for node := c.up.iter.next(); node != nil; node = c.up.iter.next() {
		t := node.table
		if q.skipTable(t) || (selfIdr != nil && selfIdr.cache.has(t)) {
			continue
		}
		if !ctx.matchUp(op, t) {
			continue
		}
		ctx.vars[op.src.v] = varValue{table: t, count: t.Count()}
		return true
	}
	return false
}

// directSubtypes appends the entities that have (IsA, e).
func (w *World) directSubtypes(e Entity, buf []Entity) []Entity {
	idr := w.idRecordGet(Pair(IsA, e))
	if idr == nil {
		return buf
	}
	idr.Tables(false, func(t *Table, _ *TableRecord) bool {
		buf = append(buf, t.entities...)
		return true
	})
	return buf
}

// subtypes binds a variable to an entity and then to everything that
// inherits from it, depth first. An entity reachable along several paths
// is produced once per path.
func (ctx *runCtx) subtypes(op *queryOp, redo bool) bool {
	sc := &ctx.op[op.index].sub
	w := ctx.world
	if !redo {
		sc.stack = sc.stack[:0]
		root := ctx.refEntity(op.first)
		ctx.vars[op.src.v].entity = root
		sc.stack = append(sc.stack, subtypeFrame{list: w.directSubtypes(root, nil)})
		return true
	}
	for len(sc.stack) > 0 {
		top := &sc.stack[len(sc.stack)-1]
		if top.pos >= len(top.list) {
			sc.stack = sc.stack[:len(sc.stack)-1]
			continue
		}
		e := top.list[top.pos]
		top.pos++
		if len(sc.stack) < w.config.Query.MaxUpDepth {
			sc.stack = append(sc.stack, subtypeFrame{list: w.directSubtypes(e, nil)})
		}
		ctx.vars[op.src.v].entity = e
		return true
	}
	return false
}
