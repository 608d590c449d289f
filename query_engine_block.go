package sekai

func (ctx *runCtx) saveVars(bc *blockCtx) {
	bc.vars = append(bc.vars[:0], ctx.vars...)
}

func (ctx *runCtx) restoreVars(bc *blockCtx) {
	copy(ctx.vars, bc.vars)
}

// runBlock evaluates the body of a block op.
func (ctx *runCtx) runBlock(op *queryOp, redo bool) bool {
	body := op.index + 1
	cur := body
	if redo {
		cur = ctx.ops[op.other].prev
	} else {
		ctx.written[body] = ctx.written[op.index]
	}
	ok := ctx.runUntil(redo, op.index, cur, op.other)
	ctx.opIndex = op.index
	return ok
}

// not succeeds once when its body has no match. Whatever the body bound is
// undone.
func (ctx *runCtx) not(op *queryOp, redo bool) bool {
	if redo {
		return false
	}
	bc := &ctx.op[op.index].block
	ctx.saveVars(bc)
	matched := ctx.runBlock(op, false)
	ctx.restoreVars(bc)
	ctx.resetField(op.field)
	return !matched
}

// optional always succeeds the first time. When the body matched, redo
// asks the body for more results.
func (ctx *runCtx) optional(op *queryOp, redo bool) bool {
	bc := &ctx.op[op.index].block
	if !redo {
		ctx.saveVars(bc)
		bc.matched = ctx.runBlock(op, false)
		if !bc.matched {
			ctx.restoreVars(bc)
			ctx.resetField(op.field)
		}
		return true
	}
	if !bc.matched {
		return false
	}
	if ctx.runBlock(op, true) {
		return true
	}
	ctx.restoreVars(bc)
	ctx.resetField(op.field)
	return false
}

// or evaluates alternatives in order. When it selects tables, a table that
// an earlier alternative also matches is skipped so each table is produced
// once. With a bound source only the first matching alternative counts.
func (ctx *runCtx) or(op *queryOp, redo bool) bool {
	oc := &ctx.op[op.index].or
	selecting := op.src.isVar() && !ctx.isWritten(op.src.v)
	if !redo {
		oc.alt = op.index + 1
	} else if !selecting {
		return false
	}
	for oc.alt < op.other {
		if !redo {
			ctx.written[oc.alt] = ctx.written[op.index]
		}
		ok := ctx.runUntil(redo, op.index, oc.alt, op.other)
		ctx.opIndex = op.index
		if ok {
			if selecting && ctx.matchedEarlier(op, oc.alt) {
				redo = true
				continue
			}
			return true
		}
		oc.alt++
		redo = false
	}
	return false
}

// matchedEarlier reports whether an alternative before alt matches the
// table alt just selected.
func (ctx *runCtx) matchedEarlier(op *queryOp, alt int16) bool {
	t := ctx.vars[op.src.v].table
	if t == nil {
		return false
	}
	for i := op.index + 1; i < alt; i++ {
		prev := &ctx.ops[i]
		pattern := ctx.opPattern(prev)
		if prev.kind != opUp {
			if idr := ctx.world.idRecordGet(pattern); idr != nil && idr.cache.has(t) {
				return true
			}
		}
		if prev.kind == opUp || prev.kind == opSelfUp {
			if _, _, _, ok := ctx.world.searchUp(t, pattern, prev.trav, 0); ok {
				return true
			}
		}
	}
	return false
}

// from tests the source against the type of a template entity. Ids that
// cannot be inherited are skipped.
func (ctx *runCtx) from(op *queryOp, redo bool) bool {
	if redo {
		return false
	}
	w := ctx.world
	t, _, _, _ := ctx.srcRange(op)
	tmpl := w.entities.get(op.first.entity)
	if t == nil || tmpl == nil {
		return false
	}
	for _, id := range tmpl.table.typ {
		if idr := w.idRecordGet(id); idr != nil && idr.flags&IDDontInherit != 0 {
			continue
		}
		has := w.tableHas(t, id)
		switch op.kind {
		case opAndFrom:
			if !has {
				return false
			}
		case opOrFrom:
			if has {
				return true
			}
		case opNotFrom:
			if has {
				return false
			}
		}
	}
	return op.kind != opOrFrom
}
