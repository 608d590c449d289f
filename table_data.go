package sekai

// tableAppend adds an entity to the end of a table and returns its row.
// Columns are constructed when construct is set, otherwise the caller is
// expected to fill them, as tableMove does.
func (w *World) tableAppend(t *Table, e Entity, construct bool) int {
	t.checkUnlocked()
	row := len(t.entities)
	t.entities = append(t.entities, e)
	for i := range t.columns {
		c := &t.columns[i]
		c.appendRows(1)
		if construct {
			c.ti.ctor(c.ptr(row), 1)
		}
		c.dirty++
	}
	for i := range t.toggles {
		t.toggles[i].bits.appendBit(true)
	}
	if row == 0 {
		w.tableSetEmpty(t, false)
	}
	return row
}

// tableDelete removes the entity at row by moving the last entity into its
// place. The moved entity's record is patched. When destruct is set the
// removed component values are destructed and OnRemove hooks run.
func (w *World) tableDelete(t *Table, row int, destruct bool) {
	t.checkUnlocked()
	count := len(t.entities)
	ecsAssert(row >= 0 && row < count, CodeOutOfRange, "row %d out of range for table %d", row, t.id)
	last := count - 1
	e := t.entities[row]
	if row != last {
		moved := t.entities[last]
		t.entities[row] = moved
		if meta := w.entities.get(moved); meta != nil {
			meta.setRow(row)
		}
	}
	t.entities = t.entities[:last]

	for i := range t.columns {
		c := &t.columns[i]
		if destruct {
			if h := c.ti.Hooks.OnRemove; h != nil {
				h(w, e, c.ptr(row))
			}
			c.ti.dtor(c.ptr(row), 1)
		}
		if row != last {
			c.ti.move(c.ptr(row), c.ptr(last), 1)
		}
		c.removeLast()
		c.dirty++
	}
	for i := range t.toggles {
		t.toggles[i].bits.removeBit(row)
	}
	if last == 0 {
		w.tableSetEmpty(t, true)
	}
}

// tableMove moves the component values of an entity from src to dst. Both
// type lists are sorted, so columns are walked in lockstep: shared columns
// are moved, dst-only columns constructed and src-only columns destructed.
func (w *World) tableMove(e Entity, dst *Table, dstRow int, src *Table, srcRow int, construct bool) {
	if src == nil {
		if construct {
			w.tableConstructRow(e, dst, dstRow)
		}
		return
	}
	iDst, iSrc := 0, 0
	for iDst < len(dst.columns) && iSrc < len(src.columns) {
		dc, sc := &dst.columns[iDst], &src.columns[iSrc]
		switch {
		case dc.id == sc.id:
			dc.ti.move(dc.ptr(dstRow), sc.ptr(srcRow), 1)
			iDst++
			iSrc++
		case dc.id < sc.id:
			if construct {
				dc.ti.ctor(dc.ptr(dstRow), 1)
				if h := dc.ti.Hooks.OnAdd; h != nil {
					h(w, e, dc.ptr(dstRow))
				}
			}
			iDst++
		default:
			if h := sc.ti.Hooks.OnRemove; h != nil {
				h(w, e, sc.ptr(srcRow))
			}
			sc.ti.dtor(sc.ptr(srcRow), 1)
			iSrc++
		}
	}
	for ; iDst < len(dst.columns); iDst++ {
		if construct {
			dc := &dst.columns[iDst]
			dc.ti.ctor(dc.ptr(dstRow), 1)
			if h := dc.ti.Hooks.OnAdd; h != nil {
				h(w, e, dc.ptr(dstRow))
			}
		}
	}
	for ; iSrc < len(src.columns); iSrc++ {
		sc := &src.columns[iSrc]
		if h := sc.ti.Hooks.OnRemove; h != nil {
			h(w, e, sc.ptr(srcRow))
		}
		sc.ti.dtor(sc.ptr(srcRow), 1)
	}
	for i := range dst.toggles {
		if j := src.toggleIndex(dst.toggles[i].id); j >= 0 {
			dst.toggles[i].bits.assign(dstRow, src.toggles[j].bits.containsBit(srcRow))
		}
	}
}

func (w *World) tableConstructRow(e Entity, t *Table, row int) {
	for i := range t.columns {
		c := &t.columns[i]
		c.ti.ctor(c.ptr(row), 1)
		if h := c.ti.Hooks.OnAdd; h != nil {
			h(w, e, c.ptr(row))
		}
	}
}

// tableMerge moves all entities of src to the end of dst. With a nil dst
// the entities of src are deleted.
func (w *World) tableMerge(dst, src *Table) {
	if dst == src {
		return
	}
	src.checkUnlocked()
	count := len(src.entities)
	if count == 0 {
		return
	}
	if dst == nil {
		w.tableClear(src)
		return
	}
	dst.checkUnlocked()
	dstStart := len(dst.entities)
	dst.entities = append(dst.entities, src.entities...)

	iDst, iSrc := 0, 0
	for iDst < len(dst.columns) || iSrc < len(src.columns) {
		var dc, sc *column
		if iDst < len(dst.columns) {
			dc = &dst.columns[iDst]
		}
		if iSrc < len(src.columns) {
			sc = &src.columns[iSrc]
		}
		switch {
		case dc != nil && sc != nil && dc.id == sc.id:
			dc.appendRows(count)
			dc.ti.move(dc.ptr(dstStart), sc.base, count)
			dc.dirty++
			iDst++
			iSrc++
		case sc == nil || (dc != nil && dc.id < sc.id):
			dc.appendRows(count)
			for i := 0; i < count; i++ {
				dc.ti.ctor(dc.ptr(dstStart+i), 1)
				if h := dc.ti.Hooks.OnAdd; h != nil {
					h(w, dst.entities[dstStart+i], dc.ptr(dstStart+i))
				}
			}
			dc.dirty++
			iDst++
		default:
			for i := 0; i < count; i++ {
				if h := sc.ti.Hooks.OnRemove; h != nil {
					h(w, src.entities[i], sc.ptr(i))
				}
			}
			sc.ti.dtor(sc.base, count)
			iSrc++
		}
	}
	for i := range dst.toggles {
		j := src.toggleIndex(dst.toggles[i].id)
		for row := 0; row < count; row++ {
			enabled := j < 0 || src.toggles[j].bits.containsBit(row)
			dst.toggles[i].bits.appendBit(enabled)
		}
	}
	for i, e := range src.entities {
		meta := w.entities.get(e)
		meta.table = dst
		meta.setRow(dstStart + i)
	}
	if src.traversableCount > 0 {
		dst.traversableCount += src.traversableCount
		dst.flags |= TableHasTraversable
		src.traversableCount = 0
		src.flags &^= TableHasTraversable
		w.traversableVersion++
	}
	w.tableResetData(src)
	if dstStart == 0 {
		w.tableSetEmpty(dst, false)
	}
	w.tableSetEmpty(src, true)
	w.info.StructuralVersion++
}

// tableClear deletes all entities of a table, running destructors.
func (w *World) tableClear(t *Table) {
	t.checkUnlocked()
	if len(t.entities) == 0 {
		return
	}
	for i := range t.columns {
		c := &t.columns[i]
		if h := c.ti.Hooks.OnRemove; h != nil {
			for row, e := range t.entities {
				h(w, e, c.ptr(row))
			}
		}
		c.ti.dtor(c.base, c.count)
	}
	ents := t.entities
	w.tableResetData(t)
	for _, e := range ents {
		w.entityFree(e)
	}
	w.tableSetEmpty(t, true)
	w.info.StructuralVersion++
}

func (w *World) tableResetData(t *Table) {
	t.entities = t.entities[:0]
	for i := range t.columns {
		t.columns[i].reset()
		t.columns[i].dirty++
	}
	for i := range t.toggles {
		t.toggles[i].bits.clear()
	}
}

// tableSetEmpty moves the table between the empty and non-empty lists of
// all its id records.
func (w *World) tableSetEmpty(t *Table, empty bool) {
	for i := range t.records {
		t.records[i].idr.cache.setEmpty(t, empty)
	}
	if empty {
		w.info.EmptyTableCount++
		w.emit(&EventDesc{Event: OnTableEmpty, Table: t})
	} else {
		w.info.EmptyTableCount--
		w.emit(&EventDesc{Event: OnTableFill, Table: t})
	}
}

// checkTableSanity verifies the row/entity symmetry and the cache
// registration of a table. It panics on the first violation.
func (w *World) checkTableSanity(t *Table) {
	count := len(t.entities)
	for i := range t.columns {
		ecsAssert(t.columns[i].count == count, CodeInternal,
			"table %d: column %d has %d rows, expected %d", t.id, i, t.columns[i].count, count)
	}
	for i := range t.toggles {
		ecsAssert(t.toggles[i].bits.count == count, CodeInternal,
			"table %d: toggle %d has %d rows, expected %d", t.id, i, t.toggles[i].bits.count, count)
	}
	for row, e := range t.entities {
		meta := w.entities.get(e)
		ecsAssert(meta != nil, CodeInternal, "table %d: row %d holds dead entity %s", t.id, row, e)
		ecsAssert(meta.table == t && meta.rowIndex() == row, CodeInternal,
			"table %d: entity %s record points to row %d", t.id, e, meta.rowIndex())
	}
	for i := range t.records {
		tr := &t.records[i]
		ri, ok := tr.idr.cache.get(t)
		ecsAssert(ok && int(ri) == i, CodeInternal,
			"table %d: record %d not registered with %s", t.id, i, w.idString(tr.idr.id))
	}
}

// CheckSanity runs the table sanity checks on every table.
func (w *World) CheckSanity() {
	w.Tables(func(t *Table) bool {
		w.checkTableSanity(t)
		return true
	})
}
