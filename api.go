package sekai

import (
	"unsafe"

	"go.uber.org/zap"
)

// Add adds an id to an entity. Adding an id the entity already has is a
// no-op. Adding a pair of an Exclusive relationship replaces the previous
// target. If the entity is invalid, Add does nothing.
//
// Parameters:
//   - e: The entity to modify.
//   - id: A component, tag, pair or role id. Wildcards are not allowed.
func (w *World) Add(e Entity, id ID) {
	mustBeConcrete(id.StripRole())
	if w.stage.depth > 0 {
		w.enqueue(command{kind: cmdAdd, entity: e, id: id})
		return
	}
	meta := w.entities.get(e)
	if meta == nil {
		return
	}
	if id.IsPair() {
		ecsAssert(id.firstIndex() != uint32(Flag), CodeInvalidParameter, "cannot add (Flag, ...) pairs")
		ecsAssert(w.entities.aliveAt(id.secondIndex()) != 0, CodeInvalidParameter,
			"target of %s is not alive", w.idString(id))
	}
	if id.IsToggle() {
		ecsAssert(w.traitFlags(id.StripRole().Entity())&IDCanToggle != 0, CodeInvalidParameter,
			"%s is not toggleable", w.idString(id.StripRole()))
	}
	src := meta.table
	dst, diff := w.tableTraverseAdd(src, id)
	if dst == src {
		return
	}
	w.commitMove(e, meta, dst, diff)
	w.afterAdd(e, diff)
}

// Remove removes an id from an entity. A wildcard id removes every matching
// id. Removing an id the entity does not have is a no-op.
//
// Parameters:
//   - e: The entity to modify.
//   - id: The id or wildcard pattern to remove.
func (w *World) Remove(e Entity, id ID) {
	ecsAssert(id != 0, CodeInvalidParameter, "id is zero")
	if w.stage.depth > 0 {
		w.enqueue(command{kind: cmdRemove, entity: e, id: id})
		return
	}
	meta := w.entities.get(e)
	if meta == nil {
		return
	}
	src := meta.table
	dst, diff := w.tableTraverseRemove(src, id)
	if dst == src {
		return
	}
	w.commitMove(e, meta, dst, diff)
	w.afterRemove(e, diff)
}

// commitMove moves an entity to dst, moving shared component values and
// constructing the new ones.
func (w *World) commitMove(e Entity, meta *entityMeta, dst *Table, diff *tableDiff) {
	src := meta.table
	if src == dst {
		return
	}
	if len(diff.removed) > 0 && w.events.HasObservers(OnRemove) {
		w.emit(&EventDesc{Event: OnRemove, Entity: e, Table: src, Other: dst, IDs: diff.removed})
	}
	srcRow := meta.rowIndex()
	dstRow := w.tableAppend(dst, e, false)
	w.tableMove(e, dst, dstRow, src, srcRow, true)
	w.tableDelete(src, srcRow, false)
	meta.table = dst
	meta.setRow(dstRow)
	if meta.row&rowIsTraversable != 0 {
		w.tableTraversableDelta(src, -1)
		w.tableTraversableDelta(dst, 1)
	}
	w.info.StructuralVersion++
	if len(diff.added) > 0 && w.events.HasObservers(OnAdd) {
		w.emit(&EventDesc{Event: OnAdd, Entity: e, Table: dst, Other: src, IDs: diff.added})
	}
	w.sanitize(src, dst)
}

func isTrait(id ID) bool {
	switch id {
	case ID(DontInherit), ID(AlwaysOverride), ID(Exclusive), ID(Traversable), ID(CanToggle):
		return true
	}
	return false
}

func (w *World) afterAdd(e Entity, diff *tableDiff) {
	for _, id := range diff.added {
		switch {
		case isTrait(id):
			w.refreshTraitFlags(e)
		case id.IsPair() && id.firstIndex() == uint32(IsA):
			if base := w.entities.aliveAt(id.secondIndex()); base != 0 {
				w.instantiate(e, base)
			}
		case id.IsPair() && id.firstIndex() == uint32(ChildOf):
			w.rescope(e)
		}
	}
}

func (w *World) afterRemove(e Entity, diff *tableDiff) {
	for _, id := range diff.removed {
		switch {
		case isTrait(id):
			w.refreshTraitFlags(e)
		case id.IsPair() && id.firstIndex() == uint32(ChildOf):
			w.rescope(e)
		}
	}
}

// instantiate copies the components of base that must not be shared into
// the instance.
func (w *World) instantiate(e, base Entity) {
	bmeta := w.entities.get(base)
	if bmeta == nil || e == base {
		return
	}
	bt := bmeta.table
	count := len(bt.typ)
	for ci := range bt.columns {
		id := bt.columns[ci].id
		idr := bt.records[bt.columnMap[count+ci]].idr
		if idr.flags&IDAlwaysOverride == 0 && !bt.hasID(Override(id)) {
			continue
		}
		meta := w.entities.get(e)
		if meta.table.columnIndex(id) >= 0 {
			continue
		}
		w.Add(e, id)
		meta = w.entities.get(e)
		bmeta = w.entities.get(base)
		dc := &meta.table.columns[meta.table.columnIndex(id)]
		sc := &bmeta.table.columns[bmeta.table.columnIndex(id)]
		dc.ti.copy(dc.ptr(meta.rowIndex()), sc.ptr(bmeta.rowIndex()), 1)
	}
}

// Has reports whether the entity has the id, either itself or inherited
// through IsA. Wildcard ids are allowed.
func (w *World) Has(e Entity, id ID) bool {
	meta := w.entities.get(e)
	if meta == nil {
		return false
	}
	if w.tableHas(meta.table, id) {
		return true
	}
	if meta.table.flags&TableHasIsA == 0 {
		return false
	}
	if idr := w.idRecordGet(id); idr == nil || idr.flags&IDDontInherit != 0 {
		return false
	}
	_, _, _, ok := w.searchUp(meta.table, id, IsA, 0)
	return ok
}

// Owns reports whether the entity itself has the id.
func (w *World) Owns(e Entity, id ID) bool {
	meta := w.entities.get(e)
	return meta != nil && w.tableHas(meta.table, id)
}

func (w *World) tableHas(t *Table, id ID) bool {
	if !id.IsWildcard() {
		return t.hasID(id)
	}
	idr := w.idRecordGet(id)
	return idr != nil && idr.cache.has(t)
}

// Target returns the index-th target of the relationship rel on e, or 0.
func (w *World) Target(e, rel Entity, index int) Entity {
	meta := w.entities.get(e)
	if meta == nil {
		return 0
	}
	idr := w.idRecordGet(Pair(rel, Wildcard))
	if idr == nil {
		return 0
	}
	ri, ok := idr.cache.get(meta.table)
	if !ok {
		return 0
	}
	tr := &meta.table.records[ri]
	if index < 0 || index >= int(tr.count) {
		return 0
	}
	return w.entities.aliveAt(meta.table.typ[int(tr.index)+index].secondIndex())
}

// Delete deletes an entity. Its children are deleted and every id that
// refers to it is removed from other entities.
func (w *World) Delete(e Entity) {
	if w.stage.depth > 0 {
		w.enqueue(command{kind: cmdDelete, entity: e})
		return
	}
	meta := w.entities.get(e)
	if meta == nil {
		return
	}
	if meta.row&(rowIsTarget|rowIsID) != 0 {
		w.cleanupReferences(e)
		if meta = w.entities.get(e); meta == nil {
			return
		}
	}
	t := meta.table
	if w.events.HasObservers(OnRemove) && len(t.typ) > 0 {
		w.emit(&EventDesc{Event: OnRemove, Entity: e, Table: t, IDs: t.typ})
	}
	w.tableDelete(t, meta.rowIndex(), true)
	w.entityFree(e)
	w.info.StructuralVersion++
	w.sanitize(t)
}

func (w *World) cleanupReferences(e Entity) {
	if w.idRecordGet(Pair(ChildOf, e)) != nil {
		w.DeleteWith(Pair(ChildOf, e))
	}
	for _, id := range []ID{Pair(Wildcard, e), ID(e), Pair(e, Wildcard)} {
		if w.idRecordGet(id) != nil {
			w.RemoveAll(id)
		}
	}
	if ce := w.logger.Check(zap.DebugLevel, "references cleaned up"); ce != nil {
		ce.Write(zap.Stringer("entity", e))
	}
}

// Enable enables or disables a toggleable component on an entity. The
// entity gets the TOGGLE role for the component if it does not have it yet.
func (w *World) Enable(e Entity, component Entity, enabled bool) {
	if w.stage.depth > 0 {
		w.enqueue(command{kind: cmdEnable, entity: e, id: ID(component), enable: enabled})
		return
	}
	meta := w.entities.get(e)
	if meta == nil {
		return
	}
	tid := Toggle(ID(component))
	if !meta.table.hasID(tid) {
		w.Add(e, tid)
	}
	t := meta.table
	i := t.toggleIndex(ID(component))
	t.toggles[i].bits.assign(meta.rowIndex(), enabled)
}

// IsEnabled reports whether a component is enabled on an entity. Components
// without the TOGGLE role are enabled when present.
func (w *World) IsEnabled(e Entity, component Entity) bool {
	meta := w.entities.get(e)
	if meta == nil {
		return false
	}
	if i := meta.table.toggleIndex(ID(component)); i >= 0 {
		return meta.table.toggles[i].bits.containsBit(meta.rowIndex())
	}
	return meta.table.hasID(ID(component))
}

// ptrOf returns the address of the component id of e, searching IsA bases
// when inherit is set.
func (w *World) ptrOf(e Entity, id ID, inherit bool) unsafe.Pointer {
	meta := w.entities.get(e)
	if meta == nil {
		return nil
	}
	t := meta.table
	if ci := t.columnIndex(id); ci >= 0 {
		return t.columns[ci].ptr(meta.rowIndex())
	}
	if !inherit || t.flags&TableHasIsA == 0 {
		return nil
	}
	if idr := w.idRecordGet(id); idr == nil || idr.flags&IDDontInherit != 0 {
		return nil
	}
	src, st, col, ok := w.searchUp(t, id, IsA, 0)
	if !ok {
		return nil
	}
	ci := st.columnOf(int(col))
	if ci < 0 {
		return nil
	}
	smeta := w.entities.get(src)
	return st.columns[ci].ptr(smeta.rowIndex())
}

// GetID returns a pointer to the value of id on e (own or inherited), or
// nil.
func (w *World) GetID(e Entity, id ID) unsafe.Pointer { return w.ptrOf(e, id, true) }
