package sekai

import (
	"go.uber.org/zap"
)

// IDFlags are the traits of an id, derived from the tags on its
// relationship (or component) entity.
type IDFlags uint32

const (
	IDDontInherit IDFlags = 1 << iota
	IDAlwaysOverride
	IDExclusive
	IDTraversable
	IDCanToggle
	IDIsWildcard
	IDIsPair
)

// IDRecord is the registry entry of an id. It indexes the tables that
// contain the id and links pair records to their wildcard records.
type IDRecord struct {
	id       ID
	refs     int32
	flags    IDFlags
	typeInfo *TypeInfo
	cache    tableCache

	// parent is the (R,*) record of a (R,T) pair.
	parent *IDRecord
	// first links (R,T) records of the same relationship, headed by (R,*).
	first idrLink
	// second links (R,T) records of the same target, headed by (*,T).
	second idrLink
}

type idrLink struct {
	prev, next *IDRecord
}

// ID returns the id the record indexes.
func (idr *IDRecord) ID() ID { return idr.id }

// Flags returns the trait flags of the id.
func (idr *IDRecord) Flags() IDFlags { return idr.flags }

// TypeInfo returns the storage information of the id, or nil for tags.
func (idr *IDRecord) TypeInfo() *TypeInfo { return idr.typeInfo }

// Refs returns the number of claims on the record.
func (idr *IDRecord) Refs() int { return int(idr.refs) }

// TableCount returns the number of non-empty tables that hold the id.
func (idr *IDRecord) TableCount() int { return idr.cache.tableCount() }

// EmptyTableCount returns the number of empty tables that hold the id.
func (idr *IDRecord) EmptyTableCount() int { return idr.cache.emptyCount() }

// Tables calls fn for each table holding the id, non-empty tables first,
// in the order they were registered.
func (idr *IDRecord) Tables(includeEmpty bool, fn func(t *Table, tr *TableRecord) bool) {
	it := idr.cache.iter(includeEmpty)
	for node := it.next(); node != nil; node = it.next() {
		if !fn(node.table, &node.table.records[node.record]) {
			return
		}
	}
}

// Relationships calls fn for every (R,T) record chained to a (R,*) record.
func (idr *IDRecord) Relationships(fn func(*IDRecord)) {
	for cur := idr.first.next; cur != nil; cur = cur.first.next {
		fn(cur)
	}
}

// Targets calls fn for every (R,T) record chained to a (*,T) record.
func (idr *IDRecord) Targets(fn func(*IDRecord)) {
	for cur := idr.second.next; cur != nil; cur = cur.second.next {
		fn(cur)
	}
}

const loRecordCount = 256

// idRegistry maps ids to records. Small plain ids use a dense array.
type idRegistry struct {
	lo    [loRecordCount]*IDRecord
	hi    map[ID]*IDRecord
	count int
}

func (r *idRegistry) init() {
	r.hi = make(map[ID]*IDRecord, 256)
}

func (w *World) idRecordGet(id ID) *IDRecord {
	if id < loRecordCount {
		return w.ids.lo[id]
	}
	return w.ids.hi[id]
}

func (w *World) idRecordEnsure(id ID) *IDRecord {
	if idr := w.idRecordGet(id); idr != nil {
		return idr
	}
	return w.idRecordNew(id)
}

func (w *World) idRecordNew(id ID) *IDRecord {
	idr := &IDRecord{id: id}
	idr.cache.init()
	if id < loRecordCount {
		w.ids.lo[id] = idr
	} else {
		w.ids.hi[id] = idr
	}
	w.ids.count++

	if id.IsPair() {
		idr.flags |= IDIsPair
		firstLo, secondLo := id.firstIndex(), id.secondIndex()
		if isWildcardIndex(firstLo) || isWildcardIndex(secondLo) {
			idr.flags |= IDIsWildcard
		}
		if rel := w.entities.aliveAt(firstLo); rel != 0 && !isWildcardIndex(firstLo) {
			idr.flags |= w.traitFlags(rel)
			w.markEntity(rel, rowIsID)
		}
		if !isWildcardIndex(firstLo) && !isWildcardIndex(secondLo) && secondLo != 0 {
			parent := w.idRecordEnsure(pairOf(firstLo, uint32(Wildcard)))
			idr.parent = parent
			parent.refs++
			idrInsertAfter(parent, idr, true)

			byTarget := w.idRecordEnsure(pairOf(uint32(Wildcard), secondLo))
			byTarget.refs++
			idrInsertAfter(byTarget, idr, false)

			if tgt := w.entities.aliveAt(secondLo); tgt != 0 {
				w.markEntity(tgt, rowIsTarget)
				if idr.flags&IDTraversable != 0 {
					w.setTraversable(tgt, true)
				}
			}
		}
	} else if !id.IsWildcard() && !id.HasRole() {
		e := id.Entity()
		if w.entities.isAlive(e) {
			idr.flags |= w.traitFlags(e)
			w.markEntity(e, rowIsID)
		}
	} else if id.IsWildcard() {
		idr.flags |= IDIsWildcard
	}
	idr.typeInfo = w.typeInfoForID(id)

	w.info.IDRecordCount++
	if ce := w.logger.Check(zap.DebugLevel, "id record created"); ce != nil {
		ce.Write(zap.String("id", w.idString(id)), zap.Stringer("type", idr.typeInfo))
	}
	return idr
}

// idrInsertAfter links elem into the chain headed by head.
func idrInsertAfter(head, elem *IDRecord, first bool) {
	if first {
		elem.first.prev = head
		elem.first.next = head.first.next
		if head.first.next != nil {
			head.first.next.first.prev = elem
		}
		head.first.next = elem
		return
	}
	elem.second.prev = head
	elem.second.next = head.second.next
	if head.second.next != nil {
		head.second.next.second.prev = elem
	}
	head.second.next = elem
}

func idrUnlink(elem *IDRecord) {
	if p := elem.first.prev; p != nil {
		p.first.next = elem.first.next
	}
	if n := elem.first.next; n != nil {
		n.first.prev = elem.first.prev
	}
	if p := elem.second.prev; p != nil {
		p.second.next = elem.second.next
	}
	if n := elem.second.next; n != nil {
		n.second.prev = elem.second.prev
	}
	elem.first = idrLink{}
	elem.second = idrLink{}
}

func (w *World) idRecordClaim(idr *IDRecord) {
	idr.refs++
}

// idRecordRelease drops a claim and frees the record when none remain.
func (w *World) idRecordRelease(idr *IDRecord) {
	idr.refs--
	ecsAssert(idr.refs >= 0, CodeInternal, "id record %s released too often", w.idString(idr.id))
	if idr.refs == 0 {
		w.idRecordFree(idr)
	}
}

func (w *World) idRecordFree(idr *IDRecord) {
	ecsAssert(idr.cache.tableCount() == 0 && idr.cache.emptyCount() == 0, CodeInternal,
		"id record %s freed while tables reference it", w.idString(idr.id))
	id := idr.id
	if id < loRecordCount {
		w.ids.lo[id] = nil
	} else {
		delete(w.ids.hi, id)
	}
	w.ids.count--
	w.info.IDRecordCount--

	if idr.parent != nil {
		byTarget := w.idRecordGet(pairOf(uint32(Wildcard), id.secondIndex()))
		idrUnlink(idr)
		if tgt := w.entities.aliveAt(id.secondIndex()); tgt != 0 && idr.flags&IDTraversable != 0 {
			w.setTraversable(tgt, false)
		}
		parent := idr.parent
		idr.parent = nil
		w.idRecordRelease(parent)
		if byTarget != nil {
			w.idRecordRelease(byTarget)
		}
	}
	if ce := w.logger.Check(zap.DebugLevel, "id record freed"); ce != nil {
		ce.Write(zap.String("id", w.idString(id)))
	}
}

// IDRecord returns the registry entry for an id, or nil.
func (w *World) IDRecord(id ID) *IDRecord {
	return w.idRecordGet(id)
}

// traitFlags derives id flags from the tags on an entity.
func (w *World) traitFlags(e Entity) IDFlags {
	meta := w.entities.get(e)
	if meta == nil || meta.table == nil {
		return 0
	}
	t := meta.table
	var flags IDFlags
	if t.hasID(ID(DontInherit)) {
		flags |= IDDontInherit
	}
	if t.hasID(ID(AlwaysOverride)) {
		flags |= IDAlwaysOverride
	}
	if t.hasID(ID(Exclusive)) {
		flags |= IDExclusive
	}
	if t.hasID(ID(Traversable)) {
		flags |= IDTraversable
	}
	if t.hasID(ID(CanToggle)) {
		flags |= IDCanToggle
	}
	return flags
}

// refreshTraitFlags recomputes the flags of every record built from e after
// a trait tag was added to or removed from it.
func (w *World) refreshTraitFlags(e Entity) {
	flags := w.traitFlags(e)
	const traitMask = IDDontInherit | IDAlwaysOverride | IDExclusive | IDTraversable | IDCanToggle
	update := func(idr *IDRecord) {
		was := idr.flags & IDTraversable
		idr.flags = idr.flags&^traitMask | flags
		if idr.parent != nil && was != idr.flags&IDTraversable {
			if tgt := w.entities.aliveAt(idr.id.secondIndex()); tgt != 0 {
				w.setTraversable(tgt, idr.flags&IDTraversable != 0)
			}
		}
	}
	if idr := w.idRecordGet(ID(e)); idr != nil {
		update(idr)
	}
	if rel := w.idRecordGet(Pair(e, Wildcard)); rel != nil {
		update(rel)
		rel.Relationships(update)
	}
}
