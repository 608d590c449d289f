package sekai

import (
	"slices"
	"sync/atomic"

	"go.uber.org/zap"
)

// TableFlags summarize the type of a table so queries can filter without
// scanning ids.
type TableFlags uint32

const (
	TableHasBuiltins TableFlags = 1 << iota
	TableIsPrefab
	TableIsDisabled
	TableNotQueryable
	TableHasPairs
	TableHasIsA
	TableHasChildOf
	TableHasToggle
	TableHasOverrides
	TableHasTraversable
)

// TableRecord links a table to the id record of one of the ids (or
// wildcard patterns) it matches.
type TableRecord struct {
	idr    *IDRecord
	table  *Table
	index  int16 // first matching position in the type
	count  int16 // number of matching positions
	column int16 // data column of the first match, or -1
}

// IDRecord returns the record of the matched id.
func (tr *TableRecord) IDRecord() *IDRecord { return tr.idr }

// Table returns the table of the record.
func (tr *TableRecord) Table() *Table { return tr.table }

// Index returns the first position in the table type matched by the id.
func (tr *TableRecord) Index() int { return int(tr.index) }

// Count returns how many consecutive type positions the id matches.
func (tr *TableRecord) Count() int { return int(tr.count) }

// Column returns the data column of the first match, or -1 for tags.
func (tr *TableRecord) Column() int { return int(tr.column) }

// TableHandle is a stable reference to a table that detects deletion.
type TableHandle struct {
	Index      uint32
	Generation uint32
}

// Table stores all entities that have exactly the same set of ids.
type Table struct {
	id     uint64
	handle TableHandle
	typ    []ID
	flags  TableFlags
	hash   uint64

	entities []Entity
	columns  []column
	// columnMap has len(typ)+len(columns) entries: the column of each type
	// position (or -1), followed by the type position of each column.
	columnMap []int16
	records   []TableRecord
	toggles   []toggleColumn
	storage   *storageTable

	lock             atomic.Int32
	traversableCount int32
	node             graphNode
	freed            bool
}

// ID returns the unique id of the table.
func (t *Table) ID() uint64 { return t.id }

// Handle returns a handle that can be resolved with World.TableByHandle.
func (t *Table) Handle() TableHandle { return t.handle }

// Type returns the sorted ids of the table. The slice must not be modified.
func (t *Table) Type() []ID { return t.typ }

// Flags returns the table flags.
func (t *Table) Flags() TableFlags { return t.flags }

// Count returns the number of entities in the table.
func (t *Table) Count() int { return len(t.entities) }

// Entities returns the entities of the table in row order.
func (t *Table) Entities() []Entity { return t.entities }

// ColumnCount returns the number of data columns.
func (t *Table) ColumnCount() int { return len(t.columns) }

// Records returns the table records of the table.
func (t *Table) Records() []TableRecord { return t.records }

// TraversableCount returns how many entities in the table are targets of a
// traversable relationship.
func (t *Table) TraversableCount() int { return int(t.traversableCount) }

// Lock increments the lock counter. Structural changes to a locked table
// panic.
func (t *Table) Lock() { t.lock.Add(1) }

// Unlock decrements the lock counter.
func (t *Table) Unlock() {
	n := t.lock.Add(-1)
	ecsAssert(n >= 0, CodeInternal, "table %d unlocked more often than locked", t.id)
}

// IsLocked reports whether the table is being iterated.
func (t *Table) IsLocked() bool { return t.lock.Load() > 0 }

func (t *Table) checkUnlocked() {
	ecsAssert(t.lock.Load() == 0, CodeLockedTable, "table %d is locked: %v", t.id, ErrLocked)
}

// hasID reports whether the exact id is in the type.
func (t *Table) hasID(id ID) bool { return typeIndex(t.typ, id) >= 0 }

// columnOf returns the column index of a type position, or -1.
func (t *Table) columnOf(typeIndex int) int {
	if typeIndex < 0 || typeIndex >= len(t.typ) {
		return -1
	}
	return int(t.columnMap[typeIndex])
}

// columnIndex returns the data column of an id, or -1.
func (t *Table) columnIndex(id ID) int {
	return t.columnOf(typeIndex(t.typ, id))
}

// ColumnIndex returns the data column of id in t, or -1 when t has no such
// column.
func (t *Table) ColumnIndex(id ID) int { return t.columnIndex(id) }

func (t *Table) toggleIndex(id ID) int {
	for i := range t.toggles {
		if t.toggles[i].id == id {
			return i
		}
	}
	return -1
}

// tableRegistry owns all tables. Tables are found by the hash of their type
// and addressed by generation-checked handles.
type tableRegistry struct {
	byHash      map[uint64][]*Table
	slots       []*Table
	generations []uint32
	free        []uint32
	root        *Table
	nextID      uint64
}

func (r *tableRegistry) init() {
	r.byHash = make(map[uint64][]*Table, 64)
	r.nextID = 1
}

func (w *World) tableFindByType(typ []ID) *Table {
	if len(typ) == 0 {
		return w.tables.root
	}
	for _, t := range w.tables.byHash[hashType(typ)] {
		if slices.Equal(t.typ, typ) {
			return t
		}
	}
	return nil
}

// tableFindOrCreate returns the table for a sorted, deduplicated type.
func (w *World) tableFindOrCreate(typ []ID) *Table {
	if t := w.tableFindByType(typ); t != nil {
		return t
	}
	return w.tableNew(slices.Clone(typ))
}

func (w *World) tableNew(typ []ID) *Table {
	for _, id := range typ {
		mustBeConcrete(id.StripRole())
	}
	t := &Table{id: w.tables.nextID, typ: typ, hash: hashType(typ)}
	w.tables.nextID++
	w.tableRegister(t)

	w.tableInitFlags(t)
	w.tableInitRecords(t)
	w.tableInitData(t)
	t.node.init()

	w.info.TableCount++
	w.info.EmptyTableCount++
	w.info.TablesCreatedTotal++
	if ce := w.logger.Check(zap.DebugLevel, "table created"); ce != nil {
		ce.Write(zap.Uint64("table", t.id), zap.String("type", w.typeString(t.typ)))
	}
	w.queriesOnTableCreate(t)
	w.emit(&EventDesc{Event: OnTableCreate, Table: t, IDs: t.typ})
	return t
}

func (w *World) tableRegister(t *Table) {
	var index uint32
	if n := len(w.tables.free); n > 0 {
		index = w.tables.free[n-1]
		w.tables.free = w.tables.free[:n-1]
		w.tables.slots[index] = t
	} else {
		index = uint32(len(w.tables.slots))
		w.tables.slots = append(w.tables.slots, t)
		w.tables.generations = append(w.tables.generations, 0)
	}
	t.handle = TableHandle{Index: index, Generation: w.tables.generations[index]}
	if len(t.typ) > 0 {
		w.tables.byHash[t.hash] = append(w.tables.byHash[t.hash], t)
	}
}

func (w *World) tableUnregister(t *Table) {
	if bucket := w.tables.byHash[t.hash]; len(bucket) > 0 {
		bucket = slices.DeleteFunc(bucket, func(o *Table) bool { return o == t })
		if len(bucket) == 0 {
			delete(w.tables.byHash, t.hash)
		} else {
			w.tables.byHash[t.hash] = bucket
		}
	}
	index := t.handle.Index
	w.tables.slots[index] = nil
	w.tables.generations[index]++
	w.tables.free = append(w.tables.free, index)
}

// TableByHandle resolves a handle, returning ErrStaleTable if the table was
// deleted.
func (w *World) TableByHandle(h TableHandle) (*Table, error) {
	if int(h.Index) >= len(w.tables.slots) {
		return nil, ErrStaleTable
	}
	t := w.tables.slots[h.Index]
	if t == nil || w.tables.generations[h.Index] != h.Generation {
		return nil, ErrStaleTable
	}
	return t, nil
}

// RootTable returns the table with the empty type.
func (w *World) RootTable() *Table { return w.tables.root }

// Tables calls fn for each live table in registration slot order.
func (w *World) Tables(fn func(*Table) bool) {
	for _, t := range w.tables.slots {
		if t != nil && !fn(t) {
			return
		}
	}
}

// TableOf returns the table of an entity, or nil when it is not alive.
func (w *World) TableOf(e Entity) *Table {
	if meta := w.entities.get(e); meta != nil {
		return meta.table
	}
	return nil
}

func (w *World) tableInitFlags(t *Table) {
	for _, id := range t.typ {
		if id < ID(FirstUserEntity) {
			t.flags |= TableHasBuiltins
		}
		switch id {
		case ID(Prefab):
			t.flags |= TableIsPrefab
		case ID(Disabled):
			t.flags |= TableIsDisabled
		case ID(NotQueryable):
			t.flags |= TableNotQueryable
		}
		switch {
		case id.IsPair():
			t.flags |= TableHasPairs
			switch id.firstIndex() {
			case uint32(IsA):
				t.flags |= TableHasIsA
			case uint32(ChildOf):
				t.flags |= TableHasChildOf
			}
		case id.IsToggle():
			t.flags |= TableHasToggle
		case id.IsOverride():
			t.flags |= TableHasOverrides
		}
	}
}

// tableInitRecords builds the table records in a fixed order: one per type
// element, role records, (R,*) per relationship, (*,T) per target, then
// (*), (*,*), Any and the (ChildOf,0) root marker.
func (w *World) tableInitRecords(t *Table) {
	typ := t.typ
	count := len(typ)
	records := make([]TableRecord, 0, count+4)

	lastID, firstPair, firstRole := -1, -1, -1
	for i, id := range typ {
		switch {
		case id.IsPair():
			if firstPair == -1 {
				firstPair = i
			}
		case id.HasRole():
			if firstRole == -1 {
				firstRole = i
			}
		default:
			lastID = i
		}
	}

	for i, id := range typ {
		records = append(records, TableRecord{idr: w.idRecordEnsure(id), table: t, index: int16(i), count: 1, column: -1})
	}

	appendTo := func(id ID, index int) {
		idr := w.idRecordEnsure(id)
		if ri, ok := idr.cache.get(t); ok {
			records[ri].count++
			return
		}
		records = append(records, TableRecord{idr: idr, table: t, index: int16(index), count: 1, column: -1})
		idr.cache.insert(t, int32(len(records)-1))
	}

	if firstRole != -1 {
		for i := firstRole; i < count; i++ {
			id := typ[i]
			if !id.HasRole() {
				continue
			}
			appendTo(pairOf(uint32(Flag), id.StripRole().Entity().Index()), i)
		}
	}

	lastPair := -1
	if firstPair != -1 {
		cur := -1
		var rel uint32
		i := firstPair
		for ; i < count; i++ {
			id := typ[i]
			if !id.IsPair() {
				break
			}
			if cur == -1 || id.firstIndex() != rel {
				rel = id.firstIndex()
				parent := records[i].idr.parent
				ecsAssert(parent != nil, CodeInternal, "pair %s has no relationship record", w.idString(id))
				records = append(records, TableRecord{idr: parent, table: t, index: int16(i), count: 0, column: -1})
				cur = len(records) - 1
			}
			records[cur].count++
		}
		lastPair = i
		for j := firstPair; j < lastPair; j++ {
			appendTo(pairOf(uint32(Wildcard), typ[j].secondIndex()), j)
		}
	}

	if lastID >= 0 {
		records = append(records, TableRecord{idr: w.idrWildcard, table: t, index: 0, count: int16(lastID + 1), column: -1})
	}
	if firstPair != -1 && lastPair > firstPair {
		records = append(records, TableRecord{idr: w.idrWildcardPair, table: t, index: int16(firstPair), count: int16(lastPair - firstPair), column: -1})
	}
	if count > 0 {
		records = append(records, TableRecord{idr: w.idrAny, table: t, index: 0, count: 1, column: -1})
		if t.flags&TableHasChildOf == 0 {
			records = append(records, TableRecord{idr: w.idrChildOfRoot, table: t, index: 0, count: 1, column: -1})
		}
	}

	t.records = records
	for i := range records {
		idr := records[i].idr
		if !idr.cache.has(t) {
			idr.cache.insert(t, int32(i))
		}
		idr.refs++
		if idr.flags&IDAlwaysOverride != 0 {
			t.flags |= TableHasOverrides
		}
	}
}

// tableInitData attaches the shared storage table and creates the columns
// and the column map from its type infos.
func (w *World) tableInitData(t *Table) {
	count := len(t.typ)
	var dataIDs []ID
	for i := 0; i < count; i++ {
		if t.records[i].idr.typeInfo != nil {
			dataIDs = append(dataIDs, t.typ[i])
		}
	}
	t.storage = w.storageEnsure(dataIDs)
	t.storage.refs++

	columnCount := len(dataIDs)
	t.columnMap = make([]int16, count+columnCount)
	t.columns = make([]column, columnCount)
	ci := 0
	for i := 0; i < count; i++ {
		if t.records[i].idr.typeInfo == nil {
			t.columnMap[i] = -1
			continue
		}
		t.columnMap[i] = int16(ci)
		t.columnMap[count+ci] = int16(i)
		t.columns[ci] = newColumn(t.typ[i], t.storage.types[ci])
		ci++
	}
	for i := range t.records {
		tr := &t.records[i]
		// Any and the root marker never own a column.
		if tr.idr == w.idrAny || tr.idr == w.idrChildOfRoot {
			continue
		}
		if int(tr.index) < count {
			tr.column = t.columnMap[tr.index]
		}
	}
	for _, id := range t.typ {
		if id.IsToggle() {
			t.toggles = append(t.toggles, toggleColumn{id: id.StripRole()})
		}
	}
}

// tableFree deletes an empty table. Entities still in the table must have
// been moved or deleted.
func (w *World) tableFree(t *Table) {
	ecsAssert(t != w.tables.root, CodeInvalidOperation, "cannot delete the root table")
	ecsAssert(!t.freed, CodeInternal, "table %d freed twice", t.id)
	t.checkUnlocked()
	ecsAssert(t.Count() == 0, CodeInvalidOperation, "table %d is not empty", t.id)

	w.emit(&EventDesc{Event: OnTableDelete, Table: t, IDs: t.typ})
	w.queriesOnTableDelete(t)
	w.clearEdges(t)
	for i := range t.records {
		t.records[i].idr.cache.remove(t)
	}
	for i := range t.records {
		w.idRecordRelease(t.records[i].idr)
	}
	w.storageRelease(t.storage)
	w.tableUnregister(t)
	t.freed = true
	t.storage = nil

	w.info.TableCount--
	w.info.EmptyTableCount--
	w.info.TablesDeletedTotal++
	if ce := w.logger.Check(zap.DebugLevel, "table deleted"); ce != nil {
		ce.Write(zap.Uint64("table", t.id))
	}
}

func (w *World) typeString(typ []ID) string {
	buf := make([]byte, 0, 16*len(typ))
	for i, id := range typ {
		if i > 0 {
			buf = append(buf, ", "...)
		}
		buf = append(buf, w.idString(id)...)
	}
	return string(buf)
}

// TypeString formats the type of a table.
func (w *World) TypeString(t *Table) string { return w.typeString(t.typ) }
