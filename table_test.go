package sekai

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type gridPos struct{ X, Y int32 }

// go test -run ^TestTableEmptyTransition$ . -count 1
func TestTableEmptyTransition(t *testing.T) {
	w := newTestWorld(t)
	pos := RegisterComponent[gridPos](w)
	table := w.TableFind(ID(pos))
	require.Equal(t, []ID{ID(pos)}, table.Type())
	emptyBefore := w.Info().EmptyTableCount

	e := w.NewEntity()
	SetComponent(w, e, gridPos{X: 1, Y: 2})
	require.Same(t, table, w.TableOf(e))
	assert.Equal(t, emptyBefore-1, w.Info().EmptyTableCount)

	col := table.ColumnIndex(ID(pos))
	require.Equal(t, 0, col)
	assert.Equal(t, gridPos{X: 1, Y: 2}, Column[gridPos](table, col)[0])
	assert.Panics(t, func() { Column[Position](table, col) })

	w.Delete(e)
	assert.Equal(t, 0, table.Count())
	assert.Nil(t, Column[gridPos](table, col))
	assert.Equal(t, emptyBefore, w.Info().EmptyTableCount)

	q := mustQuery(t, w, QueryDesc{Terms: []Term{T(ID(pos))}, Cache: CacheNone})
	assert.Equal(t, 0, q.Count())
}

// go test -run ^TestTableRecords$ . -count 1
func TestTableRecords(t *testing.T) {
	w := newTestWorld(t)
	pos := RegisterComponent[Position](w)
	tag, rel := w.NewEntity(), w.NewEntity()
	w.Add(tag, ID(CanToggle))
	t1, t2 := w.NewEntity(), w.NewEntity()
	e := w.NewEntityWith(ID(pos), ID(tag), Toggle(ID(tag)), Pair(rel, t1), Pair(rel, t2))
	table := w.TableOf(e)
	typ := table.Type()
	require.Equal(t, []ID{ID(pos), ID(tag), Toggle(ID(tag)), Pair(rel, t1), Pair(rel, t2)}, typ)

	records := table.Records()
	for i, id := range typ {
		tr := &records[i]
		assert.Equal(t, id, tr.IDRecord().ID())
		assert.Equal(t, i, tr.Index())
		assert.Equal(t, 1, tr.Count())
	}

	// Synthesized records follow the type records in a fixed order.
	want := []struct {
		id     ID
		index  int
		count  int
		column int
	}{
		{Pair(Flag, tag), 2, 1, -1},
		{Pair(rel, Wildcard), 3, 2, -1},
		{Pair(Wildcard, t1), 3, 1, -1},
		{Pair(Wildcard, t2), 4, 1, -1},
		{ID(Wildcard), 0, 2, 0},
		{Pair(Wildcard, Wildcard), 3, 2, -1},
		{ID(Any), 0, 1, -1},
		{pairOf(uint32(ChildOf), 0), 0, 1, -1},
	}
	synth := records[len(typ):]
	require.Len(t, synth, len(want))
	for i, wr := range want {
		tr := &synth[i]
		assert.Equal(t, wr.id, tr.IDRecord().ID(), "record %d", i)
		assert.Equal(t, wr.index, tr.Index(), "record %d index", i)
		assert.Equal(t, wr.count, tr.Count(), "record %d count", i)
		assert.Equal(t, wr.column, tr.Column(), "record %d column", i)
	}

	// Only the component gets a column.
	assert.Equal(t, 1, table.ColumnCount())
	assert.Equal(t, 0, table.ColumnIndex(ID(pos)))
	assert.Equal(t, -1, table.ColumnIndex(ID(tag)))

	// Every record is registered in its id record exactly once.
	for i := range records {
		idr := records[i].IDRecord()
		n := 0
		idr.Tables(true, func(tt *Table, tr *TableRecord) bool {
			if tt == table {
				n++
				assert.Same(t, &records[i], tr)
			}
			return true
		})
		assert.Equal(t, 1, n, "record %s", w.IDString(idr.ID()))
	}
	w.CheckSanity()
}

// go test -run ^TestTableChildOfRecord$ . -count 1
func TestTableChildOfRecord(t *testing.T) {
	w := newTestWorld(t)
	parent := w.NewEntity()
	child := w.NewEntityWith(Pair(ChildOf, parent))
	for _, tr := range w.TableOf(child).Records() {
		assert.NotEqual(t, pairOf(uint32(ChildOf), 0), tr.IDRecord().ID())
	}
	assert.NotZero(t, w.TableOf(child).Flags()&TableHasChildOf)
}

// go test -run ^TestTableGraphEdges$ . -count 1
func TestTableGraphEdges(t *testing.T) {
	w := newTestWorld(t)
	a, b := w.NewEntity(), w.NewEntity()
	root := w.RootTable()

	ta, diff := w.tableTraverseAdd(root, ID(a))
	assert.Equal(t, []ID{ID(a)}, ta.Type())
	assert.Equal(t, []ID{ID(a)}, diff.added)

	// Adding an id that is already present stays on the same table.
	same, _ := w.tableTraverseAdd(ta, ID(a))
	assert.Same(t, ta, same)

	tab, _ := w.tableTraverseAdd(ta, ID(b))
	back, diff := w.tableTraverseRemove(tab, ID(b))
	assert.Same(t, ta, back)
	assert.Equal(t, []ID{ID(b)}, diff.removed)

	// The reverse edge was cached when the add edge was created.
	_, removes := tab.EdgeCount()
	assert.Positive(t, removes)

	// Order of adds does not matter.
	tb, _ := w.tableTraverseAdd(root, ID(b))
	tba, _ := w.tableTraverseAdd(tb, ID(a))
	assert.Same(t, tab, tba)
}

// go test -run ^TestTableEdgesClearedOnDelete$ . -count 1
func TestTableEdgesClearedOnDelete(t *testing.T) {
	w := newTestWorld(t)
	a, b := w.NewEntity(), w.NewEntity()
	ta := w.TableFind(ID(a))
	tab := w.TableFind(ID(a), ID(b))
	addBefore, _ := ta.EdgeCount()

	w.tableFree(tab)
	addAfter, _ := ta.EdgeCount()
	assert.Equal(t, addBefore-1, addAfter)

	again := w.TableFind(ID(a), ID(b))
	assert.NotSame(t, tab, again)
	assert.Equal(t, tab.Type(), again.Type())
}

// go test -run ^TestTableSharedStorage$ . -count 1
func TestTableSharedStorage(t *testing.T) {
	w := newTestWorld(t)
	pos := RegisterComponent[Position](w)
	tag1, tag2 := w.NewEntity(), w.NewEntity()

	t1 := w.TableFind(ID(pos), ID(tag1))
	t2 := w.TableFind(ID(pos), ID(tag2))
	t3 := w.TableFind(ID(tag1))
	assert.True(t, t1.SharesStorage(t2))
	assert.False(t, t1.SharesStorage(t3))
	assert.Equal(t, []ID{ID(pos)}, t1.StorageIDs())
	assert.Empty(t, t3.StorageIDs())

	// Columns of tables sharing storage use the storage type infos.
	require.Equal(t, 1, t1.ColumnCount())
	require.Equal(t, 1, t2.ColumnCount())
	assert.Same(t, t1.storage.types[0], t1.columns[0].ti)
	assert.Same(t, t1.columns[0].ti, t2.columns[0].ti)
	assert.Same(t, w.TypeInfoOf(pos), t2.columns[0].ti)
}

// go test -run ^TestTableBuiltinPairsAreTags$ . -count 1
func TestTableBuiltinPairsAreTags(t *testing.T) {
	w := newTestWorld(t)
	pos := RegisterComponent[Position](w)
	likes := w.NewEntity()

	child := w.NewEntityWith(Pair(ChildOf, pos))
	assert.Equal(t, 0, w.TableOf(child).ColumnCount())
	assert.Empty(t, w.TableOf(child).StorageIDs())

	inst := w.NewEntityWith(Pair(IsA, pos))
	assert.Equal(t, 0, w.TableOf(inst).ColumnCount())
	assert.Nil(t, w.IDRecord(Pair(IsA, pos)).TypeInfo())

	// Other tag relationships still take the type of the target.
	e := w.NewEntityWith(Pair(likes, pos))
	assert.Equal(t, 1, w.TableOf(e).ColumnCount())
	assert.Equal(t, []ID{Pair(likes, pos)}, w.TableOf(e).StorageIDs())
}

// go test -run ^TestTableMerge$ . -count 1
func TestTableMerge(t *testing.T) {
	w := newTestWorld(t)
	pos := RegisterComponent[Position](w)
	tag := w.NewEntity()
	var es []Entity
	for i := range 4 {
		e := w.NewEntityWith(ID(tag))
		SetComponent(w, e, Position{X: float32(i)})
		es = append(es, e)
	}
	src := w.TableOf(es[0])
	dst := w.TableFind(ID(pos))
	require.NotSame(t, src, dst)

	w.tableMerge(dst, src)
	assert.Equal(t, 0, src.Count())
	assert.Equal(t, 4, dst.Count())
	for i, e := range es {
		require.Same(t, dst, w.TableOf(e))
		assert.Equal(t, float32(i), GetComponent[Position](w, e).X)
	}
	w.CheckSanity()
}

// go test -run ^TestTableLockRejectsMutation$ . -count 1
func TestTableLockRejectsMutation(t *testing.T) {
	w := newTestWorld(t)
	tag := w.NewEntity()
	e := w.NewEntityWith(ID(tag))
	table := w.TableOf(e)

	table.Lock()
	assert.Panics(t, func() { w.tableAppend(table, w.NewEntity(), true) })
	table.Unlock()
	assert.Panics(t, func() { table.Unlock() })
}
