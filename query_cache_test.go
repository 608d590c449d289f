package sekai

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// go test -run ^TestQueryCacheTracksTables$ . -count 1
func TestQueryCacheTracksTables(t *testing.T) {
	w := newTestWorld(t)
	tag, other := w.NewEntity(), w.NewEntity()
	e1 := w.NewEntityWith(ID(tag))

	q := mustQuery(t, w, QueryDesc{Terms: []Term{T(ID(tag))}})
	require.True(t, q.IsCached())
	assert.Len(t, q.cache.entries, 1)

	e2 := w.NewEntityWith(ID(tag), ID(other))
	assert.Len(t, q.cache.entries, 2)
	assert.ElementsMatch(t, []Entity{e1, e2}, collect(q))

	w.Delete(e2)
	assert.Positive(t, w.DeleteEmptyTables())
	assert.Len(t, q.cache.entries, 1)
	assert.Equal(t, []Entity{e1}, collect(q))
}

// go test -run ^TestQueryCacheSkipsFilteredTables$ . -count 1
func TestQueryCacheSkipsFilteredTables(t *testing.T) {
	w := newTestWorld(t)
	tag := w.NewEntity()
	q := mustQuery(t, w, QueryDesc{Terms: []Term{T(ID(tag))}, Cache: CacheAll})

	e := w.NewEntityWith(ID(tag))
	w.NewEntityWith(ID(tag), ID(Prefab))
	w.NewEntityWith(ID(tag), ID(Disabled))
	assert.Len(t, q.cache.entries, 1)
	assert.Equal(t, []Entity{e}, collect(q))
}

// go test -run ^TestQueryCacheAuto$ . -count 1
func TestQueryCacheAuto(t *testing.T) {
	w := newTestWorld(t)
	pos := RegisterComponent[Position](w)
	rel := w.NewEntity()

	tests := []struct {
		name   string
		terms  []Term
		cached bool
	}{
		{"plain", []Term{T(ID(pos))}, true},
		{"wildcard", []Term{TPair(Ent(rel), Ent(Wildcard))}, true},
		{"up", []Term{T(ID(pos)).WithUp(ChildOf)}, false},
		{"variable", []Term{TPair(Ent(rel), Var("x"))}, false},
		{"fixed source", []Term{T(ID(pos)), T(ID(pos)).WithSrc(Ent(rel))}, false},
		{"no this", []Term{T(ID(pos)).WithSrc(Ent(rel))}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := mustQuery(t, w, QueryDesc{Terms: tt.terms, Cache: CacheAuto})
			assert.Equal(t, tt.cached, q.IsCached())
		})
	}
}

// go test -run ^TestQueryCacheDefaultFromConfig$ . -count 1
func TestQueryCacheDefaultFromConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Query.DefaultCache = "none"
	w := NewWorld(16, WithConfig(cfg))
	tag := w.NewEntity()

	q := mustQuery(t, w, QueryDesc{Terms: []Term{T(ID(tag))}})
	assert.False(t, q.IsCached())

	q = mustQuery(t, w, QueryDesc{Terms: []Term{T(ID(tag))}, Cache: CacheAll})
	assert.True(t, q.IsCached())
}

// go test -run ^TestQueryCacheVolatileRematch$ . -count 1
func TestQueryCacheVolatileRematch(t *testing.T) {
	w := newTestWorld(t)
	pos := RegisterComponent[Position](w)
	parent := w.NewEntity()
	SetComponent(w, parent, Position{X: 1})
	child := w.NewEntityWith(Pair(ChildOf, parent))

	q := mustQuery(t, w, QueryDesc{Terms: []Term{T(ID(pos)).WithUp(ChildOf)}, Cache: CacheAll})
	require.True(t, q.IsCached())
	assert.True(t, q.cache.volatile)
	assert.Equal(t, []Entity{child}, collect(q))

	// Removing the component from the parent changes no table of the
	// children, the cache must still notice.
	w.Remove(parent, ID(pos))
	assert.Empty(t, collect(q))

	SetComponent(w, parent, Position{X: 2})
	other := w.NewEntityWith(Pair(ChildOf, parent))
	assert.ElementsMatch(t, []Entity{child, other}, collect(q))

	it := q.Iter()
	require.True(t, it.Next())
	assert.Equal(t, parent, it.Source(0))
	assert.Equal(t, float32(2), Field[Position](it, 0)[0].X)
	it.Fini()
}

// go test -run ^TestQueryCacheEntriesKeepFields$ . -count 1
func TestQueryCacheEntriesKeepFields(t *testing.T) {
	w := newTestWorld(t)
	likes := w.NewEntity()
	a, b := w.NewEntity(), w.NewEntity()
	e := w.NewEntityWith(Pair(likes, a), Pair(likes, b))

	q := mustQuery(t, w, QueryDesc{Terms: []Term{TPair(Ent(likes), Ent(Wildcard))}, Cache: CacheAll})
	require.True(t, q.IsCached())
	require.Len(t, q.cache.entries, 2)

	var ids []ID
	it := q.Iter()
	for it.Next() {
		assert.Equal(t, []Entity{e}, it.Entities)
		ids = append(ids, it.IDs[0])
	}
	assert.Equal(t, []ID{Pair(likes, a), Pair(likes, b)}, ids)
}
