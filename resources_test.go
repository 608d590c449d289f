package sekai

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type gameClock struct {
	Tick  int
	Scale float32
}

type gameSettings struct {
	Name string
}

// go test -run ^TestResources$ . -count 1
func TestResources(t *testing.T) {
	t.Run("Set and Get", func(t *testing.T) {
		w := newTestWorld(t)
		assert.Nil(t, GetResource[gameClock](w))
		SetResource(w, gameClock{Tick: 1, Scale: 0.5})
		got := GetResource[gameClock](w)
		require.NotNil(t, got)
		assert.Equal(t, gameClock{Tick: 1, Scale: 0.5}, *got)
	})

	t.Run("Has", func(t *testing.T) {
		w := newTestWorld(t)
		assert.False(t, HasResource[gameClock](w))
		SetResource(w, gameClock{})
		assert.True(t, HasResource[gameClock](w))
		assert.False(t, HasResource[gameSettings](w))
	})

	t.Run("Set overwrites", func(t *testing.T) {
		w := newTestWorld(t)
		SetResource(w, gameSettings{Name: "a"})
		before := GetResource[gameSettings](w)
		SetResource(w, gameSettings{Name: "b"})
		assert.Equal(t, "b", GetResource[gameSettings](w).Name)
		assert.Same(t, before, GetResource[gameSettings](w))
	})

	t.Run("Different types", func(t *testing.T) {
		w := newTestWorld(t)
		SetResource(w, gameClock{Tick: 7})
		SetResource(w, gameSettings{Name: "x"})
		assert.Equal(t, 7, GetResource[gameClock](w).Tick)
		assert.Equal(t, "x", GetResource[gameSettings](w).Name)
		assert.NotEqual(t, ResourceEntity[gameClock](w), ResourceEntity[gameSettings](w))
	})

	t.Run("Remove", func(t *testing.T) {
		w := newTestWorld(t)
		SetResource(w, gameClock{Tick: 3})
		RemoveResource[gameClock](w)
		assert.False(t, HasResource[gameClock](w))
		assert.Nil(t, GetResource[gameClock](w))
		assert.Equal(t, Entity(0), ResourceEntity[gameClock](w))
		assert.NotZero(t, ComponentID[gameClock](w))

		SetResource(w, gameClock{Tick: 4})
		assert.Equal(t, 4, GetResource[gameClock](w).Tick)
	})

	t.Run("Remove unknown", func(t *testing.T) {
		w := newTestWorld(t)
		assert.NotPanics(t, func() { RemoveResource[gameSettings](w) })
	})

	t.Run("Component use is independent", func(t *testing.T) {
		w := newTestWorld(t)
		e := w.NewEntity()
		SetComponent(w, e, gameClock{Tick: 1})
		assert.False(t, HasResource[gameClock](w))
		SetResource(w, gameClock{Tick: 2})
		assert.Equal(t, 1, GetComponent[gameClock](w, e).Tick)
		assert.Equal(t, 2, GetResource[gameClock](w).Tick)
	})

	t.Run("Query with fixed source", func(t *testing.T) {
		w := newTestWorld(t)
		SetResource(w, gameClock{Tick: 9})
		clock := ResourceEntity[gameClock](w)
		q := mustQuery(t, w, QueryDesc{Terms: []Term{T(ID(clock)).WithSrc(Ent(clock))}})
		it := q.Iter()
		require.True(t, it.Next())
		assert.Equal(t, 9, Field[gameClock](it, 0)[0].Tick)
		assert.False(t, it.Next())
	})
}

func BenchmarkResourceGet(b *testing.B) {
	w := NewWorld(1024)
	SetResource(w, gameClock{})
	b.ReportAllocs()
	for b.Loop() {
		GetResource[gameClock](w).Tick++
	}
}

func BenchmarkResourceSet(b *testing.B) {
	w := NewWorld(1024)
	b.ReportAllocs()
	i := 0
	for b.Loop() {
		SetResource(w, gameClock{Tick: i})
		i++
	}
}
