package sekai

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type Position struct{ X, Y float32 }
type Velocity struct{ DX, DY float32 }
type Health struct{ HP int }
type WithPointer struct{ Data *int }

// newTestWorld returns a world that checks every table after each
// structural change.
func newTestWorld(t testing.TB) *World {
	t.Helper()
	cfg := DefaultConfig()
	cfg.World.Sanitize = true
	return NewWorld(64, WithConfig(cfg))
}

// go test -run ^TestEntityLifecycle$ . -count 1
func TestEntityLifecycle(t *testing.T) {
	w := newTestWorld(t)

	e := w.NewEntity()
	require.True(t, w.IsAlive(e))
	assert.GreaterOrEqual(t, e.Index(), uint32(FirstUserEntity))
	assert.Equal(t, e, w.GetAlive(e.Index()))

	w.Delete(e)
	assert.False(t, w.IsAlive(e))
	assert.Equal(t, Entity(0), w.GetAlive(e.Index()))

	// The index is recycled with a new generation.
	e2 := w.NewEntity()
	assert.Equal(t, e.Index(), e2.Index())
	assert.NotEqual(t, e.Generation(), e2.Generation())
	assert.False(t, w.IsAlive(e))
	assert.True(t, w.IsAlive(e2))
}

// go test -run ^TestAddRemove$ . -count 1
func TestAddRemove(t *testing.T) {
	w := newTestWorld(t)
	tag := w.NewEntity()
	e := w.NewEntity()

	w.Add(e, ID(tag))
	assert.True(t, w.Has(e, ID(tag)))
	t1 := w.TableOf(e)

	// Adding twice is a no-op.
	w.Add(e, ID(tag))
	assert.Same(t, t1, w.TableOf(e))

	w.Remove(e, ID(tag))
	assert.False(t, w.Has(e, ID(tag)))
	assert.Same(t, w.RootTable(), w.TableOf(e))

	// Removing an absent id is a no-op.
	w.Remove(e, ID(tag))
	assert.Same(t, w.RootTable(), w.TableOf(e))
}

// go test -run ^TestRowEntitySymmetry$ . -count 1
func TestRowEntitySymmetry(t *testing.T) {
	w := newTestWorld(t)
	tag := w.NewEntity()
	var es []Entity
	for i := range 50 {
		e := w.NewEntity()
		SetComponent(w, e, Position{X: float32(i)})
		if i%3 == 0 {
			w.Add(e, ID(tag))
		}
		es = append(es, e)
	}
	for i := 0; i < len(es); i += 4 {
		w.Delete(es[i])
	}
	for i, e := range es {
		if i%4 == 0 {
			continue
		}
		meta := w.entities.get(e)
		require.NotNil(t, meta)
		assert.Equal(t, e, meta.table.entities[meta.rowIndex()])
		assert.Equal(t, float32(i), GetComponent[Position](w, e).X)
	}
	w.CheckSanity()
}

// go test -run ^TestComponentData$ . -count 1
func TestComponentData(t *testing.T) {
	w := newTestWorld(t)
	e := w.NewEntity()

	SetComponent(w, e, Position{1, 2})
	SetComponent(w, e, Velocity{3, 4})
	p := GetComponent[Position](w, e)
	require.NotNil(t, p)
	assert.Equal(t, Position{1, 2}, *p)

	// Values survive table moves.
	RemoveComponent[Velocity](w, e)
	assert.Equal(t, Position{1, 2}, *GetComponent[Position](w, e))
	assert.Nil(t, GetComponent[Velocity](w, e))
	assert.False(t, HasComponent[Velocity](w, e))

	// Pointer fields stay visible to the collector.
	n := 7
	SetComponent(w, e, WithPointer{Data: &n})
	AddComponent[Health](w, e)
	assert.Equal(t, 7, *GetComponent[WithPointer](w, e).Data)
	assert.Equal(t, Health{}, *GetComponent[Health](w, e))
}

// go test -run ^TestPairsAndTarget$ . -count 1
func TestPairsAndTarget(t *testing.T) {
	w := newTestWorld(t)
	likes := w.Entity("Likes")
	alice, bob, carol := w.Entity("alice"), w.Entity("bob"), w.Entity("carol")

	w.Add(alice, Pair(likes, bob))
	w.Add(alice, Pair(likes, carol))
	assert.True(t, w.Has(alice, Pair(likes, bob)))
	assert.True(t, w.Has(alice, Pair(likes, Wildcard)))
	assert.True(t, w.Has(alice, Pair(Wildcard, carol)))
	assert.Equal(t, bob, w.Target(alice, likes, 0))
	assert.Equal(t, carol, w.Target(alice, likes, 1))
	assert.Equal(t, Entity(0), w.Target(alice, likes, 2))

	// A wildcard removes every matching pair.
	w.Remove(alice, Pair(likes, Wildcard))
	assert.False(t, w.Has(alice, Pair(likes, Wildcard)))
}

// go test -run ^TestExclusive$ . -count 1
func TestExclusive(t *testing.T) {
	w := newTestWorld(t)
	p1, p2 := w.NewEntity(), w.NewEntity()
	child := w.NewEntity()

	w.Add(child, Pair(ChildOf, p1))
	w.Add(child, Pair(ChildOf, p2))
	assert.False(t, w.Has(child, Pair(ChildOf, p1)))
	assert.True(t, w.Has(child, Pair(ChildOf, p2)))
}

// go test -run ^TestNames$ . -count 1
func TestNames(t *testing.T) {
	w := newTestWorld(t)
	car := w.Entity("car")
	wheel := w.Entity("car.wheel")

	assert.Equal(t, car, w.Lookup("car"))
	assert.Equal(t, wheel, w.Lookup("car.wheel"))
	assert.Equal(t, wheel, w.LookupChild(car, "wheel"))
	assert.Equal(t, "car.wheel", w.Path(wheel))
	assert.Equal(t, car, w.Target(wheel, ChildOf, 0))
	assert.Equal(t, Entity(0), w.Lookup("wheel"))

	// Names follow the entity when it is reparented.
	truck := w.Entity("truck")
	w.Add(wheel, Pair(ChildOf, truck))
	assert.Equal(t, wheel, w.Lookup("truck.wheel"))
	assert.Equal(t, Entity(0), w.Lookup("car.wheel"))

	assert.Panics(t, func() { w.SetName(wheel, "a.b") })
}

// go test -run ^TestDeleteCleanup$ . -count 1
func TestDeleteCleanup(t *testing.T) {
	w := newTestWorld(t)

	t.Run("children are deleted", func(t *testing.T) {
		parent := w.NewEntity()
		child := w.NewEntity()
		grandchild := w.NewEntity()
		w.Add(child, Pair(ChildOf, parent))
		w.Add(grandchild, Pair(ChildOf, child))

		w.Delete(parent)
		assert.False(t, w.IsAlive(child))
		assert.False(t, w.IsAlive(grandchild))
	})

	t.Run("ids and targets are removed", func(t *testing.T) {
		tag := w.NewEntity()
		rel := w.NewEntity()
		tgt := w.NewEntity()
		e := w.NewEntity()
		w.Add(e, ID(tag))
		w.Add(e, Pair(rel, tgt))
		SetComponent(w, e, Position{5, 6})

		w.Delete(tag)
		assert.True(t, w.IsAlive(e))
		assert.False(t, w.Owns(e, ID(tag)))

		w.Delete(tgt)
		assert.False(t, w.Has(e, Pair(rel, Wildcard)))
		assert.Equal(t, Position{5, 6}, *GetComponent[Position](w, e))
	})
	w.CheckSanity()
}

// go test -run ^TestInheritance$ . -count 1
func TestInheritance(t *testing.T) {
	w := newTestWorld(t)
	base := w.NewEntity()
	SetComponent(w, base, Position{1, 1})
	SetComponent(w, base, Health{100})
	w.Add(ComponentID[Health](w), ID(AlwaysOverride))

	inst := w.NewEntity()
	w.Add(inst, Pair(IsA, base))

	// Position is shared, Health is copied.
	assert.True(t, w.Has(inst, ID(ComponentID[Position](w))))
	assert.False(t, w.Owns(inst, ID(ComponentID[Position](w))))
	assert.True(t, w.Owns(inst, ID(ComponentID[Health](w))))
	assert.Same(t, GetComponent[Position](w, base), GetComponent[Position](w, inst))

	GetComponent[Health](w, inst).HP = 10
	assert.Equal(t, 100, GetComponent[Health](w, base).HP)

	// GetMutComponent gives the instance its own copy.
	p := GetMutComponent[Position](w, inst)
	p.X = 9
	assert.Equal(t, float32(1), GetComponent[Position](w, base).X)
	assert.True(t, w.Owns(inst, ID(ComponentID[Position](w))))
}

// go test -run ^TestDontInherit$ . -count 1
func TestDontInherit(t *testing.T) {
	w := newTestWorld(t)
	secret := w.NewEntity()
	w.Add(secret, ID(DontInherit))
	base := w.NewEntity()
	w.Add(base, ID(secret))
	inst := w.NewEntity()
	w.Add(inst, Pair(IsA, base))

	assert.False(t, w.Has(inst, ID(secret)))
	// Prefab is never inherited.
	w.Add(base, ID(Prefab))
	assert.False(t, w.Has(inst, ID(Prefab)))
}

// go test -run ^TestToggle$ . -count 1
func TestToggle(t *testing.T) {
	w := newTestWorld(t)
	comp := RegisterComponent[Position](w)
	w.Add(comp, ID(CanToggle))
	e := w.NewEntity()
	SetComponent(w, e, Position{})

	assert.True(t, w.IsEnabled(e, comp))
	w.Enable(e, comp, false)
	assert.False(t, w.IsEnabled(e, comp))
	assert.True(t, w.Owns(e, Toggle(ID(comp))))
	w.Enable(e, comp, true)
	assert.True(t, w.IsEnabled(e, comp))

	other := w.NewEntity()
	assert.Panics(t, func() { w.Add(e, Toggle(ID(other))) })
}

// go test -run ^TestRemoveAllAndDeleteWith$ . -count 1
func TestRemoveAllAndDeleteWith(t *testing.T) {
	w := newTestWorld(t)
	tag := w.NewEntity()
	doomed := w.NewEntity()
	var keep, gone []Entity
	for i := range 10 {
		e := w.NewEntity()
		SetComponent(w, e, Position{X: float32(i)})
		w.Add(e, ID(tag))
		if i%2 == 0 {
			w.Add(e, ID(doomed))
			gone = append(gone, e)
		} else {
			keep = append(keep, e)
		}
	}

	w.DeleteWith(ID(doomed))
	for _, e := range gone {
		assert.False(t, w.IsAlive(e))
	}

	w.RemoveAll(ID(tag))
	for _, e := range keep {
		assert.True(t, w.IsAlive(e))
		assert.False(t, w.Has(e, ID(tag)))
		assert.True(t, HasComponent[Position](w, e))
	}
	w.CheckSanity()
}

// go test -run ^TestBuilder$ . -count 1
func TestBuilder(t *testing.T) {
	w := newTestWorld(t)
	pos := RegisterComponent[Position](w)
	vel := RegisterComponent[Velocity](w)
	b := NewBuilder(w, ID(pos), ID(vel))

	es := b.NewEntities(100)
	require.Len(t, es, 100)
	table := w.TableOf(es[0])
	assert.Equal(t, 100, table.Count())
	for i, e := range es {
		assert.Equal(t, e, table.Entities()[i])
		assert.True(t, HasComponent[Velocity](w, e))
	}

	one := b.NewEntity()
	assert.Same(t, table, w.TableOf(one))
	assert.Nil(t, b.NewEntities(0))
}

// go test -run ^TestWorldInfo$ . -count 1
func TestWorldInfo(t *testing.T) {
	w := newTestWorld(t)
	w.DeleteEmptyTables()
	before := w.Info()
	tag := w.NewEntity()
	e := w.NewEntity()
	w.Add(e, ID(tag))

	info := w.Info()
	assert.Equal(t, before.EntityCount+2, info.EntityCount)
	assert.Equal(t, before.TableCount+1, info.TableCount)
	assert.Greater(t, info.StructuralVersion, before.StructuralVersion)

	w.Delete(e)
	assert.Equal(t, 1, w.DeleteEmptyTables())
	assert.Equal(t, before.TableCount, w.Info().TableCount)
}

// go test -run ^TestTableHandle$ . -count 1
func TestTableHandle(t *testing.T) {
	w := newTestWorld(t)
	tag := w.NewEntity()
	e := w.NewEntity()
	w.Add(e, ID(tag))
	h := w.TableOf(e).Handle()

	got, err := w.TableByHandle(h)
	require.NoError(t, err)
	assert.Same(t, w.TableOf(e), got)

	w.Delete(e)
	w.DeleteEmptyTables()
	_, err = w.TableByHandle(h)
	assert.ErrorIs(t, err, ErrStaleTable)
}
