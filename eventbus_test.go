package sekai

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type TestEvent struct {
	Value int
}

// go test -run ^TestEventBusSubscribeAndPublish$ . -count 1
func TestEventBusSubscribeAndPublish(t *testing.T) {
	bus := &EventBus{}
	received := 0
	Subscribe(bus, func(e TestEvent) {
		received += e.Value
	})
	Subscribe(bus, func(e TestEvent) {
		received += e.Value * 2
	})
	Publish(bus, TestEvent{Value: 1})
	assert.Equal(t, 3, received)
	Publish(bus, TestEvent{Value: 2})
	assert.Equal(t, 9, received)
}

// go test -run ^TestEventBusMultipleTypes$ . -count 1
func TestEventBusMultipleTypes(t *testing.T) {
	bus := &EventBus{}
	received1, received2 := 0, 0
	Subscribe(bus, func(e TestEvent) {
		received1 += e.Value
	})
	Subscribe(bus, func(p Position) {
		received2 += int(p.X)
	})
	Publish(bus, TestEvent{Value: 42})
	Publish(bus, Position{X: 10})
	assert.Equal(t, 42, received1)
	assert.Equal(t, 10, received2)
}

// go test -run ^TestEventBusNoHandlers$ . -count 1
func TestEventBusNoHandlers(t *testing.T) {
	bus := &EventBus{}
	assert.NotPanics(t, func() { Publish(bus, TestEvent{Value: 42}) })
	assert.False(t, bus.HasObservers(OnAdd))
}

// go test -run ^TestEventBusObserveRejectsNonEvents$ . -count 1
func TestEventBusObserveRejectsNonEvents(t *testing.T) {
	bus := &EventBus{}
	assert.Panics(t, func() { Observe(bus, IsA, EmitterFunc(func(*World, *EventDesc) {})) })
}

// recorder collects world events per kind.
type recorder struct {
	events []EventDesc
}

func (r *recorder) Emit(_ *World, desc *EventDesc) {
	d := *desc
	d.IDs = append([]ID(nil), desc.IDs...)
	r.events = append(r.events, d)
}

func (r *recorder) of(event Entity) []EventDesc {
	var out []EventDesc
	for _, d := range r.events {
		if d.Event == event {
			out = append(out, d)
		}
	}
	return out
}

func newObservedWorld(t *testing.T, events ...Entity) (*World, *recorder) {
	t.Helper()
	bus := &EventBus{}
	rec := &recorder{}
	for _, ev := range events {
		Observe(bus, ev, rec)
	}
	return NewWorld(64, WithEventBus(bus)), rec
}

// go test -run ^TestWorldEventsTables$ . -count 1
func TestWorldEventsTables(t *testing.T) {
	w, rec := newObservedWorld(t, OnTableCreate, OnTableDelete, OnTableEmpty, OnTableFill)
	rec.events = nil
	tag := w.NewEntity()

	e := w.NewEntityWith(ID(tag))
	table := w.TableOf(e)
	created := rec.of(OnTableCreate)
	require.Len(t, created, 1)
	assert.Same(t, table, created[0].Table)
	assert.Equal(t, []ID{ID(tag)}, created[0].IDs)
	require.Len(t, rec.of(OnTableFill), 1)

	w.Delete(e)
	empty := rec.of(OnTableEmpty)
	require.Len(t, empty, 1)
	assert.Same(t, table, empty[0].Table)

	w.DeleteEmptyTables()
	var deleted bool
	for _, d := range rec.of(OnTableDelete) {
		if d.Table == table {
			deleted = true
		}
	}
	assert.True(t, deleted)
}

// go test -run ^TestWorldEventsAddRemove$ . -count 1
func TestWorldEventsAddRemove(t *testing.T) {
	w, rec := newObservedWorld(t, OnAdd, OnRemove)
	a, b := w.NewEntity(), w.NewEntity()
	e := w.NewEntity()
	rec.events = nil

	w.Add(e, ID(a))
	w.Add(e, ID(b))
	w.Add(e, ID(b))
	adds := rec.of(OnAdd)
	require.Len(t, adds, 2)
	assert.Equal(t, e, adds[1].Entity)
	assert.Equal(t, []ID{ID(b)}, adds[1].IDs)
	assert.Same(t, w.TableOf(e), adds[1].Table)

	w.Remove(e, ID(a))
	removes := rec.of(OnRemove)
	require.Len(t, removes, 1)
	assert.Equal(t, []ID{ID(a)}, removes[0].IDs)
	assert.Same(t, w.TableOf(e), removes[0].Other)

	w.Delete(e)
	removes = rec.of(OnRemove)
	require.Len(t, removes, 2)
	assert.Equal(t, []ID{ID(b)}, removes[1].IDs)
}

// go test -run ^TestWorldEventsExclusive$ . -count 1
func TestWorldEventsExclusive(t *testing.T) {
	w, rec := newObservedWorld(t, OnAdd, OnRemove)
	p1, p2 := w.NewEntity(), w.NewEntity()
	e := w.NewEntityWith(Pair(ChildOf, p1))
	rec.events = nil

	w.Add(e, Pair(ChildOf, p2))
	removes := rec.of(OnRemove)
	require.Len(t, removes, 1)
	assert.Equal(t, []ID{Pair(ChildOf, p1)}, removes[0].IDs)
	adds := rec.of(OnAdd)
	require.Len(t, adds, 1)
	assert.Equal(t, []ID{Pair(ChildOf, p2)}, adds[0].IDs)
}
