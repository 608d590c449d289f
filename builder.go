package sekai

import (
	"slices"
)

// Builder creates entities that all start out with the same ids. The target
// table is looked up once and its storage is grown in one step for bulk
// creation.
type Builder struct {
	world *World
	ids   []ID
	table *Table
}

// NewBuilder returns a builder for entities with the given ids.
//
// Parameters:
//   - w: The World to create entities in.
//   - ids: The ids every new entity gets. Wildcards are not allowed.
//
// Returns:
//   - A pointer to the new Builder.
func NewBuilder(w *World, ids ...ID) *Builder {
	for _, id := range ids {
		mustBeConcrete(id.StripRole())
	}
	return &Builder{world: w, ids: slices.Clone(ids)}
}

// IDs returns the ids of the builder.
func (b *Builder) IDs() []ID { return b.ids }

func (b *Builder) target() *Table {
	if b.table == nil || b.table.freed {
		b.table = b.world.tableFind(b.ids...)
	}
	return b.table
}

// NewEntity creates one entity.
func (b *Builder) NewEntity() Entity {
	return b.world.NewEntityWith(b.ids...)
}

// NewEntities creates count entities and returns them in creation order.
func (b *Builder) NewEntities(count int) []Entity {
	if count <= 0 {
		return nil
	}
	w := b.world
	out := make([]Entity, 0, count)
	if w.stage.depth > 0 || len(b.ids) == 0 {
		for range count {
			out = append(out, w.NewEntityWith(b.ids...))
		}
		return out
	}
	t := b.target()
	t.checkUnlocked()
	n := len(t.entities) + count
	t.entities = slices.Grow(t.entities, count)
	for i := range t.columns {
		t.columns[i].reserve(n)
	}
	diff := &tableDiff{added: t.typ}
	for range count {
		e := w.NewEntity()
		w.commitMove(e, w.entities.get(e), t, diff)
		w.afterAdd(e, diff)
		out = append(out, e)
	}
	return out
}
