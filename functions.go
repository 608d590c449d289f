package sekai

import (
	"reflect"
	"unsafe"
)

// GetComponent retrieves a pointer to the component of type `T` for the given
// entity. Components inherited through IsA are returned as well; writing
// through such a pointer changes the base.
//
// If the entity is invalid or has no such component, this function returns nil.
//
// Parameters:
//   - w: The World containing the entity.
//   - e: The Entity from which to retrieve the component.
//
// Returns:
//   - A pointer to the component data (*T), or nil if not found.
func GetComponent[T any](w *World, e Entity) *T {
	comp := ComponentID[T](w)
	if comp == 0 {
		return nil
	}
	return (*T)(w.ptrOf(e, ID(comp), true))
}

// GetMutComponent returns a pointer to the entity's own copy of `T`. If the
// component is only inherited, it is copied into the entity first.
func GetMutComponent[T any](w *World, e Entity) *T {
	comp := ComponentID[T](w)
	if comp == 0 || !w.entities.isAlive(e) {
		return nil
	}
	if p := w.ptrOf(e, ID(comp), false); p != nil {
		return (*T)(p)
	}
	inherited := (*T)(w.ptrOf(e, ID(comp), true))
	if inherited == nil {
		return nil
	}
	SetComponent(w, e, *inherited)
	return (*T)(w.ptrOf(e, ID(comp), false))
}

// SetComponent adds a component of type `T` with the given value to an entity,
// or updates it if the component already exists. The type is registered on
// first use.
//
// If the entity does not already have the component, adding it will cause the
// entity to move to a different table. If the entity is invalid, this
// function does nothing.
//
// Parameters:
//   - w: The World where the entity resides.
//   - e: The Entity to modify.
//   - val: The component data of type `T` to set.
func SetComponent[T any](w *World, e Entity, val T) {
	comp := w.registerType(reflect.TypeFor[T]())
	ecsAssert(unsafe.Sizeof(val) != 0, CodeInvalidParameter, "cannot set a value for tag %s", w.idString(ID(comp)))
	if w.stage.depth > 0 {
		w.enqueue(command{kind: cmdSet, entity: e, id: ID(comp), set: func(w *World) {
			SetComponent(w, e, val)
		}})
		return
	}
	meta := w.entities.get(e)
	if meta == nil {
		return
	}
	ci := meta.table.columnIndex(ID(comp))
	if ci < 0 {
		w.Add(e, ID(comp))
		ci = meta.table.columnIndex(ID(comp))
	}
	c := &meta.table.columns[ci]
	*(*T)(c.ptr(meta.rowIndex())) = val
	c.dirty++
}

// AddComponent adds the component `T` with its zero value. Tags (zero-sized
// types) are added without storage.
func AddComponent[T any](w *World, e Entity) {
	w.Add(e, ID(w.registerType(reflect.TypeFor[T]())))
}

// RemoveComponent removes the component of type `T` from the specified entity.
// If the entity is invalid or does not have the component, this function does
// nothing.
//
// Parameters:
//   - w: The World where the entity resides.
//   - e: The Entity to modify.
func RemoveComponent[T any](w *World, e Entity) {
	if comp := ComponentID[T](w); comp != 0 {
		w.Remove(e, ID(comp))
	}
}

// HasComponent reports whether the entity has `T`, own or inherited.
func HasComponent[T any](w *World, e Entity) bool {
	comp := ComponentID[T](w)
	return comp != 0 && w.Has(e, ID(comp))
}

// Column returns the data of column i of t, one element per row. Use
// Table.ColumnIndex to find the column of an id.
func Column[T any](t *Table, i int) []T {
	ecsAssert(i >= 0 && i < len(t.columns), CodeOutOfRange, "column %d out of range [0,%d)", i, len(t.columns))
	c := &t.columns[i]
	checkFieldType[T](c, i)
	if c.count == 0 {
		return nil
	}
	return unsafe.Slice((*T)(c.base), c.count)
}
