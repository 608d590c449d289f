package sekai

import "reflect"

// Resources are world-wide singletons. A resource of type T is stored as
// component T on the component entity of T, so a query can read it with a
// fixed source: T(id).WithSrc(Ent(id)).

// SetResource sets the resource of type T, registering T on first use.
//
// Parameters:
//   - w: The World holding the resource.
//   - val: The resource value.
func SetResource[T any](w *World, val T) {
	comp := w.registerType(reflect.TypeFor[T]())
	SetComponent(w, comp, val)
}

// GetResource returns the resource of type T, or nil if it was never set.
func GetResource[T any](w *World) *T {
	comp := ComponentID[T](w)
	if comp == 0 {
		return nil
	}
	return (*T)(w.ptrOf(comp, ID(comp), false))
}

// HasResource reports whether a resource of type T is set.
func HasResource[T any](w *World) bool {
	comp := ComponentID[T](w)
	return comp != 0 && w.Owns(comp, ID(comp))
}

// RemoveResource removes the resource of type T. The component entity
// itself stays registered.
func RemoveResource[T any](w *World) {
	if comp := ComponentID[T](w); comp != 0 {
		w.Remove(comp, ID(comp))
	}
}

// ResourceEntity returns the entity that holds the resource of type T, or 0.
func ResourceEntity[T any](w *World) Entity {
	if !HasResource[T](w) {
		return 0
	}
	return ComponentID[T](w)
}
