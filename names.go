package sekai

import "strings"

type nameKey struct {
	parent Entity
	name   string
}

// nameIndex maps (parent, name) to entities for path lookups.
type nameIndex struct {
	byKey    map[nameKey]Entity
	byEntity map[Entity]nameKey
}

func (n *nameIndex) init() {
	n.byKey = make(map[nameKey]Entity)
	n.byEntity = make(map[Entity]nameKey)
}

func (n *nameIndex) set(e, parent Entity, name string) {
	n.remove(e)
	if name == "" {
		return
	}
	k := nameKey{parent: parent, name: name}
	n.byKey[k] = e
	n.byEntity[e] = k
}

func (n *nameIndex) remove(e Entity) {
	if k, ok := n.byEntity[e]; ok {
		if n.byKey[k] == e {
			delete(n.byKey, k)
		}
		delete(n.byEntity, e)
	}
}

func (n *nameIndex) nameOf(e Entity) string {
	return n.byEntity[e].name
}

// SetName names an entity within the scope of its ChildOf parent. An empty
// name removes the name.
func (w *World) SetName(e Entity, name string) {
	if !w.entities.isAlive(e) {
		return
	}
	ecsAssert(!strings.Contains(name, "."), CodeInvalidParameter, "name %q contains a path separator", name)
	w.names.set(e, w.Target(e, ChildOf, 0), name)
}

// Name returns the name of an entity, or "".
func (w *World) Name(e Entity) string { return w.names.nameOf(e) }

// Path returns the dot separated path of an entity from the root.
func (w *World) Path(e Entity) string {
	name := w.names.nameOf(e)
	if name == "" {
		return e.String()
	}
	if parent := w.Target(e, ChildOf, 0); parent != 0 {
		return w.Path(parent) + "." + name
	}
	return name
}

// LookupChild finds the entity named name under parent (0 for the root
// scope).
func (w *World) LookupChild(parent Entity, name string) Entity {
	e := w.names.byKey[nameKey{parent: parent, name: name}]
	if e != 0 && !w.entities.isAlive(e) {
		return 0
	}
	return e
}

// Lookup resolves a dot separated path from the root scope.
func (w *World) Lookup(path string) Entity {
	if path == "" {
		return 0
	}
	var cur Entity
	for _, part := range strings.Split(path, ".") {
		cur = w.LookupChild(cur, part)
		if cur == 0 {
			return 0
		}
	}
	return cur
}

// Entity returns the entity with the given path, creating a named entity
// (and its parents) when none exists.
func (w *World) Entity(path string) Entity {
	if e := w.Lookup(path); e != 0 {
		return e
	}
	var cur Entity
	for _, part := range strings.Split(path, ".") {
		next := w.LookupChild(cur, part)
		if next == 0 {
			next = w.NewEntity()
			if cur != 0 {
				w.Add(next, Pair(ChildOf, cur))
			}
			w.SetName(next, part)
		}
		cur = next
	}
	return cur
}

// rescope moves the name of e into the scope of its new parent.
func (w *World) rescope(e Entity) {
	if name := w.names.nameOf(e); name != "" {
		w.names.set(e, w.Target(e, ChildOf, 0), name)
	}
}
