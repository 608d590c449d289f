package sekai

import "slices"

// tableDiff lists the ids added and removed by a table transition.
type tableDiff struct {
	added   []ID
	removed []ID
}

var emptyDiff = &tableDiff{}

// graphEdge is a cached transition from one table to another.
type graphEdge struct {
	from *Table
	to   *Table
	id   ID
	diff *tableDiff
}

// graphNode holds the outgoing add/remove edges of a table and the edges
// of other tables that point to it, so they can be cleared when the table
// is deleted.
type graphNode struct {
	add      map[ID]*graphEdge
	remove   map[ID]*graphEdge
	incoming map[*graphEdge]struct{}
}

func (n *graphNode) init() {
	n.add = make(map[ID]*graphEdge)
	n.remove = make(map[ID]*graphEdge)
	n.incoming = make(map[*graphEdge]struct{})
}

// tableTraverseAdd returns the table reached by adding id to t.
func (w *World) tableTraverseAdd(t *Table, id ID) (*Table, *tableDiff) {
	if e, ok := t.node.add[id]; ok {
		return e.to, e.diff
	}
	to, diff := w.tableComputeAdd(t, id)
	w.graphEnsureEdge(t, t.node.add, id, to, diff)
	if to != t && len(diff.removed) == 0 {
		if _, ok := to.node.remove[id]; !ok {
			w.graphEnsureEdge(to, to.node.remove, id, t, &tableDiff{removed: diff.added})
		}
	}
	return to, diff
}

// tableTraverseRemove returns the table reached by removing id from t. A
// wildcard id removes all matching ids.
func (w *World) tableTraverseRemove(t *Table, id ID) (*Table, *tableDiff) {
	if e, ok := t.node.remove[id]; ok {
		return e.to, e.diff
	}
	to, diff := w.tableComputeRemove(t, id)
	w.graphEnsureEdge(t, t.node.remove, id, to, diff)
	if to != t && !id.IsWildcard() {
		if _, ok := to.node.add[id]; !ok {
			w.graphEnsureEdge(to, to.node.add, id, t, &tableDiff{added: diff.removed})
		}
	}
	return to, diff
}

func (w *World) graphEnsureEdge(from *Table, edges map[ID]*graphEdge, id ID, to *Table, diff *tableDiff) {
	e := &graphEdge{from: from, to: to, id: id, diff: diff}
	edges[id] = e
	if to != from {
		to.node.incoming[e] = struct{}{}
	}
}

func (w *World) tableComputeAdd(t *Table, id ID) (*Table, *tableDiff) {
	if t.hasID(id) {
		return t, emptyDiff
	}
	typ := t.typ
	diff := &tableDiff{added: []ID{id}}
	if id.IsPair() {
		if rel := w.entities.aliveAt(id.firstIndex()); rel != 0 && w.traitFlags(rel)&IDExclusive != 0 {
			pattern := pairOf(id.firstIndex(), uint32(Wildcard))
			kept := make([]ID, 0, len(typ))
			for _, existing := range typ {
				if idMatch(existing, pattern) {
					diff.removed = append(diff.removed, existing)
					continue
				}
				kept = append(kept, existing)
			}
			typ = kept
		}
	}
	next, _ := sortedInsert(typ, id)
	return w.tableFindOrCreate(next), diff
}

func (w *World) tableComputeRemove(t *Table, id ID) (*Table, *tableDiff) {
	if !id.IsWildcard() {
		i := typeIndex(t.typ, id)
		if i < 0 {
			return t, emptyDiff
		}
		next := slices.Delete(slices.Clone(t.typ), i, i+1)
		return w.tableFindOrCreate(next), &tableDiff{removed: []ID{id}}
	}
	diff := &tableDiff{}
	next := make([]ID, 0, len(t.typ))
	for _, existing := range t.typ {
		if idMatch(existing, id) {
			diff.removed = append(diff.removed, existing)
			continue
		}
		next = append(next, existing)
	}
	if len(diff.removed) == 0 {
		return t, emptyDiff
	}
	return w.tableFindOrCreate(next), diff
}

// clearEdges drops all edges from and to t.
func (w *World) clearEdges(t *Table) {
	for _, edges := range []map[ID]*graphEdge{t.node.add, t.node.remove} {
		for id, e := range edges {
			if e.to != t {
				delete(e.to.node.incoming, e)
			}
			delete(edges, id)
		}
	}
	for e := range t.node.incoming {
		from := e.from
		if cur, ok := from.node.add[e.id]; ok && cur == e {
			delete(from.node.add, e.id)
		}
		if cur, ok := from.node.remove[e.id]; ok && cur == e {
			delete(from.node.remove, e.id)
		}
	}
	clear(t.node.incoming)
}

// tableFind returns the table for an arbitrary id list by walking add edges
// from the root table.
func (w *World) tableFind(ids ...ID) *Table {
	t := w.tables.root
	for _, id := range ids {
		t, _ = w.tableTraverseAdd(t, id)
	}
	return t
}

// TableFind returns (creating if needed) the table with exactly the given
// ids. Exclusive relationships keep the last target passed.
func (w *World) TableFind(ids ...ID) *Table {
	for _, id := range ids {
		mustBeConcrete(id.StripRole())
	}
	return w.tableFind(ids...)
}

// EdgeCount returns the number of cached add and remove edges of a table.
func (t *Table) EdgeCount() (add, remove int) {
	return len(t.node.add), len(t.node.remove)
}
