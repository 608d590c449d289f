package sekai

// tableCache indexes the tables that hold an id. Nodes live in an arena and
// are linked into one of two lists: tables with entities and empty tables.
// The index maps a table id to its node so membership tests are O(1).
type tableCache struct {
	nodes  []tableCacheNode
	free   []int32
	index  map[uint64]int32
	tables tableCacheList
	empty  tableCacheList
}

type tableCacheNode struct {
	table  *Table
	record int32 // index into table.records
	prev   int32
	next   int32
	empty  bool
}

type tableCacheList struct {
	first int32
	last  int32
	count int
}

const nilNode int32 = -1

func (c *tableCache) init() {
	c.index = make(map[uint64]int32)
	c.tables = tableCacheList{first: nilNode, last: nilNode}
	c.empty = tableCacheList{first: nilNode, last: nilNode}
}

func (c *tableCache) list(empty bool) *tableCacheList {
	if empty {
		return &c.empty
	}
	return &c.tables
}

func (c *tableCache) link(n int32) {
	node := &c.nodes[n]
	l := c.list(node.empty)
	node.prev = l.last
	node.next = nilNode
	if l.last != nilNode {
		c.nodes[l.last].next = n
	} else {
		l.first = n
	}
	l.last = n
	l.count++
}

func (c *tableCache) unlink(n int32) {
	node := &c.nodes[n]
	l := c.list(node.empty)
	if node.prev != nilNode {
		c.nodes[node.prev].next = node.next
	} else {
		l.first = node.next
	}
	if node.next != nilNode {
		c.nodes[node.next].prev = node.prev
	} else {
		l.last = node.prev
	}
	node.prev, node.next = nilNode, nilNode
	l.count--
}

// insert registers a table at the end of the list matching its state.
func (c *tableCache) insert(t *Table, record int32) {
	_, exists := c.index[t.id]
	ecsAssert(!exists, CodeInternal, "table %d already in cache", t.id)
	var n int32
	if k := len(c.free); k > 0 {
		n = c.free[k-1]
		c.free = c.free[:k-1]
	} else {
		c.nodes = append(c.nodes, tableCacheNode{})
		n = int32(len(c.nodes) - 1)
	}
	c.nodes[n] = tableCacheNode{table: t, record: record, empty: t.Count() == 0}
	c.index[t.id] = n
	c.link(n)
}

// get returns the record index of the table, if cached.
func (c *tableCache) get(t *Table) (int32, bool) {
	n, ok := c.index[t.id]
	if !ok {
		return 0, false
	}
	return c.nodes[n].record, true
}

func (c *tableCache) has(t *Table) bool {
	_, ok := c.index[t.id]
	return ok
}

// remove unregisters a table.
func (c *tableCache) remove(t *Table) {
	n, ok := c.index[t.id]
	if !ok {
		return
	}
	c.unlink(n)
	c.nodes[n] = tableCacheNode{prev: nilNode, next: nilNode}
	delete(c.index, t.id)
	c.free = append(c.free, n)
}

// setEmpty moves a table between the empty and non-empty lists.
func (c *tableCache) setEmpty(t *Table, empty bool) {
	n, ok := c.index[t.id]
	if !ok || c.nodes[n].empty == empty {
		return
	}
	c.unlink(n)
	c.nodes[n].empty = empty
	c.link(n)
}

func (c *tableCache) tableCount() int { return c.tables.count }
func (c *tableCache) emptyCount() int { return c.empty.count }

// iter walks non-empty tables first, then empty ones when includeEmpty is set.
func (c *tableCache) iter(includeEmpty bool) tableCacheIter {
	it := tableCacheIter{cache: c, cur: c.tables.first, pendingEmpty: includeEmpty}
	return it
}

type tableCacheIter struct {
	cache        *tableCache
	cur          int32
	pendingEmpty bool
}

// next returns the next node or nil. The node pointer is valid until the
// cache is modified.
func (it *tableCacheIter) next() *tableCacheNode {
	if it.cache == nil {
		return nil
	}
	for it.cur == nilNode {
		if !it.pendingEmpty {
			return nil
		}
		it.pendingEmpty = false
		it.cur = it.cache.empty.first
	}
	node := &it.cache.nodes[it.cur]
	it.cur = node.next
	return node
}
