package sekai

// Row flags live in the high bits of entityMeta.row. The low bits hold the
// row of the entity in its table.
const (
	rowMask          uint32 = 0x0FFFFFFF
	rowFlagsMask     uint32 = ^rowMask
	rowIsTraversable uint32 = 1 << 31 // target of a traversable relationship
	rowIsTarget      uint32 = 1 << 30 // target of any pair
	rowIsID          uint32 = 1 << 29 // used as an id or relationship
)

// entityMeta holds the location and state of an entity.
type entityMeta struct {
	table      *Table
	row        uint32
	generation uint16
	alive      bool
}

func (m *entityMeta) rowIndex() int { return int(m.row & rowMask) }

func (m *entityMeta) setRow(row int) {
	m.row = (m.row & rowFlagsMask) | uint32(row)&rowMask
}

// entityRegistry is the sparse entity index: dense metas indexed by entity
// index plus a free list of recycled indices.
type entityRegistry struct {
	freeIDs         []uint32
	metas           []entityMeta
	capacity        int
	initialCapacity int
	alive           int
	nextIndex       uint32
}

func (r *entityRegistry) init(initialCapacity int) {
	if initialCapacity < int(FirstUserEntity) {
		initialCapacity = int(FirstUserEntity)
	}
	r.capacity = initialCapacity
	r.initialCapacity = initialCapacity
	r.metas = make([]entityMeta, initialCapacity)
	r.freeIDs = make([]uint32, 0, 64)
	r.nextIndex = uint32(FirstUserEntity)
}

// expand grows the dense array when the next index does not fit.
func (r *entityRegistry) expand(additional int) {
	oldCap := r.capacity
	newCap := oldCap * 2
	if newCap < oldCap+additional {
		newCap = oldCap + additional
	}
	r.metas = append(r.metas, make([]entityMeta, newCap-oldCap)...)
	r.capacity = newCap
}

// newID hands out a recycled index if one is available, otherwise the next
// unused index.
func (r *entityRegistry) newID() Entity {
	var index uint32
	if n := len(r.freeIDs); n > 0 {
		index = r.freeIDs[n-1]
		r.freeIDs = r.freeIDs[:n-1]
	} else {
		index = r.nextIndex
		r.nextIndex++
		if int(index) >= r.capacity {
			r.expand(1)
		}
	}
	meta := &r.metas[index]
	meta.alive = true
	meta.table = nil
	meta.row = 0
	r.alive++
	return newEntity(index, meta.generation)
}

// ensure makes a fixed index alive with generation 0. Used for builtins.
func (r *entityRegistry) ensure(e Entity) *entityMeta {
	index := e.Index()
	for int(index) >= r.capacity {
		r.expand(int(index) - r.capacity + 1)
	}
	meta := &r.metas[index]
	if !meta.alive {
		meta.alive = true
		meta.generation = e.Generation()
		r.alive++
	}
	return meta
}

// get returns the meta of a live entity or nil when the handle is stale.
func (r *entityRegistry) get(e Entity) *entityMeta {
	index := e.Index()
	if int(index) >= len(r.metas) {
		return nil
	}
	meta := &r.metas[index]
	if !meta.alive || meta.generation != e.Generation() {
		return nil
	}
	return meta
}

func (r *entityRegistry) isAlive(e Entity) bool { return r.get(e) != nil }

// aliveAt returns the live entity at index, or 0 if the slot is free.
// Pair ids only store indices, this recovers the full handle.
func (r *entityRegistry) aliveAt(index uint32) Entity {
	if index == 0 || int(index) >= len(r.metas) {
		return 0
	}
	meta := &r.metas[index]
	if !meta.alive {
		return 0
	}
	return newEntity(index, meta.generation)
}

func (r *entityRegistry) metaAt(index uint32) *entityMeta {
	if int(index) >= len(r.metas) {
		return nil
	}
	meta := &r.metas[index]
	if !meta.alive {
		return nil
	}
	return meta
}

// free releases the index and bumps its generation.
func (r *entityRegistry) free(e Entity) {
	meta := r.get(e)
	if meta == nil {
		return
	}
	meta.alive = false
	meta.table = nil
	meta.row = 0
	meta.generation = uint16((uint32(meta.generation) + 1) % maxEntityGenWrap)
	r.alive--
	r.freeIDs = append(r.freeIDs, e.Index())
}
