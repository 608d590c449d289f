package sekai

import (
	"go.uber.org/zap"
)

// WorldInfo holds counters describing the state of a world.
type WorldInfo struct {
	EntityCount        int
	TableCount         int
	EmptyTableCount    int
	IDRecordCount      int
	StorageTableCount  int
	QueryCount         int
	CachedQueryCount   int
	TablesCreatedTotal uint64
	TablesDeletedTotal uint64
	// StructuralVersion is incremented on every change that moves an entity
	// between tables or deletes it.
	StructuralVersion uint64
}

// World owns all entities, tables and id records.
type World struct {
	entities   entityRegistry
	ids        idRegistry
	tables     tableRegistry
	storages   map[uint64][]*storageTable
	components componentRegistry
	names      nameIndex
	events     *EventBus
	queries    queryRegistry
	stage      commandQueue
	logger     *zap.Logger
	config     Config
	info       WorldInfo

	idrWildcard     *IDRecord
	idrWildcardPair *IDRecord
	idrAny          *IDRecord
	idrChildOfRoot  *IDRecord

	traversableRefs    map[uint32]int32
	traversableVersion uint64
}

// Option configures a World at construction.
type Option func(*World)

// WithLogger sets the logger used for diagnostics. The default discards
// everything.
func WithLogger(l *zap.Logger) Option {
	return func(w *World) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithConfig replaces the default configuration.
func WithConfig(cfg *Config) Option {
	return func(w *World) {
		if cfg != nil {
			w.config = *cfg
		}
	}
}

// WithEventBus shares an event bus between worlds or with the caller.
func WithEventBus(bus *EventBus) Option {
	return func(w *World) {
		if bus != nil {
			w.events = bus
		}
	}
}

// NewWorld creates and initializes a new World with a specified initial
// capacity for entities. It creates the root table and the builtin
// entities.
//
// Parameters:
//   - initialCapacity: The number of entities to pre-allocate memory for.
//   - opts: Optional settings such as WithLogger or WithConfig.
//
// Returns:
//   - The newly created World.
func NewWorld(initialCapacity int, opts ...Option) *World {
	w := &World{
		logger:          zap.NewNop(),
		config:          *DefaultConfig(),
		events:          &EventBus{},
		storages:        make(map[uint64][]*storageTable),
		traversableRefs: make(map[uint32]int32),
	}
	for _, opt := range opts {
		opt(w)
	}
	if initialCapacity <= 0 {
		initialCapacity = w.config.World.InitialCapacity
	}
	w.entities.init(initialCapacity)
	w.ids.init()
	w.tables.init()
	w.components.init()
	w.names.init()
	w.queries.init()
	w.bootstrap()
	w.logger.Debug("world created",
		zap.Int("capacity", w.entities.capacity),
		zap.Int("tables", w.info.TableCount))
	return w
}

// NewWorldFromConfig builds the logger described by cfg and a world using
// both.
func NewWorldFromConfig(cfg *Config) (*World, error) {
	logger, err := NewLogger(cfg.Logging)
	if err != nil {
		return nil, err
	}
	return NewWorld(cfg.World.InitialCapacity, WithConfig(cfg), WithLogger(logger)), nil
}

func (w *World) bootstrap() {
	for e := Wildcard; e < lastBuiltin; e++ {
		w.entities.ensure(e)
	}
	w.idrWildcard = w.idRecordEnsure(ID(Wildcard))
	w.idrWildcardPair = w.idRecordEnsure(pairOf(uint32(Wildcard), uint32(Wildcard)))
	w.idrAny = w.idRecordEnsure(ID(Any))
	w.idrChildOfRoot = w.idRecordEnsure(pairOf(uint32(ChildOf), 0))
	for _, idr := range []*IDRecord{w.idrWildcard, w.idrWildcardPair, w.idrAny, w.idrChildOfRoot} {
		w.idRecordClaim(idr)
	}

	w.tables.root = w.tableNew(nil)
	for e := Wildcard; e < lastBuiltin; e++ {
		meta := w.entities.get(e)
		row := w.tableAppend(w.tables.root, e, true)
		meta.table = w.tables.root
		meta.setRow(row)
		if n := builtinNames[e]; n != "" && e != Wildcard && e != Any && e != This {
			w.names.set(e, 0, n)
		}
	}

	for _, e := range []Entity{IsA, ChildOf} {
		w.Add(e, ID(Traversable))
		w.Add(e, ID(DontInherit))
	}
	w.Add(ChildOf, ID(Exclusive))
	for _, e := range []Entity{Prefab, Disabled, NotQueryable, Flag} {
		w.Add(e, ID(DontInherit))
	}
}

// Logger returns the logger of the world.
func (w *World) Logger() *zap.Logger { return w.logger }

// Config returns the configuration of the world.
func (w *World) Config() Config { return w.config }

// Events returns the event bus of the world.
func (w *World) Events() *EventBus { return w.events }

// Info returns a snapshot of the world counters.
func (w *World) Info() WorldInfo {
	info := w.info
	info.EntityCount = w.entities.alive
	info.QueryCount = w.queries.count
	info.CachedQueryCount = len(w.queries.cached)
	return info
}

// NewEntity creates a new entity with no ids.
func (w *World) NewEntity() Entity {
	e := w.entities.newID()
	root := w.tables.root
	meta := w.entities.get(e)
	row := w.tableAppend(root, e, true)
	meta.table = root
	meta.setRow(row)
	return e
}

// NewEntityWith creates an entity and adds the given ids in one table
// transition.
func (w *World) NewEntityWith(ids ...ID) Entity {
	e := w.NewEntity()
	if len(ids) == 0 {
		return e
	}
	if w.stage.depth > 0 {
		for _, id := range ids {
			w.Add(e, id)
		}
		return e
	}
	for _, id := range ids {
		mustBeConcrete(id.StripRole())
	}
	dst := w.tableFind(ids...)
	diff := &tableDiff{added: dst.typ}
	w.commitMove(e, w.entities.get(e), dst, diff)
	w.afterAdd(e, diff)
	return e
}

// IsValid checks if the entity is currently alive in the world.
//
// Parameters:
//   - e: The Entity to validate.
//
// Returns:
//   - true if the entity is alive and its generation matches, false otherwise.
func (w *World) IsValid(e Entity) bool { return w.entities.isAlive(e) }

// IsAlive is an alias of IsValid.
func (w *World) IsAlive(e Entity) bool { return w.entities.isAlive(e) }

// GetAlive returns the live entity stored at index, or 0.
func (w *World) GetAlive(index uint32) Entity { return w.entities.aliveAt(index) }

// entityFree releases an entity that has already been removed from its
// table rows.
func (w *World) entityFree(e Entity) {
	meta := w.entities.get(e)
	if meta == nil {
		return
	}
	if meta.row&rowIsTraversable != 0 && meta.table != nil {
		w.tableTraversableDelta(meta.table, -1)
	}
	delete(w.traversableRefs, e.Index())
	w.names.remove(e)
	w.entities.free(e)
}

func (w *World) markEntity(e Entity, flag uint32) {
	if meta := w.entities.get(e); meta != nil {
		meta.row |= flag
	}
}

// setTraversable counts the traversable pairs that target e.
func (w *World) setTraversable(e Entity, on bool) {
	meta := w.entities.get(e)
	if meta == nil {
		return
	}
	index := e.Index()
	if on {
		w.traversableRefs[index]++
		if w.traversableRefs[index] == 1 {
			meta.row |= rowIsTraversable
			if meta.table != nil {
				w.tableTraversableDelta(meta.table, 1)
			}
		}
	} else if n := w.traversableRefs[index] - 1; n > 0 {
		w.traversableRefs[index] = n
	} else {
		delete(w.traversableRefs, index)
		if meta.row&rowIsTraversable != 0 {
			meta.row &^= rowIsTraversable
			if meta.table != nil {
				w.tableTraversableDelta(meta.table, -1)
			}
		}
	}
	w.traversableVersion++
}

func (w *World) tableTraversableDelta(t *Table, delta int32) {
	t.traversableCount += delta
	if t.traversableCount > 0 {
		t.flags |= TableHasTraversable
	} else {
		t.flags &^= TableHasTraversable
	}
	w.traversableVersion++
}

func (w *World) sanitize(tables ...*Table) {
	if !w.config.World.Sanitize {
		return
	}
	for _, t := range tables {
		if t != nil && !t.freed {
			w.checkTableSanity(t)
		}
	}
}
