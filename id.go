package sekai

import (
	"fmt"
	"strconv"
)

// Entity is a 64-bit handle. The low 32 bits hold the index into the entity
// index, the next 16 bits hold the generation that detects stale handles.
type Entity uint64

// ID identifies what a table stores: a plain entity (component or tag), a
// pair of entities, or an entity carrying a role flag (toggle, override).
type ID uint64

const (
	idPairFlag      ID = 1 << 63
	idToggleFlag    ID = 1 << 61
	idOverrideFlag  ID = 1 << 60
	idFlagsMask     ID = 0xFF << 56
	idComponentMask    = ^idFlagsMask

	entityIndexMask  = 0xFFFFFFFF
	entityGenShift   = 32
	entityGenMask    = 0xFFFF
	pairFirstMask    = 0xFFFFFF
	pairFirstShift   = 32
	maxPairFirstLo   = pairFirstMask
	maxEntityGenWrap = entityGenMask + 1
)

// Builtin entities. They live at fixed indices below FirstUserEntity and are
// created by NewWorld.
const (
	// Wildcard matches any id (or any pair element) and binds it.
	Wildcard Entity = iota + 1
	// Any matches any id without enumerating alternatives.
	Any
	// This is the default source of a term.
	This
	// Flag is the relationship used for role records such as (Flag, C).
	Flag
	// IsA is the inheritance relationship.
	IsA
	// ChildOf is the hierarchy relationship.
	ChildOf
	// Prefab marks template entities that queries skip by default.
	Prefab
	// Disabled marks entities that queries skip by default.
	Disabled
	// NotQueryable marks tables that queries never return.
	NotQueryable
	// DontInherit prevents an id from being reached through IsA.
	DontInherit
	// AlwaysOverride copies an inherited component into the instance.
	AlwaysOverride
	// Exclusive relationships allow at most one target per entity.
	Exclusive
	// Traversable relationships can be followed by Up terms.
	Traversable
	// CanToggle allows a component to be enabled and disabled per entity.
	CanToggle
	// Final prevents an entity from being used as an IsA base.
	Final
	// OnAdd is emitted after ids are added to an entity.
	OnAdd
	// OnRemove is emitted before ids are removed from an entity.
	OnRemove
	// OnTableCreate is emitted after a table is created.
	OnTableCreate
	// OnTableDelete is emitted before a table is deleted.
	OnTableDelete
	// OnTableEmpty is emitted when a table loses its last entity.
	OnTableEmpty
	// OnTableFill is emitted when an empty table receives an entity.
	OnTableFill

	lastBuiltin
)

// FirstUserEntity is the first index handed out to user entities.
const FirstUserEntity Entity = 256

var builtinNames = map[Entity]string{
	Wildcard:       "*",
	Any:            "_",
	This:           "$this",
	Flag:           "Flag",
	IsA:            "IsA",
	ChildOf:        "ChildOf",
	Prefab:         "Prefab",
	Disabled:       "Disabled",
	NotQueryable:   "NotQueryable",
	DontInherit:    "DontInherit",
	AlwaysOverride: "AlwaysOverride",
	Exclusive:      "Exclusive",
	Traversable:    "Traversable",
	CanToggle:      "CanToggle",
	Final:          "Final",
	OnAdd:          "OnAdd",
	OnRemove:       "OnRemove",
	OnTableCreate:  "OnTableCreate",
	OnTableDelete:  "OnTableDelete",
	OnTableEmpty:   "OnTableEmpty",
	OnTableFill:    "OnTableFill",
}

func newEntity(index uint32, gen uint16) Entity {
	return Entity(uint64(gen)<<entityGenShift | uint64(index))
}

// Index returns the slot of the entity in the entity index.
func (e Entity) Index() uint32 { return uint32(e & entityIndexMask) }

// Generation returns the recycle counter of the entity.
func (e Entity) Generation() uint16 {
	return uint16((e >> entityGenShift) & entityGenMask)
}

// ID returns the entity as a plain id.
func (e Entity) ID() ID { return ID(e) }

// String formats the entity as index or index#generation.
func (e Entity) String() string {
	if n, ok := builtinNames[e]; ok {
		return n
	}
	if g := e.Generation(); g != 0 {
		return strconv.FormatUint(uint64(e.Index()), 10) + "#" + strconv.FormatUint(uint64(g), 10)
	}
	return strconv.FormatUint(uint64(e.Index()), 10)
}

func isWildcardIndex(lo uint32) bool {
	return lo == uint32(Wildcard) || lo == uint32(Any)
}

// Pair builds the id of the relationship pair (first, second).
func Pair(first, second Entity) ID {
	ecsAssert(first.Index() <= maxPairFirstLo, CodeOutOfRange,
		"relationship %d does not fit in a pair", first.Index())
	return pairOf(first.Index(), second.Index())
}

func pairOf(firstLo, secondLo uint32) ID {
	return idPairFlag | ID(firstLo&pairFirstMask)<<pairFirstShift | ID(secondLo)
}

// Toggle returns id with the toggle role, which makes the id in the table
// track an enabled bit per entity.
func Toggle(id ID) ID { return id | idToggleFlag }

// Override returns id with the override role, which forces instances of a
// prefab to get their own copy of the component.
func Override(id ID) ID { return id | idOverrideFlag }

// IsPair reports whether the id is a relationship pair.
func (id ID) IsPair() bool { return id&idPairFlag != 0 }

// HasRole reports whether the id carries a role flag and is not a pair.
func (id ID) HasRole() bool { return !id.IsPair() && id&idFlagsMask != 0 }

// IsToggle reports whether the id carries the toggle role.
func (id ID) IsToggle() bool { return !id.IsPair() && id&idToggleFlag != 0 }

// IsOverride reports whether the id carries the override role.
func (id ID) IsOverride() bool { return !id.IsPair() && id&idOverrideFlag != 0 }

// StripRole removes role flags from a non-pair id.
func (id ID) StripRole() ID {
	if id.IsPair() {
		return id
	}
	return id & idComponentMask
}

// IsWildcard reports whether the id is or contains a wildcard.
func (id ID) IsWildcard() bool {
	if id.IsPair() {
		return isWildcardIndex(id.firstIndex()) || isWildcardIndex(id.secondIndex())
	}
	return id == ID(Wildcard) || id == ID(Any)
}

func (id ID) firstIndex() uint32 {
	return uint32((id >> pairFirstShift) & pairFirstMask)
}

func (id ID) secondIndex() uint32 {
	return uint32(id & entityIndexMask)
}

// Entity returns the plain entity of a non-pair id.
func (id ID) Entity() Entity { return Entity(id & idComponentMask) }

// String formats the id without resolving names.
func (id ID) String() string {
	switch {
	case id.IsPair():
		return "(" + Entity(id.firstIndex()).String() + "," + Entity(id.secondIndex()).String() + ")"
	case id.IsToggle():
		return "TOGGLE|" + id.StripRole().String()
	case id.IsOverride():
		return "OVERRIDE|" + id.StripRole().String()
	default:
		return Entity(id).String()
	}
}

// idMatch reports whether id is matched by pattern. Wildcard matches any
// plain id or pair element, Any additionally matches any id at all.
func idMatch(id, pattern ID) bool {
	if id == pattern {
		return true
	}
	if pattern == ID(Any) {
		return true
	}
	if pattern.IsPair() {
		if !id.IsPair() {
			return false
		}
		pf, ps := pattern.firstIndex(), pattern.secondIndex()
		if !isWildcardIndex(pf) && pf != id.firstIndex() {
			return false
		}
		return isWildcardIndex(ps) || ps == id.secondIndex()
	}
	if pattern == ID(Wildcard) {
		return id&idFlagsMask == 0
	}
	return false
}

func mustBeConcrete(id ID) {
	ecsAssert(id != 0, CodeInvalidParameter, "id is zero")
	ecsAssert(!id.IsWildcard(), CodeInvalidParameter, "id %s is a wildcard", id)
	if id.IsPair() {
		ecsAssert(id.secondIndex() != 0, CodeInvalidParameter, "pair %s has no target", id)
	}
}

// idString resolves names where the world knows them.
func (w *World) idString(id ID) string {
	switch {
	case id == 0:
		return "0"
	case id.IsPair():
		return "(" + w.entityString(id.firstIndex()) + "," + w.entityString(id.secondIndex()) + ")"
	case id.IsToggle():
		return "TOGGLE|" + w.idString(id.StripRole())
	case id.IsOverride():
		return "OVERRIDE|" + w.idString(id.StripRole())
	default:
		return w.entityString(Entity(id).Index())
	}
}

func (w *World) entityString(index uint32) string {
	e := w.entities.aliveAt(index)
	if e == 0 {
		return fmt.Sprintf("%d", index)
	}
	if n, ok := builtinNames[e]; ok {
		return n
	}
	if n := w.names.nameOf(e); n != "" {
		return n
	}
	return e.String()
}

// IDString formats an id using entity names where available.
func (w *World) IDString(id ID) string { return w.idString(id) }
