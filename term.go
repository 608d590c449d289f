package sekai

import (
	"fmt"
	"strings"
)

// Oper is the operator of a query term.
type Oper uint8

const (
	// And requires the term to match.
	And Oper = iota
	// Or joins the term with the next term: at least one must match.
	Or
	// Not requires the term not to match.
	Not
	// Optional matches whether or not the term matches.
	Optional
	// AndFrom requires every id of the first entity's type.
	AndFrom
	// OrFrom requires at least one id of the first entity's type.
	OrFrom
	// NotFrom requires none of the ids of the first entity's type.
	NotFrom
)

var operNames = [...]string{"and", "or", "not", "optional", "andfrom", "orfrom", "notfrom"}

func (o Oper) String() string {
	if int(o) < len(operNames) {
		return operNames[o]
	}
	return fmt.Sprintf("oper(%d)", o)
}

// RefFlags qualify a term reference.
type RefFlags uint16

const (
	// Self matches the id on the source itself.
	Self RefFlags = 1 << iota
	// Up matches the id on an entity reached by traversing a relationship
	// from the source.
	Up
	// IsVariable marks the reference as a variable named by Name.
	IsVariable
	// IsEntity marks the reference as the entity in ID.
	IsEntity
	// IsName marks the reference as a path resolved with World.Lookup.
	IsName
)

// SelfUp matches the id on the source, then on its ancestors.
const SelfUp = Self | Up

// TermRef refers to the first, second or source element of a term.
type TermRef struct {
	ID    Entity
	Name  string
	Flags RefFlags
}

// Var returns a reference to the variable name. "this" is the default
// source. A dot separated name such as "this.wheel" looks up a named child
// of the variable before it.
func Var(name string) TermRef {
	return TermRef{Name: strings.TrimPrefix(name, "$"), Flags: IsVariable}
}

// Ent returns a reference to a fixed entity.
func Ent(e Entity) TermRef { return TermRef{ID: e, Flags: IsEntity} }

// Named returns a reference to the entity at path.
func Named(path string) TermRef { return TermRef{Name: path, Flags: IsName} }

func (r TermRef) isSet() bool {
	return r.ID != 0 || r.Name != "" || r.Flags&(IsVariable|IsEntity|IsName) != 0
}

func (r TermRef) isVar() bool { return r.Flags&IsVariable != 0 }

func (r TermRef) isThis() bool { return r.isVar() && r.Name == "this" }

func (r TermRef) same(o TermRef) bool {
	return r.ID == o.ID && r.Name == o.Name && r.Flags&(IsVariable|IsEntity|IsName) == o.Flags&(IsVariable|IsEntity|IsName)
}

// InOutKind documents how a field is accessed. It does not change matching.
type InOutKind uint8

const (
	InOutDefault InOutKind = iota
	InOut
	In
	Out
	InOutNone
)

// Term is one condition of a query. Either ID or First (with an optional
// Second) names what is matched. Src defaults to $this.
type Term struct {
	ID     ID
	First  TermRef
	Second TermRef
	Src    TermRef
	Trav   Entity
	Oper   Oper
	InOut  InOutKind

	field int
}

// T returns a term matching id on $this.
func T(id ID) Term { return Term{ID: id} }

// TPair returns a term matching the pair (first, second) on $this.
func TPair(first, second TermRef) Term { return Term{First: first, Second: second} }

// WithSrc returns a copy of the term matched on src. Traversal flags already
// set on the source are kept.
func (t Term) WithSrc(src TermRef) Term {
	src.Flags |= t.Src.Flags & (Self | Up)
	t.Src = src
	return t
}

// WithOper returns a copy of the term with the operator set.
func (t Term) WithOper(op Oper) Term {
	t.Oper = op
	return t
}

// WithUp returns a copy of the term that only matches through trav (IsA
// when zero).
func (t Term) WithUp(trav Entity) Term {
	t.Src.Flags = t.Src.Flags&^(Self|Up) | Up
	t.Trav = trav
	return t
}

// WithSelfUp returns a copy of the term that matches on the source first and
// then through trav (IsA when zero).
func (t Term) WithSelfUp(trav Entity) Term {
	t.Src.Flags = t.Src.Flags&^(Self|Up) | SelfUp
	t.Trav = trav
	return t
}

// WithInOut returns a copy of the term with the access kind set.
func (t Term) WithInOut(k InOutKind) Term {
	t.InOut = k
	return t
}

// CacheKind selects whether a query keeps a cache of matched tables.
type CacheKind uint8

const (
	// CacheDefault uses the world configuration.
	CacheDefault CacheKind = iota
	// CacheNone evaluates the query from scratch on every iteration.
	CacheNone
	// CacheAuto caches queries that only match $this without variables.
	CacheAuto
	// CacheAll caches every query that has $this as a source.
	CacheAll
)

// ParseCacheKind parses the names used in configuration files.
func ParseCacheKind(s string) (CacheKind, error) {
	switch strings.ToLower(s) {
	case "", "default":
		return CacheDefault, nil
	case "none":
		return CacheNone, nil
	case "auto":
		return CacheAuto, nil
	case "all":
		return CacheAll, nil
	}
	return CacheDefault, fmt.Errorf("unknown cache kind %q", s)
}

// QueryFlags change which tables a query considers.
type QueryFlags uint32

const (
	// MatchPrefab includes tables with the Prefab tag.
	MatchPrefab QueryFlags = 1 << iota
	// MatchDisabled includes tables with the Disabled tag.
	MatchDisabled
	// MatchEmptyTables includes tables without entities.
	MatchEmptyTables
)

// QueryDesc describes a query.
type QueryDesc struct {
	Terms []Term
	Cache CacheKind
	Flags QueryFlags
}
