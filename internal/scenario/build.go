package scenario

import (
	"fmt"
	"reflect"
	"sort"
	"strings"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/edwinsyarief/sekai"
)

// World is a scenario loaded into a sekai world.
type World struct {
	*sekai.World
	Scenario *Scenario
	Queries  []*Query

	// fields of components declared with fields, by component.
	fields map[sekai.Entity][]string
}

// Query is a compiled scenario query.
type Query struct {
	Name  string
	Query *sekai.Query
	Vars  map[string]sekai.Entity
}

// Build creates the components, entities and queries of s in w. Entity
// errors stop the build; query compile errors are collected so that every
// broken query is reported at once.
func Build(w *sekai.World, s *Scenario) (*World, error) {
	sw := &World{World: w, Scenario: s, fields: make(map[sekai.Entity][]string)}
	for i := range s.Components {
		if err := sw.component(&s.Components[i]); err != nil {
			return nil, fmt.Errorf("component %q: %w", s.Components[i].Name, err)
		}
	}
	for _, e := range s.Entities {
		w.Entity(e.Name)
	}
	for i := range s.Entities {
		if err := sw.entity(&s.Entities[i]); err != nil {
			return nil, fmt.Errorf("entity %q: %w", s.Entities[i].Name, err)
		}
	}

	var errs error
	for i := range s.Queries {
		q, err := sw.query(&s.Queries[i])
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("query %q: %w", s.Queries[i].Name, err))
			continue
		}
		sw.Queries = append(sw.Queries, q)
	}
	if errs != nil {
		sw.Fini()
		return nil, errs
	}
	w.Logger().Debug("scenario built",
		zap.String("scenario", s.Name),
		zap.Int("components", len(s.Components)),
		zap.Int("entities", len(s.Entities)),
		zap.Int("queries", len(sw.Queries)))
	return sw, nil
}

// Fini releases the queries of the scenario.
func (sw *World) Fini() {
	for _, q := range sw.Queries {
		q.Query.Fini()
	}
	sw.Queries = nil
}

// QueryByName returns the named query or nil.
func (sw *World) QueryByName(name string) *Query {
	for _, q := range sw.Queries {
		if q.Name == name {
			return q
		}
	}
	return nil
}

func (sw *World) component(c *ComponentSpec) error {
	w := sw.World
	e := w.Entity(c.Name)
	typ, err := structType(c.Fields)
	if err != nil {
		return err
	}
	if typ == nil && c.Size > 0 {
		align := c.Align
		if align == 0 {
			align = 1
		}
		typ = sekai.RawType(uintptr(c.Size), uintptr(align))
	}
	if typ != nil {
		w.SetTypeInfo(e, &sekai.TypeInfo{Type: typ, Size: typ.Size(), Alignment: uintptr(typ.Align())})
	}
	if len(c.Fields) > 0 {
		names := make([]string, len(c.Fields))
		for i, f := range c.Fields {
			names[i], _, _ = strings.Cut(f, ":")
		}
		sw.fields[e] = names
	}
	for _, trait := range c.Traits {
		t := w.Lookup(trait)
		if t == 0 {
			return fmt.Errorf("unknown trait %q", trait)
		}
		w.Add(e, sekai.ID(t))
	}
	return nil
}

func (sw *World) entity(spec *EntitySpec) error {
	w := sw.World
	e := w.Lookup(spec.Name)
	for _, s := range spec.IDs {
		id, err := sw.resolveID(s)
		if err != nil {
			return err
		}
		w.Add(e, id)
	}
	// Sorted so that table creation order does not depend on map order.
	comps := make([]string, 0, len(spec.Set))
	for name := range spec.Set {
		comps = append(comps, name)
	}
	sort.Strings(comps)
	for _, name := range comps {
		if err := sw.set(e, name, spec.Set[name]); err != nil {
			return err
		}
	}
	for _, name := range spec.Disable {
		c := w.Lookup(name)
		if c == 0 {
			return fmt.Errorf("unknown component %q", name)
		}
		if !w.Has(c, sekai.ID(sekai.CanToggle)) {
			return fmt.Errorf("component %q cannot be toggled", name)
		}
		w.Enable(e, c, false)
	}
	return nil
}

func (sw *World) set(e sekai.Entity, name string, values map[string]float64) error {
	w := sw.World
	c := w.Lookup(name)
	names, ok := sw.fields[c]
	if c == 0 || !ok {
		return fmt.Errorf("set %q: not a component with fields", name)
	}
	w.Add(e, sekai.ID(c))
	ti := w.TypeInfoOf(c)
	v := reflect.NewAt(ti.Type, w.GetID(e, sekai.ID(c))).Elem()
	for field, val := range values {
		i := indexOf(names, field)
		if i < 0 {
			return fmt.Errorf("set %q: unknown field %q", name, field)
		}
		switch f := v.Field(i); f.Kind() {
		case reflect.Float32, reflect.Float64:
			f.SetFloat(val)
		default:
			f.SetInt(int64(val))
		}
	}
	return nil
}

// Values reads the fields of component c on e, following IsA. It returns
// nil when c was not declared with fields or e does not have it.
func (sw *World) Values(e sekai.Entity, id sekai.ID) map[string]float64 {
	names, ok := sw.fields[id.Entity()]
	if !ok || id.IsPair() {
		return nil
	}
	ptr := sw.GetID(e, id)
	if ptr == nil {
		return nil
	}
	v := reflect.NewAt(sw.TypeInfoOf(id.Entity()).Type, ptr).Elem()
	out := make(map[string]float64, len(names))
	for i, name := range names {
		switch f := v.Field(i); f.Kind() {
		case reflect.Float32, reflect.Float64:
			out[name] = f.Float()
		default:
			out[name] = float64(f.Int())
		}
	}
	return out
}

func indexOf(names []string, name string) int {
	for i, n := range names {
		if n == name {
			return i
		}
	}
	return -1
}

// resolveID turns an entity id string into an id. Wildcards are not
// allowed here.
func (sw *World) resolveID(s string) (sekai.ID, error) {
	first, second, err := splitID(s)
	if err != nil {
		return 0, err
	}
	f := sw.Lookup(first)
	if f == 0 {
		return 0, fmt.Errorf("unknown entity %q", first)
	}
	if second == "" {
		return sekai.ID(f), nil
	}
	t := sw.Lookup(second)
	if t == 0 {
		return 0, fmt.Errorf("unknown entity %q", second)
	}
	return sekai.Pair(f, t), nil
}

// ref turns a term reference string into a TermRef. Paths are resolved by
// the query compiler so that unknown names surface as query errors.
func ref(s string) sekai.TermRef {
	switch {
	case s == "*":
		return sekai.Ent(sekai.Wildcard)
	case s == "_":
		return sekai.Ent(sekai.Any)
	case strings.HasPrefix(s, "$"):
		return sekai.Var(s)
	default:
		return sekai.Named(s)
	}
}

func (sw *World) term(spec TermSpec) (sekai.Term, error) {
	first, second, err := splitID(spec.ID)
	if err != nil {
		return sekai.Term{}, err
	}
	t := sekai.Term{First: ref(first)}
	if second != "" {
		t = sekai.TPair(ref(first), ref(second))
	}
	if spec.Src != "" {
		t = t.WithSrc(ref(spec.Src))
	}
	oper, err := parseOper(spec.Oper)
	if err != nil {
		return sekai.Term{}, err
	}
	inout, err := parseInOut(spec.InOut)
	if err != nil {
		return sekai.Term{}, err
	}
	t = t.WithOper(oper).WithInOut(inout)

	var trav sekai.Entity
	if spec.Trav != "" {
		if trav = sw.Lookup(spec.Trav); trav == 0 {
			return sekai.Term{}, fmt.Errorf("unknown relationship %q", spec.Trav)
		}
	}
	switch spec.Traverse {
	case "up":
		t = t.WithUp(trav)
	case "selfup":
		t = t.WithSelfUp(trav)
	case "self":
		t.Src.Flags |= sekai.Self
	}
	return t, nil
}

func (sw *World) query(spec *QuerySpec) (*Query, error) {
	terms := make([]sekai.Term, 0, len(spec.Terms))
	var errs error
	for i, ts := range spec.Terms {
		t, err := sw.term(ts)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("term %d: %w", i, err))
			continue
		}
		terms = append(terms, t)
	}
	vars := make(map[string]sekai.Entity, len(spec.Vars))
	for name, path := range spec.Vars {
		e := sw.Lookup(path)
		if e == 0 {
			errs = multierr.Append(errs, fmt.Errorf("var %q: unknown entity %q", name, path))
			continue
		}
		vars[strings.TrimPrefix(name, "$")] = e
	}
	if errs != nil {
		return nil, errs
	}
	cache, _ := sekai.ParseCacheKind(spec.Cache)
	flags, _ := parseFlags(spec.Flags)
	q, err := sekai.NewQuery(sw.World, sekai.QueryDesc{Terms: terms, Cache: cache, Flags: flags})
	if err != nil {
		return nil, err
	}
	return &Query{Name: spec.Name, Query: q, Vars: vars}, nil
}
