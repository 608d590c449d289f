package scenario

import (
	"github.com/edwinsyarief/sekai"
)

// Result holds the rows produced by one query.
type Result struct {
	Query  string `json:"query"`
	Cached bool   `json:"cached"`
	Rows   []Row  `json:"rows"`
}

// Row is one matched entity, or one match of a query without $this.
type Row struct {
	Entity string `json:"entity,omitempty"`
	// IDs holds the matched id of each field, "" for fields that did not
	// match.
	IDs []string `json:"ids"`
	// Sources holds the entity each field matched on, "" when it matched
	// on the row entity.
	Sources []string                      `json:"sources,omitempty"`
	Vars    map[string]string             `json:"vars,omitempty"`
	Values  map[string]map[string]float64 `json:"values,omitempty"`
}

// Run evaluates every query of the scenario in declaration order.
func (sw *World) Run() []Result {
	out := make([]Result, 0, len(sw.Queries))
	for _, q := range sw.Queries {
		out = append(out, sw.RunQuery(q))
	}
	return out
}

// RunQuery evaluates q with its preset variables.
func (sw *World) RunQuery(q *Query) Result {
	res := Result{Query: q.Name, Cached: q.Query.IsCached(), Rows: []Row{}}
	it := q.Query.Iter()
	for name, e := range q.Vars {
		it.SetVar(name, e)
	}
	for it.Next() {
		if it.Table == nil {
			res.Rows = append(res.Rows, sw.row(it, 0))
			continue
		}
		for i := 0; i < it.Count; i++ {
			res.Rows = append(res.Rows, sw.row(it, it.Entity(i)))
		}
	}
	return res
}

func (sw *World) row(it *sekai.Iter, e sekai.Entity) Row {
	n := it.Query().FieldCount()
	r := Row{IDs: make([]string, n)}
	if e != 0 {
		r.Entity = sw.Path(e)
	}
	var sources bool
	srcs := make([]string, n)
	for f := 0; f < n; f++ {
		if !it.IsSet(f) {
			continue
		}
		id := it.ID(f)
		r.IDs[f] = sw.IDString(id)
		src := e
		if !it.IsSelf(f) {
			src = it.Source(f)
			srcs[f] = sw.Path(src)
			sources = true
		}
		if src == 0 {
			continue
		}
		if vals := sw.Values(src, id); vals != nil {
			if r.Values == nil {
				r.Values = make(map[string]map[string]float64)
			}
			r.Values[sw.IDString(id)] = vals
		}
	}
	if sources {
		r.Sources = srcs
	}
	for _, name := range it.Query().VarNames() {
		if v := it.Var(name); v != 0 {
			if r.Vars == nil {
				r.Vars = make(map[string]string)
			}
			r.Vars[name] = sw.Path(v)
		}
	}
	return r
}
