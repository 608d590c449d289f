// Profiling:
// go build ./profile/query
// go tool pprof -http=":8000" -nodefraction=0.001 ./query cpu.pprof

package main

import (
	"flag"
	"log"

	"github.com/edwinsyarief/sekai"
	"github.com/pkg/profile"
)

type comp1 struct {
	V int64
	W int64
}

type comp2 struct {
	V int64
	W int64
}

type comp3 struct {
	V int64
	W int64
}

type comp4 struct {
	V int64
	W int64
}

func main() {
	cached := flag.Bool("cached", true, "use a cached query")
	mem := flag.Bool("mem", false, "profile allocations instead of cpu")
	flag.Parse()

	mode := profile.CPUProfile
	if *mem {
		mode = profile.MemProfileAllocs
	}
	p := profile.Start(mode, profile.ProfilePath("."), profile.NoShutdownHook)
	run(50, 10000, 100000, *cached)
	p.Stop()
}

func run(rounds, iters, numEntities int, cached bool) {
	cache := sekai.CacheNone
	if cached {
		cache = sekai.CacheAll
	}
	for range rounds {
		w := sekai.NewWorld(numEntities)
		c1 := sekai.RegisterComponent[comp1](w)
		c2 := sekai.RegisterComponent[comp2](w)
		c3 := sekai.RegisterComponent[comp3](w)
		c4 := sekai.RegisterComponent[comp4](w)
		ids := []sekai.ID{sekai.ID(c1), sekai.ID(c2), sekai.ID(c3), sekai.ID(c4)}

		// Spread the entities over a few tables so the query visits more
		// than one.
		for i := range 4 {
			tag := w.NewEntity()
			sekai.NewBuilder(w, append(ids[:i+1:i+1], sekai.ID(tag))...).NewEntities(numEntities / 4)
		}
		query, err := sekai.NewQuery(w, sekai.QueryDesc{
			Terms: []sekai.Term{sekai.T(ids[0]), sekai.T(ids[1]).WithOper(sekai.Optional)},
			Cache: cache,
		})
		if err != nil {
			log.Fatal(err)
		}

		for range iters {
			it := query.Iter()
			for it.Next() {
				a := sekai.Field[comp1](it, 0)
				b := sekai.Field[comp2](it, 1)
				if b == nil {
					continue
				}
				for i := range a {
					a[i].V += b[i].V
					a[i].W += b[i].W
				}
			}
		}
	}
}
