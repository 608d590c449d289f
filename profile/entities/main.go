// Profiling:
// go build ./profile/entities
// go tool pprof -http=":8000" -nodefraction=0.001 ./entities mem.pprof

package main

import (
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

func main() {
	count := 50
	iters := 10000
	entities := 1000
	p := profile.Start(profile.MemProfileAllocs, profile.ProfilePath("."), profile.NoShutdownHook)
	run(count, iters, entities)
	p.Stop()
}

func run(rounds, iters, numEntities int) {
	for range rounds {
		w := sekai.NewWorld(numEntities)
		c1 := sekai.RegisterComponent[comp1](w)
		c2 := sekai.RegisterComponent[comp2](w)
		parent := w.NewEntity()
		query, err := w.Query(sekai.T(sekai.ID(c1)), sekai.T(sekai.ID(c2)))
		if err != nil {
			panic(err)
		}
		batch := sekai.NewBuilder(w, sekai.ID(c1), sekai.ID(c2), sekai.Pair(sekai.ChildOf, parent))

		for range iters {
			batch.NewEntities(numEntities)
			query.Each(func(it *sekai.Iter) {
				a := sekai.Field[comp1](it, 0)
				b := sekai.Field[comp2](it, 1)
				for i, e := range it.Entities {
					a[i].V += b[i].V
					a[i].W += b[i].W
					w.Delete(e)
				}
			})
		}
	}
}
