package sekai

import (
	"fmt"
	"testing"
)

var benchSizes = []int{1000, 10000, 100000, 1000000}

func sizeName(size int) string {
	if size == 1000000 {
		return "1M"
	}
	return fmt.Sprintf("%dK", size/1000)
}

// World Entity Creation Benchmarks
func BenchmarkWorldCreateEntity(b *testing.B) {
	for _, size := range benchSizes {
		b.Run(sizeName(size), func(b *testing.B) {
			for b.Loop() {
				b.StopTimer()
				w := NewWorld(size)
				b.StartTimer()
				for range size {
					w.NewEntity()
				}
			}
			b.ReportAllocs()
		})
	}
}

// Builder Benchmarks
func BenchmarkBuilderNewEntity(b *testing.B) {
	for _, size := range benchSizes {
		b.Run(sizeName(size), func(b *testing.B) {
			for b.Loop() {
				b.StopTimer()
				w := NewWorld(size)
				builder := NewBuilder(w, ID(RegisterComponent[Position](w)))
				b.StartTimer()
				for range size {
					builder.NewEntity()
				}
			}
			b.ReportAllocs()
		})
	}
}

func BenchmarkBuilderNewEntities(b *testing.B) {
	for _, size := range benchSizes {
		b.Run(sizeName(size), func(b *testing.B) {
			for b.Loop() {
				b.StopTimer()
				w := NewWorld(size)
				builder := NewBuilder(w, ID(RegisterComponent[Position](w)), ID(RegisterComponent[Velocity](w)))
				b.StartTimer()
				builder.NewEntities(size)
			}
			b.ReportAllocs()
		})
	}
}

// Component Benchmarks
func BenchmarkFunctionsGetComponent(b *testing.B) {
	for _, size := range benchSizes {
		b.Run(sizeName(size), func(b *testing.B) {
			w := NewWorld(size)
			builder := NewBuilder(w, ID(RegisterComponent[Position](w)))
			entities := builder.NewEntities(size)
			for b.Loop() {
				for _, e := range entities {
					_ = GetComponent[Position](w, e)
				}
			}
			b.ReportAllocs()
		})
	}
}

func BenchmarkFunctionsSetComponentExisting(b *testing.B) {
	for _, size := range benchSizes {
		b.Run(sizeName(size), func(b *testing.B) {
			w := NewWorld(size)
			builder := NewBuilder(w, ID(RegisterComponent[Position](w)))
			entities := builder.NewEntities(size)
			for b.Loop() {
				for _, e := range entities {
					SetComponent(w, e, Position{X: 1})
				}
			}
			b.ReportAllocs()
		})
	}
}

func BenchmarkFunctionsSetComponentNew(b *testing.B) {
	for _, size := range benchSizes {
		b.Run(sizeName(size), func(b *testing.B) {
			for b.Loop() {
				b.StopTimer()
				w := NewWorld(size)
				builder := NewBuilder(w, ID(RegisterComponent[Position](w)))
				entities := builder.NewEntities(size)
				b.StartTimer()
				for _, e := range entities {
					SetComponent(w, e, Velocity{DX: 1})
				}
			}
			b.ReportAllocs()
		})
	}
}

func BenchmarkWorldDeleteEntity(b *testing.B) {
	for _, size := range benchSizes {
		b.Run(sizeName(size), func(b *testing.B) {
			for b.Loop() {
				b.StopTimer()
				w := NewWorld(size)
				builder := NewBuilder(w, ID(RegisterComponent[Position](w)))
				entities := builder.NewEntities(size)
				b.StartTimer()
				for _, e := range entities {
					w.Delete(e)
				}
			}
			b.ReportAllocs()
		})
	}
}

// Query Iteration Benchmarks
func benchQueryIterate(b *testing.B, cache CacheKind) {
	for _, size := range benchSizes {
		b.Run(sizeName(size), func(b *testing.B) {
			w := NewWorld(size)
			pos := RegisterComponent[Position](w)
			vel := RegisterComponent[Velocity](w)
			NewBuilder(w, ID(pos), ID(vel)).NewEntities(size)
			q, err := NewQuery(w, QueryDesc{Terms: []Term{T(ID(pos)), T(ID(vel))}, Cache: cache})
			if err != nil {
				b.Fatal(err)
			}
			for b.Loop() {
				it := q.Iter()
				for it.Next() {
					ps := Field[Position](it, 0)
					vs := Field[Velocity](it, 1)
					for i := range ps {
						ps[i].X += vs[i].DX
					}
				}
			}
			b.ReportAllocs()
		})
	}
}

func BenchmarkQueryIterate(b *testing.B) {
	b.Run("uncached", func(b *testing.B) { benchQueryIterate(b, CacheNone) })
	b.Run("cached", func(b *testing.B) { benchQueryIterate(b, CacheAll) })
}

// Fragmented tables: the same component spread over many tables.
func BenchmarkQueryFragmented(b *testing.B) {
	for _, tables := range []int{10, 100, 1000} {
		b.Run(fmt.Sprintf("%dtables", tables), func(b *testing.B) {
			w := NewWorld(tables * 10)
			pos := RegisterComponent[Position](w)
			for range tables {
				tag := w.NewEntity()
				NewBuilder(w, ID(pos), ID(tag)).NewEntities(10)
			}
			q, err := NewQuery(w, QueryDesc{Terms: []Term{T(ID(pos))}})
			if err != nil {
				b.Fatal(err)
			}
			for b.Loop() {
				_ = q.Count()
			}
			b.ReportAllocs()
		})
	}
}

func BenchmarkQueryUp(b *testing.B) {
	for _, size := range []int{1000, 10000, 100000} {
		b.Run(sizeName(size), func(b *testing.B) {
			w := NewWorld(size)
			pos := RegisterComponent[Position](w)
			parent := w.NewEntity()
			SetComponent(w, parent, Position{X: 1})
			NewBuilder(w, Pair(ChildOf, parent)).NewEntities(size)
			q, err := NewQuery(w, QueryDesc{Terms: []Term{T(ID(pos)).WithUp(ChildOf)}})
			if err != nil {
				b.Fatal(err)
			}
			for b.Loop() {
				it := q.Iter()
				for it.Next() {
					_ = Field[Position](it, 0)
				}
			}
			b.ReportAllocs()
		})
	}
}
