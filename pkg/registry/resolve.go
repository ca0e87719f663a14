package registry

import (
	"runtime"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/sourcegraph/conc/pool"
)

// Resolve computes every library's dependency set: A depends on B when at
// least one of A's undefined symbols is defined by B. Which symbol satisfied
// the edge is not recorded; the edge is boolean.
//
// Rather than intersecting raw name sets for every ordered pair, symbols are
// interned once into a shared index and each library's sets become Roaring
// bitmaps, so the per-pair test is a bitmap intersection. The result is
// identical to the naive all-pairs scan.
//
// Dependency sets are rebuilt from scratch, so re-running after a symbol
// change never leaves stale edges. Rows are derived in parallel; each
// goroutine writes only its own library's Dependencies while reading the
// shared immutable index.
func (r *Registry) Resolve() {
	libs := r.Libraries()
	idx := newSymbolIndex(libs)

	p := pool.New().WithMaxGoroutines(runtime.NumCPU())
	for _, lib := range libs {
		p.Go(func() {
			lib.Dependencies = idx.dependenciesOf(lib)
		})
	}
	p.Wait()

	r.resolved = true
	r.indexed = false
}

// symbolIndex interns every defined symbol in the registry to a dense id and
// keeps one bitmap of defined-symbol ids per library. Undefined symbols that
// no library defines have no id; they cannot produce an edge.
type symbolIndex struct {
	ids     map[string]uint32
	defined []*roaring.Bitmap // parallel to libs
	libs    []*Library
}

func newSymbolIndex(libs []*Library) *symbolIndex {
	idx := &symbolIndex{
		ids:     make(map[string]uint32),
		defined: make([]*roaring.Bitmap, len(libs)),
		libs:    libs,
	}
	for i, lib := range libs {
		bm := roaring.New()
		for sym := range lib.Defined {
			id, ok := idx.ids[sym]
			if !ok {
				id = uint32(len(idx.ids))
				idx.ids[sym] = id
			}
			bm.Add(id)
		}
		idx.defined[i] = bm
	}
	return idx
}

// dependenciesOf returns the names of every other library whose defined
// bitmap intersects lib's undefined bitmap. Self-edges are excluded.
func (x *symbolIndex) dependenciesOf(lib *Library) Set {
	want := roaring.New()
	for sym := range lib.Undefined {
		if id, ok := x.ids[sym]; ok {
			want.Add(id)
		}
	}

	deps := NewSet()
	if want.IsEmpty() {
		return deps
	}
	for i, other := range x.libs {
		if other.Name == lib.Name {
			continue
		}
		if want.Intersects(x.defined[i]) {
			deps.Add(other.Name)
		}
	}
	return deps
}
