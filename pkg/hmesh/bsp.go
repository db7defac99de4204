package hmesh

import (
	"github.com/Faultbox/fracture/pkg/bsp"
)

// BSPOptions returns the tree options used for part i with seed.
func BSPOptions(seed uint64, i int) bsp.Options {
	o := bsp.DefaultOptions()
	o.Seed = seed ^ (uint64(i+1) * 0x9e3779b97f4a7c15)
	return o
}

// Polygons returns the triangles of part i as BSP polygons.
func (m *Mesh) Polygons(i int) []bsp.Polygon {
	return Polygons(m.parts[i].Triangles)
}

// CalculateMeshBSP builds and caches a BSP tree for every part of depth <=
// maxDepth. A negative maxDepth means RootDepth. progress may be nil; it
// receives one notification per part.
func (m *Mesh) CalculateMeshBSP(seed uint64, progress Progress, maxDepth int) {
	if maxDepth < 0 {
		maxDepth = m.rootDepth
	}
	var todo []int
	for i := range m.parts {
		if m.Depth(i) <= maxDepth {
			todo = append(todo, i)
		}
	}
	for n, i := range todo {
		if m.bsps[i] == nil {
			m.bsps[i] = bsp.Build(bsp.Weld(m.Polygons(i)), BSPOptions(seed, i))
		}
		if progress != nil {
			progress.SetProgress((n + 1) * 100 / len(todo))
		}
	}
}

// CachedBSP returns the cached tree of part i, or nil.
func (m *Mesh) CachedBSP(i int) *bsp.Tree {
	return m.cachedAt(i)
}

// PartBSP returns the cached tree of part i, building one with seed when
// none is cached. The result is not cached.
func (m *Mesh) PartBSP(i int, seed uint64) *bsp.Tree {
	if t := m.cachedAt(i); t != nil {
		return t
	}
	return bsp.Build(bsp.Weld(m.Polygons(i)), BSPOptions(seed, i))
}

func (m *Mesh) cachedAt(i int) *bsp.Tree {
	if i < 0 || i >= len(m.bsps) {
		return nil
	}
	return m.bsps[i]
}

func (m *Mesh) invalidate(i int) {
	if i >= 0 && i < len(m.bsps) {
		m.bsps[i] = nil
	}
}
