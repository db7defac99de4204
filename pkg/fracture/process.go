package fracture

import (
	gomath "math"

	"github.com/Faultbox/fracture/pkg/hmesh"
	"github.com/Faultbox/fracture/pkg/math"
)

// posKey quantizes a position for vertex welding.
type posKey [3]int64

func keyOf(p math.Vec3, q float64) posKey {
	return posKey{
		int64(gomath.Round(p.X / q)),
		int64(gomath.Round(p.Y / q)),
		int64(gomath.Round(p.Z / q)),
	}
}

func weldTolerance(b math.Bounds) float64 {
	return 1e-6 * gomath.Max(1, b.Diagonal())
}

func triBounds(tris []hmesh.Triangle) math.Bounds {
	b := math.EmptyBounds()
	for _, t := range tris {
		for _, v := range t.Vertices {
			b = b.Include(v.Position)
		}
	}
	return b
}

// snapMicrogrid moves positions onto a grid of cells steps across b and
// drops triangles the snapping collapsed.
func snapMicrogrid(tris []hmesh.Triangle, cells int, b math.Bounds) []hmesh.Triangle {
	if cells <= 0 || b.IsEmpty() {
		return tris
	}
	step := b.Extents().Scale(1 / float64(cells))
	snap := func(x, lo, s float64) float64 {
		if s <= 0 {
			return x
		}
		return lo + gomath.Round((x-lo)/s)*s
	}
	out := make([]hmesh.Triangle, 0, len(tris))
	for _, t := range tris {
		for i := range t.Vertices {
			p := &t.Vertices[i].Position
			p.X = snap(p.X, b.Min.X, step.X)
			p.Y = snap(p.Y, b.Min.Y, step.Y)
			p.Z = snap(p.Z, b.Min.Z, step.Z)
		}
		if t.Area() > 0 {
			out = append(out, t)
		}
	}
	return out
}

// splitIslands groups triangles into connected components through shared
// vertex positions. Components are ordered by their first triangle.
func splitIslands(tris []hmesh.Triangle) [][]hmesh.Triangle {
	if len(tris) == 0 {
		return nil
	}
	q := weldTolerance(triBounds(tris))
	parent := make([]int, len(tris))
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(i int) int {
		for parent[i] != i {
			parent[i] = parent[parent[i]]
			i = parent[i]
		}
		return i
	}
	owner := map[posKey]int{}
	for i, t := range tris {
		for _, v := range t.Vertices {
			k := keyOf(v.Position, q)
			if j, ok := owner[k]; ok {
				a, b := find(i), find(j)
				if a != b {
					if a < b {
						parent[b] = a
					} else {
						parent[a] = b
					}
				}
				continue
			}
			owner[k] = i
		}
	}
	index := map[int]int{}
	var out [][]hmesh.Triangle
	for i, t := range tris {
		r := find(i)
		c, ok := index[r]
		if !ok {
			c = len(out)
			index[r] = c
			out = append(out, nil)
		}
		out[c] = append(out[c], t)
	}
	return out
}

// mergeFacetNormals replaces the normals of interior triangles with the
// area-weighted average of the interior faces meeting at each vertex whose
// normals are within thresholdDeg of the face's own. A zero threshold
// gives flat facet normals.
func mergeFacetNormals(tris []hmesh.Triangle, thresholdDeg float64) {
	q := weldTolerance(triBounds(tris))
	cosThr := gomath.Cos(thresholdDeg * gomath.Pi / 180)
	type face struct {
		n    math.Vec3
		area float64
	}
	faces := make([]face, len(tris))
	at := map[posKey][]int{}
	for i, t := range tris {
		if t.Flags&hmesh.TriangleInterior == 0 {
			continue
		}
		faces[i] = face{t.Normal(), t.Area()}
		for _, v := range t.Vertices {
			k := keyOf(v.Position, q)
			at[k] = append(at[k], i)
		}
	}
	for i := range tris {
		t := &tris[i]
		if t.Flags&hmesh.TriangleInterior == 0 {
			continue
		}
		own := faces[i].n
		for vi := range t.Vertices {
			sum := math.Vec3{}
			for _, j := range at[keyOf(t.Vertices[vi].Position, q)] {
				if j == i || own.Dot(faces[j].n) >= cosThr-1e-12 {
					sum = sum.Add(faces[j].n.Scale(faces[j].area))
				}
			}
			if sum.LengthSq() == 0 {
				sum = own
			}
			v := &t.Vertices[vi]
			v.Normal = sum.Normalize()
			v.Tangent, v.Binormal = orthoFrame(v.Normal, v.Tangent, v.Binormal)
		}
	}
}

// orthoFrame makes tangent perpendicular to n and rebuilds the binormal
// from them, keeping the handedness of the old binormal.
func orthoFrame(n, tangent, binormal math.Vec3) (math.Vec3, math.Vec3) {
	t := tangent.Sub(n.Scale(n.Dot(tangent)))
	if t.LengthSq() < 1e-24 {
		t, _ = math.Basis(n)
	}
	t = t.Normalize()
	b := n.Cross(t)
	if binormal.Dot(b) < 0 {
		b = b.Neg()
	}
	return t, b
}
