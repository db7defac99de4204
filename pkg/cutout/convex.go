package cutout

import (
	"fmt"

	"github.com/rclancey/earcut"

	"github.com/Faultbox/fracture/pkg/math"
)

// Triangulation is a region split into counter-clockwise triangles.
type Triangulation struct {
	// Points holds the outer loop followed by each hole.
	Points []math.Vec2
	// Flags parallels Points.
	Flags     []VertexFlags
	Triangles [][3]int
}

// Triangulate runs earcut over the outer loop and its holes.
func (r Region) Triangulate() (Triangulation, error) {
	var tr Triangulation
	var holes []int
	add := func(l Loop) {
		for _, v := range l.Vertices {
			tr.Points = append(tr.Points, v.Pos)
			tr.Flags = append(tr.Flags, v.Flags)
		}
	}
	add(r.Outer)
	for _, h := range r.Holes {
		holes = append(holes, len(tr.Points))
		add(h)
	}
	coords := make([]float64, 0, 2*len(tr.Points))
	for _, p := range tr.Points {
		coords = append(coords, p.X, p.Y)
	}
	idx, err := earcut.Earcut(coords, holes, 2)
	if err != nil {
		return Triangulation{}, fmt.Errorf("triangulate region: %w", err)
	}
	for i := 0; i+2 < len(idx); i += 3 {
		t := [3]int{idx[i], idx[i+1], idx[i+2]}
		a, b, c := tr.Points[t[0]], tr.Points[t[1]], tr.Points[t[2]]
		area := b.Sub(a).Cross(c.Sub(a))
		if area == 0 {
			continue
		}
		if area < 0 {
			t[1], t[2] = t[2], t[1]
		}
		tr.Triangles = append(tr.Triangles, t)
	}
	return tr, nil
}

// Triangulate triangulates every region of c.
func (c Cutout) Triangulate() ([]Triangulation, error) {
	var out []Triangulation
	for _, r := range c.Regions() {
		tr, err := r.Triangulate()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", c.Name, err)
		}
		out = append(out, tr)
	}
	return out, nil
}

// ConvexPiece is a convex counter-clockwise polygon.
type ConvexPiece struct {
	Points []math.Vec2
	Flags  []VertexFlags
}

// ConvexPieces decomposes c into convex polygons. Convex regions without
// holes are returned as they are; others are triangulated and the
// triangles merged greedily while the union stays convex (Hertel-Mehlhorn).
func (c Cutout) ConvexPieces() ([]ConvexPiece, error) {
	var out []ConvexPiece
	for _, r := range c.Regions() {
		if len(r.Holes) == 0 && math.IsConvex2D(r.Outer.Points()) {
			p := ConvexPiece{}
			for _, v := range r.Outer.Vertices {
				p.Points = append(p.Points, v.Pos)
				p.Flags = append(p.Flags, v.Flags)
			}
			out = append(out, p)
			continue
		}
		tr, err := r.Triangulate()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", c.Name, err)
		}
		for _, ring := range mergeConvex(tr.Points, tr.Triangles) {
			p := ConvexPiece{}
			for _, i := range ring {
				p.Points = append(p.Points, tr.Points[i])
				p.Flags = append(p.Flags, tr.Flags[i])
			}
			out = append(out, p)
		}
	}
	return out, nil
}

// mergeConvex removes shared diagonals between polygons as long as the
// merged polygon stays convex.
func mergeConvex(pts []math.Vec2, tris [][3]int) [][]int {
	polys := make([][]int, len(tris))
	for i, t := range tris {
		polys[i] = []int{t[0], t[1], t[2]}
	}
	for merged := true; merged; {
		merged = false
		for i := 0; i < len(polys); i++ {
			for j := i + 1; j < len(polys); j++ {
				m, ok := tryMerge(polys[i], polys[j], pts)
				if !ok {
					continue
				}
				polys[i] = m
				polys = append(polys[:j], polys[j+1:]...)
				merged = true
				j = i
			}
		}
	}
	return polys
}

func tryMerge(a, b []int, pts []math.Vec2) ([]int, bool) {
	na, nb := len(a), len(b)
	for k := 0; k < na; k++ {
		u, v := a[k], a[(k+1)%na]
		for m := 0; m < nb; m++ {
			if b[m] != v || b[(m+1)%nb] != u {
				continue
			}
			merged := make([]int, 0, na+nb-2)
			for s := 0; s < na; s++ {
				merged = append(merged, a[(k+1+s)%na])
			}
			for s := 2; s < nb; s++ {
				merged = append(merged, b[(m+s)%nb])
			}
			if !distinct(merged) {
				return nil, false
			}
			ring := make([]math.Vec2, len(merged))
			for i, idx := range merged {
				ring[i] = pts[idx]
			}
			if !convexCCW(ring) {
				return nil, false
			}
			return merged, true
		}
	}
	return nil, false
}

func distinct(idx []int) bool {
	seen := make(map[int]bool, len(idx))
	for _, i := range idx {
		if seen[i] {
			return false
		}
		seen[i] = true
	}
	return true
}

func convexCCW(ring []math.Vec2) bool {
	n := len(ring)
	for i := 0; i < n; i++ {
		a, b, c := ring[i], ring[(i+1)%n], ring[(i+2)%n]
		if b.Sub(a).Cross(c.Sub(b)) < -1e-12 {
			return false
		}
	}
	return math.PolygonArea2D(ring) > 0
}
