package bsp

import (
	"github.com/Faultbox/fracture/pkg/math"
)

// Flag bits carried by Meta.Flags.
const (
	// FlagInterior marks faces created by a cutting surface.
	FlagInterior uint32 = 1 << iota
)

// Meta is the per-face data that travels with every fragment of a polygon.
type Meta struct {
	Submesh   int
	Smoothing uint32
	Frame     int
	Flags     uint32
}

// Polygon is a planar convex polygon with counter-clockwise winding seen
// from the front of Plane.
type Polygon struct {
	Vertices []Vertex
	Plane    math.Plane
	Meta     Meta
}

// NewPolygon builds a polygon and computes its plane with Newell's method.
// ok is false when the vertices do not span an area.
func NewPolygon(verts []Vertex, meta Meta) (Polygon, bool) {
	if len(verts) < 3 {
		return Polygon{}, false
	}
	n, c := newell(verts)
	l := n.Length()
	if l < 1e-18 {
		return Polygon{}, false
	}
	n = n.Scale(1 / l)
	return Polygon{
		Vertices: verts,
		Plane:    math.Plane{Normal: n, D: n.Dot(c)},
		Meta:     meta,
	}, true
}

// newell returns the unnormalized area normal and the centroid.
func newell(verts []Vertex) (n, c math.Vec3) {
	for i := range verts {
		a := verts[i].Position
		b := verts[(i+1)%len(verts)].Position
		n.X += (a.Y - b.Y) * (a.Z + b.Z)
		n.Y += (a.Z - b.Z) * (a.X + b.X)
		n.Z += (a.X - b.X) * (a.Y + b.Y)
		c = c.Add(a)
	}
	return n, c.Scale(1 / float64(len(verts)))
}

// Clone returns a deep copy.
func (p Polygon) Clone() Polygon {
	q := p
	q.Vertices = append([]Vertex(nil), p.Vertices...)
	return q
}

// Flip reverses the winding, plane and vertex frames in place.
func (p *Polygon) Flip() {
	vs := p.Vertices
	for i, j := 0, len(vs)-1; i < j; i, j = i+1, j-1 {
		vs[i], vs[j] = vs[j], vs[i]
	}
	for i := range vs {
		vs[i].flip()
	}
	p.Plane = p.Plane.Flip()
}

// Centroid returns the vertex average.
func (p Polygon) Centroid() math.Vec3 {
	var c math.Vec3
	for _, v := range p.Vertices {
		c = c.Add(v.Position)
	}
	return c.Scale(1 / float64(len(p.Vertices)))
}

// Area returns the polygon area.
func (p Polygon) Area() float64 {
	n, _ := newell(p.Vertices)
	return n.Length() / 2
}

const (
	coplanar = 0
	front    = 1
	back     = 2
	spanning = 3
)

// splitter classifies and cuts polygons against planes.
type splitter struct {
	eps       float64
	fallbacks int
}

// split puts p, or its fragments, into the matching list. Coplanar polygons
// facing the same way as pl go to coFront; opposite or degenerate ones go to
// coBack. Vertices within tolerance of pl keep their position, so faces
// sharing them stay closed. A spanning polygon whose fragments would be
// degenerate is kept whole on the side of its centroid.
func (s *splitter) split(pl math.Plane, p *Polygon, coFront, coBack, fr, bk *[]Polygon) {
	var small [16]int
	var smallD [16]float64
	types, dists := small[:0], smallD[:0]
	if len(p.Vertices) > len(small) {
		types = make([]int, 0, len(p.Vertices))
		dists = make([]float64, 0, len(p.Vertices))
	}
	ptype := coplanar
	for _, v := range p.Vertices {
		d := pl.Distance(v.Position)
		t := coplanar
		if d < -s.eps {
			t = back
		} else if d > s.eps {
			t = front
		}
		ptype |= t
		types = append(types, t)
		dists = append(dists, d)
	}

	switch ptype {
	case coplanar:
		if pl.Normal.Dot(p.Plane.Normal) > 0 {
			*coFront = append(*coFront, *p)
		} else {
			*coBack = append(*coBack, *p)
		}
	case front:
		*fr = append(*fr, *p)
	case back:
		*bk = append(*bk, *p)
	default:
		n := len(p.Vertices)
		f := make([]Vertex, 0, n+2)
		b := make([]Vertex, 0, n+2)
		for i := 0; i < n; i++ {
			j := (i + 1) % n
			ti, tj := types[i], types[j]
			vi, vj := p.Vertices[i], p.Vertices[j]
			if ti != back {
				f = append(f, vi)
			}
			if ti != front {
				b = append(b, vi)
			}
			if ti|tj == spanning {
				v := crossing(vi, vj, dists[i], dists[j])
				f = append(f, v)
				b = append(b, v)
			}
		}
		fp, okF := s.fragment(f, p)
		bp, okB := s.fragment(b, p)
		if !okF || !okB {
			s.fallbacks++
			if pl.Distance(p.Centroid()) > 0 {
				*fr = append(*fr, *p)
			} else {
				*bk = append(*bk, *p)
			}
			return
		}
		*fr = append(*fr, fp)
		*bk = append(*bk, bp)
	}
}

// fragment drops repeated vertices and checks the piece still faces the
// parent's way.
func (s *splitter) fragment(verts []Vertex, parent *Polygon) (Polygon, bool) {
	out := verts[:0]
	for _, v := range verts {
		if len(out) > 0 && out[len(out)-1].Position.ApproxEqual(v.Position, s.eps) {
			continue
		}
		out = append(out, v)
	}
	for len(out) > 1 && out[0].Position.ApproxEqual(out[len(out)-1].Position, s.eps) {
		out = out[:len(out)-1]
	}
	if len(out) < 3 {
		return Polygon{}, false
	}
	n, _ := newell(out)
	if n.Dot(parent.Plane.Normal) <= 0 {
		return Polygon{}, false
	}
	return Polygon{Vertices: out, Plane: parent.Plane, Meta: parent.Meta}, true
}

// crossing returns the vertex where edge a-b meets the plane, given the
// signed distances of its ends. The edge is interpolated from its lesser
// end so every polygon sharing it gets the same point.
func crossing(a, b Vertex, da, db float64) Vertex {
	if less(b.Position, a.Position) {
		a, b, da, db = b, a, db, da
	}
	return a.Lerp(b, da/(da-db))
}

// less orders positions lexicographically.
func less(a, b math.Vec3) bool {
	if a.X != b.X {
		return a.X < b.X
	}
	if a.Y != b.Y {
		return a.Y < b.Y
	}
	return a.Z < b.Z
}
