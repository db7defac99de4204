package bsp

import (
	"github.com/Faultbox/fracture/pkg/math"
)

// Volume returns the signed volume enclosed by a closed polygon set.
func Volume(polys []Polygon) float64 {
	var v float64
	for _, p := range polys {
		if len(p.Vertices) < 3 {
			continue
		}
		a := p.Vertices[0].Position
		for i := 1; i+1 < len(p.Vertices); i++ {
			b := p.Vertices[i].Position
			c := p.Vertices[i+1].Position
			v += a.Dot(b.Cross(c))
		}
	}
	return v / 6
}

// Bounds returns the bounds of every polygon vertex.
func Bounds(polys []Polygon) math.Bounds {
	b := math.EmptyBounds()
	for _, p := range polys {
		for _, v := range p.Vertices {
			b = b.Include(v.Position)
		}
	}
	return b
}

// Triangulate splits every polygon into triangles that keep its plane and
// Meta. Polygons whose plain fan would leave slivers, such as those with
// vertices inserted along an edge, are fanned around their centroid
// instead so no boundary edge is lost.
func Triangulate(polys []Polygon) []Polygon {
	out := make([]Polygon, 0, len(polys)*2)
	for _, p := range polys {
		if len(p.Vertices) < 3 {
			continue
		}
		scale := Bounds([]Polygon{p}).Diagonal()
		minArea := 1e-14 * scale * scale
		tri := func(a, b, c Vertex) {
			if triArea(a.Position, b.Position, c.Position) <= minArea {
				return
			}
			out = append(out, Polygon{
				Vertices: []Vertex{a, b, c},
				Plane:    p.Plane,
				Meta:     p.Meta,
			})
		}
		vs := p.Vertices
		if fanable(vs, minArea) {
			for i := 1; i+1 < len(vs); i++ {
				tri(vs[0], vs[i], vs[i+1])
			}
			continue
		}
		c := centroidVertex(vs)
		for i := range vs {
			tri(c, vs[i], vs[(i+1)%len(vs)])
		}
	}
	return out
}

func triArea(a, b, c math.Vec3) float64 {
	return b.Sub(a).Cross(c.Sub(a)).Length() / 2
}

// fanable reports whether every triangle of the fan around vs[0] has area.
func fanable(vs []Vertex, minArea float64) bool {
	for i := 1; i+1 < len(vs); i++ {
		if triArea(vs[0].Position, vs[i].Position, vs[i+1].Position) <= minArea {
			return false
		}
	}
	return true
}

// centroidVertex averages every attribute of vs.
func centroidVertex(vs []Vertex) Vertex {
	c := vs[0]
	for i := 1; i < len(vs); i++ {
		c = c.Lerp(vs[i], 1/float64(i+1))
	}
	return c
}

// Box returns the six outward-facing quads of an axis-aligned box.
func Box(b math.Bounds, meta Meta) []Polygon {
	c := b.Corners()
	// Corner index bits: 1 = x, 2 = y, 4 = z.
	faces := [6][4]int{
		{0, 4, 6, 2}, // -X
		{1, 3, 7, 5}, // +X
		{0, 1, 5, 4}, // -Y
		{2, 6, 7, 3}, // +Y
		{0, 2, 3, 1}, // -Z
		{4, 5, 7, 6}, // +Z
	}
	out := make([]Polygon, 0, 6)
	for _, f := range faces {
		vs := make([]Vertex, 4)
		for i, ci := range f {
			vs[i].Position = c[ci]
		}
		if p, ok := NewPolygon(vs, meta); ok {
			setFaceNormals(&p)
			out = append(out, p)
		}
	}
	return out
}

// setFaceNormals gives each vertex the polygon's plane normal and a tangent
// frame built from it.
func setFaceNormals(p *Polygon) {
	u, w := math.Basis(p.Plane.Normal)
	for i := range p.Vertices {
		p.Vertices[i].Normal = p.Plane.Normal
		p.Vertices[i].Tangent = u
		p.Vertices[i].Binormal = w
	}
}
