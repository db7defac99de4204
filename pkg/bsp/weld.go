package bsp

import (
	gomath "math"
	"sort"

	"github.com/Faultbox/fracture/pkg/math"
)

// weldScale is the weld tolerance relative to the split tolerance.
const weldScale = 1e-3

// Weld closes the boundary of a polygon soup. Vertices closer than the weld
// tolerance share one position, and a vertex lying inside an edge that has
// no matching reverse is inserted into that edge, so T-junctions left by
// earlier splits become shared edges. Polygons that collapse are dropped.
func Weld(polys []Polygon) []Polygon {
	if len(polys) == 0 {
		return nil
	}
	tol := weldScale * toleranceFor(Bounds(polys))
	w := welder{tol: tol, cells: map[[3]int64][]int{}}

	// ids holds the distinct welded ids of each polygon; first holds the
	// index of the source vertex of each id.
	ids := make([][]int, len(polys))
	first := make([][]int, len(polys))
	for i, p := range polys {
		for k, v := range p.Vertices {
			id := w.id(v.Position)
			if n := len(ids[i]); n > 0 && ids[i][n-1] == id {
				continue
			}
			ids[i] = append(ids[i], id)
			first[i] = append(first[i], k)
		}
		if n := len(ids[i]); n > 1 && ids[i][0] == ids[i][n-1] {
			ids[i], first[i] = ids[i][:n-1], first[i][:n-1]
		}
	}

	type edge struct{ a, b int }
	edges := map[edge]bool{}
	for _, r := range ids {
		if len(r) < 3 {
			continue
		}
		for k, a := range r {
			edges[edge{a, r[(k+1)%len(r)]}] = true
		}
	}
	onOpen := map[int]bool{}
	for e := range edges {
		if !edges[edge{e.b, e.a}] {
			onOpen[e.a], onOpen[e.b] = true, true
		}
	}
	cands := make([]int, 0, len(onOpen))
	for id := range onOpen {
		cands = append(cands, id)
	}
	sort.Slice(cands, func(i, j int) bool {
		pi, pj := w.pos[cands[i]], w.pos[cands[j]]
		if pi.X != pj.X {
			return pi.X < pj.X
		}
		return cands[i] < cands[j]
	})

	out := make([]Polygon, 0, len(polys))
	for i, p := range polys {
		r := ids[i]
		if len(r) < 3 {
			continue
		}
		src := make([]Vertex, len(r))
		for k, id := range r {
			src[k] = p.Vertices[first[i][k]]
			src[k].Position = w.pos[id]
		}
		verts := make([]Vertex, 0, len(r)+2)
		for k, a := range r {
			b := r[(k+1)%len(r)]
			verts = append(verts, src[k])
			if edges[edge{b, a}] {
				continue
			}
			verts = append(verts, w.onEdge(cands, a, b, src[k], src[(k+1)%len(r)])...)
		}
		n, _ := newell(verts)
		if n.Length() < 1e-18 || n.Dot(p.Plane.Normal) <= 0 {
			continue
		}
		out = append(out, Polygon{Vertices: verts, Plane: p.Plane, Meta: p.Meta})
	}
	return out
}

// welder hashes positions onto shared ids.
type welder struct {
	tol   float64
	pos   []math.Vec3
	cells map[[3]int64][]int
}

func (w *welder) cell(p math.Vec3) [3]int64 {
	s := 2 * w.tol
	return [3]int64{
		int64(gomath.Floor(p.X / s)),
		int64(gomath.Floor(p.Y / s)),
		int64(gomath.Floor(p.Z / s)),
	}
}

// id returns the id of the first position within tol of p, adding p when
// there is none.
func (w *welder) id(p math.Vec3) int {
	c := w.cell(p)
	for dx := int64(-1); dx <= 1; dx++ {
		for dy := int64(-1); dy <= 1; dy++ {
			for dz := int64(-1); dz <= 1; dz++ {
				for _, id := range w.cells[[3]int64{c[0] + dx, c[1] + dy, c[2] + dz}] {
					if w.pos[id].Distance(p) <= w.tol {
						return id
					}
				}
			}
		}
	}
	id := len(w.pos)
	w.pos = append(w.pos, p)
	w.cells[c] = append(w.cells[c], id)
	return id
}

// onEdge returns the candidates strictly inside segment a-b, ordered from
// a, as vertices interpolated between va and vb.
func (w *welder) onEdge(cands []int, a, b int, va, vb Vertex) []Vertex {
	pa, pb := w.pos[a], w.pos[b]
	d := pb.Sub(pa)
	l2 := d.LengthSq()
	if l2 == 0 {
		return nil
	}
	lo, hi := gomath.Min(pa.X, pb.X)-w.tol, gomath.Max(pa.X, pb.X)+w.tol
	start := sort.Search(len(cands), func(i int) bool { return w.pos[cands[i]].X >= lo })
	type hit struct {
		t  float64
		id int
	}
	var hits []hit
	for _, id := range cands[start:] {
		p := w.pos[id]
		if p.X > hi {
			break
		}
		if id == a || id == b {
			continue
		}
		t := p.Sub(pa).Dot(d) / l2
		if t <= 0 || t >= 1 {
			continue
		}
		if pa.Add(d.Scale(t)).Distance(p) > w.tol {
			continue
		}
		hits = append(hits, hit{t, id})
	}
	if len(hits) == 0 {
		return nil
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].t < hits[j].t })
	out := make([]Vertex, len(hits))
	for i, h := range hits {
		v := va.Lerp(vb, h.t)
		v.Position = w.pos[h.id]
		out[i] = v
	}
	return out
}
