package cutout

import (
	gomath "math"

	"github.com/Faultbox/fracture/pkg/math"
)

// degenerateLen is the segment length below which two vertices merge.
const degenerateLen = 1e-9

type vref struct {
	loop, vert int
}

// grid buckets loop vertices for neighbour queries.
type grid struct {
	cell  float64
	cells map[[2]int][]vref
}

func newGrid(loops []Loop, cell float64) *grid {
	g := &grid{cell: cell, cells: map[[2]int][]vref{}}
	for li, l := range loops {
		for vi, v := range l.Vertices {
			k := g.key(v.Pos)
			g.cells[k] = append(g.cells[k], vref{li, vi})
		}
	}
	return g
}

func (g *grid) key(p math.Vec2) [2]int {
	return [2]int{int(gomath.Floor(p.X / g.cell)), int(gomath.Floor(p.Y / g.cell))}
}

// near returns the vertices in the 3x3 cells around p.
func (g *grid) near(p math.Vec2, fn func(vref)) {
	k := g.key(p)
	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			for _, r := range g.cells[[2]int{k[0] + dx, k[1] + dy}] {
				fn(r)
			}
		}
	}
}

// snapLoops merges nearby vertices of different loops, pulls vertices onto
// nearby edges of other loops, clamps vertices to the bitmap border and
// finally removes segments the moves made degenerate.
func snapLoops(loops []Loop, thr, width, height float64) {
	if thr < 0 {
		thr = 0
	}
	cell := gomath.Max(thr, 1)

	// Vertex to vertex.
	g := newGrid(loops, cell)
	for li := range loops {
		for vi := range loops[li].Vertices {
			a := &loops[li].Vertices[vi]
			g.near(a.Pos, func(r vref) {
				if r.loop <= li {
					return
				}
				b := &loops[r.loop].Vertices[r.vert]
				if a.Pos.Distance(b.Pos) > thr {
					return
				}
				mid := a.Pos.Add(b.Pos).Scale(0.5)
				a.Pos, b.Pos = mid, mid
				a.Flags |= VertexSnapped
				b.Flags |= VertexSnapped
			})
		}
	}

	// Vertex to edge.
	if thr > 0 {
		for li := range loops {
			for vi := range loops[li].Vertices {
				a := &loops[li].Vertices[vi]
				if a.Flags&VertexSnapped != 0 {
					continue
				}
				if p, ok := nearestEdge(loops, li, a.Pos, thr); ok {
					a.Pos = p
					a.Flags |= VertexSnapped
				}
			}
		}
	}

	// Border.
	for li := range loops {
		for vi := range loops[li].Vertices {
			v := &loops[li].Vertices[vi]
			if v.Pos.X <= thr {
				v.Pos.X, v.Flags = 0, v.Flags|VertexOnBoundary
			} else if v.Pos.X >= width-thr {
				v.Pos.X, v.Flags = width, v.Flags|VertexOnBoundary
			}
			if v.Pos.Y <= thr {
				v.Pos.Y, v.Flags = 0, v.Flags|VertexOnBoundary
			} else if v.Pos.Y >= height-thr {
				v.Pos.Y, v.Flags = height, v.Flags|VertexOnBoundary
			}
		}
	}

	for li := range loops {
		loops[li].Vertices = cleanLoop(loops[li].Vertices)
	}
}

// nearestEdge projects p onto the closest edge interior of a loop other
// than skip, if one is within thr.
func nearestEdge(loops []Loop, skip int, p math.Vec2, thr float64) (math.Vec2, bool) {
	best := thr
	var out math.Vec2
	found := false
	for lj, l := range loops {
		if lj == skip {
			continue
		}
		n := len(l.Vertices)
		for k := 0; k < n; k++ {
			a, b := l.Vertices[k].Pos, l.Vertices[(k+1)%n].Pos
			ab := b.Sub(a)
			den := ab.Dot(ab)
			if den == 0 {
				continue
			}
			if gomath.Min(a.X, b.X)-thr > p.X || gomath.Max(a.X, b.X)+thr < p.X ||
				gomath.Min(a.Y, b.Y)-thr > p.Y || gomath.Max(a.Y, b.Y)+thr < p.Y {
				continue
			}
			t := p.Sub(a).Dot(ab) / den
			if t <= 0 || t >= 1 {
				continue
			}
			q := a.Add(ab.Scale(t))
			if d := q.Distance(p); d <= best {
				best, out, found = d, q, true
			}
		}
	}
	return out, found
}

// cleanLoop merges coincident neighbours and drops straight or spiking
// corners until none are left.
func cleanLoop(vs []Vertex) []Vertex {
	for changed := true; changed && len(vs) >= 3; {
		changed = false
		out := vs[:0:0]
		n := len(vs)
		for i := 0; i < n; i++ {
			v := vs[i]
			if len(out) > 0 && out[len(out)-1].Pos.Distance(v.Pos) <= degenerateLen {
				out[len(out)-1].Flags |= v.Flags
				changed = true
				continue
			}
			out = append(out, v)
		}
		for len(out) > 1 && out[0].Pos.Distance(out[len(out)-1].Pos) <= degenerateLen {
			out[0].Flags |= out[len(out)-1].Flags
			out = out[:len(out)-1]
			changed = true
		}
		vs = out
		n = len(vs)
		if n < 3 {
			break
		}
		for i := 0; i < n; i++ {
			a, b, c := vs[(i+n-1)%n].Pos, vs[i].Pos, vs[(i+1)%n].Pos
			ab, bc := b.Sub(a), c.Sub(b)
			if gomath.Abs(ab.Cross(bc)) <= 1e-12*ab.Length()*bc.Length() {
				vs = append(vs[:i:i], vs[i+1:]...)
				changed = true
				break
			}
		}
	}
	if len(vs) < 3 {
		return nil
	}
	return vs
}
