package fracture

import (
	gomath "math"
	"math/rand/v2"
	"slices"

	"github.com/Faultbox/fracture/pkg/bsp"
	"github.com/Faultbox/fracture/pkg/hmesh"
	"github.com/Faultbox/fracture/pkg/math"
	"github.com/Faultbox/fracture/pkg/noise"
)

// surface is one cutting surface: a plane displaced by a noise field.
type surface struct {
	origin math.Vec3
	normal math.Vec3
	field  *noise.Field
	cells  int
	// within is the region the cutter must enclose.
	within math.Bounds
}

func (s surface) plane() math.Plane {
	return math.PlaneFromPointNormal(s.origin, s.normal)
}

// surfaces places c cuts across b along world axis, jittered and tilted
// by params of logical axis l.
func (e *engine) surfaces(rng *rand.Rand, b math.Bounds, axis, l, c int, p SliceParameters) []surface {
	lo, hi := b.Min.Get(axis), b.Max.Get(axis)
	w := (hi - lo) / float64(c+1)
	pos := make([]float64, c)
	for k := range pos {
		pos[k] = lo + w*float64(k+1) + p.LinearVariation[l]*w*(rng.Float64()-0.5)
	}
	slices.Sort(pos)

	dir := math.AxisVec(axis)
	t1, t2 := math.Basis(dir)
	spacing := b.Diagonal() / float64(p.Noise[l].Resolution())
	out := make([]surface, c)
	for k, x := range pos {
		n := dir
		if a := p.AngularVariation[l]; a > 0 {
			phi := rng.Float64() * 2 * gomath.Pi
			tilt := (2*rng.Float64() - 1) * a
			about := t1.Scale(gomath.Cos(phi)).Add(t2.Scale(gomath.Sin(phi)))
			n = math.RotateAxis(about, tilt).TransformDirection(dir).Normalize()
		}
		out[k] = surface{
			origin: b.Center().With(axis, x),
			normal: n,
			field:  noise.New(p.Noise[l], spacing, rng.Uint64()),
			cells:  p.Noise[l].Resolution(),
			within: b,
		}
	}
	return out
}

// cutterPolygons returns the closed solid below s: a displaced grid over a
// square reaching past s.within, side walls and a bottom face. Only the
// grid can intersect the enclosed region; every other face lies outside.
func cutterPolygons(s surface, meta bsp.Meta, frame hmesh.MaterialFrame) []bsp.Polygon {
	n := s.normal
	t1, t2 := math.Basis(n)
	d := s.within.Diagonal()
	off := s.origin.Distance(s.within.Center())
	r := 0.55*d + off
	depth := 0.55*d + off + s.field.Amplitude()
	cells := max(s.cells, 1)

	coord := func(i int) float64 {
		return -r + 2*r*float64(i)/float64(cells)
	}
	at := func(u, v, h float64) math.Vec3 {
		return s.origin.Add(t1.Scale(u)).Add(t2.Scale(v)).Add(n.Scale(h))
	}
	heights := s.field.Grid(-r, -r, r, r, cells)
	top := make([][]math.Vec3, cells+1)
	for j := 0; j <= cells; j++ {
		top[j] = make([]math.Vec3, cells+1)
		for i := 0; i <= cells; i++ {
			top[j][i] = at(coord(i), coord(j), heights[j][i])
		}
	}

	var out []bsp.Polygon
	add := func(pts ...math.Vec3) {
		if p, ok := facePolygon(pts, meta, frame); ok {
			out = append(out, p)
		}
	}
	flat := s.field.Flat()
	for j := 0; j < cells; j++ {
		for i := 0; i < cells; i++ {
			a, b, c, dd := top[j][i], top[j][i+1], top[j+1][i+1], top[j+1][i]
			if flat {
				add(a, b, c, dd)
				continue
			}
			add(a, b, c)
			add(a, c, dd)
		}
	}

	// Rim points counter-clockwise seen from +n.
	type ij struct{ i, j int }
	var rim []ij
	for i := 0; i < cells; i++ {
		rim = append(rim, ij{i, 0})
	}
	for j := 0; j < cells; j++ {
		rim = append(rim, ij{cells, j})
	}
	for i := cells; i > 0; i-- {
		rim = append(rim, ij{i, cells})
	}
	for j := cells; j > 0; j-- {
		rim = append(rim, ij{0, j})
	}
	// Walls are split into triangles when the rim is displaced, so every
	// face stays planar.
	bottom := make([]math.Vec3, 0, len(rim))
	for k, a := range rim {
		b := rim[(k+1)%len(rim)]
		ta, tb := top[a.j][a.i], top[b.j][b.i]
		ba, bb := at(coord(a.i), coord(a.j), -depth), at(coord(b.i), coord(b.j), -depth)
		if flat {
			add(ta, ba, bb, tb)
		} else {
			add(ta, ba, bb)
			add(ta, bb, tb)
		}
		bottom = append(bottom, ba)
	}
	slices.Reverse(bottom)
	add(bottom...)
	return out
}
