// Package hull builds convex collision hulls for fracture parts.
//
// DOP methods bound the points by planes of fixed orientations and are
// always conservative. The wrap method computes the exact convex hull of
// the points.
package hull

import (
	"errors"
	gomath "math"
	"sort"

	"github.com/Faultbox/fracture/pkg/math"
)

// Hull errors.
var (
	ErrUnknownMethod = errors.New("hull: unknown method")
	ErrBadHull       = errors.New("hull: invalid serialized hull")
)

// Hull is a convex polytope. Plane normals point outward; a point p is
// inside when Distance(p) <= 0 for every plane.
type Hull struct {
	Vertices []math.Vec3
	Edges    [][2]int
	Planes   []math.Plane
}

// Build computes the hull of points with method m.
func Build(points []math.Vec3, m Method) Hull {
	if len(points) == 0 {
		return Hull{}
	}
	if m == MethodWrapGraphicsMesh {
		if h, ok := wrap(points); ok {
			return h
		}
		// Flat or degenerate input has no volume to wrap.
		m = Method6DOP
	}
	return buildDOP(points, m.Directions())
}

func tolerance(points []math.Vec3) float64 {
	b := math.EmptyBounds()
	for _, p := range points {
		b = b.Include(p)
	}
	return 1e-9 * gomath.Max(1, b.Diagonal())
}

func buildDOP(points []math.Vec3, dirs []math.Vec3) Hull {
	eps := tolerance(points)
	planes := make([]math.Plane, 0, 2*len(dirs))
	for _, d := range dirs {
		lo, hi := gomath.Inf(1), gomath.Inf(-1)
		for _, p := range points {
			x := d.Dot(p)
			lo = gomath.Min(lo, x)
			hi = gomath.Max(hi, x)
		}
		if hi-lo < 2*eps {
			// Give flat slabs a sliver of thickness so corners exist.
			lo -= eps
			hi += eps
		}
		planes = append(planes,
			math.Plane{Normal: d, D: hi},
			math.Plane{Normal: d.Neg(), D: -lo},
		)
	}
	return fromPlanes(planes, eps*10)
}

// fromPlanes intersects half-spaces and keeps only the planes and vertices
// that form actual faces and corners.
func fromPlanes(planes []math.Plane, eps float64) Hull {
	var verts []math.Vec3
	n := len(planes)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			for k := j + 1; k < n; k++ {
				p, ok := math.Intersect3(planes[i], planes[j], planes[k])
				if !ok || !insideAll(planes, p, eps) {
					continue
				}
				verts = addUnique(verts, p, eps)
			}
		}
	}

	keep := make([]bool, n)
	for i := range keep {
		keep[i] = true
	}
	alive := make([]bool, len(verts))
	for i := range alive {
		alive[i] = true
	}
	for changed := true; changed; {
		changed = false
		for i, pl := range planes {
			if !keep[i] {
				continue
			}
			cnt := 0
			for vi, v := range verts {
				if alive[vi] && gomath.Abs(pl.Distance(v)) <= eps {
					cnt++
				}
			}
			if cnt < 3 {
				keep[i] = false
				changed = true
			}
		}
		for vi, v := range verts {
			if !alive[vi] {
				continue
			}
			if len(planesAt(planes, keep, v, eps)) < 3 {
				alive[vi] = false
				changed = true
			}
		}
	}

	var h Hull
	remap := make([]int, len(verts))
	for vi, v := range verts {
		remap[vi] = -1
		if alive[vi] {
			remap[vi] = len(h.Vertices)
			h.Vertices = append(h.Vertices, v)
		}
	}
	for i, pl := range planes {
		if keep[i] {
			h.Planes = append(h.Planes, pl)
		}
	}
	h.Edges = edgesFromPlanes(h.Vertices, h.Planes, eps)
	return h
}

func insideAll(planes []math.Plane, p math.Vec3, eps float64) bool {
	for _, pl := range planes {
		if pl.Distance(p) > eps {
			return false
		}
	}
	return true
}

func addUnique(verts []math.Vec3, p math.Vec3, eps float64) []math.Vec3 {
	for _, v := range verts {
		if v.Distance(p) <= eps {
			return verts
		}
	}
	return append(verts, p)
}

func planesAt(planes []math.Plane, keep []bool, v math.Vec3, eps float64) []int {
	var out []int
	for i, pl := range planes {
		if (keep == nil || keep[i]) && gomath.Abs(pl.Distance(v)) <= eps {
			out = append(out, i)
		}
	}
	return out
}

// edgesFromPlanes connects vertex pairs that share two faces.
func edgesFromPlanes(verts []math.Vec3, planes []math.Plane, eps float64) [][2]int {
	on := make([][]int, len(verts))
	for i, v := range verts {
		on[i] = planesAt(planes, nil, v, eps)
	}
	var edges [][2]int
	for i := range verts {
		for j := i + 1; j < len(verts); j++ {
			if sharedCount(on[i], on[j]) >= 2 {
				edges = append(edges, [2]int{i, j})
			}
		}
	}
	return edges
}

func sharedCount(a, b []int) int {
	n := 0
	for _, x := range a {
		for _, y := range b {
			if x == y {
				n++
				break
			}
		}
	}
	return n
}

// IsEmpty reports whether the hull bounds nothing.
func (h Hull) IsEmpty() bool {
	return len(h.Planes) == 0
}

// Contains reports whether p is inside the hull grown by eps.
func (h Hull) Contains(p math.Vec3, eps float64) bool {
	if h.IsEmpty() {
		return false
	}
	return insideAll(h.Planes, p, eps)
}

// Bounds returns the bounds of the hull vertices.
func (h Hull) Bounds() math.Bounds {
	b := math.EmptyBounds()
	for _, v := range h.Vertices {
		b = b.Include(v)
	}
	return b
}

// Volume returns the enclosed volume.
func (h Hull) Volume() float64 {
	if h.IsEmpty() || len(h.Vertices) < 4 {
		return 0
	}
	eps := tolerance(h.Vertices) * 10
	var c math.Vec3
	for _, v := range h.Vertices {
		c = c.Add(v)
	}
	c = c.Scale(1 / float64(len(h.Vertices)))
	var vol float64
	for _, pl := range h.Planes {
		face := faceLoop(h.Vertices, pl, eps)
		if len(face) < 3 {
			continue
		}
		for i := 1; i+1 < len(face); i++ {
			a, b, d := face[0].Sub(c), face[i].Sub(c), face[i+1].Sub(c)
			vol += gomath.Abs(a.Dot(b.Cross(d))) / 6
		}
	}
	return vol
}

// faceLoop returns the vertices on pl ordered around the face.
func faceLoop(verts []math.Vec3, pl math.Plane, eps float64) []math.Vec3 {
	var face []math.Vec3
	var fc math.Vec3
	for _, v := range verts {
		if gomath.Abs(pl.Distance(v)) <= eps {
			face = append(face, v)
			fc = fc.Add(v)
		}
	}
	if len(face) < 3 {
		return face
	}
	fc = fc.Scale(1 / float64(len(face)))
	u, w := math.Basis(pl.Normal)
	sort.Slice(face, func(i, j int) bool {
		di, dj := face[i].Sub(fc), face[j].Sub(fc)
		return gomath.Atan2(di.Dot(w), di.Dot(u)) < gomath.Atan2(dj.Dot(w), dj.Dot(u))
	})
	return face
}

// Transform returns the hull mapped through m.
func (h Hull) Transform(m math.Mat4) Hull {
	out := Hull{
		Vertices: make([]math.Vec3, len(h.Vertices)),
		Edges:    append([][2]int(nil), h.Edges...),
		Planes:   make([]math.Plane, len(h.Planes)),
	}
	for i, v := range h.Vertices {
		out.Vertices[i] = m.TransformPoint(v)
	}
	for i, pl := range h.Planes {
		n := m.TransformNormal(pl.Normal).Normalize()
		p := m.TransformPoint(pl.Normal.Scale(pl.D))
		out.Planes[i] = math.Plane{Normal: n, D: n.Dot(p)}
	}
	return out
}

// RayCast intersects the line orig + t*dir with the hull. in and out are
// the entry and exit parameters; normal is the outward normal at entry, or
// zero when orig is already inside (in is then <= 0).
func (h Hull) RayCast(orig, dir math.Vec3) (in, out float64, normal math.Vec3, ok bool) {
	if h.IsEmpty() {
		return 0, 0, math.Vec3{}, false
	}
	in, out = gomath.Inf(-1), gomath.Inf(1)
	inside := true
	for _, pl := range h.Planes {
		dist := pl.Distance(orig)
		if dist > 0 {
			inside = false
		}
		denom := pl.Normal.Dot(dir)
		if gomath.Abs(denom) < 1e-15 {
			if dist > 0 {
				return 0, 0, math.Vec3{}, false
			}
			continue
		}
		t := -dist / denom
		if denom < 0 {
			if t > in {
				in = t
				normal = pl.Normal
			}
		} else if t < out {
			out = t
		}
	}
	if in > out || out < 0 {
		return 0, 0, math.Vec3{}, false
	}
	if inside {
		normal = math.Vec3{}
	}
	return in, out, normal, true
}
