package hull

import (
	gomath "math"

	"github.com/Faultbox/fracture/pkg/math"
)

type face struct {
	v     [3]int
	plane math.Plane
	dead  bool
}

// wrap computes the exact convex hull incrementally. ok is false when the
// points do not span a volume.
func wrap(input []math.Vec3) (Hull, bool) {
	eps := tolerance(input) * 10
	var pts []math.Vec3
	for _, p := range input {
		pts = addUniqueFast(pts, p, eps)
	}
	if len(pts) < 4 {
		return Hull{}, false
	}
	i0, i1, i2, i3, ok := initialSimplex(pts, eps)
	if !ok {
		return Hull{}, false
	}

	var faces []face
	addFace := func(a, b, c int) {
		pl, ok := math.PlaneFromPoints(pts[a], pts[b], pts[c])
		if !ok {
			pl = math.Plane{}
		}
		faces = append(faces, face{v: [3]int{a, b, c}, plane: pl})
	}
	// Orient the tetrahedron outward.
	if pl, _ := math.PlaneFromPoints(pts[i0], pts[i1], pts[i2]); pl.Distance(pts[i3]) > 0 {
		i1, i2 = i2, i1
	}
	addFace(i0, i1, i2)
	addFace(i0, i3, i1)
	addFace(i1, i3, i2)
	addFace(i2, i3, i0)

	used := map[int]bool{i0: true, i1: true, i2: true, i3: true}
	for pi := range pts {
		if used[pi] {
			continue
		}
		p := pts[pi]
		visible := map[[2]int]bool{}
		hit := false
		for fi := range faces {
			f := &faces[fi]
			if f.dead || f.plane.Distance(p) <= eps {
				continue
			}
			f.dead = true
			hit = true
			for e := 0; e < 3; e++ {
				visible[[2]int{f.v[e], f.v[(e+1)%3]}] = true
			}
		}
		if !hit {
			continue
		}
		used[pi] = true
		// Horizon edges are visible edges whose twin is not visible.
		var horizon [][2]int
		for fi := range faces {
			f := &faces[fi]
			if !f.dead {
				continue
			}
			for e := 0; e < 3; e++ {
				a, b := f.v[e], f.v[(e+1)%3]
				if !visible[[2]int{b, a}] {
					horizon = append(horizon, [2]int{a, b})
				}
			}
		}
		live := faces[:0]
		for _, f := range faces {
			if !f.dead {
				live = append(live, f)
			}
		}
		faces = live
		for _, e := range horizon {
			addFace(e[0], e[1], pi)
		}
	}
	return assemble(pts, faces, eps), true
}

func addUniqueFast(verts []math.Vec3, p math.Vec3, eps float64) []math.Vec3 {
	for i := len(verts) - 1; i >= 0 && i >= len(verts)-64; i-- {
		if verts[i].Distance(p) <= eps {
			return verts
		}
	}
	for _, v := range verts {
		if v.Distance(p) <= eps {
			return verts
		}
	}
	return append(verts, p)
}

func initialSimplex(pts []math.Vec3, eps float64) (a, b, c, d int, ok bool) {
	for i, p := range pts {
		if p.X < pts[a].X {
			a = i
		}
	}
	best := -1.0
	for i, p := range pts {
		if dd := p.Distance(pts[a]); dd > best {
			best, b = dd, i
		}
	}
	if best <= eps {
		return 0, 0, 0, 0, false
	}
	ab := pts[b].Sub(pts[a])
	best = -1
	for i, p := range pts {
		if dd := ab.Cross(p.Sub(pts[a])).Length() / ab.Length(); dd > best {
			best, c = dd, i
		}
	}
	if best <= eps {
		return 0, 0, 0, 0, false
	}
	pl, _ := math.PlaneFromPoints(pts[a], pts[b], pts[c])
	best = -1
	for i, p := range pts {
		if dd := gomath.Abs(pl.Distance(p)); dd > best {
			best, d = dd, i
		}
	}
	if best <= eps {
		return 0, 0, 0, 0, false
	}
	return a, b, c, d, true
}

// assemble merges coplanar triangles into faces and collects the vertices
// and feature edges.
func assemble(pts []math.Vec3, faces []face, eps float64) Hull {
	var h Hull
	group := make([]int, len(faces))
	for fi, f := range faces {
		group[fi] = -1
		if f.plane.Normal.LengthSq() == 0 {
			continue
		}
		for gi, pl := range h.Planes {
			if pl.Normal.Dot(f.plane.Normal) > 1-1e-9 && gomath.Abs(pl.D-f.plane.D) <= eps {
				group[fi] = gi
				break
			}
		}
		if group[fi] < 0 {
			group[fi] = len(h.Planes)
			h.Planes = append(h.Planes, f.plane)
		}
	}

	seen := map[int]bool{}
	for _, f := range faces {
		for _, v := range f.v {
			if seen[v] {
				continue
			}
			seen[v] = true
			// Vertices in the middle of a merged face or edge are not corners.
			if len(planesAt(h.Planes, nil, pts[v], eps)) >= 3 {
				h.Vertices = append(h.Vertices, pts[v])
			}
		}
	}
	h.Edges = edgesFromPlanes(h.Vertices, h.Planes, eps)
	return h
}
