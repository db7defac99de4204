package math

import "math"

// Bounds is an axis-aligned bounding box. The zero value is not empty; use
// EmptyBounds to start accumulating points.
type Bounds struct {
	Min Vec3
	Max Vec3
}

// EmptyBounds returns inverted bounds that any Include call will replace.
func EmptyBounds() Bounds {
	return Bounds{
		Min: Vec3{math.MaxFloat64, math.MaxFloat64, math.MaxFloat64},
		Max: Vec3{-math.MaxFloat64, -math.MaxFloat64, -math.MaxFloat64},
	}
}

// IsEmpty reports whether no point has been included.
func (b Bounds) IsEmpty() bool {
	return b.Min.X > b.Max.X || b.Min.Y > b.Max.Y || b.Min.Z > b.Max.Z
}

// Include returns b grown to contain p.
func (b Bounds) Include(p Vec3) Bounds {
	return Bounds{Min: b.Min.Min(p), Max: b.Max.Max(p)}
}

// Union returns the smallest bounds containing b and other.
func (b Bounds) Union(other Bounds) Bounds {
	if other.IsEmpty() {
		return b
	}
	if b.IsEmpty() {
		return other
	}
	return Bounds{Min: b.Min.Min(other.Min), Max: b.Max.Max(other.Max)}
}

// Center returns the box center.
func (b Bounds) Center() Vec3 {
	return b.Min.Add(b.Max).Scale(0.5)
}

// Extents returns the box size along each axis.
func (b Bounds) Extents() Vec3 {
	if b.IsEmpty() {
		return Vec3{}
	}
	return b.Max.Sub(b.Min)
}

// Diagonal returns the length of the box diagonal.
func (b Bounds) Diagonal() float64 {
	return b.Extents().Length()
}

// Expand returns b grown by pad on all sides.
func (b Bounds) Expand(pad float64) Bounds {
	d := Vec3{pad, pad, pad}
	return Bounds{Min: b.Min.Sub(d), Max: b.Max.Add(d)}
}

// Contains reports whether p is inside the box grown by eps.
func (b Bounds) Contains(p Vec3, eps float64) bool {
	return p.X >= b.Min.X-eps && p.X <= b.Max.X+eps &&
		p.Y >= b.Min.Y-eps && p.Y <= b.Max.Y+eps &&
		p.Z >= b.Min.Z-eps && p.Z <= b.Max.Z+eps
}

// Corners returns the 8 box corners.
func (b Bounds) Corners() [8]Vec3 {
	return [8]Vec3{
		{b.Min.X, b.Min.Y, b.Min.Z},
		{b.Max.X, b.Min.Y, b.Min.Z},
		{b.Min.X, b.Max.Y, b.Min.Z},
		{b.Max.X, b.Max.Y, b.Min.Z},
		{b.Min.X, b.Min.Y, b.Max.Z},
		{b.Max.X, b.Min.Y, b.Max.Z},
		{b.Min.X, b.Max.Y, b.Max.Z},
		{b.Max.X, b.Max.Y, b.Max.Z},
	}
}

// Transform returns the bounds of the transformed box corners.
func (b Bounds) Transform(m Mat4) Bounds {
	if b.IsEmpty() {
		return b
	}
	out := EmptyBounds()
	for _, c := range b.Corners() {
		out = out.Include(m.TransformPoint(c))
	}
	return out
}

// WireframeLines returns the 12 box edges as point pairs.
func (b Bounds) WireframeLines() [12][2]Vec3 {
	c := b.Corners()
	return [12][2]Vec3{
		// bottom
		{c[0], c[1]}, {c[1], c[3]}, {c[3], c[2]}, {c[2], c[0]},
		// top
		{c[4], c[5]}, {c[5], c[7]}, {c[7], c[6]}, {c[6], c[4]},
		// vertical
		{c[0], c[4]}, {c[1], c[5]}, {c[2], c[6]}, {c[3], c[7]},
	}
}

// Ray represents a ray in 3D space with origin and direction.
type Ray struct {
	Origin    Vec3
	Direction Vec3
}

// At returns Origin + t*Direction.
func (r Ray) At(t float64) Vec3 {
	return r.Origin.Add(r.Direction.Scale(t))
}

// IntersectBounds tests ray intersection with the box using the slab method.
// Returns the entry and exit parameters. If the ray starts inside the box
// tmin is negative.
func (r Ray) IntersectBounds(box Bounds) (tmin, tmax float64, hit bool) {
	tmin = -math.MaxFloat64
	tmax = math.MaxFloat64

	for axis := 0; axis < 3; axis++ {
		o := r.Origin.Get(axis)
		d := r.Direction.Get(axis)
		lo := box.Min.Get(axis)
		hi := box.Max.Get(axis)
		if d != 0 {
			t1 := (lo - o) / d
			t2 := (hi - o) / d
			if t1 > t2 {
				t1, t2 = t2, t1
			}
			if t1 > tmin {
				tmin = t1
			}
			if t2 < tmax {
				tmax = t2
			}
		} else if o < lo || o > hi {
			return 0, 0, false
		}
	}

	if tmax < tmin || tmax < 0 {
		return 0, 0, false
	}
	return tmin, tmax, true
}
