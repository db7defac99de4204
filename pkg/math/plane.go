package math

// Plane is the set of points p with Normal·p = D. Normal is unit length for
// planes built by the constructors below.
type Plane struct {
	Normal Vec3
	D      float64
}

// PlaneFromPointNormal builds a plane through p with normal n.
func PlaneFromPointNormal(p, n Vec3) Plane {
	n = n.Normalize()
	return Plane{Normal: n, D: n.Dot(p)}
}

// PlaneFromPoints builds the plane through a, b, c with counter-clockwise
// winding. ok is false for degenerate (collinear) input.
func PlaneFromPoints(a, b, c Vec3) (Plane, bool) {
	n := b.Sub(a).Cross(c.Sub(a))
	l := n.Length()
	if l < 1e-18 {
		return Plane{}, false
	}
	n = n.Scale(1 / l)
	return Plane{Normal: n, D: n.Dot(a)}, true
}

// Distance returns the signed distance of p from the plane.
func (p Plane) Distance(pt Vec3) float64 {
	return p.Normal.Dot(pt) - p.D
}

// Flip returns the plane facing the opposite way.
func (p Plane) Flip() Plane {
	return Plane{Normal: p.Normal.Neg(), D: -p.D}
}

// Project returns the closest point on the plane to pt.
func (p Plane) Project(pt Vec3) Vec3 {
	return pt.Sub(p.Normal.Scale(p.Distance(pt)))
}

// Intersect3 returns the single point shared by three planes.
func Intersect3(a, b, c Plane) (Vec3, bool) {
	bc := b.Normal.Cross(c.Normal)
	det := a.Normal.Dot(bc)
	if det > -1e-12 && det < 1e-12 {
		return Vec3{}, false
	}
	ca := c.Normal.Cross(a.Normal)
	ab := a.Normal.Cross(b.Normal)
	p := bc.Scale(a.D).Add(ca.Scale(b.D)).Add(ab.Scale(c.D))
	return p.Scale(1 / det), true
}
