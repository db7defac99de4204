// Package math provides the vector, matrix, plane and bounds types shared by
// the fracturing packages. All types are float64 value types.
package math

import "math"

// Vec2 is a 2D vector.
type Vec2 struct {
	X, Y float64
}

// Add returns v + other.
func (v Vec2) Add(other Vec2) Vec2 {
	return Vec2{v.X + other.X, v.Y + other.Y}
}

// Sub returns v - other.
func (v Vec2) Sub(other Vec2) Vec2 {
	return Vec2{v.X - other.X, v.Y - other.Y}
}

// Scale returns v * scalar.
func (v Vec2) Scale(s float64) Vec2 {
	return Vec2{v.X * s, v.Y * s}
}

// Dot returns the dot product.
func (v Vec2) Dot(other Vec2) float64 {
	return v.X*other.X + v.Y*other.Y
}

// Cross returns the z component of the 3D cross product of v and other.
func (v Vec2) Cross(other Vec2) float64 {
	return v.X*other.Y - v.Y*other.X
}

// Length returns the magnitude.
func (v Vec2) Length() float64 {
	return math.Sqrt(v.X*v.X + v.Y*v.Y)
}

// Normalize returns a unit vector.
func (v Vec2) Normalize() Vec2 {
	l := v.Length()
	if l == 0 {
		return Vec2{}
	}
	return Vec2{v.X / l, v.Y / l}
}

// Distance returns the distance to another point.
func (v Vec2) Distance(other Vec2) float64 {
	return v.Sub(other).Length()
}

// Lerp interpolates between v and other.
func (v Vec2) Lerp(other Vec2, t float64) Vec2 {
	return Vec2{v.X + t*(other.X-v.X), v.Y + t*(other.Y-v.Y)}
}

// PolygonArea2D returns the signed area of a closed polygon.
// Counter-clockwise polygons have positive area.
func PolygonArea2D(pts []Vec2) float64 {
	var a float64
	for i := range pts {
		j := (i + 1) % len(pts)
		a += pts[i].Cross(pts[j])
	}
	return a / 2
}

// IsConvex2D reports whether the closed polygon turns in one direction only.
// Collinear corners are allowed.
func IsConvex2D(pts []Vec2) bool {
	n := len(pts)
	if n < 3 {
		return false
	}
	var pos, neg int
	for i := 0; i < n; i++ {
		a := pts[i]
		b := pts[(i+1)%n]
		c := pts[(i+2)%n]
		cr := b.Sub(a).Cross(c.Sub(b))
		if cr > 1e-12 {
			pos++
		} else if cr < -1e-12 {
			neg++
		}
	}
	return (pos == 0) != (neg == 0)
}

// PointInPolygon2D reports whether p lies strictly inside the closed polygon
// using the even-odd rule.
func PointInPolygon2D(p Vec2, pts []Vec2) bool {
	inside := false
	n := len(pts)
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		a, b := pts[i], pts[j]
		if (a.Y > p.Y) != (b.Y > p.Y) {
			x := a.X + (p.Y-a.Y)*(b.X-a.X)/(b.Y-a.Y)
			if p.X < x {
				inside = !inside
			}
		}
	}
	return inside
}
