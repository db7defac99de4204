// Package meshgen builds primitive input meshes: an exact box, and
// cylinders and spheres tessellated from signed distance fields.
package meshgen

import (
	"errors"
	"fmt"

	"github.com/deadsy/sdfx/render"
	"github.com/deadsy/sdfx/sdf"

	"github.com/Faultbox/fracture/pkg/bsp"
	"github.com/Faultbox/fracture/pkg/hmesh"
	"github.com/Faultbox/fracture/pkg/math"
)

// DefaultCells is the marching cubes resolution along the longest side.
const DefaultCells = 24

// ErrBadSize reports a non-positive dimension.
var ErrBadSize = errors.New("meshgen: dimensions must be positive")

// Box returns the 12 triangles of a box of the given size centered on the
// origin, in submesh 0.
func Box(size math.Vec3) ([]hmesh.Triangle, error) {
	if size.X <= 0 || size.Y <= 0 || size.Z <= 0 {
		return nil, fmt.Errorf("%w: box %v", ErrBadSize, size)
	}
	h := size.Scale(0.5)
	return BoxBounds(math.Bounds{Min: h.Neg(), Max: h}), nil
}

// BoxBounds returns the 12 triangles of the box b with face UVs.
func BoxBounds(b math.Bounds) []hmesh.Triangle {
	polys := bsp.Box(b, bsp.Meta{Frame: -1})
	size := b.Extents()
	for i := range polys {
		for j := range polys[i].Vertices {
			v := &polys[i].Vertices[j]
			rel := v.Position.Sub(b.Min)
			v.UV[0] = math.Vec2{
				X: rel.Dot(v.Tangent) / size.Dot(abs(v.Tangent)),
				Y: rel.Dot(v.Binormal) / size.Dot(abs(v.Binormal)),
			}
			v.Color = [4]float32{1, 1, 1, 1}
		}
	}
	return hmesh.Triangles(polys)
}

func abs(v math.Vec3) math.Vec3 {
	return v.Max(v.Neg())
}

// Cylinder returns a closed cylinder along z centered on the origin.
// cells <= 0 uses DefaultCells.
func Cylinder(height, radius float64, cells int) ([]hmesh.Triangle, error) {
	if height <= 0 || radius <= 0 {
		return nil, fmt.Errorf("%w: cylinder h=%g r=%g", ErrBadSize, height, radius)
	}
	s, err := sdf.Cylinder3D(height, radius, 0)
	if err != nil {
		return nil, fmt.Errorf("meshgen: cylinder: %w", err)
	}
	return tessellate(s, cells), nil
}

// Sphere returns a sphere centered on the origin. cells <= 0 uses
// DefaultCells.
func Sphere(radius float64, cells int) ([]hmesh.Triangle, error) {
	if radius <= 0 {
		return nil, fmt.Errorf("%w: sphere r=%g", ErrBadSize, radius)
	}
	s, err := sdf.Sphere3D(radius)
	if err != nil {
		return nil, fmt.Errorf("meshgen: sphere: %w", err)
	}
	return tessellate(s, cells), nil
}

// tessellate runs marching cubes over s and returns outward-wound
// triangles with flat normals.
func tessellate(s sdf.SDF3, cells int) []hmesh.Triangle {
	if cells <= 0 {
		cells = DefaultCells
	}
	tris := render.ToTriangles(s, render.NewMarchingCubesUniform(cells))
	out := make([]hmesh.Triangle, 0, len(tris))
	for _, t := range tris {
		n := t.Normal()
		normal := math.Vec3{X: n.X, Y: n.Y, Z: n.Z}
		var tri hmesh.Triangle
		tri.ExtraDataIndex = -1
		for j := 0; j < 3; j++ {
			v := &tri.Vertices[j]
			v.Position = math.Vec3{X: t[j].X, Y: t[j].Y, Z: t[j].Z}
			v.Normal = normal
			v.Tangent, v.Binormal = math.Basis(normal)
			v.Color = [4]float32{1, 1, 1, 1}
		}
		if tri.Area() > 0 {
			out = append(out, tri)
		}
	}
	if hmesh.TriangleVolume(out) < 0 {
		for i := range out {
			v := &out[i].Vertices
			v[1], v[2] = v[2], v[1]
			for j := range v {
				v[j].Normal = v[j].Normal.Neg()
			}
		}
	}
	return out
}
