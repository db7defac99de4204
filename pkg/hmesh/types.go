// Package hmesh holds the explicit hierarchical mesh: an arena of parts,
// each a triangle soup with bounds, a collision hull, flags and a parent
// link, plus the submesh and material frame tables the parts share.
//
// Parts are addressed by index. A part's parent always has a smaller index,
// so the parent links form a forest by construction.
package hmesh

import (
	"github.com/Faultbox/fracture/pkg/bsp"
	"github.com/Faultbox/fracture/pkg/hull"
	"github.com/Faultbox/fracture/pkg/math"
)

// Vertex attribute limits.
const (
	MaxUVSets = bsp.MaxUVSets
	MaxBones  = bsp.MaxBones
)

// Vertex is a mesh vertex. It is the BSP vertex so cuts carry every
// attribute without conversion.
type Vertex = bsp.Vertex

// TriangleFlags mark triangle provenance.
type TriangleFlags uint32

const (
	// TriangleInterior marks a face exposed by a cut.
	TriangleInterior TriangleFlags = 1 << iota
)

// Triangle is one face of a part.
type Triangle struct {
	Vertices      [3]Vertex
	SubmeshIndex  int
	SmoothingMask uint32
	// ExtraDataIndex is the material frame index, or -1.
	ExtraDataIndex int
	Flags          TriangleFlags
}

// Normal returns the unit face normal, or zero for a degenerate triangle.
func (t Triangle) Normal() math.Vec3 {
	a, b, c := t.Vertices[0].Position, t.Vertices[1].Position, t.Vertices[2].Position
	return b.Sub(a).Cross(c.Sub(a)).Normalize()
}

// Area returns the triangle area.
func (t Triangle) Area() float64 {
	a, b, c := t.Vertices[0].Position, t.Vertices[1].Position, t.Vertices[2].Position
	return b.Sub(a).Cross(c.Sub(a)).Length() / 2
}

// Polygon converts the triangle for the BSP engine.
func (t Triangle) Polygon() (bsp.Polygon, bool) {
	meta := bsp.Meta{
		Submesh:   t.SubmeshIndex,
		Smoothing: t.SmoothingMask,
		Frame:     t.ExtraDataIndex,
	}
	if t.Flags&TriangleInterior != 0 {
		meta.Flags |= bsp.FlagInterior
	}
	return bsp.NewPolygon([]Vertex{t.Vertices[0], t.Vertices[1], t.Vertices[2]}, meta)
}

// Polygons converts triangles, dropping degenerate ones.
func Polygons(tris []Triangle) []bsp.Polygon {
	out := make([]bsp.Polygon, 0, len(tris))
	for _, t := range tris {
		if p, ok := t.Polygon(); ok {
			out = append(out, p)
		}
	}
	return out
}

// Triangles fans convex polygons back into triangles.
func Triangles(polys []bsp.Polygon) []Triangle {
	tris := bsp.Triangulate(polys)
	out := make([]Triangle, len(tris))
	for i, p := range tris {
		t := Triangle{
			SubmeshIndex:   p.Meta.Submesh,
			SmoothingMask:  p.Meta.Smoothing,
			ExtraDataIndex: p.Meta.Frame,
		}
		copy(t.Vertices[:], p.Vertices)
		if p.Meta.Flags&bsp.FlagInterior != 0 {
			t.Flags |= TriangleInterior
		}
		out[i] = t
	}
	return out
}

// PartFlags describe how a part was produced.
type PartFlags uint32

const (
	// PartCutoutFaceSplit marks a chunk carved by a cutout.
	PartCutoutFaceSplit PartFlags = 1 << iota
	// PartCutoutLeftover marks material left after every cutout was taken.
	PartCutoutLeftover
	// PartCore marks the exported core mesh; it is never split.
	PartCore
)

// Part is one node of the hierarchy.
type Part struct {
	Triangles []Triangle
	Bounds    math.Bounds
	Hull      hull.Hull
	Flags     PartFlags
	// Parent is -1 for depth-0 parts.
	Parent int
}

// Winding is the front-face vertex order of a submesh.
type Winding uint8

const (
	WindingCCW Winding = iota
	WindingCW
)

// VertexFormat lists the channels a submesh's vertices carry.
type VertexFormat struct {
	HasNormal      bool    `yaml:"normal"`
	HasTangent     bool    `yaml:"tangent"`
	HasBinormal    bool    `yaml:"binormal"`
	HasColor       bool    `yaml:"color"`
	UVCount        int     `yaml:"uv_count"`
	BonesPerVertex int     `yaml:"bones_per_vertex"`
	Winding        Winding `yaml:"winding"`
}

// Submesh is a material slot shared by all parts.
type Submesh struct {
	MaterialName string       `yaml:"material"`
	Format       VertexFormat `yaml:"format"`
}

// MaterialFrame projects positions on an interior face to UVs: u is row 0
// of Transform applied to the position, v is row 1.
type MaterialFrame struct {
	Transform math.Mat4
	// Plane is the cutting plane the frame was created for.
	Plane math.Plane
}

// UV projects p.
func (f MaterialFrame) UV(p math.Vec3) math.Vec2 {
	q := f.Transform.TransformPoint(p)
	return math.Vec2{X: q.X, Y: q.Y}
}

// Progress receives percent-complete notifications.
type Progress interface {
	SetProgress(percent int)
}

// ProgressFunc adapts a function to Progress.
type ProgressFunc func(percent int)

// SetProgress calls f.
func (f ProgressFunc) SetProgress(percent int) {
	f(percent)
}
