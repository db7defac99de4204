package hmesh

import (
	"github.com/Faultbox/fracture/pkg/math"
)

// DebugRenderer receives debug geometry.
type DebugRenderer interface {
	DrawLine(a, b math.Vec3, color uint32)
	DrawTriangle(a, b, c math.Vec3, color uint32)
}

// VisualizeFlags choose what Visualize emits.
type VisualizeFlags uint32

const (
	VisualizeBounds VisualizeFlags = 1 << iota
	VisualizeHull
	VisualizeMesh
	// VisualizeDescendants includes every descendant of the chosen part.
	VisualizeDescendants
)

// Debug colors, 0xRRGGBBAA.
const (
	ColorBounds   uint32 = 0xffff00ff
	ColorHull     uint32 = 0x00ffffff
	ColorMesh     uint32 = 0xc0c0c0ff
	ColorInterior uint32 = 0xff4040ff
)

// Visualize emits debug geometry for part, or for every part when part < 0.
func (m *Mesh) Visualize(r DebugRenderer, flags VisualizeFlags, part int) {
	for i := range m.parts {
		if part >= 0 && i != part && !(flags&VisualizeDescendants != 0 && m.descendsFrom(i, part)) {
			continue
		}
		p := &m.parts[i]
		if flags&VisualizeBounds != 0 && !p.Bounds.IsEmpty() {
			for _, l := range p.Bounds.WireframeLines() {
				r.DrawLine(l[0], l[1], ColorBounds)
			}
		}
		if flags&VisualizeHull != 0 {
			for _, e := range p.Hull.Edges {
				r.DrawLine(p.Hull.Vertices[e[0]], p.Hull.Vertices[e[1]], ColorHull)
			}
		}
		if flags&VisualizeMesh != 0 {
			for _, t := range p.Triangles {
				c := ColorMesh
				if t.Flags&TriangleInterior != 0 {
					c = ColorInterior
				}
				r.DrawTriangle(t.Vertices[0].Position, t.Vertices[1].Position, t.Vertices[2].Position, c)
			}
		}
	}
}

func (m *Mesh) descendsFrom(i, ancestor int) bool {
	for p := m.parts[i].Parent; p >= 0; p = m.parts[p].Parent {
		if p == ancestor {
			return true
		}
	}
	return false
}
