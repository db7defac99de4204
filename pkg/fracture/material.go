package fracture

import (
	gomath "math"

	"github.com/Faultbox/fracture/pkg/bsp"
	"github.com/Faultbox/fracture/pkg/hmesh"
	"github.com/Faultbox/fracture/pkg/math"
)

// noFrame marks polygons without a material frame.
const noFrame = -1

// localFrame encodes the k-th frame created by a job so it can be told
// apart from committed frame indices until the job is merged.
func localFrame(k int) int {
	return -2 - k
}

func isLocalFrame(f int) bool {
	return f <= -2
}

// Frame builds the material frame for a cut through pl.
func (m MaterialDesc) Frame(pl math.Plane) hmesh.MaterialFrame {
	n := pl.Normal.Normalize()
	t := m.Tangent.Sub(n.Scale(n.Dot(m.Tangent)))
	if t.LengthSq() < 1e-12 {
		t, _ = math.Basis(n)
	} else {
		t = t.Normalize()
	}
	if m.UAngle != 0 {
		t = math.RotateAxis(n, m.UAngle*gomath.Pi/180).TransformDirection(t).Normalize()
	}
	b := n.Cross(t)
	sx, sy := m.UVScale.X, m.UVScale.Y
	if sx == 0 {
		sx = 1
	}
	if sy == 0 {
		sy = 1
	}
	return hmesh.MaterialFrame{
		Transform: math.FromRows(t.Scale(1/sx), b.Scale(1/sy), n,
			math.Vec3{X: m.UVOffset.X, Y: m.UVOffset.Y, Z: -pl.D}),
		Plane: math.Plane{Normal: n, D: pl.D},
	}
}

// facePolygon builds an interior polygon through pts with attributes
// derived from its plane and frame.
func facePolygon(pts []math.Vec3, meta bsp.Meta, frame hmesh.MaterialFrame) (bsp.Polygon, bool) {
	verts := make([]bsp.Vertex, len(pts))
	for i, p := range pts {
		verts[i].Position = p
	}
	poly, ok := bsp.NewPolygon(verts, meta)
	if !ok {
		return bsp.Polygon{}, false
	}
	n := poly.Plane.Normal
	t, b := math.Basis(n)
	for i := range poly.Vertices {
		v := &poly.Vertices[i]
		v.Normal, v.Tangent, v.Binormal = n, t, b
		v.UV[0] = frame.UV(v.Position)
		v.Color = [4]float32{1, 1, 1, 1}
	}
	return poly, true
}

// commitFrames appends a job's frames to m and rewrites the local frame
// codes in tris to the committed indices.
func commitFrames(m *hmesh.Mesh, frames []hmesh.MaterialFrame, pieces [][]hmesh.Triangle) {
	base := m.MaterialFrameCount()
	for _, f := range frames {
		m.AddMaterialFrame(f)
	}
	for _, tris := range pieces {
		for i := range tris {
			if f := tris[i].ExtraDataIndex; isLocalFrame(f) {
				tris[i].ExtraDataIndex = base + (-2 - f)
			}
		}
	}
}
