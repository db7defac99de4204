package bsp

import (
	"github.com/Faultbox/fracture/pkg/math"
)

// Vertex attribute limits.
const (
	MaxUVSets = 4
	MaxBones  = 4
)

// Vertex is a mesh vertex with every attribute a cut has to carry across.
type Vertex struct {
	Position   math.Vec3
	Normal     math.Vec3
	Tangent    math.Vec3
	Binormal   math.Vec3
	UV         [MaxUVSets]math.Vec2
	Color      [4]float32
	BoneIndex  [MaxBones]uint16
	BoneWeight [MaxBones]float32
}

// Lerp interpolates every attribute between v and o. Bone data cannot be
// blended, so it is copied from the nearer endpoint.
func (v Vertex) Lerp(o Vertex, t float64) Vertex {
	r := v
	if t >= 0.5 {
		r.BoneIndex = o.BoneIndex
		r.BoneWeight = o.BoneWeight
	}
	r.Position = v.Position.Lerp(o.Position, t)
	r.Normal = lerpDir(v.Normal, o.Normal, t)
	r.Tangent = lerpDir(v.Tangent, o.Tangent, t)
	r.Binormal = lerpDir(v.Binormal, o.Binormal, t)
	for i := range r.UV {
		r.UV[i] = v.UV[i].Lerp(o.UV[i], t)
	}
	ft := float32(t)
	for i := range r.Color {
		r.Color[i] = v.Color[i] + ft*(o.Color[i]-v.Color[i])
	}
	return r
}

// flip turns the vertex around for a reversed face.
func (v *Vertex) flip() {
	v.Normal = v.Normal.Neg()
	v.Binormal = v.Binormal.Neg()
}

func lerpDir(a, b math.Vec3, t float64) math.Vec3 {
	d := a.Lerp(b, t)
	if d.LengthSq() == 0 {
		return d
	}
	return d.Normalize()
}
