package hull

import (
	"fmt"

	"github.com/Faultbox/fracture/pkg/math"
	"github.com/Faultbox/fracture/pkg/stream"
)

const (
	serialVersion = 1
	maxElements   = 1 << 20
)

// Serialize writes the hull.
func (h Hull) Serialize(w *stream.Writer) {
	w.StoreDword(serialVersion)
	w.StoreDword(uint32(len(h.Vertices)))
	for _, v := range h.Vertices {
		storeVec3(w, v)
	}
	w.StoreDword(uint32(len(h.Edges)))
	for _, e := range h.Edges {
		w.StoreDword(uint32(e[0]))
		w.StoreDword(uint32(e[1]))
	}
	w.StoreDword(uint32(len(h.Planes)))
	for _, p := range h.Planes {
		storeVec3(w, p.Normal)
		w.StoreDouble(p.D)
	}
}

// Deserialize reads a hull written by Serialize.
func Deserialize(r *stream.Reader) (Hull, error) {
	var h Hull
	if v := r.ReadDword(); r.Err() == nil && v != serialVersion {
		return Hull{}, fmt.Errorf("%w: version %d", ErrBadHull, v)
	}
	n := r.ReadCount(maxElements)
	h.Vertices = make([]math.Vec3, n)
	for i := range h.Vertices {
		h.Vertices[i] = readVec3(r)
	}
	n = r.ReadCount(maxElements)
	h.Edges = make([][2]int, n)
	for i := range h.Edges {
		a, b := int(r.ReadDword()), int(r.ReadDword())
		if r.Err() == nil && (a >= len(h.Vertices) || b >= len(h.Vertices)) {
			return Hull{}, fmt.Errorf("%w: edge %d references vertex out of range", ErrBadHull, i)
		}
		h.Edges[i] = [2]int{a, b}
	}
	n = r.ReadCount(maxElements)
	h.Planes = make([]math.Plane, n)
	for i := range h.Planes {
		h.Planes[i].Normal = readVec3(r)
		h.Planes[i].D = r.ReadDouble()
	}
	if err := r.Err(); err != nil {
		return Hull{}, fmt.Errorf("read hull: %w", err)
	}
	if len(h.Vertices) == 0 {
		h.Vertices = nil
	}
	if len(h.Edges) == 0 {
		h.Edges = nil
	}
	if len(h.Planes) == 0 {
		h.Planes = nil
	}
	return h, nil
}

func storeVec3(w *stream.Writer, v math.Vec3) {
	w.StoreDouble(v.X)
	w.StoreDouble(v.Y)
	w.StoreDouble(v.Z)
}

func readVec3(r *stream.Reader) math.Vec3 {
	return math.Vec3{X: r.ReadDouble(), Y: r.ReadDouble(), Z: r.ReadDouble()}
}
