package hmesh

import (
	"errors"
	"fmt"

	"github.com/Faultbox/fracture/pkg/bsp"
	"github.com/Faultbox/fracture/pkg/hull"
	"github.com/Faultbox/fracture/pkg/math"
)

// Mesh errors.
var (
	ErrInvalidInput = errors.New("hmesh: invalid input")
	ErrInvalidMesh  = errors.New("hmesh: invariant violated")
)

// Mesh is the explicit hierarchical mesh. The zero value is not usable;
// call New or Build.
type Mesh struct {
	parts     []Part
	submeshes []Submesh
	frames    []MaterialFrame
	rootDepth int
	bsps      []*bsp.Tree
}

// New returns an empty mesh.
func New() *Mesh {
	return &Mesh{}
}

// Build ingests a triangle soup. Without partitions every triangle forms the
// single depth-0 root. With partitions, each partition (a start offset into
// tris) becomes a depth-1 part and their union the root.
func Build(tris []Triangle, submeshes []Submesh, partitions []int) (*Mesh, error) {
	if len(submeshes) == 0 {
		return nil, fmt.Errorf("%w: no submeshes", ErrInvalidInput)
	}
	if len(tris) == 0 {
		return nil, fmt.Errorf("%w: no triangles", ErrInvalidInput)
	}
	for i, t := range tris {
		if t.SubmeshIndex < 0 || t.SubmeshIndex >= len(submeshes) {
			return nil, fmt.Errorf("%w: triangle %d submesh %d out of range [0,%d)",
				ErrInvalidInput, i, t.SubmeshIndex, len(submeshes))
		}
	}
	if len(partitions) > 0 {
		if partitions[0] != 0 {
			return nil, fmt.Errorf("%w: first partition must start at 0", ErrInvalidInput)
		}
		for i := 1; i < len(partitions); i++ {
			if partitions[i] <= partitions[i-1] || partitions[i] >= len(tris) {
				return nil, fmt.Errorf("%w: partition offset %d at %d not increasing",
					ErrInvalidInput, partitions[i], i)
			}
		}
	}

	m := New()
	m.submeshes = append(m.submeshes, submeshes...)
	root := m.AddPart(-1, tris, 0)
	if len(partitions) > 0 {
		m.rootDepth = 1
		for i, start := range partitions {
			end := len(tris)
			if i+1 < len(partitions) {
				end = partitions[i+1]
			}
			m.AddPart(root, tris[start:end], 0)
		}
	}
	for i := range m.parts {
		m.BuildCollisionHull(i, hull.Method6DOP)
	}
	return m, nil
}

// Clear removes parts. With keepRoot, parts at depth <= RootDepth survive
// and only material frames they reference are kept; otherwise the mesh is
// emptied entirely.
func (m *Mesh) Clear(keepRoot bool) {
	if !keepRoot {
		*m = Mesh{}
		return
	}
	remap := make([]int, len(m.parts))
	var parts []Part
	var bsps []*bsp.Tree
	for i, p := range m.parts {
		remap[i] = -1
		if m.Depth(i) > m.rootDepth {
			continue
		}
		if p.Parent >= 0 {
			p.Parent = remap[p.Parent]
		}
		remap[i] = len(parts)
		parts = append(parts, p)
		bsps = append(bsps, m.cachedAt(i))
	}
	m.parts = parts
	m.bsps = bsps
	m.compactFrames()
}

// compactFrames drops frames no triangle references.
func (m *Mesh) compactFrames() {
	remap := make([]int, len(m.frames))
	for i := range remap {
		remap[i] = -1
	}
	var frames []MaterialFrame
	for pi := range m.parts {
		tris := m.parts[pi].Triangles
		changed := false
		for ti := range tris {
			f := tris[ti].ExtraDataIndex
			if f < 0 || f >= len(m.frames) {
				continue
			}
			if remap[f] < 0 {
				remap[f] = len(frames)
				frames = append(frames, m.frames[f])
			}
			if remap[f] != f {
				if !changed {
					tris = append([]Triangle(nil), tris...)
					changed = true
				}
				tris[ti].ExtraDataIndex = remap[f]
			}
		}
		m.parts[pi].Triangles = tris
	}
	m.frames = frames
}

// RootDepth is the depth of the parts the input mesh was ingested as.
func (m *Mesh) RootDepth() int {
	return m.rootDepth
}

// PartCount returns the number of parts.
func (m *Mesh) PartCount() int {
	return len(m.parts)
}

// MaxDepth returns the greatest part depth, or -1 for an empty mesh.
func (m *Mesh) MaxDepth() int {
	d := -1
	for i := range m.parts {
		if pd := m.Depth(i); pd > d {
			d = pd
		}
	}
	return d
}

// ParentIndex returns the parent of part i, -1 for roots.
func (m *Mesh) ParentIndex(i int) int {
	return m.parts[i].Parent
}

// Depth returns the depth of part i.
func (m *Mesh) Depth(i int) int {
	d := 0
	for p := m.parts[i].Parent; p >= 0; p = m.parts[p].Parent {
		d++
	}
	return d
}

// Children returns the direct children of part i in index order.
func (m *Mesh) Children(i int) []int {
	var out []int
	for j := i + 1; j < len(m.parts); j++ {
		if m.parts[j].Parent == i {
			out = append(out, j)
		}
	}
	return out
}

// IsLeaf reports whether part i has no children.
func (m *Mesh) IsLeaf(i int) bool {
	for j := i + 1; j < len(m.parts); j++ {
		if m.parts[j].Parent == i {
			return false
		}
	}
	return true
}

// PartsAtDepth returns the parts at depth d in index order.
func (m *Mesh) PartsAtDepth(d int) []int {
	var out []int
	for i := range m.parts {
		if m.Depth(i) == d {
			out = append(out, i)
		}
	}
	return out
}

// MeshTriangles returns the triangles of part i. The slice must not be
// modified; use SetMeshTriangles.
func (m *Mesh) MeshTriangles(i int) []Triangle {
	return m.parts[i].Triangles
}

// MeshTriangleCount returns the triangle count of part i.
func (m *Mesh) MeshTriangleCount(i int) int {
	return len(m.parts[i].Triangles)
}

// MeshBounds returns the bounds of part i.
func (m *Mesh) MeshBounds(i int) math.Bounds {
	return m.parts[i].Bounds
}

// MeshFlags returns the flags of part i.
func (m *Mesh) MeshFlags(i int) PartFlags {
	return m.parts[i].Flags
}

// Hull returns the collision hull of part i.
func (m *Mesh) Hull(i int) hull.Hull {
	return m.parts[i].Hull
}

// SetHull replaces the collision hull of part i.
func (m *Mesh) SetHull(i int, h hull.Hull) {
	m.parts[i].Hull = h
}

// SetMeshTriangles replaces the triangles of part i and refreshes its bounds.
func (m *Mesh) SetMeshTriangles(i int, tris []Triangle) {
	m.parts[i].Triangles = tris
	m.parts[i].Bounds = triangleBounds(tris)
	m.invalidate(i)
}

// AddPart appends a part and returns its index. parent must be -1 or an
// existing part; AddPart panics otherwise.
func (m *Mesh) AddPart(parent int, tris []Triangle, flags PartFlags) int {
	if parent < -1 || parent >= len(m.parts) {
		panic(fmt.Sprintf("hmesh: AddPart parent %d out of range", parent))
	}
	own := append([]Triangle(nil), tris...)
	m.parts = append(m.parts, Part{
		Triangles: own,
		Bounds:    triangleBounds(own),
		Flags:     flags,
		Parent:    parent,
	})
	m.bsps = append(m.bsps, nil)
	return len(m.parts) - 1
}

// SubmeshCount returns the number of submeshes.
func (m *Mesh) SubmeshCount() int {
	return len(m.submeshes)
}

// Submesh returns submesh i.
func (m *Mesh) Submesh(i int) Submesh {
	return m.submeshes[i]
}

// AddSubmesh appends a submesh and returns its index.
func (m *Mesh) AddSubmesh(s Submesh) int {
	m.submeshes = append(m.submeshes, s)
	return len(m.submeshes) - 1
}

// FindSubmesh returns the index of the submesh with the given material, or -1.
func (m *Mesh) FindSubmesh(material string) int {
	for i, s := range m.submeshes {
		if s.MaterialName == material {
			return i
		}
	}
	return -1
}

// MaterialFrameCount returns the number of material frames.
func (m *Mesh) MaterialFrameCount() int {
	return len(m.frames)
}

// MaterialFrame returns frame i.
func (m *Mesh) MaterialFrame(i int) MaterialFrame {
	return m.frames[i]
}

// AddMaterialFrame appends a frame and returns its index.
func (m *Mesh) AddMaterialFrame(f MaterialFrame) int {
	m.frames = append(m.frames, f)
	return len(m.frames) - 1
}

// BuildCollisionHull recomputes the hull of part i from its vertices.
func (m *Mesh) BuildCollisionHull(i int, method hull.Method) {
	m.parts[i].Hull = hull.Build(positions(m.parts[i].Triangles), method)
}

// Volume returns the signed volume enclosed by part i.
func (m *Mesh) Volume(i int) float64 {
	return TriangleVolume(m.parts[i].Triangles)
}

// TriangleVolume returns the signed volume of a closed triangle soup.
func TriangleVolume(tris []Triangle) float64 {
	var v float64
	for _, t := range tris {
		a, b, c := t.Vertices[0].Position, t.Vertices[1].Position, t.Vertices[2].Position
		v += a.Dot(b.Cross(c))
	}
	return v / 6
}

// ApplyTransformation maps every part, hull and material frame through tr.
// UVs projected by a frame are unchanged by the move. A mirroring transform
// reverses triangle winding so faces keep pointing outward.
func (m *Mesh) ApplyTransformation(tr math.Mat4) {
	flip := tr.Determinant3() < 0
	inv := tr.Inverse()
	for pi := range m.parts {
		p := &m.parts[pi]
		tris := make([]Triangle, len(p.Triangles))
		for ti, t := range p.Triangles {
			for vi := range t.Vertices {
				v := &t.Vertices[vi]
				v.Position = tr.TransformPoint(v.Position)
				v.Normal = tr.TransformNormal(v.Normal).Normalize()
				v.Tangent = tr.TransformDirection(v.Tangent).Normalize()
				v.Binormal = tr.TransformDirection(v.Binormal).Normalize()
			}
			if flip {
				t.Vertices[1], t.Vertices[2] = t.Vertices[2], t.Vertices[1]
			}
			tris[ti] = t
		}
		p.Triangles = tris
		p.Bounds = triangleBounds(tris)
		p.Hull = p.Hull.Transform(tr)
	}
	for i, f := range m.frames {
		n := tr.TransformNormal(f.Plane.Normal).Normalize()
		o := tr.TransformPoint(f.Plane.Normal.Scale(f.Plane.D))
		m.frames[i] = MaterialFrame{
			Transform: f.Transform.Mul(inv),
			Plane:     math.Plane{Normal: n, D: n.Dot(o)},
		}
	}
	for i := range m.bsps {
		m.bsps[i] = nil
	}
}

// Validate checks the hierarchy invariants: parents precede children,
// submesh indices are in range, and every leaf that is not leftover scrap
// has triangles.
func (m *Mesh) Validate() error {
	for i, p := range m.parts {
		if p.Parent < -1 || p.Parent >= i {
			return fmt.Errorf("%w: part %d has parent %d", ErrInvalidMesh, i, p.Parent)
		}
		for ti, t := range p.Triangles {
			if t.SubmeshIndex < 0 || t.SubmeshIndex >= len(m.submeshes) {
				return fmt.Errorf("%w: part %d triangle %d submesh %d", ErrInvalidMesh, i, ti, t.SubmeshIndex)
			}
			if t.ExtraDataIndex >= len(m.frames) {
				return fmt.Errorf("%w: part %d triangle %d frame %d", ErrInvalidMesh, i, ti, t.ExtraDataIndex)
			}
		}
		if len(p.Triangles) == 0 && p.Flags&PartCutoutLeftover == 0 && m.IsLeaf(i) {
			return fmt.Errorf("%w: leaf part %d is empty", ErrInvalidMesh, i)
		}
	}
	return nil
}

// Clone returns a deep copy. Cached BSP trees are shared; they are never
// mutated in place.
func (m *Mesh) Clone() *Mesh {
	c := &Mesh{
		parts:     make([]Part, len(m.parts)),
		submeshes: append([]Submesh(nil), m.submeshes...),
		frames:    append([]MaterialFrame(nil), m.frames...),
		rootDepth: m.rootDepth,
		bsps:      append([]*bsp.Tree(nil), m.bsps...),
	}
	for i, p := range m.parts {
		p.Triangles = append([]Triangle(nil), p.Triangles...)
		p.Hull = cloneHull(p.Hull)
		c.parts[i] = p
	}
	return c
}

// Set replaces m's content with a deep copy of other.
func (m *Mesh) Set(other *Mesh) {
	*m = *other.Clone()
}

func cloneHull(h hull.Hull) hull.Hull {
	return hull.Hull{
		Vertices: append([]math.Vec3(nil), h.Vertices...),
		Edges:    append([][2]int(nil), h.Edges...),
		Planes:   append([]math.Plane(nil), h.Planes...),
	}
}

func positions(tris []Triangle) []math.Vec3 {
	pts := make([]math.Vec3, 0, 3*len(tris))
	for _, t := range tris {
		for _, v := range t.Vertices {
			pts = append(pts, v.Position)
		}
	}
	return pts
}

// Positions returns every vertex position of part i.
func (m *Mesh) Positions(i int) []math.Vec3 {
	return positions(m.parts[i].Triangles)
}

func triangleBounds(tris []Triangle) math.Bounds {
	b := math.EmptyBounds()
	for _, t := range tris {
		for _, v := range t.Vertices {
			b = b.Include(v.Position)
		}
	}
	return b
}
