package hmesh

import (
	"bytes"
	"errors"
	gomath "math"
	"testing"

	"github.com/Faultbox/fracture/pkg/bsp"
	"github.com/Faultbox/fracture/pkg/hull"
	"github.com/Faultbox/fracture/pkg/math"
	"github.com/Faultbox/fracture/pkg/stream"
)

func boxTriangles(min, max math.Vec3) []Triangle {
	return Triangles(bsp.Box(math.Bounds{Min: min, Max: max}, bsp.Meta{Frame: -1}))
}

func unitCube(t *testing.T) *Mesh {
	t.Helper()
	m, err := Build(boxTriangles(math.Vec3{}, math.Vec3{X: 1, Y: 1, Z: 1}), []Submesh{{MaterialName: "stone"}}, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return m
}

func TestBuild(t *testing.T) {
	m := unitCube(t)
	if m.PartCount() != 1 || m.MaxDepth() != 0 || m.RootDepth() != 0 {
		t.Fatalf("parts=%d maxDepth=%d rootDepth=%d", m.PartCount(), m.MaxDepth(), m.RootDepth())
	}
	if n := m.MeshTriangleCount(0); n != 12 {
		t.Errorf("triangles = %d, want 12", n)
	}
	if v := m.Volume(0); gomath.Abs(v-1) > 1e-12 {
		t.Errorf("volume = %v, want 1", v)
	}
	if len(m.Hull(0).Vertices) != 8 {
		t.Errorf("hull vertices = %d, want 8", len(m.Hull(0).Vertices))
	}
	if err := m.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestBuildPartitions(t *testing.T) {
	a := boxTriangles(math.Vec3{}, math.Vec3{X: 1, Y: 1, Z: 1})
	b := boxTriangles(math.Vec3{X: 2}, math.Vec3{X: 3, Y: 1, Z: 1})
	m, err := Build(append(a, b...), []Submesh{{}}, []int{0, len(a)})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if m.PartCount() != 3 || m.RootDepth() != 1 || m.MaxDepth() != 1 {
		t.Fatalf("parts=%d rootDepth=%d maxDepth=%d", m.PartCount(), m.RootDepth(), m.MaxDepth())
	}
	if got := m.Children(0); len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Errorf("Children(0) = %v", got)
	}
	if m.MeshTriangleCount(0) != len(a)+len(b) {
		t.Errorf("root holds %d triangles", m.MeshTriangleCount(0))
	}
}

func TestBuildErrors(t *testing.T) {
	tris := boxTriangles(math.Vec3{}, math.Vec3{X: 1, Y: 1, Z: 1})
	bad := append([]Triangle(nil), tris...)
	bad[3].SubmeshIndex = 5
	tests := []struct {
		name       string
		tris       []Triangle
		subs       []Submesh
		partitions []int
	}{
		{"no submeshes", tris, nil, nil},
		{"no triangles", nil, []Submesh{{}}, nil},
		{"submesh range", bad, []Submesh{{}}, nil},
		{"partition start", tris, []Submesh{{}}, []int{1}},
		{"partition order", tris, []Submesh{{}}, []int{0, 6, 6}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Build(tt.tris, tt.subs, tt.partitions)
			if !errors.Is(err, ErrInvalidInput) {
				t.Errorf("err = %v, want ErrInvalidInput", err)
			}
		})
	}
}

func TestClearKeepRoot(t *testing.T) {
	m := unitCube(t)
	f := m.AddMaterialFrame(MaterialFrame{Transform: math.Identity()})
	child := boxTriangles(math.Vec3{}, math.Vec3{X: 0.5, Y: 1, Z: 1})
	for i := range child {
		child[i].ExtraDataIndex = f
	}
	c := m.AddPart(0, child, 0)
	m.AddPart(c, child, 0)
	if m.MaxDepth() != 2 {
		t.Fatalf("MaxDepth = %d", m.MaxDepth())
	}
	m.Clear(true)
	if m.PartCount() != 1 || m.MaxDepth() != 0 {
		t.Errorf("after Clear(true): parts=%d depth=%d", m.PartCount(), m.MaxDepth())
	}
	if m.MaterialFrameCount() != 0 {
		t.Errorf("unreferenced frames kept: %d", m.MaterialFrameCount())
	}
	if m.SubmeshCount() != 1 {
		t.Errorf("submeshes dropped")
	}
	m.Clear(false)
	if m.PartCount() != 0 || m.SubmeshCount() != 0 || m.MaxDepth() != -1 {
		t.Errorf("Clear(false) left parts=%d submeshes=%d", m.PartCount(), m.SubmeshCount())
	}
}

func TestCloneIndependent(t *testing.T) {
	m := unitCube(t)
	c := m.Clone()
	c.AddPart(0, boxTriangles(math.Vec3{}, math.Vec3{X: 1, Y: 1, Z: 0.5}), PartCutoutLeftover)
	c.AddSubmesh(Submesh{MaterialName: "interior"})
	if m.PartCount() != 1 || m.SubmeshCount() != 1 {
		t.Error("clone mutation leaked into source")
	}
	m.Set(c)
	if m.PartCount() != 2 || m.MeshFlags(1) != PartCutoutLeftover {
		t.Error("Set did not copy")
	}
}

func TestValidate(t *testing.T) {
	m := unitCube(t)
	m.AddPart(0, nil, 0)
	if err := m.Validate(); !errors.Is(err, ErrInvalidMesh) {
		t.Errorf("empty leaf: err = %v", err)
	}
	m = unitCube(t)
	m.AddPart(0, nil, PartCutoutLeftover)
	if err := m.Validate(); err != nil {
		t.Errorf("empty leftover rejected: %v", err)
	}
}

func TestApplyTransformation(t *testing.T) {
	m := unitCube(t)
	m.BuildCollisionHull(0, hull.Method26DOP)
	f := m.AddMaterialFrame(MaterialFrame{Transform: math.Identity(), Plane: math.Plane{Normal: math.UnitX, D: 0.5}})
	p := math.Vec3{X: 0.5, Y: 0.25, Z: 0.75}
	uv := m.MaterialFrame(f).UV(p)

	tr := math.Translate(3, 0, 0).Mul(math.Scale(2, 2, 2))
	m.ApplyTransformation(tr)
	if v := m.Volume(0); gomath.Abs(v-8) > 1e-9 {
		t.Errorf("volume = %v, want 8", v)
	}
	if b := m.MeshBounds(0); !b.Min.ApproxEqual(math.Vec3{X: 3}, 1e-12) {
		t.Errorf("bounds min = %v", b.Min)
	}
	if got := m.MaterialFrame(f).UV(tr.TransformPoint(p)); !(gomath.Abs(got.X-uv.X) < 1e-9 && gomath.Abs(got.Y-uv.Y) < 1e-9) {
		t.Errorf("UV moved: %v -> %v", uv, got)
	}
	if pl := m.MaterialFrame(f).Plane; gomath.Abs(pl.D-4) > 1e-9 {
		t.Errorf("frame plane D = %v, want 4", pl.D)
	}
	if !m.Hull(0).Contains(math.Vec3{X: 4, Y: 1, Z: 1}, 1e-9) {
		t.Error("hull did not follow the mesh")
	}

	mirror := math.Scale(-1, 1, 1)
	m.ApplyTransformation(mirror)
	if v := m.Volume(0); gomath.Abs(v-8) > 1e-9 {
		t.Errorf("mirrored volume = %v, want 8", v)
	}
}

func TestCalculateMeshBSP(t *testing.T) {
	m := unitCube(t)
	m.AddPart(0, boxTriangles(math.Vec3{}, math.Vec3{X: 0.5, Y: 1, Z: 1}), 0)
	var calls []int
	m.CalculateMeshBSP(1, ProgressFunc(func(p int) { calls = append(calls, p) }), -1)
	if m.CachedBSP(0) == nil {
		t.Fatal("root BSP not cached")
	}
	if m.CachedBSP(1) != nil {
		t.Error("BSP cached below root depth")
	}
	if len(calls) != 1 || calls[0] != 100 {
		t.Errorf("progress calls = %v", calls)
	}
	if !m.CachedBSP(0).Contains(math.Vec3{X: 0.5, Y: 0.5, Z: 0.5}) {
		t.Error("cached tree does not contain cube center")
	}
	m.SetMeshTriangles(0, m.MeshTriangles(0))
	if m.CachedBSP(0) != nil {
		t.Error("cache survived mutation")
	}
}

type recorder struct {
	lines, tris int
}

func (r *recorder) DrawLine(a, b math.Vec3, color uint32)        { r.lines++ }
func (r *recorder) DrawTriangle(a, b, c math.Vec3, color uint32) { r.tris++ }

func TestVisualize(t *testing.T) {
	m := unitCube(t)
	m.AddPart(0, boxTriangles(math.Vec3{}, math.Vec3{X: 0.5, Y: 1, Z: 1}), 0)
	var r recorder
	m.Visualize(&r, VisualizeBounds|VisualizeHull|VisualizeMesh, 0)
	if r.lines != 24 || r.tris != 12 {
		t.Errorf("part 0: lines=%d tris=%d, want 24/12", r.lines, r.tris)
	}
	r = recorder{}
	m.Visualize(&r, VisualizeBounds|VisualizeDescendants, 0)
	if r.lines != 24 {
		t.Errorf("with descendants: lines=%d, want 24", r.lines)
	}
}

func TestSerializeRoundTrip(t *testing.T) {
	m := unitCube(t)
	m.AddMaterialFrame(MaterialFrame{Transform: math.Translate(1, 2, 3), Plane: math.Plane{Normal: math.UnitY, D: 2}})
	m.AddPart(0, boxTriangles(math.Vec3{}, math.Vec3{X: 0.5, Y: 1, Z: 1}), PartCutoutFaceSplit)

	library := "granite.mtl"
	var buf bytes.Buffer
	err := m.Serialize(stream.NewWriter(&buf), Embedding{
		Encode: func(w *stream.Writer, kind EmbeddingKind) error {
			w.StoreString(library)
			return nil
		},
	})
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}

	var gotLib string
	var gotVersion uint32
	out := New()
	err = out.Deserialize(stream.NewReader(bytes.NewReader(buf.Bytes())), Embedding{
		Decode: func(r *stream.Reader, kind EmbeddingKind, version uint32) error {
			gotLib = r.ReadString()
			gotVersion = version
			return r.Err()
		},
	})
	if err != nil {
		t.Fatalf("Deserialize: %v", err)
	}
	if gotLib != library || gotVersion != CurrentVersion {
		t.Errorf("embedding = %q v%d", gotLib, gotVersion)
	}
	if out.PartCount() != 2 || out.MeshFlags(1) != PartCutoutFaceSplit || out.ParentIndex(1) != 0 {
		t.Errorf("parts not restored")
	}
	if out.MaterialFrame(0) != m.MaterialFrame(0) {
		t.Errorf("frame = %+v", out.MaterialFrame(0))
	}
	if len(out.Hull(0).Vertices) != 8 {
		t.Errorf("hull not restored")
	}
	for i, tr := range m.MeshTriangles(1) {
		if out.MeshTriangles(1)[i] != tr {
			t.Fatalf("triangle %d differs", i)
		}
	}

	// Without a decoder the embedding block is skipped.
	if err := New().Deserialize(stream.NewReader(bytes.NewReader(buf.Bytes())), Embedding{}); err != nil {
		t.Errorf("Deserialize without decoder: %v", err)
	}
}

func TestDeserializeErrors(t *testing.T) {
	m := unitCube(t)
	if err := m.Deserialize(stream.NewReader(bytes.NewReader([]byte("NOPE"))), Embedding{}); err == nil {
		t.Error("bad magic accepted")
	}
	var buf bytes.Buffer
	w := stream.NewWriter(&buf)
	w.StoreMagic(Magic)
	w.StoreDword(CurrentVersion + 1)
	if err := m.Deserialize(stream.NewReader(&buf), Embedding{}); !errors.Is(err, ErrUnsupportedVersion) {
		t.Errorf("err = %v, want ErrUnsupportedVersion", err)
	}
	if m.PartCount() != 1 {
		t.Error("failed Deserialize changed the mesh")
	}
}
