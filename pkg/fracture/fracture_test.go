package fracture

import (
	"context"
	"errors"
	"fmt"
	gomath "math"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/Faultbox/fracture/pkg/cutout"
	"github.com/Faultbox/fracture/pkg/hmesh"
	"github.com/Faultbox/fracture/pkg/hull"
	"github.com/Faultbox/fracture/pkg/math"
	"github.com/Faultbox/fracture/pkg/meshgen"
	"github.com/Faultbox/fracture/pkg/noise"
)

func unitBounds() math.Bounds {
	return math.Bounds{Max: math.Vec3{X: 1, Y: 1, Z: 1}}
}

// cubeMesh returns a unit cube with an outer and an inner submesh.
func cubeMesh(t *testing.T) *hmesh.Mesh {
	t.Helper()
	m, err := hmesh.Build(meshgen.BoxBounds(unitBounds()),
		[]hmesh.Submesh{{MaterialName: "outer"}, {MaterialName: "inner"}}, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return m
}

func sliceDesc(depth int, splits [3]int) SliceDesc {
	return SliceDesc{
		MaxDepth: depth,
		Levels:   []SliceParameters{{Order: OrderXYZ, SplitsPerPass: splits}},
	}
}

func approx(a, b, eps float64) bool {
	return gomath.Abs(a-b) <= eps
}

// checkPartition verifies that the children of every split part add up to
// its volume.
func checkPartition(t *testing.T, m *hmesh.Mesh, eps float64) {
	t.Helper()
	for i := 0; i < m.PartCount(); i++ {
		kids := m.Children(i)
		if len(kids) == 0 {
			continue
		}
		var sum float64
		for _, k := range kids {
			v := m.Volume(k)
			if v <= 0 {
				t.Errorf("part %d volume %v", k, v)
			}
			sum += v
		}
		if !approx(sum, m.Volume(i), eps) {
			t.Errorf("children of %d sum to %v, parent %v", i, sum, m.Volume(i))
		}
	}
}

func TestScenarioSingleSplit(t *testing.T) {
	m := cubeMesh(t)
	err := CreateHierarchicallySplitMesh(context.Background(), m, nil, false, 1,
		ProcessingParams{}, sliceDesc(1, [3]int{1, 0, 0}), MaterialDesc{}, Options{Seed: 7})
	if err != nil {
		t.Fatalf("slice: %v", err)
	}
	if m.PartCount() != 3 || m.MaxDepth() != 1 {
		t.Fatalf("parts = %d depth = %d, want 3 and 1", m.PartCount(), m.MaxDepth())
	}
	kids := m.Children(0)
	if len(kids) != 2 {
		t.Fatalf("children = %v", kids)
	}
	wantX := [][2]float64{{0, 0.5}, {0.5, 1}}
	for n, k := range kids {
		if v := m.Volume(k); !approx(v, 0.5, 1e-9) {
			t.Errorf("child %d volume = %v", k, v)
		}
		b := m.MeshBounds(k)
		if !approx(b.Min.X, wantX[n][0], 1e-9) || !approx(b.Max.X, wantX[n][1], 1e-9) ||
			!approx(b.Min.Y, 0, 1e-9) || !approx(b.Max.Z, 1, 1e-9) {
			t.Errorf("child %d bounds = %+v", k, b)
		}
		h := m.Hull(k)
		if len(h.Vertices) != 8 || len(h.Planes) != 6 {
			t.Errorf("child %d hull has %d vertices %d planes", k, len(h.Vertices), len(h.Planes))
		}
		interior := 0
		for _, tri := range m.MeshTriangles(k) {
			if tri.Flags&hmesh.TriangleInterior == 0 {
				continue
			}
			interior++
			if tri.SubmeshIndex != 1 || tri.ExtraDataIndex != 0 {
				t.Errorf("interior triangle submesh %d frame %d", tri.SubmeshIndex, tri.ExtraDataIndex)
			}
			for _, v := range tri.Vertices {
				if !approx(v.Position.X, 0.5, 1e-9) {
					t.Errorf("interior vertex off the cut: %v", v.Position)
				}
				uv := m.MaterialFrame(0).UV(v.Position)
				if !approx(uv.X, v.UV[0].X, 1e-9) || !approx(uv.Y, v.UV[0].Y, 1e-9) {
					t.Errorf("uv %v, frame gives %v", v.UV[0], uv)
				}
			}
		}
		if interior == 0 {
			t.Errorf("child %d has no interior faces", k)
		}
	}
	if m.MaterialFrameCount() != 1 {
		t.Errorf("frames = %d, want 1", m.MaterialFrameCount())
	}
	if err := m.Validate(); err != nil {
		t.Error(err)
	}
}

func TestNoInteriorSubmesh(t *testing.T) {
	m := cubeMesh(t)
	err := CreateHierarchicallySplitMesh(context.Background(), m, nil, false, -1,
		ProcessingParams{}, sliceDesc(1, [3]int{0, 1, 0}), MaterialDesc{}, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if m.MaterialFrameCount() != 0 {
		t.Errorf("frames = %d, want 0", m.MaterialFrameCount())
	}
	for _, k := range m.Children(0) {
		for _, tri := range m.MeshTriangles(k) {
			if tri.Flags&hmesh.TriangleInterior != 0 && (tri.SubmeshIndex != 0 || tri.ExtraDataIndex != -1) {
				t.Fatalf("interior triangle submesh %d frame %d", tri.SubmeshIndex, tri.ExtraDataIndex)
			}
		}
	}
}

func noisyDesc() SliceDesc {
	p := SliceParameters{
		Order:            OrderZYX,
		SplitsPerPass:    [3]int{1, 1, 1},
		LinearVariation:  [3]float64{0.3, 0.3, 0.3},
		AngularVariation: [3]float64{0.17, 0.17, 0.17},
	}
	for a := range p.Noise {
		p.Noise[a] = noise.Parameters{Amplitude: 0.03, Frequency: 0.5, GridSize: 4}
	}
	return SliceDesc{MaxDepth: 2, Levels: []SliceParameters{p, {Order: OrderThrough, SplitsPerPass: [3]int{1, 0, 0}}}}
}

func TestVolumePartition(t *testing.T) {
	m := cubeMesh(t)
	err := CreateHierarchicallySplitMesh(context.Background(), m, nil, false, 1,
		ProcessingParams{Workers: 3}, noisyDesc(), MaterialDesc{UAngle: 30}, Options{Seed: 42, HullMethod: hull.Method26DOP})
	if err != nil {
		t.Fatalf("slice: %v", err)
	}
	if m.MaxDepth() != 2 {
		t.Fatalf("depth = %d", m.MaxDepth())
	}
	if n := len(m.Children(0)); n < 2 {
		t.Fatalf("root has %d children", n)
	}
	checkPartition(t, m, 1e-4)
	for i := 1; i < m.PartCount(); i++ {
		h := m.Hull(i)
		eps := 1e-6 * gomath.Max(1, h.Bounds().Diagonal())
		for _, p := range m.Positions(i) {
			if !h.Contains(p, eps) {
				t.Fatalf("part %d hull misses %v", i, p)
			}
		}
	}
	if err := m.Validate(); err != nil {
		t.Error(err)
	}
}

func TestNoisyDepthPartition(t *testing.T) {
	first := SliceParameters{Order: OrderXYZ, SplitsPerPass: [3]int{1, 1, 0}}
	second := SliceParameters{Order: OrderXYZ, SplitsPerPass: [3]int{1, 1, 1}}
	for a := 0; a < 3; a++ {
		first.Noise[a] = noise.Parameters{Amplitude: 0.02, Frequency: 0.5, GridSize: 4}
		second.Noise[a] = noise.Parameters{Amplitude: 0.03, Frequency: 1, GridSize: 4}
	}
	desc := SliceDesc{MaxDepth: 2, Levels: []SliceParameters{first, second}}
	for seed := uint64(1); seed <= 10; seed++ {
		t.Run(fmt.Sprintf("seed%d", seed), func(t *testing.T) {
			m := cubeMesh(t)
			err := CreateHierarchicallySplitMesh(context.Background(), m, nil, false, 1,
				ProcessingParams{}, desc, MaterialDesc{}, Options{Seed: seed})
			if err != nil {
				t.Fatalf("slice: %v", err)
			}
			checkPartition(t, m, 1e-4)
			var leaves float64
			for i := 0; i < m.PartCount(); i++ {
				if m.IsLeaf(i) {
					leaves += m.Volume(i)
				}
			}
			if !approx(leaves, 1, 1e-4) {
				t.Errorf("leaves sum to %v, want 1", leaves)
			}
			if err := m.Validate(); err != nil {
				t.Error(err)
			}
		})
	}
}

func TestAngularVariationRadians(t *testing.T) {
	e := newEngine(modeSlice, 0, ProcessingParams{}, MaterialDesc{}, Options{})
	rng := rand.New(rand.NewPCG(1, 2))
	const limit = 0.3
	surfs := e.surfaces(rng, unitBounds(), 0, 0, 64, SliceParameters{AngularVariation: [3]float64{limit, 0, 0}})
	var widest float64
	for _, s := range surfs {
		a := gomath.Acos(gomath.Min(1, s.normal.X))
		if a > limit+1e-9 {
			t.Errorf("normal %v tilted %v rad, limit %v", s.normal, a, limit)
		}
		widest = gomath.Max(widest, a)
	}
	if widest < 0.1 {
		t.Errorf("widest tilt %v rad, want close to %v", widest, limit)
	}
}

func TestCachedBSP(t *testing.T) {
	tests := []struct {
		name string
		run  func(m *hmesh.Mesh, opts Options) error
	}{
		{"slice", func(m *hmesh.Mesh, opts Options) error {
			return CreateHierarchicallySplitMesh(context.Background(), m, nil, false, 1,
				ProcessingParams{}, sliceDesc(1, [3]int{1, 0, 0}), MaterialDesc{}, opts)
		}},
		{"carve", func(m *hmesh.Mesh, opts Options) error {
			return CreateChippedMesh(context.Background(), m, 1, ProcessingParams{},
				chipDesc(CutoutDirection{Dir: DirPosZ}), checkerboard(t), SliceDesc{}, MaterialDesc{}, opts)
		}},
	}
	for _, tt := range tests {
		for _, cached := range []bool{false, true} {
			t.Run(fmt.Sprintf("%s/cached=%v", tt.name, cached), func(t *testing.T) {
				core, logs := observer.New(zapcore.DebugLevel)
				m := cubeMesh(t)
				if cached {
					m.CalculateMeshBSP(5, nil, -1)
				}
				if err := tt.run(m, Options{Seed: 7, Logger: zap.New(core)}); err != nil {
					t.Fatal(err)
				}
				hits := logs.FilterMessage("using cached bsp").Len()
				if cached && hits == 0 {
					t.Error("cached tree not used")
				}
				if !cached && hits != 0 {
					t.Errorf("%d cache hits without a cache", hits)
				}
				kids := m.Children(0)
				if len(kids) != 2 {
					t.Fatalf("children = %d", len(kids))
				}
				for _, k := range kids {
					if !approx(m.Volume(k), 0.5, 1e-9) {
						t.Errorf("part %d volume = %v", k, m.Volume(k))
					}
				}
			})
		}
	}
}

func TestDeterminism(t *testing.T) {
	run := func(workers int) *hmesh.Mesh {
		m := cubeMesh(t)
		err := CreateHierarchicallySplitMesh(context.Background(), m, nil, false, 1,
			ProcessingParams{Workers: workers}, noisyDesc(), MaterialDesc{}, Options{Seed: 99})
		if err != nil {
			t.Fatal(err)
		}
		return m
	}
	a, b := run(1), run(4)
	if a.PartCount() != b.PartCount() || a.MaterialFrameCount() != b.MaterialFrameCount() {
		t.Fatalf("parts %d/%d frames %d/%d", a.PartCount(), b.PartCount(), a.MaterialFrameCount(), b.MaterialFrameCount())
	}
	for i := 0; i < a.PartCount(); i++ {
		ta, tb := a.MeshTriangles(i), b.MeshTriangles(i)
		if len(ta) != len(tb) || a.ParentIndex(i) != b.ParentIndex(i) {
			t.Fatalf("part %d differs", i)
		}
		for k := range ta {
			if ta[k] != tb[k] {
				t.Fatalf("part %d triangle %d differs", i, k)
			}
		}
		ha, hb := a.Hull(i), b.Hull(i)
		if len(ha.Vertices) != len(hb.Vertices) {
			t.Fatalf("part %d hull differs", i)
		}
	}
	for i := 0; i < a.MaterialFrameCount(); i++ {
		if a.MaterialFrame(i) != b.MaterialFrame(i) {
			t.Fatalf("frame %d differs", i)
		}
	}
}

func TestCancelledBeforeStart(t *testing.T) {
	m := cubeMesh(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := CreateHierarchicallySplitMesh(ctx, m, nil, false, 0,
		ProcessingParams{}, sliceDesc(1, [3]int{1, 0, 0}), MaterialDesc{}, Options{})
	if !errors.Is(err, ErrCancelled) {
		t.Fatalf("err = %v, want ErrCancelled", err)
	}
	if m.PartCount() != 1 || m.MaxDepth() != 0 {
		t.Errorf("parts = %d depth = %d after cancel", m.PartCount(), m.MaxDepth())
	}
}

func TestCancelledMidway(t *testing.T) {
	m := cubeMesh(t)
	before := m.Clone()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var reported []int
	opts := Options{Progress: ProgressFunc(func(p int) {
		reported = append(reported, p)
		cancel()
	})}
	err := CreateHierarchicallySplitMesh(ctx, m, nil, false, 1,
		ProcessingParams{}, sliceDesc(3, [3]int{1, 1, 0}), MaterialDesc{}, opts)
	if !errors.Is(err, ErrCancelled) {
		t.Fatalf("err = %v, want ErrCancelled", err)
	}
	if len(reported) != 1 {
		t.Errorf("progress reports = %v", reported)
	}
	if m.PartCount() != before.PartCount() || m.MaxDepth() != before.MaxDepth() ||
		m.MaterialFrameCount() != before.MaterialFrameCount() {
		t.Errorf("mesh changed: parts %d depth %d frames %d", m.PartCount(), m.MaxDepth(), m.MaterialFrameCount())
	}
}

func TestProgressMonotone(t *testing.T) {
	m := cubeMesh(t)
	var reported []int
	opts := Options{Progress: ProgressFunc(func(p int) { reported = append(reported, p) })}
	err := CreateHierarchicallySplitMesh(context.Background(), m, nil, false, 0,
		ProcessingParams{}, sliceDesc(2, [3]int{1, 0, 0}), MaterialDesc{}, opts)
	if err != nil {
		t.Fatal(err)
	}
	if len(reported) == 0 || reported[len(reported)-1] != 100 {
		t.Fatalf("progress = %v", reported)
	}
	for i := 1; i < len(reported); i++ {
		if reported[i] <= reported[i-1] {
			t.Errorf("progress not increasing: %v", reported)
		}
	}
	if m.MaxDepth() != 2 || len(m.PartsAtDepth(2)) != 4 {
		t.Errorf("depth %d, %d parts at depth 2", m.MaxDepth(), len(m.PartsAtDepth(2)))
	}
}

func TestInvalidConfig(t *testing.T) {
	good := sliceDesc(1, [3]int{1, 0, 0})
	tests := []struct {
		name     string
		mesh     func() *hmesh.Mesh
		interior int
		desc     SliceDesc
		want     error
	}{
		{"nil mesh", func() *hmesh.Mesh { return nil }, 0, good, ErrInvalidConfig},
		{"no submeshes", hmesh.New, 0, good, ErrInvalidConfig},
		{"interior out of range", func() *hmesh.Mesh { return cubeMesh(t) }, 2, good, ErrInvalidConfig},
		{"negative splits", func() *hmesh.Mesh { return cubeMesh(t) }, 0, sliceDesc(1, [3]int{-1, 0, 0}), ErrInvalidConfig},
		{"too deep", func() *hmesh.Mesh { return cubeMesh(t) }, 0, sliceDesc(MaxFractureDepth+1, [3]int{1, 0, 0}), ErrInvalidConfig},
		{"no levels", func() *hmesh.Mesh { return cubeMesh(t) }, 0, SliceDesc{MaxDepth: 1}, ErrInvalidConfig},
		{"bad order", func() *hmesh.Mesh { return cubeMesh(t) }, 0,
			SliceDesc{MaxDepth: 1, Levels: []SliceParameters{{Order: 42}}}, ErrInvalidConfig},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := tt.mesh()
			var before int
			if m != nil {
				before = m.PartCount()
			}
			err := CreateHierarchicallySplitMesh(context.Background(), m, nil, false, tt.interior,
				ProcessingParams{}, tt.desc, MaterialDesc{}, Options{})
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
			if m != nil && m.PartCount() != before {
				t.Errorf("mesh changed on error")
			}
		})
	}
}

func TestCoreMesh(t *testing.T) {
	core, err := hmesh.Build(meshgen.BoxBounds(math.Bounds{
		Min: math.Vec3{X: 0.25, Y: 0.25, Z: 0.25},
		Max: math.Vec3{X: 0.75, Y: 0.75, Z: 0.75},
	}), []hmesh.Submesh{{MaterialName: "core"}}, nil)
	if err != nil {
		t.Fatal(err)
	}

	t.Run("exported", func(t *testing.T) {
		m := cubeMesh(t)
		err := CreateHierarchicallySplitMesh(context.Background(), m, core, true, 1,
			ProcessingParams{}, sliceDesc(1, [3]int{1, 0, 0}), MaterialDesc{}, Options{})
		if err != nil {
			t.Fatal(err)
		}
		if !approx(m.Volume(0), 1, 1e-9) {
			t.Errorf("root volume = %v", m.Volume(0))
		}
		kids := m.Children(0)
		if len(kids) != 3 {
			t.Fatalf("children = %v", kids)
		}
		var cores int
		for _, k := range kids {
			if m.MeshFlags(k)&hmesh.PartCore != 0 {
				cores++
				if !approx(m.Volume(k), 0.125, 1e-9) {
					t.Errorf("core volume = %v", m.Volume(k))
				}
				continue
			}
			if !approx(m.Volume(k), 0.4375, 1e-9) {
				t.Errorf("slice volume = %v", m.Volume(k))
			}
		}
		if cores != 1 {
			t.Errorf("core parts = %d", cores)
		}
		if m.FindSubmesh("core") < 0 {
			t.Error("core submesh not added")
		}
		checkPartition(t, m, 1e-9)
	})

	t.Run("hollowed", func(t *testing.T) {
		m := cubeMesh(t)
		err := CreateHierarchicallySplitMesh(context.Background(), m, core, false, 1,
			ProcessingParams{}, sliceDesc(1, [3]int{1, 0, 0}), MaterialDesc{}, Options{})
		if err != nil {
			t.Fatal(err)
		}
		if !approx(m.Volume(0), 0.875, 1e-9) {
			t.Errorf("root volume = %v", m.Volume(0))
		}
		if len(m.Children(0)) != 2 {
			t.Errorf("children = %v", m.Children(0))
		}
		checkPartition(t, m, 1e-9)
	})
}

func TestThroughOrder(t *testing.T) {
	m := cubeMesh(t)
	desc := SliceDesc{MaxDepth: 1, Levels: []SliceParameters{{Order: OrderThrough, SplitsPerPass: [3]int{1, 1, 0}}}}
	if err := CreateHierarchicallySplitMesh(context.Background(), m, nil, false, 1,
		ProcessingParams{}, desc, MaterialDesc{}, Options{}); err != nil {
		t.Fatal(err)
	}
	kids := m.Children(0)
	if len(kids) != 4 {
		t.Fatalf("children = %d, want 4", len(kids))
	}
	for _, k := range kids {
		if !approx(m.Volume(k), 0.25, 1e-9) {
			t.Errorf("child volume = %v", m.Volume(k))
		}
	}
	// One frame per shared surface.
	if m.MaterialFrameCount() != 2 {
		t.Errorf("frames = %d, want 2", m.MaterialFrameCount())
	}
}

func TestTargetProportions(t *testing.T) {
	m, err := hmesh.Build(meshgen.BoxBounds(math.Bounds{Max: math.Vec3{X: 4, Y: 1, Z: 1}}),
		[]hmesh.Submesh{{MaterialName: "outer"}}, nil)
	if err != nil {
		t.Fatal(err)
	}
	desc := sliceDesc(1, [3]int{2, 0, 0})
	desc.UseTargetProportions = true
	desc.TargetProportions = [3]float64{1, 1, 1}
	if err := CreateHierarchicallySplitMesh(context.Background(), m, nil, false, 0,
		ProcessingParams{}, desc, MaterialDesc{}, Options{}); err != nil {
		t.Fatal(err)
	}
	if n := len(m.Children(0)); n != 4 {
		t.Errorf("children = %d, want 4 cubes", n)
	}
}

func TestProportionedCounts(t *testing.T) {
	tests := []struct {
		ext    [3]float64
		counts [3]int
		target [3]float64
		want   [3]int
	}{
		{[3]float64{4, 1, 1}, [3]int{0, 0, 0}, [3]float64{1, 1, 1}, [3]int{1, 0, 0}},
		{[3]float64{4, 1, 1}, [3]int{3, 0, 0}, [3]float64{1, 1, 1}, [3]int{3, 0, 0}},
		{[3]float64{1, 1, 1}, [3]int{1, 1, 1}, [3]float64{0, 0, 0}, [3]int{1, 1, 1}},
		{[3]float64{2, 2, 1}, [3]int{0, 0, 0}, [3]float64{1, 1, 1}, [3]int{1, 1, 0}},
	}
	for _, tt := range tests {
		if got := proportionedCounts(tt.ext, tt.counts, tt.target); got != tt.want {
			t.Errorf("proportionedCounts(%v, %v, %v) = %v, want %v", tt.ext, tt.counts, tt.target, got, tt.want)
		}
	}
}

func TestIslandGeneration(t *testing.T) {
	a := meshgen.BoxBounds(unitBounds())
	b := meshgen.BoxBounds(math.Bounds{Min: math.Vec3{X: 3}, Max: math.Vec3{X: 4, Y: 1, Z: 1}})
	groups := splitIslands(append(a, b...))
	if len(groups) != 2 || len(groups[0]) != 12 || len(groups[1]) != 12 {
		t.Fatalf("islands = %d", len(groups))
	}
	if groups[0][0].Vertices[0].Position != a[0].Vertices[0].Position {
		t.Error("islands out of order")
	}
}

func TestMicrogrid(t *testing.T) {
	tris := meshgen.BoxBounds(unitBounds())
	tris[0].Vertices[0].Position.X += 0.01
	out := snapMicrogrid(append([]hmesh.Triangle(nil), tris...), 10, unitBounds())
	if len(out) != len(tris) {
		t.Fatalf("triangles = %d", len(out))
	}
	if x := out[0].Vertices[0].Position.X; x != 0 && x != 1 {
		t.Errorf("vertex not snapped: %v", out[0].Vertices[0].Position)
	}
}

func TestMergeFacetNormals(t *testing.T) {
	// Two interior triangles folded by 10 degrees along the y axis.
	fold := 10 * gomath.Pi / 180
	tip := math.Vec3{X: gomath.Cos(fold), Z: gomath.Sin(fold)}
	mk := func(a, b, c math.Vec3) hmesh.Triangle {
		tri := hmesh.Triangle{Flags: hmesh.TriangleInterior, ExtraDataIndex: -1}
		tri.Vertices[0].Position, tri.Vertices[1].Position, tri.Vertices[2].Position = a, b, c
		n := tri.Normal()
		tan, bin := math.Basis(n)
		for i := range tri.Vertices {
			tri.Vertices[i].Normal, tri.Vertices[i].Tangent, tri.Vertices[i].Binormal = n, tan, bin
		}
		return tri
	}
	o, y := math.Vec3{}, math.Vec3{Y: 1}
	base := []hmesh.Triangle{
		mk(o, y, math.Vec3{X: -1}),
		mk(y, o, tip),
	}
	for _, tt := range []struct {
		angle  float64
		merged bool
	}{{20, true}, {5, false}} {
		tris := append([]hmesh.Triangle(nil), base...)
		mergeFacetNormals(tris, tt.angle)
		n0, n1 := tris[0].Vertices[0].Normal, tris[1].Vertices[1].Normal
		if got := n0.ApproxEqual(n1, 1e-9); got != tt.merged {
			t.Errorf("angle %v: shared normals %v and %v, merged = %v", tt.angle, n0, n1, got)
		}
		if !tris[0].Vertices[2].Normal.ApproxEqual(tris[0].Normal(), 1e-9) {
			t.Errorf("angle %v: unshared vertex normal %v", tt.angle, tris[0].Vertices[2].Normal)
		}
		for ti, tri := range tris {
			for vi, v := range tri.Vertices {
				if !approx(v.Tangent.Length(), 1, 1e-9) || !approx(v.Normal.Dot(v.Tangent), 0, 1e-9) ||
					!approx(v.Normal.Dot(v.Binormal), 0, 1e-9) || v.Normal.Cross(v.Tangent).Dot(v.Binormal) < 0.999 {
					t.Errorf("angle %v: triangle %d vertex %d frame n=%v t=%v b=%v",
						tt.angle, ti, vi, v.Normal, v.Tangent, v.Binormal)
				}
			}
		}
	}
}

type countingRecorder struct {
	mu    sync.Mutex
	runs  []string
	parts int
	cuts  int
}

func (r *countingRecorder) ObserveRun(mode string, err error, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	status := "ok"
	if err != nil {
		status = "error"
	}
	r.runs = append(r.runs, mode+":"+status)
}

func (r *countingRecorder) AddParts(_ string, n int) { r.parts += n }
func (r *countingRecorder) AddCuts(_ string, n int)  { r.cuts += n }
func (r *countingRecorder) ObservePolygons(int)      {}

func TestRecorder(t *testing.T) {
	rec := &countingRecorder{}
	m := cubeMesh(t)
	if err := CreateHierarchicallySplitMesh(context.Background(), m, nil, false, 0,
		ProcessingParams{}, sliceDesc(1, [3]int{2, 0, 0}), MaterialDesc{}, Options{Metrics: rec}); err != nil {
		t.Fatal(err)
	}
	if len(rec.runs) != 1 || rec.runs[0] != "slice:ok" || rec.parts != 3 || rec.cuts != 2 {
		t.Errorf("recorder = %+v", rec)
	}
}

func TestMaterialFrame(t *testing.T) {
	mat := MaterialDesc{UVScale: math.Vec2{X: 2, Y: 2}, UVOffset: math.Vec2{X: 0.5}, Tangent: math.Vec3{Y: 1}}
	f := mat.Frame(math.Plane{Normal: math.Vec3{X: 1}, D: 3})
	uv := f.UV(math.Vec3{X: 3, Y: 4, Z: 2})
	// u follows y at half scale; v = n x t = x cross y = z.
	if !approx(uv.X, 2.5, 1e-12) || !approx(uv.Y, 1, 1e-12) {
		t.Errorf("uv = %v", uv)
	}
	q := f.Transform.TransformPoint(math.Vec3{X: 3})
	if !approx(q.Z, 0, 1e-12) {
		t.Errorf("plane coordinate = %v, want 0", q.Z)
	}
}

func checkerboard(t *testing.T) *cutout.Set {
	t.Helper()
	s := cutout.NewSet()
	if err := cutout.Build(s, []byte{255, 0, 0, 255}, 2, 2, 0); err != nil {
		t.Fatal(err)
	}
	return s
}

func buildSet(t *testing.T, w, h int, rows ...string) *cutout.Set {
	t.Helper()
	pix := make([]byte, w*h)
	for y, r := range rows {
		for x, c := range r {
			if c == '#' {
				pix[y*w+x] = 255
			}
		}
	}
	s := cutout.NewSet()
	if err := cutout.Build(s, pix, w, h, 0); err != nil {
		t.Fatal(err)
	}
	return s
}

func chipDesc(dirs ...CutoutDirection) CutoutDesc {
	return CutoutDesc{Directions: dirs}
}

func TestScenarioCheckerboard(t *testing.T) {
	m := cubeMesh(t)
	err := CreateChippedMesh(context.Background(), m, 1, ProcessingParams{},
		chipDesc(CutoutDirection{Dir: DirPosZ}), checkerboard(t), SliceDesc{}, MaterialDesc{}, Options{})
	if err != nil {
		t.Fatalf("chip: %v", err)
	}
	kids := m.Children(0)
	if len(kids) != 2 {
		t.Fatalf("children = %d, want 2", len(kids))
	}
	if m.MeshFlags(kids[0]) != hmesh.PartCutoutFaceSplit || m.MeshFlags(kids[1]) != hmesh.PartCutoutLeftover {
		t.Errorf("flags = %v %v", m.MeshFlags(kids[0]), m.MeshFlags(kids[1]))
	}
	for _, k := range kids {
		if !approx(m.Volume(k), 0.5, 1e-9) {
			t.Errorf("part %d volume = %v", k, m.Volume(k))
		}
	}
	// The chunk holds the top-left and bottom-right pixels: x<0.5 with
	// y>0.5, and x>0.5 with y<0.5.
	chunk := m.MeshBounds(kids[0])
	if !approx(chunk.Min.X, 0, 1e-9) || !approx(chunk.Max.X, 1, 1e-9) || !approx(chunk.Max.Z, 1, 1e-9) {
		t.Errorf("chunk bounds = %+v", chunk)
	}
	checkPartition(t, m, 1e-9)
	if m.MaterialFrameCount() != 1 {
		t.Errorf("frames = %d", m.MaterialFrameCount())
	}
}

func TestChipDepthAndNoise(t *testing.T) {
	set := buildSet(t, 4, 4, "....", ".##.", ".##.", "....")
	tests := []struct {
		name  string
		dir   CutoutDirection
		chunk float64
	}{
		{"flat", CutoutDirection{Dir: DirPosZ, Depth: 0.5}, 0.125},
		{"through", CutoutDirection{Dir: DirNegX}, 0.25},
		{"noisy", CutoutDirection{Dir: DirPosY, Depth: 0.5,
			BackfaceNoise: noise.Parameters{Amplitude: 0.1, Frequency: 1, GridSize: 4}}, -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := cubeMesh(t)
			err := CreateChippedMesh(context.Background(), m, 1, ProcessingParams{},
				CutoutDesc{Directions: []CutoutDirection{tt.dir}, FacetNormalMergeThresholdAngle: 30},
				set, SliceDesc{}, MaterialDesc{}, Options{Seed: 3})
			if err != nil {
				t.Fatal(err)
			}
			kids := m.Children(0)
			if len(kids) != 2 {
				t.Fatalf("children = %d", len(kids))
			}
			if tt.chunk > 0 && !approx(m.Volume(kids[0]), tt.chunk, 1e-9) {
				t.Errorf("chunk volume = %v, want %v", m.Volume(kids[0]), tt.chunk)
			}
			checkPartition(t, m, 1e-6)
			for _, tri := range m.MeshTriangles(kids[0]) {
				for _, v := range tri.Vertices {
					if gomath.Abs(v.Normal.Length()-1) > 1e-9 {
						t.Fatalf("vertex normal %v not unit", v.Normal)
					}
				}
			}
		})
	}
}

func TestChipConvexPieces(t *testing.T) {
	set := buildSet(t, 5, 5, ".....", ".#...", ".#...", ".##..", ".....")
	m := cubeMesh(t)
	desc := chipDesc(CutoutDirection{Dir: DirPosZ})
	desc.SplitNonconvexRegions = true
	if err := CreateChippedMesh(context.Background(), m, 1, ProcessingParams{}, desc, set,
		SliceDesc{}, MaterialDesc{}, Options{}); err != nil {
		t.Fatal(err)
	}
	kids := m.Children(0)
	if len(kids) != 2 {
		t.Fatalf("children = %d", len(kids))
	}
	if v := m.Volume(kids[0]); !approx(v, 4.0/25, 1e-6) {
		t.Errorf("chunk volume = %v, want 0.16", v)
	}
	checkPartition(t, m, 1e-6)
}

func TestChipThenSlice(t *testing.T) {
	m := cubeMesh(t)
	desc := chipDesc(CutoutDirection{Dir: DirPosX})
	desc.ApplySlicingToCutoutRegions = true
	// Logical z follows the cut direction, world x here.
	slice := sliceDesc(1, [3]int{0, 0, 1})
	if err := CreateChippedMesh(context.Background(), m, 1, ProcessingParams{}, desc, checkerboard(t),
		slice, MaterialDesc{}, Options{}); err != nil {
		t.Fatal(err)
	}
	chunk := m.Children(0)[0]
	kids := m.Children(chunk)
	if len(kids) != 2 {
		t.Fatalf("chunk children = %d", len(kids))
	}
	for _, k := range kids {
		b := m.MeshBounds(k)
		if !approx(b.Max.X-b.Min.X, 0.5, 1e-9) {
			t.Errorf("slice x extent = %v, want 0.5", b.Max.X-b.Min.X)
		}
		if !approx(m.Volume(k), 0.25, 1e-9) {
			t.Errorf("slice volume = %v", m.Volume(k))
		}
	}
	if m.MeshFlags(m.Children(0)[1])&hmesh.PartCutoutLeftover == 0 || !m.IsLeaf(m.Children(0)[1]) {
		t.Error("leftover was sliced")
	}
}

func TestChipErrors(t *testing.T) {
	tests := []struct {
		name string
		desc CutoutDesc
		set  func(t *testing.T) *cutout.Set
		want error
	}{
		{"nil set", chipDesc(CutoutDirection{Dir: DirPosZ}), func(*testing.T) *cutout.Set { return nil }, ErrNoCutouts},
		{"empty set", chipDesc(CutoutDirection{Dir: DirPosZ}), func(t *testing.T) *cutout.Set {
			return buildSet(t, 2, 2, "..", "..")
		}, ErrNoCutouts},
		{"no directions", CutoutDesc{}, checkerboard, ErrInvalidConfig},
		{"negative depth", chipDesc(CutoutDirection{Dir: DirPosZ, Depth: -1}), checkerboard, ErrInvalidConfig},
		{"off the face", chipDesc(CutoutDirection{Dir: DirPosZ, WidthOffset: 5}), func(t *testing.T) *cutout.Set {
			return buildSet(t, 4, 4, "....", ".##.", ".##.", "....")
		}, ErrNoCutouts},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := cubeMesh(t)
			err := CreateChippedMesh(context.Background(), m, 0, ProcessingParams{}, tt.desc, tt.set(t),
				SliceDesc{}, MaterialDesc{}, Options{})
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
			if m.PartCount() != 1 {
				t.Errorf("mesh changed on error")
			}
		})
	}
}

func TestDescriptorText(t *testing.T) {
	var o SliceOrder
	if err := o.UnmarshalText([]byte("Through")); err != nil || o != OrderThrough {
		t.Errorf("order = %v, %v", o, err)
	}
	if err := o.UnmarshalText([]byte("xyzw")); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("bad order err = %v", err)
	}
	var d Direction
	for _, tt := range []struct {
		in   string
		want Direction
	}{{"+z", DirPosZ}, {"y", DirPosY}, {"-X", DirNegX}} {
		if err := d.UnmarshalText([]byte(tt.in)); err != nil || d != tt.want {
			t.Errorf("%q -> %v, %v", tt.in, d, err)
		}
	}
	if DirNegY.Axis() != 1 || DirNegY.Sign() != -1 {
		t.Errorf("DirNegY axis %d sign %v", DirNegY.Axis(), DirNegY.Sign())
	}
}
