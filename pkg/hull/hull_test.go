package hull

import (
	"bytes"
	gomath "math"
	"math/rand/v2"
	"testing"

	"github.com/Faultbox/fracture/pkg/math"
	"github.com/Faultbox/fracture/pkg/stream"
)

func cubePoints(size float64) []math.Vec3 {
	var pts []math.Vec3
	for i := 0; i < 8; i++ {
		pts = append(pts, math.Vec3{
			X: size * float64(i&1),
			Y: size * float64((i>>1)&1),
			Z: size * float64((i>>2)&1),
		})
	}
	return pts
}

func allMethods() []Method {
	var ms []Method
	for m := Method6DOP; m <= MethodWrapGraphicsMesh; m++ {
		ms = append(ms, m)
	}
	return ms
}

func TestCubeHulls(t *testing.T) {
	for _, m := range allMethods() {
		t.Run(m.String(), func(t *testing.T) {
			h := Build(cubePoints(1), m)
			if len(h.Vertices) != 8 {
				t.Errorf("vertices = %d, want 8", len(h.Vertices))
			}
			if len(h.Planes) != 6 {
				t.Errorf("planes = %d, want 6", len(h.Planes))
			}
			if len(h.Edges) != 12 {
				t.Errorf("edges = %d, want 12", len(h.Edges))
			}
			if v := h.Volume(); gomath.Abs(v-1) > 1e-9 {
				t.Errorf("volume = %v, want 1", v)
			}
		})
	}
}

func TestContainment(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	var pts []math.Vec3
	for i := 0; i < 200; i++ {
		// Points in a squashed ellipsoid.
		p := math.Vec3{X: rng.NormFloat64(), Y: rng.NormFloat64(), Z: rng.NormFloat64()}.Normalize()
		pts = append(pts, math.Vec3{X: 2 * p.X, Y: p.Y, Z: 0.5 * p.Z}.Scale(gomath.Cbrt(rng.Float64())))
	}
	wrapVol := Build(pts, MethodWrapGraphicsMesh).Volume()
	for _, m := range allMethods() {
		t.Run(m.String(), func(t *testing.T) {
			h := Build(pts, m)
			for _, p := range pts {
				if !h.Contains(p, 1e-7) {
					t.Fatalf("point %v outside hull", p)
				}
			}
			if v := h.Volume(); v < wrapVol-1e-9 {
				t.Errorf("volume %v smaller than exact hull %v", v, wrapVol)
			}
		})
	}
}

func TestDOPMonotone(t *testing.T) {
	pts := []math.Vec3{
		{X: 0, Y: 0, Z: 0}, {X: 1, Y: 0, Z: 0}, {X: 0, Y: 1, Z: 0}, {X: 0, Y: 0, Z: 1},
	}
	v6 := Build(pts, Method6DOP).Volume()
	v18 := Build(pts, Method18DOP).Volume()
	v26 := Build(pts, Method26DOP).Volume()
	exact := Build(pts, MethodWrapGraphicsMesh).Volume()
	if !(v6 >= v18-1e-12 && v18 >= v26-1e-12 && v26 >= exact-1e-12) {
		t.Errorf("volumes not monotone: 6dop=%v 18dop=%v 26dop=%v exact=%v", v6, v18, v26, exact)
	}
	if gomath.Abs(exact-1.0/6) > 1e-12 {
		t.Errorf("tetrahedron volume = %v, want 1/6", exact)
	}
	if gomath.Abs(v26-exact) > 1e-9 {
		// The corner direction (1,1,1) cuts the tetrahedron's slanted face exactly.
		t.Errorf("26dop volume = %v, want %v", v26, exact)
	}
}

func TestRayCast(t *testing.T) {
	h := Build(cubePoints(2), Method6DOP)
	tests := []struct {
		name       string
		orig, dir  math.Vec3
		ok         bool
		in, out    float64
		wantNormal math.Vec3
	}{
		{"through", math.Vec3{X: -1, Y: 1, Z: 1}, math.UnitX, true, 1, 3, math.Vec3{X: -1}},
		{"from inside", math.Vec3{X: 1, Y: 1, Z: 1}, math.UnitY, true, -1, 1, math.Vec3{}},
		{"miss", math.Vec3{X: -1, Y: 5, Z: 1}, math.UnitX, false, 0, 0, math.Vec3{}},
		{"behind", math.Vec3{X: 5, Y: 1, Z: 1}, math.UnitX, false, 0, 0, math.Vec3{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in, out, n, ok := h.RayCast(tt.orig, tt.dir)
			if ok != tt.ok {
				t.Fatalf("ok = %v, want %v", ok, tt.ok)
			}
			if !ok {
				return
			}
			if gomath.Abs(in-tt.in) > 1e-9 || gomath.Abs(out-tt.out) > 1e-9 {
				t.Errorf("in/out = %v/%v, want %v/%v", in, out, tt.in, tt.out)
			}
			if !n.ApproxEqual(tt.wantNormal, 1e-12) {
				t.Errorf("normal = %v, want %v", n, tt.wantNormal)
			}
		})
	}
}

func TestTransform(t *testing.T) {
	h := Build(cubePoints(1), Method6DOP)
	m := math.Translate(10, 0, 0).Mul(math.RotateAxis(math.UnitZ, 0.3))
	ht := h.Transform(m)
	for _, v := range h.Vertices {
		if !ht.Contains(m.TransformPoint(v), 1e-9) {
			t.Fatalf("transformed vertex %v outside transformed hull", v)
		}
	}
	if gomath.Abs(ht.Volume()-1) > 1e-9 {
		t.Errorf("volume after rigid transform = %v", ht.Volume())
	}
	if ht.Contains(math.Vec3{X: 0.5, Y: 0.5, Z: 0.5}, 0) {
		t.Error("old center still inside moved hull")
	}
}

func TestSerializeRoundTrip(t *testing.T) {
	h := Build(cubePoints(1), Method26DOP)
	var buf bytes.Buffer
	w := stream.NewWriter(&buf)
	h.Serialize(w)
	if err := w.Err(); err != nil {
		t.Fatal(err)
	}
	got, err := Deserialize(stream.NewReader(&buf))
	if err != nil {
		t.Fatalf("Deserialize: %v", err)
	}
	if len(got.Vertices) != len(h.Vertices) || len(got.Edges) != len(h.Edges) || len(got.Planes) != len(h.Planes) {
		t.Errorf("round trip changed shape: %d/%d/%d", len(got.Vertices), len(got.Edges), len(got.Planes))
	}
}

func TestParseMethod(t *testing.T) {
	tests := []struct {
		in   string
		want Method
		err  bool
	}{
		{"6DOP", Method6DOP, false},
		{"box", Method6DOP, false},
		{"14dop-yz", Method14DOPYZ, false},
		{"wrap", MethodWrapGraphicsMesh, false},
		{"wrap_graphics_mesh", MethodWrapGraphicsMesh, false},
		{"7dop", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseMethod(tt.in)
		if (err != nil) != tt.err || (!tt.err && got != tt.want) {
			t.Errorf("ParseMethod(%q) = %v, %v", tt.in, got, err)
		}
	}
	for _, m := range allMethods() {
		if m.IsDOP() && m.FacetCount() != map[Method]int{
			Method6DOP: 6, Method10DOPX: 10, Method10DOPY: 10, Method10DOPZ: 10,
			Method14DOPXY: 14, Method14DOPYZ: 14, Method14DOPZX: 14, Method18DOP: 18, Method26DOP: 26,
		}[m] {
			t.Errorf("%v has %d facets", m, m.FacetCount())
		}
	}
}

func TestEmpty(t *testing.T) {
	h := Build(nil, Method6DOP)
	if !h.IsEmpty() || h.Contains(math.Vec3{}, 1) {
		t.Error("empty hull reports content")
	}
	if _, _, _, ok := h.RayCast(math.Vec3{}, math.UnitX); ok {
		t.Error("ray hit empty hull")
	}
}
