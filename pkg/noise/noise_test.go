package noise

import (
	"math"
	"testing"
)

func TestFlatField(t *testing.T) {
	f := New(Parameters{Amplitude: 0, Frequency: 2, GridSize: 4}, 1, 42)
	if !f.Flat() {
		t.Fatal("Flat() = false for zero amplitude")
	}
	for _, p := range [][2]float64{{0, 0}, {0.3, -7}, {1e6, 3}} {
		if got := f.At(p[0], p[1]); got != 0 {
			t.Errorf("At(%v) = %v, want exactly 0", p, got)
		}
	}
	if r := (Parameters{}).Resolution(); r != 1 {
		t.Errorf("flat Resolution() = %d, want 1", r)
	}
}

func TestDeterministic(t *testing.T) {
	p := Parameters{Amplitude: 0.1, Frequency: 1, GridSize: 8}
	a := New(p, 0.25, 7)
	b := New(p, 0.25, 7)
	c := New(p, 0.25, 8)
	diff := false
	for i := 0; i < 50; i++ {
		u, v := float64(i)*0.37, float64(i)*-0.11
		if a.At(u, v) != b.At(u, v) {
			t.Fatalf("same seed differs at (%v,%v)", u, v)
		}
		if a.At(u, v) != c.At(u, v) {
			diff = true
		}
	}
	if !diff {
		t.Error("different seeds produced identical fields")
	}
}

func TestBounded(t *testing.T) {
	tests := []struct {
		name string
		typ  Type
	}{
		{"sinusoid", TypeSinusoid},
		{"ridged", TypeRidged},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := New(Parameters{Amplitude: 0.5, Frequency: 3, Type: tt.typ}, 1, 1)
			for _, row := range f.Grid(-2, -2, 2, 2, 40) {
				for _, h := range row {
					if math.Abs(h) > 0.5+1e-12 {
						t.Fatalf("displacement %v exceeds amplitude", h)
					}
				}
			}
		})
	}
}

func TestGridShape(t *testing.T) {
	f := New(Parameters{Amplitude: 1}, 1, 3)
	g := f.Grid(0, 0, 1, 1, 4)
	if len(g) != 5 || len(g[0]) != 5 {
		t.Fatalf("grid is %dx%d, want 5x5", len(g), len(g[0]))
	}
	if g[0][4] != f.At(1, 0) {
		t.Error("grid corner does not match At")
	}
}

func TestTypeText(t *testing.T) {
	var typ Type
	if err := typ.UnmarshalText([]byte("Ridged")); err != nil || typ != TypeRidged {
		t.Errorf("UnmarshalText(Ridged) = %v, %v", typ, err)
	}
	if err := typ.UnmarshalText([]byte("perlin")); err == nil {
		t.Error("expected error for unknown type")
	}
}
