// Package noise generates band-limited displacement fields used to roughen
// planar cutting surfaces.
package noise

import (
	"fmt"
	"math"
	"math/rand/v2"
	"strings"
)

// Modes is the number of superposed sinusoids in a field.
const Modes = 8

// DefaultGridSize is used when Parameters.GridSize is zero.
const DefaultGridSize = 8

// Type selects how modes are combined.
type Type int

const (
	// TypeSinusoid sums plain sinusoids.
	TypeSinusoid Type = iota
	// TypeRidged sums folded sinusoids, giving sharp creases.
	TypeRidged
)

// String implements fmt.Stringer.
func (t Type) String() string {
	switch t {
	case TypeSinusoid:
		return "sinusoid"
	case TypeRidged:
		return "ridged"
	}
	return fmt.Sprintf("Type(%d)", int(t))
}

// MarshalText implements encoding.TextMarshaler.
func (t Type) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *Type) UnmarshalText(b []byte) error {
	switch strings.ToLower(strings.TrimSpace(string(b))) {
	case "", "sinusoid":
		*t = TypeSinusoid
	case "ridged":
		*t = TypeRidged
	default:
		return fmt.Errorf("noise: unknown type %q", string(b))
	}
	return nil
}

// Parameters describe a displacement field.
type Parameters struct {
	// Amplitude is the peak displacement in model units.
	Amplitude float64 `yaml:"amplitude"`
	// Frequency is relative to 1/spacing: 1 gives roughly one wave per grid cell.
	Frequency float64 `yaml:"frequency"`
	// GridSize is the suggested number of cells across a cutting surface.
	GridSize int  `yaml:"grid_size"`
	Type     Type `yaml:"type"`
}

// IsFlat reports whether the parameters produce zero displacement.
func (p Parameters) IsFlat() bool {
	return p.Amplitude == 0
}

// Resolution returns the grid cell count to use, never less than one.
func (p Parameters) Resolution() int {
	if p.IsFlat() {
		return 1
	}
	if p.GridSize <= 0 {
		return DefaultGridSize
	}
	return p.GridSize
}

type mode struct {
	kx, ky float64
	phase  float64
}

// Field is a deterministic displacement function over a plane.
type Field struct {
	amplitude float64
	typ       Type
	modes     [Modes]mode
}

// New builds a field. spacing is the grid cell size the frequency is
// measured against. The same parameters, spacing and seed always give the
// same field.
func New(p Parameters, spacing float64, seed uint64) *Field {
	f := &Field{amplitude: p.Amplitude, typ: p.Type}
	if p.IsFlat() {
		return f
	}
	if spacing <= 0 {
		spacing = 1
	}
	freq := p.Frequency
	if freq <= 0 {
		freq = 1
	}
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	base := freq * 2 * math.Pi / spacing
	for i := range f.modes {
		theta := rng.Float64() * 2 * math.Pi
		k := base * (0.5 + rng.Float64())
		f.modes[i] = mode{
			kx:    k * math.Cos(theta),
			ky:    k * math.Sin(theta),
			phase: rng.Float64() * 2 * math.Pi,
		}
	}
	return f
}

// Flat reports whether At is identically zero.
func (f *Field) Flat() bool {
	return f == nil || f.amplitude == 0
}

// Amplitude returns the peak displacement bound.
func (f *Field) Amplitude() float64 {
	if f == nil {
		return 0
	}
	return math.Abs(f.amplitude)
}

// At returns the displacement at (u, v). |At| never exceeds the amplitude.
func (f *Field) At(u, v float64) float64 {
	if f.Flat() {
		return 0
	}
	var sum float64
	for _, m := range f.modes {
		s := math.Sin(m.kx*u + m.ky*v + m.phase)
		if f.typ == TypeRidged {
			s = 1 - 2*math.Abs(s)
		}
		sum += s
	}
	// Normalize by sqrt(Modes) for a stable RMS, then clamp to the bound.
	sum /= math.Sqrt(Modes)
	if sum > 1 {
		sum = 1
	} else if sum < -1 {
		sum = -1
	}
	return f.amplitude * sum
}

// Grid samples the field on an (n+1)x(n+1) lattice spanning [u0,u1]x[v0,v1].
// The result is indexed [j][i] with i along u.
func (f *Field) Grid(u0, v0, u1, v1 float64, n int) [][]float64 {
	if n < 1 {
		n = 1
	}
	out := make([][]float64, n+1)
	for j := 0; j <= n; j++ {
		row := make([]float64, n+1)
		v := v0 + (v1-v0)*float64(j)/float64(n)
		for i := 0; i <= n; i++ {
			u := u0 + (u1-u0)*float64(i)/float64(n)
			row[i] = f.At(u, v)
		}
		out[j] = row
	}
	return out
}
