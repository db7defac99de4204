// Package cutout turns bitmaps into sets of 2D polygon loops used to carve
// chippable fracture chunks.
//
// Coordinates are in pixels: pixel (x, y) covers [x, x+1] x [y, y+1], with
// y growing with the row index. Outer loops have positive signed area and
// holes negative.
package cutout

import (
	"errors"
	"fmt"

	"github.com/Faultbox/fracture/pkg/math"
	"github.com/Faultbox/fracture/pkg/stream"
)

// Cutout errors.
var (
	ErrBufferSize = errors.New("cutout: pixel buffer smaller than width*height")
	ErrDimensions = errors.New("cutout: width and height must be positive")
	ErrBadSet     = errors.New("cutout: invalid serialized set")
)

// VertexFlags describe how a loop vertex was placed.
type VertexFlags uint8

const (
	// VertexOnBoundary marks a vertex on the bitmap border.
	VertexOnBoundary VertexFlags = 1 << iota
	// VertexSnapped marks a vertex moved onto another loop.
	VertexSnapped
)

// Vertex is a loop corner.
type Vertex struct {
	Pos   math.Vec2
	Flags VertexFlags
}

// Loop is a closed polygon.
type Loop struct {
	Vertices []Vertex
	Hole     bool
	// Outer is the index of the enclosing outer loop for holes, -1 otherwise.
	Outer int
}

// Points returns the loop positions.
func (l Loop) Points() []math.Vec2 {
	pts := make([]math.Vec2, len(l.Vertices))
	for i, v := range l.Vertices {
		pts[i] = v.Pos
	}
	return pts
}

// Area returns the signed loop area.
func (l Loop) Area() float64 {
	return math.PolygonArea2D(l.Points())
}

// Cutout is one connected foreground region.
type Cutout struct {
	Name  string
	Loops []Loop
}

// Region is an outer loop with the holes it encloses.
type Region struct {
	Outer Loop
	Holes []Loop
}

// Regions groups the loops of c.
func (c Cutout) Regions() []Region {
	var out []Region
	index := map[int]int{}
	for i, l := range c.Loops {
		if !l.Hole {
			index[i] = len(out)
			out = append(out, Region{Outer: l})
		}
	}
	for _, l := range c.Loops {
		if !l.Hole {
			continue
		}
		if r, ok := index[l.Outer]; ok {
			out[r].Holes = append(out[r].Holes, l)
		}
	}
	return out
}

// Area returns the covered area in square pixels.
func (c Cutout) Area() float64 {
	var a float64
	for _, l := range c.Loops {
		a += l.Area()
	}
	return a
}

// Bounds returns the 2D extent of the outer loops as (min, max).
func (c Cutout) Bounds() (min, max math.Vec2) {
	first := true
	for _, l := range c.Loops {
		for _, v := range l.Vertices {
			if first {
				min, max = v.Pos, v.Pos
				first = false
				continue
			}
			min.X, min.Y = fmin(min.X, v.Pos.X), fmin(min.Y, v.Pos.Y)
			max.X, max.Y = fmax(max.X, v.Pos.X), fmax(max.Y, v.Pos.Y)
		}
	}
	return min, max
}

func fmin(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func fmax(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

// Set is a collection of cutouts built from one bitmap.
type Set struct {
	Width, Height int
	Cutouts       []Cutout
}

// NewSet returns an empty set.
func NewSet() *Set {
	return &Set{}
}

// Area returns the total covered area.
func (s *Set) Area() float64 {
	var a float64
	for _, c := range s.Cutouts {
		a += c.Area()
	}
	return a
}

// LoopCount returns the total number of loops.
func (s *Set) LoopCount() int {
	n := 0
	for _, c := range s.Cutouts {
		n += len(c.Loops)
	}
	return n
}

// Clone returns a deep copy.
func (s *Set) Clone() *Set {
	out := &Set{Width: s.Width, Height: s.Height, Cutouts: make([]Cutout, len(s.Cutouts))}
	for i, c := range s.Cutouts {
		cc := Cutout{Name: c.Name, Loops: make([]Loop, len(c.Loops))}
		for j, l := range c.Loops {
			l.Vertices = append([]Vertex(nil), l.Vertices...)
			cc.Loops[j] = l
		}
		out.Cutouts[i] = cc
	}
	return out
}

const (
	setMagic   = "CUT1"
	setVersion = 1
	maxLoops   = 1 << 20
)

// Serialize writes the set.
func (s *Set) Serialize(w *stream.Writer) {
	w.StoreMagic(setMagic)
	w.StoreDword(setVersion)
	w.StoreDword(uint32(s.Width))
	w.StoreDword(uint32(s.Height))
	w.StoreDword(uint32(len(s.Cutouts)))
	for _, c := range s.Cutouts {
		w.StoreString(c.Name)
		w.StoreDword(uint32(len(c.Loops)))
		for _, l := range c.Loops {
			w.StoreBool(l.Hole)
			w.StoreInt(l.Outer)
			w.StoreDword(uint32(len(l.Vertices)))
			for _, v := range l.Vertices {
				w.StoreDouble(v.Pos.X)
				w.StoreDouble(v.Pos.Y)
				w.StoreByte(uint8(v.Flags))
			}
		}
	}
}

// Deserialize replaces s with a set read from r.
func (s *Set) Deserialize(r *stream.Reader) error {
	r.ExpectMagic(setMagic)
	if v := r.ReadDword(); r.Err() == nil && v != setVersion {
		return fmt.Errorf("%w: version %d", ErrBadSet, v)
	}
	out := Set{Width: int(r.ReadDword()), Height: int(r.ReadDword())}
	nc := r.ReadCount(maxLoops)
	for i := 0; i < nc && r.Err() == nil; i++ {
		c := Cutout{Name: r.ReadString()}
		nl := r.ReadCount(maxLoops)
		for j := 0; j < nl && r.Err() == nil; j++ {
			l := Loop{Hole: r.ReadBool(), Outer: r.ReadInt()}
			nv := r.ReadCount(maxLoops)
			for k := 0; k < nv && r.Err() == nil; k++ {
				x, y := r.ReadDouble(), r.ReadDouble()
				l.Vertices = append(l.Vertices, Vertex{Pos: math.Vec2{X: x, Y: y}, Flags: VertexFlags(r.ReadUint8())})
			}
			if l.Hole && (l.Outer < 0 || l.Outer >= nl) {
				return fmt.Errorf("%w: hole %d of cutout %d has no outer loop", ErrBadSet, j, i)
			}
			c.Loops = append(c.Loops, l)
		}
		out.Cutouts = append(out.Cutouts, c)
	}
	if err := r.Err(); err != nil {
		return fmt.Errorf("read cutout set: %w", err)
	}
	*s = out
	return nil
}
