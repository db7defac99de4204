package hull

import (
	"fmt"
	"strings"

	"github.com/Faultbox/fracture/pkg/math"
)

// Method selects how a hull approximates its points.
type Method int

const (
	Method6DOP Method = iota
	Method10DOPX
	Method10DOPY
	Method10DOPZ
	Method14DOPXY
	Method14DOPYZ
	Method14DOPZX
	Method18DOP
	Method26DOP
	// MethodWrapGraphicsMesh builds the exact convex hull of the points.
	MethodWrapGraphicsMesh
)

var methodNames = [...]string{
	Method6DOP:             "6dop",
	Method10DOPX:           "10dop_x",
	Method10DOPY:           "10dop_y",
	Method10DOPZ:           "10dop_z",
	Method14DOPXY:          "14dop_xy",
	Method14DOPYZ:          "14dop_yz",
	Method14DOPZX:          "14dop_zx",
	Method18DOP:            "18dop",
	Method26DOP:            "26dop",
	MethodWrapGraphicsMesh: "wrap",
}

// String implements fmt.Stringer.
func (m Method) String() string {
	if m >= 0 && int(m) < len(methodNames) {
		return methodNames[m]
	}
	return fmt.Sprintf("Method(%d)", int(m))
}

// ParseMethod parses a method name as printed by String. Case and "-"
// versus "_" are ignored; "box" is accepted for 6dop.
func ParseMethod(s string) (Method, error) {
	s = strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_")
	switch s {
	case "box", "":
		return Method6DOP, nil
	case "wrap_graphics_mesh":
		return MethodWrapGraphicsMesh, nil
	}
	for i, n := range methodNames {
		if n == s {
			return Method(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownMethod, s)
}

// MarshalText implements encoding.TextMarshaler.
func (m Method) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *Method) UnmarshalText(b []byte) error {
	v, err := ParseMethod(string(b))
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// IsDOP reports whether m is a discrete orientation polytope.
func (m Method) IsDOP() bool {
	return m >= Method6DOP && m <= Method26DOP
}

var (
	edgeX   = []math.Vec3{{X: 0, Y: 1, Z: 1}, {X: 0, Y: 1, Z: -1}}
	edgeY   = []math.Vec3{{X: 1, Y: 0, Z: 1}, {X: -1, Y: 0, Z: 1}}
	edgeZ   = []math.Vec3{{X: 1, Y: 1, Z: 0}, {X: 1, Y: -1, Z: 0}}
	corners = []math.Vec3{
		{X: 1, Y: 1, Z: 1}, {X: 1, Y: 1, Z: -1},
		{X: 1, Y: -1, Z: 1}, {X: 1, Y: -1, Z: -1},
	}
)

// Directions returns the facet axes of a DOP; each axis yields two opposite
// planes. The wrap method has none.
func (m Method) Directions() []math.Vec3 {
	if !m.IsDOP() {
		return nil
	}
	dirs := []math.Vec3{math.UnitX, math.UnitY, math.UnitZ}
	switch m {
	case Method10DOPX:
		dirs = append(dirs, edgeX...)
	case Method10DOPY:
		dirs = append(dirs, edgeY...)
	case Method10DOPZ:
		dirs = append(dirs, edgeZ...)
	case Method14DOPXY:
		dirs = append(append(dirs, edgeX...), edgeY...)
	case Method14DOPYZ:
		dirs = append(append(dirs, edgeY...), edgeZ...)
	case Method14DOPZX:
		dirs = append(append(dirs, edgeZ...), edgeX...)
	case Method18DOP:
		dirs = append(append(append(dirs, edgeX...), edgeY...), edgeZ...)
	case Method26DOP:
		dirs = append(append(append(append(dirs, edgeX...), edgeY...), edgeZ...), corners...)
	}
	for i := range dirs {
		dirs[i] = dirs[i].Normalize()
	}
	return dirs
}

// FacetCount returns the number of planes a full DOP of this method has.
func (m Method) FacetCount() int {
	return 2 * len(m.Directions())
}
