package fracture

import (
	"fmt"
	"strings"

	"github.com/Faultbox/fracture/pkg/math"
	"github.com/Faultbox/fracture/pkg/noise"
)

// SliceOrder is the axis order of one slicing pass.
type SliceOrder int

const (
	OrderXYZ SliceOrder = iota
	OrderYZX
	OrderZXY
	OrderZYX
	OrderYXZ
	OrderXZY
	// OrderThrough cuts every axis with one set of surfaces spanning the
	// whole part, instead of cutting each piece independently.
	OrderThrough
)

var orderNames = [...]string{
	OrderXYZ:     "xyz",
	OrderYZX:     "yzx",
	OrderZXY:     "zxy",
	OrderZYX:     "zyx",
	OrderYXZ:     "yxz",
	OrderXZY:     "xzy",
	OrderThrough: "through",
}

var orderAxes = [...][3]int{
	OrderXYZ:     {0, 1, 2},
	OrderYZX:     {1, 2, 0},
	OrderZXY:     {2, 0, 1},
	OrderZYX:     {2, 1, 0},
	OrderYXZ:     {1, 0, 2},
	OrderXZY:     {0, 2, 1},
	OrderThrough: {0, 1, 2},
}

func (o SliceOrder) valid() bool {
	return o >= 0 && int(o) < len(orderNames)
}

// Axes returns the axis indices in cutting order.
func (o SliceOrder) Axes() [3]int {
	if !o.valid() {
		return orderAxes[OrderXYZ]
	}
	return orderAxes[o]
}

func (o SliceOrder) String() string {
	if o.valid() {
		return orderNames[o]
	}
	return fmt.Sprintf("SliceOrder(%d)", int(o))
}

// MarshalText implements encoding.TextMarshaler.
func (o SliceOrder) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (o *SliceOrder) UnmarshalText(b []byte) error {
	s := strings.ToLower(strings.TrimSpace(string(b)))
	for i, n := range orderNames {
		if n == s {
			*o = SliceOrder(i)
			return nil
		}
	}
	return fmt.Errorf("%w: unknown slice order %q", ErrInvalidConfig, s)
}

// SliceParameters configure one depth level of slicing. Array fields are
// indexed by axis (x, y, z).
type SliceParameters struct {
	Order         SliceOrder `yaml:"order"`
	SplitsPerPass [3]int     `yaml:"splits_per_pass"`
	// LinearVariation jitters each cut position by up to half this fraction
	// of the cut spacing in either direction.
	LinearVariation [3]float64 `yaml:"linear_variation"`
	// AngularVariation tilts each cut normal by up to this many radians.
	AngularVariation [3]float64          `yaml:"angular_variation"`
	Noise            [3]noise.Parameters `yaml:"noise"`
}

// SliceDesc configures slice-mode fracturing.
type SliceDesc struct {
	MaxDepth int `yaml:"max_depth"`
	// Levels holds the parameters per depth; the last entry is reused for
	// deeper levels.
	Levels               []SliceParameters `yaml:"levels"`
	UseTargetProportions bool              `yaml:"use_target_proportions"`
	TargetProportions    [3]float64        `yaml:"target_proportions"`
}

func (d SliceDesc) level(i int) SliceParameters {
	if i >= len(d.Levels) {
		i = len(d.Levels) - 1
	}
	return d.Levels[i]
}

func (d SliceDesc) validate() error {
	if d.MaxDepth < 0 || d.MaxDepth > MaxFractureDepth {
		return fmt.Errorf("%w: max depth %d outside [0,%d]", ErrInvalidConfig, d.MaxDepth, MaxFractureDepth)
	}
	if d.MaxDepth > 0 && len(d.Levels) == 0 {
		return fmt.Errorf("%w: no slice levels for max depth %d", ErrInvalidConfig, d.MaxDepth)
	}
	for i, l := range d.Levels {
		if !l.Order.valid() {
			return fmt.Errorf("%w: level %d: %v", ErrInvalidConfig, i, l.Order)
		}
		for a := 0; a < 3; a++ {
			if l.SplitsPerPass[a] < 0 {
				return fmt.Errorf("%w: level %d: negative split count on axis %d", ErrInvalidConfig, i, a)
			}
			if l.LinearVariation[a] < 0 || l.AngularVariation[a] < 0 {
				return fmt.Errorf("%w: level %d: negative variation on axis %d", ErrInvalidConfig, i, a)
			}
		}
	}
	if d.UseTargetProportions {
		for a, p := range d.TargetProportions {
			if p < 0 {
				return fmt.Errorf("%w: negative target proportion on axis %d", ErrInvalidConfig, a)
			}
		}
	}
	return nil
}

// MaterialDesc places the texture on interior faces.
type MaterialDesc struct {
	// UVScale is the model-space size of one UV unit; zero means 1.
	UVScale  math.Vec2 `yaml:"uv_scale"`
	UVOffset math.Vec2 `yaml:"uv_offset"`
	// Tangent is the preferred u direction, projected onto each cut.
	Tangent math.Vec3 `yaml:"tangent"`
	// UAngle rotates the u direction around the cut normal, in degrees.
	UAngle float64 `yaml:"u_angle"`
}

// ProcessingParams control mesh processing around the cuts.
type ProcessingParams struct {
	// IslandGeneration splits every new chunk into connected components.
	IslandGeneration bool `yaml:"island_generation"`
	// MicrogridSize snaps positions to that many grid cells across a part
	// before it is cut; 0 disables snapping.
	MicrogridSize int `yaml:"microgrid_size"`
	// Workers bounds concurrent part processing; 0 means GOMAXPROCS.
	Workers int `yaml:"workers"`
}

// Direction is the face a cutout set is projected onto.
type Direction int

const (
	DirPosX Direction = iota
	DirNegX
	DirPosY
	DirNegY
	DirPosZ
	DirNegZ
)

var directionNames = [...]string{
	DirPosX: "+x",
	DirNegX: "-x",
	DirPosY: "+y",
	DirNegY: "-y",
	DirPosZ: "+z",
	DirNegZ: "-z",
}

func (d Direction) valid() bool {
	return d >= 0 && int(d) < len(directionNames)
}

// Axis returns the axis index of d.
func (d Direction) Axis() int {
	return int(d) / 2
}

// Sign returns +1 or -1.
func (d Direction) Sign() float64 {
	if d%2 == 0 {
		return 1
	}
	return -1
}

func (d Direction) String() string {
	if d.valid() {
		return directionNames[d]
	}
	return fmt.Sprintf("Direction(%d)", int(d))
}

// MarshalText implements encoding.TextMarshaler.
func (d Direction) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. The sign may be
// omitted for positive directions.
func (d *Direction) UnmarshalText(b []byte) error {
	s := strings.ToLower(strings.TrimSpace(string(b)))
	if len(s) == 1 {
		s = "+" + s
	}
	for i, n := range directionNames {
		if n == s {
			*d = Direction(i)
			return nil
		}
	}
	return fmt.Errorf("%w: unknown direction %q", ErrInvalidConfig, s)
}

// CutoutDirection projects the cutout set onto one face of the mesh.
type CutoutDirection struct {
	Dir Direction `yaml:"dir"`
	// Depth is how far, in model units, the cutouts reach into the mesh.
	// Zero cuts all the way through.
	Depth         float64          `yaml:"depth"`
	BackfaceNoise noise.Parameters `yaml:"backface_noise"`
	// Width/Height scale and offset the bitmap on the face, as fractions of
	// the face size. Zero scale means 1.
	WidthScale   float64 `yaml:"width_scale"`
	HeightScale  float64 `yaml:"height_scale"`
	WidthOffset  float64 `yaml:"width_offset"`
	HeightOffset float64 `yaml:"height_offset"`
	WidthInvert  bool    `yaml:"width_invert"`
	HeightInvert bool    `yaml:"height_invert"`
}

// CutoutDesc configures cutout-mode fracturing.
type CutoutDesc struct {
	Directions []CutoutDirection `yaml:"directions"`
	// SplitNonconvexRegions carves each convex piece of a cutout separately.
	SplitNonconvexRegions bool `yaml:"split_nonconvex_regions"`
	// ApplySlicingToCutoutRegions slices every chunk with the slice
	// descriptor, x and y following the face and z the cut direction.
	ApplySlicingToCutoutRegions bool `yaml:"apply_slicing_to_cutout_regions"`
	// FacetNormalMergeThresholdAngle smooths interior normals between faces
	// closer than this many degrees.
	FacetNormalMergeThresholdAngle float64 `yaml:"facet_normal_merge_threshold_angle"`
}

func (d CutoutDesc) validate() error {
	if len(d.Directions) == 0 {
		return fmt.Errorf("%w: no cutout directions", ErrInvalidConfig)
	}
	for i, dir := range d.Directions {
		if !dir.Dir.valid() {
			return fmt.Errorf("%w: direction %d: %v", ErrInvalidConfig, i, dir.Dir)
		}
		if dir.Depth < 0 {
			return fmt.Errorf("%w: direction %d: negative depth", ErrInvalidConfig, i)
		}
	}
	if d.FacetNormalMergeThresholdAngle < 0 {
		return fmt.Errorf("%w: negative facet normal merge angle", ErrInvalidConfig)
	}
	return nil
}
