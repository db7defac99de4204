// Package preview renders cutout sets to images for inspection.
package preview

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"io"
	gomath "math"
	"os"
	"path/filepath"

	"github.com/HugoSmits86/nativewebp"

	"github.com/Faultbox/fracture/pkg/cutout"
	"github.com/Faultbox/fracture/pkg/math"
)

// ErrEmptySet is returned for sets without a bitmap size.
var ErrEmptySet = errors.New("preview: cutout set has no size")

// Colors used by Render.
var (
	Background = color.NRGBA{R: 24, G: 24, B: 28, A: 255}
	Outline    = color.NRGBA{R: 250, G: 250, B: 250, A: 255}
	Snapped    = color.NRGBA{R: 240, G: 60, B: 60, A: 255}
)

// fill returns a stable color for cutout i.
func fill(i int) color.NRGBA {
	h := float64(i) * 0.618033988749895
	h -= gomath.Floor(h)
	r, g, b := hsv(h, 0.55, 0.85)
	return color.NRGBA{R: r, G: g, B: b, A: 255}
}

func hsv(h, s, v float64) (uint8, uint8, uint8) {
	i := int(h * 6)
	f := h*6 - float64(i)
	p, q, t := v*(1-s), v*(1-f*s), v*(1-(1-f)*s)
	var r, g, b float64
	switch i % 6 {
	case 0:
		r, g, b = v, t, p
	case 1:
		r, g, b = q, v, p
	case 2:
		r, g, b = p, v, t
	case 3:
		r, g, b = p, q, v
	case 4:
		r, g, b = t, p, v
	default:
		r, g, b = v, p, q
	}
	return uint8(r * 255), uint8(g * 255), uint8(b * 255)
}

// Render draws set at scale output pixels per bitmap pixel: cutout
// interiors are filled, loops outlined and snapped vertices marked.
func Render(set *cutout.Set, scale int) (*image.NRGBA, error) {
	if set == nil || set.Width <= 0 || set.Height <= 0 {
		return nil, ErrEmptySet
	}
	if scale < 1 {
		scale = 1
	}
	w, h := set.Width*scale, set.Height*scale
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = Background.R, Background.G, Background.B, Background.A
	}

	inv := 1 / float64(scale)
	for ci, c := range set.Cutouts {
		col := fill(ci)
		for _, r := range c.Regions() {
			outer := r.Outer.Points()
			holes := make([][]math.Vec2, len(r.Holes))
			for k, hl := range r.Holes {
				holes[k] = hl.Points()
			}
			lo, hi := extent(outer)
			x0, y0 := max(0, int(lo.X*float64(scale))), max(0, int(lo.Y*float64(scale)))
			x1, y1 := min(w, int(gomath.Ceil(hi.X*float64(scale)))), min(h, int(gomath.Ceil(hi.Y*float64(scale))))
			for y := y0; y < y1; y++ {
				for x := x0; x < x1; x++ {
					p := math.Vec2{X: (float64(x) + 0.5) * inv, Y: (float64(y) + 0.5) * inv}
					if !math.PointInPolygon2D(p, outer) || inAny(p, holes) {
						continue
					}
					img.SetNRGBA(x, y, col)
				}
			}
		}
	}

	for _, c := range set.Cutouts {
		for _, l := range c.Loops {
			n := len(l.Vertices)
			for k := 0; k < n; k++ {
				a, b := l.Vertices[k].Pos, l.Vertices[(k+1)%n].Pos
				line(img, a.Scale(float64(scale)), b.Scale(float64(scale)), Outline)
			}
			for _, v := range l.Vertices {
				if v.Flags&cutout.VertexSnapped != 0 {
					dot(img, v.Pos.Scale(float64(scale)), Snapped)
				}
			}
		}
	}
	return img, nil
}

func extent(pts []math.Vec2) (lo, hi math.Vec2) {
	lo = math.Vec2{X: gomath.Inf(1), Y: gomath.Inf(1)}
	hi = math.Vec2{X: gomath.Inf(-1), Y: gomath.Inf(-1)}
	for _, p := range pts {
		lo.X, lo.Y = gomath.Min(lo.X, p.X), gomath.Min(lo.Y, p.Y)
		hi.X, hi.Y = gomath.Max(hi.X, p.X), gomath.Max(hi.Y, p.Y)
	}
	return lo, hi
}

func inAny(p math.Vec2, loops [][]math.Vec2) bool {
	for _, l := range loops {
		if math.PointInPolygon2D(p, l) {
			return true
		}
	}
	return false
}

// line steps from a to b one pixel at a time.
func line(img *image.NRGBA, a, b math.Vec2, c color.NRGBA) {
	d := b.Sub(a)
	steps := int(gomath.Ceil(gomath.Max(gomath.Abs(d.X), gomath.Abs(d.Y))))
	if steps == 0 {
		steps = 1
	}
	for i := 0; i <= steps; i++ {
		p := a.Lerp(b, float64(i)/float64(steps))
		plot(img, int(gomath.Floor(p.X)), int(gomath.Floor(p.Y)), c)
	}
}

func dot(img *image.NRGBA, p math.Vec2, c color.NRGBA) {
	x, y := int(gomath.Floor(p.X)), int(gomath.Floor(p.Y))
	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			plot(img, x+dx, y+dy, c)
		}
	}
}

// plot clamps to the image so edges on the far border stay visible.
func plot(img *image.NRGBA, x, y int, c color.NRGBA) {
	b := img.Bounds()
	x = min(max(x, b.Min.X), b.Max.X-1)
	y = min(max(y, b.Min.Y), b.Max.Y-1)
	img.SetNRGBA(x, y, c)
}

// Encode renders set and writes it as lossless WebP.
func Encode(w io.Writer, set *cutout.Set, scale int) error {
	img, err := Render(set, scale)
	if err != nil {
		return err
	}
	if err := nativewebp.Encode(w, img, nil); err != nil {
		return fmt.Errorf("preview: webp encode: %w", err)
	}
	return nil
}

// WriteFile renders set to a WebP file, creating parent directories.
func WriteFile(path string, set *cutout.Set, scale int) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := Encode(f, set, scale); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
