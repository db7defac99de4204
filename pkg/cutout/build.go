package cutout

import (
	"fmt"

	"github.com/Faultbox/fracture/pkg/math"
)

// Foreground is the pixel threshold: values above it are inside a cutout.
const Foreground = 127

type point struct{ x, y int }

// Edge directions, counter-clockwise: a left turn is dir+1.
const (
	dirPosX = iota
	dirPosY
	dirNegX
	dirNegY
)

type edge struct {
	from, to point
	dir      int
	label    int
}

type rawLoop struct {
	pts   []point
	label int
}

// Build replaces the cutouts of set with those traced from pixels, a
// row-major width*height greyscale buffer. Each 8-connected foreground
// region becomes one cutout. Vertices of different loops closer than
// snapThreshold pixels are merged, and vertices that close to the border
// are moved onto it. Empty or uniform buffers give zero cutouts.
func Build(set *Set, pixels []byte, width, height int, snapThreshold float64) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("%w: %dx%d", ErrDimensions, width, height)
	}
	if len(pixels) < width*height {
		return fmt.Errorf("%w: have %d, need %d", ErrBufferSize, len(pixels), width*height)
	}
	set.Width, set.Height = width, height
	set.Cutouts = nil

	img := bitmap{pix: pixels, w: width, h: height}
	n := 0
	for i := 0; i < width*height; i++ {
		if pixels[i] > Foreground {
			n++
		}
	}
	if n == 0 || n == width*height {
		return nil
	}

	labels, components := img.label8()
	edges := img.boundaryEdges(labels)
	raw := traceLoops(edges)

	loops := make([]Loop, len(raw))
	owner := make([]int, len(raw))
	for i, rl := range raw {
		pts := removeCollinear(rl.pts)
		l := Loop{Outer: -1, Vertices: make([]Vertex, len(pts))}
		for k, p := range pts {
			l.Vertices[k].Pos = math.Vec2{X: float64(p.x), Y: float64(p.y)}
		}
		l.Hole = l.Area() < 0
		loops[i] = l
		owner[i] = rl.label
	}
	assignHoles(loops, raw)

	snapLoops(loops, snapThreshold, float64(width), float64(height))

	set.Cutouts = groupCutouts(loops, owner, components)
	return nil
}

type bitmap struct {
	pix  []byte
	w, h int
}

func (b bitmap) fg(x, y int) bool {
	return x >= 0 && y >= 0 && x < b.w && y < b.h && b.pix[y*b.w+x] > Foreground
}

// label8 assigns each foreground pixel the index of its 8-connected
// component, in scan order of each component's first pixel.
func (b bitmap) label8() ([]int, int) {
	labels := make([]int, b.w*b.h)
	for i := range labels {
		labels[i] = -1
	}
	next := 0
	var queue []point
	for y := 0; y < b.h; y++ {
		for x := 0; x < b.w; x++ {
			if !b.fg(x, y) || labels[y*b.w+x] >= 0 {
				continue
			}
			labels[y*b.w+x] = next
			queue = append(queue[:0], point{x, y})
			for len(queue) > 0 {
				p := queue[len(queue)-1]
				queue = queue[:len(queue)-1]
				for dy := -1; dy <= 1; dy++ {
					for dx := -1; dx <= 1; dx++ {
						q := point{p.x + dx, p.y + dy}
						if !b.fg(q.x, q.y) || labels[q.y*b.w+q.x] >= 0 {
							continue
						}
						labels[q.y*b.w+q.x] = next
						queue = append(queue, q)
					}
				}
			}
			next++
		}
	}
	return labels, next
}

// boundaryEdges emits every pixel side between foreground and background,
// directed so the foreground is on its left.
func (b bitmap) boundaryEdges(labels []int) []edge {
	var out []edge
	for y := 0; y < b.h; y++ {
		for x := 0; x < b.w; x++ {
			if !b.fg(x, y) {
				continue
			}
			l := labels[y*b.w+x]
			if !b.fg(x, y-1) {
				out = append(out, edge{point{x, y}, point{x + 1, y}, dirPosX, l})
			}
			if !b.fg(x+1, y) {
				out = append(out, edge{point{x + 1, y}, point{x + 1, y + 1}, dirPosY, l})
			}
			if !b.fg(x, y+1) {
				out = append(out, edge{point{x + 1, y + 1}, point{x, y + 1}, dirNegX, l})
			}
			if !b.fg(x-1, y) {
				out = append(out, edge{point{x, y + 1}, point{x, y}, dirNegY, l})
			}
		}
	}
	return out
}

// traceLoops chains edges into closed loops. Where two loops touch at a
// corner the trace turns left, keeping diagonal pixels in separate loops.
func traceLoops(edges []edge) []rawLoop {
	out := map[point][]int{}
	for i, e := range edges {
		out[e.from] = append(out[e.from], i)
	}
	used := make([]bool, len(edges))
	var loops []rawLoop
	for start := range edges {
		if used[start] {
			continue
		}
		rl := rawLoop{label: edges[start].label}
		cur := start
		for {
			used[cur] = true
			rl.pts = append(rl.pts, edges[cur].from)
			next := -1
			for _, turn := range [3]int{1, 0, 3} {
				want := (edges[cur].dir + turn) % 4
				for _, c := range out[edges[cur].to] {
					if edges[c].dir == want && (!used[c] || c == start) {
						next = c
						break
					}
				}
				if next >= 0 {
					break
				}
			}
			if next < 0 || next == start {
				break
			}
			cur = next
		}
		loops = append(loops, rl)
	}
	return loops
}

func removeCollinear(pts []point) []point {
	if len(pts) < 3 {
		return pts
	}
	var out []point
	n := len(pts)
	for i := 0; i < n; i++ {
		a, b, c := pts[(i+n-1)%n], pts[i], pts[(i+1)%n]
		cross := (b.x-a.x)*(c.y-b.y) - (b.y-a.y)*(c.x-b.x)
		if cross != 0 {
			out = append(out, b)
		}
	}
	return out
}

// assignHoles links each hole to the smallest outer loop that contains a
// background pixel next to it.
func assignHoles(loops []Loop, raw []rawLoop) {
	for i := range loops {
		if !loops[i].Hole {
			continue
		}
		// The background pixel right of the first boundary edge.
		a, b := raw[i].pts[0], raw[i].pts[1%len(raw[i].pts)]
		dx, dy := sign(b.x-a.x), sign(b.y-a.y)
		sample := math.Vec2{
			X: float64(a.x) + 0.5*float64(dx) + 0.5*float64(dy),
			Y: float64(a.y) + 0.5*float64(dy) - 0.5*float64(dx),
		}
		best, bestArea := -1, 0.0
		for j := range loops {
			if loops[j].Hole {
				continue
			}
			area := loops[j].Area()
			if !math.PointInPolygon2D(sample, loops[j].Points()) {
				continue
			}
			if best < 0 || area < bestArea {
				best, bestArea = j, area
			}
		}
		loops[i].Outer = best
	}
}

func sign(v int) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	}
	return 0
}

// groupCutouts collects loops per component, outer loops first, and drops
// holes that lost their outer loop.
func groupCutouts(loops []Loop, owner []int, components int) []Cutout {
	var out []Cutout
	for c := 0; c < components; c++ {
		var cut Cutout
		index := map[int]int{}
		for i, l := range loops {
			if l.Hole || owner[i] != c || len(l.Vertices) < 3 {
				continue
			}
			index[i] = len(cut.Loops)
			l.Outer = -1
			cut.Loops = append(cut.Loops, l)
		}
		for _, l := range loops {
			if !l.Hole || len(l.Vertices) < 3 {
				continue
			}
			o, ok := index[l.Outer]
			if !ok {
				continue
			}
			l.Outer = o
			cut.Loops = append(cut.Loops, l)
		}
		if len(cut.Loops) == 0 {
			continue
		}
		cut.Name = fmt.Sprintf("cutout%d", len(out))
		out = append(out, cut)
	}
	return out
}
