// Package bsp implements binary space partition trees over convex polygons
// and the boolean operations built on them.
//
// A tree represents a closed solid: a point is inside when it lies behind
// the boundary. Boolean operations follow the clip/invert/build scheme and
// never mutate their arguments.
package bsp

import (
	gomath "math"
	"math/rand/v2"

	"github.com/Faultbox/fracture/pkg/math"
)

// Epsilon is the relative on-plane tolerance. The absolute tolerance of a
// tree is Epsilon times its bounds diagonal, and never less than Epsilon.
const Epsilon = 1e-5

// Options control tree construction.
type Options struct {
	// Seed drives the candidate sampling of the partition heuristic.
	Seed uint64
	// Candidates is the number of polygons scored per node (<=1 uses the first polygon).
	Candidates int
	// MaxDepth is the depth below which candidates are no longer scored.
	MaxDepth int
	// SplitWeight and BalanceWeight weigh the partition cost
	// SplitWeight*splits + BalanceWeight*|front-back|.
	SplitWeight   float64
	BalanceWeight float64
}

// DefaultOptions returns the options used when a zero Options is passed.
func DefaultOptions() Options {
	return Options{
		Candidates:    5,
		MaxDepth:      64,
		SplitWeight:   4,
		BalanceWeight: 1,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	d.Seed = o.Seed
	if o.Candidates > 0 {
		d.Candidates = o.Candidates
	}
	if o.MaxDepth > 0 {
		d.MaxDepth = o.MaxDepth
	}
	if o.SplitWeight > 0 {
		d.SplitWeight = o.SplitWeight
	}
	if o.BalanceWeight > 0 {
		d.BalanceWeight = o.BalanceWeight
	}
	return d
}

type node struct {
	plane    math.Plane
	hasPlane bool
	front    *node
	back     *node
	polygons []Polygon
}

// Tree is a BSP tree of a closed solid.
type Tree struct {
	root *node
	opts Options
	sp   splitter
	rng  *rand.Rand
}

// Stats summarizes a tree.
type Stats struct {
	Nodes     int
	Depth     int
	Polygons  int
	Fallbacks int
}

// Build constructs a tree from the boundary polygons of a closed solid.
// Polygons without area are dropped.
func Build(polys []Polygon, opts Options) *Tree {
	t := newTree(opts, toleranceFor(Bounds(polys)))
	in := make([]Polygon, 0, len(polys))
	for _, p := range polys {
		if len(p.Vertices) < 3 || p.Plane.Normal.LengthSq() < 0.5 {
			continue
		}
		in = append(in, p.Clone())
	}
	t.build(t.root, in, 0)
	return t
}

func newTree(opts Options, eps float64) *Tree {
	opts = opts.withDefaults()
	return &Tree{
		root: &node{},
		opts: opts,
		sp:   splitter{eps: eps},
		rng:  rand.New(rand.NewPCG(opts.Seed, opts.Seed^0x5851f42d4c957f2d)),
	}
}

func toleranceFor(b math.Bounds) float64 {
	if b.IsEmpty() {
		return Epsilon
	}
	return Epsilon * gomath.Max(1, b.Diagonal())
}

// Epsilon returns the absolute on-plane tolerance of t.
func (t *Tree) Epsilon() float64 {
	return t.sp.eps
}

// IsEmpty reports whether the tree holds no polygons.
func (t *Tree) IsEmpty() bool {
	return t == nil || !t.root.hasPlane
}

type buildItem struct {
	n     *node
	polys []Polygon
	depth int
}

func (t *Tree) build(root *node, polys []Polygon, depth int) {
	stack := []buildItem{{root, polys, depth}}
	for len(stack) > 0 {
		it := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if len(it.polys) == 0 {
			continue
		}
		n := it.n
		if !n.hasPlane {
			n.plane = t.choosePlane(it.polys, it.depth)
			n.hasPlane = true
		}
		var fr, bk []Polygon
		for i := range it.polys {
			t.sp.split(n.plane, &it.polys[i], &n.polygons, &n.polygons, &fr, &bk)
		}
		if len(fr) > 0 {
			if n.front == nil {
				n.front = &node{}
			}
			stack = append(stack, buildItem{n.front, fr, it.depth + 1})
		}
		if len(bk) > 0 {
			if n.back == nil {
				n.back = &node{}
			}
			stack = append(stack, buildItem{n.back, bk, it.depth + 1})
		}
	}
}

// choosePlane samples candidate polygons and keeps the plane with the lowest
// split/balance cost.
func (t *Tree) choosePlane(polys []Polygon, depth int) math.Plane {
	if len(polys) <= 2 || t.opts.Candidates <= 1 || depth >= t.opts.MaxDepth {
		return polys[0].Plane
	}
	// Score against a bounded subsample so huge nodes stay linear.
	stride := 1
	if len(polys) > 512 {
		stride = len(polys) / 512
	}
	best := polys[0].Plane
	bestCost := gomath.Inf(1)
	for c := 0; c < t.opts.Candidates; c++ {
		pl := polys[t.rng.IntN(len(polys))].Plane
		var splits, nf, nb int
		for i := 0; i < len(polys); i += stride {
			switch t.classify(pl, &polys[i]) {
			case front:
				nf++
			case back:
				nb++
			case spanning:
				splits++
			}
		}
		cost := t.opts.SplitWeight*float64(splits) + t.opts.BalanceWeight*gomath.Abs(float64(nf-nb))
		if cost < bestCost {
			bestCost = cost
			best = pl
		}
	}
	return best
}

func (t *Tree) classify(pl math.Plane, p *Polygon) int {
	typ := coplanar
	for _, v := range p.Vertices {
		d := pl.Distance(v.Position)
		if d < -t.sp.eps {
			typ |= back
		} else if d > t.sp.eps {
			typ |= front
		}
	}
	return typ
}

type clipItem struct {
	n     *node
	polys []Polygon
}

// clipPolygons removes the parts of polys that are inside the solid rooted at n.
func (t *Tree) clipPolygons(n *node, polys []Polygon) []Polygon {
	if !n.hasPlane {
		return polys
	}
	var out []Polygon
	stack := []clipItem{{n, polys}}
	for len(stack) > 0 {
		it := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		var fr, bk []Polygon
		for i := range it.polys {
			t.sp.split(it.n.plane, &it.polys[i], &fr, &bk, &fr, &bk)
		}
		if it.n.front != nil && it.n.front.hasPlane {
			stack = append(stack, clipItem{it.n.front, fr})
		} else {
			out = append(out, fr...)
		}
		if it.n.back != nil && it.n.back.hasPlane {
			stack = append(stack, clipItem{it.n.back, bk})
		}
	}
	return out
}

// nodes returns every node in depth-first order.
func (t *Tree) nodes() []*node {
	var out []*node
	stack := []*node{t.root}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		out = append(out, n)
		if n.back != nil {
			stack = append(stack, n.back)
		}
		if n.front != nil {
			stack = append(stack, n.front)
		}
	}
	return out
}

// clipTo removes everything in t that is inside o.
func (t *Tree) clipTo(o *Tree) {
	for _, n := range t.nodes() {
		n.polygons = o.clipPolygons(o.root, n.polygons)
	}
}

// Invert turns the solid inside out.
func (t *Tree) Invert() {
	for _, n := range t.nodes() {
		for i := range n.polygons {
			n.polygons[i].Flip()
		}
		if n.hasPlane {
			n.plane = n.plane.Flip()
		}
		n.front, n.back = n.back, n.front
	}
}

// Polygons returns copies of every polygon in the tree.
func (t *Tree) Polygons() []Polygon {
	var out []Polygon
	for _, n := range t.nodes() {
		for _, p := range n.polygons {
			out = append(out, p.Clone())
		}
	}
	return out
}

// Clone returns a deep copy. The clone's sampler restarts from the seed.
func (t *Tree) Clone() *Tree {
	c := newTree(t.opts, t.sp.eps)
	c.sp.fallbacks = t.sp.fallbacks
	type pair struct{ src, dst *node }
	c.root = &node{}
	stack := []pair{{t.root, c.root}}
	for len(stack) > 0 {
		p := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		p.dst.plane = p.src.plane
		p.dst.hasPlane = p.src.hasPlane
		p.dst.polygons = make([]Polygon, len(p.src.polygons))
		for i, q := range p.src.polygons {
			p.dst.polygons[i] = q.Clone()
		}
		if p.src.front != nil {
			p.dst.front = &node{}
			stack = append(stack, pair{p.src.front, p.dst.front})
		}
		if p.src.back != nil {
			p.dst.back = &node{}
			stack = append(stack, pair{p.src.back, p.dst.back})
		}
	}
	return c
}

// Stats walks the tree.
func (t *Tree) Stats() Stats {
	s := Stats{Fallbacks: t.sp.fallbacks}
	type item struct {
		n *node
		d int
	}
	stack := []item{{t.root, 1}}
	for len(stack) > 0 {
		it := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if !it.n.hasPlane {
			continue
		}
		s.Nodes++
		s.Polygons += len(it.n.polygons)
		if it.d > s.Depth {
			s.Depth = it.d
		}
		if it.n.front != nil {
			stack = append(stack, item{it.n.front, it.d + 1})
		}
		if it.n.back != nil {
			stack = append(stack, item{it.n.back, it.d + 1})
		}
	}
	return s
}

// Contains reports whether p is strictly inside the solid.
func (t *Tree) Contains(p math.Vec3) bool {
	n := t.root
	if !n.hasPlane {
		return false
	}
	for {
		d := n.plane.Distance(p)
		if d >= 0 {
			if n.front == nil || !n.front.hasPlane {
				return false
			}
			n = n.front
			continue
		}
		if n.back == nil || !n.back.hasPlane {
			return true
		}
		n = n.back
	}
}
