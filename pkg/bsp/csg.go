package bsp

import (
	gomath "math"
)

// prepare clones both operands onto a shared tolerance.
func prepare(a, b *Tree) (*Tree, *Tree) {
	eps := gomath.Max(a.sp.eps, b.sp.eps)
	ca, cb := a.Clone(), b.Clone()
	ca.sp.eps, cb.sp.eps = eps, eps
	return ca, cb
}

// rebuild welds the boundary left in t and builds a fresh tree from it, so
// leaf inside/outside classification matches the result solid.
func (t *Tree) rebuild(extraFallbacks int) *Tree {
	polys := Weld(t.Polygons())
	r := newTree(t.opts, t.sp.eps)
	r.build(r.root, polys, 0)
	r.sp.fallbacks += t.sp.fallbacks + extraFallbacks
	return r
}

// Union returns a ∪ b.
func Union(a, b *Tree) *Tree {
	switch {
	case a.IsEmpty():
		return b.Clone()
	case b.IsEmpty():
		return a.Clone()
	}
	ta, tb := prepare(a, b)
	ta.clipTo(tb)
	tb.clipTo(ta)
	tb.Invert()
	tb.clipTo(ta)
	tb.Invert()
	ta.build(ta.root, tb.Polygons(), 0)
	return ta.rebuild(tb.sp.fallbacks)
}

// Subtract returns a − b.
func Subtract(a, b *Tree) *Tree {
	switch {
	case a.IsEmpty():
		return newTree(a.opts, a.sp.eps)
	case b.IsEmpty():
		return a.Clone()
	}
	ta, tb := prepare(a, b)
	ta.Invert()
	ta.clipTo(tb)
	tb.clipTo(ta)
	tb.Invert()
	tb.clipTo(ta)
	tb.Invert()
	ta.build(ta.root, tb.Polygons(), 0)
	ta.Invert()
	return ta.rebuild(tb.sp.fallbacks)
}

// Intersect returns a ∩ b.
func Intersect(a, b *Tree) *Tree {
	if a.IsEmpty() || b.IsEmpty() {
		return newTree(a.opts, a.sp.eps)
	}
	ta, tb := prepare(a, b)
	ta.Invert()
	tb.clipTo(ta)
	tb.Invert()
	ta.clipTo(tb)
	tb.clipTo(ta)
	ta.build(ta.root, tb.Polygons(), 0)
	ta.Invert()
	return ta.rebuild(tb.sp.fallbacks)
}

// Split cuts a with a closed cutter solid and returns the part inside the
// cutter and the part outside it. Seam faces come from the cutter's
// boundary and keep its Meta.
func Split(a, cutter *Tree) (inside, outside *Tree) {
	return Intersect(a, cutter), Subtract(a, cutter)
}
