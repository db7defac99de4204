package fracture

import (
	gomath "math"

	"go.uber.org/zap"

	"github.com/Faultbox/fracture/pkg/bsp"
	"github.com/Faultbox/fracture/pkg/hmesh"
)

const (
	// partitionTolerance is the relative volume error a split may leave.
	partitionTolerance = 1e-6
	// splitAttempts bounds the reseeded retries of a leaking split.
	splitAttempts = 3
)

// partitions reports whether parts add up to whole within n splits' worth
// of tolerance.
func partitions(whole, parts float64, n int, minVol float64) bool {
	tol := float64(max(n, 1)) * (partitionTolerance*gomath.Abs(whole) + minVol)
	return gomath.Abs(parts-whole) <= tol
}

// checkedSplit cuts piece with cutter, the tree of cutterPolys, and checks
// that both halves add up to the piece. A mismatch means one of the trees
// leaks, so both are rebuilt with other seeds and the cut is tried again.
// ok is false when no attempt partitions the piece; the caller then keeps
// the piece uncut.
func checkedSplit(piece, cutter *bsp.Tree, cutterPolys []bsp.Polygon, opts bsp.Options,
	minVol float64) (inside, outside *bsp.Tree, ok bool) {
	whole := bsp.Volume(piece.Polygons())
	for attempt := 0; attempt < splitAttempts; attempt++ {
		if attempt > 0 {
			o := opts
			o.Seed = mix(opts.Seed, uint64(attempt))
			piece = bsp.Build(piece.Polygons(), o)
			cutter = bsp.Build(cutterPolys, o)
		}
		inside, outside = bsp.Split(piece, cutter)
		vi, vo := bsp.Volume(inside.Polygons()), bsp.Volume(outside.Polygons())
		if vi > -minVol && vo > -minVol && partitions(whole, vi+vo, 1, minVol) {
			return inside, outside, true
		}
	}
	return nil, nil, false
}

// partTree returns the tree of part i, reusing the tree cached on work
// when the caller computed one with CalculateMeshBSP.
func (e *engine) partTree(work *hmesh.Mesh, i int, seed uint64) *bsp.Tree {
	if work.CachedBSP(i) != nil {
		e.log.Debug("using cached bsp", zap.Int("part", i))
	}
	return work.PartBSP(i, seed)
}
