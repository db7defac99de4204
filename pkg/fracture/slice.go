package fracture

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Faultbox/fracture/pkg/bsp"
	"github.com/Faultbox/fracture/pkg/hmesh"
	"github.com/Faultbox/fracture/pkg/hull"
	"github.com/Faultbox/fracture/pkg/math"
)

// CreateHierarchicallySplitMesh slices the root parts of target into a
// hierarchy of desc.MaxDepth levels. A non-empty core is subtracted from
// the material first; with exportCore it is added back as a depth-1 part
// that is never split. Interior faces use interiorSubmesh and get one
// material frame per cutting surface; a negative index puts them in
// submesh 0 without frames.
//
// On any error, including ErrCancelled when ctx is done, target is left
// unchanged.
func CreateHierarchicallySplitMesh(ctx context.Context, target, core *hmesh.Mesh, exportCore bool,
	interiorSubmesh int, proc ProcessingParams, desc SliceDesc, mat MaterialDesc, opts Options) error {
	start := time.Now()
	e := newEngine(modeSlice, interiorSubmesh, proc, mat, opts)
	err := e.slice(ctx, target, core, exportCore, desc)
	return e.finish(start, err)
}

func (e *engine) slice(ctx context.Context, target, core *hmesh.Mesh, exportCore bool, desc SliceDesc) error {
	if err := validateTarget(target, e.interiorIndex()); err != nil {
		return err
	}
	if err := desc.validate(); err != nil {
		return err
	}
	if err := checkCancel(ctx); err != nil {
		return err
	}

	work := target.Clone()
	work.Clear(true)

	sources, err := e.applyCore(work, core, exportCore)
	if err != nil {
		return err
	}
	var leaves []slicePart
	for _, i := range work.PartsAtDepth(work.RootDepth()) {
		if work.MeshFlags(i)&hmesh.PartCore != 0 {
			continue
		}
		sp := slicePart{index: i, axes: [3]int{0, 1, 2}, tris: sources[i]}
		if sp.tris == nil {
			sp.tris = work.MeshTriangles(i)
			sp.tree = work.CachedBSP(i)
		}
		leaves = append(leaves, sp)
	}
	if err := e.sliceLevels(ctx, work, leaves, desc, 0, 100); err != nil {
		return err
	}

	e.enter(stageCommitting, zap.Int("parts", work.PartCount()))
	if err := work.Validate(); err != nil {
		return fmt.Errorf("fracture: result: %w", err)
	}
	target.Set(work)
	e.progress(100)
	return nil
}

// interiorIndex returns the submesh index given by the caller, for validation.
func (e *engine) interiorIndex() int {
	if !e.frames {
		return -1
	}
	return e.interior
}

// applyCore subtracts core from the root parts. With exportCore the root
// parts keep their surface and only the material they hand to slicing is
// hollowed; the core becomes a PartCore child of the first root.
func (e *engine) applyCore(work, core *hmesh.Mesh, exportCore bool) (map[int][]hmesh.Triangle, error) {
	sources := map[int][]hmesh.Triangle{}
	if core == nil || core.PartCount() == 0 {
		return sources, nil
	}
	var coreTris []hmesh.Triangle
	for _, i := range core.PartsAtDepth(0) {
		for _, t := range core.MeshTriangles(i) {
			s := core.Submesh(t.SubmeshIndex)
			idx := work.FindSubmesh(s.MaterialName)
			if idx < 0 {
				idx = work.AddSubmesh(s)
			}
			t.SubmeshIndex = idx
			t.ExtraDataIndex = noFrame
			coreTris = append(coreTris, t)
		}
	}
	if len(coreTris) == 0 {
		return sources, nil
	}
	coreTree := bsp.Build(hmesh.Polygons(coreTris), e.bspOptions(0xc0e))
	rootDepth := work.RootDepth()
	for i := 0; i < work.PartCount(); i++ {
		if work.Depth(i) > rootDepth || work.MeshTriangleCount(i) == 0 {
			continue
		}
		tree := e.partTree(work, i, mix(e.opts.Seed, uint64(i)))
		hollow := hmesh.Triangles(bsp.Subtract(tree, coreTree).Polygons())
		keep := exportCore && (work.Depth(i) < rootDepth || rootDepth == 0)
		if keep {
			sources[i] = hollow
			continue
		}
		work.SetMeshTriangles(i, hollow)
		work.BuildCollisionHull(i, e.opts.HullMethod)
	}
	if exportCore {
		idx := work.AddPart(0, coreTris, hmesh.PartCore)
		work.BuildCollisionHull(idx, e.opts.HullMethod)
		e.log.Debug("core exported", zap.Int("part", idx), zap.Int("triangles", len(coreTris)))
	}
	return sources, nil
}

// slicePart is a part queued for slicing. axes maps the logical slice axes
// onto world axes. tree, when set, is a tree of tris cached on the mesh.
type slicePart struct {
	index int
	axes  [3]int
	tris  []hmesh.Triangle
	tree  *bsp.Tree
}

// sliceResult is the output of slicing one part, before commit.
type sliceResult struct {
	pieces    [][]hmesh.Triangle
	hulls     []hull.Hull
	frames    []hmesh.MaterialFrame
	cuts      int
	rejected  int
	polygons  int
	fallbacks int
}

// sliceLevels runs desc.MaxDepth levels starting at parts, reporting
// progress from p0 to p1.
func (e *engine) sliceLevels(ctx context.Context, work *hmesh.Mesh, parts []slicePart,
	desc SliceDesc, p0, p1 int) error {
	for d := 0; d < desc.MaxDepth && len(parts) > 0; d++ {
		params := desc.level(d)
		e.enter(stageSlicing, zap.Int("level", d), zap.Int("parts", len(parts)))
		results := make([]sliceResult, len(parts))
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(e.workers())
		for pi, sp := range parts {
			g.Go(func() error {
				rng := rand.New(rand.NewPCG(mix(e.opts.Seed, uint64(d), uint64(sp.index)),
					mix(e.opts.Seed, 0x51ce, uint64(d), uint64(sp.index))))
				r, err := e.slicePiece(gctx, sp, params, desc, rng, mix(e.opts.Seed, uint64(d)))
				if err != nil {
					return err
				}
				results[pi] = r
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
		if err := checkCancel(ctx); err != nil {
			return err
		}

		var next []slicePart
		var created, cuts, rejected, fallbacks int
		for pi, sp := range parts {
			r := results[pi]
			cuts += r.cuts
			rejected += r.rejected
			fallbacks += r.fallbacks
			e.rec.ObservePolygons(r.polygons)
			if len(r.pieces) < 2 {
				// Nothing was cut off; the part stays a leaf and is
				// offered to the next level as is.
				next = append(next, sp)
				continue
			}
			if e.frames {
				commitFrames(work, r.frames, r.pieces)
			} else {
				clearLocalFrames(r.pieces)
			}
			for k, tris := range r.pieces {
				idx := work.AddPart(sp.index, tris, 0)
				work.SetHull(idx, r.hulls[k])
				next = append(next, slicePart{index: idx, axes: sp.axes, tris: work.MeshTriangles(idx)})
			}
			created += len(r.pieces)
		}
		e.rec.AddParts(e.mode, created)
		e.rec.AddCuts(e.mode, cuts)
		e.log.Info("level sliced",
			zap.Int("level", d),
			zap.Int("created", created),
			zap.Int("cuts", cuts),
			zap.Int("rejected", rejected),
			zap.Int("fallbacks", fallbacks))
		parts = next
		e.progress(p0 + (p1-p0)*(d+1)/(desc.MaxDepth+1))
	}
	return nil
}

func clearLocalFrames(pieces [][]hmesh.Triangle) {
	for _, tris := range pieces {
		for i := range tris {
			if isLocalFrame(tris[i].ExtraDataIndex) {
				tris[i].ExtraDataIndex = noFrame
			}
		}
	}
}

// slicePiece cuts one part with the surfaces of one level.
func (e *engine) slicePiece(ctx context.Context, sp slicePart, p SliceParameters, desc SliceDesc,
	rng *rand.Rand, salt uint64) (sliceResult, error) {
	var res sliceResult
	src := sp.tris
	b := triBounds(src)
	if len(src) == 0 || b.Diagonal() == 0 {
		return res, nil
	}
	if e.proc.MicrogridSize > 0 {
		src = snapMicrogrid(append([]hmesh.Triangle(nil), src...), e.proc.MicrogridSize, b)
		sp.tree = nil
	}

	counts := p.SplitsPerPass
	if desc.UseTargetProportions {
		var ext [3]float64
		size := b.Extents()
		for l := 0; l < 3; l++ {
			ext[l] = size.Get(sp.axes[l])
		}
		counts = proportionedCounts(ext, counts, desc.TargetProportions)
		e.log.Debug("proportions", zap.Stringer("stage", stageProportioning),
			zap.Ints("configured", p.SplitsPerPass[:]), zap.Ints("chosen", counts[:]))
	}

	opts := e.bspOptions(mix(salt, uint64(sp.index)))
	meta := bsp.Meta{Submesh: e.interior, Frame: noFrame, Flags: bsp.FlagInterior}
	tree := sp.tree
	if tree == nil {
		tree = bsp.Build(bsp.Weld(hmesh.Polygons(src)), opts)
	} else {
		e.log.Debug("using cached bsp", zap.Int("part", sp.index))
	}
	pieces := []*bsp.Tree{tree}
	minVol := 1e-9 * b.Diagonal() * b.Diagonal() * b.Diagonal()
	whole := bsp.Volume(tree.Polygons())

	// cutWith builds the cutters of surfs and splits every piece in turn.
	cutWith := func(in []*bsp.Tree, surfs []surface) ([]*bsp.Tree, error) {
		cutters := make([]*bsp.Tree, len(surfs))
		polys := make([][]bsp.Polygon, len(surfs))
		for k := range surfs {
			m := meta
			frame := e.mat.Frame(surfs[k].plane())
			if e.frames {
				m.Frame = localFrame(len(res.frames))
				res.frames = append(res.frames, frame)
			}
			polys[k] = cutterPolygons(surfs[k], m, frame)
			cutters[k] = bsp.Build(polys[k], opts)
		}
		var out []*bsp.Tree
		for _, piece := range in {
			rest := piece
			for k, c := range cutters {
				if err := checkCancel(ctx); err != nil {
					return nil, err
				}
				res.cuts++
				inside, outside, ok := checkedSplit(rest, c, polys[k], opts, minVol)
				if !ok {
					res.rejected++
					e.log.Debug("cut does not partition the piece, skipped", zap.Int("part", sp.index))
					continue
				}
				if solid(inside, minVol) {
					out = append(out, inside)
				}
				rest = outside
				if !solid(rest, minVol) {
					rest = nil
					break
				}
			}
			if rest != nil {
				out = append(out, rest)
			}
		}
		return out, nil
	}

	through := p.Order == OrderThrough
	for _, l := range p.Order.Axes() {
		c := counts[l]
		if c <= 0 {
			continue
		}
		axis := sp.axes[l]
		var err error
		if through {
			pieces, err = cutWith(pieces, e.surfaces(rng, b, axis, l, c, p))
		} else {
			var out []*bsp.Tree
			for _, piece := range pieces {
				var cut []*bsp.Tree
				pb := bsp.Bounds(piece.Polygons())
				cut, err = cutWith([]*bsp.Tree{piece}, e.surfaces(rng, pb, axis, l, c, p))
				if err != nil {
					break
				}
				out = append(out, cut...)
			}
			pieces = out
		}
		if err != nil {
			return res, err
		}
	}

	var sum float64
	for _, piece := range pieces {
		sum += bsp.Volume(piece.Polygons())
	}
	if !partitions(whole, sum, res.cuts+1, minVol) {
		e.log.Debug("pieces do not add up, part left uncut",
			zap.Int("part", sp.index), zap.Float64("volume", whole), zap.Float64("pieces", sum))
		return sliceResult{cuts: res.cuts, rejected: res.rejected + 1, fallbacks: res.fallbacks}, nil
	}

	for _, piece := range pieces {
		st := piece.Stats()
		res.polygons += st.Polygons
		res.fallbacks += st.Fallbacks
		tris := hmesh.Triangles(piece.Polygons())
		groups := [][]hmesh.Triangle{tris}
		if e.proc.IslandGeneration {
			groups = splitIslands(tris)
		}
		for _, g := range groups {
			res.pieces = append(res.pieces, g)
			res.hulls = append(res.hulls, hull.Build(positions(g), e.opts.HullMethod))
		}
	}
	return res, nil
}

// solid reports whether t encloses more than minVol.
func solid(t *bsp.Tree, minVol float64) bool {
	if t == nil || t.IsEmpty() {
		return false
	}
	return bsp.Volume(t.Polygons()) > minVol
}

func positions(tris []hmesh.Triangle) []math.Vec3 {
	pts := make([]math.Vec3, 0, 3*len(tris))
	for _, t := range tris {
		for _, v := range t.Vertices {
			pts = append(pts, v.Position)
		}
	}
	return pts
}
