package fracture

import (
	"context"
	"fmt"
	gomath "math"
	"time"

	"go.uber.org/zap"

	"github.com/Faultbox/fracture/pkg/bsp"
	"github.com/Faultbox/fracture/pkg/cutout"
	"github.com/Faultbox/fracture/pkg/hmesh"
	"github.com/Faultbox/fracture/pkg/hull"
	"github.com/Faultbox/fracture/pkg/math"
	"github.com/Faultbox/fracture/pkg/noise"
)

// CreateChippedMesh carves the cutouts of set out of the root parts of
// target, once per direction in desc. Every cutout becomes a
// PartCutoutFaceSplit chunk and the material left over becomes one
// PartCutoutLeftover part. With desc.ApplySlicingToCutoutRegions the
// chunks are then sliced with slice.
//
// On any error, including ErrCancelled when ctx is done, target is left
// unchanged.
func CreateChippedMesh(ctx context.Context, target *hmesh.Mesh, interiorSubmesh int, proc ProcessingParams,
	desc CutoutDesc, set *cutout.Set, slice SliceDesc, mat MaterialDesc, opts Options) error {
	start := time.Now()
	e := newEngine(modeCutout, interiorSubmesh, proc, mat, opts)
	err := e.chip(ctx, target, desc, set, slice)
	return e.finish(start, err)
}

func (e *engine) chip(ctx context.Context, target *hmesh.Mesh, desc CutoutDesc, set *cutout.Set, slice SliceDesc) error {
	if err := validateTarget(target, e.interiorIndex()); err != nil {
		return err
	}
	if err := desc.validate(); err != nil {
		return err
	}
	if set == nil || len(set.Cutouts) == 0 || set.Width <= 0 || set.Height <= 0 {
		return ErrNoCutouts
	}
	if desc.ApplySlicingToCutoutRegions {
		if err := slice.validate(); err != nil {
			return err
		}
	}
	if err := checkCancel(ctx); err != nil {
		return err
	}

	work := target.Clone()
	work.Clear(true)

	var roots []int
	for _, i := range work.PartsAtDepth(work.RootDepth()) {
		if work.MeshFlags(i)&hmesh.PartCore == 0 && work.MeshTriangleCount(i) > 0 {
			roots = append(roots, i)
		}
	}

	sliceShare := 0
	if desc.ApplySlicingToCutoutRegions && slice.MaxDepth > 0 {
		sliceShare = 50
	}
	var chunks []slicePart
	for ri, root := range roots {
		got, err := e.carve(ctx, work, root, desc, set)
		if err != nil {
			return err
		}
		chunks = append(chunks, got...)
		e.progress((100 - sliceShare) * (ri + 1) / (len(roots) + 1))
	}

	if desc.ApplySlicingToCutoutRegions {
		if err := e.sliceLevels(ctx, work, chunks, slice, 100-sliceShare, 100); err != nil {
			return err
		}
	}

	e.enter(stageCommitting, zap.Int("parts", work.PartCount()))
	if err := work.Validate(); err != nil {
		return fmt.Errorf("fracture: result: %w", err)
	}
	target.Set(work)
	e.progress(100)
	return nil
}

// carve cuts every direction of desc out of part root and appends the
// chunks and the leftover as its children. It returns the chunks with
// their slicing axes.
func (e *engine) carve(ctx context.Context, work *hmesh.Mesh, root int, desc CutoutDesc, set *cutout.Set) ([]slicePart, error) {
	b := work.MeshBounds(root)
	minVol := 1e-9 * b.Diagonal() * b.Diagonal() * b.Diagonal()
	opts := e.bspOptions(mix(0xc07, uint64(root)))
	leftover := e.partTree(work, root, opts.Seed)

	type chunk struct {
		tris []hmesh.Triangle
		axes [3]int
	}
	var chunks []chunk
	var frames []hmesh.MaterialFrame
	for di, dir := range desc.Directions {
		e.enter(stageCarving, zap.Int("part", root), zap.Stringer("dir", dir.Dir))
		fm := newFaceMap(b, dir, set.Width, set.Height)
		frame := e.mat.Frame(math.Plane{Normal: fm.w, D: fm.front})
		meta := bsp.Meta{Submesh: e.interior, Frame: noFrame, Flags: bsp.FlagInterior}
		if e.frames {
			meta.Frame = localFrame(len(frames))
			frames = append(frames, frame)
		}
		var field *noise.Field
		if dir.Depth > 0 && !dir.BackfaceNoise.IsFlat() {
			spacing := (fm.umax - fm.umin) / float64(dir.BackfaceNoise.Resolution())
			field = noise.New(dir.BackfaceNoise, spacing, mix(e.opts.Seed, uint64(root), uint64(di)))
		}

		carved := 0
		for ci, c := range set.Cutouts {
			prisms, err := fm.prisms(c, desc.SplitNonconvexRegions, field, meta, frame)
			if err != nil {
				return nil, err
			}
			var got *bsp.Tree
			for _, pr := range prisms {
				if err := checkCancel(ctx); err != nil {
					return nil, err
				}
				inside, outside, ok := checkedSplit(leftover, bsp.Build(pr, opts), pr, opts, minVol)
				if !ok {
					e.log.Debug("prism does not partition the leftover, skipped", zap.Int("cutout", ci))
					continue
				}
				if !solid(inside, minVol) {
					continue
				}
				leftover = outside
				if got == nil {
					got = inside
				} else {
					got = bsp.Union(got, inside)
				}
			}
			e.rec.AddCuts(e.mode, len(prisms))
			if !solid(got, minVol) {
				e.log.Debug("cutout missed the mesh", zap.Int("cutout", ci), zap.Stringer("dir", dir.Dir))
				continue
			}
			e.rec.ObservePolygons(got.Stats().Polygons)
			chunks = append(chunks, chunk{tris: hmesh.Triangles(got.Polygons()), axes: fm.axes})
			carved++
		}
		if carved == 0 {
			return nil, fmt.Errorf("%w: direction %v", ErrNoCutouts, dir.Dir)
		}
		e.log.Info("direction carved", zap.Int("part", root), zap.Stringer("dir", dir.Dir), zap.Int("chunks", carved))
	}

	// Commit: frames first, then chunks, then the leftover.
	var pieces [][]hmesh.Triangle
	var flags []hmesh.PartFlags
	var axes [][3]int
	for _, c := range chunks {
		groups := [][]hmesh.Triangle{c.tris}
		if e.proc.IslandGeneration {
			groups = splitIslands(c.tris)
		}
		for _, g := range groups {
			pieces = append(pieces, g)
			flags = append(flags, hmesh.PartCutoutFaceSplit)
			axes = append(axes, c.axes)
		}
	}
	if solid(leftover, minVol) {
		pieces = append(pieces, hmesh.Triangles(leftover.Polygons()))
		flags = append(flags, hmesh.PartCutoutLeftover)
	}
	for _, tris := range pieces {
		mergeFacetNormals(tris, desc.FacetNormalMergeThresholdAngle)
	}
	if e.frames {
		commitFrames(work, frames, pieces)
	} else {
		clearLocalFrames(pieces)
	}

	var out []slicePart
	for k, tris := range pieces {
		idx := work.AddPart(root, tris, flags[k])
		work.SetHull(idx, hull.Build(positions(tris), e.opts.HullMethod))
		if k < len(axes) {
			out = append(out, slicePart{index: idx, axes: axes[k], tris: work.MeshTriangles(idx)})
		}
	}
	e.rec.AddParts(e.mode, len(pieces))
	return out, nil
}

// faceMap places bitmap pixels on one face of a bounding box. u, v and w
// are signed unit axes with u x v = w, w pointing out of the face.
type faceMap struct {
	u, v, w    math.Vec3
	axes       [3]int
	umin, umax float64
	vmin, vmax float64
	// front is the w coordinate of the face, far the opposite side.
	front, far float64
	top, back  float64
	width      float64
	height     float64
	dir        CutoutDirection
}

var faceAxes = [...][2]math.Vec3{
	DirPosX: {math.UnitY, math.UnitZ},
	DirNegX: {math.UnitY.Neg(), math.UnitZ},
	DirPosY: {math.UnitX.Neg(), math.UnitZ},
	DirNegY: {math.UnitX, math.UnitZ},
	DirPosZ: {math.UnitX, math.UnitY},
	DirNegZ: {math.UnitX.Neg(), math.UnitY},
}

func axisOf(v math.Vec3) int {
	switch {
	case v.X != 0:
		return 0
	case v.Y != 0:
		return 1
	}
	return 2
}

func newFaceMap(b math.Bounds, dir CutoutDirection, width, height int) faceMap {
	fm := faceMap{
		u:      faceAxes[dir.Dir][0],
		v:      faceAxes[dir.Dir][1],
		w:      math.AxisVec(dir.Dir.Axis()).Scale(dir.Dir.Sign()),
		width:  float64(width),
		height: float64(height),
		dir:    dir,
	}
	fm.axes = [3]int{axisOf(fm.u), axisOf(fm.v), dir.Dir.Axis()}
	fm.umin, fm.umax = project(b, fm.u)
	fm.vmin, fm.vmax = project(b, fm.v)
	fm.far, fm.front = project(b, fm.w)
	margin := 0.05*(fm.front-fm.far) + 1e-3*gomath.Max(1, b.Diagonal())
	fm.top = fm.front + margin
	fm.back = fm.far - margin
	if dir.Depth > 0 {
		fm.back = gomath.Max(fm.front-dir.Depth, fm.back)
	}
	return fm
}

func project(b math.Bounds, axis math.Vec3) (lo, hi float64) {
	lo, hi = gomath.Inf(1), gomath.Inf(-1)
	for _, c := range b.Corners() {
		d := c.Dot(axis)
		lo, hi = gomath.Min(lo, d), gomath.Max(hi, d)
	}
	return lo, hi
}

// mapVertex converts a loop vertex to face coordinates. Vertices on the
// bitmap border are pushed past the face edge so prism walls never lie on
// the mesh surface.
func (fm faceMap) mapVertex(v cutout.Vertex) math.Vec2 {
	px, py := v.Pos.X, v.Pos.Y
	if v.Flags&cutout.VertexOnBoundary != 0 {
		mx, my := 0.05*fm.width, 0.05*fm.height
		switch {
		case px <= 0:
			px = -mx
		case px >= fm.width:
			px = fm.width + mx
		}
		switch {
		case py <= 0:
			py = -my
		case py >= fm.height:
			py = fm.height + my
		}
	}
	su, sv := px/fm.width, py/fm.height
	if fm.dir.WidthInvert {
		su = 1 - su
	}
	if fm.dir.HeightInvert {
		sv = 1 - sv
	}
	su = su*scaleOr1(fm.dir.WidthScale) + fm.dir.WidthOffset
	sv = sv*scaleOr1(fm.dir.HeightScale) + fm.dir.HeightOffset
	return math.Vec2{
		X: fm.umin + su*(fm.umax-fm.umin),
		Y: fm.vmax - sv*(fm.vmax-fm.vmin),
	}
}

func scaleOr1(s float64) float64 {
	if s == 0 {
		return 1
	}
	return s
}

func (fm faceMap) point(p math.Vec2, w float64) math.Vec3 {
	return fm.u.Scale(p.X).Add(fm.v.Scale(p.Y)).Add(fm.w.Scale(w))
}

// mapCutout returns c in face coordinates with outer loops counter-
// clockwise and holes clockwise. Loops that collapse are dropped.
func (fm faceMap) mapCutout(c cutout.Cutout) cutout.Cutout {
	out := cutout.Cutout{Name: c.Name}
	index := map[int]int{}
	for pass := 0; pass < 2; pass++ {
		for i, l := range c.Loops {
			if l.Hole != (pass == 1) {
				continue
			}
			m := cutout.Loop{Hole: l.Hole, Outer: -1, Vertices: make([]cutout.Vertex, len(l.Vertices))}
			for k, v := range l.Vertices {
				m.Vertices[k] = cutout.Vertex{Pos: fm.mapVertex(v), Flags: v.Flags}
			}
			a := m.Area()
			if gomath.Abs(a) < 1e-12*(fm.umax-fm.umin)*(fm.vmax-fm.vmin) {
				continue
			}
			if (a < 0) != l.Hole {
				reverse(m.Vertices)
			}
			if l.Hole {
				o, ok := index[l.Outer]
				if !ok {
					continue
				}
				m.Outer = o
			} else {
				index[i] = len(out.Loops)
			}
			out.Loops = append(out.Loops, m)
		}
	}
	return out
}

func reverse[T any](s []T) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}

// prisms returns the closed solids carving c: one per region, or one per
// convex piece with split set.
func (fm faceMap) prisms(c cutout.Cutout, split bool, field *noise.Field, meta bsp.Meta,
	frame hmesh.MaterialFrame) ([][]bsp.Polygon, error) {
	mc := fm.mapCutout(c)
	var out [][]bsp.Polygon
	if split {
		pieces, err := mc.ConvexPieces()
		if err != nil {
			return nil, fmt.Errorf("fracture: cutout %s: %w", c.Name, err)
		}
		for _, p := range pieces {
			if math.PolygonArea2D(p.Points) < 0 {
				reverse(p.Points)
			}
			ring := [][]math.Vec2{p.Points}
			tr := cutout.Triangulation{Points: p.Points}
			for k := 1; k+1 < len(p.Points); k++ {
				tr.Triangles = append(tr.Triangles, [3]int{0, k, k + 1})
			}
			out = append(out, fm.prism(ring, []int{len(p.Points)}, tr, field, meta, frame))
		}
		return out, nil
	}
	for _, r := range mc.Regions() {
		tr, err := r.Triangulate()
		if err != nil {
			return nil, fmt.Errorf("fracture: cutout %s: %w", c.Name, err)
		}
		rings := [][]math.Vec2{r.Outer.Points()}
		sizes := []int{len(r.Outer.Vertices)}
		for _, h := range r.Holes {
			rings = append(rings, h.Points())
			sizes = append(sizes, len(h.Vertices))
		}
		out = append(out, fm.prism(rings, sizes, tr, field, meta, frame))
	}
	return out, nil
}

// prism extrudes a triangulated region between fm.back and fm.top. rings
// hold the outer loop followed by the holes, matching the point order of
// tr; sizes are their lengths.
func (fm faceMap) prism(rings [][]math.Vec2, sizes []int, tr cutout.Triangulation, field *noise.Field,
	meta bsp.Meta, frame hmesh.MaterialFrame) []bsp.Polygon {
	var out []bsp.Polygon
	add := func(pts ...math.Vec3) {
		if p, ok := facePolygon(pts, meta, frame); ok {
			out = append(out, p)
		}
	}

	// Walls: outer rings run counter-clockwise and holes clockwise, so
	// (top a, back a, back b, top b) faces out of the solid.
	for _, ring := range rings {
		for k, a := range ring {
			b := ring[(k+1)%len(ring)]
			add(fm.point(a, fm.top), fm.point(a, fm.back), fm.point(b, fm.back), fm.point(b, fm.top))
		}
	}

	// Front cap.
	for _, t := range tr.Triangles {
		add(fm.point(tr.Points[t[0]], fm.top), fm.point(tr.Points[t[1]], fm.top), fm.point(tr.Points[t[2]], fm.top))
	}

	// Back cap, subdivided and displaced by the noise away from the loop
	// edges.
	loopEdge := func(i, j int) bool {
		start := 0
		for _, n := range sizes {
			if i >= start && i < start+n && j >= start && j < start+n {
				d := (j - i + n) % n
				return d == 1 || d == n-1
			}
			start += n
		}
		return false
	}
	levels := 0
	if field != nil {
		levels = subdivisionLevels(field, fm)
	}
	limit := 0.45 * (fm.top - fm.back)
	depthAt := func(p cvert) float64 {
		if p.fixed || field == nil {
			return fm.back
		}
		h := gomath.Max(-limit, gomath.Min(limit, field.At(p.p.X, p.p.Y)))
		return fm.back + h
	}
	for _, t := range tr.Triangles {
		a := cvert{tr.Points[t[0]], true}
		b := cvert{tr.Points[t[1]], true}
		c := cvert{tr.Points[t[2]], true}
		fixed := [3]bool{loopEdge(t[0], t[1]), loopEdge(t[1], t[2]), loopEdge(t[2], t[0])}
		for _, s := range subdivide(a, b, c, fixed, levels) {
			add(fm.point(s[0].p, depthAt(s[0])), fm.point(s[2].p, depthAt(s[2])), fm.point(s[1].p, depthAt(s[1])))
		}
	}
	return out
}

type cvert struct {
	p     math.Vec2
	fixed bool
}

// subdivisionLevels picks how often back cap triangles are split so the
// noise is sampled about as finely as its grid size asks.
func subdivisionLevels(f *noise.Field, fm faceMap) int {
	if f.Flat() {
		return 0
	}
	n := fm.dir.BackfaceNoise.Resolution()
	levels := 0
	for 1<<levels < n && levels < 4 {
		levels++
	}
	return levels
}

// subdivide splits a triangle into 4^levels triangles by edge midpoints.
// fixed flags the edges ab, bc and ca whose points must stay in place.
func subdivide(a, b, c cvert, fixed [3]bool, levels int) [][3]cvert {
	if levels == 0 {
		return [][3]cvert{{a, b, c}}
	}
	mid := func(x, y cvert, f bool) cvert {
		return cvert{x.p.Lerp(y.p, 0.5), f}
	}
	ab := mid(a, b, fixed[0])
	bc := mid(b, c, fixed[1])
	ca := mid(c, a, fixed[2])
	var out [][3]cvert
	out = append(out, subdivide(a, ab, ca, [3]bool{fixed[0], false, fixed[2]}, levels-1)...)
	out = append(out, subdivide(ab, b, bc, [3]bool{fixed[0], fixed[1], false}, levels-1)...)
	out = append(out, subdivide(ca, bc, c, [3]bool{false, fixed[1], fixed[2]}, levels-1)...)
	out = append(out, subdivide(ab, bc, ca, [3]bool{false, false, false}, levels-1)...)
	return out
}
