// Package fracture drives the hierarchical decomposition of a mesh: slice
// mode cuts parts with noisy planar surfaces, cutout mode carves chunks
// out of a face with the loops of a cutout set.
//
// Both entry points work on a copy of the target and commit it only when
// every pass succeeded, so a failed or cancelled call leaves the target
// unchanged.
package fracture

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"go.uber.org/zap"

	"github.com/Faultbox/fracture/pkg/bsp"
	"github.com/Faultbox/fracture/pkg/hmesh"
	"github.com/Faultbox/fracture/pkg/hull"
)

// MaxFractureDepth bounds SliceDesc.MaxDepth.
const MaxFractureDepth = 8

// Fracture errors.
var (
	ErrInvalidConfig = errors.New("fracture: invalid configuration")
	ErrEmptyMesh     = errors.New("fracture: mesh has no triangles")
	ErrCancelled     = errors.New("fracture: cancelled")
	ErrNoCutouts     = errors.New("fracture: no usable cutouts")
)

// Progress receives percent-complete notifications at pass boundaries.
type Progress = hmesh.Progress

// ProgressFunc adapts a function to Progress.
type ProgressFunc = hmesh.ProgressFunc

// Recorder collects run statistics.
type Recorder interface {
	ObserveRun(mode string, err error, d time.Duration)
	AddParts(mode string, n int)
	AddCuts(mode string, n int)
	ObservePolygons(n int)
}

type nopRecorder struct{}

func (nopRecorder) ObserveRun(string, error, time.Duration) {}
func (nopRecorder) AddParts(string, int)                    {}
func (nopRecorder) AddCuts(string, int)                     {}
func (nopRecorder) ObservePolygons(int)                     {}

// Options carry the settings shared by both modes.
type Options struct {
	Seed       uint64
	HullMethod hull.Method
	Progress   Progress
	Logger     *zap.Logger
	Metrics    Recorder
}

// Run modes reported to the recorder.
const (
	modeSlice  = "slice"
	modeCutout = "cutout"
)

// stage names the orchestrator state for logging.
type stage int

const (
	stageIdle stage = iota
	stageSlicing
	stageCarving
	stageProportioning
	stageCommitting
	stageDone
	stageCancelled
)

var stageNames = [...]string{"idle", "slicing", "carving", "proportioning", "committing", "done", "cancelled"}

func (s stage) String() string {
	return stageNames[s]
}

// engine holds the state of one fracture call.
type engine struct {
	mode     string
	opts     Options
	proc     ProcessingParams
	mat      MaterialDesc
	interior int
	frames   bool
	log      *zap.Logger
	rec      Recorder
	stage    stage
	percent  int
}

func newEngine(mode string, interiorSubmesh int, proc ProcessingParams, mat MaterialDesc, opts Options) *engine {
	e := &engine{
		mode:     mode,
		opts:     opts,
		proc:     proc,
		mat:      mat,
		interior: interiorSubmesh,
		frames:   interiorSubmesh >= 0,
		log:      opts.Logger,
		rec:      opts.Metrics,
	}
	if e.interior < 0 {
		e.interior = 0
	}
	if e.log == nil {
		e.log = zap.NewNop()
	}
	e.log = e.log.With(zap.String("mode", mode))
	if e.rec == nil {
		e.rec = nopRecorder{}
	}
	if e.proc.MicrogridSize < 0 {
		e.proc.MicrogridSize = 0
	}
	return e
}

func (e *engine) workers() int {
	if e.proc.Workers > 0 {
		return e.proc.Workers
	}
	return runtime.GOMAXPROCS(0)
}

func (e *engine) enter(s stage, fields ...zap.Field) {
	e.stage = s
	e.log.Debug("stage", append([]zap.Field{zap.Stringer("stage", s)}, fields...)...)
}

// progress reports p if it advances the last reported value.
func (e *engine) progress(p int) {
	if p > 100 {
		p = 100
	}
	if p <= e.percent || e.opts.Progress == nil {
		return
	}
	e.percent = p
	e.opts.Progress.SetProgress(p)
}

// checkCancel returns ErrCancelled once ctx is done.
func checkCancel(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrCancelled, err)
	}
	return nil
}

// finish records the run outcome and maps context errors to ErrCancelled.
func (e *engine) finish(start time.Time, err error) error {
	if err != nil && !errors.Is(err, ErrCancelled) &&
		(errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		err = fmt.Errorf("%w: %v", ErrCancelled, err)
	}
	switch {
	case err == nil:
		e.enter(stageDone)
	case errors.Is(err, ErrCancelled):
		e.enter(stageCancelled)
	default:
		e.log.Warn("fracture failed", zap.Error(err))
	}
	e.rec.ObserveRun(e.mode, err, time.Since(start))
	return err
}

// validateTarget checks the target and interior submesh index before any
// work is done.
func validateTarget(target *hmesh.Mesh, interiorSubmesh int) error {
	if target == nil {
		return fmt.Errorf("%w: nil target mesh", ErrInvalidConfig)
	}
	if target.SubmeshCount() == 0 {
		return fmt.Errorf("%w: target has no submeshes", ErrInvalidConfig)
	}
	if interiorSubmesh >= target.SubmeshCount() {
		return fmt.Errorf("%w: interior submesh %d out of range [0,%d)",
			ErrInvalidConfig, interiorSubmesh, target.SubmeshCount())
	}
	if target.PartCount() == 0 {
		return ErrEmptyMesh
	}
	for _, i := range target.PartsAtDepth(target.RootDepth()) {
		if target.MeshTriangleCount(i) > 0 {
			return nil
		}
	}
	return ErrEmptyMesh
}

// bspOptions derives the tree options for one cut from the run seed.
func (e *engine) bspOptions(salt uint64) bsp.Options {
	return hmesh.BSPOptions(mix(e.opts.Seed, salt), 0)
}

// mix combines a seed with salt values (splitmix64 finalizer).
func mix(seed uint64, salts ...uint64) uint64 {
	z := seed
	for _, s := range salts {
		z ^= s + 0x9e3779b97f4a7c15 + (z << 6) + (z >> 2)
		z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
		z = (z ^ (z >> 27)) * 0x94d049bb133111eb
		z ^= z >> 31
	}
	return z
}
