package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"go.uber.org/zap"

	"github.com/Faultbox/fracture/internal/authoring"
	"github.com/Faultbox/fracture/internal/config"
	"github.com/Faultbox/fracture/internal/logger"
	"github.com/Faultbox/fracture/internal/metrics"
	"github.com/Faultbox/fracture/internal/preview"
	"github.com/Faultbox/fracture/pkg/formats"
	"github.com/Faultbox/fracture/pkg/fracture"
	"github.com/Faultbox/fracture/pkg/hmesh"
	"github.com/Faultbox/fracture/pkg/hull"
	"github.com/Faultbox/fracture/pkg/math"
	"github.com/Faultbox/fracture/pkg/meshgen"
)

// stateFile is the session state written next to the OBJ output.
const stateFile = "state.frs"

var errUsage = errors.New("bad usage")

// run holds what every fracturing command sets up.
type run struct {
	cfg     *config.Config
	log     *zap.Logger
	rec     *metrics.Recorder
	ctx     context.Context
	cancel  context.CancelFunc
	session *authoring.Session
}

func setup(name string, fs *flag.FlagSet, flags *config.Flags, args []string) (*run, error) {
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	cfg, err := config.Load("", flags)
	if err != nil {
		return nil, err
	}
	if err := logger.Init(cfg.Logging.Level, cfg.Logging.LogFile); err != nil {
		return nil, err
	}
	r := &run{cfg: cfg, log: logger.Named(name), rec: metrics.NewRecorder(nil)}
	r.ctx, r.cancel = signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	r.session = authoring.New(r.log)
	if cfg.Metrics.Listen != "" {
		go func() {
			if err := metrics.Serve(r.ctx, cfg.Metrics.Listen, r.log); err != nil {
				r.log.Warn("metrics server stopped", zap.Error(err))
			}
		}()
	}
	return r, nil
}

func (r *run) close() {
	if path := r.cfg.Metrics.Textfile; path != "" {
		if err := metrics.WriteTextfile(path); err != nil {
			r.log.Warn("writing metrics textfile", zap.String("path", path), zap.Error(err))
		}
	}
	r.cancel()
	logger.Sync()
}

func (r *run) options() fracture.Options {
	return fracture.Options{
		Seed:       r.cfg.Fracture.Seed,
		HullMethod: r.cfg.Fracture.HullMethod,
		Logger:     r.log,
		Metrics:    r.rec,
		Progress: fracture.ProgressFunc(func(p int) {
			r.log.Info("progress", zap.Int("percent", p))
		}),
	}
}

// loadMesh reads an OBJ file or builds a primitive from a
// "kind:arg,arg" source.
func loadMesh(src string) ([]hmesh.Triangle, []hmesh.Submesh, error) {
	kind, params, ok := strings.Cut(src, ":")
	if !ok || strings.HasSuffix(strings.ToLower(src), ".obj") {
		obj, err := formats.LoadOBJ(src)
		if err != nil {
			return nil, nil, err
		}
		tris, subs := obj.Triangles()
		return tris, subs, nil
	}

	var vals []float64
	for _, p := range strings.Split(params, ",") {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: primitive %q: %v", errUsage, src, err)
		}
		vals = append(vals, v)
	}
	subs := []hmesh.Submesh{{MaterialName: "surface", Format: hmesh.VertexFormat{HasNormal: true, UVCount: 1}}}
	var tris []hmesh.Triangle
	var err error
	switch {
	case kind == "box" && len(vals) == 3:
		tris, err = meshgen.Box(math.Vec3{X: vals[0], Y: vals[1], Z: vals[2]})
	case kind == "box" && len(vals) == 1:
		tris, err = meshgen.Box(math.Vec3{X: vals[0], Y: vals[0], Z: vals[0]})
	case kind == "sphere" && len(vals) == 1:
		tris, err = meshgen.Sphere(vals[0], meshgen.DefaultCells)
	case kind == "cylinder" && len(vals) == 2:
		tris, err = meshgen.Cylinder(vals[0], vals[1], meshgen.DefaultCells)
	default:
		return nil, nil, fmt.Errorf("%w: unknown primitive %q", errUsage, src)
	}
	return tris, subs, err
}

func (r *run) setRoot(src string) error {
	tris, subs, err := loadMesh(src)
	if err != nil {
		return err
	}
	return r.session.SetRootMesh(tris, subs, nil)
}

// write stores the fractured mesh as OBJ and the session state in the
// output directory.
func (r *run) write(name string) error {
	dir := r.cfg.Output.Dir
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	objPath := filepath.Join(dir, name+".obj")
	f, err := os.Create(objPath)
	if err != nil {
		return err
	}
	if err := formats.WriteOBJ(f, r.session.Mesh, r.cfg.Output.Depth); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", objPath, err)
	}
	if err := f.Close(); err != nil {
		return err
	}

	statePath := filepath.Join(dir, stateFile)
	sf, err := os.Create(statePath)
	if err != nil {
		return err
	}
	if err := r.session.SerializeState(sf); err != nil {
		sf.Close()
		return fmt.Errorf("writing %s: %w", statePath, err)
	}
	if err := sf.Close(); err != nil {
		return err
	}
	r.log.Info("wrote result", zap.String("obj", objPath), zap.String("state", statePath))
	printSummary(r.session.Mesh)
	return nil
}

func baseName(src string) string {
	if kind, _, ok := strings.Cut(src, ":"); ok && !strings.Contains(src, string(filepath.Separator)) {
		return kind
	}
	return strings.TrimSuffix(filepath.Base(src), filepath.Ext(src))
}

func cmdSlice(args []string) error {
	fs := flag.NewFlagSet("slice", flag.ExitOnError)
	flags := config.RegisterFlags(fs)
	core := fs.String("core", "", "Core mesh subtracted before slicing")
	exportCore := fs.Bool("export-core", false, "Keep the core as its own chunk")
	r, err := setup("slice", fs, flags, args)
	if err != nil {
		return err
	}
	defer r.close()
	if fs.NArg() < 1 {
		return fmt.Errorf("%w: fracturetool slice [options] <mesh>", errUsage)
	}

	if err := r.setRoot(fs.Arg(0)); err != nil {
		return err
	}
	if *core != "" {
		tris, subs, err := loadMesh(*core)
		if err != nil {
			return fmt.Errorf("core: %w", err)
		}
		if err := r.session.SetCoreMesh(tris, subs); err != nil {
			return err
		}
	}
	fc := r.cfg.Fracture
	err = r.session.Slice(r.ctx, authoring.SliceRequest{
		InteriorMaterial: fc.InteriorMaterial,
		ExportCore:       fc.ExportCore || *exportCore,
		Processing:       fc.Processing,
		Desc:             fc.Slice,
		Material:         fc.Material,
		Options:          r.options(),
	})
	if err != nil {
		return err
	}
	return r.write(baseName(fs.Arg(0)) + "_sliced")
}

func cmdChip(args []string) error {
	fs := flag.NewFlagSet("chip", flag.ExitOnError)
	flags := config.RegisterFlags(fs)
	snap := fs.Float64("snap", -1, "Snap threshold in pixels (-1 keeps the configured value)")
	slice := fs.Bool("slice", false, "Slice the carved chunks with the slice settings")
	r, err := setup("chip", fs, flags, args)
	if err != nil {
		return err
	}
	defer r.close()
	if fs.NArg() < 2 {
		return fmt.Errorf("%w: fracturetool chip [options] <mesh> <image>", errUsage)
	}

	if err := r.setRoot(fs.Arg(0)); err != nil {
		return err
	}
	threshold := r.cfg.Cutout.SnapThreshold
	if *snap >= 0 {
		threshold = *snap
	}
	if err := r.session.BuildCutoutSetFromImage(fs.Arg(1), threshold); err != nil {
		return err
	}
	desc := r.cfg.Cutout.Desc
	if *slice {
		desc.ApplySlicingToCutoutRegions = true
	}
	fc := r.cfg.Fracture
	err = r.session.Chip(r.ctx, authoring.ChipRequest{
		InteriorMaterial: fc.InteriorMaterial,
		Processing:       fc.Processing,
		Desc:             desc,
		Slice:            fc.Slice,
		Material:         fc.Material,
		Options:          r.options(),
	})
	if err != nil {
		return err
	}
	return r.write(baseName(fs.Arg(0)) + "_chipped")
}

func cmdCutout(args []string) error {
	fs := flag.NewFlagSet("cutout", flag.ExitOnError)
	flags := config.RegisterFlags(fs)
	snap := fs.Float64("snap", -1, "Snap threshold in pixels (-1 keeps the configured value)")
	out := fs.String("preview", "", "WebP preview path (default <image>.webp in the output directory)")
	scale := fs.Int("scale", 0, "Preview pixels per bitmap pixel (0 keeps the configured value)")
	r, err := setup("cutout", fs, flags, args)
	if err != nil {
		return err
	}
	defer r.close()
	if fs.NArg() < 1 {
		return fmt.Errorf("%w: fracturetool cutout [options] <image>", errUsage)
	}

	threshold := r.cfg.Cutout.SnapThreshold
	if *snap >= 0 {
		threshold = *snap
	}
	if err := r.session.BuildCutoutSetFromImage(fs.Arg(0), threshold); err != nil {
		return err
	}
	set := r.session.Cutouts
	fmt.Printf("Bitmap:  %dx%d\n", set.Width, set.Height)
	fmt.Printf("Cutouts: %d\n", len(set.Cutouts))
	fmt.Printf("Loops:   %d\n", set.LoopCount())
	fmt.Printf("Area:    %.1f px (%.1f%%)\n", set.Area(), 100*set.Area()/float64(set.Width*set.Height))

	path := *out
	if path == "" {
		path = filepath.Join(r.cfg.Output.Dir, baseName(fs.Arg(0))+".webp")
	}
	px := r.cfg.Cutout.PreviewScale
	if *scale > 0 {
		px = *scale
	}
	if err := preview.WriteFile(path, set, px); err != nil {
		return err
	}
	fmt.Printf("Preview: %s\n", path)
	return nil
}

func cmdInfo(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("%w: fracturetool info <state.frs>", errUsage)
	}
	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()
	s := authoring.New(nil)
	if err := s.DeserializeState(f); err != nil {
		return err
	}

	fmt.Printf("State:   %s\n", args[0])
	if s.Mesh == nil {
		fmt.Println("Mesh:    (none)")
	} else {
		printSummary(s.Mesh)
	}
	if s.CoreMesh != nil {
		fmt.Printf("Core:    %d triangles, volume %.4f\n", s.CoreMesh.MeshTriangleCount(0), s.CoreMesh.Volume(0))
	}
	if s.Cutouts != nil {
		fmt.Printf("Cutouts: %d in %dx%d\n", len(s.Cutouts.Cutouts), s.Cutouts.Width, s.Cutouts.Height)
	}
	return nil
}

func printSummary(m *hmesh.Mesh) {
	fmt.Printf("Parts:   %d\n", m.PartCount())
	fmt.Printf("Depth:   %d\n", m.MaxDepth())
	fmt.Printf("Frames:  %d\n", m.MaterialFrameCount())
	for d := 0; d <= m.MaxDepth(); d++ {
		parts := m.PartsAtDepth(d)
		var vol float64
		var tris int
		for _, p := range parts {
			vol += m.Volume(p)
			tris += m.MeshTriangleCount(p)
		}
		fmt.Printf("  depth %d: %4d parts %7d triangles volume %.4f\n", d, len(parts), tris, vol)
	}
}

func cmdHull(args []string) error {
	fs := flag.NewFlagSet("hull", flag.ExitOnError)
	method := fs.String("method", "6dop", "Hull method")
	fs.Parse(args)
	if fs.NArg() < 1 {
		return fmt.Errorf("%w: fracturetool hull [options] <mesh>", errUsage)
	}
	m, err := hull.ParseMethod(*method)
	if err != nil {
		return err
	}
	tris, _, err := loadMesh(fs.Arg(0))
	if err != nil {
		return err
	}
	pts := make([]math.Vec3, 0, 3*len(tris))
	for _, t := range tris {
		for _, v := range t.Vertices {
			pts = append(pts, v.Position)
		}
	}
	h := hull.Build(pts, m)
	if h.IsEmpty() {
		return errors.New("hull is empty")
	}
	b := h.Bounds()
	fmt.Printf("Method:   %s\n", m)
	fmt.Printf("Vertices: %d\n", len(h.Vertices))
	if m.IsDOP() {
		fmt.Printf("Planes:   %d of %d\n", len(h.Planes), m.FacetCount())
	} else {
		fmt.Printf("Planes:   %d\n", len(h.Planes))
	}
	fmt.Printf("Volume:   %.6f (mesh %.6f)\n", h.Volume(), hmesh.TriangleVolume(tris))
	fmt.Printf("Bounds:   [%.3f %.3f %.3f] - [%.3f %.3f %.3f]\n", b.Min.X, b.Min.Y, b.Min.Z, b.Max.X, b.Max.Y, b.Max.Z)
	return nil
}
