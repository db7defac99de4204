// Package authoring holds the state a fracture authoring tool edits: the
// root mesh, an optional core mesh and the cutout set, together with the
// operations that build and fracture them.
package authoring

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/Faultbox/fracture/pkg/cutout"
	"github.com/Faultbox/fracture/pkg/fracture"
	"github.com/Faultbox/fracture/pkg/hmesh"
)

// Session errors.
var (
	ErrNoMesh    = errors.New("authoring: no root mesh")
	ErrNoCutouts = errors.New("authoring: no cutout set")
)

// Session is one authoring state. The zero value is empty and ready.
type Session struct {
	Mesh     *hmesh.Mesh
	CoreMesh *hmesh.Mesh
	Cutouts  *cutout.Set

	Log *zap.Logger
}

// New creates an empty session logging to log. A nil log discards.
func New(log *zap.Logger) *Session {
	if log == nil {
		log = zap.NewNop()
	}
	return &Session{Log: log}
}

func (s *Session) logger() *zap.Logger {
	if s.Log == nil {
		return zap.NewNop()
	}
	return s.Log
}

// SetRootMesh replaces the root mesh. partitions may be nil for a single
// root part.
func (s *Session) SetRootMesh(tris []hmesh.Triangle, submeshes []hmesh.Submesh, partitions []int) error {
	m, err := hmesh.Build(tris, submeshes, partitions)
	if err != nil {
		return fmt.Errorf("root mesh: %w", err)
	}
	s.Mesh = m
	s.logger().Info("root mesh set",
		zap.Int("triangles", len(tris)),
		zap.Int("submeshes", len(submeshes)),
		zap.Int("parts", m.PartCount()))
	return nil
}

// SetCoreMesh replaces the core mesh used by Slice. Empty tris clears it.
func (s *Session) SetCoreMesh(tris []hmesh.Triangle, submeshes []hmesh.Submesh) error {
	if len(tris) == 0 {
		s.CoreMesh = nil
		return nil
	}
	m, err := hmesh.Build(tris, submeshes, nil)
	if err != nil {
		return fmt.Errorf("core mesh: %w", err)
	}
	s.CoreMesh = m
	s.logger().Info("core mesh set", zap.Int("triangles", len(tris)))
	return nil
}

// BuildCutoutSetFromPixels traces a cutout set from a greyscale buffer.
func (s *Session) BuildCutoutSetFromPixels(pixels []byte, width, height int, snap float64) error {
	set := cutout.NewSet()
	if err := cutout.Build(set, pixels, width, height, snap); err != nil {
		return err
	}
	s.Cutouts = set
	s.logger().Info("cutout set built",
		zap.Int("width", width),
		zap.Int("height", height),
		zap.Int("cutouts", len(set.Cutouts)),
		zap.Int("loops", set.LoopCount()))
	return nil
}

// BuildCutoutSetFromImage decodes an image file and traces its cutouts.
func (s *Session) BuildCutoutSetFromImage(path string, snap float64) error {
	img, err := LoadImage(path)
	if err != nil {
		return err
	}
	pix, w, h := Grey(img, 0)
	return s.BuildCutoutSetFromPixels(pix, w, h, snap)
}

// InteriorSubmesh returns the index of the submesh named material, adding
// it when missing. An empty name gives -1.
func (s *Session) InteriorSubmesh(material string) (int, error) {
	if s.Mesh == nil {
		return -1, ErrNoMesh
	}
	if material == "" {
		return -1, nil
	}
	if i := s.Mesh.FindSubmesh(material); i >= 0 {
		return i, nil
	}
	format := hmesh.VertexFormat{HasNormal: true, UVCount: 1}
	if s.Mesh.SubmeshCount() > 0 {
		format = s.Mesh.Submesh(0).Format
		format.UVCount = max(format.UVCount, 1)
	}
	return s.Mesh.AddSubmesh(hmesh.Submesh{MaterialName: material, Format: format}), nil
}

// SliceRequest bundles the slice mode settings.
type SliceRequest struct {
	InteriorMaterial string
	ExportCore       bool
	Processing       fracture.ProcessingParams
	Desc             fracture.SliceDesc
	Material         fracture.MaterialDesc
	Options          fracture.Options
}

// Slice fractures the root mesh in slice mode, using the core mesh when one
// is set.
func (s *Session) Slice(ctx context.Context, req SliceRequest) error {
	interior, err := s.InteriorSubmesh(req.InteriorMaterial)
	if err != nil {
		return err
	}
	opts := s.withLogger(req.Options)
	return fracture.CreateHierarchicallySplitMesh(ctx, s.Mesh, s.CoreMesh, req.ExportCore, interior,
		req.Processing, req.Desc, req.Material, opts)
}

// ChipRequest bundles the cutout mode settings.
type ChipRequest struct {
	InteriorMaterial string
	Processing       fracture.ProcessingParams
	Desc             fracture.CutoutDesc
	Slice            fracture.SliceDesc
	Material         fracture.MaterialDesc
	Options          fracture.Options
}

// Chip fractures the root mesh with the session's cutout set.
func (s *Session) Chip(ctx context.Context, req ChipRequest) error {
	if s.Cutouts == nil {
		return ErrNoCutouts
	}
	interior, err := s.InteriorSubmesh(req.InteriorMaterial)
	if err != nil {
		return err
	}
	opts := s.withLogger(req.Options)
	return fracture.CreateChippedMesh(ctx, s.Mesh, interior, req.Processing, req.Desc, s.Cutouts,
		req.Slice, req.Material, opts)
}

func (s *Session) withLogger(o fracture.Options) fracture.Options {
	if o.Logger == nil {
		o.Logger = s.logger()
	}
	return o
}
