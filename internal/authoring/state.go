package authoring

import (
	"errors"
	"fmt"
	"io"

	"github.com/Faultbox/fracture/pkg/cutout"
	"github.com/Faultbox/fracture/pkg/hmesh"
	"github.com/Faultbox/fracture/pkg/stream"
)

// State stream format.
const (
	stateMagic   = "FRST"
	stateVersion = 1
)

// ErrBadState is returned for streams that are not session states.
var ErrBadState = errors.New("authoring: invalid state stream")

// Presence bits of the state header.
const (
	hasMesh = 1 << iota
	hasCore
	hasCutouts
)

// SerializeState writes the root mesh, core mesh and cutout set. Absent
// members are recorded as such.
func (s *Session) SerializeState(w io.Writer) error {
	sw := stream.NewWriter(w)
	sw.StoreMagic(stateMagic)
	sw.StoreDword(stateVersion)
	var present uint32
	if s.Mesh != nil {
		present |= hasMesh
	}
	if s.CoreMesh != nil {
		present |= hasCore
	}
	if s.Cutouts != nil {
		present |= hasCutouts
	}
	sw.StoreDword(present)
	if s.Mesh != nil {
		if err := s.Mesh.Serialize(sw, hmesh.Embedding{}); err != nil {
			return fmt.Errorf("root mesh: %w", err)
		}
	}
	if s.CoreMesh != nil {
		if err := s.CoreMesh.Serialize(sw, hmesh.Embedding{}); err != nil {
			return fmt.Errorf("core mesh: %w", err)
		}
	}
	if s.Cutouts != nil {
		s.Cutouts.Serialize(sw)
	}
	return sw.Err()
}

// DeserializeState replaces the session's members with those read from r.
// The session is unchanged on error.
func (s *Session) DeserializeState(r io.Reader) error {
	sr := stream.NewReader(r)
	sr.ExpectMagic(stateMagic)
	version := sr.ReadDword()
	present := sr.ReadDword()
	if err := sr.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrBadState, err)
	}
	if version != stateVersion {
		return fmt.Errorf("%w: version %d", ErrBadState, version)
	}

	var mesh, core *hmesh.Mesh
	var set *cutout.Set
	if present&hasMesh != 0 {
		mesh = hmesh.New()
		if err := mesh.Deserialize(sr, hmesh.Embedding{}); err != nil {
			return fmt.Errorf("root mesh: %w", err)
		}
	}
	if present&hasCore != 0 {
		core = hmesh.New()
		if err := core.Deserialize(sr, hmesh.Embedding{}); err != nil {
			return fmt.Errorf("core mesh: %w", err)
		}
	}
	if present&hasCutouts != 0 {
		set = cutout.NewSet()
		if err := set.Deserialize(sr); err != nil {
			return fmt.Errorf("cutout set: %w", err)
		}
	}
	s.Mesh, s.CoreMesh, s.Cutouts = mesh, core, set
	return nil
}
