package hmesh

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/Faultbox/fracture/pkg/hull"
	"github.com/Faultbox/fracture/pkg/math"
	"github.com/Faultbox/fracture/pkg/stream"
)

// Stream format.
const (
	Magic          = "EHM1"
	CurrentVersion = 1
	maxCount       = 1 << 24
)

// ErrUnsupportedVersion is returned for streams newer than CurrentVersion.
var ErrUnsupportedVersion = errors.New("hmesh: unsupported stream version")

// EmbeddingKind identifies a block of application data in the stream.
type EmbeddingKind uint32

const (
	EmbeddingMaterialLibrary EmbeddingKind = iota
)

// Embedding carries application side data through Serialize and
// Deserialize. Either function may be nil. Decode receives a reader limited
// to the block Encode wrote.
type Embedding struct {
	Encode func(w *stream.Writer, kind EmbeddingKind) error
	Decode func(r *stream.Reader, kind EmbeddingKind, version uint32) error
}

var embeddingKinds = []EmbeddingKind{EmbeddingMaterialLibrary}

// Serialize writes the mesh. Cached BSP trees are not stored.
func (m *Mesh) Serialize(w *stream.Writer, emb Embedding) error {
	w.StoreMagic(Magic)
	w.StoreDword(CurrentVersion)
	w.StoreDword(uint32(m.rootDepth))

	w.StoreDword(uint32(len(m.submeshes)))
	for _, s := range m.submeshes {
		w.StoreString(s.MaterialName)
		f := s.Format
		w.StoreBool(f.HasNormal)
		w.StoreBool(f.HasTangent)
		w.StoreBool(f.HasBinormal)
		w.StoreBool(f.HasColor)
		w.StoreByte(uint8(f.UVCount))
		w.StoreByte(uint8(f.BonesPerVertex))
		w.StoreByte(uint8(f.Winding))
	}

	w.StoreDword(uint32(len(m.frames)))
	for _, f := range m.frames {
		for _, x := range f.Transform {
			w.StoreDouble(x)
		}
		storeVec3(w, f.Plane.Normal)
		w.StoreDouble(f.Plane.D)
	}

	w.StoreDword(uint32(len(m.parts)))
	for _, p := range m.parts {
		w.StoreInt(p.Parent)
		w.StoreDword(uint32(p.Flags))
		w.StoreDword(uint32(len(p.Triangles)))
		for _, t := range p.Triangles {
			storeTriangle(w, t)
		}
		p.Hull.Serialize(w)
	}

	for _, kind := range embeddingKinds {
		var block bytes.Buffer
		if emb.Encode != nil {
			bw := stream.NewWriter(&block)
			if err := emb.Encode(bw, kind); err != nil {
				return fmt.Errorf("encode embedding %d: %w", kind, err)
			}
			if err := bw.Err(); err != nil {
				return fmt.Errorf("encode embedding %d: %w", kind, err)
			}
		}
		w.StoreDword(uint32(kind))
		w.StoreDword(uint32(block.Len()))
		w.StoreBuffer(block.Bytes())
	}
	return w.Err()
}

// Deserialize replaces m with a mesh read from r. On error m is unchanged.
func (m *Mesh) Deserialize(r *stream.Reader, emb Embedding) error {
	r.ExpectMagic(Magic)
	version := r.ReadDword()
	if err := r.Err(); err != nil {
		return fmt.Errorf("read header: %w", err)
	}
	if version == 0 || version > CurrentVersion {
		return fmt.Errorf("%w: %d", ErrUnsupportedVersion, version)
	}
	out := New()
	out.rootDepth = int(r.ReadDword())

	n := r.ReadCount(maxCount)
	for i := 0; i < n && r.Err() == nil; i++ {
		var s Submesh
		s.MaterialName = r.ReadString()
		s.Format.HasNormal = r.ReadBool()
		s.Format.HasTangent = r.ReadBool()
		s.Format.HasBinormal = r.ReadBool()
		s.Format.HasColor = r.ReadBool()
		s.Format.UVCount = int(r.ReadUint8())
		s.Format.BonesPerVertex = int(r.ReadUint8())
		s.Format.Winding = Winding(r.ReadUint8())
		out.submeshes = append(out.submeshes, s)
	}

	n = r.ReadCount(maxCount)
	for i := 0; i < n && r.Err() == nil; i++ {
		var f MaterialFrame
		for k := range f.Transform {
			f.Transform[k] = r.ReadDouble()
		}
		f.Plane.Normal = readVec3(r)
		f.Plane.D = r.ReadDouble()
		out.frames = append(out.frames, f)
	}

	n = r.ReadCount(maxCount)
	for i := 0; i < n && r.Err() == nil; i++ {
		parent := r.ReadInt()
		flags := PartFlags(r.ReadDword())
		tc := r.ReadCount(maxCount)
		tris := make([]Triangle, 0, tc)
		for k := 0; k < tc && r.Err() == nil; k++ {
			tris = append(tris, readTriangle(r))
		}
		if r.Err() != nil {
			break
		}
		if parent < -1 || parent >= i {
			return fmt.Errorf("%w: part %d parent %d", ErrInvalidMesh, i, parent)
		}
		idx := out.AddPart(parent, tris, flags)
		h, err := hull.Deserialize(r)
		if err != nil {
			return fmt.Errorf("part %d: %w", i, err)
		}
		out.parts[idx].Hull = h
	}

	for range embeddingKinds {
		kind := EmbeddingKind(r.ReadDword())
		size := r.ReadCount(stream.MaxBufferLen)
		if r.Err() != nil {
			break
		}
		block := make([]byte, size)
		r.ReadBuffer(block)
		if r.Err() != nil || size == 0 || emb.Decode == nil {
			continue
		}
		br := stream.NewReader(bytes.NewReader(block))
		if err := emb.Decode(br, kind, version); err != nil {
			return fmt.Errorf("decode embedding %d: %w", kind, err)
		}
	}
	if err := r.Err(); err != nil {
		return fmt.Errorf("read mesh: %w", err)
	}
	if err := out.Validate(); err != nil {
		return err
	}
	*m = *out
	return nil
}

func storeVec3(w *stream.Writer, v math.Vec3) {
	w.StoreDouble(v.X)
	w.StoreDouble(v.Y)
	w.StoreDouble(v.Z)
}

func readVec3(r *stream.Reader) math.Vec3 {
	return math.Vec3{X: r.ReadDouble(), Y: r.ReadDouble(), Z: r.ReadDouble()}
}

func storeTriangle(w *stream.Writer, t Triangle) {
	for _, v := range t.Vertices {
		storeVec3(w, v.Position)
		storeVec3(w, v.Normal)
		storeVec3(w, v.Tangent)
		storeVec3(w, v.Binormal)
		for _, uv := range v.UV {
			w.StoreDouble(uv.X)
			w.StoreDouble(uv.Y)
		}
		for _, c := range v.Color {
			w.StoreFloat(c)
		}
		for k := range v.BoneIndex {
			w.StoreWord(v.BoneIndex[k])
			w.StoreFloat(v.BoneWeight[k])
		}
	}
	w.StoreInt(t.SubmeshIndex)
	w.StoreDword(t.SmoothingMask)
	w.StoreInt(t.ExtraDataIndex)
	w.StoreDword(uint32(t.Flags))
}

func readTriangle(r *stream.Reader) Triangle {
	var t Triangle
	for i := range t.Vertices {
		v := &t.Vertices[i]
		v.Position = readVec3(r)
		v.Normal = readVec3(r)
		v.Tangent = readVec3(r)
		v.Binormal = readVec3(r)
		for k := range v.UV {
			v.UV[k] = math.Vec2{X: r.ReadDouble(), Y: r.ReadDouble()}
		}
		for k := range v.Color {
			v.Color[k] = r.ReadFloat()
		}
		for k := range v.BoneIndex {
			v.BoneIndex[k] = r.ReadWord()
			v.BoneWeight[k] = r.ReadFloat()
		}
	}
	t.SubmeshIndex = r.ReadInt()
	t.SmoothingMask = r.ReadDword()
	t.ExtraDataIndex = r.ReadInt()
	t.Flags = TriangleFlags(r.ReadDword())
	return t
}
