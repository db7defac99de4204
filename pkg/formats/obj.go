package formats

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/Faultbox/fracture/pkg/hmesh"
	"github.com/Faultbox/fracture/pkg/math"
)

// OBJ format errors.
var (
	ErrOBJSyntax      = errors.New("obj: malformed statement")
	ErrOBJIndex       = errors.New("obj: index out of range")
	ErrOBJNoFaces     = errors.New("obj: no faces")
	ErrOBJDegenerate  = errors.New("obj: face has fewer than 3 vertices")
	ErrOBJUnsupported = errors.New("obj: unsupported part depth")
)

// OBJCorner references the position, texture coordinate and normal of one
// face corner. Missing references are -1.
type OBJCorner struct {
	Position int
	UV       int
	Normal   int
}

// OBJFace is a polygon of an OBJ file.
type OBJFace struct {
	Corners  []OBJCorner
	Material string
	Group    string
}

// OBJ is a parsed Wavefront OBJ file.
type OBJ struct {
	Positions []math.Vec3
	UVs       []math.Vec2
	Normals   []math.Vec3
	Faces     []OBJFace
	// Materials lists usemtl names in first-use order.
	Materials []string
}

// LoadOBJ reads and parses an OBJ file from disk.
func LoadOBJ(path string) (*OBJ, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading obj: %w", err)
	}
	return ParseOBJ(data)
}

// ParseOBJ parses the geometry statements of an OBJ file. Statements other
// than v, vt, vn, f, g, o and usemtl are ignored.
func ParseOBJ(data []byte) (*OBJ, error) {
	obj := &OBJ{}
	material, group := "", ""
	seen := map[string]bool{}

	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		text := sc.Text()
		if i := strings.IndexByte(text, '#'); i >= 0 {
			text = text[:i]
		}
		fields := strings.Fields(text)
		if len(fields) == 0 {
			continue
		}
		args := fields[1:]
		var err error
		switch fields[0] {
		case "v":
			var v math.Vec3
			v, err = parseVec3(args)
			obj.Positions = append(obj.Positions, v)
		case "vn":
			var v math.Vec3
			v, err = parseVec3(args)
			obj.Normals = append(obj.Normals, v)
		case "vt":
			var f []float64
			f, err = parseFloats(args, 1)
			if err == nil {
				uv := math.Vec2{X: f[0]}
				if len(f) > 1 {
					uv.Y = f[1]
				}
				obj.UVs = append(obj.UVs, uv)
			}
		case "f":
			var face OBJFace
			face, err = obj.parseFace(args)
			face.Material, face.Group = material, group
			obj.Faces = append(obj.Faces, face)
		case "usemtl":
			material = strings.Join(args, " ")
			if !seen[material] {
				seen[material] = true
				obj.Materials = append(obj.Materials, material)
			}
		case "g", "o":
			group = strings.Join(args, " ")
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading obj: %w", err)
	}
	if len(obj.Faces) == 0 {
		return nil, ErrOBJNoFaces
	}
	return obj, nil
}

func parseFloats(args []string, min int) ([]float64, error) {
	if len(args) < min {
		return nil, fmt.Errorf("%w: need %d values, got %d", ErrOBJSyntax, min, len(args))
	}
	out := make([]float64, len(args))
	for i, a := range args {
		f, err := strconv.ParseFloat(a, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrOBJSyntax, err)
		}
		out[i] = f
	}
	return out, nil
}

func parseVec3(args []string) (math.Vec3, error) {
	f, err := parseFloats(args, 3)
	if err != nil {
		return math.Vec3{}, err
	}
	return math.Vec3{X: f[0], Y: f[1], Z: f[2]}, nil
}

func (o *OBJ) parseFace(args []string) (OBJFace, error) {
	if len(args) < 3 {
		return OBJFace{}, ErrOBJDegenerate
	}
	face := OBJFace{Corners: make([]OBJCorner, len(args))}
	for i, a := range args {
		parts := strings.Split(a, "/")
		if len(parts) > 3 {
			return OBJFace{}, fmt.Errorf("%w: corner %q", ErrOBJSyntax, a)
		}
		c := OBJCorner{Position: -1, UV: -1, Normal: -1}
		var err error
		if c.Position, err = resolveIndex(parts[0], len(o.Positions)); err != nil {
			return OBJFace{}, err
		}
		if c.Position < 0 {
			return OBJFace{}, fmt.Errorf("%w: corner %q has no position", ErrOBJSyntax, a)
		}
		if len(parts) > 1 {
			if c.UV, err = resolveIndex(parts[1], len(o.UVs)); err != nil {
				return OBJFace{}, err
			}
		}
		if len(parts) > 2 {
			if c.Normal, err = resolveIndex(parts[2], len(o.Normals)); err != nil {
				return OBJFace{}, err
			}
		}
		face.Corners[i] = c
	}
	return face, nil
}

// resolveIndex turns a 1-based or negative relative OBJ index into a
// 0-based one. An empty reference gives -1.
func resolveIndex(s string, count int) (int, error) {
	if s == "" {
		return -1, nil
	}
	i, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%w: index %q", ErrOBJSyntax, s)
	}
	switch {
	case i > 0:
		i--
	case i < 0:
		i = count + i
	default:
		return 0, fmt.Errorf("%w: zero index", ErrOBJIndex)
	}
	if i < 0 || i >= count {
		return 0, fmt.Errorf("%w: %s of %d", ErrOBJIndex, s, count)
	}
	return i, nil
}

// Triangles fan-triangulates the faces. Faces are assigned to submeshes in
// material order; the returned submesh list has one entry per material, or
// a single "default" entry when the file names none.
func (o *OBJ) Triangles() ([]hmesh.Triangle, []hmesh.Submesh) {
	names := o.Materials
	if len(names) == 0 {
		names = []string{"default"}
	}
	index := map[string]int{}
	subs := make([]hmesh.Submesh, len(names))
	for i, n := range names {
		index[n] = i
		subs[i] = hmesh.Submesh{
			MaterialName: n,
			Format: hmesh.VertexFormat{
				HasNormal: len(o.Normals) > 0,
				UVCount:   min(1, len(o.UVs)),
			},
		}
	}

	var tris []hmesh.Triangle
	for _, f := range o.Faces {
		sub := index[f.Material]
		corners := make([]hmesh.Vertex, len(f.Corners))
		for i, c := range f.Corners {
			v := hmesh.Vertex{Position: o.Positions[c.Position], Color: [4]float32{1, 1, 1, 1}}
			if c.UV >= 0 {
				v.UV[0] = o.UVs[c.UV]
			}
			if c.Normal >= 0 {
				v.Normal = o.Normals[c.Normal].Normalize()
			}
			corners[i] = v
		}
		for i := 1; i+1 < len(corners); i++ {
			t := hmesh.Triangle{
				Vertices:       [3]hmesh.Vertex{corners[0], corners[i], corners[i+1]},
				SubmeshIndex:   sub,
				ExtraDataIndex: -1,
			}
			if len(o.Normals) == 0 {
				n := t.Normal()
				for k := range t.Vertices {
					t.Vertices[k].Normal = n
				}
			}
			if t.Area() > 0 {
				tris = append(tris, t)
			}
		}
	}
	return tris, subs
}

// WriteOBJ writes the parts of m at depth as one group per part. Negative
// depth writes the leaves. Interior faces use a material named after the
// submesh with an "_interior" suffix.
func WriteOBJ(w io.Writer, m *hmesh.Mesh, depth int) error {
	var parts []int
	if depth < 0 {
		for i := 0; i < m.PartCount(); i++ {
			if m.IsLeaf(i) {
				parts = append(parts, i)
			}
		}
	} else {
		if depth > m.MaxDepth() {
			return fmt.Errorf("%w: %d > %d", ErrOBJUnsupported, depth, m.MaxDepth())
		}
		parts = m.PartsAtDepth(depth)
	}

	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "# %d parts\n", len(parts))
	base := 1
	for _, p := range parts {
		fmt.Fprintf(bw, "g part%d\n", p)
		tris := m.MeshTriangles(p)
		for _, t := range tris {
			for _, v := range t.Vertices {
				fmt.Fprintf(bw, "v %s %s %s\n", ftoa(v.Position.X), ftoa(v.Position.Y), ftoa(v.Position.Z))
			}
		}
		for _, t := range tris {
			for _, v := range t.Vertices {
				fmt.Fprintf(bw, "vt %s %s\n", ftoa(v.UV[0].X), ftoa(v.UV[0].Y))
			}
		}
		for _, t := range tris {
			for _, v := range t.Vertices {
				fmt.Fprintf(bw, "vn %s %s %s\n", ftoa(v.Normal.X), ftoa(v.Normal.Y), ftoa(v.Normal.Z))
			}
		}
		material := ""
		for k, t := range tris {
			name := materialName(m, t)
			if name != material {
				fmt.Fprintf(bw, "usemtl %s\n", name)
				material = name
			}
			a := base + 3*k
			fmt.Fprintf(bw, "f %d/%d/%d %d/%d/%d %d/%d/%d\n", a, a, a, a+1, a+1, a+1, a+2, a+2, a+2)
		}
		base += 3 * len(tris)
	}
	return bw.Flush()
}

func materialName(m *hmesh.Mesh, t hmesh.Triangle) string {
	name := "default"
	if t.SubmeshIndex >= 0 && t.SubmeshIndex < m.SubmeshCount() {
		if n := m.Submesh(t.SubmeshIndex).MaterialName; n != "" {
			name = n
		}
	}
	if t.Flags&hmesh.TriangleInterior != 0 {
		name += "_interior"
	}
	return strings.ReplaceAll(name, " ", "_")
}

func ftoa(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}
