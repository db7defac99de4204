package main

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/Faultbox/fracture/pkg/hmesh"
)

func TestLoadMeshPrimitives(t *testing.T) {
	tests := []struct {
		src    string
		volume float64
		tol    float64
	}{
		{"box:2,1,1", 2, 1e-12},
		{"box:2", 8, 1e-12},
		{"sphere:1", 4.18879, 0.42},
		{"cylinder:2,0.5", 1.5708, 0.16},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			tris, subs, err := loadMesh(tt.src)
			if err != nil {
				t.Fatalf("loadMesh: %v", err)
			}
			if len(subs) != 1 {
				t.Errorf("submeshes = %d", len(subs))
			}
			if v := hmesh.TriangleVolume(tris); v < tt.volume-tt.tol || v > tt.volume+tt.tol {
				t.Errorf("volume = %v, want %v", v, tt.volume)
			}
		})
	}
}

func TestLoadMeshErrors(t *testing.T) {
	for _, src := range []string{"box:1,2", "torus:1", "box:a,b,c"} {
		if _, _, err := loadMesh(src); !errors.Is(err, errUsage) {
			t.Errorf("%s: err = %v, want usage error", src, err)
		}
	}
	if _, _, err := loadMesh(filepath.Join(t.TempDir(), "missing.obj")); err == nil {
		t.Error("expected error for missing obj")
	}
}

func TestLoadMeshOBJ(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tri.obj")
	os.WriteFile(path, []byte("v 0 0 0\nv 1 0 0\nv 0 1 0\nf 1 2 3\n"), 0644)
	tris, _, err := loadMesh(path)
	if err != nil || len(tris) != 1 {
		t.Fatalf("loadMesh = %d triangles, %v", len(tris), err)
	}
}

func TestBaseName(t *testing.T) {
	tests := map[string]string{
		"box:1,1,1":         "box",
		"meshes/statue.obj": "statue",
		"bricks.png":        "bricks",
	}
	for in, want := range tests {
		if got := baseName(in); got != want {
			t.Errorf("baseName(%q) = %q, want %q", in, got, want)
		}
	}
}
