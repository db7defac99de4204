package preview

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"golang.org/x/image/webp"

	"github.com/Faultbox/fracture/pkg/cutout"
)

func squareSet(t *testing.T) *cutout.Set {
	t.Helper()
	pix := make([]byte, 8*8)
	for y := 2; y < 6; y++ {
		for x := 2; x < 6; x++ {
			pix[y*8+x] = 255
		}
	}
	s := cutout.NewSet()
	if err := cutout.Build(s, pix, 8, 8, 0); err != nil {
		t.Fatal(err)
	}
	return s
}

func TestRender(t *testing.T) {
	img, err := Render(squareSet(t), 2)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 16 || b.Dy() != 16 {
		t.Fatalf("size = %v", b)
	}
	if c := img.NRGBAAt(0, 0); c != Background {
		t.Errorf("corner = %v, want background", c)
	}
	if c := img.NRGBAAt(8, 8); c != fill(0) {
		t.Errorf("center = %v, want fill", c)
	}
	if c := img.NRGBAAt(4, 8); c != Outline {
		t.Errorf("edge = %v, want outline", c)
	}
}

func TestRenderEmpty(t *testing.T) {
	if _, err := Render(nil, 1); !errors.Is(err, ErrEmptySet) {
		t.Errorf("err = %v", err)
	}
	if _, err := Render(cutout.NewSet(), 1); !errors.Is(err, ErrEmptySet) {
		t.Errorf("err = %v", err)
	}
}

func TestWriteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "square.webp")
	if err := WriteFile(path, squareSet(t), 3); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	cfg, err := webp.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode webp: %v", err)
	}
	if cfg.Width != 24 || cfg.Height != 24 {
		t.Errorf("webp %dx%d, want 24x24", cfg.Width, cfg.Height)
	}
}
