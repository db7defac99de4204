package authoring

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ftrvxmtrx/tga"
	"golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	"golang.org/x/image/webp"
)

// ErrImageFormat is returned when no decoder accepts a file.
var ErrImageFormat = errors.New("image: unknown format")

type decodeFunc func(io.Reader) (image.Image, error)

// decoders are picked by extension. The tga package registers itself with
// an empty magic that matches any input, so image.Decode is never used.
var decoders = map[string]decodeFunc{
	".png":  png.Decode,
	".jpg":  jpeg.Decode,
	".jpeg": jpeg.Decode,
	".gif":  gif.Decode,
	".bmp":  bmp.Decode,
	".webp": webp.Decode,
	".tga":  tga.Decode,
}

// sniffOrder is tried for unknown extensions; tga goes last since it has no
// signature to reject other formats with.
var sniffOrder = []string{".png", ".jpg", ".gif", ".bmp", ".webp", ".tga"}

// LoadImage decodes a png, jpeg, gif, bmp, webp or tga file.
func LoadImage(path string) (image.Image, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("image: read %s: %w", path, err)
	}
	img, err := DecodeImage(raw, filepath.Ext(path))
	if err != nil {
		return nil, fmt.Errorf("image: decode %s: %w", path, err)
	}
	return img, nil
}

// DecodeImage decodes raw with the decoder for ext, or with the first
// decoder that accepts it when ext is not known.
func DecodeImage(raw []byte, ext string) (image.Image, error) {
	if dec, ok := decoders[strings.ToLower(ext)]; ok {
		return dec(bytes.NewReader(raw))
	}
	for _, e := range sniffOrder {
		if img, err := decoders[e](bytes.NewReader(raw)); err == nil {
			return img, nil
		}
	}
	return nil, ErrImageFormat
}

// Grey converts img to a row-major 8-bit luminance buffer. Transparent
// pixels read as black. When maxSide is positive, images with a longer side
// are scaled down to it first.
func Grey(img image.Image, maxSide int) ([]byte, int, int) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if maxSide > 0 && (w > maxSide || h > maxSide) {
		if w >= h {
			w, h = maxSide, max(1, h*maxSide/w)
		} else {
			w, h = max(1, w*maxSide/h), maxSide
		}
	}
	dst := image.NewGray(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.Black), image.Point{}, draw.Src)
	if w == b.Dx() && h == b.Dy() {
		draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Over)
	} else {
		draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, b, draw.Over, nil)
	}
	return dst.Pix, w, h
}
