package imaging

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"
)

func encodePNG(t *testing.T, w, h int, fill color.RGBA) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, fill)
		}
	}
	buf := &bytes.Buffer{}
	if err := png.Encode(buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func encodeJPEG(t *testing.T, w, h int, fill color.RGBA) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, fill)
		}
	}
	buf := &bytes.Buffer{}
	if err := jpeg.Encode(buf, img, nil); err != nil {
		t.Fatalf("encode jpeg: %v", err)
	}
	return buf.Bytes()
}

func TestNormalizeProducesSquareJPEG(t *testing.T) {
	red := color.RGBA{R: 220, G: 30, B: 30, A: 255}

	tests := []struct {
		name string
		data []byte
	}{
		{"wide png", encodePNG(t, 800, 200, red)},
		{"tall png", encodePNG(t, 200, 800, red)},
		{"small jpeg enlarged", encodeJPEG(t, 64, 64, red)},
		{"oversize jpeg shrunk", encodeJPEG(t, 2400, 1600, red)},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			out, err := Normalize(tc.data)
			if err != nil {
				t.Fatalf("Normalize: %v", err)
			}
			decoded, format, err := image.Decode(bytes.NewReader(out))
			if err != nil {
				t.Fatalf("decode output: %v", err)
			}
			if format != "jpeg" {
				t.Fatalf("output format = %q, want jpeg", format)
			}
			b := decoded.Bounds()
			if b.Dx() != CanvasSize || b.Dy() != CanvasSize {
				t.Fatalf("output bounds = %dx%d, want %dx%d", b.Dx(), b.Dy(), CanvasSize, CanvasSize)
			}
		})
	}
}

func TestNormalizeLetterboxesOnWhite(t *testing.T) {
	blue := color.RGBA{R: 20, G: 40, B: 200, A: 255}
	out, err := Normalize(encodePNG(t, 1000, 250, blue))
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	decoded, _, err := image.Decode(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("decode output: %v", err)
	}

	// Top edge is letterbox: should be (near) white.
	r, g, b, _ := decoded.At(CanvasSize/2, 4).RGBA()
	if r>>8 < 240 || g>>8 < 240 || b>>8 < 240 {
		t.Fatalf("letterbox pixel not white: %d %d %d", r>>8, g>>8, b>>8)
	}

	// Center carries the scaled image: should be (near) the source blue.
	r, g, b, _ = decoded.At(CanvasSize/2, CanvasSize/2).RGBA()
	if b>>8 < 150 || r>>8 > 120 {
		t.Fatalf("center pixel not source color: %d %d %d", r>>8, g>>8, b>>8)
	}
}

func TestNormalizeRejectsGarbage(t *testing.T) {
	if _, err := Normalize([]byte("definitely not an image")); err == nil {
		t.Fatal("Normalize accepted non-image data")
	}
	if _, err := Normalize(nil); err == nil {
		t.Fatal("Normalize accepted empty input")
	}
}
