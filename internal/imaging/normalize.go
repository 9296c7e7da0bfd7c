// Package imaging normalizes uploads before generation: every input becomes
// a letterboxed JPEG on a fixed square canvas so providers always see the
// same geometry regardless of what the user sent.
package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	_ "image/png"
	"net/http"

	webpdecoder "github.com/kolesa-team/go-webp/decoder"
	"github.com/kolesa-team/go-webp/webp"
	xdraw "golang.org/x/image/draw"
)

const (
	// CanvasSize is the side length of the normalized square canvas.
	CanvasSize = 1024
	// jpegQuality matches the catalog output quality.
	jpegQuality = 90
)

// Normalize decodes JPEG, PNG or WebP input, scales it to fit within the
// square canvas (enlarging small images), centers it on a white background
// and re-encodes as JPEG.
func Normalize(data []byte) ([]byte, error) {
	img, err := decode(data)
	if err != nil {
		return nil, err
	}

	bounds := img.Bounds()
	srcW, srcH := bounds.Dx(), bounds.Dy()
	if srcW <= 0 || srcH <= 0 {
		return nil, fmt.Errorf("imaging: empty image %dx%d", srcW, srcH)
	}

	// Fit within the canvas, preserving aspect ratio.
	dstW, dstH := CanvasSize, CanvasSize
	if srcW >= srcH {
		dstH = srcH * CanvasSize / srcW
	} else {
		dstW = srcW * CanvasSize / srcH
	}
	if dstW < 1 {
		dstW = 1
	}
	if dstH < 1 {
		dstH = 1
	}

	canvas := image.NewRGBA(image.Rect(0, 0, CanvasSize, CanvasSize))
	draw.Draw(canvas, canvas.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)

	offsetX := (CanvasSize - dstW) / 2
	offsetY := (CanvasSize - dstH) / 2
	target := image.Rect(offsetX, offsetY, offsetX+dstW, offsetY+dstH)
	xdraw.CatmullRom.Scale(canvas, target, img, bounds, xdraw.Over, nil)

	buf := &bytes.Buffer{}
	if err := jpeg.Encode(buf, canvas, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, fmt.Errorf("imaging: encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

func decode(data []byte) (image.Image, error) {
	if http.DetectContentType(data) == "image/webp" {
		img, err := webp.Decode(bytes.NewReader(data), &webpdecoder.Options{})
		if err != nil {
			return nil, fmt.Errorf("imaging: decode webp: %w", err)
		}
		return img, nil
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("imaging: decode image: %w", err)
	}
	return img, nil
}
