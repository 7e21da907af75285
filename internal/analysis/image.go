package analysis

import (
	"bytes"
	"image"
	"image/jpeg"
	_ "image/png"
	"os"

	"golang.org/x/image/draw"
)

// Image preprocessing modes, stored in the image_mode setting.
// Downscale trades detail for payload size; full sends the stored PNG
// bytes untouched.
const (
	ImageModeDownscale = "downscale"
	ImageModeFull      = "full"
)

const (
	maxAnalysisDim = 1568
	jpegQuality    = 80
)

// EncodeImage loads a stored screenshot and prepares the provider
// payload. Mode "full" returns the original PNG bytes; anything else
// downscales to maxAnalysisDim on the longest side and re-encodes as
// JPEG.
func EncodeImage(path, mode string) ([]byte, string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, "", err
	}
	if mode == ImageModeFull {
		return raw, "image/png", nil
	}

	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, "", err
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, downscale(img, maxAnalysisDim), &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), "image/jpeg", nil
}

// downscale resizes img so its longest side is at most maxDim,
// preserving aspect ratio. Images already within bounds pass through.
func downscale(img image.Image, maxDim int) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= maxDim && h <= maxDim {
		return img
	}

	nw, nh := maxDim, h*maxDim/w
	if h > w {
		nw, nh = w*maxDim/h, maxDim
	}
	if nw < 1 {
		nw = 1
	}
	if nh < 1 {
		nh = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, nw, nh))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}
