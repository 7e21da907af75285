// Package phash reduces images to fixed-size perceptual fingerprints for
// cheap change detection between consecutive captures of the same monitor.
package phash

import (
	"encoding/hex"
	"image"
	"math/bits"

	"golang.org/x/image/draw"
)

const (
	gridSize = 16

	// Bits is the fingerprint width: one bit per grid cell.
	Bits = gridSize * gridSize
)

// Fingerprint is a 256-bit mean-threshold hash of a downsampled
// grayscale image. Bit i lives at fp[i/8], most significant bit first.
type Fingerprint [Bits / 8]byte

// String renders the fingerprint as hex for logs.
func (f Fingerprint) String() string {
	return hex.EncodeToString(f[:])
}

// Hash fingerprints an image: downsample to a 16x16 grid, convert each
// cell to luma with the standard weighted RGB conversion, then set a
// cell's bit when its luma exceeds the grid mean.
//
// Pure and deterministic; identical images always hash identically.
// Known degenerate case: a solid-color image has every cell equal to
// the mean, so all solid colors collapse to the zero fingerprint and
// two differently-colored uniform frames compare as identical.
func Hash(img image.Image) Fingerprint {
	small := image.NewRGBA(image.Rect(0, 0, gridSize, gridSize))
	draw.ApproxBiLinear.Scale(small, small.Bounds(), img, img.Bounds(), draw.Src, nil)

	var luma [Bits]uint32
	var sum uint64
	for y := 0; y < gridSize; y++ {
		for x := 0; x < gridSize; x++ {
			r, g, b, _ := small.At(x, y).RGBA()
			// RGBA returns 16-bit channels; weigh as 8-bit values.
			l := (299*(r>>8) + 587*(g>>8) + 114*(b>>8)) / 1000
			luma[y*gridSize+x] = l
			sum += uint64(l)
		}
	}

	mean := uint32(sum / Bits)

	var fp Fingerprint
	for i, l := range luma {
		if l > mean {
			fp[i/8] |= 1 << (7 - i%8)
		}
	}
	return fp
}

// Distance returns the Hamming distance between two fingerprints,
// in [0, 256]. Zero iff the fingerprints are equal.
func Distance(a, b Fingerprint) int {
	d := 0
	for i := range a {
		d += bits.OnesCount8(a[i] ^ b[i])
	}
	return d
}
