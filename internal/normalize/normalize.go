// Package normalize produces the canonical 64x64 face tile compared by both analyzers.
package normalize

import (
	"github.com/andresmejia3/pipscan/internal/imaging"
	"github.com/andresmejia3/pipscan/internal/morph"
	"github.com/andresmejia3/pipscan/internal/segment"
	"github.com/andresmejia3/pipscan/internal/types"
)

const (
	dilateRadius     = 1 // 3x3 kernel
	dilateIterations = 2

	// silhouetteInset trims the die outline on the tile, where blurred surface pixels sit.
	silhouetteInset = 2
)

// ResizeTo64 resamples a single-channel buffer to FaceSize x FaceSize with nearest-neighbor sampling.
// A buffer already at that size is copied.
func ResizeTo64(src []byte, w, h int) []byte {
	const n = types.FaceSize
	out := make([]byte, types.FacePixels)
	if w == n && h == n {
		copy(out, src)
		return out
	}
	if w <= 0 || h <= 0 {
		return out
	}
	for y := 0; y < n; y++ {
		sy := y * h / n
		for x := 0; x < n; x++ {
			sx := x * w / n
			out[y*n+x] = src[sy*w+sx]
		}
	}
	return out
}

// Dilate thickens pip blobs on a binarized tile with a 3x3 kernel, two iterations.
func Dilate(tile []byte) []byte {
	return morph.Dilate(tile, types.FaceSize, types.FaceSize, dilateRadius, dilateIterations)
}

// Binarize splits a grayscale tile at its Otsu level, making the dark marks (pips) the 255 foreground.
// A tile without contrast becomes all background.
func Binarize(tile []byte) []byte {
	if flat(tile) {
		return make([]byte, len(tile))
	}
	return segment.BinarizeInverse(tile, segment.Otsu(tile))
}

// Face crops the ROI out of a grayscale frame and returns its normalized tile:
// resize to 64x64, Otsu binarization (pips as foreground), then 3x3 dilation.
func Face(gray imaging.Buffer, roi types.Roi) types.NormalizedFace {
	crop := imaging.Crop(gray, roi)
	tile := ResizeTo64(crop.Pix, crop.Width, crop.Height)
	return types.NormalizedFace(Dilate(Binarize(tile)))
}

// FaceWithin is Face restricted to the die silhouette taken from the frame's
// segmentation mask. Pixels outside it neither move the Otsu level nor become pips,
// so surface showing in the corners of a tilted die's box stays background.
func FaceWithin(gray imaging.Buffer, mask []byte, roi types.Roi) types.NormalizedFace {
	const n = types.FaceSize
	crop := imaging.Crop(gray, roi)
	tile := ResizeTo64(crop.Pix, crop.Width, crop.Height)

	m := imaging.Crop(imaging.Buffer{Pix: mask, Width: gray.Width, Height: gray.Height, Channels: 1}, roi)
	inside := Silhouette(ResizeTo64(m.Pix, m.Width, m.Height))
	inside = morph.Erode(inside, n, n, silhouetteInset, 1)

	return types.NormalizedFace(Dilate(binarizeWithin(tile, inside)))
}

// Silhouette fills each row of a FaceSize tile mask between its first and last foreground pixel.
// Pips darker than the surface can drop out of the segmentation mask; they lie inside the span.
func Silhouette(mask []byte) []byte {
	const n = types.FaceSize
	out := make([]byte, len(mask))
	for y := 0; y < n; y++ {
		row := mask[y*n : (y+1)*n]
		first, last := -1, -1
		for x, v := range row {
			if v != 0 {
				if first < 0 {
					first = x
				}
				last = x
			}
		}
		for x := first; first >= 0 && x <= last; x++ {
			out[y*n+x] = 255
		}
	}
	return out
}

func binarizeWithin(tile, inside []byte) []byte {
	out := make([]byte, len(tile))
	die := make([]byte, 0, len(tile))
	for i, v := range tile {
		if inside[i] != 0 {
			die = append(die, v)
		}
	}
	if len(die) == 0 || flat(die) {
		return out
	}
	t := segment.Otsu(die)
	for i, v := range tile {
		if inside[i] != 0 && v <= t {
			out[i] = 255
		}
	}
	return out
}

func flat(pix []byte) bool {
	for _, v := range pix {
		if v != pix[0] {
			return false
		}
	}
	return true
}
