// Package segment separates dice from the empty-surface reference:
// per-pixel difference against a captured background, then an Otsu split
// with a noise floor, yielding a {0,255} mask.
package segment

import (
	"github.com/andresmejia3/pipscan/internal/imaging"
	"github.com/andresmejia3/pipscan/internal/types"
)

// DefaultFloor is the minimum difference threshold so a noisy empty frame yields no foreground.
const DefaultFloor = 15

// ColorSpace selects how frames are compared against the background.
type ColorSpace string

const (
	Gray ColorSpace = "gray"
	Lab  ColorSpace = "lab"
)

// Options control background capture and segmentation.
type Options struct {
	ColorSpace ColorSpace
	BlurRadius int
	Floor      uint8
}

// DefaultOptions returns grayscale comparison, a radius-2 blur and the default floor.
func DefaultOptions() Options {
	return Options{ColorSpace: Gray, BlurRadius: 2, Floor: DefaultFloor}
}

// Background is the empty-surface reference of one session.
type Background struct {
	Buffer     imaging.Buffer
	ColorSpace ColorSpace
}

// Capture converts the frame into the comparison color space and blurs it.
// The frame must show the surface with no dice on it; that cannot be checked here.
func Capture(frame types.Frame, opts Options) Background {
	return Background{
		Buffer:     prepare(frame, opts),
		ColorSpace: opts.ColorSpace,
	}
}

// Segment returns a binary mask (0 or 255 per pixel) of where the frame differs from the background.
// A frame whose dimensions do not match the background yields an all-zero mask.
func Segment(frame types.Frame, bg Background, opts Options) []byte {
	mask := make([]byte, frame.Width*frame.Height)
	if bg.Buffer.Width != frame.Width || bg.Buffer.Height != frame.Height {
		return mask
	}

	opts.ColorSpace = bg.ColorSpace
	cur := prepare(frame, opts)
	diff := Difference(cur, bg.Buffer)

	t := Otsu(diff)
	if t < opts.Floor {
		t = opts.Floor
	}
	for i, d := range diff {
		if d > t {
			mask[i] = 255
		}
	}
	return mask
}

// Difference computes a single-channel difference map. For multi-channel buffers
// each pixel takes the largest per-channel absolute difference, so a die can
// stand out in lightness or in color alone.
func Difference(a, b imaging.Buffer) []byte {
	n := a.Width * a.Height
	out := make([]byte, n)
	ch := a.Channels
	for i := 0; i < n; i++ {
		var best byte
		for c := 0; c < ch; c++ {
			d := absDiff(a.Pix[i*ch+c], b.Pix[i*ch+c])
			if d > best {
				best = d
			}
		}
		out[i] = best
	}
	return out
}

func prepare(frame types.Frame, opts Options) imaging.Buffer {
	var buf imaging.Buffer
	if opts.ColorSpace == Lab {
		buf = imaging.Lab(frame)
	} else {
		buf = imaging.Grayscale(frame)
	}
	return imaging.GaussianBlur(buf, opts.BlurRadius)
}

func absDiff(a, b byte) byte {
	if a > b {
		return a - b
	}
	return b - a
}
