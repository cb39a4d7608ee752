// Package imaging holds the pixel-buffer conversions shared by every stage:
// RGBA to grayscale or LAB, separable Gaussian blur, and ROI cropping.
// Every function returns a freshly allocated buffer.
package imaging

import (
	"github.com/andresmejia3/pipscan/internal/types"
	"github.com/lucasb-eyer/go-colorful"
)

// MaxBlurRadius keeps the binomial accumulators inside uint32.
const MaxBlurRadius = 8

// Buffer is a row-major pixel buffer with 1 to 3 interleaved channels.
type Buffer struct {
	Pix      []byte
	Width    int
	Height   int
	Channels int
}

// NewBuffer allocates a zeroed buffer.
func NewBuffer(width, height, channels int) Buffer {
	return Buffer{
		Pix:      make([]byte, width*height*channels),
		Width:    width,
		Height:   height,
		Channels: channels,
	}
}

// Clone returns a deep copy.
func (b Buffer) Clone() Buffer {
	out := b
	out.Pix = make([]byte, len(b.Pix))
	copy(out.Pix, b.Pix)
	return out
}

// Grayscale converts RGBA to single-channel luminance (0.299R + 0.587G + 0.114B).
func Grayscale(f types.Frame) Buffer {
	out := NewBuffer(f.Width, f.Height, 1)
	n := f.Width * f.Height
	for i := 0; i < n; i++ {
		off := i * 4
		r := uint32(f.Pix[off])
		g := uint32(f.Pix[off+1])
		b := uint32(f.Pix[off+2])
		out.Pix[i] = uint8((299*r + 587*g + 114*b + 500) / 1000)
	}
	return out
}

// Lab converts RGBA to 3-channel CIE L*a*b* packed into bytes.
// L is scaled from [0,1] to [0,255]; a and b are offset by 128 and clamped.
func Lab(f types.Frame) Buffer {
	out := NewBuffer(f.Width, f.Height, 3)
	n := f.Width * f.Height
	for i := 0; i < n; i++ {
		off := i * 4
		c := colorful.Color{
			R: float64(f.Pix[off]) / 255.0,
			G: float64(f.Pix[off+1]) / 255.0,
			B: float64(f.Pix[off+2]) / 255.0,
		}
		l, a, b := c.Lab()
		dst := i * 3
		out.Pix[dst] = clampByte(l * 255.0)
		out.Pix[dst+1] = clampByte(a*100.0 + 128.0)
		out.Pix[dst+2] = clampByte(b*100.0 + 128.0)
	}
	return out
}

// GaussianBlur applies a separable binomial kernel of width 2*radius+1 with edge clamping.
// A radius below 1 returns a copy; radii above MaxBlurRadius are clamped.
func GaussianBlur(src Buffer, radius int) Buffer {
	if radius < 1 || src.Width == 0 || src.Height == 0 {
		return src.Clone()
	}
	if radius > MaxBlurRadius {
		radius = MaxBlurRadius
	}
	kernel := binomialKernel(radius)
	var norm uint32
	for _, k := range kernel {
		norm += k
	}

	w, h, ch := src.Width, src.Height, src.Channels
	tmp := make([]uint32, len(src.Pix))

	// 1. Horizontal pass into an unnormalized accumulator
	for y := 0; y < h; y++ {
		row := y * w
		for x := 0; x < w; x++ {
			for c := 0; c < ch; c++ {
				var sum uint32
				for k := -radius; k <= radius; k++ {
					px := clampInt(x+k, 0, w-1)
					sum += kernel[k+radius] * uint32(src.Pix[(row+px)*ch+c])
				}
				tmp[(row+x)*ch+c] = sum
			}
		}
	}

	// 2. Vertical pass, normalizing by norm^2
	out := NewBuffer(w, h, ch)
	total := uint64(norm) * uint64(norm)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			for c := 0; c < ch; c++ {
				var sum uint64
				for k := -radius; k <= radius; k++ {
					py := clampInt(y+k, 0, h-1)
					sum += uint64(kernel[k+radius]) * uint64(tmp[(py*w+x)*ch+c])
				}
				out.Pix[(y*w+x)*ch+c] = uint8((sum + total/2) / total)
			}
		}
	}
	return out
}

// Crop copies the ROI out of src. The ROI is clipped to the buffer bounds.
func Crop(src Buffer, roi types.Roi) Buffer {
	x0 := clampInt(roi.X, 0, src.Width)
	y0 := clampInt(roi.Y, 0, src.Height)
	x1 := clampInt(roi.X+roi.Width, 0, src.Width)
	y1 := clampInt(roi.Y+roi.Height, 0, src.Height)
	cw, chh := x1-x0, y1-y0
	if cw <= 0 || chh <= 0 {
		return NewBuffer(0, 0, src.Channels)
	}

	out := NewBuffer(cw, chh, src.Channels)
	rowBytes := cw * src.Channels
	for y := 0; y < chh; y++ {
		srcOff := ((y0+y)*src.Width + x0) * src.Channels
		copy(out.Pix[y*rowBytes:(y+1)*rowBytes], src.Pix[srcOff:srcOff+rowBytes])
	}
	return out
}

// binomialKernel returns row 2*radius of Pascal's triangle.
func binomialKernel(radius int) []uint32 {
	n := 2*radius + 1
	k := make([]uint32, n)
	k[0] = 1
	for i := 1; i < n; i++ {
		for j := i; j > 0; j-- {
			k[j] += k[j-1]
		}
	}
	return k
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampByte(v float64) uint8 {
	if v <= 0 {
		return 0
	}
	if v >= 255 {
		return 255
	}
	return uint8(v + 0.5)
}
