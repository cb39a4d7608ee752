// Package morph implements square-kernel grayscale morphology on single-channel buffers.
package morph

// Dilate replaces each pixel with the maximum over its (2r+1)x(2r+1) neighborhood, repeated iterations times.
func Dilate(src []byte, w, h, radius, iterations int) []byte {
	out := clone(src)
	for i := 0; i < iterations; i++ {
		out = pass(out, w, h, radius, true)
	}
	return out
}

// Erode replaces each pixel with the minimum over its neighborhood, repeated iterations times.
// Pixels outside the buffer count as background (0), so foreground touching the edge shrinks.
func Erode(src []byte, w, h, radius, iterations int) []byte {
	out := clone(src)
	for i := 0; i < iterations; i++ {
		out = pass(out, w, h, radius, false)
	}
	return out
}

// Close dilates then erodes with the same kernel, bridging gaps narrower than the kernel.
func Close(src []byte, w, h, radius, iterations int) []byte {
	return Erode(Dilate(src, w, h, radius, iterations), w, h, radius, iterations)
}

// pass runs one separable max (dilate) or min (erode) filter.
// A square kernel decomposes into a horizontal and a vertical line kernel.
func pass(src []byte, w, h, radius int, dilate bool) []byte {
	if radius < 1 || w == 0 || h == 0 {
		return clone(src)
	}
	tmp := make([]byte, len(src))
	for y := 0; y < h; y++ {
		row := y * w
		for x := 0; x < w; x++ {
			tmp[row+x] = reduce(dilate, func(k int) (byte, bool) {
				px := x + k
				if px < 0 || px >= w {
					return 0, false
				}
				return src[row+px], true
			}, radius)
		}
	}

	out := make([]byte, len(src))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			out[y*w+x] = reduce(dilate, func(k int) (byte, bool) {
				py := y + k
				if py < 0 || py >= h {
					return 0, false
				}
				return tmp[py*w+x], true
			}, radius)
		}
	}
	return out
}

func reduce(dilate bool, at func(k int) (byte, bool), radius int) byte {
	if dilate {
		var m byte
		for k := -radius; k <= radius; k++ {
			if v, ok := at(k); ok && v > m {
				m = v
			}
		}
		return m
	}
	m := byte(255)
	for k := -radius; k <= radius; k++ {
		v, ok := at(k)
		if !ok {
			return 0
		}
		if v < m {
			m = v
		}
	}
	return m
}

func clone(src []byte) []byte {
	out := make([]byte, len(src))
	copy(out, src)
	return out
}
