package segment

// Otsu picks the split point of an 8-bit buffer that maximizes the
// between-class variance w_B*w_F*(mu_B-mu_F)^2, using running sums.
// A single-valued or empty buffer returns that value (or 0) without dividing by zero.
func Otsu(pix []byte) uint8 {
	var hist [256]int
	for _, v := range pix {
		hist[v]++
	}
	total := len(pix)
	if total == 0 {
		return 0
	}

	var sum float64
	for i := 0; i < 256; i++ {
		sum += float64(i) * float64(hist[i])
	}

	var sumB float64
	var wB int
	var maximum float64
	level := -1

	for t := 0; t < 256; t++ {
		wB += hist[t]
		if wB == 0 {
			continue
		}
		wF := total - wB
		if wF == 0 {
			break
		}

		sumB += float64(t) * float64(hist[t])
		mB := sumB / float64(wB)
		mF := (sum - sumB) / float64(wF)

		between := float64(wB) * float64(wF) * (mB - mF) * (mB - mF)
		if between > maximum {
			maximum = between
			level = t
		}
	}

	if level < 0 {
		// Degenerate histogram: every pixel has the same value.
		return pix[0]
	}
	return uint8(level)
}

// Binarize maps pixels above t to 255 and the rest to 0.
func Binarize(pix []byte, t uint8) []byte {
	out := make([]byte, len(pix))
	for i, v := range pix {
		if v > t {
			out[i] = 255
		}
	}
	return out
}

// BinarizeInverse maps pixels at or below t to 255 and the rest to 0,
// turning dark marks on a light surface into foreground.
func BinarizeInverse(pix []byte, t uint8) []byte {
	out := make([]byte, len(pix))
	for i, v := range pix {
		if v <= t {
			out[i] = 255
		}
	}
	return out
}
