package segment

import (
	"math/rand"
	"testing"

	"github.com/andresmejia3/pipscan/internal/types"
)

func grayFrame(w, h int, v uint8) types.Frame {
	pix := make([]byte, w*h*4)
	for i := 0; i < w*h; i++ {
		pix[i*4] = v
		pix[i*4+1] = v
		pix[i*4+2] = v
		pix[i*4+3] = 255
	}
	return types.Frame{Pix: pix, Width: w, Height: h}
}

func fillRect(f types.Frame, x0, y0, w, h int, r, g, b uint8) {
	for y := y0; y < y0+h; y++ {
		for x := x0; x < x0+w; x++ {
			off := (y*f.Width + x) * 4
			f.Pix[off] = r
			f.Pix[off+1] = g
			f.Pix[off+2] = b
		}
	}
}

func noisyFrame(w, h int, seed int64) types.Frame {
	rng := rand.New(rand.NewSource(seed))
	pix := make([]byte, w*h*4)
	rng.Read(pix)
	return types.Frame{Pix: pix, Width: w, Height: h}
}

func TestSegmentSelfIsEmpty(t *testing.T) {
	frames := map[string]types.Frame{
		"Uniform gray": grayFrame(32, 24, 128),
		"Random noise": noisyFrame(40, 30, 7),
	}
	for _, space := range []ColorSpace{Gray, Lab} {
		for name, f := range frames {
			t.Run(string(space)+"/"+name, func(t *testing.T) {
				opts := DefaultOptions()
				opts.ColorSpace = space
				bg := Capture(f, opts)
				mask := Segment(f, bg, opts)
				for i, v := range mask {
					if v != 0 {
						t.Fatalf("Expected empty mask, pixel %d = %d", i, v)
					}
				}
			})
		}
	}
}

func TestSegmentFindsSquare(t *testing.T) {
	opts := DefaultOptions()
	bg := Capture(grayFrame(64, 64, 128), opts)

	frame := grayFrame(64, 64, 128)
	fillRect(frame, 20, 20, 16, 16, 255, 255, 255)
	mask := Segment(frame, bg, opts)

	if mask[28*64+28] != 255 {
		t.Error("Expected square center in foreground")
	}
	if mask[2*64+2] != 0 {
		t.Error("Expected far corner in background")
	}
	for i, v := range mask {
		if v != 0 && v != 255 {
			t.Fatalf("Mask pixel %d = %d, expected 0 or 255", i, v)
		}
	}
}

func TestSegmentLabCatchesColorOnlyChange(t *testing.T) {
	// Two colors with almost the same luminance differ only in chroma.
	bgFrame := grayFrame(48, 48, 0)
	fillRect(bgFrame, 0, 0, 48, 48, 120, 120, 120)
	frame := grayFrame(48, 48, 0)
	fillRect(frame, 0, 0, 48, 48, 120, 120, 120)
	fillRect(frame, 16, 16, 16, 16, 170, 100, 120)

	opts := DefaultOptions()
	opts.ColorSpace = Lab
	mask := Segment(frame, Capture(bgFrame, opts), opts)
	if mask[24*48+24] != 255 {
		t.Error("Expected LAB segmentation to detect a chroma-only change")
	}
}

func TestSegmentDimensionMismatch(t *testing.T) {
	opts := DefaultOptions()
	bg := Capture(grayFrame(10, 10, 0), opts)
	mask := Segment(grayFrame(12, 12, 255), bg, opts)
	if len(mask) != 144 {
		t.Fatalf("Expected mask sized to the frame, got %d", len(mask))
	}
	for _, v := range mask {
		if v != 0 {
			t.Fatal("Expected empty mask on dimension mismatch")
		}
	}
}

func TestOtsu(t *testing.T) {
	t.Run("Bimodal", func(t *testing.T) {
		pix := make([]byte, 100)
		for i := range pix {
			if i < 50 {
				pix[i] = 20
			} else {
				pix[i] = 200
			}
		}
		th := Otsu(pix)
		if th < 20 || th >= 200 {
			t.Errorf("Otsu() = %d, expected a split in [20, 200)", th)
		}
	})

	t.Run("Single valued", func(t *testing.T) {
		pix := make([]byte, 50)
		for i := range pix {
			pix[i] = 77
		}
		// Must not panic or divide by zero; any value is acceptable.
		_ = Otsu(pix)
	})

	t.Run("Empty", func(t *testing.T) {
		if th := Otsu(nil); th != 0 {
			t.Errorf("Otsu(nil) = %d, want 0", th)
		}
	})
}

func TestBinarizeAtOtsuIsBinary(t *testing.T) {
	inputs := [][]byte{
		noisyFrame(16, 16, 1).Pix,
		noisyFrame(16, 16, 2).Pix,
		make([]byte, 64),
		{255, 255, 255},
	}
	for i, in := range inputs {
		for j, v := range Binarize(in, Otsu(in)) {
			if v != 0 && v != 255 {
				t.Fatalf("Input %d pixel %d = %d, expected 0 or 255", i, j, v)
			}
		}
	}
}

func TestBinarizeInverse(t *testing.T) {
	out := BinarizeInverse([]byte{0, 100, 101, 255}, 100)
	want := []byte{255, 255, 0, 0}
	for i := range want {
		if out[i] != want[i] {
			t.Errorf("BinarizeInverse()[%d] = %d, want %d", i, out[i], want[i])
		}
	}
}
