package match

import (
	"math"
	"testing"

	"github.com/andresmejia3/pipscan/internal/types"
)

func disk(tile types.NormalizedFace, cx, cy, r int) {
	for y := cy - r; y <= cy+r; y++ {
		for x := cx - r; x <= cx+r; x++ {
			dx, dy := x-cx, y-cy
			if dx*dx+dy*dy <= r*r {
				tile[y*64+x] = 255
			}
		}
	}
}

func threeFace() types.NormalizedFace {
	tile := make(types.NormalizedFace, types.FacePixels)
	disk(tile, 16, 16, 6)
	disk(tile, 32, 32, 6)
	disk(tile, 48, 48, 6)
	return tile
}

func twoFace() types.NormalizedFace {
	tile := make(types.NormalizedFace, types.FacePixels)
	disk(tile, 16, 16, 6)
	disk(tile, 48, 48, 6)
	return tile
}

func fourFace() types.NormalizedFace {
	tile := make(types.NormalizedFace, types.FacePixels)
	for _, p := range [][2]int{{16, 16}, {48, 16}, {16, 48}, {48, 48}} {
		disk(tile, p[0], p[1], 6)
	}
	return tile
}

func solid(v byte) types.NormalizedFace {
	tile := make(types.NormalizedFace, types.FacePixels)
	for i := range tile {
		tile[i] = v
	}
	return tile
}

func equal(a, b types.NormalizedFace) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestRotateImageFullTurnIsIdentity(t *testing.T) {
	img := threeFace()
	img[3] = 77 // break symmetry
	for _, deg := range []float64{0, 360, -360, 720} {
		if !equal(RotateImage(img, deg), img) {
			t.Errorf("RotateImage(img, %v) differs from img", deg)
		}
	}
}

func TestRotateImageQuarterTurnRoundTrip(t *testing.T) {
	img := make(types.NormalizedFace, types.FacePixels)
	for i := range img {
		img[i] = byte(i % 253)
	}
	back := RotateImage(RotateImage(img, 90), 270)
	if !equal(back, img) {
		t.Error("Expected 90 then 270 degrees to restore the tile exactly")
	}
}

func TestDissimilarityIdentical(t *testing.T) {
	for name, img := range map[string]types.NormalizedFace{
		"three": threeFace(),
		"black": solid(0),
		"white": solid(255),
	} {
		if d := Dissimilarity(img, img); d != 0 {
			t.Errorf("Dissimilarity(%s, %s) = %v, want 0", name, name, d)
		}
	}
}

func TestDissimilarityInverted(t *testing.T) {
	if d := Dissimilarity(solid(255), solid(0)); math.Abs(d-1) > 1e-9 {
		t.Errorf("Dissimilarity(white, black) = %v, want 1", d)
	}
}

func TestDissimilarityRotationInvariant(t *testing.T) {
	img := threeFace()
	for _, deg := range []float64{13, 45, 90, 137, 170, 224, 301} {
		rotated := RotateImage(img, deg)
		if d := Dissimilarity(img, rotated); d >= 0.05 {
			t.Errorf("Dissimilarity(img, rotate(img, %v)) = %v, want < 0.05", deg, d)
		}
	}
}

func TestDissimilaritySeparatesFaces(t *testing.T) {
	two, three, four := twoFace(), threeFace(), fourFace()
	pairs := []struct {
		name string
		a, b types.NormalizedFace
	}{
		{"two vs three", two, three},
		{"three vs four", three, four},
		{"two vs four", two, four},
	}
	for _, p := range pairs {
		if d := Dissimilarity(p.a, p.b); d < 0.02 {
			t.Errorf("%s: Dissimilarity = %v, expected clearly above identical", p.name, d)
		}
	}
}

func TestParallelMatchesSequential(t *testing.T) {
	probe := threeFace()
	exemplar := RotateImage(fourFace(), 33)

	seqScore, seqAngle := Matcher{}.Best(probe, exemplar)
	parScore, parAngle := Matcher{Workers: 4}.Best(probe, exemplar)
	if seqScore != parScore || seqAngle != parAngle {
		t.Errorf("Parallel (%v @ %v) differs from sequential (%v @ %v)", parScore, parAngle, seqScore, seqAngle)
	}
}

func TestDissimilarityBadSize(t *testing.T) {
	if d := Dissimilarity(types.NormalizedFace{1, 2, 3}, threeFace()); d != 1 {
		t.Errorf("Expected 1 for malformed tile, got %v", d)
	}
}

func fiveFace() types.NormalizedFace {
	tile := fourFace()
	disk(tile, 32, 32, 6)
	return tile
}

func TestOverlap(t *testing.T) {
	tests := []struct {
		name string
		a, b types.NormalizedFace
		want float64
	}{
		{"Both empty", solid(0), solid(0), 0},
		{"Identical", threeFace(), threeFace(), 0},
		{"Disjoint", solid(255), solid(0), 1},
		{"Length mismatch", solid(0), types.NormalizedFace{0}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Overlap(tt.a, tt.b); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Overlap() = %v, want %v", got, tt.want)
			}
		})
	}

	// Three pips contain the two diagonal ones: one pip out of three differs.
	if got := Overlap(twoFace(), threeFace()); math.Abs(got-1.0/3) > 1e-9 {
		t.Errorf("Overlap(two, three) = %v, want 1/3", got)
	}
}

// One extra pip is a small share of the tile but a large share of the pip area,
// so only the overlap metric clears the default merge threshold.
func TestOverlapSeparatesAdjacentFaces(t *testing.T) {
	const mergeThreshold = 0.15
	pairs := []struct {
		name string
		a, b types.NormalizedFace
	}{
		{"two vs three", twoFace(), threeFace()},
		{"four vs five", fourFace(), fiveFace()},
	}
	for _, p := range pairs {
		t.Run(p.name, func(t *testing.T) {
			if d := Dissimilarity(p.a, p.b); d >= mergeThreshold {
				t.Errorf("Expected mean absolute difference to stay below %v, got %v", mergeThreshold, d)
			}
			if d := OverlapDissimilarity(p.a, p.b); d <= mergeThreshold {
				t.Errorf("OverlapDissimilarity = %v, want above %v", d, mergeThreshold)
			}
		})
	}

	for _, deg := range []float64{90, 180, 270} {
		img := fiveFace()
		if d := OverlapDissimilarity(img, RotateImage(img, deg)); d != 0 {
			t.Errorf("OverlapDissimilarity(img, rotate(img, %v)) = %v, want 0", deg, d)
		}
	}
}

func TestMatcherMetricParallel(t *testing.T) {
	face := fiveFace()
	exemplar := RotateImage(fourFace(), 21)
	seqScore, seqAngle := Matcher{Metric: Overlap}.Best(face, exemplar)
	parScore, parAngle := Matcher{Workers: 3, Metric: Overlap}.Best(face, exemplar)
	if seqScore != parScore || seqAngle != parAngle {
		t.Errorf("Parallel (%v @ %v) differs from sequential (%v @ %v)", parScore, parAngle, seqScore, seqAngle)
	}
}
