// Package match scores two face tiles independently of how the die landed rotated.
package match

import (
	"math"
	"sync"

	"github.com/andresmejia3/pipscan/internal/types"
)

const (
	coarseStep  = 10.0
	coarseSteps = 36
	fineSpan    = 15
)

// RotateImage rotates a FaceSize x FaceSize tile by degrees about its center using
// inverse-mapped nearest-neighbor sampling. Source pixels outside the tile read as 0.
func RotateImage(img types.NormalizedFace, degrees float64) types.NormalizedFace {
	const n = types.FaceSize
	out := make(types.NormalizedFace, types.FacePixels)
	if math.Mod(degrees, 360) == 0 {
		copy(out, img)
		return out
	}

	rad := degrees * math.Pi / 180
	cos, sin := math.Cos(rad), math.Sin(rad)
	c := float64(n-1) / 2

	for y := 0; y < n; y++ {
		dy := float64(y) - c
		for x := 0; x < n; x++ {
			dx := float64(x) - c
			sx := int(math.Round(c + dx*cos + dy*sin))
			sy := int(math.Round(c - dx*sin + dy*cos))
			if sx < 0 || sx >= n || sy < 0 || sy >= n {
				continue
			}
			out[y*n+x] = img[sy*n+sx]
		}
	}
	return out
}

// MeanAbsDiff is the mean absolute pixel difference normalized to [0,1].
func MeanAbsDiff(a, b types.NormalizedFace) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 1
	}
	var sum int
	for i := range a {
		d := int(a[i]) - int(b[i])
		if d < 0 {
			d = -d
		}
		sum += d
	}
	return float64(sum) / (255 * float64(len(a)))
}

// Overlap is the weighted Jaccard distance sum|a-b| / sum max(a,b), in [0,1].
// On binarized tiles it is the share of the combined pip area the two tiles disagree on,
// so one extra pip counts the same however small the pips are. Two empty tiles score 0.
func Overlap(a, b types.NormalizedFace) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 1
	}
	var diff, union int
	for i := range a {
		x, y := int(a[i]), int(b[i])
		if x >= y {
			diff += x - y
			union += x
		} else {
			diff += y - x
			union += y
		}
	}
	if union == 0 {
		return 0
	}
	return float64(diff) / float64(union)
}

// Metric scores two unrotated tiles in [0,1]; 0 means identical.
type Metric func(a, b types.NormalizedFace) float64

// Metrics maps configuration names to pixel metrics.
var Metrics = map[string]Metric{
	"mad":     MeanAbsDiff,
	"overlap": Overlap,
}

// Matcher runs the coarse-to-fine rotation search.
// Workers > 1 scores each pass's angles concurrently; results are reduced in
// scan order so the outcome is identical to the sequential search.
// A nil Metric means MeanAbsDiff.
type Matcher struct {
	Workers int
	Metric  Metric
}

// Dissimilarity returns the lowest mean absolute difference in [0,1] between probe
// and exemplar over all searched rotations of the exemplar.
func Dissimilarity(probe, exemplar types.NormalizedFace) float64 {
	return Matcher{}.Dissimilarity(probe, exemplar)
}

// OverlapDissimilarity is Dissimilarity scored with Overlap.
func OverlapDissimilarity(probe, exemplar types.NormalizedFace) float64 {
	return Matcher{Metric: Overlap}.Dissimilarity(probe, exemplar)
}

// Dissimilarity implements cluster.SimilarityFn.
func (m Matcher) Dissimilarity(probe, exemplar types.NormalizedFace) float64 {
	score, _ := m.Best(probe, exemplar)
	return score
}

// Best returns the lowest score and the exemplar rotation (degrees) that produced it.
// Ties keep the first angle in scan order: 0..350 in 10 degree steps, then
// best-15..best+15 in 1 degree steps.
func (m Matcher) Best(probe, exemplar types.NormalizedFace) (float64, float64) {
	if len(probe) != types.FacePixels || len(exemplar) != types.FacePixels {
		return 1, 0
	}
	coarse := make([]float64, coarseSteps)
	for i := range coarse {
		coarse[i] = float64(i) * coarseStep
	}
	bestScore, bestAngle := m.scan(probe, exemplar, coarse, math.Inf(1), 0)
	if bestScore == 0 {
		return 0, bestAngle
	}

	fine := make([]float64, 0, 2*fineSpan+1)
	for d := -fineSpan; d <= fineSpan; d++ {
		fine = append(fine, bestAngle+float64(d))
	}
	return m.scan(probe, exemplar, fine, bestScore, bestAngle)
}

func (m Matcher) scan(probe, exemplar types.NormalizedFace, angles []float64, bestScore, bestAngle float64) (float64, float64) {
	scores := m.score(probe, exemplar, angles)
	for i, s := range scores {
		if s < bestScore {
			bestScore = s
			bestAngle = angles[i]
		}
	}
	return bestScore, bestAngle
}

func (m Matcher) score(probe, exemplar types.NormalizedFace, angles []float64) []float64 {
	metric := m.Metric
	if metric == nil {
		metric = MeanAbsDiff
	}
	scores := make([]float64, len(angles))
	if m.Workers <= 1 {
		for i, a := range angles {
			scores[i] = metric(probe, RotateImage(exemplar, a))
		}
		return scores
	}

	jobs := make(chan int, len(angles))
	for i := range angles {
		jobs <- i
	}
	close(jobs)

	var wg sync.WaitGroup
	for w := 0; w < m.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				scores[i] = metric(probe, RotateImage(exemplar, angles[i]))
			}
		}()
	}
	wg.Wait()
	return scores
}
