// Package region turns a foreground mask into one bounding box per physical die.
package region

import (
	"math"

	"github.com/andresmejia3/pipscan/internal/types"
)

// Limits holds the isolation thresholds. Areas and distances scale with resolution.
type Limits struct {
	MinArea       float64 // absolute floor on component pixel area
	MinAreaRatio  float64 // fraction of image area
	MergeDistance float64 // absolute floor on centroid merge distance
	MergeRatio    float64 // fraction of the shorter image side
	MinAspect     float64
	MaxAspect     float64
	MaxAreaRatio  float64 // upper bound on box area as a fraction of image area
}

// DefaultLimits returns the thresholds tuned for 320x240 through 1080p captures.
func DefaultLimits() Limits {
	return Limits{
		MinArea:       50,
		MinAreaRatio:  0.001,
		MergeDistance: 20,
		MergeRatio:    0.08,
		MinAspect:     0.25,
		MaxAspect:     4.0,
		MaxAreaRatio:  0.30,
	}
}

// Isolate finds die-sized regions in a binary mask.
// Components below the minimum area are discarded, components whose centroids lie
// within the merge distance are unioned, and merged boxes failing the aspect or
// area bounds are dropped. Order follows the raster position of each group's first component.
func Isolate(mask []byte, w, h int, lim Limits) []types.Roi {
	comps := Components(mask, w, h)
	if len(comps) == 0 {
		return nil
	}

	imgArea := float64(w * h)
	minArea := math.Max(lim.MinArea, lim.MinAreaRatio*imgArea)
	shorter := w
	if h < shorter {
		shorter = h
	}
	mergeDist := math.Max(lim.MergeDistance, lim.MergeRatio*float64(shorter))

	kept := comps[:0:0]
	for _, c := range comps {
		if float64(c.Area) >= minArea {
			kept = append(kept, c)
		}
	}
	if len(kept) == 0 {
		return nil
	}

	uf := newUnionFind(len(kept))
	for i := 0; i < len(kept); i++ {
		xi, yi := kept[i].Centroid()
		for j := i + 1; j < len(kept); j++ {
			xj, yj := kept[j].Centroid()
			if math.Hypot(xi-xj, yi-yj) <= mergeDist {
				uf.union(i, j)
			}
		}
	}

	// Recompute each group's box, keeping groups in order of first appearance.
	groupIndex := make(map[int]int)
	var groups []Component
	for i, c := range kept {
		root := uf.find(i)
		gi, ok := groupIndex[root]
		if !ok {
			groupIndex[root] = len(groups)
			groups = append(groups, c)
			continue
		}
		g := &groups[gi]
		g.MinX = min(g.MinX, c.MinX)
		g.MinY = min(g.MinY, c.MinY)
		g.MaxX = max(g.MaxX, c.MaxX)
		g.MaxY = max(g.MaxY, c.MaxY)
		g.Area += c.Area
		g.SumX += c.SumX
		g.SumY += c.SumY
	}

	var rois []types.Roi
	for _, g := range groups {
		roi := types.Roi{X: g.MinX, Y: g.MinY, Width: g.MaxX - g.MinX + 1, Height: g.MaxY - g.MinY + 1}
		aspect := float64(roi.Width) / float64(roi.Height)
		if aspect < lim.MinAspect || aspect > lim.MaxAspect {
			continue
		}
		if float64(roi.Area()) > lim.MaxAreaRatio*imgArea {
			continue
		}
		rois = append(rois, roi)
	}
	return rois
}

type unionFind struct {
	parent []int
	rank   []int
}

func newUnionFind(n int) *unionFind {
	uf := &unionFind{parent: make([]int, n), rank: make([]int, n)}
	for i := range uf.parent {
		uf.parent[i] = i
	}
	return uf
}

func (u *unionFind) find(x int) int {
	for u.parent[x] != x {
		u.parent[x] = u.parent[u.parent[x]]
		x = u.parent[x]
	}
	return x
}

func (u *unionFind) union(a, b int) {
	ra, rb := u.find(a), u.find(b)
	if ra == rb {
		return
	}
	switch {
	case u.rank[ra] < u.rank[rb]:
		u.parent[ra] = rb
	case u.rank[ra] > u.rank[rb]:
		u.parent[rb] = ra
	default:
		u.parent[rb] = ra
		u.rank[ra]++
	}
}
