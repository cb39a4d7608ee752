// Package pips estimates a face value directly by counting round blobs on a binarized tile.
package pips

import (
	"math"

	"github.com/andresmejia3/pipscan/internal/region"
	"github.com/andresmejia3/pipscan/internal/types"
)

const (
	MinArea        = 20
	MaxArea        = 600
	MinCircularity = 0.5
	maxPips        = 6
)

// Count returns the number of pip-like components on a FaceSize x FaceSize binary tile.
// Components must have an area in [MinArea, MaxArea] and circularity 4*pi*area/perimeter^2
// of at least MinCircularity. More than six survivors yields types.Indeterminate.
func Count(tile types.NormalizedFace) types.PipCount {
	n := 0
	for _, c := range region.Components(tile, types.FaceSize, types.FaceSize) {
		if c.Area < MinArea || c.Area > MaxArea {
			continue
		}
		if Circularity(c.Area, c.Perimeter) < MinCircularity {
			continue
		}
		n++
	}
	if n > maxPips {
		return types.Indeterminate
	}
	return types.PipCount(n)
}

// Circularity is 4*pi*area/perimeter^2 with the perimeter floored at 1.
func Circularity(area, perimeter int) float64 {
	if perimeter < 1 {
		perimeter = 1
	}
	p := float64(perimeter)
	return 4 * math.Pi * float64(area) / (p * p)
}
