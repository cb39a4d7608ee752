// Package cluster groups face tiles into die-face classes online, without
// knowing in advance how many faces exist.
package cluster

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/andresmejia3/pipscan/internal/types"
	"github.com/google/uuid"
	"gonum.org/v1/gonum/stat"
)

// DefaultMergeThreshold is the dissimilarity below which a probe joins an existing cluster.
const DefaultMergeThreshold = 0.15

var (
	ErrUnknownCluster = errors.New("unknown cluster")
	ErrInvalidPip     = errors.New("pip value must be between 1 and 6")
	ErrAlreadyLabeled = errors.New("cluster already labeled with a different pip value")
)

// SimilarityFn scores two tiles in [0,1]; 0 means identical.
type SimilarityFn func(probe, exemplar types.NormalizedFace) float64

// Assignment describes where AddToCluster placed a probe.
type Assignment struct {
	ClusterID string
	Score     float64 // best score found, +Inf when there were no clusters
	Merged    bool
}

var (
	newID = uuid.NewString
	now   = time.Now
)

// AddToCluster matches probe against every cluster, scoring each cluster by its
// closest exemplar. If the best cluster scores below threshold the probe is appended
// to it, otherwise a new cluster is seeded with the probe. The input slice and its
// clusters are never modified; the returned slice is a fresh copy.
func AddToCluster(probe types.NormalizedFace, clusters []types.Cluster, threshold float64, sim SimilarityFn) ([]types.Cluster, Assignment) {
	bestIdx := -1
	bestScore := math.Inf(1)
	for i, c := range clusters {
		s := closest(probe, c, sim)
		if s < bestScore {
			bestScore = s
			bestIdx = i
		}
	}

	out := make([]types.Cluster, len(clusters), len(clusters)+1)
	copy(out, clusters)
	ts := now()

	if bestIdx >= 0 && bestScore < threshold {
		c := out[bestIdx]
		exemplars := make([]types.NormalizedFace, len(c.Exemplars), len(c.Exemplars)+1)
		copy(exemplars, c.Exemplars)
		c.Exemplars = append(exemplars, probe)
		c.UpdatedAt = ts
		out[bestIdx] = c
		return out, Assignment{ClusterID: c.ID, Score: bestScore, Merged: true}
	}

	c := types.Cluster{
		ID:        uniqueID(clusters),
		Exemplars: []types.NormalizedFace{probe},
		UpdatedAt: ts,
	}
	return append(out, c), Assignment{ClusterID: c.ID, Score: bestScore, Merged: false}
}

// LabelCluster returns a copy of clusters with pipValue assigned to the cluster with the given id.
// A label never changes once set: relabeling with the same value is a no-op, a different value fails.
func LabelCluster(clusters []types.Cluster, id string, pipValue int) ([]types.Cluster, error) {
	if pipValue < 1 || pipValue > 6 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidPip, pipValue)
	}
	idx := -1
	for i, c := range clusters {
		if c.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCluster, id)
	}
	if cur := clusters[idx].PipValue; cur != 0 && cur != pipValue {
		return nil, fmt.Errorf("%w: %s is %d", ErrAlreadyLabeled, id, cur)
	}

	out := make([]types.Cluster, len(clusters))
	copy(out, clusters)
	if out[idx].PipValue != pipValue {
		out[idx].PipValue = pipValue
		out[idx].UpdatedAt = now()
	}
	return out, nil
}

// Find returns the cluster with the given id.
func Find(clusters []types.Cluster, id string) (types.Cluster, bool) {
	for _, c := range clusters {
		if c.ID == id {
			return c, true
		}
	}
	return types.Cluster{}, false
}

// Stable reports whether the set looks ready for labeling: exactly want clusters,
// each holding at least minExemplars tiles.
func Stable(clusters []types.Cluster, want, minExemplars int) bool {
	if len(clusters) != want {
		return false
	}
	for _, c := range clusters {
		if len(c.Exemplars) < minExemplars {
			return false
		}
	}
	return true
}

// Cohesion returns the mean and standard deviation of each exemplar's score against
// the cluster's first exemplar. A single-exemplar cluster reports (0, 0).
func Cohesion(c types.Cluster, sim SimilarityFn) (mean, std float64) {
	if len(c.Exemplars) < 2 {
		return 0, 0
	}
	scores := make([]float64, 0, len(c.Exemplars)-1)
	for _, e := range c.Exemplars[1:] {
		scores = append(scores, sim(e, c.Exemplars[0]))
	}
	if len(scores) == 1 {
		return scores[0], 0
	}
	return stat.MeanStdDev(scores, nil)
}

func closest(probe types.NormalizedFace, c types.Cluster, sim SimilarityFn) float64 {
	best := math.Inf(1)
	for _, e := range c.Exemplars {
		if s := sim(probe, e); s < best {
			best = s
			if best == 0 {
				break
			}
		}
	}
	return best
}

// uniqueID draws ids until one is unused within the set.
func uniqueID(clusters []types.Cluster) string {
	for {
		id := newID()
		if _, taken := Find(clusters, id); !taken {
			return id
		}
	}
}
