// Package pipeline composes segmentation, region isolation, normalization and
// the two face analyzers into per-frame recognition for one dice set.
//
// A Pipeline owns its State exclusively. It does no locking: callers sharing one
// instance across goroutines must synchronize access themselves.
package pipeline

import (
	"sync"
	"time"

	"github.com/andresmejia3/pipscan/internal/cluster"
	"github.com/andresmejia3/pipscan/internal/imaging"
	"github.com/andresmejia3/pipscan/internal/match"
	"github.com/andresmejia3/pipscan/internal/morph"
	"github.com/andresmejia3/pipscan/internal/normalize"
	"github.com/andresmejia3/pipscan/internal/pips"
	"github.com/andresmejia3/pipscan/internal/region"
	"github.com/andresmejia3/pipscan/internal/segment"
	"github.com/andresmejia3/pipscan/internal/types"
	"github.com/sirupsen/logrus"
)

// Options tunes every stage. MergeThreshold and Segment.Floor are empirical and
// should be calibrated against real hardware.
type Options struct {
	Segment             segment.Options
	Limits              region.Limits
	MaskCloseRadius     int
	MaskCloseIterations int
	MergeThreshold      float64
}

// DefaultOptions returns the stock tuning.
func DefaultOptions() Options {
	return Options{
		Segment:             segment.DefaultOptions(),
		Limits:              region.DefaultLimits(),
		MaskCloseRadius:     3,
		MaskCloseIterations: 1,
		MergeThreshold:      cluster.DefaultMergeThreshold,
	}
}

// State is the mutable calibration of one dice set during a session.
type State struct {
	DiceSetID  string
	Background *segment.Background
	Clusters   []types.Cluster
}

// Pipeline runs recognition against one State.
type Pipeline struct {
	state State
	opts  Options
	sim   cluster.SimilarityFn
	log   logrus.FieldLogger
}

// New creates a pipeline for diceSetID with no background and no clusters.
// A nil sim uses the rotation-invariant matcher scored by pip overlap; a nil logger discards output.
func New(diceSetID string, opts Options, sim cluster.SimilarityFn, log logrus.FieldLogger) *Pipeline {
	if sim == nil {
		sim = match.OverlapDissimilarity
	}
	if log == nil {
		l := logrus.New()
		l.SetLevel(logrus.PanicLevel)
		log = l
	}
	return &Pipeline{
		state: State{DiceSetID: diceSetID},
		opts:  opts,
		sim:   sim,
		log:   log.WithField("dice_set", diceSetID),
	}
}

// CaptureBackground stores frame as the empty-surface reference, replacing any earlier one.
// The surface must be empty of dice.
func (p *Pipeline) CaptureBackground(frame types.Frame) error {
	if err := frame.Validate(); err != nil {
		return err
	}
	bg := segment.Capture(frame, p.opts.Segment)
	p.state.Background = &bg
	p.log.WithFields(logrus.Fields{
		"width":       frame.Width,
		"height":      frame.Height,
		"color_space": bg.ColorSpace,
	}).Debug("Background captured")
	return nil
}

// HasBackground reports whether CaptureBackground has run.
func (p *Pipeline) HasBackground() bool { return p.state.Background != nil }

// ProcessFrame detects every die in frame and assigns each one to a cluster.
// It returns no results when no background is set, when the frame is malformed or
// does not match the background size, or when nothing stands out from the surface.
func (p *Pipeline) ProcessFrame(frame types.Frame) []types.RoiResult {
	if !p.HasBackground() {
		p.log.Debug("No background captured, skipping frame")
		return nil
	}
	if err := frame.Validate(); err != nil {
		p.log.WithError(err).Warn("Dropping malformed frame")
		return nil
	}

	mask := segment.Segment(frame, *p.state.Background, p.opts.Segment)
	if p.opts.MaskCloseRadius > 0 {
		mask = morph.Close(mask, frame.Width, frame.Height, p.opts.MaskCloseRadius, p.opts.MaskCloseIterations)
	}
	rois := region.Isolate(mask, frame.Width, frame.Height, p.opts.Limits)
	p.log.WithField("rois", len(rois)).Debug("Frame segmented")
	if len(rois) == 0 {
		return nil
	}

	gray := imaging.Grayscale(frame)
	results := make([]types.RoiResult, 0, len(rois))
	for _, roi := range rois {
		face := normalize.FaceWithin(gray, mask, roi)

		// The blob counter and clustering read the same tile independently.
		var count types.PipCount
		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			count = pips.Count(face)
		}()

		clusters, a := cluster.AddToCluster(face, p.state.Clusters, p.opts.MergeThreshold, p.sim)
		wg.Wait()
		p.state.Clusters = clusters

		c, _ := cluster.Find(clusters, a.ClusterID)
		p.log.WithFields(logrus.Fields{
			"cluster_id": a.ClusterID,
			"score":      a.Score,
			"merged":     a.Merged,
			"blob_count": count.String(),
		}).Debug("Die assigned")

		results = append(results, types.RoiResult{
			Roi:        roi,
			ClusterID:  a.ClusterID,
			PipValue:   c.PipValue,
			BlobCount:  count,
			Normalized: face,
		})
	}
	return results
}

// LabelCluster assigns a confirmed pip value to one cluster.
func (p *Pipeline) LabelCluster(id string, pipValue int) error {
	clusters, err := cluster.LabelCluster(p.state.Clusters, id, pipValue)
	if err != nil {
		return err
	}
	p.state.Clusters = clusters
	return nil
}

// Clusters returns the current cluster list. Callers must treat it as read-only.
func (p *Pipeline) Clusters() []types.Cluster { return p.state.Clusters }

// Snapshot returns the cluster set for persistence.
func (p *Pipeline) Snapshot() types.ClusterSet {
	updated := time.Time{}
	for _, c := range p.state.Clusters {
		if c.UpdatedAt.After(updated) {
			updated = c.UpdatedAt
		}
	}
	clusters := make([]types.Cluster, len(p.state.Clusters))
	copy(clusters, p.state.Clusters)
	return types.ClusterSet{Clusters: clusters, UpdatedAt: updated}
}

// Restore replaces the cluster list with a persisted set. The background is untouched.
func (p *Pipeline) Restore(set types.ClusterSet) {
	clusters := make([]types.Cluster, len(set.Clusters))
	copy(clusters, set.Clusters)
	p.state.Clusters = clusters
	p.log.WithField("clusters", len(clusters)).Debug("Cluster set restored")
}

// Reset clears background and clusters for recalibration.
func (p *Pipeline) Reset() {
	p.state.Background = nil
	p.state.Clusters = nil
	p.log.Info("Pipeline reset for recalibration")
}
