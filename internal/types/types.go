package types

import (
	"errors"
	"fmt"
	"time"
)

// FaceSize is the side length of a normalized face tile.
const FaceSize = 64

// FacePixels is the byte length of a normalized face tile.
const FacePixels = FaceSize * FaceSize

// ErrFrameSize is returned when a pixel buffer does not match its declared dimensions.
var ErrFrameSize = errors.New("frame buffer does not match its dimensions")

// Frame is one captured RGBA still (4 bytes per pixel, row-major).
type Frame struct {
	Pix    []byte
	Width  int
	Height int
}

// Validate checks that the buffer length matches width*height*4.
func (f Frame) Validate() error {
	if f.Width <= 0 || f.Height <= 0 {
		return fmt.Errorf("%w: %dx%d", ErrFrameSize, f.Width, f.Height)
	}
	if len(f.Pix) != f.Width*f.Height*4 {
		return fmt.Errorf("%w: got %d bytes for %dx%d RGBA", ErrFrameSize, len(f.Pix), f.Width, f.Height)
	}
	return nil
}

// FrameTask represents a single frame source sent to a decoding worker.
type FrameTask struct {
	Index int
	Path  string // empty when Data carries an already-read encoded image
	Data  []byte
}

// Roi is an axis-aligned bounding box in source-image pixel coordinates.
type Roi struct {
	X      int
	Y      int
	Width  int
	Height int
}

// Area returns the bounding box area.
func (r Roi) Area() int { return r.Width * r.Height }

// NormalizedFace is a FaceSize x FaceSize grayscale tile.
type NormalizedFace []byte

// PipCount is the blob counter's estimate. Only 1-6 is a face value: NoPips (0) means no
// pip-like blob survived filtering, a blank or unreadable tile, and Indeterminate means more
// than six did. Callers treat both as "no value" and fall back to the cluster label.
type PipCount int

const (
	NoPips PipCount = 0
	// Indeterminate marks a probable false detection (glare, dust) rather than a guess.
	Indeterminate PipCount = -1
)

// Determinate reports whether the count is a usable d6 value (1-6).
func (p PipCount) Determinate() bool { return p >= 1 && p <= 6 }

func (p PipCount) String() string {
	switch p {
	case Indeterminate:
		return "indeterminate"
	case NoPips:
		return "none"
	}
	return fmt.Sprintf("%d", int(p))
}

// Cluster is one die-face class discovered from observed tiles.
// PipValue is 0 until labeled.
type Cluster struct {
	ID        string
	PipValue  int
	Exemplars []NormalizedFace
	UpdatedAt time.Time
}

// Labeled reports whether the cluster has been assigned a pip value.
func (c Cluster) Labeled() bool { return c.PipValue != 0 }

// ClusterSet is the persisted calibration of one dice set.
type ClusterSet struct {
	Clusters  []Cluster
	UpdatedAt time.Time
}

// RoiResult is emitted once per detected die by the pipeline.
type RoiResult struct {
	Roi        Roi
	ClusterID  string
	PipValue   int // label of the assigned cluster, 0 if unlabeled
	BlobCount  PipCount
	Normalized NormalizedFace
}

// Value resolves the face shown: the cluster label when present, else a determinate blob count, else 0.
func (r RoiResult) Value() int {
	if r.PipValue != 0 {
		return r.PipValue
	}
	if r.BlobCount.Determinate() {
		return int(r.BlobCount)
	}
	return 0
}

// Agrees reports whether a labeled cluster and the blob counter give the same value.
// Unlabeled clusters and indeterminate counts never agree.
func (r RoiResult) Agrees() bool {
	return r.PipValue != 0 && r.BlobCount.Determinate() && int(r.BlobCount) == r.PipValue
}
