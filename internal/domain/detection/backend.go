// Package detection implements the spectral change-detection pipeline: index
// calculation, thresholded classification, vectorization with a bounded
// resolution fallback, adaptive date search, and the facade that composes
// them into a single per-region analysis call.
//
// The raster composites themselves are produced by a remote compute backend;
// this package only consumes the Backend contract below.  Every call into the
// backend is a suspension point bounded by an explicit per-step timeout.
package detection

import (
	"context"

	"github.com/turtacn/TerraSight-Intelligence/pkg/types/geo"
)

// Band identifies a reflectance band of a composite.
type Band string

const (
	BandBlue  Band = "blue"
	BandGreen Band = "green"
	BandRed   Band = "red"
	BandNIR   Band = "nir"
	BandSWIR  Band = "swir"
)

// CompositeOptions controls how the backend combines captures into one
// composite: a cloud-cover ceiling per capture, a probability-based cloud
// mask threshold, and a spatial buffer that suppresses shadow edges around
// masked pixels.
type CompositeOptions struct {
	MaxCloudCoverPct   float64
	CloudProbThreshold float64
	CloudBufferM       float64
}

// Composite is an opaque handle to a server-side raster composite, scoped to
// one region and one time window.  It is never inspected directly; the
// pipeline only queries it for band rasters and band presence.  Composites
// are ephemeral and never persisted.
type Composite struct {
	Handle   string
	RegionID string
	Window   geo.TimeWindow
	Bands    []Band
}

// Empty reports whether the composite has zero usable bands.  Derived
// indices degrade to constant zero for empty composites instead of erroring.
func (c *Composite) Empty() bool {
	return c == nil || len(c.Bands) == 0
}

// HasBand reports whether the composite carries the given band.
func (c *Composite) HasBand(b Band) bool {
	if c == nil {
		return false
	}
	for _, have := range c.Bands {
		if have == b {
			return true
		}
	}
	return false
}

// Grid is a dense raster of float64 samples covering a bounding box at a
// fixed ground resolution.  Values are stored row-major, row 0 at the
// northern edge.
type Grid struct {
	Width     int
	Height    int
	CellSizeM float64
	BBox      geo.BoundingBox
	Values    []float64
}

// NewGrid allocates a zero-filled grid.
func NewGrid(width, height int, cellSizeM float64, bbox geo.BoundingBox) *Grid {
	return &Grid{
		Width:     width,
		Height:    height,
		CellSizeM: cellSizeM,
		BBox:      bbox,
		Values:    make([]float64, width*height),
	}
}

// At returns the sample at (x, y).
func (g *Grid) At(x, y int) float64 {
	return g.Values[y*g.Width+x]
}

// Set stores v at (x, y).
func (g *Grid) Set(x, y int, v float64) {
	g.Values[y*g.Width+x] = v
}

// Backend is the remote composite compute service consumed by the pipeline.
// Implementations must honour ctx cancellation on every call: the detector
// wraps each invocation in a per-step deadline.
type Backend interface {
	// BuildComposite combines all captures inside window that pass the
	// cloud-cover ceiling into a single composite, applying the combined
	// bit-flag and buffered probability cloud mask described by opts.
	// Returns an ErrCodeDataUnavailable error when the window holds no
	// usable capture at all.
	BuildComposite(ctx context.Context, region geo.Region, window geo.TimeWindow, opts CompositeOptions) (*Composite, error)

	// UsableCaptures reports how many captures inside window pass the
	// cloud-cover ceiling.  Used by the adaptive date search to probe
	// candidate windows cheaply, without building full composites.
	UsableCaptures(ctx context.Context, region geo.Region, window geo.TimeWindow, maxCloudPct float64) (int, error)

	// SampleBand rasterizes one reflectance band of the composite over the
	// region at the given ground resolution.
	SampleBand(ctx context.Context, comp *Composite, band Band, resolutionM float64) (*Grid, error)
}
