package detection

import (
	"context"

	"github.com/turtacn/TerraSight-Intelligence/pkg/errors"
	"github.com/turtacn/TerraSight-Intelligence/pkg/types/geo"
)

// Thresholds holds the classification rule cut-offs applied to B-A index
// differences.  All values are configurable; DefaultThresholds returns the
// operational defaults.
type Thresholds struct {
	// Development fires when vegetation drops below DevelopmentVegDrop AND
	// built-up rises above DevelopmentBuiltGain.
	DevelopmentVegDrop   float64 `mapstructure:"development_veg_drop"`
	DevelopmentBuiltGain float64 `mapstructure:"development_built_gain"`

	// Clearing fires when bare soil rises above ClearingSoilGain.
	ClearingSoilGain float64 `mapstructure:"clearing_soil_gain"`

	// Road-candidate fires when built-up rises above RoadBuiltGain AND
	// vegetation drops below RoadVegDrop.
	RoadBuiltGain float64 `mapstructure:"road_built_gain"`
	RoadVegDrop   float64 `mapstructure:"road_veg_drop"`
}

// DefaultThresholds returns the operational defaults.
func DefaultThresholds() Thresholds {
	return Thresholds{
		DevelopmentVegDrop:   -0.20,
		DevelopmentBuiltGain: 0.15,
		ClearingSoilGain:     0.20,
		RoadBuiltGain:        0.10,
		RoadVegDrop:          -0.10,
	}
}

// Label is the per-pixel classification outcome.
type Label uint8

const (
	LabelNone Label = iota
	LabelDevelopment
	LabelRoadCandidate
	LabelClearing
)

// ChangeType maps a Label to its public change type.
func (l Label) ChangeType() geo.ChangeType {
	switch l {
	case LabelDevelopment:
		return geo.ChangeDevelopment
	case LabelRoadCandidate:
		return geo.ChangeRoadCandidate
	case LabelClearing:
		return geo.ChangeClearing
	default:
		return geo.ChangeOther
	}
}

// LabelGrid is a classified raster: one Label per cell.
type LabelGrid struct {
	Width     int
	Height    int
	CellSizeM float64
	BBox      geo.BoundingBox
	Labels    []Label
}

// At returns the label at (x, y).
func (g *LabelGrid) At(x, y int) Label { return g.Labels[y*g.Width+x] }

// Set stores l at (x, y).
func (g *LabelGrid) Set(x, y int, l Label) { g.Labels[y*g.Width+x] = l }

// Classifier applies the thresholded change rules to the index differences
// between a baseline and a current composite.
type Classifier struct {
	thresholds Thresholds
}

// NewClassifier constructs a Classifier with the given thresholds.
func NewClassifier(t Thresholds) *Classifier {
	return &Classifier{thresholds: t}
}

// classifyCell assigns exactly one label per pixel.  When several rules fire
// simultaneously the priority order is development > road-candidate >
// clearing; label values are never combined.
func (c *Classifier) classifyCell(vegDiff, builtDiff, soilDiff float64) Label {
	t := c.thresholds
	switch {
	case vegDiff < t.DevelopmentVegDrop && builtDiff > t.DevelopmentBuiltGain:
		return LabelDevelopment
	case builtDiff > t.RoadBuiltGain && vegDiff < t.RoadVegDrop:
		return LabelRoadCandidate
	case soilDiff > t.ClearingSoilGain:
		return LabelClearing
	default:
		return LabelNone
	}
}

// Classify computes B-A differences for vegetation, built-up, and bare-soil
// indices and produces the labeled change raster.  Nil grids in either set
// are treated as constant zero, so an empty composite on one side degrades
// to "no change detected" for the affected indices rather than erroring.
func (c *Classifier) Classify(ctx context.Context, a, b *IndexSet) (*LabelGrid, error) {
	ref := firstGrid(b.NDVI, b.NDBI, b.BSI, a.NDVI, a.NDBI, a.BSI)
	if ref == nil {
		// Both composites empty: an empty labeled raster with nominal extent.
		return &LabelGrid{Width: 0, Height: 0}, nil
	}

	out := &LabelGrid{
		Width:     ref.Width,
		Height:    ref.Height,
		CellSizeM: ref.CellSizeM,
		BBox:      ref.BBox,
		Labels:    make([]Label, ref.Width*ref.Height),
	}

	for y := 0; y < ref.Height; y++ {
		if err := ctx.Err(); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeComputationTimeout, "classification cancelled")
		}
		for x := 0; x < ref.Width; x++ {
			vegDiff := gridAt(b.NDVI, x, y) - gridAt(a.NDVI, x, y)
			builtDiff := gridAt(b.NDBI, x, y) - gridAt(a.NDBI, x, y)
			soilDiff := gridAt(b.BSI, x, y) - gridAt(a.BSI, x, y)
			out.Set(x, y, c.classifyCell(vegDiff, builtDiff, soilDiff))
		}
	}

	return out, nil
}

// gridAt reads a cell, treating a nil grid as constant zero.
func gridAt(g *Grid, x, y int) float64 {
	if g == nil || x >= g.Width || y >= g.Height {
		return 0
	}
	return g.At(x, y)
}

func firstGrid(grids ...*Grid) *Grid {
	for _, g := range grids {
		if g != nil {
			return g
		}
	}
	return nil
}
