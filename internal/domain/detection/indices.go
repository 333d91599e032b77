package detection

import (
	"context"

	"github.com/turtacn/TerraSight-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/TerraSight-Intelligence/pkg/errors"
)

// IndexKind identifies one of the four normalized-difference indices the
// pipeline derives from a composite.
type IndexKind string

const (
	IndexNDVI IndexKind = "ndvi" // vegetation
	IndexNDBI IndexKind = "ndbi" // built-up
	IndexBSI  IndexKind = "bsi"  // bare soil
	IndexNDWI IndexKind = "ndwi" // water
)

// IndexSet holds the four index rasters for one composite.  Nil grids mean
// the composite was empty; readers must treat a nil grid as constant zero.
// Only NDVI, NDBI, and BSI drive classification; NDWI is carried for
// downstream consumers.
type IndexSet struct {
	NDVI     *Grid
	NDBI     *Grid
	BSI      *Grid
	NDWI     *Grid
	Degraded bool
}

// NDVIValue computes (NIR-Red)/(NIR+Red).
func NDVIValue(nir, red float64) float64 { return safeRatio(nir-red, nir+red) }

// NDBIValue computes (SWIR-NIR)/(SWIR+NIR).
func NDBIValue(swir, nir float64) float64 { return safeRatio(swir-nir, swir+nir) }

// BSIValue computes ((SWIR+Red)-(NIR+Blue))/((SWIR+Red)+(NIR+Blue)).
func BSIValue(swir, red, nir, blue float64) float64 {
	return safeRatio((swir+red)-(nir+blue), (swir+red)+(nir+blue))
}

// NDWIValue computes (Green-NIR)/(Green+NIR).
func NDWIValue(green, nir float64) float64 { return safeRatio(green-nir, green+nir) }

// safeRatio guards normalized-difference math against zero denominators,
// which occur over no-data pixels.
func safeRatio(num, den float64) float64 {
	if den == 0 {
		return 0
	}
	return num / den
}

// IndexCalculator derives the index rasters of a composite by sampling its
// reflectance bands from the backend and evaluating the normalized-difference
// formulas locally.
type IndexCalculator struct {
	backend Backend
	log     logging.Logger
}

// NewIndexCalculator constructs an IndexCalculator.
func NewIndexCalculator(backend Backend, log logging.Logger) *IndexCalculator {
	return &IndexCalculator{backend: backend, log: log.Named("indices")}
}

// Compute samples the five reflectance bands at resolutionM and derives all
// four indices.  For an empty composite no backend calls are made: the
// result carries nil (constant-zero) grids and is flagged Degraded.
func (c *IndexCalculator) Compute(ctx context.Context, comp *Composite, resolutionM float64) (*IndexSet, error) {
	if comp.Empty() {
		c.log.Warn("composite has no usable bands, indices degrade to constant zero",
			logging.String("window", comp.windowLabel()))
		return &IndexSet{Degraded: true}, nil
	}

	bands := map[Band]*Grid{}
	for _, b := range []Band{BandBlue, BandGreen, BandRed, BandNIR, BandSWIR} {
		g, err := c.backend.SampleBand(ctx, comp, b, resolutionM)
		if err != nil {
			return nil, errors.Wrap(err, errors.CodeUnknown, "failed to sample band "+string(b))
		}
		bands[b] = g
	}

	ref := bands[BandRed]
	set := &IndexSet{
		NDVI: NewGrid(ref.Width, ref.Height, ref.CellSizeM, ref.BBox),
		NDBI: NewGrid(ref.Width, ref.Height, ref.CellSizeM, ref.BBox),
		BSI:  NewGrid(ref.Width, ref.Height, ref.CellSizeM, ref.BBox),
		NDWI: NewGrid(ref.Width, ref.Height, ref.CellSizeM, ref.BBox),
	}

	for y := 0; y < ref.Height; y++ {
		// Cooperative cancellation once per row keeps long rasters abortable.
		if err := ctx.Err(); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeComputationTimeout, "index calculation cancelled")
		}
		for x := 0; x < ref.Width; x++ {
			blue := bands[BandBlue].At(x, y)
			green := bands[BandGreen].At(x, y)
			red := bands[BandRed].At(x, y)
			nir := bands[BandNIR].At(x, y)
			swir := bands[BandSWIR].At(x, y)

			set.NDVI.Set(x, y, NDVIValue(nir, red))
			set.NDBI.Set(x, y, NDBIValue(swir, nir))
			set.BSI.Set(x, y, BSIValue(swir, red, nir, blue))
			set.NDWI.Set(x, y, NDWIValue(green, nir))
		}
	}

	return set, nil
}

func (c *Composite) windowLabel() string {
	if c == nil {
		return "<nil>"
	}
	return c.Window.String()
}
