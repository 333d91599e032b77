package detection

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/TerraSight-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/TerraSight-Intelligence/pkg/errors"
	"github.com/turtacn/TerraSight-Intelligence/pkg/types/geo"
)

func testBBox() geo.BoundingBox {
	return geo.BoundingBox{MinLon: -122.50, MinLat: 37.70, MaxLon: -122.40, MaxLat: 37.80}
}

func testRegion() geo.Region {
	return geo.Region{ID: "sf-south", Name: "SF South", BBox: testBBox(), Tier: geo.TierMetro}
}

// stubBackend is a configurable in-memory Backend for pipeline tests.
type stubBackend struct {
	buildFn   func(region geo.Region, w geo.TimeWindow) (*Composite, error)
	usableFn  func(region geo.Region, w geo.TimeWindow) (int, error)
	sampleFn  func(comp *Composite, band Band) (*Grid, error)
	buildWait time.Duration
}

func (s *stubBackend) BuildComposite(ctx context.Context, region geo.Region, w geo.TimeWindow, _ CompositeOptions) (*Composite, error) {
	if s.buildWait > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(s.buildWait):
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.buildFn != nil {
		return s.buildFn(region, w)
	}
	return &Composite{
		Handle:   "composite/" + w.String(),
		RegionID: region.ID,
		Window:   w,
		Bands:    []Band{BandBlue, BandGreen, BandRed, BandNIR, BandSWIR},
	}, nil
}

func (s *stubBackend) UsableCaptures(ctx context.Context, region geo.Region, w geo.TimeWindow, _ float64) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if s.usableFn != nil {
		return s.usableFn(region, w)
	}
	return 1, nil
}

func (s *stubBackend) SampleBand(ctx context.Context, comp *Composite, band Band, _ float64) (*Grid, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.sampleFn != nil {
		return s.sampleFn(comp, band)
	}
	return NewGrid(2, 2, 10, testBBox()), nil
}

func uniformGrid(w, h int, v float64) *Grid {
	g := NewGrid(w, h, 10, testBBox())
	for i := range g.Values {
		g.Values[i] = v
	}
	return g
}

func TestIndexFormulas(t *testing.T) {
	assert.InDelta(t, 0.8182, NDVIValue(0.5, 0.05), 1e-4)
	assert.InDelta(t, -0.6667, NDBIValue(0.1, 0.5), 1e-4)
	assert.InDelta(t, -0.5714, BSIValue(0.1, 0.05, 0.5, 0.05), 1e-4)
	assert.InDelta(t, -0.6667, NDWIValue(0.1, 0.5), 1e-4)

	// Zero denominators over no-data pixels yield zero, not NaN.
	assert.Equal(t, 0.0, NDVIValue(0, 0))
	assert.Equal(t, 0.0, BSIValue(0, 0, 0, 0))
}

func TestIndexCalculatorCompute(t *testing.T) {
	bandValues := map[Band]float64{
		BandBlue:  0.05,
		BandGreen: 0.10,
		BandRed:   0.05,
		BandNIR:   0.50,
		BandSWIR:  0.10,
	}
	backend := &stubBackend{
		sampleFn: func(_ *Composite, band Band) (*Grid, error) {
			return uniformGrid(3, 3, bandValues[band]), nil
		},
	}
	calc := NewIndexCalculator(backend, logging.NewNopLogger())

	comp := &Composite{
		Handle: "h",
		Window: geo.NewTimeWindow(time.Date(2025, 7, 8, 0, 0, 0, 0, time.UTC)),
		Bands:  []Band{BandBlue, BandGreen, BandRed, BandNIR, BandSWIR},
	}
	set, err := calc.Compute(context.Background(), comp, 10)
	require.NoError(t, err)
	require.False(t, set.Degraded)

	assert.InDelta(t, NDVIValue(0.50, 0.05), set.NDVI.At(1, 1), 1e-9)
	assert.InDelta(t, NDBIValue(0.10, 0.50), set.NDBI.At(2, 0), 1e-9)
	assert.InDelta(t, BSIValue(0.10, 0.05, 0.50, 0.05), set.BSI.At(0, 2), 1e-9)
	assert.InDelta(t, NDWIValue(0.10, 0.50), set.NDWI.At(0, 0), 1e-9)
}

func TestIndexCalculatorEmptyComposite(t *testing.T) {
	sampled := false
	backend := &stubBackend{
		sampleFn: func(_ *Composite, _ Band) (*Grid, error) {
			sampled = true
			return nil, nil
		},
	}
	calc := NewIndexCalculator(backend, logging.NewNopLogger())

	set, err := calc.Compute(context.Background(), &Composite{}, 10)
	require.NoError(t, err)
	assert.True(t, set.Degraded)
	assert.Nil(t, set.NDVI)
	assert.False(t, sampled, "empty composite must not hit the backend")

	set, err = calc.Compute(context.Background(), nil, 10)
	require.NoError(t, err)
	assert.True(t, set.Degraded)
}

func TestIndexCalculatorCancellation(t *testing.T) {
	backend := &stubBackend{
		sampleFn: func(_ *Composite, _ Band) (*Grid, error) {
			return uniformGrid(4, 4, 0.2), nil
		},
	}
	calc := NewIndexCalculator(backend, logging.NewNopLogger())
	comp := &Composite{Bands: []Band{BandRed}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := calc.Compute(ctx, comp, 10)
	require.Error(t, err)
	assert.True(t, errors.IsComputationTimeout(err) || ctx.Err() != nil)
}
