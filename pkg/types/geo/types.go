// Package geo defines the geographic and temporal value types shared between
// the change-detection pipeline and the investment-scoring engine: regions,
// reporting windows, change records, and per-run analysis aggregates.
//
// All types here are plain immutable values.  A Region is created at
// configuration time and never mutated; each analysis run produces a fresh
// AnalysisResult rather than updating one in place.
package geo

import (
	"fmt"
	"math"
	"time"

	"github.com/turtacn/TerraSight-Intelligence/pkg/errors"
)

// ReportingPeriod is the width of every analysis time window.  Two adjacent
// windows (baseline and current) make up one change-detection comparison.
const ReportingPeriod = 7 * 24 * time.Hour

// Point is a WGS84 longitude/latitude coordinate.
type Point struct {
	Lon float64 `json:"lon"`
	Lat float64 `json:"lat"`
}

// BoundingBox is an axis-aligned WGS84 bounding polygon.
type BoundingBox struct {
	MinLon float64 `json:"min_lon" mapstructure:"min_lon"`
	MinLat float64 `json:"min_lat" mapstructure:"min_lat"`
	MaxLon float64 `json:"max_lon" mapstructure:"max_lon"`
	MaxLat float64 `json:"max_lat" mapstructure:"max_lat"`
}

// Validate checks coordinate ranges and ordering.
func (b BoundingBox) Validate() error {
	if b.MinLon < -180 || b.MaxLon > 180 || b.MinLat < -90 || b.MaxLat > 90 {
		return errors.New(errors.ErrCodeRegionInvalidBBox,
			fmt.Sprintf("coordinates out of WGS84 range: %+v", b))
	}
	if b.MinLon >= b.MaxLon || b.MinLat >= b.MaxLat {
		return errors.New(errors.ErrCodeRegionInvalidBBox,
			fmt.Sprintf("degenerate bounding box: %+v", b))
	}
	return nil
}

// IsZero reports whether the box is the zero value (no box configured).
func (b BoundingBox) IsZero() bool {
	return b.MinLon == 0 && b.MinLat == 0 && b.MaxLon == 0 && b.MaxLat == 0
}

// Center returns the box midpoint.
func (b BoundingBox) Center() Point {
	return Point{Lon: (b.MinLon + b.MaxLon) / 2, Lat: (b.MinLat + b.MaxLat) / 2}
}

// AreaM2 approximates the box area in square metres, correcting longitude
// spacing for latitude.
func (b BoundingBox) AreaM2() float64 {
	latMid := (b.MinLat + b.MaxLat) / 2 * math.Pi / 180
	kx := 111132.92 - 559.82*math.Cos(2*latMid)
	ky := 111412.84 * math.Cos(latMid)
	return math.Abs((b.MaxLat - b.MinLat) * kx * (b.MaxLon - b.MinLon) * ky)
}

// OverpassBBox renders the box in Overpass QL order (south,west,north,east).
func (b BoundingBox) OverpassBBox() string {
	return fmt.Sprintf("%f,%f,%f,%f", b.MinLat, b.MinLon, b.MaxLat, b.MaxLon)
}

// Tier is an ordinal market classification of a region, used to select the
// benchmark price for relative-value comparison.
type Tier string

const (
	TierMetro     Tier = "metro"
	TierSecondary Tier = "secondary"
	TierEmerging  Tier = "emerging"
	TierFrontier  Tier = "frontier"
	TierUnknown   Tier = ""
)

// Valid reports whether t is a known tier (TierUnknown counts as valid:
// tier classification is optional).
func (t Tier) Valid() bool {
	switch t {
	case TierMetro, TierSecondary, TierEmerging, TierFrontier, TierUnknown:
		return true
	}
	return false
}

// Region is an immutable monitored area: identifier, bounding polygon, and an
// optional tier classification.  Many analyses reference one Region.
type Region struct {
	ID   string      `json:"id" mapstructure:"id"`
	Name string      `json:"name" mapstructure:"name"`
	BBox BoundingBox `json:"bbox" mapstructure:"bbox"`
	Tier Tier        `json:"tier,omitempty" mapstructure:"tier"`
}

// Validate checks the region definition.  A failing region is a configuration
// defect and therefore fatal to the caller.
func (r Region) Validate() error {
	if r.ID == "" {
		return errors.Configuration("region: id is required")
	}
	if r.BBox.IsZero() {
		return errors.Configuration(fmt.Sprintf("region %s: bounding box is required", r.ID))
	}
	if err := r.BBox.Validate(); err != nil {
		return err
	}
	if !r.Tier.Valid() {
		return errors.New(errors.ErrCodeRegionInvalidTier,
			fmt.Sprintf("region %s: unknown tier %q", r.ID, r.Tier))
	}
	return nil
}

// TimeWindow is a (start, end) date pair exactly one ReportingPeriod wide.
type TimeWindow struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// NewTimeWindow builds the window ending at end.
func NewTimeWindow(end time.Time) TimeWindow {
	end = end.UTC().Truncate(24 * time.Hour)
	return TimeWindow{Start: end.Add(-ReportingPeriod), End: end}
}

// Validate checks ordering and width.
func (w TimeWindow) Validate() error {
	if !w.End.After(w.Start) {
		return errors.New(errors.ErrCodeInvalidWindow,
			fmt.Sprintf("window end %s does not follow start %s", w.End.Format(time.DateOnly), w.Start.Format(time.DateOnly)))
	}
	if w.End.Sub(w.Start) != ReportingPeriod {
		return errors.New(errors.ErrCodeInvalidWindow,
			fmt.Sprintf("window must be exactly %s wide, got %s", ReportingPeriod, w.End.Sub(w.Start)))
	}
	return nil
}

// StepBack shifts the window n reporting periods into the past.
func (w TimeWindow) StepBack(n int) TimeWindow {
	d := time.Duration(n) * ReportingPeriod
	return TimeWindow{Start: w.Start.Add(-d), End: w.End.Add(-d)}
}

// String renders the window as "2025-07-01..2025-07-08".
func (w TimeWindow) String() string {
	return w.Start.Format(time.DateOnly) + ".." + w.End.Format(time.DateOnly)
}

// WindowPair builds the adjacent (baseline, current) pair whose current
// window ends at end.  The baseline window B-A ordering invariant (current
// never precedes baseline) holds by construction.
func WindowPair(end time.Time) (baseline, current TimeWindow) {
	current = NewTimeWindow(end)
	baseline = current.StepBack(1)
	return baseline, current
}

// ValidatePair checks that both windows are well formed and that the current
// window does not precede the baseline.
func ValidatePair(baseline, current TimeWindow) error {
	if err := baseline.Validate(); err != nil {
		return err
	}
	if err := current.Validate(); err != nil {
		return err
	}
	if current.Start.Before(baseline.Start) {
		return errors.New(errors.ErrCodeInvalidWindow,
			fmt.Sprintf("current window %s precedes baseline %s", current, baseline))
	}
	return nil
}

// ChangeType is the discrete classification of a detected land-cover change.
type ChangeType string

const (
	ChangeDevelopment   ChangeType = "development"
	ChangeClearing      ChangeType = "clearing"
	ChangeRoadCandidate ChangeType = "road-candidate"
	ChangeOther         ChangeType = "other"
)

// ChangeRecord is one classified change polygon with its area.  The set of
// ChangeRecords produced by a single analysis run is the unit of output and
// is immutable once produced.
type ChangeRecord struct {
	ID     string     `json:"id"`
	Type   ChangeType `json:"type"`
	AreaM2 float64    `json:"area_m2"`
	Ring   []Point    `json:"ring"`
}

// DataQuality flags how trustworthy an AnalysisResult is.
type DataQuality string

const (
	QualityOK             DataQuality = "ok"
	QualityEmptyComposite DataQuality = "empty-composite"
	QualityTimeout        DataQuality = "computation-timeout"
)

// AnalysisResult is the per (region, window-pair) aggregate of one
// change-detection run.  A new run always produces a new AnalysisResult.
type AnalysisResult struct {
	RegionID      string             `json:"region_id"`
	WindowA       TimeWindow         `json:"window_a"`
	WindowB       TimeWindow         `json:"window_b"`
	ChangeCount   int                `json:"change_count"`
	TotalAreaM2   float64            `json:"total_area_m2"`
	ByType        map[ChangeType]int `json:"by_type"`
	Records       []ChangeRecord     `json:"records,omitempty"`
	Quality       DataQuality        `json:"quality"`
	LookbackSteps int                `json:"lookback_steps"`
	AnalyzedAt    time.Time          `json:"analyzed_at"`
}
