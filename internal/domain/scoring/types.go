// Package scoring implements the multiplicative investment-scoring engine:
// a development base score derived from detected change volume, infrastructure
// and market multipliers, a blended confidence with a non-linear multiplier,
// and the final BUY/WATCH/PASS recommendation.
package scoring

import (
	"context"

	"github.com/turtacn/TerraSight-Intelligence/pkg/types/geo"
)

// InfraFeature is one tagged infrastructure feature near a region, as
// reported by the infrastructure collaborator.
type InfraFeature struct {
	Kind string `json:"kind"`
	Name string `json:"name"`
}

// InfrastructureSummary is the infrastructure collaborator's view of a
// region: a 0-100 composite score plus the features it was derived from.
type InfrastructureSummary struct {
	Score          float64        `json:"score"`
	MajorFeatures  []InfraFeature `json:"major_features,omitempty"`
	DataConfidence float64        `json:"data_confidence"`
	DataSource     string         `json:"data_source"`
}

// MarketHeat is the market collaborator's qualitative temperature reading.
type MarketHeat string

const (
	HeatCold MarketHeat = "cold"
	HeatCool MarketHeat = "cool"
	HeatWarm MarketHeat = "warm"
	HeatHot  MarketHeat = "hot"
)

// NormalizeHeat maps the alternate stable/warming/booming vocabulary some
// market sources use onto the canonical scale.  Unknown values pass through.
func NormalizeHeat(raw string) MarketHeat {
	switch raw {
	case "stable":
		return HeatCool
	case "warming":
		return HeatWarm
	case "booming":
		return HeatHot
	}
	return MarketHeat(raw)
}

// MarketSummary is the market collaborator's view of a region.
type MarketSummary struct {
	AvgPricePerM2  float64    `json:"avg_price_per_m2"`
	Trend30DPct    float64    `json:"price_trend_30d"`
	Heat           MarketHeat `json:"market_heat"`
	DataConfidence float64    `json:"data_confidence"`
	DataSource     string     `json:"data_source"`
}

// InfrastructureProvider fetches the infrastructure summary for a region.
// A (nil, nil) return is a valid "no data" response, not an error.
type InfrastructureProvider interface {
	FetchInfrastructure(ctx context.Context, region geo.Region) (*InfrastructureSummary, error)
}

// MarketProvider fetches the market summary for a region.  A (nil, nil)
// return is a valid "no data" response, not an error.
type MarketProvider interface {
	FetchMarket(ctx context.Context, region geo.Region) (*MarketSummary, error)
}

// NullInfrastructureProvider always reports "unavailable".  It is the default
// when no infrastructure collaborator is configured, so the engine branches on
// "did this call return data", never on "is this capability installed".
type NullInfrastructureProvider struct{}

func (NullInfrastructureProvider) FetchInfrastructure(_ context.Context, _ geo.Region) (*InfrastructureSummary, error) {
	return nil, nil
}

// NullMarketProvider always reports "unavailable".
type NullMarketProvider struct{}

func (NullMarketProvider) FetchMarket(_ context.Context, _ geo.Region) (*MarketSummary, error) {
	return nil, nil
}

// MarketMode identifies which market-multiplier path was taken.
type MarketMode string

const (
	// MarketModeRVI means the relative-value index was computed against the
	// tier benchmark price.
	MarketModeRVI MarketMode = "rvi"
	// MarketModeTrend means the multiplier was banded directly on the
	// 30-day price trend.
	MarketModeTrend MarketMode = "trend-fallback"
	// MarketModeAbsent means no market data was available and the neutral
	// default applied.
	MarketModeAbsent MarketMode = "absent"
)

// Recommendation is the engine's verdict for a region.
type Recommendation string

const (
	RecommendBuy   Recommendation = "BUY"
	RecommendWatch Recommendation = "WATCH"
	RecommendPass  Recommendation = "PASS"
)

// Result is the full scoring breakdown for one region.  It carries every
// intermediate factor so a reviewer can reproduce the final score by hand.
//
// Result holds no timestamps: identical inputs must produce bit-identical
// results, run after run.
type Result struct {
	RegionID       string  `json:"region_id"`
	ChangeCount    int     `json:"change_count"`
	AffectedAreaM2 float64 `json:"affected_area_m2"`

	BaseScore            float64    `json:"base_score"`
	InfraMultiplier      float64    `json:"infra_multiplier"`
	MarketMultiplier     float64    `json:"market_multiplier"`
	MarketMode           MarketMode `json:"market_mode"`
	Confidence           float64    `json:"confidence"`
	ConfidenceMultiplier float64    `json:"confidence_multiplier"`
	FinalScore           float64    `json:"final_score"`

	// RVI is set only when the relative-value index could be computed; the
	// interpretation label accompanies it.
	RVI      *float64 `json:"rvi,omitempty"`
	RVILabel string   `json:"rvi_label,omitempty"`

	InfraAvailable  bool `json:"infra_available"`
	MarketAvailable bool `json:"market_available"`

	Recommendation Recommendation `json:"recommendation"`
	Rationale      string         `json:"rationale"`
}
