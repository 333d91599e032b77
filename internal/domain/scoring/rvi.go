package scoring

import (
	"github.com/turtacn/TerraSight-Intelligence/pkg/types/geo"
)

// TierBenchmarks carries the per-tier market fundamentals used to derive an
// expected price: a benchmark price per square metre and the infrastructure
// score a typical region of that tier carries.
type TierBenchmarks struct {
	// PricePerM2 maps a tier to its benchmark transaction price.
	PricePerM2 map[geo.Tier]float64 `mapstructure:"price_per_m2"`
	// BaselineInfraScore maps a tier to the infrastructure score expected
	// of an average region in that tier.
	BaselineInfraScore map[geo.Tier]float64 `mapstructure:"baseline_infra_score"`
}

// DefaultTierBenchmarks returns the operational benchmark table.
func DefaultTierBenchmarks() TierBenchmarks {
	return TierBenchmarks{
		PricePerM2: map[geo.Tier]float64{
			geo.TierMetro:     850,
			geo.TierSecondary: 420,
			geo.TierEmerging:  180,
			geo.TierFrontier:  60,
		},
		BaselineInfraScore: map[geo.Tier]float64{
			geo.TierMetro:     75,
			geo.TierSecondary: 60,
			geo.TierEmerging:  45,
			geo.TierFrontier:  30,
		},
	}
}

// BenchmarkFor returns the benchmark price for tier, reporting ok=false for
// unknown tiers so callers can fall back to trend mode.
func (b TierBenchmarks) BenchmarkFor(tier geo.Tier) (float64, bool) {
	p, ok := b.PricePerM2[tier]
	return p, ok && p > 0
}

// infrastructurePremium scales the expected price by how far the region's
// infrastructure score deviates from its tier baseline.  A region scoring 20
// points above baseline supports a 10% higher expected price; the premium is
// clamped to [0.80, 1.30].
func (b TierBenchmarks) infrastructurePremium(tier geo.Tier, infraScore float64) float64 {
	baseline, ok := b.BaselineInfraScore[tier]
	if !ok {
		baseline = 50
	}
	return clamp(1+(infraScore-baseline)/100*0.5, 0.80, 1.30)
}

// momentumPremium scales the expected price by recent price momentum, clamped
// to [0.90, 1.20].
func momentumPremium(trendPct float64) float64 {
	return clamp(1+trendPct/100*0.5, 0.90, 1.20)
}

// RelativeValueIndex computes actual/expected price for a region.  ok=false
// means RVI is not computable: no benchmark for the tier, no actual price, or
// no infrastructure context to derive the expected price from.
func (b TierBenchmarks) RelativeValueIndex(tier geo.Tier, infra *InfrastructureSummary, market *MarketSummary) (float64, bool) {
	if market == nil || market.AvgPricePerM2 <= 0 || infra == nil {
		return 0, false
	}
	benchmark, ok := b.BenchmarkFor(tier)
	if !ok {
		return 0, false
	}
	expected := benchmark * b.infrastructurePremium(tier, infra.Score) * momentumPremium(market.Trend30DPct)
	if expected <= 0 {
		return 0, false
	}
	return market.AvgPricePerM2 / expected, true
}

// InterpretRVI renders the valuation label for an RVI value.
func InterpretRVI(rvi float64) string {
	switch {
	case rvi < 0.7:
		return "significantly undervalued"
	case rvi < 0.9:
		return "undervalued"
	case rvi < 1.1:
		return "fair value"
	case rvi < 1.3:
		return "overvalued"
	default:
		return "significantly overvalued"
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
