package scoring

import (
	"fmt"
	"math"

	"github.com/turtacn/TerraSight-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/TerraSight-Intelligence/pkg/types/geo"
)

// satelliteConfidence is the fixed confidence of the change-detection signal,
// the only source guaranteed present.
const satelliteConfidence = 1.0

// Engine turns a region's detected change volume and collaborator summaries
// into a scored recommendation.  All stages are pure functions of their
// inputs: identical inputs yield bit-identical results.
type Engine struct {
	benchmarks TierBenchmarks
	log        logging.Logger
}

// NewEngine constructs an Engine over the given benchmark table.
func NewEngine(benchmarks TierBenchmarks, log logging.Logger) *Engine {
	return &Engine{benchmarks: benchmarks, log: log.Named("scoring")}
}

// Score runs the full multiplicative pipeline.  infra and market may be nil:
// absence substitutes a neutral default and lowers confidence, it never fails
// the call.
func (e *Engine) Score(region geo.Region, changeCount int, affectedAreaM2 float64, infra *InfrastructureSummary, market *MarketSummary) Result {
	base := DevelopmentScore(changeCount)
	infraMult := InfraMultiplier(infra)
	marketMult, mode, rvi := e.marketMultiplier(region.Tier, infra, market)
	confidence := BlendConfidence(infra, market)
	confMult := ConfidenceMultiplier(confidence)
	final := clamp(base*infraMult*marketMult*confMult, 0, 100)
	rec, rationale := Recommend(final, confidence)

	result := Result{
		RegionID:             region.ID,
		ChangeCount:          changeCount,
		AffectedAreaM2:       affectedAreaM2,
		BaseScore:            base,
		InfraMultiplier:      infraMult,
		MarketMultiplier:     marketMult,
		MarketMode:           mode,
		Confidence:           confidence,
		ConfidenceMultiplier: confMult,
		FinalScore:           final,
		InfraAvailable:       infra != nil,
		MarketAvailable:      market != nil,
		Recommendation:       rec,
		Rationale:            rationale,
	}
	if rvi != nil {
		result.RVI = rvi
		result.RVILabel = InterpretRVI(*rvi)
	}

	e.log.Info("region scored",
		logging.String("region", region.ID),
		logging.Int("change_count", changeCount),
		logging.Float64("final_score", final),
		logging.Float64("confidence", confidence),
		logging.String("market_mode", string(mode)),
		logging.String("recommendation", string(rec)))
	return result
}

// DevelopmentScore maps detected change volume to the base score, a monotonic
// step function saturating at 5 and 40.
func DevelopmentScore(changeCount int) float64 {
	switch {
	case changeCount > 50000:
		return 40
	case changeCount > 20000:
		return 35
	case changeCount > 10000:
		return 30
	case changeCount > 5000:
		return 25
	case changeCount > 1000:
		return 20
	case changeCount > 500:
		return 15
	case changeCount > 100:
		return 10
	default:
		return 5
	}
}

// InfraMultiplier discretizes the 0-100 infrastructure score into five tiers.
// A missing summary substitutes the neutral default 0.90.
func InfraMultiplier(infra *InfrastructureSummary) float64 {
	if infra == nil {
		return 0.90
	}
	switch {
	case infra.Score >= 90:
		return 1.30
	case infra.Score >= 75:
		return 1.15
	case infra.Score >= 60:
		return 1.00
	case infra.Score >= 40:
		return 0.90
	default:
		return 0.80
	}
}

// marketMultiplier selects between RVI mode and trend-fallback mode.  RVI
// mode needs a benchmark price for the region's tier plus infrastructure and
// market context; anything less falls back to banding on the 30-day trend.
// A missing market summary substitutes the neutral default 0.95.
func (e *Engine) marketMultiplier(tier geo.Tier, infra *InfrastructureSummary, market *MarketSummary) (float64, MarketMode, *float64) {
	if market == nil {
		return 0.95, MarketModeAbsent, nil
	}
	if rvi, ok := e.benchmarks.RelativeValueIndex(tier, infra, market); ok {
		return RVIMultiplier(rvi, market.Trend30DPct), MarketModeRVI, &rvi
	}
	return TrendMultiplier(market.Trend30DPct), MarketModeTrend, nil
}

// RVIMultiplier bands on the relative-value index (low RVI means undervalued,
// hence a larger multiplier), scales by a tenth of the trend, and clamps to
// the band range.
func RVIMultiplier(rvi, trendPct float64) float64 {
	var m float64
	switch {
	case rvi < 0.7:
		m = 1.40
	case rvi < 0.9:
		m = 1.25
	case rvi < 1.1:
		m = 1.00
	case rvi < 1.3:
		m = 0.90
	default:
		m = 0.85
	}
	return clamp(m*(1+trendPct/100*0.1), 0.85, 1.40)
}

// TrendMultiplier bands directly on the 30-day price-trend percentage.
func TrendMultiplier(trendPct float64) float64 {
	switch {
	case trendPct >= 15:
		return 1.40
	case trendPct >= 8:
		return 1.20
	case trendPct >= 2:
		return 1.00
	case trendPct >= 0:
		return 0.95
	default:
		return 0.85
	}
}

// BlendConfidence combines per-source confidences into one value in
// [0.20, 0.95].  The satellite signal is always present at confidence 1.0;
// collaborator confidences get a +0.05 boost (capped at 0.95) when already
// high, and a blend below 0.60 takes an additional 0.90 penalty.
func BlendConfidence(infra *InfrastructureSummary, market *MarketSummary) float64 {
	var blended float64
	switch {
	case infra != nil && market != nil:
		blended = 0.40*satelliteConfidence +
			0.30*boostConfidence(infra.DataConfidence) +
			0.30*boostConfidence(market.DataConfidence)
	case infra != nil:
		blended = 0.60*satelliteConfidence + 0.40*boostConfidence(infra.DataConfidence)
	case market != nil:
		blended = 0.60*satelliteConfidence + 0.40*boostConfidence(market.DataConfidence)
	default:
		blended = 0.50 * satelliteConfidence
	}
	if blended < 0.60 {
		blended *= 0.90
	}
	return clamp(blended, 0.20, 0.95)
}

func boostConfidence(c float64) float64 {
	if c >= 0.85 {
		return math.Min(c+0.05, 0.95)
	}
	return c
}

// ConfidenceMultiplier maps raw confidence onto the non-linear scaling factor
// applied to the final score.  Low-confidence results are penalized much more
// steeply than high-confidence ones.
func ConfidenceMultiplier(confidence float64) float64 {
	var m float64
	switch {
	case confidence < 0.50:
		m = 0.70
	case confidence < 0.85:
		m = 0.70 + 0.27*math.Pow((confidence-0.50)/0.35, 1.2)
	default:
		m = 0.97 + (confidence-0.85)*0.30
	}
	return clamp(m, 0.70, 1.00)
}

// Recommend applies the decision thresholds and builds the rationale.  The
// two PASS causes are spelled out separately: a score too low to act on reads
// differently from a score the engine cannot trust.
func Recommend(finalScore, confidence float64) (Recommendation, string) {
	switch {
	case finalScore >= 45 && confidence >= 0.70:
		return RecommendBuy, fmt.Sprintf(
			"strong signal: score %.1f with confidence %.2f clears the primary buy threshold", finalScore, confidence)
	case finalScore >= 40 && confidence >= 0.60:
		return RecommendBuy, fmt.Sprintf(
			"moderate signal: score %.1f with confidence %.2f clears the secondary buy threshold", finalScore, confidence)
	case finalScore >= 25 && confidence >= 0.40:
		return RecommendWatch, fmt.Sprintf(
			"score %.1f with confidence %.2f warrants continued monitoring", finalScore, confidence)
	case finalScore < 25:
		return RecommendPass, fmt.Sprintf(
			"low score: %.1f is below the watch threshold", finalScore)
	default:
		return RecommendPass, fmt.Sprintf(
			"insufficient confidence: %.2f is too low to act on a score of %.1f", confidence, finalScore)
	}
}
