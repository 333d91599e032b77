package detection

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/turtacn/TerraSight-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/TerraSight-Intelligence/pkg/errors"
	"github.com/turtacn/TerraSight-Intelligence/pkg/types/geo"
)

// Config holds the tunables of the change-detection pipeline.
type Config struct {
	// StepTimeout bounds every remote-compute sub-step (composite build,
	// index calculation, vectorization).  On expiry the step yields a
	// zero/empty result tagged computation-timeout and the pipeline
	// continues instead of aborting the run.
	StepTimeout time.Duration `mapstructure:"step_timeout"`

	// FineResolutionM is the ground resolution of the first vectorization
	// attempt; CoarseResolutionM is used for the single retry after a
	// timeout at fine resolution.
	FineResolutionM   float64 `mapstructure:"fine_resolution_m"`
	CoarseResolutionM float64 `mapstructure:"coarse_resolution_m"`

	// MinChangeAreaM2 discards change polygons below this area.
	MinChangeAreaM2 float64 `mapstructure:"min_change_area_m2"`

	// Cloud-mask parameters forwarded to the composite backend.
	MaxCloudCoverPct   float64 `mapstructure:"max_cloud_cover_pct"`
	CloudProbThreshold float64 `mapstructure:"cloud_prob_threshold"`
	CloudBufferM       float64 `mapstructure:"cloud_buffer_m"`

	// MaxLookbackSteps caps the adaptive date search and the per-region
	// empty-composite fallback.
	MaxLookbackSteps int `mapstructure:"max_lookback_steps"`

	Thresholds Thresholds `mapstructure:"thresholds"`
}

// DefaultConfig returns the operational defaults.
func DefaultConfig() Config {
	return Config{
		StepTimeout:        60 * time.Second,
		FineResolutionM:    10,
		CoarseResolutionM:  20,
		MinChangeAreaM2:    200,
		MaxCloudCoverPct:   25,
		CloudProbThreshold: 50,
		CloudBufferM:       50,
		MaxLookbackSteps:   20,
		Thresholds:         DefaultThresholds(),
	}
}

// Validate rejects configurations the pipeline cannot run with.
func (c Config) Validate() error {
	if c.StepTimeout <= 0 {
		return errors.Configuration("detection: step_timeout must be positive")
	}
	if c.FineResolutionM <= 0 || c.CoarseResolutionM < c.FineResolutionM {
		return errors.Configuration("detection: resolutions must satisfy 0 < fine <= coarse")
	}
	if c.MinChangeAreaM2 < 0 {
		return errors.Configuration("detection: min_change_area_m2 must be >= 0")
	}
	if c.MaxLookbackSteps < 0 {
		return errors.Configuration("detection: max_lookback_steps must be >= 0")
	}
	return nil
}

// Detector composes the index calculator, classifier, vectorizer, and date
// searcher into a single per-region analysis call.
type Detector struct {
	backend    Backend
	calculator *IndexCalculator
	classifier *Classifier
	vectorizer *Vectorizer
	searcher   *DateSearcher
	cfg        Config
	log        logging.Logger

	now func() time.Time
}

// NewDetector wires the pipeline.  cfg must already be validated.
func NewDetector(backend Backend, cfg Config, log logging.Logger) *Detector {
	l := log.Named("detection")
	return &Detector{
		backend:    backend,
		calculator: NewIndexCalculator(backend, l),
		classifier: NewClassifier(cfg.Thresholds),
		vectorizer: NewVectorizer(cfg.MinChangeAreaM2, l),
		searcher:   NewDateSearcher(backend, cfg.MaxLookbackSteps, cfg.MaxCloudCoverPct, l),
		cfg:        cfg,
		log:        l,
		now:        time.Now,
	}
}

// FindUsableWindows delegates to the adaptive date search.
func (d *Detector) FindUsableWindows(ctx context.Context, region geo.Region, targetEnd time.Time) (SearchResult, error) {
	return d.searcher.FindUsableWindows(ctx, region, targetEnd)
}

// MaxLookbackSteps reports the configured lookback cap. The date search and
// the orchestrator's empty-composite fallback share this one budget.
func (d *Detector) MaxLookbackSteps() int {
	return d.cfg.MaxLookbackSteps
}

// Detect runs the full change-detection pipeline for one region and one
// (baseline, current) window pair.
//
// Environmental conditions degrade the result instead of failing the call:
// an empty composite flows through as constant-zero indices, and a timed-out
// sub-step yields its zero value and tags the result computation-timeout.
// The only errors returned are caller defects (invalid region or windows),
// a DataUnavailable signature that the orchestrating caller converts into a
// lookback retry, and parent-context cancellation.
func (d *Detector) Detect(ctx context.Context, region geo.Region, windowA, windowB geo.TimeWindow) (*geo.AnalysisResult, error) {
	if err := region.Validate(); err != nil {
		return nil, err
	}
	if err := geo.ValidatePair(windowA, windowB); err != nil {
		return nil, err
	}

	quality := geo.QualityOK
	opts := CompositeOptions{
		MaxCloudCoverPct:   d.cfg.MaxCloudCoverPct,
		CloudProbThreshold: d.cfg.CloudProbThreshold,
		CloudBufferM:       d.cfg.CloudBufferM,
	}

	compA, timedOut, err := d.buildComposite(ctx, region, windowA, opts)
	if err != nil {
		return nil, err
	}
	if timedOut {
		quality = geo.QualityTimeout
	}
	compB, timedOut, err := d.buildComposite(ctx, region, windowB, opts)
	if err != nil {
		return nil, err
	}
	if timedOut {
		quality = geo.QualityTimeout
	}

	idxA, timedOut, err := d.computeIndices(ctx, compA)
	if err != nil {
		return nil, err
	}
	if timedOut {
		quality = geo.QualityTimeout
	}
	idxB, timedOut, err := d.computeIndices(ctx, compB)
	if err != nil {
		return nil, err
	}
	if timedOut {
		quality = geo.QualityTimeout
	}
	if quality == geo.QualityOK && (idxA.Degraded || idxB.Degraded) {
		quality = geo.QualityEmptyComposite
	}

	labels, err := d.classifier.Classify(ctx, idxA, idxB)
	if err != nil {
		if isTimeout(err) && ctx.Err() == nil {
			quality = geo.QualityTimeout
			labels = &LabelGrid{}
		} else {
			return nil, err
		}
	}

	records, vecTimedOut, err := d.vectorizeWithFallback(ctx, labels)
	if err != nil {
		return nil, err
	}
	if vecTimedOut {
		quality = geo.QualityTimeout
	}

	count, totalArea, byType := Aggregate(records)
	d.log.Info("change detection complete",
		logging.String("region", region.ID),
		logging.String("windows", windowA.String()+" vs "+windowB.String()),
		logging.Int("changes", count),
		logging.Float64("total_area_m2", totalArea),
		logging.String("by_type", summaryLabel(byType)),
		logging.String("quality", string(quality)))

	return &geo.AnalysisResult{
		RegionID:    region.ID,
		WindowA:     windowA,
		WindowB:     windowB,
		ChangeCount: count,
		TotalAreaM2: totalArea,
		ByType:      byType,
		Records:     records,
		Quality:     quality,
		AnalyzedAt:  d.now().UTC(),
	}, nil
}

// buildComposite runs one bounded composite build.  A step timeout yields a
// nil composite (degraded downstream); a DataUnavailable error propagates so
// the caller can drive the lookback policy.
func (d *Detector) buildComposite(ctx context.Context, region geo.Region, w geo.TimeWindow, opts CompositeOptions) (*Composite, bool, error) {
	var comp *Composite
	timedOut, err := d.step(ctx, func(sctx context.Context) error {
		var berr error
		comp, berr = d.backend.BuildComposite(sctx, region, w, opts)
		return berr
	})
	if err != nil {
		if errors.IsDataUnavailable(err) {
			return nil, false, err
		}
		return nil, false, errors.Wrap(err, errors.ErrCodeExternalService, "composite build failed for window "+w.String())
	}
	if timedOut {
		d.log.Warn("composite build timed out",
			logging.String("region", region.ID),
			logging.String("window", w.String()))
		return nil, true, nil
	}
	return comp, false, nil
}

// computeIndices runs one bounded index calculation.  A nil composite (from
// a timed-out build) and an empty composite both produce a degraded set.
func (d *Detector) computeIndices(ctx context.Context, comp *Composite) (*IndexSet, bool, error) {
	if comp.Empty() {
		return &IndexSet{Degraded: true}, false, nil
	}
	var set *IndexSet
	timedOut, err := d.step(ctx, func(sctx context.Context) error {
		var cerr error
		set, cerr = d.calculator.Compute(sctx, comp, d.cfg.FineResolutionM)
		return cerr
	})
	if err != nil {
		return nil, false, err
	}
	if timedOut {
		return &IndexSet{Degraded: true}, true, nil
	}
	return set, false, nil
}

// vectorizeWithFallback attempts vectorization at fine resolution and, on a
// step timeout, retries exactly once on a grid downsampled to the coarse
// resolution.  A second timeout yields an empty record set; there is never a
// third attempt.
func (d *Detector) vectorizeWithFallback(ctx context.Context, labels *LabelGrid) ([]geo.ChangeRecord, bool, error) {
	var records []geo.ChangeRecord
	timedOut, err := d.step(ctx, func(sctx context.Context) error {
		var verr error
		records, verr = d.vectorizer.Vectorize(sctx, labels)
		return verr
	})
	if err != nil {
		return nil, false, err
	}
	if !timedOut {
		return records, false, nil
	}

	factor := int(d.cfg.CoarseResolutionM / d.cfg.FineResolutionM)
	if factor < 2 {
		factor = 2
	}
	coarse := Downsample(labels, factor)
	d.log.Warn("vectorization timed out, retrying once at coarse resolution",
		logging.Float64("coarse_resolution_m", coarse.CellSizeM))

	retryTimedOut, err := d.step(ctx, func(sctx context.Context) error {
		var verr error
		records, verr = d.vectorizer.Vectorize(sctx, coarse)
		return verr
	})
	if err != nil {
		return nil, true, err
	}
	if retryTimedOut {
		d.log.Error("coarse vectorization also timed out, continuing with empty result")
		return nil, true, nil
	}
	return records, true, nil
}

// step runs fn under the per-step deadline.  It reports (timedOut=true,
// err=nil) when the step itself expired while the parent context is still
// alive; parent cancellation and all other failures surface as errors.
func (d *Detector) step(ctx context.Context, fn func(context.Context) error) (bool, error) {
	sctx, cancel := context.WithTimeout(ctx, d.cfg.StepTimeout)
	defer cancel()

	err := fn(sctx)
	if err == nil {
		return false, nil
	}
	if isTimeout(err) && ctx.Err() == nil {
		return true, nil
	}
	return false, err
}

func isTimeout(err error) bool {
	return stderrors.Is(err, context.DeadlineExceeded) || errors.IsComputationTimeout(err)
}
