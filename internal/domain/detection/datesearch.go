package detection

import (
	"context"
	"time"

	"github.com/turtacn/TerraSight-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/TerraSight-Intelligence/pkg/types/geo"
)

// SearchResult is the outcome of an adaptive date search.
type SearchResult struct {
	WindowA geo.TimeWindow
	WindowB geo.TimeWindow
	Found   bool
	Steps   int
}

// OffsetDays reports how far the returned pair was stepped back from the
// original target, in days.
func (r SearchResult) OffsetDays() int {
	return r.Steps * int(geo.ReportingPeriod.Hours()/24)
}

// DateSearcher finds a usable (baseline, current) window pair when no
// explicit dates are given or when imagery is missing for the target pair.
//
// The search is an explicit bounded loop with fixed-step backoff: the whole
// pair is stepped back one reporting period at a time, up to maxSteps times.
// There is no recursion and no exponential growth; the cap is enforced
// structurally.
type DateSearcher struct {
	backend     Backend
	maxSteps    int
	maxCloudPct float64
	log         logging.Logger

	// now is injected for tests; defaults to time.Now.
	now func() time.Time
}

// NewDateSearcher constructs a DateSearcher.
func NewDateSearcher(backend Backend, maxSteps int, maxCloudPct float64, log logging.Logger) *DateSearcher {
	return &DateSearcher{
		backend:     backend,
		maxSteps:    maxSteps,
		maxCloudPct: maxCloudPct,
		log:         log.Named("datesearch"),
		now:         time.Now,
	}
}

// FindUsableWindows probes candidate (baseline, current) pairs starting at
// targetEnd (default: one reporting period before now) and returns the first
// pair where both windows hold at least one usable capture, together with
// the number of lookback steps taken.
//
// When the cap is exhausted the original target pair is returned with
// Found=false: downstream callers treat that as "proceed with best effort,
// likely degraded", never as fatal.
func (s *DateSearcher) FindUsableWindows(ctx context.Context, region geo.Region, targetEnd time.Time) (SearchResult, error) {
	if targetEnd.IsZero() {
		targetEnd = s.now().Add(-geo.ReportingPeriod)
	}
	baseline, current := geo.WindowPair(targetEnd)

	for step := 0; step <= s.maxSteps; step++ {
		a := baseline.StepBack(step)
		b := current.StepBack(step)

		if err := ctx.Err(); err != nil {
			return SearchResult{WindowA: a, WindowB: b}, err
		}

		if s.usable(ctx, region, a) && s.usable(ctx, region, b) {
			if step > 0 {
				s.log.Info("usable window pair found after lookback",
					logging.String("region", region.ID),
					logging.Int("steps", step),
					logging.String("window_b", b.String()))
			}
			return SearchResult{WindowA: a, WindowB: b, Found: true, Steps: step}, nil
		}
	}

	s.log.Warn("date search exhausted lookback cap",
		logging.String("region", region.ID),
		logging.Int("max_steps", s.maxSteps))
	return SearchResult{WindowA: baseline, WindowB: current, Found: false, Steps: s.maxSteps}, nil
}

// usable probes one window.  Probe failures count as an unusable window
// rather than aborting the search: missing imagery is an environmental
// condition, and the next older pair may still succeed.
func (s *DateSearcher) usable(ctx context.Context, region geo.Region, w geo.TimeWindow) bool {
	n, err := s.backend.UsableCaptures(ctx, region, w, s.maxCloudPct)
	if err != nil {
		s.log.Debug("capture probe failed, treating window as empty",
			logging.String("region", region.ID),
			logging.String("window", w.String()),
			logging.Err(err))
		return false
	}
	return n > 0
}
