// Package osm implements the infrastructure collaborator on top of the
// OpenStreetMap Overpass API.  It distills the tagged features around a
// region into the 0-100 infrastructure score the scoring engine consumes.
package osm

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/serjvanilla/go-overpass"

	"github.com/turtacn/TerraSight-Intelligence/internal/config"
	"github.com/turtacn/TerraSight-Intelligence/internal/domain/scoring"
	"github.com/turtacn/TerraSight-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/TerraSight-Intelligence/pkg/errors"
	"github.com/turtacn/TerraSight-Intelligence/pkg/types/geo"
)

const dataSource = "osm-overpass"

// Querier abstracts the overpass client for testing.
type Querier interface {
	Query(query string) (overpass.Result, error)
}

// categoryWeight scores one feature category.  Contribution saturates at
// maxCount features so a single dense category cannot dominate the score.
type categoryWeight struct {
	kind     string
	perItem  float64
	maxCount int
}

// weights sum to 100 at full saturation.
var weights = []categoryWeight{
	{kind: "highway", perItem: 8, maxCount: 5},
	{kind: "railway_station", perItem: 10, maxCount: 2},
	{kind: "hospital", perItem: 7, maxCount: 2},
	{kind: "school", perItem: 4, maxCount: 3},
	{kind: "supermarket", perItem: 3, maxCount: 3},
	{kind: "power_substation", perItem: 5, maxCount: 1},
}

// Provider queries Overpass for the infrastructure features inside a
// region's bounding box.
type Provider struct {
	client  Querier
	timeout time.Duration
	log     logging.Logger
}

var _ scoring.InfrastructureProvider = (*Provider)(nil)

// NewProvider builds an Overpass-backed provider, or the null provider when
// the collaborator is disabled in config.
func NewProvider(cfg config.OverpassConfig, log logging.Logger) scoring.InfrastructureProvider {
	if !cfg.Enabled {
		return scoring.NullInfrastructureProvider{}
	}
	httpClient := &http.Client{Timeout: cfg.RequestTimeout}
	client := overpass.NewWithSettings(cfg.Endpoint, 1, httpClient)
	return NewProviderWithClient(&client, cfg.RequestTimeout, log)
}

// NewProviderWithClient wraps an existing querier. Used by tests.
func NewProviderWithClient(client Querier, timeout time.Duration, log logging.Logger) *Provider {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Provider{client: client, timeout: timeout, log: log.Named("osm")}
}

// FetchInfrastructure queries Overpass and folds the result into a summary.
// Transport failures return an error so the caller can decide between
// retrying and degrading to a nil summary.
func (p *Provider) FetchInfrastructure(ctx context.Context, region geo.Region) (*scoring.InfrastructureSummary, error) {
	result, err := p.query(ctx, buildQuery(region.BBox))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDataSourceUnavailable, "overpass query failed")
	}

	features := classifyFeatures(result)
	summary := &scoring.InfrastructureSummary{
		Score:          scoreFeatures(features),
		MajorFeatures:  majorFeatures(features),
		DataConfidence: confidence(features),
		DataSource:     dataSource,
	}

	p.log.Debug("Infrastructure summary computed",
		logging.String("region", region.ID),
		logging.Float64("score", summary.Score),
		logging.Int("features", len(features)))
	return summary, nil
}

// query runs the blocking overpass call in a goroutine so ctx cancellation
// is honoured even though the client API takes no context.
func (p *Provider) query(ctx context.Context, q string) (overpass.Result, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	type outcome struct {
		result overpass.Result
		err    error
	}
	ch := make(chan outcome, 1)
	go func() {
		result, err := p.client.Query(q)
		ch <- outcome{result: result, err: err}
	}()

	select {
	case <-ctx.Done():
		return overpass.Result{}, ctx.Err()
	case out := <-ch:
		return out.result, out.err
	}
}

// buildQuery requests the scored feature categories inside bbox.
func buildQuery(bbox geo.BoundingBox) string {
	b := bbox.OverpassBBox()
	return fmt.Sprintf(`
		[out:json];
		(
			way["highway"~"motorway|trunk|primary"](%[1]s);
			node["railway"="station"](%[1]s);
			way["railway"="station"](%[1]s);
			node["amenity"="hospital"](%[1]s);
			way["amenity"="hospital"](%[1]s);
			node["amenity"="school"](%[1]s);
			way["amenity"="school"](%[1]s);
			node["shop"="supermarket"](%[1]s);
			way["shop"="supermarket"](%[1]s);
			node["power"="substation"](%[1]s);
			way["power"="substation"](%[1]s);
		);
		out body;
	`, b)
}

type feature struct {
	kind string
	name string
}

func classifyTags(tags map[string]string) (string, bool) {
	switch {
	case tags["highway"] != "":
		return "highway", true
	case tags["railway"] == "station":
		return "railway_station", true
	case tags["amenity"] == "hospital":
		return "hospital", true
	case tags["amenity"] == "school":
		return "school", true
	case tags["shop"] == "supermarket":
		return "supermarket", true
	case tags["power"] == "substation":
		return "power_substation", true
	}
	return "", false
}

func classifyFeatures(result overpass.Result) []feature {
	var features []feature
	for _, node := range result.Nodes {
		if kind, ok := classifyTags(node.Tags); ok {
			features = append(features, feature{kind: kind, name: node.Tags["name"]})
		}
	}
	for _, way := range result.Ways {
		if kind, ok := classifyTags(way.Tags); ok {
			features = append(features, feature{kind: kind, name: way.Tags["name"]})
		}
	}
	return features
}

// scoreFeatures sums per-category contributions, each saturating at its
// configured count, and clamps to [0, 100].
func scoreFeatures(features []feature) float64 {
	counts := map[string]int{}
	for _, f := range features {
		counts[f.kind]++
	}

	var score float64
	for _, w := range weights {
		n := counts[w.kind]
		if n > w.maxCount {
			n = w.maxCount
		}
		score += float64(n) * w.perItem
	}
	if score > 100 {
		score = 100
	}
	return score
}

// majorFeatures returns the named features, deduplicated, in a stable order.
func majorFeatures(features []feature) []scoring.InfraFeature {
	seen := map[string]bool{}
	var out []scoring.InfraFeature
	for _, f := range features {
		if f.name == "" {
			continue
		}
		key := f.kind + "/" + f.name
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, scoring.InfraFeature{Kind: f.kind, Name: f.name})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Kind != out[j].Kind {
			return out[i].Kind < out[j].Kind
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// confidence reflects OSM coverage density: sparse extracts are common in
// emerging markets, so a thin result lowers trust in the score.
func confidence(features []feature) float64 {
	switch {
	case len(features) >= 25:
		return 0.85
	case len(features) >= 10:
		return 0.80
	case len(features) >= 3:
		return 0.70
	default:
		return 0.60
	}
}
