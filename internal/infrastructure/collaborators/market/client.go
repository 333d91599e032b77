// Package market implements the market collaborator as a client for an
// already-aggregated land-price feed.  A region missing from the feed is a
// valid "no data" answer, not a failure.
package market

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/turtacn/TerraSight-Intelligence/internal/config"
	"github.com/turtacn/TerraSight-Intelligence/internal/domain/scoring"
	"github.com/turtacn/TerraSight-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/TerraSight-Intelligence/pkg/errors"
	"github.com/turtacn/TerraSight-Intelligence/pkg/types/geo"
)

const dataSource = "market-feed"

// Client fetches MarketSummary records over the feed's HTTP JSON API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	log        logging.Logger
}

var _ scoring.MarketProvider = (*Client)(nil)

type marketResponse struct {
	AvgPricePerM2  float64 `json:"avg_price_per_m2"`
	Trend30DPct    float64 `json:"price_trend_30d"`
	Heat           string  `json:"market_heat"`
	DataConfidence float64 `json:"data_confidence"`
}

// NewProvider builds the feed client, or the null provider when the
// collaborator is disabled in config.
func NewProvider(cfg config.MarketConfig, log logging.Logger) (scoring.MarketProvider, error) {
	if !cfg.Enabled {
		return scoring.NullMarketProvider{}, nil
	}
	if cfg.BaseURL == "" {
		return nil, errors.Configuration("market base_url is required when the collaborator is enabled")
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: timeout},
		log:        log.Named("market"),
	}, nil
}

// FetchMarket looks the region up in the feed.  A 404 means the feed has no
// coverage for the region and maps to (nil, nil).
func (c *Client) FetchMarket(ctx context.Context, region geo.Region) (*scoring.MarketSummary, error) {
	url := fmt.Sprintf("%s/v1/markets/%s", c.baseURL, region.ID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDataSourceUnavailable, "failed to build market request")
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDataSourceUnavailable, "market feed request failed")
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		c.log.Debug("Region not covered by market feed", logging.String("region", region.ID))
		return nil, nil
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, errors.New(errors.ErrCodeDataSourceRateLimited, "market feed rate limited")
	case resp.StatusCode >= 400:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, errors.New(errors.ErrCodeDataSourceUnavailable,
			fmt.Sprintf("market feed returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body))))
	}

	var payload marketResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDataSourceParseError, "failed to decode market response")
	}
	if payload.AvgPricePerM2 <= 0 {
		c.log.Debug("Market feed has no price for region", logging.String("region", region.ID))
		return nil, nil
	}

	return &scoring.MarketSummary{
		AvgPricePerM2:  payload.AvgPricePerM2,
		Trend30DPct:    payload.Trend30DPct,
		Heat:           scoring.NormalizeHeat(payload.Heat),
		DataConfidence: payload.DataConfidence,
		DataSource:     dataSource,
	}, nil
}
