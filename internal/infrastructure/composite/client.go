// Package composite implements the detection.Backend contract against the
// remote composite compute service over its HTTP JSON API.
package composite

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/turtacn/TerraSight-Intelligence/internal/config"
	"github.com/turtacn/TerraSight-Intelligence/internal/domain/detection"
	"github.com/turtacn/TerraSight-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/TerraSight-Intelligence/pkg/errors"
	"github.com/turtacn/TerraSight-Intelligence/pkg/types/geo"
)

// codeNoUsableCaptures is the service's error code for a window with no
// capture passing the cloud ceiling. It maps to ErrCodeDataUnavailable so
// the date search can drive its lookback.
const codeNoUsableCaptures = "no_usable_captures"

// Client talks to the composite compute service.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	log        logging.Logger
}

var _ detection.Backend = (*Client)(nil)

// NewClient validates the config and builds a backend client. The HTTP
// timeout is a transport safety net; per-step deadlines arrive via ctx.
func NewClient(cfg config.CompositeConfig, log logging.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.Configuration("composite base_url is required")
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: timeout},
		log:        log.Named("composite"),
	}, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Wire types
// ─────────────────────────────────────────────────────────────────────────────

type windowDTO struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

type bboxDTO struct {
	MinLon float64 `json:"min_lon"`
	MinLat float64 `json:"min_lat"`
	MaxLon float64 `json:"max_lon"`
	MaxLat float64 `json:"max_lat"`
}

type buildRequest struct {
	RegionID           string    `json:"region_id"`
	BBox               bboxDTO   `json:"bbox"`
	Window             windowDTO `json:"window"`
	MaxCloudCoverPct   float64   `json:"max_cloud_cover_pct"`
	CloudProbThreshold float64   `json:"cloud_prob_threshold"`
	CloudBufferM       float64   `json:"cloud_buffer_m"`
}

type buildResponse struct {
	Handle string   `json:"handle"`
	Bands  []string `json:"bands"`
}

type capturesRequest struct {
	RegionID         string    `json:"region_id"`
	BBox             bboxDTO   `json:"bbox"`
	Window           windowDTO `json:"window"`
	MaxCloudCoverPct float64   `json:"max_cloud_cover_pct"`
}

type capturesResponse struct {
	Count int `json:"count"`
}

type gridResponse struct {
	Width     int       `json:"width"`
	Height    int       `json:"height"`
	CellSizeM float64   `json:"cell_size_m"`
	BBox      bboxDTO   `json:"bbox"`
	Values    []float64 `json:"values"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func toBBoxDTO(b geo.BoundingBox) bboxDTO {
	return bboxDTO{MinLon: b.MinLon, MinLat: b.MinLat, MaxLon: b.MaxLon, MaxLat: b.MaxLat}
}

func toWindowDTO(w geo.TimeWindow) windowDTO {
	return windowDTO{Start: w.Start, End: w.End}
}

// ─────────────────────────────────────────────────────────────────────────────
// Backend implementation
// ─────────────────────────────────────────────────────────────────────────────

func (c *Client) BuildComposite(ctx context.Context, region geo.Region, window geo.TimeWindow, opts detection.CompositeOptions) (*detection.Composite, error) {
	req := buildRequest{
		RegionID:           region.ID,
		BBox:               toBBoxDTO(region.BBox),
		Window:             toWindowDTO(window),
		MaxCloudCoverPct:   opts.MaxCloudCoverPct,
		CloudProbThreshold: opts.CloudProbThreshold,
		CloudBufferM:       opts.CloudBufferM,
	}

	var resp buildResponse
	if err := c.post(ctx, "/v1/composites", req, &resp); err != nil {
		return nil, err
	}

	bands := make([]detection.Band, len(resp.Bands))
	for i, b := range resp.Bands {
		bands[i] = detection.Band(b)
	}
	return &detection.Composite{
		Handle:   resp.Handle,
		RegionID: region.ID,
		Window:   window,
		Bands:    bands,
	}, nil
}

func (c *Client) UsableCaptures(ctx context.Context, region geo.Region, window geo.TimeWindow, maxCloudPct float64) (int, error) {
	req := capturesRequest{
		RegionID:         region.ID,
		BBox:             toBBoxDTO(region.BBox),
		Window:           toWindowDTO(window),
		MaxCloudCoverPct: maxCloudPct,
	}

	var resp capturesResponse
	if err := c.post(ctx, "/v1/captures/count", req, &resp); err != nil {
		return 0, err
	}
	return resp.Count, nil
}

func (c *Client) SampleBand(ctx context.Context, comp *detection.Composite, band detection.Band, resolutionM float64) (*detection.Grid, error) {
	if comp == nil || comp.Handle == "" {
		return nil, errors.InvalidParam("composite handle required")
	}

	path := fmt.Sprintf("/v1/composites/%s/bands/%s?resolution_m=%g", comp.Handle, band, resolutionM)

	var resp gridResponse
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, err
	}
	if len(resp.Values) != resp.Width*resp.Height {
		return nil, errors.New(errors.ErrCodeDataSourceParseError,
			fmt.Sprintf("band raster size mismatch: %d values for %dx%d grid", len(resp.Values), resp.Width, resp.Height))
	}

	return &detection.Grid{
		Width:     resp.Width,
		Height:    resp.Height,
		CellSizeM: resp.CellSizeM,
		BBox: geo.BoundingBox{
			MinLon: resp.BBox.MinLon, MinLat: resp.BBox.MinLat,
			MaxLon: resp.BBox.MaxLon, MaxLat: resp.BBox.MaxLat,
		},
		Values: resp.Values,
	}, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Transport
// ─────────────────────────────────────────────────────────────────────────────

func (c *Client) post(ctx context.Context, path string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "failed to encode request")
	}
	return c.do(ctx, http.MethodPost, path, bytes.NewReader(payload), out)
}

func (c *Client) get(ctx context.Context, path string, out interface{}) error {
	return c.do(ctx, http.MethodGet, path, nil, out)
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeExternalService, "failed to build request")
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Preserve context errors so the detector's step-timeout check
		// can recognize a deadline expiry through the wrap chain.
		return errors.Wrap(err, errors.ErrCodeExternalService, "composite service request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return c.decodeError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrap(err, errors.ErrCodeDataSourceParseError, "failed to decode response")
	}
	return nil
}

func (c *Client) decodeError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	var apiErr errorResponse
	_ = json.Unmarshal(raw, &apiErr)

	if apiErr.Code == codeNoUsableCaptures || resp.StatusCode == http.StatusNotFound {
		msg := apiErr.Message
		if msg == "" {
			msg = "no usable captures in window"
		}
		return errors.DataUnavailable(msg)
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return errors.New(errors.ErrCodeDataSourceRateLimited, "composite service rate limited")
	}

	msg := apiErr.Message
	if msg == "" {
		msg = strings.TrimSpace(string(raw))
	}
	c.log.Warn("Composite service error",
		logging.Int("status", resp.StatusCode),
		logging.String("code", apiErr.Code))
	return errors.New(errors.ErrCodeExternalService,
		fmt.Sprintf("composite service returned %d: %s", resp.StatusCode, msg))
}
