package composite

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/TerraSight-Intelligence/internal/config"
	"github.com/turtacn/TerraSight-Intelligence/internal/domain/detection"
	"github.com/turtacn/TerraSight-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/TerraSight-Intelligence/pkg/errors"
	"github.com/turtacn/TerraSight-Intelligence/pkg/types/geo"
)

func testRegion() geo.Region {
	return geo.Region{
		ID:   "austin-east",
		Name: "Austin East",
		BBox: geo.BoundingBox{MinLon: -97.75, MinLat: 30.25, MaxLon: -97.65, MaxLat: 30.35},
		Tier: geo.TierMetro,
	}
}

func testWindow() geo.TimeWindow {
	return geo.NewTimeWindow(time.Date(2025, 7, 8, 0, 0, 0, 0, time.UTC))
}

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(config.CompositeConfig{
		BaseURL: server.URL,
		APIKey:  "test-key",
	}, logging.NewNopLogger())
	require.NoError(t, err)
	return client
}

func TestNewClientRequiresBaseURL(t *testing.T) {
	_, err := NewClient(config.CompositeConfig{}, logging.NewNopLogger())
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeConfiguration, errors.GetCode(err))
}

func TestBuildComposite(t *testing.T) {
	var gotReq buildRequest
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/composites", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))

		_ = json.NewEncoder(w).Encode(buildResponse{
			Handle: "comp-123",
			Bands:  []string{"blue", "green", "red", "nir", "swir"},
		})
	}))

	comp, err := client.BuildComposite(context.Background(), testRegion(), testWindow(),
		detection.CompositeOptions{MaxCloudCoverPct: 25, CloudProbThreshold: 50, CloudBufferM: 50})
	require.NoError(t, err)

	assert.Equal(t, "comp-123", comp.Handle)
	assert.Equal(t, "austin-east", comp.RegionID)
	assert.Len(t, comp.Bands, 5)
	assert.True(t, comp.HasBand(detection.BandSWIR))

	assert.Equal(t, "austin-east", gotReq.RegionID)
	assert.Equal(t, 25.0, gotReq.MaxCloudCoverPct)
	assert.Equal(t, -97.75, gotReq.BBox.MinLon)
}

func TestBuildCompositeNoUsableCaptures(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_ = json.NewEncoder(w).Encode(errorResponse{Code: "no_usable_captures", Message: "window empty"})
	}))

	_, err := client.BuildComposite(context.Background(), testRegion(), testWindow(), detection.CompositeOptions{})
	require.Error(t, err)
	assert.True(t, errors.IsDataUnavailable(err))
}

func TestBuildCompositeNotFoundIsDataUnavailable(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.NotFound(w, nil)
	}))

	_, err := client.BuildComposite(context.Background(), testRegion(), testWindow(), detection.CompositeOptions{})
	require.Error(t, err)
	assert.True(t, errors.IsDataUnavailable(err))
}

func TestBuildCompositeServerError(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))

	_, err := client.BuildComposite(context.Background(), testRegion(), testWindow(), detection.CompositeOptions{})
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeExternalService, errors.GetCode(err))
}

func TestBuildCompositeRateLimited(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))

	_, err := client.BuildComposite(context.Background(), testRegion(), testWindow(), detection.CompositeOptions{})
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeDataSourceRateLimited, errors.GetCode(err))
}

func TestBuildCompositeHonorsContextDeadline(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := client.BuildComposite(ctx, testRegion(), testWindow(), detection.CompositeOptions{})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded,
		"deadline expiry must stay recognizable through the wrap chain")
}

func TestUsableCaptures(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/captures/count", r.URL.Path)
		var req capturesRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, 25.0, req.MaxCloudCoverPct)
		_ = json.NewEncoder(w).Encode(capturesResponse{Count: 3})
	}))

	n, err := client.UsableCaptures(context.Background(), testRegion(), testWindow(), 25)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestSampleBand(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/v1/composites/comp-123/bands/nir", r.URL.Path)
		assert.Equal(t, "10", r.URL.Query().Get("resolution_m"))

		_ = json.NewEncoder(w).Encode(gridResponse{
			Width: 2, Height: 2, CellSizeM: 10,
			BBox:   bboxDTO{MinLon: -97.75, MinLat: 30.25, MaxLon: -97.65, MaxLat: 30.35},
			Values: []float64{0.1, 0.2, 0.3, 0.4},
		})
	}))

	comp := &detection.Composite{Handle: "comp-123", RegionID: "austin-east", Window: testWindow()}
	grid, err := client.SampleBand(context.Background(), comp, detection.BandNIR, 10)
	require.NoError(t, err)

	assert.Equal(t, 2, grid.Width)
	assert.Equal(t, 10.0, grid.CellSizeM)
	assert.Equal(t, 0.4, grid.At(1, 1))
}

func TestSampleBandSizeMismatch(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(gridResponse{Width: 3, Height: 3, Values: []float64{1, 2}})
	}))

	comp := &detection.Composite{Handle: "comp-123"}
	_, err := client.SampleBand(context.Background(), comp, detection.BandRed, 10)
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeDataSourceParseError, errors.GetCode(err))
}

func TestSampleBandRequiresHandle(t *testing.T) {
	client := newTestClient(t, http.NotFoundHandler())

	_, err := client.SampleBand(context.Background(), nil, detection.BandRed, 10)
	require.Error(t, err)
	assert.Equal(t, errors.CodeInvalidParam, errors.GetCode(err))
}
