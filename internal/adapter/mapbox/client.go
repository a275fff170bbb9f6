package mapbox

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/couchcryptid/saferoute/internal/domain"
	"github.com/couchcryptid/saferoute/internal/observability"
)

const defaultBaseURL = "https://api.mapbox.com/geocoding/v5/mapbox.places"

// Client implements domain.Geocoder using the Mapbox Geocoding API.
type Client struct {
	token      string
	httpClient *http.Client
	baseURL    string
	metrics    *observability.Metrics
	logger     *slog.Logger

	// bbox restricts matches to minLng,minLat,maxLng,maxLat; proximity
	// biases ranking toward its centre. Both are empty when unset.
	bbox      string
	proximity string
}

// NewClient creates a Mapbox geocoding client.
func NewClient(token string, timeout time.Duration, metrics *observability.Metrics, logger *slog.Logger) *Client {
	return &Client{
		token: token,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL: defaultBaseURL,
		metrics: metrics,
		logger:  logger,
	}
}

// WithBounds limits forward geocoding to a bounding box and biases results
// toward its centre. It returns c for chaining.
func (c *Client) WithBounds(minLng, minLat, maxLng, maxLat float64) *Client {
	c.bbox = fmt.Sprintf("%g,%g,%g,%g", minLng, minLat, maxLng, maxLat)
	c.proximity = fmt.Sprintf("%g,%g", (minLng+maxLng)/2, (minLat+maxLat)/2)
	return c
}

// ForwardGeocode resolves a street within a locality (borough or city) to
// coordinates. An empty result with a nil error means Mapbox had no match.
func (c *Client) ForwardGeocode(ctx context.Context, street, locality string) (domain.GeocodingResult, error) {
	query := strings.TrimSpace(street)
	if locality != "" {
		query = fmt.Sprintf("%s, %s", query, locality)
	}

	u := fmt.Sprintf("%s/%s.json", c.baseURL, url.PathEscape(query))
	params := url.Values{
		"access_token": {c.token},
		"limit":        {"1"},
		"types":        {"address,street,neighborhood"},
	}
	if c.bbox != "" {
		params.Set("bbox", c.bbox)
		params.Set("proximity", c.proximity)
	}

	start := time.Now()
	result, err := c.doRequest(ctx, u+"?"+params.Encode())
	c.metrics.GeocodeAPIDuration.WithLabelValues("forward").Observe(time.Since(start).Seconds())

	switch {
	case err != nil:
		c.metrics.GeocodeRequests.WithLabelValues("forward", "error").Inc()
		c.logger.Debug("forward geocode failed", "street", street, "locality", locality, "error", err)
	case result.FormattedAddress == "":
		c.metrics.GeocodeRequests.WithLabelValues("forward", "empty").Inc()
	default:
		c.metrics.GeocodeRequests.WithLabelValues("forward", "success").Inc()
	}
	return result, err
}

func (c *Client) doRequest(ctx context.Context, fullURL string) (domain.GeocodingResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return domain.GeocodingResult{}, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.GeocodingResult{}, fmt.Errorf("forward geocode request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<10))
		return domain.GeocodingResult{}, fmt.Errorf("mapbox API error: status %d: %s", resp.StatusCode, body)
	}

	var mapboxResp response
	if err := json.NewDecoder(resp.Body).Decode(&mapboxResp); err != nil {
		return domain.GeocodingResult{}, fmt.Errorf("decode response: %w", err)
	}

	if len(mapboxResp.Features) == 0 {
		return domain.GeocodingResult{}, nil
	}

	f := mapboxResp.Features[0]
	result := domain.GeocodingResult{
		FormattedAddress: f.PlaceName,
		PlaceName:        f.Text,
		Confidence:       f.Relevance,
	}
	if len(f.Center) == 2 {
		result.Lng = f.Center[0]
		result.Lat = f.Center[1]
	}
	return result, nil
}

// Mapbox API response types.

type response struct {
	Features []feature `json:"features"`
}

type feature struct {
	Center    []float64 `json:"center"` // [lng, lat]
	PlaceName string    `json:"place_name"`
	Text      string    `json:"text"`
	Relevance float64   `json:"relevance"`
}
