package mapbox

import (
	"context"
	"errors"
	"testing"

	"github.com/couchcryptid/saferoute/internal/domain"
	"github.com/couchcryptid/saferoute/internal/observability"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingGeocoder struct {
	calls  int
	result domain.GeocodingResult
	err    error
}

func (m *countingGeocoder) ForwardGeocode(_ context.Context, _, _ string) (domain.GeocodingResult, error) {
	m.calls++
	return m.result, m.err
}

func TestCachedGeocoder_CacheHit(t *testing.T) {
	inner := &countingGeocoder{
		result: domain.GeocodingResult{Lat: 40.75, Lng: -73.98, PlaceName: "Broadway", FormattedAddress: "Broadway, New York"},
	}
	metrics := observability.NewMetricsForTesting()
	cached := NewCachedGeocoder(inner, 10, metrics)

	r1, err := cached.ForwardGeocode(context.Background(), "BROADWAY", "MANHATTAN")
	require.NoError(t, err)
	assert.Equal(t, "Broadway", r1.PlaceName)

	r2, err := cached.ForwardGeocode(context.Background(), " broadway ", "Manhattan")
	require.NoError(t, err)
	assert.Equal(t, r1, r2)

	assert.Equal(t, 1, inner.calls, "should only call inner once")
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.GeocodeCache.WithLabelValues("forward", "hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.GeocodeCache.WithLabelValues("forward", "miss")))
}

func TestCachedGeocoder_DifferentKeysMiss(t *testing.T) {
	inner := &countingGeocoder{
		result: domain.GeocodingResult{PlaceName: "Street", FormattedAddress: "Street, New York"},
	}
	cached := NewCachedGeocoder(inner, 10, observability.NewMetricsForTesting())

	_, _ = cached.ForwardGeocode(context.Background(), "BROADWAY", "MANHATTAN")
	_, _ = cached.ForwardGeocode(context.Background(), "BROADWAY", "BROOKLYN")

	assert.Equal(t, 2, inner.calls)
	assert.Equal(t, 2, cached.Len())
}

func TestCachedGeocoder_EmptyAndErrorsNotCached(t *testing.T) {
	tests := []struct {
		name  string
		inner *countingGeocoder
	}{
		{"empty result", &countingGeocoder{}},
		{"error", &countingGeocoder{err: errors.New("boom")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cached := NewCachedGeocoder(tt.inner, 10, observability.NewMetricsForTesting())

			_, _ = cached.ForwardGeocode(context.Background(), "NOWHERE", "")
			_, _ = cached.ForwardGeocode(context.Background(), "NOWHERE", "")

			assert.Equal(t, 2, tt.inner.calls)
			assert.Zero(t, cached.Len())
		})
	}
}

func TestCachedGeocoder_Eviction(t *testing.T) {
	inner := &countingGeocoder{
		result: domain.GeocodingResult{FormattedAddress: "somewhere"},
	}
	cached := NewCachedGeocoder(inner, 2, observability.NewMetricsForTesting())
	ctx := context.Background()

	_, _ = cached.ForwardGeocode(ctx, "A", "")
	_, _ = cached.ForwardGeocode(ctx, "B", "")
	_, _ = cached.ForwardGeocode(ctx, "A", "") // promotes A
	_, _ = cached.ForwardGeocode(ctx, "C", "") // evicts B
	assert.Equal(t, 3, inner.calls)

	_, _ = cached.ForwardGeocode(ctx, "A", "")
	assert.Equal(t, 3, inner.calls, "A was used recently and should still be cached")

	_, _ = cached.ForwardGeocode(ctx, "B", "")
	assert.Equal(t, 4, inner.calls, "B should have been evicted")
}
