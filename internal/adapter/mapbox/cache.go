package mapbox

import (
	"context"
	"strings"

	"github.com/couchcryptid/saferoute/internal/domain"
	"github.com/couchcryptid/saferoute/internal/observability"
	lru "github.com/hashicorp/golang-lru/v2"
)

// CachedGeocoder wraps a Geocoder with an in-memory LRU cache keyed by the
// normalized street and locality.
type CachedGeocoder struct {
	inner   domain.Geocoder
	cache   *lru.Cache[string, domain.GeocodingResult]
	metrics *observability.Metrics
}

// NewCachedGeocoder creates a cache decorator around a geocoder. Sizes below
// 1 fall back to a single entry.
func NewCachedGeocoder(inner domain.Geocoder, maxEntries int, metrics *observability.Metrics) *CachedGeocoder {
	if maxEntries < 1 {
		maxEntries = 1
	}
	cache, _ := lru.New[string, domain.GeocodingResult](maxEntries) // only fails for size <= 0
	return &CachedGeocoder{inner: inner, cache: cache, metrics: metrics}
}

func (c *CachedGeocoder) ForwardGeocode(ctx context.Context, street, locality string) (domain.GeocodingResult, error) {
	key := cacheKey(street, locality)
	if result, ok := c.cache.Get(key); ok {
		c.metrics.GeocodeCache.WithLabelValues("forward", "hit").Inc()
		return result, nil
	}
	c.metrics.GeocodeCache.WithLabelValues("forward", "miss").Inc()

	result, err := c.inner.ForwardGeocode(ctx, street, locality)
	if err != nil {
		return result, err
	}
	// Only cache non-empty results so transient "not found" responses can be retried.
	if result.FormattedAddress != "" {
		c.cache.Add(key, result)
	}
	return result, nil
}

// Len returns the number of cached entries.
func (c *CachedGeocoder) Len() int {
	return c.cache.Len()
}

func cacheKey(street, locality string) string {
	return strings.ToUpper(strings.TrimSpace(street)) + "|" + strings.ToUpper(strings.TrimSpace(locality))
}
