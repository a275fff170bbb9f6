package domain

import (
	"context"
	"log/slog"
)

// GeocodingResult is a provider's best match for a street query.
type GeocodingResult struct {
	Lat              float64
	Lng              float64
	FormattedAddress string
	PlaceName        string
	Confidence       float64 // provider relevance in [0, 1]
}

// Geocoder resolves street names to coordinates.
type Geocoder interface {
	// ForwardGeocode converts a street and locality (borough, city) to
	// coordinates. A zero result with a nil error means no match.
	ForwardGeocode(ctx context.Context, street, locality string) (GeocodingResult, error)
}

// EnrichWithGeocoding fills in coordinates for incidents that carry a street
// name but no location. Incidents that already have coordinates, or have
// nothing to geocode, are returned unchanged. Failures degrade gracefully:
// the incident keeps zero coordinates and GeoSource "failed".
func EnrichWithGeocoding(ctx context.Context, inc Incident, geocoder Geocoder, logger *slog.Logger) Incident {
	if geocoder == nil || inc.HasLocation() || inc.Street == "" {
		return inc
	}

	result, err := geocoder.ForwardGeocode(ctx, inc.Street, inc.Locality)
	if err != nil {
		logger.Warn("forward geocoding failed",
			"incident_id", inc.ID,
			"street", inc.Street,
			"locality", inc.Locality,
			"error", err,
		)
		inc.GeoSource = "failed"
		return inc
	}
	if result.Lat == 0 && result.Lng == 0 {
		inc.GeoSource = "failed"
		return inc
	}

	inc.Lat = result.Lat
	inc.Lng = result.Lng
	inc.GeoSource = "forward"
	return inc
}
