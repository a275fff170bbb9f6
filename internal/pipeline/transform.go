package pipeline

import (
	"context"
	"errors"
	"log/slog"

	"github.com/couchcryptid/saferoute/internal/domain"
)

// ErrNoLocation marks incidents that have no coordinates after geocoding.
var ErrNoLocation = errors.New("incident has no location")

// IncidentTransformer implements Transformer using the domain parsers with
// optional geocoding enrichment.
type IncidentTransformer struct {
	geocoder domain.Geocoder
	logger   *slog.Logger
}

// NewTransformer creates an IncidentTransformer. Pass a nil geocoder to
// disable geocoding enrichment.
func NewTransformer(geocoder domain.Geocoder, logger *slog.Logger) *IncidentTransformer {
	return &IncidentTransformer{
		geocoder: geocoder,
		logger:   logger,
	}
}

func (t *IncidentTransformer) Transform(ctx context.Context, raw domain.RawEvent) (domain.Incident, error) {
	inc, err := domain.ParseRawEvent(raw)
	if err != nil {
		return domain.Incident{}, err
	}

	inc = domain.EnrichWithGeocoding(ctx, inc, t.geocoder, t.logger)
	if !inc.HasLocation() {
		return domain.Incident{}, ErrNoLocation
	}
	return inc, nil
}
