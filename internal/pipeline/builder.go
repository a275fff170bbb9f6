package pipeline

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/couchcryptid/saferoute/internal/domain"
	"github.com/couchcryptid/saferoute/internal/hexgrid"
	"github.com/couchcryptid/saferoute/internal/risk"
	"github.com/couchcryptid/saferoute/internal/surface"
)

// ErrNoIncidents is returned when a run produced nothing to aggregate. The
// previous snapshot is left in place.
var ErrNoIncidents = errors.New("no located incidents to aggregate")

// Snapshot is the output of one build.
type Snapshot struct {
	Surface  *surface.Surface
	Patterns []*surface.TimePatterns
}

// Builder turns incidents into a risk surface and time-pattern reports.
type Builder struct {
	indexer hexgrid.Indexer
	logger  *slog.Logger
}

// highRiskScore is the lower bound of the "high" risk category.
const highRiskScore = 60

// NewBuilder creates a Builder over the given cell indexer.
func NewBuilder(indexer hexgrid.Indexer, logger *slog.Logger) *Builder {
	return &Builder{indexer: indexer, logger: logger}
}

// Build aggregates, smooths, and time-buckets each source, blends the two,
// and exports the result.
func (b *Builder) Build(incidents []domain.Incident) (*Snapshot, error) {
	if len(incidents) == 0 {
		return nil, ErrNoIncidents
	}
	now := domain.Now()

	var (
		tables   = map[domain.Source]*risk.Table{}
		times    = map[domain.Source]*risk.TimeTable{}
		patterns []*surface.TimePatterns
	)
	for _, src := range []domain.Source{domain.SourceCollision, domain.SourceCrime} {
		t, err := risk.Smooth(risk.NewAggregator(src, b.indexer).Aggregate(incidents), b.indexer)
		if err != nil {
			return nil, fmt.Errorf("smooth %s table: %w", src, err)
		}
		tables[src] = t
		times[src] = risk.AnalyzeTime(src, incidents, b.indexer)

		subset := bySource(incidents, src)
		b.logger.Info("source aggregated",
			"source", src,
			"incidents", len(subset),
			"cells", t.Len(),
			"bucket_records", times[src].Len(),
			"city_average", t.CityAverage(),
			"high_risk_cells", len(t.HighRiskCells(highRiskScore)),
		)
		if len(subset) == 0 {
			continue
		}
		patterns = append(patterns, surface.NewTimePatterns(string(src),
			risk.HourlyProfile(subset), risk.PeriodProfile(subset), times[src], now))
	}

	combined := risk.Blend(
		tables[domain.SourceCollision], tables[domain.SourceCrime],
		times[domain.SourceCollision], times[domain.SourceCrime],
	)
	if len(combined.Cells) == 0 {
		return nil, ErrNoIncidents
	}

	return &Snapshot{
		Surface:  surface.Build(combined, now),
		Patterns: patterns,
	}, nil
}

func bySource(incidents []domain.Incident, src domain.Source) []domain.Incident {
	var out []domain.Incident
	for _, inc := range incidents {
		if inc.Source == src && inc.HasLocation() {
			out = append(out, inc)
		}
	}
	return out
}
