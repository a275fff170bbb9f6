// Package risk turns typed incidents into per-cell risk tables, per-cell
// time-of-day tables and the blended collision/crime grid.
package risk

import (
	"math"
	"time"

	"github.com/couchcryptid/saferoute/internal/domain"
	"github.com/couchcryptid/saferoute/internal/hexgrid"
	"gonum.org/v1/gonum/floats"
)

// RecencyWeight scales an incident's severity by age: 2.0 under 180 days,
// 1.5 under 365 days, 1.0 otherwise.
func RecencyWeight(now, occurred time.Time) float64 {
	days := math.Floor(now.Sub(occurred).Hours() / 24)
	switch {
	case days < 180:
		return 2.0
	case days < 365:
		return 1.5
	default:
		return 1.0
	}
}

// Aggregator groups one taxonomy's incidents into cells.
type Aggregator struct {
	source  domain.Source
	indexer hexgrid.Indexer
}

// NewAggregator creates an Aggregator for a single incident source.
func NewAggregator(source domain.Source, indexer hexgrid.Indexer) *Aggregator {
	return &Aggregator{source: source, indexer: indexer}
}

type cellAccumulator struct {
	count              int
	severity           float64
	weighted           float64
	pedestrianSeverity float64
	cyclistSeverity    float64
	pedestrianCrashes  int
	cyclistCrashes     int
}

// Aggregate builds the risk table for the aggregator's source. Incidents of
// other sources, or without coordinates, are ignored. Empty input yields an
// empty table.
func (a *Aggregator) Aggregate(incidents []domain.Incident) *Table {
	now := domain.Now()
	acc := make(map[string]*cellAccumulator)

	for i := range incidents {
		inc := &incidents[i]
		if inc.Source != a.source || !inc.HasLocation() {
			continue
		}
		cell := a.indexer.CellOf(inc.Lat, inc.Lng)
		c, ok := acc[cell]
		if !ok {
			c = &cellAccumulator{}
			acc[cell] = c
		}
		c.count++
		c.severity += inc.Severity
		c.weighted += inc.Severity * RecencyWeight(now, inc.OccurredAt)
		c.pedestrianSeverity += inc.PedestrianSeverity
		c.cyclistSeverity += inc.CyclistSeverity
		if inc.PedestrianSeverity > 0 {
			c.pedestrianCrashes++
		}
		if inc.CyclistSeverity > 0 {
			c.cyclistCrashes++
		}
	}

	records := make([]RiskRecord, 0, len(acc))
	for cell, c := range acc {
		records = append(records, RiskRecord{
			Cell:               cell,
			Count:              c.count,
			Severity:           c.severity,
			WeightedSeverity:   c.weighted,
			MeanSeverity:       c.severity / float64(c.count),
			PedestrianSeverity: c.pedestrianSeverity,
			CyclistSeverity:    c.cyclistSeverity,
			PedestrianCrashes:  c.pedestrianCrashes,
			CyclistCrashes:     c.cyclistCrashes,
		})
	}

	normalize(records, func(r *RiskRecord) float64 { return r.WeightedSeverity }, func(r *RiskRecord, v float64) { r.RiskScore = v })
	if a.source == domain.SourceCollision {
		normalize(records, func(r *RiskRecord) float64 { return r.PedestrianSeverity }, func(r *RiskRecord, v float64) { r.PedestrianRisk = v })
		normalize(records, func(r *RiskRecord) float64 { return r.CyclistSeverity }, func(r *RiskRecord, v float64) { r.CyclistRisk = v })
	}
	for i := range records {
		records[i].SmoothedScore = records[i].RiskScore
		records[i].Category = CategoryOf(records[i].RiskScore)
	}

	return newTable(a.source, records)
}

// normalize scales get(r) by the column maximum into [0,100]. A zero
// maximum yields 0 for every record.
func normalize(records []RiskRecord, get func(*RiskRecord) float64, set func(*RiskRecord, float64)) {
	if len(records) == 0 {
		return
	}
	values := make([]float64, len(records))
	for i := range records {
		values[i] = get(&records[i])
	}
	maxVal := floats.Max(values)
	for i := range records {
		if maxVal > 0 {
			set(&records[i], values[i]/maxVal*100)
		} else {
			set(&records[i], 0)
		}
	}
}
