package risk

import (
	"sort"

	"github.com/couchcryptid/saferoute/internal/domain"
	"gonum.org/v1/gonum/stat"
)

// Category is a coarse label for a 0-100 risk score.
type Category string

const (
	CategoryVeryLow  Category = "very_low"
	CategoryLow      Category = "low"
	CategoryMedium   Category = "medium"
	CategoryHigh     Category = "high"
	CategoryCritical Category = "critical"
)

// CategoryOf bins a score into [0,20] very_low, (20,40] low, (40,60] medium,
// (60,80] high and (80,100] critical.
func CategoryOf(score float64) Category {
	switch {
	case score <= 20:
		return CategoryVeryLow
	case score <= 40:
		return CategoryLow
	case score <= 60:
		return CategoryMedium
	case score <= 80:
		return CategoryHigh
	default:
		return CategoryCritical
	}
}

// RiskRecord is the aggregate for one cell of one incident taxonomy.
type RiskRecord struct {
	Cell             string
	Count            int
	Severity         float64 // raw severity sum
	WeightedSeverity float64 // recency-weighted severity sum
	MeanSeverity     float64
	RiskScore        float64
	SmoothedScore    float64
	Category         Category

	// Collision-only vulnerable road user breakdown. Sub-severities are
	// not recency weighted.
	PedestrianSeverity float64
	CyclistSeverity    float64
	PedestrianCrashes  int
	CyclistCrashes     int
	PedestrianRisk     float64
	CyclistRisk        float64
}

// Table holds one record per aggregated cell, ordered by cell id.
// A nil *Table behaves as an empty table.
type Table struct {
	Source  domain.Source
	records []RiskRecord
	index   map[string]int
}

func newTable(source domain.Source, records []RiskRecord) *Table {
	sort.Slice(records, func(i, j int) bool { return records[i].Cell < records[j].Cell })
	index := make(map[string]int, len(records))
	for i, r := range records {
		index[r.Cell] = i
	}
	return &Table{Source: source, records: records, index: index}
}

// Len returns the number of aggregated cells.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.records)
}

// Get returns the record for a cell.
func (t *Table) Get(cell string) (RiskRecord, bool) {
	if t == nil {
		return RiskRecord{}, false
	}
	i, ok := t.index[cell]
	if !ok {
		return RiskRecord{}, false
	}
	return t.records[i], true
}

// Records returns a copy of the records in cell id order.
func (t *Table) Records() []RiskRecord {
	if t == nil {
		return nil
	}
	out := make([]RiskRecord, len(t.records))
	copy(out, t.records)
	return out
}

// CityAverage is the mean pre-smoothing risk score across aggregated cells.
func (t *Table) CityAverage() float64 {
	if t.Len() == 0 {
		return 0
	}
	scores := make([]float64, len(t.records))
	for i, r := range t.records {
		scores[i] = r.RiskScore
	}
	return stat.Mean(scores, nil)
}

// HighRiskCells returns records whose score is at least threshold, highest first.
func (t *Table) HighRiskCells(threshold float64) []RiskRecord {
	var out []RiskRecord
	for _, r := range t.Records() {
		if r.RiskScore >= threshold {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].RiskScore > out[j].RiskScore })
	return out
}
