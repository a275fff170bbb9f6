package risk

import (
	"fmt"

	"github.com/couchcryptid/saferoute/internal/hexgrid"
)

const (
	ownWeight       = 0.7
	neighbourWeight = 0.3
)

// Smooth returns a copy of t with SmoothedScore set from a single pass over
// the pre-smoothing scores: 70% own score plus 30% of the mean score of the
// aggregated 1-ring neighbours, or 30% of the city average when no
// neighbour was aggregated. The input table is not modified.
func Smooth(t *Table, indexer hexgrid.Indexer) (*Table, error) {
	if t.Len() == 0 {
		return t, nil
	}
	cityAvg := t.CityAverage()

	records := t.Records()
	for i := range records {
		neighbours, err := indexer.Neighbors(records[i].Cell)
		if err != nil {
			return nil, fmt.Errorf("smooth cell %s: %w", records[i].Cell, err)
		}

		var sum float64
		var n int
		for _, id := range neighbours {
			if rec, ok := t.Get(id); ok {
				sum += rec.RiskScore
				n++
			}
		}

		influence := cityAvg
		if n > 0 {
			influence = sum / float64(n)
		}
		records[i].SmoothedScore = records[i].RiskScore*ownWeight + influence*neighbourWeight
	}

	return newTable(t.Source, records), nil
}
