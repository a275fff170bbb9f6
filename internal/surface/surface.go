// Package surface defines the risk-surface exchange format: the per-cell
// record set the pipeline exports and the routing engine loads.
package surface

import (
	"math"
	"sort"
	"time"

	"github.com/couchcryptid/saferoute/internal/domain"
	"github.com/couchcryptid/saferoute/internal/hexgrid"
	"github.com/couchcryptid/saferoute/internal/risk"
)

// Metadata describes a surface snapshot.
type Metadata struct {
	H3Resolution int       `json:"h3_resolution"`
	HasCrimeData bool      `json:"has_crime_data"`
	GeneratedAt  time.Time `json:"generated_at"`
	TotalCells   int       `json:"total_cells"`
}

// Cell is the exported record for one H3 cell. Modifier maps are keyed by
// bucket strings such as "evening_rush_weekday".
type Cell struct {
	BaseRisk           float64            `json:"base_risk"`
	SmoothedRisk       float64            `json:"smoothed_risk"`
	PedestrianRisk     float64            `json:"pedestrian_risk"`
	CyclistRisk        float64            `json:"cyclist_risk"`
	CrimeRisk          float64            `json:"crime_risk"`
	SmoothedCrimeRisk  float64            `json:"smoothed_crime_risk"`
	CrashCount         int                `json:"crash_count"`
	CrimeCount         int                `json:"crime_count"`
	TotalSeverity      float64            `json:"total_severity"`
	TimeModifiers      map[string]float64 `json:"time_modifiers"`
	CrimeTimeModifiers map[string]float64 `json:"crime_time_modifiers"`
}

// TimeModifier returns the collision modifier for a bucket, 1.0 when absent.
func (c Cell) TimeModifier(b domain.Bucket) float64 {
	if m, ok := c.TimeModifiers[b.String()]; ok {
		return m
	}
	return 1.0
}

// CrimeTimeModifier returns the crime modifier for a bucket, 1.0 when absent.
func (c Cell) CrimeTimeModifier(b domain.Bucket) float64 {
	if m, ok := c.CrimeTimeModifiers[b.String()]; ok {
		return m
	}
	return 1.0
}

// Surface is an immutable risk-surface snapshot.
type Surface struct {
	Metadata Metadata        `json:"metadata"`
	Cells    map[string]Cell `json:"cells"`
}

// Cell returns the record for a cell id.
func (s *Surface) Cell(id string) (Cell, bool) {
	c, ok := s.Cells[id]
	return c, ok
}

// CellIDs returns the cell ids in sorted order.
func (s *Surface) CellIDs() []string {
	ids := make([]string, 0, len(s.Cells))
	for id := range s.Cells {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Build converts the blended grid into an exportable surface. Scores are
// rounded to 2 decimals. Each side's bucket score becomes a modifier equal to
// the ratio of the bucket's global score to the side's base risk, rounded to
// 3 decimals, or 1.0 when the base is 0. A side only gets a modifier for
// buckets it actually had.
func Build(combined *risk.Combined, generatedAt time.Time) *Surface {
	s := &Surface{
		Metadata: Metadata{
			H3Resolution: hexgrid.Resolution,
			HasCrimeData: combined.HasCrimeData,
			GeneratedAt:  generatedAt,
		},
		Cells: make(map[string]Cell, len(combined.Cells)),
	}

	for _, c := range combined.Cells {
		s.Cells[c.Cell] = Cell{
			BaseRisk:           round(c.CrashRisk, 2),
			SmoothedRisk:       round(c.SmoothedCrashRisk, 2),
			PedestrianRisk:     round(c.PedestrianRisk, 2),
			CyclistRisk:        round(c.CyclistRisk, 2),
			CrimeRisk:          round(c.CrimeRisk, 2),
			SmoothedCrimeRisk:  round(c.SmoothedCrimeRisk, 2),
			CrashCount:         c.CrashCount,
			CrimeCount:         c.CrimeCount,
			TotalSeverity:      round(c.CrashSeverity, 2),
			TimeModifiers:      map[string]float64{},
			CrimeTimeModifiers: map[string]float64{},
		}
	}

	for _, b := range combined.Buckets {
		cell, ok := s.Cells[b.Cell]
		if !ok {
			continue
		}
		key := b.Bucket.String()
		if b.HasCrash {
			cell.TimeModifiers[key] = modifier(b.CrashScore, cell.BaseRisk)
		}
		if b.HasCrime {
			cell.CrimeTimeModifiers[key] = modifier(b.CrimeScore, cell.CrimeRisk)
		}
	}

	s.Metadata.TotalCells = len(s.Cells)
	return s
}

func modifier(score, base float64) float64 {
	if base <= 0 {
		return 1.0
	}
	return round(score/base, 3)
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
