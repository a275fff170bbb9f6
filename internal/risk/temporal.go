package risk

import (
	"math"
	"sort"

	"github.com/couchcryptid/saferoute/internal/domain"
	"github.com/couchcryptid/saferoute/internal/hexgrid"
)

// globalQuantile is the severity quantile used as the cross-cell ceiling.
const globalQuantile = 0.99

// TimeKey identifies a (cell, period, day type) triple.
type TimeKey struct {
	Cell   string
	Bucket domain.Bucket
}

// TimeRiskRecord aggregates one cell's incidents within one time bucket.
type TimeRiskRecord struct {
	Cell         string
	Bucket       domain.Bucket
	Count        int
	Severity     float64
	MeanSeverity float64

	// TimeRiskScore compares the bucket with the cell's worst bucket.
	TimeRiskScore float64
	// GlobalRiskScore compares the bucket with the p99 bucket severity
	// across all cells, clipped to 100.
	GlobalRiskScore float64
}

// TimeTable holds time-bucketed records ordered by cell, period and day type.
// A nil *TimeTable behaves as an empty table.
type TimeTable struct {
	Source  domain.Source
	P99     float64
	records []TimeRiskRecord
	index   map[TimeKey]int
}

// Len returns the number of (cell, bucket) records.
func (t *TimeTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.records)
}

// Get returns the record for a (cell, bucket) pair.
func (t *TimeTable) Get(cell string, b domain.Bucket) (TimeRiskRecord, bool) {
	if t == nil {
		return TimeRiskRecord{}, false
	}
	i, ok := t.index[TimeKey{Cell: cell, Bucket: b}]
	if !ok {
		return TimeRiskRecord{}, false
	}
	return t.records[i], true
}

// Records returns a copy of the records in table order.
func (t *TimeTable) Records() []TimeRiskRecord {
	if t == nil {
		return nil
	}
	out := make([]TimeRiskRecord, len(t.records))
	copy(out, t.records)
	return out
}

// AnalyzeTime buckets one source's incidents by cell and local time of day.
func AnalyzeTime(source domain.Source, incidents []domain.Incident, indexer hexgrid.Indexer) *TimeTable {
	type acc struct {
		count    int
		severity float64
	}
	groups := make(map[TimeKey]*acc)

	for i := range incidents {
		inc := &incidents[i]
		if inc.Source != source || !inc.HasLocation() {
			continue
		}
		key := TimeKey{Cell: indexer.CellOf(inc.Lat, inc.Lng), Bucket: domain.BucketOf(inc.OccurredAt)}
		g, ok := groups[key]
		if !ok {
			g = &acc{}
			groups[key] = g
		}
		g.count++
		g.severity += inc.Severity
	}

	records := make([]TimeRiskRecord, 0, len(groups))
	cellMax := make(map[string]float64)
	severities := make([]float64, 0, len(groups))
	for key, g := range groups {
		records = append(records, TimeRiskRecord{
			Cell:         key.Cell,
			Bucket:       key.Bucket,
			Count:        g.count,
			Severity:     g.severity,
			MeanSeverity: g.severity / float64(g.count),
		})
		if g.severity > cellMax[key.Cell] {
			cellMax[key.Cell] = g.severity
		}
		severities = append(severities, g.severity)
	}

	p99 := Quantile(severities, globalQuantile)
	for i := range records {
		r := &records[i]
		if m := cellMax[r.Cell]; m > 0 {
			r.TimeRiskScore = r.Severity / m * 100
		}
		if p99 > 0 {
			r.GlobalRiskScore = math.Min(r.Severity, p99) / p99 * 100
		}
	}

	sort.Slice(records, func(i, j int) bool {
		a, b := records[i], records[j]
		if a.Cell != b.Cell {
			return a.Cell < b.Cell
		}
		return bucketRank(a.Bucket) < bucketRank(b.Bucket)
	})
	index := make(map[TimeKey]int, len(records))
	for i, r := range records {
		index[TimeKey{Cell: r.Cell, Bucket: r.Bucket}] = i
	}

	return &TimeTable{Source: source, P99: p99, records: records, index: index}
}

// Quantile returns the q-th quantile of xs using linear interpolation
// between the closest ranks: position (n-1)*q in the sorted sample.
// Empty input returns 0.
func Quantile(xs []float64, q float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sorted := make([]float64, len(xs))
	copy(sorted, xs)
	sort.Float64s(sorted)

	pos := float64(len(sorted)-1) * q
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	return sorted[lo] + (pos-float64(lo))*(sorted[hi]-sorted[lo])
}

func bucketRank(b domain.Bucket) int {
	rank := 0
	for i, p := range domain.Periods {
		if p == b.Period {
			rank = i * 2
			break
		}
	}
	if b.DayType == domain.Weekend {
		rank++
	}
	return rank
}
