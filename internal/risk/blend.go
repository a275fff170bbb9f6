package risk

import (
	"sort"

	"github.com/couchcryptid/saferoute/internal/domain"
)

// CombinedCell joins the collision and crime records of one cell. A side
// with no record for the cell reads as zero.
type CombinedCell struct {
	Cell string

	CrashRisk         float64
	SmoothedCrashRisk float64
	PedestrianRisk    float64
	CyclistRisk       float64
	CrashCount        int
	CrashSeverity     float64

	CrimeRisk         float64
	SmoothedCrimeRisk float64
	CrimeCount        int
}

// CombinedBucket joins the two sides' global bucket scores for one
// (cell, bucket) pair. HasCrash and HasCrime record which side actually had
// the bucket; an absent side's score reads as zero.
type CombinedBucket struct {
	Cell       string
	Bucket     domain.Bucket
	CrashScore float64
	CrimeScore float64
	HasCrash   bool
	HasCrime   bool
}

// Combined is the blended grid: the union of both sources' cells and
// (cell, bucket) pairs, each ordered by cell id.
type Combined struct {
	Cells        []CombinedCell
	Buckets      []CombinedBucket
	HasCrimeData bool
}

// Blend outer-joins the collision and crime tables on cell id, and their
// time tables on (cell, period, day type). No cell present in either input
// is dropped. Any argument may be nil.
func Blend(crash, crime *Table, crashTime, crimeTime *TimeTable) *Combined {
	cells := make(map[string]*CombinedCell)
	get := func(id string) *CombinedCell {
		c, ok := cells[id]
		if !ok {
			c = &CombinedCell{Cell: id}
			cells[id] = c
		}
		return c
	}

	for _, r := range crash.Records() {
		c := get(r.Cell)
		c.CrashRisk = r.RiskScore
		c.SmoothedCrashRisk = r.SmoothedScore
		c.PedestrianRisk = r.PedestrianRisk
		c.CyclistRisk = r.CyclistRisk
		c.CrashCount = r.Count
		c.CrashSeverity = r.Severity
	}
	for _, r := range crime.Records() {
		c := get(r.Cell)
		c.CrimeRisk = r.RiskScore
		c.SmoothedCrimeRisk = r.SmoothedScore
		c.CrimeCount = r.Count
	}

	buckets := make(map[TimeKey]*CombinedBucket)
	getBucket := func(cell string, b domain.Bucket) *CombinedBucket {
		k := TimeKey{Cell: cell, Bucket: b}
		cb, ok := buckets[k]
		if !ok {
			cb = &CombinedBucket{Cell: cell, Bucket: b}
			buckets[k] = cb
		}
		return cb
	}
	for _, r := range crashTime.Records() {
		cb := getBucket(r.Cell, r.Bucket)
		cb.CrashScore = r.GlobalRiskScore
		cb.HasCrash = true
	}
	for _, r := range crimeTime.Records() {
		cb := getBucket(r.Cell, r.Bucket)
		cb.CrimeScore = r.GlobalRiskScore
		cb.HasCrime = true
	}

	out := &Combined{
		Cells:        make([]CombinedCell, 0, len(cells)),
		Buckets:      make([]CombinedBucket, 0, len(buckets)),
		HasCrimeData: crime.Len() > 0,
	}
	for _, c := range cells {
		out.Cells = append(out.Cells, *c)
	}
	for _, b := range buckets {
		out.Buckets = append(out.Buckets, *b)
	}
	sort.Slice(out.Cells, func(i, j int) bool { return out.Cells[i].Cell < out.Cells[j].Cell })
	sort.Slice(out.Buckets, func(i, j int) bool {
		a, b := out.Buckets[i], out.Buckets[j]
		if a.Cell != b.Cell {
			return a.Cell < b.Cell
		}
		return bucketRank(a.Bucket) < bucketRank(b.Bucket)
	})
	return out
}
