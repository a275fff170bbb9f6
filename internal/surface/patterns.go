package surface

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/couchcryptid/saferoute/internal/risk"
)

// BucketStat is one cell's entry in the time-pattern lookup.
type BucketStat struct {
	Count           int     `json:"count"`
	TimeRiskScore   float64 `json:"time_risk_score"`
	GlobalRiskScore float64 `json:"global_risk_score"`
}

// TimePatterns is the time-of-day report for one incident source.
type TimePatterns struct {
	Source         string                           `json:"source"`
	GeneratedAt    time.Time                        `json:"generated_at"`
	Hourly         []risk.HourStat                  `json:"hourly"`
	Periods        []risk.PeriodStat                `json:"periods"`
	SafestPeriods  []risk.PeriodStat                `json:"safest_periods"`
	PeakPeriods    []risk.PeriodStat                `json:"peak_periods"`
	CellTimeLookup map[string]map[string]BucketStat `json:"cell_time_lookup"`
}

// NewTimePatterns assembles the report from the analyzer outputs.
func NewTimePatterns(source string, hourly []risk.HourStat, periods []risk.PeriodStat, cellTime *risk.TimeTable, generatedAt time.Time) *TimePatterns {
	tp := &TimePatterns{
		Source:         source,
		GeneratedAt:    generatedAt,
		Hourly:         hourly,
		Periods:        periods,
		SafestPeriods:  risk.SafestPeriods(periods, 3),
		PeakPeriods:    risk.PeakPeriods(periods, 3),
		CellTimeLookup: map[string]map[string]BucketStat{},
	}
	for _, r := range cellTime.Records() {
		byBucket, ok := tp.CellTimeLookup[r.Cell]
		if !ok {
			byBucket = map[string]BucketStat{}
			tp.CellTimeLookup[r.Cell] = byBucket
		}
		byBucket[r.Bucket.String()] = BucketStat{
			Count:           r.Count,
			TimeRiskScore:   round(r.TimeRiskScore, 2),
			GlobalRiskScore: round(r.GlobalRiskScore, 2),
		}
	}
	return tp
}

// WriteTimePatterns encodes one or more reports as a JSON array.
func WriteTimePatterns(w io.Writer, reports []*TimePatterns) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(reports); err != nil {
		return fmt.Errorf("encode time patterns: %w", err)
	}
	return nil
}

// WriteTimePatternsFile writes the reports to path atomically.
func WriteTimePatternsFile(path string, reports []*TimePatterns) error {
	return writeFileAtomic(path, func(w io.Writer) error { return WriteTimePatterns(w, reports) })
}
