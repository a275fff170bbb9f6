package risk

import (
	"math"
	"sort"

	"github.com/couchcryptid/saferoute/internal/domain"
)

// HourStat summarises incidents by local hour of day.
type HourStat struct {
	Hour         int     `json:"hour"`
	Count        int     `json:"count"`
	Severity     float64 `json:"total_severity"`
	MeanSeverity float64 `json:"avg_severity"`
	Multiplier   float64 `json:"risk_multiplier"`
	Score        float64 `json:"risk_score"`
}

// PeriodStat summarises incidents by period and day type.
type PeriodStat struct {
	Period             domain.Period  `json:"time_period"`
	DayType            domain.DayType `json:"day_type"`
	Count              int            `json:"count"`
	Severity           float64        `json:"total_severity"`
	MeanSeverity       float64        `json:"avg_severity"`
	PedestrianInvolved int            `json:"pedestrian_involved"`
	CyclistInvolved    int            `json:"cyclist_involved"`
	Multiplier         float64        `json:"risk_multiplier"`
}

// HourlyProfile groups incidents by hour. The multiplier is the hour's count
// over the mean count of the hours that had incidents; the score rescales
// multipliers so the busiest hour is 100. Only hours with incidents appear.
func HourlyProfile(incidents []domain.Incident) []HourStat {
	byHour := make(map[int]*HourStat)
	for i := range incidents {
		h := incidents[i].OccurredAt.Hour()
		s, ok := byHour[h]
		if !ok {
			s = &HourStat{Hour: h}
			byHour[h] = s
		}
		s.Count++
		s.Severity += incidents[i].Severity
	}
	if len(byHour) == 0 {
		return nil
	}

	out := make([]HourStat, 0, len(byHour))
	total := 0
	for _, s := range byHour {
		s.MeanSeverity = s.Severity / float64(s.Count)
		total += s.Count
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Hour < out[j].Hour })

	baseline := float64(total) / float64(len(out))
	var maxMult float64
	for i := range out {
		out[i].Multiplier = roundTo(float64(out[i].Count)/baseline, 3)
		maxMult = math.Max(maxMult, out[i].Multiplier)
	}
	for i := range out {
		if maxMult > 0 {
			out[i].Score = roundTo(out[i].Multiplier/maxMult*100, 2)
		}
	}
	return out
}

// PeriodProfile groups incidents by time bucket with a multiplier relative
// to the mean bucket count. Only buckets with incidents appear.
func PeriodProfile(incidents []domain.Incident) []PeriodStat {
	byBucket := make(map[domain.Bucket]*PeriodStat)
	for i := range incidents {
		inc := &incidents[i]
		b := domain.BucketOf(inc.OccurredAt)
		s, ok := byBucket[b]
		if !ok {
			s = &PeriodStat{Period: b.Period, DayType: b.DayType}
			byBucket[b] = s
		}
		s.Count++
		s.Severity += inc.Severity
		if inc.PedestrianSeverity > 0 {
			s.PedestrianInvolved++
		}
		if inc.CyclistSeverity > 0 {
			s.CyclistInvolved++
		}
	}
	if len(byBucket) == 0 {
		return nil
	}

	out := make([]PeriodStat, 0, len(byBucket))
	total := 0
	for _, s := range byBucket {
		s.MeanSeverity = s.Severity / float64(s.Count)
		total += s.Count
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool {
		return bucketRank(domain.Bucket{Period: out[i].Period, DayType: out[i].DayType}) <
			bucketRank(domain.Bucket{Period: out[j].Period, DayType: out[j].DayType})
	})

	baseline := float64(total) / float64(len(out))
	for i := range out {
		out[i].Multiplier = roundTo(float64(out[i].Count)/baseline, 3)
	}
	return out
}

// SafestPeriods returns the n buckets with the lowest multiplier.
func SafestPeriods(stats []PeriodStat, n int) []PeriodStat {
	return rankPeriods(stats, n, func(a, b float64) bool { return a < b })
}

// PeakPeriods returns the n buckets with the highest multiplier.
func PeakPeriods(stats []PeriodStat, n int) []PeriodStat {
	return rankPeriods(stats, n, func(a, b float64) bool { return a > b })
}

func rankPeriods(stats []PeriodStat, n int, less func(a, b float64) bool) []PeriodStat {
	out := make([]PeriodStat, len(stats))
	copy(out, stats)
	sort.SliceStable(out, func(i, j int) bool { return less(out[i].Multiplier, out[j].Multiplier) })
	if n < len(out) {
		out = out[:n]
	}
	return out
}

func roundTo(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
