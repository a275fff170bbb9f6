package domain

import (
	"fmt"
	"strings"
	"time"
)

// Period is a named time-of-day window.
type Period string

const (
	PeriodNight       Period = "night"
	PeriodMorningRush Period = "morning_rush"
	PeriodMidday      Period = "midday"
	PeriodEveningRush Period = "evening_rush"
	PeriodEvening     Period = "evening"
)

// DayType splits the week into weekday and weekend.
type DayType string

const (
	Weekday DayType = "weekday"
	Weekend DayType = "weekend"
)

// Periods lists every period in time-of-day order.
var Periods = []Period{PeriodNight, PeriodMorningRush, PeriodMidday, PeriodEveningRush, PeriodEvening}

// DayTypes lists both day types.
var DayTypes = []DayType{Weekday, Weekend}

// periodBounds are half-open [start, end) hour ranges.
var periodBounds = []struct {
	period     Period
	start, end int
}{
	{PeriodNight, 0, 6},
	{PeriodMorningRush, 6, 9},
	{PeriodMidday, 9, 16},
	{PeriodEveningRush, 16, 19},
	{PeriodEvening, 19, 24},
}

// PeriodOf maps an hour of day to its period. Hours outside 0-23 fall back
// to night.
func PeriodOf(hour int) Period {
	for _, b := range periodBounds {
		if hour >= b.start && hour < b.end {
			return b.period
		}
	}
	return PeriodNight
}

// DayTypeOf classifies a weekday. Saturday and Sunday are weekend.
func DayTypeOf(day time.Weekday) DayType {
	if day == time.Saturday || day == time.Sunday {
		return Weekend
	}
	return Weekday
}

// Bucket is a (period, day type) pair. Its string form, e.g.
// "evening_rush_weekday", keys the time modifier maps.
type Bucket struct {
	Period  Period
	DayType DayType
}

// BucketOf returns the bucket a local timestamp falls in.
func BucketOf(t time.Time) Bucket {
	return Bucket{Period: PeriodOf(t.Hour()), DayType: DayTypeOf(t.Weekday())}
}

// BucketFor returns the bucket for an hour of day and weekend flag.
func BucketFor(hour int, weekend bool) Bucket {
	dt := Weekday
	if weekend {
		dt = Weekend
	}
	return Bucket{Period: PeriodOf(hour), DayType: dt}
}

func (b Bucket) String() string {
	return string(b.Period) + "_" + string(b.DayType)
}

// AllBuckets lists the ten buckets in period-major order.
func AllBuckets() []Bucket {
	out := make([]Bucket, 0, len(Periods)*len(DayTypes))
	for _, p := range Periods {
		for _, d := range DayTypes {
			out = append(out, Bucket{Period: p, DayType: d})
		}
	}
	return out
}

// ParseBucket parses the string form produced by Bucket.String.
func ParseBucket(s string) (Bucket, error) {
	for _, d := range DayTypes {
		suffix := "_" + string(d)
		if !strings.HasSuffix(s, suffix) {
			continue
		}
		p := Period(strings.TrimSuffix(s, suffix))
		for _, known := range Periods {
			if p == known {
				return Bucket{Period: p, DayType: d}, nil
			}
		}
	}
	return Bucket{}, fmt.Errorf("invalid time bucket %q", s)
}
