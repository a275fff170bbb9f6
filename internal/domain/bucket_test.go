package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPeriodOf(t *testing.T) {
	tests := []struct {
		hour     int
		expected Period
	}{
		{0, PeriodNight},
		{5, PeriodNight},
		{6, PeriodMorningRush},
		{8, PeriodMorningRush},
		{9, PeriodMidday},
		{15, PeriodMidday},
		{16, PeriodEveningRush},
		{18, PeriodEveningRush},
		{19, PeriodEvening},
		{23, PeriodEvening},
		{24, PeriodNight},
		{-1, PeriodNight},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, PeriodOf(tt.hour), "hour %d", tt.hour)
	}
}

func TestBucketOf(t *testing.T) {
	saturday := time.Date(2024, 3, 16, 2, 0, 0, 0, time.UTC)
	monday := time.Date(2024, 3, 18, 17, 30, 0, 0, time.UTC)

	assert.Equal(t, "night_weekend", BucketOf(saturday).String())
	assert.Equal(t, "evening_rush_weekday", BucketOf(monday).String())
	assert.Equal(t, "midday_weekend", BucketFor(12, true).String())
}

func TestParseBucket(t *testing.T) {
	for _, b := range AllBuckets() {
		got, err := ParseBucket(b.String())
		require.NoError(t, err)
		assert.Equal(t, b, got)
	}
	assert.Len(t, AllBuckets(), 10)

	_, err := ParseBucket("brunch_weekend")
	assert.Error(t, err)
	_, err = ParseBucket("midday")
	assert.Error(t, err)
}
