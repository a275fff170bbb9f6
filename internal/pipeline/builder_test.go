package pipeline_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/couchcryptid/saferoute/internal/adapter/csvsource"
	"github.com/couchcryptid/saferoute/internal/domain"
	"github.com/couchcryptid/saferoute/internal/hexgrid"
	"github.com/couchcryptid/saferoute/internal/observability"
	"github.com/couchcryptid/saferoute/internal/pipeline"
	"github.com/couchcryptid/saferoute/internal/surface"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuilder_CrashOnly(t *testing.T) {
	freezeClock(t)
	b := pipeline.NewBuilder(hexgrid.H3{}, discardLogger())

	snap, err := b.Build([]domain.Incident{
		collision("c1", timesSquare[0], timesSquare[1], evening),
		collision("c2", timesSquare[0], timesSquare[1], evening.Add(24*time.Hour)),
	})
	require.NoError(t, err)

	assert.False(t, snap.Surface.Metadata.HasCrimeData)
	assert.Equal(t, 1, snap.Surface.Metadata.TotalCells)
	require.Len(t, snap.Patterns, 1)
	assert.Equal(t, "collision", snap.Patterns[0].Source)

	cell, ok := snap.Surface.Cell(hexgrid.CellOf(timesSquare[0], timesSquare[1]))
	require.True(t, ok)
	assert.Equal(t, 2, cell.CrashCount)
	assert.Zero(t, cell.CrimeCount)
	assert.Contains(t, cell.TimeModifiers, "evening_rush_weekday")
	assert.Empty(t, cell.CrimeTimeModifiers)
}

func TestBuilder_IgnoresUnlocatedIncidents(t *testing.T) {
	b := pipeline.NewBuilder(hexgrid.H3{}, discardLogger())
	_, err := b.Build([]domain.Incident{collision("c1", 0, 0, evening)})
	assert.ErrorIs(t, err, pipeline.ErrNoIncidents)
}

func TestPipeline_CSVToFiles(t *testing.T) {
	freezeClock(t)
	dir := t.TempDir()

	crashes, err := csvsource.Open(filepath.Join("testdata", "collisions.csv"), domain.SourceCollision)
	require.NoError(t, err)
	defer crashes.Close()
	crimes, err := csvsource.Open(filepath.Join("testdata", "crimes.csv"), domain.SourceCrime)
	require.NoError(t, err)
	defer crimes.Close()

	surfacePath := filepath.Join(dir, "risk_surface.json")
	geojsonPath := filepath.Join(dir, "grid.geojson")
	patternsPath := filepath.Join(dir, "time_patterns.json")

	m := observability.NewMetricsForTesting()
	p := pipeline.New(
		pipeline.Chain(crashes, crimes),
		pipeline.NewTransformer(nil, discardLogger()),
		pipeline.NewBuilder(hexgrid.H3{}, discardLogger()),
		[]pipeline.SurfaceLoader{
			pipeline.FileLoader{Path: surfacePath},
			pipeline.GeoJSONLoader{Path: geojsonPath},
		},
		pipeline.PatternsFileLoader{Path: patternsPath},
		discardLogger(), m, 2,
	)

	built, err := p.Run(context.Background())
	require.NoError(t, err)

	// Unlocated collision, bad timestamp, and indoor crime are skipped.
	assert.InDelta(t, 2.0, testutil.ToFloat64(m.TransformErrors.WithLabelValues("collision")), 1e-9)
	assert.InDelta(t, 1.0, testutil.ToFloat64(m.TransformErrors.WithLabelValues("crime")), 1e-9)
	assert.InDelta(t, 5.0, testutil.ToFloat64(m.IncidentsConsumed.WithLabelValues("collision")), 1e-9)

	loaded, err := surface.ReadFile(surfacePath)
	require.NoError(t, err)
	assert.Equal(t, built.CellIDs(), loaded.CellIDs())
	assert.True(t, loaded.Metadata.HasCrimeData)
	assert.Equal(t, 2, loaded.Metadata.TotalCells)

	ts, ok := loaded.Cell(hexgrid.CellOf(40.7580, -73.9855))
	require.True(t, ok)
	assert.Equal(t, 2, ts.CrashCount)
	assert.Equal(t, 1, ts.CrimeCount)
	assert.Equal(t, 100.0, ts.CrimeRisk)

	for _, path := range []string{geojsonPath, patternsPath} {
		info, err := os.Stat(path)
		require.NoError(t, err)
		assert.Positive(t, info.Size())
	}
}

func TestPipeline_CSVKeepsRecordsWithIdenticalFields(t *testing.T) {
	const header = "collision_id,crash_date,crash_time,latitude,longitude,number_of_persons_injured,number_of_persons_killed\n"
	const row = "2024-05-13T00:00:00.000,17:45,40.7580,-73.9855,0,0\n"

	tests := []struct {
		name string
		csv  string
	}{
		{"distinct collision ids", header + "1," + row + "2," + row + "3," + row},
		{"no collision ids", header + "," + row + "," + row + "," + row},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			freezeClock(t)
			r, err := csvsource.NewReader(strings.NewReader(tt.csv), "collisions.csv", domain.SourceCollision)
			require.NoError(t, err)

			p := pipeline.New(r,
				pipeline.NewTransformer(nil, discardLogger()),
				pipeline.NewBuilder(hexgrid.H3{}, discardLogger()),
				[]pipeline.SurfaceLoader{&mockLoader{}}, nil,
				discardLogger(), observability.NewMetricsForTesting(), 10,
			)
			built, err := p.Run(context.Background())
			require.NoError(t, err)

			cell, ok := built.Cell(hexgrid.CellOf(40.7580, -73.9855))
			require.True(t, ok)
			assert.Equal(t, 3, cell.CrashCount)
			assert.InDelta(t, 3.0, cell.TotalSeverity, 1e-9)
		})
	}
}
