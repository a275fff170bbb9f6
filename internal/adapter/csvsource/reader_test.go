package csvsource

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/couchcryptid/saferoute/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const collisionCSV = `crash_date,crash_time,borough,latitude,longitude,on_street_name,number_of_persons_injured,number_of_persons_killed,number_of_pedestrians_injured,number_of_pedestrians_killed,number_of_cyclist_injured,number_of_cyclist_killed,collision_id
2024-03-15T00:00:00.000,17:45,MANHATTAN,40.7580,-73.9855,BROADWAY,2,0,1,0,0,0,4700001
2024-03-16T00:00:00.000,2:10,BROOKLYN,40.6782,-73.9442,ATLANTIC AVENUE,0,1,0,1,0,0,4700002
2024-03-17T00:00:00.000,9:00,QUEENS,,,QUEENS BOULEVARD,0,0,0,0,0,0,4700003
`

const crimeCSV = `cmplnt_num,cmplnt_fr_dt,cmplnt_fr_tm,ofns_desc,law_cat_cd,boro_nm,prem_typ_desc,latitude,longitude
100,2024-02-01T00:00:00.000,23:30:00,ROBBERY,FELONY,MANHATTAN,STREET,40.7061,-74.0087
101,2024-02-02T00:00:00.000,,PETIT LARCENY,MISDEMEANOR,BRONX,RESIDENCE - APT. HOUSE,40.8448,-73.8648
`

func TestReader_CollisionBatches(t *testing.T) {
	r, err := NewReader(strings.NewReader(collisionCSV), "crashes.csv", domain.SourceCollision)
	require.NoError(t, err)

	ctx := context.Background()
	first, err := r.ExtractBatch(ctx, 2)
	require.NoError(t, err)
	require.Len(t, first, 2)

	assert.Equal(t, domain.SourceCollision, first[0].Source)
	assert.Equal(t, "collision", first[0].Headers["source"])
	assert.Equal(t, "crashes.csv", first[0].Topic)
	assert.Equal(t, int64(1), first[0].Offset)
	assert.Equal(t, []byte("crashes.csv:2"), first[1].Key)

	inc, err := domain.ParseRawEvent(first[0])
	require.NoError(t, err)
	assert.Equal(t, 40.7580, inc.Lat)
	assert.Equal(t, -73.9855, inc.Lng)
	assert.Equal(t, 5.0, inc.Severity)
	assert.Equal(t, 2.0, inc.PedestrianSeverity)
	assert.Equal(t, "BROADWAY", inc.Street)

	second, err := r.ExtractBatch(ctx, 2)
	require.NoError(t, err)
	require.Len(t, second, 1)

	third, err := r.ExtractBatch(ctx, 2)
	require.NoError(t, err)
	assert.Empty(t, third)
	assert.Equal(t, int64(3), r.Rows())
}

func TestReader_Crime(t *testing.T) {
	r, err := NewReader(strings.NewReader(crimeCSV), "crimes.csv", domain.SourceCrime)
	require.NoError(t, err)

	batch, err := r.ExtractBatch(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, batch, 2)

	inc, err := domain.ParseRawEvent(batch[0])
	require.NoError(t, err)
	assert.Equal(t, "ROBBERY", inc.Offense)
	assert.Equal(t, 7.5, inc.Severity)
	assert.Equal(t, 23, inc.OccurredAt.Hour())

	_, err = domain.ParseRawEvent(batch[1])
	assert.ErrorIs(t, err, domain.ErrIndoorPremise)
}

func TestReader_EmptyInput(t *testing.T) {
	r, err := NewReader(strings.NewReader(""), "empty.csv", domain.SourceCollision)
	require.NoError(t, err)

	batch, err := r.ExtractBatch(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, batch)
}

func TestReader_UnknownSource(t *testing.T) {
	_, err := NewReader(strings.NewReader(collisionCSV), "x.csv", domain.Source("weather"))
	assert.ErrorIs(t, err, domain.ErrUnknownSource)
}

func TestReader_CanceledContext(t *testing.T) {
	r, err := NewReader(strings.NewReader(collisionCSV), "crashes.csv", domain.SourceCollision)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = r.ExtractBatch(ctx, 10)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "crashes.csv")
	require.NoError(t, os.WriteFile(path, []byte(collisionCSV), 0o600))

	r, err := Open(path, domain.SourceCollision)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, r.Close()) })

	batch, err := r.ExtractBatch(context.Background(), 100)
	require.NoError(t, err)
	assert.Len(t, batch, 3)

	_, err = Open(filepath.Join(t.TempDir(), "missing.csv"), domain.SourceCollision)
	assert.Error(t, err)
}

func TestReader_Reset(t *testing.T) {
	path := filepath.Join(t.TempDir(), "crashes.csv")
	require.NoError(t, os.WriteFile(path, []byte(collisionCSV), 0o600))

	r, err := Open(path, domain.SourceCollision)
	require.NoError(t, err)
	defer r.Close()

	ctx := context.Background()
	all, err := r.ExtractBatch(ctx, 10)
	require.NoError(t, err)
	require.Len(t, all, 3)
	empty, err := r.ExtractBatch(ctx, 10)
	require.NoError(t, err)
	require.Empty(t, empty)

	require.NoError(t, r.Reset())
	again, err := r.ExtractBatch(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, again, 3)
	assert.Equal(t, all[0].Key, again[0].Key)
}

func TestReader_ResetWithoutFile(t *testing.T) {
	r, err := NewReader(strings.NewReader(collisionCSV), "inline", domain.SourceCollision)
	require.NoError(t, err)
	assert.ErrorIs(t, r.Reset(), ErrNotRewindable)
}
