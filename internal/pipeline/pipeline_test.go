package pipeline_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/couchcryptid/saferoute/internal/domain"
	"github.com/couchcryptid/saferoute/internal/hexgrid"
	"github.com/couchcryptid/saferoute/internal/observability"
	"github.com/couchcryptid/saferoute/internal/pipeline"
	"github.com/couchcryptid/saferoute/internal/surface"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- mocks ---

type mockExtractor struct {
	mu      sync.Mutex
	batches [][]domain.RawEvent
	errs    []error // returned, in order, before any batch
	calls   int
}

func (m *mockExtractor) ExtractBatch(_ context.Context, _ int) ([]domain.RawEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if len(m.errs) > 0 {
		err := m.errs[0]
		m.errs = m.errs[1:]
		return nil, err
	}
	if len(m.batches) == 0 {
		return nil, nil
	}
	b := m.batches[0]
	m.batches = m.batches[1:]
	return b, nil
}

// jsonTransformer decodes raw.Value as an Incident.
type jsonTransformer struct{}

func (jsonTransformer) Transform(_ context.Context, raw domain.RawEvent) (domain.Incident, error) {
	var inc domain.Incident
	if err := json.Unmarshal(raw.Value, &inc); err != nil {
		return domain.Incident{}, err
	}
	return inc, nil
}

type mockLoader struct {
	loaded []*surface.Surface
	err    error
}

func (m *mockLoader) LoadSurface(_ context.Context, s *surface.Surface) error {
	if m.err != nil {
		return m.err
	}
	m.loaded = append(m.loaded, s)
	return nil
}

type mockPatterns struct {
	reports []*surface.TimePatterns
}

func (m *mockPatterns) LoadPatterns(_ context.Context, reports []*surface.TimePatterns) error {
	m.reports = reports
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func freezeClock(t *testing.T) {
	t.Helper()
	domain.SetClock(clockwork.NewFakeClockAt(time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)))
	t.Cleanup(func() { domain.SetClock(nil) })
}

func makeRaw(t *testing.T, inc domain.Incident, commits *int) domain.RawEvent {
	t.Helper()
	payload, err := json.Marshal(inc)
	require.NoError(t, err)
	raw := domain.RawEvent{
		Source:  inc.Source,
		Key:     []byte(inc.ID),
		Value:   payload,
		Headers: map[string]string{"source": string(inc.Source)},
		Topic:   "raw-incidents",
	}
	if commits != nil {
		raw.Commit = func(context.Context) error {
			*commits++
			return nil
		}
	}
	return raw
}

func collision(id string, lat, lng float64, at time.Time) domain.Incident {
	return domain.Incident{ID: id, Source: domain.SourceCollision, OccurredAt: at, Lat: lat, Lng: lng, Severity: 3}
}

func crime(id string, lat, lng float64, at time.Time) domain.Incident {
	return domain.Incident{ID: id, Source: domain.SourceCrime, OccurredAt: at, Lat: lat, Lng: lng, Severity: 5}
}

var (
	timesSquare = [2]float64{40.7580, -73.9855}
	unionSquare = [2]float64{40.7359, -73.9911}
	evening     = time.Date(2024, 5, 20, 17, 30, 0, 0, time.UTC)
)

func newPipeline(ext pipeline.BatchExtractor, loaders []pipeline.SurfaceLoader, patterns pipeline.PatternLoader, m *observability.Metrics) *pipeline.Pipeline {
	b := pipeline.NewBuilder(hexgrid.H3{}, discardLogger())
	return pipeline.New(ext, jsonTransformer{}, b, loaders, patterns, discardLogger(), m, 50)
}

// --- tests ---

func TestPipeline_Run_HappyPath(t *testing.T) {
	freezeClock(t)
	commits := 0
	ext := &mockExtractor{batches: [][]domain.RawEvent{
		{
			makeRaw(t, collision("c1", timesSquare[0], timesSquare[1], evening), &commits),
			makeRaw(t, collision("c2", unionSquare[0], unionSquare[1], evening), &commits),
		},
		{makeRaw(t, crime("k1", timesSquare[0], timesSquare[1], evening), &commits)},
	}}
	ldr := &mockLoader{}
	pat := &mockPatterns{}
	m := observability.NewMetricsForTesting()
	p := newPipeline(ext, []pipeline.SurfaceLoader{ldr}, pat, m)

	require.Error(t, p.CheckReadiness(context.Background()))

	s, err := p.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, ldr.loaded, 1)
	assert.Same(t, s, ldr.loaded[0])

	assert.Len(t, s.Cells, 2)
	assert.True(t, s.Metadata.HasCrimeData)
	assert.Equal(t, time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), s.Metadata.GeneratedAt)

	ts, ok := s.Cell(hexgrid.CellOf(timesSquare[0], timesSquare[1]))
	require.True(t, ok)
	assert.Equal(t, 1, ts.CrashCount)
	assert.Equal(t, 1, ts.CrimeCount)

	require.Len(t, pat.reports, 2)
	assert.Equal(t, "collision", pat.reports[0].Source)
	assert.Equal(t, "crime", pat.reports[1].Source)

	assert.Equal(t, 3, commits)
	assert.NoError(t, p.CheckReadiness(context.Background()))
	assert.InDelta(t, 2.0, testutil.ToFloat64(m.IncidentsConsumed.WithLabelValues("collision")), 1e-9)
	assert.InDelta(t, 1.0, testutil.ToFloat64(m.IncidentsConsumed.WithLabelValues("crime")), 1e-9)
	assert.InDelta(t, 1.0, testutil.ToFloat64(m.PipelineRuns.WithLabelValues("success")), 1e-9)
	assert.InDelta(t, 2.0, testutil.ToFloat64(m.SurfaceCells), 1e-9)
	assert.InDelta(t, 0.0, testutil.ToFloat64(m.PipelineRunning), 1e-9)
}

func TestPipeline_Run_TransformErrorSkipped(t *testing.T) {
	freezeClock(t)
	bad := domain.RawEvent{Source: domain.SourceCollision, Value: []byte("{not json"), Topic: "crashes.csv", Offset: 7}
	ext := &mockExtractor{batches: [][]domain.RawEvent{
		{bad, makeRaw(t, collision("c1", timesSquare[0], timesSquare[1], evening), nil)},
	}}
	ldr := &mockLoader{}
	m := observability.NewMetricsForTesting()
	p := newPipeline(ext, []pipeline.SurfaceLoader{ldr}, nil, m)

	s, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Len(t, s.Cells, 1)
	assert.False(t, s.Metadata.HasCrimeData)
	assert.InDelta(t, 1.0, testutil.ToFloat64(m.TransformErrors.WithLabelValues("collision")), 1e-9)
}

func TestPipeline_Run_RetriesExtractErrors(t *testing.T) {
	freezeClock(t)
	ext := &mockExtractor{
		errs:    []error{errors.New("broker unavailable")},
		batches: [][]domain.RawEvent{{makeRaw(t, collision("c1", timesSquare[0], timesSquare[1], evening), nil)}},
	}
	p := newPipeline(ext, []pipeline.SurfaceLoader{&mockLoader{}}, nil, observability.NewMetricsForTesting())

	s, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Len(t, s.Cells, 1)
	assert.Equal(t, 3, ext.calls)
}

func TestPipeline_Run_CanceledDuringBackoff(t *testing.T) {
	ext := &mockExtractor{errs: []error{errors.New("down"), errors.New("down"), errors.New("down")}}
	m := observability.NewMetricsForTesting()
	p := newPipeline(ext, nil, nil, m)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := p.Run(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.InDelta(t, 1.0, testutil.ToFloat64(m.PipelineRuns.WithLabelValues("error")), 1e-9)
}

func TestPipeline_Run_LoaderErrorSkipsCommit(t *testing.T) {
	freezeClock(t)
	commits := 0
	ext := &mockExtractor{batches: [][]domain.RawEvent{
		{makeRaw(t, collision("c1", timesSquare[0], timesSquare[1], evening), &commits)},
	}}
	m := observability.NewMetricsForTesting()
	p := newPipeline(ext, []pipeline.SurfaceLoader{&mockLoader{err: errors.New("disk full")}}, nil, m)

	_, err := p.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Zero(t, commits)
	assert.Error(t, p.CheckReadiness(context.Background()))
	assert.InDelta(t, 1.0, testutil.ToFloat64(m.PipelineRuns.WithLabelValues("error")), 1e-9)
}

func TestPipeline_Run_NoIncidentsOnFirstRun(t *testing.T) {
	p := newPipeline(&mockExtractor{}, []pipeline.SurfaceLoader{&mockLoader{}}, nil, observability.NewMetricsForTesting())

	_, err := p.Run(context.Background())
	assert.ErrorIs(t, err, pipeline.ErrNoIncidents)
}

type blockingExtractor struct {
	entered chan struct{}
	release chan struct{}
}

func (b *blockingExtractor) ExtractBatch(ctx context.Context, _ int) ([]domain.RawEvent, error) {
	close(b.entered)
	select {
	case <-b.release:
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func TestPipeline_Run_RejectsConcurrentRun(t *testing.T) {
	ext := &blockingExtractor{entered: make(chan struct{}), release: make(chan struct{})}
	p := newPipeline(ext, nil, nil, observability.NewMetricsForTesting())

	done := make(chan error, 1)
	go func() {
		_, err := p.Run(context.Background())
		done <- err
	}()

	<-ext.entered
	_, err := p.Run(context.Background())
	require.ErrorIs(t, err, pipeline.ErrRunInProgress)

	close(ext.release)
	assert.ErrorIs(t, <-done, pipeline.ErrNoIncidents)
}

func TestChain(t *testing.T) {
	a := &mockExtractor{batches: [][]domain.RawEvent{{{Key: []byte("a1")}}, {{Key: []byte("a2")}}}}
	b := &mockExtractor{batches: [][]domain.RawEvent{{{Key: []byte("b1")}}}}
	c := pipeline.Chain(a, &mockExtractor{}, b)

	var keys []string
	for {
		batch, err := c.ExtractBatch(context.Background(), 10)
		require.NoError(t, err)
		if len(batch) == 0 {
			break
		}
		for _, raw := range batch {
			keys = append(keys, string(raw.Key))
		}
	}
	assert.Equal(t, []string{"a1", "a2", "b1"}, keys)
}

func TestChain_PropagatesError(t *testing.T) {
	c := pipeline.Chain(&mockExtractor{errs: []error{errors.New("boom")}})
	_, err := c.ExtractBatch(context.Background(), 10)
	assert.EqualError(t, err, "boom")
}

func TestPipeline_Run_AccumulatesAcrossRuns(t *testing.T) {
	freezeClock(t)
	c1 := collision("c1", timesSquare[0], timesSquare[1], evening)
	ext := &mockExtractor{batches: [][]domain.RawEvent{{makeRaw(t, c1, nil)}}}
	p := newPipeline(ext, []pipeline.SurfaceLoader{&mockLoader{}}, nil, observability.NewMetricsForTesting())

	first, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Len(t, first.Cells, 1)

	// Redelivered c1 is deduplicated; c2 is new.
	ext.batches = append(ext.batches, []domain.RawEvent{
		makeRaw(t, c1, nil),
		makeRaw(t, collision("c2", unionSquare[0], unionSquare[1], evening), nil),
	})
	second, err := p.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, second.Cells, 2)

	ts, ok := second.Cell(hexgrid.CellOf(timesSquare[0], timesSquare[1]))
	require.True(t, ok)
	assert.Equal(t, 1, ts.CrashCount)

	// Nothing new: the surface is rebuilt from what is already known.
	third, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, second.CellIDs(), third.CellIDs())
}
