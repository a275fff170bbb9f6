package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/saferoute/internal/domain"
	"github.com/couchcryptid/saferoute/internal/observability"
	"github.com/couchcryptid/saferoute/internal/surface"
	sharedretry "github.com/couchcryptid/storm-data-shared/retry"
)

// ErrRunInProgress is returned when Run is called while another run is active.
var ErrRunInProgress = errors.New("surface rebuild already in progress")

const (
	initialBackoff    = 200 * time.Millisecond
	maxBackoff        = 5 * time.Second
	maxExtractRetries = 5
)

// BatchExtractor reads up to batchSize raw events from the source. An empty
// batch with a nil error means the source is drained.
type BatchExtractor interface {
	ExtractBatch(ctx context.Context, batchSize int) ([]domain.RawEvent, error)
}

// Resetter is implemented by extractors that can be rewound before each run.
type Resetter interface {
	Reset() error
}

// Transformer converts a raw event into an incident.
type Transformer interface {
	Transform(ctx context.Context, raw domain.RawEvent) (domain.Incident, error)
}

// SurfaceLoader stores or publishes a finished surface.
type SurfaceLoader interface {
	LoadSurface(ctx context.Context, s *surface.Surface) error
}

// PatternLoader stores the time-pattern reports of a run.
type PatternLoader interface {
	LoadPatterns(ctx context.Context, reports []*surface.TimePatterns) error
}

// Pipeline runs one extract, transform, build, load pass per call to Run.
type Pipeline struct {
	extractor   BatchExtractor
	transformer Transformer
	builder     *Builder
	loaders     []SurfaceLoader
	patterns    PatternLoader
	logger      *slog.Logger
	metrics     *observability.Metrics
	ready       atomic.Bool
	running     atomic.Bool
	batchSize   int

	// known holds every incident seen so far, keyed by its deterministic
	// id. Only the active run touches it.
	known map[string]domain.Incident
}

// New creates a Pipeline. loaders run in order; patterns may be nil.
func New(e BatchExtractor, t Transformer, b *Builder, loaders []SurfaceLoader, patterns PatternLoader, logger *slog.Logger, metrics *observability.Metrics, batchSize int) *Pipeline {
	return &Pipeline{
		extractor:   e,
		transformer: t,
		builder:     b,
		loaders:     loaders,
		patterns:    patterns,
		logger:      logger,
		metrics:     metrics,
		batchSize:   batchSize,
		known:       make(map[string]domain.Incident),
	}
}

// CheckReadiness returns nil once a surface has been built and loaded.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("no surface has been built yet")
	}
	return nil
}

// Run drains the extractor, builds a surface from every incident seen so
// far, and hands it to every loader. Incidents are deduplicated by id, so a
// rewound file and a topic that only delivers new records both build the
// full surface. Source offsets are committed only after all loaders succeed.
func (p *Pipeline) Run(ctx context.Context) (*surface.Surface, error) {
	if !p.running.CompareAndSwap(false, true) {
		return nil, ErrRunInProgress
	}
	defer p.running.Store(false)

	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)

	s, err := p.run(ctx)
	if err != nil {
		p.metrics.PipelineRuns.WithLabelValues("error").Inc()
		return nil, err
	}
	p.metrics.PipelineRuns.WithLabelValues("success").Inc()
	p.ready.Store(true)
	return s, nil
}

func (p *Pipeline) run(ctx context.Context) (*surface.Surface, error) {
	start := time.Now()
	p.logger.Info("surface rebuild started", "batch_size", p.batchSize)

	if r, ok := p.extractor.(Resetter); ok {
		if err := r.Reset(); err != nil {
			return nil, fmt.Errorf("rewind extractor: %w", err)
		}
	}

	fresh, raws, err := p.extractAll(ctx)
	if err != nil {
		return nil, err
	}
	for _, inc := range fresh {
		p.known[inc.ID] = inc
	}
	incidents := p.incidents()

	snap, err := p.builder.Build(incidents)
	if err != nil {
		return nil, err
	}

	for _, l := range p.loaders {
		if err := l.LoadSurface(ctx, snap.Surface); err != nil {
			return nil, fmt.Errorf("load surface: %w", err)
		}
	}
	if p.patterns != nil {
		if err := p.patterns.LoadPatterns(ctx, snap.Patterns); err != nil {
			return nil, fmt.Errorf("load time patterns: %w", err)
		}
	}

	for _, raw := range raws {
		p.commitOffset(ctx, raw)
	}

	p.metrics.BuildDuration.Observe(time.Since(start).Seconds())
	p.metrics.SurfaceCells.Set(float64(len(snap.Surface.Cells)))
	p.logger.Info("surface rebuild finished",
		"new_incidents", len(fresh),
		"incidents", len(incidents),
		"cells", len(snap.Surface.Cells),
		"has_crime_data", snap.Surface.Metadata.HasCrimeData,
		"duration", time.Since(start),
	)
	return snap.Surface, nil
}

// extractAll reads batches until the extractor is drained. Extract errors
// are retried with exponential backoff; a record that fails to transform is
// logged, counted, and skipped.
func (p *Pipeline) extractAll(ctx context.Context) ([]domain.Incident, []domain.RawEvent, error) {
	var (
		incidents []domain.Incident
		raws      []domain.RawEvent
		backoff   = initialBackoff
		failures  int
	)

	for {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}

		batch, err := p.extractor.ExtractBatch(ctx, p.batchSize)
		if err != nil {
			if ctx.Err() != nil {
				return nil, nil, ctx.Err()
			}
			failures++
			if failures > maxExtractRetries {
				return nil, nil, fmt.Errorf("extract batch: %w", err)
			}
			p.logger.Error("extract batch failed", "error", err, "attempt", failures, "backoff", backoff)
			if !sharedretry.SleepWithContext(ctx, backoff) {
				return nil, nil, ctx.Err()
			}
			backoff = sharedretry.NextBackoff(backoff, maxBackoff)
			continue
		}
		if len(batch) == 0 {
			return incidents, raws, nil
		}
		failures = 0
		backoff = initialBackoff
		p.metrics.BatchSize.Observe(float64(len(batch)))

		for _, raw := range batch {
			raws = append(raws, raw)
			p.metrics.IncidentsConsumed.WithLabelValues(sourceLabel(raw)).Inc()

			inc, err := p.transformer.Transform(ctx, raw)
			if err != nil {
				p.logger.Warn("transform failed, skipping record",
					"error", err,
					"source", sourceLabel(raw),
					"topic", raw.Topic,
					"offset", raw.Offset,
				)
				p.metrics.TransformErrors.WithLabelValues(sourceLabel(raw)).Inc()
				continue
			}
			incidents = append(incidents, inc)
		}
	}
}

// incidents returns the known incidents ordered by id.
func (p *Pipeline) incidents() []domain.Incident {
	ids := make([]string, 0, len(p.known))
	for id := range p.known {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]domain.Incident, len(ids))
	for i, id := range ids {
		out[i] = p.known[id]
	}
	return out
}

// commitOffset commits the message offset if a commit function is available.
func (p *Pipeline) commitOffset(ctx context.Context, raw domain.RawEvent) {
	if raw.Commit == nil {
		return
	}
	if err := raw.Commit(ctx); err != nil {
		p.logger.Warn("commit offset failed", "error", err,
			"topic", raw.Topic, "partition", raw.Partition, "offset", raw.Offset)
	}
}

func sourceLabel(raw domain.RawEvent) string {
	if raw.Source != "" {
		return string(raw.Source)
	}
	if s := raw.Headers["source"]; s != "" {
		return s
	}
	return "unknown"
}

// Chain drains extractors in order, moving to the next one when the current
// returns an empty batch.
func Chain(extractors ...BatchExtractor) BatchExtractor {
	return &chain{extractors: extractors}
}

type chain struct {
	extractors []BatchExtractor
	pos        int
}

// Reset rewinds every rewindable extractor and starts over from the first.
func (c *chain) Reset() error {
	for _, e := range c.extractors {
		if r, ok := e.(Resetter); ok {
			if err := r.Reset(); err != nil {
				return err
			}
		}
	}
	c.pos = 0
	return nil
}

func (c *chain) ExtractBatch(ctx context.Context, batchSize int) ([]domain.RawEvent, error) {
	for c.pos < len(c.extractors) {
		batch, err := c.extractors[c.pos].ExtractBatch(ctx, batchSize)
		if err != nil {
			return nil, err
		}
		if len(batch) > 0 {
			return batch, nil
		}
		c.pos++
	}
	return nil, nil
}
