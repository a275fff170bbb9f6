package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/couchcryptid/saferoute/internal/adapter/csvsource"
	httpadapter "github.com/couchcryptid/saferoute/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/saferoute/internal/adapter/kafka"
	"github.com/couchcryptid/saferoute/internal/adapter/mapbox"
	"github.com/couchcryptid/saferoute/internal/adapter/sqlite"
	"github.com/couchcryptid/saferoute/internal/domain"
	"github.com/couchcryptid/saferoute/internal/hexgrid"
	"github.com/couchcryptid/saferoute/internal/observability"
	"github.com/couchcryptid/saferoute/internal/pipeline"
	"github.com/spf13/cobra"
)

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Build the risk surface from the configured incident sources",
	Long: `Reads CRASH_CSV, CRIME_CSV and, when KAFKA_ENABLED, the source topic, then
writes the surface to SURFACE_PATH and any configured exports. With
REBUILD_SCHEDULE set, keeps running and rebuilds on that cron schedule while
serving /healthz, /readyz and /metrics on HTTP_ADDR.`,
	RunE: runBuild,
}

func runBuild(cmd *cobra.Command, _ []string) error {
	if !cfg.HasIncidentSource() {
		return errors.New("no incident source: set CRASH_CSV, CRIME_CSV or KAFKA_ENABLED")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics := observability.NewMetrics()
	p, cleanup, err := newPipeline(ctx, metrics)
	if err != nil {
		return err
	}
	defer cleanup()

	if _, err := p.Run(ctx); err != nil {
		if cfg.RebuildSchedule == "" {
			return fmt.Errorf("build surface: %w", err)
		}
		logger.Error("initial rebuild failed", "error", err)
	}
	if cfg.RebuildSchedule == "" {
		return nil
	}

	sched, err := pipeline.NewScheduler(ctx, cfg.RebuildSchedule, pipeline.RunnerFunc(func(ctx context.Context) error {
		_, err := p.Run(ctx)
		return err
	}), logger)
	if err != nil {
		return err
	}
	srv := httpadapter.NewServer(cfg.HTTPAddr, p, nil, metrics, logger)

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()
	sched.Start()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	select {
	case <-sched.Stop().Done():
	case <-shutdownCtx.Done():
		logger.Warn("rebuild still running at shutdown deadline")
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	logger.Info("shutdown complete")
	return nil
}

// newPipeline wires the configured extractors, geocoder, and loaders. The
// returned cleanup closes every opened resource.
func newPipeline(ctx context.Context, metrics *observability.Metrics) (*pipeline.Pipeline, func(), error) {
	var closers []func() error
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil {
				logger.Error("close error", "error", err)
			}
		}
	}
	fail := func(err error) (*pipeline.Pipeline, func(), error) {
		cleanup()
		return nil, nil, err
	}

	var extractors []pipeline.BatchExtractor
	for _, in := range []struct {
		path   string
		source domain.Source
	}{
		{cfg.CrashCSV, domain.SourceCollision},
		{cfg.CrimeCSV, domain.SourceCrime},
	} {
		if in.path == "" {
			continue
		}
		r, err := csvsource.Open(in.path, in.source)
		if err != nil {
			return fail(err)
		}
		closers = append(closers, r.Close)
		extractors = append(extractors, r)
	}

	loaders := []pipeline.SurfaceLoader{pipeline.FileLoader{Path: cfg.SurfacePath}}
	if cfg.GeoJSONPath != "" {
		loaders = append(loaders, pipeline.GeoJSONLoader{Path: cfg.GeoJSONPath})
	}
	if cfg.SQLitePath != "" {
		store, err := sqlite.Open(ctx, cfg.SQLitePath, logger)
		if err != nil {
			return fail(err)
		}
		closers = append(closers, store.Close)
		loaders = append(loaders, store)
	}
	if cfg.KafkaEnabled {
		reader := kafkaadapter.NewReader(cfg, logger)
		writer := kafkaadapter.NewWriter(cfg, logger)
		closers = append(closers, reader.Close, writer.Close)
		extractors = append(extractors, reader)
		loaders = append(loaders, writer)
	}

	var patterns pipeline.PatternLoader
	if cfg.TimePatternsPath != "" {
		patterns = pipeline.PatternsFileLoader{Path: cfg.TimePatternsPath}
	}

	var geocoder domain.Geocoder
	if cfg.MapboxEnabled {
		client := mapbox.NewClient(cfg.MapboxToken, cfg.MapboxTimeout, metrics, logger)
		if b := cfg.MapboxBBox; len(b) == 4 {
			client.WithBounds(b[0], b[1], b[2], b[3])
		}
		geocoder = mapbox.NewCachedGeocoder(client, cfg.MapboxCacheSize, metrics)
		metrics.GeocodeEnabled.Set(1)
		logger.Info("mapbox geocoding enabled", "cache_size", cfg.MapboxCacheSize, "timeout", cfg.MapboxTimeout)
	} else {
		logger.Info("mapbox geocoding disabled")
	}

	p := pipeline.New(
		pipeline.Chain(extractors...),
		pipeline.NewTransformer(geocoder, logger),
		pipeline.NewBuilder(hexgrid.H3{}, logger),
		loaders,
		patterns,
		logger,
		metrics,
		cfg.BatchSize,
	)
	return p, cleanup, nil
}
