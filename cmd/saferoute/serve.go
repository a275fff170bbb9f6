package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	httpadapter "github.com/couchcryptid/saferoute/internal/adapter/http"
	"github.com/couchcryptid/saferoute/internal/adapter/sqlite"
	"github.com/couchcryptid/saferoute/internal/hexgrid"
	"github.com/couchcryptid/saferoute/internal/observability"
	"github.com/couchcryptid/saferoute/internal/routing"
	"github.com/couchcryptid/saferoute/internal/surface"
	"github.com/spf13/cobra"
)

var fromSQLite bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve risk-aware routes over HTTP",
	Long: `Loads the street graph from GRAPH_PATH and the risk surface from
SURFACE_PATH (or SQLITE_PATH with --from-sqlite), then serves
GET /v1/routes and GET /v1/routes/compare on HTTP_ADDR.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&fromSQLite, "from-sqlite", false, "load the surface snapshot from SQLITE_PATH instead of SURFACE_PATH")
}

// engineHolder serves requests once the engine has loaded.
type engineHolder struct {
	engine atomic.Pointer[routing.Engine]
}

func (h *engineHolder) CheckReadiness(_ context.Context) error {
	if h.engine.Load() == nil {
		return httpadapter.ErrNotReady
	}
	return nil
}

func (h *engineHolder) Route(ctx context.Context, req routing.Request) (routing.Route, error) {
	e := h.engine.Load()
	if e == nil {
		return routing.Route{}, httpadapter.ErrNotReady
	}
	return e.Route(ctx, req)
}

func (h *engineHolder) Compare(ctx context.Context, req routing.Request) (routing.Comparison, error) {
	e := h.engine.Load()
	if e == nil {
		return routing.Comparison{}, httpadapter.ErrNotReady
	}
	return e.Compare(ctx, req)
}

func runServe(cmd *cobra.Command, _ []string) error {
	if fromSQLite && cfg.SQLitePath == "" {
		return errors.New("--from-sqlite requires SQLITE_PATH")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics := observability.NewMetrics()
	holder := &engineHolder{}
	srv := httpadapter.NewServer(cfg.HTTPAddr, holder, holder, metrics, logger)

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			stop()
		}
	}()

	loadErr := make(chan error, 1)
	go func() {
		engine, err := loadEngine(ctx)
		if err != nil {
			loadErr <- err
			return
		}
		holder.engine.Store(engine)
		metrics.EngineReady.Set(1)
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-loadErr:
		logger.Error("engine load failed", "error", runErr)
	}
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	logger.Info("shutdown complete")
	return runErr
}

func loadEngine(ctx context.Context) (*routing.Engine, error) {
	start := time.Now()

	graph, err := routing.ReadGraphFile(cfg.GraphPath)
	if err != nil {
		return nil, err
	}

	var s *surface.Surface
	if fromSQLite {
		store, err := sqlite.Open(ctx, cfg.SQLitePath, logger)
		if err != nil {
			return nil, err
		}
		defer store.Close()
		if s, err = store.ReadSurface(ctx); err != nil {
			return nil, err
		}
	} else if s, err = surface.ReadFile(cfg.SurfacePath); err != nil {
		return nil, fmt.Errorf("load risk surface: %w", err)
	}
	if err := surface.Validate(s); err != nil {
		return nil, fmt.Errorf("load risk surface: %w", err)
	}

	engine := routing.NewEngine(graph, s, hexgrid.H3{})
	b := graph.Bounds()
	logger.Info("routing engine ready",
		"nodes", graph.NodeCount(),
		"edges", graph.EdgeCount(),
		"cells", len(s.Cells),
		"has_crime_data", s.Metadata.HasCrimeData,
		"bounds", []float64{b.MinLat, b.MinLng, b.MaxLat, b.MaxLng},
		"duration", time.Since(start),
	)
	return engine, nil
}
