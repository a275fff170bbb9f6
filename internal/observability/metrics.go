package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "saferoute"

// Metrics holds the Prometheus counters, histograms, and gauges for the
// surface pipeline and the routing engine.
type Metrics struct {
	// Pipeline metrics.
	IncidentsConsumed *prometheus.CounterVec // labels: source={collision,crime}
	TransformErrors   *prometheus.CounterVec // labels: source
	PipelineRuns      *prometheus.CounterVec // labels: outcome={success,error}
	PipelineRunning   prometheus.Gauge
	BatchSize         prometheus.Histogram
	BuildDuration     prometheus.Histogram
	SurfaceCells      prometheus.Gauge

	// Routing metrics.
	RouteRequests  *prometheus.CounterVec // labels: outcome={ok,bad_request,coverage,no_path,error}
	SearchDuration prometheus.Histogram
	EngineReady    prometheus.Gauge

	// Geocoding metrics.
	GeocodeRequests    *prometheus.CounterVec   // labels: method={forward}, outcome={success,error,empty}
	GeocodeCache       *prometheus.CounterVec   // labels: method={forward}, result={hit,miss}
	GeocodeAPIDuration *prometheus.HistogramVec // labels: method={forward}
	GeocodeEnabled     prometheus.Gauge
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics(true)
	prometheus.MustRegister(m.collectors()...)
	return m
}

// NewMetricsForTesting creates unregistered Metrics to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics(false)
}

func newMetrics(withHelp bool) *Metrics {
	help := func(s string) string {
		if withHelp {
			return s
		}
		return ""
	}
	return &Metrics{
		IncidentsConsumed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "incidents_consumed_total",
			Help:      help("Raw incident records read from CSV files or Kafka."),
		}, []string{"source"}),
		TransformErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transform_errors_total",
			Help:      help("Raw records skipped because they could not be parsed."),
		}, []string{"source"}),
		PipelineRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pipeline_runs_total",
			Help:      help("Surface rebuilds by outcome."),
		}, []string{"outcome"}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_running",
			Help:      help("1 while a surface rebuild is in progress."),
		}),
		BatchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_size",
			Help:      help("Number of raw records per extracted batch."),
			Buckets:   []float64{1, 5, 10, 20, 30, 40, 50, 75, 100},
		}),
		BuildDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "build_duration_seconds",
			Help:      help("Duration of a complete extract-aggregate-export run."),
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}),
		SurfaceCells: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "surface_cells",
			Help:      help("Cells in the most recently built or loaded risk surface."),
		}),
		RouteRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "route_requests_total",
			Help:      help("Route comparison requests by outcome."),
		}, []string{"outcome"}),
		SearchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "route_search_duration_seconds",
			Help:      help("Duration of a fastest plus risk-aware route comparison."),
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}),
		EngineReady: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "engine_ready",
			Help:      help("1 once the street graph and risk surface are loaded."),
		}),
		GeocodeRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geocode_requests_total",
			Help:      help("Geocoding API requests by method and outcome."),
		}, []string{"method", "outcome"}),
		GeocodeCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geocode_cache_total",
			Help:      help("Geocoding cache lookups by method and result."),
		}, []string{"method", "result"}),
		GeocodeAPIDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "geocode_api_duration_seconds",
			Help:      help("Mapbox API request duration in seconds."),
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"method"}),
		GeocodeEnabled: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "geocode_enabled",
			Help:      help("1 when geocoding enrichment is enabled, 0 otherwise."),
		}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.IncidentsConsumed,
		m.TransformErrors,
		m.PipelineRuns,
		m.PipelineRunning,
		m.BatchSize,
		m.BuildDuration,
		m.SurfaceCells,
		m.RouteRequests,
		m.SearchDuration,
		m.EngineReady,
		m.GeocodeRequests,
		m.GeocodeCache,
		m.GeocodeAPIDuration,
		m.GeocodeEnabled,
	}
}
