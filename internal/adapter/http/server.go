package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/couchcryptid/saferoute/internal/observability"
	"github.com/couchcryptid/saferoute/internal/routing"
	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ErrNotReady may be returned by a Router that is still loading.
var ErrNotReady = errors.New("routing engine not ready")

// Router answers routing queries. *routing.Engine satisfies it.
type Router interface {
	Route(ctx context.Context, req routing.Request) (routing.Route, error)
	Compare(ctx context.Context, req routing.Request) (routing.Comparison, error)
}

// Server exposes health, readiness, metrics, and routing HTTP endpoints.
type Server struct {
	httpServer *http.Server
	router     Router
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewServer creates an HTTP server with /healthz, /readyz, and /metrics.
// When router is non-nil it also serves /v1/routes and /v1/routes/compare.
func NewServer(addr string, ready sharedobs.ReadinessChecker, router Router, metrics *observability.Metrics, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		router:  router,
		metrics: metrics,
		logger:  logger,
	}

	mux.HandleFunc("GET /healthz", sharedobs.LivenessHandler())
	mux.HandleFunc("GET /readyz", sharedobs.ReadinessHandler(ready))
	mux.Handle("GET /metrics", promhttp.Handler())
	if router != nil {
		mux.HandleFunc("GET /v1/routes", s.handleRoute)
		mux.HandleFunc("GET /v1/routes/compare", s.handleCompare)
	}

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

func (s *Server) handleRoute(w http.ResponseWriter, r *http.Request) {
	req, err := parseRequest(r.URL.Query(), defaultRouteBeta)
	if err != nil {
		s.fail(w, err)
		return
	}

	start := time.Now()
	route, err := s.router.Route(r.Context(), req)
	s.metrics.SearchDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		s.fail(w, err)
		return
	}

	s.metrics.RouteRequests.WithLabelValues("ok").Inc()
	sharedobs.WriteJSON(w, http.StatusOK, route)
}

func (s *Server) handleCompare(w http.ResponseWriter, r *http.Request) {
	req, err := parseRequest(r.URL.Query(), defaultCompareBeta)
	if err != nil {
		s.fail(w, err)
		return
	}

	start := time.Now()
	cmp, err := s.router.Compare(r.Context(), req)
	s.metrics.SearchDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		s.fail(w, err)
		return
	}

	s.metrics.RouteRequests.WithLabelValues("ok").Inc()
	s.logger.Debug("route comparison served",
		"mode", cmp.Metrics.TravelMode,
		"beta", req.Beta,
		"reduction_pct", cmp.Metrics.ReductionInRiskPct,
	)
	sharedobs.WriteJSON(w, http.StatusOK, cmp)
}

func (s *Server) fail(w http.ResponseWriter, err error) {
	var (
		status  int
		outcome string
		badReq  *requestError
		covErr  *routing.CoverageError
	)
	switch {
	case errors.As(err, &badReq):
		status, outcome = http.StatusBadRequest, "bad_request"
	case errors.As(err, &covErr):
		status, outcome = http.StatusUnprocessableEntity, "coverage"
	case errors.Is(err, routing.ErrNoPath):
		status, outcome = http.StatusNotFound, "no_path"
	case errors.Is(err, ErrNotReady), errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		status, outcome = http.StatusServiceUnavailable, "error"
	default:
		status, outcome = http.StatusInternalServerError, "error"
		s.logger.Error("route request failed", "error", err)
	}
	s.metrics.RouteRequests.WithLabelValues(outcome).Inc()
	sharedobs.WriteJSON(w, status, map[string]string{"error": err.Error()})
}
