package routing

import (
	"context"
	"math"

	"github.com/couchcryptid/saferoute/internal/domain"
	"github.com/couchcryptid/saferoute/internal/hexgrid"
	"github.com/couchcryptid/saferoute/internal/surface"
	"golang.org/x/sync/errgroup"
)

// UncoveredRisk is the risk charged during search for a node whose cell has
// no surface record.
const UncoveredRisk = 2.0

// Request describes one routing query.
type Request struct {
	Start   hexgrid.LatLng
	End     hexgrid.LatLng
	Beta    float64 // risk sensitivity; 0 means fastest
	Hour    int
	Weekend bool
	Mode    TravelMode
}

// Bucket returns the time bucket the request falls in.
func (r Request) Bucket() domain.Bucket {
	return domain.BucketFor(r.Hour, r.Weekend)
}

// RouteStats summarises a route.
type RouteStats struct {
	TotalTime float64 `json:"total_time"`
	TotalRisk float64 `json:"total_risk"`
}

// Route is an ordered node path with its coordinates as [lat, lng] pairs.
type Route struct {
	Nodes  []int64      `json:"nodes"`
	Points [][2]float64 `json:"points"`
	RouteStats
}

// ComparisonMetrics relates the risk-aware route to the fastest route.
type ComparisonMetrics struct {
	Fastest            RouteStats `json:"fastest"`
	Safest             RouteStats `json:"safest"`
	ReductionInRiskPct float64    `json:"reduction_in_risk_pct"`
	ExtraTimeSeconds   float64    `json:"extra_time_seconds"`
	TravelMode         TravelMode `json:"travel_mode"`
}

// Comparison pairs the fastest route with the risk-aware route.
type Comparison struct {
	Fastest Route             `json:"fastest_route"`
	Safest  Route             `json:"safest_route"`
	Metrics ComparisonMetrics `json:"metrics"`
}

// Engine is an immutable routing context over one graph and one surface.
// It is safe for concurrent use.
type Engine struct {
	graph     *StreetGraph
	surface   *surface.Surface
	nodeCells map[int64]string
}

// NewEngine precomputes the cell of every graph node.
func NewEngine(graph *StreetGraph, s *surface.Surface, indexer hexgrid.Indexer) *Engine {
	cells := make(map[int64]string, graph.NodeCount())
	for _, n := range graph.list {
		cells[n.ID] = indexer.CellOf(n.Lat, n.Lng)
	}
	return &Engine{graph: graph, surface: s, nodeCells: cells}
}

// BlendedRisk combines a cell's time-adjusted collision and crime risk with
// the mode's weights. When the cell has no crime risk and the surface
// carries no crime data at all, the collision component is returned alone.
func BlendedRisk(cell surface.Cell, b domain.Bucket, mode TravelMode, hasCrimeData bool) float64 {
	crash := cell.BaseRisk * cell.TimeModifier(b)
	crime := cell.CrimeRisk * cell.CrimeTimeModifier(b)
	if cell.CrimeRisk == 0 && !hasCrimeData {
		return crash
	}
	w := mode.Weights()
	return w.Crash*crash + w.Crime*crime
}

// RiskAt returns the blended risk of a cell, or false when the surface has
// no record for it.
func (e *Engine) RiskAt(cellID string, b domain.Bucket, mode TravelMode) (float64, bool) {
	c, ok := e.surface.Cell(cellID)
	if !ok {
		return 0, false
	}
	return BlendedRisk(c, b, mode, e.surface.Metadata.HasCrimeData), true
}

// Route finds the minimum-cost path for the request's beta.
func (e *Engine) Route(ctx context.Context, req Request) (Route, error) {
	if err := e.checkCoverage(req); err != nil {
		return Route{}, err
	}
	return e.route(ctx, req, req.Beta)
}

// Compare computes the fastest route (beta 0) and the risk-aware route
// (the request's beta) concurrently and reports the trade-off.
func (e *Engine) Compare(ctx context.Context, req Request) (Comparison, error) {
	if err := e.checkCoverage(req); err != nil {
		return Comparison{}, err
	}

	var fastest, safest Route
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		fastest, err = e.route(gctx, req, 0)
		return err
	})
	g.Go(func() error {
		var err error
		safest, err = e.route(gctx, req, req.Beta)
		return err
	})
	if err := g.Wait(); err != nil {
		return Comparison{}, err
	}

	return Comparison{
		Fastest: fastest,
		Safest:  safest,
		Metrics: ComparisonMetrics{
			Fastest:            fastest.RouteStats,
			Safest:             safest.RouteStats,
			ReductionInRiskPct: roundTo((1-safest.TotalRisk/math.Max(fastest.TotalRisk, 1))*100, 1),
			ExtraTimeSeconds:   math.Round(safest.TotalTime - fastest.TotalTime),
			TravelMode:         req.Mode.normalized(),
		},
	}, nil
}

func (e *Engine) checkCoverage(req Request) error {
	b := e.graph.Bounds()
	if !b.Contains(req.Start.Lat, req.Start.Lng) {
		return &CoverageError{Endpoint: "start", Lat: req.Start.Lat, Lng: req.Start.Lng, Bounds: b}
	}
	if !b.Contains(req.End.Lat, req.End.Lng) {
		return &CoverageError{Endpoint: "end", Lat: req.End.Lat, Lng: req.End.Lng, Bounds: b}
	}
	return nil
}

func (e *Engine) route(ctx context.Context, req Request, beta float64) (Route, error) {
	if err := ctx.Err(); err != nil {
		return Route{}, err
	}
	bucket := req.Bucket()
	mode := req.Mode.normalized()

	from := e.graph.Nearest(req.Start.Lat, req.Start.Lng)
	to := e.graph.Nearest(req.End.Lat, req.End.Lng)

	nodes, err := e.search(from.ID, to.ID, beta, func(id int64) float64 {
		if r, ok := e.RiskAt(e.nodeCells[id], bucket, mode); ok {
			return r
		}
		return UncoveredRisk
	})
	if err != nil {
		return Route{}, err
	}

	r := Route{Nodes: nodes, Points: make([][2]float64, len(nodes))}
	for i, id := range nodes {
		n := e.graph.nodes[id]
		r.Points[i] = [2]float64{n.Lat, n.Lng}
	}
	r.RouteStats = e.stats(nodes, bucket, mode)
	return r, nil
}

// stats sums base travel time over the path's edges and blended risk at the
// origin node of each edge. Uncovered origins add no risk.
func (e *Engine) stats(nodes []int64, b domain.Bucket, mode TravelMode) RouteStats {
	var s RouteStats
	for i := 0; i+1 < len(nodes); i++ {
		t, ok := e.graph.TravelTime(nodes[i], nodes[i+1])
		if !ok {
			continue
		}
		s.TotalTime += t
		if r, ok := e.RiskAt(e.nodeCells[nodes[i]], b, mode); ok {
			s.TotalRisk += r
		}
	}
	return s
}

func (m TravelMode) normalized() TravelMode {
	return ParseTravelMode(string(m))
}

func roundTo(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
