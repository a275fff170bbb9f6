package routing

import (
	"math"
	"sync"

	"gonum.org/v1/gonum/graph/path"
	"gonum.org/v1/gonum/graph/simple"
)

// riskView overlays per-request edge costs on the shared graph:
// cost(u, v) = base_time(u, v) + beta * risk(u).
type riskView struct {
	*simple.WeightedDirectedGraph
	beta     float64
	nodeRisk func(id int64) float64
}

func (v riskView) Weight(xid, yid int64) (float64, bool) {
	if xid == yid {
		return 0, true
	}
	base, ok := v.WeightedDirectedGraph.Weight(xid, yid)
	if !ok {
		return base, false
	}
	if v.beta == 0 {
		return base, true
	}
	return base + v.beta*v.nodeRisk(xid), true
}

// search runs Dijkstra from one node to another. Negative or NaN beta is
// treated as 0 because edge costs must stay non-negative.
func (e *Engine) search(from, to int64, beta float64, risk func(id int64) float64) ([]int64, error) {
	if beta < 0 || math.IsNaN(beta) {
		beta = 0
	}

	var mu sync.Mutex
	memo := make(map[int64]float64)
	cached := func(id int64) float64 {
		mu.Lock()
		defer mu.Unlock()
		if r, ok := memo[id]; ok {
			return r
		}
		r := risk(id)
		memo[id] = r
		return r
	}

	view := riskView{WeightedDirectedGraph: e.graph.g, beta: beta, nodeRisk: cached}
	shortest := path.DijkstraFrom(simple.Node(from), view)
	nodes, _ := shortest.To(to)
	if len(nodes) == 0 {
		return nil, ErrNoPath
	}

	ids := make([]int64, len(nodes))
	for i, n := range nodes {
		ids[i] = n.ID()
	}
	return ids, nil
}
