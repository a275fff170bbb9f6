// Package routing finds fastest and risk-aware paths through a street graph
// whose edge costs are inflated by the risk surface at the edge's origin.
package routing

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/graph/simple"
)

// Node is a street intersection or way vertex.
type Node struct {
	ID  int64   `json:"id"`
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Bounds is the lat/lng rectangle spanned by the graph's nodes.
type Bounds struct {
	MinLat float64 `json:"min_lat"`
	MaxLat float64 `json:"max_lat"`
	MinLng float64 `json:"min_lng"`
	MaxLng float64 `json:"max_lng"`
}

// Contains reports whether the point lies inside the bounds, edges included.
func (b Bounds) Contains(lat, lng float64) bool {
	return lat >= b.MinLat && lat <= b.MaxLat && lng >= b.MinLng && lng <= b.MaxLng
}

// ErrEmptyGraph is returned when building a graph with no nodes.
var ErrEmptyGraph = errors.New("street graph has no nodes")

// GraphBuilder accumulates nodes and directed edges. Parallel edges keep the
// minimum travel time and self loops are dropped.
type GraphBuilder struct {
	nodes map[int64]Node
	order []int64
	edges map[[2]int64]float64
}

// NewGraphBuilder returns an empty builder.
func NewGraphBuilder() *GraphBuilder {
	return &GraphBuilder{
		nodes: make(map[int64]Node),
		edges: make(map[[2]int64]float64),
	}
}

// AddNode records a node; a repeated id overwrites the coordinates.
func (b *GraphBuilder) AddNode(id int64, lat, lng float64) {
	if _, ok := b.nodes[id]; !ok {
		b.order = append(b.order, id)
	}
	b.nodes[id] = Node{ID: id, Lat: lat, Lng: lng}
}

// HasNode reports whether id was added.
func (b *GraphBuilder) HasNode(id int64) bool {
	_, ok := b.nodes[id]
	return ok
}

// AddEdge records a directed edge with its base travel time in seconds.
func (b *GraphBuilder) AddEdge(from, to int64, travelTime float64) error {
	if !b.HasNode(from) || !b.HasNode(to) {
		return fmt.Errorf("edge %d->%d references an unknown node", from, to)
	}
	if travelTime < 0 || math.IsNaN(travelTime) || math.IsInf(travelTime, 0) {
		return fmt.Errorf("edge %d->%d has invalid travel time %v", from, to, travelTime)
	}
	if from == to {
		return nil
	}
	key := [2]int64{from, to}
	if cur, ok := b.edges[key]; !ok || travelTime < cur {
		b.edges[key] = travelTime
	}
	return nil
}

// Build freezes the builder into an immutable StreetGraph.
func (b *GraphBuilder) Build() (*StreetGraph, error) {
	if len(b.nodes) == 0 {
		return nil, ErrEmptyGraph
	}

	g := simple.NewWeightedDirectedGraph(0, math.Inf(1))
	nodes := make(map[int64]Node, len(b.nodes))
	list := make([]Node, 0, len(b.order))
	bounds := Bounds{MinLat: math.Inf(1), MaxLat: math.Inf(-1), MinLng: math.Inf(1), MaxLng: math.Inf(-1)}

	for _, id := range b.order {
		n := b.nodes[id]
		g.AddNode(simple.Node(id))
		nodes[id] = n
		list = append(list, n)
		bounds.MinLat = math.Min(bounds.MinLat, n.Lat)
		bounds.MaxLat = math.Max(bounds.MaxLat, n.Lat)
		bounds.MinLng = math.Min(bounds.MinLng, n.Lng)
		bounds.MaxLng = math.Max(bounds.MaxLng, n.Lng)
	}
	for key, w := range b.edges {
		g.SetWeightedEdge(g.NewWeightedEdge(simple.Node(key[0]), simple.Node(key[1]), w))
	}

	return &StreetGraph{
		g:      g,
		nodes:  nodes,
		list:   list,
		bounds: bounds,
		index:  newNodeIndex(list),
		edges:  len(b.edges),
	}, nil
}

// StreetGraph is an immutable directed street network.
type StreetGraph struct {
	g      *simple.WeightedDirectedGraph
	nodes  map[int64]Node
	list   []Node
	bounds Bounds
	index  *NodeIndex
	edges  int
}

// Node returns a node by id.
func (s *StreetGraph) Node(id int64) (Node, bool) {
	n, ok := s.nodes[id]
	return n, ok
}

// Nodes returns the nodes in insertion order.
func (s *StreetGraph) Nodes() []Node {
	out := make([]Node, len(s.list))
	copy(out, s.list)
	return out
}

// NodeCount returns the number of nodes.
func (s *StreetGraph) NodeCount() int { return len(s.nodes) }

// EdgeCount returns the number of directed edges after de-duplication.
func (s *StreetGraph) EdgeCount() int { return s.edges }

// Bounds returns the coverage rectangle.
func (s *StreetGraph) Bounds() Bounds { return s.bounds }

// TravelTime returns the base travel time of the edge u->v.
func (s *StreetGraph) TravelTime(u, v int64) (float64, bool) {
	if u == v {
		return 0, false
	}
	return s.g.Weight(u, v)
}

// Nearest snaps a point to the closest node.
func (s *StreetGraph) Nearest(lat, lng float64) Node {
	id := s.index.Nearest(lat, lng)
	return s.nodes[id]
}
