package routing

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"github.com/paulmach/orb/quadtree"
)

// indexedNode adapts a node to orb.Pointer. Points are (lng, lat).
type indexedNode struct {
	id int64
	p  orb.Point
}

func (n indexedNode) Point() orb.Point { return n.p }

// NodeIndex answers nearest-node queries with a quadtree. Distance is planar
// in degrees; exact ties go to the lowest node id, so the result matches a
// linear scan under the same rule.
type NodeIndex struct {
	qt *quadtree.Quadtree
}

func newNodeIndex(nodes []Node) *NodeIndex {
	pts := make(orb.MultiPoint, len(nodes))
	for i, n := range nodes {
		pts[i] = orb.Point{n.Lng, n.Lat}
	}
	qt := quadtree.New(pts.Bound().Pad(1e-9))
	for _, n := range nodes {
		// Every point lies inside the padded bound.
		_ = qt.Add(indexedNode{id: n.ID, p: orb.Point{n.Lng, n.Lat}})
	}
	return &NodeIndex{qt: qt}
}

// Nearest returns the id of the closest node. The index is never empty.
func (ix *NodeIndex) Nearest(lat, lng float64) int64 {
	q := orb.Point{lng, lat}
	found := ix.qt.Find(q)
	if found == nil {
		return 0
	}
	best := found.(indexedNode)
	bestD := planar.DistanceSquared(q, best.p)

	// Collect every node at the same distance to apply the id tie-break.
	d := planar.Distance(q, best.p) + 1e-12
	window := orb.Bound{Min: orb.Point{q[0] - d, q[1] - d}, Max: orb.Point{q[0] + d, q[1] + d}}
	for _, p := range ix.qt.InBound(nil, window) {
		n := p.(indexedNode)
		dd := planar.DistanceSquared(q, n.p)
		if dd < bestD || (dd == bestD && n.id < best.id) {
			best, bestD = n, dd
		}
	}
	return best.id
}

// LinearNearest scans every node with the same metric and tie-break as
// NodeIndex. It returns 0 for an empty slice.
func LinearNearest(nodes []Node, lat, lng float64) int64 {
	q := orb.Point{lng, lat}
	var (
		best  int64
		bestD = -1.0
	)
	for _, n := range nodes {
		d := planar.DistanceSquared(q, orb.Point{n.Lng, n.Lat})
		if bestD < 0 || d < bestD || (d == bestD && n.ID < best) {
			best, bestD = n.ID, d
		}
	}
	return best
}
