package routing

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
)

// graphFile is the JSON street-graph format used for fixtures and cached
// OSM extracts.
type graphFile struct {
	Nodes []Node     `json:"nodes"`
	Edges []edgeJSON `json:"edges"`
}

type edgeJSON struct {
	From       int64   `json:"from"`
	To         int64   `json:"to"`
	TravelTime float64 `json:"travel_time"`
	Length     float64 `json:"length,omitempty"`
}

// ReadGraphJSON decodes a street graph.
func ReadGraphJSON(r io.Reader) (*StreetGraph, error) {
	var f graphFile
	if err := json.NewDecoder(r).Decode(&f); err != nil {
		return nil, fmt.Errorf("decode street graph: %w", err)
	}
	b := NewGraphBuilder()
	for _, n := range f.Nodes {
		b.AddNode(n.ID, n.Lat, n.Lng)
	}
	for _, e := range f.Edges {
		if err := b.AddEdge(e.From, e.To, e.TravelTime); err != nil {
			return nil, err
		}
	}
	return b.Build()
}

// ReadGraphFile reads a JSON street graph from disk.
func ReadGraphFile(path string) (*StreetGraph, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open street graph: %w", err)
	}
	defer f.Close()
	return ReadGraphJSON(f)
}

// WriteGraphJSON encodes a street graph. Edges are written in node order.
func WriteGraphJSON(w io.Writer, g *StreetGraph) error {
	f := graphFile{Nodes: g.Nodes()}
	for _, u := range f.Nodes {
		var targets []int64
		to := g.g.From(u.ID)
		for to.Next() {
			targets = append(targets, to.Node().ID())
		}
		sort.Slice(targets, func(i, j int) bool { return targets[i] < targets[j] })
		for _, v := range targets {
			t, _ := g.TravelTime(u.ID, v)
			f.Edges = append(f.Edges, edgeJSON{From: u.ID, To: v, TravelTime: t})
		}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(f); err != nil {
		return fmt.Errorf("encode street graph: %w", err)
	}
	return nil
}
