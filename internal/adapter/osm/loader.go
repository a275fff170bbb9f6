// Package osm builds a drivable street graph from an OpenStreetMap XML
// extract. Edge travel times come from great-circle segment lengths and a
// per-highway speed, overridden by a parseable maxspeed tag.
package osm

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/couchcryptid/saferoute/internal/routing"
	"github.com/golang/geo/s2"
	"github.com/paulmach/osm"
	"github.com/paulmach/osm/osmxml"
)

const earthRadiusMeters = 6371008.8

// defaultSpeeds are km/h fallbacks per highway type for ways without a
// usable maxspeed.
var defaultSpeeds = map[string]float64{
	"motorway":       100,
	"motorway_link":  60,
	"trunk":          80,
	"trunk_link":     50,
	"primary":        60,
	"primary_link":   45,
	"secondary":      50,
	"secondary_link": 40,
	"tertiary":       45,
	"tertiary_link":  35,
	"unclassified":   40,
	"residential":    35,
	"living_street":  15,
	"service":        20,
	"road":           40,
}

// Stats summarises one load.
type Stats struct {
	Nodes      int
	Ways       int
	Edges      int
	SkippedWay int
}

// Loader reads OSM XML into a routing graph.
type Loader struct {
	logger *slog.Logger
}

// NewLoader creates a Loader.
func NewLoader(logger *slog.Logger) *Loader {
	return &Loader{logger: logger}
}

type way struct {
	nodes   []int64
	speed   float64
	forward bool
	reverse bool
}

// LoadFile reads an .osm file from disk.
func (l *Loader) LoadFile(ctx context.Context, path string) (*routing.StreetGraph, Stats, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, Stats{}, fmt.Errorf("open osm extract: %w", err)
	}
	defer f.Close()
	return l.Load(ctx, f)
}

// Load scans nodes and drivable ways. Only nodes referenced by a kept way
// enter the graph.
func (l *Loader) Load(ctx context.Context, r io.Reader) (*routing.StreetGraph, Stats, error) {
	scanner := osmxml.New(ctx, r)
	defer scanner.Close()

	coords := make(map[int64][2]float64)
	var ways []way
	var stats Stats

	for scanner.Scan() {
		switch o := scanner.Object().(type) {
		case *osm.Node:
			coords[int64(o.ID)] = [2]float64{o.Lat, o.Lon}
		case *osm.Way:
			w, ok := drivableWay(o)
			if !ok {
				stats.SkippedWay++
				continue
			}
			ways = append(ways, w)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, Stats{}, fmt.Errorf("scan osm xml: %w", err)
	}

	b := routing.NewGraphBuilder()
	for _, w := range ways {
		for _, id := range w.nodes {
			if b.HasNode(id) {
				continue
			}
			c, ok := coords[id]
			if !ok {
				continue
			}
			b.AddNode(id, c[0], c[1])
		}
		for i := 0; i+1 < len(w.nodes); i++ {
			u, v := w.nodes[i], w.nodes[i+1]
			if !b.HasNode(u) || !b.HasNode(v) {
				continue
			}
			t := segmentMeters(coords[u], coords[v]) / (w.speed * 1000 / 3600)
			if w.forward {
				if err := b.AddEdge(u, v, t); err != nil {
					return nil, Stats{}, err
				}
			}
			if w.reverse {
				if err := b.AddEdge(v, u, t); err != nil {
					return nil, Stats{}, err
				}
			}
		}
	}
	stats.Ways = len(ways)

	g, err := b.Build()
	if err != nil {
		return nil, Stats{}, err
	}
	stats.Nodes = g.NodeCount()
	stats.Edges = g.EdgeCount()

	l.logger.Info("street graph loaded",
		"nodes", stats.Nodes,
		"edges", stats.Edges,
		"ways", stats.Ways,
		"skipped_ways", stats.SkippedWay,
	)
	return g, stats, nil
}

func drivableWay(o *osm.Way) (way, bool) {
	highway := o.Tags.Find("highway")
	speed, ok := defaultSpeeds[highway]
	if !ok || len(o.Nodes) < 2 {
		return way{}, false
	}
	switch o.Tags.Find("access") {
	case "no", "private":
		return way{}, false
	}
	if o.Tags.Find("motor_vehicle") == "no" || o.Tags.Find("area") == "yes" {
		return way{}, false
	}
	if s, ok := ParseMaxSpeed(o.Tags.Find("maxspeed")); ok {
		speed = s
	}

	w := way{speed: speed, forward: true, reverse: true}
	switch o.Tags.Find("oneway") {
	case "yes", "true", "1":
		w.reverse = false
	case "-1", "reverse":
		w.forward = false
	case "no", "false", "0":
	default:
		if highway == "motorway" || o.Tags.Find("junction") == "roundabout" {
			w.reverse = false
		}
	}

	w.nodes = make([]int64, len(o.Nodes))
	for i, n := range o.Nodes {
		w.nodes[i] = int64(n.ID)
	}
	return w, true
}

// ParseMaxSpeed converts a maxspeed tag to km/h. Plain numbers are km/h,
// "mph" values are converted, and ";"-separated lists are averaged.
func ParseMaxSpeed(tag string) (float64, bool) {
	tag = strings.TrimSpace(strings.ToLower(tag))
	if tag == "" {
		return 0, false
	}

	var sum float64
	var n int
	for _, part := range strings.Split(tag, ";") {
		part = strings.TrimSpace(part)
		factor := 1.0
		if strings.HasSuffix(part, "mph") {
			factor = 1.609344
			part = strings.TrimSpace(strings.TrimSuffix(part, "mph"))
		} else {
			part = strings.TrimSpace(strings.TrimSuffix(part, "km/h"))
		}
		v, err := strconv.ParseFloat(part, 64)
		if err != nil || v <= 0 {
			continue
		}
		sum += v * factor
		n++
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}

func segmentMeters(a, b [2]float64) float64 {
	angle := s2.LatLngFromDegrees(a[0], a[1]).Distance(s2.LatLngFromDegrees(b[0], b[1]))
	return angle.Radians() * earthRadiusMeters
}
