package pipeline

import (
	"context"

	"github.com/couchcryptid/saferoute/internal/surface"
)

// FileLoader writes the surface exchange JSON to a path.
type FileLoader struct {
	Path string
}

func (l FileLoader) LoadSurface(_ context.Context, s *surface.Surface) error {
	return surface.WriteFile(l.Path, s)
}

// GeoJSONLoader writes the grid visualisation export to a path.
type GeoJSONLoader struct {
	Path string
}

func (l GeoJSONLoader) LoadSurface(_ context.Context, s *surface.Surface) error {
	return surface.WriteGeoJSONFile(l.Path, s)
}

// PatternsFileLoader writes the time-pattern reports to a path.
type PatternsFileLoader struct {
	Path string
}

func (l PatternsFileLoader) LoadPatterns(_ context.Context, reports []*surface.TimePatterns) error {
	return surface.WriteTimePatternsFile(l.Path, reports)
}
