package routing

import (
	"errors"
	"fmt"
)

// ErrNoPath is returned when the destination is unreachable from the origin.
var ErrNoPath = errors.New("no path between endpoints")

// CoverageError reports an endpoint outside the street graph's bounds.
type CoverageError struct {
	Endpoint string // "start" or "end"
	Lat, Lng float64
	Bounds   Bounds
}

func (e *CoverageError) Error() string {
	return fmt.Sprintf("%s point (%.5f, %.5f) outside coverage area lat [%.4f, %.4f] lng [%.4f, %.4f]",
		e.Endpoint, e.Lat, e.Lng, e.Bounds.MinLat, e.Bounds.MaxLat, e.Bounds.MinLng, e.Bounds.MaxLng)
}
