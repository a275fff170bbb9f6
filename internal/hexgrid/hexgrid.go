// Package hexgrid maps coordinates onto the fixed H3 grid the risk surface
// is built on. Every derived property of a cell (centroid, boundary,
// neighbours) is computed from its id alone.
package hexgrid

import (
	"fmt"

	"github.com/uber/h3-go/v4"
)

// Resolution is the single H3 resolution used across the system
// (roughly 175 m edge length).
const Resolution = 9

// LatLng is a WGS-84 coordinate in degrees.
type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Indexer assigns points to cells and enumerates cell neighbourhoods.
type Indexer interface {
	CellOf(lat, lng float64) string
	Neighbors(cell string) ([]string, error)
}

// H3 is the production Indexer backed by the Uber H3 library.
type H3 struct{}

// CellOf returns the id of the resolution-9 cell containing the point.
// The same point always yields the same id.
func (H3) CellOf(lat, lng float64) string {
	return CellOf(lat, lng)
}

// Neighbors returns the 1-ring of the cell, excluding the cell itself.
func (H3) Neighbors(cell string) ([]string, error) {
	return Neighbors(cell)
}

// CellOf returns the id of the resolution-9 cell containing the point.
func CellOf(lat, lng float64) string {
	return h3.LatLngToCell(h3.NewLatLng(lat, lng), Resolution).String()
}

// Valid reports whether id is a well-formed H3 cell at Resolution.
func Valid(id string) bool {
	c, ok := parse(id)
	return ok && c.Resolution() == Resolution
}

// Centroid returns the centre of the cell.
func Centroid(id string) (LatLng, error) {
	c, err := mustParse(id)
	if err != nil {
		return LatLng{}, err
	}
	ll := c.LatLng()
	return LatLng{Lat: ll.Lat, Lng: ll.Lng}, nil
}

// Boundary returns the cell's vertices in counter-clockwise order.
func Boundary(id string) ([]LatLng, error) {
	c, err := mustParse(id)
	if err != nil {
		return nil, err
	}
	b := c.Boundary()
	out := make([]LatLng, len(b))
	for i, v := range b {
		out[i] = LatLng{Lat: v.Lat, Lng: v.Lng}
	}
	return out, nil
}

// Neighbors returns the cells at grid distance exactly 1.
func Neighbors(id string) ([]string, error) {
	c, err := mustParse(id)
	if err != nil {
		return nil, err
	}
	disk := c.GridDisk(1)
	out := make([]string, 0, len(disk))
	for _, n := range disk {
		if n == c {
			continue
		}
		out = append(out, n.String())
	}
	return out, nil
}

func parse(id string) (h3.Cell, bool) {
	c := h3.Cell(h3.IndexFromString(id))
	return c, c.IsValid()
}

func mustParse(id string) (h3.Cell, error) {
	c, ok := parse(id)
	if !ok {
		return 0, fmt.Errorf("invalid h3 cell id %q", id)
	}
	return c, nil
}
