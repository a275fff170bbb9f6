package surface

import (
	"fmt"
	"io"

	"github.com/couchcryptid/saferoute/internal/hexgrid"
	"github.com/couchcryptid/saferoute/internal/risk"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// FeatureCollection renders each cell as a hexagon polygon with its scores
// and category as properties, ordered by cell id.
func FeatureCollection(s *Surface) (*geojson.FeatureCollection, error) {
	fc := geojson.NewFeatureCollection()
	for _, id := range s.CellIDs() {
		cell := s.Cells[id]

		boundary, err := hexgrid.Boundary(id)
		if err != nil {
			return nil, err
		}
		ring := make(orb.Ring, 0, len(boundary)+1)
		for _, v := range boundary {
			ring = append(ring, orb.Point{v.Lng, v.Lat})
		}
		ring = append(ring, ring[0])

		center, err := hexgrid.Centroid(id)
		if err != nil {
			return nil, err
		}

		f := geojson.NewFeature(orb.Polygon{ring})
		f.Properties["h3_cell"] = id
		f.Properties["risk_score"] = cell.BaseRisk
		f.Properties["smoothed_risk"] = cell.SmoothedRisk
		f.Properties["crime_risk"] = cell.CrimeRisk
		f.Properties["risk_category"] = string(risk.CategoryOf(cell.BaseRisk))
		f.Properties["crash_count"] = cell.CrashCount
		f.Properties["crime_count"] = cell.CrimeCount
		f.Properties["total_severity"] = cell.TotalSeverity
		f.Properties["center_lat"] = center.Lat
		f.Properties["center_lng"] = center.Lng
		fc.Append(f)
	}
	return fc, nil
}

// WriteGeoJSON encodes the surface as a GeoJSON FeatureCollection.
func WriteGeoJSON(w io.Writer, s *Surface) error {
	fc, err := FeatureCollection(s)
	if err != nil {
		return fmt.Errorf("build feature collection: %w", err)
	}
	data, err := fc.MarshalJSON()
	if err != nil {
		return fmt.Errorf("encode geojson: %w", err)
	}
	_, err = w.Write(data)
	return err
}

// WriteGeoJSONFile writes the GeoJSON export to path atomically.
func WriteGeoJSONFile(path string, s *Surface) error {
	return writeFileAtomic(path, func(w io.Writer) error { return WriteGeoJSON(w, s) })
}
