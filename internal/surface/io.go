package surface

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/couchcryptid/saferoute/internal/domain"
	"github.com/couchcryptid/saferoute/internal/hexgrid"
)

// Write encodes the surface as indented JSON.
func Write(w io.Writer, s *Surface) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(s); err != nil {
		return fmt.Errorf("encode risk surface: %w", err)
	}
	return nil
}

// WriteFile writes the surface to path atomically via a temp file rename.
func WriteFile(path string, s *Surface) error {
	return writeFileAtomic(path, func(w io.Writer) error { return Write(w, s) })
}

func writeFileAtomic(path string, write func(io.Writer) error) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck // no-op after a successful rename

	if err := write(tmp); err != nil {
		tmp.Close() //nolint:errcheck // write error takes precedence
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}

// wire types mirror Surface with pointers where presence must be checked.
type wireMetadata struct {
	H3Resolution *int      `json:"h3_resolution"`
	HasCrimeData bool      `json:"has_crime_data"`
	GeneratedAt  time.Time `json:"generated_at"`
	TotalCells   int       `json:"total_cells"`
}

type wireCell struct {
	BaseRisk           *float64           `json:"base_risk"`
	SmoothedRisk       *float64           `json:"smoothed_risk"`
	PedestrianRisk     float64            `json:"pedestrian_risk"`
	CyclistRisk        float64            `json:"cyclist_risk"`
	CrimeRisk          float64            `json:"crime_risk"`
	SmoothedCrimeRisk  *float64           `json:"smoothed_crime_risk"`
	CrashCount         int                `json:"crash_count"`
	CrimeCount         int                `json:"crime_count"`
	TotalSeverity      float64            `json:"total_severity"`
	TimeModifiers      map[string]float64 `json:"time_modifiers"`
	CrimeTimeModifiers map[string]float64 `json:"crime_time_modifiers"`
}

type wireSurface struct {
	Metadata *wireMetadata        `json:"metadata"`
	Cells    map[string]*wireCell `json:"cells"`
}

// Read decodes and validates a surface. Missing optional fields take their
// documented defaults (crime risk 0, no modifiers, no crime data); missing
// required fields, out-of-range scores, foreign resolutions, invalid cell ids
// and unknown bucket keys yield a *MalformedRiskDataError.
func Read(r io.Reader) (*Surface, error) {
	var w wireSurface
	if err := json.NewDecoder(r).Decode(&w); err != nil {
		return nil, &MalformedRiskDataError{Reason: "invalid json", Err: err}
	}

	if w.Metadata == nil {
		return nil, &MalformedRiskDataError{Field: "metadata", Reason: "missing"}
	}
	if w.Metadata.H3Resolution == nil {
		return nil, &MalformedRiskDataError{Field: "metadata.h3_resolution", Reason: "missing"}
	}
	if *w.Metadata.H3Resolution != hexgrid.Resolution {
		return nil, &MalformedRiskDataError{
			Field:  "metadata.h3_resolution",
			Reason: fmt.Sprintf("got %d, want %d", *w.Metadata.H3Resolution, hexgrid.Resolution),
		}
	}
	if w.Cells == nil {
		return nil, &MalformedRiskDataError{Field: "cells", Reason: "missing"}
	}

	s := &Surface{
		Metadata: Metadata{
			H3Resolution: *w.Metadata.H3Resolution,
			HasCrimeData: w.Metadata.HasCrimeData,
			GeneratedAt:  w.Metadata.GeneratedAt,
			TotalCells:   len(w.Cells),
		},
		Cells: make(map[string]Cell, len(w.Cells)),
	}

	for id, wc := range w.Cells {
		cell, err := convertCell(id, wc)
		if err != nil {
			return nil, err
		}
		s.Cells[id] = cell
	}
	return s, nil
}

// ReadFile loads a surface from disk.
func ReadFile(path string) (*Surface, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open risk surface: %w", err)
	}
	defer f.Close()
	return Read(f)
}

func convertCell(id string, wc *wireCell) (Cell, error) {
	if !hexgrid.Valid(id) {
		return Cell{}, &MalformedRiskDataError{Cell: id, Reason: "invalid cell id"}
	}
	if wc == nil {
		return Cell{}, &MalformedRiskDataError{Cell: id, Reason: "null record"}
	}
	if wc.BaseRisk == nil {
		return Cell{}, &MalformedRiskDataError{Cell: id, Field: "base_risk", Reason: "missing"}
	}

	c := Cell{
		BaseRisk:           *wc.BaseRisk,
		SmoothedRisk:       valueOr(wc.SmoothedRisk, *wc.BaseRisk),
		PedestrianRisk:     wc.PedestrianRisk,
		CyclistRisk:        wc.CyclistRisk,
		CrimeRisk:          wc.CrimeRisk,
		SmoothedCrimeRisk:  valueOr(wc.SmoothedCrimeRisk, wc.CrimeRisk),
		CrashCount:         wc.CrashCount,
		CrimeCount:         wc.CrimeCount,
		TotalSeverity:      wc.TotalSeverity,
		TimeModifiers:      wc.TimeModifiers,
		CrimeTimeModifiers: wc.CrimeTimeModifiers,
	}
	if c.TimeModifiers == nil {
		c.TimeModifiers = map[string]float64{}
	}
	if c.CrimeTimeModifiers == nil {
		c.CrimeTimeModifiers = map[string]float64{}
	}

	if err := validateCell(id, c); err != nil {
		return Cell{}, err
	}
	return c, nil
}

// Validate applies the checks Read performs to a surface that was built or
// loaded some other way. Cells are checked in id order.
func Validate(s *Surface) error {
	if s == nil {
		return &MalformedRiskDataError{Reason: "nil surface"}
	}
	if s.Metadata.H3Resolution != hexgrid.Resolution {
		return &MalformedRiskDataError{
			Field:  "metadata.h3_resolution",
			Reason: fmt.Sprintf("got %d, want %d", s.Metadata.H3Resolution, hexgrid.Resolution),
		}
	}
	if s.Cells == nil {
		return &MalformedRiskDataError{Field: "cells", Reason: "missing"}
	}
	for _, id := range s.CellIDs() {
		if !hexgrid.Valid(id) {
			return &MalformedRiskDataError{Cell: id, Reason: "invalid cell id"}
		}
		if err := validateCell(id, s.Cells[id]); err != nil {
			return err
		}
	}
	return nil
}

func validateCell(id string, c Cell) error {
	scores := []struct {
		field string
		value float64
	}{
		{"base_risk", c.BaseRisk},
		{"smoothed_risk", c.SmoothedRisk},
		{"pedestrian_risk", c.PedestrianRisk},
		{"cyclist_risk", c.CyclistRisk},
		{"crime_risk", c.CrimeRisk},
		{"smoothed_crime_risk", c.SmoothedCrimeRisk},
	}
	for _, sc := range scores {
		if sc.value < 0 || sc.value > 100 || math.IsNaN(sc.value) {
			return &MalformedRiskDataError{Cell: id, Field: sc.field, Reason: fmt.Sprintf("score %v outside [0, 100]", sc.value)}
		}
	}

	if err := validateModifiers(id, "time_modifiers", c.TimeModifiers); err != nil {
		return err
	}
	return validateModifiers(id, "crime_time_modifiers", c.CrimeTimeModifiers)
}

func validateModifiers(id, field string, mods map[string]float64) error {
	for key, m := range mods {
		if _, err := domain.ParseBucket(key); err != nil {
			return &MalformedRiskDataError{Cell: id, Field: field, Err: err}
		}
		if m < 0 || math.IsInf(m, 0) || math.IsNaN(m) {
			return &MalformedRiskDataError{Cell: id, Field: field, Reason: fmt.Sprintf("modifier %s is %v", key, m)}
		}
	}
	return nil
}

func valueOr(p *float64, def float64) float64 {
	if p == nil {
		return def
	}
	return *p
}
