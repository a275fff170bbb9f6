package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/couchcryptid/saferoute/internal/adapter/sqlite"
	"github.com/couchcryptid/saferoute/internal/hexgrid"
	"github.com/spf13/cobra"
)

var hotspotsFlags struct {
	threshold float64
	limit     int
}

type hotspot struct {
	Cell string  `json:"cell"`
	Lat  float64 `json:"lat"`
	Lng  float64 `json:"lng"`
}

var hotspotsCmd = &cobra.Command{
	Use:   "hotspots",
	Short: "List the highest-risk cells of the snapshot stored in SQLITE_PATH as JSON",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if cfg.SQLitePath == "" {
			return errors.New("SQLITE_PATH is required")
		}
		store, err := sqlite.Open(cmd.Context(), cfg.SQLitePath, logger)
		if err != nil {
			return err
		}
		defer store.Close()

		ids, err := store.HighRiskCells(cmd.Context(), hotspotsFlags.threshold)
		if err != nil {
			return err
		}
		if n := hotspotsFlags.limit; n > 0 && len(ids) > n {
			ids = ids[:n]
		}

		out := make([]hotspot, 0, len(ids))
		for _, id := range ids {
			c, err := hexgrid.Centroid(id)
			if err != nil {
				return fmt.Errorf("cell %s: %w", id, err)
			}
			out = append(out, hotspot{Cell: id, Lat: c.Lat, Lng: c.Lng})
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	},
}

func init() {
	f := hotspotsCmd.Flags()
	f.Float64Var(&hotspotsFlags.threshold, "threshold", 60, "minimum smoothed collision risk score")
	f.IntVar(&hotspotsFlags.limit, "limit", 20, "maximum number of cells, 0 for all")
}
