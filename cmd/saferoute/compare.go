package main

import (
	"encoding/json"
	"os"

	"github.com/couchcryptid/saferoute/internal/hexgrid"
	"github.com/couchcryptid/saferoute/internal/routing"
	"github.com/spf13/cobra"
)

var compareFlags struct {
	startLat, startLng float64
	endLat, endLng     float64
	beta               float64
	hour               int
	weekend            bool
	mode               string
}

var compareCmd = &cobra.Command{
	Use:   "compare",
	Short: "Print the fastest and risk-aware routes between two points as JSON",
	RunE: func(cmd *cobra.Command, _ []string) error {
		engine, err := loadEngine(cmd.Context())
		if err != nil {
			return err
		}
		f := compareFlags
		res, err := engine.Compare(cmd.Context(), routing.Request{
			Start:   hexgrid.LatLng{Lat: f.startLat, Lng: f.startLng},
			End:     hexgrid.LatLng{Lat: f.endLat, Lng: f.endLng},
			Beta:    f.beta,
			Hour:    f.hour,
			Weekend: f.weekend,
			Mode:    routing.ParseTravelMode(f.mode),
		})
		if err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	},
}

func init() {
	f := compareCmd.Flags()
	f.Float64Var(&compareFlags.startLat, "start-lat", 0, "start latitude")
	f.Float64Var(&compareFlags.startLng, "start-lng", 0, "start longitude")
	f.Float64Var(&compareFlags.endLat, "end-lat", 0, "end latitude")
	f.Float64Var(&compareFlags.endLng, "end-lng", 0, "end longitude")
	f.Float64Var(&compareFlags.beta, "beta", 5.0, "risk sensitivity, 0 for fastest")
	f.IntVar(&compareFlags.hour, "hour", 12, "hour of day, 0-23")
	f.BoolVar(&compareFlags.weekend, "weekend", false, "route on a weekend")
	f.StringVar(&compareFlags.mode, "mode", "walking", "walking, driving or cycling")
	f.BoolVar(&fromSQLite, "from-sqlite", false, "load the surface snapshot from SQLITE_PATH instead of SURFACE_PATH")
	for _, name := range []string{"start-lat", "start-lng", "end-lat", "end-lng"} {
		_ = compareCmd.MarkFlagRequired(name)
	}
}
