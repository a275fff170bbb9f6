package main

import (
	"fmt"
	"os"

	"github.com/couchcryptid/saferoute/internal/adapter/osm"
	"github.com/couchcryptid/saferoute/internal/routing"
	"github.com/spf13/cobra"
)

var graphCmd = &cobra.Command{
	Use:   "graph <extract.osm>",
	Short: "Convert an OpenStreetMap XML extract into the street graph at GRAPH_PATH",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		g, _, err := osm.NewLoader(logger).LoadFile(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		f, err := os.Create(cfg.GraphPath)
		if err != nil {
			return fmt.Errorf("create %s: %w", cfg.GraphPath, err)
		}
		if err := routing.WriteGraphJSON(f, g); err != nil {
			f.Close() //nolint:errcheck // write error takes precedence
			return err
		}
		if err := f.Close(); err != nil {
			return fmt.Errorf("close %s: %w", cfg.GraphPath, err)
		}
		logger.Info("street graph written", "path", cfg.GraphPath, "nodes", g.NodeCount(), "edges", g.EdgeCount())
		return nil
	},
}
