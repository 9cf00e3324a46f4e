// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"fmt"

	"github.com/jcodagnone/geosites/server"
	"github.com/jcodagnone/geosites/store"
	"github.com/spf13/cobra"
)

type serveOptions struct {
	Addr   string
	DbPath string
}

var serveOpts = &serveOptions{}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the extraction HTTP API",
	Long: `Serves the extraction API:

  POST /api/extract           document JSON in, result JSON out (?persist=true stores the sites)
  GET  /api/sites             stored sites (?document=, ?cell=, ?limit=, ?offset=)
  GET  /api/geocoder/stats    geocoder cache counters`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		orchestrator, geocoder, err := newOrchestrator(cmd.Context(), cfg)
		if err != nil {
			return err
		}

		var sites store.SiteRepository
		if serveOpts.DbPath != "" {
			sites, err = store.Open(serveOpts.DbPath)
			if err != nil {
				return err
			}
			defer sites.DB().Close()
		}

		var stats server.StatsSource
		if geocoder != nil {
			stats = geocoder
		}

		fmt.Printf("🗺️  geosites API on http://%s\n", serveOpts.Addr)

		return server.NewServer(orchestrator, sites, stats).Run(serveOpts.Addr)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(
		&serveOpts.Addr,
		"addr",
		"localhost:8080",
		"Address to listen on",
	)
	serveCmd.Flags().StringVar(
		&serveOpts.DbPath,
		"db-path",
		"",
		"DuckDB database where extracted sites are stored",
	)
}
