// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/jcodagnone/geosites/pipeline"
	"github.com/spf13/cobra"
)

type logWriter struct {
	writer io.Writer
}

func (w *logWriter) Write(bytes []byte) (int, error) {
	return fmt.Fprintf(w.writer, "%s %s", time.Now().Format("2006-01-02 15:04:05"), string(bytes))
}

func init() {
	log.SetFlags(0)
	log.SetOutput(&logWriter{writer: os.Stderr})
}

var rootCmd = &cobra.Command{
	Use:   "geosites",
	Short: "study-site coordinates from scientific documents",
	Long: `
geosites reads scientific documents (JSON, HTML, CSV or plain text), finds the
places and coordinates where the study took place, resolves place names
through a geocoding service and ranks the resulting sites by confidence and
geographic agreement.
`,
	SilenceUsage: true,
}

type globalOptions struct {
	ConfigPath    string
	MinConfidence float64
	EpsKm         float64
	Geocoder      string
	TraceHTTP     bool
}

var rootOptions = &globalOptions{}

// loadConfig reads --config, when given, and applies the flags the user set
// on top of it.
func loadConfig(cmd *cobra.Command) (*pipeline.Config, error) {
	cfg := pipeline.DefaultConfig()

	if rootOptions.ConfigPath != "" {
		var err error

		cfg, err = pipeline.LoadConfig(rootOptions.ConfigPath)
		if err != nil {
			return nil, err
		}
	}

	flags := cmd.Flags()

	if flags.Changed("min-confidence") {
		cfg.MinConfidence = rootOptions.MinConfidence
	}

	if flags.Changed("eps-km") {
		cfg.EpsKm = rootOptions.EpsKm
	}

	if flags.Changed("geocoder") {
		cfg.Geocoder = rootOptions.Geocoder
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

var Version = "dev"

func Execute(version string) {
	Version = version

	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&rootOptions.ConfigPath,
		"config",
		"",
		"JSON configuration file. Omitted fields keep their defaults",
	)
	rootCmd.PersistentFlags().Float64Var(
		&rootOptions.MinConfidence,
		"min-confidence",
		0.3,
		"Minimum confidence for ranked and persisted sites",
	)
	rootCmd.PersistentFlags().Float64Var(
		&rootOptions.EpsKm,
		"eps-km",
		0,
		"Clustering radius in km. Zero estimates it from the data",
	)
	rootCmd.PersistentFlags().StringVar(
		&rootOptions.Geocoder,
		"geocoder",
		pipeline.GeocoderNominatim,
		"Geocoding provider: nominatim, google or none",
	)
	rootCmd.PersistentFlags().BoolVar(
		&rootOptions.TraceHTTP,
		"trace-http",
		false,
		"Display geocoding HTTP requests-responses",
	)
}
