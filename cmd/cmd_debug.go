// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/jcodagnone/geosites/extraction"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
)

var debugCmd = &cobra.Command{
	Use:   "debug",
	Short: "Dev tools",
}

var debugCoordsCmd = &cobra.Command{
	Use:   "coords",
	Short: "Find coordinate pairs in the text read from stdin",
	Long: `Reads one line at a time and prints every coordinate pair found in it, or the
parse error when the whole line is a "lat, lng" pair that is not valid.

$ echo "Plots at 0°57'S, 75°24'W" | geosites debug coords
0°57'S, 75°24'W		{"lat":-0.95,"lng":-75.4}
	`,
	Run: func(_ *cobra.Command, _ []string) {
		input := os.Stdin
		if isatty.IsTerminal(input.Fd()) {
			fmt.Fprintln(os.Stderr, "Enter text to analyze, one line at a time…")
		}

		scanner := bufio.NewScanner(input)
		for scanner.Scan() {
			line := scanner.Text()

			matches := extraction.FindCoordinates(line)
			if len(matches) == 0 {
				if lat, lng, ok := strings.Cut(line, ","); ok {
					if _, err := extraction.ParsePoint(lat, lng); err != nil {
						fmt.Printf("%s\t%q\n", line, err)
					}
				}

				continue
			}

			for _, m := range matches {
				s, err := json.Marshal(m.Point)
				if err != nil {
					log.Fatal(err)
				}

				fmt.Printf("%s\t\t%s\n", m.Text, s)
			}
		}

		if err := scanner.Err(); err != nil {
			fmt.Fprintf(os.Stderr, "Error reading input: %s\n", err)
			os.Exit(1)
		}
	},
}

var debugGeocodeCmd = &cobra.Command{
	Use:   "geocode <name>...",
	Short: "Resolve place names through the configured geocoder",
	Long: `Resolves each name, printing the resolution as JSON. Repeating a name shows the
cache at work.

$ geosites debug geocode Tena Tena`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		geocoder, err := newGeocoder(cmd.Context(), cfg)
		if err != nil {
			return err
		}

		if geocoder == nil {
			return errors.New("geocoding is disabled")
		}

		for _, name := range args {
			res := geocoder.Resolve(cmd.Context(), name, nil)

			s, err := json.Marshal(res)
			if err != nil {
				return err
			}

			fmt.Printf("%s\t\t%s\n", name, s)
		}

		stats, err := json.Marshal(geocoder.Stats())
		if err != nil {
			return err
		}

		log.Printf("Geocoder stats %s", stats)

		return nil
	},
}

func init() {
	rootCmd.AddCommand(debugCmd)
	debugCmd.AddCommand(debugCoordsCmd)
	debugCmd.AddCommand(debugGeocodeCmd)
	debugCmd.AddCommand(debugDocumentCmd)
}
