// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/jcodagnone/geosites/store"
	"github.com/spf13/cobra"
)

type sitesOptions struct {
	DbPath   string
	Document string
	Cell     string
	Limit    int
	Offset   int
}

var sitesOpts = &sitesOptions{}

func (o *sitesOptions) filter() store.Filter {
	return store.Filter{
		DocumentID: o.Document,
		Cell:       o.Cell,
		Limit:      o.Limit,
		Offset:     o.Offset,
	}
}

func openSites() (store.SiteRepository, error) {
	if _, err := os.Stat(sitesOpts.DbPath); errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("database not found at %s - run 'extract --db-path' first", sitesOpts.DbPath)
	}

	return store.Open(sitesOpts.DbPath)
}

var sitesCmd = &cobra.Command{
	Use:   "sites",
	Short: "Read the stored study sites",
}

var sitesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored sites as a table",
	Args:  cobra.NoArgs,
	RunE: func(_ *cobra.Command, _ []string) error {
		repo, err := openSites()
		if err != nil {
			return err
		}
		defer repo.DB().Close()

		sites, err := repo.ListSites(sitesOpts.filter())
		if err != nil {
			return fmt.Errorf("listing sites: %w", err)
		}

		a, b, c := strings.Repeat("─", 16), strings.Repeat("─", 4), strings.Repeat("─", 30)
		d := strings.Repeat("─", 22)
		fmt.Printf("╭─%-16s─┬─%4s─┬─%-30s─┬─%-22s─┬─%5s─╮\n", a, b, c, d, b+"─")
		fmt.Printf("│ %-16s │ %4s │ %-30s │ %-22s │ %5s │\n", "Document", "Rank", "Site", "Coordinates", "Score")
		fmt.Printf("├─%-16s─┼─%4s─┼─%-30s─┼─%-22s─┼─%5s─┤\n", a, b, c, d, b+"─")

		for _, s := range sites {
			fmt.Printf("│ %-16.16s │ %4d │ %-30.30s │ %-22s │ %5.3f │\n",
				s.DocumentID, s.Rank, s.Name, fmt.Sprintf("%.5f, %.5f", s.Point.Lat, s.Point.Lng), s.Score)
		}

		fmt.Printf("╰─%-16s─┴─%4s─┴─%-30s─┴─%-22s─┴─%5s─╯\n", a, b, c, d, b+"─")

		total, err := repo.CountSites(sitesOpts.filter())
		if err != nil {
			return fmt.Errorf("counting sites: %w", err)
		}

		fmt.Printf("%d of %d sites\n", len(sites), total)

		return nil
	},
}

var sitesExportCmd = &cobra.Command{
	Use:   "export [file]",
	Short: "Export stored sites as JSON",
	Long:  `Writes the stored sites, ordered by document and rank, to the given file or to stdout.`,
	Args:  cobra.MaximumNArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		repo, err := openSites()
		if err != nil {
			return err
		}
		defer repo.DB().Close()

		if len(args) == 0 {
			return repo.ExportJSON(os.Stdout, sitesOpts.filter())
		}

		f, err := os.Create(args[0])
		if err != nil {
			return fmt.Errorf("creating %s: %w", args[0], err)
		}
		defer f.Close()

		if err := repo.ExportJSON(f, sitesOpts.filter()); err != nil {
			return err
		}

		fmt.Printf("✅ Sites exported to %s\n", args[0])

		return nil
	},
}

func init() {
	rootCmd.AddCommand(sitesCmd)
	sitesCmd.AddCommand(sitesListCmd)
	sitesCmd.AddCommand(sitesExportCmd)
	sitesCmd.PersistentFlags().StringVar(
		&sitesOpts.DbPath,
		"db-path",
		"geosites.duckdb",
		"DuckDB database holding the sites",
	)
	sitesCmd.PersistentFlags().StringVar(
		&sitesOpts.Document,
		"document",
		"",
		"Only sites of this document",
	)
	sitesCmd.PersistentFlags().StringVar(
		&sitesOpts.Cell,
		"cell",
		"",
		"Only sites inside this H3 cell (resolution 3, 5 or 7)",
	)
	sitesListCmd.Flags().IntVar(&sitesOpts.Limit, "limit", 50, "Max number of sites")
	sitesListCmd.Flags().IntVar(&sitesOpts.Offset, "offset", 0, "Sites to skip")
}
