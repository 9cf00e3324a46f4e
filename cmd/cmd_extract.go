// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/jcodagnone/geosites/document"
	"github.com/jcodagnone/geosites/pipeline"
	"github.com/jcodagnone/geosites/store"
	"github.com/jcodagnone/geosites/utils/httputils"
	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

type extractOptions struct {
	MaxProcs  int
	OutputDir string
	DbPath    string
}

var extractOpts = &extractOptions{}

var extractCmd = &cobra.Command{
	Use:   "extract <file|url>...",
	Short: "Extract ranked study sites from documents",
	Long: `Runs every file, or http(s) URL, through the pipeline. Results are printed to stdout as one
JSON object per line, or written to <output>/<name>.json when --output is set.
With --db-path the ranked sites are stored in the DuckDB database.

Examples:
  geosites extract paper.html
  geosites extract --geocoder none --output out/ data/*.json
  geosites extract --db-path sites.duckdb papers/*.txt
  geosites extract https://example.org/articles/napo-amphibians.html`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		ctx := cmd.Context()

		orchestrator, _, err := newOrchestrator(ctx, cfg)
		if err != nil {
			return err
		}

		var sites store.SiteRepository
		if extractOpts.DbPath != "" {
			sites, err = store.Open(extractOpts.DbPath)
			if err != nil {
				return err
			}
			defer sites.DB().Close()
		}

		if extractOpts.OutputDir != "" {
			if err := os.MkdirAll(extractOpts.OutputDir, 0o750); err != nil {
				return fmt.Errorf("creating output directory: %w", err)
			}
		}

		b := &batch{
			orchestrator: orchestrator,
			sites:        sites,
			outputDir:    extractOpts.OutputDir,
			stdout:       os.Stdout,
			maxProcs:     extractOpts.MaxProcs,
			client:       httputils.NewClient(60*time.Second, map[string]string{"User-Agent": userAgent()}, traceWriter()),
		}

		return b.run(ctx, args)
	},
}

// batch runs files concurrently through one orchestrator, so they share the
// geocoder cache and rate limiter.
type batch struct {
	orchestrator *pipeline.Orchestrator
	sites        store.SiteRepository
	outputDir    string
	stdout       io.Writer
	maxProcs     int
	client       *http.Client

	mu sync.Mutex
}

func (b *batch) run(ctx context.Context, files []string) error {
	n := len(files)

	maxProcs := b.maxProcs
	if maxProcs == 0 {
		maxProcs = runtime.NumCPU()
	}

	var bar *progressbar.ProgressBar
	if isatty.IsTerminal(os.Stderr.Fd()) {
		bar = progressbar.NewOptions(n,
			progressbar.OptionSetDescription("Extracting"),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionShowCount(),
			progressbar.OptionClearOnFinish(),
		)
	}

	var wg sync.WaitGroup

	semaphore := make(chan struct{}, maxProcs)
	errChan := make(chan error, n)

	var saved, ranked int

	for _, path := range files {
		wg.Add(1)

		go func(path string) {
			defer wg.Done()
			semaphore <- struct{}{}

			defer func() { <-semaphore }()

			r, s, err := b.process(ctx, path)
			if err != nil {
				errChan <- fmt.Errorf("extracting %s - %w", path, err)
			}

			b.mu.Lock()
			ranked += r
			saved += s
			b.mu.Unlock()

			if bar == nil {
				log.Printf("Extracted %s", path)
			} else {
				_ = bar.Add(1)
			}
		}(path)
	}

	wg.Wait()
	close(errChan)

	var errs []error

	for err := range errChan {
		log.Printf("⚠️ Extraction failed - %s", err)
		errs = append(errs, err)
	}

	log.Printf(
		"✅ Extraction complete - %d ranked sites, %d stored, from %d documents, %d failed.",
		ranked,
		saved,
		n,
		len(errs),
	)

	return errors.Join(errs...)
}

// process runs one file and returns the number of ranked and stored sites.
func (b *batch) process(ctx context.Context, path string) (int, int, error) {
	loader := pipeline.FileLoader(path)
	if document.IsURL(path) {
		loader = pipeline.URLLoader(b.client, path)
	}

	result, err := b.orchestrator.Run(ctx, loader)
	if err != nil {
		return 0, 0, err
	}

	docID := result.Metadata.DocumentID
	if docID == "" {
		docID = documentName(path)
	}

	if err := b.write(docID, result); err != nil {
		return 0, 0, err
	}

	if b.sites == nil {
		return len(result.Ranked), 0, nil
	}

	b.mu.Lock()
	saved, err := b.sites.SaveResult(docID, result, b.orchestrator.Config().MinConfidence)
	b.mu.Unlock()

	if err != nil {
		return len(result.Ranked), 0, fmt.Errorf("saving sites: %w", err)
	}

	return len(result.Ranked), saved, nil
}

func (b *batch) write(docID string, result *pipeline.ExtractionResult) error {
	if b.outputDir == "" {
		line, err := json.Marshal(result)
		if err != nil {
			return fmt.Errorf("marshalling result: %w", err)
		}

		b.mu.Lock()
		defer b.mu.Unlock()

		_, err = fmt.Fprintf(b.stdout, "%s\n", line)

		return err
	}

	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("marshalling result: %w", err)
	}

	path := filepath.Join(b.outputDir, outputName(docID))

	return os.WriteFile(path, data, 0o600)
}

// documentName is the file name without directory nor extension.
func documentName(path string) string {
	base := filepath.Base(path)

	return strings.TrimSuffix(base, filepath.Ext(base))
}

// outputName turns a document id into a safe file name.
func outputName(docID string) string {
	name := strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		}

		return r
	}, documentName(docID))

	if name == "" || name == "." || name == ".." {
		name = "document"
	}

	return name + ".json"
}

func init() {
	rootCmd.AddCommand(extractCmd)
	extractCmd.Flags().IntVar(
		&extractOpts.MaxProcs,
		"max-procs",
		0,
		"Max number of documents processed at once. Defaults to the number of CPUs",
	)
	extractCmd.Flags().StringVarP(
		&extractOpts.OutputDir,
		"output",
		"o",
		"",
		"Directory where to write one JSON result per document",
	)
	extractCmd.Flags().StringVar(
		&extractOpts.DbPath,
		"db-path",
		"",
		"DuckDB database where to store the ranked sites",
	)
}
