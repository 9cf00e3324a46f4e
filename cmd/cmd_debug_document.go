// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/jcodagnone/geosites/document"
	"github.com/jcodagnone/geosites/utils/httputils"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
)

var debugDocumentCmd = &cobra.Command{
	Use:   "document [file|url]",
	Short: "Read a document and print its parsed form as JSON.",
	Long: `Reads a document from a file (JSON, HTML, CSV or text, by extension), an
http(s) URL (by content type) or HTML from standard input, and prints the title, spans and tables the pipeline
would see.

Examples:
  cat paper.html | go run main.go debug document
  go run main.go debug document paper.txt
  go run main.go debug document https://example.org/paper.html`,
	Run: func(cmd *cobra.Command, args []string) {
		var (
			doc *document.Document
			err error
		)

		switch {
		case len(args) > 0 && document.IsURL(args[0]):
			client := httputils.NewClient(60*time.Second, map[string]string{"User-Agent": userAgent()}, traceWriter())
			doc, err = document.Fetch(cmd.Context(), client, args[0])
		case len(args) > 0:
			doc, err = document.ReadFile(args[0])
		default:
			if isatty.IsTerminal(os.Stdin.Fd()) {
				fmt.Fprintln(os.Stderr, "Reading from stdin. Paste HTML and press Ctrl+D to finish.")
			}

			doc, err = document.ReadHTML(os.Stdin)
		}

		if err != nil {
			log.Fatalf("error reading document: %v", err)
		}

		output, err := json.MarshalIndent(doc, "", "  ")
		if err != nil {
			log.Fatalf("error marshalling json: %v", err)
		}

		fmt.Println(string(output))
	},
}
