// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package document

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode"
)

// ErrUnsupportedFormat is returned for files whose extension has no reader.
var ErrUnsupportedFormat = errors.New("unsupported document format")

// SupportedExtensions lists file extensions ReadFile can handle.
var SupportedExtensions = map[string]bool{
	".json": true,
	".html": true,
	".htm":  true,
	".csv":  true,
	".txt":  true,
}

// ReadFile loads a document choosing the reader by file extension.
func ReadFile(path string) (*Document, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if !SupportedExtensions[ext] {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}

	f, err := os.Open(path) // #nosec G304 - path is provided by the operator
	if err != nil {
		return nil, fmt.Errorf("opening document: %w", err)
	}
	defer f.Close()

	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))

	var doc *Document

	switch ext {
	case ".json":
		doc, err = ReadJSON(f)
	case ".html", ".htm":
		doc, err = ReadHTML(f)
	case ".csv":
		doc, err = ReadCSV(f, name)
	case ".txt":
		doc, err = ReadText(f)
	}

	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	if doc.ID == "" {
		doc.ID = name
	}

	return doc, nil
}

// ReadJSON decodes the native Document representation.
func ReadJSON(r io.Reader) (*Document, error) {
	var doc Document
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decoding document: %w", err)
	}

	return &doc, nil
}

// ReadCSV reads a CSV file as a document holding a single table. The first
// record is the header.
func ReadCSV(r io.Reader, name string) (*Document, error) {
	reader := csv.NewReader(r)
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}

	doc := &Document{Title: name}
	if len(records) == 0 {
		return doc, nil
	}

	table := Table{Label: "table-1", Columns: uniqueColumns(records[0])}
	for _, record := range records[1:] {
		table.Rows = append(table.Rows, makeRow(table.Columns, record))
	}

	doc.Tables = append(doc.Tables, table)

	return doc, nil
}

// ReadText splits plain text into blank-line separated paragraphs. Short
// lines ending in a colon, or written in capitals, open a new section. A
// leading single-line paragraph is taken as the title.
func ReadText(r io.Reader) (*Document, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var paragraphs [][]string

	var current []string

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			if len(current) > 0 {
				paragraphs = append(paragraphs, current)
				current = nil
			}

			continue
		}

		current = append(current, line)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scanning text: %w", err)
	}

	if len(current) > 0 {
		paragraphs = append(paragraphs, current)
	}

	doc := &Document{}
	section := "body"

	for i, p := range paragraphs {
		if isHeading(p[0]) {
			section = strings.TrimSuffix(p[0], ":")

			if p = p[1:]; len(p) == 0 {
				continue
			}
		} else if i == 0 && len(p) == 1 && len(paragraphs) > 1 && len(p[0]) <= 200 {
			doc.Title = p[0]

			continue
		}

		doc.Spans = append(doc.Spans, Span{Text: strings.Join(p, " "), Section: section})
	}

	return doc, nil
}

func isHeading(line string) bool {
	if len(line) > 60 {
		return false
	}

	if strings.HasSuffix(line, ":") {
		return true
	}

	hasLetter := false

	for _, r := range line {
		if unicode.IsLower(r) {
			return false
		}

		if unicode.IsLetter(r) {
			hasLetter = true
		}
	}

	return hasLetter
}

// uniqueColumns names blank headers "col<N>" and suffixes duplicates.
func uniqueColumns(header []string) []string {
	seen := make(map[string]int, len(header))
	columns := make([]string, len(header))

	for i, h := range header {
		h = strings.TrimSpace(h)
		if h == "" {
			h = fmt.Sprintf("col%d", i+1)
		}

		seen[h]++
		if n := seen[h]; n > 1 {
			h = fmt.Sprintf("%s_%d", h, n)
		}

		columns[i] = h
	}

	return columns
}

func makeRow(columns, cells []string) Row {
	row := make(Row, len(columns))

	for i, c := range columns {
		if i < len(cells) {
			row[c] = strings.TrimSpace(cells[i])
		}
	}

	return row
}
