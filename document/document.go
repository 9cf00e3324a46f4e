// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

// Package document models the parsed form of a scientific document as the
// extraction pipeline consumes it: ordered text spans labelled with their
// section, tables of named columns, and an optional title.
package document

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Span is a contiguous text region and the section it belongs to.
type Span struct {
	Text    string `json:"text"`
	Section string `json:"section"`
}

// Row maps column names to raw cell text.
type Row map[string]string

// UnmarshalJSON accepts cells as strings, numbers, booleans or null so that
// tables produced by other tools don't need to stringify every value.
func (r *Row) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	row := make(Row, len(raw))

	for k, v := range raw {
		cell, err := cellText(v)
		if err != nil {
			return fmt.Errorf("column %q: %w", k, err)
		}

		row[k] = cell
	}

	*r = row

	return nil
}

func cellText(v json.RawMessage) (string, error) {
	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		return s, nil
	}

	var f float64
	if err := json.Unmarshal(v, &f); err == nil {
		return strconv.FormatFloat(f, 'f', -1, 64), nil
	}

	var b bool
	if err := json.Unmarshal(v, &b); err == nil {
		return strconv.FormatBool(b), nil
	}

	if strings.TrimSpace(string(v)) == "null" {
		return "", nil
	}

	return "", fmt.Errorf("unsupported cell value %s", v)
}

// Table is a sequence of rows keyed by column name. Columns keeps the
// header order, which maps don't.
type Table struct {
	Label   string   `json:"label"`
	Columns []string `json:"columns"`
	Rows    []Row    `json:"rows"`
}

// ColumnNames returns Columns, or when the parser left it empty, the union
// of every row's keys in sorted order.
func (t *Table) ColumnNames() []string {
	if len(t.Columns) > 0 {
		return t.Columns
	}

	seen := make(map[string]bool)

	var names []string

	for _, row := range t.Rows {
		for k := range row {
			if !seen[k] {
				seen[k] = true
				names = append(names, k)
			}
		}
	}

	sort.Strings(names)

	return names
}

// Document is the upstream parser output handed to the pipeline.
type Document struct {
	ID     string  `json:"id"`
	Title  string  `json:"title"`
	Spans  []Span  `json:"spans"`
	Tables []Table `json:"tables"`
}

// Empty reports whether the document carries nothing to extract from.
func (d *Document) Empty() bool {
	return d == nil || (strings.TrimSpace(d.Title) == "" && len(d.Spans) == 0 && len(d.Tables) == 0)
}

// TableLabel returns the label for the i-th (0-based) table, falling back to
// "table-N" when the parser didn't provide one.
func (d *Document) TableLabel(i int) string {
	if i < len(d.Tables) && d.Tables[i].Label != "" {
		return d.Tables[i].Label
	}

	return fmt.Sprintf("table-%d", i+1)
}
