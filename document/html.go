// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package document

import (
	"fmt"
	"io"
	"strings"

	"github.com/jcodagnone/geosites/utils/htmlutils"
	"github.com/jcodagnone/geosites/utils/textutils"
	"golang.org/x/net/html"
)

// ReadHTML parses an HTML article. The <title> (or the first <h1>) becomes
// the title, h1-h4 headings switch the current section, paragraph-like
// blocks become spans and every <table> becomes a Table.
func ReadHTML(r io.Reader) (*Document, error) {
	rr, err := htmlutils.Decode(r, "text/html")
	if err != nil {
		return nil, err
	}

	return parseHTML(rr)
}

// parseHTML reads an already UTF-8 decoded page.
func parseHTML(r io.Reader) (*Document, error) {
	n, err := htmlutils.AsNode(r)
	if err != nil {
		return nil, err
	}

	w := &htmlWalker{doc: &Document{}, section: "body"}
	w.walk(n)

	return w.doc, nil
}

type htmlWalker struct {
	doc     *Document
	section string
}

var blockElements = map[string]bool{
	"p":          true,
	"li":         true,
	"blockquote": true,
	"figcaption": true,
	"dd":         true,
	"caption":    true,
}

var containerElements = map[string]bool{
	"body":    true,
	"div":     true,
	"section": true,
	"article": true,
	"main":    true,
}

func (w *htmlWalker) walk(n *html.Node) {
	switch n.Type {
	case html.ElementNode:
		switch tag := strings.ToLower(n.Data); {
		case tag == "script" || tag == "style" || tag == "noscript":
			return
		case tag == "title":
			if w.doc.Title == "" {
				w.doc.Title = nodeText(n)
			}

			return
		case tag == "h1" || tag == "h2" || tag == "h3" || tag == "h4":
			text := nodeText(n)
			if text == "" {
				return
			}

			if tag == "h1" && w.doc.Title == "" {
				w.doc.Title = text
			} else {
				w.section = text
			}

			return
		case tag == "table":
			w.addTable(n)

			return
		case blockElements[tag]:
			w.addSpan(nodeText(n))

			return
		}
	case html.TextNode:
		if n.Parent != nil && n.Parent.Type == html.ElementNode && containerElements[strings.ToLower(n.Parent.Data)] {
			w.addSpan(textutils.CollapseSpaces(n.Data))
		}

		return
	}

	for child := n.FirstChild; child != nil; child = child.NextSibling {
		w.walk(child)
	}
}

func (w *htmlWalker) addSpan(text string) {
	if text == "" {
		return
	}

	w.doc.Spans = append(w.doc.Spans, Span{Text: text, Section: w.section})
}

func (w *htmlWalker) addTable(n *html.Node) {
	var rows [][]string

	var collect func(*html.Node)

	collect = func(n *html.Node) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type != html.ElementNode {
				continue
			}

			switch strings.ToLower(c.Data) {
			case "tr":
				var cells []string

				for cell := c.FirstChild; cell != nil; cell = cell.NextSibling {
					if cell.Type != html.ElementNode {
						continue
					}

					switch strings.ToLower(cell.Data) {
					case "th", "td":
						cells = append(cells, nodeText(cell))
					}
				}

				if len(cells) > 0 {
					rows = append(rows, cells)
				}
			case "caption":
				w.addSpan(nodeText(c))
			case "thead", "tbody", "tfoot":
				collect(c)
			}
		}
	}

	collect(n)

	if len(rows) == 0 {
		return
	}

	// the first row is the header whether or not it uses <th>
	table := Table{
		Label:   fmt.Sprintf("table-%d", len(w.doc.Tables)+1),
		Columns: uniqueColumns(rows[0]),
	}

	for _, cells := range rows[1:] {
		table.Rows = append(table.Rows, makeRow(table.Columns, cells))
	}

	w.doc.Tables = append(w.doc.Tables, table)
}

// nodeText flattens the text below n into a single spaced string.
func nodeText(n *html.Node) string {
	return textutils.CollapseSpaces(htmlutils.Text(n))
}
