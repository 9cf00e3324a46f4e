// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

// Package htmlutils provides utility functions for working with HTML.
package htmlutils

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"
	"golang.org/x/net/html/charset"
)

// ErrCharsetMismatch is returned when decoded text holds U+FFFD, which means
// the page was read with the wrong charset.
var ErrCharsetMismatch = errors.New("charset mismatch")

// Node2string appends the text below n to sb, space separated. Script and
// style contents are skipped. Text is written even when a charset mismatch
// is detected; the error is reported once the whole node was visited.
func Node2string(n *html.Node, sb *strings.Builder) (err error) {
	switch n.Type {
	case html.TextNode:
		tmp := strings.Join(strings.Fields(n.Data), " ")

		if strings.ContainsRune(tmp, utf8.RuneError) {
			err = fmt.Errorf("%w: `%s'", ErrCharsetMismatch, tmp)
		}

		if len(tmp) > 0 {
			if sb.Len() != 0 {
				sb.WriteByte(' ')
			}

			sb.WriteString(tmp)
		}

		return err
	case html.ElementNode:
		switch strings.ToLower(n.Data) {
		case "script", "style", "noscript":
			return nil
		}
	}

	for child := n.FirstChild; child != nil; child = child.NextSibling {
		if childErr := Node2string(child, sb); childErr != nil && err == nil {
			err = childErr
		}
	}

	return err
}

// Text returns the flattened text below n, ignoring charset problems.
func Text(n *html.Node) string {
	var sb strings.Builder

	_ = Node2string(n, &sb)

	return sb.String()
}

// Validates that response seems to be an HTML response.
func hasHTMLContentType(media string) bool {
	const expectedMedia = "text/html"

	return strings.EqualFold(
		expectedMedia,
		media[0:min(len(media), len(expectedMedia))],
	)
}

// AsReader converts an HTTP response body to an io.Reader with the correct charset.
func AsReader(resp *http.Response) (io.Reader, error) {
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	media := resp.Header.Get("Content-Type")
	if !hasHTMLContentType(media) {
		return nil, fmt.Errorf("media type is %s", media)
	}

	return Decode(resp.Body, media)
}

// Decode wraps r so it yields UTF-8, guessing the charset from contentType
// and from the document's own meta tags.
func Decode(r io.Reader, contentType string) (io.Reader, error) {
	rr, err := charset.NewReader(r, contentType)
	if err != nil {
		return nil, fmt.Errorf("detecting charset: %w", err)
	}

	return rr, nil
}

// ErrEmptyPage is returned for HTML documents without any text.
var ErrEmptyPage = errors.New("page has no text")

// AsNode parses an io.Reader as an HTML node.
func AsNode(r io.Reader) (*html.Node, error) {
	n, err := html.Parse(r)
	if nil != err {
		return nil, fmt.Errorf("parsing body as HTML: %w", err)
	}

	if err := failIfEmpty(n); err != nil {
		return nil, err
	}

	return n, nil
}

// failIfEmpty rejects pages whose body carries no text at all, which is
// what error and login pages served with status 200 usually look like.
func failIfEmpty(n *html.Node) error {
	if strings.TrimSpace(Text(n)) == "" {
		return ErrEmptyPage
	}

	return nil
}
