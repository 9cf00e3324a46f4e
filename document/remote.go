// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package document

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/jcodagnone/geosites/utils/htmlutils"
)

const maxRemoteBytes = 32 << 20

// IsURL reports whether s names an http(s) document rather than a file.
func IsURL(s string) bool {
	u, err := url.Parse(s)

	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// Fetch downloads a document, choosing the reader from the response content
// type: HTML, JSON, CSV or plain text.
func Fetch(ctx context.Context, client *http.Client, rawURL string) (*Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Accept", "text/html, application/json;q=0.9, text/csv;q=0.8, text/plain;q=0.7")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching %s: status %d", rawURL, resp.StatusCode)
	}

	contentType := resp.Header.Get("Content-Type")
	media, _, _ := mime.ParseMediaType(contentType)

	name := remoteName(resp.Request.URL)
	body := io.LimitReader(resp.Body, maxRemoteBytes)

	var doc *Document

	switch {
	case media == "text/html":
		var r io.Reader

		r, err = htmlutils.AsReader(resp)
		if err == nil {
			doc, err = parseHTML(io.LimitReader(r, maxRemoteBytes))
		}
	case media == "application/json" || strings.HasSuffix(media, "+json"):
		doc, err = ReadJSON(body)
	case media == "text/csv":
		doc, err = ReadCSV(body, name)
	case media == "text/plain":
		doc, err = ReadText(body)
	default:
		return nil, fmt.Errorf("%w: content type %q", ErrUnsupportedFormat, contentType)
	}

	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", rawURL, err)
	}

	if doc.ID == "" {
		doc.ID = name
	}

	return doc, nil
}

// remoteName is the last path element without extension, or the host.
func remoteName(u *url.URL) string {
	if u == nil {
		return ""
	}

	base := path.Base(u.Path)
	if base == "/" || base == "." || base == "" {
		return u.Host
	}

	return strings.TrimSuffix(base, path.Ext(base))
}
