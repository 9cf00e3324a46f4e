// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package pipeline

import (
	"context"
	"net/http"

	"github.com/jcodagnone/geosites/document"
)

// Loader provides the parsed document for a run.
type Loader interface {
	Load(ctx context.Context) (*document.Document, error)
}

// LoaderFunc adapts a function to the Loader interface.
type LoaderFunc func(ctx context.Context) (*document.Document, error)

// Load calls f(ctx).
func (f LoaderFunc) Load(ctx context.Context) (*document.Document, error) {
	return f(ctx)
}

// StaticLoader returns a loader handing out doc.
func StaticLoader(doc *document.Document) Loader {
	return LoaderFunc(func(context.Context) (*document.Document, error) {
		return doc, nil
	})
}

// FileLoader returns a loader reading path with document.ReadFile.
func FileLoader(path string) Loader {
	return LoaderFunc(func(context.Context) (*document.Document, error) {
		return document.ReadFile(path)
	})
}

// URLLoader returns a loader downloading rawURL with document.Fetch.
func URLLoader(client *http.Client, rawURL string) Loader {
	return LoaderFunc(func(ctx context.Context) (*document.Document, error) {
		return document.Fetch(ctx, client, rawURL)
	})
}
