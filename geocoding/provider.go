// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

// Package geocoding resolves place names to points through external
// providers, behind a shared cache and rate limiter.
package geocoding

import (
	"context"
	"math"

	"github.com/jcodagnone/geosites/spatial"
)

// Candidate is one match returned by a provider.
type Candidate struct {
	Point       spatial.Point
	DisplayName string
	Provider    string
}

// Provider searches an external geocoding service. An empty result with a
// nil error means the service knows no such place. Bias, when set, asks the
// service to prefer results around it.
type Provider interface {
	Search(ctx context.Context, query string, bias *spatial.Point) ([]Candidate, error)
}

// ProviderFunc adapts a function to the Provider interface.
type ProviderFunc func(ctx context.Context, query string, bias *spatial.Point) ([]Candidate, error)

// Search calls f.
func (f ProviderFunc) Search(ctx context.Context, query string, bias *spatial.Point) ([]Candidate, error) {
	return f(ctx, query, bias)
}

// BiasBox is the bounding box, in degrees, sent to providers around a bias
// point.
type BiasBox struct {
	South, West, North, East float64
}

// BoxAround returns a box extending radiusKm in every direction from p,
// clipped to valid coordinates.
func BoxAround(p spatial.Point, radiusKm float64) BiasBox {
	dLat := radiusKm / (spatial.EarthRadius / 1000) * 180 / math.Pi

	dLng := 180.0
	if c := math.Cos(p.Lat * math.Pi / 180); c > 1e-6 {
		dLng = min(180, dLat/c)
	}

	return BiasBox{
		South: max(-90, p.Lat-dLat),
		North: min(90, p.Lat+dLat),
		West:  max(-180, p.Lng-dLng),
		East:  min(180, p.Lng+dLng),
	}
}
