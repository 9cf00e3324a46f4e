// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/jcodagnone/geosites/geocoding"
	"github.com/jcodagnone/geosites/pipeline"
	"github.com/jcodagnone/geosites/utils/httputils"
)

// traceWriter is where HTTP transactions are dumped, nil unless --trace-http.
func traceWriter() io.Writer {
	if rootOptions.TraceHTTP {
		return os.Stderr
	}

	return nil
}

func userAgent() string {
	if ua := os.Getenv("GEOSITES_USER_AGENT"); ua != "" {
		return ua
	}

	return fmt.Sprintf("geosites/%s (+https://github.com/jcodagnone/geosites)", Version)
}

// newGeocoder builds the configured geocoder. It returns nil when geocoding
// is disabled.
func newGeocoder(ctx context.Context, cfg *pipeline.Config) (*geocoding.CachedGeocoder, error) {
	// the per-attempt timeout is applied by the geocoder through the context
	client := httputils.NewClient(0, map[string]string{"User-Agent": userAgent()}, traceWriter())

	var provider geocoding.Provider

	switch cfg.Geocoder {
	case pipeline.GeocoderNone:
		log.Println("📍 Geocoding: disabled")

		return nil, nil
	case pipeline.GeocoderGoogle:
		apiKey, err := geocoding.GoogleAPIKey(ctx)
		if err != nil {
			return nil, fmt.Errorf("GOOGLE_MAPS_API_KEY is not set and ADC failed: %w", err)
		}

		log.Println("📍 Geocoding: Google Maps")

		provider = geocoding.NewGoogleMapsGeocoder(apiKey, client)
	default:
		baseURL := os.Getenv("GEOSITES_NOMINATIM_URL")
		if baseURL == "" {
			baseURL = geocoding.DefaultNominatimURL
		}

		log.Printf("📍 Geocoding: Nominatim (%s)", baseURL)

		provider = geocoding.NewNominatimProvider(baseURL, client)
	}

	return geocoding.NewCachedGeocoder(provider, cfg.GeocodingOptions()), nil
}

// newOrchestrator wires the pipeline for cfg. The geocoder is nil when
// geocoding is disabled.
func newOrchestrator(ctx context.Context, cfg *pipeline.Config) (*pipeline.Orchestrator, *geocoding.CachedGeocoder, error) {
	geocoder, err := newGeocoder(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	opts := pipeline.Options{Config: cfg}
	if geocoder != nil {
		opts.Geocoder = geocoder
	}

	return pipeline.New(opts), geocoder, nil
}
