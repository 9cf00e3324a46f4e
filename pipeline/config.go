// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package pipeline

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jcodagnone/geosites/clustering"
	"github.com/jcodagnone/geosites/extraction"
	"github.com/jcodagnone/geosites/geocoding"
)

// DefaultPrioritySections are processed first, and their mentions boosted.
var DefaultPrioritySections = []string{
	"study area",
	"study site",
	"site description",
	"methods",
	"materials and methods",
	"abstract",
	"results",
}

// Config holds every tunable of a run. The JSON field names are the ones
// accepted by LoadConfig.
type Config struct {
	MinConfidence    float64  `json:"min_confidence"`
	ContextWindow    int      `json:"context_window"`
	PrioritySections []string `json:"priority_sections"`
	PriorityBoost    float64  `json:"priority_boost"`
	MergeToleranceKm float64  `json:"merge_tolerance_km"`

	EpsKm         float64 `json:"eps_km"`
	MinSamples    int     `json:"min_samples"`
	EpsQuantile   float64 `json:"eps_quantile"`
	EpsMultiplier float64 `json:"eps_multiplier"`
	MinEpsKm      float64 `json:"min_eps_km"`
	MaxEpsKm      float64 `json:"max_eps_km"`
	DefaultEpsKm  float64 `json:"default_eps_km"`

	Geocoder                string  `json:"geocoder"`
	GeocodeRateLimitSeconds float64 `json:"geocode_rate_limit_seconds"`
	GeocodeCacheTTLSeconds  float64 `json:"geocode_cache_ttl_seconds"`
	GeocodeTimeoutSeconds   float64 `json:"geocode_timeout_seconds"`
	GeocodeMaxRetries       int     `json:"geocode_max_retries"`
	BiasSanityKm            float64 `json:"bias_sanity_km"`
	BiasCellResolution      int     `json:"bias_cell_resolution"`
}

// Geocoder provider names.
const (
	GeocoderNominatim = "nominatim"
	GeocoderGoogle    = "google"
	GeocoderNone      = "none"
)

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() *Config {
	p := clustering.DefaultParams()

	return &Config{
		MinConfidence:    0.3,
		ContextWindow:    extraction.DefaultContextWindow,
		PrioritySections: append([]string(nil), DefaultPrioritySections...),
		PriorityBoost:    0.1,
		MergeToleranceKm: 0.1,

		MinSamples:    p.MinSamples,
		EpsQuantile:   p.EpsQuantile,
		EpsMultiplier: p.EpsMultiplier,
		MinEpsKm:      p.MinEpsKm,
		MaxEpsKm:      p.MaxEpsKm,
		DefaultEpsKm:  p.DefaultEpsKm,

		Geocoder:                GeocoderNominatim,
		GeocodeRateLimitSeconds: geocoding.DefaultRateInterval.Seconds(),
		GeocodeTimeoutSeconds:   geocoding.DefaultTimeout.Seconds(),
		GeocodeMaxRetries:       geocoding.DefaultMaxRetries,
		BiasSanityKm:            geocoding.DefaultBiasSanityKm,
		BiasCellResolution:      geocoding.DefaultBiasCellResolution,
	}
}

// LoadConfig reads a JSON file over the defaults: fields the file omits keep
// their default value.
func LoadConfig(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}

	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks ranges; it reports every problem at once.
func (c *Config) Validate() error {
	var errs []error

	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(c.MinConfidence >= 0 && c.MinConfidence <= 1, "min_confidence must be within [0,1], got %v", c.MinConfidence)
	check(c.ContextWindow >= 0, "context_window must not be negative, got %d", c.ContextWindow)
	check(c.PriorityBoost >= 0 && c.PriorityBoost <= 1, "priority_boost must be within [0,1], got %v", c.PriorityBoost)
	check(c.MergeToleranceKm >= 0, "merge_tolerance_km must not be negative, got %v", c.MergeToleranceKm)
	check(c.EpsKm >= 0, "eps_km must not be negative, got %v", c.EpsKm)
	check(c.MinSamples >= 1, "min_samples must be at least 1, got %d", c.MinSamples)
	check(c.EpsQuantile > 0 && c.EpsQuantile <= 1, "eps_quantile must be within (0,1], got %v", c.EpsQuantile)
	check(c.EpsMultiplier > 0, "eps_multiplier must be positive, got %v", c.EpsMultiplier)
	check(c.MinEpsKm > 0 && c.MinEpsKm <= c.MaxEpsKm, "min_eps_km must be positive and not above max_eps_km (%v, %v)", c.MinEpsKm, c.MaxEpsKm)
	check(c.DefaultEpsKm > 0, "default_eps_km must be positive, got %v", c.DefaultEpsKm)
	check(c.GeocodeRateLimitSeconds >= 0, "geocode_rate_limit_seconds must not be negative, got %v", c.GeocodeRateLimitSeconds)
	check(c.GeocodeCacheTTLSeconds >= 0, "geocode_cache_ttl_seconds must not be negative, got %v", c.GeocodeCacheTTLSeconds)
	check(c.GeocodeTimeoutSeconds >= 0, "geocode_timeout_seconds must not be negative, got %v", c.GeocodeTimeoutSeconds)
	check(c.GeocodeMaxRetries >= 0, "geocode_max_retries must not be negative, got %d", c.GeocodeMaxRetries)
	check(c.BiasSanityKm >= 0, "bias_sanity_km must not be negative, got %v", c.BiasSanityKm)
	check(c.BiasCellResolution >= 0 && c.BiasCellResolution <= 15, "bias_cell_resolution must be within [0,15], got %d", c.BiasCellResolution)

	switch c.Geocoder {
	case GeocoderNominatim, GeocoderGoogle, GeocoderNone:
	default:
		errs = append(errs, fmt.Errorf("geocoder must be one of %q, %q or %q, got %q", GeocoderNominatim, GeocoderGoogle, GeocoderNone, c.Geocoder))
	}

	return errors.Join(errs...)
}

// ClusteringParams returns the clusterer parameters.
func (c *Config) ClusteringParams() clustering.Params {
	return clustering.Params{
		EpsKm:         c.EpsKm,
		MinSamples:    c.MinSamples,
		EpsQuantile:   c.EpsQuantile,
		EpsMultiplier: c.EpsMultiplier,
		MinEpsKm:      c.MinEpsKm,
		MaxEpsKm:      c.MaxEpsKm,
		DefaultEpsKm:  c.DefaultEpsKm,
	}
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// GeocodingOptions returns geocoder options with a new cache and limiter.
// Build them once per process and share the result between geocoders.
func (c *Config) GeocodingOptions() geocoding.Options {
	return geocoding.Options{
		Cache:              geocoding.NewCache(seconds(c.GeocodeCacheTTLSeconds)),
		Limiter:            geocoding.NewLimiter(seconds(c.GeocodeRateLimitSeconds)),
		Timeout:            seconds(c.GeocodeTimeoutSeconds),
		MaxRetries:         c.GeocodeMaxRetries,
		BiasSanityKm:       c.BiasSanityKm,
		BiasCellResolution: c.BiasCellResolution,
		Backoff:            geocoding.Backoff,
	}
}
