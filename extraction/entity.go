// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

// Package extraction turns document spans, tables and titles into candidate
// study-site entities.
package extraction

import (
	"github.com/jcodagnone/geosites/document"
	"github.com/jcodagnone/geosites/spatial"
)

// EntityType classifies what kind of mention produced an entity.
type EntityType string

const (
	PlaceName      EntityType = "place-name"
	CoordinatePair EntityType = "coordinate-pair"
	SiteName       EntityType = "site-name"
)

// Method records how an entity was extracted.
type Method string

const (
	MethodNER   Method = "NER"
	MethodRegex Method = "REGEX"
	MethodTable Method = "TABLE_PARSING"
	MethodTitle Method = "TITLE_BIAS"
)

// Base confidences per extraction method.
const (
	TableConfidence = 0.9
	RegexConfidence = 0.85
	TitleConfidence = 0.7
	NERConfidence   = 0.6
	ContextBoost    = 0.05
)

// Provenance identifies where a mention came from.
type Provenance struct {
	Text       string  `json:"text"`
	Section    string  `json:"section"`
	Method     Method  `json:"extraction_method"`
	Confidence float64 `json:"confidence"`
}

// GeoEntity is one candidate study-site mention.
//
// Point and Cluster are the only fields written after creation: Point by the
// geocoder, Cluster by the clusterer. Cluster is never set without Point.
type GeoEntity struct {
	Text       string         `json:"text"`
	Type       EntityType     `json:"entity_type"`
	Section    string         `json:"section"`
	Confidence float64        `json:"confidence"`
	Method     Method         `json:"extraction_method"`
	Context    string         `json:"context,omitempty"`
	Point      *spatial.Point `json:"coordinates,omitempty"`
	Cluster    *int           `json:"cluster_label,omitempty"`
	MergedFrom []Provenance   `json:"merged_from,omitempty"`
}

// HasPoint reports whether the entity carries coordinates.
func (e *GeoEntity) HasPoint() bool {
	return e.Point != nil
}

// IsNoise reports a geocoded entity that clustering left unassigned.
func (e *GeoEntity) IsNoise() bool {
	return e.Point != nil && e.Cluster == nil
}

// Provenance returns the entity's own origin.
func (e *GeoEntity) Provenance() Provenance {
	return Provenance{
		Text:       e.Text,
		Section:    e.Section,
		Method:     e.Method,
		Confidence: e.Confidence,
	}
}

// UnitKind tells extractors what a Unit carries.
type UnitKind int

const (
	UnitSpan UnitKind = iota
	UnitTable
	UnitTitle
)

// Unit is one structured input handed to extractors.
type Unit struct {
	Kind    UnitKind
	Section string
	Text    string
	Table   *document.Table
	// Boost is added to the confidence of every entity created from the unit.
	Boost float64
}

// Extractor produces entities from a unit. Implementations ignore unit kinds
// they don't handle.
type Extractor interface {
	Extract(u Unit) []*GeoEntity
}

// ExtractorFunc adapts a function to the Extractor interface.
type ExtractorFunc func(u Unit) []*GeoEntity

// Extract calls f(u).
func (f ExtractorFunc) Extract(u Unit) []*GeoEntity {
	return f(u)
}

func clampConfidence(c float64) float64 {
	return max(0, min(1, c))
}
