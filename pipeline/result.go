// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package pipeline

import (
	"github.com/jcodagnone/geosites/clustering"
	"github.com/jcodagnone/geosites/extraction"
	"github.com/jcodagnone/geosites/spatial"
)

// State is a step of a run.
type State string

const (
	StateParsing         State = "PARSING"
	StateTextExtraction  State = "TEXT_EXTRACTION"
	StateTableExtraction State = "TABLE_EXTRACTION"
	StateTitleBias       State = "TITLE_BIAS"
	StateGeocoding       State = "GEOCODING"
	StateClustering      State = "CLUSTERING"
	StateDedupRank       State = "DEDUP_RANK"
	StateDone            State = "DONE"
	StateFailed          State = "FAILED"
)

// RankedEntity is an entity with its ranking score.
type RankedEntity struct {
	Entity      *extraction.GeoEntity `json:"entity"`
	Score       float64               `json:"score"`
	ClusterSize int                   `json:"cluster_size"`
}

// Metadata describes how a run went.
type Metadata struct {
	DocumentID string            `json:"document_id"`
	States     []State           `json:"states"`
	StageMs    map[State]float64 `json:"stage_ms"`
	Counts     Counts            `json:"counts"`
	Confidence ConfidenceStats   `json:"confidence"`
	EpsKm      float64           `json:"eps_km"`
	Bias       *spatial.Point    `json:"bias,omitempty"`
	BiasSource string            `json:"bias_source,omitempty"`
	Methods    map[string]int    `json:"methods"`
}

// Counts are per-stage tallies.
type Counts struct {
	Spans             int `json:"spans"`
	PrioritySpans     int `json:"priority_spans"`
	Tables            int `json:"tables"`
	TextEntities      int `json:"text_entities"`
	TableEntities     int `json:"table_entities"`
	TitleEntities     int `json:"title_entities"`
	SkippedRows       int `json:"skipped_rows"`
	GeocodeLookups    int `json:"geocode_lookups"`
	GeocodeResolved   int `json:"geocode_resolved"`
	Unresolved        int `json:"unresolved"`
	DroppedOutOfRange int `json:"dropped_out_of_range"`
	Merged            int `json:"merged"`
	Clusters          int `json:"clusters"`
	Noise             int `json:"noise"`
	Ranked            int `json:"ranked"`
	BelowThreshold    int `json:"below_threshold"`
}

// ConfidenceStats summarizes entity confidences.
type ConfidenceStats struct {
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"std_dev"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
}

// ExtractionResult is the outcome of a run.
type ExtractionResult struct {
	RunID    string                  `json:"run_id"`
	Title    string                  `json:"title,omitempty"`
	Entities []*extraction.GeoEntity `json:"entities"`
	Ranked   []RankedEntity          `json:"ranked"`
	Clusters clustering.ClusterInfo  `json:"clusters"`
	Metadata Metadata                `json:"metadata"`
}

// Sites returns the ranked entities at or above minConfidence.
func (r *ExtractionResult) Sites(minConfidence float64) []RankedEntity {
	var sites []RankedEntity

	for _, re := range r.Ranked {
		if re.Entity.Confidence >= minConfidence {
			sites = append(sites, re)
		}
	}

	return sites
}
