// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

// Package pipeline runs the extraction, geocoding and clustering stages over
// one document and assembles the ranked result.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jcodagnone/geosites/clustering"
	"github.com/jcodagnone/geosites/document"
	"github.com/jcodagnone/geosites/extraction"
	"github.com/jcodagnone/geosites/geocoding"
	"github.com/jcodagnone/geosites/spatial"
	"github.com/jcodagnone/geosites/utils/textutils"
)

// ErrParseUnavailable means the document could not be obtained. It is the
// only error that fails a run.
var ErrParseUnavailable = errors.New("document parse unavailable")

// Options wires the components of an Orchestrator. Nil extractors or
// clusterer get the defaults built from Config; a nil Geocoder skips name
// resolution.
type Options struct {
	Config          *Config
	TextExtractors  []extraction.Extractor
	TableExtractors []extraction.Extractor
	Geocoder        geocoding.Geocoder
	Clusterer       *clustering.Clusterer
}

// Orchestrator runs documents through the pipeline. It holds no per-run
// state, so one instance serves concurrent runs.
type Orchestrator struct {
	cfg             *Config
	textExtractors  []extraction.Extractor
	tableExtractors []extraction.Extractor
	geocoder        geocoding.Geocoder
	clusterer       *clustering.Clusterer
	priority        []string
}

// New builds an orchestrator from opts.
func New(opts Options) *Orchestrator {
	cfg := opts.Config
	if cfg == nil {
		cfg = DefaultConfig()
	}

	o := &Orchestrator{
		cfg:             cfg,
		textExtractors:  opts.TextExtractors,
		tableExtractors: opts.TableExtractors,
		geocoder:        opts.Geocoder,
		clusterer:       opts.Clusterer,
	}

	if o.textExtractors == nil {
		o.textExtractors = []extraction.Extractor{
			extraction.NewTextExtractor(extraction.NewPatternRecognizer(), cfg.ContextWindow),
		}
	}

	if o.tableExtractors == nil {
		o.tableExtractors = []extraction.Extractor{extraction.NewTableExtractor()}
	}

	if o.clusterer == nil {
		o.clusterer = clustering.New(cfg.ClusteringParams())
	}

	for _, s := range cfg.PrioritySections {
		if s = textutils.NormalizeName(s); s != "" {
			o.priority = append(o.priority, s)
		}
	}

	return o
}

// Config returns the configuration in use.
func (o *Orchestrator) Config() *Config {
	return o.cfg
}

// run carries the state of one document through the stages.
type run struct {
	o        *Orchestrator
	doc      *document.Document
	meta     Metadata
	entities []*extraction.GeoEntity
	title    []*extraction.GeoEntity
	bias     *spatial.Point
	// resolved marks entities whose lookup already happened
	resolved map[*extraction.GeoEntity]bool
}

func (r *run) enter(s State) func() {
	r.meta.States = append(r.meta.States, s)
	start := time.Now()

	return func() {
		r.meta.StageMs[s] = float64(time.Since(start).Microseconds()) / 1000
	}
}

// Run processes the document provided by loader. Besides ErrParseUnavailable
// the only error is the context's, when ctx is done before the run ends.
func (o *Orchestrator) Run(ctx context.Context, loader Loader) (*ExtractionResult, error) {
	r := &run{
		o:        o,
		meta:     Metadata{StageMs: make(map[State]float64), Methods: make(map[string]int)},
		resolved: make(map[*extraction.GeoEntity]bool),
	}

	done := r.enter(StateParsing)

	doc, err := loader.Load(ctx)

	done()

	if err != nil {
		r.meta.States = append(r.meta.States, StateFailed)

		return nil, fmt.Errorf("%w: %w", ErrParseUnavailable, err)
	}

	if doc.Empty() {
		r.meta.States = append(r.meta.States, StateFailed)

		return nil, fmt.Errorf("%w: empty document", ErrParseUnavailable)
	}

	r.doc = doc
	r.meta.DocumentID = doc.ID

	result := &ExtractionResult{RunID: uuid.NewString(), Title: doc.Title}

	stages := []struct {
		state State
		fn    func(ctx context.Context) error
	}{
		{StateTextExtraction, r.extractText},
		{StateTableExtraction, r.extractTables},
		{StateTitleBias, r.titleBias},
		{StateGeocoding, r.geocode},
		{StateClustering, func(context.Context) error {
			r.dropOutOfRange()
			result.Clusters = o.clusterer.Cluster(r.entities)

			return nil
		}},
		{StateDedupRank, func(context.Context) error {
			r.entities, r.meta.Counts.Merged = Dedup(r.entities, o.cfg.MergeToleranceKm)
			result.Ranked = Rank(r.entities, result.Clusters, o.cfg.MinConfidence)

			return nil
		}},
	}

	for _, stage := range stages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		done := r.enter(stage.state)
		err := stage.fn(ctx)

		done()

		if err != nil {
			return nil, err
		}
	}

	r.meta.States = append(r.meta.States, StateDone)
	r.finish(result)

	return result, nil
}

func (o *Orchestrator) isPriority(section string) bool {
	s := textutils.NormalizeName(section)
	if s == "" {
		return false
	}

	for _, p := range o.priority {
		if strings.Contains(s, p) {
			return true
		}
	}

	return false
}

func (r *run) extractText(context.Context) error {
	var priority, rest []extraction.Unit

	for _, span := range r.doc.Spans {
		if strings.TrimSpace(span.Text) == "" {
			continue
		}

		u := extraction.Unit{Kind: extraction.UnitSpan, Section: span.Section, Text: span.Text}

		if r.o.isPriority(span.Section) {
			u.Boost = r.o.cfg.PriorityBoost
			priority = append(priority, u)

			continue
		}

		rest = append(rest, u)
	}

	r.meta.Counts.Spans = len(priority) + len(rest)
	r.meta.Counts.PrioritySpans = len(priority)

	for _, u := range append(priority, rest...) {
		for _, x := range r.o.textExtractors {
			found := x.Extract(u)
			r.meta.Counts.TextEntities += len(found)
			r.entities = append(r.entities, found...)
		}
	}

	return nil
}

func (r *run) extractTables(context.Context) error {
	r.meta.Counts.Tables = len(r.doc.Tables)

	for i := range r.doc.Tables {
		table := r.doc.Tables[i]
		table.Label = r.doc.TableLabel(i)

		u := extraction.Unit{Kind: extraction.UnitTable, Table: &table}

		produced := 0

		for _, x := range r.o.tableExtractors {
			found := x.Extract(u)
			produced += len(found)
			r.entities = append(r.entities, found...)
		}

		r.meta.Counts.TableEntities += produced

		if extraction.FindCoordinateColumns(table.ColumnNames()).Found() {
			r.meta.Counts.SkippedRows += max(0, len(table.Rows)-produced)
		}
	}

	return nil
}

// titleBias extracts title mentions and takes the first one that resolves
// as the bias point for geocoding the rest.
func (r *run) titleBias(ctx context.Context) error {
	title := strings.TrimSpace(r.doc.Title)
	if title == "" {
		return nil
	}

	u := extraction.Unit{Kind: extraction.UnitTitle, Section: "title", Text: title}

	for _, x := range r.o.textExtractors {
		r.title = append(r.title, x.Extract(u)...)
	}

	r.meta.Counts.TitleEntities = len(r.title)

	for _, e := range r.title {
		if !e.HasPoint() && r.o.geocoder != nil {
			if err := ctx.Err(); err != nil {
				return err
			}

			r.resolve(ctx, e, nil)
		}

		if e.HasPoint() && e.Point.Validate() == nil {
			p := *e.Point
			r.bias = &p
			r.meta.Bias = &p
			r.meta.BiasSource = e.Text

			break
		}
	}

	r.entities = append(r.entities, r.title...)

	return nil
}

func (r *run) geocode(ctx context.Context) error {
	if r.o.geocoder == nil {
		return nil
	}

	for _, e := range r.entities {
		if e.HasPoint() || r.resolved[e] {
			continue
		}

		if err := ctx.Err(); err != nil {
			return err
		}

		r.resolve(ctx, e, r.bias)
	}

	return nil
}

func (r *run) resolve(ctx context.Context, e *extraction.GeoEntity, bias *spatial.Point) {
	r.resolved[e] = true
	r.meta.Counts.GeocodeLookups++

	res := r.o.geocoder.Resolve(ctx, e.Text, bias)
	if res.Point != nil {
		p := *res.Point
		e.Point = &p
		r.meta.Counts.GeocodeResolved++
	}
}

// dropOutOfRange removes entities whose point is not a valid coordinate.
func (r *run) dropOutOfRange() {
	kept := r.entities[:0]

	for _, e := range r.entities {
		if e.HasPoint() && e.Point.Validate() != nil {
			r.meta.Counts.DroppedOutOfRange++

			continue
		}

		kept = append(kept, e)
	}

	r.entities = kept
}

func (r *run) finish(result *ExtractionResult) {
	for _, e := range r.entities {
		r.meta.Methods[string(e.Method)]++

		if !e.HasPoint() {
			r.meta.Counts.Unresolved++
		}
	}

	r.meta.Counts.Clusters = result.Clusters.Len()
	r.meta.Counts.Noise = result.Clusters.Noise
	r.meta.Counts.Ranked = len(result.Ranked)

	for _, e := range r.entities {
		if e.Confidence < r.o.cfg.MinConfidence {
			r.meta.Counts.BelowThreshold++
		}
	}

	r.meta.EpsKm = result.Clusters.EpsKm
	r.meta.Confidence = confidenceStats(r.entities)

	if r.entities == nil {
		r.entities = []*extraction.GeoEntity{}
	}

	result.Entities = r.entities
	result.Metadata = r.meta
}
