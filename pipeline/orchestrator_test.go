// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/jcodagnone/geosites/document"
	"github.com/jcodagnone/geosites/extraction"
	"github.com/jcodagnone/geosites/geocoding"
	"github.com/jcodagnone/geosites/spatial"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubGeocoder answers from a fixed gazetteer and records the bias seen
// for each name.
type stubGeocoder struct {
	mu     sync.Mutex
	places map[string]spatial.Point
	biases map[string]*spatial.Point
	calls  int
	onCall func()
}

func newStubGeocoder(places map[string]spatial.Point) *stubGeocoder {
	return &stubGeocoder{places: places, biases: make(map[string]*spatial.Point)}
}

func (s *stubGeocoder) Resolve(_ context.Context, name string, bias *spatial.Point) geocoding.Resolution {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls++
	s.biases[name] = bias

	if s.onCall != nil {
		s.onCall()
	}

	p, ok := s.places[name]
	if !ok {
		return geocoding.Resolution{Reason: geocoding.ReasonNoMatch}
	}

	return geocoding.Resolution{Point: &p, Reason: geocoding.ReasonResolved}
}

var gazetteer = map[string]spatial.Point{
	"Tena":      {Lat: -0.99, Lng: -77.81},
	"Archidona": {Lat: -0.91, Lng: -77.81},
	"Cuyabeno":  {Lat: 0.0, Lng: -76.2},
}

func napoDocument() *document.Document {
	return &document.Document{
		ID:    "napo",
		Title: "Amphibian survey in Amazonian Ecuador",
		Spans: []document.Span{
			{Section: "Discussion", Text: "A second site lies near Cuyabeno."},
			{Section: "2. Study area", Text: "Sampling took place near Tena and near Archidona."},
		},
	}
}

func TestRun_EndToEnd(t *testing.T) {
	geocoder := newStubGeocoder(gazetteer)
	o := New(Options{Geocoder: geocoder})

	result, err := o.Run(context.Background(), StaticLoader(napoDocument()))
	require.NoError(t, err)

	assert.NotEmpty(t, result.RunID)
	assert.Equal(t, []int{2, 1}, result.Clusters.Sizes())

	names := make([]string, 0, len(result.Ranked))
	for _, r := range result.Ranked {
		names = append(names, r.Entity.Text)
	}

	if diff := cmp.Diff([]string{"Tena", "Archidona", "Cuyabeno"}, names); diff != "" {
		t.Errorf("ranking mismatch (-want +got):\n%s", diff)
	}

	assert.InDelta(t, 0.7*0.75+0.3, result.Ranked[0].Score, 1e-9)
	assert.Equal(t, 2, result.Ranked[0].ClusterSize)
	assert.InDelta(t, 0.7*0.6+0.3*0.5, result.Ranked[2].Score, 1e-9)

	// the unresolved title mention stays for audit
	require.Len(t, result.Entities, 4)

	title := result.Entities[3]
	assert.Equal(t, "Amazonian Ecuador", title.Text)
	assert.Equal(t, extraction.MethodTitle, title.Method)
	assert.Nil(t, title.Point)
	assert.Nil(t, result.Metadata.Bias)

	assert.Equal(t, []State{
		StateParsing, StateTextExtraction, StateTableExtraction, StateTitleBias,
		StateGeocoding, StateClustering, StateDedupRank, StateDone,
	}, result.Metadata.States)

	c := result.Metadata.Counts
	assert.Equal(t, 2, c.Spans)
	assert.Equal(t, 1, c.PrioritySpans)
	assert.Equal(t, 3, c.TextEntities)
	assert.Equal(t, 1, c.TitleEntities)
	assert.Equal(t, 4, c.GeocodeLookups)
	assert.Equal(t, 3, c.GeocodeResolved)
	assert.Equal(t, 1, c.Unresolved)
	assert.Equal(t, 2, c.Clusters)
	assert.Equal(t, 3, c.Ranked)
	assert.Equal(t, 4, geocoder.calls)
	assert.Equal(t, 3, result.Metadata.Methods[string(extraction.MethodNER)])
}

func TestRun_TitleBias(t *testing.T) {
	geocoder := newStubGeocoder(gazetteer)
	o := New(Options{Geocoder: geocoder})

	doc := napoDocument()
	doc.Title = "Frogs near Tena"

	result, err := o.Run(context.Background(), StaticLoader(doc))
	require.NoError(t, err)

	require.NotNil(t, result.Metadata.Bias)
	assert.Equal(t, gazetteer["Tena"], *result.Metadata.Bias)
	assert.Equal(t, "Tena", result.Metadata.BiasSource)

	require.NotNil(t, geocoder.biases["Archidona"])
	assert.Equal(t, gazetteer["Tena"], *geocoder.biases["Archidona"])

	// the title Tena and the body Tena coincide: the boosted body mention wins
	assert.Equal(t, 1, result.Metadata.Counts.Merged)

	for _, e := range result.Entities {
		if e.Text != "Tena" {
			continue
		}

		assert.Equal(t, extraction.MethodNER, e.Method)
		require.Len(t, e.MergedFrom, 1)
		assert.Equal(t, extraction.MethodTitle, e.MergedFrom[0].Method)
		assert.Equal(t, "title", e.MergedFrom[0].Section)
	}
}

func TestRun_ParseUnavailable(t *testing.T) {
	o := New(Options{})

	boom := errors.New("pdf is encrypted")

	_, err := o.Run(context.Background(), LoaderFunc(func(context.Context) (*document.Document, error) {
		return nil, boom
	}))
	assert.True(t, errors.Is(err, ErrParseUnavailable))
	assert.True(t, errors.Is(err, boom))

	_, err = o.Run(context.Background(), StaticLoader(nil))
	assert.True(t, errors.Is(err, ErrParseUnavailable))

	_, err = o.Run(context.Background(), StaticLoader(&document.Document{Title: " "}))
	assert.True(t, errors.Is(err, ErrParseUnavailable))
}

func TestRun_MinConfidence(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinConfidence = 0.7

	o := New(Options{Config: cfg, Geocoder: newStubGeocoder(gazetteer)})

	result, err := o.Run(context.Background(), StaticLoader(napoDocument()))
	require.NoError(t, err)

	require.Len(t, result.Ranked, 2)
	assert.Len(t, result.Entities, 4)
	assert.Equal(t, 1, result.Metadata.Counts.BelowThreshold)
	assert.Len(t, result.Sites(0.8), 0)
}

func TestRun_Tables(t *testing.T) {
	doc := &document.Document{
		ID: "sites",
		Tables: []document.Table{{
			Columns: []string{"site", "lat", "lon"},
			Rows: []document.Row{
				{"site": "A", "lat": "10.0", "lon": "20.0"},
				{"site": "B", "lat": "bad", "lon": "20.0"},
				{"site": "C", "lat": "10.001", "lon": "20.0"},
			},
		}},
	}

	result, err := New(Options{}).Run(context.Background(), StaticLoader(doc))
	require.NoError(t, err)

	c := result.Metadata.Counts
	assert.Equal(t, 2, c.TableEntities)
	assert.Equal(t, 1, c.SkippedRows)
	assert.Equal(t, 0, c.GeocodeLookups)
	assert.Equal(t, []int{2}, result.Clusters.Sizes())

	require.Len(t, result.Ranked, 2)
	assert.Equal(t, "table-1", result.Ranked[0].Entity.Section)
	assert.InDelta(t, 0.7*0.9+0.3, result.Ranked[0].Score, 1e-9)
}

func TestRun_DropsOutOfRange(t *testing.T) {
	geocoder := newStubGeocoder(map[string]spatial.Point{
		"Tena":      {Lat: -0.99, Lng: -77.81},
		"Archidona": {Lat: 95, Lng: -77.81},
	})

	result, err := New(Options{Geocoder: geocoder}).Run(context.Background(), StaticLoader(napoDocument()))
	require.NoError(t, err)

	assert.Equal(t, 1, result.Metadata.Counts.DroppedOutOfRange)

	for _, e := range result.Entities {
		assert.NotEqual(t, "Archidona", e.Text)
	}
}

func TestRun_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	geocoder := newStubGeocoder(gazetteer)
	geocoder.onCall = cancel

	_, err := New(Options{Geocoder: geocoder}).Run(ctx, StaticLoader(napoDocument()))
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, 1, geocoder.calls)
}

func TestRun_PriorityOrder(t *testing.T) {
	doc := &document.Document{
		Spans: []document.Span{
			{Section: "Introduction", Text: "Earlier work near Quito was limited."},
			{Section: "Materials and Methods", Text: "Plots were set near Mindo."},
		},
	}

	result, err := New(Options{}).Run(context.Background(), StaticLoader(doc))
	require.NoError(t, err)

	require.Len(t, result.Entities, 2)
	assert.Equal(t, "Mindo", result.Entities[0].Text)
	assert.InDelta(t, 0.6+0.1+0.05, result.Entities[0].Confidence, 1e-9)
	assert.Equal(t, "Quito", result.Entities[1].Text)
	assert.InDelta(t, 0.6, result.Entities[1].Confidence, 1e-9)
	assert.Empty(t, result.Ranked)
}

func TestRun_FixedEpsKeepsIsolatedSite(t *testing.T) {
	geocoder := newStubGeocoder(map[string]spatial.Point{
		"Quito":     {Lat: -0.5, Lng: -78.5},
		"Pichincha": {Lat: -0.5, Lng: -78.5},
		"Lima":      {Lat: -12.0, Lng: -77.0},
	})

	cfg := DefaultConfig()
	cfg.EpsKm = 50

	doc := &document.Document{
		Spans: []document.Span{{Section: "Methods", Text: "Samples from Quito, near Pichincha and near Lima."}},
	}

	result, err := New(Options{Config: cfg, Geocoder: geocoder}).Run(context.Background(), StaticLoader(doc))
	require.NoError(t, err)

	assert.Equal(t, []int{2, 1}, result.Clusters.Sizes())
	assert.InDelta(t, 50, result.Clusters.EpsKm, 1e-9)

	// the coincident pair merges into one site, Lima stays on its own
	assert.Equal(t, 1, result.Metadata.Counts.Merged)
	require.Len(t, result.Ranked, 2)
	assert.Equal(t, "Quito", result.Ranked[0].Entity.Text)
	assert.Equal(t, 2, result.Ranked[0].ClusterSize)
	assert.Equal(t, "Lima", result.Ranked[1].Entity.Text)
	assert.Equal(t, 1, result.Ranked[1].ClusterSize)

	require.NotNil(t, result.Ranked[0].Entity.Cluster)
	require.NotNil(t, result.Ranked[1].Entity.Cluster)
	assert.NotEqual(t, *result.Ranked[0].Entity.Cluster, *result.Ranked[1].Entity.Cluster)
}
