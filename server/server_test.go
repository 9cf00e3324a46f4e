// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	_ "github.com/duckdb/duckdb-go/v2"
	"github.com/gin-gonic/gin"
	"github.com/jcodagnone/geosites/geocoding"
	"github.com/jcodagnone/geosites/pipeline"
	"github.com/jcodagnone/geosites/spatial"
	"github.com/jcodagnone/geosites/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var gazetteer = map[string]spatial.Point{
	"Tena":      {Lat: -0.99, Lng: -77.81},
	"Archidona": {Lat: -0.91, Lng: -77.81},
	"Cuyabeno":  {Lat: 0.0, Lng: -76.2},
}

const napoJSON = `{
	"id": "napo",
	"title": "Amphibian survey in Amazonian Ecuador",
	"spans": [
		{"section": "2. Study area", "text": "Sampling took place near Tena and near Archidona."},
		{"section": "Discussion", "text": "A second site lies near Cuyabeno."}
	]
}`

func newGeocoder() *geocoding.CachedGeocoder {
	provider := geocoding.ProviderFunc(func(_ context.Context, query string, _ *spatial.Point) ([]geocoding.Candidate, error) {
		p, ok := gazetteer[query]
		if !ok {
			return nil, nil
		}

		return []geocoding.Candidate{{Point: p, DisplayName: query, Provider: "test"}}, nil
	})

	opts := geocoding.DefaultOptions()
	opts.Limiter = geocoding.NewLimiter(0)

	return geocoding.NewCachedGeocoder(provider, opts)
}

func setupServerTest(t *testing.T, withStore bool) (*gin.Engine, *geocoding.CachedGeocoder) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	var sites store.SiteRepository

	if withStore {
		db, err := sql.Open("duckdb", "")
		require.NoError(t, err)
		t.Cleanup(func() { db.Close() })

		sites = store.NewSiteRepository(db)
		require.NoError(t, sites.CreateSchema())
	}

	geocoder := newGeocoder()
	o := pipeline.New(pipeline.Options{Geocoder: geocoder})

	return NewServer(o, sites, geocoder).Router(), geocoder
}

func do(router *gin.Engine, method, target, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(method, target, strings.NewReader(body))
	router.ServeHTTP(w, req)

	return w
}

func TestExtractAPI(t *testing.T) {
	router, _ := setupServerTest(t, false)

	w := do(router, http.MethodPost, "/api/extract", napoJSON)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Result pipeline.ExtractionResult `json:"result"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))

	require.Len(t, resp.Result.Ranked, 3)
	assert.Equal(t, "Tena", resp.Result.Ranked[0].Entity.Text)
	assert.Equal(t, []int{2, 1}, resp.Result.Clusters.Sizes())
	assert.Equal(t, "napo", resp.Result.Metadata.DocumentID)
}

func TestExtractAPI_Errors(t *testing.T) {
	router, _ := setupServerTest(t, false)

	tests := []struct {
		name   string
		target string
		body   string
		want   int
	}{
		{"malformed json", "/api/extract", `{"title":`, http.StatusBadRequest},
		{"empty document", "/api/extract", `{"title": "  "}`, http.StatusUnprocessableEntity},
		{"persist without store", "/api/extract?persist=true", napoJSON, http.StatusServiceUnavailable},
		{"bad threshold", "/api/extract?min_confidence=2", napoJSON, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(router, http.MethodPost, tt.target, tt.body)
			assert.Equal(t, tt.want, w.Code)

			var resp map[string]any
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Contains(t, resp, "error")
		})
	}
}

func TestExtractAndListSitesAPI(t *testing.T) {
	router, _ := setupServerTest(t, true)

	w := do(router, http.MethodPost, "/api/extract?persist=true&min_confidence=0.7", napoJSON)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var saved struct {
		DocumentID string `json:"document_id"`
		Saved      int    `json:"saved"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &saved))
	assert.Equal(t, "napo", saved.DocumentID)
	assert.Equal(t, 2, saved.Saved)

	w = do(router, http.MethodGet, "/api/sites?document=napo&limit=1", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var list struct {
		Sites  []store.Site `json:"sites"`
		Total  int          `json:"total"`
		Limit  int          `json:"limit"`
		Offset int          `json:"offset"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Equal(t, 2, list.Total)
	assert.Equal(t, 1, list.Limit)
	require.Len(t, list.Sites, 1)
	assert.Equal(t, "Tena", list.Sites[0].Name)
	assert.InDelta(t, -0.99, list.Sites[0].Point.Lat, 1e-9)

	w = do(router, http.MethodGet, "/api/sites?document=other", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Equal(t, 0, list.Total)
	assert.Empty(t, list.Sites)
}

func TestListSitesAPI_BadParams(t *testing.T) {
	router, _ := setupServerTest(t, true)

	for _, target := range []string{
		"/api/sites?limit=abc",
		"/api/sites?limit=0",
		"/api/sites?offset=-1",
		"/api/sites?cell=zz",
	} {
		w := do(router, http.MethodGet, target, "")
		assert.Equal(t, http.StatusBadRequest, w.Code, target)
	}

	router, _ = setupServerTest(t, false)
	w := do(router, http.MethodGet, "/api/sites", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestGeocoderStatsAPI(t *testing.T) {
	router, geocoder := setupServerTest(t, false)

	for range 2 {
		w := do(router, http.MethodPost, "/api/extract", napoJSON)
		require.Equal(t, http.StatusOK, w.Code)
	}

	w := do(router, http.MethodGet, "/api/geocoder/stats", "")
	require.Equal(t, http.StatusOK, w.Code)

	var stats geocoding.Stats
	require.NoError(t, json.NewDecoder(bytes.NewReader(w.Body.Bytes())).Decode(&stats))

	// three body mentions plus the unresolved title phrase
	assert.Equal(t, geocoding.Stats{Entries: 4, Hits: 4, Misses: 4, Calls: 4}, stats)
	assert.Equal(t, stats, geocoder.Stats())

	disabled := NewServer(pipeline.New(pipeline.Options{}), nil, nil).Router()
	w = do(disabled, http.MethodGet, "/api/geocoder/stats", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
