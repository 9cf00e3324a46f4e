// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"errors"
	"testing"

	"github.com/jcodagnone/geosites/extraction"
	"github.com/jcodagnone/geosites/pipeline"
	"github.com/jcodagnone/geosites/spatial"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) SiteRepository {
	t.Helper()

	db, err := sql.Open("duckdb", "")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	repo := NewSiteRepository(db)
	require.NoError(t, repo.CreateSchema())

	return repo
}

func ranked(text string, conf, score float64, p spatial.Point, cluster *int, size int) pipeline.RankedEntity {
	return pipeline.RankedEntity{
		Entity: &extraction.GeoEntity{
			Text:       text,
			Type:       extraction.PlaceName,
			Section:    "Study area",
			Confidence: conf,
			Method:     extraction.MethodNER,
			Point:      &p,
			Cluster:    cluster,
		},
		Score:       score,
		ClusterSize: size,
	}
}

func napoResult() *pipeline.ExtractionResult {
	zero := 0

	return &pipeline.ExtractionResult{
		RunID: "run-1",
		Ranked: []pipeline.RankedEntity{
			ranked("Tena", 0.75, 0.825, spatial.Point{Lat: -0.99, Lng: -77.81}, &zero, 2),
			ranked("Archidona", 0.75, 0.825, spatial.Point{Lat: -0.91, Lng: -77.81}, &zero, 2),
			ranked("Cuyabeno", 0.35, 0.395, spatial.Point{Lat: 0.0, Lng: -76.2}, nil, 0),
		},
	}
}

func TestCreateSchema(t *testing.T) {
	repo := setupTestDB(t)

	var tableName string

	err := repo.DB().QueryRow("SELECT table_name FROM information_schema.tables WHERE table_name = 'sites'").Scan(&tableName)
	require.NoError(t, err)
	assert.Equal(t, "sites", tableName)

	// idempotent
	assert.NoError(t, repo.CreateSchema())
}

func TestSaveAndListSites(t *testing.T) {
	repo := setupTestDB(t)

	n, err := repo.SaveResult("napo", napoResult(), 0.3)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	sites, err := repo.ListSites(Filter{DocumentID: "napo"})
	require.NoError(t, err)
	require.Len(t, sites, 3)

	tena := sites[0]
	assert.Equal(t, "Tena", tena.Name)
	assert.Equal(t, 1, tena.Rank)
	assert.Equal(t, "run-1", tena.RunID)
	assert.Equal(t, "place-name", tena.EntityType)
	assert.Equal(t, "NER", tena.Method)
	assert.InDelta(t, -0.99, tena.Point.Lat, 1e-9)
	assert.InDelta(t, -77.81, tena.Point.Lng, 1e-9)
	require.NotNil(t, tena.ClusterID)
	assert.Equal(t, 0, *tena.ClusterID)
	assert.Equal(t, 2, tena.ClusterSize)
	assert.NotZero(t, tena.H3Res3)
	assert.NotZero(t, tena.H3Res7)

	assert.Nil(t, sites[2].ClusterID)

	count, err := repo.CountSites(Filter{})
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestSaveResult_AppliesThresholdAndReplaces(t *testing.T) {
	repo := setupTestDB(t)

	_, err := repo.SaveResult("napo", napoResult(), 0.3)
	require.NoError(t, err)

	n, err := repo.SaveResult("napo", napoResult(), 0.5)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	count, err := repo.CountSites(Filter{DocumentID: "napo"})
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	_, err = repo.SaveResult("", napoResult(), 0.3)
	assert.Error(t, err)
}

func TestListSites_Paging(t *testing.T) {
	repo := setupTestDB(t)

	_, err := repo.SaveResult("a", napoResult(), 0.3)
	require.NoError(t, err)
	_, err = repo.SaveResult("b", napoResult(), 0.3)
	require.NoError(t, err)

	sites, err := repo.ListSites(Filter{Limit: 2, Offset: 2})
	require.NoError(t, err)
	require.Len(t, sites, 2)
	assert.Equal(t, "a", sites[0].DocumentID)
	assert.Equal(t, "Cuyabeno", sites[0].Name)
	assert.Equal(t, "b", sites[1].DocumentID)
	assert.Equal(t, "Tena", sites[1].Name)

	count, err := repo.CountSites(Filter{DocumentID: "b", Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestListSites_ByCell(t *testing.T) {
	repo := setupTestDB(t)

	_, err := repo.SaveResult("napo", napoResult(), 0.3)
	require.NoError(t, err)

	cell, err := spatial.Point{Lat: 0.0, Lng: -76.2}.Cell(5)
	require.NoError(t, err)

	sites, err := repo.ListSites(Filter{Cell: cell.String()})
	require.NoError(t, err)
	require.Len(t, sites, 1)
	assert.Equal(t, "Cuyabeno", sites[0].Name)

	coarse, err := spatial.Point{Lat: 0.0, Lng: -76.2}.Cell(4)
	require.NoError(t, err)

	_, err = repo.ListSites(Filter{Cell: coarse.String()})
	assert.True(t, errors.Is(err, ErrUnsupportedCell))

	_, err = repo.CountSites(Filter{Cell: "not-a-cell"})
	assert.True(t, errors.Is(err, ErrUnsupportedCell))
}

func TestExportJSON(t *testing.T) {
	repo := setupTestDB(t)

	_, err := repo.SaveResult("napo", napoResult(), 0.5)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, repo.ExportJSON(&buf, Filter{}))

	var got []map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	require.Len(t, got, 2)
	assert.Equal(t, "Tena", got[0]["name"])
	assert.Equal(t, "napo", got[0]["document_id"])
	assert.NotContains(t, got[0], "H3Res3")
}
