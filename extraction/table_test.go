// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package extraction

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/jcodagnone/geosites/document"
	"github.com/jcodagnone/geosites/spatial"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindCoordinateColumns(t *testing.T) {
	tests := []struct {
		name    string
		columns []string
		want    CoordinateColumns
	}{
		{
			name:    "plain",
			columns: []string{"site", "lat", "lon"},
			want:    CoordinateColumns{Lat: "lat", Lng: "lon", Site: "site"},
		},
		{
			name:    "decorated",
			columns: []string{"Station name", "Latitude (°S)", "LONGITUDE_dd", "Depth (m)"},
			want:    CoordinateColumns{Lat: "Latitude (°S)", Lng: "LONGITUDE_dd", Site: "Station name", LatHemisphere: 'S'},
		},
		{
			name:    "projected axes",
			columns: []string{"Plot", "X", "Y"},
			want:    CoordinateColumns{Lat: "Y", Lng: "X", Site: "Plot"},
		},
		{
			name:    "combined",
			columns: []string{"Locality", "Lat/Long"},
			want:    CoordinateColumns{Combined: "Lat/Long", Site: "Locality"},
		},
		{
			name:    "latitude only",
			columns: []string{"site", "latitude", "elevation"},
			want:    CoordinateColumns{Lat: "latitude", Site: "site"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FindCoordinateColumns(tt.columns)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("FindCoordinateColumns() mismatch (-want +got):\n%s", diff)
			}
		})
	}

	assert.False(t, FindCoordinateColumns([]string{"site", "latitude"}).Found())
}

func TestTableExtractor_SkipsBadRows(t *testing.T) {
	table := &document.Table{
		Label:   "Table 1",
		Columns: []string{"site", "lat", "lon"},
		Rows: []document.Row{
			{"site": "A", "lat": "10.0", "lon": "20.0"},
			{"site": "B", "lat": "bad", "lon": "20.0"},
		},
	}

	entities := NewTableExtractor().Extract(Unit{Kind: UnitTable, Table: table})
	require.Len(t, entities, 1)

	e := entities[0]
	assert.Equal(t, "A", e.Text)
	assert.Equal(t, SiteName, e.Type)
	assert.Equal(t, MethodTable, e.Method)
	assert.InDelta(t, 0.9, e.Confidence, 1e-9)
	assert.Equal(t, "Table 1", e.Section)
	require.NotNil(t, e.Point)
	assert.Equal(t, spatial.Point{Lat: 10, Lng: 20}, *e.Point)
	assert.Nil(t, e.Cluster)
}

func TestTableExtractor_Placeholders(t *testing.T) {
	table := &document.Table{
		Label:   "Table S1",
		Columns: []string{"Lat", "Lon"},
		Rows: []document.Row{
			{"Lat": "12°18'30\"S", "Lon": "77°W"},
			{"Lat": "95", "Lon": "10"},
			{"Lat": "1,5", "Lon": "-60,25"},
		},
	}

	entities := NewTableExtractor().Extract(Unit{Kind: UnitTable, Section: "Results", Table: table})
	require.Len(t, entities, 2)

	assert.Equal(t, "Table S1 row 1", entities[0].Text)
	assert.Equal(t, CoordinatePair, entities[0].Type)
	assert.Equal(t, "Results", entities[0].Section)
	assert.InDelta(t, -12.308333, entities[0].Point.Lat, 1e-6)
	assert.InDelta(t, -77, entities[0].Point.Lng, 1e-9)

	assert.Equal(t, "Table S1 row 3", entities[1].Text)
	assert.Equal(t, spatial.Point{Lat: 1.5, Lng: -60.25}, *entities[1].Point)
}

func TestTableExtractor_CombinedColumn(t *testing.T) {
	table := &document.Table{
		Columns: []string{"Locality", "Coordinates"},
		Rows: []document.Row{
			{"Locality": "Río Napo", "Coordinates": "0.95 S, 75.4 W"},
			{"Locality": "Tiputini", "Coordinates": "(-0.638, -76.150)"},
			{"Locality": "Unknown", "Coordinates": "n/a"},
		},
	}

	entities := NewTableExtractor().Extract(Unit{Kind: UnitTable, Table: table})
	require.Len(t, entities, 2)

	assert.Equal(t, "Río Napo", entities[0].Text)
	assert.InDelta(t, -0.95, entities[0].Point.Lat, 1e-9)
	assert.Equal(t, "Tiputini", entities[1].Text)
	assert.InDelta(t, -76.15, entities[1].Point.Lng, 1e-9)
	assert.Equal(t, "table", entities[1].Section)
}

func TestTableExtractor_HeaderHemisphere(t *testing.T) {
	table := &document.Table{
		Columns: []string{"Site", "Latitude (°S)", "Longitude [W]"},
		Rows: []document.Row{
			{"Site": "Tena", "Latitude (°S)": "0.99", "Longitude [W]": "77.81"},
			{"Site": "Equator", "Latitude (°S)": "-0.5", "Longitude [W]": "78.5 E"},
			{"Site": "Puyo", "Latitude (°S)": "1°29'", "Longitude [W]": "78°"},
		},
	}

	entities := NewTableExtractor().Extract(Unit{Kind: UnitTable, Table: table})
	require.Len(t, entities, 3)

	assert.Equal(t, spatial.Point{Lat: -0.99, Lng: -77.81}, *entities[0].Point)
	// explicit signs and letters in the cell win over the header
	assert.Equal(t, spatial.Point{Lat: -0.5, Lng: 78.5}, *entities[1].Point)
	assert.InDelta(t, -(1 + 29.0/60), entities[2].Point.Lat, 1e-9)
	assert.InDelta(t, -78, entities[2].Point.Lng, 1e-9)
}

func TestTableExtractor_RowsWithoutColumns(t *testing.T) {
	var doc document.Document
	require.NoError(t, json.Unmarshal([]byte(`{"tables":[{"label":"t","rows":[
		{"site":"A","lat":10.0,"lon":20.0},
		{"site":"B","lat":"bad","lon":20.0}
	]}]}`), &doc))

	entities := NewTableExtractor().Extract(Unit{Kind: UnitTable, Table: &doc.Tables[0]})
	require.Len(t, entities, 1)
	assert.Equal(t, "A", entities[0].Text)
	assert.Equal(t, spatial.Point{Lat: 10, Lng: 20}, *entities[0].Point)
	assert.Equal(t, "t", entities[0].Section)
	assert.Equal(t, "lat: 10; lon: 20; site: A", entities[0].Context)
}

func TestTableExtractor_IgnoresOtherUnits(t *testing.T) {
	x := NewTableExtractor()

	assert.Nil(t, x.Extract(Unit{Kind: UnitSpan, Text: "lat 10.0, lon 20.0"}))
	assert.Nil(t, x.Extract(Unit{Kind: UnitTable}))
	assert.Nil(t, x.Extract(Unit{Kind: UnitTable, Table: &document.Table{Columns: []string{"site", "depth"}}}))
}
