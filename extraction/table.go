// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package extraction

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/jcodagnone/geosites/document"
	"github.com/jcodagnone/geosites/spatial"
	"github.com/jcodagnone/geosites/utils/textutils"
)

var (
	latitudeWords  = map[string]bool{"lat": true, "latitude": true, "latitud": true, "breitengrad": true}
	longitudeWords = map[string]bool{"lon": true, "long": true, "lng": true, "longitude": true, "longitud": true}
	combinedWords  = map[string]bool{
		"coordinates": true, "coordinate": true, "coords": true, "coord": true,
		"gps": true, "latlon": true, "latlong": true, "latlng": true, "coordenadas": true,
	}
	siteWords = map[string]bool{
		"site": true, "sites": true, "station": true, "locality": true, "location": true,
		"plot": true, "name": true, "lake": true, "river": true, "stream": true,
		"transect": true, "population": true, "sample": true, "localidad": true, "sitio": true,
	}
)

var (
	parenRegex    = regexp.MustCompile(`\([^)]*\)|\[[^\]]*\]`)
	nonAlnumRegex = regexp.MustCompile(`[^a-z0-9]+`)
)

// CoordinateColumns names the columns of a table that carry location data.
// Lat and Lng are empty when the table has no separate axis columns; Combined
// is a single "lat, lon" column used only in that case.
//
// LatHemisphere and LngHemisphere hold a hemisphere letter written in the
// header ("Latitude (°S)"); it applies to cells without a sign or letter.
type CoordinateColumns struct {
	Lat           string
	Lng           string
	Combined      string
	Site          string
	LatHemisphere byte
	LngHemisphere byte
}

// Found reports whether rows of the table can yield points.
func (c CoordinateColumns) Found() bool {
	return (c.Lat != "" && c.Lng != "") || c.Combined != ""
}

// headerHemisphere returns the single hemisphere letter found in a header,
// decorations included, when it fits axis.
func headerHemisphere(name string, axis Axis) byte {
	folded := nonAlnumRegex.ReplaceAllString(textutils.LowerASCIIFolding(name), " ")

	var found byte

	for _, t := range strings.Fields(folded) {
		if len(t) != 1 {
			continue
		}

		c := upper(t[0])

		switch {
		case axis == Latitude && (c == 'N' || c == 'S'), axis == Longitude && (c == 'E' || c == 'W'):
			if found != 0 && found != c {
				return 0
			}

			found = c
		}
	}

	return found
}

// withHemisphere appends h to an unsigned cell carrying no hemisphere.
func withHemisphere(cell string, h byte) string {
	cell = strings.TrimSpace(cell)
	if h == 0 || cell == "" {
		return cell
	}

	if strings.HasPrefix(cell, "-") || strings.HasPrefix(cell, "+") || strings.HasPrefix(cell, "−") {
		return cell
	}

	if isHemisphere(upper(cell[0])) || isHemisphere(upper(cell[len(cell)-1])) {
		return cell
	}

	return cell + " " + string(h)
}

func columnTokens(name string) []string {
	folded := parenRegex.ReplaceAllString(textutils.LowerASCIIFolding(name), " ")

	return strings.Fields(nonAlnumRegex.ReplaceAllString(folded, " "))
}

// FindCoordinateColumns matches column names against the latitude,
// longitude and site vocabularies. Case, accents, units in parentheses and
// punctuation are ignored: "Latitude (°S)", "LAT_dd" and "y" all match.
func FindCoordinateColumns(columns []string) CoordinateColumns {
	var cc CoordinateColumns

	for _, col := range columns {
		tokens := columnTokens(col)
		if len(tokens) == 0 {
			continue
		}

		isLat := tokens[0] == "y" || anyIn(tokens, latitudeWords)
		isLng := tokens[0] == "x" || anyIn(tokens, longitudeWords)
		isCombined := combinedWords[strings.Join(tokens, "")] || anyIn(tokens, combinedWords) || (isLat && isLng)

		switch {
		case isCombined:
			if cc.Combined == "" {
				cc.Combined = col
			}
		case isLat:
			if cc.Lat == "" {
				cc.Lat = col
				cc.LatHemisphere = headerHemisphere(col, Latitude)
			}
		case isLng:
			if cc.Lng == "" {
				cc.Lng = col
				cc.LngHemisphere = headerHemisphere(col, Longitude)
			}
		case cc.Site == "" && anyIn(tokens, siteWords):
			cc.Site = col
		}
	}

	if cc.Lat != "" && cc.Lng != "" {
		cc.Combined = ""
	} else if cc.Combined != "" {
		cc.Lat, cc.Lng = "", ""
		cc.LatHemisphere, cc.LngHemisphere = 0, 0
	}

	return cc
}

func anyIn(tokens []string, words map[string]bool) bool {
	for _, t := range tokens {
		if words[t] {
			return true
		}
	}

	return false
}

// TableExtractor emits one entity per table row holding a valid point.
type TableExtractor struct{}

// NewTableExtractor returns a TableExtractor.
func NewTableExtractor() *TableExtractor {
	return &TableExtractor{}
}

// Extract implements Extractor for table units. Rows whose cells don't parse
// or fall out of range are skipped.
func (x *TableExtractor) Extract(u Unit) []*GeoEntity {
	if u.Kind != UnitTable || u.Table == nil {
		return nil
	}

	columns := u.Table.ColumnNames()

	cols := FindCoordinateColumns(columns)
	if !cols.Found() {
		return nil
	}

	label := u.Table.Label
	if label == "" {
		label = u.Section
	}

	if label == "" {
		label = "table"
	}

	section := u.Section
	if section == "" {
		section = label
	}

	var entities []*GeoEntity

	for i, row := range u.Table.Rows {
		p, err := rowPoint(cols, row)
		if err != nil {
			continue
		}

		text, kind := strings.TrimSpace(row[cols.Site]), SiteName
		if cols.Site == "" || text == "" {
			text, kind = fmt.Sprintf("%s row %d", label, i+1), CoordinatePair
		}

		entities = append(entities, &GeoEntity{
			Text:       text,
			Type:       kind,
			Section:    section,
			Confidence: clampConfidence(TableConfidence + u.Boost),
			Method:     MethodTable,
			Context:    rowContext(columns, row),
			Point:      &p,
		})
	}

	return entities
}

func rowPoint(cols CoordinateColumns, row document.Row) (spatial.Point, error) {
	if cols.Combined == "" {
		return ParsePoint(
			withHemisphere(row[cols.Lat], cols.LatHemisphere),
			withHemisphere(row[cols.Lng], cols.LngHemisphere),
		)
	}

	cell := row[cols.Combined]

	for _, sep := range []string{";", ",", "/"} {
		if lat, lng, ok := strings.Cut(cell, sep); ok {
			if p, err := ParsePoint(lat, lng); err == nil {
				return p, nil
			}
		}
	}

	if m := FindCoordinates(cell); len(m) > 0 {
		return m[0].Point, nil
	}

	return spatial.Point{}, fmt.Errorf("%w: %q", errBadCoordinate, cell)
}

func rowContext(columns []string, row document.Row) string {
	parts := make([]string, 0, len(columns))

	for _, c := range columns {
		if v := row[c]; v != "" {
			parts = append(parts, c+": "+v)
		}
	}

	return strings.Join(parts, "; ")
}
