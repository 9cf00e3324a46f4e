// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package extraction

import (
	"strings"

	"github.com/jcodagnone/geosites/utils/textutils"
)

// DefaultContextWindow is the number of characters kept around a mention.
const DefaultContextWindow = 200

// DefaultKeywords raise the confidence of mentions whose context reads like
// a site description.
var DefaultKeywords = []string{
	"study area", "study site", "sampling", "sampled", "collected",
	"located", "station", "plot", "transect", "field site",
}

// TextExtractor finds coordinate pairs and place-name mentions in spans and
// titles.
type TextExtractor struct {
	Recognizer    Recognizer
	ContextWindow int
	Keywords      []string
}

// NewTextExtractor returns an extractor using recognizer for place names.
// A nil recognizer disables place-name extraction, leaving coordinates only.
func NewTextExtractor(recognizer Recognizer, contextWindow int) *TextExtractor {
	return &TextExtractor{
		Recognizer:    recognizer,
		ContextWindow: contextWindow,
		Keywords:      DefaultKeywords,
	}
}

// Extract implements Extractor for span and title units.
func (x *TextExtractor) Extract(u Unit) []*GeoEntity {
	if u.Kind != UnitSpan && u.Kind != UnitTitle {
		return nil
	}

	text := u.Text
	if strings.TrimSpace(text) == "" {
		return nil
	}

	section := u.Section
	if u.Kind == UnitTitle {
		section = "title"
	}

	var entities []*GeoEntity

	coords := FindCoordinates(text)
	for _, m := range coords {
		p := m.Point
		context := textutils.Window(text, m.Start, m.End, x.ContextWindow)

		entities = append(entities, &GeoEntity{
			Text:       m.Text,
			Type:       CoordinatePair,
			Section:    section,
			Confidence: x.confidence(RegexConfidence, u.Boost, context),
			Method:     MethodRegex,
			Context:    context,
			Point:      &p,
		})
	}

	if x.Recognizer == nil {
		return entities
	}

	method, base := MethodNER, NERConfidence
	if u.Kind == UnitTitle {
		method, base = MethodTitle, TitleConfidence
	}

	for _, m := range x.Recognizer.Recognize(text) {
		if insideAny(m, coords) {
			continue
		}

		context := textutils.Window(text, m.Start, m.End, x.ContextWindow)

		entities = append(entities, &GeoEntity{
			Text:       m.Text,
			Type:       PlaceName,
			Section:    section,
			Confidence: x.confidence(base, u.Boost, context),
			Method:     method,
			Context:    context,
		})
	}

	return entities
}

func (x *TextExtractor) confidence(base, boost float64, context string) float64 {
	c := base + boost

	folded := textutils.NormalizeName(context)
	for _, k := range x.Keywords {
		if strings.Contains(folded, k) {
			c += ContextBoost

			break
		}
	}

	return clampConfidence(c)
}

func insideAny(m Mention, coords []CoordinateMatch) bool {
	for _, c := range coords {
		if m.Start < c.End && m.End > c.Start {
			return true
		}
	}

	return false
}
