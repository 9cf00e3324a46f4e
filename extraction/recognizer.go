// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package extraction

import (
	"regexp"
	"strings"
)

// Mention is a place-name occurrence inside a text, as byte offsets.
type Mention struct {
	Start int
	End   int
	Text  string
}

// Recognizer finds place-name mentions in free text. It stands in for the
// named-entity recognition model, which lives outside this module.
type Recognizer interface {
	Recognize(text string) []Mention
}

// PatternRecognizer finds capitalized toponym phrases introduced by a
// locative preposition ("near Tena", "in the Gulf of Guayaquil").
type PatternRecognizer struct {
	// Stopwords are capitalized words that never start a place name.
	Stopwords map[string]bool
}

var mentionRegex = regexp.MustCompile(
	`\b(?:[Ii]n|[Nn]ear|[Aa]t|[Ff]rom|[Aa]round|[Oo]ff|of|[Ww]ithin|[Aa]long|[Nn]orth of|[Ss]outh of|[Ee]ast of|[Ww]est of)\s+(?:the\s+)?` +
		`(\p{Lu}[\p{L}'’\-]+(?:\s+(?:(?:de|del|da|do|dos|das|la|las|los|el|of|the)\s+)?\p{Lu}[\p{L}'’\-]+)*)`,
)

// DefaultStopwords lists the capitalized words the pattern would otherwise
// pick up from academic prose.
var DefaultStopwords = map[string]bool{
	"The": true, "This": true, "These": true, "That": true, "Those": true,
	"Table": true, "Tables": true, "Fig": true, "Figure": true, "Figures": true,
	"Appendix": true, "Supplementary": true, "Section": true, "Eq": true, "Equation": true,
	"We": true, "Our": true, "All": true, "Each": true, "Both": true,
	"January": true, "February": true, "March": true, "April": true, "May": true, "June": true,
	"July": true, "August": true, "September": true, "October": true, "November": true, "December": true,
	"Spring": true, "Summer": true, "Autumn": true, "Winter": true,
	"Methods": true, "Results": true, "Discussion": true, "Introduction": true,
	"Materials": true, "Abstract": true, "Conclusions": true,
	"University": true, "Institute": true, "Department": true, "Laboratory": true,
}

// NewPatternRecognizer returns a recognizer using DefaultStopwords.
func NewPatternRecognizer() *PatternRecognizer {
	return &PatternRecognizer{Stopwords: DefaultStopwords}
}

// Recognize implements Recognizer.
func (r *PatternRecognizer) Recognize(text string) []Mention {
	var mentions []Mention

	for _, loc := range mentionRegex.FindAllStringSubmatchIndex(text, -1) {
		start := loc[2]
		name := text[start:loc[3]]

		first, _, _ := strings.Cut(name, " ")
		if r.Stopwords[first] {
			continue
		}

		// "Napo River’s" → "Napo River"
		name = strings.TrimSuffix(strings.TrimSuffix(name, "'s"), "’s")
		name = strings.TrimRight(name, "-'’")

		if len(name) < 3 {
			continue
		}

		mentions = append(mentions, Mention{Start: start, End: start + len(name), Text: name})
	}

	return mentions
}
