// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package extraction

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/jcodagnone/geosites/spatial"
)

// Axis selects which bound and hemisphere letters apply when parsing.
type Axis int

const (
	Latitude Axis = iota
	Longitude
)

func (a Axis) String() string {
	if a == Latitude {
		return "latitude"
	}

	return "longitude"
}

var (
	errEmptyCoordinate = errors.New("empty coordinate")
	errBadCoordinate   = errors.New("malformed coordinate")
	errHemisphere      = errors.New("hemisphere does not match axis")
)

var (
	coordNumberRegex = regexp.MustCompile(`[-+]?\d+(?:[.,]\d+)?`)
	coordResidue     = " \t°º˚'′’\"″”"
)

// ParseCoordinate parses one latitude or longitude in decimal degrees
// ("-12.3", "12,3"), with a hemisphere letter before or after ("12.3 S",
// "W 77.02") or in degree-minute-second form ("12°18'30\"S"). Southern and
// western hemispheres yield negative values.
func ParseCoordinate(s string, axis Axis) (float64, error) {
	s = strings.TrimSpace(strings.ReplaceAll(s, "−", "-"))
	if s == "" {
		return 0, errEmptyCoordinate
	}

	var hemisphere byte

	if c := upper(s[0]); isHemisphere(c) {
		hemisphere = c
		s = strings.TrimSpace(s[1:])
	} else if c := upper(s[len(s)-1]); isHemisphere(c) {
		hemisphere = c
		s = strings.TrimSpace(s[:len(s)-1])
	}

	locs := coordNumberRegex.FindAllStringIndex(s, -1)
	if len(locs) == 0 || len(locs) > 3 {
		return 0, fmt.Errorf("%w: %q", errBadCoordinate, s)
	}

	// anything but numbers and degree/minute/second marks is rejected
	prev := 0
	for _, loc := range locs {
		if strings.Trim(s[prev:loc[0]], coordResidue) != "" {
			return 0, fmt.Errorf("%w: %q", errBadCoordinate, s)
		}

		prev = loc[1]
	}

	if strings.Trim(s[prev:], coordResidue) != "" {
		return 0, fmt.Errorf("%w: %q", errBadCoordinate, s)
	}

	parts := make([]float64, len(locs))

	for i, loc := range locs {
		v, err := strconv.ParseFloat(strings.ReplaceAll(s[loc[0]:loc[1]], ",", "."), 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q: %w", errBadCoordinate, s, err)
		}

		if i > 0 && (v < 0 || v >= 60 || strings.ContainsAny(s[loc[0]:loc[1]], "+-")) {
			return 0, fmt.Errorf("%w: minutes/seconds out of range in %q", errBadCoordinate, s)
		}

		parts[i] = v
	}

	negative := math.Signbit(parts[0])
	value := math.Abs(parts[0])

	if len(parts) > 1 {
		value += parts[1] / 60
	}

	if len(parts) > 2 {
		value += parts[2] / 3600
	}

	switch hemisphere {
	case 'N', 'E':
		if negative {
			return 0, fmt.Errorf("%w: %q has both a sign and a hemisphere", errBadCoordinate, s)
		}
	case 'S', 'W':
		if negative {
			return 0, fmt.Errorf("%w: %q has both a sign and a hemisphere", errBadCoordinate, s)
		}

		negative = true
	}

	if hemisphere != 0 && ((axis == Latitude) != (hemisphere == 'N' || hemisphere == 'S')) {
		return 0, fmt.Errorf("%w: %c for %s", errHemisphere, hemisphere, axis)
	}

	if negative {
		value = -value
	}

	limit := 90.0
	if axis == Longitude {
		limit = 180
	}

	if value < -limit || value > limit {
		return 0, fmt.Errorf("%w: %s %f", spatial.ErrOutOfRange, axis, value)
	}

	return value, nil
}

// ParsePoint parses a latitude and longitude pair.
func ParsePoint(lat, lng string) (spatial.Point, error) {
	la, err := ParseCoordinate(lat, Latitude)
	if err != nil {
		return spatial.Point{}, err
	}

	lo, err := ParseCoordinate(lng, Longitude)
	if err != nil {
		return spatial.Point{}, err
	}

	return spatial.NewPoint(la, lo)
}

func upper(c byte) byte {
	if c >= 'a' && c <= 'z' {
		return c - 'a' + 'A'
	}

	return c
}

func isHemisphere(c byte) bool {
	return c == 'N' || c == 'S' || c == 'E' || c == 'W'
}

// CoordinateMatch is a coordinate pair found in free text.
type CoordinateMatch struct {
	Start int
	End   int
	Text  string
	Point spatial.Point
}

const (
	dmsPart = `\d{1,3}(?:[.,]\d+)?(?:\s*[°º˚]\s*(?:\d{1,2}(?:[.,]\d+)?\s*['′’]\s*(?:\d{1,2}(?:[.,]\d+)?\s*(?:["″”]|'')?)?)?)?`
)

var pairPatterns = []*regexp.Regexp{
	// 0°57'S, 75°24'W  |  0.95 S 75.4 W
	regexp.MustCompile(`\b(` + dmsPart + `)\s*([NS])\b[\s,;/]*(` + dmsPart + `)\s*([EW])\b`),
	// lat -0.95, lon -75.4  |  latitude: 12.5° S; longitude: 70.1° W
	regexp.MustCompile(`(?i)\blat(?:itude)?\.?\s*[:=]?\s*([-−]?\d{1,2}(?:[.,]\d+)?\s*[°º]?\s*(?:[NS]\b)?)[\s,;/]+(?:long?(?:itude)?|lng)\.?\s*[:=]?\s*([-−]?\d{1,3}(?:[.,]\d+)?\s*[°º]?\s*(?:[EW]\b)?)`),
	// (-0.950, -75.400)
	regexp.MustCompile(`(?:^|[\s(\[])([-−]?\d{1,2}\.\d{3,})\s*°?\s*[,;]\s*([-−]?\d{1,3}\.\d{3,})\s*°?`),
}

// FindCoordinates returns every well-formed, in-range coordinate pair in the
// text, ordered by position. Overlapping matches keep the earliest pattern.
func FindCoordinates(text string) []CoordinateMatch {
	var matches []CoordinateMatch

	overlaps := func(start, end int) bool {
		for _, m := range matches {
			if start < m.End && end > m.Start {
				return true
			}
		}

		return false
	}

	for i, re := range pairPatterns {
		for _, loc := range re.FindAllStringSubmatchIndex(text, -1) {
			var lat, lng string

			start, end := loc[0], loc[1]

			switch i {
			case 0:
				lat = text[loc[2]:loc[3]] + text[loc[4]:loc[5]]
				lng = text[loc[6]:loc[7]] + text[loc[8]:loc[9]]
			case 1:
				lat = text[loc[2]:loc[3]]
				lng = text[loc[4]:loc[5]]
			default:
				// skip the delimiter consumed before the pair
				lat = text[loc[2]:loc[3]]
				lng = text[loc[4]:loc[5]]
				start = loc[2]
			}

			if overlaps(start, end) {
				continue
			}

			p, err := ParsePoint(lat, lng)
			if err != nil {
				continue
			}

			matches = append(matches, CoordinateMatch{
				Start: start,
				End:   end,
				Text:  strings.TrimSpace(text[start:end]),
				Point: p,
			})
		}
	}

	sort.Slice(matches, func(i, j int) bool { return matches[i].Start < matches[j].Start })

	return matches
}
