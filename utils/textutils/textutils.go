// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

// Package textutils provides string normalization and formatting helpers.
package textutils

import (
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// LowerASCIIFolding normalizes a string by removing accents, lowercasing, and trimming spaces.
func LowerASCIIFolding(s string) string {
	s, _, _ = transform.String(
		transform.Chain(
			norm.NFD,
			runes.Remove(runes.In(unicode.Mn)),
			norm.NFC,
		),
		strings.TrimSpace(strings.ToLower(s)),
	)

	return s
}

// CollapseSpaces replaces every run of whitespace with a single space.
func CollapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// NormalizeName folds a place name into the form used for lookups and
// comparisons: accent-free, lowercase, single spaced.
func NormalizeName(s string) string {
	return CollapseSpaces(LowerASCIIFolding(s))
}

// Window returns the text surrounding s[start:end], extending up to size/2
// bytes on each side and snapped to rune boundaries.
func Window(s string, start, end, size int) string {
	if size <= 0 {
		return s[start:end]
	}

	half := size / 2

	from := max(0, start-half)
	for from > 0 && !utf8Start(s[from]) {
		from--
	}

	to := min(len(s), end+half)
	for to < len(s) && !utf8Start(s[to]) {
		to++
	}

	return CollapseSpaces(s[from:to])
}

func utf8Start(b byte) bool {
	return b&0xC0 != 0x80
}

// FormatInt formats an integer with commas for human readability.
func FormatInt(n int64) string {
	in := strconv.FormatInt(n, 10)

	numOfDigits := len(in)
	if n < 0 {
		numOfDigits-- // First character is the - sign (not a digit)
	}

	numOfCommas := (numOfDigits - 1) / 3

	out := make([]byte, len(in)+numOfCommas)
	if n < 0 {
		in, out[0] = in[1:], '-'
	}

	for i, j, k := len(in)-1, len(out)-1, 0; ; i, j = i-1, j-1 {
		out[j] = in[i]
		if i == 0 {
			return string(out)
		}

		if k++; k == 3 {
			j, k = j-1, 0
			out[j] = ','
		}
	}
}
