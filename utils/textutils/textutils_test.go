// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package textutils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLowerAsciiFolding(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Hello World", "hello world"},
		{"  Spaces  ", "spaces"},
		{"Áéíóú", "aeiou"},
		{"Ñandú", "nandu"},
		{"São Paulo", "sao paulo"},
		{"", ""},
	}

	for _, tc := range tests {
		t.Run(tc.input, func(t *testing.T) {
			assert.Equal(t, tc.expected, LowerASCIIFolding(tc.input))
		})
	}
}

func TestNormalizeName(t *testing.T) {
	assert.Equal(t, "rio napo", NormalizeName("  Río \t NAPO\n"))
	assert.Equal(t, NormalizeName("Yasuní National Park"), NormalizeName("yasuni  national   park"))
}

func TestWindow(t *testing.T) {
	s := "The study site was located near Quito, Ecuador, at high elevation."
	start := 32
	end := start + len("Quito")

	assert.Equal(t, "Quito", s[start:end])
	assert.Equal(t, "Quito", Window(s, start, end, 0))
	assert.Equal(t, "ated near Quito, Ecuador,", Window(s, start, end, 20))
	assert.Equal(t, s, Window(s, start, end, 1000))

	// never splits a multi-byte rune
	u := "área de estudio: Río Napo"
	i := len("área de estudio: ")
	assert.Equal(t, "Río Napo", Window(u, i, len(u), 0))
	assert.NotPanics(t, func() { _ = Window(u, i, len(u), 17) })
}

func TestFormatInt(t *testing.T) {
	tests := []struct {
		input    int64
		expected string
	}{
		{0, "0"},
		{12, "12"},
		{1234, "1,234"},
		{1234567, "1,234,567"},
		{-1, "-1"},
		{-1234, "-1,234"},
		{-123456, "-123,456"},
	}

	for _, tc := range tests {
		t.Run(tc.expected, func(t *testing.T) {
			assert.Equal(t, tc.expected, FormatInt(tc.input))
		})
	}
}
