// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package filter

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autobrr/debridauto/internal/catalog"
)

func hashFor(seed string) string {
	return strings.Repeat(seed, 40/len(seed))
}

func entry(hash, title, quality string, year int, sizeGB float64) catalog.Entry {
	return catalog.Entry{Hash: hash, Title: title, Quality: quality, Year: year, SizeGB: sizeGB}
}

func TestApplyQuality(t *testing.T) {
	entries := []catalog.Entry{
		entry(hashFor("a1"), "Movie A 2023 720p", "720p", 2023, 4.0),
		entry(hashFor("b2"), "Movie B 2023 2160p", "2160p", 2023, 20.0),
		entry(hashFor("c3"), "Movie C 2023 480p", "480p", 2023, 1.0),
		entry(hashFor("d4"), "Movie D 2023", "", 2023, 4.0),
	}

	tests := []struct {
		name     string
		prefs    Preferences
		expected []string
	}{
		{
			name:     "ranked_by_preference_order",
			prefs:    Preferences{QualityPreferences: []string{"2160p", "1080p", "720p"}},
			expected: []string{hashFor("b2"), hashFor("a1")},
		},
		{
			name:     "empty_preferences_admit_everything",
			prefs:    Preferences{},
			expected: []string{hashFor("a1"), hashFor("b2"), hashFor("c3"), hashFor("d4")},
		},
		{
			name:     "unknown_quality_excluded_when_preferences_set",
			prefs:    Preferences{QualityPreferences: []string{"720p"}},
			expected: []string{hashFor("a1")},
		},
		{
			name:     "case_insensitive_quality_match",
			prefs:    Preferences{QualityPreferences: []string{"2160P"}},
			expected: []string{hashFor("b2")},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			result := tt.prefs.Apply(entries)

			hashes := make([]string, len(result))
			for i, e := range result {
				hashes[i] = e.Hash
			}
			assert.Equal(t, tt.expected, hashes)
		})
	}
}

func TestApplyYearWindow(t *testing.T) {
	prefs := Preferences{MinYear: 2020, MaxYear: 2024}

	tests := []struct {
		name string
		year int
		kept bool
	}{
		{name: "below_min", year: 2019, kept: false},
		{name: "at_min_inclusive", year: 2020, kept: true},
		{name: "inside_window", year: 2022, kept: true},
		{name: "at_max_inclusive", year: 2024, kept: true},
		{name: "above_max", year: 2025, kept: false},
		{name: "unknown_year_passes", year: 0, kept: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			result := prefs.Apply([]catalog.Entry{entry(hashFor("ab"), "Movie", "", tt.year, 0)})
			assert.Equal(t, tt.kept, len(result) == 1)
		})
	}
}

func TestApplySizeWindow(t *testing.T) {
	prefs := Preferences{MinSizeGB: 0.5, MaxSizeGB: 50.0}

	tests := []struct {
		name   string
		sizeGB float64
		kept   bool
	}{
		{name: "below_min", sizeGB: 0.3, kept: false},
		{name: "at_min_inclusive", sizeGB: 0.5, kept: true},
		{name: "at_max_inclusive", sizeGB: 50.0, kept: true},
		{name: "above_max", sizeGB: 50.1, kept: false},
		{name: "unknown_size_passes", sizeGB: 0, kept: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			result := prefs.Apply([]catalog.Entry{entry(hashFor("cd"), "Movie", "", 0, tt.sizeGB)})
			assert.Equal(t, tt.kept, len(result) == 1)
		})
	}
}

func TestApplyKeywords(t *testing.T) {
	tests := []struct {
		name  string
		prefs Preferences
		title string
		kept  bool
	}{
		{
			name:  "exclude_keyword_case_insensitive",
			prefs: Preferences{ExcludeKeywords: []string{"cam"}},
			title: "Some Movie 2023 HDCAM",
			kept:  false,
		},
		{
			name:  "no_exclude_match",
			prefs: Preferences{ExcludeKeywords: []string{"cam"}},
			title: "Some Movie 2023 BluRay",
			kept:  true,
		},
		{
			name:  "include_requires_one_match",
			prefs: Preferences{IncludeKeywords: []string{"bluray", "web-dl"}},
			title: "Some Movie 2023 WEB-DL",
			kept:  true,
		},
		{
			name:  "include_without_match_excluded",
			prefs: Preferences{IncludeKeywords: []string{"bluray"}},
			title: "Some Movie 2023 HDTV",
			kept:  false,
		},
		{
			name:  "exclude_beats_include",
			prefs: Preferences{ExcludeKeywords: []string{"screener"}, IncludeKeywords: []string{"movie"}},
			title: "Some Movie 2023 Screener",
			kept:  false,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			result := tt.prefs.Apply([]catalog.Entry{entry(hashFor("ef"), tt.title, "", 0, 0)})
			assert.Equal(t, tt.kept, len(result) == 1)
		})
	}
}

func TestApplyOrderingStableWithinRank(t *testing.T) {
	entries := []catalog.Entry{
		entry(hashFor("a1"), "First 1080p", "1080p", 0, 0),
		entry(hashFor("b2"), "First 2160p", "2160p", 0, 0),
		entry(hashFor("c3"), "Second 1080p", "1080p", 0, 0),
		entry(hashFor("d4"), "Second 2160p", "2160p", 0, 0),
	}

	prefs := Preferences{QualityPreferences: []string{"2160p", "1080p"}}
	result := prefs.Apply(entries)

	require.Len(t, result, 4)
	assert.Equal(t, hashFor("b2"), result[0].Hash)
	assert.Equal(t, hashFor("d4"), result[1].Hash)
	assert.Equal(t, hashFor("a1"), result[2].Hash)
	assert.Equal(t, hashFor("c3"), result[3].Hash)
}

func TestApplyIsIdempotentAndNonMutating(t *testing.T) {
	entries := []catalog.Entry{
		entry(hashFor("a1"), "Movie A 720p", "720p", 2023, 4.0),
		entry(hashFor("b2"), "Movie B 2160p", "2160p", 2023, 20.0),
		entry(hashFor("c3"), "Movie C HDCAM", "1080p", 2023, 8.0),
	}
	original := append([]catalog.Entry{}, entries...)

	prefs := Preferences{
		QualityPreferences: []string{"2160p", "1080p", "720p"},
		ExcludeKeywords:    []string{"cam"},
	}

	first := prefs.Apply(entries)
	second := prefs.Apply(first)

	assert.Equal(t, first, second)
	assert.Equal(t, original, entries)
}
