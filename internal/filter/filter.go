// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package filter

import (
	"sort"
	"strings"

	"github.com/autobrr/debridauto/internal/catalog"
	"github.com/autobrr/debridauto/internal/domain"
)

// Preferences holds the predicates applied to catalog entries. Year and size
// bounds are inclusive. An empty QualityPreferences list admits every quality;
// a non-empty list excludes entries whose quality is absent from it.
type Preferences struct {
	QualityPreferences []string
	MinYear            int
	MaxYear            int
	MinSizeGB          float64
	MaxSizeGB          float64
	ExcludeKeywords    []string
	IncludeKeywords    []string
}

// FromConfig builds Preferences from the run configuration.
func FromConfig(cfg *domain.Config) Preferences {
	return Preferences{
		QualityPreferences: cfg.QualityPreferences,
		MinYear:            cfg.MinYear,
		MaxYear:            cfg.MaxYear,
		MinSizeGB:          cfg.MinSizeGB,
		MaxSizeGB:          cfg.MaxSizeGB,
		ExcludeKeywords:    cfg.ExcludeKeywords,
		IncludeKeywords:    cfg.IncludeKeywords,
	}
}

// Apply returns the entries that pass every predicate, ordered by quality
// preference rank (best first) with catalog order breaking ties. The input is
// not modified; applying twice yields the same list.
func (p Preferences) Apply(entries []catalog.Entry) []catalog.Entry {
	ranks := p.qualityRanks()

	type ranked struct {
		entry catalog.Entry
		rank  int
	}

	kept := make([]ranked, 0, len(entries))
	for _, e := range entries {
		rank, ok := p.matchQuality(ranks, e.Quality)
		if !ok {
			continue
		}
		if !p.matchYear(e.Year) {
			continue
		}
		if !p.matchSize(e.SizeGB) {
			continue
		}
		if !p.matchKeywords(e.Title) {
			continue
		}
		kept = append(kept, ranked{entry: e, rank: rank})
	}

	sort.SliceStable(kept, func(i, j int) bool {
		return kept[i].rank < kept[j].rank
	})

	out := make([]catalog.Entry, len(kept))
	for i, r := range kept {
		out[i] = r.entry
	}
	return out
}

func (p Preferences) qualityRanks() map[string]int {
	if len(p.QualityPreferences) == 0 {
		return nil
	}
	ranks := make(map[string]int, len(p.QualityPreferences))
	for i, q := range p.QualityPreferences {
		q = strings.ToLower(strings.TrimSpace(q))
		if _, exists := ranks[q]; !exists {
			ranks[q] = i
		}
	}
	return ranks
}

func (p Preferences) matchQuality(ranks map[string]int, quality string) (int, bool) {
	if ranks == nil {
		return 0, true
	}
	rank, ok := ranks[strings.ToLower(strings.TrimSpace(quality))]
	return rank, ok
}

// matchYear treats a zero year as unknown, which passes the window; the
// catalog may carry bare hashes without metadata.
func (p Preferences) matchYear(year int) bool {
	if year == 0 {
		return true
	}
	if p.MinYear != 0 && year < p.MinYear {
		return false
	}
	if p.MaxYear != 0 && year > p.MaxYear {
		return false
	}
	return true
}

func (p Preferences) matchSize(sizeGB float64) bool {
	if sizeGB == 0 {
		return true
	}
	if p.MinSizeGB != 0 && sizeGB < p.MinSizeGB {
		return false
	}
	if p.MaxSizeGB != 0 && sizeGB > p.MaxSizeGB {
		return false
	}
	return true
}

func (p Preferences) matchKeywords(title string) bool {
	lower := strings.ToLower(title)

	for _, kw := range p.ExcludeKeywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" && strings.Contains(lower, kw) {
			return false
		}
	}

	if len(p.IncludeKeywords) == 0 {
		return true
	}
	for _, kw := range p.IncludeKeywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" && strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
