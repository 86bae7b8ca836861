// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/moistari/rls"
	"github.com/rs/zerolog/log"
)

// Entry is a single catalog item. The identifier is a lowercased torrent
// content hash; metadata fields may be zero when the source list carried bare
// hashes only.
type Entry struct {
	Hash    string
	Title   string
	Quality string
	Year    int
	SizeGB  float64
}

// Catalog holds the immutable set of entries loaded from a hash list file.
// Entries keep the file order; identifiers are unique.
type Catalog struct {
	Source        string
	ExtractedDate string
	entries       []Entry
}

// Hashes are SHA-1 hex (40), SHA-256 hex (64), or base32-encoded SHA-1 (32).
var hashRe = regexp.MustCompile(`^(?:[a-f0-9]{40}|[a-f0-9]{64}|[a-z2-7]{32})$`)

// ValidHash reports whether s is an acceptable content identifier after
// lowercasing.
func ValidHash(s string) bool {
	return hashRe.MatchString(strings.ToLower(strings.TrimSpace(s)))
}

type catalogFile struct {
	Source        string   `json:"source"`
	ExtractedDate string   `json:"extracted_date"`
	TotalHashes   int      `json:"total_hashes"`
	Hashes        []record `json:"hashes"`
}

// record accepts both shapes the hash list files come in: a bare identifier
// string, or an object carrying descriptive metadata.
type record struct {
	Hash    string  `json:"hash"`
	Title   string  `json:"title"`
	Quality string  `json:"quality"`
	Year    int     `json:"year"`
	SizeGB  float64 `json:"size_gb"`
}

func (r *record) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*r = record{Hash: s}
		return nil
	}

	type plain record
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*r = record(p)
	return nil
}

// Load reads and validates a hash list catalog file. A missing or malformed
// file is an error; the run cannot proceed without a catalog.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", path, err)
	}

	var file catalogFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse catalog %s: %w", path, err)
	}

	c := &Catalog{
		Source:        file.Source,
		ExtractedDate: file.ExtractedDate,
		entries:       make([]Entry, 0, len(file.Hashes)),
	}

	seen := make(map[string]struct{}, len(file.Hashes))
	skipped := 0
	for _, rec := range file.Hashes {
		hash := strings.ToLower(strings.TrimSpace(rec.Hash))
		if !hashRe.MatchString(hash) {
			// malformed entries are dropped, the rest of the list is still usable
			log.Warn().Str("identifier", rec.Hash).Str("catalog", path).Msg("Skipping invalid identifier")
			skipped++
			continue
		}
		if _, dup := seen[hash]; dup {
			// first occurrence wins
			continue
		}
		seen[hash] = struct{}{}

		c.entries = append(c.entries, enrich(Entry{
			Hash:    hash,
			Title:   strings.TrimSpace(rec.Title),
			Quality: strings.TrimSpace(rec.Quality),
			Year:    rec.Year,
			SizeGB:  rec.SizeGB,
		}))
	}

	if len(c.entries) == 0 {
		return nil, fmt.Errorf("catalog %s contains no identifiers", path)
	}

	// total_hashes is advisory only; the hashes array is ground truth
	if file.TotalHashes != 0 && file.TotalHashes != len(c.entries) {
		log.Warn().
			Int("declared", file.TotalHashes).
			Int("loaded", len(c.entries)).
			Str("catalog", path).
			Msg("Catalog total_hashes does not match hash count, using loaded count")
	}

	log.Info().
		Int("entries", len(c.entries)).
		Int("skipped", skipped).
		Str("source", c.Source).
		Msg("Loaded hash list catalog")

	return c, nil
}

// enrich fills missing metadata by parsing the title as a release name.
func enrich(e Entry) Entry {
	if e.Title == "" {
		e.Title = fmt.Sprintf("Cached Content %s", e.Hash[:8])
		return e
	}

	if e.Quality != "" && e.Year != 0 {
		return e
	}

	r := rls.ParseString(e.Title)
	if e.Quality == "" {
		e.Quality = strings.ToLower(strings.TrimSpace(r.Resolution))
	}
	if e.Year == 0 {
		e.Year = r.Year
	}
	return e
}

// Entries returns the catalog entries in file order. The returned slice is
// shared; callers must treat it as read-only.
func (c *Catalog) Entries() []Entry {
	return c.entries
}

func (c *Catalog) Len() int {
	return len(c.entries)
}
