// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package ledger

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Outcome classifies how an identifier was handled.
type Outcome string

const (
	OutcomeAdded            Outcome = "added"
	OutcomeFailed           Outcome = "failed"
	OutcomeSkippedDuplicate Outcome = "skipped_duplicate"
	OutcomeSkippedFiltered  Outcome = "skipped_filtered"
)

// Entry records the outcome of a previously processed identifier.
type Entry struct {
	Outcome   Outcome   `json:"outcome"`
	Timestamp time.Time `json:"timestamp"`
}

// Ledger is the durable record of processed identifiers. It is loaded once
// per run, mutated in memory, and persisted as a whole-file atomic overwrite.
type Ledger struct {
	path    string
	entries map[string]Entry
}

type ledgerFile struct {
	Entries     map[string]Entry `json:"entries"`
	LastUpdated time.Time        `json:"last_updated"`
	Total       int              `json:"total"`

	// ProcessedHashes is the legacy flat-list format; entries load as added.
	ProcessedHashes []string `json:"processed_hashes,omitempty"`
}

// New returns an empty ledger backed by path.
func New(path string) *Ledger {
	return &Ledger{
		path:    path,
		entries: make(map[string]Entry),
	}
}

// Load reads the backing file. A missing file yields an empty ledger; a
// corrupt file is an error so a run never silently forgets history.
func Load(path string) (*Ledger, error) {
	l := New(path)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return l, nil
		}
		return nil, errors.Wrapf(err, "read ledger %s", path)
	}

	var file ledgerFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, errors.Wrapf(err, "parse ledger %s", path)
	}

	for hash, entry := range file.Entries {
		l.entries[strings.ToLower(hash)] = entry
	}
	for _, hash := range file.ProcessedHashes {
		hash = strings.ToLower(strings.TrimSpace(hash))
		if hash == "" {
			continue
		}
		if _, ok := l.entries[hash]; !ok {
			l.entries[hash] = Entry{Outcome: OutcomeAdded}
		}
	}

	log.Debug().Int("entries", len(l.entries)).Str("path", path).Msg("Loaded ledger")
	return l, nil
}

// Contains reports whether the identifier has any recorded outcome.
func (l *Ledger) Contains(hash string) bool {
	_, ok := l.entries[strings.ToLower(hash)]
	return ok
}

// Blocks reports whether the identifier must not be resubmitted. Only a
// successful add blocks; failed items stay eligible for the next run.
func (l *Ledger) Blocks(hash string) bool {
	entry, ok := l.entries[strings.ToLower(hash)]
	return ok && entry.Outcome == OutcomeAdded
}

// Get returns the recorded entry for an identifier, if any.
func (l *Ledger) Get(hash string) (Entry, bool) {
	entry, ok := l.entries[strings.ToLower(hash)]
	return entry, ok
}

// Record stores an outcome for an identifier, replacing any prior entry.
func (l *Ledger) Record(hash string, outcome Outcome, ts time.Time) {
	l.entries[strings.ToLower(hash)] = Entry{Outcome: outcome, Timestamp: ts}
}

func (l *Ledger) Len() int {
	return len(l.entries)
}

// Persist writes the full ledger to the backing file via a temp file and
// rename, so a crash mid-write never corrupts existing history.
func (l *Ledger) Persist() error {
	file := ledgerFile{
		Entries:     l.entries,
		LastUpdated: time.Now().UTC(),
		Total:       len(l.entries),
	}

	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode ledger")
	}

	dir := filepath.Dir(l.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Wrapf(err, "create ledger directory %s", dir)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(l.path)+".tmp-*")
	if err != nil {
		return errors.Wrap(err, "create ledger temp file")
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errors.Wrap(err, "write ledger temp file")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return errors.Wrap(err, "close ledger temp file")
	}

	if err := os.Rename(tmpName, l.path); err != nil {
		os.Remove(tmpName)
		return errors.Wrapf(err, "replace ledger %s", l.path)
	}

	log.Debug().Int("entries", len(l.entries)).Str("path", l.path).Msg("Persisted ledger")
	return nil
}
