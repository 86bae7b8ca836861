// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package ledger

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileYieldsEmptyLedger(t *testing.T) {
	path := filepath.Join(t.TempDir(), "processed.json")

	l, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 0, l.Len())
}

func TestLoadCorruptFileFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "processed.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestRecordAndPersistRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "processed.json")
	h1 := strings.Repeat("ab12", 10)
	h2 := strings.Repeat("cd34", 10)

	ts := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

	l := New(path)
	l.Record(h1, OutcomeAdded, ts)
	l.Record(h2, OutcomeFailed, ts)
	require.NoError(t, l.Persist())

	reloaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 2, reloaded.Len())

	added, ok := reloaded.Get(h1)
	require.True(t, ok)
	assert.Equal(t, OutcomeAdded, added.Outcome)
	assert.True(t, added.Timestamp.Equal(ts))

	failed, ok := reloaded.Get(h2)
	require.True(t, ok)
	assert.Equal(t, OutcomeFailed, failed.Outcome)
}

func TestBlocksOnlySuccessfulAdds(t *testing.T) {
	l := New(filepath.Join(t.TempDir(), "processed.json"))
	h1 := strings.Repeat("ab12", 10)
	h2 := strings.Repeat("cd34", 10)

	l.Record(h1, OutcomeAdded, time.Now())
	l.Record(h2, OutcomeFailed, time.Now())

	assert.True(t, l.Blocks(h1))
	assert.False(t, l.Blocks(h2))
	assert.True(t, l.Contains(h2))
	assert.False(t, l.Blocks(strings.Repeat("ef56", 10)))
}

func TestHashLookupIsCaseInsensitive(t *testing.T) {
	l := New(filepath.Join(t.TempDir(), "processed.json"))
	lower := strings.Repeat("ab12", 10)

	l.Record(strings.ToUpper(lower), OutcomeAdded, time.Now())

	assert.True(t, l.Blocks(lower))
	assert.True(t, l.Blocks(strings.ToUpper(lower)))
}

func TestLoadLegacyProcessedHashes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "processed.json")
	h1 := strings.Repeat("ab12", 10)
	h2 := strings.Repeat("cd34", 10)

	legacy := map[string]any{
		"processed_hashes": []string{strings.ToUpper(h1), h2, ""},
	}
	data, err := json.Marshal(legacy)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	l, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 2, l.Len())

	// Legacy entries carry no outcome detail and are treated as added
	assert.True(t, l.Blocks(h1))
	assert.True(t, l.Blocks(h2))
}

func TestPersistReplacesExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "processed.json")
	h1 := strings.Repeat("ab12", 10)
	h2 := strings.Repeat("cd34", 10)

	l := New(path)
	l.Record(h1, OutcomeAdded, time.Now())
	require.NoError(t, l.Persist())

	l.Record(h2, OutcomeFailed, time.Now())
	require.NoError(t, l.Persist())

	reloaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 2, reloaded.Len())

	// No temp files left behind
	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, filepath.Base(path), entries[0].Name())
}

func TestPersistCreatesParentDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "processed.json")

	l := New(path)
	l.Record(strings.Repeat("ab12", 10), OutcomeAdded, time.Now())
	require.NoError(t, l.Persist())

	_, err := os.Stat(path)
	assert.NoError(t, err)
}
