// Package manifest defines the terminal artifact of a synthesis run: the
// ordered record of every synthesized clip and its word timing, handed to
// the video renderer.
//
// The manifest is the formal boundary between synthesis and rendering. The
// renderer trusts it blindly, so Write/Read form a round-trip contract: a
// written manifest deserializes to equivalent entries. The pipeline writes
// the manifest exactly once per run and never re-reads it mid-run.
package manifest

import (
	"cmp"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/withleedh/learning-youtube-sub000/pkg/types"
)

// AudioFile describes one synthesized clip on disk.
type AudioFile struct {
	SentenceID int    `json:"sentence_id"`
	Speaker    string `json:"speaker"`
	Speed      string `json:"speed"`
	Path       string `json:"path"`

	// Duration is the clip length in seconds, measured from the audio when
	// decodable and estimated otherwise.
	Duration float64 `json:"duration"`
}

// Entry records one successfully synthesized (sentence, speed) unit.
type Entry struct {
	SentenceID int       `json:"sentence_id"`
	Text       string    `json:"text"`
	Speaker    string    `json:"speaker,omitempty"`
	Audio      AudioFile `json:"audio"`

	// Words holds the reconciled per-word intervals, in sentence order.
	Words []types.WordSync `json:"words,omitempty"`
}

// Manifest is the persisted result of one synthesis run.
type Manifest struct {
	// RunID identifies the run that produced this manifest.
	RunID string `json:"run_id,omitempty"`

	// Mode tags what kind of pass produced the manifest ("audio" or
	// "wordsync").
	Mode string `json:"mode"`

	GeneratedAt time.Time `json:"generated_at,omitempty"`

	// TotalDuration is the sum of all entry durations, in seconds.
	TotalDuration float64 `json:"total_duration"`

	// Entries are ordered by script position, then by speed preset order.
	Entries []Entry `json:"entries"`
}

// Builder aggregates completed units into an ordered Manifest. Workers add
// entries as they finish, in any order; Build restores script-then-preset
// order. Safe for concurrent use.
type Builder struct {
	mu    sync.Mutex
	mode  string
	runID string
	units []keyedEntry
}

type keyedEntry struct {
	sentencePos int
	speedPos    int
	entry       Entry
}

// NewBuilder returns a Builder for one run.
func NewBuilder(mode, runID string) *Builder {
	return &Builder{mode: mode, runID: runID}
}

// Add records one completed unit. sentencePos is the sentence's position in
// the script and speedPos the preset's position in the configured order;
// together they define the entry's final place in the manifest.
func (b *Builder) Add(sentencePos, speedPos int, e Entry) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.units = append(b.units, keyedEntry{sentencePos: sentencePos, speedPos: speedPos, entry: e})
}

// Len returns the number of entries added so far.
func (b *Builder) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.units)
}

// Build assembles the ordered manifest and computes the total duration.
// The Builder may continue to be used afterwards; Build reads a snapshot.
func (b *Builder) Build() *Manifest {
	b.mu.Lock()
	units := slices.Clone(b.units)
	b.mu.Unlock()

	slices.SortFunc(units, func(a, c keyedEntry) int {
		if n := cmp.Compare(a.sentencePos, c.sentencePos); n != 0 {
			return n
		}
		return cmp.Compare(a.speedPos, c.speedPos)
	})

	m := &Manifest{
		RunID:       b.runID,
		Mode:        b.mode,
		GeneratedAt: time.Now().UTC(),
		Entries:     make([]Entry, 0, len(units)),
	}
	for _, u := range units {
		m.Entries = append(m.Entries, u.entry)
		m.TotalDuration += u.entry.Audio.Duration
	}
	return m
}

// Write persists m as indented JSON at path. The write lands via a temp
// file and rename, so a crashed or cancelled run leaves either the previous
// manifest or the complete new one, never a torn file.
func Write(path string, m *Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("manifest: marshal: %w", err)
	}
	data = append(data, '\n')

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".manifest-*.json")
	if err != nil {
		return fmt.Errorf("manifest: create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("manifest: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("manifest: close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("manifest: rename into place: %w", err)
	}
	return nil
}

// Read loads a manifest previously written with Write.
func Read(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("manifest: read %q: %w", path, err)
	}
	m := &Manifest{}
	if err := json.Unmarshal(data, m); err != nil {
		return nil, fmt.Errorf("manifest: decode %q: %w", path, err)
	}
	return m, nil
}
