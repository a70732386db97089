package manifest

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/withleedh/learning-youtube-sub000/pkg/types"
)

func sampleEntry(id int, speed string, duration float64) Entry {
	return Entry{
		SentenceID: id,
		Text:       "Hello world!",
		Speaker:    "Alex",
		Audio: AudioFile{
			SentenceID: id,
			Speaker:    "Alex",
			Speed:      speed,
			Path:       "out/001_alex_" + speed + ".mp3",
			Duration:   duration,
		},
		Words: []types.WordSync{
			{Word: "Hello", Start: 0, End: 0.52},
			{Word: "world!", Start: 0.52, End: duration},
		},
	}
}

func TestBuilder_OrdersEntries(t *testing.T) {
	b := NewBuilder("conversation", "run-1")

	// Added out of order, as a worker pool would.
	b.Add(1, 0, sampleEntry(2, "slow", 1.0))
	b.Add(0, 2, sampleEntry(1, "fast", 0.8))
	b.Add(0, 0, sampleEntry(1, "slow", 1.5))
	b.Add(1, 1, sampleEntry(2, "normal", 0.9))
	b.Add(0, 1, sampleEntry(1, "normal", 1.2))

	m := b.Build()

	wantOrder := []struct {
		id    int
		speed string
	}{
		{1, "slow"}, {1, "normal"}, {1, "fast"},
		{2, "slow"}, {2, "normal"},
	}
	if len(m.Entries) != len(wantOrder) {
		t.Fatalf("len(entries) = %d, want %d", len(m.Entries), len(wantOrder))
	}
	for i, want := range wantOrder {
		got := m.Entries[i]
		if got.SentenceID != want.id || got.Audio.Speed != want.speed {
			t.Errorf("entry %d = (%d, %s), want (%d, %s)",
				i, got.SentenceID, got.Audio.Speed, want.id, want.speed)
		}
	}

	wantTotal := 1.0 + 0.8 + 1.5 + 0.9 + 1.2
	if math.Abs(m.TotalDuration-wantTotal) > 1e-9 {
		t.Errorf("total duration = %v, want %v", m.TotalDuration, wantTotal)
	}
	if m.Mode != "conversation" || m.RunID != "run-1" {
		t.Errorf("mode/run = %q/%q, want conversation/run-1", m.Mode, m.RunID)
	}
}

func TestBuilder_ConcurrentAdd(t *testing.T) {
	b := NewBuilder("conversation", "run-1")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			b.Add(i, 0, sampleEntry(i+1, "normal", 1.0))
		}(i)
	}
	wg.Wait()

	if b.Len() != 20 {
		t.Fatalf("Len() = %d, want 20", b.Len())
	}
	m := b.Build()
	for i, e := range m.Entries {
		if e.SentenceID != i+1 {
			t.Errorf("entry %d sentence id = %d, want %d", i, e.SentenceID, i+1)
		}
	}
}

func TestWriteRead_RoundTrip(t *testing.T) {
	b := NewBuilder("conversation", "run-42")
	b.Add(0, 0, sampleEntry(1, "slow", 1.5))
	b.Add(0, 1, sampleEntry(1, "normal", 1.2))
	b.Add(1, 0, sampleEntry(2, "slow", 2.1))
	m := b.Build()

	path := filepath.Join(t.TempDir(), "manifest.json")
	if err := Write(path, m); err != nil {
		t.Fatalf("Write: %v", err)
	}

	got, err := Read(path)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}

	if got.Mode != m.Mode || got.RunID != m.RunID {
		t.Errorf("mode/run = %q/%q, want %q/%q", got.Mode, got.RunID, m.Mode, m.RunID)
	}
	if math.Abs(got.TotalDuration-m.TotalDuration) > 1e-9 {
		t.Errorf("total duration = %v, want %v", got.TotalDuration, m.TotalDuration)
	}
	if len(got.Entries) != len(m.Entries) {
		t.Fatalf("len(entries) = %d, want %d", len(got.Entries), len(m.Entries))
	}
	for i := range m.Entries {
		want, have := m.Entries[i], got.Entries[i]
		if have.SentenceID != want.SentenceID ||
			have.Audio.Path != want.Audio.Path ||
			have.Audio.Speed != want.Audio.Speed ||
			math.Abs(have.Audio.Duration-want.Audio.Duration) > 1e-9 {
			t.Errorf("entry %d = %+v, want %+v", i, have, want)
		}
		if len(have.Words) != len(want.Words) {
			t.Errorf("entry %d has %d words, want %d", i, len(have.Words), len(want.Words))
			continue
		}
		for j := range want.Words {
			if have.Words[j] != want.Words[j] {
				t.Errorf("entry %d word %d = %+v, want %+v", i, j, have.Words[j], want.Words[j])
			}
		}
	}
}

func TestWrite_LeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "manifest.json")
	if err := Write(path, NewBuilder("conversation", "r").Build()); err != nil {
		t.Fatalf("Write: %v", err)
	}

	files, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, f := range files {
		if strings.HasPrefix(f.Name(), ".manifest-") {
			t.Errorf("temp file %q left behind", f.Name())
		}
	}
}

func TestRead_Missing(t *testing.T) {
	if _, err := Read(filepath.Join(t.TempDir(), "nope.json")); err == nil {
		t.Error("expected error for missing manifest, got nil")
	}
}
