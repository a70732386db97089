package keypool

import (
	"errors"
	"path/filepath"
	"testing"
)

func TestPool_CurrentStartsAtFirstKey(t *testing.T) {
	p := New("google", []string{"key-a", "key-b", "key-c"})

	key, err := p.Current()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if key != "key-a" {
		t.Errorf("Current() = %q, want key-a", key)
	}
}

func TestPool_MarkExhaustedAdvances(t *testing.T) {
	p := New("google", []string{"key-a", "key-b", "key-c"})

	p.MarkExhausted("key-a")
	key, err := p.Current()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if key != "key-b" {
		t.Errorf("Current() = %q, want key-b after exhausting key-a", key)
	}
	if p.Remaining() != 2 {
		t.Errorf("Remaining() = %d, want 2", p.Remaining())
	}
}

func TestPool_MarkExhaustedIsIdempotent(t *testing.T) {
	p := New("google", []string{"key-a", "key-b", "key-c"})

	// Two workers report the same stale key; the second report must not
	// advance past key-b.
	p.MarkExhausted("key-a")
	p.MarkExhausted("key-a")

	key, _ := p.Current()
	if key != "key-b" {
		t.Errorf("Current() = %q, want key-b", key)
	}
}

func TestPool_MarkExhaustedNonCurrent(t *testing.T) {
	p := New("google", []string{"key-a", "key-b", "key-c"})

	// Exhausting a key that is not in use must not move the index.
	p.MarkExhausted("key-c")
	key, _ := p.Current()
	if key != "key-a" {
		t.Errorf("Current() = %q, want key-a", key)
	}

	// When rotation reaches it, the exhausted key is skipped.
	p.MarkExhausted("key-b")
	p.MarkExhausted("key-a")
	if _, err := p.Current(); !errors.Is(err, ErrExhausted) {
		t.Errorf("Current() err = %v, want ErrExhausted", err)
	}
}

func TestPool_AllExhausted(t *testing.T) {
	p := New("google", []string{"key-a", "key-b"})

	p.MarkExhausted("key-a")
	p.MarkExhausted("key-b")

	if _, err := p.Current(); !errors.Is(err, ErrExhausted) {
		t.Errorf("Current() err = %v, want ErrExhausted", err)
	}
	if p.Remaining() != 0 {
		t.Errorf("Remaining() = %d, want 0", p.Remaining())
	}
}

func TestPool_EmptyKeys(t *testing.T) {
	p := New("google", nil)
	if _, err := p.Current(); !errors.Is(err, ErrExhausted) {
		t.Errorf("Current() err = %v, want ErrExhausted for empty pool", err)
	}
}

func TestPool_Reset(t *testing.T) {
	p := New("google", []string{"key-a", "key-b"})
	p.MarkExhausted("key-a")
	p.MarkExhausted("key-b")

	p.Reset()

	key, err := p.Current()
	if err != nil {
		t.Fatalf("unexpected error after reset: %v", err)
	}
	if key != "key-a" {
		t.Errorf("Current() = %q, want key-a after reset", key)
	}
}

func TestPool_SaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keypool.json")
	keys := []string{"key-a", "key-b", "key-c"}

	p := New("google", keys)
	p.MarkExhausted("key-a")
	if err := p.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := Load(path, "google", keys)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	key, err := loaded.Current()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if key != "key-b" {
		t.Errorf("Current() = %q, want key-b after reload", key)
	}
	if loaded.Remaining() != 2 {
		t.Errorf("Remaining() = %d, want 2", loaded.Remaining())
	}
}

func TestLoad_MissingFileYieldsFreshPool(t *testing.T) {
	loaded, err := Load(filepath.Join(t.TempDir(), "absent.json"), "google", []string{"key-a"})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if key, _ := loaded.Current(); key != "key-a" {
		t.Errorf("Current() = %q, want key-a", key)
	}
}

func TestLoad_KeySetChangedYieldsFreshPool(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keypool.json")

	p := New("google", []string{"key-a", "key-b"})
	p.MarkExhausted("key-a")
	if err := p.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	// One extra key configured since the save: stale indices are dropped.
	loaded, err := Load(path, "google", []string{"key-a", "key-b", "key-c"})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Remaining() != 3 {
		t.Errorf("Remaining() = %d, want 3 (fresh pool)", loaded.Remaining())
	}

	// Same for a provider mismatch.
	loaded, err = Load(path, "elevenlabs", []string{"key-a", "key-b"})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Remaining() != 2 {
		t.Errorf("Remaining() = %d, want 2 (fresh pool)", loaded.Remaining())
	}
}

func TestLoad_SavedIndexOnExhaustedKeyAdvances(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keypool.json")
	keys := []string{"key-a", "key-b", "key-c"}

	p := New("google", keys)
	p.MarkExhausted("key-b")
	p.MarkExhausted("key-c")
	if err := p.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := Load(path, "google", keys)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	key, err := loaded.Current()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if key != "key-a" {
		t.Errorf("Current() = %q, want key-a", key)
	}
}
