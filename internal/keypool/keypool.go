// Package keypool tracks which API key a provider should use next.
//
// A Pool is an explicit value threaded through provider construction: the
// ordered keys, the set of keys that have hit their quota, and the index of
// the key currently in use. There is no package-level state. Rotation
// progress survives between runs only through explicit Save and Load calls
// at the run boundary; the keys themselves are never written to disk.
//
// Safe for concurrent use.
package keypool

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"slices"
	"sync"
	"time"
)

// ErrExhausted is returned by Current once every key in the pool has been
// marked exhausted.
var ErrExhausted = errors.New("keypool: all keys exhausted")

// Pool is the rotation state for one provider's API keys.
type Pool struct {
	mu        sync.Mutex
	provider  string
	keys      []string
	exhausted map[int]bool
	index     int
}

// New returns a fresh Pool over keys, starting at the first key.
func New(provider string, keys []string) *Pool {
	return &Pool{
		provider:  provider,
		keys:      slices.Clone(keys),
		exhausted: make(map[int]bool, len(keys)),
	}
}

// Provider returns the provider name this pool belongs to.
func (p *Pool) Provider() string { return p.provider }

// Size returns the total number of keys.
func (p *Pool) Size() int { return len(p.keys) }

// Current returns the key in use. It returns ErrExhausted once every key
// has been marked exhausted.
func (p *Pool) Current() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.keys) == 0 || len(p.exhausted) >= len(p.keys) {
		return "", ErrExhausted
	}
	return p.keys[p.index], nil
}

// MarkExhausted records that key hit its quota and, if it was the key in
// use, advances to the next key that still has quota. Marking a key that is
// already exhausted or no longer current is harmless, so concurrent workers
// that saw the same quota error cannot skip keys.
func (p *Pool) MarkExhausted(key string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	i := slices.Index(p.keys, key)
	if i < 0 {
		return
	}
	p.exhausted[i] = true
	if i == p.index {
		p.advanceLocked()
	}
}

// advanceLocked moves index to the next non-exhausted key, if any.
func (p *Pool) advanceLocked() {
	for step := 1; step <= len(p.keys); step++ {
		next := (p.index + step) % len(p.keys)
		if !p.exhausted[next] {
			p.index = next
			return
		}
	}
	// Every key exhausted; Current reports ErrExhausted.
}

// Remaining returns how many keys have not been marked exhausted.
func (p *Pool) Remaining() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.keys) - len(p.exhausted)
}

// Reset clears the exhausted set and returns to the first key. Meant for a
// new billing window, not for mid-run recovery.
func (p *Pool) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.exhausted = make(map[int]bool, len(p.keys))
	p.index = 0
}

// state is the persisted rotation progress. Key material stays out of it;
// keys are identified by position only.
type state struct {
	Provider  string    `json:"provider"`
	KeyCount  int       `json:"key_count"`
	Index     int       `json:"index"`
	Exhausted []int     `json:"exhausted,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Save writes the pool's rotation progress as JSON at path.
func (p *Pool) Save(path string) error {
	p.mu.Lock()
	st := state{
		Provider:  p.provider,
		KeyCount:  len(p.keys),
		Index:     p.index,
		UpdatedAt: time.Now().UTC(),
	}
	for i := range p.keys {
		if p.exhausted[i] {
			st.Exhausted = append(st.Exhausted, i)
		}
	}
	p.mu.Unlock()

	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("keypool: marshal state: %w", err)
	}
	data = append(data, '\n')
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("keypool: write %q: %w", path, err)
	}
	return nil
}

// Load builds a Pool over keys, resuming rotation progress from the file at
// path when it matches the provider and key count. A missing file, or saved
// progress that no longer fits the configured keys, yields a fresh pool.
func Load(path, provider string, keys []string) (*Pool, error) {
	p := New(provider, keys)

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return p, nil
	}
	if err != nil {
		return nil, fmt.Errorf("keypool: read %q: %w", path, err)
	}

	var st state
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("keypool: decode %q: %w", path, err)
	}
	if st.Provider != provider || st.KeyCount != len(keys) {
		// The configured keys changed since the state was saved; the saved
		// indices no longer mean anything.
		return p, nil
	}

	for _, i := range st.Exhausted {
		if i >= 0 && i < len(keys) {
			p.exhausted[i] = true
		}
	}
	if st.Index >= 0 && st.Index < len(keys) {
		p.index = st.Index
	}
	if p.exhausted[p.index] {
		p.advanceLocked()
	}
	return p, nil
}
