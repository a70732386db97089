// Package script loads and validates the dialogue script consumed by the
// synthesis pipeline.
//
// A script is a JSON document produced upstream (episode generation is a
// separate stage) holding ordered sentences, each with a positive id, a
// speaker tag, and raw text. Scripts are immutable once loaded; the pipeline
// never writes them back.
package script

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
)

// Sentence is one line of dialogue. IDs are positive and unique within a
// script; order in the file is the synthesis and manifest order.
type Sentence struct {
	ID      int    `json:"id"`
	Speaker string `json:"speaker"`
	Text    string `json:"text"`
}

// Script is the parsed episode script.
type Script struct {
	// Title names the episode. Informational only.
	Title string `json:"title,omitempty"`

	Sentences []Sentence `json:"sentences"`
}

// Load reads the JSON script file at path and returns a validated [Script].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Script, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("script: open %q: %w", path, err)
	}
	defer f.Close()

	s, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("script: parse %q: %w", path, err)
	}
	return s, nil
}

// LoadFromReader decodes a JSON script from r and validates the result.
// Useful in tests where scripts are constructed from string literals.
func LoadFromReader(r io.Reader) (*Script, error) {
	s := &Script{}
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(s); err != nil {
		return nil, fmt.Errorf("script: decode json: %w", err)
	}
	if err := Validate(s); err != nil {
		return nil, err
	}
	return s, nil
}

// Validate checks that s contains a coherent set of sentences.
// It returns a joined error listing all validation failures found.
func Validate(s *Script) error {
	var errs []error

	if len(s.Sentences) == 0 {
		errs = append(errs, errors.New("script has no sentences"))
	}

	idsSeen := make(map[int]int, len(s.Sentences))
	for i, sent := range s.Sentences {
		prefix := fmt.Sprintf("sentences[%d]", i)
		if sent.ID <= 0 {
			errs = append(errs, fmt.Errorf("%s.id %d must be positive", prefix, sent.ID))
		} else {
			if prev, ok := idsSeen[sent.ID]; ok {
				errs = append(errs, fmt.Errorf("%s.id %d is a duplicate of sentences[%d]", prefix, sent.ID, prev))
			}
			idsSeen[sent.ID] = i
		}
		if sent.Speaker == "" {
			errs = append(errs, fmt.Errorf("%s.speaker is required", prefix))
		}
		if sent.Text == "" {
			errs = append(errs, fmt.Errorf("%s.text is required", prefix))
		}
	}

	return errors.Join(errs...)
}

// Speakers returns the distinct speaker tags in first-appearance order.
func (s *Script) Speakers() []string {
	seen := make(map[string]bool, 2)
	var out []string
	for _, sent := range s.Sentences {
		if !seen[sent.Speaker] {
			seen[sent.Speaker] = true
			out = append(out, sent.Speaker)
		}
	}
	return out
}
