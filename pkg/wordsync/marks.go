// Package wordsync produces marked SSML for timepoint-capable providers and
// reconstructs per-word timing intervals from whatever timepoints come back.
//
// The two halves share one marker naming scheme: word i carries the marker
// "index_i". Injection happens before a synthesis call; reconciliation after,
// with estimation filling any gaps the provider left. Incomplete timepoint
// data is expected and is never an error.
package wordsync

import (
	"strconv"
	"strings"
)

// MarkPrefix is the marker-name prefix. Word i is marked "index_i".
const MarkPrefix = "index_"

// WordMapEntry ties one marker to the literal word it precedes. The map is
// built per synthesis call and discarded after reconciliation.
type WordMapEntry struct {
	// Mark is the marker id, "index_0" through "index_{N-1}".
	Mark string

	// Word is the literal word with its punctuation attached.
	Word string

	// Index is the word's position in the sentence, starting at 0.
	Index int
}

// MarkName returns the marker id for word position i.
func MarkName(i int) string {
	return MarkPrefix + strconv.Itoa(i)
}

// Words splits text into its whitespace-delimited words. Punctuation stays
// attached to its word.
func Words(text string) []string {
	return strings.Fields(text)
}

var ssmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&apos;",
)

// EscapeText escapes the five XML special characters so arbitrary sentence
// text can be embedded in an SSML document.
func EscapeText(text string) string {
	return ssmlEscaper.Replace(text)
}

// InjectMarks turns sentence text into a <speak> document with one uniquely
// named marker immediately before each word, and returns the word map
// alongside it. The map has exactly one entry per word, with strictly
// sequential marker ids starting at index_0.
//
// Blank text yields a nil map and a minimal valid envelope.
func InjectMarks(text string) (string, []WordMapEntry) {
	words := Words(text)
	if len(words) == 0 {
		return "<speak></speak>", nil
	}

	entries := make([]WordMapEntry, len(words))
	var b strings.Builder
	b.WriteString("<speak>")
	for i, w := range words {
		if i > 0 {
			b.WriteByte(' ')
		}
		name := MarkName(i)
		b.WriteString(`<mark name="`)
		b.WriteString(name)
		b.WriteString(`"/>`)
		b.WriteString(ssmlEscaper.Replace(w))
		entries[i] = WordMapEntry{Mark: name, Word: w, Index: i}
	}
	b.WriteString("</speak>")
	return b.String(), entries
}
