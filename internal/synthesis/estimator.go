// Package synthesis drives the per-unit pipeline: every sentence of a script
// is synthesized once per configured speed preset, through mark injection,
// the retrying provider call, duration measurement, and timepoint
// reconciliation, into manifest entries.
package synthesis

import (
	"hash/fnv"

	"github.com/withleedh/learning-youtube-sub000/pkg/wordsync"
)

// defaultWordsPerMinute is the speaking pace assumed when the config does not
// set one. 150 wpm sits in the middle of typical synthesized narration.
const defaultWordsPerMinute = 150.0

// EstimateSeconds returns the estimated playback length of text spoken at
// wordsPerMinute, scaled by the rate multiplier. It is the single duration
// estimate used everywhere a clip cannot be measured: word count divided by
// effective words per second, so doubling the rate halves the estimate.
//
// Non-positive wordsPerMinute falls back to the default pace; non-positive
// rate is treated as normal speed.
func EstimateSeconds(text string, wordsPerMinute, rate float64) float64 {
	words := len(wordsync.Words(text))
	if words == 0 {
		return 0
	}
	if wordsPerMinute <= 0 {
		wordsPerMinute = defaultWordsPerMinute
	}
	if rate <= 0 {
		rate = 1.0
	}
	return float64(words) * 60.0 / (wordsPerMinute * rate)
}

// SeedFromTitle derives a stable casting seed from an episode title, so a
// re-run of the same episode reproduces its voice assignments without the
// config pinning a seed explicitly.
func SeedFromTitle(title string) int64 {
	h := fnv.New64a()
	h.Write([]byte(title))
	return int64(h.Sum64())
}
