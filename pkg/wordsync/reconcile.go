package wordsync

import (
	"github.com/withleedh/learning-youtube-sub000/pkg/tts"
	"github.com/withleedh/learning-youtube-sub000/pkg/types"
)

// Reconcile combines a word map of N entries, the timepoints a provider
// returned (0 to N of them), and the total audio duration in seconds into N
// WordSync entries in original word order.
//
// Word i starts at its own timepoint when present, else at the uniform
// estimate i*(D/N). It ends at word i+1's timepoint when present, else at
// (i+1)*(D/N); the final word always ends at D. One rule covers both the
// complete and the incomplete case.
//
// The result always satisfies start <= end per entry and end == D for the
// last entry, for any timepoint set and any D >= 0.
func Reconcile(wordMap []WordMapEntry, timepoints []tts.Timepoint, duration float64) []types.WordSync {
	n := len(wordMap)
	if n == 0 {
		return nil
	}

	lookup := make(map[string]float64, len(timepoints))
	for _, tp := range timepoints {
		lookup[tp.Mark] = tp.Seconds
	}

	slot := duration / float64(n)
	out := make([]types.WordSync, n)
	for i, entry := range wordMap {
		start, ok := lookup[MarkName(i)]
		if !ok {
			start = float64(i) * slot
		}

		var end float64
		switch {
		case i == n-1:
			end = duration
		default:
			if v, ok := lookup[MarkName(i + 1)]; ok {
				end = v
			} else {
				end = float64(i+1) * slot
			}
		}

		// Provider offsets are not trusted to be monotonic.
		if i == n-1 {
			if start > end {
				start = end
			}
		} else if end < start {
			end = start
		}

		out[i] = types.WordSync{Word: entry.Word, Start: start, End: end}
	}
	return out
}
