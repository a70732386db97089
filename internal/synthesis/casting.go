package synthesis

import (
	"fmt"
	"math/rand/v2"

	"github.com/withleedh/learning-youtube-sub000/internal/config"
	"github.com/withleedh/learning-youtube-sub000/pkg/types"
)

// Cast maps speaker names to the voice profiles chosen for one episode. The
// cast is computed once before any synthesis call and shared read-only by
// every worker; the same speaker keeps the same voice and pitch across all
// sentences and speeds of the run.
type Cast map[string]types.VoiceProfile

// SelectCast draws one voice per speaker from that speaker's configured voice
// list, using a deterministic RNG seeded with seed. The same seed and speaker
// configuration always produce the same cast.
//
// Speakers are processed in configuration order so the draw sequence is
// stable. A speaker with no voices configured is an error; the config
// validator normally rejects that earlier.
func SelectCast(speakers []config.SpeakerConfig, providerName string, seed int64) (Cast, error) {
	rng := rand.New(rand.NewPCG(uint64(seed), uint64(seed)>>1))

	cast := make(Cast, len(speakers))
	for _, sp := range speakers {
		if len(sp.Voices) == 0 {
			return nil, fmt.Errorf("synthesis: speaker %q has no voices to cast from", sp.Name)
		}
		id := sp.Voices[rng.IntN(len(sp.Voices))]
		cast[sp.Name] = types.VoiceProfile{
			ID:         id,
			Name:       id,
			Provider:   providerName,
			Gender:     sp.Gender,
			PitchShift: sp.PitchShift,
		}
	}
	return cast, nil
}

// Voice returns the profile cast for speaker. The second return is false for
// speakers outside the cast.
func (c Cast) Voice(speaker string) (types.VoiceProfile, bool) {
	v, ok := c[speaker]
	return v, ok
}
