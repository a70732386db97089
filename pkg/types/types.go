// Package types defines the shared types used across the synthesis pipeline.
//
// These types form the lingua franca between the script loader, TTS providers,
// the reconciler, and the manifest builder. Each package defines its own domain
// types; cross-cutting data structures live here to avoid circular imports.
package types

// VoiceProfile describes a synthesis voice as resolved for one episode.
// The profile is chosen once per speaker before synthesis starts and is
// never mutated afterwards.
type VoiceProfile struct {
	// ID is the provider-specific voice identifier
	// (e.g. "en-US-Neural2-D", "en-US-ChristopherNeural", or an ElevenLabs voice id).
	ID string

	// Name is the human-readable voice name.
	Name string

	// Provider identifies which TTS provider this voice belongs to.
	Provider string

	// Language is the BCP-47 locale code (e.g. "en-US").
	Language string

	// Gender is the provider-facing voice gender ("male", "female", "neutral").
	Gender string

	// PitchShift adjusts pitch in semitones (-20 to +20, 0 = default). It is
	// used to keep two recurring speakers apart even when they share a voice.
	PitchShift float64
}

// SpeedVariant is one playback-rate preset. Every sentence is synthesized
// once per variant, in the order the variants are configured.
type SpeedVariant struct {
	// Label names the variant ("slow", "normal", "fast") and is part of the
	// output filename, so it must be stable across runs.
	Label string

	// Rate is the speaking-rate multiplier (1.0 = normal speed).
	Rate float64
}

// WordSync is the reconstructed timing interval for one word within its
// sentence's audio. Times are seconds from the start of the audio file.
//
// Invariants: Start <= End for every entry; within a sentence the last
// entry's End equals the total audio duration.
type WordSync struct {
	Word  string  `json:"word"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}
