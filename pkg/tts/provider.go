// Package tts defines the Provider interface for text-to-speech backends.
//
// A provider wraps one speech synthesis service (Google Cloud TTS, Microsoft
// Edge, ElevenLabs) and presents a uniform request/response interface: text in,
// encoded audio out, plus word-level timepoints when the service can report
// them. Providers differ widely in capability, so callers must branch on
// Capabilities, never on provider identity.
//
// Implementations must be safe for concurrent use. Multiple synthesis requests
// may run in parallel (one per worker in the synthesis pool).
package tts

import (
	"context"

	"github.com/withleedh/learning-youtube-sub000/pkg/types"
)

// Request describes one synthesis call.
type Request struct {
	// Text is the content to speak. When Marked is true it is an SSML
	// document containing <mark/> elements; otherwise it is plain text.
	Text string

	// Marked indicates Text is SSML with word markers. Callers may only set
	// it for providers whose Capabilities report Timepoints support.
	Marked bool

	// Voice is the episode-resolved voice profile, including pitch shift.
	Voice types.VoiceProfile

	// Rate is the speaking-rate multiplier for this call (1.0 = normal).
	// Providers without native rate control ignore it; the caller then
	// compensates by estimating duration from the rate instead.
	Rate float64
}

// Timepoint is a (marker id, time offset) pair reported by a provider that
// supports marker tracking.
type Timepoint struct {
	// Mark is the marker name from the request SSML (e.g. "index_3").
	Mark string

	// Seconds is the offset from the start of the audio.
	Seconds float64
}

// Result is the outcome of a successful synthesis call.
type Result struct {
	// Audio is the encoded audio returned by the service.
	Audio []byte

	// Format identifies the container of Audio.
	Format AudioFormat

	// Timepoints holds marker offsets in request order. It is empty for
	// providers without marker tracking; callers must treat that as the
	// incomplete-data case and estimate timing, never as an error.
	Timepoints []Timepoint
}

// AudioFormat enumerates the audio containers providers return.
type AudioFormat string

const (
	FormatMP3 AudioFormat = "mp3"
	FormatWAV AudioFormat = "wav"
)

// Capabilities describes what a provider can do, so callers can adapt
// without knowing which backend they are talking to.
type Capabilities struct {
	// Timepoints reports whether Synthesize returns marker timepoints for
	// marked requests.
	Timepoints bool

	// NativeRate reports whether the provider applies Request.Rate itself.
	// When false, audio always plays at normal speed and callers estimate
	// the variant's duration instead.
	NativeRate bool

	// PitchShift reports whether the provider honours VoiceProfile.PitchShift.
	PitchShift bool
}

// Provider is the abstraction over any TTS backend.
type Provider interface {
	// Name returns the provider's registry name ("google", "edge", "elevenlabs").
	Name() string

	// Capabilities describes this provider's feature support. The value is
	// constant for the lifetime of the provider.
	Capabilities() Capabilities

	// Synthesize performs one blocking synthesis call. Failures are returned
	// as *ProviderError so callers can branch retry policy on the error kind;
	// a missing or short timepoint list is not a failure.
	//
	// Implementations must honour ctx cancellation and deadlines.
	Synthesize(ctx context.Context, req Request) (*Result, error)
}
