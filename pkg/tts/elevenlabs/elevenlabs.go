// Package elevenlabs provides the premium-voice TTS provider backed by the
// ElevenLabs HTTP synthesis API. It implements the tts.Provider interface.
//
// ElevenLabs returns studio-quality MP3 audio but reports no word timing
// and applies no rate control, so clip durations for its speed variants are
// always estimated by the caller.
package elevenlabs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/withleedh/learning-youtube-sub000/pkg/tts"
)

// Compile-time interface assertion.
var _ tts.Provider = (*Provider)(nil)

// ---- constants ----

const (
	defaultBaseURL    = "https://api.elevenlabs.io"
	synthesizePathFmt = "/v1/text-to-speech/%s"

	defaultModel        = "eleven_multilingual_v2"
	defaultOutputFormat = "mp3_44100_128"

	defaultStability       = 0.5
	defaultSimilarityBoost = 0.75

	// maxErrorBody caps how much of an error response is kept for messages.
	maxErrorBody = 2048
)

// ---- options ----

// Option is a functional option for configuring an ElevenLabs Provider.
type Option func(*Provider)

// WithModel sets the ElevenLabs model ID (e.g., "eleven_multilingual_v2").
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithOutputFormat sets the audio output format query parameter
// (e.g., "mp3_44100_128").
func WithOutputFormat(format string) Option {
	return func(p *Provider) {
		p.outputFormat = format
	}
}

// WithBaseURL overrides the API base URL. Used by tests to point the
// provider at a local server.
func WithBaseURL(u string) Option {
	return func(p *Provider) {
		p.baseURL = u
	}
}

// ---- provider ----

// Provider implements tts.Provider backed by the ElevenLabs synthesis API.
type Provider struct {
	apiKey       string
	model        string
	outputFormat string
	baseURL      string
	httpClient   *http.Client
}

// New creates an ElevenLabs Provider. apiKey must be non-empty; per-call
// deadlines come from the caller's context rather than a client timeout.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("elevenlabs: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:       apiKey,
		model:        defaultModel,
		outputFormat: defaultOutputFormat,
		baseURL:      defaultBaseURL,
		httpClient:   &http.Client{},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Name returns the provider's registry name.
func (p *Provider) Name() string { return "elevenlabs" }

// Capabilities reports no timepoints, no native rate, and no pitch control.
func (p *Provider) Capabilities() tts.Capabilities {
	return tts.Capabilities{}
}

// ---- request/response types ----

// synthesisRequest mirrors the ElevenLabs text-to-speech request body.
type synthesisRequest struct {
	Text          string        `json:"text"`
	ModelID       string        `json:"model_id"`
	VoiceSettings voiceSettings `json:"voice_settings"`
}

// voiceSettings mirrors the ElevenLabs voice_settings object.
type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
}

// Synthesize performs one HTTP synthesis call and returns the MP3 bytes.
// Timepoints are always empty for this provider.
func (p *Provider) Synthesize(ctx context.Context, req tts.Request) (*tts.Result, error) {
	if req.Voice.ID == "" {
		return nil, errors.New("elevenlabs: voice ID must not be empty")
	}
	if req.Marked {
		return nil, errors.New("elevenlabs: marked SSML is not supported; send plain text")
	}

	body, err := json.Marshal(synthesisRequest{
		Text:    req.Text,
		ModelID: p.model,
		VoiceSettings: voiceSettings{
			Stability:       defaultStability,
			SimilarityBoost: defaultSimilarityBoost,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: marshal request: %w", err)
	}

	url := p.synthesizeURL(req.Voice.ID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: build request: %w", err)
	}
	httpReq.Header.Set("xi-api-key", p.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "audio/mpeg")

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, tts.ClassifyTransport(p.Name(), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, tts.ClassifyStatus(p.Name(), resp.StatusCode, string(msg))
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, tts.ClassifyTransport(p.Name(), err)
	}
	if len(audio) == 0 {
		return nil, tts.NewError(p.Name(), tts.KindAPI, errors.New("empty audio response"))
	}

	return &tts.Result{Audio: audio, Format: tts.FormatMP3}, nil
}

// ---- helpers ----

// synthesizeURL constructs the synthesis endpoint URL for a voice.
func (p *Provider) synthesizeURL(voiceID string) string {
	u := p.baseURL + fmt.Sprintf(synthesizePathFmt, voiceID)
	if p.outputFormat != "" {
		u += "?output_format=" + p.outputFormat
	}
	return u
}
