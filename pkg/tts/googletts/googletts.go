// Package googletts provides the cloud TTS provider with native word
// timing, backed by the Google Cloud Text-to-Speech v1beta1 REST API. It
// implements the tts.Provider interface.
//
// This is the only provider that honours marked SSML: with timepointing
// enabled the service reports one (markName, timeSeconds) pair per <mark/>
// it encountered, which the reconciler turns into word intervals. The list
// may be shorter than the mark count; callers estimate the rest.
//
// Authentication uses API keys drawn from a KeySource so that quota
// exhaustion on one key rotates to the next without restarting the run.
package googletts

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/withleedh/learning-youtube-sub000/pkg/tts"
)

// Compile-time interface assertion.
var _ tts.Provider = (*Provider)(nil)

// ---- constants ----

const (
	defaultBaseURL = "https://texttospeech.googleapis.com"
	synthesizePath = "/v1beta1/text:synthesize"

	defaultLanguage = "en-US"
	defaultEncoding = "MP3"

	// markTimepointing asks the service to report an offset per SSML mark.
	markTimepointing = "SSML_MARK"

	maxErrorBody = 2048
)

// KeySource supplies the API key for each call and absorbs quota signals.
// The run's key pool implements it; tests substitute a fixed key.
type KeySource interface {
	// Current returns the key to use for the next call, or an error once
	// every key is exhausted.
	Current() (string, error)

	// MarkExhausted records that key hit its quota so rotation can move on.
	MarkExhausted(key string)
}

// ---- options ----

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithBaseURL overrides the API base URL. Used by tests to point the
// provider at a local server.
func WithBaseURL(u string) Option {
	return func(p *Provider) {
		p.baseURL = u
	}
}

// WithLanguage sets the default BCP-47 language code used when the voice
// profile does not carry one. Defaults to "en-US".
func WithLanguage(lang string) Option {
	return func(p *Provider) {
		p.language = lang
	}
}

// WithAudioEncoding sets the requested encoding ("MP3" or "LINEAR16").
// Defaults to "MP3".
func WithAudioEncoding(enc string) Option {
	return func(p *Provider) {
		p.encoding = enc
	}
}

// ---- provider ----

// Provider implements tts.Provider backed by the Cloud Text-to-Speech API.
type Provider struct {
	keys       KeySource
	baseURL    string
	language   string
	encoding   string
	httpClient *http.Client
}

// New creates a Provider drawing keys from keys.
func New(keys KeySource, opts ...Option) (*Provider, error) {
	if keys == nil {
		return nil, errors.New("googletts: keys must not be nil")
	}
	p := &Provider{
		keys:       keys,
		baseURL:    defaultBaseURL,
		language:   defaultLanguage,
		encoding:   defaultEncoding,
		httpClient: &http.Client{},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Name returns the provider's registry name.
func (p *Provider) Name() string { return "google" }

// Capabilities reports full support: mark timepoints, native speaking rate,
// and pitch in semitones.
func (p *Provider) Capabilities() tts.Capabilities {
	return tts.Capabilities{Timepoints: true, NativeRate: true, PitchShift: true}
}

// ---- request/response types ----

// synthesizeRequest mirrors the v1beta1 text:synthesize request body.
type synthesizeRequest struct {
	Input              synthesisInput `json:"input"`
	Voice              voiceSelection `json:"voice"`
	AudioConfig        audioConfig    `json:"audioConfig"`
	EnableTimePointing []string       `json:"enableTimePointing,omitempty"`
}

// synthesisInput carries exactly one of Text or SSML.
type synthesisInput struct {
	Text string `json:"text,omitempty"`
	SSML string `json:"ssml,omitempty"`
}

type voiceSelection struct {
	LanguageCode string `json:"languageCode"`
	Name         string `json:"name,omitempty"`
	SSMLGender   string `json:"ssmlGender,omitempty"`
}

type audioConfig struct {
	AudioEncoding string  `json:"audioEncoding"`
	SpeakingRate  float64 `json:"speakingRate,omitempty"`
	Pitch         float64 `json:"pitch,omitempty"`
}

// synthesizeResponse mirrors the v1beta1 response body.
type synthesizeResponse struct {
	AudioContent string      `json:"audioContent"`
	Timepoints   []timepoint `json:"timepoints"`
}

type timepoint struct {
	MarkName    string  `json:"markName"`
	TimeSeconds float64 `json:"timeSeconds"`
}

// Synthesize performs one blocking synthesis call. Marked requests enable
// SSML mark timepointing; the returned timepoints preserve service order.
func (p *Provider) Synthesize(ctx context.Context, req tts.Request) (*tts.Result, error) {
	key, err := p.keys.Current()
	if err != nil {
		return nil, tts.NewError(p.Name(), tts.KindQuota, fmt.Errorf("no usable API key: %w", err))
	}

	body, err := json.Marshal(p.buildRequest(req))
	if err != nil {
		return nil, fmt.Errorf("googletts: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+synthesizePath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("googletts: build request: %w", err)
	}
	httpReq.Header.Set("X-Goog-Api-Key", key)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, tts.ClassifyTransport(p.Name(), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		if resp.StatusCode == http.StatusTooManyRequests {
			// Rotate before surfacing the quota error so the retry's next
			// attempt draws a fresh key.
			p.keys.MarkExhausted(key)
		}
		return nil, tts.ClassifyStatus(p.Name(), resp.StatusCode, string(msg))
	}

	var sr synthesizeResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return nil, tts.NewError(p.Name(), tts.KindAPI, fmt.Errorf("decode response: %w", err))
	}

	audio, err := base64.StdEncoding.DecodeString(sr.AudioContent)
	if err != nil {
		return nil, tts.NewError(p.Name(), tts.KindAPI, fmt.Errorf("decode audio content: %w", err))
	}
	if len(audio) == 0 {
		return nil, tts.NewError(p.Name(), tts.KindAPI, errors.New("empty audio content"))
	}

	result := &tts.Result{Audio: audio, Format: p.format()}
	for _, tp := range sr.Timepoints {
		result.Timepoints = append(result.Timepoints, tts.Timepoint{Mark: tp.MarkName, Seconds: tp.TimeSeconds})
	}
	return result, nil
}

// ---- helpers ----

// buildRequest maps the provider-agnostic request onto the v1beta1 body.
func (p *Provider) buildRequest(req tts.Request) synthesizeRequest {
	out := synthesizeRequest{
		Voice: voiceSelection{
			LanguageCode: p.languageFor(req),
			Name:         req.Voice.ID,
			SSMLGender:   genderFor(req.Voice.Gender),
		},
		AudioConfig: audioConfig{
			AudioEncoding: p.encoding,
			SpeakingRate:  req.Rate,
			Pitch:         req.Voice.PitchShift,
		},
	}
	if req.Marked {
		out.Input.SSML = req.Text
		out.EnableTimePointing = []string{markTimepointing}
	} else {
		out.Input.Text = req.Text
	}
	return out
}

func (p *Provider) languageFor(req tts.Request) string {
	if req.Voice.Language != "" {
		return req.Voice.Language
	}
	return p.language
}

// genderFor maps a profile gender onto the API's enum, or empty to omit.
func genderFor(gender string) string {
	switch strings.ToLower(gender) {
	case "male":
		return "MALE"
	case "female":
		return "FEMALE"
	case "neutral":
		return "NEUTRAL"
	default:
		return ""
	}
}

func (p *Provider) format() tts.AudioFormat {
	if strings.EqualFold(p.encoding, "LINEAR16") {
		// LINEAR16 responses arrive with a WAV header.
		return tts.FormatWAV
	}
	return tts.FormatMP3
}
