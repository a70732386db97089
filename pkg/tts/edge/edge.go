// Package edge provides the lightweight no-credential TTS provider, backed
// by the Edge read-aloud WebSocket service. It implements the tts.Provider
// interface.
//
// The protocol is frame-oriented: the client sends a speech.config text
// frame and an SSML text frame, then reads until a turn.end text frame
// arrives. Audio travels in binary frames whose first two bytes carry a
// big-endian header-block length; only frames whose Path header is "audio"
// contribute payload bytes. The service reports no word timing, so callers
// always fall back to estimation.
package edge

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/withleedh/learning-youtube-sub000/pkg/tts"
	"github.com/withleedh/learning-youtube-sub000/pkg/types"
	"github.com/withleedh/learning-youtube-sub000/pkg/wordsync"
)

// Compile-time interface assertion.
var _ tts.Provider = (*Provider)(nil)

// ---- constants ----

const (
	defaultBaseURL = "wss://speech.platform.bing.com/consumer/speech/synthesize/readaloud/edge/v1"

	// trustedClientToken is the fixed token the read-aloud endpoint expects.
	// It is not a secret; every client ships the same value.
	trustedClientToken = "6A5AA1D4EAFF4E9FB37E23D68491D6F4"

	defaultOutputFormat = "audio-24khz-48kbitrate-mono-mp3"
	defaultLanguage     = "en-US"

	pathTurnEnd = "turn.end"
	pathAudio   = "audio"

	// maxFrameSize raises the connection read limit; audio frames routinely
	// exceed the library's 32 KiB default.
	maxFrameSize = 1 << 20
)

// ---- options ----

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithBaseURL overrides the WebSocket endpoint. Used by tests to point the
// provider at a local server.
func WithBaseURL(u string) Option {
	return func(p *Provider) {
		p.baseURL = u
	}
}

// WithOutputFormat sets the requested audio format string. Defaults to
// 24 kHz 48 kbit/s mono MP3.
func WithOutputFormat(format string) Option {
	return func(p *Provider) {
		p.outputFormat = format
	}
}

// ---- provider ----

// Provider implements tts.Provider backed by the Edge read-aloud service.
// The zero-credential endpoint makes it the default for bulk synthesis.
type Provider struct {
	baseURL      string
	outputFormat string
}

// New creates an edge Provider. No credential is required.
func New(opts ...Option) *Provider {
	p := &Provider{
		baseURL:      defaultBaseURL,
		outputFormat: defaultOutputFormat,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Name returns the provider's registry name.
func (p *Provider) Name() string { return "edge" }

// Capabilities reports native rate and pitch control but no timepoints.
func (p *Provider) Capabilities() tts.Capabilities {
	return tts.Capabilities{Timepoints: false, NativeRate: true, PitchShift: true}
}

// Synthesize opens a WebSocket, plays the config/SSML handshake, and
// collects audio frames until the service signals the end of the turn.
func (p *Provider) Synthesize(ctx context.Context, req tts.Request) (*tts.Result, error) {
	if req.Marked {
		return nil, tts.NewError(p.Name(), tts.KindAPI, errors.New("marked content is not supported"))
	}
	if req.Voice.ID == "" {
		return nil, tts.NewError(p.Name(), tts.KindAPI, errors.New("voice.ID must not be empty"))
	}

	wsURL := fmt.Sprintf("%s?TrustedClientToken=%s&ConnectionId=%s", p.baseURL, trustedClientToken, newID())
	conn, resp, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		if resp != nil {
			return nil, tts.ClassifyStatus(p.Name(), resp.StatusCode, "websocket handshake rejected")
		}
		return nil, tts.ClassifyTransport(p.Name(), err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "done")
	conn.SetReadLimit(maxFrameSize)

	ts := timestamp()
	if err := conn.Write(ctx, websocket.MessageText, []byte(speechConfigFrame(p.outputFormat, ts))); err != nil {
		return nil, tts.ClassifyTransport(p.Name(), err)
	}
	ssml := buildSSML(req.Text, req.Voice, req.Rate)
	if err := conn.Write(ctx, websocket.MessageText, []byte(ssmlFrame(newID(), ts, ssml))); err != nil {
		return nil, tts.ClassifyTransport(p.Name(), err)
	}

	var audio bytes.Buffer
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			return nil, tts.ClassifyTransport(p.Name(), err)
		}
		switch typ {
		case websocket.MessageText:
			if textFramePath(string(data)) == pathTurnEnd {
				if audio.Len() == 0 {
					return nil, tts.NewError(p.Name(), tts.KindAPI, errors.New("turn ended with no audio"))
				}
				return &tts.Result{Audio: audio.Bytes(), Format: tts.FormatMP3}, nil
			}
		case websocket.MessageBinary:
			headers, payload, err := splitBinaryFrame(data)
			if err != nil {
				return nil, tts.NewError(p.Name(), tts.KindAPI, err)
			}
			if framePath(headers) == pathAudio {
				audio.Write(payload)
			}
		}
	}
}

// ---- outgoing frames ----

// speechConfig mirrors the JSON body of the speech.config frame. Boundary
// metadata stays off; word timing is estimated downstream, not streamed.
type speechConfig struct {
	Context speechContext `json:"context"`
}

type speechContext struct {
	Synthesis synthesisConfig `json:"synthesis"`
}

type synthesisConfig struct {
	Audio audioSettings `json:"audio"`
}

type audioSettings struct {
	MetadataOptions metadataOptions `json:"metadataoptions"`
	OutputFormat    string          `json:"outputFormat"`
}

type metadataOptions struct {
	SentenceBoundaryEnabled string `json:"sentenceBoundaryEnabled"`
	WordBoundaryEnabled     string `json:"wordBoundaryEnabled"`
}

// speechConfigFrame assembles the session configuration text frame.
func speechConfigFrame(outputFormat, timestamp string) string {
	body, _ := json.Marshal(speechConfig{
		Context: speechContext{
			Synthesis: synthesisConfig{
				Audio: audioSettings{
					MetadataOptions: metadataOptions{
						SentenceBoundaryEnabled: "false",
						WordBoundaryEnabled:     "false",
					},
					OutputFormat: outputFormat,
				},
			},
		},
	})
	var b strings.Builder
	b.WriteString("X-Timestamp:" + timestamp + "\r\n")
	b.WriteString("Content-Type:application/json; charset=utf-8\r\n")
	b.WriteString("Path:speech.config\r\n\r\n")
	b.Write(body)
	return b.String()
}

// ssmlFrame assembles the synthesis request text frame.
func ssmlFrame(requestID, timestamp, ssml string) string {
	var b strings.Builder
	b.WriteString("X-RequestId:" + requestID + "\r\n")
	b.WriteString("Content-Type:application/ssml+xml\r\n")
	b.WriteString("X-Timestamp:" + timestamp + "\r\n")
	b.WriteString("Path:ssml\r\n\r\n")
	b.WriteString(ssml)
	return b.String()
}

// buildSSML wraps sentence text in the prosody envelope the service expects.
// Rate and pitch ride as signed strings, e.g. "-25%" and "+2st".
func buildSSML(text string, voice types.VoiceProfile, rate float64) string {
	lang := voice.Language
	if lang == "" {
		lang = defaultLanguage
	}
	return fmt.Sprintf(
		"<speak version='1.0' xmlns='http://www.w3.org/2001/10/synthesis' xml:lang='%s'>"+
			"<voice name='%s'><prosody rate='%s' pitch='%s'>%s</prosody></voice></speak>",
		lang, voice.ID, rateString(rate), pitchString(voice.PitchShift), wordsync.EscapeText(text),
	)
}

// rateString converts a rate multiplier to the signed percentage form, so
// 0.75 becomes "-25%" and 1.0 becomes "+0%". Non-positive multipliers mean
// unset and map to "+0%".
func rateString(multiplier float64) string {
	if multiplier <= 0 {
		multiplier = 1
	}
	return fmt.Sprintf("%+d%%", int(math.Round((multiplier-1)*100)))
}

// pitchString converts a semitone offset to the signed prosody form, e.g.
// "+2st" or "-1.5st".
func pitchString(semitones float64) string {
	return fmt.Sprintf("%+gst", semitones)
}

// ---- incoming frames ----

// splitBinaryFrame separates a binary frame into its header block and
// payload. The first two bytes carry the big-endian header length.
func splitBinaryFrame(frame []byte) (headers string, payload []byte, err error) {
	if len(frame) < 2 {
		return "", nil, errors.New("binary frame shorter than its length prefix")
	}
	n := int(binary.BigEndian.Uint16(frame[:2]))
	if 2+n > len(frame) {
		return "", nil, fmt.Errorf("binary frame header length %d exceeds frame size %d", n, len(frame))
	}
	return string(frame[2 : 2+n]), frame[2+n:], nil
}

// framePath extracts the Path header value from a header block.
func framePath(headers string) string {
	for _, line := range strings.Split(headers, "\r\n") {
		if v, ok := strings.CutPrefix(line, "Path:"); ok {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

// textFramePath extracts the Path header from a full text frame, ignoring
// the body after the blank line.
func textFramePath(msg string) string {
	head, _, _ := strings.Cut(msg, "\r\n\r\n")
	return framePath(head)
}

// timestamp renders the wall clock in the format the service logs expect.
func timestamp() string {
	return time.Now().UTC().Format("Mon Jan 02 2006 15:04:05") + " GMT+0000 (Coordinated Universal Time)"
}

// newID returns a fresh connection or request id, a UUID without dashes.
func newID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
