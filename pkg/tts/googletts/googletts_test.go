package googletts

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/withleedh/learning-youtube-sub000/pkg/tts"
	"github.com/withleedh/learning-youtube-sub000/pkg/types"
)

// staticKeys is a KeySource with a fixed key list and no quota tracking
// beyond recording MarkExhausted calls.
type staticKeys struct {
	keys      []string
	index     int
	exhausted []string
}

func (s *staticKeys) Current() (string, error) {
	if s.index >= len(s.keys) {
		return "", errors.New("all keys exhausted")
	}
	return s.keys[s.index], nil
}

func (s *staticKeys) MarkExhausted(key string) {
	s.exhausted = append(s.exhausted, key)
	if s.index < len(s.keys) && s.keys[s.index] == key {
		s.index++
	}
}

func testVoice() types.VoiceProfile {
	return types.VoiceProfile{
		ID:       "en-US-Neural2-D",
		Provider: "google",
		Language: "en-US",
		Gender:   "male",
	}
}

func okResponse(audio []byte, timepoints []timepoint) synthesizeResponse {
	return synthesizeResponse{
		AudioContent: base64.StdEncoding.EncodeToString(audio),
		Timepoints:   timepoints,
	}
}

func TestSynthesizeMarkedRequest(t *testing.T) {
	var (
		gotPath string
		gotKey  string
		gotBody synthesizeRequest
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("X-Goog-Api-Key")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(okResponse([]byte("mp3-bytes"), []timepoint{
			{MarkName: "index_0", TimeSeconds: 0.0},
			{MarkName: "index_1", TimeSeconds: 0.52},
		}))
	}))
	defer srv.Close()

	keys := &staticKeys{keys: []string{"key-a"}}
	p, err := New(keys, WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	res, err := p.Synthesize(context.Background(), tts.Request{
		Text:   `<speak><mark name="index_0"/>Hello <mark name="index_1"/>world!</speak>`,
		Marked: true,
		Voice:  testVoice(),
		Rate:   1.25,
	})
	if err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}

	if gotPath != "/v1beta1/text:synthesize" {
		t.Errorf("path = %q, want %q", gotPath, "/v1beta1/text:synthesize")
	}
	if gotKey != "key-a" {
		t.Errorf("X-Goog-Api-Key = %q, want %q", gotKey, "key-a")
	}
	if gotBody.Input.SSML == "" || gotBody.Input.Text != "" {
		t.Errorf("marked request should use the ssml input field, got %+v", gotBody.Input)
	}
	if len(gotBody.EnableTimePointing) != 1 || gotBody.EnableTimePointing[0] != "SSML_MARK" {
		t.Errorf("enableTimePointing = %v, want [SSML_MARK]", gotBody.EnableTimePointing)
	}
	if gotBody.Voice.Name != "en-US-Neural2-D" {
		t.Errorf("voice name = %q, want %q", gotBody.Voice.Name, "en-US-Neural2-D")
	}
	if gotBody.Voice.SSMLGender != "MALE" {
		t.Errorf("ssmlGender = %q, want MALE", gotBody.Voice.SSMLGender)
	}
	if gotBody.AudioConfig.SpeakingRate != 1.25 {
		t.Errorf("speakingRate = %v, want 1.25", gotBody.AudioConfig.SpeakingRate)
	}

	if string(res.Audio) != "mp3-bytes" {
		t.Errorf("audio = %q, want %q", res.Audio, "mp3-bytes")
	}
	if res.Format != tts.FormatMP3 {
		t.Errorf("format = %v, want %v", res.Format, tts.FormatMP3)
	}
	want := []tts.Timepoint{
		{Mark: "index_0", Seconds: 0.0},
		{Mark: "index_1", Seconds: 0.52},
	}
	if len(res.Timepoints) != len(want) {
		t.Fatalf("timepoints = %v, want %v", res.Timepoints, want)
	}
	for i := range want {
		if res.Timepoints[i] != want[i] {
			t.Errorf("timepoint[%d] = %v, want %v", i, res.Timepoints[i], want[i])
		}
	}
}

func TestSynthesizePlainTextRequest(t *testing.T) {
	var gotBody synthesizeRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotBody)
		json.NewEncoder(w).Encode(okResponse([]byte("audio"), nil))
	}))
	defer srv.Close()

	p, err := New(&staticKeys{keys: []string{"k"}}, WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	res, err := p.Synthesize(context.Background(), tts.Request{Text: "Hello world!", Voice: testVoice(), Rate: 1.0})
	if err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}

	if gotBody.Input.Text != "Hello world!" || gotBody.Input.SSML != "" {
		t.Errorf("plain request should use the text input field, got %+v", gotBody.Input)
	}
	if gotBody.EnableTimePointing != nil {
		t.Errorf("plain request should not enable timepointing, got %v", gotBody.EnableTimePointing)
	}
	if len(res.Timepoints) != 0 {
		t.Errorf("timepoints = %v, want none", res.Timepoints)
	}
}

func TestSynthesizeStatusClassification(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   tts.Kind
	}{
		{"unauthorized", http.StatusUnauthorized, tts.KindAuth},
		{"forbidden", http.StatusForbidden, tts.KindAuth},
		{"quota", http.StatusTooManyRequests, tts.KindQuota},
		{"server error", http.StatusInternalServerError, tts.KindAPI},
		{"gateway timeout", http.StatusGatewayTimeout, tts.KindTimeout},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "nope", tt.status)
			}))
			defer srv.Close()

			p, err := New(&staticKeys{keys: []string{"k"}}, WithBaseURL(srv.URL))
			if err != nil {
				t.Fatalf("New() error = %v", err)
			}
			_, err = p.Synthesize(context.Background(), tts.Request{Text: "hi", Voice: testVoice()})
			if err == nil {
				t.Fatal("Synthesize() error = nil, want classified error")
			}
			kind, ok := tts.KindOf(err)
			if !ok || kind != tt.want {
				t.Errorf("KindOf(err) = %v, %v, want %v, true", kind, ok, tt.want)
			}
		})
	}
}

func TestSynthesizeRotatesKeyOnQuota(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if r.Header.Get("X-Goog-Api-Key") == "key-a" {
			http.Error(w, "quota exceeded", http.StatusTooManyRequests)
			return
		}
		json.NewEncoder(w).Encode(okResponse([]byte("audio"), nil))
	}))
	defer srv.Close()

	keys := &staticKeys{keys: []string{"key-a", "key-b"}}
	p, err := New(keys, WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	_, err = p.Synthesize(context.Background(), tts.Request{Text: "hi", Voice: testVoice()})
	if kind, ok := tts.KindOf(err); !ok || kind != tts.KindQuota {
		t.Fatalf("first call KindOf(err) = %v, %v, want %v, true", kind, ok, tts.KindQuota)
	}
	if len(keys.exhausted) != 1 || keys.exhausted[0] != "key-a" {
		t.Fatalf("exhausted = %v, want [key-a]", keys.exhausted)
	}

	// A retry now draws the next key and succeeds.
	if _, err := p.Synthesize(context.Background(), tts.Request{Text: "hi", Voice: testVoice()}); err != nil {
		t.Fatalf("second call error = %v", err)
	}
	if calls != 2 {
		t.Errorf("server calls = %d, want 2", calls)
	}
}

func TestSynthesizePoolExhausted(t *testing.T) {
	p, err := New(&staticKeys{}, WithBaseURL("http://unreachable.invalid"))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	_, err = p.Synthesize(context.Background(), tts.Request{Text: "hi", Voice: testVoice()})
	if kind, ok := tts.KindOf(err); !ok || kind != tts.KindQuota {
		t.Errorf("KindOf(err) = %v, %v, want %v, true", kind, ok, tts.KindQuota)
	}
}

func TestSynthesizeEmptyAudio(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(okResponse(nil, nil))
	}))
	defer srv.Close()

	p, err := New(&staticKeys{keys: []string{"k"}}, WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	_, err = p.Synthesize(context.Background(), tts.Request{Text: "hi", Voice: testVoice()})
	if err == nil {
		t.Fatal("Synthesize() error = nil, want error for empty audio")
	}
}

func TestSynthesizeBadBase64(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(synthesizeResponse{AudioContent: "not-base64!!"})
	}))
	defer srv.Close()

	p, err := New(&staticKeys{keys: []string{"k"}}, WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	_, err = p.Synthesize(context.Background(), tts.Request{Text: "hi", Voice: testVoice()})
	if kind, ok := tts.KindOf(err); !ok || kind != tts.KindAPI {
		t.Errorf("KindOf(err) = %v, %v, want %v, true", kind, ok, tts.KindAPI)
	}
}

func TestNewRequiresKeys(t *testing.T) {
	if _, err := New(nil); err == nil {
		t.Error("New(nil) error = nil, want error")
	}
}

func TestCapabilities(t *testing.T) {
	p, err := New(&staticKeys{keys: []string{"k"}})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	caps := p.Capabilities()
	if !caps.Timepoints || !caps.NativeRate || !caps.PitchShift {
		t.Errorf("Capabilities() = %+v, want all true", caps)
	}
}

func TestLinear16Format(t *testing.T) {
	p, err := New(&staticKeys{keys: []string{"k"}}, WithAudioEncoding("LINEAR16"))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if got := p.format(); got != tts.FormatWAV {
		t.Errorf("format() = %v, want %v", got, tts.FormatWAV)
	}
}
