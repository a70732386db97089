// Package config provides the configuration schema, loader, and provider
// registry for the voicesync pipeline.
package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// LogLevel controls log verbosity for the pipeline.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// SyncMode selects how much timing detail the manifest carries.
type SyncMode string

const (
	// ModeAudioOnly writes audio entries with durations but no word timing.
	ModeAudioOnly SyncMode = "audio"

	// ModeWordSync adds per-word start/end intervals to every entry.
	ModeWordSync SyncMode = "wordsync"
)

// IsValid reports whether m is a recognised sync mode.
func (m SyncMode) IsValid() bool {
	return m == ModeAudioOnly || m == ModeWordSync
}

// Duration is a time.Duration that unmarshals from YAML strings like "2s".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the root configuration structure for a synthesis run.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Run       RunConfig       `yaml:"run"`
	Providers ProvidersConfig `yaml:"providers"`
	Speakers  []SpeakerConfig `yaml:"speakers"`
	Speeds    []SpeedConfig   `yaml:"speeds"`
	Retry     RetryConfig     `yaml:"retry"`
	Estimator EstimatorConfig `yaml:"estimator"`
}

// RunConfig holds output paths, logging, and pacing settings for a run.
type RunConfig struct {
	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// Mode selects audio-only or word-sync manifests.
	Mode SyncMode `yaml:"mode"`

	// OutputDir is the directory synthesized audio files are written to.
	OutputDir string `yaml:"output_dir"`

	// ManifestPath is where the run's manifest JSON is written.
	ManifestPath string `yaml:"manifest_path"`

	// KeyStatePath persists API key rotation progress between runs.
	// Empty disables persistence.
	KeyStatePath string `yaml:"key_state_path"`

	// MetricsAddr is the address the Prometheus metrics endpoint listens
	// on (e.g., ":9090"). Empty disables the endpoint.
	MetricsAddr string `yaml:"metrics_addr"`

	// Concurrency bounds the number of in-flight synthesis units. 1 means
	// strictly sequential processing.
	Concurrency int `yaml:"concurrency"`

	// RequestsPerMinute paces provider calls across all workers.
	// 0 disables pacing.
	RequestsPerMinute int `yaml:"requests_per_minute"`

	// Overwrite re-synthesizes audio files that already exist on disk.
	Overwrite bool `yaml:"overwrite"`

	// Seed fixes the episode voice selection for reproducible runs.
	// 0 seeds from the script title.
	Seed int64 `yaml:"seed"`
}

// ProvidersConfig declares which synthesis provider to use.
type ProvidersConfig struct {
	TTS ProviderEntry `yaml:"tts"`
}

// ProviderEntry is the common configuration block shared by all provider
// types. The Name field is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation
	// (e.g., "google", "edge", "elevenlabs").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API if any.
	// Environment credentials take precedence; prefer those for secrets.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	// Leave empty to use the provider's built-in default.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider
	// (e.g., "eleven_multilingual_v2").
	Model string `yaml:"model"`

	// Options holds provider-specific configuration values not covered by
	// the standard fields above (e.g., "language", "audio_encoding").
	Options map[string]any `yaml:"options"`
}

// StringOption returns the named option as a string, or "" when absent or
// of another type.
func (e ProviderEntry) StringOption(key string) string {
	if v, ok := e.Options[key].(string); ok {
		return v
	}
	return ""
}

// SpeakerConfig describes one recurring script speaker and the voices that
// may portray them. One voice is drawn per episode and reused for every
// sentence of that speaker.
type SpeakerConfig struct {
	// Name matches the speaker field of script sentences.
	Name string `yaml:"name"`

	// Gender is passed through to providers that select by gender
	// ("male", "female", "neutral" or empty).
	Gender string `yaml:"gender"`

	// PitchShift adjusts pitch in semitones, range [-20, +20]. Used to
	// tell two recurring speakers apart on providers that support it.
	PitchShift float64 `yaml:"pitch_shift"`

	// Voices lists candidate provider voice IDs for this speaker.
	Voices []string `yaml:"voices"`
}

// SpeedConfig is one speed preset. Every sentence is synthesized once per
// preset, in config order.
type SpeedConfig struct {
	// Label names the preset; it becomes part of the output filename.
	Label string `yaml:"label"`

	// Rate is the playback-rate multiplier, range [0.5, 2.0].
	Rate float64 `yaml:"rate"`
}

// RetryConfig bounds per-unit retry behaviour.
type RetryConfig struct {
	// MaxAttempts is the total number of tries per unit, including the
	// first.
	MaxAttempts int `yaml:"max_attempts"`

	// BaseDelay is the backoff unit; attempt n waits n × BaseDelay.
	BaseDelay Duration `yaml:"base_delay"`

	// AttemptTimeout bounds each individual provider call.
	AttemptTimeout Duration `yaml:"attempt_timeout"`
}

// EstimatorConfig tunes the duration estimate used when a provider returns
// no measurable audio timing.
type EstimatorConfig struct {
	// WordsPerMinute is the assumed speaking pace at rate 1.0.
	WordsPerMinute float64 `yaml:"words_per_minute"`
}

// Default returns the configuration a run starts from before the YAML file
// is applied over it.
func Default() *Config {
	return &Config{
		Run: RunConfig{
			LogLevel:     LogInfo,
			Mode:         ModeWordSync,
			OutputDir:    "output/audio",
			ManifestPath: "output/manifest.json",
			Concurrency:  1,
		},
		Speeds: []SpeedConfig{
			{Label: "slow", Rate: 0.75},
			{Label: "normal", Rate: 1.0},
			{Label: "fast", Rate: 1.25},
		},
		Retry: RetryConfig{
			MaxAttempts:    3,
			BaseDelay:      Duration(2 * time.Second),
			AttemptTimeout: Duration(30 * time.Second),
		},
		Estimator: EstimatorConfig{
			WordsPerMinute: 150,
		},
	}
}
