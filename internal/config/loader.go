package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists the provider names shipped with this binary, per
// provider kind. [Validate] warns about names outside the list but does not
// reject them, since third-party providers register at runtime.
var ValidProviderNames = map[string][]string{
	"tts": {"google", "edge", "elevenlabs", "mock"},
}

// Load reads, decodes, and validates the YAML config file at path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes YAML from r on top of [Default] values and
// validates the result. Unknown YAML fields are rejected so typos surface at
// startup instead of silently keeping a default.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cfg section by section and returns every failure found,
// joined, so one startup round-trip surfaces all of them.
func Validate(cfg *Config) error {
	errs := validateRun(cfg.Run)
	errs = append(errs, validateSpeakers(cfg.Speakers)...)
	errs = append(errs, validateSpeeds(cfg.Speeds)...)
	errs = append(errs, validateRetry(cfg.Retry)...)

	if cfg.Providers.TTS.Name == "" {
		errs = append(errs, errors.New("providers.tts.name is required"))
	}
	validateProviderName("tts", cfg.Providers.TTS.Name)

	if cfg.Estimator.WordsPerMinute <= 0 {
		errs = append(errs, fmt.Errorf("estimator.words_per_minute %.1f must be positive", cfg.Estimator.WordsPerMinute))
	}

	return errors.Join(errs...)
}

func validateRun(run RunConfig) []error {
	var errs []error
	if run.LogLevel != "" && !run.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("run.log_level %q is invalid; valid values: debug, info, warn, error", run.LogLevel))
	}
	if run.Mode != "" && !run.Mode.IsValid() {
		errs = append(errs, fmt.Errorf("run.mode %q is invalid; valid values: audio, wordsync", run.Mode))
	}
	if run.OutputDir == "" {
		errs = append(errs, errors.New("run.output_dir is required"))
	}
	if run.ManifestPath == "" {
		errs = append(errs, errors.New("run.manifest_path is required"))
	}
	if run.Concurrency < 1 {
		errs = append(errs, fmt.Errorf("run.concurrency %d must be at least 1", run.Concurrency))
	}
	if run.RequestsPerMinute < 0 {
		errs = append(errs, fmt.Errorf("run.requests_per_minute %d must not be negative", run.RequestsPerMinute))
	}
	return errs
}

func validateSpeakers(speakers []SpeakerConfig) []error {
	var errs []error
	seen := make(map[string]int, len(speakers))
	for i, sp := range speakers {
		prefix := fmt.Sprintf("speakers[%d]", i)
		switch prev, dup := seen[sp.Name]; {
		case sp.Name == "":
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
		case dup:
			errs = append(errs, fmt.Errorf("%s.name %q is a duplicate of speakers[%d]", prefix, sp.Name, prev))
		default:
			seen[sp.Name] = i
		}
		if sp.PitchShift < -20 || sp.PitchShift > 20 {
			errs = append(errs, fmt.Errorf("%s.pitch_shift %.2f is out of range [-20, 20]", prefix, sp.PitchShift))
		}
		if len(sp.Voices) == 0 {
			errs = append(errs, fmt.Errorf("%s.voices must list at least one voice", prefix))
		}
	}
	return errs
}

func validateSpeeds(speeds []SpeedConfig) []error {
	var errs []error
	if len(speeds) == 0 {
		errs = append(errs, errors.New("speeds must list at least one preset"))
	}
	seen := make(map[string]int, len(speeds))
	for i, sp := range speeds {
		prefix := fmt.Sprintf("speeds[%d]", i)
		switch prev, dup := seen[sp.Label]; {
		case sp.Label == "":
			errs = append(errs, fmt.Errorf("%s.label is required", prefix))
		case dup:
			errs = append(errs, fmt.Errorf("%s.label %q is a duplicate of speeds[%d]", prefix, sp.Label, prev))
		default:
			seen[sp.Label] = i
		}
		if sp.Rate < 0.5 || sp.Rate > 2.0 {
			errs = append(errs, fmt.Errorf("%s.rate %.2f is out of range [0.5, 2.0]", prefix, sp.Rate))
		}
	}
	return errs
}

func validateRetry(r RetryConfig) []error {
	var errs []error
	if r.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("retry.max_attempts %d must be at least 1", r.MaxAttempts))
	}
	if r.BaseDelay < 0 {
		errs = append(errs, errors.New("retry.base_delay must not be negative"))
	}
	if r.AttemptTimeout <= 0 {
		errs = append(errs, errors.New("retry.attempt_timeout must be positive"))
	}
	return errs
}

// validateProviderName warns about a name outside [ValidProviderNames].
func validateProviderName(kind, name string) {
	known := ValidProviderNames[kind]
	if name == "" || len(known) == 0 || slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name — may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
