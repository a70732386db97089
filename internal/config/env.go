package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Credentials holds the secrets a run reads from the environment. The
// environment is the preferred home for keys: the config file is meant to
// be committed, the environment is not. Environment values take precedence
// over any api_key left in the YAML.
type Credentials struct {
	// GoogleAPIKeys is the ordered key pool for the google provider,
	// comma-separated in GOOGLE_TTS_API_KEYS.
	GoogleAPIKeys []string `env:"GOOGLE_TTS_API_KEYS"`

	// ElevenLabsKey authenticates the elevenlabs provider.
	ElevenLabsKey string `env:"ELEVENLABS_API_KEY"`
}

// LoadCredentials parses provider secrets from the environment. Missing
// variables leave their fields empty; whether that is an error depends on
// the selected provider and is checked at wiring time.
func LoadCredentials() (*Credentials, error) {
	creds := &Credentials{}
	if err := env.Parse(creds); err != nil {
		return nil, fmt.Errorf("config: parse credentials: %w", err)
	}
	return creds, nil
}
