package config

import (
	"errors"
	"os"
	"strings"

	"github.com/ShayCichocki/foreman/internal/secrets"
)

// envKeyReplacer maps nested config keys to environment variable names,
// e.g. scheduler.max_retries -> FOREMAN_SCHEDULER_MAX_RETRIES.
var envKeyReplacer = strings.NewReplacer(".", "_")

// ErrNoSecretsKey is returned when no secrets key is configured.
var ErrNoSecretsKey = errors.New("no secrets key configured")

// GetSecretsKey returns the encryption key for the secret store.
// It checks in order: FOREMAN_SECRETS_KEY environment variable, key file
// from the configuration.
func GetSecretsKey(cfg *Config) ([]byte, error) {
	keyFile := ""
	if cfg != nil {
		keyFile = cfg.Secrets.KeyFile
	}
	key, err := secrets.KeyFromEnv(keyFile)
	if err != nil {
		if errors.Is(err, secrets.ErrNoKey) {
			return nil, ErrNoSecretsKey
		}
		return nil, err
	}
	return key, nil
}

// MaskKeyMaterial returns a masked version of key material for display.
// Shows the first 4 and last 4 characters when long enough.
func MaskKeyMaterial(material string) string {
	if material == "" {
		return "(not set)"
	}

	if len(material) <= 12 {
		return "***"
	}

	return material[:4] + "..." + material[len(material)-4:]
}

// KeySource represents where the secrets key was loaded from.
type KeySource string

const (
	KeySourceEnv     KeySource = "environment"
	KeySourceKeyFile KeySource = "key_file"
	KeySourceNone    KeySource = "none"
)

// GetSecretsKeySource returns where the secrets key was sourced from.
func GetSecretsKeySource(cfg *Config) KeySource {
	if os.Getenv(secrets.EnvKeyName) != "" {
		return KeySourceEnv
	}

	if cfg != nil && cfg.Secrets.KeyFile != "" {
		if _, err := os.Stat(cfg.Secrets.KeyFile); err == nil {
			return KeySourceKeyFile
		}
	}

	return KeySourceNone
}
