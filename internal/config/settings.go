// Package config resolves the AWS region, the log level, and the optional
// YAML settings file that tunes retry behavior and defaults.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"lex-bot-deploy/internal/retry"
)

// PolicySettings is the YAML form of a retry.Policy.
type PolicySettings struct {
	MaxAttempts int           `yaml:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay"`
	Multiplier  float64       `yaml:"multiplier"`
	MaxDelay    time.Duration `yaml:"max_delay"`
}

// Policy converts the settings into a retry.Policy without a retry predicate.
func (p PolicySettings) Policy() retry.Policy {
	return retry.Policy{
		MaxAttempts: p.MaxAttempts,
		BaseDelay:   p.BaseDelay,
		Multiplier:  p.Multiplier,
		MaxDelay:    p.MaxDelay,
	}
}

// Settings is the tool's tunable configuration.
type Settings struct {
	Region           string         `yaml:"region"`
	Conflict         PolicySettings `yaml:"conflict_retry"`
	Poll             PolicySettings `yaml:"poll"`
	AliasDescription string         `yaml:"alias_description"`
	ExportVersion    string         `yaml:"export_version"`
	HistoryTable     string         `yaml:"history_table"`
}

// Defaults returns the built-in settings.
func Defaults() Settings {
	return Settings{
		Conflict: PolicySettings{
			MaxAttempts: 10,
			BaseDelay:   1500 * time.Millisecond,
			Multiplier:  2,
		},
		Poll: PolicySettings{
			MaxAttempts: 8,
			BaseDelay:   time.Second,
			Multiplier:  2,
		},
		AliasDescription: "latest test",
		ExportVersion:    "1",
	}
}

// LoadSettings reads path over Defaults. An empty path returns Defaults.
func LoadSettings(path string) (Settings, error) {
	s := Defaults()
	if path == "" {
		return s, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("config: read %q: %w", path, err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil && !errors.Is(err, io.EOF) {
		return Settings{}, fmt.Errorf("config: decode %q: %w", path, err)
	}
	if err := s.Validate(); err != nil {
		return Settings{}, fmt.Errorf("config: %q: %w", path, err)
	}
	return s, nil
}

// Validate checks that both policies can make at least one attempt.
func (s Settings) Validate() error {
	if err := s.Conflict.Policy().Validate(); err != nil {
		return fmt.Errorf("conflict_retry: %w", err)
	}
	if err := s.Poll.Policy().Validate(); err != nil {
		return fmt.Errorf("poll: %w", err)
	}
	return nil
}
