package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// SettingsFileName is looked up in the data directory when --settings is not given.
const SettingsFileName = "settings.yaml"

// Settings is the local, never-synchronized agent configuration.
type Settings struct {
	FetchTimeoutSeconds      int      `yaml:"fetch_timeout_seconds"`
	GuardFetchTimeoutSeconds int      `yaml:"guard_fetch_timeout_seconds"`
	LogFile                  string   `yaml:"log_file"`
	LogLevel                 string   `yaml:"log_level"`
	MetricsTextfile          string   `yaml:"metrics_textfile"`
	PersistState             bool     `yaml:"persist_state"`
	NotifierCommand          []string `yaml:"notifier_command"`
	UserAgent                string   `yaml:"user_agent"`
}

// DefaultSettings returns the settings used when no file is present.
func DefaultSettings() Settings {
	return Settings{
		FetchTimeoutSeconds:      10,
		GuardFetchTimeoutSeconds: 300,
		LogLevel:                 "info",
		UserAgent:                "hawkeye",
	}
}

// FetchTimeout returns the per-request network bound.
func (s Settings) FetchTimeout() time.Duration {
	return time.Duration(s.FetchTimeoutSeconds) * time.Second
}

// GuardFetchTimeout bounds the download of the guard executable, which is
// far larger than the JSON documents.
func (s Settings) GuardFetchTimeout() time.Duration {
	return time.Duration(s.GuardFetchTimeoutSeconds) * time.Second
}

// LoadSettings reads the YAML settings file. Missing files fall back to defaults.
func LoadSettings(path string) (Settings, error) {
	if path == "" {
		return DefaultSettings(), nil
	}

	content, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return DefaultSettings(), nil
	}
	if err != nil {
		return DefaultSettings(), fmt.Errorf("read settings: %w", err)
	}

	s := DefaultSettings()
	if err := yaml.Unmarshal(content, &s); err != nil {
		return DefaultSettings(), fmt.Errorf("parse settings: %w", err)
	}

	if s.FetchTimeoutSeconds <= 0 {
		s.FetchTimeoutSeconds = DefaultSettings().FetchTimeoutSeconds
	}
	if s.GuardFetchTimeoutSeconds <= 0 {
		s.GuardFetchTimeoutSeconds = DefaultSettings().GuardFetchTimeoutSeconds
	}
	switch strings.ToLower(s.LogLevel) {
	case "debug", "info", "warn", "error":
		s.LogLevel = strings.ToLower(s.LogLevel)
	default:
		s.LogLevel = DefaultSettings().LogLevel
	}
	if strings.TrimSpace(s.UserAgent) == "" {
		s.UserAgent = DefaultSettings().UserAgent
	}
	return s, nil
}
