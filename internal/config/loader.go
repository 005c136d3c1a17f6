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

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"llm": {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"stt": {"deepgram", "whisper"},
	"tts": {"elevenlabs"},
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
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

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
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

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if tls := cfg.Server.TLS; tls != nil {
		if tls.CertFile == "" || tls.KeyFile == "" {
			errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
		}
	}

	// Practice
	if cfg.Practice.Mode != "" && !cfg.Practice.Mode.IsValid() {
		errs = append(errs, fmt.Errorf("practice.mode %q is invalid; valid values: typed, spoken", cfg.Practice.Mode))
	}
	if t := cfg.Practice.SpokenThreshold; t < 0 || t > 100 {
		errs = append(errs, fmt.Errorf("practice.spoken_threshold %.1f is out of range [0, 100]", t))
	}

	// Dialogue
	if r := cfg.Dialogue.NewWordRatio; r < 0 || r > 1 {
		errs = append(errs, fmt.Errorf("dialogue.new_word_ratio %.2f is out of range [0, 1]", r))
	}

	// Provider name validation — warn for unknown provider names.
	validateProviderChain("llm", cfg.Providers.LLM)
	validateProviderChain("stt", cfg.Providers.STT)
	validateProviderChain("tts", cfg.Providers.TTS)

	// Provider availability warnings
	if cfg.Providers.LLM.Name == "" {
		slog.Warn("no LLM provider configured; dialogue generation and keyword analysis will be unavailable")
	}
	if cfg.Providers.STT.Name == "" && cfg.Practice.Mode == ModeSpoken {
		slog.Warn("practice.mode is spoken but no STT provider is configured; attempts must arrive as text")
	}
	if cfg.Providers.TTS.Name != "" && cfg.Speech.VoiceID == "" {
		slog.Warn("providers.tts is configured but speech.voice_id is not set; synthesis requests must name a voice explicitly")
	}

	// Database availability
	if cfg.Database.PostgresDSN == "" {
		slog.Warn("database.postgres_dsn is empty; vocabulary tracking will not survive restarts")
	}

	return errors.Join(errs...)
}

// validateProviderChain checks the entry and all of its fallbacks.
func validateProviderChain(kind string, entry ProviderEntry) {
	validateProviderName(kind, entry.Name)
	for _, fb := range entry.Fallbacks {
		validateProviderName(kind, fb.Name)
	}
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name — may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
