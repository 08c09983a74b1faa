package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per pipeline stage. Used by
// [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"asr": {"deepgram", "assemblyai", "whisper"},
	"mt":  {"deepl", "openai"},
	"tts": {"elevenlabs"},
}

// Load reads the YAML configuration file at path, applies defaults, and
// returns a validated [Config].
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

// LoadFromReader decodes a YAML config from r, applies defaults, and
// validates the result. ${VAR} references are expanded from the environment
// before decoding, so API keys never need to live in the file.
func LoadFromReader(r io.Reader) (*Config, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("config: read: %w", err)
	}
	expanded := os.Expand(string(raw), func(name string) string {
		return os.Getenv(name)
	})

	cfg := &Config{}
	dec := yaml.NewDecoder(strings.NewReader(expanded))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values. It returns a
// joined error listing all hard failures found; soft issues are logged.
func Validate(cfg *Config) error {
	var errs []error

	if !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	if cfg.Gate.MinConfidenceThreshold < 0 || cfg.Gate.MinConfidenceThreshold > 1 {
		errs = append(errs, fmt.Errorf("gate.min_confidence_threshold %.2f is out of range [0, 1]", cfg.Gate.MinConfidenceThreshold))
	}
	if cfg.Gate.MinWordsForProcessing < 1 {
		errs = append(errs, fmt.Errorf("gate.min_words_for_processing %d must be at least 1", cfg.Gate.MinWordsForProcessing))
	}
	if cfg.Gate.EmergencyTimeout < cfg.Gate.SentenceCompletionThreshold {
		errs = append(errs, fmt.Errorf("gate.emergency_timeout %s must not be shorter than gate.sentence_completion_threshold %s",
			cfg.Gate.EmergencyTimeout.Std(), cfg.Gate.SentenceCompletionThreshold.Std()))
	}

	if cfg.Synthesis.CacheExactTTL.Std() > cfg.Synthesis.CacheMaxAge.Std() {
		errs = append(errs, fmt.Errorf("synthesis.cache_exact_ttl %s exceeds synthesis.cache_max_age %s",
			cfg.Synthesis.CacheExactTTL.Std(), cfg.Synthesis.CacheMaxAge.Std()))
	}
	if cfg.Synthesis.RetryAttempts < 1 {
		errs = append(errs, fmt.Errorf("synthesis.retry_attempts %d must be at least 1", cfg.Synthesis.RetryAttempts))
	}

	validateProviderName("asr", cfg.Providers.ASR.Primary.Name)
	validateProviderName("asr", cfg.Providers.ASR.Secondary.Name)
	validateProviderName("asr", cfg.Providers.ASR.Batch.Name)
	validateProviderName("mt", cfg.Providers.MT.Primary.Name)
	validateProviderName("mt", cfg.Providers.MT.Fallback.Name)
	validateProviderName("tts", cfg.Providers.TTS.Name)

	if !cfg.Providers.ASR.Primary.Configured() {
		slog.Warn("providers.asr.primary is not configured; recognition will not be available")
	}
	if !cfg.Providers.MT.Primary.Configured() {
		slog.Warn("providers.mt.primary is not configured; translation will not be available")
	}
	if !cfg.Providers.TTS.Configured() {
		slog.Warn("providers.tts is not configured; synthesis will not be available")
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given stage.
func validateProviderName(stage, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[stage]
	if !ok || slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name — may be a typo or third-party provider",
		"stage", stage,
		"name", name,
		"known", known,
	)
}
