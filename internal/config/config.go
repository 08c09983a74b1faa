// Package config provides the configuration schema, loader, and validation
// for the voxbridge relay server.
package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// LogLevel controls log verbosity for the server.
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

// Duration wraps time.Duration so YAML configs can use human-readable values
// like "30s" or "5m".
type Duration time.Duration

// UnmarshalYAML parses a duration string ("750ms", "3s", "5m").
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("duration must be a string like \"30s\": %w", err)
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML renders the duration in time.Duration string form.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the root configuration structure, typically loaded from a YAML
// file using [Load] or [LoadFromReader].
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Providers   ProvidersConfig   `yaml:"providers"`
	Routing     RoutingConfig     `yaml:"routing"`
	Gate        GateConfig        `yaml:"gate"`
	Translation TranslationConfig `yaml:"translation"`
	Synthesis   SynthesisConfig   `yaml:"synthesis"`
	Reaper      ReaperConfig      `yaml:"reaper"`
}

// ServerConfig holds network, logging, and heartbeat settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// HeartbeatInterval is the server ping cadence; a participant that misses
	// one full interval is force-disconnected.
	HeartbeatInterval Duration `yaml:"heartbeat_interval"`

	// ReconnectWindow is how long a disconnected participant's slot is held
	// for a matching rejoin.
	ReconnectWindow Duration `yaml:"reconnect_window"`
}

// ProviderEntry is the common configuration block shared by all providers.
type ProviderEntry struct {
	// Name selects the provider implementation (e.g., "deepgram", "deepl").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider.
	Model string `yaml:"model"`
}

// Configured reports whether the entry names a provider.
func (p ProviderEntry) Configured() bool { return p.Name != "" }

// ProvidersConfig declares the provider per pipeline stage.
type ProvidersConfig struct {
	ASR ASRProviders  `yaml:"asr"`
	MT  MTProviders   `yaml:"mt"`
	TTS ProviderEntry `yaml:"tts"`
}

// ASRProviders is the recognition ladder: primary streaming, secondary
// streaming, and a batch recognizer that also backs the chunked fallback.
type ASRProviders struct {
	Primary   ProviderEntry `yaml:"primary"`
	Secondary ProviderEntry `yaml:"secondary"`
	Batch     ProviderEntry `yaml:"batch"`
}

// MTProviders is the translation ladder.
type MTProviders struct {
	Primary  ProviderEntry `yaml:"primary"`
	Fallback ProviderEntry `yaml:"fallback"`
}

// RoutingConfig maps languages onto provider preferences.
type RoutingConfig struct {
	// BatchLanguages lists languages routed to the batch recognizer first,
	// for languages the streaming providers transcribe poorly.
	BatchLanguages []string `yaml:"batch_languages"`
}

// GateConfig holds the utterance-gate thresholds.
type GateConfig struct {
	// MinConfidenceThreshold is the confidence floor for immediate firing.
	MinConfidenceThreshold float64 `yaml:"min_confidence_threshold"`

	// MinWordsForProcessing is the word count a candidate needs before the
	// normal timer path applies.
	MinWordsForProcessing int `yaml:"min_words_for_processing"`

	// MinCharactersForProcessing is the character floor for substantial text.
	MinCharactersForProcessing int `yaml:"min_characters_for_processing"`

	// ShortMessageTimeout is the single-shot timer for 1-2 word candidates.
	ShortMessageTimeout Duration `yaml:"short_message_timeout"`

	// ConversationalPauseThreshold seeds the adaptive medium-pause average.
	ConversationalPauseThreshold Duration `yaml:"conversational_pause_threshold"`

	// SentenceCompletionThreshold is the default pause for scored candidates.
	SentenceCompletionThreshold Duration `yaml:"sentence_completion_threshold"`

	// ThoughtCompletionThreshold is the pause for low-scoring candidates.
	ThoughtCompletionThreshold Duration `yaml:"thought_completion_threshold"`

	// EmergencyTimeout is the upper bound on any gate timer.
	EmergencyTimeout Duration `yaml:"emergency_timeout"`
}

// TranslationConfig holds MT client settings.
type TranslationConfig struct {
	// Timeout bounds a single Translate call including its retry.
	Timeout Duration `yaml:"timeout"`
}

// SynthesisConfig holds TTS client settings.
type SynthesisConfig struct {
	// CacheExactTTL is how long an exact cache key serves hits.
	CacheExactTTL Duration `yaml:"cache_exact_ttl"`

	// CacheNearTTL is how long an emotion-agnostic near key serves hits.
	CacheNearTTL Duration `yaml:"cache_near_ttl"`

	// CacheMaxAge is the hard retention bound on cache entries.
	CacheMaxAge Duration `yaml:"cache_max_age"`

	// RetryAttempts is the total rate-limit attempt budget (first try
	// included).
	RetryAttempts int `yaml:"retry_attempts"`
}

// ReaperConfig holds the background sweeper cadence and idle thresholds.
type ReaperConfig struct {
	Cadence       Duration `yaml:"cadence"`
	ASRIdle       Duration `yaml:"asr_idle"`
	TTSIdle       Duration `yaml:"tts_idle"`
	SessionIdle   Duration `yaml:"session_idle"`
	PendingMaxAge Duration `yaml:"pending_max_age"`
}

// applyDefaults fills zero-valued fields with the documented defaults.
func applyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = ":8080"
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Server.HeartbeatInterval == 0 {
		cfg.Server.HeartbeatInterval = Duration(30 * time.Second)
	}
	if cfg.Server.ReconnectWindow == 0 {
		cfg.Server.ReconnectWindow = Duration(30 * time.Second)
	}

	if cfg.Gate.MinConfidenceThreshold == 0 {
		cfg.Gate.MinConfidenceThreshold = 0.8
	}
	if cfg.Gate.MinWordsForProcessing == 0 {
		cfg.Gate.MinWordsForProcessing = 3
	}
	if cfg.Gate.MinCharactersForProcessing == 0 {
		cfg.Gate.MinCharactersForProcessing = 15
	}
	if cfg.Gate.ShortMessageTimeout == 0 {
		cfg.Gate.ShortMessageTimeout = Duration(3 * time.Second)
	}
	if cfg.Gate.ConversationalPauseThreshold == 0 {
		cfg.Gate.ConversationalPauseThreshold = Duration(750 * time.Millisecond)
	}
	if cfg.Gate.SentenceCompletionThreshold == 0 {
		cfg.Gate.SentenceCompletionThreshold = Duration(1200 * time.Millisecond)
	}
	if cfg.Gate.ThoughtCompletionThreshold == 0 {
		cfg.Gate.ThoughtCompletionThreshold = Duration(2 * time.Second)
	}
	if cfg.Gate.EmergencyTimeout == 0 {
		cfg.Gate.EmergencyTimeout = Duration(4 * time.Second)
	}

	if cfg.Translation.Timeout == 0 {
		cfg.Translation.Timeout = Duration(10 * time.Second)
	}

	if cfg.Synthesis.CacheExactTTL == 0 {
		cfg.Synthesis.CacheExactTTL = Duration(5 * time.Second)
	}
	if cfg.Synthesis.CacheNearTTL == 0 {
		cfg.Synthesis.CacheNearTTL = Duration(3 * time.Second)
	}
	if cfg.Synthesis.CacheMaxAge == 0 {
		cfg.Synthesis.CacheMaxAge = Duration(10 * time.Second)
	}
	if cfg.Synthesis.RetryAttempts == 0 {
		cfg.Synthesis.RetryAttempts = 3
	}

	if cfg.Reaper.Cadence == 0 {
		cfg.Reaper.Cadence = Duration(60 * time.Second)
	}
	if cfg.Reaper.ASRIdle == 0 {
		cfg.Reaper.ASRIdle = Duration(30 * time.Second)
	}
	if cfg.Reaper.TTSIdle == 0 {
		cfg.Reaper.TTSIdle = Duration(5 * time.Minute)
	}
	if cfg.Reaper.SessionIdle == 0 {
		cfg.Reaper.SessionIdle = Duration(3 * time.Minute)
	}
	if cfg.Reaper.PendingMaxAge == 0 {
		cfg.Reaper.PendingMaxAge = Duration(30 * time.Minute)
	}
}
