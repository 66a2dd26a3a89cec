// Package config loads siteintent settings from defaults, a YAML file,
// SITEINTENT_* environment variables and bound CLI flags, in increasing
// priority.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/ppiankov/siteintent/internal/cache"
	"github.com/ppiankov/siteintent/internal/llm"
	"github.com/ppiankov/siteintent/internal/registry"
	"github.com/ppiankov/siteintent/internal/score"
)

// EnvPrefix is prepended to every environment override
const EnvPrefix = "SITEINTENT"

// Config is the complete runtime configuration
type Config struct {
	LLM       LLMConfig       `mapstructure:"llm" yaml:"llm"`
	Resolve   ResolveConfig   `mapstructure:"resolve" yaml:"resolve"`
	Gate      GateConfig      `mapstructure:"gate" yaml:"gate"`
	Registry  RegistryConfig  `mapstructure:"registry" yaml:"registry"`
	MissLog   MissLogConfig   `mapstructure:"misslog" yaml:"misslog"`
	Cache     CacheConfig     `mapstructure:"cache" yaml:"cache"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit" yaml:"rate_limit"`
	Logging   LoggingConfig   `mapstructure:"logging" yaml:"logging"`
	Publish   PublishConfig   `mapstructure:"publish" yaml:"publish"`
	Profile   ProfileConfig   `mapstructure:"profile" yaml:"profile"`
}

// LLMConfig selects the generative provider; an empty provider disables it
type LLMConfig struct {
	Provider    string        `mapstructure:"provider" yaml:"provider" validate:"omitempty,oneof=openai anthropic claude ollama"`
	Model       string        `mapstructure:"model" yaml:"model"`
	APIKey      string        `mapstructure:"api_key" yaml:"api_key,omitempty"`
	BaseURL     string        `mapstructure:"base_url" yaml:"base_url,omitempty"`
	Timeout     time.Duration `mapstructure:"timeout" yaml:"timeout" validate:"gte=0"`
	MaxTokens   int           `mapstructure:"max_tokens" yaml:"max_tokens" validate:"gte=0"`
	TokenBudget int           `mapstructure:"token_budget" yaml:"token_budget" validate:"gte=0"`
	Prefetch    bool          `mapstructure:"prefetch" yaml:"prefetch"`
}

// ResolveConfig tunes the resolvers
type ResolveConfig struct {
	IntentMap      string   `mapstructure:"intent_map" yaml:"intent_map"`
	CountryCode    string   `mapstructure:"country_code" yaml:"country_code" validate:"omitempty,numeric"`
	FuzzyThreshold float64  `mapstructure:"fuzzy_threshold" yaml:"fuzzy_threshold" validate:"gte=0,lte=1"`
	ProfileBaseURL string   `mapstructure:"profile_base_url" yaml:"profile_base_url" validate:"omitempty,url"`
	VCardTemplate  string   `mapstructure:"vcard_template" yaml:"vcard_template"`
	MapsSearchURL  string   `mapstructure:"maps_search_url" yaml:"maps_search_url" validate:"omitempty,url"`
	TrustedSources []string `mapstructure:"trusted_sources" yaml:"trusted_sources"`
}

// GateConfig holds the coverage threshold and the thin payload minimum.
// Threshold is clamped at use, so an out of range value is not an error.
type GateConfig struct {
	Threshold  float64 `mapstructure:"threshold" yaml:"threshold"`
	MinPayload int     `mapstructure:"min_payload" yaml:"min_payload" validate:"gte=0"`
}

// RegistryConfig points at the business registry; empty endpoint disables it
type RegistryConfig struct {
	Endpoint string        `mapstructure:"endpoint" yaml:"endpoint" validate:"omitempty,url"`
	APIKey   string        `mapstructure:"api_key" yaml:"api_key,omitempty"`
	Source   string        `mapstructure:"source" yaml:"source"`
	Timeout  time.Duration `mapstructure:"timeout" yaml:"timeout" validate:"gte=0"`
	CacheTTL time.Duration `mapstructure:"cache_ttl" yaml:"cache_ttl" validate:"gte=0"`
}

// MissLogConfig selects where unresolved and dropped fields are recorded
type MissLogConfig struct {
	Sink     string `mapstructure:"sink" yaml:"sink" validate:"oneof=none file redis"`
	Path     string `mapstructure:"path" yaml:"path" validate:"required_if=Sink file"`
	RedisURL string `mapstructure:"redis_url" yaml:"redis_url" validate:"required_if=Sink redis"`
	RedisKey string `mapstructure:"redis_key" yaml:"redis_key"`
	MaxLen   int64  `mapstructure:"max_len" yaml:"max_len" validate:"gte=0"`
}

// CacheConfig backs registry lookups
type CacheConfig struct {
	Kind string        `mapstructure:"kind" yaml:"kind" validate:"oneof=none memory disk layered"`
	Dir  string        `mapstructure:"dir" yaml:"dir"`
	TTL  time.Duration `mapstructure:"ttl" yaml:"ttl" validate:"gte=0"`
}

// RateLimitConfig is requests per second per host, burst 1. Zero is unlimited.
type RateLimitConfig struct {
	RequestsPerSecond float64 `mapstructure:"requests_per_second" yaml:"requests_per_second" validate:"gte=0"`
}

// LoggingConfig configures zap
type LoggingConfig struct {
	Level       string `mapstructure:"level" yaml:"level" validate:"oneof=debug info warn error"`
	Development bool   `mapstructure:"development" yaml:"development"`
}

// PublishConfig selects the push target. Endpoint wins over Dir.
type PublishConfig struct {
	Dir      string        `mapstructure:"dir" yaml:"dir"`
	Endpoint string        `mapstructure:"endpoint" yaml:"endpoint" validate:"omitempty,url"`
	Token    string        `mapstructure:"token" yaml:"token,omitempty"`
	Timeout  time.Duration `mapstructure:"timeout" yaml:"timeout" validate:"gte=0"`
}

// ProfileConfig toggles the two-stage evidence/profile LLM flow
type ProfileConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
}

// Proxy settings are shared by every outbound client
type Proxy struct {
	HTTP    string
	HTTPS   string
	NoProxy string
}

// Default returns the built-in configuration
func Default() Config {
	return Config{
		LLM: LLMConfig{
			Model:       "gpt-4o-mini",
			Timeout:     llm.DefaultStageTimeout,
			MaxTokens:   2000,
			TokenBudget: llm.DefaultTokenBudget,
		},
		Resolve: ResolveConfig{
			CountryCode:    "61",
			FuzzyThreshold: 0.6,
		},
		Gate: GateConfig{
			Threshold:  score.DefaultThreshold,
			MinPayload: score.DefaultMinPayload,
		},
		Registry: RegistryConfig{
			Source:   registry.DefaultSource,
			Timeout:  registry.DefaultTimeout,
			CacheTTL: 24 * time.Hour,
		},
		MissLog: MissLogConfig{
			Sink:     "none",
			RedisKey: "siteintent:misslog",
			MaxLen:   10000,
		},
		Cache: CacheConfig{
			Kind: cache.KindMemory,
			TTL:  24 * time.Hour,
		},
		RateLimit: RateLimitConfig{RequestsPerSecond: 2},
		Logging:   LoggingConfig{Level: "info"},
		Publish:   PublishConfig{Timeout: 20 * time.Second},
		Profile:   ProfileConfig{Enabled: false},
	}
}

// SetDefaults registers every default on v so environment variables are
// seen by Unmarshal even for keys absent from the config file
func SetDefaults(v *viper.Viper) {
	d := Default()
	defaults := map[string]any{
		"llm.provider":                   d.LLM.Provider,
		"llm.model":                      d.LLM.Model,
		"llm.api_key":                    d.LLM.APIKey,
		"llm.base_url":                   d.LLM.BaseURL,
		"llm.timeout":                    d.LLM.Timeout,
		"llm.max_tokens":                 d.LLM.MaxTokens,
		"llm.token_budget":               d.LLM.TokenBudget,
		"llm.prefetch":                   d.LLM.Prefetch,
		"resolve.intent_map":             d.Resolve.IntentMap,
		"resolve.country_code":           d.Resolve.CountryCode,
		"resolve.fuzzy_threshold":        d.Resolve.FuzzyThreshold,
		"resolve.profile_base_url":       d.Resolve.ProfileBaseURL,
		"resolve.vcard_template":         d.Resolve.VCardTemplate,
		"resolve.maps_search_url":        d.Resolve.MapsSearchURL,
		"resolve.trusted_sources":        d.Resolve.TrustedSources,
		"gate.threshold":                 d.Gate.Threshold,
		"gate.min_payload":               d.Gate.MinPayload,
		"registry.endpoint":              d.Registry.Endpoint,
		"registry.api_key":               d.Registry.APIKey,
		"registry.source":                d.Registry.Source,
		"registry.timeout":               d.Registry.Timeout,
		"registry.cache_ttl":             d.Registry.CacheTTL,
		"misslog.sink":                   d.MissLog.Sink,
		"misslog.path":                   d.MissLog.Path,
		"misslog.redis_url":              d.MissLog.RedisURL,
		"misslog.redis_key":              d.MissLog.RedisKey,
		"misslog.max_len":                d.MissLog.MaxLen,
		"cache.kind":                     d.Cache.Kind,
		"cache.dir":                      d.Cache.Dir,
		"cache.ttl":                      d.Cache.TTL,
		"rate_limit.requests_per_second": d.RateLimit.RequestsPerSecond,
		"logging.level":                  d.Logging.Level,
		"logging.development":            d.Logging.Development,
		"publish.dir":                    d.Publish.Dir,
		"publish.endpoint":               d.Publish.Endpoint,
		"publish.token":                  d.Publish.Token,
		"publish.timeout":                d.Publish.Timeout,
		"profile.enabled":                d.Profile.Enabled,
	}
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
}

// BindEnv wires SITEINTENT_* overrides, e.g. SITEINTENT_GATE_THRESHOLD
func BindEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// Load unmarshals v into a validated Config. Provider API keys fall back to
// the conventional OPENAI_API_KEY / ANTHROPIC_API_KEY / OLLAMA_BASE_URL.
func Load(v *viper.Viper) (*Config, error) {
	SetDefaults(v)
	BindEnv(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	applyProviderEnv(&cfg.LLM)

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks struct tags and cross-field rules
func Validate(cfg *Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	switch {
	case llm.RequiresAPIKey(cfg.LLM.Provider) && cfg.LLM.APIKey == "":
		return fmt.Errorf("invalid config: llm.api_key is required for provider %s", cfg.LLM.Provider)
	case llm.CanonicalProvider(cfg.LLM.Provider) == llm.ProviderOllama && cfg.LLM.Model == "":
		return fmt.Errorf("invalid config: llm.model is required for ollama")
	}
	return nil
}

func applyProviderEnv(c *LLMConfig) {
	keyEnv, urlEnv := llm.ProviderEnv(c.Provider)
	if c.APIKey == "" && keyEnv != "" {
		c.APIKey = os.Getenv(keyEnv)
	}
	if c.BaseURL == "" && urlEnv != "" {
		c.BaseURL = os.Getenv(urlEnv)
	}
}

// ProviderConfig converts the llm section for llm.NewProvider
func (c *Config) ProviderConfig(p Proxy) llm.Config {
	return llm.Config{
		Provider:   c.LLM.Provider,
		Model:      c.LLM.Model,
		APIKey:     c.LLM.APIKey,
		BaseURL:    c.LLM.BaseURL,
		Timeout:    int(c.LLM.Timeout / time.Second),
		MaxTokens:  c.LLM.MaxTokens,
		HTTPProxy:  p.HTTP,
		HTTPSProxy: p.HTTPS,
		NoProxy:    p.NoProxy,
	}
}
