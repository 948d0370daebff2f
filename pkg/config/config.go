package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/chatrelay-ai/chatrelay/pkg/models"
)

// Config holds all chatrelay configuration.
type Config struct {
	Listen       string             `yaml:"listen"`
	AdminToken   string             `yaml:"admin_token"`
	Providers    []ProviderConfig   `yaml:"providers"`
	Limits       LimitsConfig       `yaml:"limits"`
	Cache        CacheConfig        `yaml:"cache"`
	Router       RouterConfig       `yaml:"router"`
	Moderation   ModerationConfig   `yaml:"moderation"`
	Audit        models.AuditConfig `yaml:"audit"`
	SystemPrompt string             `yaml:"system_prompt"`
	// StrictGrounding makes providers refuse questions outside the
	// facts carried in the system prompt instead of answering from
	// general knowledge.
	StrictGrounding bool          `yaml:"strict_grounding"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
}

// ProviderConfig defines one upstream AI backend.
// Kind is "chat" (OpenAI-style chat completions), "textgen"
// (single-generation array envelope), or "math" (query/pods envelope).
type ProviderConfig struct {
	Name   string `yaml:"name"`
	Kind   string `yaml:"kind"`
	URL    string `yaml:"url"`
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`
}

// LimitsConfig controls request admission.
type LimitsConfig struct {
	Cooldown        time.Duration `yaml:"cooldown"`
	DailyLimit      int           `yaml:"daily_limit"`
	DailyLimitAdmin int           `yaml:"daily_limit_admin"`
	MaxConcurrent   int           `yaml:"max_concurrent"`
	// ChargeCached decides whether a cache hit consumes a cooldown and
	// quota slot. Both behaviors exist in the wild; false (cache hits
	// are free) is the documented default here.
	ChargeCached bool `yaml:"charge_cached"`
}

// CacheConfig controls the response cache.
type CacheConfig struct {
	Enabled bool          `yaml:"enabled"`
	TTL     time.Duration `yaml:"ttl"`
	// HashKeys switches the cache key from the historical lossy
	// 50-character prompt prefix to a full SHA-256 content hash.
	HashKeys bool `yaml:"hash_keys"`
}

// RouterConfig selects how prompts map to providers.
// Mode is "keyword" or "single".
type RouterConfig struct {
	Mode    string      `yaml:"mode"`
	Default string      `yaml:"default"`
	Rules   []RouteRule `yaml:"rules"`
}

// RouteRule sends prompts matching any keyword to a named provider.
type RouteRule struct {
	Category string   `yaml:"category"`
	Provider string   `yaml:"provider"`
	Keywords []string `yaml:"keywords"`
}

// ModerationConfig holds the blocked-word screen.
type ModerationConfig struct {
	BlockedWords []string `yaml:"blocked_words"`
	Message      string   `yaml:"message"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Listen: ":8080",
		Limits: LimitsConfig{
			Cooldown:        15 * time.Second,
			DailyLimit:      30,
			DailyLimitAdmin: 50,
			MaxConcurrent:   2,
		},
		Cache: CacheConfig{
			Enabled: true,
			TTL:     5 * time.Minute,
		},
		Router: RouterConfig{
			Mode: "keyword",
		},
		Moderation: ModerationConfig{
			Message: "Please keep the conversation civil.",
		},
		SystemPrompt:   "You are a helpful class assistant. Answer clearly and keep a friendly tone.",
		RequestTimeout: 15 * time.Second,
	}
}

// Load reads a YAML config file and expands environment variables.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations that cannot serve requests. A provider
// without a credential is a startup failure, not a per-request one.
func (c *Config) Validate() error {
	for _, p := range c.Providers {
		if p.Name == "" {
			return fmt.Errorf("provider with empty name")
		}
		if p.URL == "" {
			return fmt.Errorf("provider %q: missing url", p.Name)
		}
		if p.APIKey == "" {
			return fmt.Errorf("provider %q: missing api_key", p.Name)
		}
		switch p.Kind {
		case "", "chat", "textgen", "math":
		default:
			return fmt.Errorf("provider %q: unknown kind %q", p.Name, p.Kind)
		}
	}
	switch c.Router.Mode {
	case "", "keyword", "single":
	default:
		return fmt.Errorf("router: unknown mode %q", c.Router.Mode)
	}
	return nil
}
