// Package config loads the autopilot configuration file.
package config

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"

	"github.com/aretw0/autopilot/internal/runtime"
	"github.com/aretw0/autopilot/pkg/interpret"
	"github.com/aretw0/autopilot/pkg/persistence/middleware"
	"github.com/aretw0/autopilot/pkg/prompt"
	"github.com/aretw0/autopilot/pkg/tasks"
)

// Store drivers.
const (
	DriverMemory = "memory"
	DriverRedis  = "redis"
)

// Environment overrides, applied after the file is read.
const (
	EnvAPIKey         = "AUTOPILOT_API_KEY"
	EnvModelBaseURL   = "AUTOPILOT_MODEL_BASE_URL"
	EnvModelName      = "AUTOPILOT_MODEL"
	EnvTargetBaseURL  = "AUTOPILOT_TARGET_URL"
	EnvRedisAddr      = "AUTOPILOT_REDIS_ADDR"
	EnvPermanentToken = "AUTOPILOT_PERMANENT_TOKEN"
	EnvStoreKey       = "AUTOPILOT_STORE_KEY"
)

type Config struct {
	Model     Model          `yaml:"model" json:"model"`
	Transport Transport      `yaml:"transport" json:"transport"`
	Store     Store          `yaml:"store" json:"store"`
	Auth      Auth           `yaml:"auth" json:"auth"`
	Tasks     Tasks          `yaml:"tasks" json:"tasks"`
	Catalog   Catalog        `yaml:"catalog" json:"catalog"`
	Engine    Engine         `yaml:"engine" json:"engine"`
	Autostart Autostart      `yaml:"autostart" json:"autostart"`
	Policy    map[string]any `yaml:"policy" json:"policy"`
	Server    Server         `yaml:"server" json:"server"`
	Log       Log            `yaml:"log" json:"log"`
}

// Model configures the chat-completions endpoint shared by the primary model and the judge.
type Model struct {
	BaseURL     string        `yaml:"base_url" json:"base_url"`
	APIKey      string        `yaml:"api_key" json:"api_key"`
	Name        string        `yaml:"name" json:"name"`
	Temperature float64       `yaml:"temperature" json:"temperature"`
	Timeout     time.Duration `yaml:"timeout" json:"timeout"`
	MaxRetries  int           `yaml:"max_retries" json:"max_retries"`
	// Repair enables the second model call that salvages unrecognized actions.
	Repair bool `yaml:"repair" json:"repair"`
}

// Transport configures calls to the target application.
type Transport struct {
	BaseURL       string        `yaml:"base_url" json:"base_url"`
	Timeout       time.Duration `yaml:"timeout" json:"timeout"`
	RatePerMinute int           `yaml:"rate_per_minute" json:"rate_per_minute"`
	Burst         int           `yaml:"burst" json:"burst"`
	MaxBodyBytes  int64         `yaml:"max_body_bytes" json:"max_body_bytes"`
}

type Store struct {
	Driver string `yaml:"driver" json:"driver"`
	Redis  Redis  `yaml:"redis" json:"redis"`
	// EncryptionKey is a base64 AES-256 key. Values are encrypted at rest when set.
	EncryptionKey string   `yaml:"encryption_key" json:"encryption_key"`
	FallbackKeys  []string `yaml:"fallback_keys" json:"fallback_keys"`
	// EncryptKeys limits encryption to these state keys. Empty means all.
	EncryptKeys []string `yaml:"encrypt_keys" json:"encrypt_keys"`
	// Redact lists key patterns masked in state snapshots.
	Redact []string `yaml:"redact" json:"redact"`
}

type Redis struct {
	Addr     string        `yaml:"addr" json:"addr"`
	Password string        `yaml:"password" json:"password"`
	DB       int           `yaml:"db" json:"db"`
	Prefix   string        `yaml:"prefix" json:"prefix"`
	TTL      time.Duration `yaml:"ttl" json:"ttl"`
}

type Auth struct {
	PermanentToken string `yaml:"permanent_token" json:"permanent_token"`
	LoginPattern   string `yaml:"login_pattern" json:"login_pattern"`
}

type Tasks struct {
	Path      string `yaml:"path" json:"path"`
	Delimiter string `yaml:"delimiter" json:"delimiter"`
}

type Catalog struct {
	Path string `yaml:"path" json:"path"`
}

type Engine struct {
	MaxIterations int           `yaml:"max_iterations" json:"max_iterations"`
	ContinueDelay time.Duration `yaml:"continue_delay" json:"continue_delay"`
	TurnoverDelay time.Duration `yaml:"turnover_delay" json:"turnover_delay"`
	ErrorBackoff  time.Duration `yaml:"error_backoff" json:"error_backoff"`
	Persona       string        `yaml:"persona" json:"persona"`
}

type Autostart struct {
	Enabled bool          `yaml:"enabled" json:"enabled"`
	Delay   time.Duration `yaml:"delay" json:"delay"`
}

type Server struct {
	Addr    string `yaml:"addr" json:"addr"`
	Metrics bool   `yaml:"metrics" json:"metrics"`
}

type Log struct {
	Level string `yaml:"level" json:"level"`
	JSON  bool   `yaml:"json" json:"json"`
}

// Default returns a configuration where every knob has its standard value.
func Default() Config {
	rt := runtime.DefaultConfig()
	return Config{
		Model: Model{
			BaseURL:    "https://api.openai.com/v1",
			Name:       "gpt-4o-mini",
			Timeout:    60 * time.Second,
			MaxRetries: 2,
			Repair:     true,
		},
		Transport: Transport{
			Timeout:       30 * time.Second,
			RatePerMinute: 60,
			Burst:         1,
			MaxBodyBytes:  2 << 20,
		},
		Store: Store{
			Driver: DriverMemory,
			Redis:  Redis{Addr: "localhost:6379", Prefix: "autopilot:"},
			Redact: []string{"token"},
		},
		Auth:  Auth{LoginPattern: "login"},
		Tasks: Tasks{Path: "tasks.txt", Delimiter: tasks.DefaultDelimiter},
		Catalog: Catalog{
			Path: "catalog.txt",
		},
		Engine: Engine{
			MaxIterations: rt.MaxIterations,
			ContinueDelay: rt.ContinueDelay,
			TurnoverDelay: rt.TurnoverDelay,
			ErrorBackoff:  rt.ErrorBackoff,
		},
		Autostart: Autostart{Delay: 5 * time.Second},
		Server:    Server{Addr: ":8080", Metrics: true},
		Log:       Log{Level: "info"},
	}
}

// Load reads path over the defaults. A missing file yields the defaults.
// Environment overrides are applied in both cases.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
		case err != nil:
			return Config{}, fmt.Errorf("failed to read config: %w", err)
		default:
			if err := decode(path, data, &cfg); err != nil {
				return Config{}, err
			}
		}
	}
	cfg.applyEnv(os.Getenv)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// decode picks the format from the extension. JSON durations are nanosecond integers.
func decode(path string, data []byte, cfg *Config) error {
	if strings.ToLower(filepath.Ext(path)) == ".json" {
		if err := json.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("failed to parse %s: %w", path, err)
		}
		return nil
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv(getenv func(string) string) {
	set := func(dst *string, key string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	set(&c.Model.APIKey, EnvAPIKey)
	set(&c.Model.BaseURL, EnvModelBaseURL)
	set(&c.Model.Name, EnvModelName)
	set(&c.Transport.BaseURL, EnvTargetBaseURL)
	set(&c.Store.Redis.Addr, EnvRedisAddr)
	set(&c.Auth.PermanentToken, EnvPermanentToken)
	set(&c.Store.EncryptionKey, EnvStoreKey)
}

// Validate rejects values no component can work with.
func (c Config) Validate() error {
	switch c.Store.Driver {
	case DriverMemory, DriverRedis:
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}
	if c.Engine.MaxIterations < 0 {
		return fmt.Errorf("engine.max_iterations must not be negative")
	}
	if c.Tasks.Delimiter == "" {
		return fmt.Errorf("tasks.delimiter must not be empty")
	}
	if _, err := c.StoreMiddleware(); err != nil {
		return err
	}
	if _, err := c.PromptPolicy(); err != nil {
		return err
	}
	if _, err := c.MatchPolicy(); err != nil {
		return err
	}
	return nil
}

// StoreMiddleware builds the wrappers applied to the state backend:
// redaction outermost, then encryption.
func (c Config) StoreMiddleware() ([]middleware.Middleware, error) {
	var mws []middleware.Middleware
	if len(c.Store.Redact) > 0 {
		mw, err := middleware.NewRedactionMiddleware(c.Store.Redact)
		if err != nil {
			return nil, fmt.Errorf("store.redact: %w", err)
		}
		mws = append(mws, mw)
	}
	if c.Store.EncryptionKey == "" {
		return mws, nil
	}
	active, err := decodeKey(c.Store.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("store.encryption_key: %w", err)
	}
	enc := middleware.EncryptionConfig{ActiveKey: active, Keys: c.Store.EncryptKeys}
	for i, k := range c.Store.FallbackKeys {
		key, err := decodeKey(k)
		if err != nil {
			return nil, fmt.Errorf("store.fallback_keys[%d]: %w", i, err)
		}
		enc.FallbackKeys = append(enc.FallbackKeys, key)
	}
	mw, err := middleware.NewEncryptionMiddleware(enc)
	if err != nil {
		return nil, fmt.Errorf("store encryption: %w", err)
	}
	return append(mws, mw), nil
}

func decodeKey(s string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("key must be base64: %w", err)
	}
	return key, nil
}

// Runtime returns the engine bounds and pacing.
func (c Config) Runtime() runtime.Config {
	return runtime.Config{
		MaxIterations: c.Engine.MaxIterations,
		ContinueDelay: c.Engine.ContinueDelay,
		TurnoverDelay: c.Engine.TurnoverDelay,
		ErrorBackoff:  c.Engine.ErrorBackoff,
	}
}

// PromptPolicy decodes the policy section over prompt.DefaultPolicy.
func (c Config) PromptPolicy() (prompt.Policy, error) {
	p := prompt.DefaultPolicy()
	if err := decodePolicy(c.Policy, &p); err != nil {
		return prompt.Policy{}, err
	}
	return p, nil
}

// MatchPolicy decodes the policy section over interpret.DefaultMatchPolicy.
func (c Config) MatchPolicy() (interpret.MatchPolicy, error) {
	p := interpret.DefaultMatchPolicy()
	if err := decodePolicy(c.Policy, &p); err != nil {
		return interpret.MatchPolicy{}, err
	}
	if p.Ratio <= 0 || p.Ratio > 1 {
		return interpret.MatchPolicy{}, fmt.Errorf("policy.keyword_match_ratio must be in (0, 1], got %v", p.Ratio)
	}
	return p, nil
}

// decodePolicy overlays the keys present in raw onto out. Lists replace the defaults.
func decodePolicy(raw map[string]any, out any) error {
	if len(raw) == 0 {
		return nil
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
		ZeroFields:       true,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(raw); err != nil {
		return fmt.Errorf("invalid policy: %w", err)
	}
	return nil
}
