package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Version     string `koanf:"version"`
	Environment string `koanf:"environment"`
	LogLevel    string `koanf:"log_level"`

	Server   ServerConfig   `koanf:"server"`
	Database DatabaseConfig `koanf:"database"`
	Redis    RedisConfig    `koanf:"redis"`

	LLM        LLMConfig        `koanf:"llm"`
	Injection  InjectionConfig  `koanf:"injection"`
	Behavioral BehavioralConfig `koanf:"behavioral"`
	Validation ValidationConfig `koanf:"validation"`
}

type ServerConfig struct {
	Port            int           `koanf:"port"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`

	RateLimit RateLimitConfig `koanf:"rate_limit"`
}

type RateLimitConfig struct {
	RequestsPerSecond int `koanf:"requests_per_second"`
	BurstSize         int `koanf:"burst_size"`
}

type DatabaseConfig struct {
	URL             string        `koanf:"url"`
	MaxOpenConns    int           `koanf:"max_open_conns"`
	MaxIdleConns    int           `koanf:"max_idle_conns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
}

type RedisConfig struct {
	URL      string `koanf:"url"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db"`
}

type LLMConfig struct {
	APIKey         string        `koanf:"api_key"`
	BaseURL        string        `koanf:"base_url"`
	DefaultModel   string        `koanf:"default_model"`
	MaxTokens      int           `koanf:"max_tokens"`
	RequestTimeout time.Duration `koanf:"request_timeout"`
}

type InjectionConfig struct {
	Probabilistic  bool          `koanf:"probabilistic"`
	RateMultiplier float64       `koanf:"rate_multiplier"`
	Cooldown       time.Duration `koanf:"cooldown"`
}

type BehavioralConfig struct {
	MinInteractions    int           `koanf:"min_interactions"`
	UpdateFrequency    time.Duration `koanf:"update_frequency"`
	AnomalyThreshold   float64       `koanf:"anomaly_threshold"`
	DriftThreshold     float64       `koanf:"drift_threshold"`
	DriftWindowHours   float64       `koanf:"drift_window_hours"`
	MetricsEnabled     bool          `koanf:"metrics_enabled"`
	PersistenceEnabled bool          `koanf:"persistence_enabled"`
}

type ValidationConfig struct {
	MaxLevel   string  `koanf:"max_level"`
	MinQuality float64 `koanf:"min_quality"`
}

func Load() (*Config, error) {
	return LoadFromFile("configs/config.yaml")
}

func LoadFromFile(path string) (*Config, error) {
	k := koanf.New(".")

	defaults := &Config{
		Version:     "dev",
		Environment: "development",
		LogLevel:    "info",
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			RateLimit: RateLimitConfig{
				RequestsPerSecond: 50,
				BurstSize:         100,
			},
		},
		Database: DatabaseConfig{
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Redis: RedisConfig{
			DB: 0,
		},
		LLM: LLMConfig{
			DefaultModel:   "gpt-4o-mini",
			MaxTokens:      500,
			RequestTimeout: 30 * time.Second,
		},
		Injection: InjectionConfig{
			Probabilistic:  true,
			RateMultiplier: 1.0,
			Cooldown:       30 * time.Second,
		},
		Behavioral: BehavioralConfig{
			MinInteractions:    10,
			UpdateFrequency:    6 * time.Hour,
			AnomalyThreshold:   0.7,
			DriftThreshold:     0.8,
			DriftWindowHours:   24,
			MetricsEnabled:     true,
			PersistenceEnabled: true,
		},
		Validation: ValidationConfig{
			MaxLevel:   "expert",
			MinQuality: 0.3,
		},
	}

	if err := k.Load(structs.Provider(defaults, "koanf"), nil); err != nil {
		return nil, fmt.Errorf("loading defaults: %w", err)
	}

	// Config file is optional; environment variables still apply without one.
	_ = k.Load(file.Provider(path), yaml.Parser())

	// Double underscore separates nesting levels so keys with
	// underscores stay addressable: TESTBED_LLM__API_KEY -> llm.api_key.
	if err := k.Load(env.Provider("TESTBED_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(
			strings.TrimPrefix(s, "TESTBED_")), "__", ".", -1)
	}), nil); err != nil {
		return nil, fmt.Errorf("loading environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Injection.RateMultiplier < 0 {
		return fmt.Errorf("injection rate multiplier cannot be negative")
	}
	if c.Behavioral.MinInteractions < 1 {
		return fmt.Errorf("behavioral min_interactions must be at least 1")
	}
	return nil
}
