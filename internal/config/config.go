// Package config provides environment configuration for the API server.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	Env       string          `mapstructure:"env"`
	Server    ServerConfig    `mapstructure:"server"`
	Session   SessionConfig   `mapstructure:"session"`
	Match     MatchConfig     `mapstructure:"match"`
	Rating    RatingConfig    `mapstructure:"rating"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	NATS      NATSConfig      `mapstructure:"nats"`
	Auth      AuthConfig      `mapstructure:"auth"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Log       LogConfig       `mapstructure:"log"`
	Tracing   TracingConfig   `mapstructure:"tracing"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port              string        `mapstructure:"port"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
	AllowedOrigins    []string      `mapstructure:"allowed_origins"`
}

// SessionConfig holds chat session limits and pacing.
type SessionConfig struct {
	Duration         time.Duration `mapstructure:"duration"`
	MessageCap       int           `mapstructure:"message_cap"`
	MaxMessageLength int           `mapstructure:"max_message_length"`
	ResponseTimeout  time.Duration `mapstructure:"response_timeout"`
	HistoryWindow    int           `mapstructure:"history_window"`
	TickInterval     time.Duration `mapstructure:"tick_interval"`
	IdleTimeout      time.Duration `mapstructure:"idle_timeout"`
	EvictAfter       time.Duration `mapstructure:"evict_after"`
	ReaperSchedule   string        `mapstructure:"reaper_schedule"`
	PersistTimeout   time.Duration `mapstructure:"persist_timeout"`
}

// MatchConfig holds matchmaking pacing.
type MatchConfig struct {
	QueuePause       time.Duration `mapstructure:"queue_pause"`
	SearchPause      time.Duration `mapstructure:"search_pause"`
	Timeout          time.Duration `mapstructure:"timeout"`
	SampleSize       int           `mapstructure:"sample_size"`
	ErrorStatusClear time.Duration `mapstructure:"error_status_clear"`
}

// RatingConfig holds the rating deltas.
type RatingConfig struct {
	WinDelta  int `mapstructure:"win_delta"`
	LossDelta int `mapstructure:"loss_delta"`
	Initial   int `mapstructure:"initial"`
}

// LLMConfig selects and configures the text-generation provider.
type LLMConfig struct {
	Provider        string  `mapstructure:"provider"`
	APIKey          string  `mapstructure:"api_key"`
	GeminiAPIKey    string  `mapstructure:"gemini_api_key"`
	OpenAIAPIKey    string  `mapstructure:"openai_api_key"`
	AnthropicAPIKey string  `mapstructure:"anthropic_api_key"`
	Model           string  `mapstructure:"model"`
	BaseURL         string  `mapstructure:"base_url"`
	Temperature     float64 `mapstructure:"temperature"`
	MaxTokens       int     `mapstructure:"max_tokens"`
}

// DatabaseConfig holds the Postgres connection. An empty URL selects the in-memory store.
type DatabaseConfig struct {
	URL          string        `mapstructure:"url"`
	MaxOpenConns int           `mapstructure:"max_open_conns"`
	MaxIdleConns int           `mapstructure:"max_idle_conns"`
	ConnLifetime time.Duration `mapstructure:"conn_lifetime"`
	AutoMigrate  bool          `mapstructure:"auto_migrate"`
}

// RedisConfig holds the profile cache connection. An empty URL selects the in-memory cache.
type RedisConfig struct {
	URL        string        `mapstructure:"url"`
	ProfileTTL time.Duration `mapstructure:"profile_ttl"`
}

// NATSConfig holds the JetStream connection. An empty URL disables the event log.
type NATSConfig struct {
	URL      string `mapstructure:"url"`
	CAFile   string `mapstructure:"ca_file"`
	CertFile string `mapstructure:"cert_file"`
	KeyFile  string `mapstructure:"key_file"`
	Token    string `mapstructure:"token"`
}

// AuthConfig holds JWT verification settings.
type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
}

// RateLimitConfig holds per-user request limits.
type RateLimitConfig struct {
	Requests int           `mapstructure:"requests"`
	Window   time.Duration `mapstructure:"window"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// TracingConfig holds OTLP tracing settings.
type TracingConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Endpoint string `mapstructure:"endpoint"`
}

// Load reads configuration from an optional config.yaml and the environment.
// Nested keys map to upper-case env names, so session.duration is SESSION_DURATION.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	bindEnv(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.LLM.APIKey = cfg.LLM.ResolveAPIKey()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("env", "production")

	v.SetDefault("server.port", "8080")
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", time.Duration(0))
	v.SetDefault("server.shutdown_timeout", 30*time.Second)
	v.SetDefault("server.heartbeat_interval", 15*time.Second)
	v.SetDefault("server.allowed_origins", []string{})

	v.SetDefault("session.duration", 300*time.Second)
	v.SetDefault("session.message_cap", 20)
	v.SetDefault("session.max_message_length", 500)
	v.SetDefault("session.response_timeout", 20*time.Second)
	v.SetDefault("session.history_window", 12)
	v.SetDefault("session.tick_interval", time.Second)
	v.SetDefault("session.idle_timeout", 45*time.Second)
	v.SetDefault("session.evict_after", 30*time.Minute)
	v.SetDefault("session.reaper_schedule", "@every 30s")
	v.SetDefault("session.persist_timeout", 10*time.Second)

	v.SetDefault("match.queue_pause", 900*time.Millisecond)
	v.SetDefault("match.search_pause", 1200*time.Millisecond)
	v.SetDefault("match.timeout", 12*time.Second)
	v.SetDefault("match.sample_size", 25)
	v.SetDefault("match.error_status_clear", 2*time.Second)

	v.SetDefault("rating.win_delta", 25)
	v.SetDefault("rating.loss_delta", -20)
	v.SetDefault("rating.initial", 1000)

	v.SetDefault("llm.provider", "gemini")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.gemini_api_key", "")
	v.SetDefault("llm.openai_api_key", "")
	v.SetDefault("llm.anthropic_api_key", "")
	v.SetDefault("llm.model", "")
	v.SetDefault("llm.base_url", "")
	v.SetDefault("llm.temperature", 0.9)
	v.SetDefault("llm.max_tokens", 150)

	v.SetDefault("database.url", "")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_lifetime", time.Hour)
	v.SetDefault("database.auto_migrate", false)

	v.SetDefault("redis.url", "")
	v.SetDefault("redis.profile_ttl", 10*time.Minute)

	v.SetDefault("nats.url", "")
	v.SetDefault("nats.ca_file", "")
	v.SetDefault("nats.cert_file", "")
	v.SetDefault("nats.key_file", "")
	v.SetDefault("nats.token", "")

	v.SetDefault("auth.jwt_secret", "development-secret-change-in-production")

	v.SetDefault("rate_limit.requests", 120)
	v.SetDefault("rate_limit.window", time.Minute)

	v.SetDefault("log.level", "info")

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.endpoint", "localhost:4318")
}

// bindEnv maps keys whose env names do not follow the nested-key convention.
func bindEnv(v *viper.Viper) {
	_ = v.BindEnv("server.port", "PORT")
	_ = v.BindEnv("env", "ENV")
	_ = v.BindEnv("llm.gemini_api_key", "GEMINI_API_KEY")
	_ = v.BindEnv("llm.openai_api_key", "OPENAI_API_KEY")
	_ = v.BindEnv("llm.anthropic_api_key", "ANTHROPIC_API_KEY")
	_ = v.BindEnv("database.url", "DATABASE_URL")
	_ = v.BindEnv("redis.url", "REDIS_URL")
	_ = v.BindEnv("nats.url", "NATS_URL")
	_ = v.BindEnv("auth.jwt_secret", "JWT_SECRET")
	_ = v.BindEnv("log.level", "LOG_LEVEL")
}

// ResolveAPIKey returns LLM_API_KEY, or the provider-specific key when it is unset.
func (c LLMConfig) ResolveAPIKey() string {
	if c.APIKey != "" {
		return c.APIKey
	}
	switch strings.ToLower(c.Provider) {
	case "gemini":
		return c.GeminiAPIKey
	case "openai":
		return c.OpenAIAPIKey
	case "anthropic":
		return c.AnthropicAPIKey
	}
	return ""
}

// Validate rejects settings the session controller cannot run with.
func (c *Config) Validate() error {
	if c.Session.Duration < time.Second {
		return fmt.Errorf("session duration must be at least 1s, got %s", c.Session.Duration)
	}
	if c.Session.MessageCap < 1 {
		return fmt.Errorf("session message cap must be positive, got %d", c.Session.MessageCap)
	}
	if c.Session.MaxMessageLength < 1 {
		return fmt.Errorf("max message length must be positive, got %d", c.Session.MaxMessageLength)
	}
	if c.Session.TickInterval <= 0 {
		return fmt.Errorf("tick interval must be positive, got %s", c.Session.TickInterval)
	}
	if c.Session.IdleTimeout > 0 && c.Server.HeartbeatInterval >= c.Session.IdleTimeout {
		return fmt.Errorf("heartbeat interval %s must be shorter than the idle timeout %s",
			c.Server.HeartbeatInterval, c.Session.IdleTimeout)
	}
	if c.Match.SampleSize < 1 {
		return fmt.Errorf("match sample size must be positive, got %d", c.Match.SampleSize)
	}
	return nil
}
