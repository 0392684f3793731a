package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds everything the gateway needs at runtime.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Chat     ChatConfig     `mapstructure:"chat"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Vault    VaultConfig    `mapstructure:"vault"`
	OpenAI   OpenAIConfig   `mapstructure:"openai"`
	Detector DetectorConfig `mapstructure:"detector"`
	Teams    TeamsConfig    `mapstructure:"teams"`
	Telegram TelegramConfig `mapstructure:"telegram"`
	Database DatabaseConfig `mapstructure:"database"`
	Admin    AdminConfig    `mapstructure:"admin"`
	Rules    RulesConfig    `mapstructure:"rules"`
	Log      LogConfig      `mapstructure:"log"`
}

// ServerConfig configures the HTTP/WebSocket listener.
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"` // debug, release
}

// ChatConfig bounds a single user turn.
type ChatConfig struct {
	TurnTimeout time.Duration `mapstructure:"turn_timeout"` // 0 = no cap
}

// RedisConfig points at the PII store.
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Addr returns host:port for the redis client.
func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// VaultConfig sets the placeholder and status lifetimes.
type VaultConfig struct {
	TTL       time.Duration `mapstructure:"ttl"`
	StatusTTL time.Duration `mapstructure:"status_ttl"`
}

// OpenAIConfig configures the Assistants backend.
type OpenAIConfig struct {
	APIKey      string        `mapstructure:"api_key"`
	AssistantID string        `mapstructure:"assistant_id"`
	BaseURL     string        `mapstructure:"base_url"`
	Timeout     time.Duration `mapstructure:"timeout"` // management calls, not run streams
}

// DetectorConfig points at the entity-detection sidecar.
type DetectorConfig struct {
	URL     string        `mapstructure:"url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// TeamsConfig configures the operator channel: the incoming webhook for
// escalation cards and the Bot Framework credentials for the bridge.
type TeamsConfig struct {
	WebhookURL  string `mapstructure:"webhook_url"`
	AppID       string `mapstructure:"app_id"`
	AppPassword string `mapstructure:"app_password"`
}

// TelegramConfig configures the optional second operator channel.
type TelegramConfig struct {
	BotToken     string  `mapstructure:"bot_token"`
	AllowedChats []int64 `mapstructure:"allowed_chats"` // empty = any chat
}

// Enabled reports whether the telegram adapter should start.
func (c TelegramConfig) Enabled() bool {
	return c.BotToken != ""
}

// DatabaseConfig selects the audit store backend.
type DatabaseConfig struct {
	Type string `mapstructure:"type"` // sqlite, postgres
	DSN  string `mapstructure:"dsn"`
}

// AdminConfig toggles the TrainingsHub endpoints.
type AdminConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// RulesConfig points at the optional redaction rules file.
type RulesConfig struct {
	Path string `mapstructure:"path"` // empty = built-in rules only
}

// LogConfig configures logging output.
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

// Load builds the configuration. Priority, low to high: built-in defaults,
// ./config/config.yaml or ./config.yaml, environment variables. Besides the
// GATEWAY_* names derived from the key paths, the canonical deployment
// variables (REDIS_HOST, OPENAI_API_KEY, TEAMS_WEBHOOK_URL, ...) are bound
// explicitly.
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	for _, localDir := range []string{"./config", "."} {
		localPath := filepath.Join(localDir, "config.yaml")
		if _, err := os.Stat(localPath); err == nil {
			v.SetConfigFile(localPath)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
			break
		}
	}

	v.SetEnvPrefix("GATEWAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindCanonicalEnv(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 1985)
	v.SetDefault("server.mode", "release")

	v.SetDefault("chat.turn_timeout", "5m")

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("vault.ttl", "1h")
	v.SetDefault("vault.status_ttl", "24h")

	v.SetDefault("openai.api_key", "")
	v.SetDefault("openai.assistant_id", "")
	v.SetDefault("openai.base_url", "https://api.openai.com/v1")
	v.SetDefault("openai.timeout", "30s")

	v.SetDefault("detector.url", "http://localhost:9090/predict")
	v.SetDefault("detector.timeout", "10s")

	v.SetDefault("teams.webhook_url", "")
	v.SetDefault("teams.app_id", "")
	v.SetDefault("teams.app_password", "")

	v.SetDefault("telegram.bot_token", "")

	v.SetDefault("database.type", "sqlite")
	v.SetDefault("database.dsn", "training_hub.db")

	v.SetDefault("admin.enabled", false)

	v.SetDefault("rules.path", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.output_path", "stdout")
}

// bindCanonicalEnv wires the deployment variable names used by compose files
// and the ops runbook. They win over config.yaml like any env value.
func bindCanonicalEnv(v *viper.Viper) {
	binds := map[string][]string{
		"server.port":         {"SERVICE_PORT"},
		"redis.host":          {"REDIS_HOST"},
		"redis.port":          {"REDIS_PORT"},
		"openai.api_key":      {"OPENAI_API_KEY"},
		"openai.assistant_id": {"ASSISTANT_ID"},
		"teams.webhook_url":   {"TEAMS_WEBHOOK_URL"},
		"teams.app_id":        {"TEAMS_APP_ID"},
		"teams.app_password":  {"TEAMS_APP_PASSWORD"},
		"telegram.bot_token":  {"TELEGRAM_BOT_TOKEN"},
		"detector.url":        {"DETECTOR_URL"},
		"database.dsn":        {"DATABASE_DSN"},
		"admin.enabled":       {"ENABLE_ADMIN_BACKEND"},
	}
	for key, envs := range binds {
		_ = v.BindEnv(append([]string{key}, envs...)...)
	}
}
