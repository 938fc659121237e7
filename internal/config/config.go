// Package config provides configuration management for the journal agent.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	apperrors "github.com/EbubeImoh/AI-Powered-Trading-Journal-Agent/internal/errors"
)

// Config holds all application configuration.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Capture     CaptureConfig     `mapstructure:"capture"`
	Redis       RedisConfig       `mapstructure:"redis"`
	LLM         LLMConfig         `mapstructure:"llm"`
	Google      GoogleConfig      `mapstructure:"google"`
	OAuth       OAuthConfig       `mapstructure:"oauth"`
	Security    SecurityConfig    `mapstructure:"security"`
	Telegram    TelegramConfig    `mapstructure:"telegram"`
	Attachments AttachmentsConfig `mapstructure:"attachments"`
	Analysis    AnalysisConfig    `mapstructure:"analysis"`
	Logging     LoggingConfig     `mapstructure:"logging"`

	// Path is the config file that was read, empty when defaults were used.
	Path string `mapstructure:"-"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Addr        string        `mapstructure:"addr"`
	ReadTimeout time.Duration `mapstructure:"read_timeout"`
	AppName     string        `mapstructure:"app_name"`
	// PublicURL is the externally reachable base URL, used in /connect links.
	PublicURL   string        `mapstructure:"public_url"`
	FrontendURL string        `mapstructure:"frontend_url"`
}

// CaptureConfig holds capture session configuration.
type CaptureConfig struct {
	SessionTTL time.Duration `mapstructure:"session_ttl"`
	Backend    string        `mapstructure:"backend"` // sqlite, memory, redis
	DBPath     string        `mapstructure:"db_path"`
	JournalDir string        `mapstructure:"journal_dir"` // local uploads when Drive is not configured
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

// LLMConfig holds model client configuration.
type LLMConfig struct {
	APIKey     string        `mapstructure:"api_key"`
	BaseURL    string        `mapstructure:"base_url"`
	Model      string        `mapstructure:"model"`
	ReplyModel string        `mapstructure:"reply_model"`
	Timeout    time.Duration `mapstructure:"timeout"`
	// BreakerThreshold consecutive failures open the model circuit for
	// BreakerCooldown. Zero disables the breaker.
	BreakerThreshold int           `mapstructure:"breaker_threshold"`
	BreakerCooldown  time.Duration `mapstructure:"breaker_cooldown"`
}

// GoogleConfig holds Google API settings.
type GoogleConfig struct {
	ClientID       string `mapstructure:"client_id"`
	ClientSecret   string `mapstructure:"client_secret"`
	RedirectURL    string `mapstructure:"redirect_url"`
	DefaultSheetID string `mapstructure:"default_sheet_id"`
	SheetRange     string `mapstructure:"sheet_range"`
	DriveFolderID  string `mapstructure:"drive_folder_id"`
}

// OAuthConfig holds OAuth state settings.
type OAuthConfig struct {
	StateTTL    time.Duration `mapstructure:"state_ttl"`
	StateSecret string        `mapstructure:"state_secret"`
}

// SecurityConfig holds encryption settings.
type SecurityConfig struct {
	TokenKey     string `mapstructure:"token_key"`
	AuditEnabled bool   `mapstructure:"audit_enabled"`
	AuditPath    string `mapstructure:"audit_path"`
}

// TelegramConfig holds Telegram bot configuration.
type TelegramConfig struct {
	BotToken       string `mapstructure:"bot_token"`
	WebhookSecret  string `mapstructure:"webhook_secret"`
	DefaultSheetID string `mapstructure:"default_sheet_id"`
	APIBaseURL     string `mapstructure:"api_base_url"`
}

// AttachmentsConfig holds attachment validation rules.
type AttachmentsConfig struct {
	MaxBytes         int64    `mapstructure:"max_bytes"`
	AllowedMimeTypes []string `mapstructure:"allowed_mime_types"`
}

// AnalysisConfig holds analysis queue configuration.
type AnalysisConfig struct {
	Topic        string `mapstructure:"topic"`
	Workers      int    `mapstructure:"workers"`
	// SearchAPIKey enables web research in reports. Empty disables it.
	SearchAPIKey string `mapstructure:"search_api_key"`
	SearchEngine string `mapstructure:"search_engine"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `mapstructure:"level"`
	File  bool   `mapstructure:"file"`
	Path  string `mapstructure:"path"`
	JSON  bool   `mapstructure:"json"`
}

// DefaultConfigDir returns the default configuration directory.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/journalbot"
	}
	return filepath.Join(home, ".config", "journalbot")
}

// Load loads configuration from the specified directory.
// If configDir is empty, uses the default config directory. A missing
// config.toml is written from the template and defaults are used.
func Load(configDir string) (*Config, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}

	loadDotEnv(configDir)

	v := viper.New()
	setDefaults(v, configDir)
	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)

	cfg := &Config{}
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("loading config.toml: %w", err)
		}
		if err := createTemplateConfig(configDir); err != nil {
			return nil, err
		}
	} else {
		cfg.Path = v.ConfigFileUsed()
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Default returns a configuration populated with defaults only.
func Default() *Config {
	v := viper.New()
	setDefaults(v, DefaultConfigDir())
	cfg := &Config{}
	_ = v.Unmarshal(cfg)
	return cfg
}

// loadDotEnv reads .env from the working directory and the config directory.
// Existing environment variables win.
func loadDotEnv(configDir string) {
	for _, path := range []string{".env", filepath.Join(configDir, ".env")} {
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
		}
	}
}

func setDefaults(v *viper.Viper, configDir string) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.app_name", "journalbot")
	v.SetDefault("server.public_url", "http://localhost:8080")

	v.SetDefault("capture.session_ttl", "15m")
	v.SetDefault("capture.backend", "sqlite")
	v.SetDefault("capture.db_path", filepath.Join(configDir, "journal.db"))
	v.SetDefault("capture.journal_dir", filepath.Join(configDir, "uploads"))

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.prefix", "journalbot")

	v.SetDefault("llm.base_url", "https://generativelanguage.googleapis.com/v1beta/openai/")
	v.SetDefault("llm.model", "gemini-1.5-flash")
	v.SetDefault("llm.reply_model", "gemini-1.5-flash")
	v.SetDefault("llm.timeout", "30s")
	v.SetDefault("llm.breaker_threshold", 5)
	v.SetDefault("llm.breaker_cooldown", "30s")

	v.SetDefault("google.sheet_range", "Journal!A1")

	v.SetDefault("oauth.state_ttl", "10m")

	v.SetDefault("security.audit_enabled", true)
	v.SetDefault("security.audit_path", filepath.Join(configDir, "logs", "audit.log"))

	v.SetDefault("telegram.api_base_url", "https://api.telegram.org")

	v.SetDefault("attachments.max_bytes", 10*1024*1024)
	v.SetDefault("attachments.allowed_mime_types", []string{
		"image/png", "image/jpeg", "image/webp", "application/pdf",
		"audio/mpeg", "audio/ogg", "audio/wav", "text/plain", "text/csv",
	})

	v.SetDefault("analysis.topic", "analysis.jobs")
	v.SetDefault("analysis.workers", 1)
	v.SetDefault("analysis.search_engine", "google")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.file", true)
	v.SetDefault("logging.path", filepath.Join(configDir, "logs", "journalbot.log"))
}

func applyEnvOverrides(cfg *Config) {
	// Model credentials
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
	}
	if v := os.Getenv("GEMINI_API_KEY"); v != "" && cfg.LLM.APIKey == "" {
		cfg.LLM.APIKey = v
	}
	if v := os.Getenv("LLM_BASE_URL"); v != "" {
		cfg.LLM.BaseURL = v
	}
	if v := os.Getenv("LLM_MODEL"); v != "" {
		cfg.LLM.Model = v
	}

	// Google
	if v := os.Getenv("GOOGLE_CLIENT_ID"); v != "" {
		cfg.Google.ClientID = v
	}
	if v := os.Getenv("GOOGLE_CLIENT_SECRET"); v != "" {
		cfg.Google.ClientSecret = v
	}
	if v := os.Getenv("GOOGLE_REDIRECT_URL"); v != "" {
		cfg.Google.RedirectURL = v
	}

	if v := os.Getenv("APP_PUBLIC_URL"); v != "" {
		cfg.Server.PublicURL = v
	}
	if v := os.Getenv("FRONTEND_URL"); v != "" {
		cfg.Server.FrontendURL = v
	}

	// Telegram
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		cfg.Telegram.BotToken = v
	}
	if v := os.Getenv("TELEGRAM_DEFAULT_SHEET_ID"); v != "" {
		cfg.Telegram.DefaultSheetID = v
	}
	if v := os.Getenv("TELEGRAM_WEBHOOK_SECRET"); v != "" {
		cfg.Telegram.WebhookSecret = v
	}

	if v := os.Getenv("TOKEN_ENCRYPTION_KEY"); v != "" {
		cfg.Security.TokenKey = v
	}
	if v := os.Getenv("APP_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("CAPTURE_SESSION_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Capture.SessionTTL = d
		}
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("SERPAPI_API_KEY"); v != "" {
		cfg.Analysis.SearchAPIKey = v
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	switch c.Capture.Backend {
	case "sqlite", "memory", "redis":
	default:
		return apperrors.Wrapf(apperrors.ErrConfigInvalid,
			"capture.backend %q (must be sqlite, memory or redis)", c.Capture.Backend)
	}

	if c.Capture.SessionTTL <= 0 {
		return apperrors.Wrap(apperrors.ErrConfigInvalid, "capture.session_ttl must be positive")
	}
	if c.Capture.Backend == "sqlite" && strings.TrimSpace(c.Capture.DBPath) == "" {
		return apperrors.Wrap(apperrors.ErrConfigInvalid, "capture.db_path is required for the sqlite backend")
	}
	if c.Capture.Backend == "redis" && strings.TrimSpace(c.Redis.Addr) == "" {
		return apperrors.Wrap(apperrors.ErrConfigInvalid, "redis.addr is required for the redis backend")
	}
	if c.Attachments.MaxBytes <= 0 {
		return apperrors.Wrap(apperrors.ErrConfigInvalid, "attachments.max_bytes must be positive")
	}
	if c.Analysis.Workers < 0 {
		return apperrors.Wrap(apperrors.ErrConfigInvalid, "analysis.workers must be non-negative")
	}
	if c.OAuth.StateTTL < 0 {
		return apperrors.Wrap(apperrors.ErrConfigInvalid, "oauth.state_ttl must be non-negative")
	}

	return nil
}

// GoogleEnabled reports whether OAuth client credentials are configured.
func (c *Config) GoogleEnabled() bool {
	return c.Google.ClientID != "" && c.Google.ClientSecret != ""
}

// TelegramEnabled reports whether a bot token is configured.
func (c *Config) TelegramEnabled() bool {
	return c.Telegram.BotToken != ""
}

// StateSecret returns the secret used to sign OAuth state, falling back to
// the token encryption key.
func (c *Config) StateSecret() string {
	if c.OAuth.StateSecret != "" {
		return c.OAuth.StateSecret
	}
	return c.Security.TokenKey
}

// ConfigFile returns the path of config.toml within configDir.
func ConfigFile(configDir string) string {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}
	return filepath.Join(configDir, "config.toml")
}
