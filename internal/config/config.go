package config

import (
	"log"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	configPathEnv    = "REVIEWRADAR_CONFIG"
	databasePathEnv  = "REVIEWRADAR_DB_PATH"
	placesAPIKeyEnv  = "GOOGLE_API_KEY"
	httpAddrEnv      = "REVIEWRADAR_HTTP_ADDR"
	telegramTokenEnv = "TELEGRAM_BOT_TOKEN"
	telegramChatEnv  = "TELEGRAM_CHAT_ID"
)

// Config holds high-level settings required across the application.
type Config struct {
	Logging       LoggingConfig      `yaml:"logging"`
	Database      DatabaseConfig     `yaml:"database"`
	HTTP          HTTPConfig         `yaml:"http"`
	Scheduler     SchedulerConfig    `yaml:"scheduler"`
	Source        SourceConfig       `yaml:"source"`
	Notifications NotificationConfig `yaml:"notifications"`
	Businesses    []BusinessConfig   `yaml:"businesses"`
}

// LoggingConfig controls log verbosity.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// DatabaseConfig describes the SQLite file location.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// HTTPConfig describes the read-API listener.
type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// SchedulerConfig defines cadence defaults and the global concurrency cap.
type SchedulerConfig struct {
	DefaultIntervalHours int `yaml:"defaultIntervalHours"`
	MaxConcurrentRuns    int `yaml:"maxConcurrentRuns"`
}

// SourceConfig groups settings shared by the review source clients.
type SourceConfig struct {
	APIKey            string  `yaml:"apiKey"`
	APIBaseURL        string  `yaml:"apiBaseUrl"`
	RequestsPerSecond float64 `yaml:"requestsPerSecond"`
	DailyQuota        int     `yaml:"dailyQuota"`
	MaxRetries        int     `yaml:"maxRetries"`
	TimeoutSeconds    int     `yaml:"timeoutSeconds"`
	MaxReviews        int     `yaml:"maxReviews"`
}

// Timeout resolves the per-call timeout.
func (s SourceConfig) Timeout() time.Duration {
	if s.TimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(s.TimeoutSeconds) * time.Second
}

// MinRequestInterval converts the configured rate limit into a spacing interval.
func (s SourceConfig) MinRequestInterval() time.Duration {
	if s.RequestsPerSecond <= 0 {
		return 2 * time.Second
	}
	return time.Duration(float64(time.Second) / s.RequestsPerSecond)
}

// NotificationConfig encapsulates outbound channels (Telegram, etc.).
type NotificationConfig struct {
	Telegram TelegramConfig `yaml:"telegram"`
}

// TelegramConfig wires all data required to send messages.
type TelegramConfig struct {
	BotToken string `yaml:"botToken"`
	ChatID   string `yaml:"chatId"`
}

// BusinessConfig registers one tracked business with its locators and cadence.
type BusinessConfig struct {
	ID            string `yaml:"id"`
	Name          string `yaml:"name"`
	PlaceID       string `yaml:"placeId"`
	PageURL       string `yaml:"pageUrl"`
	IntervalHours int    `yaml:"intervalHours"`
}

// Interval resolves the per-business cadence, falling back to the scheduler default.
func (b BusinessConfig) Interval(def SchedulerConfig) time.Duration {
	hours := b.IntervalHours
	if hours <= 0 {
		hours = def.DefaultIntervalHours
	}
	if hours <= 0 {
		hours = 24
	}
	return time.Duration(hours) * time.Hour
}

// Load reads YAML configuration (if present) and applies environment overrides.
func Load() Config {
	cfg := defaultConfig()

	if path := os.Getenv(configPathEnv); path != "" {
		if raw, err := os.ReadFile(path); err != nil {
			log.Printf("config: cannot read %s: %v (falling back to defaults)", path, err)
		} else {
			var fileCfg Config
			if err := yaml.Unmarshal(raw, &fileCfg); err != nil {
				log.Printf("config: cannot parse %s: %v (falling back to defaults)", path, err)
			} else {
				cfg = mergeConfig(cfg, fileCfg)
			}
		}
	}

	cfg.applyEnvOverrides()

	return cfg
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(databasePathEnv); v != "" {
		c.Database.Path = v
	}

	if v := os.Getenv(placesAPIKeyEnv); v != "" {
		c.Source.APIKey = v
	}

	if v := os.Getenv(httpAddrEnv); v != "" {
		c.HTTP.Addr = v
	}

	if v := os.Getenv(telegramTokenEnv); v != "" {
		c.Notifications.Telegram.BotToken = v
	}

	if v := os.Getenv(telegramChatEnv); v != "" {
		c.Notifications.Telegram.ChatID = v
	}
}

func mergeConfig(base, override Config) Config {
	if override.Logging.Level != "" {
		base.Logging = override.Logging
	}

	if override.Database.Path != "" {
		base.Database = override.Database
	}

	if override.HTTP.Addr != "" {
		base.HTTP = override.HTTP
	}

	if override.Scheduler.DefaultIntervalHours > 0 {
		base.Scheduler.DefaultIntervalHours = override.Scheduler.DefaultIntervalHours
	}
	if override.Scheduler.MaxConcurrentRuns > 0 {
		base.Scheduler.MaxConcurrentRuns = override.Scheduler.MaxConcurrentRuns
	}

	if override.Source.APIKey != "" {
		base.Source.APIKey = override.Source.APIKey
	}
	if override.Source.APIBaseURL != "" {
		base.Source.APIBaseURL = override.Source.APIBaseURL
	}
	if override.Source.RequestsPerSecond > 0 {
		base.Source.RequestsPerSecond = override.Source.RequestsPerSecond
	}
	if override.Source.DailyQuota > 0 {
		base.Source.DailyQuota = override.Source.DailyQuota
	}
	if override.Source.MaxRetries > 0 {
		base.Source.MaxRetries = override.Source.MaxRetries
	}
	if override.Source.TimeoutSeconds > 0 {
		base.Source.TimeoutSeconds = override.Source.TimeoutSeconds
	}
	if override.Source.MaxReviews > 0 {
		base.Source.MaxReviews = override.Source.MaxReviews
	}

	if override.Notifications.Telegram.BotToken != "" {
		base.Notifications.Telegram.BotToken = override.Notifications.Telegram.BotToken
	}
	if override.Notifications.Telegram.ChatID != "" {
		base.Notifications.Telegram.ChatID = override.Notifications.Telegram.ChatID
	}

	if len(override.Businesses) > 0 {
		base.Businesses = override.Businesses
	}

	return base
}

func defaultConfig() Config {
	return Config{
		Logging:  LoggingConfig{Level: "info"},
		Database: DatabaseConfig{Path: "data/reviews.db"},
		HTTP:     HTTPConfig{Addr: ":8090"},
		Scheduler: SchedulerConfig{
			DefaultIntervalHours: 24,
			MaxConcurrentRuns:    4,
		},
		Source: SourceConfig{
			APIBaseURL:        "https://maps.googleapis.com/maps/api/place/details/json",
			RequestsPerSecond: 0.5,
			DailyQuota:        1000,
			MaxRetries:        3,
			TimeoutSeconds:    30,
			MaxReviews:        100,
		},
	}
}
