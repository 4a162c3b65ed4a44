// Package config loads the archive configuration: a flat JSON settings file
// (auto-created with defaults) overridden by environment variables.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	AppEnv      string `env:"APP_ENV" envDefault:"local"`
	PostgresDSN string `env:"POSTGRES_DSN"`
	BotToken    string `env:"BOT_TOKEN"`
	SentryDSN   string `env:"SENTRY_DSN"`

	Port        int    `env:"PORT"`
	HealthPort  int    `env:"HEALTH_PORT" envDefault:"8081"`
	CorpusRoot  string `env:"CORPUS_ROOT"`
	ArchiveRoot string `env:"ARCHIVE_ROOT"`
	StaticDir   string `env:"STATIC_DIR"`

	SettingsPath  string `env:"SETTINGS_PATH" envDefault:"tgarchive.settings.json"`
	ChatCachePath string `env:"CHAT_CACHE_PATH" envDefault:"tgarchive.chats.json"`

	SyncBatchSize    int           `env:"SYNC_BATCH_SIZE" envDefault:"32"`
	SyncYield        time.Duration `env:"SYNC_YIELD" envDefault:"25ms"`
	SyncRecentWindow time.Duration `env:"SYNC_RECENT_WINDOW" envDefault:"48h"`
	SyncPollInterval time.Duration `env:"SYNC_POLL_INTERVAL" envDefault:"30s"`

	BotRateLimitRPS float64 `env:"BOT_RATE_LIMIT_RPS" envDefault:"1"`

	DBMaxConnections    int32         `env:"DB_MAX_CONNECTIONS" envDefault:"10"`
	DBMinConnections    int32         `env:"DB_MIN_CONNECTIONS" envDefault:"2"`
	DBMaxConnIdleTime   time.Duration `env:"DB_MAX_CONN_IDLE_TIME" envDefault:"5m"`
	DBMaxConnLifetime   time.Duration `env:"DB_MAX_CONN_LIFETIME" envDefault:"1h"`
	DBHealthCheckPeriod time.Duration `env:"DB_HEALTH_CHECK_PERIOD" envDefault:"1m"`
}

// Load reads the settings file (creating it with defaults when absent or
// corrupt), then applies environment overrides on top.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	settings, err := LoadSettings(cfg.SettingsPath)
	if err != nil {
		return nil, fmt.Errorf("load settings file: %w", err)
	}

	cfg.applySettings(settings)

	return cfg, nil
}

// applySettings fills config fields not already set via environment.
func (c *Config) applySettings(s *Settings) {
	if c.Port == 0 {
		c.Port = s.Port
	}

	if c.CorpusRoot == "" {
		c.CorpusRoot = s.CorpusRoot
	}

	if c.ArchiveRoot == "" {
		c.ArchiveRoot = s.ArchiveRoot
	}

	if c.StaticDir == "" {
		c.StaticDir = s.StaticDir
	}
}
