// Package config loads application configuration from environment variables,
// with an optional .env file for local development.
package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"chartreplay/internal/model"
)

// Config holds all application configuration.
type Config struct {
	// Series source
	Symbol     string `env:"SYMBOL" envDefault:"EURUSD"`
	SQLitePath string `env:"SQLITE_PATH" envDefault:"data/candles.db"`

	// Synchronized timeframes
	Timeframes []string `env:"TIMEFRAMES" envSeparator:"," envDefault:"1m,5m,15m,1h"`

	// Window cache
	CacheCapacity     int `env:"CACHE_CAPACITY" envDefault:"128"`
	PrefetchQueueSize int `env:"PREFETCH_QUEUE_SIZE" envDefault:"64"`
	WindowCount       int `env:"WINDOW_COUNT" envDefault:"500"`

	// Observer sinks
	RedisAddr     string `env:"REDIS_ADDR" envDefault:""`
	RedisPassword string `env:"REDIS_PASSWORD" envDefault:""`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	// Servers
	ListenAddr  string `env:"LISTEN_ADDR" envDefault:":8080"`
	MetricsAddr string `env:"METRICS_ADDR" envDefault:":9090"`

	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

// Load reads configuration from the environment. A .env file is applied
// first if present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// ParseTimeframes validates the configured timeframe list.
func (c *Config) ParseTimeframes() ([]model.Timeframe, error) {
	tfs := make([]model.Timeframe, 0, len(c.Timeframes))
	for _, s := range c.Timeframes {
		tf, err := model.ParseTimeframe(s)
		if err != nil {
			return nil, err
		}
		tfs = append(tfs, tf)
	}
	if len(tfs) == 0 {
		return nil, fmt.Errorf("no timeframes configured")
	}
	return tfs, nil
}
