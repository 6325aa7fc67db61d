// Package config содержит логику чтения конфигурации хранилища кошелька.
package config

import (
	"flag"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

const (
	defaultRunAddress      = "localhost:8080"
	defaultPersistThrottle = time.Second
	defaultPriceSchedule   = "@every 1m"
	defaultAnalyticsBuffer = 64
)

// Config содержит параметры конфигурации хранилища кошелька.
type Config struct {
	RunAddress      string        `env:"RUN_ADDRESS"`
	DatabaseURI     string        `env:"DATABASE_URI"`
	RedisAddress    string        `env:"REDIS_ADDRESS"`
	BackendAddress  string        `env:"BACKEND_ADDRESS"`
	SessionToken    string        `env:"SESSION_TOKEN"`
	PersistThrottle time.Duration `env:"PERSIST_THROTTLE"`
	PriceSchedule   string        `env:"PRICE_SCHEDULE"`
	AnalyticsBuffer int           `env:"ANALYTICS_BUFFER"`
}

// Parse считывает конфигурацию из флагов командной строки и переменных окружения.
// Переменные окружения имеют приоритет над флагами.
func Parse() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	fromEnv := *cfg

	flag.StringVar(&cfg.RunAddress, "a", defaultRunAddress, "address and port for control HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI for snapshot storage")
	flag.StringVar(&cfg.RedisAddress, "R", "", "redis address for snapshot storage")
	flag.StringVar(&cfg.BackendAddress, "r", "", "wallet backend address")
	flag.DurationVar(&cfg.PersistThrottle, "t", defaultPersistThrottle, "minimal interval between snapshot writes")
	flag.StringVar(&cfg.PriceSchedule, "p", defaultPriceSchedule, "cron schedule of price polling")
	flag.IntVar(&cfg.AnalyticsBuffer, "b", defaultAnalyticsBuffer, "analytics queue size")

	flag.Parse()

	if fromEnv.RunAddress != "" {
		cfg.RunAddress = fromEnv.RunAddress
	}
	if fromEnv.DatabaseURI != "" {
		cfg.DatabaseURI = fromEnv.DatabaseURI
	}
	if fromEnv.RedisAddress != "" {
		cfg.RedisAddress = fromEnv.RedisAddress
	}
	if fromEnv.BackendAddress != "" {
		cfg.BackendAddress = fromEnv.BackendAddress
	}
	if fromEnv.SessionToken != "" {
		cfg.SessionToken = fromEnv.SessionToken
	}
	if fromEnv.PersistThrottle != 0 {
		cfg.PersistThrottle = fromEnv.PersistThrottle
	}
	if fromEnv.PriceSchedule != "" {
		cfg.PriceSchedule = fromEnv.PriceSchedule
	}
	if fromEnv.AnalyticsBuffer != 0 {
		cfg.AnalyticsBuffer = fromEnv.AnalyticsBuffer
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = defaultRunAddress
	}
	if cfg.PersistThrottle < 0 {
		return nil, fmt.Errorf("persist throttle must not be negative: %s", cfg.PersistThrottle)
	}

	return cfg, nil
}
