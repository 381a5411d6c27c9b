package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix is tried first for every key (POS_PORT), falling back to the bare name (PORT).
const EnvPrefix = "POS"

type Config struct {
	ServiceName      string        `envconfig:"SERVICE_NAME" default:"bakery-pos"`
	Port             string        `envconfig:"PORT" default:"8080"`
	AllowedOrigin    string        `envconfig:"ALLOWED_ORIGIN" default:"http://127.0.0.1:3000"`
	DatabaseURL      string        `envconfig:"DATABASE_URL"`
	RedisAddr        string        `envconfig:"REDIS_ADDR"`
	RedisPassword    string        `envconfig:"REDIS_PASSWORD"`
	RedisDB          int           `envconfig:"REDIS_DB" default:"0"`
	AuthSecret       string        `envconfig:"AUTH_SECRET"`
	AccessTokenTTL   time.Duration `envconfig:"ACCESS_TOKEN_TTL" default:"8h"`
	LogLevel         string        `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat        string        `envconfig:"LOG_FORMAT" default:"json"`
	Timezone         string        `envconfig:"TIMEZONE" default:"UTC"`
	ForecastCacheTTL time.Duration `envconfig:"FORECAST_CACHE_TTL" default:"10m"`
	BillHistoryLimit int           `envconfig:"BILL_HISTORY_LIMIT" default:"15"`
	CartIdleTTL      time.Duration `envconfig:"CART_IDLE_TTL" default:"2h"`
}

func Load() (Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing config: %w", err)
	}
	cfg.AuthSecret = strings.TrimSpace(cfg.AuthSecret)

	if cfg.AccessTokenTTL <= 0 {
		cfg.AccessTokenTTL = 8 * time.Hour
	}
	if cfg.BillHistoryLimit < 1 {
		cfg.BillHistoryLimit = 15
	}
	if cfg.ForecastCacheTTL < 0 {
		cfg.ForecastCacheTTL = 0
	}
	if _, err := time.LoadLocation(cfg.Timezone); err != nil {
		return Config{}, fmt.Errorf("invalid TIMEZONE %q: %w", cfg.Timezone, err)
	}
	return cfg, nil
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

// Location resolves Timezone; Load has already rejected invalid names.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
