// Package config loads service settings from .env, the environment and an
// optional config file named by PLANNER_CONFIG.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Port               string  `mapstructure:"PORT"`
	DatabaseURL        string  `mapstructure:"DATABASE_URL"`
	DBMigrate          bool    `mapstructure:"DB_MIGRATE"`
	BadgerPath         string  `mapstructure:"BADGER_PATH"`
	RedisURL           string  `mapstructure:"REDIS_URL"`
	RateRPS            float64 `mapstructure:"RATE_RPS"`
	RateBurst          int     `mapstructure:"RATE_BURST"`
	WebhookURL         string  `mapstructure:"WEBHOOK_URL"`
	WebhookSecret      string  `mapstructure:"WEBHOOK_SECRET"`
	WebhookMaxAttempts int     `mapstructure:"WEBHOOK_MAX_ATTEMPTS"`
	Population         int     `mapstructure:"PLANNER_POPULATION"`
	TimeBudgetMs       int     `mapstructure:"PLANNER_TIME_BUDGET_MS"`
	MaxTimeBudgetMs    int     `mapstructure:"PLANNER_MAX_TIME_BUDGET_MS"`
	AuthMode           string  `mapstructure:"AUTH_MODE"`
	AuthHMACSecret     string  `mapstructure:"AUTH_HMAC_SECRET"`
}

var defaults = map[string]any{
	"PORT":                       "8080",
	"DATABASE_URL":               "",
	"DB_MIGRATE":                 true,
	"BADGER_PATH":                "",
	"REDIS_URL":                  "",
	"RATE_RPS":                   2.0,
	"RATE_BURST":                 4,
	"WEBHOOK_URL":                "",
	"WEBHOOK_SECRET":             "",
	"WEBHOOK_MAX_ATTEMPTS":       5,
	"PLANNER_POPULATION":         40,
	"PLANNER_TIME_BUDGET_MS":     45000,
	"PLANNER_MAX_TIME_BUDGET_MS": 120000,
	"AUTH_MODE":                  "dev",
	"AUTH_HMAC_SECRET":           "",
}

// Load reads .env when present, then the environment, then the file named by
// PLANNER_CONFIG (yaml, toml or json) for keys the environment leaves unset.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Printf("config: .env ignored: %v", err)
	}
	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	v.AutomaticEnv()
	if path := v.GetString("PLANNER_CONFIG"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
	}
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("config: decode: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c Config) Validate() error {
	if c.Port == "" {
		return errors.New("config: PORT must be set")
	}
	if c.RateRPS <= 0 || c.RateBurst < 1 {
		return fmt.Errorf("config: RATE_RPS must be > 0 and RATE_BURST >= 1 (got %v, %d)", c.RateRPS, c.RateBurst)
	}
	if c.TimeBudgetMs < 1000 || c.MaxTimeBudgetMs < c.TimeBudgetMs {
		return fmt.Errorf("config: PLANNER_TIME_BUDGET_MS must be >= 1000 and <= PLANNER_MAX_TIME_BUDGET_MS")
	}
	if c.Population < 4 {
		return fmt.Errorf("config: PLANNER_POPULATION must be >= 4")
	}
	if c.WebhookMaxAttempts < 1 {
		return fmt.Errorf("config: WEBHOOK_MAX_ATTEMPTS must be >= 1")
	}
	switch c.AuthMode {
	case "dev":
	case "hmac":
		if c.AuthHMACSecret == "" {
			return errors.New("config: AUTH_HMAC_SECRET is required when AUTH_MODE=hmac")
		}
	default:
		return fmt.Errorf("config: unknown AUTH_MODE %q", c.AuthMode)
	}
	return nil
}

func (c Config) Addr() string { return ":" + c.Port }

func (c Config) TimeBudget() time.Duration {
	return time.Duration(c.TimeBudgetMs) * time.Millisecond
}

func (c Config) MaxTimeBudget() time.Duration {
	return time.Duration(c.MaxTimeBudgetMs) * time.Millisecond
}
