// Package config loads engine settings from the environment, with an
// optional config file for local runs. Every key has a workable default so
// the engine starts with no configuration at all.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds every tunable the engine reads at startup.
type Config struct {
	Addr string `mapstructure:"addr"`

	// GovernmentID is the ledger account receiving taxes and paying
	// transfers.
	GovernmentID string `mapstructure:"government_id"`

	ReservationTTL time.Duration `mapstructure:"reservation_ttl"`

	VATRate          float64 `mapstructure:"vat_rate"`
	CorporateTaxRate float64 `mapstructure:"corporate_tax_rate"`

	LossThreshold   float64 `mapstructure:"loss_threshold"`
	OfferPolicy     string  `mapstructure:"offer_policy"`
	AvgWeeklyHours  int64   `mapstructure:"avg_weekly_hours"`
	PeriodsPerMonth int64   `mapstructure:"periods_per_month"`

	RedistributionStrategy string `mapstructure:"redistribution_strategy"`

	RateLimitPerSecond float64 `mapstructure:"rate_limit_per_second"`
	RateLimitBurst     int     `mapstructure:"rate_limit_burst"`

	OracleURL      string        `mapstructure:"oracle_url"`
	OracleCacheTTL time.Duration `mapstructure:"oracle_cache_ttl"`
}

// Load reads configuration from ECONOMY_* environment variables, falling
// back to economy.yaml in the working directory when present.
func Load() (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("economy")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("addr", ":8080")
	v.SetDefault("government_id", "gov_main")
	v.SetDefault("reservation_ttl", "300s")
	v.SetDefault("vat_rate", 0.08)
	v.SetDefault("corporate_tax_rate", 0.21)
	v.SetDefault("loss_threshold", 3000.0)
	v.SetDefault("offer_policy", "best_loss")
	v.SetDefault("avg_weekly_hours", 40)
	v.SetDefault("periods_per_month", 4)
	v.SetDefault("redistribution_strategy", "equal")
	v.SetDefault("rate_limit_per_second", 200.0)
	v.SetDefault("rate_limit_burst", 400)
	v.SetDefault("oracle_url", "")
	v.SetDefault("oracle_cache_ttl", "30s")

	v.SetConfigName("economy")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return Config{}, fmt.Errorf("config: read file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: unmarshal: %w", err)
	}
	if cfg.VATRate < 0 || cfg.VATRate >= 1 {
		return Config{}, fmt.Errorf("config: vat_rate %v out of range", cfg.VATRate)
	}
	if cfg.CorporateTaxRate < 0 || cfg.CorporateTaxRate >= 1 {
		return Config{}, fmt.Errorf("config: corporate_tax_rate %v out of range", cfg.CorporateTaxRate)
	}
	return cfg, nil
}
