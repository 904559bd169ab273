package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	ierr "github.com/stackbill/stackbill/internal/errors"
)

// Configuration is the full application configuration, loaded from
// config/config.yaml and overridable via STACKBILL_* environment variables.
type Configuration struct {
	Server   ServerConfig   `mapstructure:"server"`
	Postgres PostgresConfig `mapstructure:"postgres"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Sentry   SentryConfig   `mapstructure:"sentry"`
	Billing  BillingConfig  `mapstructure:"billing"`
}

type ServerConfig struct {
	Address string `mapstructure:"address"`
}

type PostgresConfig struct {
	Host                   string `mapstructure:"host"`
	Port                   int    `mapstructure:"port"`
	User                   string `mapstructure:"user"`
	Password               string `mapstructure:"password"`
	DBName                 string `mapstructure:"dbname"`
	SSLMode                string `mapstructure:"sslmode"`
	MaxOpenConns           int    `mapstructure:"max_open_conns"`
	MaxIdleConns           int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `mapstructure:"conn_max_lifetime_minutes"`
}

// DSN builds the lib/pq connection string.
func (c PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

type LoggingConfig struct {
	Level string `mapstructure:"level"`
}

type CacheConfig struct {
	TTL time.Duration `mapstructure:"ttl"`
}

type SentryConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	DSN         string  `mapstructure:"dsn"`
	Environment string  `mapstructure:"environment"`
	SampleRate  float64 `mapstructure:"sample_rate"`
}

type BillingConfig struct {
	// RequestExpiry is how long an upgrade request may sit in pending before
	// it lazily expires.
	RequestExpiry time.Duration `mapstructure:"request_expiry"`
	// DowngradeSweepSchedule is the cron spec for applying due scheduled
	// downgrades.
	DowngradeSweepSchedule string `mapstructure:"downgrade_sweep_schedule"`
	// ExpirySweepSchedule is the cron spec for materializing lazy expiries.
	ExpirySweepSchedule string `mapstructure:"expiry_sweep_schedule"`
	// SweepWorkers bounds the per-tenant concurrency of the downgrade sweep.
	SweepWorkers int `mapstructure:"sweep_workers"`
}

// NewConfig loads configuration from file and environment.
func NewConfig() (*Configuration, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./config")
	v.AddConfigPath(".")

	v.SetEnvPrefix("STACKBILL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// A missing file is fine; env and defaults still apply.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, ierr.WithError(err).
				WithHint("Failed to read configuration file").
				Mark(ierr.ErrInternal)
		}
	}

	var cfg Configuration
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to parse configuration").
			Mark(ierr.ErrInternal)
	}
	return &cfg, nil
}

// GetDefaultConfig returns the built-in defaults, used by the global logger
// before configuration is loaded and by tests.
func GetDefaultConfig() *Configuration {
	v := viper.New()
	setDefaults(v)
	var cfg Configuration
	_ = v.Unmarshal(&cfg)
	return &cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.address", ":8080")
	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.user", "stackbill")
	v.SetDefault("postgres.dbname", "stackbill")
	v.SetDefault("postgres.sslmode", "disable")
	v.SetDefault("postgres.max_open_conns", 20)
	v.SetDefault("postgres.max_idle_conns", 5)
	v.SetDefault("postgres.conn_max_lifetime_minutes", 30)
	v.SetDefault("logging.level", "info")
	v.SetDefault("cache.ttl", 5*time.Minute)
	v.SetDefault("sentry.enabled", false)
	v.SetDefault("sentry.sample_rate", 1.0)
	v.SetDefault("billing.request_expiry", 72*time.Hour)
	v.SetDefault("billing.downgrade_sweep_schedule", "0 * * * *")
	v.SetDefault("billing.expiry_sweep_schedule", "30 0 * * *")
	v.SetDefault("billing.sweep_workers", 4)
}
