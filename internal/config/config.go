package config

import (
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/spf13/viper"

	"github.com/coelhotv/meus-remedios/internal/dosing"
	"github.com/coelhotv/meus-remedios/internal/platform/reminder"
	"github.com/coelhotv/meus-remedios/internal/platform/webhook"
)

type Config struct {
	Port                   string        `mapstructure:"PORT"`
	Env                    string        `mapstructure:"ENV"`
	LogLevel               string        `mapstructure:"LOG_LEVEL"`
	DatabaseURL            string        `mapstructure:"DATABASE_URL"`
	DBMaxConns             int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns             int32         `mapstructure:"DB_MIN_CONNS"`
	AuthSigningKey         string        `mapstructure:"AUTH_SIGNING_KEY"`
	AuthIssuer             string        `mapstructure:"AUTH_ISSUER"`
	AuthAudience           string        `mapstructure:"AUTH_AUDIENCE"`
	DevUserID              string        `mapstructure:"DEV_USER_ID"`
	CORSOrigins            []string      `mapstructure:"CORS_ORIGINS"`
	RateLimitRPS           float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst         int           `mapstructure:"RATE_LIMIT_BURST"`
	RequestTimeout         time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	ReferenceTimezone      string        `mapstructure:"REFERENCE_TIMEZONE"`
	UnknownFrequencyPolicy string        `mapstructure:"UNKNOWN_FREQUENCY_POLICY"`
	RecurrenceAwareTotals  bool          `mapstructure:"RECURRENCE_AWARE_TOTALS"`
	AdherenceWindowDays    int           `mapstructure:"ADHERENCE_WINDOW_DAYS"`
	AdherenceMaxWindowDays int           `mapstructure:"ADHERENCE_MAX_WINDOW_DAYS"`
	AdherenceCacheTTL      time.Duration `mapstructure:"ADHERENCE_CACHE_TTL"`
	LowStockDays           int           `mapstructure:"LOW_STOCK_DAYS"`
	RemindersEnabled       bool          `mapstructure:"REMINDERS_ENABLED"`
	ReminderSchedule       string        `mapstructure:"REMINDER_SCHEDULE"`
	ReminderConcurrency    int           `mapstructure:"REMINDER_CONCURRENCY"`
	NotifyWebhookURL       string        `mapstructure:"NOTIFY_WEBHOOK_URL"`
	NotifyWebhookSecret    string        `mapstructure:"NOTIFY_WEBHOOK_SECRET"`
}

var keys = []string{
	"PORT", "ENV", "LOG_LEVEL", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
	"AUTH_SIGNING_KEY", "AUTH_ISSUER", "AUTH_AUDIENCE", "DEV_USER_ID", "CORS_ORIGINS",
	"RATE_LIMIT_RPS", "RATE_LIMIT_BURST", "REQUEST_TIMEOUT",
	"REFERENCE_TIMEZONE", "UNKNOWN_FREQUENCY_POLICY", "RECURRENCE_AWARE_TOTALS",
	"ADHERENCE_WINDOW_DAYS", "ADHERENCE_MAX_WINDOW_DAYS", "ADHERENCE_CACHE_TTL", "LOW_STOCK_DAYS",
	"REMINDERS_ENABLED", "REMINDER_SCHEDULE", "REMINDER_CONCURRENCY",
	"NOTIFY_WEBHOOK_URL", "NOTIFY_WEBHOOK_SECRET",
}

// Load reads configuration from the environment, falling back to an
// optional .env file in the working directory.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("DB_MAX_CONNS", 10)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("AUTH_ISSUER", "meus-remedios")
	v.SetDefault("DEV_USER_ID", "dev-user")
	v.SetDefault("CORS_ORIGINS", "http://localhost:5173")
	v.SetDefault("RATE_LIMIT_RPS", 20)
	v.SetDefault("RATE_LIMIT_BURST", 40)
	v.SetDefault("REQUEST_TIMEOUT", "15s")
	v.SetDefault("REFERENCE_TIMEZONE", "America/Sao_Paulo")
	v.SetDefault("UNKNOWN_FREQUENCY_POLICY", "due")
	v.SetDefault("ADHERENCE_WINDOW_DAYS", 30)
	v.SetDefault("ADHERENCE_MAX_WINDOW_DAYS", 365)
	v.SetDefault("ADHERENCE_CACHE_TTL", "5m")
	v.SetDefault("LOW_STOCK_DAYS", 7)
	v.SetDefault("REMINDERS_ENABLED", true)
	v.SetDefault("REMINDER_SCHEDULE", reminder.DefaultSchedule)
	v.SetDefault("REMINDER_CONCURRENCY", 4)

	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if len(cfg.CORSOrigins) == 1 && strings.Contains(cfg.CORSOrigins[0], ",") {
		cfg.CORSOrigins = strings.Split(cfg.CORSOrigins[0], ",")
	}
	for i, o := range cfg.CORSOrigins {
		cfg.CORSOrigins[i] = strings.TrimSpace(o)
	}
	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// Location resolves REFERENCE_TIMEZONE.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.ReferenceTimezone)
	if err != nil {
		return nil, fmt.Errorf("REFERENCE_TIMEZONE %q: %w", c.ReferenceTimezone, err)
	}
	return loc, nil
}

func (c *Config) FrequencyPolicy() (dosing.UnknownFrequencyPolicy, error) {
	p, ok := dosing.ParseUnknownFrequencyPolicy(c.UnknownFrequencyPolicy)
	if !ok {
		return 0, fmt.Errorf("UNKNOWN_FREQUENCY_POLICY must be \"due\" or \"not_due\", got %q", c.UnknownFrequencyPolicy)
	}
	return p, nil
}

// EngineOptions builds the dosing engine options this configuration implies.
func (c *Config) EngineOptions() ([]dosing.Option, error) {
	loc, err := c.Location()
	if err != nil {
		return nil, err
	}
	policy, err := c.FrequencyPolicy()
	if err != nil {
		return nil, err
	}
	return []dosing.Option{
		dosing.WithLocation(loc),
		dosing.WithUnknownFrequencyPolicy(policy),
		dosing.WithRecurrenceAwareTotals(c.RecurrenceAwareTotals),
	}, nil
}

// Validate checks the settings needed to run the server.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if !c.IsDev() && len(c.AuthSigningKey) < 32 {
		return fmt.Errorf("AUTH_SIGNING_KEY must be at least 32 bytes outside development (ENV=%q)", c.Env)
	}
	if _, err := c.EngineOptions(); err != nil {
		return err
	}
	if c.AdherenceWindowDays <= 0 || c.AdherenceWindowDays > c.AdherenceMaxWindowDays {
		return fmt.Errorf("ADHERENCE_WINDOW_DAYS must be in [1, %d], got %d", c.AdherenceMaxWindowDays, c.AdherenceWindowDays)
	}
	if c.AdherenceCacheTTL < 0 {
		return fmt.Errorf("ADHERENCE_CACHE_TTL must not be negative")
	}
	if c.LowStockDays < 0 {
		return fmt.Errorf("LOW_STOCK_DAYS must not be negative")
	}
	if c.RateLimitRPS <= 0 || c.RateLimitBurst <= 0 {
		return fmt.Errorf("RATE_LIMIT_RPS and RATE_LIMIT_BURST must be positive")
	}
	if c.RemindersEnabled {
		if err := reminder.ValidateSchedule(c.ReminderSchedule); err != nil {
			return fmt.Errorf("REMINDER_SCHEDULE %q: %w", c.ReminderSchedule, err)
		}
	}
	if c.NotifyWebhookURL != "" {
		if err := webhook.ValidateURL(c.NotifyWebhookURL); err != nil {
			return fmt.Errorf("NOTIFY_WEBHOOK_URL: %w", err)
		}
	}
	return nil
}
