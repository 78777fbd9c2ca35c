package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog/log"
)

var knownWeakSecrets = []string{
	"change-me", "dev_jwt_secret_change_me", "secret", "jwt-secret", "password",
}

type Config struct {
	Port                        int    `env:"PORT" envDefault:"8080"`
	DatabaseURL                 string `env:"DATABASE_URL,required"`
	RedisURL                    string `env:"REDIS_URL,required"`
	JWTSecret                   string `env:"JWT_SECRET,required"`
	JWTIssuer                   string `env:"JWT_ISSUER"`
	LogLevel                    string `env:"LOG_LEVEL" envDefault:"info"`
	AppEnv                      string `env:"APP_ENV" envDefault:"development"`
	Timezone                    string `env:"TIMEZONE" envDefault:"Local"`
	DefaultDailyLimitMinutes    int    `env:"DEFAULT_DAILY_LIMIT_MINUTES" envDefault:"60"`
	DashboardMaxWindowDays      int    `env:"DASHBOARD_MAX_WINDOW_DAYS" envDefault:"90"`
	BudgetAlertDebounce         bool   `env:"BUDGET_ALERT_DEBOUNCE" envDefault:"false"`
	LexiconPath                 string `env:"LEXICON_PATH"`
	ContentCheckRateLimitPerMin int    `env:"CONTENT_CHECK_RATE_LIMIT_PER_MIN" envDefault:"60"`
	StorageRetryMaxTries        uint   `env:"STORAGE_RETRY_MAX_TRIES" envDefault:"3"`
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// Location resolves the timezone that defines a child's local calendar day.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" || c.Timezone == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

func (c *Config) Validate(isProduction bool) error {
	if c.DefaultDailyLimitMinutes <= 0 {
		return fmt.Errorf("DEFAULT_DAILY_LIMIT_MINUTES must be positive")
	}
	if c.DashboardMaxWindowDays <= 0 {
		return fmt.Errorf("DASHBOARD_MAX_WINDOW_DAYS must be positive")
	}
	if c.StorageRetryMaxTries == 0 {
		return fmt.Errorf("STORAGE_RETRY_MAX_TRIES must be at least 1")
	}
	if _, err := c.Location(); err != nil {
		return err
	}

	if isProduction {
		if err := validateSecret("JWT_SECRET", c.JWTSecret); err != nil {
			return err
		}
		if c.JWTIssuer == "" {
			log.Warn().Msg("JWT_ISSUER is empty in production: tokens from any issuer sharing the secret are accepted")
		}
	}

	return nil
}

func validateSecret(name, value string) error {
	if len(value) < 32 {
		return fmt.Errorf("%s must be at least 32 characters in production (generate with: openssl rand -base64 32)", name)
	}
	for _, weak := range knownWeakSecrets {
		if value == weak {
			return fmt.Errorf("%s is a known weak default; set a strong secret in production", name)
		}
	}
	return nil
}

func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
