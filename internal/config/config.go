package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog/log"
)

var knownWeakSecrets = []string{
	"change-me", "dev-secret-change-me", "secret", "admin", "password",
}

type Config struct {
	Port                int    `env:"PORT" envDefault:"8080"`
	DatabaseURL         string `env:"DATABASE_URL,required"`
	RedisURL            string `env:"REDIS_URL,required"`
	JWTSecret           string `env:"JWT_SECRET"`
	WebhookSharedSecret string `env:"WEBHOOK_SHARED_SECRET"`
	AdminToken          string `env:"ADMIN_TOKEN"`
	DefaultTenantID     string `env:"DEFAULT_TENANT_ID"`
	AssistantID         string `env:"VAPI_ASSISTANT_ID"`
	SessionTTLHours     int    `env:"SESSION_TTL_HOURS" envDefault:"168"`
	TokenTTLMinutes     int    `env:"TOKEN_TTL_MINUTES" envDefault:"15"`
	LogLevel            string `env:"LOG_LEVEL" envDefault:"info"`
}

func (c *Config) SessionTTL() time.Duration {
	return time.Duration(c.SessionTTLHours) * time.Hour
}

func (c *Config) TokenTTL() time.Duration {
	return time.Duration(c.TokenTTLMinutes) * time.Minute
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func (c *Config) Validate(isProduction bool) error {
	if isProduction {
		if err := validateSecret("JWT_SECRET", c.JWTSecret); err != nil {
			return err
		}
		if c.AdminToken != "" {
			if err := validateSecret("ADMIN_TOKEN", c.AdminToken); err != nil {
				return err
			}
		}

		if c.WebhookSharedSecret == "" {
			log.Warn().Msg("WEBHOOK_SHARED_SECRET is empty in production: header-based tenant identification disabled")
		}
		if c.DefaultTenantID != "" {
			log.Warn().Str("tenantId", c.DefaultTenantID).Msg("DEFAULT_TENANT_ID is set: unidentified webhook calls will route to this tenant")
		}
		if strings.HasPrefix(c.RedisURL, "redis://") {
			log.Warn().Msg("REDIS_URL uses redis:// (not TLS) in production: consider using rediss://")
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
