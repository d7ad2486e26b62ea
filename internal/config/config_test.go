package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigMethods(t *testing.T) {
	t.Run("Addr returns formatted port", func(t *testing.T) {
		cfg := &Config{Port: 3000}
		assert.Equal(t, ":3000", cfg.Addr())
	})

	t.Run("SessionTTL converts hours to duration", func(t *testing.T) {
		cfg := &Config{SessionTTLHours: 168}
		assert.Equal(t, 168*time.Hour, cfg.SessionTTL())
	})

	t.Run("TokenTTL converts minutes to duration", func(t *testing.T) {
		cfg := &Config{TokenTTLMinutes: 15}
		assert.Equal(t, 15*time.Minute, cfg.TokenTTL())
	})
}

func TestValidate(t *testing.T) {
	strongSecret := "0123456789abcdef0123456789abcdef"

	t.Run("production requires strong JWT secret", func(t *testing.T) {
		cfg := &Config{JWTSecret: "short", RedisURL: "rediss://host"}
		assert.Error(t, cfg.Validate(true))

		cfg.JWTSecret = strongSecret
		assert.NoError(t, cfg.Validate(true))
	})

	t.Run("production rejects weak admin token", func(t *testing.T) {
		cfg := &Config{JWTSecret: strongSecret, AdminToken: "password", RedisURL: "rediss://host"}
		assert.Error(t, cfg.Validate(true))
	})

	t.Run("development accepts anything", func(t *testing.T) {
		cfg := &Config{}
		assert.NoError(t, cfg.Validate(false))
	})
}

func TestLoad(t *testing.T) {
	originalEnv := map[string]string{
		"PORT":              os.Getenv("PORT"),
		"DATABASE_URL":      os.Getenv("DATABASE_URL"),
		"REDIS_URL":         os.Getenv("REDIS_URL"),
		"JWT_SECRET":        os.Getenv("JWT_SECRET"),
		"SESSION_TTL_HOURS": os.Getenv("SESSION_TTL_HOURS"),
		"TOKEN_TTL_MINUTES": os.Getenv("TOKEN_TTL_MINUTES"),
		"DEFAULT_TENANT_ID": os.Getenv("DEFAULT_TENANT_ID"),
		"LOG_LEVEL":         os.Getenv("LOG_LEVEL"),
	}

	defer func() {
		for k, v := range originalEnv {
			if v == "" {
				os.Unsetenv(k)
			} else {
				os.Setenv(k, v)
			}
		}
	}()

	t.Run("loads config with defaults", func(t *testing.T) {
		os.Setenv("DATABASE_URL", "postgres://localhost/test")
		os.Setenv("REDIS_URL", "redis://localhost:6379")
		os.Unsetenv("PORT")
		os.Unsetenv("SESSION_TTL_HOURS")
		os.Unsetenv("TOKEN_TTL_MINUTES")
		os.Unsetenv("DEFAULT_TENANT_ID")
		os.Unsetenv("LOG_LEVEL")

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, 8080, cfg.Port)
		assert.Equal(t, "postgres://localhost/test", cfg.DatabaseURL)
		assert.Equal(t, "redis://localhost:6379", cfg.RedisURL)
		assert.Equal(t, 168, cfg.SessionTTLHours)
		assert.Equal(t, 15, cfg.TokenTTLMinutes)
		assert.Empty(t, cfg.DefaultTenantID)
		assert.Equal(t, "info", cfg.LogLevel)
	})

	t.Run("loads custom values", func(t *testing.T) {
		os.Setenv("DATABASE_URL", "postgres://localhost/test")
		os.Setenv("REDIS_URL", "redis://localhost:6379")
		os.Setenv("PORT", "3000")
		os.Setenv("TOKEN_TTL_MINUTES", "5")
		os.Setenv("LOG_LEVEL", "debug")

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, 3000, cfg.Port)
		assert.Equal(t, 5, cfg.TokenTTLMinutes)
		assert.Equal(t, "debug", cfg.LogLevel)
	})

	t.Run("fails without required DATABASE_URL", func(t *testing.T) {
		os.Unsetenv("DATABASE_URL")
		os.Setenv("REDIS_URL", "redis://localhost:6379")

		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("fails without required REDIS_URL", func(t *testing.T) {
		os.Setenv("DATABASE_URL", "postgres://localhost/test")
		os.Unsetenv("REDIS_URL")

		_, err := Load()
		assert.Error(t, err)
	})
}
