package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DevelopmentDefaults(t *testing.T) {
	t.Setenv("APP_ENV", "development")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("POSTGRESQL_HOST", "")
	t.Setenv("CORS_ALLOWED_ORIGINS", "")
	t.Setenv("DEFAULT_CURRENCY", "usd")
	t.Setenv("CAMPAIGN_SCHEDULER_INTERVAL", "1m")
	t.Setenv("BLOB_ENDPOINT", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.False(t, cfg.HasDatabase())
	assert.Equal(t, "USD", cfg.DefaultCurrency)
	assert.Equal(t, time.Minute, cfg.CampaignSchedulerInterval)
	assert.NotEmpty(t, cfg.JWTSecret)
	assert.Equal(t, []string{"http://localhost:3000", "http://localhost:3001"}, cfg.AllowedOrigins)
	assert.False(t, cfg.Blob.Enabled())
}

func TestLoad_DatabaseFromParts(t *testing.T) {
	t.Setenv("APP_ENV", "development")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("POSTGRESQL_HOST", "db")
	t.Setenv("POSTGRESQL_PORT", "5432")
	t.Setenv("POSTGRESQL_USER", "crm")
	t.Setenv("POSTGRESQL_PASSWORD", "p@ss")
	t.Setenv("POSTGRESQL_DBNAME", "crm")

	cfg, err := Load()
	require.NoError(t, err)

	assert.True(t, cfg.HasDatabase())
	assert.Equal(t, "postgres://crm:p%40ss@db:5432/crm?sslmode=disable", cfg.DatabaseURL)
}

func TestLoad_ProductionRequiresSecrets(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("JWT_SECRET", "short")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_SECRET")
}

func TestLoad_AIKeyFallback(t *testing.T) {
	t.Setenv("APP_ENV", "development")
	t.Setenv("XAI_API_KEY", "")
	t.Setenv("AI_API_KEY", "secret")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "secret", cfg.AI.APIKey)
}
