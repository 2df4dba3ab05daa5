package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setMinimalEnv(t *testing.T) {
	t.Helper()
	t.Setenv("LEASEBOOK_DB_DSN", "file:leasebook.db")
	t.Setenv("LEASEBOOK_JWT_SECRET", "secret")
}

func TestLoad_Defaults(t *testing.T) {
	setMinimalEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.App.HTTPAddr)
	assert.Equal(t, "postgres", cfg.DB.Driver)
	assert.Equal(t, 168*time.Hour, cfg.JWT.TTL)
	assert.Equal(t, 6, cfg.Review.VisibleMonths)
	assert.Equal(t, 60, cfg.Review.RenewalNoticeDays)
	assert.Equal(t, 24*time.Hour, cfg.Worker.SweepInterval)
	assert.Empty(t, cfg.Redis.URL)
	assert.True(t, cfg.App.IsDev())
}

func TestLoad_Overrides(t *testing.T) {
	setMinimalEnv(t)
	t.Setenv("LEASEBOOK_DB_DRIVER", "sqlite")
	t.Setenv("LEASEBOOK_CORS_ALLOWED_ORIGINS", "http://a.test, ,http://b.test")
	t.Setenv("LEASEBOOK_REVIEW_VISIBLE_MONTHS", "12")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.DB.Driver)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.CORS.AllowedOrigins)
	assert.Equal(t, 12, cfg.Review.VisibleMonths)
}

func TestLoad_MissingRequired(t *testing.T) {
	setMinimalEnv(t)
	require.NoError(t, os.Unsetenv("LEASEBOOK_JWT_SECRET"))

	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_UnknownDriver(t *testing.T) {
	setMinimalEnv(t)
	t.Setenv("LEASEBOOK_DB_DRIVER", "mysql")

	_, err := Load()
	assert.Error(t, err)
}
