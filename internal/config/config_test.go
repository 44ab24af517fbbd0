package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))

	cfg := Load()
	assert.Equal(t, "dev", cfg.Env)
	assert.Equal(t, "8081", cfg.HTTPPort)
	assert.Equal(t, "postgres", cfg.StoreBackend)
	assert.Equal(t, 15*time.Minute, cfg.AccessTTL)
	assert.Equal(t, 7, cfg.ModifyWindowDays)
	assert.Equal(t, []string{"*"}, cfg.CORSOrigins)
	assert.False(t, cfg.IsProd())
	assert.Equal(t, time.Local, cfg.Location())
}

func TestLoadFromEnvAndFile(t *testing.T) {
	envFile := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("HTTP_PORT=9090\nSTORE_BACKEND=memory\n"), 0o600))
	t.Setenv("ENV_FILE", envFile)
	t.Setenv("APP_ENV", "production")
	t.Setenv("ACCESS_TTL", "5m")
	t.Setenv("REFRESH_TTL", "not-a-duration")
	t.Setenv("TIMEZONE", "Asia/Kolkata")
	t.Setenv("CORS_ORIGINS", "https://a.example, https://b.example")
	t.Cleanup(func() {
		os.Unsetenv("HTTP_PORT")
		os.Unsetenv("STORE_BACKEND")
	})

	cfg := Load()
	assert.Equal(t, "9090", cfg.HTTPPort)
	assert.Equal(t, "memory", cfg.StoreBackend)
	assert.True(t, cfg.IsProd())
	assert.Equal(t, 5*time.Minute, cfg.AccessTTL)
	assert.Equal(t, 24*time.Hour, cfg.RefreshTTL, "invalid durations fall back")
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSOrigins)
	assert.Equal(t, "Asia/Kolkata", cfg.Location().String())
}

func TestLocationFallsBack(t *testing.T) {
	assert.Equal(t, time.Local, App{Timezone: "Mars/Olympus"}.Location())
	assert.Equal(t, "UTC", App{Timezone: "UTC"}.Location().String())
}
