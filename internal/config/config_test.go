// SPDX-License-Identifier: MIT

package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()
	assert.Equal(t, ":8080", cfg.Listen)
	assert.Equal(t, "localhost:6379", cfg.RedisAddr)
	assert.True(t, cfg.EnableRateLimit)
	assert.False(t, cfg.PublicInstance)
	assert.Equal(t, 15*time.Second, cfg.ShutdownTimeout)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("STREAMGATE_LISTEN", ":9090")
	t.Setenv("STREAMGATE_SECRET_KEY", "super-secret")
	t.Setenv("STREAMGATE_ENABLE_RATE_LIMIT", "false")
	t.Setenv("STREAMGATE_MAX_RESOLUTIONS", "100")

	cfg := Load()
	assert.Equal(t, ":9090", cfg.Listen)
	assert.Equal(t, "super-secret", cfg.SecretKey)
	assert.False(t, cfg.EnableRateLimit)
	assert.Equal(t, 100, cfg.MaxResolutions)
	require.NoError(t, cfg.Validate())
}

func TestValidateMissingSecret(t *testing.T) {
	cfg := Load()
	cfg.SecretKey = ""
	assert.Error(t, cfg.Validate())
}

func TestValidateNegativeMaxResolutions(t *testing.T) {
	cfg := Load()
	cfg.SecretKey = "k"
	cfg.MaxResolutions = -1
	assert.Error(t, cfg.Validate())
}

func TestParseHelpersFallBackOnGarbage(t *testing.T) {
	t.Setenv("STREAMGATE_REDIS_DB", "not-a-number")
	t.Setenv("STREAMGATE_ENABLE_RATE_LIMIT", "maybe")
	t.Setenv("STREAMGATE_SHUTDOWN_TIMEOUT", "soon")

	cfg := Load()
	assert.Equal(t, 0, cfg.RedisDB)
	assert.True(t, cfg.EnableRateLimit)
	assert.Equal(t, 15*time.Second, cfg.ShutdownTimeout)
}
